// Package cache owns the paginated, sortable, mutable view of the remote
// image collection. It coalesces duplicate in-flight list requests, discards
// superseded results, and applies optimistic mutations with rollback.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/tvollmer/mediadmin/internal/api"
)

// Sort directions.
const (
	DirectionAsc  = "asc"
	DirectionDesc = "desc"
)

// Sentinel errors.
var (
	// ErrSuperseded is returned to a List caller whose request was
	// overtaken by a newer view-parameter change; its result was discarded.
	ErrSuperseded = errors.New("cache: list result superseded")

	// ErrNotInView indicates a mutation target that is not in the current
	// page of items.
	ErrNotInView = errors.New("cache: resource not in current view")
)

// Sort is one ordering over the collection.
type Sort struct {
	Field     string
	Direction string
}

// serverParam renders the sort as the service's query expression.
func (s Sort) serverParam() string {
	if s.Field == "" {
		return ""
	}

	dir := s.Direction
	if dir == "" {
		dir = DirectionAsc
	}

	return s.Field + ":" + dir
}

// View is the current window over the collection. Items holds at most
// PageSize resources; TotalCount is the server's collection-wide count.
type View struct {
	Items      []api.Resource
	TotalCount int
	Page       int
	PageSize   int
	Sort       Sort
}

// Service is the network capability the cache consumes. The api.Client is
// the real implementation; tests substitute fakes.
type Service interface {
	ListImages(ctx context.Context, q api.ListQuery) (*api.ListResponse, error)
	UpdateImage(ctx context.Context, id, title string) (*api.Resource, error)
	DeleteImage(ctx context.Context, id string) error
}

// Mutation states. A mutation is Pending until its network write resolves,
// then Committed or RolledBack, both terminal. Retries create a new mutation.
type mutationState int

const (
	statePending mutationState = iota
	stateCommitted
	stateRolledBack
)

type mutation struct {
	id       string
	resource string
	state    mutationState
}

func newMutation(resourceID string) *mutation {
	return &mutation{id: uuid.New().String(), resource: resourceID, state: statePending}
}

// transition moves a pending mutation to a terminal state. Transitioning an
// already-terminal mutation is a programming error.
func (m *mutation) transition(to mutationState) {
	if m.state != statePending {
		panic(fmt.Sprintf("cache: mutation %s already terminal", m.id))
	}

	m.state = to
}

// Cache is the resource collection cache. Safe for concurrent use.
type Cache struct {
	svc    Service
	logger *slog.Logger

	group singleflight.Group

	mu      sync.Mutex
	view    View
	hasView bool
	// current is the latest requested list tuple; a resolving request whose
	// tuple differs is stale and its result is discarded.
	current api.ListQuery
	// idLocks serializes mutations per resource id.
	idLocks map[string]*sync.Mutex
}

// New creates a Cache over the given service.
func New(svc Service, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}

	return &Cache{
		svc:     svc,
		logger:  logger,
		idLocks: make(map[string]*sync.Mutex),
	}
}

// View returns a snapshot of the current view. The items slice is copied so
// callers cannot alias cache-owned state.
func (c *Cache) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.snapshotLocked()
}

func (c *Cache) snapshotLocked() View {
	v := c.view
	v.Items = slices.Clone(c.view.Items)

	return v
}

// List fetches one collection window. Duplicate calls for an identical
// (page, pageSize, sort) tuple while one is in flight share the same pending
// result. A result superseded by a newer parameter change is discarded and
// the caller gets ErrSuperseded. On a network error the previous view is
// left intact and returned alongside the error.
func (c *Cache) List(ctx context.Context, page, pageSize int, sort Sort) (View, error) {
	q := api.ListQuery{Page: page, PageSize: pageSize, Sort: sort.serverParam()}

	c.mu.Lock()
	c.current = q
	c.mu.Unlock()

	key := fmt.Sprintf("%d|%d|%s", q.Page, q.PageSize, q.Sort)

	result, err, shared := c.group.Do(key, func() (any, error) {
		return c.svc.ListImages(ctx, q)
	})

	if shared {
		c.logger.Debug("list request coalesced", slog.String("key", key))
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err != nil {
		// Stale-but-valid data is preferred over blanking the view.
		return c.snapshotLocked(), err
	}

	if c.current != q {
		c.logger.Debug("discarding superseded list result", slog.String("key", key))

		return c.snapshotLocked(), ErrSuperseded
	}

	lr := result.(*api.ListResponse)

	c.view = View{
		Items:      slices.Clone(lr.Images),
		TotalCount: lr.Total,
		Page:       page,
		PageSize:   pageSize,
		Sort:       sort,
	}
	c.hasView = true

	c.logger.Debug("view populated",
		slog.Int("items", len(c.view.Items)),
		slog.Int("total", c.view.TotalCount),
		slog.Int("page", page),
	)

	return c.snapshotLocked(), nil
}

// SetClientSort re-orders the current items in place when field is declared
// client-orderable: a stable, locale-aware, numeric-aware comparison with
// missing values last in either direction, and no network call. For any
// other field it behaves as List with the new sort passed to the server.
func (c *Cache) SetClientSort(ctx context.Context, field, direction string) (View, error) {
	if !clientOrderable[field] {
		c.mu.Lock()
		page, pageSize := c.view.Page, c.view.PageSize
		c.mu.Unlock()

		return c.List(ctx, page, pageSize, Sort{Field: field, Direction: direction})
	}

	sort := Sort{Field: field, Direction: direction}
	cmp := compareResources(newCollator(), sort)

	c.mu.Lock()
	defer c.mu.Unlock()

	slices.SortStableFunc(c.view.Items, cmp)
	c.view.Sort = sort

	return c.snapshotLocked(), nil
}

// idLock returns the per-resource mutex serializing mutations on one id.
func (c *Cache) idLock(id string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()

	l, ok := c.idLocks[id]
	if !ok {
		l = &sync.Mutex{}
		c.idLocks[id] = l
	}

	return l
}

// Update optimistically applies a title patch to the matching item, then
// issues the network write. On failure the item reverts to its pre-patch
// snapshot; on success the server's returned representation replaces the
// optimistic value. Updates on the same id serialize: a second call waits
// for the first's resolution before applying its own patch.
func (c *Cache) Update(ctx context.Context, id, title string) error {
	lock := c.idLock(id)
	lock.Lock()
	defer lock.Unlock()

	mut := newMutation(id)

	c.mu.Lock()

	idx := slices.IndexFunc(c.view.Items, func(r api.Resource) bool { return r.ID == id })
	if idx < 0 {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotInView, id)
	}

	snapshot := c.view.Items[idx]
	c.view.Items[idx].Title = title
	c.mu.Unlock()

	c.logger.Debug("optimistic update applied",
		slog.String("mutation", mut.id),
		slog.String("id", id),
	)

	updated, err := c.svc.UpdateImage(ctx, id, title)
	if err != nil {
		c.restoreItem(id, snapshot)
		mut.transition(stateRolledBack)

		c.logger.Warn("update rolled back",
			slog.String("mutation", mut.id),
			slog.String("id", id),
			slog.String("error", err.Error()),
		)

		return err
	}

	if updated != nil {
		c.restoreItem(id, *updated)
	}

	mut.transition(stateCommitted)

	return nil
}

// restoreItem replaces the item with the given id, if still present.
func (c *Cache) restoreItem(id string, value api.Resource) {
	c.mu.Lock()
	defer c.mu.Unlock()

	idx := slices.IndexFunc(c.view.Items, func(r api.Resource) bool { return r.ID == id })
	if idx >= 0 {
		c.view.Items[idx] = value
	}
}

// Remove optimistically deletes the item and decrements TotalCount, then
// issues the network delete. On failure the item is reinserted at its
// original index and the count restored.
func (c *Cache) Remove(ctx context.Context, id string) error {
	lock := c.idLock(id)
	lock.Lock()
	defer lock.Unlock()

	mut := newMutation(id)

	c.mu.Lock()

	idx := slices.IndexFunc(c.view.Items, func(r api.Resource) bool { return r.ID == id })
	if idx < 0 {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotInView, id)
	}

	snapshot := c.view.Items[idx]
	c.view.Items = slices.Delete(c.view.Items, idx, idx+1)
	c.view.TotalCount--
	c.mu.Unlock()

	c.logger.Debug("optimistic remove applied",
		slog.String("mutation", mut.id),
		slog.String("id", id),
	)

	if err := c.svc.DeleteImage(ctx, id); err != nil {
		c.mu.Lock()
		c.view.Items = slices.Insert(c.view.Items, min(idx, len(c.view.Items)), snapshot)
		c.view.TotalCount++
		c.mu.Unlock()

		mut.transition(stateRolledBack)

		c.logger.Warn("remove rolled back",
			slog.String("mutation", mut.id),
			slog.String("id", id),
			slog.String("error", err.Error()),
		)

		return err
	}

	mut.transition(stateCommitted)

	return nil
}

// Invalidate discards the cached items and count for the current view and
// immediately re-lists with the last-used parameters. This is the sole
// integration point the upload pipeline uses after a successful submission.
func (c *Cache) Invalidate(ctx context.Context) error {
	c.mu.Lock()

	if !c.hasView {
		c.mu.Unlock()
		return nil
	}

	page, pageSize, sort := c.view.Page, c.view.PageSize, c.view.Sort
	c.view.Items = nil
	c.view.TotalCount = 0
	c.mu.Unlock()

	c.logger.Debug("view invalidated, refetching",
		slog.Int("page", page),
		slog.Int("page_size", pageSize),
	)

	_, err := c.List(ctx, page, pageSize, sort)

	return err
}
