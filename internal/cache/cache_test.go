package cache

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tvollmer/mediadmin/internal/api"
)

// fakeService is a scriptable Service implementation that counts calls.
type fakeService struct {
	mu          sync.Mutex
	listCalls   int
	updateCalls int
	deleteCalls int

	listFn   func(ctx context.Context, q api.ListQuery) (*api.ListResponse, error)
	updateFn func(ctx context.Context, id, title string) (*api.Resource, error)
	deleteFn func(ctx context.Context, id string) error
}

func (f *fakeService) ListImages(ctx context.Context, q api.ListQuery) (*api.ListResponse, error) {
	f.mu.Lock()
	f.listCalls++
	fn := f.listFn
	f.mu.Unlock()

	if fn == nil {
		return &api.ListResponse{}, nil
	}

	return fn(ctx, q)
}

func (f *fakeService) UpdateImage(ctx context.Context, id, title string) (*api.Resource, error) {
	f.mu.Lock()
	f.updateCalls++
	fn := f.updateFn
	f.mu.Unlock()

	if fn == nil {
		return nil, nil //nolint:nilnil // fake keeps the optimistic value
	}

	return fn(ctx, id, title)
}

func (f *fakeService) DeleteImage(ctx context.Context, id string) error {
	f.mu.Lock()
	f.deleteCalls++
	fn := f.deleteFn
	f.mu.Unlock()

	if fn == nil {
		return nil
	}

	return fn(ctx, id)
}

func (f *fakeService) calls() (list, update, del int) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.listCalls, f.updateCalls, f.deleteCalls
}

func twoItemResponse() *api.ListResponse {
	return &api.ListResponse{
		Images: []api.Resource{
			{ID: "a", Title: "Zebra", UploadedBy: "admin"},
			{ID: "b", Title: "Apple", UploadedBy: "admin"},
		},
		Total: 2,
	}
}

// populated returns a cache whose view holds the two-item page.
func populated(t *testing.T, svc *fakeService) *Cache {
	t.Helper()

	svc.listFn = func(_ context.Context, _ api.ListQuery) (*api.ListResponse, error) {
		return twoItemResponse(), nil
	}

	c := New(svc, slog.Default())

	_, err := c.List(context.Background(), 1, 10, Sort{Field: "title", Direction: DirectionAsc})
	require.NoError(t, err)

	return c
}

func TestList_PopulatesView(t *testing.T) {
	svc := &fakeService{}
	c := populated(t, svc)

	view := c.View()
	assert.Equal(t, 2, view.TotalCount)
	assert.Equal(t, 1, view.Page)
	assert.Equal(t, 10, view.PageSize)
	require.Len(t, view.Items, 2)
	assert.Equal(t, "Zebra", view.Items[0].Title)
}

func TestList_PassesSortToServer(t *testing.T) {
	svc := &fakeService{}

	var gotSort string

	svc.listFn = func(_ context.Context, q api.ListQuery) (*api.ListResponse, error) {
		gotSort = q.Sort

		return twoItemResponse(), nil
	}

	c := New(svc, slog.Default())

	_, err := c.List(context.Background(), 1, 10, Sort{Field: "createdAt", Direction: DirectionDesc})
	require.NoError(t, err)
	assert.Equal(t, "createdAt:desc", gotSort)
}

func TestList_ErrorKeepsPreviousView(t *testing.T) {
	svc := &fakeService{}
	c := populated(t, svc)

	svc.mu.Lock()
	svc.listFn = func(_ context.Context, _ api.ListQuery) (*api.ListResponse, error) {
		return nil, errors.New("network down")
	}
	svc.mu.Unlock()

	view, err := c.List(context.Background(), 2, 10, Sort{})
	require.Error(t, err)

	// Stale-but-valid data is returned alongside the error.
	assert.Len(t, view.Items, 2)
	assert.Equal(t, 2, view.TotalCount)
}

func TestList_CoalescesIdenticalTuples(t *testing.T) {
	svc := &fakeService{}

	entered := make(chan struct{})
	release := make(chan struct{})

	var once sync.Once

	svc.listFn = func(_ context.Context, _ api.ListQuery) (*api.ListResponse, error) {
		once.Do(func() { close(entered) })
		<-release

		return twoItemResponse(), nil
	}

	c := New(svc, slog.Default())

	var wg sync.WaitGroup

	results := make([]error, 2)

	wg.Add(1)

	go func() {
		defer wg.Done()

		_, results[0] = c.List(context.Background(), 1, 10, Sort{})
	}()

	<-entered

	wg.Add(1)

	go func() {
		defer wg.Done()

		_, results[1] = c.List(context.Background(), 1, 10, Sort{})
	}()

	// Give the second call time to join the in-flight request.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	require.NoError(t, results[0])
	require.NoError(t, results[1])

	list, _, _ := svc.calls()
	assert.Equal(t, 1, list, "identical in-flight tuples must share one network call")
}

func TestList_SupersededResultDiscarded(t *testing.T) {
	svc := &fakeService{}

	release := make(chan struct{})

	svc.listFn = func(_ context.Context, q api.ListQuery) (*api.ListResponse, error) {
		if q.Page == 1 {
			<-release

			return twoItemResponse(), nil
		}

		return &api.ListResponse{
			Images: []api.Resource{{ID: "c", Title: "Cherry"}},
			Total:  1,
		}, nil
	}

	c := New(svc, slog.Default())

	var (
		wg       sync.WaitGroup
		staleErr error
	)

	wg.Add(1)

	go func() {
		defer wg.Done()

		_, staleErr = c.List(context.Background(), 1, 10, Sort{})
	}()

	// Supersede the in-flight page-1 request with page 2.
	time.Sleep(20 * time.Millisecond)

	_, err := c.List(context.Background(), 2, 10, Sort{})
	require.NoError(t, err)

	close(release)
	wg.Wait()

	assert.ErrorIs(t, staleErr, ErrSuperseded)

	// The stale result was not applied.
	view := c.View()
	assert.Equal(t, 2, view.Page)
	require.Len(t, view.Items, 1)
	assert.Equal(t, "Cherry", view.Items[0].Title)
}

func TestSetClientSort_ReordersWithoutFetch(t *testing.T) {
	svc := &fakeService{}
	c := populated(t, svc)

	listBefore, _, _ := svc.calls()

	view, err := c.SetClientSort(context.Background(), "title", DirectionAsc)
	require.NoError(t, err)

	listAfter, _, _ := svc.calls()
	assert.Equal(t, listBefore, listAfter, "client sort must not fetch")

	require.Len(t, view.Items, 2)
	assert.Equal(t, "Apple", view.Items[0].Title)
	assert.Equal(t, "Zebra", view.Items[1].Title)
}

func TestSetClientSort_ServerFieldDelegatesToList(t *testing.T) {
	svc := &fakeService{}
	c := populated(t, svc)

	listBefore, _, _ := svc.calls()

	var gotSort string

	svc.mu.Lock()
	svc.listFn = func(_ context.Context, q api.ListQuery) (*api.ListResponse, error) {
		gotSort = q.Sort

		return twoItemResponse(), nil
	}
	svc.mu.Unlock()

	_, err := c.SetClientSort(context.Background(), "createdAt", DirectionDesc)
	require.NoError(t, err)

	listAfter, _, _ := svc.calls()
	assert.Equal(t, listBefore+1, listAfter)
	assert.Equal(t, "createdAt:desc", gotSort)
}

func TestUpdate_OptimisticThenReconciled(t *testing.T) {
	svc := &fakeService{}
	c := populated(t, svc)

	svc.updateFn = func(_ context.Context, id, title string) (*api.Resource, error) {
		return &api.Resource{ID: id, Title: title, UploadedBy: "admin", ImageURL: "http://x/a.png"}, nil
	}

	require.NoError(t, c.Update(context.Background(), "a", "New"))

	view := c.View()
	assert.Equal(t, "New", view.Items[0].Title)
	assert.Equal(t, "http://x/a.png", view.Items[0].ImageURL, "server representation reconciled")
}

func TestUpdate_FailureRollsBack(t *testing.T) {
	svc := &fakeService{}
	c := populated(t, svc)

	before := c.View().Items[0]

	svc.updateFn = func(_ context.Context, _, _ string) (*api.Resource, error) {
		return nil, errors.New("rejected")
	}

	err := c.Update(context.Background(), "a", "New")
	require.Error(t, err)

	after := c.View().Items[0]
	assert.Equal(t, before, after, "rollback must restore the exact pre-call value")
}

func TestUpdate_UnknownIDRejected(t *testing.T) {
	svc := &fakeService{}
	c := populated(t, svc)

	err := c.Update(context.Background(), "nope", "New")
	assert.ErrorIs(t, err, ErrNotInView)

	_, update, _ := svc.calls()
	assert.Zero(t, update, "no network write for an unknown id")
}

func TestUpdate_SameIDSerializes(t *testing.T) {
	svc := &fakeService{}
	c := populated(t, svc)

	entered := make(chan struct{})
	release := make(chan struct{})

	var once sync.Once

	svc.updateFn = func(_ context.Context, id, title string) (*api.Resource, error) {
		once.Do(func() { close(entered) })
		<-release

		return &api.Resource{ID: id, Title: title}, nil
	}

	var wg sync.WaitGroup

	wg.Add(1)

	go func() {
		defer wg.Done()

		_ = c.Update(context.Background(), "a", "First")
	}()

	<-entered

	wg.Add(1)

	go func() {
		defer wg.Done()

		_ = c.Update(context.Background(), "a", "Second")
	}()

	// While the first update is in flight, the second must not have applied
	// its optimistic patch.
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, "First", c.View().Items[0].Title)

	close(release)
	wg.Wait()

	assert.Equal(t, "Second", c.View().Items[0].Title)

	_, update, _ := svc.calls()
	assert.Equal(t, 2, update)
}

func TestRemove_OptimisticDecrement(t *testing.T) {
	svc := &fakeService{}
	c := populated(t, svc)

	require.NoError(t, c.Remove(context.Background(), "a"))

	view := c.View()
	assert.Equal(t, 1, view.TotalCount)
	require.Len(t, view.Items, 1)
	assert.Equal(t, "b", view.Items[0].ID)
}

func TestRemove_FailureReinsertsAtIndex(t *testing.T) {
	svc := &fakeService{}
	c := populated(t, svc)

	svc.deleteFn = func(_ context.Context, _ string) error {
		return errors.New("rejected")
	}

	err := c.Remove(context.Background(), "a")
	require.Error(t, err)

	view := c.View()
	assert.Equal(t, 2, view.TotalCount)
	require.Len(t, view.Items, 2)
	assert.Equal(t, "a", view.Items[0].ID, "reinserted at its original index")
}

func TestInvalidate_RefetchesLastParams(t *testing.T) {
	svc := &fakeService{}
	c := populated(t, svc)

	var gotQuery api.ListQuery

	svc.mu.Lock()
	svc.listFn = func(_ context.Context, q api.ListQuery) (*api.ListResponse, error) {
		gotQuery = q

		return &api.ListResponse{
			Images: []api.Resource{{ID: "n", Title: "Fresh"}},
			Total:  3,
		}, nil
	}
	svc.mu.Unlock()

	require.NoError(t, c.Invalidate(context.Background()))

	assert.Equal(t, api.ListQuery{Page: 1, PageSize: 10, Sort: "title:asc"}, gotQuery)

	view := c.View()
	assert.Equal(t, 3, view.TotalCount)
	require.Len(t, view.Items, 1)
	assert.Equal(t, "Fresh", view.Items[0].Title)
}

func TestInvalidate_NoopWithoutView(t *testing.T) {
	svc := &fakeService{}
	c := New(svc, slog.Default())

	require.NoError(t, c.Invalidate(context.Background()))

	list, _, _ := svc.calls()
	assert.Zero(t, list)
}
