// Package upload stages local files for submission to the media service:
// per-file validation, preview derivation, and single or bulk multipart
// submission with per-batch status tracking.
package upload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/tvollmer/mediadmin/internal/api"
)

// Mode selects the submission path: one file with metadata, or many files
// without per-file metadata.
type Mode int

const (
	Single Mode = iota
	Bulk
)

// Status is the batch lifecycle state.
type Status int

const (
	Idle Status = iota
	Staged
	Submitting
	Succeeded
	Failed
)

func (s Status) String() string {
	switch s {
	case Idle:
		return "idle"
	case Staged:
		return "staged"
	case Submitting:
		return "submitting"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Sentinel errors resolved locally, before any network call.
var (
	ErrEmptyBatch       = errors.New("upload: no staged entries")
	ErrMissingTitle     = errors.New("upload: title required for single upload")
	ErrSubmitInProgress = errors.New("upload: submission in progress")
)

// InvalidFileError reports a file rejected at staging time. It does not
// abort the rest of a batch.
type InvalidFileError struct {
	Path   string
	Reason string
}

func (e *InvalidFileError) Error() string {
	return fmt.Sprintf("upload: %s: %s", e.Path, e.Reason)
}

// Entry is one staged file. PreviewData is a base64 data URL, or empty when
// preview derivation failed; an unpreviewed entry is still submittable.
type Entry struct {
	Path        string
	Name        string
	Size        int64
	MediaType   string
	PreviewData string
}

// Limits are the client-side validation bounds applied at staging time.
type Limits struct {
	MaxFileSize  int64
	AllowedTypes []string
}

// Uploader is the network capability the pipeline consumes.
type Uploader interface {
	UploadImage(ctx context.Context, su api.SingleUpload) (*api.UploadResponse, error)
	UploadImages(ctx context.Context, files []api.FilePart) (*api.BulkUploadResponse, error)
}

// Invalidator is signaled after a successful submission so the resource
// cache refetches. The cache is the real implementation.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// previewWorkers bounds concurrent preview derivation for bulk staging.
const previewWorkers = 4

// Pipeline is one upload batch. Safe for concurrent use.
type Pipeline struct {
	mode   Mode
	limits Limits
	svc    Uploader
	inval  Invalidator
	logger *slog.Logger

	mu      sync.Mutex
	status  Status
	entries []Entry

	// Batch-level metadata, used by the single path only.
	title       string
	description string
	tags        []string
}

// New creates a Pipeline in the given mode. inval may be nil when no cache
// is attached (e.g. one-shot CLI uploads followed by an explicit list).
func New(mode Mode, limits Limits, svc Uploader, inval Invalidator, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}

	return &Pipeline{
		mode:   mode,
		limits: limits,
		svc:    svc,
		inval:  inval,
		logger: logger,
		status: Idle,
	}
}

// SetMetadata records the batch-level title, description, and tags. The bulk
// path ignores them — metadata is not per-entry in bulk mode.
func (p *Pipeline) SetMetadata(title, description string, tags []string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.title = title
	p.description = description
	p.tags = slices.Clone(tags)
}

// Status returns the batch lifecycle state.
func (p *Pipeline) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.status
}

// Entries returns a snapshot of the staged entries.
func (p *Pipeline) Entries() []Entry {
	p.mu.Lock()
	defer p.mu.Unlock()

	return slices.Clone(p.entries)
}

// StageFile validates and stages one file. Oversized or unsupported files
// are rejected with *InvalidFileError; for accepted files a preview is
// derived, and a derivation failure leaves PreviewData empty without
// removing the entry. In Single mode a newly staged file replaces the
// previous one.
func (p *Pipeline) StageFile(ctx context.Context, path string) error {
	errs := p.StageFiles(ctx, []string{path})
	if len(errs) > 0 {
		return errs[0]
	}

	return nil
}

// StageFiles validates and stages each file, continuing past per-file
// rejections. The returned slice holds one error per rejected file.
func (p *Pipeline) StageFiles(ctx context.Context, paths []string) []error {
	p.mu.Lock()
	if p.status == Submitting {
		p.mu.Unlock()
		return []error{ErrSubmitInProgress}
	}
	p.mu.Unlock()

	var errs []error

	accepted := make([]*Entry, 0, len(paths))

	for _, path := range paths {
		entry, err := p.validate(path)
		if err != nil {
			p.logger.Warn("file rejected at staging",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)

			errs = append(errs, err)

			continue
		}

		accepted = append(accepted, entry)
	}

	// Derive previews concurrently. Failures leave PreviewData empty; the
	// entries stay submittable.
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(previewWorkers)

	for _, entry := range accepted {
		g.Go(func() error {
			preview, err := derivePreview(ctx, entry.Path, entry.MediaType)
			if err != nil {
				p.logger.Warn("preview derivation failed",
					slog.String("path", entry.Path),
					slog.String("error", err.Error()),
				)

				return nil
			}

			entry.PreviewData = preview

			return nil
		})
	}

	_ = g.Wait() //nolint:errcheck // workers never return errors

	p.mu.Lock()
	defer p.mu.Unlock()

	for _, entry := range accepted {
		if p.mode == Single {
			p.entries = p.entries[:0]
		}

		// Re-staging a path already in the batch replaces the old entry,
		// so a retried watch batch never submits duplicates.
		idx := slices.IndexFunc(p.entries, func(e Entry) bool { return e.Path == entry.Path })
		if idx >= 0 {
			p.entries[idx] = *entry

			continue
		}

		p.entries = append(p.entries, *entry)
	}

	if len(p.entries) > 0 {
		p.status = Staged
	}

	return errs
}

// validate checks the file's size and sniffed media type against the limits.
func (p *Pipeline) validate(path string) (*Entry, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, &InvalidFileError{Path: path, Reason: "unreadable: " + err.Error()}
	}

	if info.IsDir() {
		return nil, &InvalidFileError{Path: path, Reason: "is a directory"}
	}

	if info.Size() > p.limits.MaxFileSize {
		return nil, &InvalidFileError{
			Path:   path,
			Reason: fmt.Sprintf("size %d exceeds maximum %d", info.Size(), p.limits.MaxFileSize),
		}
	}

	mediaType, err := sniffMediaType(path)
	if err != nil {
		return nil, &InvalidFileError{Path: path, Reason: "unreadable: " + err.Error()}
	}

	if !slices.Contains(p.limits.AllowedTypes, mediaType) {
		return nil, &InvalidFileError{Path: path, Reason: "unsupported media type " + mediaType}
	}

	return &Entry{
		Path:      path,
		Name:      info.Name(),
		Size:      info.Size(),
		MediaType: mediaType,
	}, nil
}

// RemoveEntry drops the staged entry at index i before submission. No-op
// once submission has started or the index is out of range. An emptied
// batch returns to Idle.
func (p *Pipeline) RemoveEntry(i int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.status >= Submitting {
		return
	}

	if i < 0 || i >= len(p.entries) {
		return
	}

	p.entries = slices.Delete(p.entries, i, i+1)

	if len(p.entries) == 0 {
		p.status = Idle
	}
}

// Submit packages the staged entries into one multipart transfer: the
// single endpoint with metadata in Single mode, the bulk endpoint with
// files only in Bulk mode. A zero-entry batch fails fast with ErrEmptyBatch
// and no network call; Single mode additionally requires a non-blank title.
// Success signals the invalidator; failure preserves the staged entries so
// the caller can retry without re-staging.
func (p *Pipeline) Submit(ctx context.Context) error {
	p.mu.Lock()

	if p.status == Submitting {
		p.mu.Unlock()
		return ErrSubmitInProgress
	}

	if len(p.entries) == 0 {
		p.mu.Unlock()
		return ErrEmptyBatch
	}

	if p.mode == Single && strings.TrimSpace(p.title) == "" {
		p.mu.Unlock()
		return ErrMissingTitle
	}

	entries := slices.Clone(p.entries)
	title, description, tags := p.title, p.description, slices.Clone(p.tags)
	p.status = Submitting
	p.mu.Unlock()

	err := p.transfer(ctx, entries, title, description, tags)

	p.mu.Lock()
	defer p.mu.Unlock()

	if err != nil {
		p.status = Failed

		p.logger.Warn("submission failed, entries preserved",
			slog.Int("entries", len(entries)),
			slog.String("error", err.Error()),
		)

		return err
	}

	p.status = Succeeded

	if p.inval != nil {
		if invErr := p.inval.Invalidate(ctx); invErr != nil {
			p.logger.Warn("cache invalidation after upload failed",
				slog.String("error", invErr.Error()))
		}
	}

	return nil
}

// transfer performs the network submission for the batch.
func (p *Pipeline) transfer(ctx context.Context, entries []Entry, title, description string, tags []string) error {
	files := make([]api.FilePart, 0, len(entries))
	closers := make([]*os.File, 0, len(entries))

	defer func() {
		for _, f := range closers {
			_ = f.Close()
		}
	}()

	for _, entry := range entries {
		f, err := os.Open(entry.Path)
		if err != nil {
			return fmt.Errorf("upload: opening %s: %w", entry.Path, err)
		}

		closers = append(closers, f)
		files = append(files, api.FilePart{Name: entry.Name, Content: f})
	}

	if p.mode == Single {
		_, err := p.svc.UploadImage(ctx, api.SingleUpload{
			File:        files[0],
			Title:       title,
			Description: description,
			Tags:        tags,
		})

		return err
	}

	_, err := p.svc.UploadImages(ctx, files)

	return err
}

// Reset returns the batch to Idle, discarding entries, previews, and
// metadata. Illegal only while a submission is mid-flight.
func (p *Pipeline) Reset() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.status == Submitting {
		return ErrSubmitInProgress
	}

	p.entries = nil
	p.title = ""
	p.description = ""
	p.tags = nil
	p.status = Idle

	return nil
}
