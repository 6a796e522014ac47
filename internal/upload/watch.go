package upload

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watch observes dir and stages files as they are created, submitting a
// bulk batch once events have settled for the given interval. A failed
// submission keeps its entries staged, so the next settle retries them
// together with any newly dropped files. Watch blocks until ctx is
// canceled or the watcher fails.
func (p *Pipeline) Watch(ctx context.Context, dir string, settle time.Duration) error {
	if p.mode != Bulk {
		return fmt.Errorf("upload: watch requires bulk mode")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("upload: creating watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("upload: watching %s: %w", dir, err)
	}

	p.logger.Info("watching for new files",
		slog.String("dir", dir),
		slog.Duration("settle", settle),
	)

	// pending collects paths seen since the last settle. The timer starts
	// on the first event and resets on every subsequent one, so a burst of
	// drops becomes one batch.
	pending := make(map[string]struct{})
	timer := time.NewTimer(settle)

	if !timer.Stop() {
		<-timer.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}

			pending[event.Name] = struct{}{}

			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}

			timer.Reset(settle)

		case watchErr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}

			p.logger.Warn("filesystem watcher error",
				slog.String("error", watchErr.Error()))

		case <-timer.C:
			paths := make([]string, 0, len(pending))
			for path := range pending {
				paths = append(paths, path)
			}

			clear(pending)

			p.submitBatch(ctx, paths)
		}
	}
}

// submitBatch stages the settled paths and submits whatever is staged,
// including entries preserved from a previously failed submission.
func (p *Pipeline) submitBatch(ctx context.Context, paths []string) {
	for _, err := range p.StageFiles(ctx, paths) {
		p.logger.Warn("skipping file", slog.String("error", err.Error()))
	}

	if len(p.Entries()) == 0 {
		return
	}

	if err := p.Submit(ctx); err != nil {
		p.logger.Warn("batch submission failed, will retry on next settle",
			slog.String("error", err.Error()))

		return
	}

	p.logger.Info("batch uploaded", slog.Int("files", len(paths)))

	if err := p.Reset(); err != nil {
		p.logger.Warn("pipeline reset failed", slog.String("error", err.Error()))
	}
}
