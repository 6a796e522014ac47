package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tvollmer/mediadmin/internal/cache"
	"github.com/tvollmer/mediadmin/internal/upload"
)

var (
	flagPage       int
	flagLimit      int
	flagSort       string
	flagClientSort string

	flagTitle       string
	flagDescription string
	flagTags        []string
	flagBulk        bool
)

func newImagesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "images",
		Short: "Manage the image collection",
	}

	cmd.AddCommand(newImagesLsCmd())
	cmd.AddCommand(newImagesUploadCmd())
	cmd.AddCommand(newImagesRetitleCmd())
	cmd.AddCommand(newImagesRmCmd())
	cmd.AddCommand(newImagesWatchCmd())

	return cmd
}

func newImagesLsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ls",
		Short: "List one page of the collection",
		RunE:  runImagesLs,
	}

	addPagingFlags(cmd)
	cmd.Flags().StringVar(&flagClientSort, "client-sort", "",
		"re-order the fetched page locally, field:direction (e.g. title:asc)")

	return cmd
}

func addPagingFlags(cmd *cobra.Command) {
	cmd.Flags().IntVar(&flagPage, "page", 1, "page number")
	cmd.Flags().IntVar(&flagLimit, "limit", 0, "page size (default from config)")
	cmd.Flags().StringVar(&flagSort, "sort", "", "server sort, field:direction (e.g. createdAt:desc)")
}

func newImagesUploadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "upload <file> [file...]",
		Short: "Upload one image with metadata, or many with --bulk",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runImagesUpload,
	}

	cmd.Flags().StringVar(&flagTitle, "title", "", "image title (required without --bulk)")
	cmd.Flags().StringVar(&flagDescription, "description", "", "image description")
	cmd.Flags().StringSliceVar(&flagTags, "tags", nil, "comma-separated tags")
	cmd.Flags().BoolVar(&flagBulk, "bulk", false, "bulk mode: many files, no per-file metadata")

	return cmd
}

func newImagesRetitleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "retitle <id> <title>",
		Short: "Change an image's title",
		Args:  cobra.ExactArgs(2),
		RunE:  runImagesRetitle,
	}

	addPagingFlags(cmd)

	return cmd
}

func newImagesRmCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rm <id>",
		Short: "Delete an image",
		Args:  cobra.ExactArgs(1),
		RunE:  runImagesRm,
	}

	addPagingFlags(cmd)

	return cmd
}

func newImagesWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch <dir>",
		Short: "Watch a directory and bulk-upload files dropped into it",
		Args:  cobra.ExactArgs(1),
		RunE:  runImagesWatch,
	}
}

// parseSort splits a "field:direction" expression. Direction defaults to
// ascending.
func parseSort(expr string) (cache.Sort, error) {
	if expr == "" {
		return cache.Sort{}, nil
	}

	field, dir, found := strings.Cut(expr, ":")
	if !found {
		dir = cache.DirectionAsc
	}

	if dir != cache.DirectionAsc && dir != cache.DirectionDesc {
		return cache.Sort{}, fmt.Errorf("sort direction must be asc or desc, got %q", dir)
	}

	return cache.Sort{Field: field, Direction: dir}, nil
}

func (a *app) pageSize() int {
	if flagLimit > 0 {
		return flagLimit
	}

	return a.cfg.PageSize
}

func runImagesLs(_ *cobra.Command, _ []string) error {
	ctx := context.Background()

	a, err := newApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.Close()

	sort, err := parseSort(flagSort)
	if err != nil {
		return err
	}

	c := cache.New(a.client, a.logger)

	view, err := c.List(ctx, flagPage, a.pageSize(), sort)
	if err != nil {
		return a.checkAuthError(ctx, err)
	}

	if flagClientSort != "" {
		clientSort, err := parseSort(flagClientSort)
		if err != nil {
			return err
		}

		if view, err = c.SetClientSort(ctx, clientSort.Field, clientSort.Direction); err != nil {
			return a.checkAuthError(ctx, err)
		}
	}

	if flagJSON {
		return printJSON(view)
	}

	printImageTable(view)

	return nil
}

func runImagesUpload(_ *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := newApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.Close()

	mode := upload.Single
	if flagBulk {
		mode = upload.Bulk
	}

	p := upload.New(mode, a.uploadLimits(), a.client, nil, a.logger)

	for _, stageErr := range p.StageFiles(ctx, args) {
		fmt.Fprintf(os.Stderr, "Skipping: %v\n", stageErr)
	}

	p.SetMetadata(flagTitle, flagDescription, flagTags)

	if err := p.Submit(ctx); err != nil {
		return a.checkAuthError(ctx, err)
	}

	var total int64
	for _, e := range p.Entries() {
		total += e.Size
	}

	statusf("Uploaded %d file(s), %s.\n", len(p.Entries()), formatSize(total))

	return nil
}

func runImagesRetitle(_ *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := newApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.Close()

	id, title := args[0], args[1]

	sort, err := parseSort(flagSort)
	if err != nil {
		return err
	}

	c := cache.New(a.client, a.logger)

	if _, err := c.List(ctx, flagPage, a.pageSize(), sort); err != nil {
		return a.checkAuthError(ctx, err)
	}

	if err := c.Update(ctx, id, title); err != nil {
		return a.checkAuthError(ctx, err)
	}

	statusf("Title updated.\n")

	return nil
}

func runImagesRm(_ *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := newApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.Close()

	sort, err := parseSort(flagSort)
	if err != nil {
		return err
	}

	c := cache.New(a.client, a.logger)

	if _, err := c.List(ctx, flagPage, a.pageSize(), sort); err != nil {
		return a.checkAuthError(ctx, err)
	}

	if err := c.Remove(ctx, args[0]); err != nil {
		return a.checkAuthError(ctx, err)
	}

	statusf("Image deleted.\n")

	return nil
}

func runImagesWatch(_ *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.Close()

	settle, err := a.cfg.WatchSettleDuration()
	if err != nil {
		return fmt.Errorf("config watch_settle: %w", err)
	}

	// The cache holds a live view; each successful batch invalidates it so
	// the refreshed total is visible in the logs.
	c := cache.New(a.client, a.logger)
	if _, err := c.List(ctx, 1, a.cfg.PageSize, cache.Sort{}); err != nil {
		return a.checkAuthError(ctx, err)
	}

	p := upload.New(upload.Bulk, a.uploadLimits(), a.client, c, a.logger)

	statusf("Watching %s — press Ctrl-C to stop.\n", args[0])

	return p.Watch(ctx, args[0], settle)
}

func (a *app) uploadLimits() upload.Limits {
	return upload.Limits{
		MaxFileSize:  a.cfg.Upload.MaxFileSize,
		AllowedTypes: a.cfg.Upload.AllowedTypes,
	}
}
