package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
)

// FilePart is one file attached to a multipart upload.
type FilePart struct {
	Name    string
	Content io.Reader
}

// SingleUpload is the payload for the single-upload endpoint: one file plus
// its metadata fields.
type SingleUpload struct {
	File        FilePart
	Title       string
	Description string
	Tags        []string
}

// UploadImage submits one file with metadata as a multipart POST /images.
func (c *Client) UploadImage(ctx context.Context, su SingleUpload) (*UploadResponse, error) {
	c.logger.Info("uploading image",
		slog.String("name", su.File.Name),
		slog.String("title", su.Title),
	)

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part, err := w.CreateFormFile("image", su.File.Name)
	if err != nil {
		return nil, fmt.Errorf("api: creating image part: %w", err)
	}

	if _, err := io.Copy(part, su.File.Content); err != nil {
		return nil, fmt.Errorf("api: copying image content: %w", err)
	}

	if err := w.WriteField("title", su.Title); err != nil {
		return nil, fmt.Errorf("api: writing title field: %w", err)
	}

	if su.Description != "" {
		if err := w.WriteField("description", su.Description); err != nil {
			return nil, fmt.Errorf("api: writing description field: %w", err)
		}
	}

	if len(su.Tags) > 0 {
		if err := w.WriteField("tags", strings.Join(su.Tags, ",")); err != nil {
			return nil, fmt.Errorf("api: writing tags field: %w", err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("api: finalizing multipart body: %w", err)
	}

	resp, err := c.doMultipart(ctx, http.MethodPost, "/images", w.FormDataContentType(), &buf)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var ur UploadResponse
	if decErr := json.NewDecoder(resp.Body).Decode(&ur); decErr != nil {
		return nil, fmt.Errorf("api: decoding upload response: %w", decErr)
	}

	return &ur, nil
}

// UploadImages submits multiple files in one multipart POST to the bulk
// endpoint. Metadata fields are not sent — the bulk path carries files only.
func (c *Client) UploadImages(ctx context.Context, files []FilePart) (*BulkUploadResponse, error) {
	c.logger.Info("uploading image batch", slog.Int("count", len(files)))

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	for _, f := range files {
		part, err := w.CreateFormFile("images", f.Name)
		if err != nil {
			return nil, fmt.Errorf("api: creating part for %s: %w", f.Name, err)
		}

		if _, err := io.Copy(part, f.Content); err != nil {
			return nil, fmt.Errorf("api: copying %s: %w", f.Name, err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("api: finalizing multipart body: %w", err)
	}

	resp, err := c.doMultipart(ctx, http.MethodPost, "/images/upload-multiple", w.FormDataContentType(), &buf)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var br BulkUploadResponse
	if decErr := json.NewDecoder(resp.Body).Decode(&br); decErr != nil {
		return nil, fmt.Errorf("api: decoding bulk upload response: %w", decErr)
	}

	return &br, nil
}
