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
	"os"
	"path/filepath"
)

// ProfileUpdate describes the fields to change on the admin profile.
// Empty fields are omitted from the request. ProfileImagePath, when set,
// names a local file to attach as the new profile image.
type ProfileUpdate struct {
	Email            string
	Password         string
	ProfileImagePath string
}

// Profile fetches the authenticated admin's identity record.
func (c *Client) Profile(ctx context.Context) (*Admin, error) {
	resp, err := c.Do(ctx, http.MethodGet, "/admin/profile", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var admin Admin
	if decErr := json.NewDecoder(resp.Body).Decode(&admin); decErr != nil {
		return nil, fmt.Errorf("api: decoding profile response: %w", decErr)
	}

	return &admin, nil
}

// UpdateProfile sends a multipart PUT /admin/profile with the changed fields
// and returns the updated identity record.
func (c *Client) UpdateProfile(ctx context.Context, upd ProfileUpdate) (*Admin, error) {
	c.logger.Info("updating profile",
		slog.Bool("email", upd.Email != ""),
		slog.Bool("password", upd.Password != ""),
		slog.Bool("image", upd.ProfileImagePath != ""),
	)

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	if upd.Email != "" {
		if err := w.WriteField("email", upd.Email); err != nil {
			return nil, fmt.Errorf("api: writing email field: %w", err)
		}
	}

	if upd.Password != "" {
		if err := w.WriteField("password", upd.Password); err != nil {
			return nil, fmt.Errorf("api: writing password field: %w", err)
		}
	}

	if upd.ProfileImagePath != "" {
		if err := attachFile(w, "profileImage", upd.ProfileImagePath); err != nil {
			return nil, err
		}
	}

	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("api: finalizing multipart body: %w", err)
	}

	resp, err := c.doMultipart(ctx, http.MethodPut, "/admin/profile", w.FormDataContentType(), &buf)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var admin Admin
	if decErr := json.NewDecoder(resp.Body).Decode(&admin); decErr != nil {
		return nil, fmt.Errorf("api: decoding updated profile: %w", decErr)
	}

	return &admin, nil
}

// attachFile streams a local file into a multipart form part.
func attachFile(w *multipart.Writer, field, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("api: opening %s: %w", path, err)
	}
	defer f.Close()

	part, err := w.CreateFormFile(field, filepath.Base(path))
	if err != nil {
		return fmt.Errorf("api: creating form file %s: %w", field, err)
	}

	if _, err := io.Copy(part, f); err != nil {
		return fmt.Errorf("api: copying %s into form: %w", path, err)
	}

	return nil
}
