package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
)

// ListQuery identifies one collection window. Sort is a server sort
// expression like "title:asc" or "createdAt:desc"; empty means server default.
type ListQuery struct {
	Page     int
	PageSize int
	Sort     string
}

// ListImages fetches one page of the image collection.
func (c *Client) ListImages(ctx context.Context, q ListQuery) (*ListResponse, error) {
	params := url.Values{}
	params.Set("page", fmt.Sprint(q.Page))
	params.Set("limit", fmt.Sprint(q.PageSize))

	if q.Sort != "" {
		params.Set("sort", q.Sort)
	}

	resp, err := c.Do(ctx, http.MethodGet, "/images?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var lr ListResponse
	if decErr := json.NewDecoder(resp.Body).Decode(&lr); decErr != nil {
		return nil, fmt.Errorf("api: decoding image list: %w", decErr)
	}

	return &lr, nil
}

// UpdateImage changes an image's title via PUT /images/{id} and returns the
// server's representation of the updated resource.
func (c *Client) UpdateImage(ctx context.Context, id, title string) (*Resource, error) {
	c.logger.Debug("updating image title", slog.String("id", id))

	body, err := json.Marshal(map[string]string{"title": title})
	if err != nil {
		return nil, fmt.Errorf("api: marshaling title update: %w", err)
	}

	resp, err := c.Do(ctx, http.MethodPut, "/images/"+url.PathEscape(id),
		func() io.Reader { return bytes.NewReader(body) })
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var res Resource
	if decErr := json.NewDecoder(resp.Body).Decode(&res); decErr != nil {
		return nil, fmt.Errorf("api: decoding updated image: %w", decErr)
	}

	return &res, nil
}

// DeleteImage removes an image via DELETE /images/{id}.
func (c *Client) DeleteImage(ctx context.Context, id string) error {
	c.logger.Debug("deleting image", slog.String("id", id))

	resp, err := c.Do(ctx, http.MethodDelete, "/images/"+url.PathEscape(id), nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	// Drain the acknowledgement body to reuse the connection.
	if _, drainErr := io.Copy(io.Discard, resp.Body); drainErr != nil {
		return fmt.Errorf("api: draining delete response: %w", drainErr)
	}

	return nil
}
