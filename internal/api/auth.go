package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// Login authenticates against POST /admin/login and returns the issued
// token plus the admin identity record. The client's TokenSource is not
// consulted — login is an anonymous endpoint.
func (c *Client) Login(ctx context.Context, email, password string) (*AuthResponse, error) {
	return c.postCredentials(ctx, "/admin/login", Credentials{Email: email, Password: password})
}

// Register creates a new admin account via POST /admin/register and returns
// the issued token plus identity, logging the new account in.
func (c *Client) Register(ctx context.Context, name, email, password string) (*AuthResponse, error) {
	return c.postCredentials(ctx, "/admin/register", Credentials{Name: name, Email: email, Password: password})
}

func (c *Client) postCredentials(ctx context.Context, path string, creds Credentials) (*AuthResponse, error) {
	body, err := json.Marshal(creds)
	if err != nil {
		return nil, fmt.Errorf("api: marshaling credentials: %w", err)
	}

	resp, err := c.Do(ctx, http.MethodPost, path, func() io.Reader { return bytes.NewReader(body) })
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var ar AuthResponse
	if decErr := json.NewDecoder(resp.Body).Decode(&ar); decErr != nil {
		return nil, fmt.Errorf("api: decoding auth response: %w", decErr)
	}

	if ar.Token == "" {
		return nil, fmt.Errorf("api: auth response missing token")
	}

	return &ar, nil
}
