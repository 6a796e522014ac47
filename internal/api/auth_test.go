package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogin(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/admin/login", r.URL.Path)

		var creds Credentials
		require.NoError(t, json.NewDecoder(r.Body).Decode(&creds))
		assert.Equal(t, "a@b.c", creds.Email)
		assert.Equal(t, "secret", creds.Password)

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"token":"tok-1","admin":{"name":"Ada","role":"admin","email":"a@b.c"}}`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	resp, err := client.Login(context.Background(), "a@b.c", "secret")
	require.NoError(t, err)

	assert.Equal(t, "tok-1", resp.Token)
	assert.Equal(t, "Ada", resp.Admin.Name)
}

func TestLogin_BadCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"invalid credentials"}`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	_, err := client.Login(context.Background(), "a@b.c", "wrong")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestLogin_MissingToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"admin":{"name":"Ada"}}`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	_, err := client.Login(context.Background(), "a@b.c", "secret")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing token")
}

func TestRegister(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/admin/register", r.URL.Path)

		var creds Credentials
		require.NoError(t, json.NewDecoder(r.Body).Decode(&creds))
		assert.Equal(t, "Ada", creds.Name)

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"token":"tok-2","admin":{"name":"Ada","email":"a@b.c"}}`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	resp, err := client.Register(context.Background(), "Ada", "a@b.c", "secret")
	require.NoError(t, err)
	assert.Equal(t, "tok-2", resp.Token)
}

func TestProfile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/admin/profile", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"name":"Ada","role":"admin","email":"a@b.c","profileImage":"http://x/ada.png"}`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	admin, err := client.Profile(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "http://x/ada.png", admin.ProfileImage)
}

func TestUpdateProfile_MultipartFields(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/admin/profile", r.URL.Path)

		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "new@b.c", r.FormValue("email"))

		_, hasPassword := r.MultipartForm.Value["password"]
		assert.False(t, hasPassword)

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"name":"Ada","role":"admin","email":"new@b.c"}`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	admin, err := client.UpdateProfile(context.Background(), ProfileUpdate{Email: "new@b.c"})
	require.NoError(t, err)

	assert.Equal(t, "new@b.c", admin.Email)
}
