// Package session owns the authenticated admin session: the credential token
// and identity record in memory, mirrored to durable storage so a fresh
// process restores the same state.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/tvollmer/mediadmin/internal/api"
)

// Fixed storage keys. Absence of either is equivalent to a logged-out session.
const (
	TokenKey    = "admin-token"
	IdentityKey = "admin"
)

// Identity is the admin identity record held alongside the token.
type Identity struct {
	Name      string `json:"name"`
	Role      string `json:"role"`
	Email     string `json:"email"`
	AvatarURL string `json:"profileImage,omitempty"`
}

// IdentityPatch describes a shallow merge into Identity. Nil fields are
// left untouched.
type IdentityPatch struct {
	Name      *string
	Role      *string
	Email     *string
	AvatarURL *string
}

// PersistenceError indicates a durable-storage write failed. The in-memory
// session still reflects the write's intent; callers that require durability
// confirmation must check for this error.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("session: persisting %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Store tracks the current session and mirrors it to Storage. Safe for
// concurrent use.
type Store struct {
	storage Storage
	logger  *slog.Logger

	mu       sync.Mutex
	token    string
	identity *Identity
}

// NewStore creates a session Store over the given storage. Call Restore to
// pick up persisted state.
func NewStore(storage Storage, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}

	return &Store{storage: storage, logger: logger}
}

// Restore loads the persisted token and identity. It fails soft: malformed
// persisted data and storage read errors both degrade to a logged-out
// session rather than surfacing to the caller.
func (s *Store) Restore(ctx context.Context) {
	token, ok, err := s.storage.Get(ctx, TokenKey)
	if err != nil || !ok {
		if err != nil {
			s.logger.Warn("session restore failed, starting logged out",
				slog.String("error", err.Error()))
		}

		return
	}

	var identity *Identity

	raw, ok, err := s.storage.Get(ctx, IdentityKey)
	if err == nil && ok {
		var id Identity
		if jsonErr := json.Unmarshal([]byte(raw), &id); jsonErr == nil {
			identity = &id
		} else {
			s.logger.Warn("persisted identity malformed, treating as absent",
				slog.String("error", jsonErr.Error()))
		}
	}

	s.mu.Lock()
	s.token = token
	s.identity = identity
	s.mu.Unlock()

	s.logger.Debug("session restored", slog.Bool("identity", identity != nil))
}

// SetCredentials replaces the session state and persists both entries.
// On a persistence failure the in-memory state still reflects the new
// credentials and a *PersistenceError is returned.
func (s *Store) SetCredentials(ctx context.Context, token string, identity Identity) error {
	s.mu.Lock()
	s.token = token
	id := identity
	s.identity = &id
	s.mu.Unlock()

	if err := s.storage.Set(ctx, TokenKey, token); err != nil {
		return &PersistenceError{Op: "token", Err: err}
	}

	raw, err := json.Marshal(identity)
	if err != nil {
		return &PersistenceError{Op: "identity", Err: err}
	}

	if err := s.storage.Set(ctx, IdentityKey, string(raw)); err != nil {
		return &PersistenceError{Op: "identity", Err: err}
	}

	s.logger.Info("credentials stored", slog.String("email", identity.Email))

	return nil
}

// UpdateIdentity shallow-merges patch into the current identity and
// re-persists the merged record. No-op when not authenticated.
func (s *Store) UpdateIdentity(ctx context.Context, patch IdentityPatch) error {
	s.mu.Lock()

	if s.token == "" {
		s.mu.Unlock()
		return nil
	}

	if s.identity == nil {
		s.identity = &Identity{}
	}

	if patch.Name != nil {
		s.identity.Name = *patch.Name
	}

	if patch.Role != nil {
		s.identity.Role = *patch.Role
	}

	if patch.Email != nil {
		s.identity.Email = *patch.Email
	}

	if patch.AvatarURL != nil {
		s.identity.AvatarURL = *patch.AvatarURL
	}

	merged := *s.identity
	s.mu.Unlock()

	raw, err := json.Marshal(merged)
	if err != nil {
		return &PersistenceError{Op: "identity", Err: err}
	}

	if err := s.storage.Set(ctx, IdentityKey, string(raw)); err != nil {
		return &PersistenceError{Op: "identity", Err: err}
	}

	return nil
}

// Logout clears durable storage first, then memory. If the durable delete
// fails, the in-memory session is left intact and a *PersistenceError is
// returned, so the session is never considered cleared while storage still
// holds it. Idempotent when already logged out.
func (s *Store) Logout(ctx context.Context) error {
	if err := s.storage.Delete(ctx, TokenKey, IdentityKey); err != nil {
		return &PersistenceError{Op: "logout", Err: err}
	}

	s.mu.Lock()
	s.token = ""
	s.identity = nil
	s.mu.Unlock()

	s.logger.Info("logged out")

	return nil
}

// IsAuthenticated reports whether a credential token is present.
func (s *Store) IsAuthenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.token != ""
}

// Identity returns a copy of the current identity, or nil when absent.
func (s *Store) Identity() *Identity {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.identity == nil {
		return nil
	}

	id := *s.identity

	return &id
}

// Token implements api.TokenSource. Returns api.ErrNotLoggedIn when no
// credential is present so authenticated calls fail before any I/O.
func (s *Store) Token() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token == "" {
		return "", api.ErrNotLoggedIn
	}

	return s.token, nil
}
