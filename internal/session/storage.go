package session

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // Pure Go SQLite driver, registers as "sqlite".
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DirPerms is used when creating the data directory.
const DirPerms = 0o700

// Storage is the durable key/value capability the session store writes
// through. Get reports presence separately from errors so a missing key is
// not an error condition.
type Storage interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, keys ...string) error
	Close() error
}

// SQLiteStorage implements Storage on an embedded SQLite database in WAL
// mode. The schema is goose-migrated from embedded SQL files.
type SQLiteStorage struct {
	db     *sql.DB
	logger *slog.Logger

	getStmt, setStmt, delStmt *sql.Stmt
}

// OpenStorage opens (creating if needed) the session database at dbPath,
// applies migrations, and prepares statements. Use ":memory:" for tests.
func OpenStorage(dbPath string, logger *slog.Logger) (*SQLiteStorage, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), DirPerms); err != nil {
			return nil, fmt.Errorf("session: creating data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("session: open sqlite: %w", err)
	}

	ctx := context.Background()

	if err := setPragmas(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	if err := runMigrations(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}

	s := &SQLiteStorage{db: db, logger: logger}

	if err := s.prepareStatements(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("session: prepare statements: %w", err)
	}

	logger.Debug("session database ready", slog.String("path", dbPath))

	return s, nil
}

// setPragmas configures SQLite for WAL mode and safety.
func setPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = FULL",
	}

	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("session: set pragma %q: %w", p, err)
		}
	}

	return nil
}

// runMigrations applies all pending schema migrations to the database.
// Uses the goose v3 Provider API (no global state, context-aware).
func runMigrations(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	subFS, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("session: creating migration sub-filesystem: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, db, subFS)
	if err != nil {
		return fmt.Errorf("session: creating migration provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("session: running migrations: %w", err)
	}

	for _, r := range results {
		logger.Debug("applied migration",
			slog.String("source", r.Source.Path),
			slog.Int64("duration_ms", r.Duration.Milliseconds()),
		)
	}

	return nil
}

func (s *SQLiteStorage) prepareStatements(ctx context.Context) error {
	var err error

	if s.getStmt, err = s.db.PrepareContext(ctx,
		"SELECT value FROM session_state WHERE key = ?"); err != nil {
		return err
	}

	if s.setStmt, err = s.db.PrepareContext(ctx,
		"INSERT INTO session_state (key, value) VALUES (?, ?) "+
			"ON CONFLICT (key) DO UPDATE SET value = excluded.value"); err != nil {
		return err
	}

	if s.delStmt, err = s.db.PrepareContext(ctx,
		"DELETE FROM session_state WHERE key = ?"); err != nil {
		return err
	}

	return nil
}

// Get returns the value for key and whether it exists.
func (s *SQLiteStorage) Get(ctx context.Context, key string) (string, bool, error) {
	var value string

	err := s.getStmt.QueryRowContext(ctx, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}

	if err != nil {
		return "", false, fmt.Errorf("session: reading %s: %w", key, err)
	}

	return value, true, nil
}

// Set stores value under key, replacing any existing value.
func (s *SQLiteStorage) Set(ctx context.Context, key, value string) error {
	if _, err := s.setStmt.ExecContext(ctx, key, value); err != nil {
		return fmt.Errorf("session: writing %s: %w", key, err)
	}

	return nil
}

// Delete removes the given keys in one transaction. Missing keys are not
// an error — Delete of an absent key is a no-op.
func (s *SQLiteStorage) Delete(ctx context.Context, keys ...string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("session: begin delete: %w", err)
	}

	for _, key := range keys {
		if _, err := tx.Stmt(s.delStmt).ExecContext(ctx, key); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("session: deleting %s: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("session: commit delete: %w", err)
	}

	return nil
}

// Close releases prepared statements and the database handle.
func (s *SQLiteStorage) Close() error {
	for _, stmt := range []*sql.Stmt{s.getStmt, s.setStmt, s.delStmt} {
		if stmt != nil {
			_ = stmt.Close()
		}
	}

	if err := s.db.Close(); err != nil {
		return fmt.Errorf("session: closing database: %w", err)
	}

	return nil
}
