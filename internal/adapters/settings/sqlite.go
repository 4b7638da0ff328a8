package settings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/foundry/npmstore/internal/core/models"
	"github.com/foundry/npmstore/internal/core/services"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements SettingsStore backed by SQLite. Every setting is a
// single row, so a write replaces the whole value atomically.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates the settings database at dsn. A plain file
// path gets WAL and a busy timeout; ":memory:" and "file:" DSNs are used as given.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	if dsn == "" {
		return nil, errors.New("settings dsn is required")
	}

	if dsn != ":memory:" && !strings.HasPrefix(dsn, "file:") {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, fmt.Errorf("creating settings directory: %w", err)
		}
		dsn += "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// An in-memory database lives per connection.
	db.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS settings (
			key          TEXT PRIMARY KEY,
			value        TEXT NOT NULL,
			content_type TEXT NOT NULL DEFAULT '',
			updated_at   DATETIME NOT NULL
		);
	`)
	return err
}

func (s *SQLiteStore) GetSetting(ctx context.Context, key string) (*models.Setting, error) {
	var st models.Setting
	err := s.db.QueryRowContext(ctx,
		"SELECT key, value, content_type, updated_at FROM settings WHERE key = ?", key,
	).Scan(&st.Key, &st.Value, &st.ContentType, &st.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: setting %s", services.ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("getting setting: %w", err)
	}
	return &st, nil
}

func (s *SQLiteStore) SetSetting(ctx context.Context, setting models.Setting) error {
	if setting.UpdatedAt.IsZero() {
		setting.UpdatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (key, value, content_type, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			content_type = excluded.content_type,
			updated_at = excluded.updated_at
	`, setting.Key, setting.Value, setting.ContentType, setting.UpdatedAt)
	if err != nil {
		return fmt.Errorf("setting %s: %w", setting.Key, err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
