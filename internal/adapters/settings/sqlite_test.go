package settings

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/foundry/npmstore/internal/core/models"
	"github.com/foundry/npmstore/internal/core/services"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "settings.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSetAndGetSetting(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	err := store.SetSetting(ctx, models.Setting{Key: "registry-db", Value: `{"list":[],"secret":""}`, ContentType: "application/json"})
	if err != nil {
		t.Fatalf("SetSetting: %v", err)
	}

	st, err := store.GetSetting(ctx, "registry-db")
	if err != nil {
		t.Fatalf("GetSetting: %v", err)
	}
	if st.Value != `{"list":[],"secret":""}` {
		t.Errorf("value = %q", st.Value)
	}
	if st.ContentType != "application/json" {
		t.Errorf("content type = %q, want application/json", st.ContentType)
	}
	if st.UpdatedAt.IsZero() {
		t.Error("expected updated_at to be set")
	}
}

func TestSetSettingOverwrites(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	store.SetSetting(ctx, models.Setting{Key: "k", Value: "one"})
	store.SetSetting(ctx, models.Setting{Key: "k", Value: "two"})

	st, err := store.GetSetting(ctx, "k")
	if err != nil {
		t.Fatalf("GetSetting: %v", err)
	}
	if st.Value != "two" {
		t.Errorf("value = %q, want two", st.Value)
	}
}

func TestGetSettingNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetSetting(context.Background(), "nonexistent")
	if !errors.Is(err, services.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestInMemoryStore(t *testing.T) {
	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.SetSetting(ctx, models.Setting{Key: "k", Value: "v"}); err != nil {
		t.Fatalf("SetSetting: %v", err)
	}
	if _, err := store.GetSetting(ctx, "k"); err != nil {
		t.Fatalf("GetSetting: %v", err)
	}
}

func TestPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.db")
	ctx := context.Background()

	first, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	if err := first.SetSetting(ctx, models.Setting{Key: "k", Value: "kept"}); err != nil {
		t.Fatalf("SetSetting: %v", err)
	}
	first.Close()

	second, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer second.Close()

	st, err := second.GetSetting(ctx, "k")
	if err != nil {
		t.Fatalf("GetSetting: %v", err)
	}
	if st.Value != "kept" {
		t.Errorf("value = %q, want kept", st.Value)
	}
}
