package core

import (
	"path/filepath"
	"strings"
	"testing"

	"kpicore/internal/infra/persistence/memory"
	"kpicore/internal/infra/persistence/sqlite"
)

func TestOpenPersistentStoreMemoryDriver(t *testing.T) {
	t.Setenv("KPICORE_STORAGE_DRIVER", "memory")

	store, err := OpenPersistentStore(nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if _, ok := store.(*memory.Store); !ok {
		t.Fatalf("expected memory store, got %T", store)
	}
}

func TestOpenPersistentStoreDefaultsToSQLite(t *testing.T) {
	t.Setenv("KPICORE_STORAGE_DRIVER", "")
	t.Setenv("KPICORE_SQLITE_PATH", filepath.Join(t.TempDir(), "kpi.db"))

	store, err := OpenPersistentStore(nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	sq, ok := store.(*sqlite.Store)
	if !ok {
		t.Fatalf("expected sqlite store, got %T", store)
	}
	if err := sq.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestOpenPersistentStoreRejectsUnknownDriver(t *testing.T) {
	t.Setenv("KPICORE_STORAGE_DRIVER", "oracle")

	if _, err := OpenPersistentStore(nil); err == nil || !strings.Contains(err.Error(), "unknown storage driver") {
		t.Fatalf("expected unknown driver error, got %v", err)
	}
}
