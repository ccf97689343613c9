package blob

import (
	"context"
	"strings"
	"testing"
)

func TestOpenSelectsDriverFromEnv(t *testing.T) {
	t.Setenv("KPICORE_BLOB_DRIVER", "memory")
	store, err := Open(context.Background())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if store.Driver() != DriverMemory {
		t.Fatalf("unexpected driver %s", store.Driver())
	}

	t.Setenv("KPICORE_BLOB_DRIVER", "fs")
	t.Setenv("KPICORE_BLOB_FS_ROOT", t.TempDir())
	store, err = Open(context.Background())
	if err != nil {
		t.Fatalf("open fs: %v", err)
	}
	if store.Driver() != DriverFilesystem {
		t.Fatalf("unexpected driver %s", store.Driver())
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	t.Setenv("KPICORE_BLOB_DRIVER", "tape")
	if _, err := Open(context.Background()); err == nil || !strings.Contains(err.Error(), "unknown blob driver") {
		t.Fatalf("expected unknown driver error, got %v", err)
	}
}
