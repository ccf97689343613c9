package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTempCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "values.csv")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}

func TestRunWithoutCommandPrintsUsage(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := run(nil, &stdout, &stderr); code != 2 {
		t.Fatalf("expected exit code 2, got %d", code)
	}
	if !strings.Contains(stderr.String(), "usage: kpicore") {
		t.Fatalf("expected usage output, got %q", stderr.String())
	}
}

func TestRunUnknownCommand(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := run([]string{"frobnicate"}, &stdout, &stderr); code != 2 {
		t.Fatalf("expected exit code 2, got %d", code)
	}
	if !strings.Contains(stderr.String(), "unknown command") {
		t.Fatalf("expected unknown command error, got %q", stderr.String())
	}
}

func TestRunReloadOnEmptyStore(t *testing.T) {
	t.Setenv("KPICORE_STORAGE_DRIVER", "memory")
	var stdout, stderr bytes.Buffer
	if code := run([]string{"reload"}, &stdout, &stderr); code != 0 {
		t.Fatalf("expected exit code 0, got %d (stderr %q)", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), "reconciled 0 rows") {
		t.Fatalf("expected reconcile summary, got %q", stdout.String())
	}
}

func TestRunImportMissingFile(t *testing.T) {
	t.Setenv("KPICORE_STORAGE_DRIVER", "memory")
	var stdout, stderr bytes.Buffer
	if code := run([]string{"import", "does-not-exist.csv"}, &stdout, &stderr); code != 1 {
		t.Fatalf("expected exit code 1, got %d", code)
	}
}

func TestRunImportRejectsUnknownKPI(t *testing.T) {
	t.Setenv("KPICORE_STORAGE_DRIVER", "memory")
	path := writeTempCSV(t, strings.Join([]string{
		"kpi_id,object_id,granularity_id,value,record_time,state",
		"999,1,1,42,2024-01-05,historical",
		"",
	}, "\n"))
	var stdout, stderr bytes.Buffer
	if code := run([]string{"import", path}, &stdout, &stderr); code != 1 {
		t.Fatalf("expected exit code 1, got %d (stdout %q)", code, stdout.String())
	}
	if !strings.Contains(stderr.String(), "line 1") {
		t.Fatalf("expected line attribution in error, got %q", stderr.String())
	}
}

func TestRunExportRejectsBadKPIArgument(t *testing.T) {
	t.Setenv("KPICORE_STORAGE_DRIVER", "memory")
	var stdout, stderr bytes.Buffer
	if code := run([]string{"export", "abc"}, &stdout, &stderr); code != 2 {
		t.Fatalf("expected exit code 2, got %d", code)
	}
	if !strings.Contains(stderr.String(), "invalid kpi id") {
		t.Fatalf("expected invalid id error, got %q", stderr.String())
	}
}

func TestRunImportRequiresFileArgument(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := run([]string{"import"}, &stdout, &stderr); code != 2 {
		t.Fatalf("expected exit code 2, got %d", code)
	}
}
