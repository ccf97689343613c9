package fs

import (
	"context"
	"io"
	"strings"
	"testing"

	"kpicore/internal/infra/blob/core"
)

func TestStoreRoundTrip(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ctx := context.Background()

	info, err := store.Put(ctx, "exports/42/values.csv", strings.NewReader("kpi_id,value\n1,10\n"), core.PutOptions{ContentType: "text/csv", Metadata: map[string]string{"job": "42"}})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.ETag == "" || info.Size == 0 {
		t.Fatalf("missing etag or size: %+v", info)
	}
	if _, err := store.Put(ctx, "exports/42/values.csv", strings.NewReader("x"), core.PutOptions{}); err == nil {
		t.Fatal("expected duplicate key rejected")
	}

	head, err := store.Head(ctx, "exports/42/values.csv")
	if err != nil {
		t.Fatalf("head: %v", err)
	}
	if head.ETag != info.ETag || head.Metadata["job"] != "42" {
		t.Fatalf("head mismatch %+v", head)
	}

	got, rc, err := store.Get(ctx, "exports/42/values.csv")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(body) != "kpi_id,value\n1,10\n" || got.Size != int64(len(body)) {
		t.Fatalf("unexpected content %q", body)
	}

	infos, err := store.List(ctx, "exports/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(infos) != 1 || infos[0].Key != "exports/42/values.csv" {
		t.Fatalf("unexpected listing %+v", infos)
	}

	ok, err := store.Delete(ctx, "exports/42/values.csv")
	if err != nil || !ok {
		t.Fatalf("delete: ok=%v err=%v", ok, err)
	}
	if ok, _ := store.Delete(ctx, "exports/42/values.csv"); ok {
		t.Fatal("expected delete of missing key to report false")
	}
}

func TestStoreRejectsUnsafeKeys(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	for _, key := range []string{"", "  ", "../escape", "/abs", "a/../../b"} {
		if _, err := store.Put(context.Background(), key, strings.NewReader("x"), core.PutOptions{}); err == nil {
			t.Fatalf("expected key %q rejected", key)
		}
	}
}

func TestPresignOnlySupportsGet(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	url, err := store.PresignURL(context.Background(), "exports/1.csv", core.SignedURLOptions{})
	if err != nil || !strings.Contains(url, "exports/1.csv") {
		t.Fatalf("unexpected url %q err %v", url, err)
	}
	if _, err := store.PresignURL(context.Background(), "exports/1.csv", core.SignedURLOptions{Method: "PUT"}); err == nil {
		t.Fatal("expected PUT presign unsupported")
	}
}
