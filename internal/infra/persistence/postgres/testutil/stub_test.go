package testutil

import (
	"context"
	"database/sql/driver"
	"testing"
)

func TestStubDBStoresAndQueriesBuckets(t *testing.T) {
	ctx := context.Background()
	_, conn := NewStubDB()

	if err := conn.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}

	_, err := conn.ExecContext(ctx, "INSERT INTO state(bucket,payload) VALUES($1,$2) ON CONFLICT(bucket) DO UPDATE SET payload=EXCLUDED.payload", []driver.NamedValue{
		{Value: "kpis"},
		{Value: []byte(`{"1":{"name":"availability"}}`)},
	})
	if err != nil {
		t.Fatalf("ExecContext upsert: %v", err)
	}
	if len(conn.Buckets["kpis"]) == 0 {
		t.Fatalf("expected kpis bucket to be stored")
	}

	rows, err := conn.QueryContext(ctx, "SELECT bucket, payload FROM state", nil)
	if err != nil {
		t.Fatalf("QueryContext: %v", err)
	}
	defer func() { _ = rows.Close() }()

	dest := make([]driver.Value, 2)
	if err := rows.Next(dest); err != nil {
		t.Fatalf("Next: %v", err)
	}
	if dest[0] != "kpis" {
		t.Fatalf("unexpected bucket %v", dest[0])
	}
}

func TestStubDBFailureToggles(t *testing.T) {
	ctx := context.Background()
	_, conn := NewStubDB()

	conn.FailBuckets = map[string]bool{"values": true}
	_, err := conn.ExecContext(ctx, "INSERT INTO state(bucket,payload) VALUES($1,$2)", []driver.NamedValue{
		{Value: "values"},
		{Value: []byte(`{}`)},
	})
	if err == nil {
		t.Fatalf("expected exec failure for values bucket")
	}

	conn.FailBegin = true
	if _, err := conn.Begin(); err == nil {
		t.Fatalf("expected begin failure")
	}
}
