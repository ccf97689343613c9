package palette

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"kpicore/pkg/domain"
)

func TestNotifyChangedPostsEntries(t *testing.T) {
	var got []domain.PaletteEntry
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("unexpected request %s %s", r.Method, r.Header.Get("Content-Type"))
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &got); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(server.URL, WithSynchronousDelivery())
	client.NotifyChanged(context.Background(), []domain.PaletteEntry{{KPIID: 7, Name: "availability", Label: "availability"}})

	if len(got) != 1 || got[0].KPIID != 7 || got[0].Name != "availability" {
		t.Fatalf("unexpected payload %+v", got)
	}
}

func TestNotifyChangedRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(server.URL, WithSynchronousDelivery(), WithMaxElapsed(5*time.Second))
	client.NotifyChanged(context.Background(), []domain.PaletteEntry{{KPIID: 1, Name: "n", Label: "l"}})

	if calls.Load() < 3 {
		t.Fatalf("expected at least 3 attempts, got %d", calls.Load())
	}
}

func TestNotifyChangedStopsOnClientError(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	client := NewClient(server.URL, WithSynchronousDelivery(), WithMaxElapsed(5*time.Second))
	client.NotifyChanged(context.Background(), []domain.PaletteEntry{{KPIID: 1, Name: "n", Label: "l"}})

	if calls.Load() != 1 {
		t.Fatalf("expected a single attempt on a 4xx, got %d", calls.Load())
	}
}

func TestNotifyChangedIgnoresEmptyInput(t *testing.T) {
	client := NewClient("http://palette.invalid", WithSynchronousDelivery())
	client.NotifyChanged(context.Background(), nil)

	var nilClient *Client
	nilClient.NotifyChanged(context.Background(), []domain.PaletteEntry{{KPIID: 1}})
}

func TestOpenFromEnv(t *testing.T) {
	t.Setenv("KPICORE_PALETTE_URL", "")
	if client := OpenFromEnv(); client != nil {
		t.Fatal("expected nil client without endpoint")
	}
	t.Setenv("KPICORE_PALETTE_URL", "http://palette.local/entries")
	client := OpenFromEnv()
	if client == nil || client.url != "http://palette.local/entries" {
		t.Fatalf("unexpected client %+v", client)
	}
}
