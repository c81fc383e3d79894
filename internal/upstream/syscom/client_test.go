package syscom

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestBackgroundDataParsesRows(t *testing.T) {
	var gotPath, gotKey string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("x-scs-api-key")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[
			["2026-08-20T15:40:37.741-04:00", 0.001, "0.002", 0.003],
			["2026-08-20T15:41:37.741-04:00", -0.004, 0.005, 0.006]
		]}`))
	}))
	defer server.Close()

	client, err := NewClient(server.URL, "test-key")
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	start := time.Date(2026, 8, 20, 14, 0, 0, 0, time.UTC)
	rows, err := client.BackgroundData(context.Background(), 15092, start, start.Add(time.Hour))
	if err != nil {
		t.Fatalf("background data: %v", err)
	}
	if gotPath != "/records/background/15092/data" {
		t.Errorf("unexpected path %s", gotPath)
	}
	if gotKey != "test-key" {
		t.Errorf("api key header missing, got %q", gotKey)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].Timestamp != "2026-08-20T15:40:37.741-04:00" {
		t.Errorf("timestamp must be kept verbatim, got %s", rows[0].Timestamp)
	}
	if rows[0].Y != 0.002 {
		t.Errorf("string-typed values must parse, got %v", rows[0].Y)
	}
	if rows[1].X != -0.004 {
		t.Errorf("expected -0.004, got %v", rows[1].X)
	}
}

func TestBackgroundDataNoContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client, err := NewClient(server.URL, "test-key")
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	rows, err := client.BackgroundData(context.Background(), 15092, time.Now().Add(-time.Hour), time.Now())
	if err != nil {
		t.Fatalf("204 is no data, not a failure: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("expected no rows, got %d", len(rows))
	}
}

func TestBackgroundDataErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "device not found", http.StatusNotFound)
	}))
	defer server.Close()

	client, err := NewClient(server.URL, "test-key")
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if _, err := client.BackgroundData(context.Background(), 99999, time.Now().Add(-time.Hour), time.Now()); err == nil {
		t.Fatal("expected error for 404 response")
	}
}
