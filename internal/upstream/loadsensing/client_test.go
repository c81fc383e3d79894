package loadsensing

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNodeReadingsFiltersEnvelopeTypes(t *testing.T) {
	var gotUser, gotPass string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser, gotPass, _ = r.BasicAuth()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"type":"healthV1","value":{}},
			{"type":"til90ReadingsV1","value":{
				"readTimestamp":"2026-08-20T14:00:00Z",
				"readings":[
					{"channel":0,"tilt":0.012},
					{"channel":1,"tilt":-0.003},
					{"channel":2,"tilt":0.001}
				]
			}},
			{"type":"til90ReadingsV1","value":{"readTimestamp":"","readings":[]}}
		]`))
	}))
	defer server.Close()

	client, err := NewClient(server.URL, "admin", "secret")
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	readings, err := client.NodeReadings(context.Background(), 142939)
	if err != nil {
		t.Fatalf("node readings: %v", err)
	}
	if gotUser != "admin" || gotPass != "secret" {
		t.Errorf("basic auth not sent, got %s/%s", gotUser, gotPass)
	}
	if len(readings) != 1 {
		t.Fatalf("expected 1 tilt reading, got %d", len(readings))
	}
	r := readings[0]
	if r.Timestamp != "2026-08-20T14:00:00Z" {
		t.Errorf("unexpected timestamp %s", r.Timestamp)
	}
	if r.X == nil || *r.X != 0.012 {
		t.Errorf("channel 0 must map to X, got %v", r.X)
	}
	if r.Y == nil || *r.Y != -0.003 {
		t.Errorf("channel 1 must map to Y, got %v", r.Y)
	}
	if r.Z == nil || *r.Z != 0.001 {
		t.Errorf("channel 2 must map to Z, got %v", r.Z)
	}
}

func TestNodeReadingsErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer server.Close()

	client, err := NewClient(server.URL, "admin", "wrong")
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if _, err := client.NodeReadings(context.Background(), 142939); err == nil {
		t.Fatal("expected error for 401 response")
	}
}
