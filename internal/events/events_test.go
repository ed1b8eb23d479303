package events

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
)

func TestHTTPEmitterDeliversEvent(t *testing.T) {
	got := make(chan Event, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/emit" {
			t.Errorf("path = %q, want /emit", r.URL.Path)
		}
		var e Event
		if err := json.NewDecoder(r.Body).Decode(&e); err != nil {
			t.Errorf("decode event: %v", err)
		}
		got <- e
	}))
	defer srv.Close()

	e := NewHTTPEmitter(srv.URL, zerolog.Nop())
	e.Emit("extraction", "Chunking audio", "running", map[string]any{"count": 3})

	event := <-got
	if event.Agent != "extraction" || event.Action != "Chunking audio" || event.Status != "running" {
		t.Errorf("unexpected event: %+v", event)
	}
	if event.ID == "" || event.Timestamp == "" {
		t.Error("event missing ID or timestamp")
	}
	if event.Data["count"] != float64(3) {
		t.Errorf("data.count = %v", event.Data["count"])
	}
}

func TestHTTPEmitterSwallowsFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "sink down", http.StatusInternalServerError)
	}))
	srv.Close() // connection refused from here on

	e := NewHTTPEmitter(srv.URL, zerolog.Nop())
	// Must not panic or block meaningfully.
	e.Emit("extraction", "anything", "running", nil)
}

func TestNopEmitter(t *testing.T) {
	Nop{}.Emit("stage", "action", "status", nil)
}
