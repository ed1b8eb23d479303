package inference

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "ep123", "secret")
}

func TestSubmit(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ep123/run" {
			t.Errorf("path = %q, want /ep123/run", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("Authorization = %q", got)
		}
		var req submitRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Input.AudioURL != "https://r2.example/chunk_000.wav" {
			t.Errorf("audio_url = %q", req.Input.AudioURL)
		}
		if req.Input.Language != "ko" || req.Input.Task != "transcribe" {
			t.Errorf("language/task = %q/%q", req.Input.Language, req.Input.Task)
		}
		json.NewEncoder(w).Encode(JobStatus{ID: "job-1", Status: StatusInQueue})
	})

	id, err := c.Submit(context.Background(), "https://r2.example/chunk_000.wav", "ko")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if id != "job-1" {
		t.Errorf("job ID = %q, want job-1", id)
	}
}

func TestSubmitNoJobID(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": StatusInQueue})
	})
	if _, err := c.Submit(context.Background(), "https://r2.example/a.wav", "en"); err == nil {
		t.Error("Submit succeeded without a job ID")
	}
}

func TestSubmitRejected(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no workers available", http.StatusServiceUnavailable)
	})
	if _, err := c.Submit(context.Background(), "https://r2.example/a.wav", "en"); err == nil {
		t.Error("Submit succeeded on a 503")
	}
}

func TestPollStatus(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ep123/status/job-1" {
			t.Errorf("path = %q", r.URL.Path)
		}
		json.NewEncoder(w).Encode(JobStatus{
			ID:     "job-1",
			Status: StatusCompleted,
			Output: json.RawMessage(`{"segments":[]}`),
		})
	})

	st, err := c.PollStatus(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("PollStatus: %v", err)
	}
	if !st.Terminal() {
		t.Error("COMPLETED status not terminal")
	}
}

func TestTerminal(t *testing.T) {
	for status, want := range map[string]bool{
		StatusPending:    false,
		StatusInQueue:    false,
		StatusInProgress: false,
		StatusCompleted:  true,
		StatusFailed:     true,
	} {
		st := &JobStatus{Status: status}
		if st.Terminal() != want {
			t.Errorf("Terminal(%s) = %v, want %v", status, st.Terminal(), want)
		}
	}
}
