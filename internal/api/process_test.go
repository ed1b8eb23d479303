package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/lourdrickvalsote/tonguekeeper/internal/pipeline"
	"github.com/lourdrickvalsote/tonguekeeper/internal/storage"
)

const testURL = "https://www.youtube.com/watch?v=dQw4w9WgXcQ"

// blockingRunner holds each run until release is closed, then returns err.
type blockingRunner struct {
	release chan struct{}
	done    chan struct{}
	err     error
}

func newBlockingRunner(err error) *blockingRunner {
	return &blockingRunner{
		release: make(chan struct{}),
		done:    make(chan struct{}),
		err:     err,
	}
}

func (r *blockingRunner) Run(ctx context.Context, opts pipeline.RunOptions) (*pipeline.Result, error) {
	<-r.release
	defer close(r.done)
	if r.err != nil {
		return nil, r.err
	}
	return &pipeline.Result{VideoURL: opts.VideoURL}, nil
}

type stubCache struct {
	mu      sync.Mutex
	entries map[string]string
}

func (c *stubCache) CacheSet(ctx context.Context, key, value string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.entries == nil {
		c.entries = map[string]string{}
	}
	c.entries[key] = value
	return nil
}

func (c *stubCache) CacheGet(ctx context.Context, key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.entries[key]
	if !ok {
		return "", storage.ErrNotFound
	}
	return v, nil
}

func processRouter(h *ProcessHandler) http.Handler {
	r := chi.NewRouter()
	r.Post("/api/v1/process-video", h.Process)
	r.Get("/api/v1/status/{videoID}", h.Status)
	r.Get("/api/v1/transcripts/{videoID}", h.Transcript)
	return r
}

func postProcess(t *testing.T, router http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/process-video", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestProcessLifecycle(t *testing.T) {
	runner := newBlockingRunner(nil)
	h := NewProcessHandler(runner, &stubCache{}, zerolog.Nop())
	router := processRouter(h)

	rec := postProcess(t, router, fmt.Sprintf(`{"video_url":%q,"language_name":"Chamorro"}`, testURL))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("submit status = %d, body %s", rec.Code, rec.Body)
	}
	var accepted map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &accepted); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if accepted["video_id"] != "dQw4w9WgXcQ" || accepted["status"] != RunStateProcessing {
		t.Errorf("accepted = %v", accepted)
	}

	// Still running: a second submission for the same video conflicts.
	if rec := postProcess(t, router, fmt.Sprintf(`{"video_url":%q}`, testURL)); rec.Code != http.StatusConflict {
		t.Errorf("duplicate submit status = %d, want 409", rec.Code)
	}

	close(runner.release)
	<-runner.done
	waitForState(t, router, "dQw4w9WgXcQ", RunStateComplete)
}

func TestProcessRunFailureReported(t *testing.T) {
	runner := newBlockingRunner(fmt.Errorf("acquisition: video unavailable"))
	h := NewProcessHandler(runner, nil, zerolog.Nop())
	router := processRouter(h)

	if rec := postProcess(t, router, fmt.Sprintf(`{"video_url":%q}`, testURL)); rec.Code != http.StatusAccepted {
		t.Fatalf("submit status = %d", rec.Code)
	}
	close(runner.release)
	<-runner.done

	st := waitForState(t, router, "dQw4w9WgXcQ", RunStateFailed)
	if !strings.Contains(st.Error, "video unavailable") {
		t.Errorf("error = %q", st.Error)
	}
}

// waitForState polls /status until the run leaves RunStateProcessing; the
// finishing goroutine updates state after the runner returns.
func waitForState(t *testing.T, router http.Handler, videoID, want string) runState {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/status/"+videoID, nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		var st runState
		if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if st.Status == want {
			return st
		}
		if time.Now().After(deadline) {
			t.Fatalf("run state = %q, want %q", st.Status, want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestProcessRejectsBadRequests(t *testing.T) {
	h := NewProcessHandler(newBlockingRunner(nil), nil, zerolog.Nop())
	router := processRouter(h)

	tests := []struct {
		name string
		body string
	}{
		{"invalid_json", `{`},
		{"missing_url", `{}`},
		{"unparseable_url", `{"video_url":"not a url"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := postProcess(t, router, tt.body); rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestTranscriptEndpoint(t *testing.T) {
	cache := &stubCache{}
	cache.CacheSet(context.Background(), "transcript:dQw4w9WgXcQ", `{"transcript":"hello"}`, time.Hour)
	h := NewProcessHandler(newBlockingRunner(nil), cache, zerolog.Nop())
	router := processRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/transcripts/dQw4w9WgXcQ", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || rec.Body.String() != `{"transcript":"hello"}` {
		t.Errorf("status = %d, body %q", rec.Code, rec.Body)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/transcripts/unknown0000", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing transcript status = %d, want 404", rec.Code)
	}
}

func TestTranscriptWithoutCache(t *testing.T) {
	h := NewProcessHandler(newBlockingRunner(nil), nil, zerolog.Nop())
	router := processRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/transcripts/dQw4w9WgXcQ", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}
