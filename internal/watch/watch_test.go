package watch

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/lourdrickvalsote/tonguekeeper/internal/pipeline"
)

type recordingRunner struct {
	mu   sync.Mutex
	urls []string
	err  error
}

func (r *recordingRunner) Run(ctx context.Context, opts pipeline.RunOptions) (*pipeline.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.urls = append(r.urls, opts.VideoURL)
	if r.err != nil {
		return nil, r.err
	}
	return &pipeline.Result{VideoURL: opts.VideoURL, VideoID: "dQw4w9WgXcQ", Transcript: "hi"}, nil
}

func startWatcher(t *testing.T, runner Runner) (string, *Watcher) {
	t.Helper()
	dir := t.TempDir()
	w := New(runner, dir, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(w.Stop)
	return dir, w
}

func waitForFile(t *testing.T, path string) []byte {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if data, err := os.ReadFile(path); err == nil {
			return data
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("result file %s never appeared", path)
	return nil
}

func TestWatcherProcessesRequestFile(t *testing.T) {
	runner := &recordingRunner{}
	dir, _ := startWatcher(t, runner)

	req := `{"video_url":"https://www.youtube.com/watch?v=dQw4w9WgXcQ","language_name":"Chamorro"}`
	if err := os.WriteFile(filepath.Join(dir, "job1.json"), []byte(req), 0o644); err != nil {
		t.Fatal(err)
	}

	data := waitForFile(t, filepath.Join(dir, "job1.result.json"))
	var res pipeline.Result
	if err := json.Unmarshal(data, &res); err != nil {
		t.Fatalf("result: %v", err)
	}
	if res.VideoID != "dQw4w9WgXcQ" || res.Transcript != "hi" {
		t.Errorf("result = %+v", res)
	}

	runner.mu.Lock()
	defer runner.mu.Unlock()
	if len(runner.urls) != 1 {
		t.Errorf("runner called %d times, want 1", len(runner.urls))
	}
}

func TestWatcherIgnoresResultAndNonJSONFiles(t *testing.T) {
	runner := &recordingRunner{}
	dir, w := startWatcher(t, runner)

	os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644)
	os.WriteFile(filepath.Join(dir, "old.result.json"), []byte(`{}`), 0o644)
	os.WriteFile(filepath.Join(dir, "empty.json"), []byte(`{}`), 0o644) // no video_url

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && w.filesSkipped.Load() == 0 {
		time.Sleep(20 * time.Millisecond)
	}
	if got := w.filesSkipped.Load(); got != 1 {
		t.Errorf("files skipped = %d, want 1 (only empty.json)", got)
	}

	runner.mu.Lock()
	defer runner.mu.Unlock()
	if len(runner.urls) != 0 {
		t.Errorf("runner called for ignored files: %v", runner.urls)
	}
}

func TestWatcherStopCancelsPendingDebounce(t *testing.T) {
	runner := &recordingRunner{}
	dir, w := startWatcher(t, runner)

	path := filepath.Join(dir, "late.json")
	req := `{"video_url":"https://www.youtube.com/watch?v=dQw4w9WgXcQ"}`
	if err := os.WriteFile(path, []byte(req), 0o644); err != nil {
		t.Fatal(err)
	}

	// Arm the debounce timer and stop before it fires. Stop must return
	// without deadlocking and the run must never start.
	w.scheduleProcess(path)
	w.Stop()

	w.scheduleProcess(path) // after Stop: no-op
	time.Sleep(600 * time.Millisecond)

	runner.mu.Lock()
	defer runner.mu.Unlock()
	if len(runner.urls) != 0 {
		t.Errorf("runner called after Stop: %v", runner.urls)
	}
	if _, err := os.Stat(filepath.Join(dir, "late.result.json")); err == nil {
		t.Error("result file written after Stop")
	}
}

func TestWatcherWritesErrorResult(t *testing.T) {
	runner := &recordingRunner{err: context.DeadlineExceeded}
	dir, _ := startWatcher(t, runner)

	req := `{"video_url":"https://www.youtube.com/watch?v=dQw4w9WgXcQ"}`
	os.WriteFile(filepath.Join(dir, "bad.json"), []byte(req), 0o644)

	data := waitForFile(t, filepath.Join(dir, "bad.result.json"))
	var res map[string]string
	if err := json.Unmarshal(data, &res); err != nil {
		t.Fatal(err)
	}
	if res["error"] == "" {
		t.Errorf("expected error in result, got %v", res)
	}
}
