// Package watch implements drop-directory ingestion: a JSON request file
// written into the watched directory triggers a pipeline run, and the
// outcome lands next to it as <name>.result.json. This is an alternative
// to the HTTP surface for batch and scripted use.
package watch

import (
	"context"
	"encoding/json"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/lourdrickvalsote/tonguekeeper/internal/pipeline"
)

const resultSuffix = ".result.json"

// Runner executes one full pipeline run. Satisfied by *pipeline.Pipeline.
type Runner interface {
	Run(ctx context.Context, opts pipeline.RunOptions) (*pipeline.Result, error)
}

// Request is the drop-file format.
type Request struct {
	VideoURL         string   `json:"video_url"`
	LanguageName     string   `json:"language_name"`
	LanguageCode     string   `json:"language_code,omitempty"`
	ContactLanguages []string `json:"contact_languages,omitempty"`
	Vocabulary       []string `json:"vocabulary,omitempty"`
	SkipCorrection   bool     `json:"skip_correction,omitempty"`
}

// Watcher monitors one directory for request files.
type Watcher struct {
	runner Runner
	dir    string
	log    zerolog.Logger

	watcher *fsnotify.Watcher
	ctx     context.Context
	wg      sync.WaitGroup

	// Debounce: coalesce rapid Create+Write events on the same file.
	debounceMu     sync.Mutex
	debounceTimers map[string]*time.Timer
	stopped        bool

	filesProcessed atomic.Int64
	filesSkipped   atomic.Int64
}

func New(runner Runner, dir string, log zerolog.Logger) *Watcher {
	return &Watcher{
		runner:         runner,
		dir:            dir,
		log:            log.With().Str("component", "watch").Logger(),
		debounceTimers: make(map[string]*time.Timer),
	}
}

// Start begins watching. Runs triggered by dropped files derive from ctx.
func (w *Watcher) Start(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fw.Add(w.dir); err != nil {
		fw.Close()
		return err
	}
	w.watcher = fw
	w.ctx = ctx

	w.log.Info().Str("dir", w.dir).Msg("watching for request files")
	go w.watchLoop(ctx)
	return nil
}

// Stop closes the watcher, cancels pending debounce timers and waits for
// in-flight runs.
func (w *Watcher) Stop() {
	if w.watcher != nil {
		w.watcher.Close()
	}
	w.debounceMu.Lock()
	w.stopped = true
	for path, t := range w.debounceTimers {
		if t.Stop() {
			w.wg.Done()
		}
		delete(w.debounceTimers, path)
	}
	w.debounceMu.Unlock()
	w.wg.Wait()
	w.log.Info().
		Int64("files_processed", w.filesProcessed.Load()).
		Int64("files_skipped", w.filesSkipped.Load()).
		Msg("watcher stopped")
}

func (w *Watcher) watchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			name := strings.ToLower(event.Name)
			if !strings.HasSuffix(name, ".json") || strings.HasSuffix(name, resultSuffix) {
				continue
			}
			w.scheduleProcess(event.Name)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Error().Err(err).Msg("fsnotify error")
		}
	}
}

// scheduleProcess debounces by 500ms so the file is fully written before
// it is read.
func (w *Watcher) scheduleProcess(path string) {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()

	if w.stopped {
		return
	}
	if t, ok := w.debounceTimers[path]; ok {
		t.Reset(500 * time.Millisecond)
		return
	}
	// Register with the WaitGroup before arming the timer so Stop can never
	// observe an empty group while a fire is pending. Stop balances the
	// count itself for timers it cancels.
	w.wg.Add(1)
	w.debounceTimers[path] = time.AfterFunc(500*time.Millisecond, func() {
		defer w.wg.Done()

		w.debounceMu.Lock()
		if w.stopped {
			w.debounceMu.Unlock()
			return
		}
		delete(w.debounceTimers, path)
		w.debounceMu.Unlock()

		w.processRequest(path)
	})
}

func (w *Watcher) processRequest(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		w.log.Warn().Err(err).Str("path", path).Msg("failed to read request file")
		return
	}

	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		w.log.Warn().Err(err).Str("path", path).Msg("failed to parse request file")
		w.filesSkipped.Add(1)
		return
	}
	if req.VideoURL == "" {
		w.log.Warn().Str("path", path).Msg("request file has no video_url")
		w.filesSkipped.Add(1)
		return
	}

	w.log.Info().Str("path", path).Str("url", req.VideoURL).Msg("processing request file")

	res, err := w.runner.Run(w.ctx, pipeline.RunOptions{
		VideoURL:         req.VideoURL,
		LanguageName:     req.LanguageName,
		LanguageCode:     req.LanguageCode,
		ContactLanguages: req.ContactLanguages,
		Vocabulary:       req.Vocabulary,
		SkipCorrection:   req.SkipCorrection,
	})
	if err != nil {
		w.writeResult(path, map[string]string{"error": err.Error()})
		return
	}
	w.writeResult(path, res)
	w.filesProcessed.Add(1)
}

// writeResult drops the run outcome next to the request file.
func (w *Watcher) writeResult(path string, v any) {
	out := strings.TrimSuffix(path, ".json") + resultSuffix
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		w.log.Error().Err(err).Msg("failed to marshal result")
		return
	}
	if err := os.WriteFile(out, data, 0o644); err != nil {
		w.log.Error().Err(err).Str("path", out).Msg("failed to write result file")
	}
}
