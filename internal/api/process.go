package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/lourdrickvalsote/tonguekeeper/internal/audio"
	"github.com/lourdrickvalsote/tonguekeeper/internal/pipeline"
	"github.com/lourdrickvalsote/tonguekeeper/internal/storage"
)

// Runner executes one full pipeline run. Satisfied by *pipeline.Pipeline.
type Runner interface {
	Run(ctx context.Context, opts pipeline.RunOptions) (*pipeline.Result, error)
}

// Run lifecycle states reported by /status.
const (
	RunStateProcessing = "processing"
	RunStateComplete   = "complete"
	RunStateFailed     = "failed"
)

type runState struct {
	VideoID    string     `json:"video_id"`
	VideoURL   string     `json:"video_url"`
	Status     string     `json:"status"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// ProcessHandler accepts video submissions and tracks their runs. One
// in-flight run per video at a time; resubmitting a live run is a conflict.
type ProcessHandler struct {
	runner Runner
	cache  storage.Cache // nil when no result cache is configured
	log    zerolog.Logger

	mu   sync.Mutex
	runs map[string]*runState
}

func NewProcessHandler(runner Runner, cache storage.Cache, log zerolog.Logger) *ProcessHandler {
	return &ProcessHandler{
		runner: runner,
		cache:  cache,
		log:    log.With().Str("component", "api").Logger(),
		runs:   make(map[string]*runState),
	}
}

// ProcessRequest is the POST /process-video body.
type ProcessRequest struct {
	VideoURL         string   `json:"video_url"`
	LanguageName     string   `json:"language_name"`
	LanguageCode     string   `json:"language_code,omitempty"`
	ContactLanguages []string `json:"contact_languages,omitempty"`
	Vocabulary       []string `json:"vocabulary,omitempty"`
	SkipCorrection   bool     `json:"skip_correction,omitempty"`
}

// Process starts a pipeline run in the background and returns 202.
func (h *ProcessHandler) Process(w http.ResponseWriter, r *http.Request) {
	var req ProcessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.VideoURL == "" {
		WriteError(w, http.StatusBadRequest, "video_url is required")
		return
	}
	videoID, err := audio.ExtractVideoID(req.VideoURL)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.mu.Lock()
	if st, ok := h.runs[videoID]; ok && st.Status == RunStateProcessing {
		h.mu.Unlock()
		WriteError(w, http.StatusConflict, "video is already being processed")
		return
	}
	st := &runState{
		VideoID:   videoID,
		VideoURL:  req.VideoURL,
		Status:    RunStateProcessing,
		StartedAt: time.Now().UTC(),
	}
	h.runs[videoID] = st
	h.mu.Unlock()

	hlog.FromRequest(r).Info().Str("video_id", videoID).Msg("run accepted")

	// The run outlives the request; it gets its own context.
	go h.execute(context.Background(), videoID, req)

	WriteJSON(w, http.StatusAccepted, map[string]string{
		"video_id": videoID,
		"status":   RunStateProcessing,
	})
}

func (h *ProcessHandler) execute(ctx context.Context, videoID string, req ProcessRequest) {
	_, err := h.runner.Run(ctx, pipeline.RunOptions{
		VideoURL:         req.VideoURL,
		LanguageName:     req.LanguageName,
		LanguageCode:     req.LanguageCode,
		ContactLanguages: req.ContactLanguages,
		Vocabulary:       req.Vocabulary,
		SkipCorrection:   req.SkipCorrection,
	})

	now := time.Now().UTC()
	h.mu.Lock()
	defer h.mu.Unlock()
	st := h.runs[videoID]
	st.FinishedAt = &now
	if err != nil {
		st.Status = RunStateFailed
		st.Error = err.Error()
		h.log.Error().Err(err).Str("video_id", videoID).Msg("run failed")
		return
	}
	st.Status = RunStateComplete
}

// Status reports the lifecycle state of a submitted run.
func (h *ProcessHandler) Status(w http.ResponseWriter, r *http.Request) {
	videoID := chi.URLParam(r, "videoID")

	h.mu.Lock()
	st, ok := h.runs[videoID]
	var cp runState
	if ok {
		cp = *st
	}
	h.mu.Unlock()

	if !ok {
		WriteError(w, http.StatusNotFound, "unknown video")
		return
	}
	WriteJSON(w, http.StatusOK, cp)
}

// Transcript serves a completed run's cached payload verbatim.
func (h *ProcessHandler) Transcript(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		WriteError(w, http.StatusServiceUnavailable, "result cache not configured")
		return
	}
	videoID := chi.URLParam(r, "videoID")

	payload, err := h.cache.CacheGet(r.Context(), "transcript:"+videoID)
	if errors.Is(err, storage.ErrNotFound) {
		WriteError(w, http.StatusNotFound, "no transcript for video")
		return
	}
	if err != nil {
		WriteError(w, http.StatusBadGateway, "cache lookup failed")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(payload))
}
