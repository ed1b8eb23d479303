package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/lourdrickvalsote/tonguekeeper/internal/audio"
	"github.com/lourdrickvalsote/tonguekeeper/internal/config"
	"github.com/lourdrickvalsote/tonguekeeper/internal/events"
	"github.com/lourdrickvalsote/tonguekeeper/internal/inference"
	"github.com/lourdrickvalsote/tonguekeeper/internal/language"
	"github.com/lourdrickvalsote/tonguekeeper/internal/metrics"
	"github.com/lourdrickvalsote/tonguekeeper/internal/storage"
)

// Backend is the remote inference service: async job submission plus
// status polling. Satisfied by *inference.Client.
type Backend interface {
	Submit(ctx context.Context, audioURL, language string) (string, error)
	PollStatus(ctx context.Context, jobID string) (*inference.JobStatus, error)
}

// Acquirer produces a decoded 16kHz mono WAV file from a source identifier.
type Acquirer interface {
	Fetch(ctx context.Context, videoURL, dir string) (string, error)
}

// Corrector rewrites a proxy-language transcript into the target language.
type Corrector interface {
	Correct(ctx context.Context, transcript, languageName, proxyLanguage string, vocabulary []string) (string, error)
}

// Archiver persists a completed run. Optional.
type Archiver interface {
	SaveRun(ctx context.Context, res *Result, languageName string) error
}

// Options wires a Pipeline's collaborators. Store, Backend and Acquirer
// are required; the rest default to no-ops.
type Options struct {
	Config    *config.Config
	Store     storage.Store
	Cache     storage.Cache // nil skips result caching
	Backend   Backend
	Acquirer  Acquirer
	Corrector Corrector // nil skips correction
	Archiver  Archiver  // nil skips archiving
	Emitter   events.Emitter
	Log       zerolog.Logger
}

// Pipeline turns one long-form recording into a time-aligned transcript
// plus per-word audio clips.
type Pipeline struct {
	cfg       *config.Config
	store     storage.Store
	cache     storage.Cache
	backend   Backend
	acquirer  Acquirer
	corrector Corrector
	archiver  Archiver
	emitter   events.Emitter
	log       zerolog.Logger
}

// New creates a Pipeline from options.
func New(opts Options) *Pipeline {
	emitter := opts.Emitter
	if emitter == nil {
		emitter = events.Nop{}
	}
	return &Pipeline{
		cfg:       opts.Config,
		store:     opts.Store,
		cache:     opts.Cache,
		backend:   opts.Backend,
		acquirer:  opts.Acquirer,
		corrector: opts.Corrector,
		archiver:  opts.Archiver,
		emitter:   emitter,
		log:       opts.Log.With().Str("component", "pipeline").Logger(),
	}
}

// emit sends a progress event; emitter failures never reach control flow.
func (p *Pipeline) emit(stage, action, status string, data map[string]any) {
	p.emitter.Emit(stage, action, status, data)
}

// Run executes the full pipeline for one recording:
// acquire -> chunk -> upload -> transcribe (two rounds) -> word clips ->
// correct -> cache/archive. The work directory is purged on success and
// failure alike. Chunk- and clip-scoped failures fold into partial results;
// only acquisition, chunking and chunk-upload failures abort the run.
func (p *Pipeline) Run(ctx context.Context, opts RunOptions) (*Result, error) {
	videoID, err := audio.ExtractVideoID(opts.VideoURL)
	if err != nil {
		return nil, err
	}

	workDir, err := os.MkdirTemp("", "tk_"+videoID+"_")
	if err != nil {
		return nil, fmt.Errorf("create work dir: %w", err)
	}
	defer func() {
		os.RemoveAll(workDir)
		p.log.Debug().Str("dir", workDir).Msg("work directory purged")
	}()

	metrics.RunsInFlight.Inc()
	defer metrics.RunsInFlight.Dec()

	p.log.Info().Str("url", opts.VideoURL).Str("video_id", videoID).Msg("processing recording")

	res, err := p.run(ctx, opts, videoID, workDir)
	if err != nil {
		metrics.RunsTotal.WithLabelValues("error").Inc()
		p.emit("extraction", fmt.Sprintf("Pipeline failed: %.100s", err.Error()), "error", map[string]any{
			"url": opts.VideoURL, "message": err.Error(),
		})
		return nil, err
	}
	metrics.RunsTotal.WithLabelValues("ok").Inc()
	return res, nil
}

func (p *Pipeline) run(ctx context.Context, opts RunOptions, videoID, workDir string) (*Result, error) {
	// Acquisition. Fatal on failure.
	p.emit("extraction", "Downloading audio", "running", map[string]any{
		"url": opts.VideoURL, "title": "Video " + videoID,
	})
	wavPath, err := p.acquirer.Fetch(ctx, opts.VideoURL, workDir)
	if err != nil {
		return nil, fmt.Errorf("acquisition: %w", err)
	}

	buf, err := audio.ReadFile(wavPath)
	if err != nil {
		return nil, fmt.Errorf("decode audio: %w", err)
	}
	duration := buf.Duration()

	// Chunking. Fatal on failure.
	p.emit("extraction", "Chunking audio into segments", "running", map[string]any{
		"message": fmt.Sprintf("Splitting %.0fs audio into %ds chunks", duration, p.cfg.ChunkSeconds),
	})
	chunks, err := audio.Split(buf, workDir, videoID, p.cfg.ChunkSeconds)
	if err != nil {
		return nil, fmt.Errorf("chunking: %w", err)
	}
	buf = nil // chunk files are the source of truth from here on

	// Upload source chunks. Fatal on failure: without stored chunks there
	// is nothing for the backend to transcribe.
	p.emit("extraction", "Uploading chunks to storage", "running", map[string]any{
		"count":   len(chunks),
		"message": fmt.Sprintf("Uploading %d chunks", len(chunks)),
	})
	urls, err := p.uploadChunks(ctx, chunks, videoID)
	if err != nil {
		return nil, fmt.Errorf("chunk upload: %w", err)
	}

	// Transcription, using the contact language as recognizer proxy.
	recognizerLang := language.Resolve(opts.ContactLanguages, opts.LanguageCode)
	p.emit("extraction", "Transcribing audio", "running", map[string]any{
		"count":   len(urls),
		"message": fmt.Sprintf("Sending %d chunks to inference backend (lang=%s)", len(urls), recognizerLang),
	})
	transcript, err := p.transcribeChunks(ctx, urls, recognizerLang)
	if err != nil {
		return nil, err
	}
	text := transcript.Text()

	// Word clips. Clip-scoped failures only; never fatal.
	var wordClips map[string]string
	if len(transcript) > 0 {
		p.emit("extraction", "Clipping word pronunciations", "running", map[string]any{
			"message": fmt.Sprintf("Extracting individual words from %d chunks", len(chunks)),
		})
		wordClips = p.extractWordClips(ctx, transcript, chunks, videoID)
	} else {
		wordClips = map[string]string{}
	}

	// Correction, degrading to pass-through when unavailable.
	corrected := text
	if text != "" && !opts.SkipCorrection && p.corrector != nil {
		proxy := "English"
		if len(opts.ContactLanguages) > 0 {
			proxy = opts.ContactLanguages[0]
		}
		p.emit("cross_reference", fmt.Sprintf("Correcting transcription for %s", opts.LanguageName), "running", map[string]any{
			"message": fmt.Sprintf("Analyzing %d chars, correcting %s to %s", len(text), proxy, opts.LanguageName),
		})
		c, err := p.corrector.Correct(ctx, text, opts.LanguageName, proxy, opts.Vocabulary)
		if err != nil {
			p.log.Warn().Err(err).Msg("correction failed, keeping raw transcript")
		} else {
			corrected = c
		}
	}

	res := &Result{
		VideoURL:            opts.VideoURL,
		VideoID:             videoID,
		Transcript:          text,
		CorrectedTranscript: corrected,
		AudioURLs:           urls,
		Segments:            transcript,
		DurationSeconds:     roundTime(duration),
		WordClips:           wordClips,
	}

	p.persist(ctx, res, opts.LanguageName)

	p.emit("extraction", "Audio pipeline complete", "complete", map[string]any{
		"url":     opts.VideoURL,
		"title":   "Video " + videoID,
		"count":   len(transcript),
		"message": fmt.Sprintf("Processed %.0fs of audio into %d segments, %d word clips", duration, len(transcript), len(wordClips)),
	})
	p.log.Info().Str("video_id", videoID).Int("segments", len(transcript)).
		Int("word_clips", len(wordClips)).Msg("pipeline complete")
	return res, nil
}

// uploadChunks stores every chunk and returns their retrieval URLs in
// chunk order. Any single failure is fatal to the run.
func (p *Pipeline) uploadChunks(ctx context.Context, chunks []audio.Chunk, videoID string) ([]string, error) {
	urls := make([]string, len(chunks))
	for _, c := range chunks {
		data, err := os.ReadFile(c.Path)
		if err != nil {
			return nil, fmt.Errorf("read chunk %d: %w", c.Index, err)
		}
		key := fmt.Sprintf("%s/%s", videoID, filepath.Base(c.Path))
		url, err := p.store.Put(ctx, key, data, "audio/wav")
		if err != nil {
			return nil, fmt.Errorf("upload chunk %d: %w", c.Index, err)
		}
		urls[c.Index] = url
		p.log.Info().Int("chunk", c.Index).Str("key", key).Msg("chunk uploaded")
	}
	return urls, nil
}

// cachePayload is the persisted state format for a completed run.
type cachePayload struct {
	Transcript      string            `json:"transcript"`
	Corrected       string            `json:"corrected"`
	Segments        Transcript        `json:"segments"`
	WordClips       map[string]string `json:"word_clips"`
	AudioURLs       []string          `json:"audio_urls"`
	DurationSeconds float64           `json:"duration_seconds"`
	LanguageName    string            `json:"language_name"`
	VideoURL        string            `json:"video_url"`
}

// persist writes the completed run to the result cache and the archive.
// Both are best-effort.
func (p *Pipeline) persist(ctx context.Context, res *Result, languageName string) {
	if p.cache != nil {
		payload, err := json.Marshal(cachePayload{
			Transcript:      res.Transcript,
			Corrected:       res.CorrectedTranscript,
			Segments:        res.Segments,
			WordClips:       res.WordClips,
			AudioURLs:       res.AudioURLs,
			DurationSeconds: res.DurationSeconds,
			LanguageName:    languageName,
			VideoURL:        res.VideoURL,
		})
		if err == nil {
			if err := p.cache.CacheSet(ctx, "transcript:"+res.VideoID, string(payload), time.Hour); err != nil {
				p.log.Debug().Err(err).Msg("failed to cache result (non-critical)")
			}
		}
	}

	if p.archiver != nil {
		if err := p.archiver.SaveRun(ctx, res, languageName); err != nil {
			p.log.Warn().Err(err).Msg("failed to archive run (non-critical)")
		}
	}
}
