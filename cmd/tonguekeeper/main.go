package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/lourdrickvalsote/tonguekeeper/internal/api"
	"github.com/lourdrickvalsote/tonguekeeper/internal/archive"
	"github.com/lourdrickvalsote/tonguekeeper/internal/audio"
	"github.com/lourdrickvalsote/tonguekeeper/internal/config"
	"github.com/lourdrickvalsote/tonguekeeper/internal/correct"
	"github.com/lourdrickvalsote/tonguekeeper/internal/events"
	"github.com/lourdrickvalsote/tonguekeeper/internal/inference"
	"github.com/lourdrickvalsote/tonguekeeper/internal/pipeline"
	"github.com/lourdrickvalsote/tonguekeeper/internal/storage"
	"github.com/lourdrickvalsote/tonguekeeper/internal/watch"
)

var version = "dev"

func main() {
	var (
		envFile      = flag.String("env", "", "path to .env file (default .env)")
		addr         = flag.String("addr", "", "http listen address (overrides HTTP_ADDR)")
		logLevel     = flag.String("log-level", "", "log level (overrides LOG_LEVEL)")
		chunkSeconds = flag.Int("chunk-seconds", 0, "chunk length in seconds (overrides CHUNK_SECONDS)")
		watchDir     = flag.String("watch-dir", "", "request drop directory (overrides WATCH_DIR)")
		audioDir     = flag.String("audio-dir", "", "local audio directory (overrides AUDIO_DIR)")

		videoURL       = flag.String("url", "", "process one video and print the result instead of serving")
		languageName   = flag.String("lang", "", "target language name for correction")
		languageCode   = flag.String("lang-code", "", "explicit recognizer language code")
		contactLangs   = flag.String("contact-langs", "", "comma-separated contact languages")
		vocabulary     = flag.String("vocab", "", "comma-separated vocabulary hints")
		skipCorrection = flag.Bool("skip-correction", false, "skip the correction pass")
	)
	flag.Parse()

	cfg, err := config.Load(config.Overrides{
		EnvFile:      *envFile,
		HTTPAddr:     *addr,
		LogLevel:     *logLevel,
		ChunkSeconds: *chunkSeconds,
		WatchDir:     *watchDir,
		AudioDir:     *audioDir,
	})
	if err != nil {
		early := zerolog.New(os.Stderr).With().Timestamp().Logger()
		early.Fatal().Err(err).Msg("failed to load config")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(os.Stdout).With().Timestamp().Logger().Level(level)
	log.Info().Str("version", version).Msg("tonguekeeper starting")

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, cache, err := storage.New(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("storage init failed")
	}

	opts := pipeline.Options{
		Config:   cfg,
		Store:    store,
		Cache:    cache,
		Backend:  inference.NewClient(cfg.RunpodBaseURL, cfg.RunpodEndpointID, cfg.RunpodAPIKey),
		Acquirer: audio.NewAcquirer(log),
		Log:      log,
	}

	if corrector := correct.New(cfg.AnthropicAPIKey, cfg.AnthropicModel, log); corrector.Enabled() {
		opts.Corrector = corrector
	} else {
		log.Info().Msg("no anthropic key, correction disabled")
	}

	switch {
	case cfg.MQTTBrokerURL != "":
		emitter, err := events.ConnectMQTT(events.MQTTOptions{
			BrokerURL: cfg.MQTTBrokerURL,
			ClientID:  cfg.MQTTClientID,
			Topic:     cfg.MQTTTopic,
			Log:       log,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to mqtt broker")
		}
		defer emitter.Close()
		opts.Emitter = emitter
	case cfg.EventURL != "":
		opts.Emitter = events.NewHTTPEmitter(cfg.EventURL, log)
	}

	var db *archive.DB
	if cfg.DatabaseURL != "" {
		db, err = archive.Connect(ctx, cfg.DatabaseURL, log)
		if err != nil {
			log.Fatal().Err(err).Msg("archive connect failed")
		}
		defer db.Close()
		opts.Archiver = db
	}

	p := pipeline.New(opts)

	if *videoURL != "" {
		runOnce(ctx, p, pipeline.RunOptions{
			VideoURL:         *videoURL,
			LanguageName:     *languageName,
			LanguageCode:     *languageCode,
			ContactLanguages: splitList(*contactLangs),
			Vocabulary:       splitList(*vocabulary),
			SkipCorrection:   *skipCorrection,
		}, log)
		return
	}

	serve(ctx, cfg, p, cache, db, store.Type(), log)
}

// runOnce processes a single video and prints the result as JSON.
func runOnce(ctx context.Context, p *pipeline.Pipeline, opts pipeline.RunOptions, log zerolog.Logger) {
	res, err := p.Run(ctx, opts)
	if err != nil {
		log.Fatal().Err(err).Msg("run failed")
	}
	out, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		log.Fatal().Err(err).Msg("marshal result")
	}
	fmt.Println(string(out))
}

// serve runs the HTTP surface and, when configured, the drop-directory
// watcher, until a shutdown signal arrives.
func serve(ctx context.Context, cfg *config.Config, p *pipeline.Pipeline, cache storage.Cache, db *archive.DB, storeType string, log zerolog.Logger) {
	srv := api.NewServer(api.ServerOptions{
		Addr:      cfg.HTTPAddr,
		Runner:    p,
		Cache:     cache,
		Archive:   db,
		StoreType: storeType,
		Version:   version,
		Log:       log.With().Str("component", "http").Logger(),
	})

	if cfg.WatchDir != "" {
		w := watch.New(p, cfg.WatchDir, log)
		if err := w.Start(ctx); err != nil {
			log.Fatal().Err(err).Str("dir", cfg.WatchDir).Msg("watcher start failed")
		}
		defer w.Stop()
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("http server error")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown error")
	}
	log.Info().Msg("tonguekeeper stopped")
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
