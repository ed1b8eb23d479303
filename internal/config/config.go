package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all runtime configuration for the pipeline and its
// collaborators. There is no mutable package-level state; main builds one
// of these and passes it down.
type Config struct {
	// Remote inference backend (RunPod-style async job API).
	RunpodEndpointID string `env:"RUNPOD_ENDPOINT_ID"`
	RunpodAPIKey     string `env:"RUNPOD_API_KEY"`
	RunpodBaseURL    string `env:"RUNPOD_BASE_URL" envDefault:"https://api.runpod.ai/v2"`

	// Cloudflare worker fronting R2 object storage and the KV result cache.
	WorkerURL string `env:"CLOUDFLARE_WORKER_URL"`

	// Optional S3-compatible storage backend (used instead of the worker
	// when configured).
	S3Endpoint  string `env:"S3_ENDPOINT"`
	S3Region    string `env:"S3_REGION" envDefault:"auto"`
	S3Bucket    string `env:"S3_BUCKET"`
	S3AccessKey string `env:"S3_ACCESS_KEY"`
	S3SecretKey string `env:"S3_SECRET_KEY"`
	S3PublicURL string `env:"S3_PUBLIC_URL"`

	// Transcript correction. Unset key disables correction (pass-through).
	AnthropicAPIKey string `env:"ANTHROPIC_API_KEY"`
	AnthropicModel  string `env:"ANTHROPIC_MODEL" envDefault:"claude-sonnet-4-5-20250929"`

	// Agent event sink. Empty EventURL and MQTTBrokerURL mean no-op.
	EventURL      string `env:"WS_URL"`
	MQTTBrokerURL string `env:"MQTT_BROKER_URL"`
	MQTTTopic     string `env:"MQTT_TOPIC" envDefault:"tonguekeeper/events"`
	MQTTClientID  string `env:"MQTT_CLIENT_ID" envDefault:"tonguekeeper"`

	// Optional Postgres archive of completed runs.
	DatabaseURL string `env:"DATABASE_URL"`

	// Pipeline tuning.
	ChunkSeconds  int           `env:"CHUNK_SECONDS" envDefault:"30"`
	PollInterval  time.Duration `env:"POLL_INTERVAL" envDefault:"2s"`
	JobTimeout    time.Duration `env:"JOB_TIMEOUT" envDefault:"300s"`
	UploadWorkers int           `env:"UPLOAD_WORKERS" envDefault:"8"`

	// Service mode.
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8080"`
	WatchDir string `env:"WATCH_DIR"`
	AudioDir string `env:"AUDIO_DIR" envDefault:"./audio"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// S3Enabled reports whether the S3 backend is fully configured.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != "" && c.S3AccessKey != "" && c.S3SecretKey != ""
}

// Validate checks invariants that env defaults alone cannot guarantee.
func (c *Config) Validate() error {
	if c.RunpodEndpointID == "" || c.RunpodAPIKey == "" {
		return fmt.Errorf("RUNPOD_ENDPOINT_ID and RUNPOD_API_KEY must be set")
	}
	if c.WorkerURL == "" && !c.S3Enabled() && c.AudioDir == "" {
		return fmt.Errorf("no storage backend: set CLOUDFLARE_WORKER_URL, S3 credentials, or AUDIO_DIR")
	}
	if c.ChunkSeconds <= 0 {
		return fmt.Errorf("CHUNK_SECONDS must be positive, got %d", c.ChunkSeconds)
	}
	if c.PollInterval <= 0 || c.JobTimeout <= 0 {
		return fmt.Errorf("POLL_INTERVAL and JOB_TIMEOUT must be positive")
	}
	return nil
}

// Overrides holds CLI flag values that take priority over env vars.
type Overrides struct {
	EnvFile      string
	HTTPAddr     string
	LogLevel     string
	ChunkSeconds int
	WatchDir     string
	AudioDir     string
}

// Load reads configuration from .env file, environment variables, and CLI
// overrides. Priority: CLI flags > environment variables > .env file >
// struct defaults.
func Load(overrides Overrides) (*Config, error) {
	envFile := overrides.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); err == nil {
		_ = godotenv.Load(envFile)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	if overrides.HTTPAddr != "" {
		cfg.HTTPAddr = overrides.HTTPAddr
	}
	if overrides.LogLevel != "" {
		cfg.LogLevel = overrides.LogLevel
	}
	if overrides.ChunkSeconds > 0 {
		cfg.ChunkSeconds = overrides.ChunkSeconds
	}
	if overrides.WatchDir != "" {
		cfg.WatchDir = overrides.WatchDir
	}
	if overrides.AudioDir != "" {
		cfg.AudioDir = overrides.AudioDir
	}

	return cfg, nil
}
