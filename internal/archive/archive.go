// Package archive persists completed pipeline runs to Postgres. It is
// optional: when no database URL is configured the pipeline simply runs
// without an archiver.
package archive

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/lourdrickvalsote/tonguekeeper/internal/pipeline"
)

//go:embed schema.sql
var schemaSQL string

// DB wraps a pgx pool scoped to the run archive.
type DB struct {
	pool *pgxpool.Pool
	log  zerolog.Logger
}

// Connect opens a pool, verifies connectivity and applies the schema.
func Connect(ctx context.Context, databaseURL string, log zerolog.Logger) (*DB, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.MaxConns = 8
	cfg.MinConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	db := &DB{pool: pool, log: log.With().Str("component", "archive").Logger()}
	if err := db.initSchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	db.log.Info().Str("url", maskDSN(databaseURL)).Msg("archive database connected")
	return db, nil
}

// initSchema is idempotent; every statement in schema.sql guards itself
// with IF NOT EXISTS.
func (db *DB) initSchema(ctx context.Context) error {
	_, err := db.pool.Exec(ctx, schemaSQL)
	return err
}

// SaveRun upserts one completed run. Satisfies pipeline.Archiver.
func (db *DB) SaveRun(ctx context.Context, res *pipeline.Result, languageName string) error {
	segments, err := json.Marshal(res.Segments)
	if err != nil {
		return fmt.Errorf("marshal segments: %w", err)
	}
	clips, err := json.Marshal(res.WordClips)
	if err != nil {
		return fmt.Errorf("marshal word clips: %w", err)
	}

	_, err = db.pool.Exec(ctx, `
		INSERT INTO runs (
			video_id, video_url, language_name, duration_seconds,
			transcript, corrected, segments, word_clips, word_clip_count
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (video_id) DO UPDATE SET
			video_url        = EXCLUDED.video_url,
			language_name    = EXCLUDED.language_name,
			duration_seconds = EXCLUDED.duration_seconds,
			transcript       = EXCLUDED.transcript,
			corrected        = EXCLUDED.corrected,
			segments         = EXCLUDED.segments,
			word_clips       = EXCLUDED.word_clips,
			word_clip_count  = EXCLUDED.word_clip_count,
			updated_at       = now()
	`,
		res.VideoID, res.VideoURL, languageName, res.DurationSeconds,
		res.Transcript, res.CorrectedTranscript, segments, clips, len(res.WordClips),
	)
	if err != nil {
		return fmt.Errorf("upsert run: %w", err)
	}

	db.log.Info().Str("video_id", res.VideoID).Str("language", languageName).Msg("run archived")
	return nil
}

// RunSummary is a lightweight archived-run view for listings.
type RunSummary struct {
	VideoID         string    `json:"video_id"`
	VideoURL        string    `json:"video_url"`
	LanguageName    string    `json:"language_name"`
	DurationSeconds float64   `json:"duration_seconds"`
	WordClipCount   int       `json:"word_clip_count"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// ListRecent returns the most recently archived runs, newest first.
func (db *DB) ListRecent(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	rows, err := db.pool.Query(ctx, `
		SELECT video_id, video_url, language_name, duration_seconds,
		       word_clip_count, created_at, updated_at
		FROM runs
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var r RunSummary
		if err := rows.Scan(&r.VideoID, &r.VideoURL, &r.LanguageName, &r.DurationSeconds,
			&r.WordClipCount, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// HealthCheck pings the pool with a short deadline.
func (db *DB) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return db.pool.Ping(ctx)
}

func (db *DB) Close() {
	db.log.Info().Msg("closing archive pool")
	db.pool.Close()
}

func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		if _, hasPass := u.User.Password(); hasPass {
			u.User = url.UserPassword(u.User.Username(), "***")
		}
	}
	return u.String()
}
