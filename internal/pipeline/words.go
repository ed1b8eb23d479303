package pipeline

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/lourdrickvalsote/tonguekeeper/internal/audio"
	"github.com/lourdrickvalsote/tonguekeeper/internal/metrics"
)

const (
	minWordDuration = 0.2 // seconds; boundary inclusive
	minClipDuration = 0.3 // seconds; shorter clips get silence padding
	padMillis       = 50  // silence on each side of a short clip
)

// collectUniqueWords walks the transcript in document order (segment order,
// then word order) and keeps the first occurrence of each distinct word
// text that is non-empty after trimming, longer than one character, and at
// least minWordDuration long. The returned slice preserves document order,
// so the key set is deterministic regardless of later upload scheduling.
func collectUniqueWords(t Transcript) []Word {
	seen := make(map[string]struct{})
	var out []Word
	for _, seg := range t {
		for _, w := range seg.Words {
			text := strings.TrimSpace(w.Text)
			if text == "" || utf8.RuneCountInString(text) <= 1 {
				continue
			}
			if w.End-w.Start < minWordDuration {
				continue
			}
			if _, ok := seen[text]; ok {
				continue
			}
			seen[text] = struct{}{}
			kept := w
			kept.Text = text
			out = append(out, kept)
		}
	}
	return out
}

// chunkCache lazily loads chunk audio buffers. Multiple slicing goroutines
// read concurrently; the mutex keeps first-load writes deterministic.
type chunkCache struct {
	mu     sync.Mutex
	chunks []audio.Chunk
	loaded map[int]*audio.Buffer
}

func newChunkCache(chunks []audio.Chunk) *chunkCache {
	return &chunkCache{chunks: chunks, loaded: make(map[int]*audio.Buffer)}
}

func (c *chunkCache) get(idx int) (*audio.Buffer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if buf, ok := c.loaded[idx]; ok {
		return buf, nil
	}
	buf, err := audio.ReadFile(c.chunks[idx].Path)
	if err != nil {
		return nil, fmt.Errorf("load chunk %d: %w", idx, err)
	}
	c.loaded[idx] = buf
	return buf, nil
}

// extractWordClips slices one audio clip per unique transcript word, maps
// each word back to its source chunk via floor(start/L) clamped to the last
// chunk, and uploads clips with bounded parallelism. A clip whose slice or
// upload fails is dropped from the map entirely.
func (p *Pipeline) extractWordClips(ctx context.Context, t Transcript, chunks []audio.Chunk, videoID string) map[string]string {
	words := collectUniqueWords(t)
	if len(words) == 0 {
		p.log.Info().Msg("no words to clip (no word-level timestamps)")
		return map[string]string{}
	}

	p.log.Info().Int("words", len(words)).Int("chunks", len(chunks)).Msg("clipping unique words")

	cache := newChunkCache(chunks)
	chunkLen := float64(p.cfg.ChunkSeconds)

	var (
		mu    sync.Mutex
		clips = make(map[string]string)
		wg    sync.WaitGroup
		sem   = make(chan struct{}, p.cfg.UploadWorkers)
	)

	for _, w := range words {
		wg.Add(1)
		sem <- struct{}{}
		go func(w Word) {
			defer wg.Done()
			defer func() { <-sem }()

			url, err := p.clipAndStore(ctx, cache, w, chunkLen, len(chunks), videoID)
			if err != nil {
				p.log.Debug().Err(err).Str("word", w.Text).Msg("word clip dropped")
				metrics.ClipsFailedTotal.Inc()
				return
			}
			metrics.ClipsUploadedTotal.Inc()
			mu.Lock()
			clips[w.Text] = url
			mu.Unlock()
		}(w)
	}
	wg.Wait()

	p.log.Info().Int("uploaded", len(clips)).Int("candidates", len(words)).Msg("word clips stored")
	return clips
}

// clipAndStore slices one word's audio from its source chunk and uploads it.
func (p *Pipeline) clipAndStore(ctx context.Context, cache *chunkCache, w Word, chunkLen float64, chunkCount int, videoID string) (string, error) {
	chunkIdx := int(w.Start / chunkLen)
	if chunkIdx >= chunkCount {
		chunkIdx = chunkCount - 1
	}
	localStart := w.Start - float64(chunkIdx)*chunkLen
	localEnd := w.End - float64(chunkIdx)*chunkLen

	buf, err := cache.get(chunkIdx)
	if err != nil {
		return "", err
	}

	clip := buf.Slice(localStart, localEnd)
	if clip.Duration() < minClipDuration {
		clip = clip.PadSilence(padMillis)
	}

	var wav bytes.Buffer
	if err := audio.EncodeWAV(&wav, clip); err != nil {
		return "", fmt.Errorf("encode clip: %w", err)
	}

	key := fmt.Sprintf("words/%s/%s.wav", videoID, clipHash(w.Text, w.Start))
	url, err := p.store.Put(ctx, key, wav.Bytes(), "audio/wav")
	if err != nil {
		return "", fmt.Errorf("upload clip: %w", err)
	}
	return url, nil
}

// clipHash derives a stable short object name from the word and its global
// start time.
func clipHash(text string, start float64) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%g", text, start)))
	return hex.EncodeToString(sum[:])[:12]
}
