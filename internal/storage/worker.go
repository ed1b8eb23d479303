package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// WorkerClient talks to the Cloudflare worker that fronts R2 object storage
// and the KV cache. Uploads POST raw bytes to /upload with the key in the
// X-Filename header; the worker answers with a relative URL.
type WorkerClient struct {
	baseURL string
	client  *http.Client
	log     zerolog.Logger
}

// NewWorkerClient creates a worker storage client.
func NewWorkerClient(baseURL string, log zerolog.Logger) *WorkerClient {
	return &WorkerClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 120 * time.Second},
		log:     log.With().Str("component", "worker-store").Logger(),
	}
}

type uploadResponse struct {
	URL string `json:"url"`
}

func (w *WorkerClient) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.baseURL+"/upload", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-Filename", key)

	resp, err := w.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("upload %s failed (status %d): %s", key, resp.StatusCode, string(body))
	}

	var out uploadResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	return w.baseURL + out.URL, nil
}

func (w *WorkerClient) Get(ctx context.Context, key string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.baseURL+"/"+key, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := w.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("get %s failed (status %d)", key, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func (w *WorkerClient) Type() string { return "worker" }

type cacheSetRequest struct {
	Value string `json:"value"`
	TTL   int    `json:"ttl,omitempty"`
}

type cacheGetResponse struct {
	Value json.RawMessage `json:"value"`
}

// CacheSet writes a value to the worker's KV cache.
func (w *WorkerClient) CacheSet(ctx context.Context, key, value string, ttl time.Duration) error {
	payload, err := json.Marshal(cacheSetRequest{Value: value, TTL: int(ttl.Seconds())})
	if err != nil {
		return fmt.Errorf("marshal cache payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		w.baseURL+"/cache/"+url.PathEscape(key), bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("cache set %s: %w", key, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("cache set %s failed (status %d)", key, resp.StatusCode)
	}
	return nil
}

// CacheGet reads a value from the worker's KV cache. JSON values come back
// re-serialized, matching what CacheSet stored.
func (w *WorkerClient) CacheGet(ctx context.Context, key string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		w.baseURL+"/cache/"+url.PathEscape(key), nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	resp, err := w.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("cache get %s: %w", key, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("cache get %s failed (status %d)", key, resp.StatusCode)
	}

	var out cacheGetResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	// Strings arrive JSON-quoted; everything else passes through verbatim.
	var s string
	if err := json.Unmarshal(out.Value, &s); err == nil {
		return s, nil
	}
	return string(out.Value), nil
}
