// Package inference talks to a RunPod-style serverless speech-recognition
// endpoint: jobs are submitted asynchronously and polled by ID until they
// reach a terminal state. The backend is treated as untrusted and flaky;
// callers own all retry policy.
package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Terminal and non-terminal job states reported by the backend.
const (
	StatusPending    = "PENDING"
	StatusInQueue    = "IN_QUEUE"
	StatusInProgress = "IN_PROGRESS"
	StatusCompleted  = "COMPLETED"
	StatusFailed     = "FAILED"
)

// JobStatus is one poll result for a submitted job.
type JobStatus struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Output json.RawMessage `json:"output,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// Terminal reports whether the job has finished, successfully or not.
func (s *JobStatus) Terminal() bool {
	return s.Status == StatusCompleted || s.Status == StatusFailed
}

// Client submits transcription jobs to a RunPod serverless endpoint.
type Client struct {
	baseURL    string
	endpointID string
	apiKey     string
	client     *http.Client
}

// NewClient creates a RunPod inference client.
func NewClient(baseURL, endpointID, apiKey string) *Client {
	return &Client{
		baseURL:    baseURL,
		endpointID: endpointID,
		apiKey:     apiKey,
		client:     &http.Client{Timeout: 30 * time.Second},
	}
}

type submitRequest struct {
	Input submitInput `json:"input"`
}

type submitInput struct {
	AudioURL string `json:"audio_url"`
	Language string `json:"language"`
	Task     string `json:"task"`
}

// Submit enqueues a transcription job for the audio at audioURL and returns
// the backend's job ID immediately. It never waits for completion.
func (c *Client) Submit(ctx context.Context, audioURL, language string) (string, error) {
	payload, err := json.Marshal(submitRequest{Input: submitInput{
		AudioURL: audioURL,
		Language: language,
		Task:     "transcribe",
	}})
	if err != nil {
		return "", fmt.Errorf("marshal submit payload: %w", err)
	}

	url := fmt.Sprintf("%s/%s/run", c.baseURL, c.endpointID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("submit request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("submit rejected (status %d): %s", resp.StatusCode, string(body))
	}

	var st JobStatus
	if err := json.Unmarshal(body, &st); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if st.ID == "" {
		return "", fmt.Errorf("backend returned no job ID: %s", string(body))
	}
	return st.ID, nil
}

// PollStatus fetches the current status of a submitted job.
func (c *Client) PollStatus(ctx context.Context, jobID string) (*JobStatus, error) {
	url := fmt.Sprintf("%s/%s/status/%s", c.baseURL, c.endpointID, jobID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("status request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status check failed (status %d): %s", resp.StatusCode, string(body))
	}

	var st JobStatus
	if err := json.Unmarshal(body, &st); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &st, nil
}
