package correct

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestCorrectPassThroughWithoutKey(t *testing.T) {
	c := New("", "some-model", zerolog.Nop())
	if c.Enabled() {
		t.Error("Enabled() = true without API key")
	}
	got, err := c.Correct(context.Background(), "raw transcript", "Jejueo", "Korean", nil)
	if err != nil {
		t.Fatalf("Correct: %v", err)
	}
	if got != "raw transcript" {
		t.Errorf("pass-through changed transcript: %q", got)
	}
}

func TestCorrectCallsAPI(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("x-api-key"); got != "key123" {
			t.Errorf("x-api-key = %q", got)
		}
		if got := r.Header.Get("anthropic-version"); got == "" {
			t.Error("missing anthropic-version header")
		}
		var req messagesRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Model != "test-model" {
			t.Errorf("model = %q", req.Model)
		}
		if !strings.Contains(req.System, "Jejueo") || !strings.Contains(req.System, "Korean") {
			t.Error("system prompt missing language names")
		}
		if len(req.Messages) != 1 || !strings.Contains(req.Messages[0].Content, "raw text") {
			t.Error("user prompt missing transcript")
		}
		if !strings.Contains(req.Messages[0].Content, "hallasan") {
			t.Error("user prompt missing vocabulary hints")
		}
		json.NewEncoder(w).Encode(map[string]any{
			"content": []map[string]string{{"text": "corrected 【text】"}},
		})
	}))
	defer srv.Close()

	c := New("key123", "test-model", zerolog.Nop())
	c.baseURL = srv.URL

	got, err := c.Correct(context.Background(), "raw text", "Jejueo", "Korean", []string{"hallasan"})
	if err != nil {
		t.Fatalf("Correct: %v", err)
	}
	if got != "corrected 【text】" {
		t.Errorf("Correct = %q", got)
	}
}

func TestCorrectAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := New("key123", "test-model", zerolog.Nop())
	c.baseURL = srv.URL
	if _, err := c.Correct(context.Background(), "t", "L", "P", nil); err == nil {
		t.Error("Correct succeeded on API error")
	}
}
