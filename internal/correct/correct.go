// Package correct rewrites a proxy-language transcription into the actual
// target language using a large language model. When no API key is
// configured the corrector degrades to pass-through; correction being
// unavailable is never an error.
package correct

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	defaultBaseURL = "https://api.anthropic.com/v1/messages"
	apiVersion     = "2023-06-01"
	maxTokens      = 4096
	maxVocabHints  = 100
)

// Corrector corrects transcripts through the Anthropic messages API.
type Corrector struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
	log     zerolog.Logger
}

// New creates a Corrector. An empty apiKey yields a pass-through corrector.
func New(apiKey, model string, log zerolog.Logger) *Corrector {
	return &Corrector{
		apiKey:  apiKey,
		model:   model,
		baseURL: defaultBaseURL,
		client:  &http.Client{Timeout: 120 * time.Second},
		log:     log.With().Str("component", "corrector").Logger(),
	}
}

// Enabled reports whether correction will actually call the model.
func (c *Corrector) Enabled() bool { return c.apiKey != "" }

type messagesRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	System    string    `json:"system"`
	Messages  []message `json:"messages"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesResponse struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
}

// Correct rewrites transcript from the proxy language into languageName.
// Returns the input unchanged when the corrector is not configured.
func (c *Corrector) Correct(ctx context.Context, transcript, languageName, proxyLanguage string, vocabulary []string) (string, error) {
	if !c.Enabled() {
		c.log.Warn().Msg("no API key configured, skipping transcription correction")
		return transcript, nil
	}

	vocabSection := ""
	if len(vocabulary) > 0 {
		hints := vocabulary
		if len(hints) > maxVocabHints {
			hints = hints[:maxVocabHints]
		}
		vocabSection = fmt.Sprintf("\n\nKnown %s vocabulary that may appear: %s",
			languageName, strings.Join(hints, ", "))
	}

	system := fmt.Sprintf(
		"You are an expert linguist specializing in the %[1]s language. "+
			"%[1]s is an endangered language that is distinct from %[2]s. "+
			"A speech recognition model transcribed audio of %[1]s speech "+
			"using %[2]s as the closest available language model. "+
			"Your task is to identify words and phrases that are likely %[1]s-specific "+
			"(not %[2]s) and correct the transcription accordingly.",
		languageName, proxyLanguage)

	prompt := fmt.Sprintf(
		"The following is a transcription of speech in %[1]s, "+
			"but it was transcribed using a %[2]s speech recognition model. "+
			"The transcription likely contains %[2]s words where "+
			"%[1]s-specific vocabulary or grammar should be used.\n\n"+
			"Please:\n"+
			"1. Identify words/phrases that are likely %[1]s-specific vs %[2]s\n"+
			"2. Correct the transcription to use proper %[1]s vocabulary and grammar where applicable\n"+
			"3. Mark %[1]s-specific words with 【brackets】\n\n"+
			"Transcription:\n%[3]s%[4]s\n\n"+
			"Return the corrected transcription with %[1]s words marked in 【brackets】. "+
			"After the corrected text, add a brief section listing each %[1]s word found "+
			"with its %[2]s equivalent.",
		languageName, proxyLanguage, transcript, vocabSection)

	payload, err := json.Marshal(messagesRequest{
		Model:     c.model,
		MaxTokens: maxTokens,
		System:    system,
		Messages:  []message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", apiVersion)
	req.Header.Set("Content-Type", "application/json")

	c.log.Info().Str("language", languageName).Str("proxy", proxyLanguage).Msg("sending transcript for correction")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("correction request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("correction API error (status %d): %s", resp.StatusCode, string(body))
	}

	var out messagesResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(out.Content) == 0 {
		return "", fmt.Errorf("correction API returned empty content")
	}

	corrected := out.Content[0].Text
	c.log.Info().Str("language", languageName).Int("chars", len(corrected)).Msg("correction complete")
	return corrected, nil
}
