package events

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// HTTPEmitter POSTs events to a websocket relay's /emit endpoint.
type HTTPEmitter struct {
	url    string
	client *http.Client
	log    zerolog.Logger
}

// NewHTTPEmitter creates an emitter targeting baseURL.
func NewHTTPEmitter(baseURL string, log zerolog.Logger) *HTTPEmitter {
	return &HTTPEmitter{
		url:    strings.TrimRight(baseURL, "/") + "/emit",
		client: &http.Client{Timeout: 5 * time.Second},
		log:    log.With().Str("component", "event-emitter").Logger(),
	}
}

func (e *HTTPEmitter) Emit(stage, action, status string, data map[string]any) {
	event := newEvent(stage, action, status, data)
	payload, err := json.Marshal(event)
	if err != nil {
		e.log.Debug().Err(err).Str("action", action).Msg("failed to marshal event")
		return
	}

	resp, err := e.client.Post(e.url, "application/json", bytes.NewReader(payload))
	if err != nil {
		e.log.Debug().Err(err).Str("action", action).Msg("failed to emit event")
		return
	}
	resp.Body.Close()
	if resp.StatusCode >= 400 {
		e.log.Debug().Int("status", resp.StatusCode).Str("action", action).Msg("event sink rejected event")
	}
}
