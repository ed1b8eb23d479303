// Package events is the observer side channel for pipeline progress. Agent
// events are best-effort and fire-and-forget: an emitter failure is logged
// and swallowed, never propagated into pipeline control flow.
package events

import (
	"time"

	"github.com/google/uuid"
)

// Event is one agent progress notification for frontend display.
type Event struct {
	ID        string         `json:"id"`
	Agent     string         `json:"agent"`
	Action    string         `json:"action"`
	Status    string         `json:"status"`
	Data      map[string]any `json:"data"`
	Timestamp string         `json:"timestamp"`
}

// Emitter delivers pipeline progress events. Implementations must never
// block the caller for long and never return delivery errors.
type Emitter interface {
	Emit(stage, action, status string, data map[string]any)
}

// newEvent stamps an event with a fresh ID and UTC timestamp.
func newEvent(stage, action, status string, data map[string]any) Event {
	if data == nil {
		data = map[string]any{}
	}
	return Event{
		ID:        uuid.NewString(),
		Agent:     stage,
		Action:    action,
		Status:    status,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// Nop is the default emitter; it discards everything.
type Nop struct{}

func (Nop) Emit(stage, action, status string, data map[string]any) {}
