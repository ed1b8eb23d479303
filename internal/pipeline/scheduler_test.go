package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/lourdrickvalsote/tonguekeeper/internal/inference"
)

func TestSchedulerStateMachine(t *testing.T) {
	sched := newScheduler(3)

	// Round 1: chunk 0 succeeds, chunks 1 and 2 fail.
	sched.markSubmitted(0)
	sched.markSubmitted(1)
	sched.markSubmitted(2)
	sched.resolveSuccess(0, []Segment{{Start: 0, End: 1, Text: "a"}})
	sched.resolveFailure(1, 1)
	sched.resolveFailure(2, 1)

	retry := sched.retryable()
	if len(retry) != 2 || retry[0] != 1 || retry[1] != 2 {
		t.Fatalf("retryable = %v, want [1 2]", retry)
	}

	// Round 2: chunk 1 recovers, chunk 2 fails permanently.
	sched.markSubmitted(1)
	sched.resolveSuccess(1, []Segment{{Start: 30, End: 31, Text: "b"}})
	sched.markSubmitted(2)
	sched.resolveFailure(2, 2)

	if got := sched.retryable(); len(got) != 0 {
		t.Errorf("retryable after round 2 = %v, want none", got)
	}
	if got := sched.completedCount(); got != 2 {
		t.Errorf("completedCount = %d, want 2", got)
	}

	tr := sched.merge()
	if len(tr) != 2 || tr[0].Text != "a" || tr[1].Text != "b" {
		t.Errorf("merge = %+v", tr)
	}
}

func TestSchedulerAlreadyResolvedGuard(t *testing.T) {
	// A chunk that failed round 1 and succeeded on retry must contribute
	// exactly the retried segments even if a slow first-round result lands
	// afterwards.
	sched := newScheduler(1)
	sched.markSubmitted(0)
	sched.resolveFailure(0, 1)

	sched.markSubmitted(0)
	if ok := sched.resolveSuccess(0, []Segment{{Start: 0, End: 1, Text: "retry"}}); !ok {
		t.Fatal("retry result rejected")
	}

	// Late duplicate from round 1 arrives after resolution.
	if ok := sched.resolveSuccess(0, []Segment{{Start: 0, End: 1, Text: "stale"}}); ok {
		t.Error("duplicate result accepted")
	}
	// Late failure must not demote a completed chunk either.
	sched.resolveFailure(0, 2)

	tr := sched.merge()
	if len(tr) != 1 || tr[0].Text != "retry" {
		t.Errorf("merge = %+v, want the single retried segment", tr)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		st       *inference.JobStatus
		err      error
		want     OutcomeKind
		segments int
	}{
		{
			name: "success_with_segments",
			st: &inference.JobStatus{Status: inference.StatusCompleted,
				Output: json.RawMessage(`{"segments":[{"start":0,"end":1,"text":"hi"}]}`)},
			want:     OutcomeSuccess,
			segments: 1,
		},
		{
			name:     "success_empty_output",
			st:       &inference.JobStatus{Status: inference.StatusCompleted},
			want:     OutcomeSuccess,
			segments: 0,
		},
		{
			name: "backend_failure",
			st:   &inference.JobStatus{Status: inference.StatusFailed, Error: "worker crashed"},
			want: OutcomeBackendFailure,
		},
		{
			name: "handler_error_in_output",
			st: &inference.JobStatus{Status: inference.StatusCompleted,
				Output: json.RawMessage(`{"error":"audio too long"}`)},
			want: OutcomeHandlerError,
		},
		{
			name: "malformed_output",
			st: &inference.JobStatus{Status: inference.StatusCompleted,
				Output: json.RawMessage(`{{not json`)},
			want: OutcomeHandlerError,
		},
		{
			name: "timeout",
			err:  fmt.Errorf("job x timed out: %w", context.DeadlineExceeded),
			want: OutcomeTimeout,
		},
		{
			name: "poll_transport_error",
			err:  errors.New("connection refused"),
			want: OutcomeBackendFailure,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, segs, reason := classify(tt.st, tt.err)
			if kind != tt.want {
				t.Errorf("kind = %v, want %v (reason %q)", kind, tt.want, reason)
			}
			if len(segs) != tt.segments {
				t.Errorf("segments = %d, want %d", len(segs), tt.segments)
			}
			if kind != OutcomeSuccess && reason == "" {
				t.Error("failure outcome has empty reason")
			}
		})
	}
}
