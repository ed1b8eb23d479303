package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/lourdrickvalsote/tonguekeeper/internal/inference"
	"github.com/lourdrickvalsote/tonguekeeper/internal/metrics"
)

// OutcomeKind classifies how a chunk's transcription attempt resolved.
type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeSubmissionError
	OutcomeBackendFailure
	OutcomeHandlerError
	OutcomeTimeout
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeSubmissionError:
		return "submission_error"
	case OutcomeBackendFailure:
		return "backend_failure"
	case OutcomeHandlerError:
		return "handler_error"
	case OutcomeTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// chunkState is a chunk's position in the two-round retry state machine:
// pending -> submitted -> {completed | failedRound1}
// failedRound1 -> submitted(retry) -> {completed | failedFinal}
type chunkState int

const (
	statePending chunkState = iota
	stateSubmitted
	stateCompleted
	stateFailedRound1
	stateFailedFinal
)

// scheduler tracks per-chunk state and accumulates globally timed segments
// as poll tasks resolve in arbitrary order.
type scheduler struct {
	mu       sync.Mutex
	states   []chunkState
	segments [][]Segment // per chunk, global time, set once on completion
}

func newScheduler(n int) *scheduler {
	return &scheduler{
		states:   make([]chunkState, n),
		segments: make([][]Segment, n),
	}
}

// markSubmitted transitions a chunk into the submitted state for a round.
func (s *scheduler) markSubmitted(idx int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[idx] = stateSubmitted
}

// resolveSuccess records a chunk's segments. The already-resolved guard
// makes resolution idempotent: a slow duplicate result (e.g. a first-round
// success arriving after the retry was triggered) is dropped so a chunk
// never contributes segments twice.
func (s *scheduler) resolveSuccess(idx int, segs []Segment) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.states[idx] == stateCompleted {
		return false
	}
	s.states[idx] = stateCompleted
	s.segments[idx] = segs
	return true
}

// resolveFailure records a failed attempt. Round 1 failures stay retryable;
// round 2 failures are terminal.
func (s *scheduler) resolveFailure(idx int, round int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.states[idx] == stateCompleted {
		return
	}
	if round == 1 {
		s.states[idx] = stateFailedRound1
	} else {
		s.states[idx] = stateFailedFinal
	}
}

// retryable returns the chunk indices eligible for the retry round.
func (s *scheduler) retryable() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []int
	for i, st := range s.states {
		if st == stateFailedRound1 {
			out = append(out, i)
		}
	}
	return out
}

// merge collects all completed chunks' segments into one sorted transcript.
func (s *scheduler) merge() Transcript {
	s.mu.Lock()
	defer s.mu.Unlock()
	var t Transcript
	for i, st := range s.states {
		if st == stateCompleted {
			t = append(t, s.segments[i]...)
		}
	}
	t.Sort()
	return t
}

// completedCount returns how many chunks resolved successfully.
func (s *scheduler) completedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, st := range s.states {
		if st == stateCompleted {
			n++
		}
	}
	return n
}

// chunkOutput is the inference handler's output payload for one chunk.
type chunkOutput struct {
	Error    string    `json:"error"`
	Segments []Segment `json:"segments"`
}

// job pairs a chunk index with its live backend job.
type job struct {
	chunkIndex int
	jobID      string
}

var errJobRunning = errors.New("job not yet terminal")

// awaitJob polls a job at the configured fixed interval until it reaches a
// terminal state or the per-job timeout elapses. A poll transport error is
// terminal for the attempt (the chunk goes to the retry round instead).
func (p *Pipeline) awaitJob(ctx context.Context, jobID string) (*inference.JobStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.JobTimeout)
	defer cancel()

	var final *inference.JobStatus
	op := func() error {
		st, err := p.backend.PollStatus(ctx, jobID)
		if err != nil {
			return backoff.Permanent(err)
		}
		if !st.Terminal() {
			return errJobRunning
		}
		final = st
		return nil
	}

	bo := backoff.WithContext(backoff.NewConstantBackOff(p.cfg.PollInterval), ctx)
	if err := backoff.Retry(op, bo); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("job %s timed out after %s: %w", jobID, p.cfg.JobTimeout, context.DeadlineExceeded)
		}
		return nil, err
	}
	return final, nil
}

// classify turns one terminal poll result into an outcome and, on success,
// the chunk's parsed segments (still chunk-local time).
func classify(st *inference.JobStatus, err error) (OutcomeKind, []Segment, string) {
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return OutcomeTimeout, nil, err.Error()
		}
		return OutcomeBackendFailure, nil, err.Error()
	}
	if st.Status == inference.StatusFailed {
		reason := st.Error
		if reason == "" {
			reason = "unknown error"
		}
		return OutcomeBackendFailure, nil, reason
	}

	var out chunkOutput
	if len(st.Output) > 0 {
		if jerr := json.Unmarshal(st.Output, &out); jerr != nil {
			return OutcomeHandlerError, nil, fmt.Sprintf("malformed output: %v", jerr)
		}
	}
	if out.Error != "" {
		return OutcomeHandlerError, nil, out.Error
	}
	return OutcomeSuccess, out.Segments, ""
}

// submitChunks eagerly submits one job per chunk URL, in order. Submission
// is cheap; it is the wait that gets parallelized. A chunk whose submission
// fails is recorded as failed for this round and skipped from polling.
func (p *Pipeline) submitChunks(ctx context.Context, sched *scheduler, indices []int, urls []string, language string, round int) []job {
	var jobs []job
	for _, i := range indices {
		jobID, err := p.backend.Submit(ctx, urls[i], language)
		if err != nil {
			p.log.Error().Err(err).Int("chunk", i).Int("round", round).Msg("chunk submission failed")
			metrics.ChunksFailedTotal.WithLabelValues(fmt.Sprint(round), OutcomeSubmissionError.String()).Inc()
			sched.resolveFailure(i, round)
			continue
		}
		sched.markSubmitted(i)
		metrics.ChunksSubmittedTotal.Inc()
		jobs = append(jobs, job{chunkIndex: i, jobID: jobID})
		p.log.Info().Int("chunk", i).Str("job_id", truncateID(jobID)).Int("round", round).Msg("chunk submitted")
	}
	return jobs
}

// pollAll waits on every submitted job concurrently, one goroutine per job,
// resolving each chunk as its result arrives. Completion order across
// chunks is arbitrary; global order is imposed later by the merge sort.
func (p *Pipeline) pollAll(ctx context.Context, sched *scheduler, jobs []job, round int) {
	var wg sync.WaitGroup
	for _, j := range jobs {
		wg.Add(1)
		go func(j job) {
			defer wg.Done()
			start := time.Now()
			st, err := p.awaitJob(ctx, j.jobID)
			metrics.JobPollDuration.Observe(time.Since(start).Seconds())

			kind, segs, reason := classify(st, err)
			if kind != OutcomeSuccess {
				p.log.Error().Int("chunk", j.chunkIndex).Int("round", round).
					Str("outcome", kind.String()).Str("reason", reason).Msg("chunk failed")
				metrics.ChunksFailedTotal.WithLabelValues(fmt.Sprint(round), kind.String()).Inc()
				sched.resolveFailure(j.chunkIndex, round)
				return
			}

			offset := float64(j.chunkIndex * p.cfg.ChunkSeconds)
			if !sched.resolveSuccess(j.chunkIndex, offsetSegments(segs, offset)) {
				p.log.Warn().Int("chunk", j.chunkIndex).Int("round", round).Msg("duplicate chunk result dropped")
				return
			}
			metrics.ChunksCompletedTotal.Inc()
			p.log.Info().Int("chunk", j.chunkIndex).Int("round", round).
				Int("segments", len(segs)).Msg("chunk transcribed")
		}(j)
	}
	wg.Wait()
}

// transcribeChunks runs the full two-round transcription pass over the
// uploaded chunk URLs and returns the merged, globally sorted transcript.
func (p *Pipeline) transcribeChunks(ctx context.Context, urls []string, language string) (Transcript, error) {
	sched := newScheduler(len(urls))
	all := make([]int, len(urls))
	for i := range all {
		all[i] = i
	}

	// Round 1: submit everything, then wait on all jobs concurrently.
	jobs := p.submitChunks(ctx, sched, all, urls, language, 1)
	p.emit("extraction", "Transcribing chunks in parallel", "running", map[string]any{
		"count":   len(jobs),
		"message": fmt.Sprintf("Submitted %d/%d jobs, polling...", len(jobs), len(urls)),
	})
	p.pollAll(ctx, sched, jobs, 1)

	// Round 2: exactly one retry pass over everything that failed, with the
	// same poll policy. A failed retry leaves a documented gap.
	submitted := len(jobs)
	if failed := sched.retryable(); len(failed) > 0 {
		p.log.Info().Ints("chunks", failed).Msg("retrying failed chunks")
		retryJobs := p.submitChunks(ctx, sched, failed, urls, language, 2)
		submitted += len(retryJobs)
		p.pollAll(ctx, sched, retryJobs, 2)
	}

	// Chunk failures leave gaps, never abort the run; only the backend
	// rejecting every single submission is fatal.
	if submitted == 0 {
		return nil, fmt.Errorf("transcription failed: backend accepted none of %d chunk submissions", len(urls))
	}

	t := sched.merge()
	p.log.Info().Int("segments", len(t)).Int("chunks_ok", sched.completedCount()).
		Int("chunks_total", len(urls)).Msg("transcription complete")
	return t, nil
}

func truncateID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
