// Package runner drives browser-automation jobs. The actual browser engine is
// an external process; here each step is simulated with a configurable
// duration, which is enough to exercise the full status-distribution path.
package runner

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/sandeepprukmani-maker/jobstream/internal/job"
)

// Events receives status events as the runner makes progress. The session id
// equals the job id: observers subscribe with the id of the job they watch.
// A nil Events is not allowed; use a no-op implementation in tests.
type Events interface {
	JobStarted(sessionID, jobID string)
	Step(sessionID, jobID string, step job.Step)
	JobCompleted(sessionID, jobID string, success bool, result, errMsg string)
}

// StepSpec describes one step of a submitted job.
type StepSpec struct {
	Description string        `json:"description"`
	Duration    time.Duration `json:"-"`
	DurationMs  int64         `json:"durationMs,omitempty"`
	Fail        bool          `json:"fail,omitempty"`
	FailMessage string        `json:"failMessage,omitempty"`
}

// Request is a job submission.
type Request struct {
	Name      string     `json:"name"`
	TargetURL string     `json:"targetUrl,omitempty"`
	Steps     []StepSpec `json:"steps"`
}

// Runner executes submitted jobs. Every state change is written to the store
// first and pushed to observers second, so the pull path never runs ahead of
// the push path's source of truth.
type Runner struct {
	store  *job.Store
	events Events
}

func New(store *job.Store, events Events) *Runner {
	return &Runner{store: store, events: events}
}

// Submit creates a pending job record and starts executing it in the
// background. The returned record is the snapshot at creation time.
func (r *Runner) Submit(ctx context.Context, req Request) (*job.Record, error) {
	rec := &job.Record{
		ID:        uuid.NewString(),
		Name:      req.Name,
		TargetURL: req.TargetURL,
		Status:    job.Pending,
		CreatedAt: time.Now(),
	}
	if err := r.store.Create(rec); err != nil {
		return nil, err
	}
	go r.run(ctx, rec.ID, req)
	return rec, nil
}

func (r *Runner) run(ctx context.Context, id string, req Request) {
	start := time.Now()

	if err := r.store.SetStatus(id, job.Running); err != nil {
		log.Printf("runner: mark running %s: %v", id, err)
	}
	r.events.JobStarted(id, id)

	for _, spec := range req.Steps {
		d := spec.Duration
		if d == 0 && spec.DurationMs > 0 {
			d = time.Duration(spec.DurationMs) * time.Millisecond
		}
		if !sleep(ctx, d) {
			r.finish(id, false, "", "job cancelled", time.Since(start))
			return
		}

		st := job.Step{
			Description: spec.Description,
			Status:      job.Completed,
			DurationMs:  d.Milliseconds(),
			Timestamp:   time.Now(),
		}
		if spec.Fail {
			st.Status = job.Failed
		}
		if err := r.store.AppendStep(id, st); err != nil {
			log.Printf("runner: append step for %s: %v", id, err)
		}
		r.events.Step(id, id, st)

		if spec.Fail {
			msg := spec.FailMessage
			if msg == "" {
				msg = "step failed: " + spec.Description
			}
			r.finish(id, false, "", msg, time.Since(start))
			return
		}
	}

	r.finish(id, true, "all steps completed", "", time.Since(start))
}

func (r *Runner) finish(id string, success bool, result, errMsg string, elapsed time.Duration) {
	if err := r.store.Finish(id, success, result, errMsg, elapsed); err != nil {
		log.Printf("runner: finish %s: %v", id, err)
	}
	r.events.JobCompleted(id, id, success, result, errMsg)
}

// sleep waits for d or until ctx is cancelled, reporting whether the full
// duration elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
