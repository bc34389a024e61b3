package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sandeepprukmani-maker/jobstream/internal/job"
	"github.com/sandeepprukmani-maker/jobstream/internal/protocol"
)

// Watcher follows one job to its terminal state by combining the push channel
// with a periodic pull against the job endpoint. Whichever source reports a
// terminal status first wins; the loser's report is a no-op. OnComplete fires
// exactly once.
type Watcher struct {
	jobID    string
	obs      *Observer
	api      *APIClient
	interval time.Duration

	onStep     func(job.Step)
	onUpdate   func(*job.Record)
	onComplete func(*job.Record)
	errSink    func(error)

	mu         sync.Mutex
	status     job.Status
	record     *job.Record
	done       bool
	cancelPoll context.CancelFunc
}

// NewWatcher wires an observer and an API client to one job id. The
// observer's session id must be the same job id.
func NewWatcher(obs *Observer, api *APIClient, jobID string, pollInterval time.Duration) *Watcher {
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	return &Watcher{
		jobID:    jobID,
		obs:      obs,
		api:      api,
		interval: pollInterval,
		status:   job.Pending,
	}
}

// OnStep registers a listener for live step events (push path only).
func (w *Watcher) OnStep(fn func(job.Step)) { w.onStep = fn }

// OnUpdate registers a listener for non-terminal snapshot refreshes.
func (w *Watcher) OnUpdate(fn func(*job.Record)) { w.onUpdate = fn }

// OnComplete registers the terminal listener. It is invoked exactly once, no
// matter how many sources report the terminal status.
func (w *Watcher) OnComplete(fn func(*job.Record)) { w.onComplete = fn }

// OnError registers the sink for per-cycle poll failures and channel errors.
func (w *Watcher) OnError(fn func(error)) { w.errSink = fn }

// Status returns the last reconciled status.
func (w *Watcher) Status() job.Status {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.status
}

// Done reports whether a terminal status has been observed.
func (w *Watcher) Done() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.done
}

// Start connects the push channel and begins polling. The poll loop runs
// until a terminal status is observed from either source or ctx is cancelled.
func (w *Watcher) Start(ctx context.Context) {
	w.obs.OnMessage(w.handlePush)
	if w.errSink != nil {
		w.obs.OnError(w.errSink)
	}
	w.obs.Connect()

	pollCtx, cancel := context.WithCancel(ctx)
	w.mu.Lock()
	w.cancelPoll = cancel
	w.mu.Unlock()
	go w.pollLoop(pollCtx)
}

// Stop disconnects the push channel and stops polling without marking the
// job complete.
func (w *Watcher) Stop() {
	w.obs.Disconnect()
	w.mu.Lock()
	cancel := w.cancelPoll
	w.cancelPoll = nil
	w.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (w *Watcher) handlePush(msg protocol.Message) {
	if msg.JobID != "" && msg.JobID != w.jobID {
		return
	}

	switch msg.Type {
	case protocol.TypeJobStarted:
		w.advance(job.Running)

	case protocol.TypeStep:
		if msg.Step == nil {
			return
		}
		w.advance(job.Running)
		w.mu.Lock()
		done := w.done
		fn := w.onStep
		w.mu.Unlock()
		if !done && fn != nil {
			fn(*msg.Step)
		}

	case protocol.TypeJobCompleted:
		status := job.Failed
		if msg.Succeeded() {
			status = job.Completed
		}
		w.finish(func(rec *job.Record) {
			rec.Status = status
			if msg.Result != "" {
				rec.Result = msg.Result
			}
			if msg.Error != "" {
				rec.Error = msg.Error
			}
		})

	case protocol.TypeError:
		w.report(errors.New("channel error: " + msg.Text))
	}
}

// advance moves the reconciled status forward to a non-terminal state.
func (w *Watcher) advance(status job.Status) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.done || w.status == status {
		return
	}
	w.status = status
	if w.record != nil {
		w.record.Status = status
	}
}

// finish records the terminal transition once. mutate adjusts the final
// record under the lock; later terminal reports are dropped here, which is
// the reconciliation rule that makes push/pull races harmless.
func (w *Watcher) finish(mutate func(*job.Record)) {
	w.mu.Lock()
	if w.done {
		w.mu.Unlock()
		return
	}
	w.done = true
	rec := w.record
	if rec == nil {
		rec = &job.Record{ID: w.jobID}
	}
	mutate(rec)
	w.record = rec
	w.status = rec.Status
	cancel := w.cancelPoll
	w.cancelPoll = nil
	complete := w.onComplete
	w.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if complete != nil {
		complete(rec)
	}
}

func (w *Watcher) pollLoop(ctx context.Context) {
	// Poll once right away: an observer that subscribed after the job ended
	// recovers the terminal state on the first cycle.
	w.pollOnce()

	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			w.pollOnce()
		}
	}
}

func (w *Watcher) pollOnce() {
	if w.Done() {
		return
	}

	rec, err := w.api.GetJob(w.jobID)
	if errors.Is(err, ErrNotFound) {
		// Not created yet; keep polling.
		return
	}
	if err != nil {
		// Status unknown this cycle; keep the cadence.
		w.report(fmt.Errorf("poll: %w", err))
		return
	}

	if rec.Status.IsTerminal() {
		w.finish(func(final *job.Record) {
			*final = *rec
		})
		return
	}

	w.mu.Lock()
	if w.done {
		w.mu.Unlock()
		return
	}
	w.record = rec
	w.status = rec.Status
	fn := w.onUpdate
	w.mu.Unlock()
	if fn != nil {
		fn(rec)
	}
}

func (w *Watcher) report(err error) {
	if w.errSink != nil {
		w.errSink(err)
	}
}
