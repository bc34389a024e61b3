package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sandeepprukmani-maker/jobstream/internal/job"
	"github.com/sandeepprukmani-maker/jobstream/internal/protocol"
)

// jobAPI is a fake job-store endpoint. Behavior per request is controlled by
// the current mode: serve the record, 404, or 500.
type jobAPI struct {
	mu     sync.Mutex
	record *job.Record
	mode   string // "ok", "missing", "down"
	hits   int64
	srv    *httptest.Server
}

func newJobAPI(t *testing.T) *jobAPI {
	t.Helper()
	a := &jobAPI{mode: "missing"}
	a.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&a.hits, 1)
		a.mu.Lock()
		mode, rec := a.mode, a.record
		a.mu.Unlock()
		switch mode {
		case "down":
			http.Error(w, "store unavailable", http.StatusInternalServerError)
		case "missing":
			http.Error(w, "job not found", http.StatusNotFound)
		default:
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(rec)
		}
	}))
	t.Cleanup(a.srv.Close)
	return a
}

func (a *jobAPI) set(mode string, rec *job.Record) {
	a.mu.Lock()
	a.mode = mode
	a.record = rec
	a.mu.Unlock()
}

func (a *jobAPI) hitCount() int64 { return atomic.LoadInt64(&a.hits) }

// newTestWatcher builds a watcher whose push channel points at a dead
// address, so only the paths under test are active.
func newTestWatcher(t *testing.T, api *jobAPI, jobID string, interval time.Duration) (*Watcher, *Observer) {
	t.Helper()
	obs := NewObserver("ws://127.0.0.1:1/ws", "", jobID)
	obs.SetBackoff(time.Hour, time.Hour, 5)
	obs.OnError(func(error) {})
	w := NewWatcher(obs, NewAPIClient(api.srv.URL, ""), jobID, interval)
	return w, obs
}

// TestWatcherPullDeliversTerminal is the offline-observer scenario: the push
// channel is down, so the poll fallback must deliver the terminal status
// within one polling interval.
func TestWatcherPullDeliversTerminal(t *testing.T) {
	api := newJobAPI(t)
	api.set("ok", &job.Record{ID: "j1", Status: job.Failed, Error: "element not found"})

	w, _ := newTestWatcher(t, api, "j1", 20*time.Millisecond)

	var completions int64
	var final *job.Record
	var mu sync.Mutex
	w.OnComplete(func(rec *job.Record) {
		atomic.AddInt64(&completions, 1)
		mu.Lock()
		final = rec
		mu.Unlock()
	})
	w.OnError(func(error) {})

	w.Start(context.Background())
	defer w.Stop()

	waitFor(t, "completion via poll", func() bool { return atomic.LoadInt64(&completions) == 1 })

	mu.Lock()
	defer mu.Unlock()
	if final.Status != job.Failed {
		t.Errorf("final status = %v, want failed", final.Status)
	}
	if final.Error != "element not found" {
		t.Errorf("final error = %q", final.Error)
	}

	// The socket reconnecting later and replaying the terminal event must
	// not produce a second completion.
	w.handlePush(protocol.JobCompleted("j1", false, "", "element not found"))
	if got := atomic.LoadInt64(&completions); got != 1 {
		t.Errorf("completions = %d, want 1", got)
	}
}

// TestWatcherIdempotentCompletion races push against pull for the same
// terminal status: exactly one completion transition may result.
func TestWatcherIdempotentCompletion(t *testing.T) {
	api := newJobAPI(t)
	api.set("ok", &job.Record{ID: "j1", Status: job.Completed, Result: "done"})

	w, _ := newTestWatcher(t, api, "j1", time.Hour)

	var completions int64
	w.OnComplete(func(*job.Record) { atomic.AddInt64(&completions, 1) })

	// Push wins, then the poll sees the same terminal state.
	w.handlePush(protocol.JobCompleted("j1", true, "done", ""))
	w.pollOnce()
	// And a duplicate push on top of that.
	w.handlePush(protocol.JobCompleted("j1", true, "done", ""))

	if got := atomic.LoadInt64(&completions); got != 1 {
		t.Errorf("completions = %d, want 1", got)
	}
	if w.Status() != job.Completed {
		t.Errorf("status = %v, want completed", w.Status())
	}
}

func TestWatcherPullFirstThenPushDuplicate(t *testing.T) {
	api := newJobAPI(t)
	api.set("ok", &job.Record{ID: "j1", Status: job.Completed})

	w, _ := newTestWatcher(t, api, "j1", time.Hour)

	var completions int64
	w.OnComplete(func(*job.Record) { atomic.AddInt64(&completions, 1) })

	w.pollOnce()
	w.handlePush(protocol.JobCompleted("j1", true, "", ""))

	if got := atomic.LoadInt64(&completions); got != 1 {
		t.Errorf("completions = %d, want 1", got)
	}
}

func TestWatcherNotFoundIsNonTerminal(t *testing.T) {
	api := newJobAPI(t) // stays in "missing" mode

	w, _ := newTestWatcher(t, api, "j1", time.Hour)

	var pollErrs int64
	w.OnError(func(error) { atomic.AddInt64(&pollErrs, 1) })

	for i := 0; i < 3; i++ {
		w.pollOnce()
	}

	if w.Done() {
		t.Error("404 must not read as terminal")
	}
	if got := atomic.LoadInt64(&pollErrs); got != 0 {
		t.Errorf("404 reported as error %d times", got)
	}
}

func TestWatcherStoreOutageKeepsCadence(t *testing.T) {
	api := newJobAPI(t)
	api.set("down", nil)

	w, _ := newTestWatcher(t, api, "j1", time.Hour)

	var pollErrs int64
	w.OnError(func(error) { atomic.AddInt64(&pollErrs, 1) })

	w.pollOnce()
	w.pollOnce()
	if got := atomic.LoadInt64(&pollErrs); got != 2 {
		t.Errorf("outage cycles reported = %d, want 2", got)
	}
	if w.Done() {
		t.Error("outage must not read as terminal")
	}

	// Store comes back with a terminal record; the next cycle completes.
	var completions int64
	w.OnComplete(func(*job.Record) { atomic.AddInt64(&completions, 1) })
	api.set("ok", &job.Record{ID: "j1", Status: job.Completed})
	w.pollOnce()
	if got := atomic.LoadInt64(&completions); got != 1 {
		t.Errorf("completions = %d, want 1", got)
	}
}

func TestWatcherPushAdvancesStatus(t *testing.T) {
	api := newJobAPI(t)
	w, _ := newTestWatcher(t, api, "j1", time.Hour)

	var steps []job.Step
	var mu sync.Mutex
	w.OnStep(func(s job.Step) {
		mu.Lock()
		steps = append(steps, s)
		mu.Unlock()
	})

	w.handlePush(protocol.JobStarted("j1"))
	if w.Status() != job.Running {
		t.Errorf("status after job_started = %v, want running", w.Status())
	}

	w.handlePush(protocol.StepUpdate("j1", job.Step{Description: "open page", Status: job.Completed}))
	mu.Lock()
	if len(steps) != 1 || steps[0].Description != "open page" {
		t.Errorf("steps = %+v", steps)
	}
	mu.Unlock()

	// Events for other jobs on the same channel are ignored.
	w.handlePush(protocol.JobCompleted("other", true, "", ""))
	if w.Done() {
		t.Error("completion of a different job must not finish this watcher")
	}
}

func TestWatcherPollStopsOnTerminal(t *testing.T) {
	api := newJobAPI(t)
	api.set("ok", &job.Record{ID: "j1", Status: job.Completed})

	w, _ := newTestWatcher(t, api, "j1", 10*time.Millisecond)

	var completions int64
	w.OnComplete(func(*job.Record) { atomic.AddInt64(&completions, 1) })
	w.OnError(func(error) {})

	w.Start(context.Background())
	defer w.Stop()

	waitFor(t, "completion", func() bool { return atomic.LoadInt64(&completions) == 1 })

	// Polling must halt: no new hits after the terminal observation settles.
	settled := api.hitCount()
	time.Sleep(60 * time.Millisecond)
	if got := api.hitCount(); got != settled {
		t.Errorf("poll continued after terminal status: %d -> %d hits", settled, got)
	}
}
