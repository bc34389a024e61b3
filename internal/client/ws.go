package client

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sandeepprukmani-maker/jobstream/internal/protocol"
)

const (
	defaultBaseDelay   = 1 * time.Second
	defaultMaxDelay    = 30 * time.Second
	defaultMaxAttempts = 5
)

// State is the observer connection state.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateRetryWait
	StateGivenUp
)

var stateNames = map[State]string{
	StateIdle:       "idle",
	StateConnecting: "connecting",
	StateOpen:       "open",
	StateRetryWait:  "retry-wait",
	StateGivenUp:    "given-up",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return "unknown"
}

// Observer maintains one logical subscription to a session across transport
// reconnects. On every successful open it re-sends the subscribe frame; on
// transport loss it retries with doubling delay up to a fixed attempt
// ceiling, after which it stays given-up until Connect is called again.
type Observer struct {
	url       string
	token     string
	sessionID string

	baseDelay   time.Duration
	maxDelay    time.Duration
	maxAttempts int

	handler func(protocol.Message)
	onState func(State)
	errSink func(error)

	mu         sync.Mutex
	state      State
	conn       *websocket.Conn
	attempts   int
	retryTimer *time.Timer
	gen        int // bumped on Connect/Disconnect; stale goroutines check it and bail
}

// NewObserver creates an observer for one session. wsURL is the full ws://
// endpoint; token may be empty.
func NewObserver(wsURL, token, sessionID string) *Observer {
	return &Observer{
		url:         wsURL,
		token:       token,
		sessionID:   sessionID,
		baseDelay:   defaultBaseDelay,
		maxDelay:    defaultMaxDelay,
		maxAttempts: defaultMaxAttempts,
	}
}

// SetBackoff overrides the retry schedule. Zero values keep the defaults.
func (o *Observer) SetBackoff(base, max time.Duration, attempts int) {
	if base > 0 {
		o.baseDelay = base
	}
	if max > 0 {
		o.maxDelay = max
	}
	if attempts > 0 {
		o.maxAttempts = attempts
	}
}

// OnMessage registers the single handler for inbound status frames.
func (o *Observer) OnMessage(fn func(protocol.Message)) { o.handler = fn }

// OnStateChange registers a state-transition listener.
func (o *Observer) OnStateChange(fn func(State)) { o.onState = fn }

// OnError registers the sink for recoverable errors (dial failures,
// malformed frames). Without one, errors go to the process log.
func (o *Observer) OnError(fn func(error)) { o.errSink = fn }

// State returns the current connection state.
func (o *Observer) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Connect starts (or restarts) the connection attempt. It resets the retry
// counter, so calling it after give-up begins a fresh cycle. Calling it while
// connecting or open is a no-op.
func (o *Observer) Connect() {
	o.mu.Lock()
	if o.state == StateConnecting || o.state == StateOpen {
		o.mu.Unlock()
		return
	}
	if o.retryTimer != nil {
		o.retryTimer.Stop()
		o.retryTimer = nil
	}
	o.attempts = 0
	o.gen++
	gen := o.gen
	o.state = StateConnecting
	o.mu.Unlock()

	o.notify(StateConnecting)
	go o.dial(gen)
}

// Disconnect tears the connection down and cancels any pending retry. When it
// returns, no further reconnect attempts or handler deliveries will occur.
func (o *Observer) Disconnect() {
	o.mu.Lock()
	o.gen++
	if o.retryTimer != nil {
		o.retryTimer.Stop()
		o.retryTimer = nil
	}
	conn := o.conn
	o.conn = nil
	changed := o.state != StateIdle
	o.state = StateIdle
	o.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	if changed {
		o.notify(StateIdle)
	}
}

func (o *Observer) dial(gen int) {
	hdr := http.Header{}
	if o.token != "" {
		hdr.Set("Authorization", "Bearer "+o.token)
	}
	conn, _, err := websocket.DefaultDialer.Dial(o.url, hdr)

	o.mu.Lock()
	if gen != o.gen || o.state != StateConnecting {
		o.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		return
	}
	if err != nil {
		o.mu.Unlock()
		o.report(fmt.Errorf("dial %s: %w", o.url, err))
		o.scheduleRetry(gen)
		return
	}
	o.conn = conn
	o.attempts = 0
	o.state = StateOpen
	o.mu.Unlock()
	o.notify(StateOpen)

	// Re-subscribe on every open; the server keeps no membership across
	// connections.
	sub, _ := json.Marshal(protocol.Subscribe(o.sessionID))
	if err := conn.WriteMessage(websocket.TextMessage, sub); err != nil {
		o.lost(conn, gen, fmt.Errorf("subscribe: %w", err))
		return
	}

	go o.readLoop(conn, gen)
}

func (o *Observer) readLoop(conn *websocket.Conn, gen int) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			o.lost(conn, gen, err)
			return
		}

		msg, err := protocol.Decode(data)
		if err != nil {
			// Soft failure: drop the frame, keep the connection.
			o.report(err)
			continue
		}

		o.mu.Lock()
		stale := gen != o.gen
		h := o.handler
		o.mu.Unlock()
		if stale {
			return
		}
		if h != nil {
			h(msg)
		}
	}
}

// lost handles a transport failure on conn. Stale connections (superseded by
// a newer Connect or ended by Disconnect) are closed quietly.
func (o *Observer) lost(conn *websocket.Conn, gen int, err error) {
	o.mu.Lock()
	if gen != o.gen {
		o.mu.Unlock()
		conn.Close()
		return
	}
	o.conn = nil
	o.mu.Unlock()

	conn.Close()
	o.report(err)
	o.scheduleRetry(gen)
}

func (o *Observer) scheduleRetry(gen int) {
	o.mu.Lock()
	if gen != o.gen {
		o.mu.Unlock()
		return
	}
	o.attempts++
	if o.attempts >= o.maxAttempts {
		o.state = StateGivenUp
		o.mu.Unlock()
		o.notify(StateGivenUp)
		return
	}

	delay := o.backoff(o.attempts)
	o.state = StateRetryWait
	o.mu.Unlock()

	// Notify before arming the timer so a short backoff cannot deliver the
	// next connecting transition ahead of this one.
	o.notify(StateRetryWait)

	o.mu.Lock()
	if gen != o.gen || o.state != StateRetryWait {
		o.mu.Unlock()
		return
	}
	o.retryTimer = time.AfterFunc(delay, func() {
		o.mu.Lock()
		if gen != o.gen || o.state != StateRetryWait {
			o.mu.Unlock()
			return
		}
		o.retryTimer = nil
		o.state = StateConnecting
		o.mu.Unlock()
		o.notify(StateConnecting)
		o.dial(gen)
	})
	o.mu.Unlock()
}

// backoff returns the delay before retry attempt n (1-based): base doubled
// per attempt, capped at maxDelay.
func (o *Observer) backoff(n int) time.Duration {
	d := o.baseDelay
	for i := 1; i < n; i++ {
		d *= 2
		if d >= o.maxDelay {
			return o.maxDelay
		}
	}
	if d > o.maxDelay {
		return o.maxDelay
	}
	return d
}

func (o *Observer) notify(s State) {
	if o.onState != nil {
		o.onState(s)
	}
}

func (o *Observer) report(err error) {
	if o.errSink != nil {
		o.errSink(err)
		return
	}
	log.Printf("observer: %v", err)
}
