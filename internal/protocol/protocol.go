// Package protocol defines the tagged frame set exchanged on the realtime
// channel. The set is closed: producers go through the constructors below,
// consumers dispatch on Type and treat anything else as a soft error.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/sandeepprukmani-maker/jobstream/internal/job"
)

type Type string

const (
	// Inbound (observer → server).
	TypeSubscribe Type = "subscribe"

	// Outbound (server → observer).
	TypeJobStarted   Type = "job_started"
	TypeStep         Type = "step"
	TypeJobCompleted Type = "job_completed"
	TypeError        Type = "error"
)

// Message is one frame. Which fields are meaningful depends on Type; receivers
// must switch on the tag, never on field presence.
type Message struct {
	Type Type `json:"type"`

	// subscribe
	SessionID string `json:"sessionId,omitempty"`

	// job_started, step, job_completed
	JobID string `json:"jobId,omitempty"`

	// step
	Step *job.Step `json:"step,omitempty"`

	// job_completed
	Success *bool  `json:"success,omitempty"`
	Result  string `json:"result,omitempty"`
	Error   string `json:"error,omitempty"`

	// error
	Text string `json:"message,omitempty"`
}

// Subscribe builds the control frame an observer sends after connecting.
func Subscribe(sessionID string) Message {
	return Message{Type: TypeSubscribe, SessionID: sessionID}
}

// JobStarted announces that the executor has begun a job.
func JobStarted(jobID string) Message {
	return Message{Type: TypeJobStarted, JobID: jobID}
}

// StepUpdate carries one step of a running job.
func StepUpdate(jobID string, step job.Step) Message {
	return Message{Type: TypeStep, JobID: jobID, Step: &step}
}

// JobCompleted is the terminal frame for a job. At most one per job is
// meaningful; receivers must reconcile duplicates idempotently.
func JobCompleted(jobID string, success bool, result, errMsg string) Message {
	return Message{Type: TypeJobCompleted, JobID: jobID, Success: &success, Result: result, Error: errMsg}
}

// ChannelError reports a non-fatal channel-level error not tied to a job.
func ChannelError(text string) Message {
	return Message{Type: TypeError, Text: text}
}

// Succeeded reports the success flag of a job_completed frame.
func (m Message) Succeeded() bool {
	return m.Success != nil && *m.Success
}

// Decode parses one frame. A frame that is not JSON or carries no known tag
// is rejected; callers drop such frames and keep the connection open.
func Decode(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, fmt.Errorf("malformed frame: %w", err)
	}
	switch m.Type {
	case TypeSubscribe, TypeJobStarted, TypeStep, TypeJobCompleted, TypeError:
		return m, nil
	default:
		return Message{}, fmt.Errorf("unknown frame type %q", m.Type)
	}
}
