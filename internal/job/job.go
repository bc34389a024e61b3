package job

import (
	"encoding/json"
	"time"
)

// Status is the lifecycle state of a job or of a single step.
type Status int

const (
	Pending Status = iota
	Running
	Completed
	Failed
)

var statusNames = map[Status]string{
	Pending:   "pending",
	Running:   "running",
	Completed: "completed",
	Failed:    "failed",
}

var statusFromName = map[string]Status{
	"pending":   Pending,
	"running":   Running,
	"completed": Completed,
	"failed":    Failed,
}

func (s Status) String() string {
	if n, ok := statusNames[s]; ok {
		return n
	}
	return "unknown"
}

// ParseStatus maps a status name to its Status. Unknown names map to Pending,
// which keeps a reader polling rather than treating bad data as terminal.
func ParseStatus(name string) Status {
	if s, ok := statusFromName[name]; ok {
		return s
	}
	return Pending
}

func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Status) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	if v, ok := statusFromName[name]; ok {
		*s = v
	}
	return nil
}

// IsTerminal reports whether no further transitions are expected.
func (s Status) IsTerminal() bool {
	return s == Completed || s == Failed
}

// Step is one browser action inside a job. Steps carry no sequence number;
// ordering is delivery order on the wire and row order in the store.
type Step struct {
	Description string    `json:"description"`
	Status      Status    `json:"status"`
	DurationMs  int64     `json:"durationMs,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// Record is the authoritative snapshot of a job. The realtime channel never
// holds job state of its own; everything durable derives from this record.
type Record struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	TargetURL  string    `json:"targetUrl,omitempty"`
	Status     Status    `json:"status"`
	Result     string    `json:"result,omitempty"`
	Error      string    `json:"error,omitempty"`
	DurationMs int64     `json:"durationMs,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	Steps      []Step    `json:"steps,omitempty"`
}
