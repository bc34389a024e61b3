package ws

import (
	"github.com/sandeepprukmani-maker/jobstream/internal/job"
	"github.com/sandeepprukmani-maker/jobstream/internal/protocol"
)

// Dispatcher is the adapter between the job executor and the registry.
// It does no buffering and no retry: delivery is at-most-once, best-effort,
// and durability stays with the job store.
type Dispatcher struct {
	reg *Registry
}

func NewDispatcher(reg *Registry) *Dispatcher {
	return &Dispatcher{reg: reg}
}

func (d *Dispatcher) JobStarted(sessionID, jobID string) {
	d.reg.Broadcast(sessionID, protocol.JobStarted(jobID))
}

func (d *Dispatcher) Step(sessionID, jobID string, step job.Step) {
	d.reg.Broadcast(sessionID, protocol.StepUpdate(jobID, step))
}

func (d *Dispatcher) JobCompleted(sessionID, jobID string, success bool, result, errMsg string) {
	d.reg.Broadcast(sessionID, protocol.JobCompleted(jobID, success, result, errMsg))
}
