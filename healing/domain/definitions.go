// Package domain provides definitions for grid Jobs, their lifecycle Status and
// the execution Phases reported while they run.
package domain

import (
	"fmt"
	"strings"
	"time"
)

// Job is one execution attempt of an invocation. Several Jobs sharing an
// InvocationID are replicas of the same unit of work.
type Job struct {
	ID           string
	Command      string
	InvocationID string
	Status       Status
	Replicating  bool // a replica is being spawned from this job
	BeingKilled  bool
	ExitCode     int
	ExitMessage  string
	Created      time.Time
}

func (j *Job) String() string {
	return fmt.Sprintf("job:%s, command:%s, invocation:%s, status:%s, replicating:%t, beingKilled:%t",
		j.ID, j.Command, j.InvocationID, j.Status, j.Replicating, j.BeingKilled)
}

// Copy returns a shallow copy so callers can mutate a Job without racing its owner.
func (j *Job) Copy() *Job {
	if j == nil {
		return nil
	}
	c := *j
	return &c
}

// Status of a Job as recorded by the workflow engine.
type Status int

const (
	Created Status = iota
	Queued
	Submitted
	Running
	Completed
	Error
	ErrorHeld
	Stalled
	StalledHeld
	Cancelled
	CancelledReplica
	Deleted

	// Transition requests, acted upon by the workflow engine.
	Replicate
	Kill
	KillReplica
	Reschedule
)

var statusNames = [...]string{
	"CREATED", "QUEUED", "SUCCESSFULLY_SUBMITTED", "RUNNING", "COMPLETED", "ERROR", "ERROR_HELD",
	"STALLED", "STALLED_HELD", "CANCELLED", "CANCELLED_REPLICA", "DELETED", "REPLICATE", "KILL",
	"KILL_REPLICA", "RESCHEDULE",
}

func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return fmt.Sprintf("Status(%d)", int(s))
	}
	return statusNames[s]
}

// ParseStatus is the inverse of Status.String.
func ParseStatus(name string) (Status, error) {
	name = strings.ToUpper(strings.TrimSpace(name))
	for i, n := range statusNames {
		if n == name {
			return Status(i), nil
		}
	}
	return 0, fmt.Errorf("unknown job status %q", name)
}

// IsActive is true for jobs that are still queued, running or waiting for a
// transition request to be carried out.
func (s Status) IsActive() bool {
	switch s {
	case Created, Queued, Submitted, Running, Replicate, Kill, KillReplica, Reschedule:
		return true
	}
	return false
}

// IsFailed is true for jobs that ended, or are parked, in an error state.
func (s Status) IsFailed() bool {
	switch s {
	case Error, ErrorHeld, Stalled, StalledHeld:
		return true
	}
	return false
}

// IsHeld is true for failed jobs paused by the engine awaiting a decision.
func (s Status) IsHeld() bool {
	return s == ErrorHeld || s == StalledHeld
}

// Resolved maps a held status to the terminal status it settles into.
// Any other status is returned unchanged.
func (s Status) Resolved() Status {
	switch s {
	case ErrorHeld:
		return Error
	case StalledHeld:
		return Stalled
	}
	return s
}

// IsTerminal is true once no further transition will be applied to the job.
func (s Status) IsTerminal() bool {
	switch s {
	case Completed, Error, Stalled, Cancelled, CancelledReplica, Deleted:
		return true
	}
	return false
}
