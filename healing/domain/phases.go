package domain

import (
	"fmt"
	"time"
)

// Phase is an ordered execution stage reported by a running job.
// Values double as ordinals: a later phase always compares greater.
type Phase int

const (
	NoPhase Phase = iota - 1
	Started
	Inputs      // setup done
	Application // input transfer done
	Outputs     // execution done
	Finished    // upload done
)

// NumBoundaries is the number of measured intervals between consecutive phases.
const NumBoundaries = int(Finished)

var phaseNames = [...]string{"Started", "Inputs", "Application", "Outputs", "Finished"}

func (p Phase) String() string {
	if p < Started || p > Finished {
		return "None"
	}
	return phaseNames[p]
}

// ParsePhase is the inverse of Phase.String.
func ParsePhase(name string) (Phase, error) {
	for i, n := range phaseNames {
		if n == name {
			return Phase(i), nil
		}
	}
	return NoPhase, fmt.Errorf("unknown phase %q", name)
}

// Boundary names the interval a phase closes, ex: Inputs closes Setup.
// Returns -1 for Started and for unknown phases.
func (p Phase) Boundary() Boundary {
	if p <= Started || p > Finished {
		return -1
	}
	return Boundary(p - 1)
}

// Boundary is an interval between two consecutive phases.
type Boundary int

const (
	Setup         Boundary = iota // Started -> Inputs
	InputTransfer                 // Inputs -> Application
	Execution                     // Application -> Outputs
	Upload                        // Outputs -> Finished
)

var boundaryNames = [...]string{"setup", "input", "execution", "upload"}

func (b Boundary) String() string {
	if b < 0 || int(b) >= len(boundaryNames) {
		return "unknown"
	}
	return boundaryNames[b]
}

// Opening returns the phase that starts this boundary.
func (b Boundary) Opening() Phase { return Phase(b) }

// Closing returns the phase that ends this boundary.
func (b Boundary) Closing() Phase { return Phase(b) + 1 }

// PhaseCheckpoint records the moment a job entered a phase.
type PhaseCheckpoint struct {
	JobID string
	Phase Phase
	Date  time.Time
}

func (c PhaseCheckpoint) String() string {
	return fmt.Sprintf("%s:%s@%s", c.JobID, c.Phase, c.Date.Format(time.RFC3339))
}
