// Package phases estimates how long a job will take to complete from the phase
// checkpoints it has reported and the median phase durations of its command.
package phases

import (
	"fmt"
	"sort"
	"time"

	"github.com/virtual-imaging-platform/GASW-Healing-Plugin/healing/domain"
)

// JobPhases is the per-tick view of one replica: what it measured so far and
// when it is expected to complete.
type JobPhases struct {
	Job *domain.Job

	// Measured holds the duration of every boundary the job has closed, and
	// the elapsed time of the boundary in progress. Unstarted boundaries are zero.
	Measured [domain.NumBoundaries]time.Duration

	LastPhase  domain.Phase
	Estimation time.Duration
}

// EstimationMillis is the estimation as used in ratio comparisons.
func (jp *JobPhases) EstimationMillis() int64 {
	return jp.Estimation.Milliseconds()
}

// BetterThan orders replicas: lower estimation wins, ties go to the more advanced one.
func (jp *JobPhases) BetterThan(other *JobPhases) bool {
	if jp.Estimation != other.Estimation {
		return jp.Estimation < other.Estimation
	}
	return jp.LastPhase > other.LastPhase
}

// Ratio divides this estimation by another, on millisecond values.
func (jp *JobPhases) Ratio(d time.Duration) float64 {
	return float64(jp.Estimation.Milliseconds()) / float64(d.Milliseconds())
}

func (jp *JobPhases) String() string {
	return fmt.Sprintf("%s lastPhase:%s estimation:%dms", jp.Job.ID, jp.LastPhase, jp.Estimation.Milliseconds())
}

// Estimate computes the JobPhases of job at time now.
//
// Closed boundaries contribute their measured duration, the boundary in
// progress contributes max(elapsed so far, its median) and later boundaries
// contribute their median. A job without checkpoints is expected to take the
// sum of the medians; a Finished job's estimation is its exact measured total.
func Estimate(job *domain.Job, checkpoints []domain.PhaseCheckpoint, medians Medians, now time.Time) *JobPhases {
	jp := &JobPhases{Job: job, LastPhase: domain.NoPhase}

	ordered := make([]domain.PhaseCheckpoint, len(checkpoints))
	copy(ordered, checkpoints)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Phase < ordered[j].Phase })

	var last time.Time
	for _, cp := range ordered {
		if cp.Phase < domain.Started || cp.Phase > domain.Finished {
			continue
		}
		if b := cp.Phase.Boundary(); b >= 0 && !last.IsZero() {
			jp.Measured[b] = cp.Date.Sub(last)
			jp.Estimation += jp.Measured[b]
		}
		last = cp.Date
		jp.LastPhase = cp.Phase
	}

	if jp.LastPhase == domain.NoPhase {
		jp.Estimation = medians.Sum()
		return jp
	}
	if jp.LastPhase == domain.Finished {
		return jp
	}

	current := domain.Boundary(jp.LastPhase)
	elapsed := now.Sub(last)
	jp.Measured[current] = elapsed
	if elapsed > medians[current] {
		jp.Estimation += elapsed
	} else {
		jp.Estimation += medians[current]
	}
	for b := current + 1; int(b) < domain.NumBoundaries; b++ {
		jp.Estimation += medians[b]
	}
	return jp
}
