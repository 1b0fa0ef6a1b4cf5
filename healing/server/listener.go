package server

import (
	"context"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/virtual-imaging-platform/GASW-Healing-Plugin/healing/domain"
	"github.com/virtual-imaging-platform/GASW-Healing-Plugin/healing/store"
)

// Listener receives job lifecycle notifications from the workflow engine
// and feeds them to the registry.
type Listener struct {
	registry *Registry
	store    store.Store
}

func NewListener(registry *Registry, st store.Store) *Listener {
	return &Listener{registry: registry, store: st}
}

func (l *Listener) Load() {
	log.Infof("[Healing] Loading self-healing listener, %s", l.registry.Policy())
}

func (l *Listener) JobSubmitted(job *domain.Job) {
	l.registry.JobSubmitted(job.Command, job.ID)
}

// JobMinorStatusReported makes sure the job's command is monitored, then
// measures the boundary closed by cp from the job's stored checkpoints and
// records it. Started closes no boundary and records nothing.
func (l *Listener) JobMinorStatusReported(ctx context.Context, cp domain.PhaseCheckpoint) error {
	log.WithFields(log.Fields{"jobID": cp.JobID, "phase": cp.Phase}).Debug("[Healing] Minor Status Reported")
	m, err := l.registry.MonitorOf(ctx, cp.JobID)
	if err != nil {
		return err
	}
	b := cp.Phase.Boundary()
	if b < 0 {
		return nil
	}

	checkpoints, err := l.store.GetCheckpoints(ctx, cp.JobID)
	if err != nil {
		return errors.Wrapf(err, "reading checkpoints of job %s", cp.JobID)
	}
	opening, found := domain.PhaseCheckpoint{}, false
	for _, c := range checkpoints {
		if c.Phase == b.Opening() && !c.Date.After(cp.Date) {
			opening, found = c, true
		}
	}
	if !found {
		log.WithFields(log.Fields{"jobID": cp.JobID, "phase": cp.Phase}).Warn("[Healing] no checkpoint opening this phase, not recording")
		return nil
	}
	d := cp.Date.Sub(opening.Date)
	log.WithFields(
		log.Fields{
			"command":  m.command,
			"jobID":    cp.JobID,
			"phase":    cp.Phase,
			"duration": d,
		}).Debug("[Healing] phase reported")
	m.Record(cp.Phase, d)
	return nil
}

func (l *Listener) JobStatusChanged(job *domain.Job) {
	log.WithFields(log.Fields{"jobID": job.ID, "status": job.Status}).Debug("[Healing] job status changed")
}

func (l *Listener) JobFinished(job *domain.Job) {
	log.WithFields(log.Fields{"jobID": job.ID, "status": job.Status}).Debug("[Healing] job finished")
}

// Terminate stops every command monitor.
func (l *Listener) Terminate() {
	l.registry.Shutdown()
}
