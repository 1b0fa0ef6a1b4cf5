package server

import (
	"context"
	"sort"

	log "github.com/sirupsen/logrus"

	"github.com/virtual-imaging-platform/GASW-Healing-Plugin/common/stats"
	"github.com/virtual-imaging-platform/GASW-Healing-Plugin/healing/config"
	"github.com/virtual-imaging-platform/GASW-Healing-Plugin/healing/domain"
	"github.com/virtual-imaging-platform/GASW-Healing-Plugin/healing/phases"
)

// replicateJobs evaluates every invocation of the command that has a running job.
// A store failure abandons only the invocation it happened in.
func (m *CommandMonitor) replicateJobs(ctx context.Context, medians phases.Medians, policy config.HealingPolicy) {
	running, err := m.store.GetRunningByCommand(ctx, m.command)
	if err != nil {
		m.storeError(err, log.Fields{"op": "GetRunningByCommand"})
		return
	}

	invocations := make([]string, 0, len(running))
	seen := make(map[string]bool)
	for _, job := range running {
		if !seen[job.InvocationID] {
			seen[job.InvocationID] = true
			invocations = append(invocations, job.InvocationID)
		}
	}
	sort.Strings(invocations)

	for _, invocationID := range invocations {
		m.healInvocation(ctx, invocationID, medians, policy)
	}
}

func (m *CommandMonitor) healInvocation(ctx context.Context, invocationID string, medians phases.Medians, policy config.HealingPolicy) {
	active, err := m.store.GetActiveByInvocation(ctx, invocationID)
	if err != nil {
		m.storeError(err, log.Fields{"op": "GetActiveByInvocation", "invocation": invocationID})
		return
	}
	failed, err := m.store.GetFailedByInvocation(ctx, invocationID)
	if err != nil {
		m.storeError(err, log.Fields{"op": "GetFailedByInvocation", "invocation": invocationID})
		return
	}

	if !canHeal(active, failed) {
		m.skipInvocation(invocationID)
		return
	}

	now := m.clock.Now()
	estimations := make([]*phases.JobPhases, 0, len(active))
	for _, job := range active {
		if m.finished.Contains(job.ID) {
			m.skipInvocation(invocationID)
			return
		}
		checkpoints, err := m.store.GetCheckpoints(ctx, job.ID)
		if err != nil {
			m.storeError(err, log.Fields{"op": "GetCheckpoints", "invocation": invocationID, "jobID": job.ID})
			return
		}
		if hasFinished(checkpoints) {
			m.finished.Add(job.ID, struct{}{})
			m.skipInvocation(invocationID)
			return
		}
		estimations = append(estimations, phases.Estimate(job, checkpoints, medians, now))
	}
	if len(estimations) == 0 {
		return
	}

	best := estimations[0]
	for _, jp := range estimations[1:] {
		if jp.BetterThan(best) {
			best = jp
		}
	}

	for _, jp := range estimations {
		if jp == best {
			continue
		}
		m.killReplicaIfNecessary(ctx, jp, best, policy)
	}

	sum := medians.Sum()
	if len(active) < policy.MaxReplicas &&
		len(failed) < policy.RetryCount &&
		best.Ratio(sum) >= policy.BlockedCoefficient {
		log.WithFields(
			log.Fields{
				"command":    m.command,
				"invocation": invocationID,
				"jobID":      best.Job.ID,
				"estimation": best.EstimationMillis(),
				"medianSum":  sum.Milliseconds(),
			}).Info("[Healing] Replicating")
		if m.requestStatus(ctx, best.Job, domain.Replicate) {
			m.stat.Counter(stats.HealingReplicateRequestsCounter).Inc(1)
		}
	}
}

// killReplicaIfNecessary kills jp when a replica at least as advanced is
// expected to finish BlockedCoefficient times sooner.
func (m *CommandMonitor) killReplicaIfNecessary(ctx context.Context, jp, best *phases.JobPhases, policy config.HealingPolicy) {
	if jp.LastPhase > best.LastPhase {
		return
	}
	if best.EstimationMillis() <= 0 {
		return
	}
	if jp.Ratio(best.Estimation) < policy.BlockedCoefficient {
		return
	}
	log.WithFields(
		log.Fields{
			"command":        m.command,
			"invocation":     jp.Job.InvocationID,
			"jobID":          jp.Job.ID,
			"bestJobID":      best.Job.ID,
			"lastPhase":      jp.LastPhase,
			"bestLastPhase":  best.LastPhase,
			"estimation":     jp.EstimationMillis(),
			"bestEstimation": best.EstimationMillis(),
		}).Info("[Healing] Killing replica")
	if m.requestStatus(ctx, jp.Job, domain.KillReplica) {
		m.stat.Counter(stats.HealingKillReplicaRequestsCounter).Inc(1)
	}
}

// canHeal is false while any replica is in a state the workflow engine has not
// settled yet: replicating or not running. A replica Finished according to its
// checkpoints while its status lags behind is caught once they are read.
func canHeal(active, failed []*domain.Job) bool {
	for _, job := range active {
		if job.Replicating || job.Status != domain.Running {
			return false
		}
	}
	for _, job := range failed {
		if job.Replicating {
			return false
		}
	}
	return true
}

func hasFinished(checkpoints []domain.PhaseCheckpoint) bool {
	for _, cp := range checkpoints {
		if cp.Phase == domain.Finished {
			return true
		}
	}
	return false
}

func (m *CommandMonitor) skipInvocation(invocationID string) {
	log.WithFields(log.Fields{"command": m.command, "invocation": invocationID}).Debug("[Healing] replicas in transition, skipping invocation")
	m.stat.Counter(stats.HealingInvocationsSkippedCounter).Inc(1)
}

// requestStatus writes a transition request for job. A job already in the
// requested status or in a terminal status is left untouched.
// Returns true if the request was written.
func (m *CommandMonitor) requestStatus(ctx context.Context, job *domain.Job, status domain.Status) bool {
	if job.Status == status || job.Status.IsTerminal() {
		return false
	}
	update := job.Copy()
	update.Status = status
	if status == domain.Kill {
		update.BeingKilled = true
	}
	if err := m.store.Update(ctx, update); err != nil {
		m.storeError(err, log.Fields{"op": "Update", "jobID": job.ID, "status": status})
		return false
	}
	job.Status = update.Status
	job.BeingKilled = update.BeingKilled
	return true
}

func (m *CommandMonitor) storeError(err error, fields log.Fields) {
	fields["command"] = m.command
	fields["err"] = err
	log.WithFields(fields).Error("[Healing] store error")
	m.stat.Counter(stats.HealingStoreErrorsCounter).Inc(1)
}
