package server

import (
	"context"
	"sort"

	log "github.com/sirupsen/logrus"

	"github.com/virtual-imaging-platform/GASW-Healing-Plugin/common/stats"
	"github.com/virtual-imaging-platform/GASW-Healing-Plugin/healing/config"
	"github.com/virtual-imaging-platform/GASW-Healing-Plugin/healing/domain"
	"github.com/virtual-imaging-platform/GASW-Healing-Plugin/healing/store"
)

// errorRates are percentages in [0, 100].
type errorRates struct {
	jobs        float64 // failed jobs over all jobs
	invocations float64 // invocations with at least one failed job over all invocations
}

func computeErrorRates(c store.CommandCounts) errorRates {
	var r errorRates
	if c.Jobs > 0 {
		r.jobs = 100 * float64(c.FailedJobs) / float64(c.Jobs)
	}
	if c.Invocations > 0 {
		r.invocations = 100 * float64(c.FailedInvocations) / float64(c.Invocations)
	}
	return r
}

// exceeds reports whether the sample is large enough and either rate reached its threshold.
func (r errorRates) exceeds(c store.CommandCounts, policy config.HealingPolicy) bool {
	if c.Invocations < policy.MinInvocations {
		return false
	}
	return r.jobs >= policy.MaxErrorJobPercentage || r.invocations >= policy.MaxErrorInvocationPercentage
}

// guardErrorRate recomputes the error rates of the command and, once they
// crossed the policy thresholds, aborts all of the command's work on every tick.
// The aborting state is never cleared.
func (m *CommandMonitor) guardErrorRate(ctx context.Context, policy config.HealingPolicy) {
	counts, err := m.store.GetCommandCounts(ctx, m.command)
	if err != nil {
		m.storeError(err, log.Fields{"op": "GetCommandCounts"})
	} else {
		rates := computeErrorRates(counts)
		m.statusMu.Lock()
		m.rates = rates
		m.statusMu.Unlock()
		m.stat.GaugeFloat(stats.HealingJobErrorRateGauge).Update(rates.jobs)
		m.stat.GaugeFloat(stats.HealingInvocationErrorRateGauge).Update(rates.invocations)

		if !m.aborting.Load() && rates.exceeds(counts, policy) {
			log.WithFields(
				log.Fields{
					"command":             m.command,
					"jobs":                counts.Jobs,
					"failedJobs":          counts.FailedJobs,
					"invocations":         counts.Invocations,
					"failedInvocations":   counts.FailedInvocations,
					"jobErrorRate":        rates.jobs,
					"invocationErrorRate": rates.invocations,
				}).Warn("[Healing] error rate too high, aborting all jobs of command")
			m.aborting.Store(true)
			m.stat.Gauge(stats.HealingAbortingGauge).Update(1)
		}
	}

	if m.aborting.Load() {
		m.abortAll(ctx)
	}
}

// abortAll kills every active replica of the command and settles held jobs
// of invocations that have nothing left running. When no job is active
// anywhere the monitor stops itself.
func (m *CommandMonitor) abortAll(ctx context.Context) {
	invocations, err := m.store.GetInvocationsByCommand(ctx, m.command)
	if err != nil {
		m.storeError(err, log.Fields{"op": "GetInvocationsByCommand"})
	} else {
		sort.Strings(invocations)
		for _, invocationID := range invocations {
			m.abortInvocation(ctx, invocationID)
		}
	}

	active, err := m.store.CountActive(ctx)
	if err != nil {
		m.storeError(err, log.Fields{"op": "CountActive"})
		return
	}
	if active == 0 {
		log.WithFields(log.Fields{"command": m.command}).Info("[Healing] no active job left, stopping command monitor")
		m.Stop()
	}
}

func (m *CommandMonitor) abortInvocation(ctx context.Context, invocationID string) {
	active, err := m.store.GetActiveByInvocation(ctx, invocationID)
	if err != nil {
		m.storeError(err, log.Fields{"op": "GetActiveByInvocation", "invocation": invocationID})
		return
	}
	for i, job := range active {
		status, counter := domain.KillReplica, stats.HealingKillReplicaRequestsCounter
		if i == 0 {
			status, counter = domain.Kill, stats.HealingKillRequestsCounter
		}
		if m.requestStatus(ctx, job, status) {
			log.WithFields(log.Fields{"command": m.command, "invocation": invocationID, "jobID": job.ID, "status": status}).
				Info("[Healing] aborting job")
			m.stat.Counter(counter).Inc(1)
		}
	}
	if len(active) > 0 {
		return
	}

	completed, err := m.store.GetCompletedByInvocation(ctx, invocationID)
	if err != nil {
		m.storeError(err, log.Fields{"op": "GetCompletedByInvocation", "invocation": invocationID})
		return
	}
	if len(completed) > 0 {
		return
	}

	failed, err := m.store.GetFailedByInvocation(ctx, invocationID)
	if err != nil {
		m.storeError(err, log.Fields{"op": "GetFailedByInvocation", "invocation": invocationID})
		return
	}
	for _, job := range failed {
		if job.Status.IsHeld() {
			m.resolveHeld(ctx, job)
		}
	}
}

// resolveHeld moves a held job to its terminal status and reports it finished,
// so workflow engines waiting on it can make progress.
func (m *CommandMonitor) resolveHeld(ctx context.Context, job *domain.Job) {
	update := job.Copy()
	update.Status = job.Status.Resolved()
	fields := log.Fields{"command": m.command, "invocation": job.InvocationID, "jobID": job.ID, "status": update.Status}
	if err := m.store.Update(ctx, update); err != nil {
		m.storeError(err, log.Fields{"op": "Update", "invocation": job.InvocationID, "jobID": job.ID})
		return
	}
	log.WithFields(fields).Info("[Healing] resolving held job")
	m.stat.Counter(stats.HealingHeldResolvedCounter).Inc(1)
	if err := m.sink.JobFinished(ctx, update); err != nil {
		fields["err"] = err
		log.WithFields(fields).Error("[Healing] failed to report resolved job as finished")
	}
}
