package server

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/virtual-imaging-platform/GASW-Healing-Plugin/common/stats"
	"github.com/virtual-imaging-platform/GASW-Healing-Plugin/healing/config"
	"github.com/virtual-imaging-platform/GASW-Healing-Plugin/healing/domain"
	"github.com/virtual-imaging-platform/GASW-Healing-Plugin/healing/store"
)

func Test_ComputeErrorRates(t *testing.T) {
	r := computeErrorRates(store.CommandCounts{Jobs: 10, FailedJobs: 4, Invocations: 8, FailedInvocations: 2})
	assert.Equal(t, 40.0, r.jobs)
	assert.Equal(t, 25.0, r.invocations)

	r = computeErrorRates(store.CommandCounts{})
	assert.Equal(t, 0.0, r.jobs)
	assert.Equal(t, 0.0, r.invocations)
}

func Test_ErrorRates_Exceeds(t *testing.T) {
	p := config.DefaultHealingPolicy()
	counts := store.CommandCounts{Jobs: 200, FailedJobs: 120, Invocations: 100, FailedInvocations: 50}
	r := computeErrorRates(counts)
	assert.True(t, r.exceeds(counts, p), "60%% of failed jobs reaches the default threshold")

	counts.Invocations = 99
	assert.False(t, r.exceeds(counts, p), "below MinInvocations")

	counts = store.CommandCounts{Jobs: 100, FailedJobs: 10, Invocations: 100, FailedInvocations: 100}
	assert.True(t, computeErrorRates(counts).exceeds(counts, p))
}

func Test_ErrorRateGauge(t *testing.T) {
	d := makeMonitorDeps(testPolicy())
	m := d.reg.GetOrCreate(testCommand)
	for i := 0; i < 10; i++ {
		status := domain.Completed
		if i < 4 {
			status = domain.Error
		}
		d.addJob(fmt.Sprintf("job%d", i), fmt.Sprintf("inv%d", i%5), status)
	}

	m.Step(context.Background())
	assert.Equal(t, 40.0, d.stat.GaugeFloat("healing", testCommand, stats.HealingJobErrorRateGauge).Value())
	assert.Equal(t, 80.0, d.stat.GaugeFloat("healing", testCommand, stats.HealingInvocationErrorRateGauge).Value())
	assert.Equal(t, 40.0, m.Status().JobErrorRate)
	assert.False(t, m.Aborting())
}

func Test_AbortingLatchNeverClears(t *testing.T) {
	p := testPolicy()
	p.MinInvocations = 5
	d := makeMonitorDeps(p)
	m := d.reg.GetOrCreate(testCommand)
	for i := 0; i < 5; i++ {
		status := domain.Completed
		if i < 3 {
			status = domain.Error
		}
		d.addJob(fmt.Sprintf("job%d", i), fmt.Sprintf("inv%d", i), status)
	}

	m.Step(context.Background())
	assert.True(t, m.Aborting())
	assert.Equal(t, int64(1), d.stat.Gauge("healing", testCommand, stats.HealingAbortingGauge).Value())

	for i := 5; i < 15; i++ {
		d.addJob(fmt.Sprintf("job%d", i), fmt.Sprintf("inv%d", i), domain.Completed)
	}
	m.Step(context.Background())
	assert.Equal(t, 20.0, m.Status().JobErrorRate)
	assert.True(t, m.Aborting())
}

func Test_AbortAll(t *testing.T) {
	p := testPolicy()
	p.MinInvocations = 1
	p.MaxErrorInvocationPercentage = 50
	d := makeMonitorDeps(p)
	m := d.reg.GetOrCreate(testCommand)

	d.addJob("primary", "inv1", domain.Running)
	d.addJob("replica", "inv1", domain.Running)
	d.addJob("held", "inv2", domain.ErrorHeld)
	d.addJob("done", "inv3", domain.Completed)
	d.addJob("stalled", "inv3", domain.StalledHeld)

	m.Step(context.Background())
	assert.True(t, m.Aborting())

	primary, _ := d.store.GetJob(context.Background(), "primary")
	assert.Equal(t, domain.Kill, primary.Status)
	assert.True(t, primary.BeingKilled)
	assert.Equal(t, domain.KillReplica, d.status(t, "replica"))
	assert.Equal(t, domain.Error, d.status(t, "held"))
	assert.Equal(t, domain.StalledHeld, d.status(t, "stalled"), "invocation has a completed replica")

	finished := d.store.Finished()
	if assert.Len(t, finished, 1) {
		assert.Equal(t, "held", finished[0].ID)
		assert.Equal(t, domain.Error, finished[0].Status)
	}
	assert.Equal(t, int64(1), d.counter(stats.HealingKillRequestsCounter))
	assert.Equal(t, int64(1), d.counter(stats.HealingKillReplicaRequestsCounter))
	assert.Equal(t, int64(1), d.counter(stats.HealingHeldResolvedCounter))
	assert.False(t, m.Stopped(), "kill requests are still active")

	// Requests already written are not repeated.
	updates := len(d.store.Updates())
	m.Step(context.Background())
	assert.Len(t, d.store.Updates(), updates)
	assert.False(t, m.Stopped())

	// The engine carries the kills out.
	assert.NoError(t, d.store.SetStatus("primary", domain.Cancelled))
	assert.NoError(t, d.store.SetStatus("replica", domain.CancelledReplica))
	m.Step(context.Background())
	assert.True(t, m.Stopped())
	m.Wait()

	// Stays registered.
	again := d.reg.GetOrCreate(testCommand)
	assert.Same(t, m, again)
}

func Test_AbortingSkipsReplication(t *testing.T) {
	p := testPolicy()
	p.MinInvocations = 1
	p.MaxErrorJobPercentage = 10
	d := makeMonitorDeps(p)
	m := d.reg.GetOrCreate(testCommand)
	m.aborting.Store(true)

	assert.False(t, m.canReplicate(m.Medians(), p))
}
