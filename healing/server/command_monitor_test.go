package server

import (
	"context"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/virtual-imaging-platform/GASW-Healing-Plugin/common/stats"
	"github.com/virtual-imaging-platform/GASW-Healing-Plugin/healing/config"
	"github.com/virtual-imaging-platform/GASW-Healing-Plugin/healing/domain"
	"github.com/virtual-imaging-platform/GASW-Healing-Plugin/healing/store"
	"github.com/virtual-imaging-platform/GASW-Healing-Plugin/healing/store/memory"
)

const testCommand = "/bin/recon-all"

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// objects needed to exercise a registry in debug mode
type monitorDeps struct {
	store *memory.Store
	clock *stats.ManualTime
	stat  stats.StatsReceiver
	reg   *Registry
}

func testPolicy() config.HealingPolicy {
	p := config.DefaultHealingPolicy()
	p.SleepTime = time.Second
	return p
}

func makeMonitorDeps(policy config.HealingPolicy) *monitorDeps {
	st := memory.NewStore()
	clock := stats.NewManualTime(t0)
	stat := stats.NewCustomStatsReceiver(stats.NewFinagleStatsRegistry)
	reg := NewRegistry(st, st, policy, stat, RegistryConfiguration{DebugMode: true, Time: clock})
	return &monitorDeps{store: st, clock: clock, stat: stat, reg: reg}
}

func (d *monitorDeps) counter(name string) int64 {
	return d.stat.Counter("healing", testCommand, name).Count()
}

func (d *monitorDeps) addJob(id, invocationID string, status domain.Status) {
	d.store.AddJob(&domain.Job{
		ID:           id,
		Command:      testCommand,
		InvocationID: invocationID,
		Status:       status,
		Created:      t0.Add(-time.Hour),
	})
}

// addCheckpoints records Started at start, then one more phase after each of durations.
func (d *monitorDeps) addCheckpoints(jobID string, start time.Time, durations ...time.Duration) {
	date := start
	d.store.AddCheckpoint(domain.PhaseCheckpoint{JobID: jobID, Phase: domain.Started, Date: date})
	for i, dur := range durations {
		date = date.Add(dur)
		d.store.AddCheckpoint(domain.PhaseCheckpoint{JobID: jobID, Phase: domain.Phase(i + 1), Date: date})
	}
}

// seed gives every boundary two identical samples so medians are exact.
func seed(m *CommandMonitor, setup, input, execution, upload time.Duration) {
	for i := 0; i < 2; i++ {
		m.RecordSetup(setup)
		m.RecordInputTransfer(input)
		m.RecordExecution(execution)
		m.RecordUpload(upload)
	}
}

func (d *monitorDeps) status(t *testing.T, jobID string) domain.Status {
	job, err := d.store.GetJob(context.Background(), jobID)
	assert.NoError(t, err)
	return job.Status
}

func Test_CommandMonitor_Record(t *testing.T) {
	d := makeMonitorDeps(testPolicy())
	m := d.reg.GetOrCreate(testCommand)

	m.Record(domain.Inputs, 4*time.Second)
	m.Record(domain.Application, 6*time.Second)
	m.Record(domain.Outputs, 8*time.Second)
	m.Record(domain.Finished, 10*time.Second)
	m.Record(domain.Started, time.Second)
	m.RecordSetup(-time.Second)

	medians := m.Medians()
	assert.Equal(t, 4*time.Second, medians[domain.Setup])
	assert.Equal(t, 6*time.Second, medians[domain.InputTransfer])
	assert.Equal(t, 8*time.Second, medians[domain.Execution])
	assert.Equal(t, 10*time.Second, medians[domain.Upload])
	assert.Equal(t, int64(1), d.counter(stats.HealingRejectedSamplesCounter))

	st := m.Status()
	assert.Equal(t, 1, st.Samples["setup"])
	assert.Equal(t, int64(10000), st.MediansMs["upload"])
	assert.False(t, st.Running)
}

func Test_CommandMonitor_KillReplicaOnSlowerOnly(t *testing.T) {
	d := makeMonitorDeps(testPolicy())
	m := d.reg.GetOrCreate(testCommand)
	seed(m, 10*time.Second, 10*time.Second, 100*time.Second, 10*time.Second)

	d.addJob("fast", "inv1", domain.Running)
	d.addJob("slow", "inv1", domain.Running)
	// Both only Started: 130s vs 520s estimations.
	d.addCheckpoints("fast", t0.Add(-5*time.Second))
	d.addCheckpoints("slow", t0.Add(-400*time.Second))

	m.Step(context.Background())

	assert.Equal(t, domain.Running, d.status(t, "fast"))
	assert.Equal(t, domain.KillReplica, d.status(t, "slow"))
	assert.Len(t, d.store.Updates(), 1)
	assert.Equal(t, int64(1), d.counter(stats.HealingKillReplicaRequestsCounter))
	assert.Equal(t, int64(0), d.counter(stats.HealingReplicateRequestsCounter))
}

func Test_CommandMonitor_NoKillBelowCoefficient(t *testing.T) {
	d := makeMonitorDeps(testPolicy())
	m := d.reg.GetOrCreate(testCommand)
	seed(m, 10*time.Second, 10*time.Second, 100*time.Second, 10*time.Second)

	d.addJob("a", "inv1", domain.Running)
	d.addJob("b", "inv1", domain.Running)
	// 130s vs 250s, ratio just under 2.
	d.addCheckpoints("a", t0.Add(-5*time.Second))
	d.addCheckpoints("b", t0.Add(-130*time.Second))

	m.Step(context.Background())
	assert.Empty(t, d.store.Updates())
}

func Test_CommandMonitor_NoKillOfMoreAdvancedReplica(t *testing.T) {
	d := makeMonitorDeps(testPolicy())
	m := d.reg.GetOrCreate(testCommand)
	seed(m, 10*time.Second, 10*time.Second, 100*time.Second, 10*time.Second)

	d.addJob("early", "inv1", domain.Running)
	d.addJob("advanced", "inv1", domain.Running)
	d.addCheckpoints("early", t0.Add(-5*time.Second))
	// Setup took 500s and input transfer is 500s in: 1110s, but one phase ahead of the best.
	d.addCheckpoints("advanced", t0.Add(-1000*time.Second), 500*time.Second)

	m.Step(context.Background())
	assert.Empty(t, d.store.Updates())
}

func Test_CommandMonitor_ReplicateSlowSingleJob(t *testing.T) {
	d := makeMonitorDeps(testPolicy())
	m := d.reg.GetOrCreate(testCommand)
	seed(m, 10*time.Second, 20*time.Second, 30*time.Second, 40*time.Second)

	d.addJob("job1", "inv1", domain.Running)
	// Every phase so far took twice its median, upload has been running 80s: 200s against 100s.
	d.addCheckpoints("job1", t0.Add(-200*time.Second), 20*time.Second, 40*time.Second, 60*time.Second)

	m.Step(context.Background())

	assert.Equal(t, domain.Replicate, d.status(t, "job1"))
	assert.Equal(t, int64(1), d.counter(stats.HealingReplicateRequestsCounter))

	// The job is no longer RUNNING, the invocation is skipped until the engine acts.
	m.Step(context.Background())
	assert.Len(t, d.store.Updates(), 1)
}

func Test_CommandMonitor_NoReplicateAtMaxReplicas(t *testing.T) {
	d := makeMonitorDeps(testPolicy())
	m := d.reg.GetOrCreate(testCommand)
	seed(m, 10*time.Second, 10*time.Second, 100*time.Second, 10*time.Second)

	d.addJob("a", "inv1", domain.Running)
	d.addJob("b", "inv1", domain.Running)
	d.addCheckpoints("a", t0.Add(-1000*time.Second))
	d.addCheckpoints("b", t0.Add(-1000*time.Second))

	m.Step(context.Background())
	assert.Empty(t, d.store.Updates())
}

func Test_CommandMonitor_NoReplicateOverRetryBudget(t *testing.T) {
	p := testPolicy()
	p.RetryCount = 1
	d := makeMonitorDeps(p)
	m := d.reg.GetOrCreate(testCommand)
	seed(m, 10*time.Second, 10*time.Second, 100*time.Second, 10*time.Second)

	d.addJob("a", "inv1", domain.Running)
	d.addJob("failed", "inv1", domain.Error)
	d.addCheckpoints("a", t0.Add(-1000*time.Second))

	m.Step(context.Background())
	assert.Equal(t, domain.Running, d.status(t, "a"))
}

func Test_CommandMonitor_NotEnoughUploadSamples(t *testing.T) {
	d := makeMonitorDeps(testPolicy())
	m := d.reg.GetOrCreate(testCommand)
	m.RecordSetup(10 * time.Second)
	m.RecordUpload(10 * time.Second)

	d.addJob("a", "inv1", domain.Running)
	d.addCheckpoints("a", t0.Add(-1000*time.Second))

	m.Step(context.Background())
	assert.Empty(t, d.store.Updates())
}

func Test_CommandMonitor_SkipTransitionalInvocations(t *testing.T) {
	d := makeMonitorDeps(testPolicy())
	m := d.reg.GetOrCreate(testCommand)
	seed(m, 10*time.Second, 10*time.Second, 100*time.Second, 10*time.Second)

	// A queued sibling.
	d.addJob("a", "inv1", domain.Running)
	d.addJob("b", "inv1", domain.Queued)
	d.addCheckpoints("a", t0.Add(-1000*time.Second))

	// A failed replica still replicating.
	d.addJob("c", "inv2", domain.Running)
	d.store.AddJob(&domain.Job{ID: "d", Command: testCommand, InvocationID: "inv2", Status: domain.Error, Replicating: true})
	d.addCheckpoints("c", t0.Add(-1000*time.Second))

	// Finished according to its checkpoints, status not caught up yet.
	d.addJob("e", "inv3", domain.Running)
	d.addCheckpoints("e", t0.Add(-1000*time.Second), 10*time.Second, 10*time.Second, 10*time.Second, 10*time.Second)

	m.Step(context.Background())
	assert.Empty(t, d.store.Updates())
	assert.Equal(t, int64(3), d.counter(stats.HealingInvocationsSkippedCounter))
	assert.True(t, m.finished.Contains("e"))
}

func Test_CommandMonitor_StoreErrorIsolatedPerInvocation(t *testing.T) {
	mockCtrl := gomock.NewController(t)
	defer mockCtrl.Finish()
	st := store.NewMockStore(mockCtrl)

	clock := stats.NewManualTime(t0)
	stat := stats.NewCustomStatsReceiver(stats.NewFinagleStatsRegistry)
	reg := NewRegistry(st, nil, testPolicy(), stat, RegistryConfiguration{DebugMode: true, Time: clock})
	m := reg.GetOrCreate(testCommand)
	seed(m, 10*time.Second, 20*time.Second, 30*time.Second, 40*time.Second)

	j1 := &domain.Job{ID: "j1", Command: testCommand, InvocationID: "inv1", Status: domain.Running}
	j2 := &domain.Job{ID: "j2", Command: testCommand, InvocationID: "inv2", Status: domain.Running}
	start := t0.Add(-200 * time.Second)
	checkpoints := []domain.PhaseCheckpoint{
		{JobID: "j2", Phase: domain.Started, Date: start},
		{JobID: "j2", Phase: domain.Inputs, Date: start.Add(20 * time.Second)},
		{JobID: "j2", Phase: domain.Application, Date: start.Add(60 * time.Second)},
		{JobID: "j2", Phase: domain.Outputs, Date: start.Add(120 * time.Second)},
	}

	st.EXPECT().GetRunningByCommand(gomock.Any(), testCommand).Return([]*domain.Job{j2, j1}, nil)
	st.EXPECT().GetActiveByInvocation(gomock.Any(), "inv1").Return(nil, errors.New("connection reset"))
	st.EXPECT().GetActiveByInvocation(gomock.Any(), "inv2").Return([]*domain.Job{j2.Copy()}, nil)
	st.EXPECT().GetFailedByInvocation(gomock.Any(), "inv2").Return(nil, nil)
	st.EXPECT().GetCheckpoints(gomock.Any(), "j2").Return(checkpoints, nil)
	st.EXPECT().Update(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, job *domain.Job) error {
		assert.Equal(t, "j2", job.ID)
		assert.Equal(t, domain.Replicate, job.Status)
		return nil
	})
	st.EXPECT().GetCommandCounts(gomock.Any(), testCommand).Return(store.CommandCounts{Jobs: 2, Invocations: 2}, nil)

	m.Step(context.Background())

	assert.Equal(t, int64(1), stat.Counter("healing", testCommand, stats.HealingStoreErrorsCounter).Count())
	assert.Equal(t, int64(1), stat.Counter("healing", testCommand, stats.HealingReplicateRequestsCounter).Count())
}

func Test_CommandMonitor_CheckpointErrorAbandonsInvocation(t *testing.T) {
	d := makeMonitorDeps(testPolicy())
	m := d.reg.GetOrCreate(testCommand)
	seed(m, 10*time.Second, 10*time.Second, 100*time.Second, 10*time.Second)

	d.addJob("a", "inv1", domain.Running)
	d.addJob("b", "inv2", domain.Running)
	d.addCheckpoints("a", t0.Add(-1000*time.Second))
	d.addCheckpoints("b", t0.Add(-1000*time.Second))
	d.store.FailOn = func(method, key string) error {
		if method == "GetCheckpoints" && key == "a" {
			return errors.New("timeout")
		}
		return nil
	}

	m.Step(context.Background())
	assert.Equal(t, domain.Running, d.status(t, "a"))
	assert.Equal(t, domain.Replicate, d.status(t, "b"))
	assert.Equal(t, int64(1), d.counter(stats.HealingStoreErrorsCounter))
}

func Test_CommandMonitor_CheckpointsReadOncePerReplica(t *testing.T) {
	d := makeMonitorDeps(testPolicy())
	m := d.reg.GetOrCreate(testCommand)
	seed(m, 10*time.Second, 10*time.Second, 100*time.Second, 10*time.Second)

	d.addJob("a", "inv1", domain.Running)
	d.addJob("b", "inv1", domain.Running)
	d.addCheckpoints("a", t0.Add(-1000*time.Second), 10*time.Second, 10*time.Second)
	d.addCheckpoints("b", t0.Add(-100*time.Second), 10*time.Second, 10*time.Second)
	reads := map[string]int{}
	d.store.FailOn = func(method, key string) error {
		if method == "GetCheckpoints" {
			reads[key]++
		}
		return nil
	}

	m.Step(context.Background())
	assert.Equal(t, map[string]int{"a": 1, "b": 1}, reads)
	assert.Equal(t, domain.KillReplica, d.status(t, "a"))

	// A replica known to be finished is not read again.
	d.store.AddCheckpoint(domain.PhaseCheckpoint{JobID: "b", Phase: domain.Outputs, Date: t0.Add(-30 * time.Second)})
	d.store.AddCheckpoint(domain.PhaseCheckpoint{JobID: "b", Phase: domain.Finished, Date: t0.Add(-20 * time.Second)})
	assert.NoError(t, d.store.SetStatus("a", domain.Running))
	m.Step(context.Background())
	assert.Equal(t, 2, reads["b"])
	assert.True(t, m.finished.Contains("b"))
	m.Step(context.Background())
	assert.Equal(t, 2, reads["b"])
	assert.Equal(t, int64(2), d.counter(stats.HealingInvocationsSkippedCounter))
}

func Test_CommandMonitor_MedianGaugesLoggedOnChange(t *testing.T) {
	d := makeMonitorDeps(testPolicy())
	m := d.reg.GetOrCreate(testCommand)
	gauge := d.stat.Gauge("healing", testCommand, stats.HealingExecutionMedianGauge_ms)

	m.RecordExecution(100 * time.Second)
	m.Step(context.Background())
	assert.Equal(t, int64(100000), gauge.Value())

	// 100s -> 105s is within 10%.
	m.RecordExecution(110 * time.Second)
	m.Step(context.Background())
	assert.Equal(t, int64(100000), gauge.Value())

	// 100s -> 120s is not.
	m.RecordExecution(130 * time.Second)
	m.RecordExecution(140 * time.Second)
	m.Step(context.Background())
	assert.Equal(t, int64(120000), gauge.Value())
}

func Test_CommandMonitor_Loop(t *testing.T) {
	st := memory.NewStore()
	clock := stats.NewManualTime(t0)
	stat := stats.NewCustomStatsReceiver(stats.NewFinagleStatsRegistry)
	reg := NewRegistry(st, st, testPolicy(), stat, RegistryConfiguration{Time: clock})
	d := &monitorDeps{store: st, clock: clock, stat: stat, reg: reg}

	m := reg.GetOrCreate(testCommand)
	seed(m, 10*time.Second, 10*time.Second, 100*time.Second, 10*time.Second)
	d.addJob("fast", "inv1", domain.Running)
	d.addJob("slow", "inv1", domain.Running)
	d.addCheckpoints("fast", t0.Add(-5*time.Second))
	d.addCheckpoints("slow", t0.Add(-400*time.Second))

	assert.Eventually(t, func() bool {
		clock.Tick()
		return len(st.Updates()) == 1
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, domain.KillReplica, d.status(t, "slow"))
	assert.True(t, m.Status().Running)

	reg.Shutdown()
	assert.True(t, m.Stopped())
	assert.False(t, m.Status().Running)
	assert.Equal(t, int64(0), stat.Gauge("healing", stats.HealingMonitorsRunningGauge).Value())
}
