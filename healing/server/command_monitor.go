package server

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru"
	log "github.com/sirupsen/logrus"

	"github.com/virtual-imaging-platform/GASW-Healing-Plugin/common/stats"
	"github.com/virtual-imaging-platform/GASW-Healing-Plugin/healing/config"
	"github.com/virtual-imaging-platform/GASW-Healing-Plugin/healing/domain"
	"github.com/virtual-imaging-platform/GASW-Healing-Plugin/healing/phases"
	"github.com/virtual-imaging-platform/GASW-Healing-Plugin/healing/store"
)

// Number of job IDs per command remembered as having reached Finished.
const DefaultFinishedCacheSize = 10000

// CommandMonitor owns the phase samples of one command and periodically
// decides which of its replicas should be replicated or killed.
//
// Samples are recorded concurrently from event callbacks. Decisions are taken
// by a single goroutine started with start(), or by explicit calls to Step when
// the monitor runs in debug mode.
type CommandMonitor struct {
	command string
	store   store.Store
	sink    store.CompletionSink
	stat    stats.StatsReceiver
	clock   stats.StatsTime

	policy  atomic.Pointer[config.HealingPolicy]
	windows [domain.NumBoundaries]*phases.SampleWindow

	// Job IDs known to have a Finished checkpoint. Checkpoints are append-only
	// so positive answers never go stale.
	finished *lru.Cache

	// Only touched from Step.
	lastLogged *phases.Medians

	aborting atomic.Bool
	stopped  atomic.Bool
	running  atomic.Bool

	lifecycleMu sync.Mutex
	cancel      context.CancelFunc
	done        chan struct{}
	onStart     func()
	onStop      func()

	statusMu sync.Mutex
	rates    errorRates
	lastTick time.Time
}

func newCommandMonitor(
	command string,
	st store.Store,
	sink store.CompletionSink,
	policy config.HealingPolicy,
	stat stats.StatsReceiver,
	clock stats.StatsTime,
	finishedCacheSize int,
) *CommandMonitor {
	if sink == nil {
		sink = store.NopSink{}
	}
	if clock == nil {
		clock = stats.DefaultStatsTime()
	}
	if finishedCacheSize <= 0 {
		finishedCacheSize = DefaultFinishedCacheSize
	}
	finished, err := lru.New(finishedCacheSize)
	if err != nil {
		log.Fatalf("Failed to create finished jobs cache: %s", err)
	}

	m := &CommandMonitor{
		command:  command,
		store:    st,
		sink:     sink,
		stat:     stat,
		clock:    clock,
		finished: finished,
		done:     make(chan struct{}),
	}
	m.policy.Store(&policy)
	for i := range m.windows {
		m.windows[i] = phases.NewSampleWindow(policy.SampleWindow)
	}
	return m
}

func (m *CommandMonitor) Command() string {
	return m.command
}

// Policy returns the thresholds the next tick will use.
func (m *CommandMonitor) Policy() config.HealingPolicy {
	return *m.policy.Load()
}

// SetPolicy replaces the thresholds used from the next tick on.
// The size of the sample windows is fixed when the monitor is created.
// Out of range values are replaced by their defaults.
func (m *CommandMonitor) SetPolicy(p config.HealingPolicy) {
	p = sanitized(p)
	m.policy.Store(&p)
}

func (m *CommandMonitor) Aborting() bool {
	return m.aborting.Load()
}

// Stopped is true once Stop was called or the monitor terminated itself.
func (m *CommandMonitor) Stopped() bool {
	return m.stopped.Load()
}

func (m *CommandMonitor) RecordSetup(d time.Duration) {
	m.record(domain.Setup, d)
}

func (m *CommandMonitor) RecordInputTransfer(d time.Duration) {
	m.record(domain.InputTransfer, d)
}

func (m *CommandMonitor) RecordExecution(d time.Duration) {
	m.record(domain.Execution, d)
}

func (m *CommandMonitor) RecordUpload(d time.Duration) {
	m.record(domain.Upload, d)
}

// Record routes d to the boundary closed by phase, ex: Inputs records a setup duration.
// Phases that close no boundary are ignored.
func (m *CommandMonitor) Record(phase domain.Phase, d time.Duration) {
	b := phase.Boundary()
	if b < 0 {
		log.WithFields(log.Fields{"command": m.command, "phase": phase}).Debug("[Healing] phase closes no boundary, ignoring")
		return
	}
	m.record(b, d)
}

func (m *CommandMonitor) record(b domain.Boundary, d time.Duration) {
	if d < 0 {
		log.WithFields(
			log.Fields{
				"command":  m.command,
				"boundary": b,
				"duration": d,
			}).Warn("[Healing] rejecting negative phase duration")
		m.stat.Counter(stats.HealingRejectedSamplesCounter).Inc(1)
		return
	}
	m.windows[b].Add(d)
}

// Medians computes the current median of every boundary.
func (m *CommandMonitor) Medians() phases.Medians {
	var medians phases.Medians
	for i, w := range m.windows {
		medians[i] = w.Median()
	}
	return medians
}

// start runs the polling loop in its own goroutine.
func (m *CommandMonitor) start() {
	m.lifecycleMu.Lock()
	defer m.lifecycleMu.Unlock()
	if m.stopped.Load() || m.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.running.Store(true)
	if m.onStart != nil {
		m.onStart()
	}
	go m.loop(ctx)
}

// Stop asks the loop to exit at its next wake. An in-progress tick always completes.
func (m *CommandMonitor) Stop() {
	m.lifecycleMu.Lock()
	defer m.lifecycleMu.Unlock()
	if m.stopped.Swap(true) {
		return
	}
	if m.cancel != nil {
		m.cancel()
	} else {
		close(m.done)
	}
}

// Wait blocks until the loop exited, or returns immediately for a monitor
// that was never started.
func (m *CommandMonitor) Wait() {
	<-m.done
}

// run the monitor loop until it is stopped.
// we are not putting any logic other than looping in this method so unit tests can verify
// behavior by controlling calls to Step() below
func (m *CommandMonitor) loop(ctx context.Context) {
	defer func() {
		m.running.Store(false)
		if m.onStop != nil {
			m.onStop()
		}
		close(m.done)
	}()

	interval := m.Policy().SleepTime
	ticker := m.clock.NewTicker(interval)
	defer func() { ticker.Stop() }()

	log.WithFields(log.Fields{"command": m.command, "sleepTime": interval}).Info("[Healing] starting command monitor")
	for {
		select {
		case <-ctx.Done():
			log.WithFields(log.Fields{"command": m.command}).Info("[Healing] command monitor stopped")
			return
		case <-ticker.C():
		}
		if m.stopped.Load() {
			return
		}

		// Cancellation is only observed between ticks.
		m.Step(context.WithoutCancel(ctx))

		if p := m.Policy(); p.SleepTime != interval {
			ticker.Stop()
			interval = p.SleepTime
			ticker = m.clock.NewTicker(interval)
		}
	}
}

// Step runs one decision cycle.
func (m *CommandMonitor) Step(ctx context.Context) {
	defer m.stat.Latency(stats.HealingTickLatency_ms).Time().Stop()

	policy := m.Policy()
	medians := m.Medians()
	m.logMediansIfNecessary(medians, policy)

	if m.canReplicate(medians, policy) {
		m.replicateJobs(ctx, medians, policy)
	}
	m.guardErrorRate(ctx, policy)

	m.statusMu.Lock()
	m.lastTick = m.clock.Now()
	m.statusMu.Unlock()
}

func (m *CommandMonitor) logMediansIfNecessary(medians phases.Medians, policy config.HealingPolicy) {
	if m.lastLogged != nil && !medians.ChangedBy(*m.lastLogged, policy.StatsChangePercentage) {
		return
	}
	m.lastLogged = &medians
	log.WithFields(log.Fields{"command": m.command}).Infof("[Healing] [Logging stats] %s", medians)

	m.stat.Gauge(stats.HealingSetupMedianGauge_ms).Update(medians[domain.Setup].Milliseconds())
	m.stat.Gauge(stats.HealingInputMedianGauge_ms).Update(medians[domain.InputTransfer].Milliseconds())
	m.stat.Gauge(stats.HealingExecutionMedianGauge_ms).Update(medians[domain.Execution].Milliseconds())
	m.stat.Gauge(stats.HealingUploadMedianGauge_ms).Update(medians[domain.Upload].Milliseconds())
}

// canReplicate gates the whole replication pass: baselines must exist and
// an aborting command is never healed.
func (m *CommandMonitor) canReplicate(medians phases.Medians, policy config.HealingPolicy) bool {
	if m.aborting.Load() {
		return false
	}
	if m.windows[domain.Upload].Len() < policy.MinSamples {
		return false
	}
	return medians.Sum().Milliseconds() > 0
}

// MonitorStatus is a point in time view of a monitor, served by the admin endpoint.
type MonitorStatus struct {
	Command             string           `json:"command"`
	Running             bool             `json:"running"`
	Aborting            bool             `json:"aborting"`
	Samples             map[string]int   `json:"samples"`
	MediansMs           map[string]int64 `json:"mediansMs"`
	JobErrorRate        float64          `json:"jobErrorRate"`
	InvocationErrorRate float64          `json:"invocationErrorRate"`
	LastTick            time.Time        `json:"lastTick"`
}

func (m *CommandMonitor) Status() MonitorStatus {
	st := MonitorStatus{
		Command:   m.command,
		Running:   m.running.Load(),
		Aborting:  m.aborting.Load(),
		Samples:   make(map[string]int),
		MediansMs: make(map[string]int64),
	}
	for i, w := range m.windows {
		b := domain.Boundary(i)
		st.Samples[b.String()] = w.Len()
		st.MediansMs[b.String()] = w.Median().Milliseconds()
	}
	m.statusMu.Lock()
	st.JobErrorRate = m.rates.jobs
	st.InvocationErrorRate = m.rates.invocations
	st.LastTick = m.lastTick
	m.statusMu.Unlock()
	return st
}
