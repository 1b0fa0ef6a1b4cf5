package server

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/virtual-imaging-platform/GASW-Healing-Plugin/common/log/hooks"
	"github.com/virtual-imaging-platform/GASW-Healing-Plugin/common/stats"
	"github.com/virtual-imaging-platform/GASW-Healing-Plugin/healing/config"
	"github.com/virtual-imaging-platform/GASW-Healing-Plugin/healing/domain"
	"github.com/virtual-imaging-platform/GASW-Healing-Plugin/healing/store"
)

// Used to get proper logging from tests...
func init() {
	if loglevel := os.Getenv("HEALING_LOGLEVEL"); loglevel != "" {
		level, err := log.ParseLevel(loglevel)
		if err != nil {
			log.Error(err)
			return
		}
		log.SetLevel(level)
		log.AddHook(hooks.NewContextHook())
	} else {
		// keep test output short
		log.SetLevel(log.ErrorLevel)
	}
}

// RegistryConfiguration variables read at initialization
// DebugMode - if true, monitors are created but their loops are not started,
//
//	decision cycles only run on explicit calls to CommandMonitor.Step.
//
// FinishedCacheSize - per monitor capacity of the Finished jobs cache.
//
// Time - clock and ticker source, the stdlib when nil.
type RegistryConfiguration struct {
	DebugMode         bool
	FinishedCacheSize int
	Time              stats.StatsTime
}

func (rc RegistryConfiguration) String() string {
	return fmt.Sprintf("RegistryConfiguration: DebugMode: %t, FinishedCacheSize: %d", rc.DebugMode, rc.FinishedCacheSize)
}

// Registry maps each command to its single CommandMonitor.
// Monitors are created on first sight of a command and stay registered until
// Shutdown, including monitors that stopped themselves, so a command is never
// monitored twice.
type Registry struct {
	store  store.Store
	sink   store.CompletionSink
	stat   stats.StatsReceiver
	config RegistryConfiguration

	policy   atomic.Pointer[config.HealingPolicy]
	monitors sync.Map // command -> *CommandMonitor
	running  atomic.Int64
	shutdown atomic.Bool
}

func NewRegistry(
	st store.Store,
	sink store.CompletionSink,
	policy config.HealingPolicy,
	stat stats.StatsReceiver,
	cfg RegistryConfiguration,
) *Registry {
	if stat == nil {
		stat = stats.NilStatsReceiver()
	}
	r := &Registry{
		store:  st,
		sink:   sink,
		stat:   stat.Scope("healing"),
		config: cfg,
	}
	policy = sanitized(policy)
	r.policy.Store(&policy)
	log.Info(cfg)
	log.Info(policy)
	return r
}

// sanitized replaces out of range values by their defaults and logs each replaced key.
func sanitized(policy config.HealingPolicy) config.HealingPolicy {
	policy, fixed := policy.Sanitized()
	for _, key := range fixed {
		log.WithFields(log.Fields{"key": key}).Warn("[Healing] invalid policy value, using default")
	}
	return policy
}

// Policy returns the policy given to monitors created from now on.
func (r *Registry) Policy() config.HealingPolicy {
	return *r.policy.Load()
}

// Get returns the monitor of command, if any.
func (r *Registry) Get(command string) (*CommandMonitor, bool) {
	if v, ok := r.monitors.Load(command); ok {
		return v.(*CommandMonitor), true
	}
	return nil, false
}

// GetOrCreate returns the monitor of command, creating and starting it on first sight.
// Concurrent first sights of a command all get the same monitor.
func (r *Registry) GetOrCreate(command string) *CommandMonitor {
	if m, ok := r.Get(command); ok {
		return m
	}

	m := newCommandMonitor(command, r.store, r.sink, r.Policy(), r.stat.Scope(command), r.config.Time, r.config.FinishedCacheSize)
	m.onStart = func() { r.stat.Gauge(stats.HealingMonitorsRunningGauge).Update(r.running.Add(1)) }
	m.onStop = func() { r.stat.Gauge(stats.HealingMonitorsRunningGauge).Update(r.running.Add(-1)) }

	actual, loaded := r.monitors.LoadOrStore(command, m)
	if loaded {
		return actual.(*CommandMonitor)
	}

	log.WithFields(log.Fields{"command": command}).Info("[Healing] new command monitor")
	r.stat.Counter(stats.HealingMonitorsCreatedCounter).Inc(1)
	if r.shutdown.Load() {
		m.Stop()
	} else if !r.config.DebugMode {
		m.start()
	}
	return m
}

// JobSubmitted makes sure command is monitored.
func (r *Registry) JobSubmitted(command, jobID string) {
	log.WithFields(log.Fields{"command": command, "jobID": jobID}).Debug("[Healing] job submitted")
	r.GetOrCreate(command)
}

// PhaseReported records d, the time jobID spent reaching phase from the previous
// one, in the samples of the job's command.
func (r *Registry) PhaseReported(ctx context.Context, jobID string, phase domain.Phase, d time.Duration) error {
	m, err := r.MonitorOf(ctx, jobID)
	if err != nil {
		return err
	}
	log.WithFields(
		log.Fields{
			"command":  m.command,
			"jobID":    jobID,
			"phase":    phase,
			"duration": d,
		}).Debug("[Healing] phase reported")
	m.Record(phase, d)
	return nil
}

// MonitorOf returns the monitor of jobID's command, creating it if needed.
func (r *Registry) MonitorOf(ctx context.Context, jobID string) (*CommandMonitor, error) {
	job, err := r.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, errors.Wrapf(err, "looking up command of job %s", jobID)
	}
	return r.GetOrCreate(job.Command), nil
}

// Reload pushes policy to every monitor, and to monitors created later.
func (r *Registry) Reload(policy config.HealingPolicy) {
	policy = sanitized(policy)
	r.policy.Store(&policy)
	r.monitors.Range(func(_, v interface{}) bool {
		v.(*CommandMonitor).SetPolicy(policy)
		return true
	})
	log.Infof("[Healing] reloaded %s", policy)
}

// Monitors returns the status of every registered monitor, ordered by command.
func (r *Registry) Monitors() []MonitorStatus {
	var out []MonitorStatus
	r.monitors.Range(func(_, v interface{}) bool {
		out = append(out, v.(*CommandMonitor).Status())
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Command < out[j].Command })
	return out
}

// Shutdown stops every monitor and waits for their loops to exit.
// In-progress decision cycles complete first.
func (r *Registry) Shutdown() {
	if r.shutdown.Swap(true) {
		return
	}
	var monitors []*CommandMonitor
	r.monitors.Range(func(_, v interface{}) bool {
		m := v.(*CommandMonitor)
		m.Stop()
		monitors = append(monitors, m)
		return true
	})
	for _, m := range monitors {
		m.Wait()
	}
	log.Infof("[Healing] stopped %d command monitors", len(monitors))
}
