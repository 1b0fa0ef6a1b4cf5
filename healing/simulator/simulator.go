// Package simulator runs a command monitor against a synthetic grid.
// The simulator plays both the grid, moving jobs through their phases, and
// the workflow engine, carrying out the status changes the monitor requests.
// Time is simulated, a run of several hours takes milliseconds.
package simulator

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	uuid "github.com/nu7hatch/gouuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/virtual-imaging-platform/GASW-Healing-Plugin/common/stats"
	"github.com/virtual-imaging-platform/GASW-Healing-Plugin/healing/config"
	"github.com/virtual-imaging-platform/GASW-Healing-Plugin/healing/domain"
	"github.com/virtual-imaging-platform/GASW-Healing-Plugin/healing/server"
	"github.com/virtual-imaging-platform/GASW-Healing-Plugin/healing/store/memory"
)

// Config variables read at initialization
// Command - command string shared by every simulated job.
//
// Invocations - number of invocations submitted at the start of the run.
//
// Durations - nominal duration of setup, input transfer, execution and upload.
//
// Jitter - each duration is drawn uniformly within +/- Jitter of its nominal value.
//
// StragglerFraction - share of invocations whose first job runs its execution
//
//	StragglerFactor times slower. Replicas always run at nominal speed.
//
// ErrorFraction - share of invocations whose first job fails at the end of its execution.
//
// Tick - simulated time between two rounds, the monitor steps once per round.
//
// MaxDuration - simulated time after which the run gives up.
type Config struct {
	Command           string
	Invocations       int
	Durations         [domain.NumBoundaries]time.Duration
	Jitter            float64
	StragglerFraction float64
	StragglerFactor   float64
	ErrorFraction     float64
	Tick              time.Duration
	MaxDuration       time.Duration
	Seed              int64
}

func DefaultConfig() Config {
	return Config{
		Command:           "simulated-command",
		Invocations:       100,
		Durations:         [domain.NumBoundaries]time.Duration{30 * time.Second, time.Minute, 10 * time.Minute, time.Minute},
		Jitter:            0.1,
		StragglerFraction: 0.05,
		StragglerFactor:   10,
		ErrorFraction:     0,
		Tick:              config.DefaultSleepTime,
		MaxDuration:       24 * time.Hour,
		Seed:              1,
	}
}

func (c Config) Validate() error {
	if c.Command == "" {
		return errors.New("command is required")
	}
	if c.Invocations < 1 {
		return errors.New("invocations must be >= 1")
	}
	for i, d := range c.Durations {
		if d <= 0 {
			return errors.Errorf("%s duration must be positive", domain.Boundary(i))
		}
	}
	if c.Jitter < 0 || c.Jitter >= 1 {
		return errors.New("jitter must be in [0, 1)")
	}
	if c.StragglerFraction < 0 || c.ErrorFraction < 0 || c.StragglerFraction+c.ErrorFraction > 1 {
		return errors.New("straggler and error fractions must be >= 0 and add up to at most 1")
	}
	if c.StragglerFactor < 1 {
		return errors.New("straggler factor must be >= 1")
	}
	if c.Tick <= 0 || c.MaxDuration < c.Tick {
		return errors.New("tick must be positive and at most the max duration")
	}
	return nil
}

func (c Config) String() string {
	return fmt.Sprintf("simulator.Config: Command: %s, Invocations: %d, Durations: %v, Jitter: %g, "+
		"StragglerFraction: %g, StragglerFactor: %g, ErrorFraction: %g, Tick: %s, MaxDuration: %s, Seed: %d",
		c.Command, c.Invocations, c.Durations, c.Jitter, c.StragglerFraction, c.StragglerFactor,
		c.ErrorFraction, c.Tick, c.MaxDuration, c.Seed)
}

// Summary describes how a run ended.
// ReplicasKilled counts KILL_REPLICA requests carried out, SiblingsCancelled the
// replicas the engine cancelled because another replica of their invocation completed.
type Summary struct {
	Invocations       int           `json:"invocations"`
	Completed         int           `json:"completed"`
	Failed            int           `json:"failed"`
	Unfinished        int           `json:"unfinished"`
	ReplicasSpawned   int           `json:"replicasSpawned"`
	ReplicasKilled    int           `json:"replicasKilled"`
	SiblingsCancelled int           `json:"siblingsCancelled"`
	JobsKilled        int           `json:"jobsKilled"`
	Aborted           bool          `json:"aborted"`
	Elapsed           time.Duration `json:"elapsed"`
}

func (s Summary) String() string {
	return fmt.Sprintf("Summary: Invocations: %d, Completed: %d, Failed: %d, Unfinished: %d, ReplicasSpawned: %d, "+
		"ReplicasKilled: %d, SiblingsCancelled: %d, JobsKilled: %d, Aborted: %t, Elapsed: %s",
		s.Invocations, s.Completed, s.Failed, s.Unfinished, s.ReplicasSpawned, s.ReplicasKilled,
		s.SiblingsCancelled, s.JobsKilled, s.Aborted, s.Elapsed)
}

// plan is the fate of one job, drawn when it is submitted: the date each
// phase will be reached, and the phase at which it fails, if any.
type plan struct {
	dates   [domain.NumBoundaries + 1]time.Time
	reached domain.Phase
	failAt  domain.Phase
}

type invocation struct {
	done bool
}

// Simulator owns an in-memory store, a registry in debug mode and a manual clock.
type Simulator struct {
	config   Config
	clock    *stats.ManualTime
	store    *memory.Store
	registry *server.Registry
	listener *server.Listener
	stat     stats.StatsReceiver
	rand     *rand.Rand

	plans       map[string]*plan
	invocations map[string]*invocation
	order       []string
	summary     Summary
	start       time.Time
}

// New creates a simulator whose monitor uses policy. Metrics of both the
// monitor and the simulator are reported to stat, which may be nil.
func New(cfg Config, policy config.HealingPolicy, stat stats.StatsReceiver) (*Simulator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if stat == nil {
		stat = stats.NilStatsReceiver()
	}
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := stats.NewManualTime(start)
	st := memory.NewStore()
	registry := server.NewRegistry(st, st, policy, stat, server.RegistryConfiguration{
		DebugMode: true,
		Time:      clock,
	})
	return &Simulator{
		config:      cfg,
		clock:       clock,
		store:       st,
		registry:    registry,
		listener:    server.NewListener(registry, st),
		stat:        stat.Scope("simulator"),
		rand:        rand.New(rand.NewSource(cfg.Seed)),
		plans:       make(map[string]*plan),
		invocations: make(map[string]*invocation),
		start:       start,
	}, nil
}

// Registry exposes the monitors, for admin endpoints.
func (s *Simulator) Registry() *server.Registry {
	return s.registry
}

// Store exposes the jobs and checkpoints of the run.
func (s *Simulator) Store() *memory.Store {
	return s.store
}

// Run submits every invocation and plays rounds until all of them completed or
// failed, MaxDuration elapsed, or ctx is cancelled.
func (s *Simulator) Run(ctx context.Context) (Summary, error) {
	log.Info(s.config)
	s.listener.Load()
	defer s.listener.Terminate()

	if err := s.submitAll(ctx); err != nil {
		return s.summary, err
	}

	for s.pending() > 0 && s.clock.Since(s.start) < s.config.MaxDuration {
		if err := ctx.Err(); err != nil {
			return s.finish(), err
		}
		s.clock.Advance(s.config.Tick)
		if err := s.advance(ctx); err != nil {
			return s.finish(), err
		}
		if m, ok := s.registry.Get(s.config.Command); ok && !m.Stopped() {
			m.Step(ctx)
		}
		s.engine(ctx)
		if err := s.settle(ctx); err != nil {
			return s.finish(), err
		}
	}
	return s.finish(), nil
}

func (s *Simulator) finish() Summary {
	s.summary.Unfinished = s.pending()
	s.summary.Elapsed = s.clock.Since(s.start)
	if m, ok := s.registry.Get(s.config.Command); ok {
		s.summary.Aborted = m.Aborting()
	}
	log.Info(s.summary)
	return s.summary
}

func (s *Simulator) pending() int {
	n := 0
	for _, inv := range s.invocations {
		if !inv.done {
			n++
		}
	}
	return n
}

// submitAll picks which invocations straggle or fail, then submits one job each.
func (s *Simulator) submitAll(ctx context.Context) error {
	n := s.config.Invocations
	stragglers := int(math.Round(s.config.StragglerFraction * float64(n)))
	failures := int(math.Round(s.config.ErrorFraction * float64(n)))
	if stragglers+failures > n {
		failures = n - stragglers
	}
	fate := make([]int, n) // 0 nominal, 1 straggler, 2 failure
	for i, idx := range s.rand.Perm(n) {
		switch {
		case i < stragglers:
			fate[idx] = 1
		case i < stragglers+failures:
			fate[idx] = 2
		}
	}

	for i := 0; i < n; i++ {
		invocationID := fmt.Sprintf("inv-%05d", i)
		s.invocations[invocationID] = &invocation{}
		if err := s.submit(ctx, invocationID, fate[i] == 1, fate[i] == 2); err != nil {
			return err
		}
	}
	s.summary.Invocations = n
	return nil
}

func (s *Simulator) submit(ctx context.Context, invocationID string, straggler, failing bool) error {
	now := s.clock.Now()
	job := &domain.Job{
		ID:           generateJobId(),
		Command:      s.config.Command,
		InvocationID: invocationID,
		Status:       domain.Running,
		Created:      now,
	}
	s.store.AddJob(job)
	s.order = append(s.order, job.ID)
	s.listener.JobSubmitted(job)

	p := &plan{reached: domain.Started, failAt: domain.NoPhase}
	p.dates[0] = now
	for b := 0; b < domain.NumBoundaries; b++ {
		d := s.draw(s.config.Durations[b])
		if straggler && domain.Boundary(b) == domain.Execution {
			d = time.Duration(float64(d) * s.config.StragglerFactor)
		}
		p.dates[b+1] = p.dates[b].Add(d)
	}
	if failing {
		p.failAt = domain.Outputs
	}
	s.plans[job.ID] = p

	cp := domain.PhaseCheckpoint{JobID: job.ID, Phase: domain.Started, Date: now}
	s.store.AddCheckpoint(cp)
	return s.listener.JobMinorStatusReported(ctx, cp)
}

// draw returns nominal spread by the jitter, rounded to the millisecond.
func (s *Simulator) draw(nominal time.Duration) time.Duration {
	f := 1 + s.config.Jitter*(2*s.rand.Float64()-1)
	return time.Duration(float64(nominal) * f).Round(time.Millisecond)
}

// advance writes every checkpoint due by now, in submission order.
func (s *Simulator) advance(ctx context.Context) error {
	now := s.clock.Now()
	for _, jobID := range s.order {
		p, ok := s.plans[jobID]
		if !ok {
			continue
		}
		for p.reached < domain.Finished && !p.dates[p.reached+1].After(now) {
			next := p.reached + 1
			if next == p.failAt {
				s.endJob(jobID, domain.Error)
				break
			}
			p.reached = next
			cp := domain.PhaseCheckpoint{JobID: jobID, Phase: next, Date: p.dates[next]}
			s.store.AddCheckpoint(cp)
			if err := s.listener.JobMinorStatusReported(ctx, cp); err != nil {
				return errors.Wrapf(err, "reporting %s", cp)
			}
			if next == domain.Finished {
				if err := s.complete(ctx, jobID); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// complete marks jobID completed and cancels the other replicas of its invocation.
func (s *Simulator) complete(ctx context.Context, jobID string) error {
	job := s.endJob(jobID, domain.Completed)
	if job == nil {
		return nil
	}
	siblings, err := s.store.GetActiveByInvocation(ctx, job.InvocationID)
	if err != nil {
		return err
	}
	for _, sibling := range siblings {
		if s.endJob(sibling.ID, domain.CancelledReplica) != nil {
			s.summary.SiblingsCancelled++
			s.stat.Counter(stats.SimulatorJobsCancelledCounter).Inc(1)
		}
	}
	return nil
}

// endJob moves a job to a terminal status and forgets its plan.
func (s *Simulator) endJob(jobID string, status domain.Status) *domain.Job {
	delete(s.plans, jobID)
	if err := s.store.SetStatus(jobID, status); err != nil {
		log.WithFields(log.Fields{"jobID": jobID, "err": err}).Error("[Simulator] cannot end job")
		return nil
	}
	job, err := s.store.GetJob(context.Background(), jobID)
	if err != nil {
		return nil
	}
	s.listener.JobStatusChanged(job)
	s.listener.JobFinished(job)
	return job
}

// engine carries out the requests written by the monitor during the round.
func (s *Simulator) engine(ctx context.Context) {
	for _, job := range s.store.Jobs() {
		switch job.Status {
		case domain.Replicate:
			if err := s.store.SetStatus(job.ID, domain.Running); err != nil {
				log.WithFields(log.Fields{"jobID": job.ID, "err": err}).Error("[Simulator] cannot resume job")
				continue
			}
			if err := s.submit(ctx, job.InvocationID, false, false); err != nil {
				log.WithFields(log.Fields{"jobID": job.ID, "err": err}).Error("[Simulator] cannot replicate job")
				continue
			}
			s.summary.ReplicasSpawned++
			s.stat.Counter(stats.SimulatorReplicasSpawnedCounter).Inc(1)
		case domain.KillReplica:
			if s.endJob(job.ID, domain.CancelledReplica) != nil {
				s.summary.ReplicasKilled++
				s.stat.Counter(stats.SimulatorJobsCancelledCounter).Inc(1)
			}
		case domain.Kill:
			if s.endJob(job.ID, domain.Cancelled) != nil {
				s.summary.JobsKilled++
				s.stat.Counter(stats.SimulatorJobsCancelledCounter).Inc(1)
			}
		}
	}
}

// settle closes invocations left without an active job.
func (s *Simulator) settle(ctx context.Context) error {
	for id, inv := range s.invocations {
		if inv.done {
			continue
		}
		active, err := s.store.GetActiveByInvocation(ctx, id)
		if err != nil {
			return err
		}
		if len(active) > 0 {
			continue
		}
		inv.done = true
		completed, err := s.store.GetCompletedByInvocation(ctx, id)
		if err != nil {
			return err
		}
		if len(completed) > 0 {
			s.summary.Completed++
			s.stat.Counter(stats.SimulatorInvocationsCompletedCounter).Inc(1)
		} else {
			s.summary.Failed++
		}
	}
	return nil
}

func generateJobId() string {
	id, err := uuid.NewV4()
	for err != nil {
		id, err = uuid.NewV4()
	}

	return "job-" + id.String()
}
