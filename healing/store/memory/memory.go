// Package memory provides an in-memory implementation of store.Store.
// It DOES NOT durably persist anything, and is meant for tests and the simulator.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/virtual-imaging-platform/GASW-Healing-Plugin/healing/domain"
	"github.com/virtual-imaging-platform/GASW-Healing-Plugin/healing/store"
)

type jobRecord struct {
	job *domain.Job
	seq int
}

// Store keeps jobs, checkpoints and finished notifications in maps guarded by a
// single RWMutex. It implements both store.Store and store.CompletionSink.
type Store struct {
	mutex       sync.RWMutex
	jobs        map[string]*jobRecord
	checkpoints map[string][]domain.PhaseCheckpoint
	finished    []*domain.Job
	updates     []*domain.Job
	seq         int

	// Optional hooks for tests to inject failures, called with the lock released.
	FailOn func(method, key string) error
}

func NewStore() *Store {
	return &Store{
		jobs:        make(map[string]*jobRecord),
		checkpoints: make(map[string][]domain.PhaseCheckpoint),
	}
}

// AddJob inserts or replaces a job, as the workflow engine would on submission.
func (s *Store) AddJob(job *domain.Job) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if rec, ok := s.jobs[job.ID]; ok {
		rec.job = job.Copy()
		return
	}
	s.seq++
	s.jobs[job.ID] = &jobRecord{job: job.Copy(), seq: s.seq}
}

// SetStatus changes a job's status as the workflow engine would, bypassing Update's no-op rules.
func (s *Store) SetStatus(jobID string, status domain.Status) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	rec, ok := s.jobs[jobID]
	if !ok {
		return errors.Wrapf(store.ErrNotFound, "job %s", jobID)
	}
	rec.job.Status = status
	return nil
}

// AddCheckpoint appends a phase checkpoint to a job.
func (s *Store) AddCheckpoint(cp domain.PhaseCheckpoint) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	cps := append(s.checkpoints[cp.JobID], cp)
	sort.SliceStable(cps, func(i, j int) bool { return cps[i].Date.Before(cps[j].Date) })
	s.checkpoints[cp.JobID] = cps
}

// Finished returns the jobs reported through JobFinished, in order.
func (s *Store) Finished() []*domain.Job {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return copyJobs(s.finished)
}

// Updates returns every job version written through Update, in order.
func (s *Store) Updates() []*domain.Job {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return copyJobs(s.updates)
}

// Jobs returns every job, in insertion order.
func (s *Store) Jobs() []*domain.Job {
	return s.filter(func(*domain.Job) bool { return true })
}

func (s *Store) fail(method, key string) error {
	if s.FailOn == nil {
		return nil
	}
	return s.FailOn(method, key)
}

func (s *Store) GetJob(ctx context.Context, jobID string) (*domain.Job, error) {
	if err := s.fail("GetJob", jobID); err != nil {
		return nil, err
	}
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	rec, ok := s.jobs[jobID]
	if !ok {
		return nil, errors.Wrapf(store.ErrNotFound, "job %s", jobID)
	}
	return rec.job.Copy(), nil
}

func (s *Store) GetRunningByCommand(ctx context.Context, command string) ([]*domain.Job, error) {
	if err := s.fail("GetRunningByCommand", command); err != nil {
		return nil, err
	}
	return s.filter(func(j *domain.Job) bool {
		return j.Command == command && j.Status == domain.Running
	}), nil
}

func (s *Store) GetActiveByInvocation(ctx context.Context, invocationID string) ([]*domain.Job, error) {
	if err := s.fail("GetActiveByInvocation", invocationID); err != nil {
		return nil, err
	}
	return s.filter(func(j *domain.Job) bool {
		return j.InvocationID == invocationID && j.Status.IsActive()
	}), nil
}

func (s *Store) GetFailedByInvocation(ctx context.Context, invocationID string) ([]*domain.Job, error) {
	if err := s.fail("GetFailedByInvocation", invocationID); err != nil {
		return nil, err
	}
	return s.filter(func(j *domain.Job) bool {
		return j.InvocationID == invocationID && j.Status.IsFailed()
	}), nil
}

func (s *Store) GetCompletedByInvocation(ctx context.Context, invocationID string) ([]*domain.Job, error) {
	if err := s.fail("GetCompletedByInvocation", invocationID); err != nil {
		return nil, err
	}
	return s.filter(func(j *domain.Job) bool {
		return j.InvocationID == invocationID && j.Status == domain.Completed
	}), nil
}

func (s *Store) GetInvocationsByCommand(ctx context.Context, command string) ([]string, error) {
	if err := s.fail("GetInvocationsByCommand", command); err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var ids []string
	for _, j := range s.filter(func(j *domain.Job) bool { return j.Command == command }) {
		if !seen[j.InvocationID] {
			seen[j.InvocationID] = true
			ids = append(ids, j.InvocationID)
		}
	}
	return ids, nil
}

func (s *Store) GetCommandCounts(ctx context.Context, command string) (store.CommandCounts, error) {
	if err := s.fail("GetCommandCounts", command); err != nil {
		return store.CommandCounts{}, err
	}
	var counts store.CommandCounts
	failedByInvocation := make(map[string]bool)
	for _, j := range s.filter(func(j *domain.Job) bool { return j.Command == command }) {
		counts.Jobs++
		failed := j.Status.IsFailed()
		if failed {
			counts.FailedJobs++
		}
		failedByInvocation[j.InvocationID] = failedByInvocation[j.InvocationID] || failed
	}
	counts.Invocations = len(failedByInvocation)
	for _, failed := range failedByInvocation {
		if failed {
			counts.FailedInvocations++
		}
	}
	return counts, nil
}

func (s *Store) GetCheckpoints(ctx context.Context, jobID string) ([]domain.PhaseCheckpoint, error) {
	if err := s.fail("GetCheckpoints", jobID); err != nil {
		return nil, err
	}
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	cps := s.checkpoints[jobID]
	out := make([]domain.PhaseCheckpoint, len(cps))
	copy(out, cps)
	return out, nil
}

func (s *Store) CountActive(ctx context.Context) (int, error) {
	if err := s.fail("CountActive", ""); err != nil {
		return 0, err
	}
	return len(s.filter(func(j *domain.Job) bool { return j.Status.IsActive() })), nil
}

// Update writes the mutable fields of job. Requests that would not change the
// stored status or flags, or that target a job already in a terminal status,
// are accepted and ignored.
func (s *Store) Update(ctx context.Context, job *domain.Job) error {
	if err := s.fail("Update", job.ID); err != nil {
		return err
	}
	s.mutex.Lock()
	defer s.mutex.Unlock()
	rec, ok := s.jobs[job.ID]
	if !ok {
		return errors.Wrapf(store.ErrNotFound, "job %s", job.ID)
	}
	cur := rec.job
	if cur.Status.IsTerminal() && cur.Status != job.Status && !job.Status.IsTerminal() {
		return nil
	}
	if cur.Status == job.Status && cur.Replicating == job.Replicating && cur.BeingKilled == job.BeingKilled &&
		cur.ExitCode == job.ExitCode && cur.ExitMessage == job.ExitMessage {
		return nil
	}
	cur.Status = job.Status
	cur.Replicating = job.Replicating
	cur.BeingKilled = job.BeingKilled
	cur.ExitCode = job.ExitCode
	cur.ExitMessage = job.ExitMessage
	s.updates = append(s.updates, cur.Copy())
	return nil
}

func (s *Store) ListJobsSince(ctx context.Context, since time.Time) ([]*domain.Job, error) {
	if err := s.fail("ListJobsSince", ""); err != nil {
		return nil, err
	}
	return s.filter(func(j *domain.Job) bool { return j.Created.After(since) }), nil
}

func (s *Store) ListCheckpointsSince(ctx context.Context, since time.Time) ([]domain.PhaseCheckpoint, error) {
	if err := s.fail("ListCheckpointsSince", ""); err != nil {
		return nil, err
	}
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	var out []domain.PhaseCheckpoint
	for _, cps := range s.checkpoints {
		for _, cp := range cps {
			if cp.Date.After(since) {
				out = append(out, cp)
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

// JobFinished records the notification.
func (s *Store) JobFinished(ctx context.Context, job *domain.Job) error {
	if err := s.fail("JobFinished", job.ID); err != nil {
		return err
	}
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.finished = append(s.finished, job.Copy())
	return nil
}

// filter returns copies of the matching jobs in insertion order.
func (s *Store) filter(match func(*domain.Job) bool) []*domain.Job {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	recs := make([]*jobRecord, 0)
	for _, rec := range s.jobs {
		if match(rec.job) {
			recs = append(recs, rec)
		}
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].seq < recs[j].seq })
	out := make([]*domain.Job, len(recs))
	for i, rec := range recs {
		out[i] = rec.job.Copy()
	}
	return out
}

func copyJobs(jobs []*domain.Job) []*domain.Job {
	out := make([]*domain.Job, len(jobs))
	for i, j := range jobs {
		out[i] = j.Copy()
	}
	return out
}

var _ store.Store = (*Store)(nil)
var _ store.CompletionSink = (*Store)(nil)
