package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	"github.com/virtual-imaging-platform/GASW-Healing-Plugin/healing/domain"
	"github.com/virtual-imaging-platform/GASW-Healing-Plugin/healing/store"
)

// DB is the subset of *sql.DB the store uses.
type DB interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Schema creates the tables the store reads and writes when they do not exist.
// Statuses are stored by name and phases by ordinal.
const Schema = `
CREATE TABLE IF NOT EXISTS jobs (
	id            TEXT PRIMARY KEY,
	command       TEXT NOT NULL,
	invocation_id TEXT NOT NULL,
	status        TEXT NOT NULL,
	replicating   BOOLEAN NOT NULL DEFAULT FALSE,
	being_killed  BOOLEAN NOT NULL DEFAULT FALSE,
	exit_code     INTEGER NOT NULL DEFAULT 0,
	exit_message  TEXT NOT NULL DEFAULT '',
	creation      TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS jobs_command_status_idx ON jobs (command, status);
CREATE INDEX IF NOT EXISTS jobs_invocation_idx ON jobs (invocation_id);
CREATE INDEX IF NOT EXISTS jobs_creation_idx ON jobs (creation);

CREATE TABLE IF NOT EXISTS job_minor_status (
	id         BIGSERIAL PRIMARY KEY,
	job_id     TEXT NOT NULL REFERENCES jobs (id),
	phase      INTEGER NOT NULL,
	event_date TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS job_minor_status_job_idx ON job_minor_status (job_id);
CREATE INDEX IF NOT EXISTS job_minor_status_date_idx ON job_minor_status (event_date);

CREATE TABLE IF NOT EXISTS healing_finished_jobs (
	id       BIGSERIAL PRIMARY KEY,
	job_id   TEXT NOT NULL,
	status   TEXT NOT NULL,
	reported TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

const jobColumns = `id, command, invocation_id, status, replicating, being_killed, exit_code, exit_message, creation`

// Store implements store.Store and store.CompletionSink. Finished notifications
// are appended to healing_finished_jobs for the workflow engine to consume.
type Store struct {
	db DB
}

func NewStore(db DB) *Store {
	return &Store{db: db}
}

// EnsureSchema applies Schema.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, Schema)
	return errors.Wrap(err, "creating schema")
}

func (s *Store) GetJob(ctx context.Context, jobID string) (*domain.Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, jobID)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(store.ErrNotFound, "job %s", jobID)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "reading job %s", jobID)
	}
	return job, nil
}

func (s *Store) GetRunningByCommand(ctx context.Context, command string) ([]*domain.Job, error) {
	return s.queryJobs(ctx, `SELECT `+jobColumns+` FROM jobs WHERE command = $1 AND status = $2 ORDER BY creation, id`,
		command, domain.Running.String())
}

func (s *Store) GetActiveByInvocation(ctx context.Context, invocationID string) ([]*domain.Job, error) {
	return s.byInvocation(ctx, invocationID, activeStatuses)
}

func (s *Store) GetFailedByInvocation(ctx context.Context, invocationID string) ([]*domain.Job, error) {
	return s.byInvocation(ctx, invocationID, failedStatuses)
}

func (s *Store) GetCompletedByInvocation(ctx context.Context, invocationID string) ([]*domain.Job, error) {
	return s.byInvocation(ctx, invocationID, []string{domain.Completed.String()})
}

func (s *Store) byInvocation(ctx context.Context, invocationID string, statuses []string) ([]*domain.Job, error) {
	return s.queryJobs(ctx, `SELECT `+jobColumns+` FROM jobs WHERE invocation_id = $1 AND status = ANY($2) ORDER BY creation, id`,
		invocationID, statuses)
}

func (s *Store) GetInvocationsByCommand(ctx context.Context, command string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT invocation_id FROM jobs WHERE command = $1 ORDER BY invocation_id`, command)
	if err != nil {
		return nil, errors.Wrapf(err, "listing invocations of %s", command)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "scanning invocation")
		}
		ids = append(ids, id)
	}
	return ids, errors.Wrap(rows.Err(), "listing invocations")
}

func (s *Store) GetCommandCounts(ctx context.Context, command string) (store.CommandCounts, error) {
	var c store.CommandCounts
	err := s.db.QueryRowContext(ctx, `
SELECT COUNT(*),
       COUNT(*) FILTER (WHERE status = ANY($2)),
       COUNT(DISTINCT invocation_id),
       COUNT(DISTINCT invocation_id) FILTER (WHERE status = ANY($2))
FROM jobs WHERE command = $1`, command, failedStatuses).Scan(&c.Jobs, &c.FailedJobs, &c.Invocations, &c.FailedInvocations)
	return c, errors.Wrapf(err, "counting jobs of %s", command)
}

func (s *Store) GetCheckpoints(ctx context.Context, jobID string) ([]domain.PhaseCheckpoint, error) {
	return s.queryCheckpoints(ctx, `SELECT job_id, phase, event_date FROM job_minor_status WHERE job_id = $1 ORDER BY event_date, id`, jobID)
}

func (s *Store) CountActive(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM jobs WHERE status = ANY($1)`, activeStatuses).Scan(&n)
	return n, errors.Wrap(err, "counting active jobs")
}

// Update leaves jobs in a terminal status untouched unless the new status is terminal too.
func (s *Store) Update(ctx context.Context, job *domain.Job) error {
	res, err := s.db.ExecContext(ctx, `
UPDATE jobs SET status = $2, replicating = $3, being_killed = $4, exit_code = $5, exit_message = $6
WHERE id = $1 AND (status <> ALL($7) OR $2 = ANY($7))`,
		job.ID, job.Status.String(), job.Replicating, job.BeingKilled, job.ExitCode, job.ExitMessage, terminalStatuses)
	if err != nil {
		return errors.Wrapf(err, "updating job %s", job.ID)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		var exists bool
		err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM jobs WHERE id = $1)`, job.ID).Scan(&exists)
		if err != nil {
			return errors.Wrapf(err, "updating job %s", job.ID)
		}
		if !exists {
			return errors.Wrapf(store.ErrNotFound, "job %s", job.ID)
		}
	}
	return nil
}

func (s *Store) ListJobsSince(ctx context.Context, since time.Time) ([]*domain.Job, error) {
	return s.queryJobs(ctx, `SELECT `+jobColumns+` FROM jobs WHERE creation > $1 ORDER BY creation, id`, since)
}

func (s *Store) ListCheckpointsSince(ctx context.Context, since time.Time) ([]domain.PhaseCheckpoint, error) {
	return s.queryCheckpoints(ctx, `SELECT job_id, phase, event_date FROM job_minor_status WHERE event_date > $1 ORDER BY event_date, id`, since)
}

func (s *Store) JobFinished(ctx context.Context, job *domain.Job) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO healing_finished_jobs (job_id, status) VALUES ($1, $2)`, job.ID, job.Status.String())
	return errors.Wrapf(err, "reporting job %s finished", job.ID)
}

// AddJob and AddCheckpoint write what the workflow engine normally writes.
// The simulator and tests use them.
func (s *Store) AddJob(ctx context.Context, job *domain.Job) error {
	created := job.Created
	if created.IsZero() {
		created = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO jobs (`+jobColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		job.ID, job.Command, job.InvocationID, job.Status.String(), job.Replicating, job.BeingKilled,
		job.ExitCode, job.ExitMessage, created.UTC())
	return errors.Wrapf(err, "inserting job %s", job.ID)
}

func (s *Store) AddCheckpoint(ctx context.Context, cp domain.PhaseCheckpoint) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO job_minor_status (job_id, phase, event_date) VALUES ($1, $2, $3)`,
		cp.JobID, int(cp.Phase), cp.Date.UTC())
	return errors.Wrapf(err, "inserting checkpoint %s", cp)
}

func (s *Store) queryJobs(ctx context.Context, query string, args ...any) ([]*domain.Job, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "querying jobs")
	}
	defer rows.Close()
	var jobs []*domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scanning job")
		}
		jobs = append(jobs, job)
	}
	return jobs, errors.Wrap(rows.Err(), "querying jobs")
}

func (s *Store) queryCheckpoints(ctx context.Context, query string, args ...any) ([]domain.PhaseCheckpoint, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "querying checkpoints")
	}
	defer rows.Close()
	var cps []domain.PhaseCheckpoint
	for rows.Next() {
		var cp domain.PhaseCheckpoint
		var phase int
		if err := rows.Scan(&cp.JobID, &phase, &cp.Date); err != nil {
			return nil, errors.Wrap(err, "scanning checkpoint")
		}
		cp.Phase = domain.Phase(phase)
		cps = append(cps, cp)
	}
	return cps, errors.Wrap(rows.Err(), "querying checkpoints")
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (*domain.Job, error) {
	var job domain.Job
	var status string
	if err := row.Scan(&job.ID, &job.Command, &job.InvocationID, &status, &job.Replicating, &job.BeingKilled,
		&job.ExitCode, &job.ExitMessage, &job.Created); err != nil {
		return nil, err
	}
	s, err := domain.ParseStatus(status)
	if err != nil {
		return nil, err
	}
	job.Status = s
	return &job, nil
}

var (
	activeStatuses   = statusNames(domain.Status.IsActive)
	failedStatuses   = statusNames(domain.Status.IsFailed)
	terminalStatuses = statusNames(domain.Status.IsTerminal)
)

// statusNames lists the names of every status matching class.
func statusNames(class func(domain.Status) bool) []string {
	var names []string
	for s := domain.Created; s <= domain.Reschedule; s++ {
		if class(s) {
			names = append(names, s.String())
		}
	}
	return names
}

var _ store.Store = (*Store)(nil)
var _ store.CompletionSink = (*Store)(nil)
