package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"reflect"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/virtual-imaging-platform/GASW-Healing-Plugin/healing/domain"
	"github.com/virtual-imaging-platform/GASW-Healing-Plugin/healing/store"
)

var created = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

var jobColumnNames = []string{"id", "command", "invocation_id", "status", "replicating", "being_killed", "exit_code", "exit_message", "creation"}

// Status lists are bound as text arrays by pgx, pass them through untouched.
type arrayConverter struct{}

func (arrayConverter) ConvertValue(v interface{}) (driver.Value, error) {
	if names, ok := v.([]string); ok {
		return names, nil
	}
	return driver.DefaultParameterConverter.ConvertValue(v)
}

// statuses matches a status list argument.
type statuses []string

func (s statuses) Match(v driver.Value) bool {
	return reflect.DeepEqual([]string(s), v)
}

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New(sqlmock.ValueConverterOption(arrayConverter{}))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return NewStore(db), mock
}

func jobRows() *sqlmock.Rows {
	return sqlmock.NewRows(jobColumnNames)
}

func TestGetJobScansColumns(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT ` + jobColumns + ` FROM jobs WHERE id = $1`)).
		WithArgs("j1").
		WillReturnRows(jobRows().AddRow("j1", "/bin/recon-all", "inv1", "KILL_REPLICA", true, false, 3, "oops", created))

	job, err := s.GetJob(context.Background(), "j1")
	assert.NoError(t, err)
	assert.Equal(t, &domain.Job{
		ID:           "j1",
		Command:      "/bin/recon-all",
		InvocationID: "inv1",
		Status:       domain.KillReplica,
		Replicating:  true,
		ExitCode:     3,
		ExitMessage:  "oops",
		Created:      created,
	}, job)
}

func TestGetJobNotFound(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta(`FROM jobs WHERE id = $1`)).WithArgs("missing").WillReturnRows(jobRows())

	_, err := s.GetJob(context.Background(), "missing")
	assert.True(t, store.IsNotFound(err))
}

func TestGetJobUnknownStatus(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta(`FROM jobs WHERE id = $1`)).
		WithArgs("j1").
		WillReturnRows(jobRows().AddRow("j1", "c", "inv1", "FINISHED", false, false, 0, "", created))

	_, err := s.GetJob(context.Background(), "j1")
	assert.Error(t, err)
	assert.False(t, store.IsNotFound(err))
}

func TestGetRunningByCommand(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta(`FROM jobs WHERE command = $1 AND status = $2 ORDER BY creation, id`)).
		WithArgs("/bin/recon-all", "RUNNING").
		WillReturnRows(jobRows().
			AddRow("j1", "/bin/recon-all", "inv1", "RUNNING", false, false, 0, "", created).
			AddRow("j2", "/bin/recon-all", "inv2", "RUNNING", false, false, 0, "", created.Add(time.Second)))

	jobs, err := s.GetRunningByCommand(context.Background(), "/bin/recon-all")
	assert.NoError(t, err)
	if assert.Len(t, jobs, 2) {
		assert.Equal(t, "j1", jobs[0].ID)
		assert.Equal(t, "inv2", jobs[1].InvocationID)
		assert.Equal(t, domain.Running, jobs[1].Status)
	}
}

func TestByInvocationStatusLists(t *testing.T) {
	s, mock := newMockStore(t)
	query := regexp.QuoteMeta(`FROM jobs WHERE invocation_id = $1 AND status = ANY($2) ORDER BY creation, id`)
	mock.ExpectQuery(query).WithArgs("inv1", statuses(activeStatuses)).
		WillReturnRows(jobRows().AddRow("j1", "c", "inv1", "QUEUED", false, false, 0, "", created))
	mock.ExpectQuery(query).WithArgs("inv1", statuses(failedStatuses)).
		WillReturnRows(jobRows().AddRow("j2", "c", "inv1", "STALLED_HELD", true, false, 1, "", created))
	mock.ExpectQuery(query).WithArgs("inv1", statuses{"COMPLETED"}).WillReturnRows(jobRows())

	ctx := context.Background()
	active, err := s.GetActiveByInvocation(ctx, "inv1")
	assert.NoError(t, err)
	if assert.Len(t, active, 1) {
		assert.Equal(t, domain.Queued, active[0].Status)
	}
	failed, err := s.GetFailedByInvocation(ctx, "inv1")
	assert.NoError(t, err)
	if assert.Len(t, failed, 1) {
		assert.Equal(t, domain.StalledHeld, failed[0].Status)
		assert.True(t, failed[0].Replicating)
	}
	completed, err := s.GetCompletedByInvocation(ctx, "inv1")
	assert.NoError(t, err)
	assert.Empty(t, completed)
}

func TestQueryErrorIsWrapped(t *testing.T) {
	s, mock := newMockStore(t)
	boom := errors.New("connection reset")
	mock.ExpectQuery(regexp.QuoteMeta(`FROM jobs WHERE command = $1`)).WillReturnError(boom)

	_, err := s.GetRunningByCommand(context.Background(), "c")
	assert.True(t, errors.Is(err, boom))
}

func TestGetInvocationsByCommand(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT DISTINCT invocation_id FROM jobs WHERE command = $1 ORDER BY invocation_id`)).
		WithArgs("c").
		WillReturnRows(sqlmock.NewRows([]string{"invocation_id"}).AddRow("inv1").AddRow("inv2"))

	ids, err := s.GetInvocationsByCommand(context.Background(), "c")
	assert.NoError(t, err)
	assert.Equal(t, []string{"inv1", "inv2"}, ids)
}

func TestGetCommandCounts(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta(`COUNT(*) FILTER (WHERE status = ANY($2))`)).
		WithArgs("c", statuses(failedStatuses)).
		WillReturnRows(sqlmock.NewRows([]string{"jobs", "failed", "invocations", "failed_invocations"}).AddRow(10, 4, 5, 2))

	counts, err := s.GetCommandCounts(context.Background(), "c")
	assert.NoError(t, err)
	assert.Equal(t, store.CommandCounts{Jobs: 10, FailedJobs: 4, Invocations: 5, FailedInvocations: 2}, counts)
}

func TestCountActive(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM jobs WHERE status = ANY($1)`)).
		WithArgs(statuses(activeStatuses)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

	n, err := s.CountActive(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 7, n)
}

func TestCheckpointQueries(t *testing.T) {
	s, mock := newMockStore(t)
	columns := []string{"job_id", "phase", "event_date"}
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT job_id, phase, event_date FROM job_minor_status WHERE job_id = $1 ORDER BY event_date, id`)).
		WithArgs("j1").
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow("j1", 0, created).
			AddRow("j1", 2, created.Add(time.Minute)))
	mock.ExpectQuery(regexp.QuoteMeta(`FROM job_minor_status WHERE event_date > $1 ORDER BY event_date, id`)).
		WithArgs(created).
		WillReturnRows(sqlmock.NewRows(columns).AddRow("j2", 4, created.Add(time.Hour)))

	ctx := context.Background()
	cps, err := s.GetCheckpoints(ctx, "j1")
	assert.NoError(t, err)
	assert.Equal(t, []domain.PhaseCheckpoint{
		{JobID: "j1", Phase: domain.Started, Date: created},
		{JobID: "j1", Phase: domain.Application, Date: created.Add(time.Minute)},
	}, cps)

	since, err := s.ListCheckpointsSince(ctx, created)
	assert.NoError(t, err)
	assert.Equal(t, []domain.PhaseCheckpoint{{JobID: "j2", Phase: domain.Finished, Date: created.Add(time.Hour)}}, since)
}

func TestListJobsSince(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta(`FROM jobs WHERE creation > $1 ORDER BY creation, id`)).
		WithArgs(created).
		WillReturnRows(jobRows().AddRow("j3", "c", "inv3", "CREATED", false, false, 0, "", created.Add(time.Second)))

	jobs, err := s.ListJobsSince(context.Background(), created)
	assert.NoError(t, err)
	if assert.Len(t, jobs, 1) {
		assert.Equal(t, domain.Created, jobs[0].Status)
	}
}

func TestUpdateGuardsTerminalStatuses(t *testing.T) {
	s, mock := newMockStore(t)
	update := regexp.QuoteMeta(`WHERE id = $1 AND (status <> ALL($7) OR $2 = ANY($7))`)
	exists := regexp.QuoteMeta(`SELECT EXISTS (SELECT 1 FROM jobs WHERE id = $1)`)
	job := &domain.Job{ID: "j1", Status: domain.Replicate, Replicating: true, ExitCode: 0}

	mock.ExpectExec(update).
		WithArgs("j1", "REPLICATE", true, false, 0, "", statuses(terminalStatuses)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	assert.NoError(t, s.Update(context.Background(), job))

	// Terminal in the database: nothing written, not an error.
	mock.ExpectExec(update).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(exists).WithArgs("j1").WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	assert.NoError(t, s.Update(context.Background(), job))

	mock.ExpectExec(update).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(exists).WithArgs("gone").WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	assert.True(t, store.IsNotFound(s.Update(context.Background(), &domain.Job{ID: "gone", Status: domain.Kill})))
}

func TestWrites(t *testing.T) {
	s, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO jobs (`+jobColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`)).
		WithArgs("j1", "c", "inv1", "RUNNING", false, false, 0, "", created).
		WillReturnResult(sqlmock.NewResult(0, 1))
	assert.NoError(t, s.AddJob(ctx, &domain.Job{ID: "j1", Command: "c", InvocationID: "inv1", Status: domain.Running, Created: created}))

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO job_minor_status (job_id, phase, event_date) VALUES ($1, $2, $3)`)).
		WithArgs("j1", 3, created).
		WillReturnResult(sqlmock.NewResult(1, 1))
	assert.NoError(t, s.AddCheckpoint(ctx, domain.PhaseCheckpoint{JobID: "j1", Phase: domain.Outputs, Date: created}))

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO healing_finished_jobs (job_id, status) VALUES ($1, $2)`)).
		WithArgs("j1", "CANCELLED_REPLICA").
		WillReturnResult(sqlmock.NewResult(1, 1))
	assert.NoError(t, s.JobFinished(ctx, &domain.Job{ID: "j1", Status: domain.CancelledReplica}))

	mock.ExpectExec(regexp.QuoteMeta(`CREATE TABLE IF NOT EXISTS jobs`)).WillReturnError(sql.ErrConnDone)
	assert.True(t, errors.Is(s.EnsureSchema(ctx), sql.ErrConnDone))
}
