// Package store defines what the healing monitors need from the persistence
// layer of the workflow engine. Implementations live in sub-packages.
package store

//go:generate mockgen -source=store.go -package=store -destination=store_mock.go

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/virtual-imaging-platform/GASW-Healing-Plugin/healing/domain"
)

// ErrNotFound is returned (possibly wrapped) when a job does not exist.
var ErrNotFound = errors.New("not found")

// IsNotFound unwraps err and reports whether it is ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Cause(err) == ErrNotFound
}

// CommandCounts aggregates the jobs and invocations of one command.
// FailedInvocations counts invocations with at least one failed job.
type CommandCounts struct {
	Jobs              int
	FailedJobs        int
	Invocations       int
	FailedInvocations int
}

// Store reads job state and records status transition requests.
// Jobs returned are copies: mutating them has no effect until Update is called.
type Store interface {
	GetJob(ctx context.Context, jobID string) (*domain.Job, error)

	// RUNNING jobs of a command.
	GetRunningByCommand(ctx context.Context, command string) ([]*domain.Job, error)

	// Jobs of an invocation by status class, oldest first.
	GetActiveByInvocation(ctx context.Context, invocationID string) ([]*domain.Job, error)
	GetFailedByInvocation(ctx context.Context, invocationID string) ([]*domain.Job, error)
	GetCompletedByInvocation(ctx context.Context, invocationID string) ([]*domain.Job, error)

	// Every invocation ID that has at least one job of the command.
	GetInvocationsByCommand(ctx context.Context, command string) ([]string, error)
	GetCommandCounts(ctx context.Context, command string) (CommandCounts, error)

	// Checkpoints of a job ordered by date.
	GetCheckpoints(ctx context.Context, jobID string) ([]domain.PhaseCheckpoint, error)

	// Number of active jobs across all commands.
	CountActive(ctx context.Context) (int, error)

	// Update persists Status, Replicating, BeingKilled, ExitCode and ExitMessage.
	Update(ctx context.Context, job *domain.Job) error

	// Used by polling bridges to replay what happened since a watermark.
	ListJobsSince(ctx context.Context, since time.Time) ([]*domain.Job, error)
	ListCheckpointsSince(ctx context.Context, since time.Time) ([]domain.PhaseCheckpoint, error)
}

// CompletionSink is notified of jobs whose status was settled by the monitor
// rather than by the workflow engine.
type CompletionSink interface {
	JobFinished(ctx context.Context, job *domain.Job) error
}

// NopSink drops every notification.
type NopSink struct{}

func (NopSink) JobFinished(context.Context, *domain.Job) error { return nil }
