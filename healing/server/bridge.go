package server

import (
	"context"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/virtual-imaging-platform/GASW-Healing-Plugin/common/stats"
	"github.com/virtual-imaging-platform/GASW-Healing-Plugin/healing/store"
)

// Bridge replays jobs and checkpoints written to the store by the workflow
// engine through a Listener, for deployments where the engine cannot call
// the listener directly.
//
// Rows are fetched from watermarks that only move forward, so rows written
// later with a timestamp at or before a watermark are not seen.
type Bridge struct {
	listener *Listener
	store    store.Store
	clock    stats.StatsTime

	jobsSince        time.Time
	checkpointsSince time.Time
}

// NewBridge creates a Bridge replaying everything recorded after since.
func NewBridge(listener *Listener, st store.Store, since time.Time, clock stats.StatsTime) *Bridge {
	if clock == nil {
		clock = stats.DefaultStatsTime()
	}
	return &Bridge{
		listener:         listener,
		store:            st,
		clock:            clock,
		jobsSince:        since,
		checkpointsSince: since,
	}
}

// Run polls every interval until ctx is cancelled. Poll errors are logged and
// retried on the next tick.
func (b *Bridge) Run(ctx context.Context, interval time.Duration) error {
	ticker := b.clock.NewTicker(interval)
	defer ticker.Stop()
	for {
		if err := b.Poll(ctx); err != nil {
			log.WithFields(log.Fields{"err": err}).Error("[Healing] bridge poll failed")
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C():
		}
	}
}

// Poll forwards jobs, then checkpoints, recorded since the previous Poll.
func (b *Bridge) Poll(ctx context.Context) error {
	jobs, err := b.store.ListJobsSince(ctx, b.jobsSince)
	if err != nil {
		return errors.Wrap(err, "listing new jobs")
	}
	for _, job := range jobs {
		b.listener.JobSubmitted(job)
		if job.Created.After(b.jobsSince) {
			b.jobsSince = job.Created
		}
	}

	checkpoints, err := b.store.ListCheckpointsSince(ctx, b.checkpointsSince)
	if err != nil {
		return errors.Wrap(err, "listing new checkpoints")
	}
	for _, cp := range checkpoints {
		if err := b.listener.JobMinorStatusReported(ctx, cp); err != nil {
			// The watermark still moves past a checkpoint that failed.
			log.WithFields(log.Fields{"checkpoint": cp, "err": err}).Error("[Healing] failed to replay checkpoint")
		}
		if cp.Date.After(b.checkpointsSince) {
			b.checkpointsSince = cp.Date
		}
	}
	if len(jobs)+len(checkpoints) > 0 {
		log.WithFields(log.Fields{"jobs": len(jobs), "checkpoints": len(checkpoints)}).Debug("[Healing] bridge replayed")
	}
	return nil
}
