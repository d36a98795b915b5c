package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"
)

// RetentionDaemon periodically purges stored events older than
// RetentionDays and emits an AuditRetentionRun event summarizing each
// run.
type RetentionDaemon struct {
	pipeline      *Pipeline
	store         Store
	retentionDays int
	interval      time.Duration
	clock         clockwork.Clock
	log           *log.Entry
}

func NewRetentionDaemon(pipeline *Pipeline, store Store, retentionDays int, interval time.Duration, clock clockwork.Clock) *RetentionDaemon {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &RetentionDaemon{
		pipeline:      pipeline,
		store:         store,
		retentionDays: retentionDays,
		interval:      interval,
		clock:         clock,
		log:           log.WithField("component", "audit.retention"),
	}
}

// Run executes retention passes on interval until ctx is done.
func (d *RetentionDaemon) Run(ctx context.Context) {
	ticker := d.clock.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if err := d.RunOnce(ctx); err != nil {
				d.log.WithError(err).Warn("audit retention run failed")
			}
		}
	}
}

// RunOnce executes a single retention pass immediately.
func (d *RetentionDaemon) RunOnce(ctx context.Context) error {
	cutoff := d.clock.Now().UTC().AddDate(0, 0, -d.retentionDays)
	deleted, err := d.store.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return err
	}

	details, _ := json.Marshal(map[string]any{"deleted": deleted, "cutoff": cutoff})
	event := NewEvent(d.clock.Now().UTC(), EventAuditRetentionRun, "retention_run")
	event.Details = details
	return d.pipeline.Emit(ctx, event)
}
