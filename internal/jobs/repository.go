package jobs

import "context"

// Repository persists job definitions and run history. Schema and
// storage engine are a collaborator concern outside this package's
// scope (spec.md §1 non-goals).
type Repository interface {
	UpsertDefinition(ctx context.Context, d Definition) error
	RecordRunStart(ctx context.Context, r Run) error
	RecordRunFinish(ctx context.Context, r Run) error
	// RecentRuns returns the limit most recent runs for jobID, newest
	// first, used to derive health and consecutive-failure counts.
	RecentRuns(ctx context.Context, jobID string, limit int) ([]Run, error)
}
