package shared

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ProcessedLookup answers whether a client-generated entry id has already
// completed processing. The authoritative insert happens inside the same
// transaction as the ledger mutation it guards (see the points and cards
// repositories); this read path exists so the batch reconciler can
// short-circuit replays without re-running business logic.
type ProcessedLookup struct {
	pool *pgxpool.Pool
}

// NewProcessedLookup constructs the lookup.
func NewProcessedLookup(pool *pgxpool.Pool) *ProcessedLookup {
	return &ProcessedLookup{pool: pool}
}

// Contains reports whether entryID is recorded as processed.
func (s *ProcessedLookup) Contains(ctx context.Context, entryID string) (bool, error) {
	if s == nil {
		return false, errors.New("processed lookup not initialised")
	}
	if entryID == "" {
		return false, errors.New("entry id required")
	}
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM processed_entries WHERE entry_id = $1)`, entryID).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

// Cleanup removes processed records older than retention. Safe to run only
// when clients can no longer resubmit ids of that age.
func (s *ProcessedLookup) Cleanup(ctx context.Context, olderThan time.Duration) error {
	if s == nil {
		return nil
	}
	cutoff := time.Now().Add(-olderThan)
	_, err := s.pool.Exec(ctx, `DELETE FROM processed_entries WHERE created_at < $1`, cutoff)
	return err
}
