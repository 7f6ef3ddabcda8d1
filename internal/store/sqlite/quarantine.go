package sqlite

import (
	"context"
	"database/sql"
	"time"
)

// RecordFailure increments quarantine.failure_count for signature and
// reports whether it has now reached threshold (§4.5 "three consecutive
// failures... quarantined"). It implements consolidate.QuarantineStore
// structurally, so internal/consolidate never imports this package.
func (s *Store) RecordFailure(ctx context.Context, signature, errMsg string, threshold int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int
	err := s.db.QueryRowContext(ctx, `SELECT failure_count FROM quarantine WHERE cluster_signature = ?`, signature).Scan(&count)
	switch {
	case err == sql.ErrNoRows:
		count = 0
	case err != nil:
		return false, wrapDBError("quarantine read", err)
	}
	count++

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO quarantine (cluster_signature, failure_count, last_error, quarantined_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(cluster_signature) DO UPDATE SET
			failure_count = excluded.failure_count,
			last_error = excluded.last_error,
			quarantined_at = excluded.quarantined_at
	`, signature, count, errMsg, formatTime(time.Now()))
	if err != nil {
		return false, wrapDBError("quarantine write", err)
	}

	return count >= threshold, nil
}

// IsQuarantined reports whether signature has reached threshold consecutive
// failures.
func (s *Store) IsQuarantined(ctx context.Context, signature string, threshold int) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT failure_count FROM quarantine WHERE cluster_signature = ?`, signature).Scan(&count)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, wrapDBError("quarantine check", err)
	}
	return count >= threshold, nil
}

// ClearFailures resets a signature's failure count after a successful
// generalize+write, or after an absorb (the cluster's pattern was already
// known, so it is not a failure).
func (s *Store) ClearFailures(ctx context.Context, signature string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `DELETE FROM quarantine WHERE cluster_signature = ?`, signature)
	return wrapDBError("quarantine clear", err)
}
