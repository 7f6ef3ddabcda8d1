package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/contextwave/cwme/internal/types"
)

// wrapDBError wraps a database error with operation context, converting
// sql.ErrNoRows to types.ErrNotFound so callers can branch with errors.Is
// without knowing the backend.
func wrapDBError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, types.ErrNotFound)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// isUniqueConstraint reports whether err is a SQLite UNIQUE constraint
// violation, the signal that a dedup_key collided.
func isUniqueConstraint(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
