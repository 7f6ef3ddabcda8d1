package migrations

import (
	"database/sql"
	"fmt"
)

// MigrateQuarantineLastErrorIndex adds an index on quarantine.quarantined_at
// for queries that filter or order quarantine rows by quarantine time.
func MigrateQuarantineLastErrorIndex(db *sql.DB) error {
	var exists bool
	err := db.QueryRow(`
		SELECT COUNT(*) > 0
		FROM sqlite_master
		WHERE type = 'index' AND name = 'idx_quarantine_quarantined_at'
	`).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check idx_quarantine_quarantined_at: %w", err)
	}
	if exists {
		return nil
	}

	_, err = db.Exec(`CREATE INDEX idx_quarantine_quarantined_at ON quarantine(quarantined_at)`)
	if err != nil {
		return fmt.Errorf("create idx_quarantine_quarantined_at: %w", err)
	}
	return nil
}
