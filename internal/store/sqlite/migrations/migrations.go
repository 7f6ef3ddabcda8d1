// Package migrations holds incremental schema changes applied after the
// base schema exists, one function per change, mirroring the base schema's
// own versioning (id ascending, each migration idempotent: it checks
// sqlite_master for the object it creates before creating it).
package migrations

import "database/sql"

// Migration is a single, idempotent schema change.
type Migration struct {
	ID  string
	Run func(db *sql.DB) error
}

// All returns every registered migration in application order. New
// migrations are appended here, never inserted earlier in the list.
func All() []Migration {
	return []Migration{
		{ID: "001_quarantine_last_error_index", Run: MigrateQuarantineLastErrorIndex},
	}
}

// Apply runs every migration in order, recording completed ids in the
// schema_migrations table so a restart doesn't re-run them.
func Apply(db *sql.DB) error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (id TEXT PRIMARY KEY, applied_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now')))`); err != nil {
		return err
	}

	for _, m := range All() {
		var applied bool
		err := db.QueryRow(`SELECT COUNT(*) > 0 FROM schema_migrations WHERE id = ?`, m.ID).Scan(&applied)
		if err != nil {
			return err
		}
		if applied {
			continue
		}
		if err := m.Run(db); err != nil {
			return err
		}
		if _, err := db.Exec(`INSERT INTO schema_migrations (id) VALUES (?)`, m.ID); err != nil {
			return err
		}
	}
	return nil
}
