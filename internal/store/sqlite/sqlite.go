// Package sqlite provides the durable Store backend (§4.1): a single
// SQLite file accessed through database/sql and the mattn/go-sqlite3 cgo
// driver, with Go-coded migrations under migrations/.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/contextwave/cwme/internal/store"
	"github.com/contextwave/cwme/internal/store/sqlite/migrations"
	"github.com/contextwave/cwme/internal/types"
	"github.com/contextwave/cwme/internal/vectorindex"
)

// Store is a SQLite-backed implementation of store.Store. Writes take an
// in-process mutex in addition to SQLite's own single-writer lock so the
// validate-then-insert sequence stays atomic across Go goroutines, not just
// across OS processes.
type Store struct {
	db   *sql.DB
	mu   sync.Mutex
	opts store.Options
	idx  *vectorindex.Index
}

// SetIndex attaches the semantic ANN index this store keeps in sync on
// every write. A nil index (the default) leaves the semantic channel to
// the scorer's own per-candidate fallback.
func (s *Store) SetIndex(idx *vectorindex.Index) {
	s.mu.Lock()
	s.idx = idx
	s.mu.Unlock()
}

// Index returns the attached semantic ANN index, or nil if none was set.
func (s *Store) Index() *vectorindex.Index {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.idx
}

// Open creates or opens the SQLite database at path, runs the base schema
// and any pending migrations, and returns a ready Store.
func Open(path string, opts store.Options) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_journal=WAL&_busy_timeout=5000&_foreign_keys=1", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	if err := migrations.Apply(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}

	return &Store{db: db, opts: opts}, nil
}

func (s *Store) Put(ctx context.Context, draft *types.Draft) (*types.Context, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if draft.DedupKey != "" {
		var exists bool
		err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) > 0 FROM contexts WHERE dedup_key = ?`, draft.DedupKey).Scan(&exists)
		if err != nil {
			return nil, wrapDBError("put: check dedup_key", err)
		}
		if exists {
			return nil, fmt.Errorf("put: dedup key %q: %w", draft.DedupKey, types.ErrAlreadyExists)
		}
	}

	lookup, err := s.lookupLocked(ctx)
	if err != nil {
		return nil, err
	}

	normalized, err := store.PrepareDraft(draft, lookup, s.opts)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	created := store.BuildContext(normalized, id, time.Now().UTC())

	if err := s.insert(ctx, created, draft.DedupKey); err != nil {
		return nil, err
	}
	if s.idx != nil && len(created.Embedding) > 0 {
		// Best-effort: the ANN index is a derived structure, never the
		// source of truth, so a write never fails over it.
		_ = s.idx.Upsert(ctx, created.ID, created.Embedding)
	}
	return created, nil
}

func (s *Store) insert(ctx context.Context, c *types.Context, dedupKey string) error {
	nodesJSON, err := json.Marshal(c.Nodes)
	if err != nil {
		return fmt.Errorf("marshal nodes: %w", err)
	}
	edgesJSON, err := json.Marshal(c.Edges)
	if err != nil {
		return fmt.Errorf("marshal edges: %w", err)
	}
	ruleCondJSON, err := json.Marshal(c.RuleConditions)
	if err != nil {
		return fmt.Errorf("marshal rule_conditions: %w", err)
	}
	sourcesJSON, err := json.Marshal(c.Sources)
	if err != nil {
		return fmt.Errorf("marshal sources: %w", err)
	}
	var embeddingBlob []byte
	if len(c.Embedding) > 0 {
		embeddingBlob, err = json.Marshal(c.Embedding)
		if err != nil {
			return fmt.Errorf("marshal embedding: %w", err)
		}
	}

	var dedupKeyCol any
	if dedupKey != "" {
		dedupKeyCol = dedupKey
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO contexts (
			id, description, nodes, edges, emotion, intensity, result,
			rule, rule_conditions, certainty, level, sources, embedding,
			created_at, when_day, when_cycle, dedup_key
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		c.ID, c.Description, string(nodesJSON), string(edgesJSON), string(c.Emotion), c.Intensity, string(c.Result),
		c.Rule, string(ruleCondJSON), c.Certainty, int(c.Level), string(sourcesJSON), embeddingBlob,
		formatTime(c.CreatedAt), c.WhenDay, c.WhenCycle, dedupKeyCol,
	)
	if isUniqueConstraint(err) {
		return fmt.Errorf("insert context: %w", types.ErrAlreadyExists)
	}
	return wrapDBError("insert context", err)
}

func (s *Store) Get(ctx context.Context, id string) (*types.Context, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id)
	c, err := scanContext(row)
	if err != nil {
		return nil, wrapDBError("get "+id, err)
	}
	return c, nil
}

func (s *Store) Snapshot(ctx context.Context) (store.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, selectColumns+` ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, wrapDBError("snapshot", err)
	}
	defer rows.Close()

	var ordered []*types.Context
	byID := make(map[string]*types.Context)
	for rows.Next() {
		c, err := scanContext(rows)
		if err != nil {
			return nil, wrapDBError("snapshot scan", err)
		}
		ordered = append(ordered, c)
		byID[c.ID] = c
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBError("snapshot iterate", err)
	}

	return &snapshot{byID: byID, ordered: ordered, takenAt: time.Now().UTC()}, nil
}

func (s *Store) Purge(ctx context.Context, keep func(*types.Context) bool) (int, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, wrapDBError("purge begin", err)
	}
	defer func() { _ = tx.Rollback() }()

	ordered := snap.(*snapshot).ordered
	referenced := make(map[string]struct{})
	for _, c := range ordered {
		for _, src := range c.Sources {
			referenced[src] = struct{}{}
		}
	}

	removed := 0
	for _, c := range ordered {
		if keep(c) {
			continue
		}
		if _, ok := referenced[c.ID]; ok {
			// Forbidden: c.ID is named as a source by another stored context.
			continue
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM contexts WHERE id = ?`, c.ID); err != nil {
			return removed, wrapDBError("purge delete "+c.ID, err)
		}
		if s.idx != nil {
			_ = s.idx.Delete(ctx, c.ID)
		}
		removed++
	}

	if err := tx.Commit(); err != nil {
		return removed, wrapDBError("purge commit", err)
	}
	return removed, nil
}

func (s *Store) Close() error {
	if s.idx != nil {
		_ = s.idx.Close()
	}
	return s.db.Close()
}

// lookupLocked loads the full store into a snapshot for invariant checking.
// Called with s.mu already held by Put.
func (s *Store) lookupLocked(ctx context.Context) (types.Lookup, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return snap.(*snapshot), nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	layouts := []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05"}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
