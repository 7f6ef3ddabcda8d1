package sqlite

// schema is the base contexts table, created fresh on an empty database.
// Nodes, edges, rule_conditions, sources and the embedding vector are
// stored as JSON text; the columns the Scorer and Selector filter on
// (level, emotion, result, created_at) are kept first-class so they can be
// indexed directly.
const schema = `
CREATE TABLE IF NOT EXISTS contexts (
    id TEXT PRIMARY KEY,
    description TEXT NOT NULL DEFAULT '',
    nodes TEXT NOT NULL DEFAULT '[]',
    edges TEXT NOT NULL DEFAULT '[]',
    emotion TEXT NOT NULL DEFAULT 'neutral',
    intensity REAL NOT NULL DEFAULT 0,
    result TEXT NOT NULL DEFAULT '',
    rule TEXT NOT NULL DEFAULT '',
    rule_conditions TEXT NOT NULL DEFAULT '[]',
    certainty REAL NOT NULL DEFAULT 1.0,
    level INTEGER NOT NULL DEFAULT 0,
    sources TEXT NOT NULL DEFAULT '[]',
    embedding BLOB,
    created_at TEXT NOT NULL,
    when_day INTEGER,
    when_cycle INTEGER,
    dedup_key TEXT
);

CREATE INDEX IF NOT EXISTS idx_contexts_level ON contexts(level);
CREATE INDEX IF NOT EXISTS idx_contexts_emotion ON contexts(emotion);
CREATE INDEX IF NOT EXISTS idx_contexts_result ON contexts(result);
CREATE INDEX IF NOT EXISTS idx_contexts_created_at ON contexts(created_at);
CREATE UNIQUE INDEX IF NOT EXISTS idx_contexts_dedup_key ON contexts(dedup_key) WHERE dedup_key IS NOT NULL;

CREATE TABLE IF NOT EXISTS quarantine (
    cluster_signature TEXT PRIMARY KEY,
    failure_count INTEGER NOT NULL DEFAULT 0,
    last_error TEXT NOT NULL DEFAULT '',
    quarantined_at TEXT NOT NULL
);
`
