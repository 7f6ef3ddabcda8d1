package sqlite

import (
	"database/sql"
	"encoding/json"

	"github.com/contextwave/cwme/internal/types"
)

const selectColumns = `
	SELECT id, description, nodes, edges, emotion, intensity, result,
	       rule, rule_conditions, certainty, level, sources, embedding,
	       created_at, when_day, when_cycle
	FROM contexts`

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanContext(row rowScanner) (*types.Context, error) {
	var (
		c                types.Context
		nodesJSON        string
		edgesJSON        string
		ruleCondJSON     string
		sourcesJSON      string
		emotion, result  string
		level            int
		createdAtStr     string
		embeddingBlob    []byte
		whenDay          sql.NullInt64
		whenCycle        sql.NullInt64
	)

	if err := row.Scan(
		&c.ID, &c.Description, &nodesJSON, &edgesJSON, &emotion, &c.Intensity, &result,
		&c.Rule, &ruleCondJSON, &c.Certainty, &level, &sourcesJSON, &embeddingBlob,
		&createdAtStr, &whenDay, &whenCycle,
	); err != nil {
		return nil, err
	}

	c.Emotion = types.Emotion(emotion)
	c.Result = types.Result(result)
	c.Level = types.Level(level)
	c.CreatedAt = parseTime(createdAtStr)

	if err := json.Unmarshal([]byte(nodesJSON), &c.Nodes); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(edgesJSON), &c.Edges); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(ruleCondJSON), &c.RuleConditions); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(sourcesJSON), &c.Sources); err != nil {
		return nil, err
	}
	if len(embeddingBlob) > 0 {
		if err := json.Unmarshal(embeddingBlob, &c.Embedding); err != nil {
			return nil, err
		}
	}

	if whenDay.Valid {
		v := int(whenDay.Int64)
		c.WhenDay = &v
	}
	if whenCycle.Valid {
		v := int(whenCycle.Int64)
		c.WhenCycle = &v
	}

	return &c, nil
}
