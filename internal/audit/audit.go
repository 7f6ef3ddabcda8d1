// Package audit provides a best-effort, append-only JSONL log of
// collaborator calls (Generalizer, Embedder), grounded on the teacher's
// audit entry shape for LLM calls.
package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// FileName is the audit log's file name within the configured directory.
const FileName = "audit.jsonl"

// Entry records a single collaborator call or diagnostic event.
type Entry struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Kind      string    `json:"kind"`
	Actor     string    `json:"actor,omitempty"`
	ContextID string    `json:"context_id,omitempty"`
	Model     string    `json:"model,omitempty"`
	Prompt    string    `json:"prompt,omitempty"`
	Response  string    `json:"response,omitempty"`
	Error     string    `json:"error,omitempty"`
}

var (
	mu  sync.Mutex
	dir string
)

// SetDir configures the directory Append writes to. Must be called once
// during startup; Append is a no-op error until it has been.
func SetDir(path string) {
	mu.Lock()
	defer mu.Unlock()
	dir = path
}

// Append writes e to the audit log and returns its generated id. Audit
// logging is best-effort: callers should never fail their own operation
// because Append failed (§7 "CollaboratorFailure... recovered locally").
func Append(e *Entry) (string, error) {
	mu.Lock()
	target := dir
	mu.Unlock()

	if target == "" {
		return "", fmt.Errorf("audit: directory not configured")
	}

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	if err := os.MkdirAll(target, 0o750); err != nil {
		return "", fmt.Errorf("audit: mkdir: %w", err)
	}

	path := filepath.Join(target, FileName)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o640) //nolint:gosec // path is operator-configured
	if err != nil {
		return "", fmt.Errorf("audit: open: %w", err)
	}
	defer func() { _ = f.Close() }()

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	if err := enc.Encode(e); err != nil {
		return "", fmt.Errorf("audit: encode: %w", err)
	}
	if err := w.Flush(); err != nil {
		return "", fmt.Errorf("audit: flush: %w", err)
	}

	return e.ID, nil
}
