package signal

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/contextwave/cwme/internal/audit"
	"github.com/contextwave/cwme/internal/types"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.DriveSeeds = map[string][]string{
		"connection": {"Egor", "Telegram", "message"},
	}
	cfg.VerbRelations = map[string]string{
		"criticized": "criticized",
		"praised":    "praised",
	}
	return cfg
}

func TestBuild_FocusNodesAndCapitalizedTokens(t *testing.T) {
	b := New(testConfig(), nil)
	sig := b.Build(context.Background(), Situation{
		FocusNodes: []string{"code"},
		FreeText:   []string{"Egor criticized my PR in Telegram"},
	})

	want := map[string]bool{"code": true, "Egor": true, "Telegram": true, "PR": true}
	for _, n := range sig.Nodes {
		if !want[n] {
			t.Errorf("unexpected node %q", n)
		}
	}
	if len(sig.Nodes) != len(want) {
		t.Fatalf("got nodes %v, want %d distinct nodes", sig.Nodes, len(want))
	}
}

func TestBuild_Relations(t *testing.T) {
	b := New(testConfig(), nil)
	sig := b.Build(context.Background(), Situation{
		FreeText: []string{"Egor criticized my PR"},
	})
	if len(sig.Relations) != 1 || sig.Relations[0] != "criticized" {
		t.Fatalf("got %v, want [criticized]", sig.Relations)
	}
}

func TestBuild_ResultFromPainIntensity(t *testing.T) {
	b := New(testConfig(), nil)
	neg := b.Build(context.Background(), Situation{PainIntensity: 0.9})
	if neg.Result != types.ResultNegative {
		t.Fatalf("got %q, want negative", neg.Result)
	}
	neutral := b.Build(context.Background(), Situation{PainIntensity: 0.2})
	if neutral.Result != types.ResultNeutral {
		t.Fatalf("got %q, want neutral", neutral.Result)
	}
}

func TestBuild_HungryDriveInjectsSeeds(t *testing.T) {
	b := New(testConfig(), nil)
	sig := b.Build(context.Background(), Situation{
		Drives: map[string]float64{"connection": 0.1},
	})
	found := false
	for _, n := range sig.Nodes {
		if n == "Telegram" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected hungry drive to inject seed nodes, got %v", sig.Nodes)
	}
	if _, ok := sig.DriveBias["connection"]; !ok {
		t.Fatal("expected drive_bias to retain the hungry drive")
	}
}

func TestBuild_SatisfiedDriveDoesNotInject(t *testing.T) {
	b := New(testConfig(), nil)
	sig := b.Build(context.Background(), Situation{
		Drives: map[string]float64{"connection": 0.9},
	})
	if len(sig.DriveBias) != 0 {
		t.Fatalf("expected no hungry drives, got %v", sig.DriveBias)
	}
}

func TestBuild_NodeCapTruncates(t *testing.T) {
	cfg := testConfig()
	cfg.MaxSignalNodes = 2
	b := New(cfg, nil)
	sig := b.Build(context.Background(), Situation{
		FocusNodes: []string{"a", "b", "c", "d"},
	})
	if len(sig.Nodes) != 2 {
		t.Fatalf("expected truncation to 2 nodes, got %v", sig.Nodes)
	}
}

type stubEmbedder struct {
	vec types.Embedding
	err error
}

func (s stubEmbedder) Embed(ctx context.Context, text string) (types.Embedding, error) {
	return s.vec, s.err
}

func TestBuild_EmbedderPopulatesEmbedding(t *testing.T) {
	b := New(testConfig(), stubEmbedder{vec: types.Embedding{1, 2, 3}})
	sig := b.Build(context.Background(), Situation{EmbedText: "hello"})
	if len(sig.Embedding) != 3 {
		t.Fatalf("expected embedding to be populated, got %v", sig.Embedding)
	}
}

func TestBuild_EmbedderTimeoutAudited(t *testing.T) {
	tmp := t.TempDir()
	audit.SetDir(tmp)
	defer audit.SetDir("")

	b := New(testConfig(), stubEmbedder{err: context.DeadlineExceeded})
	sig := b.Build(context.Background(), Situation{EmbedText: "hello"})
	if sig.Embedding != nil {
		t.Fatalf("expected no embedding on collaborator timeout, got %v", sig.Embedding)
	}

	f, err := os.Open(filepath.Join(tmp, audit.FileName))
	if err != nil {
		t.Fatalf("open audit log: %v", err)
	}
	defer func() { _ = f.Close() }()

	sc := bufio.NewScanner(f)
	if !sc.Scan() {
		t.Fatal("expected an audit entry for the failed embedder call")
	}
	var e audit.Entry
	if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
		t.Fatalf("unmarshal audit entry: %v", err)
	}
	if e.Kind != "embedder_call" {
		t.Fatalf("expected kind embedder_call, got %q", e.Kind)
	}
	if e.Error == "" {
		t.Fatalf("expected a recorded error")
	}
}

func TestBuild_EmbedderFailureLeavesEmbeddingEmpty(t *testing.T) {
	b := New(testConfig(), stubEmbedder{err: context.DeadlineExceeded})
	sig := b.Build(context.Background(), Situation{EmbedText: "hello"})
	if sig.Embedding != nil {
		t.Fatalf("expected no embedding on collaborator failure, got %v", sig.Embedding)
	}
}

func TestBuild_MultiDriveOverflowTruncatesDeterministically(t *testing.T) {
	cfg := testConfig()
	cfg.DriveSeeds = map[string][]string{
		"connection": {"Egor", "Telegram"},
		"autonomy":   {"Manager", "Review"},
		"status":     {"Award", "Rank"},
	}
	cfg.MaxSignalNodes = 3
	b := New(cfg, nil)
	sit := Situation{
		Drives: map[string]float64{"connection": 0.1, "autonomy": 0.1, "status": 0.1},
	}

	a := b.Build(context.Background(), sit)
	c := b.Build(context.Background(), sit)
	if len(a.Nodes) != 3 || len(c.Nodes) != 3 {
		t.Fatalf("expected truncation to 3 nodes, got a=%v c=%v", a.Nodes, c.Nodes)
	}
	for i := range a.Nodes {
		if a.Nodes[i] != c.Nodes[i] {
			t.Fatalf("expected identical truncated node order across runs, got %v vs %v", a.Nodes, c.Nodes)
		}
	}
	// autonomy sorts first among the three hungry drives, so its seeds
	// should survive the cap ahead of connection and status.
	if a.Nodes[0] != "Manager" || a.Nodes[1] != "Review" {
		t.Fatalf("expected sorted-drive-order seeds [Manager Review ...], got %v", a.Nodes)
	}
}

func TestBuild_IsPure(t *testing.T) {
	b := New(testConfig(), nil)
	sit := Situation{FocusNodes: []string{"Egor"}, FreeText: []string{"criticized"}}
	a := b.Build(context.Background(), sit)
	c := b.Build(context.Background(), sit)
	if len(a.Nodes) != len(c.Nodes) || a.Nodes[0] != c.Nodes[0] {
		t.Fatal("expected identical signal for identical situation")
	}
}
