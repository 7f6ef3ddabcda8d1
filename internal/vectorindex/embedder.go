// Package vectorindex wraps a sqvect-backed ANN index for the Resonance
// Scorer's semantic channel (§4.3.1, channel 5) and defines the Embedder
// collaborator boundary (§6.3).
package vectorindex

import (
	"context"
	"math"

	"github.com/contextwave/cwme/internal/types"
)

// EmbeddingDim is the engine's recommended embedding width (§3.1). Stores
// do not hard-code this; it is only the fallback Embedder's output size.
const EmbeddingDim = 384

// Embedder is the collaborator boundary for turning text into a dense
// vector (§6.3). Implementations may call out to a network service and
// must respect ctx cancellation/deadlines.
type Embedder interface {
	Embed(ctx context.Context, text string) (types.Embedding, error)
}

// HashEmbedder is a deterministic, offline fallback Embedder. It has no
// semantic understanding: it buckets token hashes into a fixed-width
// vector and L2-normalizes it, which is enough to make identical and
// near-identical text self-similar without requiring a live collaborator.
// Production configurations should inject a real Embedder (§11); this one
// exists so the engine runs standalone and so tests don't need a network.
type HashEmbedder struct {
	Dim int
}

// NewHashEmbedder returns a HashEmbedder with the recommended dimension.
func NewHashEmbedder() *HashEmbedder {
	return &HashEmbedder{Dim: EmbeddingDim}
}

func (h *HashEmbedder) Embed(ctx context.Context, text string) (types.Embedding, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dim := h.Dim
	if dim <= 0 {
		dim = EmbeddingDim
	}
	vec := make([]float32, dim)
	for _, tok := range types.Tokenize(text) {
		h := fnv32a(tok)
		vec[int(h)%dim] += 1
	}
	normalize(vec)
	return vec, nil
}

func fnv32a(s string) uint32 {
	const offset32 = 2166136261
	const prime32 = 16777619
	hash := uint32(offset32)
	for i := 0; i < len(s); i++ {
		hash ^= uint32(s[i])
		hash *= prime32
	}
	return hash
}

func normalize(vec []float32) {
	var sumSq float64
	for _, v := range vec {
		sumSq += float64(v) * float64(v)
	}
	if sumSq == 0 {
		return
	}
	norm := float32(math.Sqrt(sumSq))
	for i := range vec {
		vec[i] /= norm
	}
}

// CosineSimilarity returns the cosine similarity of a and b, or 0 if either
// is empty or dimensions mismatch (the Scorer treats that as an inactive
// channel rather than an error, §4.3.1).
func CosineSimilarity(a, b types.Embedding) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
