// Package embed generates vector embeddings for corpus vocabulary
// entries (lemmatized words) consumed by internal/semantic. Embedding
// here is a pure, local, deterministic transform — no network model
// server is wired (model training/inference runtime is an explicit
// non-goal), so the embedder implementation is a hash-based static
// embedder, good enough to drive ANN index scoring and ranking
// without an external dependency.
package embed

import (
	"context"
	"math"
)

// StaticDimensions is the embedding dimension produced by the static
// embedder.
const StaticDimensions = 256

// Embedder generates vector embeddings for text.
type Embedder interface {
	// Embed generates an embedding for a single string.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple strings.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding dimension.
	Dimensions() int

	// ModelName returns the model identifier.
	ModelName() string

	// Available reports whether the embedder is ready to serve requests.
	Available(ctx context.Context) bool

	// Close releases resources.
	Close() error
}

// normalizeVector normalizes a vector to unit length.
func normalizeVector(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}

	magnitude := math.Sqrt(sumSquares)
	if magnitude == 0 {
		return v // Return as-is if zero vector
	}

	normalized := make([]float32, len(v))
	for i, val := range v {
		normalized[i] = float32(float64(val) / magnitude)
	}
	return normalized
}
