package port

import (
	"context"

	"clustermatch/internal/domain"
)

// Embedder generates vector embeddings for text.
type Embedder interface {
	// Embed generates the embedding for a single non-empty text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimension returns the embedding vector dimension.
	Dimension() int

	// ModelName returns the name of the embedding model.
	ModelName() string
}

// EmbedderSource hands out an embedder bound to a session credential.
type EmbedderSource interface {
	Embedder(cred domain.Credential) (Embedder, error)
}

// VectorIndex finds the cluster vectors nearest to a query vector.
type VectorIndex interface {
	// Nearest returns up to topK hits ordered by descending score.
	// An empty result with a nil error means the index holds no match.
	Nearest(ctx context.Context, query []float32, topK int) ([]domain.IndexHit, error)
}

// VectorWriter stores cluster vectors.
type VectorWriter interface {
	// Prepare makes the target collection ready for a full reseed.
	Prepare(ctx context.Context) error

	// Upsert adds or replaces vectors in the index.
	Upsert(ctx context.Context, items []VectorItem) error
}

// VectorItem is one cluster vector to be stored.
type VectorItem struct {
	ClusterID domain.ClusterID
	Vector    []float32
	Payload   domain.ClusterPayload
}
