package memstore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"clustermatch/internal/domain"
	"clustermatch/internal/port"
)

// Index is an in-memory brute-force cluster index. It backs the bolt store's
// search cache and offline benchmark runs.
type Index struct {
	mu        sync.RWMutex
	dimension int
	entries   map[domain.ClusterID]port.VectorItem
}

var (
	_ port.VectorIndex  = (*Index)(nil)
	_ port.VectorWriter = (*Index)(nil)
)

func NewIndex(dimension int) *Index {
	return &Index{
		dimension: dimension,
		entries:   make(map[domain.ClusterID]port.VectorItem),
	}
}

// Prepare drops all entries.
func (x *Index) Prepare(ctx context.Context) error {
	x.Reset()
	return nil
}

// Reset drops all entries.
func (x *Index) Reset() {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.entries = make(map[domain.ClusterID]port.VectorItem)
}

func (x *Index) Upsert(ctx context.Context, items []port.VectorItem) error {
	for _, item := range items {
		if len(item.Vector) != x.dimension {
			return fmt.Errorf("vector dimension mismatch for %s: expected %d, got %d", item.ClusterID, x.dimension, len(item.Vector))
		}
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	for _, item := range items {
		x.entries[item.ClusterID] = item
	}
	return nil
}

// Nearest ranks every entry by cosine similarity. Scores are clamped to [0,1]
// and equal scores are ordered by cluster id.
func (x *Index) Nearest(ctx context.Context, query []float32, topK int) ([]domain.IndexHit, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrIndexUnavailable, err)
	}
	if len(query) != x.dimension {
		return nil, fmt.Errorf("%w: query dimension mismatch: expected %d, got %d", domain.ErrIndexUnavailable, x.dimension, len(query))
	}

	x.mu.RLock()
	defer x.mu.RUnlock()

	if len(x.entries) == 0 || topK <= 0 {
		return nil, nil
	}

	hits := make([]domain.IndexHit, 0, len(x.entries))
	for id, entry := range x.entries {
		hits = append(hits, domain.IndexHit{
			ClusterID: id,
			Score:     domain.ClampScore(cosineSimilarity(query, entry.Vector)),
			Payload:   entry.Payload,
		})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ClusterID < hits[j].ClusterID
	})

	if topK > len(hits) {
		topK = len(hits)
	}
	return hits[:topK], nil
}

func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.entries)
}

func (x *Index) Dimension() int {
	return x.dimension
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}
