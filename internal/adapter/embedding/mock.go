package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"

	"clustermatch/internal/adapter/analyzer"
	"clustermatch/internal/domain"
	"clustermatch/internal/port"
)

// MockEmbedder produces deterministic bag-of-words vectors without a network
// call. Texts sharing words get a positive cosine similarity, which is enough
// for offline runs and tests.
type MockEmbedder struct {
	dimension int
	tokenizer *analyzer.Tokenizer
}

var _ port.Embedder = (*MockEmbedder)(nil)

func NewMockEmbedder(dimension int) *MockEmbedder {
	if dimension <= 0 {
		dimension = 64
	}
	return &MockEmbedder{
		dimension: dimension,
		tokenizer: analyzer.NewTokenizer(true),
	}
}

func (e *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyInput
	}
	if err := ctx.Err(); err != nil {
		return nil, &domain.ProviderError{Kind: domain.ProviderTransient, Err: err}
	}

	vec := make([]float32, e.dimension)
	for _, w := range e.tokenizer.Tokenize(text) {
		h := fnv.New32a()
		h.Write([]byte(w))
		vec[h.Sum32()%uint32(e.dimension)]++
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		vec[0] = 1
		return vec, nil
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec, nil
}

func (e *MockEmbedder) Dimension() int {
	return e.dimension
}

func (e *MockEmbedder) ModelName() string {
	return "mock"
}
