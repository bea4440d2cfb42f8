package usecase

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"clustermatch/internal/adapter/embedding"
	"clustermatch/internal/adapter/memstore"
	"clustermatch/internal/domain"
	"clustermatch/internal/port"
)

const (
	fixtureModel      = "../../testdata/welcome_survey_clustering_model_pipeline_v2.json"
	fixturePopulation = "../../testdata/welcome_survey_simple_v2.csv"
	fixtureReference  = "../../testdata/welcome_survey_name_and_description.json"

	testDimension = 256
)

func fixturePaths() CatalogPaths {
	return CatalogPaths{
		Model:      fixtureModel,
		Population: fixturePopulation,
		Reference:  fixtureReference,
		Delimiter:  ";",
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// staticSource hands out the same embedder for every non-empty credential.
type staticSource struct {
	embedder port.Embedder

	mu        sync.Mutex
	forgotten []domain.Credential
}

func (s *staticSource) Embedder(cred domain.Credential) (port.Embedder, error) {
	if cred.Empty() {
		return nil, &domain.ProviderError{Kind: domain.ProviderMissingCredential, Err: errors.New("empty")}
	}
	return s.embedder, nil
}

func (s *staticSource) Forget(cred domain.Credential) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.forgotten = append(s.forgotten, cred)
}

// failingEmbedder always fails with err.
type failingEmbedder struct {
	err error
}

func (e failingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, e.err
}

func (e failingEmbedder) Dimension() int    { return testDimension }
func (e failingEmbedder) ModelName() string { return "failing" }

// scriptedIndex returns fixed hits or a fixed error.
type scriptedIndex struct {
	hits []domain.IndexHit
	err  error
}

func (x scriptedIndex) Nearest(ctx context.Context, query []float32, topK int) ([]domain.IndexHit, error) {
	return x.hits, x.err
}

// recordingWriter records seeding calls.
type recordingWriter struct {
	calls []string
	items []port.VectorItem
}

func (w *recordingWriter) Prepare(ctx context.Context) error {
	w.calls = append(w.calls, "prepare")
	return nil
}

func (w *recordingWriter) Upsert(ctx context.Context, items []port.VectorItem) error {
	w.calls = append(w.calls, "upsert")
	w.items = append(w.items, items...)
	return nil
}

type fixture struct {
	catalog  *Catalog
	index    *memstore.Index
	source   *staticSource
	resolver *Resolver
}

// newFixture loads the test artifacts and seeds an in-memory index with the
// mock embedder.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	catalog, err := LoadCatalog(ctx, fixturePaths(), quietLogger())
	if err != nil {
		t.Fatalf("LoadCatalog: %v", err)
	}

	embedder := embedding.NewMockEmbedder(testDimension)
	index := memstore.NewIndex(testDimension)
	if _, err := NewSeedUseCase(catalog.Reference, index, 2, quietLogger()).Seed(ctx, embedder, nil); err != nil {
		t.Fatalf("Seed: %v", err)
	}

	source := &staticSource{embedder: embedder}
	resolver := NewResolver(ResolverDeps{
		Embedders:  source,
		Index:      index,
		Classifier: catalog.Classifier,
		Population: catalog.Population,
		Reference:  catalog.Reference,
		Logger:     quietLogger(),
	})
	return &fixture{catalog: catalog, index: index, source: source, resolver: resolver}
}

// withIndex returns a resolver over the same artifacts but a different index
// and embedder source.
func (f *fixture) withIndex(index port.VectorIndex, source port.EmbedderSource) *Resolver {
	return NewResolver(ResolverDeps{
		Embedders:  source,
		Index:      index,
		Classifier: f.catalog.Classifier,
		Population: f.catalog.Population,
		Reference:  f.catalog.Reference,
		Logger:     quietLogger(),
	})
}

// blockingEmbedder waits for its context and returns the raw context error.
type blockingEmbedder struct{}

func (blockingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (blockingEmbedder) Dimension() int    { return testDimension }
func (blockingEmbedder) ModelName() string { return "blocking" }

// blockingIndex waits for its context and returns the raw context error.
type blockingIndex struct{}

func (blockingIndex) Nearest(ctx context.Context, query []float32, topK int) ([]domain.IndexHit, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

// withTimeout returns a resolver over the same artifacts with a short
// per-call timeout.
func (f *fixture) withTimeout(index port.VectorIndex, source port.EmbedderSource, timeout time.Duration) *Resolver {
	return NewResolver(ResolverDeps{
		Embedders:  source,
		Index:      index,
		Classifier: f.catalog.Classifier,
		Population: f.catalog.Population,
		Reference:  f.catalog.Reference,
		Timeout:    timeout,
		Logger:     quietLogger(),
	})
}
