package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"clustermatch/internal/adapter/classifier"
	"clustermatch/internal/adapter/embedding"
	"clustermatch/internal/adapter/memstore"
	"clustermatch/internal/domain"
)

var forestProfile = domain.FeatureRecord{
	Age:       domain.Age25To34,
	Education: "wyższe",
	Animals:   "Psy",
	Place:     domain.PlaceForest,
	Gender:    domain.GenderFemale,
}

func TestResolveByProfile_Scenario(t *testing.T) {
	f := newFixture(t)

	result, err := f.resolver.ResolveByProfile(context.Background(), forestProfile)
	if err != nil {
		t.Fatalf("ResolveByProfile: %v", err)
	}
	if result.Cluster.ID != "Cluster 0" {
		t.Fatalf("expected Cluster 0, got %s", result.Cluster.ID)
	}
	if result.Confidence != nil {
		t.Error("profile results must not carry a confidence")
	}

	classified := 0
	for _, row := range f.catalog.Population.Rows() {
		if row.Cluster == result.Cluster.ID {
			classified++
		}
	}
	if result.PopulationCount < 1 || result.PopulationCount != classified {
		t.Errorf("PopulationCount = %d, rows classified as %s = %d", result.PopulationCount, result.Cluster.ID, classified)
	}
}

func TestResolveByProfile_EveryWellFormedRecord(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	opts := f.catalog.FormOptions()

	n := 0
	for _, age := range opts.Ages {
		for _, edu := range opts.Education {
			for _, animal := range opts.Animals {
				for _, place := range opts.Places {
					for _, gender := range opts.Genders {
						r := domain.FeatureRecord{Age: age, Education: edu, Animals: animal, Place: place, Gender: gender}
						first, err := f.resolver.ResolveByProfile(ctx, r)
						if err != nil {
							t.Fatalf("%+v: %v", r, err)
						}
						if _, ok := f.catalog.Reference.Descriptor(first.Cluster.ID); !ok {
							t.Fatalf("%+v resolved to unknown cluster %s", r, first.Cluster.ID)
						}
						again, err := f.resolver.ResolveByProfile(ctx, r)
						if err != nil || again.Cluster.ID != first.Cluster.ID {
							t.Fatalf("%+v: not deterministic (%s then %v, %v)", r, first.Cluster.ID, again, err)
						}
						n++
					}
				}
			}
		}
	}
	if n != 8*3*5*4*2 {
		t.Errorf("expected 960 combinations, got %d", n)
	}
}

func TestPopulation_CountsSumToTotal(t *testing.T) {
	f := newFixture(t)

	sum := 0
	for _, id := range f.catalog.Reference.IDs() {
		sum += f.catalog.Population.CountInCluster(id)
	}
	if sum != f.catalog.Population.Total() {
		t.Errorf("sum of counts %d != total %d", sum, f.catalog.Population.Total())
	}
}

func TestResolveByProfile_Invalid(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name   string
		mutate func(*domain.FeatureRecord)
	}{
		{"bad age", func(r *domain.FeatureRecord) { r.Age = "30-40" }},
		{"bad place", func(r *domain.FeatureRecord) { r.Place = "Młodzi Miłośnicy Zwierząt" }},
		{"bad gender", func(r *domain.FeatureRecord) { r.Gender = "Inna" }},
		{"empty education", func(r *domain.FeatureRecord) { r.Education = "" }},
		{"unknown education", func(r *domain.FeatureRecord) { r.Education = "doktorat" }},
		{"unknown animal", func(r *domain.FeatureRecord) { r.Animals = "Rybki" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := forestProfile
			tt.mutate(&r)
			result, err := f.resolver.ResolveByProfile(context.Background(), r)
			if !errors.Is(err, domain.ErrInvalidProfile) {
				t.Errorf("expected ErrInvalidProfile, got %v", err)
			}
			if result != nil {
				t.Errorf("expected nil result, got %+v", result)
			}
		})
	}
}

func TestResolveByText_InvalidQuery(t *testing.T) {
	f := newFixture(t)

	for _, q := range []string{"", "   ", "\t\n"} {
		// The query is checked before the credential.
		if _, err := f.resolver.ResolveByText(context.Background(), "", q); !errors.Is(err, domain.ErrInvalidQuery) {
			t.Errorf("ResolveByText(%q): expected ErrInvalidQuery, got %v", q, err)
		}
	}
}

func TestResolveByText_MissingCredential(t *testing.T) {
	f := newFixture(t)

	_, err := f.resolver.ResolveByText(context.Background(), "  ", "forest walks")
	pe, ok := domain.AsProviderError(err)
	if !ok || pe.Kind != domain.ProviderMissingCredential {
		t.Fatalf("expected missing credential error, got %v", err)
	}
	if !pe.NeedsCredential() {
		t.Error("missing credential should ask for a credential")
	}
}

func TestResolveByText_Scenario(t *testing.T) {
	f := newFixture(t)

	result, err := f.resolver.ResolveByText(context.Background(), "sk-test", "I like relaxing walks in the forest with my dog")
	if err != nil {
		t.Fatalf("ResolveByText: %v", err)
	}
	if result.Cluster.ID != "Cluster 0" {
		t.Errorf("expected Cluster 0, got %s", result.Cluster.ID)
	}
	if result.Confidence == nil {
		t.Fatal("text results must carry a confidence")
	}
	if c := *result.Confidence; c < 0 || c > 1 {
		t.Errorf("confidence %f out of [0,1]", c)
	}
	if result.Cluster.ImageryDescription == "" {
		t.Error("expected a non-empty imagery description")
	}
	if result.PopulationCount != f.catalog.Population.CountInCluster("Cluster 0") {
		t.Errorf("unexpected population count %d", result.PopulationCount)
	}
	if pct, ok := result.Percent(); !ok || pct < 0 || pct > 100 {
		t.Errorf("unexpected percent %f (%v)", pct, ok)
	}
}

func TestResolveByText_EmptyIndex(t *testing.T) {
	f := newFixture(t)
	r := f.withIndex(memstore.NewIndex(testDimension), f.source)

	result, err := r.ResolveByText(context.Background(), "sk-test", "forest walks")
	if !errors.Is(err, domain.ErrNoMatch) {
		t.Fatalf("expected ErrNoMatch, got %v", err)
	}
	if result != nil {
		t.Errorf("expected nil result, got %+v", result)
	}
}

func TestResolveByText_IndexUnavailable(t *testing.T) {
	f := newFixture(t)
	r := f.withIndex(scriptedIndex{err: domain.ErrIndexUnavailable}, f.source)

	if _, err := r.ResolveByText(context.Background(), "sk-test", "forest walks"); !errors.Is(err, domain.ErrIndexUnavailable) {
		t.Errorf("expected ErrIndexUnavailable, got %v", err)
	}
}

func TestResolveByText_IndexDrift(t *testing.T) {
	f := newFixture(t)
	r := f.withIndex(scriptedIndex{hits: []domain.IndexHit{{ClusterID: "Cluster 99", Score: 0.9}}}, f.source)

	_, err := r.ResolveByText(context.Background(), "sk-test", "forest walks")
	if !errors.Is(err, domain.ErrArtifactLoad) {
		t.Errorf("expected ErrArtifactLoad, got %v", err)
	}
}

func TestResolveByText_ClampsConfidence(t *testing.T) {
	f := newFixture(t)
	r := f.withIndex(scriptedIndex{hits: []domain.IndexHit{{ClusterID: "Cluster 1", Score: 1.2}}}, f.source)

	result, err := r.ResolveByText(context.Background(), "sk-test", "cats by the lake")
	if err != nil {
		t.Fatal(err)
	}
	if *result.Confidence != 1 {
		t.Errorf("expected confidence clamped to 1, got %f", *result.Confidence)
	}
}

func TestResolveByText_AuthFailureForgetsCredential(t *testing.T) {
	f := newFixture(t)
	authErr := &domain.ProviderError{Kind: domain.ProviderAuth, HTTPStatus: 401, Err: errors.New("bad key")}
	source := &staticSource{embedder: failingEmbedder{err: authErr}}
	r := f.withIndex(f.index, source)

	_, err := r.ResolveByText(context.Background(), "sk-wrong", "forest walks")
	pe, ok := domain.AsProviderError(err)
	if !ok || pe.Kind != domain.ProviderAuth {
		t.Fatalf("expected auth error, got %v", err)
	}
	if len(source.forgotten) != 1 || source.forgotten[0] != "sk-wrong" {
		t.Errorf("expected the rejected credential to be forgotten, got %v", source.forgotten)
	}
}

func TestResolveByText_TransientProviderError(t *testing.T) {
	f := newFixture(t)
	source := &staticSource{embedder: failingEmbedder{err: &domain.ProviderError{Kind: domain.ProviderTransient, Err: context.DeadlineExceeded}}}
	r := f.withIndex(f.index, source)

	_, err := r.ResolveByText(context.Background(), "sk-test", "forest walks")
	pe, ok := domain.AsProviderError(err)
	if !ok || !pe.Retryable() {
		t.Fatalf("expected retryable provider error, got %v", err)
	}
	if len(source.forgotten) != 0 {
		t.Error("transient failures must keep the credential")
	}
}

func TestResolveByProfile_ConcurrentFirstCallsLoadOnce(t *testing.T) {
	f := newFixture(t)
	lazy := classifier.NewLazyFile(fixtureModel)
	r := NewResolver(ResolverDeps{
		Embedders:  &staticSource{embedder: embedding.NewMockEmbedder(testDimension)},
		Index:      f.index,
		Classifier: lazy,
		Population: f.catalog.Population,
		Reference:  f.catalog.Reference,
		Logger:     quietLogger(),
	})

	const n = 32
	var wg sync.WaitGroup
	errs := make(chan error, n)
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			result, err := r.ResolveByProfile(context.Background(), forestProfile)
			if err == nil && result.Cluster.ID != "Cluster 0" {
				err = errors.New("unexpected cluster " + string(result.Cluster.ID))
			}
			errs <- err
		}()
	}
	close(start)
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Error(err)
		}
	}
	if lazy.Loads() != 1 {
		t.Errorf("expected exactly one artifact load, got %d", lazy.Loads())
	}
}

func TestErrorClass(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{domain.ErrInvalidQuery, "invalid_query"},
		{domain.ErrNoMatch, "no_match"},
		{domain.NewArtifactError("reference", errors.New("x")), "artifact"},
		{&domain.ProviderError{Kind: domain.ProviderRateLimit}, "provider_rate_limit"},
		{errors.New("boom"), "internal"},
	}
	for _, tt := range tests {
		if got := ErrorClass(tt.err); got != tt.want {
			t.Errorf("ErrorClass(%v) = %s, want %s", tt.err, got, tt.want)
		}
	}
}

func TestResolveByText_EmbedTimeout(t *testing.T) {
	f := newFixture(t)
	r := f.withTimeout(f.index, &staticSource{embedder: blockingEmbedder{}}, 50*time.Millisecond)

	_, err := r.ResolveByText(context.Background(), "sk-test", "forest walks")
	pe, ok := domain.AsProviderError(err)
	if !ok || pe.Kind != domain.ProviderTransient {
		t.Fatalf("expected transient ProviderError, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected the deadline to be wrapped, got %v", err)
	}
	if got := ErrorClass(err); got != "provider_transient" {
		t.Errorf("ErrorClass = %s, want provider_transient", got)
	}
}

func TestResolveByText_IndexTimeout(t *testing.T) {
	f := newFixture(t)
	r := f.withTimeout(blockingIndex{}, f.source, 50*time.Millisecond)

	_, err := r.ResolveByText(context.Background(), "sk-test", "forest walks")
	if !errors.Is(err, domain.ErrIndexUnavailable) {
		t.Fatalf("expected ErrIndexUnavailable, got %v", err)
	}
	if got := ErrorClass(err); got != "index_unavailable" {
		t.Errorf("ErrorClass = %s, want index_unavailable", got)
	}
}

func TestResolveByText_UntypedIndexError(t *testing.T) {
	f := newFixture(t)
	r := f.withIndex(scriptedIndex{err: errors.New("connection reset")}, f.source)

	_, err := r.ResolveByText(context.Background(), "sk-test", "forest walks")
	if !errors.Is(err, domain.ErrIndexUnavailable) {
		t.Errorf("expected ErrIndexUnavailable, got %v", err)
	}
}

func TestResolveByText_QueryDimensionMismatch(t *testing.T) {
	f := newFixture(t)
	source := &staticSource{embedder: embedding.NewMockEmbedder(testDimension / 2)}
	r := f.withIndex(f.index, source)

	_, err := r.ResolveByText(context.Background(), "sk-test", "forest walks")
	if got := ErrorClass(err); got != "index_unavailable" {
		t.Errorf("ErrorClass = %s, want index_unavailable (err %v)", got, err)
	}
}
