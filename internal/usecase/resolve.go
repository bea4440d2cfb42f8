package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"clustermatch/internal/domain"
	"clustermatch/internal/port"
)

// Resolver turns a free-text query or a filled-in profile into a MatchResult.
// It holds no per-request state and is safe for concurrent use.
type Resolver struct {
	embedders  port.EmbedderSource
	index      port.VectorIndex
	classifier port.Classifier
	population port.PopulationCounter
	reference  port.ReferenceTable
	timeout    time.Duration
	logger     *slog.Logger
}

// ResolverDeps lists the collaborators of a Resolver. Embedders and Index may
// be nil when only profile matching is needed.
type ResolverDeps struct {
	Embedders  port.EmbedderSource
	Index      port.VectorIndex
	Classifier port.Classifier
	Population port.PopulationCounter
	Reference  port.ReferenceTable
	Timeout    time.Duration
	Logger     *slog.Logger
}

func NewResolver(deps ResolverDeps) *Resolver {
	if deps.Timeout <= 0 {
		deps.Timeout = 10 * time.Second
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Resolver{
		embedders:  deps.Embedders,
		index:      deps.Index,
		classifier: deps.Classifier,
		population: deps.Population,
		reference:  deps.Reference,
		timeout:    deps.Timeout,
		logger:     deps.Logger,
	}
}

// credentialForgetter is implemented by embedder sources that cache handles.
type credentialForgetter interface {
	Forget(cred domain.Credential)
}

// ResolveByText embeds query and returns the nearest cluster with its
// similarity as confidence.
func (r *Resolver) ResolveByText(ctx context.Context, cred domain.Credential, query string) (*domain.MatchResult, error) {
	start := time.Now()
	log := r.logger.With("request_id", uuid.NewString(), "path", "text")

	result, err := r.resolveByText(ctx, cred, query)
	if err != nil {
		log.Warn("resolve failed", "error_class", ErrorClass(err), "credential", cred, "error", err)
		return nil, err
	}
	log.Info("resolved",
		"cluster", result.Cluster.ID,
		"confidence", *result.Confidence,
		"latency", time.Since(start))
	return result, nil
}

func (r *Resolver) resolveByText(ctx context.Context, cred domain.Credential, query string) (*domain.MatchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, domain.ErrInvalidQuery
	}
	if cred.Empty() {
		return nil, &domain.ProviderError{Kind: domain.ProviderMissingCredential, Err: errors.New("no API key supplied")}
	}
	if r.embedders == nil || r.index == nil {
		return nil, fmt.Errorf("%w: text matching is not configured", domain.ErrIndexUnavailable)
	}

	embedder, err := r.embedders.Embedder(cred)
	if err != nil {
		return nil, err
	}

	vec, err := r.embed(ctx, embedder, query)
	if err != nil {
		if pe, ok := domain.AsProviderError(err); ok && pe.Kind == domain.ProviderAuth {
			if f, ok := r.embedders.(credentialForgetter); ok {
				f.Forget(cred)
			}
		}
		return nil, err
	}

	hits, err := r.nearest(ctx, vec)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		return nil, domain.ErrNoMatch
	}

	hit := hits[0]
	result, err := r.lookup(hit.ClusterID, "index")
	if err != nil {
		return nil, err
	}
	confidence := domain.ClampScore(hit.Score)
	result.Confidence = &confidence
	return result, nil
}

// embed runs the embedder under the resolver timeout. Expiry or
// cancellation surfaces as a transient ProviderError.
func (r *Resolver) embed(ctx context.Context, embedder port.Embedder, query string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	vec, err := embedder.Embed(ctx, query)
	if err == nil {
		return vec, nil
	}
	if _, ok := domain.AsProviderError(err); ok {
		return nil, err
	}
	if ctx.Err() != nil || isContextErr(err) {
		return nil, &domain.ProviderError{Kind: domain.ProviderTransient, Err: err}
	}
	return nil, &domain.ProviderError{Kind: domain.ProviderRejected, Err: err}
}

// nearest queries the index under the resolver timeout. Errors outside the
// index and artifact classes become ErrIndexUnavailable.
func (r *Resolver) nearest(ctx context.Context, vec []float32) ([]domain.IndexHit, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	hits, err := r.index.Nearest(ctx, vec, 1)
	if err == nil {
		return hits, nil
	}
	if errors.Is(err, domain.ErrIndexUnavailable) || errors.Is(err, domain.ErrArtifactLoad) {
		return nil, err
	}
	return nil, fmt.Errorf("%w: %w", domain.ErrIndexUnavailable, err)
}

func isContextErr(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}

// ResolveByProfile classifies record and returns its cluster. It never
// carries a confidence.
func (r *Resolver) ResolveByProfile(ctx context.Context, record domain.FeatureRecord) (*domain.MatchResult, error) {
	start := time.Now()
	log := r.logger.With("request_id", uuid.NewString(), "path", "profile")

	result, err := r.resolveByProfile(ctx, record)
	if err != nil {
		log.Warn("resolve failed", "error_class", ErrorClass(err), "error", err)
		return nil, err
	}
	log.Info("resolved",
		"cluster", result.Cluster.ID,
		"population", result.PopulationCount,
		"latency", time.Since(start))
	return result, nil
}

func (r *Resolver) resolveByProfile(ctx context.Context, record domain.FeatureRecord) (*domain.MatchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := record.Validate(); err != nil {
		return nil, err
	}

	id, err := r.classifier.Classify(record)
	if err != nil {
		return nil, err
	}
	return r.lookup(id, "classifier")
}

// lookup joins a cluster id with its descriptor and population count. An id
// without a reference entry means the artifacts have drifted apart.
func (r *Resolver) lookup(id domain.ClusterID, source string) (*domain.MatchResult, error) {
	d, ok := r.reference.Descriptor(id)
	if !ok {
		return nil, domain.NewArtifactError(source, fmt.Errorf("cluster %q has no reference entry", id))
	}
	return &domain.MatchResult{
		Cluster:         d,
		PopulationCount: r.population.CountInCluster(id),
	}, nil
}

// ErrorClass returns a short label for logs and exit messages.
func ErrorClass(err error) string {
	if pe, ok := domain.AsProviderError(err); ok {
		return "provider_" + string(pe.Kind)
	}
	switch {
	case errors.Is(err, domain.ErrInvalidQuery):
		return "invalid_query"
	case errors.Is(err, domain.ErrInvalidProfile):
		return "invalid_profile"
	case errors.Is(err, domain.ErrIndexUnavailable):
		return "index_unavailable"
	case errors.Is(err, domain.ErrNoMatch):
		return "no_match"
	case errors.Is(err, domain.ErrArtifactLoad):
		return "artifact"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return "cancelled"
	default:
		return "internal"
	}
}
