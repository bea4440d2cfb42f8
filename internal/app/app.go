// Package app wires configuration, artifacts, and adapters into the use
// cases shared by the CLI and the benchmark tool.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"clustermatch/config"
	"clustermatch/internal/adapter/cache"
	"clustermatch/internal/adapter/embedding"
	"clustermatch/internal/adapter/fs"
	"clustermatch/internal/adapter/memstore"
	"clustermatch/internal/adapter/store"
	"clustermatch/internal/adapter/vectorindex"
	"clustermatch/internal/domain"
	"clustermatch/internal/port"
	"clustermatch/internal/usecase"
)

// Options selects what Open sets up.
type Options struct {
	// WithIndex opens the configured vector index. Profile-only callers
	// leave it off so they work without index credentials.
	WithIndex bool
}

// App is a fully wired clustermatch instance.
type App struct {
	Config    *config.Config
	Root      string
	Logger    *slog.Logger
	Catalog   *usecase.Catalog
	Resolver  *usecase.Resolver
	Embedders *cache.CachedSource

	index   port.VectorIndex
	writer  port.VectorWriter
	closers []func() error
}

// NewLogger builds the process logger from the logging section.
func NewLogger(cfg config.LoggingConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Open loads the artifacts under root and wires the resolver.
func Open(ctx context.Context, cfg *config.Config, root string, logger *slog.Logger, opts Options) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	paths, err := ResolvePaths(cfg, root)
	if err != nil {
		return nil, err
	}
	catalog, err := usecase.LoadCatalog(ctx, paths, logger)
	if err != nil {
		return nil, err
	}

	a := &App{
		Config:  cfg,
		Root:    root,
		Logger:  logger,
		Catalog: catalog,
		Embedders: cache.NewCachedSource(
			EmbedderFactory(cfg),
			cache.NewClientCache(cfg.Embedding.ClientCacheSize, cfg.ClientCacheTTL()),
		),
	}

	if opts.WithIndex {
		if err := a.openIndex(); err != nil {
			a.Close()
			return nil, err
		}
	}

	a.Resolver = usecase.NewResolver(usecase.ResolverDeps{
		Embedders:  a.Embedders,
		Index:      a.index,
		Classifier: catalog.Classifier,
		Population: catalog.Population,
		Reference:  catalog.Reference,
		Timeout:    cfg.EmbeddingTimeout(),
		Logger:     logger,
	})
	return a, nil
}

// ResolvePaths finds the newest version of each artifact in the data dir.
func ResolvePaths(cfg *config.Config, root string) (usecase.CatalogPaths, error) {
	r := fs.NewResolver(cfg.DataDir(root))
	model, err := r.Resolve("classifier", cfg.Data.Model)
	if err != nil {
		return usecase.CatalogPaths{}, err
	}
	population, err := r.Resolve("population", cfg.Data.Population)
	if err != nil {
		return usecase.CatalogPaths{}, err
	}
	reference, err := r.Resolve("reference", cfg.Data.Reference)
	if err != nil {
		return usecase.CatalogPaths{}, err
	}
	return usecase.CatalogPaths{
		Model:      model,
		Population: population,
		Reference:  reference,
		Delimiter:  cfg.Data.Delimiter,
	}, nil
}

// EmbedderFactory builds per-credential embedders for the configured provider.
func EmbedderFactory(cfg *config.Config) cache.Factory {
	return func(cred domain.Credential) (port.Embedder, error) {
		if cred.Empty() {
			return nil, &domain.ProviderError{Kind: domain.ProviderMissingCredential, Err: errors.New("no API key supplied")}
		}
		switch cfg.Embedding.Provider {
		case "mock":
			return embedding.NewMockEmbedder(cfg.Embedding.Dimension), nil
		default:
			return embedding.NewOpenAIEmbedder(string(cred), embedding.Options{
				Model:      cfg.Embedding.Model,
				Dimension:  cfg.Embedding.Dimension,
				BaseURL:    cfg.Embedding.BaseURL,
				Timeout:    cfg.EmbeddingTimeout(),
				MaxRetries: cfg.Embedding.MaxRetries,
			})
		}
	}
}

// CredentialFromEnv returns the credential named by embedding.api_key_env.
// The mock provider needs no real key.
func CredentialFromEnv(cfg *config.Config) domain.Credential {
	cred := domain.Credential(os.Getenv(cfg.Embedding.APIKeyEnv))
	if cred.Empty() && cfg.Embedding.Provider == "mock" {
		return "offline"
	}
	return cred
}

func (a *App) openIndex() error {
	cfg := a.Config
	switch cfg.Index.Backend {
	case "memory":
		x := memstore.NewIndex(cfg.Embedding.Dimension)
		a.index, a.writer = x, x
	case "bolt":
		if err := cfg.EnsureIndexDir(a.Root); err != nil {
			return fmt.Errorf("failed to create index directory: %w", err)
		}
		st, err := store.NewBoltStore(cfg.IndexDBPath(a.Root))
		if err != nil {
			return fmt.Errorf("%w: %v", domain.ErrIndexUnavailable, err)
		}
		a.closers = append(a.closers, st.Close)
		x, err := store.NewBoltClusterIndex(st, cfg)
		if err != nil {
			return fmt.Errorf("%w: %v", domain.ErrIndexUnavailable, err)
		}
		a.index, a.writer = x, x
	default:
		host, grpcPort, useTLS, err := vectorindex.ParseEndpoint(os.Getenv(cfg.Index.URLEnv), cfg.Index.GRPCPort)
		if err != nil {
			return fmt.Errorf("%s: %w", cfg.Index.URLEnv, err)
		}
		x, err := vectorindex.NewQdrantIndex(vectorindex.Options{
			Host:          host,
			Port:          grpcPort,
			APIKey:        os.Getenv(cfg.Index.APIKeyEnv),
			UseTLS:        useTLS,
			Collection:    cfg.Index.Collection,
			Dimension:     cfg.Embedding.Dimension,
			Timeout:       cfg.IndexTimeout(),
			MaxAttempts:   cfg.Index.MaxAttempts,
			RetryInterval: cfg.RetryInterval(),
			Logger:        a.Logger,
		})
		if err != nil {
			return err
		}
		a.closers = append(a.closers, x.Close)
		a.index, a.writer = x, x
	}
	a.Logger.Debug("index opened", "backend", cfg.Index.Backend, "collection", cfg.Index.Collection)
	return nil
}

// Seeder returns the seeding use case for the opened index.
func (a *App) Seeder() (*usecase.SeedUseCase, error) {
	if a.writer == nil {
		return nil, fmt.Errorf("%w: index not opened", domain.ErrIndexUnavailable)
	}
	return usecase.NewSeedUseCase(a.Catalog.Reference, a.writer, 4, a.Logger), nil
}

// Close releases the index.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}
