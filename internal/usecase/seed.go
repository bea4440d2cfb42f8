package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"clustermatch/internal/domain"
	"clustermatch/internal/port"
)

// SeedUseCase writes one vector per cluster into the index.
type SeedUseCase struct {
	reference   port.ReferenceTable
	writer      port.VectorWriter
	concurrency int
	logger      *slog.Logger
}

func NewSeedUseCase(reference port.ReferenceTable, writer port.VectorWriter, concurrency int, logger *slog.Logger) *SeedUseCase {
	if concurrency <= 0 {
		concurrency = 4
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SeedUseCase{
		reference:   reference,
		writer:      writer,
		concurrency: concurrency,
		logger:      logger,
	}
}

// SeedResult contains the results of a seeding run.
type SeedResult struct {
	Clusters  int
	Model     string
	Dimension int
	Duration  time.Duration
}

// Seed embeds each cluster's description and replaces the index contents.
// progress, if set, is called after each embedding.
func (u *SeedUseCase) Seed(ctx context.Context, embedder port.Embedder, progress func(done, total int)) (*SeedResult, error) {
	start := time.Now()
	ids := u.reference.IDs()
	items := make([]port.VectorItem, len(ids))

	var (
		mu   sync.Mutex
		done int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(u.concurrency)
	for i, id := range ids {
		d, _ := u.reference.Descriptor(id)
		g.Go(func() error {
			vec, err := embedder.Embed(gctx, seedText(d))
			if err != nil {
				return fmt.Errorf("embed %s: %w", id, err)
			}
			items[i] = port.VectorItem{
				ClusterID: id,
				Vector:    vec,
				Payload: domain.ClusterPayload{
					Name:               d.Name,
					Description:        d.Description,
					ImageryDescription: d.ImageryDescription,
				},
			}
			if progress != nil {
				mu.Lock()
				done++
				progress(done, len(ids))
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if err := u.writer.Prepare(ctx); err != nil {
		return nil, fmt.Errorf("prepare index: %w", err)
	}
	if err := u.writer.Upsert(ctx, items); err != nil {
		return nil, fmt.Errorf("upsert vectors: %w", err)
	}

	result := &SeedResult{
		Clusters:  len(items),
		Model:     embedder.ModelName(),
		Dimension: embedder.Dimension(),
		Duration:  time.Since(start),
	}
	u.logger.Info("index seeded",
		"clusters", result.Clusters,
		"model", result.Model,
		"took", result.Duration)
	return result, nil
}

// seedText is what gets embedded for a cluster.
func seedText(d domain.ClusterDescriptor) string {
	if strings.TrimSpace(d.Description) != "" {
		return d.Description
	}
	return d.Name
}
