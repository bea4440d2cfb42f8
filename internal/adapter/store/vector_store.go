package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go.etcd.io/bbolt"

	"clustermatch/config"
	"clustermatch/internal/adapter/memstore"
	"clustermatch/internal/domain"
	"clustermatch/internal/port"
)

// BoltClusterIndex implements the cluster vector index on top of BoltStore.
// Vectors are persisted per collection and searched from an in-memory copy.
type BoltClusterIndex struct {
	store *BoltStore
	cfg   *config.Config

	mu    sync.RWMutex
	cache *memstore.Index
	stale string
}

var (
	_ port.VectorIndex  = (*BoltClusterIndex)(nil)
	_ port.VectorWriter = (*BoltClusterIndex)(nil)
)

type storedVector struct {
	Vector  []float32             `json:"v"`
	Payload domain.ClusterPayload `json:"p"`
}

// NewBoltClusterIndex loads the configured collection. An index seeded under
// a different embedding configuration is kept but refuses to serve until
// it is reseeded.
func NewBoltClusterIndex(store *BoltStore, cfg *config.Config) (*BoltClusterIndex, error) {
	x := &BoltClusterIndex{
		store: store,
		cfg:   cfg,
		cache: memstore.NewIndex(cfg.Embedding.Dimension),
	}

	rebuild, reason, err := store.NeedsRebuild(cfg)
	if err != nil {
		return nil, err
	}
	if rebuild {
		x.stale = reason
		return x, nil
	}

	if err := x.loadVectors(); err != nil {
		return nil, fmt.Errorf("failed to load vectors: %w", err)
	}
	return x, nil
}

func (x *BoltClusterIndex) loadVectors() error {
	var items []port.VectorItem
	err := x.store.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(collectionBucket(x.cfg.Index.Collection))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			var stored storedVector
			if err := json.Unmarshal(v, &stored); err != nil {
				return fmt.Errorf("corrupt vector %s: %w", k, err)
			}
			items = append(items, port.VectorItem{
				ClusterID: domain.ClusterID(k),
				Vector:    stored.Vector,
				Payload:   stored.Payload,
			})
			return nil
		})
	})
	if err != nil {
		return err
	}
	return x.cache.Upsert(context.Background(), items)
}

// Nearest implements port.VectorIndex.
func (x *BoltClusterIndex) Nearest(ctx context.Context, query []float32, topK int) ([]domain.IndexHit, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if x.stale != "" {
		return nil, fmt.Errorf("%w: %s; run seed", domain.ErrIndexUnavailable, x.stale)
	}
	return x.cache.Nearest(ctx, query, topK)
}

// Prepare empties the collection and stamps the current configuration.
func (x *BoltClusterIndex) Prepare(ctx context.Context) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if err := x.store.Clear(x.cfg.Index.Collection); err != nil {
		return fmt.Errorf("clear collection: %w", err)
	}
	if err := x.store.Migrate(x.cfg); err != nil {
		return err
	}
	x.cache.Reset()
	x.stale = ""
	return nil
}

// Upsert implements port.VectorWriter.
func (x *BoltClusterIndex) Upsert(ctx context.Context, items []port.VectorItem) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.stale != "" {
		return fmt.Errorf("%w: %s; run seed", domain.ErrIndexUnavailable, x.stale)
	}

	dim := x.cache.Dimension()
	err := x.store.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(collectionBucket(x.cfg.Index.Collection))
		if err != nil {
			return err
		}

		for _, item := range items {
			if len(item.Vector) != dim {
				return fmt.Errorf("vector dimension mismatch: expected %d, got %d", dim, len(item.Vector))
			}
			data, err := json.Marshal(storedVector{Vector: item.Vector, Payload: item.Payload})
			if err != nil {
				return err
			}
			if err := b.Put([]byte(item.ClusterID), data); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	return x.cache.Upsert(ctx, items)
}

// Count returns the number of vectors served.
func (x *BoltClusterIndex) Count() int {
	return x.cache.Len()
}
