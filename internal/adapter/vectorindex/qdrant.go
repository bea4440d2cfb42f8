package vectorindex

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"golang.org/x/time/rate"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"clustermatch/internal/domain"
	"clustermatch/internal/port"
)

// Payload keys written by the seeding job.
const (
	PayloadCluster            = "cluster"
	PayloadName               = "name"
	PayloadDescription        = "description"
	PayloadImageryDescription = "image_description"
)

// pointsAPI is the subset of *qdrant.Client used here.
type pointsAPI interface {
	Query(ctx context.Context, request *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error)
	Upsert(ctx context.Context, request *qdrant.UpsertPoints) (*qdrant.UpdateResult, error)
	CollectionExists(ctx context.Context, collectionName string) (bool, error)
	CreateCollection(ctx context.Context, request *qdrant.CreateCollection) error
	DeleteCollection(ctx context.Context, collectionName string) error
	Close() error
}

// Options configures a QdrantIndex.
type Options struct {
	Host          string
	Port          int
	APIKey        string
	UseTLS        bool
	Collection    string
	Dimension     int
	Timeout       time.Duration
	MaxAttempts   int
	RetryInterval time.Duration
	Logger        *slog.Logger
}

func (o *Options) setDefaults() {
	if o.Port <= 0 {
		o.Port = 6334
	}
	if o.Collection == "" {
		o.Collection = "welcome_survey"
	}
	if o.Timeout <= 0 {
		o.Timeout = 10 * time.Second
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.RetryInterval <= 0 {
		o.RetryInterval = 200 * time.Millisecond
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// QdrantIndex implements the cluster vector index against a Qdrant
// collection over gRPC.
type QdrantIndex struct {
	api  pointsAPI
	opts Options
}

var (
	_ port.VectorIndex  = (*QdrantIndex)(nil)
	_ port.VectorWriter = (*QdrantIndex)(nil)
)

// NewQdrantIndex connects to Qdrant. Connection parameters are fixed for the
// lifetime of the returned index.
func NewQdrantIndex(opts Options) (*QdrantIndex, error) {
	opts.setDefaults()
	if opts.Host == "" {
		return nil, fmt.Errorf("%w: no qdrant host configured", domain.ErrIndexUnavailable)
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   opts.Host,
		Port:   opts.Port,
		APIKey: opts.APIKey,
		UseTLS: opts.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrIndexUnavailable, err)
	}
	return newQdrantIndex(client, opts), nil
}

func newQdrantIndex(api pointsAPI, opts Options) *QdrantIndex {
	opts.setDefaults()
	return &QdrantIndex{api: api, opts: opts}
}

// ParseEndpoint splits a Qdrant URL such as https://xyz.cloud.qdrant.io:6333
// into the gRPC host, port and TLS setting. The REST port in the URL is
// replaced by grpcPort.
func ParseEndpoint(raw string, grpcPort int) (host string, port int, useTLS bool, err error) {
	if raw == "" {
		return "", 0, false, fmt.Errorf("%w: qdrant url is empty", domain.ErrIndexUnavailable)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", 0, false, fmt.Errorf("%w: %v", domain.ErrIndexUnavailable, err)
	}
	if u.Host == "" {
		// Bare "host:port" or "host".
		u = &url.URL{Host: raw}
	}

	host = u.Hostname()
	if host == "" {
		return "", 0, false, fmt.Errorf("%w: no host in %q", domain.ErrIndexUnavailable, raw)
	}
	port = grpcPort
	if port <= 0 {
		if p, perr := strconv.Atoi(u.Port()); perr == nil {
			port = p
		}
	}
	return host, port, u.Scheme == "https", nil
}

// Addr returns host:port of the configured endpoint.
func (q *QdrantIndex) Addr() string {
	return net.JoinHostPort(q.opts.Host, strconv.Itoa(q.opts.Port))
}

// Nearest implements port.VectorIndex.
func (q *QdrantIndex) Nearest(ctx context.Context, query []float32, topK int) ([]domain.IndexHit, error) {
	if topK <= 0 {
		return nil, nil
	}

	var points []*qdrant.ScoredPoint
	err := q.withRetry(ctx, "query", func(ctx context.Context) error {
		var err error
		points, err = q.api.Query(ctx, &qdrant.QueryPoints{
			CollectionName: q.opts.Collection,
			Query:          qdrant.NewQuery(query...),
			Limit:          qdrant.PtrOf(uint64(topK)),
			WithPayload:    qdrant.NewWithPayload(true),
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	hits := make([]domain.IndexHit, 0, len(points))
	for _, p := range points {
		payload := p.GetPayload()
		id := payload[PayloadCluster].GetStringValue()
		if id == "" {
			return nil, domain.NewArtifactError("index", fmt.Errorf("point %v has no %q payload", p.GetId(), PayloadCluster))
		}
		hits = append(hits, domain.IndexHit{
			ClusterID: domain.ClusterID(id),
			Score:     domain.ClampScore(float64(p.GetScore())),
			Payload: domain.ClusterPayload{
				Name:               payload[PayloadName].GetStringValue(),
				Description:        payload[PayloadDescription].GetStringValue(),
				ImageryDescription: payload[PayloadImageryDescription].GetStringValue(),
			},
		})
	}
	return hits, nil
}

// Prepare recreates the collection with cosine distance.
func (q *QdrantIndex) Prepare(ctx context.Context) error {
	return q.withRetry(ctx, "prepare", func(ctx context.Context) error {
		exists, err := q.api.CollectionExists(ctx, q.opts.Collection)
		if err != nil {
			return err
		}
		if exists {
			if err := q.api.DeleteCollection(ctx, q.opts.Collection); err != nil {
				return err
			}
		}
		return q.api.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: q.opts.Collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(q.opts.Dimension),
				Distance: qdrant.Distance_Cosine,
			}),
		})
	})
}

// Upsert implements port.VectorWriter. Point ids are derived from the
// cluster id so reseeding overwrites in place.
func (q *QdrantIndex) Upsert(ctx context.Context, items []port.VectorItem) error {
	points := make([]*qdrant.PointStruct, 0, len(items))
	for _, item := range items {
		if q.opts.Dimension > 0 && len(item.Vector) != q.opts.Dimension {
			return fmt.Errorf("vector dimension mismatch: expected %d, got %d", q.opts.Dimension, len(item.Vector))
		}
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewID(PointID(item.ClusterID)),
			Vectors: qdrant.NewVectors(item.Vector...),
			Payload: qdrant.NewValueMap(map[string]any{
				PayloadCluster:            string(item.ClusterID),
				PayloadName:               item.Payload.Name,
				PayloadDescription:        item.Payload.Description,
				PayloadImageryDescription: item.Payload.ImageryDescription,
			}),
		})
	}

	return q.withRetry(ctx, "upsert", func(ctx context.Context) error {
		_, err := q.api.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: q.opts.Collection,
			Wait:           qdrant.PtrOf(true),
			Points:         points,
		})
		return err
	})
}

func (q *QdrantIndex) Close() error {
	return q.api.Close()
}

// PointID returns the stable point UUID for a cluster.
func PointID(id domain.ClusterID) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(id)).String()
}

// withRetry runs fn under the per-call timeout, pacing attempts with a rate
// limiter. Failures map to ErrIndexUnavailable.
func (q *QdrantIndex) withRetry(ctx context.Context, op string, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, q.opts.Timeout)
	defer cancel()

	limiter := rate.NewLimiter(rate.Every(q.opts.RetryInterval), 1)
	var lastErr error
	for attempt := 1; attempt <= q.opts.MaxAttempts; attempt++ {
		if err := limiter.Wait(ctx); err != nil {
			if lastErr == nil {
				lastErr = err
			}
			break
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !retryable(lastErr) {
			break
		}
		q.opts.Logger.Debug("qdrant call failed, retrying",
			"op", op,
			"attempt", attempt,
			"code", status.Code(lastErr).String())
	}
	return fmt.Errorf("%w: qdrant %s: %v", domain.ErrIndexUnavailable, op, lastErr)
}

func retryable(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return false
	}
	switch status.Code(err) {
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted, codes.Aborted:
		return true
	default:
		return false
	}
}
