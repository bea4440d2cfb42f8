package vectorindex

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"clustermatch/internal/domain"
	"clustermatch/internal/port"
)

type fakePoints struct {
	queryErrs  []error
	points     []*qdrant.ScoredPoint
	queries    int
	lastQuery  *qdrant.QueryPoints
	upserts    []*qdrant.UpsertPoints
	exists     bool
	created    *qdrant.CreateCollection
	deleted    bool
	closeCalls int
}

func (f *fakePoints) Query(ctx context.Context, req *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error) {
	f.queries++
	f.lastQuery = req
	if len(f.queryErrs) > 0 {
		err := f.queryErrs[0]
		f.queryErrs = f.queryErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	return f.points, nil
}

func (f *fakePoints) Upsert(ctx context.Context, req *qdrant.UpsertPoints) (*qdrant.UpdateResult, error) {
	f.upserts = append(f.upserts, req)
	return &qdrant.UpdateResult{}, nil
}

func (f *fakePoints) CollectionExists(ctx context.Context, name string) (bool, error) {
	return f.exists, nil
}

func (f *fakePoints) CreateCollection(ctx context.Context, req *qdrant.CreateCollection) error {
	f.created = req
	return nil
}

func (f *fakePoints) DeleteCollection(ctx context.Context, name string) error {
	f.deleted = true
	return nil
}

func (f *fakePoints) Close() error {
	f.closeCalls++
	return nil
}

func testOptions() Options {
	return Options{
		Collection:    "welcome_survey",
		Dimension:     3,
		Timeout:       time.Second,
		MaxAttempts:   3,
		RetryInterval: time.Millisecond,
	}
}

func scored(cluster, name string, score float32) *qdrant.ScoredPoint {
	return &qdrant.ScoredPoint{
		Id:    qdrant.NewID(PointID(domain.ClusterID(cluster))),
		Score: score,
		Payload: qdrant.NewValueMap(map[string]any{
			PayloadCluster:            cluster,
			PayloadName:               name,
			PayloadDescription:        "desc",
			PayloadImageryDescription: "imagery",
		}),
	}
}

func TestQdrantIndex_Nearest(t *testing.T) {
	fake := &fakePoints{points: []*qdrant.ScoredPoint{scored("Cluster 0", "Forest Walkers", 0.83)}}
	q := newQdrantIndex(fake, testOptions())

	hits, err := q.Nearest(context.Background(), []float32{1, 0, 0}, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 {
		t.Fatalf("expected 1 hit, got %d", len(hits))
	}
	h := hits[0]
	if h.ClusterID != "Cluster 0" || h.Payload.Name != "Forest Walkers" || h.Payload.ImageryDescription != "imagery" {
		t.Errorf("unexpected hit %+v", h)
	}
	if h.Score < 0.82 || h.Score > 0.84 {
		t.Errorf("unexpected score %f", h.Score)
	}
	if fake.lastQuery.GetCollectionName() != "welcome_survey" || fake.lastQuery.GetLimit() != 1 {
		t.Errorf("unexpected request %+v", fake.lastQuery)
	}
}

func TestQdrantIndex_EmptyResult(t *testing.T) {
	q := newQdrantIndex(&fakePoints{}, testOptions())
	hits, err := q.Nearest(context.Background(), []float32{1, 0, 0}, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 0 {
		t.Errorf("expected no hits, got %v", hits)
	}
}

func TestQdrantIndex_ClampsScore(t *testing.T) {
	fake := &fakePoints{points: []*qdrant.ScoredPoint{scored("Cluster 1", "x", -0.2)}}
	q := newQdrantIndex(fake, testOptions())
	hits, err := q.Nearest(context.Background(), []float32{1, 0, 0}, 1)
	if err != nil {
		t.Fatal(err)
	}
	if hits[0].Score != 0 {
		t.Errorf("expected clamped score 0, got %f", hits[0].Score)
	}
}

func TestQdrantIndex_RetriesTransient(t *testing.T) {
	unavailable := status.Error(codes.Unavailable, "connection refused")
	fake := &fakePoints{
		queryErrs: []error{unavailable, unavailable, nil},
		points:    []*qdrant.ScoredPoint{scored("Cluster 2", "Mountain Starters", 0.5)},
	}
	q := newQdrantIndex(fake, testOptions())

	hits, err := q.Nearest(context.Background(), []float32{1, 0, 0}, 1)
	if err != nil {
		t.Fatalf("expected success on third attempt, got %v", err)
	}
	if fake.queries != 3 {
		t.Errorf("expected 3 attempts, got %d", fake.queries)
	}
	if hits[0].ClusterID != "Cluster 2" {
		t.Errorf("unexpected hit %+v", hits[0])
	}
}

func TestQdrantIndex_ExhaustedRetries(t *testing.T) {
	unavailable := status.Error(codes.Unavailable, "connection refused")
	fake := &fakePoints{queryErrs: []error{unavailable, unavailable, unavailable, unavailable}}
	q := newQdrantIndex(fake, testOptions())

	_, err := q.Nearest(context.Background(), []float32{1, 0, 0}, 1)
	if !errors.Is(err, domain.ErrIndexUnavailable) {
		t.Fatalf("expected ErrIndexUnavailable, got %v", err)
	}
	if fake.queries != 3 {
		t.Errorf("expected 3 attempts, got %d", fake.queries)
	}
}

func TestQdrantIndex_NoRetryOnPermanentError(t *testing.T) {
	fake := &fakePoints{queryErrs: []error{status.Error(codes.NotFound, "collection not found")}}
	q := newQdrantIndex(fake, testOptions())

	_, err := q.Nearest(context.Background(), []float32{1, 0, 0}, 1)
	if !errors.Is(err, domain.ErrIndexUnavailable) {
		t.Fatalf("expected ErrIndexUnavailable, got %v", err)
	}
	if fake.queries != 1 {
		t.Errorf("expected a single attempt, got %d", fake.queries)
	}
}

func TestQdrantIndex_MissingClusterPayload(t *testing.T) {
	fake := &fakePoints{points: []*qdrant.ScoredPoint{{Score: 0.9, Payload: qdrant.NewValueMap(map[string]any{"name": "x"})}}}
	q := newQdrantIndex(fake, testOptions())

	_, err := q.Nearest(context.Background(), []float32{1, 0, 0}, 1)
	if !errors.Is(err, domain.ErrArtifactLoad) {
		t.Errorf("expected ErrArtifactLoad, got %v", err)
	}
}

func TestQdrantIndex_PrepareAndUpsert(t *testing.T) {
	fake := &fakePoints{exists: true}
	q := newQdrantIndex(fake, testOptions())
	ctx := context.Background()

	if err := q.Prepare(ctx); err != nil {
		t.Fatal(err)
	}
	if !fake.deleted {
		t.Error("expected existing collection to be dropped")
	}
	params := fake.created.GetVectorsConfig().GetParams()
	if params.GetSize() != 3 || params.GetDistance() != qdrant.Distance_Cosine {
		t.Errorf("unexpected vector params %+v", params)
	}

	err := q.Upsert(ctx, []port.VectorItem{{
		ClusterID: "Cluster 0",
		Vector:    []float32{1, 0, 0},
		Payload:   domain.ClusterPayload{Name: "Forest Walkers", Description: "d", ImageryDescription: "i"},
	}})
	if err != nil {
		t.Fatal(err)
	}
	if len(fake.upserts) != 1 {
		t.Fatalf("expected one upsert, got %d", len(fake.upserts))
	}
	pt := fake.upserts[0].GetPoints()[0]
	if pt.GetId().GetUuid() != PointID("Cluster 0") {
		t.Errorf("unexpected point id %v", pt.GetId())
	}
	if got := pt.GetPayload()[PayloadCluster].GetStringValue(); got != "Cluster 0" {
		t.Errorf("unexpected cluster payload %q", got)
	}

	if err := q.Upsert(ctx, []port.VectorItem{{ClusterID: "Cluster 1", Vector: []float32{1}}}); err == nil {
		t.Error("expected dimension mismatch error")
	}
}

func TestParseEndpoint(t *testing.T) {
	tests := []struct {
		raw      string
		grpcPort int
		host     string
		port     int
		tls      bool
	}{
		{"https://xyz.cloud.qdrant.io:6333", 6334, "xyz.cloud.qdrant.io", 6334, true},
		{"http://localhost:6333", 6334, "localhost", 6334, false},
		{"localhost:6334", 0, "localhost", 6334, false},
		{"qdrant", 6334, "qdrant", 6334, false},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			host, port, tls, err := ParseEndpoint(tt.raw, tt.grpcPort)
			if err != nil {
				t.Fatal(err)
			}
			if host != tt.host || port != tt.port || tls != tt.tls {
				t.Errorf("got %s:%d tls=%v, want %s:%d tls=%v", host, port, tls, tt.host, tt.port, tt.tls)
			}
		})
	}

	if _, _, _, err := ParseEndpoint("", 6334); !errors.Is(err, domain.ErrIndexUnavailable) {
		t.Errorf("expected ErrIndexUnavailable for empty url, got %v", err)
	}
}

func TestPointID_Stable(t *testing.T) {
	if PointID("Cluster 0") != PointID("Cluster 0") {
		t.Error("point id must be stable")
	}
	if PointID("Cluster 0") == PointID("Cluster 1") {
		t.Error("point ids must differ per cluster")
	}
}
