package classifier

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"gonum.org/v1/gonum/floats"

	"clustermatch/internal/domain"
)

// ArtifactName is the label used in ArtifactErrors raised by this package.
const ArtifactName = "classifier"

// Artifact is the on-disk form of a trained nearest-centroid model. Centroids
// are sparse: a missing category has weight zero.
type Artifact struct {
	Name     string            `json:"name"`
	Version  string            `json:"version"`
	Features []FeatureSpec     `json:"features"`
	Clusters []ClusterCentroid `json:"clusters"`
}

// FeatureSpec is one categorical input column and its one-hot vocabulary.
type FeatureSpec struct {
	Name       string   `json:"name"`
	Categories []string `json:"categories"`
}

// ClusterCentroid maps feature -> category -> weight.
type ClusterCentroid struct {
	ID       domain.ClusterID              `json:"id"`
	Centroid map[string]map[string]float64 `json:"centroid"`
}

// Model assigns feature records to the cluster with the nearest centroid.
// It is immutable once built and safe for concurrent use.
type Model struct {
	identity  string
	features  []FeatureSpec
	offsets   []int
	positions []map[string]int
	width     int
	ids       []domain.ClusterID
	centroids [][]float64
}

// LoadFile reads and builds a model from a JSON artifact.
func LoadFile(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, domain.NewArtifactError(ArtifactName, err)
	}
	return Parse(data)
}

// Parse builds a model from JSON artifact bytes.
func Parse(data []byte) (*Model, error) {
	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, domain.NewArtifactError(ArtifactName, fmt.Errorf("decode: %w", err))
	}
	return New(a)
}

// New validates a and expands its centroids into dense vectors.
func New(a Artifact) (*Model, error) {
	if err := validate(a); err != nil {
		return nil, domain.NewArtifactError(ArtifactName, err)
	}

	m := &Model{
		identity:  a.Name + "@" + a.Version,
		features:  a.Features,
		offsets:   make([]int, len(a.Features)),
		positions: make([]map[string]int, len(a.Features)),
	}
	for i, f := range a.Features {
		m.offsets[i] = m.width
		m.positions[i] = make(map[string]int, len(f.Categories))
		for j, c := range f.Categories {
			m.positions[i][c] = j
		}
		m.width += len(f.Categories)
	}

	for _, c := range a.Clusters {
		vec := make([]float64, m.width)
		for i, f := range a.Features {
			for category, w := range c.Centroid[f.Name] {
				vec[m.offsets[i]+m.positions[i][category]] = w
			}
		}
		m.ids = append(m.ids, c.ID)
		m.centroids = append(m.centroids, vec)
	}
	return m, nil
}

func validate(a Artifact) error {
	if a.Name == "" || a.Version == "" {
		return errors.New("missing name or version")
	}
	if len(a.Features) == 0 {
		return errors.New("no features")
	}
	if len(a.Clusters) == 0 {
		return errors.New("no clusters")
	}

	known := make(map[string]bool, len(domain.FeatureNames))
	for _, name := range domain.FeatureNames {
		known[name] = true
	}
	vocab := make(map[string]map[string]bool, len(a.Features))
	for _, f := range a.Features {
		if !known[f.Name] {
			return fmt.Errorf("unknown feature %q", f.Name)
		}
		if vocab[f.Name] != nil {
			return fmt.Errorf("duplicate feature %q", f.Name)
		}
		if len(f.Categories) == 0 {
			return fmt.Errorf("feature %q has no categories", f.Name)
		}
		set := make(map[string]bool, len(f.Categories))
		for _, c := range f.Categories {
			if set[c] {
				return fmt.Errorf("feature %q: duplicate category %q", f.Name, c)
			}
			set[c] = true
		}
		vocab[f.Name] = set
	}

	seen := make(map[domain.ClusterID]bool, len(a.Clusters))
	for _, c := range a.Clusters {
		if c.ID == "" {
			return errors.New("cluster with empty id")
		}
		if seen[c.ID] {
			return fmt.Errorf("duplicate cluster %q", c.ID)
		}
		seen[c.ID] = true
		for feature, weights := range c.Centroid {
			set, ok := vocab[feature]
			if !ok {
				return fmt.Errorf("cluster %q: unknown feature %q", c.ID, feature)
			}
			for category := range weights {
				if !set[category] {
					return fmt.Errorf("cluster %q: unknown %s category %q", c.ID, feature, category)
				}
			}
		}
	}
	return nil
}

// Identity returns "name@version" of the loaded artifact.
func (m *Model) Identity() string {
	return m.identity
}

// Clusters returns the cluster ids in artifact order.
func (m *Model) Clusters() []domain.ClusterID {
	out := make([]domain.ClusterID, len(m.ids))
	copy(out, m.ids)
	return out
}

// Categories returns the vocabulary of feature, or nil if the model does not use it.
func (m *Model) Categories(feature string) []string {
	for _, f := range m.features {
		if f.Name == feature {
			out := make([]string, len(f.Categories))
			copy(out, f.Categories)
			return out
		}
	}
	return nil
}

// Classify assigns a well-formed record. Any value outside the artifact's
// vocabulary fails with ErrInvalidProfile.
func (m *Model) Classify(r domain.FeatureRecord) (domain.ClusterID, error) {
	vec, err := m.encode(r, true)
	if err != nil {
		return "", err
	}
	return m.nearest(vec), nil
}

// Predict assigns any record. Empty or unseen values encode as an absent
// feature, the way the batch pipeline treats missing survey answers.
func (m *Model) Predict(r domain.FeatureRecord) domain.ClusterID {
	vec, _ := m.encode(r, false)
	return m.nearest(vec)
}

func (m *Model) encode(r domain.FeatureRecord, strict bool) ([]float64, error) {
	vec := make([]float64, m.width)
	for i, f := range m.features {
		value := r.Value(f.Name)
		pos, ok := m.positions[i][value]
		if !ok {
			if strict {
				return nil, fmt.Errorf("%w: %s %q is not a known category", domain.ErrInvalidProfile, f.Name, value)
			}
			continue
		}
		vec[m.offsets[i]+pos] = 1
	}
	return vec, nil
}

// nearest returns the closest centroid; ties go to the lower index.
func (m *Model) nearest(vec []float64) domain.ClusterID {
	best := 0
	bestDist := floats.Distance(vec, m.centroids[0], 2)
	for i := 1; i < len(m.centroids); i++ {
		if d := floats.Distance(vec, m.centroids[i], 2); d < bestDist {
			best, bestDist = i, d
		}
	}
	return m.ids[best]
}
