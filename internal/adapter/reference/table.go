package reference

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"

	"clustermatch/internal/domain"
	"clustermatch/internal/port"
)

// ArtifactName is the label used in ArtifactErrors raised by this package.
const ArtifactName = "reference"

type entry struct {
	Name               string `json:"name"`
	Description        string `json:"description"`
	ImageryDescription string `json:"image_description"`
	ImageBase64        string `json:"image_base64"`
}

// Table is the read-only cluster reference data.
type Table struct {
	descriptors map[domain.ClusterID]domain.ClusterDescriptor
	ids         []domain.ClusterID
}

var _ port.ReferenceTable = (*Table)(nil)

func LoadFile(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, domain.NewArtifactError(ArtifactName, err)
	}
	return Parse(data)
}

// Parse decodes a JSON object keyed by cluster id. Imagery is decoded from
// base64 and its MIME type sniffed.
func Parse(data []byte) (*Table, error) {
	var raw map[string]entry
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, domain.NewArtifactError(ArtifactName, fmt.Errorf("decode: %w", err))
	}
	if len(raw) == 0 {
		return nil, domain.NewArtifactError(ArtifactName, errors.New("no clusters"))
	}

	t := &Table{descriptors: make(map[domain.ClusterID]domain.ClusterDescriptor, len(raw))}
	for key, e := range raw {
		id := domain.ClusterID(key)
		if strings.TrimSpace(e.Name) == "" {
			return nil, domain.NewArtifactError(ArtifactName, fmt.Errorf("%s: empty name", id))
		}
		d := domain.ClusterDescriptor{
			ID:                 id,
			Name:               e.Name,
			Description:        e.Description,
			ImageryDescription: e.ImageryDescription,
		}
		if e.ImageBase64 != "" {
			img, err := base64.StdEncoding.DecodeString(e.ImageBase64)
			if err != nil {
				return nil, domain.NewArtifactError(ArtifactName, fmt.Errorf("%s: image_base64: %w", id, err))
			}
			d.Imagery = img
			d.ImageryMIME = http.DetectContentType(img)
		}
		t.descriptors[id] = d
		t.ids = append(t.ids, id)
	}
	sort.Slice(t.ids, func(i, j int) bool { return lessID(t.ids[i], t.ids[j]) })
	return t, nil
}

// Descriptor returns the reference entry for id.
func (t *Table) Descriptor(id domain.ClusterID) (domain.ClusterDescriptor, bool) {
	d, ok := t.descriptors[id]
	return d, ok
}

// IDs returns all cluster ids, "Cluster 2" before "Cluster 10".
func (t *Table) IDs() []domain.ClusterID {
	out := make([]domain.ClusterID, len(t.ids))
	copy(out, t.ids)
	return out
}

// Len returns the number of clusters.
func (t *Table) Len() int {
	return len(t.ids)
}

// Require fails with an ArtifactError naming artifact if any id has no
// reference entry.
func (t *Table) Require(artifact string, ids []domain.ClusterID) error {
	for _, id := range ids {
		if _, ok := t.descriptors[id]; !ok {
			return domain.NewArtifactError(artifact, fmt.Errorf("cluster %q has no reference entry", id))
		}
	}
	return nil
}

func lessID(a, b domain.ClusterID) bool {
	na, okA := trailingNumber(string(a))
	nb, okB := trailingNumber(string(b))
	if okA && okB && na != nb {
		return na < nb
	}
	return a < b
}

func trailingNumber(s string) (int, bool) {
	i := strings.LastIndexByte(s, ' ')
	n, err := strconv.Atoi(s[i+1:])
	return n, err == nil
}
