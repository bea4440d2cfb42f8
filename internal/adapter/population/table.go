package population

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"unicode/utf8"

	"clustermatch/internal/domain"
	"clustermatch/internal/port"
)

// ArtifactName is the label used in ArtifactErrors raised by this package.
const ArtifactName = "population"

// Assigner maps a raw dataset row to a cluster. It must accept rows with
// missing answers.
type Assigner interface {
	Predict(r domain.FeatureRecord) domain.ClusterID
}

// Row is one respondent with its cluster assignment.
type Row struct {
	Record  domain.FeatureRecord
	Cluster domain.ClusterID
}

// Table is the respondent dataset grouped by cluster. It is immutable after
// Load and safe for concurrent reads.
type Table struct {
	rows    []Row
	counts  map[domain.ClusterID]int
	options map[string][]string
}

var _ port.PopulationCounter = (*Table)(nil)

// LoadFile reads a delimited dataset file and assigns every row.
func LoadFile(path, delimiter string, assign Assigner) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, domain.NewArtifactError(ArtifactName, err)
	}
	defer f.Close()
	return Load(f, delimiter, assign)
}

// Load reads a dataset with a header row. Columns are matched by name; extra
// columns are ignored.
func Load(r io.Reader, delimiter string, assign Assigner) (*Table, error) {
	comma, size := utf8.DecodeRuneInString(delimiter)
	if size == 0 || size != len(delimiter) {
		return nil, domain.NewArtifactError(ArtifactName, fmt.Errorf("delimiter must be a single character, got %q", delimiter))
	}

	cr := csv.NewReader(r)
	cr.Comma = comma
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			err = errors.New("empty dataset")
		}
		return nil, domain.NewArtifactError(ArtifactName, fmt.Errorf("header: %w", err))
	}
	columns, err := locate(header)
	if err != nil {
		return nil, domain.NewArtifactError(ArtifactName, err)
	}

	t := &Table{
		counts:  make(map[domain.ClusterID]int),
		options: make(map[string][]string, len(domain.FeatureNames)),
	}
	seen := make(map[string]map[string]bool, len(domain.FeatureNames))
	for _, name := range domain.FeatureNames {
		seen[name] = make(map[string]bool)
	}

	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, domain.NewArtifactError(ArtifactName, err)
		}

		cell := func(feature string) string {
			return strings.TrimSpace(rec[columns[feature]])
		}
		record := domain.FeatureRecord{
			Age:       domain.AgeBracket(cell(domain.FeatureAge)),
			Education: cell(domain.FeatureEducation),
			Animals:   cell(domain.FeatureAnimals),
			Place:     domain.Place(cell(domain.FeaturePlace)),
			Gender:    domain.Gender(cell(domain.FeatureGender)),
		}
		for _, name := range domain.FeatureNames {
			v := record.Value(name)
			if v != "" && !seen[name][v] {
				seen[name][v] = true
				t.options[name] = append(t.options[name], v)
			}
		}

		id := assign.Predict(record)
		t.rows = append(t.rows, Row{Record: record, Cluster: id})
		t.counts[id]++
	}
	return t, nil
}

func locate(header []string) (map[string]int, error) {
	columns := make(map[string]int, len(domain.FeatureNames))
	for i, h := range header {
		columns[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}
	out := make(map[string]int, len(domain.FeatureNames))
	for _, name := range domain.FeatureNames {
		i, ok := columns[name]
		if !ok {
			return nil, fmt.Errorf("missing column %q", name)
		}
		out[name] = i
	}
	return out, nil
}

// CountInCluster returns the number of rows assigned to id; unknown ids count 0.
func (t *Table) CountInCluster(id domain.ClusterID) int {
	return t.counts[id]
}

// Total returns the number of rows.
func (t *Table) Total() int {
	return len(t.rows)
}

// Rows returns the rows in file order.
func (t *Table) Rows() []Row {
	out := make([]Row, len(t.rows))
	copy(out, t.rows)
	return out
}

// Options returns the distinct non-empty values of feature in first-seen order.
func (t *Table) Options(feature string) []string {
	out := make([]string, len(t.options[feature]))
	copy(out, t.options[feature])
	return out
}

// Clusters returns the distinct assigned cluster ids, sorted.
func (t *Table) Clusters() []domain.ClusterID {
	ids := make([]domain.ClusterID, 0, len(t.counts))
	for id := range t.counts {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
