package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"clustermatch/internal/adapter/classifier"
	"clustermatch/internal/adapter/population"
	"clustermatch/internal/adapter/reference"
	"clustermatch/internal/domain"
)

// CatalogPaths locates the three static artifacts.
type CatalogPaths struct {
	Model      string
	Population string
	Reference  string
	Delimiter  string
}

// Catalog holds the loaded static artifacts. Everything except the
// classifier loader is read-only after LoadCatalog returns.
type Catalog struct {
	Classifier *classifier.Lazy
	Population *population.Table
	Reference  *reference.Table
}

// ClusterSummary is one line of the cluster catalogue.
type ClusterSummary struct {
	Cluster domain.ClusterDescriptor `json:"cluster"`
	Size    int                      `json:"size"`
}

// LoadCatalog reads the reference table and the classifier concurrently,
// assigns the population with the classifier, and checks that every cluster
// the classifier or the population can produce has a reference entry and
// every dataset choice is known to the classifier. ctx is checked before the
// population is assigned.
func LoadCatalog(ctx context.Context, paths CatalogPaths, logger *slog.Logger) (*Catalog, error) {
	if logger == nil {
		logger = slog.Default()
	}
	start := time.Now()

	lazy := classifier.NewLazyFile(paths.Model)
	var (
		ref   *reference.Table
		model *classifier.Model
	)

	var g errgroup.Group
	g.Go(func() error {
		var err error
		ref, err = reference.LoadFile(paths.Reference)
		return err
	})
	g.Go(func() error {
		var err error
		model, err = lazy.Model()
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if err := ref.Require(classifier.ArtifactName, model.Clusters()); err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pop, err := population.LoadFile(paths.Population, paths.Delimiter, model)
	if err != nil {
		return nil, err
	}
	if err := ref.Require(population.ArtifactName, pop.Clusters()); err != nil {
		return nil, err
	}
	if err := requireKnownOptions(model, pop); err != nil {
		return nil, err
	}

	logger.Debug("catalog loaded",
		"model", model.Identity(),
		"clusters", ref.Len(),
		"rows", pop.Total(),
		"took", time.Since(start))

	return &Catalog{
		Classifier: lazy,
		Population: pop,
		Reference:  ref,
	}, nil
}

// requireKnownOptions fails when the dataset offers a form choice the
// classifier cannot encode.
func requireKnownOptions(model *classifier.Model, pop *population.Table) error {
	for _, feature := range []string{domain.FeatureEducation, domain.FeatureAnimals} {
		known := make(map[string]bool)
		for _, c := range model.Categories(feature) {
			known[c] = true
		}
		for _, v := range pop.Options(feature) {
			if !known[v] {
				return domain.NewArtifactError(population.ArtifactName,
					fmt.Errorf("%s value %q is unknown to %s", feature, v, model.Identity()))
			}
		}
	}
	return nil
}

// Summaries lists every cluster with its population size, in id order.
func (c *Catalog) Summaries() []ClusterSummary {
	ids := c.Reference.IDs()
	out := make([]ClusterSummary, 0, len(ids))
	for _, id := range ids {
		d, _ := c.Reference.Descriptor(id)
		out = append(out, ClusterSummary{Cluster: d, Size: c.Population.CountInCluster(id)})
	}
	return out
}

// FormOptions returns the choice lists of the profile form. Fixed enums come
// from the domain; education and animal choices come from the dataset.
type FormOptions struct {
	Ages      []domain.AgeBracket `json:"age"`
	Education []string            `json:"edu_level"`
	Animals   []string            `json:"fav_animals"`
	Places    []domain.Place      `json:"fav_place"`
	Genders   []domain.Gender     `json:"gender"`
}

func (c *Catalog) FormOptions() FormOptions {
	return FormOptions{
		Ages:      domain.AgeBrackets,
		Education: c.Population.Options(domain.FeatureEducation),
		Animals:   c.Population.Options(domain.FeatureAnimals),
		Places:    domain.Places,
		Genders:   domain.Genders,
	}
}

// Describe returns a one-line summary for logs and the CLI header.
func (c *Catalog) Describe() string {
	model, err := c.Classifier.Model()
	if err != nil {
		return fmt.Sprintf("%d clusters, %d respondents", c.Reference.Len(), c.Population.Total())
	}
	return fmt.Sprintf("%s: %d clusters, %d respondents", model.Identity(), c.Reference.Len(), c.Population.Total())
}
