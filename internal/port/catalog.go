package port

import "clustermatch/internal/domain"

// Classifier assigns a profile to a cluster.
type Classifier interface {
	Classify(record domain.FeatureRecord) (domain.ClusterID, error)
}

// PopulationCounter answers cluster membership statistics.
type PopulationCounter interface {
	CountInCluster(id domain.ClusterID) int
	Total() int
}

// ReferenceTable resolves cluster descriptors.
type ReferenceTable interface {
	Descriptor(id domain.ClusterID) (domain.ClusterDescriptor, bool)
	IDs() []domain.ClusterID
}
