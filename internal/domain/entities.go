package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math"
	"strings"
)

// ClusterID identifies a persona cluster, e.g. "Cluster 3".
type ClusterID string

// AgeBracket is one of the fixed survey age buckets.
type AgeBracket string

const (
	AgeUnder18 AgeBracket = "<18"
	Age18To24  AgeBracket = "18-24"
	Age25To34  AgeBracket = "25-34"
	Age35To44  AgeBracket = "35-44"
	Age45To54  AgeBracket = "45-54"
	Age55To64  AgeBracket = "55-64"
	Age65Plus  AgeBracket = ">=65"
	AgeUnknown AgeBracket = "unknown"
)

// AgeBrackets lists the age buckets in form order.
var AgeBrackets = []AgeBracket{
	AgeUnder18, Age18To24, Age25To34, Age35To44, Age45To54, Age55To64, Age65Plus, AgeUnknown,
}

// Place is the respondent's favourite place.
type Place string

const (
	PlaceByWater    Place = "Nad wodą"
	PlaceForest     Place = "W lesie"
	PlaceMountains  Place = "W górach"
	PlaceAnimalLove Place = "Młodzi Miłośnicy     Zwierząt" // spacing matches the trained artifact
)

// Places lists the place choices in form order.
var Places = []Place{PlaceByWater, PlaceForest, PlaceMountains, PlaceAnimalLove}

// Gender is the respondent's declared gender.
type Gender string

const (
	GenderFemale Gender = "Kobieta"
	GenderMale   Gender = "Mężczyzna"
)

// Genders lists the gender choices in form order.
var Genders = []Gender{GenderFemale, GenderMale}

// Feature column names, shared by the dataset header and the classifier artifact.
const (
	FeatureAge       = "age"
	FeatureEducation = "edu_level"
	FeatureAnimals   = "fav_animals"
	FeaturePlace     = "fav_place"
	FeatureGender    = "gender"
)

// FeatureNames lists the feature columns in canonical order.
var FeatureNames = []string{FeatureAge, FeatureEducation, FeatureAnimals, FeaturePlace, FeatureGender}

// FeatureRecord is the structured profile a respondent fills in.
type FeatureRecord struct {
	Age       AgeBracket
	Education string
	Animals   string
	Place     Place
	Gender    Gender
}

// Value returns the raw value of the named feature column.
func (r FeatureRecord) Value(feature string) string {
	switch feature {
	case FeatureAge:
		return string(r.Age)
	case FeatureEducation:
		return r.Education
	case FeatureAnimals:
		return r.Animals
	case FeaturePlace:
		return string(r.Place)
	case FeatureGender:
		return string(r.Gender)
	default:
		return ""
	}
}

// Validate checks the fixed enum domains. Education and animal values are
// open vocabularies and are checked by the classifier that owns them.
func (r FeatureRecord) Validate() error {
	if !contains(AgeBrackets, r.Age) {
		return fmt.Errorf("%w: age %q", ErrInvalidProfile, r.Age)
	}
	if !contains(Places, r.Place) {
		return fmt.Errorf("%w: fav_place %q", ErrInvalidProfile, r.Place)
	}
	if !contains(Genders, r.Gender) {
		return fmt.Errorf("%w: gender %q", ErrInvalidProfile, r.Gender)
	}
	if r.Education == "" {
		return fmt.Errorf("%w: edu_level is empty", ErrInvalidProfile)
	}
	if r.Animals == "" {
		return fmt.Errorf("%w: fav_animals is empty", ErrInvalidProfile)
	}
	return nil
}

func contains[T comparable](values []T, v T) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}

// ClusterDescriptor is the static reference entry for one cluster.
type ClusterDescriptor struct {
	ID                 ClusterID `json:"id"`
	Name               string    `json:"name"`
	Description        string    `json:"description"`
	ImageryDescription string    `json:"image_description"`
	Imagery            []byte    `json:"-"`
	ImageryMIME        string    `json:"image_mime,omitempty"`
}

// ClusterPayload is the metadata stored next to a cluster vector in the index.
type ClusterPayload struct {
	Name               string `json:"name"`
	Description        string `json:"description"`
	ImageryDescription string `json:"image_description"`
}

// IndexHit is one nearest-neighbour result.
type IndexHit struct {
	ClusterID ClusterID
	Score     float64
	Payload   ClusterPayload
}

// MatchResult is the resolved answer for a text or profile request.
type MatchResult struct {
	Cluster         ClusterDescriptor `json:"cluster"`
	PopulationCount int               `json:"population_count"`
	// Confidence is set only for text queries.
	Confidence *float64 `json:"confidence,omitempty"`
}

// Percent returns the confidence as a percentage rounded to two decimals,
// and false when the result carries no confidence.
func (m *MatchResult) Percent() (float64, bool) {
	if m == nil || m.Confidence == nil {
		return 0, false
	}
	return math.Round(*m.Confidence*100*100) / 100, true
}

// ClampScore maps a similarity score into [0,1].
func ClampScore(score float64) float64 {
	if math.IsNaN(score) || score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// Credential is the per-session embedding provider key.
type Credential string

// Empty reports whether no credential was supplied.
func (c Credential) Empty() bool {
	return strings.TrimSpace(string(c)) == ""
}

// Fingerprint returns a short hash of the credential, safe to log.
func (c Credential) Fingerprint() string {
	sum := sha256.Sum256([]byte(c))
	return hex.EncodeToString(sum[:4])
}

// LogValue keeps the raw credential out of structured logs.
func (c Credential) LogValue() slog.Value {
	if c.Empty() {
		return slog.StringValue("none")
	}
	return slog.StringValue("sha256:" + c.Fingerprint())
}
