package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the match resolver and its collaborators.
var (
	// ErrInvalidQuery is returned for empty or malformed free text.
	ErrInvalidQuery = errors.New("invalid query")

	// ErrInvalidProfile is returned when a feature value is outside its domain.
	ErrInvalidProfile = errors.New("invalid profile")

	// ErrIndexUnavailable is returned when the vector index cannot be reached.
	ErrIndexUnavailable = errors.New("vector index unavailable")

	// ErrNoMatch is returned when the index answered with zero results.
	ErrNoMatch = errors.New("no match found")

	// ErrArtifactLoad is wrapped by every ArtifactError.
	ErrArtifactLoad = errors.New("artifact load failed")
)

// ProviderErrorKind classifies embedding provider failures.
type ProviderErrorKind string

const (
	ProviderMissingCredential ProviderErrorKind = "missing_credential"
	ProviderAuth              ProviderErrorKind = "auth"
	ProviderRateLimit         ProviderErrorKind = "rate_limit"
	ProviderTransient         ProviderErrorKind = "transient"
	ProviderRejected          ProviderErrorKind = "rejected"
)

// ProviderError is an embedding provider failure.
type ProviderError struct {
	Kind ProviderErrorKind

	// HTTPStatus is the provider's HTTP status, 0 when no response arrived.
	HTTPStatus int

	Err error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	if e.HTTPStatus != 0 {
		return fmt.Sprintf("embedding provider: %s (status=%d): %v", e.Kind, e.HTTPStatus, e.Err)
	}
	return fmt.Sprintf("embedding provider: %s: %v", e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NeedsCredential reports whether the caller should ask for a (new) credential.
func (e *ProviderError) NeedsCredential() bool {
	return e.Kind == ProviderMissingCredential || e.Kind == ProviderAuth
}

// IsRateLimit returns true for 429 and quota responses.
func (e *ProviderError) IsRateLimit() bool {
	return e.Kind == ProviderRateLimit
}

// Retryable returns true if the request may succeed when repeated later.
func (e *ProviderError) Retryable() bool {
	return e.Kind == ProviderRateLimit || e.Kind == ProviderTransient
}

// AsProviderError extracts *ProviderError from an error chain.
func AsProviderError(err error) (*ProviderError, bool) {
	var e *ProviderError
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// ArtifactError reports a missing or corrupt static artifact, or drift
// between artifacts. It always matches ErrArtifactLoad.
type ArtifactError struct {
	Artifact string
	Err      error
}

// Error implements the error interface.
func (e *ArtifactError) Error() string {
	return fmt.Sprintf("artifact %s: %v", e.Artifact, e.Err)
}

func (e *ArtifactError) Unwrap() []error {
	return []error{ErrArtifactLoad, e.Err}
}

// NewArtifactError wraps err for the named artifact.
func NewArtifactError(artifact string, err error) error {
	return &ArtifactError{Artifact: artifact, Err: err}
}
