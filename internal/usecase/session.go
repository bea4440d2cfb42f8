package usecase

import (
	"context"

	"clustermatch/internal/domain"
)

// MatchState is the state of a session's pinned text match.
type MatchState int

const (
	// StateUnset means no text search has succeeded yet.
	StateUnset MatchState = iota
	// StateResolved means a text match is pinned.
	StateResolved
	// StateCleared means a pinned match was dropped by Reset or a profile edit.
	StateCleared
)

func (s MatchState) String() string {
	switch s {
	case StateUnset:
		return "unset"
	case StateResolved:
		return "resolved"
	case StateCleared:
		return "cleared"
	default:
		return "unknown"
	}
}

// Session is the caller-held state of one interactive user: the profile
// being edited, the credential, and an optional pinned text match.
// A Session is not safe for concurrent use.
type Session struct {
	resolver   *Resolver
	credential domain.Credential
	profile    domain.FeatureRecord
	state      MatchState
	match      *domain.MatchResult
}

func NewSession(resolver *Resolver, profile domain.FeatureRecord) *Session {
	return &Session{resolver: resolver, profile: profile}
}

func (s *Session) SetCredential(cred domain.Credential) {
	s.credential = cred
}

func (s *Session) Profile() domain.FeatureRecord {
	return s.profile
}

// SetProfile replaces the profile. Any change drops a pinned match.
func (s *Session) SetProfile(profile domain.FeatureRecord) {
	if profile == s.profile {
		return
	}
	s.profile = profile
	if s.state == StateResolved {
		s.clear()
	}
}

// Search resolves query and pins the result. A failed search leaves the
// session unchanged.
func (s *Session) Search(ctx context.Context, query string) (*domain.MatchResult, error) {
	result, err := s.resolver.ResolveByText(ctx, s.credential, query)
	if err != nil {
		return nil, err
	}
	s.match = result
	s.state = StateResolved
	return result, nil
}

// Reset drops a pinned match.
func (s *Session) Reset() {
	s.clear()
}

func (s *Session) clear() {
	s.match = nil
	s.state = StateCleared
}

func (s *Session) State() MatchState {
	return s.state
}

// Current returns the pinned match, or the profile's cluster when nothing is
// pinned.
func (s *Session) Current(ctx context.Context) (*domain.MatchResult, error) {
	if s.state == StateResolved {
		return s.match, nil
	}
	return s.resolver.ResolveByProfile(ctx, s.profile)
}
