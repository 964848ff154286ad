// Package externaldata defines the uniform shape of data fetched from
// external sources (national registry, user profile, case-management
// systems) and the provider contract used to populate it. Results are
// cached on the application instance for its lifetime.
package externaldata

import (
	"context"
	"time"

	"formflow/internal/form/answers"
	id "formflow/pkg/domain"
)

// Status marks whether a provider fetch succeeded.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
)

// Result is one provider's cached response.
type Result struct {
	Status Status    `json:"status"`
	Data   any       `json:"data,omitempty"`
	Reason string    `json:"reason,omitempty"`
	Date   time.Time `json:"date"`
}

// Set maps provider id to its cached result.
type Set map[string]Result

// Data returns the payload for a provider. A failed fetch reports absent:
// downstream conditions must treat failure as missing data and fall to
// their most restrictive branch, never as success with an empty payload.
func (s Set) Data(providerID string) (any, bool) {
	r, ok := s[providerID]
	if !ok || r.Status != StatusSuccess {
		return nil, false
	}
	return r.Data, true
}

// Merge shallow-merges src into dst by provider id, returning a new set.
func Merge(dst, src Set) Set {
	out := make(Set, len(dst)+len(src))
	for k, v := range dst {
		out[k] = v
	}
	for k, v := range src {
		out[k] = v
	}
	return out
}

// Request carries the application context a provider may need. It is a
// narrow projection of the instance so providers stay decoupled from the
// application aggregate.
type Request struct {
	ApplicationID id.ApplicationID
	Applicant     id.NationalID
	Answers       answers.Map
}

// Provider is the contract every external data source implements.
type Provider interface {
	// ID keys the provider's result in the Set.
	ID() string

	// Fetch performs the one-shot lookup. Errors are normalized into a
	// failure Result by the orchestrator; providers just return them.
	Fetch(ctx context.Context, req Request) (any, error)
}
