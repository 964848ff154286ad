// Package domain holds the identifier primitives shared across formflow.
// Keeping them typed (instead of bare strings) prevents accidental mixups
// between applicant ids, application ids, and template ids in signatures.
package domain

import (
	"fmt"

	"github.com/google/uuid"
)

// ApplicationID identifies a single application instance.
type ApplicationID uuid.UUID

// NewApplicationID returns a freshly generated application id.
func NewApplicationID() ApplicationID {
	return ApplicationID(uuid.New())
}

// ParseApplicationID validates and returns an ApplicationID.
func ParseApplicationID(s string) (ApplicationID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return ApplicationID{}, fmt.Errorf("invalid application id: %w", err)
	}
	return ApplicationID(u), nil
}

// String returns the canonical UUID form.
func (id ApplicationID) String() string {
	return uuid.UUID(id).String()
}

// IsNil reports whether the id is the zero value.
func (id ApplicationID) IsNil() bool {
	return uuid.UUID(id) == uuid.Nil
}

// NationalID is the national identity number of a person or company.
// It is the actor identity carried in access tokens and assignee lists.
type NationalID string

// ParseNationalID validates shape only (10 digits); real registry
// verification happens through the external data providers.
func ParseNationalID(s string) (NationalID, error) {
	if len(s) != 10 {
		return "", fmt.Errorf("invalid national id: expected 10 digits, got %d characters", len(s))
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return "", fmt.Errorf("invalid national id: non-digit character")
		}
	}
	return NationalID(s), nil
}

// String returns the raw national id.
func (n NationalID) String() string {
	return string(n)
}

// IsNil reports whether the national id is empty.
func (n NationalID) IsNil() bool {
	return n == ""
}

// TemplateID names an application template (e.g. "parental-leave").
type TemplateID string

// String returns the template id.
func (t TemplateID) String() string {
	return string(t)
}
