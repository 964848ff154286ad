// Package models holds the application aggregate shared by stores,
// services and handlers.
package models

import (
	"time"

	"formflow/internal/externaldata"
	"formflow/internal/form/answers"
	"formflow/internal/lifecycle"
	id "formflow/pkg/domain"
)

// Application is the root aggregate: one citizen's in-flight application of
// a given template. The backend copy is the source of truth; clients hold a
// working copy reconciled through explicit update/submit calls.
type Application struct {
	ID        id.ApplicationID    `json:"id"`
	Template  id.TemplateID       `json:"template"`
	Applicant id.NationalID       `json:"applicant"`
	Assignees []id.NationalID     `json:"assignees"`
	State     lifecycle.StateName `json:"state"`
	Status    lifecycle.Status    `json:"status"`

	Answers      answers.Map      `json:"answers"`
	ExternalData externaldata.Set `json:"externalData"`

	History []HistoryEntry `json:"history"`

	CreatedAt  time.Time `json:"createdAt"`
	ModifiedAt time.Time `json:"modifiedAt"`
}

// HistoryEntry records one accepted lifecycle transition.
type HistoryEntry struct {
	From  lifecycle.StateName `json:"from"`
	To    lifecycle.StateName `json:"to"`
	Event lifecycle.Event     `json:"event"`
	Role  lifecycle.Role      `json:"role"`
	Date  time.Time           `json:"date"`
}

// IsAssignee reports whether the given actor is on the assignee list.
func (a *Application) IsAssignee(actor id.NationalID) bool {
	for _, assignee := range a.Assignees {
		if assignee == actor {
			return true
		}
	}
	return false
}

// Clone returns an independent deep copy, so in-memory stores can hand out
// instances without aliasing their internals.
func (a *Application) Clone() *Application {
	out := *a
	out.Assignees = append([]id.NationalID(nil), a.Assignees...)
	out.Answers = answers.Clone(a.Answers)
	out.ExternalData = externaldata.Merge(nil, a.ExternalData)
	out.History = append([]HistoryEntry(nil), a.History...)
	return &out
}

// FilterAnswers returns a copy of the answer set reduced to what the given
// read scope grants. An all scope returns the full set; an empty scope
// returns an empty map. Scope paths are top-level answer keys by
// convention ("period", "employers"), matching how templates declare them.
func (a *Application) FilterAnswers(scope lifecycle.Scope) answers.Map {
	if scope.All() {
		return answers.Clone(a.Answers)
	}
	granted := answers.Map{}
	for _, path := range scope.Paths() {
		if v, ok := a.Answers[path]; ok {
			granted[path] = v
		}
	}
	return answers.Clone(granted)
}
