// Package validation runs the two validation passes every answer update
// goes through: structural JSON-schema validation of the whole answer set,
// and named cross-field validators keyed by top-level answer path. Both are
// pure; they are safe to call speculatively and never mutate state. The
// server-side pass is authoritative; client-side validation is UX only.
package validation

import (
	"slices"
	"strings"
	"time"

	"formflow/internal/application/models"
)

// Error pinpoints one failed field. Path is dot/bracket addressed
// ("period.year", "employers[1].email") so clients can attach the message
// to the exact widget.
type Error struct {
	Message string         `json:"message"`
	Path    string         `json:"path"`
	Values  map[string]any `json:"values,omitempty"`
}

// AnswerValidator checks a proposed new value for its answer subtree
// against the whole application (cross-referencing other branches and
// external data is the point). now is the pinned request time, so repeated
// speculative calls within one request agree on "today".
//
// Returns nil when the value is acceptable.
type AnswerValidator func(newValue any, app *models.Application, now time.Time) *Error

// Registry maps top-level answer paths ("period", "employers",
// "paymentInfo") to their validator.
type Registry map[string]AnswerValidator

// Validate routes the proposed value for path to the validator registered
// for the path's top-level segment. Paths without a registered validator
// pass; structural rules are the schema's job.
func (r Registry) Validate(path string, newValue any, app *models.Application, now time.Time) *Error {
	root := path
	if i := strings.IndexAny(path, ".["); i >= 0 {
		root = path[:i]
	}
	validator, ok := r[root]
	if !ok {
		return nil
	}
	return validator(newValue, app, now)
}

// ValidateAll runs every validator whose subtree appears in the proposed
// update, in deterministic path order, returning the first failure. Callers
// pass the proposed new value of each touched subtree (post-merge), not the
// raw update fragment.
func (r Registry) ValidateAll(proposed map[string]any, app *models.Application, now time.Time) *Error {
	for _, root := range sortedKeys(proposed) {
		validator, ok := r[root]
		if !ok {
			continue
		}
		if err := validator(proposed[root], app, now); err != nil {
			return err
		}
	}
	return nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
