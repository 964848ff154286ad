// Package form is the declarative model behind every application template:
// a tree of typed nodes (sections, subsections, multi-fields, repeaters,
// fields, external data providers) with visibility conditions. Templates
// build trees through the constructors in builders.go; the flatten
// subpackage turns a tree plus the current answers into navigable screens.
package form

import (
	"formflow/internal/externaldata"
	"formflow/internal/form/answers"
)

// Kind discriminates the node variants. The set is closed: the flattener
// switches exhaustively over it and fails loudly on anything unknown.
type Kind string

const (
	KindSection      Kind = "section"
	KindSubSection   Kind = "subSection"
	KindMultiField   Kind = "multiField"
	KindRepeater     Kind = "repeater"
	KindField        Kind = "field"
	KindDataProvider Kind = "dataProvider"
)

// Condition decides node visibility from the current answers and external
// data. Conditions must be pure: no I/O, no mutation, same inputs same
// answer, because the flattener re-evaluates them after every answer change.
type Condition func(ans answers.Map, ext externaldata.Set) bool

// Node is one vertex of the form tree.
type Node struct {
	Kind      Kind
	ID        string
	Title     string
	Condition Condition // nil means always visible
	Children  []*Node

	// Field leaves only.
	Component string
	Required  bool
	Default   any

	// DataProvider leaves only: which externaldata.Provider feeds this node.
	ProviderID string
}

// When attaches a visibility condition and returns the node for chaining.
func (n *Node) When(c Condition) *Node {
	n.Condition = c
	return n
}

// WithComponent names the UI widget rendering a field. The backend treats
// it as opaque template metadata.
func (n *Node) WithComponent(component string) *Node {
	n.Component = component
	return n
}

// Require marks a field as required for structural validation.
func (n *Node) Require() *Node {
	n.Required = true
	return n
}

// WithDefault sets the value a field starts with before the user answers.
func (n *Node) WithDefault(v any) *Node {
	n.Default = v
	return n
}

// visible evaluates the node's condition, defaulting to visible.
func (n *Node) visible(ans answers.Map, ext externaldata.Set) bool {
	if n.Condition == nil {
		return true
	}
	return n.Condition(ans, ext)
}
