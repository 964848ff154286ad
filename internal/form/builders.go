package form

import (
	"fmt"
)

// Form is the root of a declared form tree.
type Form struct {
	ID       string
	Title    string
	Children []*Node
}

// New builds a form root. Templates call Validate (or register through the
// template registry, which does) before serving the form.
func New(id, title string, children ...*Node) *Form {
	return &Form{ID: id, Title: title, Children: children}
}

// Section groups screens under one step of the wizard's progress bar.
func Section(id, title string, children ...*Node) *Node {
	return &Node{Kind: KindSection, ID: id, Title: title, Children: children}
}

// SubSection groups screens under a secondary heading within a section.
func SubSection(id, title string, children ...*Node) *Node {
	return &Node{Kind: KindSubSection, ID: id, Title: title, Children: children}
}

// MultiField declares one atomic screen whose child fields are co-displayed.
func MultiField(id, title string, children ...*Node) *Node {
	return &Node{Kind: KindMultiField, ID: id, Title: title, Children: children}
}

// Repeater declares a repeatable group. Its children are a template
// replicated once per entry of the answer slice stored under the repeater's
// id; the repeater itself flattens to a summary screen.
func Repeater(id, title string, children ...*Node) *Node {
	return &Node{Kind: KindRepeater, ID: id, Title: title, Children: children}
}

// Field declares a single answerable leaf.
func Field(id, title string) *Node {
	return &Node{Kind: KindField, ID: id, Title: title}
}

// DataProvider declares the screen on which the named external data
// provider runs and the applicant approves the fetched data.
func DataProvider(id, title, providerID string) *Node {
	return &Node{Kind: KindDataProvider, ID: id, Title: title, ProviderID: providerID}
}

// Validate checks the structural invariants of a declared tree: ids unique
// within each sibling scope, container kinds with children, leaf kinds
// without. Templates fail registration (and so process boot) on violations.
func (f *Form) Validate() error {
	if f.ID == "" {
		return fmt.Errorf("form id is required")
	}
	return validateSiblings(f.ID, f.Children)
}

func validateSiblings(parent string, siblings []*Node) error {
	seen := make(map[string]struct{}, len(siblings))
	for _, n := range siblings {
		if n.ID == "" {
			return fmt.Errorf("%s: child %s node without id", parent, n.Kind)
		}
		if _, dup := seen[n.ID]; dup {
			return fmt.Errorf("%s: duplicate sibling id %q", parent, n.ID)
		}
		seen[n.ID] = struct{}{}

		switch n.Kind {
		case KindSection, KindSubSection:
			if len(n.Children) == 0 {
				return fmt.Errorf("%s: %s %q has no children", parent, n.Kind, n.ID)
			}
		case KindRepeater:
			if len(n.Children) == 0 {
				return fmt.Errorf("%s: repeater %q has no children", parent, n.ID)
			}
			for _, c := range n.Children {
				if c.Kind != KindField && c.Kind != KindMultiField {
					return fmt.Errorf("%s: repeater %q child %q must be a field or multiField", parent, n.ID, c.ID)
				}
			}
		case KindMultiField:
			if len(n.Children) == 0 {
				return fmt.Errorf("%s: multiField %q has no children", parent, n.ID)
			}
			for _, c := range n.Children {
				if c.Kind != KindField {
					return fmt.Errorf("%s: multiField %q contains non-field child %q", parent, n.ID, c.ID)
				}
			}
		case KindField:
			if len(n.Children) != 0 {
				return fmt.Errorf("%s: field %q must be a leaf", parent, n.ID)
			}
		case KindDataProvider:
			if len(n.Children) != 0 {
				return fmt.Errorf("%s: dataProvider %q must be a leaf", parent, n.ID)
			}
			if n.ProviderID == "" {
				return fmt.Errorf("%s: dataProvider %q names no provider", parent, n.ID)
			}
		default:
			return fmt.Errorf("%s: unknown node kind %q", parent, n.Kind)
		}

		if len(n.Children) > 0 {
			if err := validateSiblings(n.ID, n.Children); err != nil {
				return err
			}
		}
	}
	return nil
}
