// Package flatten converts a declared form tree plus the current answers
// into the ordered list of navigable screens the wizard steps through.
//
// Flattening is pure and deterministic: the same (form, answers, external
// data) triple always yields the same screen list. Nodes whose condition
// evaluates false are structurally absent from the result, along with their
// entire subtree. The list is regenerated, never mutated, after every
// answer change.
package flatten

import (
	"formflow/internal/externaldata"
	"formflow/internal/form"
	"formflow/internal/form/answers"
)

// NoRepeater marks screens that are not part of a repeater expansion.
const NoRepeater = -1

// Screen is one navigable unit of the flattened form.
type Screen struct {
	// NodeID is the id of the node this screen renders. Expansion screens
	// of one repeater share NodeIDs across repetitions; RepeaterIndex
	// disambiguates them.
	NodeID string
	Kind   form.Kind
	Title  string

	SectionIndex    int // index into VisibleSections, -1 for screens above any section
	SubSectionIndex int // -1 outside subsections

	// RepeaterIndex is the repetition this screen belongs to, NoRepeater
	// for everything else (including the repeater's own summary screen).
	RepeaterIndex int
	// RepeaterID is the owning repeater for expansion screens, "" otherwise.
	RepeaterID string

	Node *form.Node
}

// Key identifies a screen across re-flattens: node id plus repetition.
type Key struct {
	NodeID        string
	RepeaterIndex int
}

// Key returns the identity of the screen.
func (s Screen) Key() Key {
	return Key{NodeID: s.NodeID, RepeaterIndex: s.RepeaterIndex}
}

// SectionInfo is one entry of the wizard's progress display.
type SectionInfo struct {
	Index int
	ID    string
	Title string
}

// Flatten walks the tree depth-first and emits the visible screens in
// declaration order. Repeaters emit their own summary screen followed by
// count x children expansion screens, where count is the length of the
// answer slice stored under the repeater's id; zero repetitions leave just
// the summary screen, and screens after the repeater keep consecutive
// positions.
func Flatten(f *form.Form, ans answers.Map, ext externaldata.Set) []Screen {
	w := walker{ans: ans, ext: ext, sectionIndex: -1, subSectionIndex: -1}
	w.walk(f.Children)
	return w.screens
}

// VisibleSections lists the top-level sections whose condition currently
// holds, in declaration order.
func VisibleSections(f *form.Form, ans answers.Map, ext externaldata.Set) []SectionInfo {
	var out []SectionInfo
	for _, n := range f.Children {
		if n.Kind != form.KindSection || !Visible(n, ans, ext) {
			continue
		}
		out = append(out, SectionInfo{Index: len(out), ID: n.ID, Title: n.Title})
	}
	return out
}

// Visible evaluates a node's condition, defaulting to visible. Exposed for
// the wizard, which needs it when restoring navigation state.
func Visible(n *form.Node, ans answers.Map, ext externaldata.Set) bool {
	if n.Condition == nil {
		return true
	}
	return n.Condition(ans, ext)
}

type walker struct {
	ans answers.Map
	ext externaldata.Set

	sectionIndex    int
	subSectionIndex int // -1 while the cursor is outside any subsection
	subSectionSeen  int // subsections entered in the current section
	screens         []Screen
}

func (w *walker) walk(nodes []*form.Node) {
	for _, n := range nodes {
		if !Visible(n, w.ans, w.ext) {
			continue
		}
		switch n.Kind {
		case form.KindSection:
			w.sectionIndex++
			w.subSectionSeen = 0
			w.subSectionIndex = -1
			w.walk(n.Children)
		case form.KindSubSection:
			w.subSectionIndex = w.subSectionSeen
			w.subSectionSeen++
			w.walk(n.Children)
			// a sibling after the subsection sits directly under the
			// section again
			w.subSectionIndex = -1
		case form.KindMultiField, form.KindField, form.KindDataProvider:
			w.emit(n, NoRepeater, "")
		case form.KindRepeater:
			w.emit(n, NoRepeater, "")
			count := answers.RepetitionCount(w.ans, n.ID)
			for rep := range count {
				for _, child := range n.Children {
					if !Visible(child, w.ans, w.ext) {
						continue
					}
					w.emit(child, rep, n.ID)
				}
			}
		}
	}
}

func (w *walker) emit(n *form.Node, repeaterIndex int, repeaterID string) {
	w.screens = append(w.screens, Screen{
		NodeID:          n.ID,
		Kind:            n.Kind,
		Title:           n.Title,
		SectionIndex:    w.sectionIndex,
		SubSectionIndex: w.subSectionIndex,
		RepeaterIndex:   repeaterIndex,
		RepeaterID:      repeaterID,
		Node:            n,
	})
}

// IndexOf locates a screen by identity, returning -1 when it no longer
// exists (its condition turned false or its repetition collapsed).
func IndexOf(screens []Screen, key Key) int {
	for i, s := range screens {
		if s.Key() == key {
			return i
		}
	}
	return -1
}

// SummaryIndex locates the summary screen of the given repeater.
func SummaryIndex(screens []Screen, repeaterID string) int {
	for i, s := range screens {
		if s.Kind == form.KindRepeater && s.NodeID == repeaterID {
			return i
		}
	}
	return -1
}

// ExpansionSpan counts the expansion screens following the repeater summary
// at the given index, i.e. how far ahead the first screen after the whole
// repeater block sits.
func ExpansionSpan(screens []Screen, summaryIndex int) int {
	if summaryIndex < 0 || summaryIndex >= len(screens) {
		return 0
	}
	repeaterID := screens[summaryIndex].NodeID
	span := 0
	for i := summaryIndex + 1; i < len(screens) && screens[i].RepeaterID == repeaterID; i++ {
		span++
	}
	return span
}
