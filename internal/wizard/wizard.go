// Package wizard is the single-threaded state container behind a form
// session: current answers, external data cache, the flattened screen list,
// and the active screen position. It processes one discrete action at a
// time through a pure reducer; all network activity happens outside and
// feeds results back in as subsequent actions.
package wizard

import (
	"formflow/internal/externaldata"
	"formflow/internal/form"
	"formflow/internal/form/answers"
	"formflow/internal/form/flatten"
)

// State bundles everything the reducer operates on. Values, not pointers:
// Reduce returns a new State and never mutates its input.
type State struct {
	Form     *form.Form
	Answers  answers.Map
	External externaldata.Set

	Screens      []flatten.Screen
	Sections     []flatten.SectionInfo
	ActiveScreen int
}

// New builds the initial session state with a fresh flatten pass.
func New(f *form.Form, ans answers.Map, ext externaldata.Set) State {
	st := State{Form: f, Answers: ans, External: ext}
	st.Screens = flatten.Flatten(f, ans, ext)
	st.Sections = flatten.VisibleSections(f, ans, ext)
	return st
}

// Active returns the current screen, or false when the form has no screens.
func (st State) Active() (flatten.Screen, bool) {
	if st.ActiveScreen < 0 || st.ActiveScreen >= len(st.Screens) {
		return flatten.Screen{}, false
	}
	return st.Screens[st.ActiveScreen], true
}

// Action is the closed set of reducer inputs.
type Action interface{ isAction() }

// Answer deep-merges a partial answer set and re-flattens.
type Answer struct{ Partial answers.Map }

// AnswerAndGoNext merges, re-flattens, then advances the active screen
// with repeater-aware navigation.
type AnswerAndGoNext struct{ Partial answers.Map }

// PrevScreen steps backwards with repeater-aware navigation.
type PrevScreen struct{}

// GoToScreen jumps to a screen by identity; unknown identities are ignored.
type GoToScreen struct{ Key flatten.Key }

// ExpandRepeater re-splices the screen list after the repetition count
// changed. A no-op unless the active screen is a repeater summary.
type ExpandRepeater struct{}

// AddExternalData shallow-merges provider results and re-flattens, so
// conditions reading external data never see a stale screen list.
type AddExternalData struct{ Partial externaldata.Set }

func (Answer) isAction()          {}
func (AnswerAndGoNext) isAction() {}
func (PrevScreen) isAction()      {}
func (GoToScreen) isAction()      {}
func (ExpandRepeater) isAction()  {}
func (AddExternalData) isAction() {}

// Reduce processes one action to completion. Callers must not interleave
// invocations; the engine is deliberately synchronous.
func Reduce(st State, action Action) State {
	switch a := action.(type) {
	case Answer:
		st.Answers = answers.Merge(st.Answers, a.Partial)
		return reflatten(st)

	case AnswerAndGoNext:
		st.Answers = answers.Merge(st.Answers, a.Partial)
		st = reflatten(st)
		st.ActiveScreen = nextIndex(st.Screens, st.ActiveScreen)
		return st

	case PrevScreen:
		st.ActiveScreen = prevIndex(st.Screens, st.ActiveScreen)
		return st

	case GoToScreen:
		if idx := flatten.IndexOf(st.Screens, a.Key); idx >= 0 {
			st.ActiveScreen = idx
		}
		return st

	case ExpandRepeater:
		cur, ok := st.Active()
		if !ok || cur.Kind != form.KindRepeater {
			return st
		}
		return reflatten(st)

	case AddExternalData:
		st.External = externaldata.Merge(st.External, a.Partial)
		return reflatten(st)

	default:
		return st
	}
}

// reflatten regenerates screens and sections, then restores the active
// position by screen identity. Policy for a vanished active screen: snap to
// the nearest preceding screen that still exists, falling back to the start
// of the form.
func reflatten(st State) State {
	old := st.Screens
	oldIdx := st.ActiveScreen

	st.Screens = flatten.Flatten(st.Form, st.Answers, st.External)
	st.Sections = flatten.VisibleSections(st.Form, st.Answers, st.External)

	if len(st.Screens) == 0 {
		st.ActiveScreen = 0
		return st
	}
	if oldIdx >= 0 && oldIdx < len(old) {
		if idx := flatten.IndexOf(st.Screens, old[oldIdx].Key()); idx >= 0 {
			st.ActiveScreen = idx
			return st
		}
		for i := oldIdx - 1; i >= 0; i-- {
			if idx := flatten.IndexOf(st.Screens, old[i].Key()); idx >= 0 {
				st.ActiveScreen = idx
				return st
			}
		}
	}
	st.ActiveScreen = 0
	return st
}

// nextIndex advances one step with repeater awareness:
//   - from a repeater summary, skip past the whole expansion block;
//   - leaving an expansion into a different repetition (or out of the
//     repeater entirely) returns to the repeater summary, modeling "finish
//     this repetition, back to the overview";
//   - otherwise step linearly, clamped to the last screen.
func nextIndex(screens []flatten.Screen, active int) int {
	if len(screens) == 0 {
		return 0
	}
	last := len(screens) - 1
	if active >= last {
		return last
	}
	cur := screens[active]

	if cur.Kind == form.KindRepeater {
		return min(active+flatten.ExpansionSpan(screens, active)+1, last)
	}

	next := active + 1
	if cur.RepeaterIndex != flatten.NoRepeater && !sameRepetition(cur, screens[next]) {
		if idx := flatten.SummaryIndex(screens, cur.RepeaterID); idx >= 0 {
			return idx
		}
	}
	return next
}

// prevIndex is the inverse: stepping back over an expansion boundary lands
// on the repeater summary, never in the middle of another repetition.
func prevIndex(screens []flatten.Screen, active int) int {
	if active <= 0 {
		return 0
	}
	cur := screens[active]
	prev := active - 1

	if cur.RepeaterIndex != flatten.NoRepeater {
		if sameRepetition(cur, screens[prev]) {
			return prev
		}
		if idx := flatten.SummaryIndex(screens, cur.RepeaterID); idx >= 0 {
			return idx
		}
		return prev
	}

	if screens[prev].RepeaterIndex != flatten.NoRepeater {
		if idx := flatten.SummaryIndex(screens, screens[prev].RepeaterID); idx >= 0 {
			return idx
		}
	}
	return prev
}

func sameRepetition(a, b flatten.Screen) bool {
	return a.RepeaterID == b.RepeaterID && a.RepeaterIndex == b.RepeaterIndex
}
