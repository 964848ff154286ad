// Package lifecycle is the generic state machine every application template
// declares: named states, role-scoped permissions, guarded transitions, and
// entry/exit actions. The engine is template-agnostic; it never hardcodes a
// state name.
package lifecycle

import (
	"errors"
	"fmt"
	"time"

	"formflow/internal/externaldata"
	"formflow/internal/form/answers"
	id "formflow/pkg/domain"
)

// StateName names a lifecycle state within one template's machine.
type StateName string

// Event names a lifecycle event an actor submits.
type Event string

// Role is a template-scoped actor role (applicant, otherParent, employer,
// caseworker, ...). Roles mean nothing outside their template.
type Role string

// Status is the coarse progress classification derived from the state,
// shown in application listings.
type Status string

const (
	StatusDraft      Status = "draft"
	StatusInProgress Status = "inprogress"
	StatusCompleted  Status = "completed"
	StatusRejected   Status = "rejected"
)

// Errors returned by Transition. ErrNotPermitted deliberately carries no
// detail about why: process eligibility failures surface as a generic
// "action not permitted", not as field errors.
var (
	ErrUnknownState = errors.New("unknown state")
	ErrNotPermitted = errors.New("action not permitted")
)

// Context is everything guards and actions may read. Pure data; guards must
// not mutate it.
type Context struct {
	// Actor submitted the event; Applicant owns the application. They
	// differ whenever an assignee or caseworker acts.
	Actor     id.NationalID
	Applicant id.NationalID
	Role      Role
	Answers   answers.Map
	External  externaldata.Set
	Now       time.Time
}

// Guard decides whether a candidate transition applies. nil means
// unconditional (the default transition).
type Guard func(Context) bool

// Transition is one candidate row of a guarded-transition table.
type Transition struct {
	Target StateName
	Guard  Guard
}

// Scope grants read or write access to answer paths: everything, or an
// explicit path list matched by segment prefix ("period" covers
// "period.year" but not "periodical").
type Scope struct {
	all   bool
	paths []string
}

// ScopeAll grants access to the whole answer set.
func ScopeAll() Scope { return Scope{all: true} }

// ScopePaths grants access to the listed answer subtrees only.
func ScopePaths(paths ...string) Scope { return Scope{paths: paths} }

// ScopeNone grants nothing; the zero value behaves the same (fail closed).
func ScopeNone() Scope { return Scope{} }

// Allows reports whether the scope covers the given answer path.
func (s Scope) Allows(path string) bool {
	if s.all {
		return true
	}
	for _, p := range s.paths {
		if path == p || (len(path) > len(p) && path[:len(p)] == p && (path[len(p)] == '.' || path[len(p)] == '[')) {
			return true
		}
	}
	return false
}

// All reports whether the scope is unrestricted.
func (s Scope) All() bool { return s.all }

// Paths returns the granted subtree roots (nil for an all scope).
func (s Scope) Paths() []string { return s.paths }

// RoleSpec declares what one role may see and do while the machine rests in
// a state.
type RoleSpec struct {
	Read   Scope
	Write  Scope
	Events []Event // events this role may submit from this state
}

func (r RoleSpec) allowsEvent(e Event) bool {
	for _, ev := range r.Events {
		if ev == e {
			return true
		}
	}
	return false
}

// ActionFunc is an entry/exit side effect. Actions record what should
// happen on the Effects collector; the application service applies it.
type ActionFunc func(fx *Effects, c Context)

// Effects accumulates the declared side effects of one transition.
type Effects struct {
	// Assignees, when set, replaces the application's assignee list.
	Assignees []id.NationalID
	assign    bool
	// PrunePaths lists answer subtrees to clear after the transition.
	PrunePaths []string
	// Notifications are one-off messages to external parties, delivered
	// through the event pipeline.
	Notifications []Notification
}

// Notification is a one-off message to an external party.
type Notification struct {
	Type      string
	Recipient id.NationalID
}

// AssignTo replaces the assignee list when the transition commits.
func (fx *Effects) AssignTo(assignees ...id.NationalID) {
	fx.Assignees = assignees
	fx.assign = true
}

// Reassigns reports whether any action replaced the assignee list.
func (fx *Effects) Reassigns() bool { return fx.assign }

// Prune schedules answer subtrees for clearing.
func (fx *Effects) Prune(paths ...string) {
	fx.PrunePaths = append(fx.PrunePaths, paths...)
}

// Notify schedules a notification.
func (fx *Effects) Notify(notificationType string, recipient id.NationalID) {
	fx.Notifications = append(fx.Notifications, Notification{Type: notificationType, Recipient: recipient})
}

// StateSpec declares one state of the machine.
type StateSpec struct {
	Status Status
	Final  bool
	Roles  map[Role]RoleSpec
	On     map[Event][]Transition
	Entry  []ActionFunc
	Exit   []ActionFunc
}

// Definition is the declarative machine a template supplies.
type Definition struct {
	Initial StateName
	States  map[StateName]StateSpec
}

// Machine is a compiled, validated definition.
type Machine struct {
	def Definition
}

// New compiles a definition, verifying up front that the initial state
// exists and every transition target names a declared state. A typo in a
// state name fails here, at template registration, instead of stalling an
// application at runtime.
func New(def Definition) (*Machine, error) {
	if _, ok := def.States[def.Initial]; !ok {
		return nil, fmt.Errorf("initial state %q is not declared", def.Initial)
	}
	for name, spec := range def.States {
		for event, transitions := range spec.On {
			if len(transitions) == 0 {
				return nil, fmt.Errorf("state %q event %q declares no transitions", name, event)
			}
			for _, t := range transitions {
				if _, ok := def.States[t.Target]; !ok {
					return nil, fmt.Errorf("state %q event %q targets undeclared state %q", name, event, t.Target)
				}
			}
		}
	}
	return &Machine{def: def}, nil
}

// Initial returns the machine's starting state.
func (m *Machine) Initial() StateName { return m.def.Initial }

// StateSpec looks up a state declaration.
func (m *Machine) StateSpec(name StateName) (StateSpec, bool) {
	spec, ok := m.def.States[name]
	return spec, ok
}

// StatusOf returns the coarse status of a state, defaulting to in-progress.
func (m *Machine) StatusOf(name StateName) Status {
	spec, ok := m.def.States[name]
	if !ok || spec.Status == "" {
		return StatusInProgress
	}
	return spec.Status
}

// ReadScope returns the answer paths a role may read in a state. Unknown
// states or roles yield the empty scope (fail closed).
func (m *Machine) ReadScope(state StateName, role Role) Scope {
	if spec, ok := m.def.States[state]; ok {
		if rs, ok := spec.Roles[role]; ok {
			return rs.Read
		}
	}
	return ScopeNone()
}

// WriteScope returns the answer paths a role may write in a state.
func (m *Machine) WriteScope(state StateName, role Role) Scope {
	if spec, ok := m.def.States[state]; ok {
		if rs, ok := spec.Roles[role]; ok {
			return rs.Write
		}
	}
	return ScopeNone()
}

// Result is the outcome of an accepted transition.
type Result struct {
	From    StateName
	To      StateName
	Effects Effects
}

// Transition evaluates an event against the current state. Candidate
// transitions are tried in declaration order and the first whose guard
// returns true wins; a guardless transition acts as the default. No match,
// an undeclared event, an unknown role, or a role not granted the event all
// reject with ErrNotPermitted and no state change.
//
// On acceptance, the exit actions of the departed state run first, then the
// entry actions of the target, each exactly once, accumulating into the
// returned Effects.
func (m *Machine) Transition(current StateName, event Event, c Context) (Result, error) {
	spec, ok := m.def.States[current]
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownState, current)
	}

	// Fail closed: the role must be declared in this state and granted the
	// event. An empty role (unresolved actor) can never match.
	roleSpec, ok := spec.Roles[c.Role]
	if !ok || c.Role == "" || !roleSpec.allowsEvent(event) {
		return Result{}, ErrNotPermitted
	}

	candidates, ok := spec.On[event]
	if !ok {
		return Result{}, ErrNotPermitted
	}

	var target StateName
	matched := false
	for _, t := range candidates {
		if t.Guard == nil || t.Guard(c) {
			target = t.Target
			matched = true
			break
		}
	}
	if !matched {
		return Result{}, ErrNotPermitted
	}

	result := Result{From: current, To: target}
	for _, action := range spec.Exit {
		action(&result.Effects, c)
	}
	for _, action := range m.def.States[target].Entry {
		action(&result.Effects, c)
	}
	return result, nil
}
