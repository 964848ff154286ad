// Package template glues one application type together: its declared form
// tree, lifecycle machine, answer validators, structural schema, external
// data providers, and the actor-to-role mapping. The engine underneath is
// generic; a template is pure declaration.
package template

import (
	"fmt"
	"sync"

	"formflow/internal/application/models"
	"formflow/internal/externaldata"
	"formflow/internal/form"
	"formflow/internal/lifecycle"
	"formflow/internal/validation"
	id "formflow/pkg/domain"
)

// MapUserToRole resolves which role an actor plays on a given application.
// Returning false denies the actor everything (fail closed); callers must
// never substitute a default role.
type MapUserToRole func(actor id.NationalID, app *models.Application) (lifecycle.Role, bool)

// Template is the declaration an application type supplies.
type Template struct {
	ID   id.TemplateID
	Name string

	Form       *form.Form
	Machine    lifecycle.Definition
	Validators validation.Registry
	// AnswerSchema is the raw JSON schema for the answer set; nil skips
	// structural validation.
	AnswerSchema []byte
	Providers    []externaldata.Provider

	MapUserToRole MapUserToRole
}

// Registered is a compiled template ready to serve.
type Registered struct {
	Template
	CompiledMachine *lifecycle.Machine
	CompiledSchema  *validation.Schema
}

// ProviderIDs lists the providers named by the form's data provider nodes,
// in declaration order.
func (r *Registered) ProviderIDs() []string {
	var ids []string
	var walk func(nodes []*form.Node)
	walk = func(nodes []*form.Node) {
		for _, n := range nodes {
			if n.Kind == form.KindDataProvider {
				ids = append(ids, n.ProviderID)
			}
			walk(n.Children)
		}
	}
	walk(r.Form.Children)
	return ids
}

// Registry holds every template known to the process. Registration
// compiles and validates everything up front so a malformed template fails
// at boot, not when the first citizen opens it.
type Registry struct {
	mu        sync.RWMutex
	templates map[id.TemplateID]*Registered
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{templates: make(map[id.TemplateID]*Registered)}
}

// Register validates the form tree, compiles the machine and schema, and
// adds the template. Duplicate ids are rejected.
func (r *Registry) Register(t Template) error {
	if t.ID == "" {
		return fmt.Errorf("template id is required")
	}
	if t.Form == nil {
		return fmt.Errorf("template %s: form is required", t.ID)
	}
	if t.MapUserToRole == nil {
		return fmt.Errorf("template %s: role mapping is required", t.ID)
	}
	if err := t.Form.Validate(); err != nil {
		return fmt.Errorf("template %s: invalid form: %w", t.ID, err)
	}

	machine, err := lifecycle.New(t.Machine)
	if err != nil {
		return fmt.Errorf("template %s: invalid state machine: %w", t.ID, err)
	}

	var schema *validation.Schema
	if t.AnswerSchema != nil {
		schema, err = validation.CompileSchema(t.AnswerSchema)
		if err != nil {
			return fmt.Errorf("template %s: invalid answer schema: %w", t.ID, err)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.templates[t.ID]; exists {
		return fmt.Errorf("template %s already registered", t.ID)
	}
	r.templates[t.ID] = &Registered{
		Template:        t,
		CompiledMachine: machine,
		CompiledSchema:  schema,
	}
	return nil
}

// Get looks up a compiled template.
func (r *Registry) Get(templateID id.TemplateID) (*Registered, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.templates[templateID]
	return t, ok
}

// IDs lists the registered template ids.
func (r *Registry) IDs() []id.TemplateID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]id.TemplateID, 0, len(r.templates))
	for tid := range r.templates {
		ids = append(ids, tid)
	}
	return ids
}

// Providers collects every provider declared by every registered template,
// for wiring the orchestrator at boot.
func (r *Registry) Providers() []externaldata.Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []externaldata.Provider
	seen := make(map[string]struct{})
	for _, t := range r.templates {
		for _, p := range t.Providers {
			if _, dup := seen[p.ID()]; dup {
				continue
			}
			seen[p.ID()] = struct{}{}
			out = append(out, p)
		}
	}
	return out
}
