package service

import (
	"context"
	"time"

	"formflow/internal/application/models"
	"formflow/internal/audit"
	extdata "formflow/internal/externaldata"
	"formflow/internal/form/answers"
	"formflow/internal/form/flatten"
	"formflow/internal/lifecycle"
	"formflow/internal/template"
	id "formflow/pkg/domain"
	dErrors "formflow/pkg/domain-errors"
	"formflow/pkg/requestcontext"
)

// Create opens a new draft application of the given template for the
// authenticated actor.
func (s *Service) Create(ctx context.Context, templateID id.TemplateID) (*models.Application, error) {
	ctx, span := s.tracer.Start(ctx, "application.Create")
	defer span.End()

	actor := requestcontext.Actor(ctx)
	if actor.IsNil() {
		return nil, dErrors.New(dErrors.CodeForbidden, "no authenticated actor")
	}
	tpl, ok := s.templates.Get(templateID)
	if !ok {
		return nil, dErrors.Newf(dErrors.CodeNotFound, "unknown template %q", templateID)
	}

	now := truncateToMicros(requestcontext.Now(ctx))
	initial := tpl.CompiledMachine.Initial()
	app := &models.Application{
		ID:           id.NewApplicationID(),
		Template:     templateID,
		Applicant:    actor,
		State:        initial,
		Status:       tpl.CompiledMachine.StatusOf(initial),
		Answers:      answers.Map{},
		ExternalData: extdata.Set{},
		CreatedAt:    now,
		ModifiedAt:   now,
	}
	if err := s.store.Create(ctx, app); err != nil {
		return nil, wrapStoreErr(err, "create application")
	}

	start := time.Now()
	screens := flatten.Flatten(tpl.Form, app.Answers, app.ExternalData)
	s.metrics.ObserveFlatten(time.Since(start))

	s.audit.Emit(ctx, s.newEvent(ctx, app, audit.CategoryCompliance, audit.ActionCreated, lifecycle.Role("applicant")))
	if s.metrics != nil {
		s.metrics.ApplicationsCreated.WithLabelValues(templateID.String()).Inc()
	}
	s.logger.InfoContext(ctx, "application created",
		"application_id", app.ID.String(),
		"template", templateID.String(),
		"initial_screens", len(screens),
	)
	return app, nil
}

// Get returns one application with its answers filtered down to what the
// actor's role may read. Actors without a role on the application get a
// not-found, never a hint that the application exists.
func (s *Service) Get(ctx context.Context, appID id.ApplicationID) (*models.Application, error) {
	app, tpl, err := s.load(ctx, appID)
	if err != nil {
		return nil, err
	}
	role, ok := tpl.MapUserToRole(requestcontext.Actor(ctx), app)
	if !ok {
		return nil, dErrors.New(dErrors.CodeNotFound, "application not found")
	}
	return s.scoped(app, tpl, role), nil
}

// List returns every application the actor can see, answers filtered per
// application by the actor's role there.
func (s *Service) List(ctx context.Context) ([]*models.Application, error) {
	actor := requestcontext.Actor(ctx)
	if actor.IsNil() {
		return nil, dErrors.New(dErrors.CodeForbidden, "no authenticated actor")
	}
	apps, err := s.store.ListByActor(ctx, actor)
	if err != nil {
		return nil, wrapStoreErr(err, "list applications")
	}

	out := make([]*models.Application, 0, len(apps))
	for _, app := range apps {
		tpl, ok := s.templates.Get(app.Template)
		if !ok {
			// Stored application of a template this build no longer
			// registers; skip rather than fail the whole listing.
			s.logger.WarnContext(ctx, "stored application references unknown template",
				"application_id", app.ID.String(),
				"template", app.Template.String(),
			)
			continue
		}
		role, ok := tpl.MapUserToRole(actor, app)
		if !ok {
			continue
		}
		out = append(out, s.scoped(app, tpl, role))
	}
	return out, nil
}

// load fetches the aggregate and its compiled template.
func (s *Service) load(ctx context.Context, appID id.ApplicationID) (*models.Application, *template.Registered, error) {
	app, err := s.store.Get(ctx, appID)
	if err != nil {
		return nil, nil, wrapStoreErr(err, "load application")
	}
	tpl, ok := s.templates.Get(app.Template)
	if !ok {
		return nil, nil, dErrors.Newf(dErrors.CodeInternal, "template %q is not registered", app.Template)
	}
	return app, tpl, nil
}

// requireRole resolves the actor's role, failing closed as not-found.
func (s *Service) requireRole(ctx context.Context, app *models.Application, tpl *template.Registered) (lifecycle.Role, error) {
	role, ok := tpl.MapUserToRole(requestcontext.Actor(ctx), app)
	if !ok {
		return "", dErrors.New(dErrors.CodeNotFound, "application not found")
	}
	return role, nil
}

// scoped trims the aggregate's answers to the role's read scope in the
// current state.
func (s *Service) scoped(app *models.Application, tpl *template.Registered, role lifecycle.Role) *models.Application {
	scope := tpl.CompiledMachine.ReadScope(app.State, role)
	out := app.Clone()
	out.Answers = app.FilterAnswers(scope)
	return out
}

// newEvent fills the request-scoped audit fields.
func (s *Service) newEvent(ctx context.Context, app *models.Application, cat audit.Category, action string, role lifecycle.Role) audit.Event {
	return audit.Event{
		Category:      cat,
		Timestamp:     requestcontext.Now(ctx),
		ApplicationID: app.ID.String(),
		Template:      app.Template.String(),
		ActorHash:     audit.HashActor(requestcontext.Actor(ctx)),
		Role:          string(role),
		Action:        action,
		RequestID:     requestcontext.RequestID(ctx),
		ClientIP:      requestcontext.ClientIP(ctx),
		UserAgent:     requestcontext.UserAgent(ctx),
	}
}
