package service

import (
	"context"

	"formflow/internal/application/models"
	"formflow/internal/audit"
	"formflow/internal/form/answers"
	"formflow/internal/lifecycle"
	id "formflow/pkg/domain"
	dErrors "formflow/pkg/domain-errors"
	"formflow/pkg/requestcontext"
)

// UpdateAnswers merges a partial answer update into the application after
// the full server-side gauntlet: write-scope enforcement, structural schema
// validation of the merged set, and the template's named validators.
// Concurrent updates resolve last-write-wins at the store.
func (s *Service) UpdateAnswers(ctx context.Context, appID id.ApplicationID, partial answers.Map) (*models.Application, error) {
	ctx, span := s.tracer.Start(ctx, "application.UpdateAnswers")
	defer span.End()

	app, tpl, err := s.load(ctx, appID)
	if err != nil {
		return nil, err
	}
	role, err := s.requireRole(ctx, app, tpl)
	if err != nil {
		return nil, err
	}

	// Every top-level subtree of the update must be inside the role's
	// write scope for the current state. One disallowed key rejects the
	// whole update; partial application would leave the client's working
	// copy out of sync.
	writeScope := tpl.CompiledMachine.WriteScope(app.State, role)
	for key := range partial {
		if !writeScope.Allows(key) {
			s.audit.Emit(ctx, s.deniedUpdateEvent(ctx, app, role, key))
			s.recordAnswerUpdate(app, "denied")
			return nil, dErrors.Newf(dErrors.CodeForbidden, "answers under %q are not writable in state %s", key, app.State)
		}
	}

	merged := answers.Merge(app.Answers, partial)
	if verr := tpl.CompiledSchema.Validate(merged); verr != nil {
		s.recordAnswerUpdate(app, "invalid")
		return nil, &ValidationFailure{Detail: verr}
	}
	// Named validators judge the merged value of each updated subtree, not
	// the raw fragment: a partial write to one field must not fail rules
	// satisfied by the fields it leaves untouched.
	proposed := make(answers.Map, len(partial))
	for key := range partial {
		proposed[key] = merged[key]
	}
	if verr := tpl.Validators.ValidateAll(proposed, app, requestcontext.Now(ctx)); verr != nil {
		s.recordAnswerUpdate(app, "invalid")
		return nil, &ValidationFailure{Detail: verr}
	}

	app.Answers = merged
	app.ModifiedAt = truncateToMicros(requestcontext.Now(ctx))
	if err := s.store.Update(ctx, app); err != nil {
		return nil, wrapStoreErr(err, "update answers")
	}

	s.audit.Emit(ctx, s.newEvent(ctx, app, audit.CategoryOperations, audit.ActionAnswersUpdated, role))
	s.recordAnswerUpdate(app, "accepted")
	return s.scoped(app, tpl, role), nil
}

func (s *Service) deniedUpdateEvent(ctx context.Context, app *models.Application, role lifecycle.Role, key string) audit.Event {
	event := s.newEvent(ctx, app, audit.CategoryOperations, audit.ActionUpdateDenied, role)
	event.Reason = "write outside role scope: " + key
	return event
}

func (s *Service) recordAnswerUpdate(app *models.Application, outcome string) {
	if s.metrics != nil {
		s.metrics.AnswerUpdates.WithLabelValues(app.Template.String(), outcome).Inc()
	}
}
