package service

import (
	"context"
	"errors"

	"formflow/internal/application/models"
	"formflow/internal/audit"
	id "formflow/pkg/domain"
	dErrors "formflow/pkg/domain-errors"
	"formflow/pkg/platform/sentinel"
	"formflow/pkg/requestcontext"
)

// Claim redeems a delegation token, adding the authenticated actor to the
// application's assignee list. This is the only way onto an application for
// an actor the template cannot yet name (an employer contact logging in
// from an emailed link).
func (s *Service) Claim(ctx context.Context, appID id.ApplicationID, token string) (*models.Application, error) {
	ctx, span := s.tracer.Start(ctx, "application.Claim")
	defer span.End()

	actor := requestcontext.Actor(ctx)
	if actor.IsNil() {
		return nil, dErrors.New(dErrors.CodeForbidden, "no authenticated actor")
	}
	if token == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "delegation token is required")
	}
	app, tpl, err := s.load(ctx, appID)
	if err != nil {
		return nil, err
	}
	if s.delegations == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "delegation is not configured")
	}

	switch err := s.delegations.Claim(ctx, appID, token); {
	case errors.Is(err, sentinel.ErrExpired):
		return nil, dErrors.New(dErrors.CodeForbidden, "delegation token expired")
	case errors.Is(err, sentinel.ErrAlreadyUsed):
		return nil, dErrors.New(dErrors.CodeForbidden, "delegation token already used")
	case errors.Is(err, sentinel.ErrNotFound):
		return nil, dErrors.New(dErrors.CodeForbidden, "delegation token does not match")
	case err != nil:
		return nil, dErrors.Wrap(dErrors.CodeInternal, "claim delegation token", err)
	}

	if !app.IsAssignee(actor) {
		app.Assignees = append(app.Assignees, actor)
	}
	app.ModifiedAt = truncateToMicros(requestcontext.Now(ctx))
	if err := s.store.Update(ctx, app); err != nil {
		return nil, wrapStoreErr(err, "persist claim")
	}

	role, _ := tpl.MapUserToRole(actor, app)
	s.audit.Emit(ctx, s.newEvent(ctx, app, audit.CategoryCompliance, audit.ActionAssigneeClaimed, role))
	s.logger.InfoContext(ctx, "assignment claimed",
		"application_id", app.ID.String(),
		"role", string(role),
	)
	return s.scoped(app, tpl, role), nil
}
