package service

import (
	"context"
	"slices"

	"formflow/internal/application/models"
	"formflow/internal/audit"
	extdata "formflow/internal/externaldata"
	id "formflow/pkg/domain"
	dErrors "formflow/pkg/domain-errors"
	"formflow/pkg/requestcontext"
)

// FetchExternalData runs the named providers and merges their results into
// the application. Failed providers land as failure entries, never as
// request errors; the form's conditions treat them as absent data. Every
// requested provider must be one the template declares.
func (s *Service) FetchExternalData(ctx context.Context, appID id.ApplicationID, providerIDs []string) (*models.Application, error) {
	ctx, span := s.tracer.Start(ctx, "application.FetchExternalData")
	defer span.End()

	app, tpl, err := s.load(ctx, appID)
	if err != nil {
		return nil, err
	}
	role, err := s.requireRole(ctx, app, tpl)
	if err != nil {
		return nil, err
	}
	if len(providerIDs) == 0 {
		providerIDs = tpl.ProviderIDs()
	}
	declared := tpl.ProviderIDs()
	for _, pid := range providerIDs {
		if !slices.Contains(declared, pid) {
			return nil, dErrors.Newf(dErrors.CodeBadRequest, "template %s declares no provider %q", app.Template, pid)
		}
	}

	results := s.external.Fetch(ctx, extdata.Request{
		ApplicationID: app.ID,
		Applicant:     app.Applicant,
		Answers:       app.Answers,
	}, providerIDs)

	app.ExternalData = extdata.Merge(app.ExternalData, results)
	app.ModifiedAt = truncateToMicros(requestcontext.Now(ctx))
	if err := s.store.Update(ctx, app); err != nil {
		return nil, wrapStoreErr(err, "persist external data")
	}

	s.audit.Emit(ctx, s.newEvent(ctx, app, audit.CategoryOperations, audit.ActionExternalDataFetch, role))
	return s.scoped(app, tpl, role), nil
}
