package service

import (
	"context"
	"encoding/json"
	"errors"

	"formflow/internal/application/models"
	"formflow/internal/audit"
	"formflow/internal/form/answers"
	"formflow/internal/lifecycle"
	id "formflow/pkg/domain"
	dErrors "formflow/pkg/domain-errors"
	"formflow/pkg/requestcontext"
)

// SubmitEvent runs one lifecycle event through the template's state
// machine. On acceptance the declared effects are applied in order: answer
// pruning, reassignment (with fresh delegation tokens for the new
// assignees), history, then notifications. Rejections change nothing and
// surface as a generic "action not permitted".
func (s *Service) SubmitEvent(ctx context.Context, appID id.ApplicationID, event lifecycle.Event) (*models.Application, error) {
	ctx, span := s.tracer.Start(ctx, "application.SubmitEvent")
	defer span.End()

	app, tpl, err := s.load(ctx, appID)
	if err != nil {
		return nil, err
	}
	role, err := s.requireRole(ctx, app, tpl)
	if err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	result, err := tpl.CompiledMachine.Transition(app.State, event, lifecycle.Context{
		Actor:     requestcontext.Actor(ctx),
		Applicant: app.Applicant,
		Role:      role,
		Answers:   app.Answers,
		External:  app.ExternalData,
		Now:       now,
	})
	if errors.Is(err, lifecycle.ErrNotPermitted) {
		denied := s.newEvent(ctx, app, audit.CategoryCompliance, audit.ActionTransitionDenied, role)
		denied.Event = string(event)
		denied.FromState = string(app.State)
		s.audit.Emit(ctx, denied)
		s.metrics.RecordTransition(app.Template.String(), string(event), "denied")
		return nil, dErrors.New(dErrors.CodeForbidden, "action not permitted")
	}
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "transition failed", err)
	}

	if len(result.Effects.PrunePaths) > 0 {
		app.Answers = answers.Prune(app.Answers, result.Effects.PrunePaths...)
	}
	if result.Effects.Reassigns() {
		app.Assignees = result.Effects.Assignees
	}
	app.State = result.To
	app.Status = tpl.CompiledMachine.StatusOf(result.To)
	app.History = append(app.History, models.HistoryEntry{
		From:  result.From,
		To:    result.To,
		Event: event,
		Role:  role,
		Date:  truncateToMicros(now),
	})
	app.ModifiedAt = truncateToMicros(now)

	if err := s.store.Update(ctx, app); err != nil {
		return nil, wrapStoreErr(err, "persist transition")
	}

	s.dispatchNotifications(ctx, app, result.Effects)

	accepted := s.newEvent(ctx, app, audit.CategoryCompliance, audit.ActionTransition, role)
	accepted.Event = string(event)
	accepted.FromState = string(result.From)
	accepted.ToState = string(result.To)
	s.audit.Emit(ctx, accepted)
	s.metrics.RecordTransition(app.Template.String(), string(event), "accepted")
	s.logger.InfoContext(ctx, "application transitioned",
		"application_id", app.ID.String(),
		"event", string(event),
		"from", string(result.From),
		"to", string(result.To),
	)
	return s.scoped(app, tpl, role), nil
}

// notification is the wire shape on the notifications topic. The
// delegation token rides along for approval requests so the dispatcher can
// embed a claim link; the token is never persisted in clear.
type notification struct {
	Type          string `json:"type"`
	Recipient     string `json:"recipient"`
	ApplicationID string `json:"applicationId"`
	Template      string `json:"template"`
	Token         string `json:"token,omitempty"`
}

// dispatchNotifications publishes the transition's notifications. A fresh
// delegation token is minted once per transition that reassigns the
// application to someone.
func (s *Service) dispatchNotifications(ctx context.Context, app *models.Application, fx lifecycle.Effects) {
	if s.notifier == nil || len(fx.Notifications) == 0 {
		return
	}

	var token string
	if fx.Reassigns() && len(fx.Assignees) > 0 && s.delegations != nil {
		var err error
		token, err = s.delegations.Issue(ctx, app.ID)
		if err != nil {
			s.logger.ErrorContext(ctx, "issue delegation token", "error", err,
				"application_id", app.ID.String())
		}
	}

	for _, n := range fx.Notifications {
		msg := notification{
			Type:          n.Type,
			Recipient:     n.Recipient.String(),
			ApplicationID: app.ID.String(),
			Template:      app.Template.String(),
		}
		if app.IsAssignee(n.Recipient) {
			msg.Token = token
		}
		payload, err := json.Marshal(msg)
		if err != nil {
			s.logger.ErrorContext(ctx, "marshal notification", "error", err)
			continue
		}
		if err := s.notifier.Publish(ctx, NotificationsTopic, []byte(app.ID.String()), payload); err != nil {
			s.logger.ErrorContext(ctx, "publish notification", "error", err,
				"type", n.Type,
				"application_id", app.ID.String(),
			)
		}
	}
}
