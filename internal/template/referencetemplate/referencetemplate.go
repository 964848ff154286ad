// Package referencetemplate is the smallest template that exercises every
// engine feature: a conditional screen, a repeater, one external data
// provider, and a two-step review lifecycle. It doubles as the worked
// example for template authors and as a fixture for service tests.
package referencetemplate

import (
	"formflow/internal/application/models"
	"formflow/internal/externaldata"
	"formflow/internal/form"
	"formflow/internal/form/answers"
	"formflow/internal/lifecycle"
	"formflow/internal/template"
	id "formflow/pkg/domain"
)

// TemplateID identifies this template.
const TemplateID id.TemplateID = "referencetemplate"

const (
	StateDraft    lifecycle.StateName = "draft"
	StateInReview lifecycle.StateName = "inReview"
	StateApproved lifecycle.StateName = "approved"

	EventSubmit  lifecycle.Event = "SUBMIT"
	EventApprove lifecycle.Event = "APPROVE"

	RoleApplicant lifecycle.Role = "applicant"
	RoleReviewer  lifecycle.Role = "reviewer"
)

// Config names the reviewers and optionally supplies providers.
type Config struct {
	Reviewers []id.NationalID
	Providers []externaldata.Provider
}

// New builds the registrable template.
func New(cfg Config) template.Template {
	return template.Template{
		ID:            TemplateID,
		Name:          "Reference Template",
		Form:          formTree(),
		Machine:       machine(),
		Providers:     cfg.Providers,
		MapUserToRole: roleMapper(cfg.Reviewers),
	}
}

func formTree() *form.Form {
	return form.New("reference", "Reference Template",
		form.Section("prerequisites", "Data collection",
			form.DataProvider("nationalRegistryData", "National Registry", "nationalRegistry"),
		),
		form.Section("details", "Details",
			form.Field("about", "Tell us about your case"),
			form.Field("careerHistory", "Do you have career history?"),
			form.Repeater("careerEntries", "Career history",
				form.Field("employer", "Employer"),
				form.Field("years", "Years"),
			).When(func(ans answers.Map, _ externaldata.Set) bool {
				return answers.GetString(ans, "careerHistory") == "yes"
			}),
		),
		form.Section("confirmation", "Overview",
			form.Field("confirm", "Review and submit"),
		),
	)
}

func machine() lifecycle.Definition {
	return lifecycle.Definition{
		Initial: StateDraft,
		States: map[lifecycle.StateName]lifecycle.StateSpec{
			StateDraft: {
				Status: lifecycle.StatusDraft,
				Roles: map[lifecycle.Role]lifecycle.RoleSpec{
					RoleApplicant: {
						Read:   lifecycle.ScopeAll(),
						Write:  lifecycle.ScopeAll(),
						Events: []lifecycle.Event{EventSubmit},
					},
				},
				On: map[lifecycle.Event][]lifecycle.Transition{
					EventSubmit: {{Target: StateInReview}},
				},
			},
			StateInReview: {
				Status: lifecycle.StatusInProgress,
				Roles: map[lifecycle.Role]lifecycle.RoleSpec{
					RoleApplicant: {Read: lifecycle.ScopeAll()},
					RoleReviewer: {
						Read:   lifecycle.ScopeAll(),
						Write:  lifecycle.ScopePaths("reviewerNotes"),
						Events: []lifecycle.Event{EventApprove},
					},
				},
				On: map[lifecycle.Event][]lifecycle.Transition{
					EventApprove: {{Target: StateApproved}},
				},
			},
			StateApproved: {
				Status: lifecycle.StatusCompleted,
				Final:  true,
				Roles: map[lifecycle.Role]lifecycle.RoleSpec{
					RoleApplicant: {Read: lifecycle.ScopeAll()},
					RoleReviewer:  {Read: lifecycle.ScopeAll()},
				},
			},
		},
	}
}

func roleMapper(reviewers []id.NationalID) template.MapUserToRole {
	rv := make(map[id.NationalID]struct{}, len(reviewers))
	for _, r := range reviewers {
		rv[r] = struct{}{}
	}
	return func(actor id.NationalID, app *models.Application) (lifecycle.Role, bool) {
		if actor == app.Applicant {
			return RoleApplicant, true
		}
		if _, ok := rv[actor]; ok {
			return RoleReviewer, true
		}
		return "", false
	}
}
