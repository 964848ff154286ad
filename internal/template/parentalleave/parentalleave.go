// Package parentalleave ships the full multi-party parental leave
// template: applicant drafts the application, the other parent approves
// when rights are shared, the employer confirms the leave periods, and a
// caseworker decides.
package parentalleave

import (
	_ "embed"

	"formflow/internal/application/models"
	"formflow/internal/externaldata"
	"formflow/internal/form"
	"formflow/internal/form/answers"
	"formflow/internal/lifecycle"
	"formflow/internal/template"
	id "formflow/pkg/domain"
)

// TemplateID identifies this template in application records and URLs.
const TemplateID id.TemplateID = "parentalleave"

// Lifecycle vocabulary of this template. The engine never sees these names
// outside the definition below.
const (
	StateDraft               lifecycle.StateName = "draft"
	StateOtherParentApproval lifecycle.StateName = "otherParentApproval"
	StateEmployerApproval    lifecycle.StateName = "employerApproval"
	StateCaseworkerReview    lifecycle.StateName = "caseworkerReview"
	StateApproved            lifecycle.StateName = "approved"
	StateRejected            lifecycle.StateName = "rejected"

	EventSubmit  lifecycle.Event = "SUBMIT"
	EventApprove lifecycle.Event = "APPROVE"
	EventReject  lifecycle.Event = "REJECT"
	EventEdit    lifecycle.Event = "EDIT"

	RoleApplicant   lifecycle.Role = "applicant"
	RoleOtherParent lifecycle.Role = "otherParent"
	RoleEmployer    lifecycle.Role = "employer"
	RoleCaseworker  lifecycle.Role = "caseworker"
)

//go:embed schema.json
var answerSchema []byte

// Config carries the deployment-specific pieces of the template.
type Config struct {
	// Caseworkers are the national ids allowed to review applications.
	Caseworkers []id.NationalID
	// Providers supplies the external data providers the prerequisite
	// screens name; tests substitute stubs.
	Providers []externaldata.Provider
}

// New builds the registrable template.
func New(cfg Config) template.Template {
	return template.Template{
		ID:            TemplateID,
		Name:          "Parental Leave",
		Form:          formTree(),
		Machine:       machine(),
		Validators:    validators(),
		AnswerSchema:  answerSchema,
		Providers:     cfg.Providers,
		MapUserToRole: roleMapper(cfg.Caseworkers),
	}
}

func formTree() *form.Form {
	return form.New("parentalLeave", "Parental Leave",
		form.Section("prerequisites", "Data collection",
			form.DataProvider("nationalRegistryData", "National Registry", "nationalRegistry"),
			form.DataProvider("userProfileData", "Your profile", "userProfile"),
		),
		form.Section("rights", "Parental rights",
			form.SubSection("requestRightsSection", "Shared rights",
				form.Field("requestRights", "Request rights from the other parent?"),
				form.MultiField("otherParentInfo", "Other parent",
					form.Field("otherParent.name", "Name"),
					form.Field("otherParent.nationalId", "National id"),
				).When(sharedRightsRequested),
				form.Field("personalAllowanceFromSpouse", "Use spouse's personal allowance").
					When(sharedRightsRequested),
			),
		),
		form.Section("leavePeriod", "Leave period",
			form.MultiField("period", "When do you plan to take leave?",
				form.Field("period.year", "Year"),
				form.Field("period.startDate", "First day"),
				form.Field("period.endDate", "Last day"),
			),
		),
		form.Section("employment", "Employers",
			form.Repeater("employers", "Your employers",
				form.Field("name", "Company name"),
				form.Field("email", "Contact email"),
				form.Field("nationalId", "Company national id"),
			),
		),
		form.Section("payments", "Payment information",
			form.MultiField("paymentInfo", "Where should payments go?",
				form.Field("paymentInfo.bank", "Bank account"),
				form.Field("paymentInfo.pensionFund", "Pension fund"),
			),
		),
		form.Section("confirmation", "Overview",
			form.Field("confirm", "Review and submit"),
		),
	)
}

// sharedRightsRequested reads the shared-rights answer; the other-parent
// screens and the spouse allowance only exist when it is ticked.
func sharedRightsRequested(ans answers.Map, _ externaldata.Set) bool {
	return answers.GetString(ans, "requestRights") == "yes"
}

func machine() lifecycle.Definition {
	applicantDraft := lifecycle.RoleSpec{
		Read:   lifecycle.ScopeAll(),
		Write:  lifecycle.ScopeAll(),
		Events: []lifecycle.Event{EventSubmit},
	}
	applicantWaiting := lifecycle.RoleSpec{
		Read:   lifecycle.ScopeAll(),
		Events: []lifecycle.Event{EventEdit},
	}

	return lifecycle.Definition{
		Initial: StateDraft,
		States: map[lifecycle.StateName]lifecycle.StateSpec{
			StateDraft: {
				Status: lifecycle.StatusDraft,
				Roles: map[lifecycle.Role]lifecycle.RoleSpec{
					RoleApplicant: applicantDraft,
				},
				On: map[lifecycle.Event][]lifecycle.Transition{
					// First match wins: the other parent only enters the
					// loop when rights are shared.
					EventSubmit: {
						{Target: StateOtherParentApproval, Guard: func(c lifecycle.Context) bool {
							return sharedRightsRequested(c.Answers, c.External)
						}},
						{Target: StateEmployerApproval},
					},
				},
			},
			StateOtherParentApproval: {
				Status: lifecycle.StatusInProgress,
				Entry:  []lifecycle.ActionFunc{assignOtherParent},
				Roles: map[lifecycle.Role]lifecycle.RoleSpec{
					RoleApplicant: applicantWaiting,
					RoleOtherParent: {
						Read:   lifecycle.ScopePaths("requestRights", "period", "otherParent"),
						Write:  lifecycle.ScopePaths("otherParentConfirmation"),
						Events: []lifecycle.Event{EventApprove, EventReject},
					},
				},
				On: map[lifecycle.Event][]lifecycle.Transition{
					EventApprove: {{Target: StateEmployerApproval}},
					EventReject:  {{Target: StateRejected}},
					EventEdit:    {{Target: StateDraft}},
				},
			},
			StateEmployerApproval: {
				Status: lifecycle.StatusInProgress,
				Entry:  []lifecycle.ActionFunc{assignEmployers},
				Roles: map[lifecycle.Role]lifecycle.RoleSpec{
					RoleApplicant: applicantWaiting,
					RoleEmployer: {
						Read:   lifecycle.ScopePaths("period", "employers"),
						Write:  lifecycle.ScopePaths("employerConfirmation"),
						Events: []lifecycle.Event{EventApprove, EventReject},
					},
				},
				On: map[lifecycle.Event][]lifecycle.Transition{
					EventApprove: {{Target: StateCaseworkerReview}},
					EventReject:  {{Target: StateRejected}},
					EventEdit:    {{Target: StateDraft}},
				},
			},
			StateCaseworkerReview: {
				Status: lifecycle.StatusInProgress,
				Entry:  []lifecycle.ActionFunc{notifyApplicant("applicationInReview")},
				Roles: map[lifecycle.Role]lifecycle.RoleSpec{
					RoleApplicant: {Read: lifecycle.ScopeAll()},
					RoleCaseworker: {
						Read:   lifecycle.ScopeAll(),
						Write:  lifecycle.ScopePaths("caseworkerNotes"),
						Events: []lifecycle.Event{EventApprove, EventReject},
					},
				},
				On: map[lifecycle.Event][]lifecycle.Transition{
					EventApprove: {{Target: StateApproved}},
					EventReject:  {{Target: StateRejected}},
				},
			},
			StateApproved: {
				Status: lifecycle.StatusCompleted,
				Final:  true,
				Entry:  []lifecycle.ActionFunc{notifyApplicant("applicationApproved")},
				Roles: map[lifecycle.Role]lifecycle.RoleSpec{
					// Approved applications can be reopened for changed
					// circumstances (new periods, employer changes).
					RoleApplicant: {
						Read:   lifecycle.ScopeAll(),
						Events: []lifecycle.Event{EventEdit},
					},
					RoleCaseworker: {Read: lifecycle.ScopeAll()},
				},
				On: map[lifecycle.Event][]lifecycle.Transition{
					EventEdit: {{Target: StateDraft}},
				},
			},
			StateRejected: {
				Status: lifecycle.StatusRejected,
				Final:  true,
				Entry: []lifecycle.ActionFunc{
					pruneSpouseAllowance,
					notifyApplicant("applicationRejected"),
				},
				Roles: map[lifecycle.Role]lifecycle.RoleSpec{
					RoleApplicant:  {Read: lifecycle.ScopeAll()},
					RoleCaseworker: {Read: lifecycle.ScopeAll()},
				},
			},
		},
	}
}

// assignOtherParent hands the application to the other parent named in the
// answers. A missing or malformed id assigns nobody; the applicant can
// still edit back to draft.
func assignOtherParent(fx *lifecycle.Effects, c lifecycle.Context) {
	raw := answers.GetString(c.Answers, "otherParent.nationalId")
	nid, err := id.ParseNationalID(raw)
	if err != nil {
		fx.AssignTo()
		return
	}
	fx.AssignTo(nid)
	fx.Notify("otherParentApprovalRequested", nid)
}

// assignEmployers hands the application to every employer entry that
// carries a parseable national id.
func assignEmployers(fx *lifecycle.Effects, c lifecycle.Context) {
	var assignees []id.NationalID
	for _, entry := range answers.GetSlice(c.Answers, "employers") {
		m, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		raw, _ := m["nationalId"].(string)
		nid, err := id.ParseNationalID(raw)
		if err != nil {
			continue
		}
		assignees = append(assignees, nid)
		fx.Notify("employerApprovalRequested", nid)
	}
	fx.AssignTo(assignees...)
}

// pruneSpouseAllowance clears the spouse allowance grant on rejection; the
// consent it encodes does not survive a failed application.
func pruneSpouseAllowance(fx *lifecycle.Effects, _ lifecycle.Context) {
	fx.Prune("personalAllowanceFromSpouse")
}

// notifyApplicant tells the application's owner about a decision; the actor
// triggering the transition is the decider, never the recipient.
func notifyApplicant(notificationType string) lifecycle.ActionFunc {
	return func(fx *lifecycle.Effects, c lifecycle.Context) {
		fx.Notify(notificationType, c.Applicant)
	}
}

// roleMapper resolves an actor's role on a concrete application. The
// applicant and caseworkers are recognized directly; everyone else must be
// on the assignee list, and is the other parent only when matching the
// other-parent answer. Unmatched actors get no role at all.
func roleMapper(caseworkers []id.NationalID) template.MapUserToRole {
	cw := make(map[id.NationalID]struct{}, len(caseworkers))
	for _, c := range caseworkers {
		cw[c] = struct{}{}
	}
	return func(actor id.NationalID, app *models.Application) (lifecycle.Role, bool) {
		if actor == app.Applicant {
			return RoleApplicant, true
		}
		if _, ok := cw[actor]; ok {
			return RoleCaseworker, true
		}
		if !app.IsAssignee(actor) {
			return "", false
		}
		if answers.GetString(app.Answers, "otherParent.nationalId") == actor.String() {
			return RoleOtherParent, true
		}
		return RoleEmployer, true
	}
}
