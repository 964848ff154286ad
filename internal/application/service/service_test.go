package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"formflow/internal/application/delegation"
	"formflow/internal/application/store"
	extdata "formflow/internal/externaldata"
	"formflow/internal/form/answers"
	"formflow/internal/template"
	"formflow/internal/template/parentalleave"
	"formflow/internal/template/referencetemplate"
	id "formflow/pkg/domain"
	dErrors "formflow/pkg/domain-errors"
	"formflow/pkg/requestcontext"
)

const (
	applicantID   id.NationalID = "0101307789"
	otherParentID id.NationalID = "0202307789"
	employerID    id.NationalID = "5402696029"
	caseworkerID  id.NationalID = "1212807789"
	strangerID    id.NationalID = "9999999999"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type stubFetcher struct {
	results extdata.Set
	lastIDs []string
}

func (f *stubFetcher) Fetch(_ context.Context, _ extdata.Request, providerIDs []string) extdata.Set {
	f.lastIDs = providerIDs
	out := extdata.Set{}
	for _, pid := range providerIDs {
		if r, ok := f.results[pid]; ok {
			out[pid] = r
		} else {
			out[pid] = extdata.Result{Status: extdata.StatusFailure, Reason: "no stub", Date: testNow}
		}
	}
	return out
}

type ServiceSuite struct {
	suite.Suite
	service *Service
	store   *store.InMemory
	fetcher *stubFetcher
	tokens  *delegation.InMemory
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	registry := template.NewRegistry()
	s.Require().NoError(registry.Register(parentalleave.New(parentalleave.Config{
		Caseworkers: []id.NationalID{caseworkerID},
	})))
	s.Require().NoError(registry.Register(referencetemplate.New(referencetemplate.Config{
		Reviewers: []id.NationalID{caseworkerID},
	})))

	s.store = store.NewInMemory()
	s.fetcher = &stubFetcher{results: extdata.Set{
		"nationalRegistry": {Status: extdata.StatusSuccess, Data: map[string]any{"name": "Jón"}, Date: testNow},
	}}
	s.tokens = delegation.NewInMemory(time.Hour)

	s.service = New(Config{
		Store:       s.store,
		Templates:   registry,
		External:    s.fetcher,
		Delegations: s.tokens,
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func (s *ServiceSuite) ctx(actor id.NationalID) context.Context {
	ctx := requestcontext.WithActor(context.Background(), actor)
	return requestcontext.WithTime(ctx, testNow)
}

func (s *ServiceSuite) createDraft(templateID id.TemplateID) id.ApplicationID {
	app, err := s.service.Create(s.ctx(applicantID), templateID)
	s.Require().NoError(err)
	return app.ID
}

// fillDraft writes a complete parental leave draft as the applicant.
func (s *ServiceSuite) fillDraft(appID id.ApplicationID, shareRights bool) {
	request := "no"
	if shareRights {
		request = "yes"
	}
	partial := answers.Map{
		"requestRights": request,
		"period": map[string]any{
			"year":      2025.0,
			"startDate": "2025-08-01",
			"endDate":   "2025-11-01",
		},
		"employers": []any{
			map[string]any{"name": "Alda hf", "email": "hr@alda.is", "nationalId": employerID.String()},
		},
		"paymentInfo": map[string]any{"bank": "0123-26-004567"},
	}
	if shareRights {
		partial["otherParent"] = map[string]any{"name": "Anna", "nationalId": otherParentID.String()}
		partial["personalAllowanceFromSpouse"] = map[string]any{"usage": 100.0}
	}
	_, err := s.service.UpdateAnswers(s.ctx(applicantID), appID, partial)
	s.Require().NoError(err)
}

// ==== creation and reads ====

func (s *ServiceSuite) TestCreate() {
	s.Run("creates a draft in the machine's initial state", func() {
		app, err := s.service.Create(s.ctx(applicantID), parentalleave.TemplateID)
		s.Require().NoError(err)
		s.Equal(parentalleave.StateDraft, app.State)
		s.Equal(applicantID, app.Applicant)
		s.NotNil(app.Answers)
	})

	s.Run("rejects unknown templates", func() {
		_, err := s.service.Create(s.ctx(applicantID), "nope")
		s.True(dErrors.Is(err, dErrors.CodeNotFound))
	})

	s.Run("rejects unauthenticated callers", func() {
		_, err := s.service.Create(requestcontext.WithTime(context.Background(), testNow), parentalleave.TemplateID)
		s.True(dErrors.Is(err, dErrors.CodeForbidden))
	})
}

func (s *ServiceSuite) TestGetScoping() {
	appID := s.createDraft(parentalleave.TemplateID)
	s.fillDraft(appID, false)
	_, err := s.service.SubmitEvent(s.ctx(applicantID), appID, parentalleave.EventSubmit)
	s.Require().NoError(err)

	s.Run("applicant sees everything", func() {
		app, err := s.service.Get(s.ctx(applicantID), appID)
		s.Require().NoError(err)
		s.Contains(app.Answers, "paymentInfo")
	})

	s.Run("employer sees only the granted subtrees", func() {
		app, err := s.service.Get(s.ctx(employerID), appID)
		s.Require().NoError(err)
		s.Contains(app.Answers, "period")
		s.Contains(app.Answers, "employers")
		s.NotContains(app.Answers, "paymentInfo")
	})

	s.Run("strangers get not-found, not forbidden", func() {
		_, err := s.service.Get(s.ctx(strangerID), appID)
		s.True(dErrors.Is(err, dErrors.CodeNotFound))
	})

	s.Run("unknown ids are not-found", func() {
		_, err := s.service.Get(s.ctx(applicantID), id.NewApplicationID())
		s.True(dErrors.Is(err, dErrors.CodeNotFound))
	})
}

func (s *ServiceSuite) TestList() {
	first := s.createDraft(parentalleave.TemplateID)
	s.createDraft(referencetemplate.TemplateID)

	s.Run("applicant sees both applications", func() {
		apps, err := s.service.List(s.ctx(applicantID))
		s.Require().NoError(err)
		s.Len(apps, 2)
	})

	s.Run("assignee sees assigned applications only", func() {
		s.fillDraft(first, false)
		_, err := s.service.SubmitEvent(s.ctx(applicantID), first, parentalleave.EventSubmit)
		s.Require().NoError(err)

		apps, err := s.service.List(s.ctx(employerID))
		s.Require().NoError(err)
		s.Require().Len(apps, 1)
		s.Equal(first, apps[0].ID)
	})

	s.Run("strangers see nothing", func() {
		apps, err := s.service.List(s.ctx(strangerID))
		s.Require().NoError(err)
		s.Empty(apps)
	})
}

// ==== answer updates ====

func (s *ServiceSuite) TestUpdateAnswers() {
	s.Run("merges a partial update without touching siblings", func() {
		appID := s.createDraft(parentalleave.TemplateID)
		s.fillDraft(appID, false)

		updated, err := s.service.UpdateAnswers(s.ctx(applicantID), appID, answers.Map{
			"period": map[string]any{"endDate": "2025-12-01"},
		})
		s.Require().NoError(err)
		s.Equal("2025-12-01", answers.GetString(updated.Answers, "period.endDate"))
		s.Equal("2025-08-01", answers.GetString(updated.Answers, "period.startDate"))
	})

	s.Run("validators judge the merged subtree, not the raw fragment", func() {
		appID := s.createDraft(parentalleave.TemplateID)
		s.fillDraft(appID, false)

		// Touching one nested field must not fail rules the untouched
		// fields already satisfy.
		updated, err := s.service.UpdateAnswers(s.ctx(applicantID), appID, answers.Map{
			"period": map[string]any{"endDate": "2025-12-24"},
		})
		s.Require().NoError(err)
		s.Equal("2025-12-24", answers.GetString(updated.Answers, "period.endDate"))

		// And the merged result is what gets judged: an end date sliding
		// before the kept start date still fails.
		_, err = s.service.UpdateAnswers(s.ctx(applicantID), appID, answers.Map{
			"period": map[string]any{"endDate": "2025-07-01"},
		})
		var vf *ValidationFailure
		s.Require().ErrorAs(err, &vf)
		s.Equal("period.endDate", vf.Detail.Path)
	})

	s.Run("rejects writes outside the role's scope", func() {
		appID := s.createDraft(parentalleave.TemplateID)
		s.fillDraft(appID, false)
		_, err := s.service.SubmitEvent(s.ctx(applicantID), appID, parentalleave.EventSubmit)
		s.Require().NoError(err)

		// The employer may confirm, but not touch payment details.
		_, err = s.service.UpdateAnswers(s.ctx(employerID), appID, answers.Map{
			"paymentInfo": map[string]any{"bank": "9999-99-999999"},
		})
		s.Require().True(dErrors.Is(err, dErrors.CodeForbidden))

		_, err = s.service.UpdateAnswers(s.ctx(employerID), appID, answers.Map{
			"employerConfirmation": map[string]any{"confirmed": true},
		})
		s.NoError(err)
	})

	s.Run("named validator failures carry the field path", func() {
		appID := s.createDraft(parentalleave.TemplateID)

		_, err := s.service.UpdateAnswers(s.ctx(applicantID), appID, answers.Map{
			"period": map[string]any{
				"year":      2022.0,
				"startDate": "2022-08-01",
				"endDate":   "2022-11-01",
			},
		})
		var vf *ValidationFailure
		s.Require().ErrorAs(err, &vf)
		s.Equal("period.year", vf.Detail.Path)
	})

	s.Run("schema violations carry the field path", func() {
		appID := s.createDraft(parentalleave.TemplateID)

		_, err := s.service.UpdateAnswers(s.ctx(applicantID), appID, answers.Map{
			"requestRights": "maybe",
		})
		var vf *ValidationFailure
		s.Require().ErrorAs(err, &vf)
		s.Equal("requestRights", vf.Detail.Path)
	})

	s.Run("failed updates change nothing", func() {
		appID := s.createDraft(parentalleave.TemplateID)
		s.fillDraft(appID, false)

		_, err := s.service.UpdateAnswers(s.ctx(applicantID), appID, answers.Map{
			"requestRights": "maybe",
		})
		s.Require().Error(err)

		app, err := s.service.Get(s.ctx(applicantID), appID)
		s.Require().NoError(err)
		s.Equal("no", answers.GetString(app.Answers, "requestRights"))
	})
}

// ==== lifecycle events ====

func (s *ServiceSuite) TestSubmitEvent() {
	s.Run("guarded submit routes through the other parent when rights are shared", func() {
		appID := s.createDraft(parentalleave.TemplateID)
		s.fillDraft(appID, true)

		app, err := s.service.SubmitEvent(s.ctx(applicantID), appID, parentalleave.EventSubmit)
		s.Require().NoError(err)
		s.Equal(parentalleave.StateOtherParentApproval, app.State)
		s.Equal([]id.NationalID{otherParentID}, app.Assignees)
	})

	s.Run("default submit goes straight to the employer", func() {
		appID := s.createDraft(parentalleave.TemplateID)
		s.fillDraft(appID, false)

		app, err := s.service.SubmitEvent(s.ctx(applicantID), appID, parentalleave.EventSubmit)
		s.Require().NoError(err)
		s.Equal(parentalleave.StateEmployerApproval, app.State)
		s.Equal([]id.NationalID{employerID}, app.Assignees)
	})

	s.Run("transitions append to the history", func() {
		appID := s.createDraft(parentalleave.TemplateID)
		s.fillDraft(appID, false)

		app, err := s.service.SubmitEvent(s.ctx(applicantID), appID, parentalleave.EventSubmit)
		s.Require().NoError(err)
		s.Require().Len(app.History, 1)
		s.Equal(parentalleave.EventSubmit, app.History[0].Event)
		s.Equal(parentalleave.StateDraft, app.History[0].From)
		s.Equal(parentalleave.StateEmployerApproval, app.History[0].To)
	})

	s.Run("rejection prunes the spouse allowance", func() {
		appID := s.createDraft(parentalleave.TemplateID)
		s.fillDraft(appID, true)
		_, err := s.service.SubmitEvent(s.ctx(applicantID), appID, parentalleave.EventSubmit)
		s.Require().NoError(err)

		app, err := s.service.SubmitEvent(s.ctx(otherParentID), appID, parentalleave.EventReject)
		s.Require().NoError(err)
		s.Equal(parentalleave.StateRejected, app.State)

		full, err := s.service.Get(s.ctx(applicantID), appID)
		s.Require().NoError(err)
		s.NotContains(full.Answers, "personalAllowanceFromSpouse")
	})

	s.Run("actors without the event grant are rejected without a state change", func() {
		appID := s.createDraft(parentalleave.TemplateID)
		s.fillDraft(appID, false)
		_, err := s.service.SubmitEvent(s.ctx(applicantID), appID, parentalleave.EventSubmit)
		s.Require().NoError(err)

		_, err = s.service.SubmitEvent(s.ctx(applicantID), appID, parentalleave.EventApprove)
		s.Require().True(dErrors.Is(err, dErrors.CodeForbidden))

		app, err := s.service.Get(s.ctx(applicantID), appID)
		s.Require().NoError(err)
		s.Equal(parentalleave.StateEmployerApproval, app.State)
		s.Len(app.History, 1)
	})

	s.Run("full chain reaches approved", func() {
		appID := s.createDraft(parentalleave.TemplateID)
		s.fillDraft(appID, false)

		_, err := s.service.SubmitEvent(s.ctx(applicantID), appID, parentalleave.EventSubmit)
		s.Require().NoError(err)
		_, err = s.service.SubmitEvent(s.ctx(employerID), appID, parentalleave.EventApprove)
		s.Require().NoError(err)
		app, err := s.service.SubmitEvent(s.ctx(caseworkerID), appID, parentalleave.EventApprove)
		s.Require().NoError(err)
		s.Equal(parentalleave.StateApproved, app.State)
		s.Len(app.History, 3)
	})
}

// ==== external data ====

func (s *ServiceSuite) TestFetchExternalData() {
	s.Run("merges provider results into the application", func() {
		appID := s.createDraft(parentalleave.TemplateID)

		app, err := s.service.FetchExternalData(s.ctx(applicantID), appID, []string{"nationalRegistry"})
		s.Require().NoError(err)
		s.Equal(extdata.StatusSuccess, app.ExternalData["nationalRegistry"].Status)
	})

	s.Run("empty request runs every declared provider", func() {
		appID := s.createDraft(parentalleave.TemplateID)

		_, err := s.service.FetchExternalData(s.ctx(applicantID), appID, nil)
		s.Require().NoError(err)
		s.ElementsMatch([]string{"nationalRegistry", "userProfile"}, s.fetcher.lastIDs)
	})

	s.Run("undeclared providers are rejected", func() {
		appID := s.createDraft(parentalleave.TemplateID)

		_, err := s.service.FetchExternalData(s.ctx(applicantID), appID, []string{"criminalRecord"})
		s.True(dErrors.Is(err, dErrors.CodeBadRequest))
	})

	s.Run("provider failures persist as failure results", func() {
		appID := s.createDraft(parentalleave.TemplateID)

		app, err := s.service.FetchExternalData(s.ctx(applicantID), appID, []string{"userProfile"})
		s.Require().NoError(err)
		s.Equal(extdata.StatusFailure, app.ExternalData["userProfile"].Status)
	})
}

// ==== delegation claims ====

func (s *ServiceSuite) TestClaim() {
	s.Run("valid token adds the actor to the assignees", func() {
		appID := s.createDraft(parentalleave.TemplateID)
		token, err := s.tokens.Issue(context.Background(), appID)
		s.Require().NoError(err)

		_, err = s.service.Claim(s.ctx(employerID), appID, token)
		s.Require().NoError(err)

		app, err := s.service.Get(s.ctx(applicantID), appID)
		s.Require().NoError(err)
		s.True(app.IsAssignee(employerID))
	})

	s.Run("tokens are single use", func() {
		appID := s.createDraft(parentalleave.TemplateID)
		token, err := s.tokens.Issue(context.Background(), appID)
		s.Require().NoError(err)

		_, err = s.service.Claim(s.ctx(employerID), appID, token)
		s.Require().NoError(err)
		_, err = s.service.Claim(s.ctx(strangerID), appID, token)
		s.True(dErrors.Is(err, dErrors.CodeForbidden))
	})

	s.Run("wrong token is forbidden", func() {
		appID := s.createDraft(parentalleave.TemplateID)
		_, err := s.tokens.Issue(context.Background(), appID)
		s.Require().NoError(err)

		_, err = s.service.Claim(s.ctx(employerID), appID, "bogus")
		s.True(dErrors.Is(err, dErrors.CodeForbidden))
	})

	s.Run("missing token is a bad request", func() {
		appID := s.createDraft(parentalleave.TemplateID)
		_, err := s.service.Claim(s.ctx(employerID), appID, "")
		s.True(dErrors.Is(err, dErrors.CodeBadRequest))
	})
}
