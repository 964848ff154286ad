package wizard

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"formflow/internal/externaldata"
	"formflow/internal/form"
	"formflow/internal/form/answers"
	"formflow/internal/form/flatten"
)

type WizardSuite struct {
	suite.Suite
}

func TestWizardSuite(t *testing.T) {
	suite.Run(t, new(WizardSuite))
}

// testForm: one plain section, a conditional field, a repeater with two
// children, and a trailing field.
//
//	screens (all conditions true, n repetitions):
//	  [intro, extra?, employers, (name email) x n, confirm]
func testForm() *form.Form {
	return form.New("f", "Form",
		form.Section("about", "About",
			form.Field("intro", "Intro"),
			form.Field("extra", "Extra").When(func(ans answers.Map, _ externaldata.Set) bool {
				return answers.GetString(ans, "intro") == "more"
			}),
		),
		form.Section("jobs", "Jobs",
			form.Repeater("employers", "Employers",
				form.Field("name", "Name"),
				form.Field("email", "Email"),
			),
			form.Field("confirm", "Confirm"),
		),
	)
}

func repetitions(n int) answers.Map {
	reps := make([]any, n)
	for i := range reps {
		reps[i] = map[string]any{}
	}
	return answers.Map{"employers": reps}
}

// =============================================================================
// ANSWER Tests
// =============================================================================

func (s *WizardSuite) TestAnswer() {
	s.Run("merge re-flattens and reveals conditional screens", func() {
		st := New(testForm(), answers.Map{}, nil)
		s.Len(st.Screens, 3) // intro, employers, confirm

		st = Reduce(st, Answer{Partial: answers.Map{"intro": "more"}})
		s.Len(st.Screens, 4)
		s.Equal("extra", st.Screens[1].NodeID)
	})

	s.Run("active screen keeps identity when upstream screens appear", func() {
		st := New(testForm(), answers.Map{}, nil)
		st = Reduce(st, GoToScreen{Key: flatten.Key{NodeID: "confirm", RepeaterIndex: flatten.NoRepeater}})
		s.Equal(2, st.ActiveScreen)

		st = Reduce(st, Answer{Partial: answers.Map{"intro": "more"}})
		active, ok := st.Active()
		s.Require().True(ok)
		s.Equal("confirm", active.NodeID)
		s.Equal(3, st.ActiveScreen)
	})

	s.Run("vanished active screen snaps to nearest preceding survivor", func() {
		st := New(testForm(), answers.Map{"intro": "more"}, nil)
		st = Reduce(st, GoToScreen{Key: flatten.Key{NodeID: "extra", RepeaterIndex: flatten.NoRepeater}})
		s.Equal(1, st.ActiveScreen)

		// resetting intro removes the active "extra" screen
		st = Reduce(st, Answer{Partial: answers.Map{"intro": "less"}})
		active, ok := st.Active()
		s.Require().True(ok)
		s.Equal("intro", active.NodeID)
		s.Equal(0, st.ActiveScreen)
	})

	s.Run("merge preserves sibling answers", func() {
		st := New(testForm(), answers.Map{"period": map[string]any{"year": "2024"}}, nil)
		st = Reduce(st, Answer{Partial: answers.Map{"period": map[string]any{"month": "06"}}})
		s.Equal("2024", answers.GetString(st.Answers, "period.year"))
		s.Equal("06", answers.GetString(st.Answers, "period.month"))
	})
}

// =============================================================================
// Navigation Tests
// =============================================================================

func (s *WizardSuite) TestAnswerAndGoNext() {
	s.Run("plain screens step linearly", func() {
		st := New(testForm(), answers.Map{}, nil)
		st = Reduce(st, AnswerAndGoNext{Partial: answers.Map{"intro": "hi"}})
		active, _ := st.Active()
		s.Equal("employers", active.NodeID)
	})

	s.Run("repeater summary skips the whole expansion block", func() {
		st := New(testForm(), repetitions(2), nil)
		st = Reduce(st, GoToScreen{Key: flatten.Key{NodeID: "employers", RepeaterIndex: flatten.NoRepeater}})

		st = Reduce(st, AnswerAndGoNext{})
		active, _ := st.Active()
		s.Equal("confirm", active.NodeID)
	})

	s.Run("within a repetition steps linearly", func() {
		st := New(testForm(), repetitions(2), nil)
		st = Reduce(st, GoToScreen{Key: flatten.Key{NodeID: "name", RepeaterIndex: 0}})

		st = Reduce(st, AnswerAndGoNext{})
		active, _ := st.Active()
		s.Equal("email", active.NodeID)
		s.Equal(0, active.RepeaterIndex)
	})

	s.Run("finishing a repetition returns to the summary", func() {
		st := New(testForm(), repetitions(2), nil)
		st = Reduce(st, GoToScreen{Key: flatten.Key{NodeID: "email", RepeaterIndex: 0}})

		st = Reduce(st, AnswerAndGoNext{})
		active, _ := st.Active()
		s.Equal("employers", active.NodeID)
		s.Equal(form.KindRepeater, active.Kind)
	})

	s.Run("finishing the last repetition also returns to the summary", func() {
		st := New(testForm(), repetitions(2), nil)
		st = Reduce(st, GoToScreen{Key: flatten.Key{NodeID: "email", RepeaterIndex: 1}})

		st = Reduce(st, AnswerAndGoNext{})
		active, _ := st.Active()
		s.Equal("employers", active.NodeID)
	})

	s.Run("clamps at the final screen", func() {
		st := New(testForm(), answers.Map{}, nil)
		st = Reduce(st, GoToScreen{Key: flatten.Key{NodeID: "confirm", RepeaterIndex: flatten.NoRepeater}})
		st = Reduce(st, AnswerAndGoNext{})
		active, _ := st.Active()
		s.Equal("confirm", active.NodeID)
	})
}

func (s *WizardSuite) TestPrevScreen() {
	s.Run("plain screens step back linearly", func() {
		st := New(testForm(), answers.Map{}, nil)
		st = Reduce(st, GoToScreen{Key: flatten.Key{NodeID: "employers", RepeaterIndex: flatten.NoRepeater}})
		st = Reduce(st, PrevScreen{})
		active, _ := st.Active()
		s.Equal("intro", active.NodeID)
	})

	s.Run("stepping back over an expansion block lands on the summary", func() {
		st := New(testForm(), repetitions(2), nil)
		st = Reduce(st, GoToScreen{Key: flatten.Key{NodeID: "confirm", RepeaterIndex: flatten.NoRepeater}})

		st = Reduce(st, PrevScreen{})
		active, _ := st.Active()
		s.Equal("employers", active.NodeID)
		s.Equal(form.KindRepeater, active.Kind)
	})

	s.Run("first screen of a repetition goes back to the summary", func() {
		st := New(testForm(), repetitions(2), nil)
		st = Reduce(st, GoToScreen{Key: flatten.Key{NodeID: "name", RepeaterIndex: 1}})

		st = Reduce(st, PrevScreen{})
		active, _ := st.Active()
		s.Equal("employers", active.NodeID)
	})

	s.Run("within a repetition steps back linearly", func() {
		st := New(testForm(), repetitions(1), nil)
		st = Reduce(st, GoToScreen{Key: flatten.Key{NodeID: "email", RepeaterIndex: 0}})

		st = Reduce(st, PrevScreen{})
		active, _ := st.Active()
		s.Equal("name", active.NodeID)
		s.Equal(0, active.RepeaterIndex)
	})

	s.Run("clamps at the first screen", func() {
		st := New(testForm(), answers.Map{}, nil)
		st = Reduce(st, PrevScreen{})
		s.Equal(0, st.ActiveScreen)
	})
}

// =============================================================================
// EXPAND_REPEATER Tests
// =============================================================================

func (s *WizardSuite) TestExpandRepeater() {
	s.Run("re-splices expansions after the count grows", func() {
		st := New(testForm(), repetitions(1), nil)
		st = Reduce(st, GoToScreen{Key: flatten.Key{NodeID: "employers", RepeaterIndex: flatten.NoRepeater}})
		s.Len(st.Screens, 5) // intro, summary, name0, email0, confirm

		// grow the repetition count behind the screen list's back, the way a
		// caller appending a repetition before dispatching does
		st.Answers = answers.Merge(st.Answers, answers.Map{"employers": []any{nil, map[string]any{}}})
		s.Len(st.Screens, 5)

		st = Reduce(st, ExpandRepeater{})
		s.Len(st.Screens, 7)
		active, _ := st.Active()
		s.Equal("employers", active.NodeID)
	})

	s.Run("no-op when the active screen is not a repeater", func() {
		st := New(testForm(), repetitions(1), nil)
		before := st
		st = Reduce(st, ExpandRepeater{})
		s.Equal(before.ActiveScreen, st.ActiveScreen)
		s.Equal(before.Screens, st.Screens)
	})
}

// =============================================================================
// ADD_EXTERNAL_DATA Tests
// =============================================================================

func (s *WizardSuite) TestAddExternalData() {
	condForm := form.New("f", "Form",
		form.Section("a", "A",
			form.Field("always", "Always"),
			form.Field("gated", "Gated").When(func(_ answers.Map, ext externaldata.Set) bool {
				_, ok := ext.Data("userProfile")
				return ok
			}),
		),
	)

	s.Run("merge triggers a re-flatten immediately", func() {
		st := New(condForm, answers.Map{}, nil)
		s.Len(st.Screens, 1)

		st = Reduce(st, AddExternalData{Partial: externaldata.Set{
			"userProfile": {Status: externaldata.StatusSuccess, Data: map[string]any{"email": "a@b.is"}, Date: time.Now()},
		}})
		s.Len(st.Screens, 2)
	})

	s.Run("failed provider result does not unlock conditioned screens", func() {
		st := New(condForm, answers.Map{}, nil)
		st = Reduce(st, AddExternalData{Partial: externaldata.Set{
			"userProfile": {Status: externaldata.StatusFailure, Reason: "registry timeout", Date: time.Now()},
		}})
		s.Len(st.Screens, 1)
	})

	s.Run("merge keeps earlier provider results", func() {
		st := New(condForm, answers.Map{}, nil)
		st = Reduce(st, AddExternalData{Partial: externaldata.Set{
			"nationalRegistry": {Status: externaldata.StatusSuccess, Date: time.Now()},
		}})
		st = Reduce(st, AddExternalData{Partial: externaldata.Set{
			"userProfile": {Status: externaldata.StatusSuccess, Date: time.Now()},
		}})
		s.Len(st.External, 2)
	})
}
