package flatten

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"formflow/internal/externaldata"
	"formflow/internal/form"
	"formflow/internal/form/answers"
)

type FlattenSuite struct {
	suite.Suite
}

func TestFlattenSuite(t *testing.T) {
	suite.Run(t, new(FlattenSuite))
}

func nodeIDs(screens []Screen) []string {
	ids := make([]string, len(screens))
	for i, s := range screens {
		ids[i] = s.NodeID
	}
	return ids
}

// =============================================================================
// Basic Walk Tests
// =============================================================================

func (s *FlattenSuite) TestBasicWalk() {
	s.Run("single section with one field yields one screen", func() {
		f := form.New("f", "Form",
			form.Section("a", "Section A",
				form.Field("f1", "Field 1"),
			),
		)
		screens := Flatten(f, answers.Map{}, nil)
		s.Require().Len(screens, 1)
		s.Equal("f1", screens[0].NodeID)
		s.Equal(form.KindField, screens[0].Kind)
		s.Equal(0, screens[0].SectionIndex)
		s.Equal(-1, screens[0].SubSectionIndex)
		s.Equal(NoRepeater, screens[0].RepeaterIndex)
	})

	s.Run("multiField is one atomic screen", func() {
		f := form.New("f", "Form",
			form.Section("a", "A",
				form.MultiField("mf", "Together",
					form.Field("x", "X"),
					form.Field("y", "Y"),
				),
			),
		)
		screens := Flatten(f, answers.Map{}, nil)
		s.Require().Len(screens, 1)
		s.Equal("mf", screens[0].NodeID)
		s.Equal(form.KindMultiField, screens[0].Kind)
	})

	s.Run("section and subsection indices track position", func() {
		f := form.New("f", "Form",
			form.Section("a", "A", form.Field("f1", "F1")),
			form.Section("b", "B",
				form.SubSection("b1", "B1", form.Field("f2", "F2")),
				form.SubSection("b2", "B2", form.Field("f3", "F3")),
			),
		)
		screens := Flatten(f, answers.Map{}, nil)
		s.Require().Len(screens, 3)
		s.Equal(0, screens[0].SectionIndex)
		s.Equal(1, screens[1].SectionIndex)
		s.Equal(0, screens[1].SubSectionIndex)
		s.Equal(1, screens[2].SubSectionIndex)
	})

	s.Run("leaf after a subsection is outside it again", func() {
		f := form.New("f", "Form",
			form.Section("a", "A",
				form.SubSection("a1", "A1", form.Field("f1", "F1")),
				form.Field("f2", "F2"),
				form.SubSection("a2", "A2", form.Field("f3", "F3")),
			),
		)
		screens := Flatten(f, answers.Map{}, nil)
		s.Require().Len(screens, 3)
		s.Equal(0, screens[0].SubSectionIndex)
		s.Equal(-1, screens[1].SubSectionIndex)
		s.Equal(1, screens[2].SubSectionIndex)
	})

	s.Run("data provider node is a screen", func() {
		f := form.New("f", "Form",
			form.Section("a", "A",
				form.DataProvider("registry", "Fetch registry data", "nationalRegistry"),
				form.Field("f1", "F1"),
			),
		)
		screens := Flatten(f, answers.Map{}, nil)
		s.Equal([]string{"registry", "f1"}, nodeIDs(screens))
	})
}

// =============================================================================
// Condition Tests
// =============================================================================

func (s *FlattenSuite) TestConditions() {
	never := func(answers.Map, externaldata.Set) bool { return false }

	s.Run("false condition removes node structurally", func() {
		f := form.New("f", "Form",
			form.Section("a", "A",
				form.Field("f1", "F1"),
				form.Field("hidden", "Hidden").When(never),
				form.Field("f2", "F2"),
			),
		)
		screens := Flatten(f, answers.Map{}, nil)
		s.Equal([]string{"f1", "f2"}, nodeIDs(screens))
	})

	s.Run("false condition on parent removes whole subtree", func() {
		f := form.New("f", "Form",
			form.Section("a", "A", form.Field("f1", "F1")).When(never),
			form.Section("b", "B", form.Field("f2", "F2")),
		)
		screens := Flatten(f, answers.Map{}, nil)
		s.Equal([]string{"f2"}, nodeIDs(screens))
		// the surviving section is section 0 of the visible list
		s.Equal(0, screens[0].SectionIndex)
	})

	s.Run("condition reads answers", func() {
		other := form.Field("otherParent", "Other parent").When(
			func(ans answers.Map, _ externaldata.Set) bool {
				return answers.GetString(ans, "sharedRights") == "yes"
			},
		)
		f := form.New("f", "Form", form.Section("a", "A", form.Field("sharedRights", "Shared?"), other))

		s.Len(Flatten(f, answers.Map{}, nil), 1)
		s.Len(Flatten(f, answers.Map{"sharedRights": "yes"}, nil), 2)
	})

	s.Run("failed external data reads as absent", func() {
		cond := func(_ answers.Map, ext externaldata.Set) bool {
			_, ok := ext.Data("nationalRegistry")
			return ok
		}
		f := form.New("f", "Form", form.Section("a", "A", form.Field("f1", "F1").When(cond)))

		failed := externaldata.Set{"nationalRegistry": {Status: externaldata.StatusFailure, Date: time.Now()}}
		s.Empty(Flatten(f, answers.Map{}, failed))

		succeeded := externaldata.Set{"nationalRegistry": {Status: externaldata.StatusSuccess, Data: map[string]any{}, Date: time.Now()}}
		s.Len(Flatten(f, answers.Map{}, succeeded), 1)
	})
}

// =============================================================================
// Repeater Tests
// =============================================================================

func repeaterForm() *form.Form {
	return form.New("f", "Form",
		form.Section("jobs", "Jobs",
			form.Repeater("employers", "Employers",
				form.Field("name", "Employer name"),
				form.Field("email", "Employer email"),
			),
			form.Field("after", "After repeater"),
		),
	)
}

func (s *FlattenSuite) TestRepeaters() {
	s.Run("three repetitions expand children in template order", func() {
		ans := answers.Map{"employers": []any{map[string]any{}, map[string]any{}, map[string]any{}}}
		screens := Flatten(repeaterForm(), ans, nil)

		// summary screen + 3 x [name email] + trailing field
		s.Equal([]string{"employers", "name", "email", "name", "email", "name", "email", "after"}, nodeIDs(screens))

		expansions := screens[1:7]
		for i, scr := range expansions {
			s.Equal(i/2, scr.RepeaterIndex)
			s.Equal("employers", scr.RepeaterID)
		}
		s.Equal(NoRepeater, screens[0].RepeaterIndex)
		s.Equal(NoRepeater, screens[7].RepeaterIndex)
	})

	s.Run("zero repetitions contribute no expansion screens", func() {
		screens := Flatten(repeaterForm(), answers.Map{}, nil)
		s.Equal([]string{"employers", "after"}, nodeIDs(screens))
	})

	s.Run("expansion span and summary lookup", func() {
		ans := answers.Map{"employers": []any{map[string]any{}, map[string]any{}}}
		screens := Flatten(repeaterForm(), ans, nil)
		idx := SummaryIndex(screens, "employers")
		s.Equal(0, idx)
		s.Equal(4, ExpansionSpan(screens, idx))
	})
}

// =============================================================================
// Determinism and Identity Tests
// =============================================================================

func (s *FlattenSuite) TestDeterminism() {
	ans := answers.Map{
		"sharedRights": "yes",
		"employers":    []any{map[string]any{}, map[string]any{}},
	}
	f := repeaterForm()

	first := Flatten(f, ans, nil)
	second := Flatten(f, ans, nil)
	s.Equal(first, second)
}

func (s *FlattenSuite) TestIndexOf() {
	ans := answers.Map{"employers": []any{map[string]any{}, map[string]any{}}}
	screens := Flatten(repeaterForm(), ans, nil)

	s.Run("finds expansion screen by identity", func() {
		idx := IndexOf(screens, Key{NodeID: "email", RepeaterIndex: 1})
		s.Equal(4, idx)
	})

	s.Run("missing identity reports -1", func() {
		s.Equal(-1, IndexOf(screens, Key{NodeID: "email", RepeaterIndex: 7}))
	})
}

func (s *FlattenSuite) TestVisibleSections() {
	f := form.New("f", "Form",
		form.Section("a", "A", form.Field("f1", "F1")).When(
			func(answers.Map, externaldata.Set) bool { return false },
		),
		form.Section("b", "B", form.Field("f2", "F2")),
	)
	sections := VisibleSections(f, answers.Map{}, nil)
	s.Require().Len(sections, 1)
	s.Equal("b", sections[0].ID)
	s.Equal(0, sections[0].Index)
}
