package engine

import (
	"testing"

	"github.com/soaringjerry/Surveyor/internal/models"
)

func TestSectionLabel(t *testing.T) {
	cases := map[int]string{-1: "", 0: "A", 1: "B", 25: "Z", 26: "AA", 27: "AB", 51: "AZ", 52: "BA", 701: "ZZ", 702: "AAA"}
	for in, want := range cases {
		if got := SectionLabel(in); got != want {
			t.Fatalf("SectionLabel(%d)=%q, want %q", in, got, want)
		}
	}
}

func TestNumberingSkipsHiddenAndIgnoresConditions(t *testing.T) {
	s := branchingSurvey()
	n := NewNumbering(s)
	want := map[string]string{"A": "A1", "B": "A2", "H": "", "C": "A3", "D": "B1", "missing": ""}
	for id, label := range want {
		if got := n.Label(id); got != label {
			t.Fatalf("Label(%s)=%q, want %q", id, got, label)
		}
	}
	// B being hidden by its condition does not shift C.
	visible := ResolveVisible(s, models.Answers{"A": {Value: "y"}})
	if !sameIDs(visible, "A", "C", "D") || n.Label(visible[1].ID) != "A3" {
		t.Fatalf("conditional visibility renumbered questions")
	}
}

func TestNumberingFollowsSectionOrder(t *testing.T) {
	s := &models.Survey{Sections: []*models.Section{
		{ID: "second", OrderIndex: 1, Questions: []*models.Question{{ID: "q2", Type: models.Date}}},
		{ID: "first", OrderIndex: 0, Questions: []*models.Question{{ID: "q1", Type: models.Date}}},
	}}
	if got := QuestionLabel(s, s.Sections[0].Questions[0]); got != "B1" {
		t.Fatalf("got %q, want B1", got)
	}
	if got := QuestionLabel(s, nil); got != "" {
		t.Fatalf("nil question labelled %q", got)
	}
}
