package engine

import "github.com/soaringjerry/Surveyor/internal/models"

func intPtr(v int) *int { return &v }

func floatPtr(v float64) *float64 { return &v }

func answer(v any) *models.Answer { return &models.Answer{Value: v} }

func textAnswer(s string) *models.Answer { return &models.Answer{Text: s} }

func ids(qs []*models.Question) []string {
	out := make([]string, 0, len(qs))
	for _, q := range qs {
		out = append(out, q.ID)
	}
	return out
}

func sameIDs(got []*models.Question, want ...string) bool {
	g := ids(got)
	if len(g) != len(want) {
		return false
	}
	for i := range g {
		if g[i] != want[i] {
			return false
		}
	}
	return true
}

// branchingSurvey: dropdown A controls B (show when A == "x"); C is plain;
// H is permanently hidden. Section two holds a required text question D.
func branchingSurvey() *models.Survey {
	return &models.Survey{
		ID:        "S1",
		AllowEdit: true,
		Sections: []*models.Section{
			{
				ID: "sec1", OrderIndex: 0,
				Questions: []*models.Question{
					{ID: "A", SectionID: "sec1", Type: models.Dropdown, OrderIndex: 0, Options: []models.QuestionOption{{Label: "X", Value: "x"}, {Label: "Y", Value: "y"}}},
					{ID: "B", SectionID: "sec1", Type: models.ShortText, OrderIndex: 1, ConditionalLogic: &models.ConditionalLogic{QuestionID: "A", Operator: models.OpEquals, Value: "x", Action: models.ActionShow}},
					{ID: "H", SectionID: "sec1", Type: models.ShortText, OrderIndex: 2, IsHidden: true},
					{ID: "C", SectionID: "sec1", Type: models.Number, OrderIndex: 3},
				},
			},
			{
				ID: "sec2", OrderIndex: 1,
				Questions: []*models.Question{
					{ID: "D", SectionID: "sec2", Type: models.LongText, OrderIndex: 0, Required: true},
				},
			},
		},
	}
}
