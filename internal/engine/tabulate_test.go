package engine

import (
	"context"
	"fmt"
	"math"
	"reflect"
	"testing"

	"github.com/soaringjerry/Surveyor/internal/models"
)

func statsSurvey() *models.Survey {
	return &models.Survey{ID: "S", Sections: []*models.Section{{ID: "s", Questions: []*models.Question{
		{ID: "L", SectionID: "s", Type: models.Likert, LikertConfig: &models.LikertConfig{ScaleMin: 1, ScaleMax: 5, Labels: []string{"1", "2", "3", "4", "5"}}},
		{ID: "C", SectionID: "s", Type: models.SingleChoice, Options: []models.QuestionOption{
			{Label: "A", Value: "a"}, {Label: "B", Value: "b", AllowOther: true},
		}},
		{ID: "M", SectionID: "s", Type: models.MultipleChoice, Options: []models.QuestionOption{{Value: "x"}, {Value: "y"}}},
		{ID: "N", SectionID: "s", Type: models.Number},
		{ID: "T", SectionID: "s", Type: models.LongText},
		{ID: "H", SectionID: "s", Type: models.ShortText, IsHidden: true},
	}}}}
}

func complete(items ...models.ResponseItem) *models.Response {
	return &models.Response{Complete: true, Items: items}
}

func TestTabulateLikertRows(t *testing.T) {
	responses := []*models.Response{
		complete(models.ResponseItem{QuestionID: "L", AnswerValue: map[string]any{"0": 2.0}}),
		complete(models.ResponseItem{QuestionID: "L", AnswerValue: map[string]any{"0": 4.0}}),
		complete(models.ResponseItem{QuestionID: "L", AnswerValue: map[string]any{"0": 4}}),
	}
	st := Tabulate(statsSurvey(), responses)["L"]
	if st.ResponseCount != 3 {
		t.Fatalf("response_count %d, want 3", st.ResponseCount)
	}
	if !reflect.DeepEqual(st.ValueCounts, map[string]int{"0:2": 1, "0:4": 2}) {
		t.Fatalf("value_counts %v", st.ValueCounts)
	}
	if st.Average == nil || math.Abs(*st.Average-10.0/3.0) > 1e-9 {
		t.Fatalf("average %v, want 3.333…", st.Average)
	}
}

func TestTabulateAllowOther(t *testing.T) {
	responses := []*models.Response{
		complete(models.ResponseItem{QuestionID: "C", AnswerValue: "b", AnswerText: "custom"}),
		complete(models.ResponseItem{QuestionID: "C", AnswerValue: "a"}),
	}
	st := Tabulate(statsSurvey(), responses)["C"]
	if st.ResponseCount != 2 || st.ValueCounts["b"] != 1 || st.ValueCounts["a"] != 1 {
		t.Fatalf("got %+v", st)
	}
	if !reflect.DeepEqual(st.TextResponses, []string{"custom"}) {
		t.Fatalf("text_responses %v", st.TextResponses)
	}
	if st.Average != nil {
		t.Fatalf("choice question should have no average")
	}
}

func TestTabulateMultipleChoiceAndNumbers(t *testing.T) {
	responses := []*models.Response{
		complete(
			models.ResponseItem{QuestionID: "M", AnswerValue: []any{"x", "y"}},
			models.ResponseItem{QuestionID: "N", AnswerValue: 3.0},
		),
		complete(
			models.ResponseItem{QuestionID: "M", AnswerValue: []any{"x"}},
			models.ResponseItem{QuestionID: "N", AnswerValue: "4"},
		),
	}
	stats := Tabulate(statsSurvey(), responses)
	if m := stats["M"]; m.ResponseCount != 2 || m.ValueCounts["x"] != 2 || m.ValueCounts["y"] != 1 {
		t.Fatalf("M %+v", m)
	}
	n := stats["N"]
	if n.ResponseCount != 2 || n.Average == nil || *n.Average != 3.5 {
		t.Fatalf("N %+v", n)
	}
	if n.ValueCounts["3"] != 1 || n.ValueCounts["4"] != 1 {
		t.Fatalf("N value_counts %v", n.ValueCounts)
	}
}

func TestTabulateTextAndUnknownQuestions(t *testing.T) {
	responses := []*models.Response{
		complete(models.ResponseItem{QuestionID: "T", AnswerText: "first"}),
		complete(models.ResponseItem{QuestionID: "T", AnswerValue: "second"}),
		complete(models.ResponseItem{QuestionID: "gone", AnswerValue: "x"}),
		complete(models.ResponseItem{QuestionID: "H", AnswerText: "secret"}),
	}
	stats := Tabulate(statsSurvey(), responses)
	if _, ok := stats["gone"]; ok {
		t.Fatalf("items of deleted questions must be ignored")
	}
	tx := stats["T"]
	if tx.ResponseCount != 2 || !reflect.DeepEqual(tx.TextResponses, []string{"first", "second"}) || len(tx.ValueCounts) != 0 {
		t.Fatalf("T %+v", tx)
	}
	if stats["H"].ResponseCount != 1 {
		t.Fatalf("hidden question should still be tabulated")
	}
	if len(stats) != 6 {
		t.Fatalf("got %d entries, want one per question", len(stats))
	}
	if stats["C"].ResponseCount != 0 || stats["C"].ValueCounts == nil || stats["C"].TextResponses == nil {
		t.Fatalf("unanswered question should be zeroed, got %+v", stats["C"])
	}
}

func TestTabulateIsIdempotent(t *testing.T) {
	responses := []*models.Response{
		complete(models.ResponseItem{QuestionID: "M", AnswerValue: []any{"x"}}),
		complete(models.ResponseItem{QuestionID: "T", AnswerText: "hello"}),
	}
	s := statsSurvey()
	first := Tabulate(s, responses)
	second := Tabulate(s, responses)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("repeated tabulation differs")
	}
	if len(responses[0].Items) != 1 {
		t.Fatalf("input mutated")
	}
}

func TestTabulateParallelMatchesSequential(t *testing.T) {
	s := statsSurvey()
	var responses []*models.Response
	for i := 0; i < 101; i++ {
		responses = append(responses, complete(
			models.ResponseItem{QuestionID: "L", AnswerValue: map[string]any{"0": float64(i%5 + 1), "1": float64(i%3 + 1)}},
			models.ResponseItem{QuestionID: "N", AnswerValue: float64(i)},
			models.ResponseItem{QuestionID: "T", AnswerText: fmt.Sprintf("t%d", i)},
		))
	}
	want := Tabulate(s, responses)
	for _, shards := range []int{0, 1, 2, 7, 500} {
		got, err := TabulateParallel(context.Background(), s, responses, shards)
		if err != nil {
			t.Fatalf("shards=%d: %v", shards, err)
		}
		for id, w := range want {
			g := got[id]
			if g.ResponseCount != w.ResponseCount || !reflect.DeepEqual(g.ValueCounts, w.ValueCounts) || !reflect.DeepEqual(g.TextResponses, w.TextResponses) {
				t.Fatalf("shards=%d question %s: got %+v, want %+v", shards, id, g, w)
			}
			if (g.Average == nil) != (w.Average == nil) || (g.Average != nil && math.Abs(*g.Average-*w.Average) > 1e-9) {
				t.Fatalf("shards=%d question %s: average %v vs %v", shards, id, g.Average, w.Average)
			}
		}
	}
}

func TestTabulateParallelHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	responses := []*models.Response{complete(), complete(), complete()}
	if _, err := TabulateParallel(ctx, statsSurvey(), responses, 3); err == nil {
		t.Fatalf("expected context error")
	}
}
