package engine

import (
	"sort"

	"github.com/soaringjerry/Surveyor/internal/models"
)

// OrderedSections returns the survey's sections sorted by OrderIndex, ties
// kept in authoring order. The survey itself is not modified.
func OrderedSections(survey *models.Survey) []*models.Section {
	if survey == nil {
		return nil
	}
	out := make([]*models.Section, 0, len(survey.Sections))
	for _, sec := range survey.Sections {
		if sec != nil {
			out = append(out, sec)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].OrderIndex < out[j].OrderIndex })
	return out
}

// OrderedQuestions returns the questions of sec sorted by OrderIndex, ties
// kept in authoring order.
func OrderedQuestions(sec *models.Section) []*models.Question {
	if sec == nil {
		return nil
	}
	out := make([]*models.Question, 0, len(sec.Questions))
	for _, q := range sec.Questions {
		if q != nil {
			out = append(out, q)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].OrderIndex < out[j].OrderIndex })
	return out
}

// OrderedOptions returns the options of q sorted by OrderIndex, ties kept in
// authoring order.
func OrderedOptions(q *models.Question) []models.QuestionOption {
	if q == nil {
		return nil
	}
	out := append([]models.QuestionOption(nil), q.Options...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].OrderIndex < out[j].OrderIndex })
	return out
}

// AllQuestions flattens every question of the survey in section then question
// order, permanently hidden ones included.
func AllQuestions(survey *models.Survey) []*models.Question {
	var out []*models.Question
	for _, sec := range OrderedSections(survey) {
		out = append(out, OrderedQuestions(sec)...)
	}
	return out
}

// ResolveVisible derives the ordered list of questions the respondent
// currently sees. It is recomputed from scratch on every call and depends
// only on (survey, answers).
//
// Permanently hidden questions are dropped first. Questions whose definition
// is malformed fail closed. Remaining questions with conditional logic are
// kept only when Evaluate reports them visible; a controller that is itself
// hidden is still evaluated against whatever answer it holds.
func ResolveVisible(survey *models.Survey, answers models.Answers) []*models.Question {
	if survey == nil {
		return nil
	}
	malformed := malformedQuestions(survey)
	out := make([]*models.Question, 0)
	for _, q := range AllQuestions(survey) {
		if q.IsHidden {
			continue
		}
		if _, bad := malformed[q.ID]; bad {
			continue
		}
		if q.ConditionalLogic != nil && !Evaluate(q.ConditionalLogic, answers) {
			continue
		}
		out = append(out, q)
	}
	return out
}

func malformedQuestions(survey *models.Survey) map[string]struct{} {
	bad := map[string]struct{}{}
	for _, issue := range CheckDefinition(survey) {
		if issue.QuestionID != "" {
			bad[issue.QuestionID] = struct{}{}
		}
	}
	return bad
}
