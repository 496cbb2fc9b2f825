package engine

import (
	"fmt"

	"github.com/soaringjerry/Surveyor/internal/models"
)

// IssueKind classifies a structural problem in a survey definition.
type IssueKind string

const (
	IssueUnknownType        IssueKind = "unknown_type"
	IssueOptionsMismatch    IssueKind = "options_mismatch"
	IssueLikertMissing      IssueKind = "likert_config_missing"
	IssueLikertUnexpected   IssueKind = "likert_config_unexpected"
	IssueLikertRange        IssueKind = "likert_range"
	IssueLikertLabels       IssueKind = "likert_labels_mismatch"
	IssueUnknownController  IssueKind = "unknown_controller"
	IssueSelfReference      IssueKind = "self_reference"
	IssueUnknownOperator    IssueKind = "unknown_operator"
	IssueUnknownAction      IssueKind = "unknown_action"
	IssueDuplicateQuestion  IssueKind = "duplicate_question_id"
	IssueDuplicateOptionVal IssueKind = "duplicate_option_value"
)

// DefinitionIssue reports a MalformedSurveyDefinition condition for one
// question or section. These are kept apart from answer validation errors so
// authoring tools can flag them.
type DefinitionIssue struct {
	SectionID  string    `json:"section_id,omitempty"`
	QuestionID string    `json:"question_id,omitempty"`
	Kind       IssueKind `json:"kind"`
	Detail     string    `json:"detail"`
}

func (i DefinitionIssue) Error() string {
	if i.QuestionID != "" {
		return fmt.Sprintf("question %s: %s: %s", i.QuestionID, i.Kind, i.Detail)
	}
	return fmt.Sprintf("section %s: %s: %s", i.SectionID, i.Kind, i.Detail)
}

// CheckDefinition lists every structural inconsistency in survey. An empty
// result means the definition is well formed.
func CheckDefinition(survey *models.Survey) []DefinitionIssue {
	if survey == nil {
		return nil
	}
	var issues []DefinitionIssue
	known := map[string]int{}
	for _, q := range AllQuestions(survey) {
		known[q.ID]++
	}
	for _, sec := range OrderedSections(survey) {
		if sec.ConditionalLogic != nil {
			for _, issue := range checkRule(sec.ConditionalLogic, "", known) {
				issue.SectionID = sec.ID
				issues = append(issues, issue)
			}
		}
		for _, q := range OrderedQuestions(sec) {
			issues = append(issues, checkQuestion(q, known)...)
		}
	}
	return issues
}

func checkQuestion(q *models.Question, known map[string]int) []DefinitionIssue {
	var out []DefinitionIssue
	add := func(kind IssueKind, format string, args ...any) {
		out = append(out, DefinitionIssue{SectionID: q.SectionID, QuestionID: q.ID, Kind: kind, Detail: fmt.Sprintf(format, args...)})
	}
	if known[q.ID] > 1 {
		add(IssueDuplicateQuestion, "question id used %d times", known[q.ID])
	}
	if !q.Type.Valid() {
		add(IssueUnknownType, "type %q", q.Type)
		return out
	}
	switch {
	case q.Type.HasOptions() && len(q.Options) == 0:
		add(IssueOptionsMismatch, "%s requires options", q.Type)
	case !q.Type.HasOptions() && len(q.Options) > 0:
		add(IssueOptionsMismatch, "%s must not have options", q.Type)
	}
	seen := map[string]bool{}
	for _, opt := range q.Options {
		if seen[opt.Value] {
			add(IssueDuplicateOptionVal, "option value %q repeated", opt.Value)
		}
		seen[opt.Value] = true
	}
	if q.Type == models.Likert {
		cfg := q.LikertConfig
		switch {
		case cfg == nil:
			add(IssueLikertMissing, "likert question has no likert_config")
		case cfg.ScaleMax < cfg.ScaleMin:
			add(IssueLikertRange, "scale_max %d < scale_min %d", cfg.ScaleMax, cfg.ScaleMin)
		case len(cfg.Labels) != cfg.Points():
			add(IssueLikertLabels, "%d labels for %d scale points", len(cfg.Labels), cfg.Points())
		}
	} else if q.LikertConfig != nil {
		add(IssueLikertUnexpected, "%s must not have likert_config", q.Type)
	}
	if q.ConditionalLogic != nil {
		for _, issue := range checkRule(q.ConditionalLogic, q.ID, known) {
			issue.SectionID = q.SectionID
			issue.QuestionID = q.ID
			out = append(out, issue)
		}
	}
	return out
}

func checkRule(rule *models.ConditionalLogic, self string, known map[string]int) []DefinitionIssue {
	var out []DefinitionIssue
	switch {
	case known[rule.QuestionID] == 0:
		out = append(out, DefinitionIssue{Kind: IssueUnknownController, Detail: fmt.Sprintf("controlling question %q does not exist", rule.QuestionID)})
	case self != "" && rule.QuestionID == self:
		out = append(out, DefinitionIssue{Kind: IssueSelfReference, Detail: "question is conditioned on itself"})
	}
	switch rule.Operator {
	case models.OpEquals, models.OpNotEquals, models.OpContains:
	default:
		out = append(out, DefinitionIssue{Kind: IssueUnknownOperator, Detail: fmt.Sprintf("operator %q", rule.Operator)})
	}
	switch rule.Action {
	case models.ActionShow, models.ActionHide:
	default:
		out = append(out, DefinitionIssue{Kind: IssueUnknownAction, Detail: fmt.Sprintf("action %q", rule.Action)})
	}
	return out
}
