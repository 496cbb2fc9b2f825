package engine

import (
	"encoding/json"
	"reflect"

	"github.com/soaringjerry/Surveyor/internal/models"
)

// ConditionMet evaluates the raw condition of rule against answers. A
// controlling question without a recorded value never meets its condition,
// whatever the operator.
func ConditionMet(rule *models.ConditionalLogic, answers models.Answers) bool {
	if rule == nil {
		return false
	}
	ans, ok := answers[rule.QuestionID]
	if !ok || ans.Value == nil {
		return false
	}
	got := normalize(ans.Value)
	want := normalize(rule.Value)
	switch rule.Operator {
	case models.OpEquals:
		return reflect.DeepEqual(got, want)
	case models.OpNotEquals:
		return !reflect.DeepEqual(got, want)
	case models.OpContains:
		list, ok := got.([]any)
		if !ok {
			return false
		}
		for _, el := range list {
			if reflect.DeepEqual(el, want) {
				return true
			}
		}
		return false
	}
	return false
}

// Evaluate reports whether the question carrying rule is visible. A show rule
// makes it visible when the condition is met, a hide rule when it is not, so
// an unanswered controller hides show-gated questions and reveals hide-gated ones.
func Evaluate(rule *models.ConditionalLogic, answers models.Answers) bool {
	if rule == nil {
		return true
	}
	met := ConditionMet(rule, answers)
	if rule.Action == models.ActionHide {
		return !met
	}
	return met
}

// normalize maps the Go shapes an answer can take onto the JSON-decoded
// shapes so equality is structural rather than type-sensitive.
func normalize(v any) any {
	switch x := v.(type) {
	case nil, string, bool, float64:
		return x
	case int:
		return float64(x)
	case int32:
		return float64(x)
	case int64:
		return float64(x)
	case float32:
		return float64(x)
	case json.Number:
		if f, err := x.Float64(); err == nil {
			return f
		}
		return x.String()
	case []string:
		out := make([]any, len(x))
		for i, s := range x {
			out[i] = s
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, el := range x {
			out[i] = normalize(el)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, el := range x {
			out[k] = normalize(el)
		}
		return out
	}
	return v
}

// numeric returns v as a float64 when it is a number.
func numeric(v any) (float64, bool) {
	f, ok := normalize(v).(float64)
	return f, ok
}
