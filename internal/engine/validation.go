package engine

import (
	"regexp"
	"unicode/utf8"

	"github.com/soaringjerry/Surveyor/internal/models"
)

// ErrorKind is a recoverable, per-question answer validation failure.
type ErrorKind string

const (
	RequiredMissing  ErrorKind = "required_missing"
	LengthOutOfRange ErrorKind = "length_out_of_range"
	ValueOutOfRange  ErrorKind = "value_out_of_range"
	PatternMismatch  ErrorKind = "pattern_mismatch"
)

// MessageKey is the i18n key of the user-facing message for k.
func (k ErrorKind) MessageKey() string {
	return "validation." + string(k)
}

// ValidationError ties an ErrorKind to the question that failed.
type ValidationError struct {
	QuestionID string
	Kind       ErrorKind
}

func (e *ValidationError) Error() string {
	return "question " + e.QuestionID + ": " + string(e.Kind)
}

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// namedPatterns maps ValidationRules.Pattern names to matchers. Names not
// listed here are ignored.
var namedPatterns = map[string]*regexp.Regexp{
	"email": emailPattern,
}

// Validate checks answer against the constraints of q. A nil answer means the
// question was never answered. At most one error is returned: rules run in the
// order required, length, pattern, numeric range and the first failure wins.
func Validate(q *models.Question, answer *models.Answer) []ErrorKind {
	if q == nil {
		return nil
	}
	var a models.Answer
	if answer != nil {
		a = *answer
	}
	if a.Empty() {
		if q.Required {
			return []ErrorKind{RequiredMissing}
		}
		return nil
	}
	if q.Required && (isEmptyList(a.Value) || otherTextMissing(q, a)) {
		return []ErrorKind{RequiredMissing}
	}
	rules := q.ValidationRules
	if rules == nil {
		return nil
	}
	if a.Text != "" {
		n := utf8.RuneCountInString(a.Text)
		if rules.MinLength != nil && *rules.MinLength > 0 && n < *rules.MinLength {
			return []ErrorKind{LengthOutOfRange}
		}
		if rules.MaxLength != nil && *rules.MaxLength > 0 && n > *rules.MaxLength {
			return []ErrorKind{LengthOutOfRange}
		}
		if re, ok := namedPatterns[rules.Pattern]; ok && !re.MatchString(a.Text) {
			return []ErrorKind{PatternMismatch}
		}
	}
	if v, ok := numeric(a.Value); ok {
		if rules.MinValue != nil && v < *rules.MinValue {
			return []ErrorKind{ValueOutOfRange}
		}
		if rules.MaxValue != nil && v > *rules.MaxValue {
			return []ErrorKind{ValueOutOfRange}
		}
	}
	return nil
}

// otherTextMissing reports whether the active selection is an allow_other
// option submitted without its free text.
func otherTextMissing(q *models.Question, a models.Answer) bool {
	if !q.Type.HasOptions() || a.Text != "" {
		return false
	}
	for _, v := range selectedValues(a.Value) {
		if opt, ok := q.Option(v); ok && opt.AllowOther {
			return true
		}
	}
	return false
}

func isEmptyList(v any) bool {
	switch x := v.(type) {
	case []any:
		return len(x) == 0
	case []string:
		return len(x) == 0
	}
	return false
}

func selectedValues(v any) []string {
	switch x := v.(type) {
	case string:
		return []string{x}
	case []string:
		return x
	case []any:
		out := make([]string, 0, len(x))
		for _, el := range x {
			if s, ok := el.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
