package engine

import (
	"testing"

	"github.com/soaringjerry/Surveyor/internal/models"
)

func only(t *testing.T, got []ErrorKind, want ErrorKind) {
	t.Helper()
	if want == "" {
		if len(got) != 0 {
			t.Fatalf("got %v, want no error", got)
		}
		return
	}
	if len(got) != 1 || got[0] != want {
		t.Fatalf("got %v, want [%s]", got, want)
	}
}

func TestValidateRequiredRoundTrip(t *testing.T) {
	q := &models.Question{ID: "q", Type: models.ShortText, Required: true}
	only(t, Validate(q, nil), RequiredMissing)
	only(t, Validate(q, textAnswer("hello")), "")
	only(t, Validate(q, textAnswer("")), RequiredMissing)
	only(t, Validate(q, answer("")), RequiredMissing)

	q.Required = false
	only(t, Validate(q, nil), "")
}

func TestValidateRequiredEmptySelection(t *testing.T) {
	q := &models.Question{ID: "q", Type: models.MultipleChoice, Required: true, Options: []models.QuestionOption{{Value: "a"}}}
	only(t, Validate(q, answer([]any{})), RequiredMissing)
	only(t, Validate(q, answer([]any{"a"})), "")
}

func TestValidateLengthUsesText(t *testing.T) {
	q := &models.Question{ID: "q", Type: models.ShortText, ValidationRules: &models.ValidationRules{MinLength: intPtr(3), MaxLength: intPtr(5)}}
	only(t, Validate(q, textAnswer("ab")), LengthOutOfRange)
	only(t, Validate(q, textAnswer("abc")), "")
	only(t, Validate(q, textAnswer("abcdef")), LengthOutOfRange)
	// Characters, not bytes.
	only(t, Validate(q, textAnswer("안녕하세요")), "")
	// Zero bounds are unset.
	q.ValidationRules = &models.ValidationRules{MinLength: intPtr(0), MaxLength: intPtr(0)}
	only(t, Validate(q, textAnswer("anything at all")), "")
}

func TestValidateEmailPattern(t *testing.T) {
	q := &models.Question{ID: "q", Type: models.ShortText, ValidationRules: &models.ValidationRules{Pattern: "email"}}
	only(t, Validate(q, textAnswer("a@b.co")), "")
	only(t, Validate(q, textAnswer("not-an-email")), PatternMismatch)
	only(t, Validate(q, textAnswer("a@b")), PatternMismatch)
}

func TestValidateUnknownPatternIsNoop(t *testing.T) {
	q := &models.Question{ID: "q", Type: models.ShortText, ValidationRules: &models.ValidationRules{Pattern: "phone"}}
	only(t, Validate(q, textAnswer("whatever")), "")
}

func TestValidateNumericRange(t *testing.T) {
	q := &models.Question{ID: "q", Type: models.Number, ValidationRules: &models.ValidationRules{MinValue: floatPtr(1), MaxValue: floatPtr(10)}}
	only(t, Validate(q, answer(0.5)), ValueOutOfRange)
	only(t, Validate(q, answer(10)), "")
	only(t, Validate(q, answer(11.0)), ValueOutOfRange)
	// Non-numeric values skip range checks.
	only(t, Validate(q, answer("eleven")), "")
}

func TestValidateReportsFirstFailureOnly(t *testing.T) {
	q := &models.Question{ID: "q", Type: models.ShortText, ValidationRules: &models.ValidationRules{MinLength: intPtr(10), Pattern: "email"}}
	only(t, Validate(q, textAnswer("x")), LengthOutOfRange)
}

func TestValidateAllowOtherNeedsText(t *testing.T) {
	q := &models.Question{ID: "q", Type: models.SingleChoice, Required: true, Options: []models.QuestionOption{
		{Label: "A", Value: "a"},
		{Label: "Other", Value: "other", AllowOther: true},
	}}
	only(t, Validate(q, answer("other")), RequiredMissing)
	only(t, Validate(q, &models.Answer{Value: "other", Text: "custom"}), "")
	only(t, Validate(q, answer("a")), "")

	q.Required = false
	only(t, Validate(q, answer("other")), "")
}

func TestErrorKindMessageKey(t *testing.T) {
	if got := RequiredMissing.MessageKey(); got != "validation.required_missing" {
		t.Fatalf("got %q", got)
	}
}
