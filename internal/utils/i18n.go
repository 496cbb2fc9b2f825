package utils

// Minimal i18n for fixed keys: validation and error messages the API returns
// to respondents, plus the prompts of the terminal respondent.

var translations = map[string]map[string]string{
	"en": {
		"health.ok":                      "ok",
		"validation.required_missing":    "This question is required.",
		"validation.length_out_of_range": "The answer length is out of range.",
		"validation.value_out_of_range":  "The value is out of range.",
		"validation.pattern_mismatch":    "The answer does not match the expected format.",
		"error.duplicate_submission":     "A response with this identity was already submitted.",
		"error.not_accepting_responses":  "This survey is not accepting responses.",
		"respond.press_enter":            "Press Enter to start.",
		"respond.invalid_answer":         "Could not read that answer.",
		"respond.identity":               "Your email or respondent id:",
		"respond.submitted":              "Thank you. Your response was submitted.",
		"respond.help":                   "Enter an answer, or :back, :clear, :quit.",
	},
	"ko": {
		"health.ok":                      "정상",
		"validation.required_missing":    "필수 질문입니다.",
		"validation.length_out_of_range": "답변 길이가 허용 범위를 벗어났습니다.",
		"validation.value_out_of_range":  "값이 허용 범위를 벗어났습니다.",
		"validation.pattern_mismatch":    "답변 형식이 올바르지 않습니다.",
		"error.duplicate_submission":     "이미 제출된 응답입니다.",
		"error.not_accepting_responses":  "이 설문은 응답을 받지 않습니다.",
		"respond.press_enter":            "시작하려면 Enter를 누르세요.",
		"respond.invalid_answer":         "답변을 읽을 수 없습니다.",
		"respond.identity":               "이메일 또는 응답자 ID:",
		"respond.submitted":              "감사합니다. 응답이 제출되었습니다.",
		"respond.help":                   "답변을 입력하거나 :back, :clear, :quit 를 입력하세요.",
	},
}

// SupportedLocales lists the locales T has messages for, default first.
var SupportedLocales = []string{"en", "ko"}

// T returns the translated string for key in locale; falls back to English.
func T(locale, key string) string {
	if m, ok := translations[locale]; ok {
		if v, ok := m[key]; ok {
			return v
		}
	}
	if m, ok := translations["en"]; ok {
		if v, ok := m[key]; ok {
			return v
		}
	}
	return key
}
