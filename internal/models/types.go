package models

import (
	"errors"
	"time"
)

// ErrDuplicateFingerprint is returned by stores when a second complete
// response carries an identity fingerprint already used for the survey.
var ErrDuplicateFingerprint = errors.New("duplicate identity fingerprint")

// QuestionType is the closed set of question kinds a survey can contain.
type QuestionType string

const (
	SingleChoice   QuestionType = "single_choice"
	MultipleChoice QuestionType = "multiple_choice"
	Likert         QuestionType = "likert"
	ShortText      QuestionType = "short_text"
	LongText       QuestionType = "long_text"
	Number         QuestionType = "number"
	Date           QuestionType = "date"
	Dropdown       QuestionType = "dropdown"
)

// Valid reports whether t is one of the known question types.
func (t QuestionType) Valid() bool {
	switch t {
	case SingleChoice, MultipleChoice, Likert, ShortText, LongText, Number, Date, Dropdown:
		return true
	}
	return false
}

// HasOptions reports whether questions of this type carry a list of options.
func (t QuestionType) HasOptions() bool {
	return t == SingleChoice || t == MultipleChoice || t == Dropdown
}

// IsText reports whether the answer is free text.
func (t QuestionType) IsText() bool {
	return t == ShortText || t == LongText
}

type SurveyStatus string

const (
	StatusDraft     SurveyStatus = "draft"
	StatusPublished SurveyStatus = "published"
	StatusClosed    SurveyStatus = "closed"
)

// Survey is a full questionnaire definition. Sections and their questions
// are populated when the survey is loaded with details.
type Survey struct {
	ID                  string       `json:"id"`
	TenantID            string       `json:"tenant_id,omitempty"`
	Title               string       `json:"title"`
	Description         string       `json:"description,omitempty"`
	IntroContent        string       `json:"intro_content,omitempty"`
	Status              SurveyStatus `json:"status"`
	ShareID             string       `json:"share_id,omitempty"`
	AllowEdit           bool         `json:"allow_edit"`
	DuplicatePrevention bool         `json:"duplicate_prevention"`
	Sections            []*Section   `json:"sections"`
	CreatedAt           time.Time    `json:"created_at"`
	UpdatedAt           time.Time    `json:"updated_at"`
}

// AcceptsResponses reports whether respondents may start or submit responses.
func (s *Survey) AcceptsResponses() bool {
	return s != nil && s.Status == StatusPublished
}

// Section groups questions into a page of the questionnaire.
type Section struct {
	ID               string            `json:"id"`
	SurveyID         string            `json:"survey_id"`
	Title            string            `json:"title,omitempty"`
	Description      string            `json:"description,omitempty"`
	OrderIndex       int               `json:"order_index"`
	ConditionalLogic *ConditionalLogic `json:"conditional_logic,omitempty"`
	Questions        []*Question       `json:"questions"`
}

type Question struct {
	ID               string            `json:"id"`
	SectionID        string            `json:"section_id"`
	Type             QuestionType      `json:"type"`
	Title            string            `json:"title"`
	Description      string            `json:"description,omitempty"`
	Required         bool              `json:"required"`
	OrderIndex       int               `json:"order_index"`
	IsHidden         bool              `json:"is_hidden"`
	ValidationRules  *ValidationRules  `json:"validation_rules,omitempty"`
	ConditionalLogic *ConditionalLogic `json:"conditional_logic,omitempty"`
	LikertConfig     *LikertConfig     `json:"likert_config,omitempty"`
	Options          []QuestionOption  `json:"options,omitempty"`
}

// Option returns the option whose value equals v.
func (q *Question) Option(v string) (QuestionOption, bool) {
	for _, opt := range q.Options {
		if opt.Value == v {
			return opt, true
		}
	}
	return QuestionOption{}, false
}

// QuestionOption is one selectable choice. Value is the stable identifier
// stored in answers; Label is display text only.
type QuestionOption struct {
	ID         string `json:"id,omitempty"`
	Label      string `json:"label"`
	Value      string `json:"value"`
	OrderIndex int    `json:"order_index"`
	AllowOther bool   `json:"allow_other,omitempty"`
}

type Operator string

const (
	OpEquals    Operator = "equals"
	OpNotEquals Operator = "not_equals"
	OpContains  Operator = "contains"
)

type Action string

const (
	ActionShow Action = "show"
	ActionHide Action = "hide"
)

// ConditionalLogic gates the question it is attached to on the answer of
// the controlling question QuestionID.
type ConditionalLogic struct {
	QuestionID string   `json:"question_id"`
	Operator   Operator `json:"operator"`
	Value      any      `json:"value"`
	Action     Action   `json:"action"`
}

// ValidationRules are optional per-question constraints; nil fields are unset.
type ValidationRules struct {
	MinLength *int     `json:"min_length,omitempty"`
	MaxLength *int     `json:"max_length,omitempty"`
	MinValue  *float64 `json:"min_value,omitempty"`
	MaxValue  *float64 `json:"max_value,omitempty"`
	Pattern   string   `json:"pattern,omitempty"`
}

type LikertConfig struct {
	ScaleMin int      `json:"scale_min"`
	ScaleMax int      `json:"scale_max"`
	Labels   []string `json:"labels"`
	Rows     []string `json:"rows,omitempty"`
}

// Points is the number of scale steps between ScaleMin and ScaleMax inclusive.
func (c *LikertConfig) Points() int {
	return c.ScaleMax - c.ScaleMin + 1
}

// Answer is the in-progress answer to one question. Value holds the decoded
// JSON shape (string, float64, bool, []any, or map[string]any for likert rows);
// Text holds free text or the "other" text of a choice.
type Answer struct {
	Value any    `json:"answer_value,omitempty"`
	Text  string `json:"answer_text,omitempty"`
}

// Empty reports whether the answer carries neither a value nor text.
func (a Answer) Empty() bool {
	return IsEmptyValue(a.Value) && a.Text == ""
}

// IsEmptyValue reports whether v counts as no value: nil, an empty string,
// or an empty array or map.
func IsEmptyValue(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return x == ""
	case []any:
		return len(x) == 0
	case []string:
		return len(x) == 0
	case map[string]any:
		return len(x) == 0
	}
	return false
}

// Answers is the respondent's answer set keyed by question id.
type Answers map[string]Answer

// Clone returns a shallow copy of the answer set.
func (a Answers) Clone() Answers {
	out := make(Answers, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// ResponseItem is one persisted answer.
type ResponseItem struct {
	QuestionID  string `json:"question_id"`
	AnswerValue any    `json:"answer_value,omitempty"`
	AnswerText  string `json:"answer_text,omitempty"`
}

// Response is one respondent attempt. Items are immutable once Complete.
type Response struct {
	ID                string         `json:"id"`
	SurveyID          string         `json:"survey_id"`
	IdentityHash      string         `json:"identity_hash,omitempty"`
	IdentityEncrypted string         `json:"-"`
	IPAddress         string         `json:"ip_address,omitempty"`
	UserAgent         string         `json:"-"`
	StartedAt         time.Time      `json:"started_at"`
	SubmittedAt       *time.Time     `json:"submitted_at,omitempty"`
	Complete          bool           `json:"is_complete"`
	Items             []ResponseItem `json:"items,omitempty"`
}

// QuestionStatistic is the per-question reduction of submitted answers.
type QuestionStatistic struct {
	ResponseCount int            `json:"response_count"`
	ValueCounts   map[string]int `json:"value_counts"`
	TextResponses []string       `json:"text_responses"`
	Average       *float64       `json:"average,omitempty"`
}

type Statistics struct {
	TotalResponses int                           `json:"total_responses"`
	Questions      map[string]*QuestionStatistic `json:"question_stats"`
}

// Tenant owns surveys authored by its users.
type Tenant struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type User struct {
	ID        string
	Email     string
	PassHash  []byte
	TenantID  string
	CreatedAt time.Time
}

type AuditEntry struct {
	Time   time.Time `json:"time"`
	Actor  string    `json:"actor"`
	Action string    `json:"action"`
	Target string    `json:"target"`
	Note   string    `json:"note,omitempty"`
}
