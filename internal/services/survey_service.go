package services

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/soaringjerry/Surveyor/internal/engine"
	"github.com/soaringjerry/Surveyor/internal/models"
)

// SurveyStore persists survey definitions. Getters return (nil, nil) when
// the record does not exist. GetSurvey returns the full tree with sections
// and questions; ListSurveys returns survey rows only.
type SurveyStore interface {
	InsertSurvey(ctx context.Context, s *models.Survey) error
	UpdateSurvey(ctx context.Context, s *models.Survey) error
	DeleteSurvey(ctx context.Context, id string) error
	GetSurvey(ctx context.Context, id string) (*models.Survey, error)
	GetSurveyByShareID(ctx context.Context, shareID string) (*models.Survey, error)
	ListSurveys(ctx context.Context, tenantID string, status models.SurveyStatus) ([]*models.Survey, error)

	InsertSection(ctx context.Context, sec *models.Section) error
	UpdateSection(ctx context.Context, sec *models.Section) error
	DeleteSection(ctx context.Context, id string) error
	ReorderSections(ctx context.Context, surveyID string, order []string) error

	InsertQuestion(ctx context.Context, q *models.Question) error
	UpdateQuestion(ctx context.Context, q *models.Question) error
	DeleteQuestion(ctx context.Context, id string) error
	ReorderQuestions(ctx context.Context, sectionID string, order []string) error

	AddAudit(entry models.AuditEntry)
}

type SurveyService struct {
	store       SurveyStore
	now         func() time.Time
	idGenerator func() string
	shareID     func() string
}

// SurveyInput carries survey fields; nil pointers leave the field unchanged.
type SurveyInput struct {
	Title               *string `json:"title"`
	Description         *string `json:"description"`
	IntroContent        *string `json:"intro_content"`
	AllowEdit           *bool   `json:"allow_edit"`
	DuplicatePrevention *bool   `json:"duplicate_prevention"`
}

type SectionInput struct {
	Title                 *string                  `json:"title"`
	Description           *string                  `json:"description"`
	OrderIndex            *int                     `json:"order_index"`
	ConditionalLogic      *models.ConditionalLogic `json:"conditional_logic"`
	ClearConditionalLogic bool                     `json:"clear_conditional_logic"`
}

// QuestionInput carries question fields. Options replaces the whole option
// list when non-nil.
type QuestionInput struct {
	Type                  *models.QuestionType     `json:"type"`
	Title                 *string                  `json:"title"`
	Description           *string                  `json:"description"`
	Required              *bool                    `json:"required"`
	IsHidden              *bool                    `json:"is_hidden"`
	OrderIndex            *int                     `json:"order_index"`
	ValidationRules       *models.ValidationRules  `json:"validation_rules"`
	ConditionalLogic      *models.ConditionalLogic `json:"conditional_logic"`
	ClearConditionalLogic bool                     `json:"clear_conditional_logic"`
	LikertConfig          *models.LikertConfig     `json:"likert_config"`
	Options               []models.QuestionOption  `json:"options"`
}

var defaultLikertLabels = []string{"Very dissatisfied", "Dissatisfied", "Neutral", "Satisfied", "Very satisfied"}

func NewSurveyService(store SurveyStore) *SurveyService {
	return &SurveyService{
		store:       store,
		now:         func() time.Time { return time.Now().UTC() },
		idGenerator: uuid.NewString,
		shareID:     func() string { return shortID(12) },
	}
}

func (s *SurveyService) CreateSurvey(ctx context.Context, tenantID string, in SurveyInput) (*models.Survey, error) {
	if tenantID == "" {
		return nil, NewForbiddenError("unauthorized")
	}
	if in.Title == nil || strings.TrimSpace(*in.Title) == "" {
		return nil, NewInvalidError("title required")
	}
	now := s.now()
	sv := &models.Survey{
		ID:        s.idGenerator(),
		TenantID:  tenantID,
		Status:    models.StatusDraft,
		CreatedAt: now,
		UpdatedAt: now,
	}
	applySurveyInput(sv, in)
	if err := s.store.InsertSurvey(ctx, sv); err != nil {
		return nil, err
	}
	sec := &models.Section{ID: s.idGenerator(), SurveyID: sv.ID, OrderIndex: 0}
	if err := s.store.InsertSection(ctx, sec); err != nil {
		return nil, err
	}
	sec.Questions = []*models.Question{}
	sv.Sections = []*models.Section{sec}
	s.audit(tenantID, "create_survey", sv.ID, "")
	return sv, nil
}

// GetSurvey returns the full definition of a survey owned by tenantID.
func (s *SurveyService) GetSurvey(ctx context.Context, tenantID, id string) (*models.Survey, error) {
	return s.owned(ctx, tenantID, id)
}

func (s *SurveyService) ListSurveys(ctx context.Context, tenantID, status string) ([]*models.Survey, error) {
	if tenantID == "" {
		return nil, NewForbiddenError("unauthorized")
	}
	st := models.SurveyStatus(status)
	switch st {
	case "", models.StatusDraft, models.StatusPublished, models.StatusClosed:
	default:
		return nil, NewInvalidError("unknown status " + status)
	}
	return s.store.ListSurveys(ctx, tenantID, st)
}

func (s *SurveyService) UpdateSurvey(ctx context.Context, tenantID, id string, in SurveyInput) (*models.Survey, error) {
	sv, err := s.owned(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if in.Title != nil && strings.TrimSpace(*in.Title) == "" {
		return nil, NewInvalidError("title required")
	}
	applySurveyInput(sv, in)
	sv.UpdatedAt = s.now()
	if err := s.store.UpdateSurvey(ctx, sv); err != nil {
		return nil, err
	}
	return sv, nil
}

func (s *SurveyService) DeleteSurvey(ctx context.Context, tenantID, id string) error {
	if _, err := s.owned(ctx, tenantID, id); err != nil {
		return err
	}
	if err := s.store.DeleteSurvey(ctx, id); err != nil {
		return err
	}
	s.audit(tenantID, "delete_survey", id, "")
	return nil
}

// PublishSurvey opens the survey for responses, assigning a share id on
// first publication. Closed surveys can be published again.
func (s *SurveyService) PublishSurvey(ctx context.Context, tenantID, id string) (*models.Survey, error) {
	sv, err := s.owned(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if sv.ShareID == "" {
		sv.ShareID = s.shareID()
	}
	return s.setStatus(ctx, tenantID, sv, models.StatusPublished)
}

func (s *SurveyService) CloseSurvey(ctx context.Context, tenantID, id string) (*models.Survey, error) {
	sv, err := s.owned(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if sv.Status != models.StatusPublished {
		return nil, NewConflictError("only published surveys can be closed")
	}
	return s.setStatus(ctx, tenantID, sv, models.StatusClosed)
}

func (s *SurveyService) setStatus(ctx context.Context, tenantID string, sv *models.Survey, st models.SurveyStatus) (*models.Survey, error) {
	sv.Status = st
	sv.UpdatedAt = s.now()
	if err := s.store.UpdateSurvey(ctx, sv); err != nil {
		return nil, err
	}
	s.audit(tenantID, "status_"+string(st), sv.ID, sv.ShareID)
	return sv, nil
}

// PublicSurvey loads a survey for respondents by its share id. Only surveys
// accepting responses are returned.
func (s *SurveyService) PublicSurvey(ctx context.Context, shareID string) (*models.Survey, error) {
	if strings.TrimSpace(shareID) == "" {
		return nil, NewNotFoundError("survey not found")
	}
	sv, err := s.store.GetSurveyByShareID(ctx, shareID)
	if err != nil {
		return nil, err
	}
	if sv == nil {
		return nil, NewNotFoundError("survey not found")
	}
	if !sv.AcceptsResponses() {
		return nil, NewClosedError("survey is not accepting responses")
	}
	sv.TenantID = ""
	return sv, nil
}

// Issues lists the structural problems of a survey definition. Questions
// named in the result are never shown to respondents.
func (s *SurveyService) Issues(ctx context.Context, tenantID, id string) ([]engine.DefinitionIssue, error) {
	sv, err := s.owned(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	issues := engine.CheckDefinition(sv)
	if issues == nil {
		issues = []engine.DefinitionIssue{}
	}
	return issues, nil
}

func (s *SurveyService) CreateSection(ctx context.Context, tenantID, surveyID string, in SectionInput) (*models.Section, error) {
	sv, err := s.owned(ctx, tenantID, surveyID)
	if err != nil {
		return nil, err
	}
	sec := &models.Section{ID: s.idGenerator(), SurveyID: sv.ID, OrderIndex: len(sv.Sections)}
	applySectionInput(sec, in)
	sv.Sections = append(sv.Sections, sec)
	if err := checkSectionRule(sv, sec); err != nil {
		return nil, err
	}
	if err := s.store.InsertSection(ctx, sec); err != nil {
		return nil, err
	}
	sec.Questions = []*models.Question{}
	return sec, nil
}

func (s *SurveyService) UpdateSection(ctx context.Context, tenantID, surveyID, sectionID string, in SectionInput) (*models.Section, error) {
	sv, err := s.owned(ctx, tenantID, surveyID)
	if err != nil {
		return nil, err
	}
	sec := findSection(sv, sectionID)
	if sec == nil {
		return nil, NewNotFoundError("section not found")
	}
	applySectionInput(sec, in)
	if err := checkSectionRule(sv, sec); err != nil {
		return nil, err
	}
	if err := s.store.UpdateSection(ctx, sec); err != nil {
		return nil, err
	}
	return sec, nil
}

// DeleteSection removes a section with its questions. Questions elsewhere
// that are conditioned on one of them must be changed first.
func (s *SurveyService) DeleteSection(ctx context.Context, tenantID, surveyID, sectionID string) error {
	sv, err := s.owned(ctx, tenantID, surveyID)
	if err != nil {
		return err
	}
	sec := findSection(sv, sectionID)
	if sec == nil {
		return NewNotFoundError("section not found")
	}
	removed := map[string]bool{}
	for _, q := range sec.Questions {
		removed[q.ID] = true
	}
	if dep := dependent(sv, removed); dep != "" {
		return NewConflictError(fmt.Sprintf("question %s depends on a question in this section", dep))
	}
	return s.store.DeleteSection(ctx, sectionID)
}

func (s *SurveyService) ReorderSections(ctx context.Context, tenantID, surveyID string, order []string) error {
	sv, err := s.owned(ctx, tenantID, surveyID)
	if err != nil {
		return err
	}
	current := make([]string, 0, len(sv.Sections))
	for _, sec := range sv.Sections {
		current = append(current, sec.ID)
	}
	if !samePermutation(current, order) {
		return NewInvalidError("order must list every section exactly once")
	}
	return s.store.ReorderSections(ctx, surveyID, order)
}

func (s *SurveyService) CreateQuestion(ctx context.Context, tenantID, surveyID, sectionID string, in QuestionInput) (*models.Question, error) {
	sv, err := s.owned(ctx, tenantID, surveyID)
	if err != nil {
		return nil, err
	}
	sec := findSection(sv, sectionID)
	if sec == nil {
		return nil, NewNotFoundError("section not found")
	}
	if in.Type == nil {
		return nil, NewInvalidError("type required")
	}
	q := &models.Question{ID: s.idGenerator(), SectionID: sec.ID, OrderIndex: len(sec.Questions)}
	applyQuestionInput(q, in)
	normalizeQuestion(q, s.idGenerator)
	sec.Questions = append(sec.Questions, q)
	if err := checkQuestion(sv, q); err != nil {
		return nil, err
	}
	if err := s.store.InsertQuestion(ctx, q); err != nil {
		return nil, err
	}
	return q, nil
}

func (s *SurveyService) UpdateQuestion(ctx context.Context, tenantID, surveyID, questionID string, in QuestionInput) (*models.Question, error) {
	sv, err := s.owned(ctx, tenantID, surveyID)
	if err != nil {
		return nil, err
	}
	q := findQuestion(sv, questionID)
	if q == nil {
		return nil, NewNotFoundError("question not found")
	}
	applyQuestionInput(q, in)
	normalizeQuestion(q, s.idGenerator)
	if err := checkQuestion(sv, q); err != nil {
		return nil, err
	}
	if err := s.store.UpdateQuestion(ctx, q); err != nil {
		return nil, err
	}
	return q, nil
}

func (s *SurveyService) DeleteQuestion(ctx context.Context, tenantID, surveyID, questionID string) error {
	sv, err := s.owned(ctx, tenantID, surveyID)
	if err != nil {
		return err
	}
	if findQuestion(sv, questionID) == nil {
		return NewNotFoundError("question not found")
	}
	if dep := dependent(sv, map[string]bool{questionID: true}); dep != "" {
		return NewConflictError(fmt.Sprintf("question %s depends on this question", dep))
	}
	return s.store.DeleteQuestion(ctx, questionID)
}

func (s *SurveyService) ReorderQuestions(ctx context.Context, tenantID, surveyID, sectionID string, order []string) error {
	sv, err := s.owned(ctx, tenantID, surveyID)
	if err != nil {
		return err
	}
	sec := findSection(sv, sectionID)
	if sec == nil {
		return NewNotFoundError("section not found")
	}
	current := make([]string, 0, len(sec.Questions))
	for _, q := range sec.Questions {
		current = append(current, q.ID)
	}
	if !samePermutation(current, order) {
		return NewInvalidError("order must list every question of the section exactly once")
	}
	return s.store.ReorderQuestions(ctx, sectionID, order)
}

func (s *SurveyService) owned(ctx context.Context, tenantID, id string) (*models.Survey, error) {
	if tenantID == "" {
		return nil, NewForbiddenError("unauthorized")
	}
	sv, err := s.store.GetSurvey(ctx, id)
	if err != nil {
		return nil, err
	}
	if sv == nil {
		return nil, NewNotFoundError("survey not found")
	}
	if sv.TenantID != tenantID {
		return nil, NewForbiddenError("forbidden")
	}
	return sv, nil
}

func (s *SurveyService) audit(actor, action, target, note string) {
	s.store.AddAudit(models.AuditEntry{Time: s.now(), Actor: actor, Action: action, Target: target, Note: note})
}

func applySurveyInput(sv *models.Survey, in SurveyInput) {
	if in.Title != nil {
		sv.Title = strings.TrimSpace(*in.Title)
	}
	if in.Description != nil {
		sv.Description = *in.Description
	}
	if in.IntroContent != nil {
		sv.IntroContent = *in.IntroContent
	}
	if in.AllowEdit != nil {
		sv.AllowEdit = *in.AllowEdit
	}
	if in.DuplicatePrevention != nil {
		sv.DuplicatePrevention = *in.DuplicatePrevention
	}
}

func applySectionInput(sec *models.Section, in SectionInput) {
	if in.Title != nil {
		sec.Title = *in.Title
	}
	if in.Description != nil {
		sec.Description = *in.Description
	}
	if in.OrderIndex != nil {
		sec.OrderIndex = *in.OrderIndex
	}
	switch {
	case in.ClearConditionalLogic:
		sec.ConditionalLogic = nil
	case in.ConditionalLogic != nil:
		rule := defaultRule(*in.ConditionalLogic)
		sec.ConditionalLogic = &rule
	}
}

func applyQuestionInput(q *models.Question, in QuestionInput) {
	if in.Type != nil {
		q.Type = *in.Type
	}
	if in.Title != nil {
		q.Title = *in.Title
	}
	if in.Description != nil {
		q.Description = *in.Description
	}
	if in.Required != nil {
		q.Required = *in.Required
	}
	if in.IsHidden != nil {
		q.IsHidden = *in.IsHidden
	}
	if in.OrderIndex != nil {
		q.OrderIndex = *in.OrderIndex
	}
	if in.ValidationRules != nil {
		rules := *in.ValidationRules
		q.ValidationRules = &rules
	}
	switch {
	case in.ClearConditionalLogic:
		q.ConditionalLogic = nil
	case in.ConditionalLogic != nil:
		rule := defaultRule(*in.ConditionalLogic)
		q.ConditionalLogic = &rule
	}
	if in.LikertConfig != nil {
		cfg := *in.LikertConfig
		q.LikertConfig = &cfg
	}
	if in.Options != nil {
		q.Options = append([]models.QuestionOption{}, in.Options...)
	}
}

func defaultRule(rule models.ConditionalLogic) models.ConditionalLogic {
	if rule.Operator == "" {
		rule.Operator = models.OpEquals
	}
	if rule.Action == "" {
		rule.Action = models.ActionShow
	}
	return rule
}

// normalizeQuestion fills defaults: option ids, labels and positions, and a
// 1..5 likert scale.
func normalizeQuestion(q *models.Question, newID func() string) {
	for i := range q.Options {
		opt := &q.Options[i]
		if opt.ID == "" {
			opt.ID = newID()
		}
		if opt.Label == "" {
			opt.Label = opt.Value
		}
		opt.OrderIndex = i
	}
	if !q.Type.HasOptions() {
		q.Options = nil
	}
	if q.Type != models.Likert {
		q.LikertConfig = nil
		return
	}
	if q.LikertConfig == nil {
		q.LikertConfig = &models.LikertConfig{ScaleMin: 1, ScaleMax: 5}
	}
	cfg := q.LikertConfig
	if cfg.ScaleMin == 0 && cfg.ScaleMax == 0 {
		cfg.ScaleMin, cfg.ScaleMax = 1, 5
	}
	if len(cfg.Labels) == 0 && cfg.ScaleMax >= cfg.ScaleMin {
		if cfg.ScaleMin == 1 && cfg.ScaleMax == 5 {
			cfg.Labels = append([]string{}, defaultLikertLabels...)
		} else {
			for v := cfg.ScaleMin; v <= cfg.ScaleMax; v++ {
				cfg.Labels = append(cfg.Labels, strconv.Itoa(v))
			}
		}
	}
}

// checkQuestion rejects a question whose definition would be malformed once
// saved into sv. sv must already contain q.
func checkQuestion(sv *models.Survey, q *models.Question) error {
	if strings.TrimSpace(q.Title) == "" {
		return NewInvalidError("title required")
	}
	for _, opt := range q.Options {
		if strings.TrimSpace(opt.Value) == "" {
			return NewInvalidError("option value required")
		}
	}
	if r := q.ValidationRules; r != nil {
		if r.MinLength != nil && r.MaxLength != nil && *r.MaxLength > 0 && *r.MinLength > *r.MaxLength {
			return NewInvalidError("min_length exceeds max_length")
		}
		if r.MinValue != nil && r.MaxValue != nil && *r.MinValue > *r.MaxValue {
			return NewInvalidError("min_value exceeds max_value")
		}
	}
	for _, issue := range engine.CheckDefinition(sv) {
		if issue.QuestionID == q.ID {
			return NewInvalidError(issue.Error())
		}
	}
	return nil
}

// checkSectionRule validates the section's reserved conditional logic. sv
// must already contain sec.
func checkSectionRule(sv *models.Survey, sec *models.Section) error {
	if sec.ConditionalLogic == nil {
		return nil
	}
	for _, issue := range engine.CheckDefinition(sv) {
		if issue.SectionID == sec.ID && issue.QuestionID == "" {
			return NewInvalidError(issue.Error())
		}
	}
	return nil
}

// dependent returns the id of a question outside removed whose conditional
// logic names a question in removed.
func dependent(sv *models.Survey, removed map[string]bool) string {
	for _, q := range engine.AllQuestions(sv) {
		if removed[q.ID] || q.ConditionalLogic == nil {
			continue
		}
		if removed[q.ConditionalLogic.QuestionID] {
			return q.ID
		}
	}
	return ""
}

func findSection(sv *models.Survey, id string) *models.Section {
	for _, sec := range sv.Sections {
		if sec.ID == id {
			return sec
		}
	}
	return nil
}

func findQuestion(sv *models.Survey, id string) *models.Question {
	for _, q := range engine.AllQuestions(sv) {
		if q.ID == id {
			return q
		}
	}
	return nil
}

func samePermutation(current, order []string) bool {
	if len(current) != len(order) {
		return false
	}
	a := slices.Clone(current)
	b := slices.Clone(order)
	slices.Sort(a)
	slices.Sort(b)
	return slices.Equal(a, b)
}
