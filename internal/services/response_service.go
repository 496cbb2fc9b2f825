package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/soaringjerry/Surveyor/internal/engine"
	"github.com/soaringjerry/Surveyor/internal/models"
)

var tracer = otel.Tracer("github.com/soaringjerry/Surveyor/internal/services")

// ResponseStore persists respondent attempts. CompleteResponse writes the
// final items and completion fields in one step and returns
// models.ErrDuplicateFingerprint when another complete response of the
// survey already carries the same identity hash.
type ResponseStore interface {
	GetSurvey(ctx context.Context, id string) (*models.Survey, error)
	GetSurveyByShareID(ctx context.Context, shareID string) (*models.Survey, error)
	InsertResponse(ctx context.Context, r *models.Response) error
	GetResponse(ctx context.Context, id string) (*models.Response, error)
	ReplaceResponseItems(ctx context.Context, responseID string, items []models.ResponseItem) error
	CompleteResponse(ctx context.Context, r *models.Response) error
	ListResponses(ctx context.Context, surveyID string, completeOnly bool) ([]*models.Response, error)
}

// ResponseService runs the respondent side: starting, autosaving and
// submitting responses. It satisfies engine.Persistence, so a Controller can
// drive it in-process.
type ResponseService struct {
	store       ResponseStore
	sealer      *IdentitySealer
	now         func() time.Time
	idGenerator func() string
}

var _ engine.Persistence = (*ResponseService)(nil)

// NewResponseService builds the service. A nil sealer stores the identity
// hash without the encrypted identity.
func NewResponseService(store ResponseStore, sealer *IdentitySealer) *ResponseService {
	return &ResponseService{
		store:       store,
		sealer:      sealer,
		now:         func() time.Time { return time.Now().UTC() },
		idGenerator: uuid.NewString,
	}
}

// StartResponse opens an empty response for the survey behind shareID.
func (s *ResponseService) StartResponse(ctx context.Context, shareID, ip, userAgent string) (*models.Response, error) {
	sv, err := s.store.GetSurveyByShareID(ctx, shareID)
	if err != nil {
		return nil, unavailable(err)
	}
	if sv == nil {
		return nil, NewNotFoundError("survey not found")
	}
	if !sv.AcceptsResponses() {
		return nil, NewClosedError("survey is not accepting responses")
	}
	r := &models.Response{
		ID:        s.idGenerator(),
		SurveyID:  sv.ID,
		IPAddress: ip,
		UserAgent: userAgent,
		StartedAt: s.now(),
	}
	if err := s.store.InsertResponse(ctx, r); err != nil {
		return nil, unavailable(err)
	}
	return r, nil
}

// SaveDraftItems replaces the in-progress items of an open response.
// Repeating the call with the same items leaves the same state.
func (s *ResponseService) SaveDraftItems(ctx context.Context, responseID string, items []models.ResponseItem) error {
	r, sv, err := s.open(ctx, responseID)
	if err != nil {
		return err
	}
	if err := s.store.ReplaceResponseItems(ctx, r.ID, cleanItems(sv, items)); err != nil {
		return unavailable(err)
	}
	return nil
}

// SubmitResponse validates the submitted items against the questions they
// make visible and finalizes the response. With duplicate prevention on, a
// non-empty identity is fingerprinted and sealed; a second submission with
// the same fingerprint fails with a duplicate_submission error.
func (s *ResponseService) SubmitResponse(ctx context.Context, responseID string, items []models.ResponseItem, identity string) (*models.Response, error) {
	ctx, span := tracer.Start(ctx, "ResponseService.SubmitResponse")
	defer span.End()
	span.SetAttributes(attribute.String("response.id", responseID), attribute.Int("response.items", len(items)))

	r, sv, err := s.open(ctx, responseID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	cleaned := cleanItems(sv, items)
	answers := answersOf(cleaned)
	visible := engine.ResolveVisible(sv, answers)
	keep := make(map[string]bool, len(visible))
	for _, q := range visible {
		var ans *models.Answer
		if a, ok := answers[q.ID]; ok {
			ans = &a
		}
		if errs := engine.Validate(q, ans); len(errs) > 0 {
			verr := &engine.ValidationError{QuestionID: q.ID, Kind: errs[0]}
			span.SetStatus(codes.Error, verr.Error())
			return nil, verr
		}
		keep[q.ID] = true
	}
	final := make([]models.ResponseItem, 0, len(cleaned))
	for _, item := range cleaned {
		if keep[item.QuestionID] {
			final = append(final, item)
		}
	}

	if sv.DuplicatePrevention && strings.TrimSpace(identity) != "" {
		r.IdentityHash = Fingerprint(identity)
		if s.sealer != nil {
			sealed, err := s.sealer.Seal(strings.TrimSpace(identity))
			if err != nil {
				return nil, fmt.Errorf("seal identity: %w", err)
			}
			r.IdentityEncrypted = sealed
		}
	}
	now := s.now()
	r.Items = final
	r.Complete = true
	r.SubmittedAt = &now
	if err := s.store.CompleteResponse(ctx, r); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if errors.Is(err, models.ErrDuplicateFingerprint) {
			return nil, NewDuplicateError("a response from this respondent was already submitted")
		}
		return nil, unavailable(err)
	}
	return r, nil
}

// GetResponse returns a response of a survey owned by tenantID.
func (s *ResponseService) GetResponse(ctx context.Context, tenantID, id string) (*models.Response, error) {
	r, err := s.store.GetResponse(ctx, id)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, NewNotFoundError("response not found")
	}
	if _, err := s.ownedSurvey(ctx, tenantID, r.SurveyID); err != nil {
		return nil, err
	}
	return r, nil
}

// ListResponses returns the complete responses of a survey owned by tenantID.
func (s *ResponseService) ListResponses(ctx context.Context, tenantID, surveyID string) ([]*models.Response, error) {
	if _, err := s.ownedSurvey(ctx, tenantID, surveyID); err != nil {
		return nil, err
	}
	return s.store.ListResponses(ctx, surveyID, true)
}

func (s *ResponseService) ownedSurvey(ctx context.Context, tenantID, surveyID string) (*models.Survey, error) {
	if tenantID == "" {
		return nil, NewForbiddenError("unauthorized")
	}
	sv, err := s.store.GetSurvey(ctx, surveyID)
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

// open loads a response that can still be written to, with its survey.
func (s *ResponseService) open(ctx context.Context, responseID string) (*models.Response, *models.Survey, error) {
	r, err := s.store.GetResponse(ctx, responseID)
	if err != nil {
		return nil, nil, unavailable(err)
	}
	if r == nil {
		return nil, nil, NewNotFoundError("response not found")
	}
	if r.Complete {
		return nil, nil, NewConflictError("response already submitted")
	}
	sv, err := s.store.GetSurvey(ctx, r.SurveyID)
	if err != nil {
		return nil, nil, unavailable(err)
	}
	if sv == nil {
		return nil, nil, NewNotFoundError("survey not found")
	}
	if !sv.AcceptsResponses() {
		return nil, nil, NewClosedError("survey is not accepting responses")
	}
	return r, sv, nil
}

// cleanItems drops empty items and items of unknown questions, keeping the
// last item per question in survey order.
func cleanItems(sv *models.Survey, items []models.ResponseItem) []models.ResponseItem {
	latest := make(map[string]models.ResponseItem, len(items))
	for _, item := range items {
		if models.IsEmptyValue(item.AnswerValue) && item.AnswerText == "" {
			delete(latest, item.QuestionID)
			continue
		}
		latest[item.QuestionID] = item
	}
	out := make([]models.ResponseItem, 0, len(latest))
	for _, q := range engine.AllQuestions(sv) {
		if item, ok := latest[q.ID]; ok {
			out = append(out, item)
		}
	}
	return out
}

func answersOf(items []models.ResponseItem) models.Answers {
	out := make(models.Answers, len(items))
	for _, item := range items {
		out[item.QuestionID] = models.Answer{Value: item.AnswerValue, Text: item.AnswerText}
	}
	return out
}

// unavailable marks storage failures so in-process callers can match
// engine.ErrPersistenceUnavailable. Service errors pass through.
func unavailable(err error) error {
	if _, ok := AsServiceError(err); ok {
		return err
	}
	return fmt.Errorf("%w: %w", engine.ErrPersistenceUnavailable, err)
}
