package services

import (
	"context"
	"runtime"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/soaringjerry/Surveyor/internal/engine"
	"github.com/soaringjerry/Surveyor/internal/models"
)

type AnalyticsStore interface {
	GetSurvey(ctx context.Context, id string) (*models.Survey, error)
	ListResponses(ctx context.Context, surveyID string, completeOnly bool) ([]*models.Response, error)
}

// AnalyticsService reduces complete responses into per-question statistics.
// Above parallelThreshold responses the reduction is sharded across CPUs.
type AnalyticsService struct {
	store             AnalyticsStore
	parallelThreshold int
	shards            int
}

func NewAnalyticsService(store AnalyticsStore, parallelThreshold int) *AnalyticsService {
	return &AnalyticsService{store: store, parallelThreshold: parallelThreshold, shards: runtime.GOMAXPROCS(0)}
}

func (s *AnalyticsService) Statistics(ctx context.Context, tenantID, surveyID string) (*models.Statistics, error) {
	ctx, span := tracer.Start(ctx, "AnalyticsService.Statistics", trace.WithSpanKind(trace.SpanKindInternal))
	defer span.End()
	sv, responses, err := s.load(ctx, tenantID, surveyID)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("survey.id", surveyID), attribute.Int("survey.responses", len(responses)))
	stats, err := s.tabulate(ctx, sv, responses)
	if err != nil {
		return nil, err
	}
	return &models.Statistics{TotalResponses: len(responses), Questions: stats}, nil
}

func (s *AnalyticsService) tabulate(ctx context.Context, sv *models.Survey, responses []*models.Response) (map[string]*models.QuestionStatistic, error) {
	if s.parallelThreshold > 0 && len(responses) >= s.parallelThreshold && s.shards > 1 {
		return engine.TabulateParallel(ctx, sv, responses, s.shards)
	}
	return engine.Tabulate(sv, responses), nil
}

// load returns the survey and its complete responses. Incomplete responses
// never reach tabulation.
func (s *AnalyticsService) load(ctx context.Context, tenantID, surveyID string) (*models.Survey, []*models.Response, error) {
	if tenantID == "" {
		return nil, nil, NewForbiddenError("unauthorized")
	}
	sv, err := s.store.GetSurvey(ctx, surveyID)
	if err != nil {
		return nil, nil, err
	}
	if sv == nil {
		return nil, nil, NewNotFoundError("survey not found")
	}
	if sv.TenantID != tenantID {
		return nil, nil, NewForbiddenError("forbidden")
	}
	rs, err := s.store.ListResponses(ctx, surveyID, true)
	if err != nil {
		return nil, nil, err
	}
	complete := rs[:0:0]
	for _, r := range rs {
		if r != nil && r.Complete {
			complete = append(complete, r)
		}
	}
	return sv, complete, nil
}
