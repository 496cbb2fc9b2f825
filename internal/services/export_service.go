package services

import (
	"context"
	"fmt"
	"time"

	"github.com/soaringjerry/Surveyor/internal/engine"
	"github.com/soaringjerry/Surveyor/internal/models"
)

type ExportStore interface {
	GetSurvey(ctx context.Context, id string) (*models.Survey, error)
	ListResponses(ctx context.Context, surveyID string, completeOnly bool) ([]*models.Response, error)
}

type ExportParams struct {
	TenantID string
	SurveyID string
	Format   string
}

type ExportResult struct {
	Filename    string
	ContentType string
	Data        []byte
}

type ExportService struct {
	store ExportStore
}

func NewExportService(store ExportStore) *ExportService {
	return &ExportService{store: store}
}

// ExportCSV renders the complete responses of a survey. Formats: "responses"
// (default, one row per response), "long" (one row per item) and "summary"
// (per-question statistics). Permanently hidden questions are left out.
func (s *ExportService) ExportCSV(ctx context.Context, params ExportParams) (*ExportResult, error) {
	if params.SurveyID == "" {
		return nil, NewInvalidError("survey_id required")
	}
	if params.TenantID == "" {
		return nil, NewForbiddenError("unauthorized")
	}
	format := params.Format
	if format == "" {
		format = "responses"
	}
	sv, err := s.store.GetSurvey(ctx, params.SurveyID)
	if err != nil {
		return nil, err
	}
	if sv == nil {
		return nil, NewNotFoundError("survey not found")
	}
	if sv.TenantID != params.TenantID {
		return nil, NewForbiddenError("forbidden")
	}
	rs, err := s.store.ListResponses(ctx, params.SurveyID, true)
	if err != nil {
		return nil, err
	}
	numbering := engine.NewNumbering(sv)
	questions := exportedQuestions(sv)

	var data []byte
	switch format {
	case "responses":
		header := []string{"Response ID", "Submitted At"}
		for _, q := range questions {
			header = append(header, questionHeader(numbering, q))
		}
		rows := make([][]string, 0, len(rs))
		for _, r := range rs {
			byQuestion := make(map[string]models.ResponseItem, len(r.Items))
			for _, item := range r.Items {
				byQuestion[item.QuestionID] = item
			}
			row := []string{r.ID, submittedAt(r)}
			for _, q := range questions {
				item := byQuestion[q.ID]
				row = append(row, FormatCell(item.AnswerValue, item.AnswerText))
			}
			rows = append(rows, row)
		}
		data, err = ExportResponsesCSV(header, rows)
	case "long":
		known := make(map[string]bool, len(questions))
		for _, q := range questions {
			known[q.ID] = true
		}
		var rows []LongRow
		for _, r := range rs {
			for _, item := range r.Items {
				if !known[item.QuestionID] {
					continue
				}
				rows = append(rows, LongRow{
					ResponseID:    r.ID,
					QuestionLabel: numbering.Label(item.QuestionID),
					QuestionID:    item.QuestionID,
					Value:         FormatCell(item.AnswerValue, ""),
					Text:          item.AnswerText,
					SubmittedAt:   submittedAt(r),
				})
			}
		}
		data, err = ExportLongCSV(rows)
	case "summary":
		stats := engine.Tabulate(sv, rs)
		rows := make([]SummaryRow, 0, len(questions))
		for _, q := range questions {
			st := stats[q.ID]
			rows = append(rows, SummaryRow{
				Label:         numbering.Label(q.ID),
				Title:         q.Title,
				ResponseCount: st.ResponseCount,
				Average:       st.Average,
				ValueCounts:   st.ValueCounts,
			})
		}
		data, err = ExportSummaryCSV(len(rs), rows)
	default:
		return nil, NewInvalidError("unsupported format")
	}
	if err != nil {
		return nil, err
	}
	return &ExportResult{
		Filename:    fmt.Sprintf("survey-%s-%s.csv", sv.ID, format),
		ContentType: "text/csv; charset=utf-8",
		Data:        data,
	}, nil
}

func exportedQuestions(sv *models.Survey) []*models.Question {
	var out []*models.Question
	for _, q := range engine.AllQuestions(sv) {
		if !q.IsHidden {
			out = append(out, q)
		}
	}
	return out
}

func questionHeader(n *engine.Numbering, q *models.Question) string {
	if label := n.Label(q.ID); label != "" {
		return label + ". " + q.Title
	}
	return q.Title
}

func submittedAt(r *models.Response) string {
	if r.SubmittedAt == nil {
		return ""
	}
	return r.SubmittedAt.UTC().Format(time.RFC3339)
}
