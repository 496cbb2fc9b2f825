package services

import (
	"context"
	"encoding/json"
	"errors"
	"slices"

	"github.com/soaringjerry/Surveyor/internal/models"
)

// stubStore keeps whole survey trees in memory and hands out copies, so
// services never share pointers with stored state.
type stubStore struct {
	surveys   map[string]*models.Survey
	responses map[string]*models.Response
	order     []string
	audit     []models.AuditEntry
	err       error
}

func newStubStore() *stubStore {
	return &stubStore{surveys: map[string]*models.Survey{}, responses: map[string]*models.Response{}}
}

func cloneSurvey(sv *models.Survey) *models.Survey {
	b, err := json.Marshal(sv)
	if err != nil {
		panic(err)
	}
	var out models.Survey
	if err := json.Unmarshal(b, &out); err != nil {
		panic(err)
	}
	return &out
}

func cloneResponse(r *models.Response) *models.Response {
	cp := *r
	cp.Items = slices.Clone(r.Items)
	if r.SubmittedAt != nil {
		at := *r.SubmittedAt
		cp.SubmittedAt = &at
	}
	return &cp
}

func (s *stubStore) put(sv *models.Survey) { s.surveys[sv.ID] = cloneSurvey(sv) }

func (s *stubStore) InsertSurvey(_ context.Context, sv *models.Survey) error {
	if s.err != nil {
		return s.err
	}
	cp := cloneSurvey(sv)
	cp.Sections = nil
	s.surveys[sv.ID] = cp
	return nil
}

func (s *stubStore) UpdateSurvey(_ context.Context, sv *models.Survey) error {
	cur, ok := s.surveys[sv.ID]
	if !ok {
		return errors.New("no survey")
	}
	cp := cloneSurvey(sv)
	cp.Sections = cur.Sections
	s.surveys[sv.ID] = cp
	return nil
}

func (s *stubStore) DeleteSurvey(_ context.Context, id string) error {
	delete(s.surveys, id)
	return nil
}

func (s *stubStore) GetSurvey(_ context.Context, id string) (*models.Survey, error) {
	if s.err != nil {
		return nil, s.err
	}
	sv, ok := s.surveys[id]
	if !ok {
		return nil, nil
	}
	return cloneSurvey(sv), nil
}

func (s *stubStore) GetSurveyByShareID(_ context.Context, shareID string) (*models.Survey, error) {
	for _, sv := range s.surveys {
		if sv.ShareID == shareID {
			return cloneSurvey(sv), nil
		}
	}
	return nil, nil
}

func (s *stubStore) ListSurveys(_ context.Context, tenantID string, status models.SurveyStatus) ([]*models.Survey, error) {
	var out []*models.Survey
	for _, sv := range s.surveys {
		if sv.TenantID == tenantID && (status == "" || sv.Status == status) {
			cp := cloneSurvey(sv)
			cp.Sections = nil
			out = append(out, cp)
		}
	}
	return out, nil
}

func (s *stubStore) section(id string) *models.Section {
	for _, sv := range s.surveys {
		for _, sec := range sv.Sections {
			if sec.ID == id {
				return sec
			}
		}
	}
	return nil
}

func (s *stubStore) InsertSection(_ context.Context, sec *models.Section) error {
	sv, ok := s.surveys[sec.SurveyID]
	if !ok {
		return errors.New("no survey")
	}
	cp := *sec
	cp.Questions = nil
	sv.Sections = append(sv.Sections, &cp)
	return nil
}

func (s *stubStore) UpdateSection(_ context.Context, sec *models.Section) error {
	cur := s.section(sec.ID)
	if cur == nil {
		return errors.New("no section")
	}
	qs := cur.Questions
	*cur = *sec
	cur.Questions = qs
	return nil
}

func (s *stubStore) DeleteSection(_ context.Context, id string) error {
	for _, sv := range s.surveys {
		sv.Sections = slices.DeleteFunc(sv.Sections, func(sec *models.Section) bool { return sec.ID == id })
	}
	return nil
}

func (s *stubStore) ReorderSections(_ context.Context, surveyID string, order []string) error {
	for _, sec := range s.surveys[surveyID].Sections {
		sec.OrderIndex = slices.Index(order, sec.ID)
	}
	return nil
}

func (s *stubStore) InsertQuestion(_ context.Context, q *models.Question) error {
	sec := s.section(q.SectionID)
	if sec == nil {
		return errors.New("no section")
	}
	cp := *q
	cp.Options = slices.Clone(q.Options)
	sec.Questions = append(sec.Questions, &cp)
	return nil
}

func (s *stubStore) UpdateQuestion(_ context.Context, q *models.Question) error {
	sec := s.section(q.SectionID)
	if sec == nil {
		return errors.New("no section")
	}
	for i, cur := range sec.Questions {
		if cur.ID == q.ID {
			cp := *q
			cp.Options = slices.Clone(q.Options)
			sec.Questions[i] = &cp
			return nil
		}
	}
	return errors.New("no question")
}

func (s *stubStore) DeleteQuestion(_ context.Context, id string) error {
	for _, sv := range s.surveys {
		for _, sec := range sv.Sections {
			sec.Questions = slices.DeleteFunc(sec.Questions, func(q *models.Question) bool { return q.ID == id })
		}
	}
	return nil
}

func (s *stubStore) ReorderQuestions(_ context.Context, sectionID string, order []string) error {
	for _, q := range s.section(sectionID).Questions {
		q.OrderIndex = slices.Index(order, q.ID)
	}
	return nil
}

func (s *stubStore) AddAudit(entry models.AuditEntry) { s.audit = append(s.audit, entry) }

func (s *stubStore) InsertResponse(_ context.Context, r *models.Response) error {
	if s.err != nil {
		return s.err
	}
	s.responses[r.ID] = cloneResponse(r)
	s.order = append(s.order, r.ID)
	return nil
}

func (s *stubStore) GetResponse(_ context.Context, id string) (*models.Response, error) {
	r, ok := s.responses[id]
	if !ok {
		return nil, nil
	}
	return cloneResponse(r), nil
}

func (s *stubStore) ReplaceResponseItems(_ context.Context, responseID string, items []models.ResponseItem) error {
	if s.err != nil {
		return s.err
	}
	r, ok := s.responses[responseID]
	if !ok {
		return errors.New("no response")
	}
	r.Items = slices.Clone(items)
	return nil
}

func (s *stubStore) CompleteResponse(_ context.Context, r *models.Response) error {
	if s.err != nil {
		return s.err
	}
	if r.IdentityHash != "" {
		for _, other := range s.responses {
			if other.ID != r.ID && other.SurveyID == r.SurveyID && other.Complete && other.IdentityHash == r.IdentityHash {
				return models.ErrDuplicateFingerprint
			}
		}
	}
	s.responses[r.ID] = cloneResponse(r)
	return nil
}

func (s *stubStore) ListResponses(_ context.Context, surveyID string, completeOnly bool) ([]*models.Response, error) {
	var out []*models.Response
	for _, id := range s.order {
		r := s.responses[id]
		if r.SurveyID == surveyID && (!completeOnly || r.Complete) {
			out = append(out, cloneResponse(r))
		}
	}
	return out, nil
}
