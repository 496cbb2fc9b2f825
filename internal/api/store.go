package api

import (
	"context"
	"slices"
	"sort"
	"sync"

	"github.com/soaringjerry/Surveyor/internal/models"
	"github.com/soaringjerry/Surveyor/internal/services"
)

// memoryStore keeps everything in process. Reads hand out copies so callers
// never alias stored state.
type memoryStore struct {
	mu               sync.RWMutex
	surveys          map[string]*models.Survey
	sections         map[string]*models.Section
	sectionsBySurvey map[string][]string
	questions        map[string]*models.Question
	questionsBySec   map[string][]string
	responses        map[string]*models.Response
	responseOrder    []string
	tenants          map[string]*models.Tenant
	usersByEmail     map[string]*models.User
	audit            []models.AuditEntry
}

// NewMemoryStore returns an empty in-process Store.
func NewMemoryStore() Store {
	return newMemoryStore()
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		surveys:          map[string]*models.Survey{},
		sections:         map[string]*models.Section{},
		sectionsBySurvey: map[string][]string{},
		questions:        map[string]*models.Question{},
		questionsBySec:   map[string][]string{},
		responses:        map[string]*models.Response{},
		tenants:          map[string]*models.Tenant{},
		usersByEmail:     map[string]*models.User{},
		audit:            []models.AuditEntry{},
	}
}

func copySurveyHeader(sv *models.Survey) *models.Survey {
	cp := *sv
	cp.Sections = nil
	return &cp
}

func copySection(sec *models.Section) *models.Section {
	cp := *sec
	cp.Questions = nil
	if sec.ConditionalLogic != nil {
		rule := *sec.ConditionalLogic
		cp.ConditionalLogic = &rule
	}
	return &cp
}

func copyQuestion(q *models.Question) *models.Question {
	cp := *q
	cp.Options = slices.Clone(q.Options)
	if q.ValidationRules != nil {
		rules := *q.ValidationRules
		cp.ValidationRules = &rules
	}
	if q.ConditionalLogic != nil {
		rule := *q.ConditionalLogic
		cp.ConditionalLogic = &rule
	}
	if q.LikertConfig != nil {
		cfg := *q.LikertConfig
		cfg.Labels = slices.Clone(q.LikertConfig.Labels)
		cfg.Rows = slices.Clone(q.LikertConfig.Rows)
		cp.LikertConfig = &cfg
	}
	return &cp
}

func copyResponse(r *models.Response) *models.Response {
	cp := *r
	cp.Items = slices.Clone(r.Items)
	if r.SubmittedAt != nil {
		at := *r.SubmittedAt
		cp.SubmittedAt = &at
	}
	return &cp
}

func (s *memoryStore) InsertSurvey(_ context.Context, sv *models.Survey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.surveys[sv.ID]; ok {
		return services.NewConflictError("survey exists")
	}
	s.surveys[sv.ID] = copySurveyHeader(sv)
	return nil
}

func (s *memoryStore) UpdateSurvey(_ context.Context, sv *models.Survey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.surveys[sv.ID]; !ok {
		return services.NewNotFoundError("survey not found")
	}
	s.surveys[sv.ID] = copySurveyHeader(sv)
	return nil
}

func (s *memoryStore) DeleteSurvey(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.surveys[id]; !ok {
		return services.NewNotFoundError("survey not found")
	}
	for _, secID := range s.sectionsBySurvey[id] {
		s.dropSection(secID)
	}
	delete(s.sectionsBySurvey, id)
	delete(s.surveys, id)
	s.responseOrder = slices.DeleteFunc(s.responseOrder, func(rid string) bool {
		if s.responses[rid].SurveyID == id {
			delete(s.responses, rid)
			return true
		}
		return false
	})
	return nil
}

// tree assembles the full definition. Callers hold the lock.
func (s *memoryStore) tree(sv *models.Survey) *models.Survey {
	out := copySurveyHeader(sv)
	out.Sections = []*models.Section{}
	for _, secID := range s.sectionsBySurvey[sv.ID] {
		sec := copySection(s.sections[secID])
		sec.Questions = []*models.Question{}
		for _, qID := range s.questionsBySec[secID] {
			sec.Questions = append(sec.Questions, copyQuestion(s.questions[qID]))
		}
		sort.SliceStable(sec.Questions, func(i, j int) bool { return sec.Questions[i].OrderIndex < sec.Questions[j].OrderIndex })
		out.Sections = append(out.Sections, sec)
	}
	sort.SliceStable(out.Sections, func(i, j int) bool { return out.Sections[i].OrderIndex < out.Sections[j].OrderIndex })
	return out
}

func (s *memoryStore) GetSurvey(_ context.Context, id string) (*models.Survey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sv, ok := s.surveys[id]
	if !ok {
		return nil, nil
	}
	return s.tree(sv), nil
}

func (s *memoryStore) GetSurveyByShareID(_ context.Context, shareID string) (*models.Survey, error) {
	if shareID == "" {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sv := range s.surveys {
		if sv.ShareID == shareID {
			return s.tree(sv), nil
		}
	}
	return nil, nil
}

func (s *memoryStore) ListSurveys(_ context.Context, tenantID string, status models.SurveyStatus) ([]*models.Survey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []*models.Survey{}
	for _, sv := range s.surveys {
		if sv.TenantID == tenantID && (status == "" || sv.Status == status) {
			out = append(out, copySurveyHeader(sv))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *memoryStore) InsertSection(_ context.Context, sec *models.Section) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.surveys[sec.SurveyID]; !ok {
		return services.NewNotFoundError("survey not found")
	}
	s.sections[sec.ID] = copySection(sec)
	s.sectionsBySurvey[sec.SurveyID] = append(s.sectionsBySurvey[sec.SurveyID], sec.ID)
	return nil
}

func (s *memoryStore) UpdateSection(_ context.Context, sec *models.Section) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.sections[sec.ID]
	if !ok {
		return services.NewNotFoundError("section not found")
	}
	cp := copySection(sec)
	cp.SurveyID = cur.SurveyID
	s.sections[sec.ID] = cp
	return nil
}

// dropSection removes a section and its questions. Callers hold the lock.
func (s *memoryStore) dropSection(id string) {
	for _, qID := range s.questionsBySec[id] {
		delete(s.questions, qID)
	}
	delete(s.questionsBySec, id)
	delete(s.sections, id)
}

func (s *memoryStore) DeleteSection(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sec, ok := s.sections[id]
	if !ok {
		return services.NewNotFoundError("section not found")
	}
	s.sectionsBySurvey[sec.SurveyID] = slices.DeleteFunc(s.sectionsBySurvey[sec.SurveyID], func(x string) bool { return x == id })
	s.dropSection(id)
	return nil
}

func (s *memoryStore) ReorderSections(_ context.Context, surveyID string, order []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, id := range order {
		sec, ok := s.sections[id]
		if !ok || sec.SurveyID != surveyID {
			return services.NewInvalidError("order must list the survey's sections")
		}
		sec.OrderIndex = i
	}
	return nil
}

func (s *memoryStore) InsertQuestion(_ context.Context, q *models.Question) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sections[q.SectionID]; !ok {
		return services.NewNotFoundError("section not found")
	}
	s.questions[q.ID] = copyQuestion(q)
	s.questionsBySec[q.SectionID] = append(s.questionsBySec[q.SectionID], q.ID)
	return nil
}

func (s *memoryStore) UpdateQuestion(_ context.Context, q *models.Question) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.questions[q.ID]
	if !ok {
		return services.NewNotFoundError("question not found")
	}
	cp := copyQuestion(q)
	cp.SectionID = cur.SectionID
	s.questions[q.ID] = cp
	return nil
}

func (s *memoryStore) DeleteQuestion(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.questions[id]
	if !ok {
		return services.NewNotFoundError("question not found")
	}
	s.questionsBySec[q.SectionID] = slices.DeleteFunc(s.questionsBySec[q.SectionID], func(x string) bool { return x == id })
	delete(s.questions, id)
	return nil
}

func (s *memoryStore) ReorderQuestions(_ context.Context, sectionID string, order []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, id := range order {
		q, ok := s.questions[id]
		if !ok || q.SectionID != sectionID {
			return services.NewInvalidError("order must list the section's questions")
		}
		q.OrderIndex = i
	}
	return nil
}

func (s *memoryStore) InsertResponse(_ context.Context, r *models.Response) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.responses[r.ID]; ok {
		return services.NewConflictError("response exists")
	}
	s.responses[r.ID] = copyResponse(r)
	s.responseOrder = append(s.responseOrder, r.ID)
	return nil
}

func (s *memoryStore) GetResponse(_ context.Context, id string) (*models.Response, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.responses[id]
	if !ok {
		return nil, nil
	}
	return copyResponse(r), nil
}

func (s *memoryStore) ReplaceResponseItems(_ context.Context, responseID string, items []models.ResponseItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.responses[responseID]
	if !ok {
		return services.NewNotFoundError("response not found")
	}
	if r.Complete {
		return services.NewConflictError("response already submitted")
	}
	r.Items = slices.Clone(items)
	return nil
}

// CompleteResponse enforces one complete response per fingerprint and survey.
func (s *memoryStore) CompleteResponse(_ context.Context, r *models.Response) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.responses[r.ID]
	if !ok {
		return services.NewNotFoundError("response not found")
	}
	if cur.Complete {
		return services.NewConflictError("response already submitted")
	}
	if r.IdentityHash != "" {
		for _, other := range s.responses {
			if other.ID != r.ID && other.SurveyID == r.SurveyID && other.Complete && other.IdentityHash == r.IdentityHash {
				return models.ErrDuplicateFingerprint
			}
		}
	}
	s.responses[r.ID] = copyResponse(r)
	return nil
}

func (s *memoryStore) ListResponses(_ context.Context, surveyID string, completeOnly bool) ([]*models.Response, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []*models.Response{}
	for _, id := range s.responseOrder {
		r := s.responses[id]
		if r.SurveyID == surveyID && (!completeOnly || r.Complete) {
			out = append(out, copyResponse(r))
		}
	}
	return out, nil
}

func (s *memoryStore) AddAudit(entry models.AuditEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audit = append(s.audit, entry)
}

func (s *memoryStore) ListAudit(_ context.Context, actor string) ([]models.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []models.AuditEntry{}
	for _, e := range s.audit {
		if actor == "" || e.Actor == actor {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *memoryStore) AddTenant(_ context.Context, t *models.Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *t
	s.tenants[t.ID] = &cp
	return nil
}

func (s *memoryStore) AddUser(_ context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.usersByEmail[u.Email]; ok {
		return services.NewConflictError("email already registered")
	}
	cp := *u
	cp.PassHash = slices.Clone(u.PassHash)
	s.usersByEmail[u.Email] = &cp
	return nil
}

func (s *memoryStore) FindUserByEmail(_ context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.usersByEmail[email]
	if !ok {
		return nil, nil
	}
	cp := *u
	cp.PassHash = slices.Clone(u.PassHash)
	return &cp, nil
}
