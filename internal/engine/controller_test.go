package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"runtime"
	"strings"
	"sync"
	"testing"

	"github.com/soaringjerry/Surveyor/internal/models"
)

type stubPersistence struct {
	mu        sync.Mutex
	drafts    [][]models.ResponseItem
	submitted []models.ResponseItem
	identity  string
	calls     int
	draftErr  error
	submitErr error
	block     chan struct{}
}

func (s *stubPersistence) SaveDraftItems(ctx context.Context, responseID string, items []models.ResponseItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drafts = append(s.drafts, append([]models.ResponseItem(nil), items...))
	return s.draftErr
}

func (s *stubPersistence) SubmitResponse(ctx context.Context, responseID string, items []models.ResponseItem, identity string) (*models.Response, error) {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.submitted = append([]models.ResponseItem(nil), items...)
	s.identity = identity
	if s.submitErr != nil {
		return nil, s.submitErr
	}
	return &models.Response{ID: responseID, Complete: true, Items: items}, nil
}

func TestControllerIntroPhase(t *testing.T) {
	s := branchingSurvey()
	s.IntroContent = "  Welcome  "
	c := NewController(s, "r1", &stubPersistence{})
	if c.Phase() != PhaseIntro {
		t.Fatalf("got phase %s, want intro", c.Phase())
	}
	if c.Current() != nil {
		t.Fatalf("intro should not expose a current question")
	}
	if err := c.Advance(context.Background()); !errors.Is(err, ErrWrongPhase) {
		t.Fatalf("advance during intro: got %v", err)
	}
	if err := c.DismissIntro(); err != nil {
		t.Fatalf("dismiss: %v", err)
	}
	if c.Phase() != PhasePaging || c.Current().ID != "A" || c.CurrentLabel() != "A1" {
		t.Fatalf("after intro: phase %s current %v", c.Phase(), c.Current())
	}
	if err := c.DismissIntro(); !errors.Is(err, ErrWrongPhase) {
		t.Fatalf("second dismiss: got %v", err)
	}

	s.IntroContent = "   "
	if NewController(s, "r2", nil).Phase() != PhasePaging {
		t.Fatalf("blank intro should start paging")
	}
}

func TestControllerAdvanceBlocksOnValidation(t *testing.T) {
	s := branchingSurvey()
	c := NewController(s, "r1", &stubPersistence{})
	ctx := context.Background()
	// A, C are optional; D is required.
	if err := c.Advance(ctx); err != nil {
		t.Fatalf("advance A: %v", err)
	}
	if err := c.Advance(ctx); err != nil {
		t.Fatalf("advance C: %v", err)
	}
	if !c.IsLast() || c.Current().ID != "D" {
		t.Fatalf("expected to be on D, got %v", c.Current())
	}
	err := c.Advance(ctx)
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Kind != RequiredMissing || verr.QuestionID != "D" {
		t.Fatalf("got %v, want required_missing on D", err)
	}
	if kind, ok := c.CurrentError(); !ok || kind != RequiredMissing {
		t.Fatalf("current error: %v %v", kind, ok)
	}
	_ = c.SetAnswer("D", models.Answer{Text: "done"})
	if _, ok := c.CurrentError(); ok {
		t.Fatalf("editing the question should clear its error")
	}
	c.WaitAutosave()
}

func TestControllerClampsIndexWhenVisibleShrinks(t *testing.T) {
	s := branchingSurvey()
	c := NewController(s, "r1", &stubPersistence{})
	ctx := context.Background()
	_ = c.SetAnswer("A", models.Answer{Value: "x"})
	_ = c.SetAnswer("D", models.Answer{Text: "fine"})
	for c.CanAdvance() {
		if err := c.Advance(ctx); err != nil {
			t.Fatalf("advance: %v", err)
		}
	}
	if c.Index() != 3 || c.Current().ID != "D" {
		t.Fatalf("got index %d on %v, want 3 on D", c.Index(), c.Current())
	}
	_ = c.SetAnswer("A", models.Answer{Value: "y"})
	if len(c.Visible()) != 3 {
		t.Fatalf("visible %v", ids(c.Visible()))
	}
	if c.Index() != 2 || c.Current().ID != "D" {
		t.Fatalf("got index %d on %v, want clamp to 2", c.Index(), c.Current())
	}
	c.WaitAutosave()
}

func TestControllerKeepsHiddenAnswersButOmitsThemFromPayload(t *testing.T) {
	s := branchingSurvey()
	c := NewController(s, "r1", &stubPersistence{})
	_ = c.SetAnswer("A", models.Answer{Value: "x"})
	_ = c.SetAnswer("B", models.Answer{Text: "about x"})
	_ = c.SetAnswer("A", models.Answer{Value: "y"})

	if a, ok := c.Answer("B"); !ok || a.Text != "about x" {
		t.Fatalf("hidden answer was cleared")
	}
	for _, item := range c.Payload() {
		if item.QuestionID == "B" {
			t.Fatalf("payload includes answer of hidden question")
		}
	}
	_ = c.SetAnswer("A", models.Answer{Value: "x"})
	found := false
	for _, item := range c.Payload() {
		found = found || item.QuestionID == "B"
	}
	if !found {
		t.Fatalf("answer should come back when the question is visible again")
	}
}

func TestControllerAutosave(t *testing.T) {
	s := branchingSurvey()
	store := &stubPersistence{}
	c := NewController(s, "r1", store)
	_ = c.SetAnswer("A", models.Answer{Value: "x"})
	if err := c.Advance(context.Background()); err != nil {
		t.Fatalf("advance: %v", err)
	}
	c.WaitAutosave()
	if len(store.drafts) != 1 || len(store.drafts[0]) != 1 || store.drafts[0][0].QuestionID != "A" {
		t.Fatalf("drafts %v", store.drafts)
	}

	s.AllowEdit = false
	store2 := &stubPersistence{}
	c2 := NewController(s, "r2", store2)
	_ = c2.SetAnswer("A", models.Answer{Value: "x"})
	_ = c2.Advance(context.Background())
	c2.WaitAutosave()
	if len(store2.drafts) != 0 {
		t.Fatalf("autosave ran without allow_edit")
	}
}

// slowFirstDraft holds the first draft save until a later one has been stored.
type slowFirstDraft struct {
	mu      sync.Mutex
	calls   int
	stored  []models.ResponseItem
	release chan struct{}
}

func (s *slowFirstDraft) SaveDraftItems(ctx context.Context, responseID string, items []models.ResponseItem) error {
	s.mu.Lock()
	s.calls++
	first := s.calls == 1
	s.mu.Unlock()
	if first {
		<-s.release
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stored = append([]models.ResponseItem(nil), items...)
	if !first {
		select {
		case <-s.release:
		default:
			close(s.release)
		}
	}
	return nil
}

func (s *slowFirstDraft) SubmitResponse(ctx context.Context, responseID string, items []models.ResponseItem, identity string) (*models.Response, error) {
	return &models.Response{ID: responseID, Complete: true, Items: items}, nil
}

func TestControllerAutosaveKeepsNewestDraft(t *testing.T) {
	store := &slowFirstDraft{release: make(chan struct{})}
	c := NewController(branchingSurvey(), "r1", store)
	_ = c.SetAnswer("A", models.Answer{Value: "y"})
	if err := c.Advance(context.Background()); err != nil {
		t.Fatalf("advance: %v", err)
	}
	_ = c.SetAnswer("C", models.Answer{Value: 7.0})
	if err := c.Advance(context.Background()); err != nil {
		t.Fatalf("advance: %v", err)
	}
	c.WaitAutosave()
	store.mu.Lock()
	defer store.mu.Unlock()
	if len(store.stored) != 2 || store.stored[0].QuestionID != "A" || store.stored[1].QuestionID != "C" {
		t.Fatalf("got stored draft %v, want answers for A and C", store.stored)
	}
}

func TestControllerAutosaveFailureIsSwallowed(t *testing.T) {
	var buf bytes.Buffer
	store := &stubPersistence{draftErr: fmt.Errorf("network down: %w", ErrPersistenceUnavailable)}
	c := NewController(branchingSurvey(), "r1", store, WithLogger(log.New(&buf, "", 0)))
	_ = c.SetAnswer("A", models.Answer{Value: "x"})
	if err := c.Advance(context.Background()); err != nil {
		t.Fatalf("autosave failure leaked into advance: %v", err)
	}
	c.WaitAutosave()
	if c.Current().ID != "B" {
		t.Fatalf("paging did not continue, on %v", c.Current())
	}
	if !strings.Contains(buf.String(), "autosave response r1") {
		t.Fatalf("expected autosave failure to be logged, got %q", buf.String())
	}
}

func TestControllerRetreat(t *testing.T) {
	c := NewController(branchingSurvey(), "r1", nil)
	if c.CanRetreat() {
		t.Fatalf("cannot retreat from the first question")
	}
	_ = c.Advance(context.Background())
	if !c.CanRetreat() {
		t.Fatalf("expected retreat to be possible")
	}
	_ = c.Retreat()
	_ = c.Retreat()
	if c.Index() != 0 {
		t.Fatalf("index %d", c.Index())
	}
}

func TestControllerSubmit(t *testing.T) {
	store := &stubPersistence{}
	c := NewController(branchingSurvey(), "r1", store, WithAnswers(models.Answers{
		"A": {Value: "y"},
		"B": {Text: "stale"},
		"D": {Text: "final"},
	}))
	ctx := context.Background()
	if _, err := c.Submit(ctx, "id"); !errors.Is(err, ErrNotAtEnd) {
		t.Fatalf("submit before the end: got %v", err)
	}
	for c.CanAdvance() {
		_ = c.Advance(ctx)
	}
	resp, err := c.Submit(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if resp.ID != "r1" || c.Phase() != PhaseSubmitted || c.Result() != resp {
		t.Fatalf("unexpected result %+v phase %s", resp, c.Phase())
	}
	if store.identity != "alice@example.com" {
		t.Fatalf("identity %q", store.identity)
	}
	got := make([]string, 0, len(store.submitted))
	for _, item := range store.submitted {
		got = append(got, item.QuestionID)
	}
	if strings.Join(got, ",") != "A,D" {
		t.Fatalf("submitted %v, want [A D]", got)
	}
	if _, err := c.Submit(ctx, "again"); !errors.Is(err, ErrAlreadySubmitted) {
		t.Fatalf("second submit: got %v", err)
	}
	if store.calls != 1 {
		t.Fatalf("store called %d times", store.calls)
	}
}

func TestControllerSubmitValidatesLastQuestion(t *testing.T) {
	store := &stubPersistence{}
	c := NewController(branchingSurvey(), "r1", store)
	for c.CanAdvance() {
		_ = c.Advance(context.Background())
	}
	c.WaitAutosave()
	var verr *ValidationError
	if _, err := c.Submit(context.Background(), ""); !errors.As(err, &verr) {
		t.Fatalf("got %v, want validation error", err)
	}
	if store.calls != 0 || c.Phase() != PhasePaging {
		t.Fatalf("calls %d phase %s", store.calls, c.Phase())
	}
}

func TestControllerSubmitFailureAllowsRetry(t *testing.T) {
	store := &stubPersistence{submitErr: fmt.Errorf("timeout: %w", ErrPersistenceUnavailable)}
	c := NewController(branchingSurvey(), "r1", store, WithAnswers(models.Answers{"D": {Text: "x"}}))
	for c.CanAdvance() {
		_ = c.Advance(context.Background())
	}
	if _, err := c.Submit(context.Background(), ""); !errors.Is(err, ErrPersistenceUnavailable) {
		t.Fatalf("got %v", err)
	}
	if c.Phase() != PhasePaging || !c.CanSubmit() {
		t.Fatalf("expected retryable paging state, got %s", c.Phase())
	}
	if a, ok := c.Answer("D"); !ok || a.Text != "x" {
		t.Fatalf("answers lost after failed submit")
	}
	store.submitErr = nil
	if _, err := c.Submit(context.Background(), ""); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if store.calls != 2 {
		t.Fatalf("calls %d, want 2", store.calls)
	}
}

func TestControllerDuplicateEndsInError(t *testing.T) {
	store := &stubPersistence{submitErr: ErrDuplicateSubmission}
	c := NewController(branchingSurvey(), "r1", store, WithAnswers(models.Answers{"D": {Text: "x"}}))
	for c.CanAdvance() {
		_ = c.Advance(context.Background())
	}
	if _, err := c.Submit(context.Background(), "bob"); !errors.Is(err, ErrDuplicateSubmission) {
		t.Fatalf("got %v", err)
	}
	if c.Phase() != PhaseError || !errors.Is(c.Err(), ErrDuplicateSubmission) {
		t.Fatalf("phase %s err %v", c.Phase(), c.Err())
	}
	if _, err := c.Submit(context.Background(), "bob"); !errors.Is(err, ErrDuplicateSubmission) {
		t.Fatalf("submit after duplicate: got %v", err)
	}
	if err := c.SetAnswer("D", models.Answer{Text: "y"}); !errors.Is(err, ErrWrongPhase) {
		t.Fatalf("edit after duplicate: got %v", err)
	}
	if store.calls != 1 {
		t.Fatalf("calls %d", store.calls)
	}
}

func TestControllerSubmitInFlight(t *testing.T) {
	store := &stubPersistence{block: make(chan struct{})}
	c := NewController(branchingSurvey(), "r1", store, WithAnswers(models.Answers{"D": {Text: "x"}}))
	for c.CanAdvance() {
		_ = c.Advance(context.Background())
	}
	c.WaitAutosave()
	done := make(chan error, 1)
	go func() {
		_, err := c.Submit(context.Background(), "")
		done <- err
	}()
	for c.Phase() != PhaseSubmitting {
		runtime.Gosched()
	}
	if _, err := c.Submit(context.Background(), ""); !errors.Is(err, ErrSubmitInFlight) {
		t.Fatalf("concurrent submit: got %v", err)
	}
	if err := c.Advance(context.Background()); !errors.Is(err, ErrWrongPhase) {
		t.Fatalf("advance while submitting: got %v", err)
	}
	close(store.block)
	if err := <-done; err != nil {
		t.Fatalf("first submit: %v", err)
	}
	if store.calls != 1 {
		t.Fatalf("calls %d", store.calls)
	}
}

func TestControllerSubmitWithoutStore(t *testing.T) {
	c := NewController(branchingSurvey(), "r1", nil, WithAnswers(models.Answers{"D": {Text: "x"}}))
	for c.CanAdvance() {
		_ = c.Advance(context.Background())
	}
	if _, err := c.Submit(context.Background(), ""); !errors.Is(err, ErrPersistenceUnavailable) {
		t.Fatalf("got %v", err)
	}
}
