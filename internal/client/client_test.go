package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/soaringjerry/Surveyor/internal/api"
	"github.com/soaringjerry/Surveyor/internal/engine"
	"github.com/soaringjerry/Surveyor/internal/middleware"
	"github.com/soaringjerry/Surveyor/internal/models"
	"github.com/soaringjerry/Surveyor/internal/services"
)

// newServer serves the real router over a memory store seeded with one
// published survey (share id "share").
func newServer(t *testing.T) (*httptest.Server, api.Store) {
	t.Helper()
	ctx := context.Background()
	store := api.NewMemoryStore()
	now := time.Now().UTC()
	sv := &models.Survey{ID: "S1", TenantID: "T1", Title: "Poll", Status: models.StatusPublished, ShareID: "share",
		DuplicatePrevention: true, CreatedAt: now, UpdatedAt: now}
	if err := store.InsertSurvey(ctx, sv); err != nil {
		t.Fatalf("seed survey: %v", err)
	}
	if err := store.InsertSection(ctx, &models.Section{ID: "sec", SurveyID: "S1"}); err != nil {
		t.Fatalf("seed section: %v", err)
	}
	qs := []*models.Question{
		{ID: "color", SectionID: "sec", Type: models.SingleChoice, Title: "Color", Required: true,
			Options: []models.QuestionOption{{Label: "Red", Value: "red"}, {Label: "Blue", Value: "blue"}}},
		{ID: "why", SectionID: "sec", Type: models.ShortText, Title: "Why", OrderIndex: 1,
			ValidationRules: &models.ValidationRules{MaxLength: ptr(5)}},
	}
	for _, q := range qs {
		if err := store.InsertQuestion(ctx, q); err != nil {
			t.Fatalf("seed question: %v", err)
		}
	}
	key, err := services.DeriveIdentityKey("client test")
	if err != nil {
		t.Fatalf("derive key: %v", err)
	}
	sealer, err := services.NewIdentitySealer(key)
	if err != nil {
		t.Fatalf("sealer: %v", err)
	}
	auth := middleware.NewAuth("client-secret")
	srv := httptest.NewServer(api.NewRouter(api.Options{Store: store, Auth: auth, Sealer: sealer}).Handler())
	t.Cleanup(srv.Close)
	return srv, store
}

func ptr[T any](v T) *T { return &v }

func TestControllerOverHTTP(t *testing.T) {
	srv, _ := newServer(t)
	ctx := context.Background()
	c := New(srv.URL)

	sv, err := c.LoadSurvey(ctx, "share")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if sv.ID != "S1" || len(sv.Sections) != 1 || len(sv.Sections[0].Questions) != 2 {
		t.Fatalf("survey %+v", sv)
	}
	r, err := c.StartResponse(ctx, "share")
	if err != nil || r.ID == "" {
		t.Fatalf("start: %v %v", r, err)
	}

	ctrl := engine.NewController(sv, r.ID, c)
	if err := ctrl.SetAnswer("color", models.Answer{Value: "blue"}); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := ctrl.Advance(ctx); err != nil {
		t.Fatalf("advance: %v", err)
	}
	ctrl.WaitAutosave()
	_ = ctrl.SetAnswer("why", models.Answer{Text: "sky"})
	done, err := ctrl.Submit(ctx, "dana@example.com")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !done.Complete || len(done.Items) != 2 {
		t.Fatalf("submitted %+v", done)
	}

	second, _ := c.StartResponse(ctx, "share")
	_, err = c.SubmitResponse(ctx, second.ID, done.Items, "dana@example.com")
	if !errors.Is(err, engine.ErrDuplicateSubmission) {
		t.Fatalf("got %v, want duplicate submission", err)
	}
}

func TestServerSideValidationError(t *testing.T) {
	srv, _ := newServer(t)
	ctx := context.Background()
	c := New(srv.URL, WithLocale("ko"))
	r, err := c.StartResponse(ctx, "share")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	_, err = c.SubmitResponse(ctx, r.ID, []models.ResponseItem{{QuestionID: "why", AnswerText: "too long"}}, "")
	var verr *engine.ValidationError
	if !errors.As(err, &verr) || verr.QuestionID != "color" || verr.Kind != engine.RequiredMissing {
		t.Fatalf("got %v, want required_missing on color", err)
	}
}

func TestListResponsesNeedsToken(t *testing.T) {
	srv, _ := newServer(t)
	ctx := context.Background()
	c := New(srv.URL)
	_, err := c.ListResponses(ctx, "S1")
	var ae *APIError
	if !errors.As(err, &ae) || ae.Status != http.StatusUnauthorized {
		t.Fatalf("got %v, want 401", err)
	}

	token, err := middleware.NewAuth("client-secret").SignToken("U1", "T1", "a@b.co", time.Hour)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	authed := New(srv.URL, WithToken(token))
	r, _ := authed.StartResponse(ctx, "share")
	if err := authed.SaveDraftItems(ctx, r.ID, []models.ResponseItem{{QuestionID: "color", AnswerValue: "red"}}); err != nil {
		t.Fatalf("draft: %v", err)
	}
	if list, _ := authed.ListResponses(ctx, "S1"); len(list) != 0 {
		t.Fatalf("drafts are not listed, got %d", len(list))
	}
	if _, err := authed.SubmitResponse(ctx, r.ID, []models.ResponseItem{{QuestionID: "color", AnswerValue: "red"}}, ""); err != nil {
		t.Fatalf("submit: %v", err)
	}
	list, err := authed.ListResponses(ctx, "S1")
	if err != nil || len(list) != 1 || list[0].ID != r.ID {
		t.Fatalf("list: %v %v", list, err)
	}
}

func TestClosedSurvey(t *testing.T) {
	srv, store := newServer(t)
	ctx := context.Background()
	sv, _ := store.GetSurvey(ctx, "S1")
	sv.Status = models.StatusClosed
	if err := store.UpdateSurvey(ctx, sv); err != nil {
		t.Fatalf("close: %v", err)
	}
	_, err := New(srv.URL).StartResponse(ctx, "share")
	if !IsClosed(err) {
		t.Fatalf("got %v, want closed", err)
	}
}

func TestUnavailableServer(t *testing.T) {
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer broken.Close()
	ctx := context.Background()
	err := New(broken.URL).SaveDraftItems(ctx, "r1", nil)
	if !errors.Is(err, engine.ErrPersistenceUnavailable) {
		t.Fatalf("got %v, want unavailable", err)
	}

	gone := httptest.NewServer(http.NotFoundHandler())
	url := gone.URL
	gone.Close()
	if _, err := New(url).LoadSurvey(ctx, "x"); !errors.Is(err, engine.ErrPersistenceUnavailable) {
		t.Fatalf("got %v, want unavailable for refused connection", err)
	}
}
