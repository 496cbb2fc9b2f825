package api

import (
	"encoding/json"
	"errors"
	"log"
	"net"
	"net/http"
	"strings"

	"github.com/soaringjerry/Surveyor/internal/engine"
	"github.com/soaringjerry/Surveyor/internal/middleware"
	"github.com/soaringjerry/Surveyor/internal/models"
	"github.com/soaringjerry/Surveyor/internal/services"
	"github.com/soaringjerry/Surveyor/internal/utils"
)

const maxBodyBytes = 1 << 20

type Options struct {
	// Store defaults to an in-memory store.
	Store  Store
	Auth   *middleware.Auth
	Sealer *services.IdentitySealer
	// ParallelThreshold is the response count from which statistics are
	// tabulated in parallel; zero disables sharding.
	ParallelThreshold int
	// CORSOrigins restricts browser callers; empty allows any origin.
	CORSOrigins []string
}

type Router struct {
	store     Store
	auth      *middleware.Auth
	origins   []string
	authSvc   *services.AuthService
	surveys   *services.SurveyService
	responses *services.ResponseService
	analytics *services.AnalyticsService
	exports   *services.ExportService
}

func NewRouter(opts Options) *Router {
	store := opts.Store
	if store == nil {
		store = NewMemoryStore()
	}
	auth := opts.Auth
	if auth == nil {
		auth = middleware.NewAuth("surveyor-dev-secret")
	}
	return &Router{
		store:     store,
		auth:      auth,
		origins:   opts.CORSOrigins,
		authSvc:   services.NewAuthService(store, auth.SignToken),
		surveys:   services.NewSurveyService(store),
		responses: services.NewResponseService(store, opts.Sealer),
		analytics: services.NewAnalyticsService(store, opts.ParallelThreshold),
		exports:   services.NewExportService(store),
	}
}

func (rt *Router) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/auth/register", rt.handleRegister)
	mux.HandleFunc("POST /api/auth/login", rt.handleLogin)

	// authoring
	mux.Handle("GET /api/surveys", rt.authed(rt.handleListSurveys))
	mux.Handle("POST /api/surveys", rt.authed(rt.handleCreateSurvey))
	mux.Handle("GET /api/surveys/{id}", rt.authed(rt.handleGetSurvey))
	mux.Handle("PUT /api/surveys/{id}", rt.authed(rt.handleUpdateSurvey))
	mux.Handle("DELETE /api/surveys/{id}", rt.authed(rt.handleDeleteSurvey))
	mux.Handle("POST /api/surveys/{id}/publish", rt.authed(rt.handlePublish))
	mux.Handle("POST /api/surveys/{id}/close", rt.authed(rt.handleClose))
	mux.Handle("GET /api/surveys/{id}/issues", rt.authed(rt.handleIssues))
	mux.Handle("POST /api/surveys/{id}/sections", rt.authed(rt.handleCreateSection))
	mux.Handle("PUT /api/surveys/{id}/sections/order", rt.authed(rt.handleReorderSections))
	mux.Handle("PUT /api/surveys/{id}/sections/{sectionID}", rt.authed(rt.handleUpdateSection))
	mux.Handle("DELETE /api/surveys/{id}/sections/{sectionID}", rt.authed(rt.handleDeleteSection))
	mux.Handle("POST /api/surveys/{id}/sections/{sectionID}/questions", rt.authed(rt.handleCreateQuestion))
	mux.Handle("PUT /api/surveys/{id}/sections/{sectionID}/questions/order", rt.authed(rt.handleReorderQuestions))
	mux.Handle("PUT /api/surveys/{id}/questions/{questionID}", rt.authed(rt.handleUpdateQuestion))
	mux.Handle("DELETE /api/surveys/{id}/questions/{questionID}", rt.authed(rt.handleDeleteQuestion))
	mux.Handle("GET /api/audit", rt.authed(rt.handleAudit))

	// reporting
	mux.Handle("GET /api/surveys/{id}/responses", rt.authed(rt.handleListResponses))
	mux.Handle("GET /api/responses/{id}", rt.authed(rt.handleGetResponse))
	mux.Handle("GET /api/surveys/{id}/statistics", rt.authed(rt.handleStatistics))
	mux.Handle("GET /api/surveys/{id}/export", rt.authed(rt.handleExport))

	// respondent
	mux.HandleFunc("GET /api/public/surveys/{shareID}", rt.handlePublicSurvey)
	mux.HandleFunc("POST /api/public/surveys/{shareID}/responses", rt.handleStartResponse)
	mux.HandleFunc("PUT /api/responses/{id}/items", rt.handleSaveDraft)
	mux.HandleFunc("POST /api/responses/{id}/submit", rt.handleSubmit)
}

// Handler returns the API mux wrapped in the standard middleware chain.
func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	rt.Register(mux)
	return Wrap(rt.auth, rt.origins, mux)
}

// Wrap applies the middleware chain every response goes through.
func Wrap(auth *middleware.Auth, origins []string, h http.Handler) http.Handler {
	return middleware.SecureHeaders(middleware.CORS(origins)(middleware.NoStore(middleware.LocaleMiddleware(auth.WithAuth(h)))))
}

func (rt *Router) authed(fn http.HandlerFunc) http.Handler {
	return middleware.RequireAuth(fn)
}

func tenantID(r *http.Request) string {
	tid, _ := middleware.TenantIDFromContext(r.Context())
	return tid
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Code: string(services.ErrorInvalid), Error: "invalid json: " + err.Error()})
		return false
	}
	return true
}

type errorBody struct {
	Code       string `json:"code"`
	Error      string `json:"error"`
	QuestionID string `json:"question_id,omitempty"`
	Kind       string `json:"kind,omitempty"`
}

// writeError maps service and engine errors to statuses. Anything else is a
// 500 and is logged, not echoed.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	locale := middleware.LocaleFromContext(r.Context())
	var verr *engine.ValidationError
	if errors.As(err, &verr) {
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{
			Code:       "validation_failed",
			Error:      utils.T(locale, verr.Kind.MessageKey()),
			QuestionID: verr.QuestionID,
			Kind:       string(verr.Kind),
		})
		return
	}
	if se, ok := services.AsServiceError(err); ok {
		status := http.StatusBadRequest
		msg := se.Message
		switch se.Code {
		case services.ErrorUnauthorized:
			status = http.StatusUnauthorized
		case services.ErrorForbidden:
			status = http.StatusForbidden
		case services.ErrorNotFound:
			status = http.StatusNotFound
		case services.ErrorConflict:
			status = http.StatusConflict
		case services.ErrorDuplicate:
			status = http.StatusConflict
			msg = utils.T(locale, "error."+string(se.Code))
		case services.ErrorClosed:
			status = http.StatusGone
			msg = utils.T(locale, "error."+string(se.Code))
		}
		writeJSON(w, status, errorBody{Code: string(se.Code), Error: msg})
		return
	}
	if errors.Is(err, engine.ErrPersistenceUnavailable) {
		log.Printf("api: %s %s: %v", r.Method, r.URL.Path, err)
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Code: "unavailable", Error: "storage unavailable"})
		return
	}
	log.Printf("api: %s %s: %v", r.Method, r.URL.Path, err)
	writeJSON(w, http.StatusInternalServerError, errorBody{Code: "internal", Error: "internal error"})
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// POST /api/auth/register
func (rt *Router) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email      string `json:"email"`
		Password   string `json:"password"`
		TenantName string `json:"tenant_name"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := rt.authSvc.Register(r.Context(), req.Email, req.Password, req.TenantName)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"token": res.Token, "tenant_id": res.TenantID, "user_id": res.UserID})
}

// POST /api/auth/login
func (rt *Router) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := rt.authSvc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": res.Token, "tenant_id": res.TenantID, "user_id": res.UserID})
}

// GET /api/surveys?status=
func (rt *Router) handleListSurveys(w http.ResponseWriter, r *http.Request) {
	list, err := rt.surveys.ListSurveys(r.Context(), tenantID(r), r.URL.Query().Get("status"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"surveys": list})
}

func (rt *Router) handleCreateSurvey(w http.ResponseWriter, r *http.Request) {
	var in services.SurveyInput
	if !decodeJSON(w, r, &in) {
		return
	}
	sv, err := rt.surveys.CreateSurvey(r.Context(), tenantID(r), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sv)
}

func (rt *Router) handleGetSurvey(w http.ResponseWriter, r *http.Request) {
	sv, err := rt.surveys.GetSurvey(r.Context(), tenantID(r), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sv)
}

func (rt *Router) handleUpdateSurvey(w http.ResponseWriter, r *http.Request) {
	var in services.SurveyInput
	if !decodeJSON(w, r, &in) {
		return
	}
	sv, err := rt.surveys.UpdateSurvey(r.Context(), tenantID(r), r.PathValue("id"), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sv)
}

func (rt *Router) handleDeleteSurvey(w http.ResponseWriter, r *http.Request) {
	if err := rt.surveys.DeleteSurvey(r.Context(), tenantID(r), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Router) handlePublish(w http.ResponseWriter, r *http.Request) {
	sv, err := rt.surveys.PublishSurvey(r.Context(), tenantID(r), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sv)
}

func (rt *Router) handleClose(w http.ResponseWriter, r *http.Request) {
	sv, err := rt.surveys.CloseSurvey(r.Context(), tenantID(r), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sv)
}

// GET /api/surveys/{id}/issues lists structural problems that make
// questions fail closed for respondents.
func (rt *Router) handleIssues(w http.ResponseWriter, r *http.Request) {
	issues, err := rt.surveys.Issues(r.Context(), tenantID(r), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"issues": issues})
}

func (rt *Router) handleCreateSection(w http.ResponseWriter, r *http.Request) {
	var in services.SectionInput
	if !decodeJSON(w, r, &in) {
		return
	}
	sec, err := rt.surveys.CreateSection(r.Context(), tenantID(r), r.PathValue("id"), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sec)
}

func (rt *Router) handleUpdateSection(w http.ResponseWriter, r *http.Request) {
	var in services.SectionInput
	if !decodeJSON(w, r, &in) {
		return
	}
	sec, err := rt.surveys.UpdateSection(r.Context(), tenantID(r), r.PathValue("id"), r.PathValue("sectionID"), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sec)
}

func (rt *Router) handleDeleteSection(w http.ResponseWriter, r *http.Request) {
	if err := rt.surveys.DeleteSection(r.Context(), tenantID(r), r.PathValue("id"), r.PathValue("sectionID")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type orderRequest struct {
	Order []string `json:"order"`
}

func (rt *Router) handleReorderSections(w http.ResponseWriter, r *http.Request) {
	var req orderRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := rt.surveys.ReorderSections(r.Context(), tenantID(r), r.PathValue("id"), req.Order); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Router) handleCreateQuestion(w http.ResponseWriter, r *http.Request) {
	var in services.QuestionInput
	if !decodeJSON(w, r, &in) {
		return
	}
	q, err := rt.surveys.CreateQuestion(r.Context(), tenantID(r), r.PathValue("id"), r.PathValue("sectionID"), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, q)
}

func (rt *Router) handleReorderQuestions(w http.ResponseWriter, r *http.Request) {
	var req orderRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := rt.surveys.ReorderQuestions(r.Context(), tenantID(r), r.PathValue("id"), r.PathValue("sectionID"), req.Order); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Router) handleUpdateQuestion(w http.ResponseWriter, r *http.Request) {
	var in services.QuestionInput
	if !decodeJSON(w, r, &in) {
		return
	}
	q, err := rt.surveys.UpdateQuestion(r.Context(), tenantID(r), r.PathValue("id"), r.PathValue("questionID"), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

func (rt *Router) handleDeleteQuestion(w http.ResponseWriter, r *http.Request) {
	if err := rt.surveys.DeleteQuestion(r.Context(), tenantID(r), r.PathValue("id"), r.PathValue("questionID")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Router) handleAudit(w http.ResponseWriter, r *http.Request) {
	entries, err := rt.store.ListAudit(r.Context(), tenantID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (rt *Router) handleListResponses(w http.ResponseWriter, r *http.Request) {
	list, err := rt.responses.ListResponses(r.Context(), tenantID(r), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"responses": list})
}

func (rt *Router) handleGetResponse(w http.ResponseWriter, r *http.Request) {
	resp, err := rt.responses.GetResponse(r.Context(), tenantID(r), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (rt *Router) handleStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := rt.analytics.Statistics(r.Context(), tenantID(r), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// GET /api/surveys/{id}/export?format=responses|long|summary
func (rt *Router) handleExport(w http.ResponseWriter, r *http.Request) {
	res, err := rt.exports.ExportCSV(r.Context(), services.ExportParams{
		TenantID: tenantID(r),
		SurveyID: r.PathValue("id"),
		Format:   r.URL.Query().Get("format"),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", res.ContentType)
	w.Header().Set("Content-Disposition", "attachment; filename="+res.Filename)
	_, _ = w.Write(res.Data)
}

func (rt *Router) handlePublicSurvey(w http.ResponseWriter, r *http.Request) {
	sv, err := rt.surveys.PublicSurvey(r.Context(), r.PathValue("shareID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sv)
}

func (rt *Router) handleStartResponse(w http.ResponseWriter, r *http.Request) {
	resp, err := rt.responses.StartResponse(r.Context(), r.PathValue("shareID"), clientIP(r), r.UserAgent())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

type itemsRequest struct {
	Items    []models.ResponseItem `json:"items"`
	Identity string                `json:"identity,omitempty"`
}

// PUT /api/responses/{id}/items replaces the draft items.
func (rt *Router) handleSaveDraft(w http.ResponseWriter, r *http.Request) {
	var req itemsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := rt.responses.SaveDraftItems(r.Context(), r.PathValue("id"), req.Items); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Router) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req itemsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	resp, err := rt.responses.SubmitResponse(r.Context(), r.PathValue("id"), req.Items, req.Identity)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
