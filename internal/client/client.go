// Package client talks to the Surveyor HTTP API. Client satisfies
// engine.Persistence so a Controller can run against a remote server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/soaringjerry/Surveyor/internal/engine"
	"github.com/soaringjerry/Surveyor/internal/models"
)

// APIError is a non-2xx reply that does not map to an engine sentinel.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("api: status %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("api: %s (%d): %s", e.Code, e.Status, e.Message)
}

type Client struct {
	base   string
	http   *http.Client
	token  string
	locale string
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option { return func(c *Client) { c.http = h } }

// WithToken sets the bearer token used for authoring and reporting calls.
func WithToken(token string) Option { return func(c *Client) { c.token = token } }

// WithLocale sends Accept-Language so server messages come back localized.
func WithLocale(locale string) Option { return func(c *Client) { c.locale = locale } }

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		base: strings.TrimRight(baseURL, "/"),
		http: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ engine.Persistence = (*Client)(nil)

// Login exchanges author credentials for a token and keeps it on the client.
func (c *Client) Login(ctx context.Context, email, password string) error {
	var out struct {
		Token string `json:"token"`
	}
	body := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, "/api/auth/login", body, &out); err != nil {
		return err
	}
	c.token = out.Token
	return nil
}

// LoadSurvey fetches the public definition behind a share id.
func (c *Client) LoadSurvey(ctx context.Context, shareID string) (*models.Survey, error) {
	var sv models.Survey
	if err := c.do(ctx, http.MethodGet, "/api/public/surveys/"+url.PathEscape(shareID), nil, &sv); err != nil {
		return nil, err
	}
	return &sv, nil
}

func (c *Client) StartResponse(ctx context.Context, shareID string) (*models.Response, error) {
	var r models.Response
	if err := c.do(ctx, http.MethodPost, "/api/public/surveys/"+url.PathEscape(shareID)+"/responses", struct{}{}, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

type itemsRequest struct {
	Items    []models.ResponseItem `json:"items"`
	Identity string                `json:"identity,omitempty"`
}

func (c *Client) SaveDraftItems(ctx context.Context, responseID string, items []models.ResponseItem) error {
	return c.do(ctx, http.MethodPut, "/api/responses/"+url.PathEscape(responseID)+"/items", itemsRequest{Items: items}, nil)
}

func (c *Client) SubmitResponse(ctx context.Context, responseID string, items []models.ResponseItem, identity string) (*models.Response, error) {
	var r models.Response
	req := itemsRequest{Items: items, Identity: identity}
	if err := c.do(ctx, http.MethodPost, "/api/responses/"+url.PathEscape(responseID)+"/submit", req, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// ListResponses needs an author token.
func (c *Client) ListResponses(ctx context.Context, surveyID string) ([]*models.Response, error) {
	var out struct {
		Responses []*models.Response `json:"responses"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/surveys/"+url.PathEscape(surveyID)+"/responses", nil, &out); err != nil {
		return nil, err
	}
	return out.Responses, nil
}

type errorBody struct {
	Code       string `json:"code"`
	Error      string `json:"error"`
	QuestionID string `json:"question_id"`
	Kind       string `json:"kind"`
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.locale != "" {
		req.Header.Set("Accept-Language", c.locale)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: %v", engine.ErrPersistenceUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil || resp.StatusCode == http.StatusNoContent {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%w: decode response: %v", engine.ErrPersistenceUnavailable, err)
		}
		return nil
	}
	return decodeError(resp)
}

// decodeError maps an error reply onto engine sentinels where the
// Controller needs to tell them apart.
func decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var eb errorBody
	if err := json.Unmarshal(raw, &eb); err != nil {
		eb.Error = strings.TrimSpace(string(raw))
	}
	switch {
	case resp.StatusCode == http.StatusConflict && eb.Code == "duplicate_submission":
		return fmt.Errorf("%w: %s", engine.ErrDuplicateSubmission, eb.Error)
	case resp.StatusCode == http.StatusUnprocessableEntity && eb.QuestionID != "":
		return &engine.ValidationError{QuestionID: eb.QuestionID, Kind: engine.ErrorKind(eb.Kind)}
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: status %d: %s", engine.ErrPersistenceUnavailable, resp.StatusCode, eb.Error)
	}
	return &APIError{Status: resp.StatusCode, Code: eb.Code, Message: eb.Error}
}

// IsClosed reports whether err says the survey no longer takes responses.
func IsClosed(err error) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.Status == http.StatusGone
}
