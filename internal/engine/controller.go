package engine

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"

	"github.com/soaringjerry/Surveyor/internal/models"
)

// Phase is the state of a respondent session.
type Phase int

const (
	PhaseIntro Phase = iota
	PhasePaging
	PhaseSubmitting
	PhaseSubmitted
	PhaseError
)

func (p Phase) String() string {
	switch p {
	case PhaseIntro:
		return "intro"
	case PhasePaging:
		return "paging"
	case PhaseSubmitting:
		return "submitting"
	case PhaseSubmitted:
		return "submitted"
	case PhaseError:
		return "error"
	}
	return "unknown"
}

var (
	// ErrDuplicateSubmission is returned by Persistence when the respondent
	// identity already has a complete response for the survey.
	ErrDuplicateSubmission = errors.New("duplicate submission")
	// ErrPersistenceUnavailable wraps transport or storage failures.
	ErrPersistenceUnavailable = errors.New("persistence unavailable")

	ErrWrongPhase       = errors.New("action not allowed in current phase")
	ErrSubmitInFlight   = errors.New("submit already in flight")
	ErrAlreadySubmitted = errors.New("response already submitted")
	ErrNotAtEnd         = errors.New("submit is only available on the last question")
)

// Persistence is the storage boundary a Controller writes through.
type Persistence interface {
	// SaveDraftItems replaces the in-progress answers of a response.
	SaveDraftItems(ctx context.Context, responseID string, items []models.ResponseItem) error
	// SubmitResponse finalizes a response. identity is forwarded untouched
	// for duplicate prevention.
	SubmitResponse(ctx context.Context, responseID string, items []models.ResponseItem, identity string) (*models.Response, error)
}

type Option func(*Controller)

// WithLogger sets the logger used for swallowed autosave failures.
func WithLogger(l *log.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithAnswers seeds the session with previously saved answers.
func WithAnswers(answers models.Answers) Option {
	return func(c *Controller) {
		for id, a := range answers {
			if !a.Empty() {
				c.answers[id] = a
			}
		}
	}
}

// Controller owns the answer set and paging position of one respondent
// session. All mutations are serialized through it; the only suspension
// points are the autosave on Advance and Submit.
type Controller struct {
	mu         sync.Mutex
	survey     *models.Survey
	responseID string
	store      Persistence
	logger     *log.Logger
	numbering  *Numbering

	answers models.Answers
	visible []*models.Question
	phase   Phase
	index   int

	errQuestion string
	errKind     ErrorKind

	result  *models.Response
	lastErr error

	autosave sync.WaitGroup

	// Draft ordering. landedSeq is the newest snapshot known to be stored.
	saveMu    sync.Mutex
	draftSeq  uint64
	draft     []models.ResponseItem
	landedSeq uint64
}

func NewController(survey *models.Survey, responseID string, store Persistence, opts ...Option) *Controller {
	c := &Controller{
		survey:     survey,
		responseID: responseID,
		store:      store,
		logger:     log.Default(),
		numbering:  NewNumbering(survey),
		answers:    models.Answers{},
		phase:      PhasePaging,
	}
	for _, opt := range opts {
		opt(c)
	}
	if survey != nil && strings.TrimSpace(survey.IntroContent) != "" {
		c.phase = PhaseIntro
	}
	c.refreshLocked()
	return c
}

func (c *Controller) ResponseID() string { return c.responseID }

func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// DismissIntro leaves the intro page and starts paging at the first visible question.
func (c *Controller) DismissIntro() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase != PhaseIntro {
		return ErrWrongPhase
	}
	c.phase = PhasePaging
	c.index = 0
	c.refreshLocked()
	return nil
}

// SetAnswer records a for the question. An empty answer clears the field.
// The visible list is recomputed and the position clamped to it; nothing is
// re-validated.
func (c *Controller) SetAnswer(questionID string, a models.Answer) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase != PhasePaging && c.phase != PhaseIntro {
		return ErrWrongPhase
	}
	if a.Empty() {
		delete(c.answers, questionID)
	} else {
		c.answers[questionID] = a
	}
	if c.errQuestion == questionID {
		c.clearErrorLocked()
	}
	c.refreshLocked()
	return nil
}

func (c *Controller) ClearAnswer(questionID string) error {
	return c.SetAnswer(questionID, models.Answer{})
}

func (c *Controller) Answer(questionID string) (models.Answer, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	a, ok := c.answers[questionID]
	return a, ok
}

// Answers returns a copy of the full local answer set, stale answers of
// hidden questions included.
func (c *Controller) Answers() models.Answers {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.answers.Clone()
}

func (c *Controller) Visible() []*models.Question {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*models.Question(nil), c.visible...)
}

func (c *Controller) Index() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.index
}

// Current returns the question at the paging position, or nil when nothing is visible.
func (c *Controller) Current() *models.Question {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentLocked()
}

func (c *Controller) CurrentLabel() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if q := c.currentLocked(); q != nil {
		return c.numbering.Label(q.ID)
	}
	return ""
}

// Label returns the stable label of any question in the survey.
func (c *Controller) Label(questionID string) string {
	return c.numbering.Label(questionID)
}

// CurrentError returns the validation error shown for the current question.
func (c *Controller) CurrentError() (ErrorKind, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	q := c.currentLocked()
	if q == nil || c.errQuestion != q.ID || c.errKind == "" {
		return "", false
	}
	return c.errKind, true
}

func (c *Controller) CanRetreat() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase == PhasePaging && c.index > 0
}

func (c *Controller) CanAdvance() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase == PhasePaging && c.index < len(c.visible)-1
}

func (c *Controller) IsLast() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isLastLocked()
}

func (c *Controller) CanSubmit() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase == PhasePaging && c.isLastLocked()
}

// Advance validates the current question and moves to the next one. When
// the survey allows edits the full answer set is autosaved in the background;
// a failed autosave is logged and never blocks paging. On the last question
// Advance only validates, leaving Submit as the next step.
func (c *Controller) Advance(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase != PhasePaging {
		return ErrWrongPhase
	}
	q := c.currentLocked()
	if q == nil {
		return nil
	}
	if err := c.validateLocked(q); err != nil {
		return err
	}
	if c.survey.AllowEdit {
		c.autosaveLocked(ctx)
	}
	if c.index < len(c.visible)-1 {
		c.index++
	}
	return nil
}

// Retreat moves back one question without validating or saving.
func (c *Controller) Retreat() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase != PhasePaging {
		return ErrWrongPhase
	}
	if c.index > 0 {
		c.index--
	}
	return nil
}

// Submit validates the last question and hands the visible, non-empty answers
// to the store. A duplicate rejection ends the session in PhaseError; any
// other failure returns to paging at the last question so the caller can retry.
func (c *Controller) Submit(ctx context.Context, identity string) (*models.Response, error) {
	c.mu.Lock()
	switch c.phase {
	case PhaseSubmitting:
		c.mu.Unlock()
		return nil, ErrSubmitInFlight
	case PhaseSubmitted:
		c.mu.Unlock()
		return nil, ErrAlreadySubmitted
	case PhaseError:
		err := c.lastErr
		c.mu.Unlock()
		return nil, err
	case PhaseIntro:
		c.mu.Unlock()
		return nil, ErrWrongPhase
	}
	if !c.isLastLocked() {
		c.mu.Unlock()
		return nil, ErrNotAtEnd
	}
	if c.store == nil {
		c.mu.Unlock()
		return nil, ErrPersistenceUnavailable
	}
	if q := c.currentLocked(); q != nil {
		if err := c.validateLocked(q); err != nil {
			c.mu.Unlock()
			return nil, err
		}
	}
	items := c.payloadLocked()
	c.phase = PhaseSubmitting
	c.mu.Unlock()

	c.autosave.Wait()
	resp, err := c.store.SubmitResponse(ctx, c.responseID, items, identity)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.lastErr = err
		if errors.Is(err, ErrDuplicateSubmission) {
			c.phase = PhaseError
			return nil, err
		}
		c.phase = PhasePaging
		c.index = max(len(c.visible)-1, 0)
		return nil, err
	}
	c.phase = PhaseSubmitted
	c.result = resp
	c.lastErr = nil
	return resp, nil
}

// Result is the stored response after a successful Submit.
func (c *Controller) Result() *models.Response {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.result
}

// Err is the last Submit failure, if any.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Payload lists the items Submit would send: answers of currently visible
// questions only, in visible order. Answers of hidden questions stay in the
// local set but are left out.
func (c *Controller) Payload() []models.ResponseItem {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.payloadLocked()
}

// WaitAutosave blocks until background autosaves have finished.
func (c *Controller) WaitAutosave() {
	c.autosave.Wait()
}

func (c *Controller) refreshLocked() {
	c.visible = ResolveVisible(c.survey, c.answers)
	if c.index >= len(c.visible) {
		c.index = max(len(c.visible)-1, 0)
	}
}

func (c *Controller) currentLocked() *models.Question {
	if c.phase == PhaseIntro || c.index >= len(c.visible) {
		return nil
	}
	return c.visible[c.index]
}

func (c *Controller) isLastLocked() bool {
	return c.index >= len(c.visible)-1
}

func (c *Controller) validateLocked(q *models.Question) error {
	var ans *models.Answer
	if a, ok := c.answers[q.ID]; ok {
		ans = &a
	}
	if errs := Validate(q, ans); len(errs) > 0 {
		c.errQuestion = q.ID
		c.errKind = errs[0]
		return &ValidationError{QuestionID: q.ID, Kind: errs[0]}
	}
	if c.errQuestion == q.ID {
		c.clearErrorLocked()
	}
	return nil
}

func (c *Controller) clearErrorLocked() {
	c.errQuestion = ""
	c.errKind = ""
}

func (c *Controller) payloadLocked() []models.ResponseItem {
	items := make([]models.ResponseItem, 0, len(c.visible))
	for _, q := range c.visible {
		if a, ok := c.answers[q.ID]; ok && !a.Empty() {
			items = append(items, models.ResponseItem{QuestionID: q.ID, AnswerValue: a.Value, AnswerText: a.Text})
		}
	}
	return items
}

// draftItemsLocked lists every non-empty local answer in survey order.
func (c *Controller) draftItemsLocked() []models.ResponseItem {
	var items []models.ResponseItem
	for _, q := range AllQuestions(c.survey) {
		if a, ok := c.answers[q.ID]; ok && !a.Empty() {
			items = append(items, models.ResponseItem{QuestionID: q.ID, AnswerValue: a.Value, AnswerText: a.Text})
		}
	}
	return items
}

func (c *Controller) autosaveLocked(ctx context.Context) {
	if c.store == nil {
		return
	}
	items := c.draftItemsLocked()
	c.saveMu.Lock()
	c.draftSeq++
	seq := c.draftSeq
	c.draft = items
	c.saveMu.Unlock()

	ctx = context.WithoutCancel(ctx)
	c.autosave.Add(1)
	go func() {
		defer c.autosave.Done()
		c.saveDraft(ctx, seq, items)
	}()
}

// saveDraft writes one snapshot. Saves run concurrently, so a snapshot that
// lands after a newer one has been stored is followed by a rewrite of the
// newest snapshot.
func (c *Controller) saveDraft(ctx context.Context, seq uint64, items []models.ResponseItem) {
	for {
		if err := c.store.SaveDraftItems(ctx, c.responseID, items); err != nil {
			c.logger.Printf("flow: autosave response %s: %v", c.responseID, err)
			return
		}
		c.saveMu.Lock()
		if seq >= c.landedSeq {
			c.landedSeq = seq
			c.saveMu.Unlock()
			return
		}
		seq, items = c.draftSeq, c.draft
		c.saveMu.Unlock()
	}
}
