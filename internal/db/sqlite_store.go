package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/soaringjerry/Surveyor/internal/api"
	"github.com/soaringjerry/Surveyor/internal/models"
	"github.com/soaringjerry/Surveyor/internal/services"
)

type SQLiteStore struct {
	db *sql.DB
}

var _ api.Store = (*SQLiteStore)(nil)

func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, errors.New("nil db")
	}
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	}
	for _, stmt := range pragmas {
		if _, err := db.Exec(stmt); err != nil {
			return nil, fmt.Errorf("apply sqlite pragma %q: %w", stmt, err)
		}
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) logErr(prefix string, err error) {
	if err != nil {
		log.Printf("sqlite store: %s: %v", prefix, err)
	}
}

func boolToInt64(v bool) int64 {
	if v {
		return 1
	}
	return 0
}

func int64ToBool(v int64) bool { return v != 0 }

func toNullString(s string) sql.NullString {
	if strings.TrimSpace(s) == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func parseTime(v string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		log.Printf("sqlite store: parse time %q: %v", v, err)
	}
	return t
}

// encodeJSON stores nil pointers and nil values as NULL.
func encodeJSON[T any](v *T) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func decodeJSON[T any](ns sql.NullString, what string) *T {
	if !ns.Valid || strings.TrimSpace(ns.String) == "" {
		return nil
	}
	var out T
	if err := json.Unmarshal([]byte(ns.String), &out); err != nil {
		log.Printf("sqlite store: decode %s: %v", what, err)
		return nil
	}
	return &out
}

func encodeValue(v any) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	return encodeJSON(&v)
}

func decodeValue(ns sql.NullString) any {
	if v := decodeJSON[any](ns, "answer value"); v != nil {
		return *v
	}
	return nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func rollback(tx *sql.Tx) {
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		log.Printf("sqlite store: rollback: %v", err)
	}
}

// --- Surveys ---

const surveyColumns = `id, tenant_id, title, description, intro_content, status, share_id, allow_edit, duplicate_prevention, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSurvey(row rowScanner) (*models.Survey, error) {
	var sv models.Survey
	var status, created, updated string
	var shareID sql.NullString
	var allowEdit, dup int64
	if err := row.Scan(&sv.ID, &sv.TenantID, &sv.Title, &sv.Description, &sv.IntroContent, &status, &shareID, &allowEdit, &dup, &created, &updated); err != nil {
		return nil, err
	}
	sv.Status = models.SurveyStatus(status)
	sv.ShareID = shareID.String
	sv.AllowEdit = int64ToBool(allowEdit)
	sv.DuplicatePrevention = int64ToBool(dup)
	sv.CreatedAt = parseTime(created)
	sv.UpdatedAt = parseTime(updated)
	return &sv, nil
}

func (s *SQLiteStore) InsertSurvey(ctx context.Context, sv *models.Survey) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO surveys (`+surveyColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sv.ID, sv.TenantID, sv.Title, sv.Description, sv.IntroContent, string(sv.Status), toNullString(sv.ShareID),
		boolToInt64(sv.AllowEdit), boolToInt64(sv.DuplicatePrevention), formatTime(sv.CreatedAt), formatTime(sv.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert survey: %w", err)
	}
	return nil
}

func (s *SQLiteStore) UpdateSurvey(ctx context.Context, sv *models.Survey) error {
	res, err := s.db.ExecContext(ctx, `UPDATE surveys SET title = ?, description = ?, intro_content = ?, status = ?, share_id = ?,
      allow_edit = ?, duplicate_prevention = ?, updated_at = ? WHERE id = ?`,
		sv.Title, sv.Description, sv.IntroContent, string(sv.Status), toNullString(sv.ShareID),
		boolToInt64(sv.AllowEdit), boolToInt64(sv.DuplicatePrevention), formatTime(sv.UpdatedAt), sv.ID)
	if err != nil {
		return fmt.Errorf("update survey: %w", err)
	}
	return expectRow(res, "survey not found")
}

func expectRow(res sql.Result, notFound string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return services.NewNotFoundError(notFound)
	}
	return nil
}

// DeleteSurvey removes the survey with its sections, questions and
// responses.
func (s *SQLiteStore) DeleteSurvey(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer rollback(tx)
	stmts := []string{
		`DELETE FROM response_items WHERE response_id IN (SELECT id FROM responses WHERE survey_id = ?)`,
		`DELETE FROM responses WHERE survey_id = ?`,
		`DELETE FROM questions WHERE section_id IN (SELECT id FROM sections WHERE survey_id = ?)`,
		`DELETE FROM sections WHERE survey_id = ?`,
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt, id); err != nil {
			return fmt.Errorf("delete survey: %w", err)
		}
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM surveys WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete survey: %w", err)
	}
	if err := expectRow(res, "survey not found"); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) GetSurvey(ctx context.Context, id string) (*models.Survey, error) {
	return s.loadSurvey(ctx, `SELECT `+surveyColumns+` FROM surveys WHERE id = ?`, id)
}

func (s *SQLiteStore) GetSurveyByShareID(ctx context.Context, shareID string) (*models.Survey, error) {
	if strings.TrimSpace(shareID) == "" {
		return nil, nil
	}
	return s.loadSurvey(ctx, `SELECT `+surveyColumns+` FROM surveys WHERE share_id = ?`, shareID)
}

// loadSurvey reads one survey with its sections and questions in order.
func (s *SQLiteStore) loadSurvey(ctx context.Context, query string, arg string) (*models.Survey, error) {
	sv, err := scanSurvey(s.db.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get survey: %w", err)
	}
	sections, err := s.listSections(ctx, sv.ID)
	if err != nil {
		return nil, err
	}
	questions, err := s.listQuestions(ctx, sv.ID)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*models.Section, len(sections))
	for _, sec := range sections {
		byID[sec.ID] = sec
	}
	for _, q := range questions {
		if sec := byID[q.SectionID]; sec != nil {
			sec.Questions = append(sec.Questions, q)
		}
	}
	sv.Sections = sections
	return sv, nil
}

func (s *SQLiteStore) listSections(ctx context.Context, surveyID string) ([]*models.Section, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, survey_id, title, description, order_index, conditional_logic
      FROM sections WHERE survey_id = ? ORDER BY order_index, rowid`, surveyID)
	if err != nil {
		return nil, fmt.Errorf("list sections: %w", err)
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			s.logErr("listSections: rows.Close", cerr)
		}
	}()
	out := []*models.Section{}
	for rows.Next() {
		var sec models.Section
		var order int64
		var logic sql.NullString
		if err := rows.Scan(&sec.ID, &sec.SurveyID, &sec.Title, &sec.Description, &order, &logic); err != nil {
			return nil, fmt.Errorf("scan section: %w", err)
		}
		sec.OrderIndex = int(order)
		sec.ConditionalLogic = decodeJSON[models.ConditionalLogic](logic, "section logic")
		sec.Questions = []*models.Question{}
		out = append(out, &sec)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) listQuestions(ctx context.Context, surveyID string) ([]*models.Question, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT q.id, q.section_id, q.type, q.title, q.description, q.required, q.order_index, q.is_hidden,
      q.validation_rules, q.conditional_logic, q.likert_config, q.options
      FROM questions q JOIN sections sec ON sec.id = q.section_id
      WHERE sec.survey_id = ? ORDER BY q.order_index, q.rowid`, surveyID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			s.logErr("listQuestions: rows.Close", cerr)
		}
	}()
	out := []*models.Question{}
	for rows.Next() {
		var q models.Question
		var typ string
		var required, hidden, order int64
		var rules, logic, likert, options sql.NullString
		if err := rows.Scan(&q.ID, &q.SectionID, &typ, &q.Title, &q.Description, &required, &order, &hidden, &rules, &logic, &likert, &options); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		q.Type = models.QuestionType(typ)
		q.Required = int64ToBool(required)
		q.IsHidden = int64ToBool(hidden)
		q.OrderIndex = int(order)
		q.ValidationRules = decodeJSON[models.ValidationRules](rules, "validation rules")
		q.ConditionalLogic = decodeJSON[models.ConditionalLogic](logic, "question logic")
		q.LikertConfig = decodeJSON[models.LikertConfig](likert, "likert config")
		if opts := decodeJSON[[]models.QuestionOption](options, "options"); opts != nil {
			q.Options = *opts
		}
		out = append(out, &q)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) ListSurveys(ctx context.Context, tenantID string, status models.SurveyStatus) ([]*models.Survey, error) {
	query := `SELECT ` + surveyColumns + ` FROM surveys WHERE tenant_id = ?`
	args := []any{tenantID}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at DESC, id`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list surveys: %w", err)
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			s.logErr("ListSurveys: rows.Close", cerr)
		}
	}()
	out := []*models.Survey{}
	for rows.Next() {
		sv, err := scanSurvey(rows)
		if err != nil {
			return nil, fmt.Errorf("scan survey: %w", err)
		}
		out = append(out, sv)
	}
	return out, rows.Err()
}

// --- Sections ---

func (s *SQLiteStore) InsertSection(ctx context.Context, sec *models.Section) error {
	logic, err := encodeJSON(sec.ConditionalLogic)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO sections (id, survey_id, title, description, order_index, conditional_logic) VALUES (?, ?, ?, ?, ?, ?)`,
		sec.ID, sec.SurveyID, sec.Title, sec.Description, sec.OrderIndex, logic)
	if err != nil {
		return fmt.Errorf("insert section: %w", err)
	}
	return nil
}

func (s *SQLiteStore) UpdateSection(ctx context.Context, sec *models.Section) error {
	logic, err := encodeJSON(sec.ConditionalLogic)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `UPDATE sections SET title = ?, description = ?, order_index = ?, conditional_logic = ? WHERE id = ?`,
		sec.Title, sec.Description, sec.OrderIndex, logic, sec.ID)
	if err != nil {
		return fmt.Errorf("update section: %w", err)
	}
	return expectRow(res, "section not found")
}

func (s *SQLiteStore) DeleteSection(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer rollback(tx)
	if _, err := tx.ExecContext(ctx, `DELETE FROM questions WHERE section_id = ?`, id); err != nil {
		return fmt.Errorf("delete section questions: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM sections WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete section: %w", err)
	}
	if err := expectRow(res, "section not found"); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) ReorderSections(ctx context.Context, surveyID string, order []string) error {
	return s.reorder(ctx, `UPDATE sections SET order_index = ? WHERE id = ? AND survey_id = ?`, surveyID, order)
}

func (s *SQLiteStore) reorder(ctx context.Context, stmt, parentID string, order []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer rollback(tx)
	for i, id := range order {
		res, err := tx.ExecContext(ctx, stmt, i, id, parentID)
		if err != nil {
			return fmt.Errorf("reorder: %w", err)
		}
		if err := expectRow(res, "unknown id in order"); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// --- Questions ---

func questionArgs(q *models.Question) ([]any, error) {
	rules, err := encodeJSON(q.ValidationRules)
	if err != nil {
		return nil, err
	}
	logic, err := encodeJSON(q.ConditionalLogic)
	if err != nil {
		return nil, err
	}
	likert, err := encodeJSON(q.LikertConfig)
	if err != nil {
		return nil, err
	}
	var options sql.NullString
	if len(q.Options) > 0 {
		if options, err = encodeJSON(&q.Options); err != nil {
			return nil, err
		}
	}
	return []any{string(q.Type), q.Title, q.Description, boolToInt64(q.Required), q.OrderIndex, boolToInt64(q.IsHidden), rules, logic, likert, options}, nil
}

func (s *SQLiteStore) InsertQuestion(ctx context.Context, q *models.Question) error {
	args, err := questionArgs(q)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO questions (id, section_id, type, title, description, required, order_index, is_hidden,
      validation_rules, conditional_logic, likert_config, options) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		append([]any{q.ID, q.SectionID}, args...)...)
	if err != nil {
		return fmt.Errorf("insert question: %w", err)
	}
	return nil
}

func (s *SQLiteStore) UpdateQuestion(ctx context.Context, q *models.Question) error {
	args, err := questionArgs(q)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `UPDATE questions SET type = ?, title = ?, description = ?, required = ?, order_index = ?, is_hidden = ?,
      validation_rules = ?, conditional_logic = ?, likert_config = ?, options = ? WHERE id = ?`,
		append(args, q.ID)...)
	if err != nil {
		return fmt.Errorf("update question: %w", err)
	}
	return expectRow(res, "question not found")
}

func (s *SQLiteStore) DeleteQuestion(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM questions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete question: %w", err)
	}
	return expectRow(res, "question not found")
}

func (s *SQLiteStore) ReorderQuestions(ctx context.Context, sectionID string, order []string) error {
	return s.reorder(ctx, `UPDATE questions SET order_index = ? WHERE id = ? AND section_id = ?`, sectionID, order)
}

// --- Responses ---

func (s *SQLiteStore) InsertResponse(ctx context.Context, r *models.Response) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer rollback(tx)
	var submitted sql.NullString
	if r.SubmittedAt != nil {
		submitted = sql.NullString{String: formatTime(*r.SubmittedAt), Valid: true}
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO responses (id, survey_id, identity_hash, identity_encrypted, ip_address, user_agent, started_at, submitted_at, is_complete)
      VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.SurveyID, toNullString(r.IdentityHash), toNullString(r.IdentityEncrypted), r.IPAddress, r.UserAgent,
		formatTime(r.StartedAt), submitted, boolToInt64(r.Complete))
	if err != nil {
		if isUniqueViolation(err) && r.Complete && r.IdentityHash != "" {
			return models.ErrDuplicateFingerprint
		}
		return fmt.Errorf("insert response: %w", err)
	}
	if err := writeItems(ctx, tx, r.ID, r.Items); err != nil {
		return err
	}
	return tx.Commit()
}

func writeItems(ctx context.Context, tx *sql.Tx, responseID string, items []models.ResponseItem) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM response_items WHERE response_id = ?`, responseID); err != nil {
		return fmt.Errorf("clear response items: %w", err)
	}
	for i, item := range items {
		value, err := encodeValue(item.AnswerValue)
		if err != nil {
			return fmt.Errorf("encode answer %s: %w", item.QuestionID, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO response_items (response_id, position, question_id, answer_value, answer_text) VALUES (?, ?, ?, ?, ?)
          ON CONFLICT(response_id, question_id) DO UPDATE SET position = excluded.position, answer_value = excluded.answer_value, answer_text = excluded.answer_text`,
			responseID, i, item.QuestionID, value, item.AnswerText); err != nil {
			return fmt.Errorf("insert response item: %w", err)
		}
	}
	return nil
}

const responseColumns = `id, survey_id, identity_hash, identity_encrypted, ip_address, user_agent, started_at, submitted_at, is_complete`

func scanResponse(row rowScanner) (*models.Response, error) {
	var r models.Response
	var hash, sealed, submitted sql.NullString
	var started string
	var complete int64
	if err := row.Scan(&r.ID, &r.SurveyID, &hash, &sealed, &r.IPAddress, &r.UserAgent, &started, &submitted, &complete); err != nil {
		return nil, err
	}
	r.IdentityHash = hash.String
	r.IdentityEncrypted = sealed.String
	r.StartedAt = parseTime(started)
	if submitted.Valid {
		at := parseTime(submitted.String)
		r.SubmittedAt = &at
	}
	r.Complete = int64ToBool(complete)
	return &r, nil
}

func (s *SQLiteStore) GetResponse(ctx context.Context, id string) (*models.Response, error) {
	r, err := scanResponse(s.db.QueryRowContext(ctx, `SELECT `+responseColumns+` FROM responses WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get response: %w", err)
	}
	items, err := s.loadItems(ctx, `SELECT response_id, question_id, answer_value, answer_text FROM response_items WHERE response_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, err
	}
	r.Items = items[id]
	return r, nil
}

func (s *SQLiteStore) loadItems(ctx context.Context, query string, arg string) (map[string][]models.ResponseItem, error) {
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("load response items: %w", err)
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			s.logErr("loadItems: rows.Close", cerr)
		}
	}()
	out := map[string][]models.ResponseItem{}
	for rows.Next() {
		var responseID string
		var item models.ResponseItem
		var value sql.NullString
		if err := rows.Scan(&responseID, &item.QuestionID, &value, &item.AnswerText); err != nil {
			return nil, fmt.Errorf("scan response item: %w", err)
		}
		item.AnswerValue = decodeValue(value)
		out[responseID] = append(out[responseID], item)
	}
	return out, rows.Err()
}

// openResponse fails unless the response exists and is still a draft.
func openResponse(ctx context.Context, tx *sql.Tx, id string) error {
	var complete int64
	err := tx.QueryRowContext(ctx, `SELECT is_complete FROM responses WHERE id = ?`, id).Scan(&complete)
	if errors.Is(err, sql.ErrNoRows) {
		return services.NewNotFoundError("response not found")
	}
	if err != nil {
		return fmt.Errorf("get response: %w", err)
	}
	if complete != 0 {
		return services.NewConflictError("response already submitted")
	}
	return nil
}

func (s *SQLiteStore) ReplaceResponseItems(ctx context.Context, responseID string, items []models.ResponseItem) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer rollback(tx)
	if err := openResponse(ctx, tx, responseID); err != nil {
		return err
	}
	if err := writeItems(ctx, tx, responseID, items); err != nil {
		return err
	}
	return tx.Commit()
}

// CompleteResponse marks the response complete with its final items. The
// partial unique index on (survey_id, identity_hash) rejects a second
// complete response with the same fingerprint.
func (s *SQLiteStore) CompleteResponse(ctx context.Context, r *models.Response) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer rollback(tx)
	if err := openResponse(ctx, tx, r.ID); err != nil {
		return err
	}
	submitted := time.Now().UTC()
	if r.SubmittedAt != nil {
		submitted = *r.SubmittedAt
	}
	_, err = tx.ExecContext(ctx, `UPDATE responses SET identity_hash = ?, identity_encrypted = ?, submitted_at = ?, is_complete = 1 WHERE id = ?`,
		toNullString(r.IdentityHash), toNullString(r.IdentityEncrypted), formatTime(submitted), r.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return models.ErrDuplicateFingerprint
		}
		return fmt.Errorf("complete response: %w", err)
	}
	if err := writeItems(ctx, tx, r.ID, r.Items); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) ListResponses(ctx context.Context, surveyID string, completeOnly bool) ([]*models.Response, error) {
	query := `SELECT ` + responseColumns + ` FROM responses WHERE survey_id = ?`
	if completeOnly {
		query += ` AND is_complete = 1`
	}
	query += ` ORDER BY rowid`
	rows, err := s.db.QueryContext(ctx, query, surveyID)
	if err != nil {
		return nil, fmt.Errorf("list responses: %w", err)
	}
	out := []*models.Response{}
	for rows.Next() {
		r, err := scanResponse(rows)
		if err != nil {
			s.logErr("ListResponses: rows.Close", rows.Close())
			return nil, fmt.Errorf("scan response: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		s.logErr("ListResponses: rows.Close", rows.Close())
		return nil, err
	}
	s.logErr("ListResponses: rows.Close", rows.Close())

	items, err := s.loadItems(ctx, `SELECT i.response_id, i.question_id, i.answer_value, i.answer_text
      FROM response_items i JOIN responses r ON r.id = i.response_id
      WHERE r.survey_id = ? ORDER BY i.response_id, i.position`, surveyID)
	if err != nil {
		return nil, err
	}
	for _, r := range out {
		r.Items = items[r.ID]
	}
	return out, nil
}

// --- Audit ---

func (s *SQLiteStore) AddAudit(e models.AuditEntry) {
	_, err := s.db.Exec(`INSERT INTO audit_log (time, actor, action, target, note) VALUES (?, ?, ?, ?, ?)`,
		formatTime(e.Time), e.Actor, e.Action, e.Target, e.Note)
	s.logErr("AddAudit", err)
}

func (s *SQLiteStore) ListAudit(ctx context.Context, actor string) ([]models.AuditEntry, error) {
	query := `SELECT time, actor, action, target, note FROM audit_log`
	var args []any
	if actor != "" {
		query += ` WHERE actor = ?`
		args = append(args, actor)
	}
	query += ` ORDER BY id`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list audit: %w", err)
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			s.logErr("ListAudit: rows.Close", cerr)
		}
	}()
	out := []models.AuditEntry{}
	for rows.Next() {
		var e models.AuditEntry
		var at string
		if err := rows.Scan(&at, &e.Actor, &e.Action, &e.Target, &e.Note); err != nil {
			return nil, fmt.Errorf("scan audit: %w", err)
		}
		e.Time = parseTime(at)
		out = append(out, e)
	}
	return out, rows.Err()
}

// --- Accounts ---

func (s *SQLiteStore) AddTenant(ctx context.Context, t *models.Tenant) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO tenants (id, name) VALUES (?, ?) ON CONFLICT(id) DO UPDATE SET name = excluded.name`, t.ID, t.Name)
	if err != nil {
		return fmt.Errorf("insert tenant: %w", err)
	}
	return nil
}

func (s *SQLiteStore) AddUser(ctx context.Context, u *models.User) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO users (id, email, pass_hash, tenant_id, created_at) VALUES (?, ?, ?, ?, ?)`,
		u.ID, u.Email, u.PassHash, u.TenantID, formatTime(u.CreatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return services.NewConflictError("email already registered")
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *SQLiteStore) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	var created string
	err := s.db.QueryRowContext(ctx, `SELECT id, email, pass_hash, tenant_id, created_at FROM users WHERE email = ?`, email).
		Scan(&u.ID, &u.Email, &u.PassHash, &u.TenantID, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	u.CreatedAt = parseTime(created)
	return &u, nil
}
