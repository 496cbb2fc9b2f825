package services

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// utf8BOM makes spreadsheet applications detect UTF-8.
const utf8BOM = "\ufeff"

type LongRow struct {
	ResponseID    string
	QuestionLabel string
	QuestionID    string
	Value         string
	Text          string
	SubmittedAt   string
}

type SummaryRow struct {
	Label         string
	Title         string
	ResponseCount int
	Average       *float64
	ValueCounts   map[string]int
}

// ExportResponsesCSV renders one row per response under the given header.
func ExportResponsesCSV(header []string, rows [][]string) ([]byte, error) {
	buf := &bytes.Buffer{}
	buf.WriteString(utf8BOM)
	w := csv.NewWriter(buf)
	if err := w.Write(header); err != nil {
		return nil, err
	}
	for _, r := range rows {
		if err := w.Write(r); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

// ExportLongCSV renders one row per answered item.
func ExportLongCSV(rows []LongRow) ([]byte, error) {
	buf := &bytes.Buffer{}
	buf.WriteString(utf8BOM)
	w := csv.NewWriter(buf)
	_ = w.Write([]string{"response_id", "question", "question_id", "answer_value", "answer_text", "submitted_at"})
	for _, r := range rows {
		rec := []string{r.ResponseID, r.QuestionLabel, r.QuestionID, r.Value, r.Text, r.SubmittedAt}
		if err := w.Write(rec); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

// ExportSummaryCSV renders the total followed by one row per question value.
// Averages are rounded to two decimal places.
func ExportSummaryCSV(total int, rows []SummaryRow) ([]byte, error) {
	buf := &bytes.Buffer{}
	buf.WriteString(utf8BOM)
	w := csv.NewWriter(buf)
	_ = w.Write([]string{"total_responses", strconv.Itoa(total)})
	_ = w.Write([]string{"question", "title", "response_count", "average", "value", "count"})
	for _, r := range rows {
		avg := ""
		if r.Average != nil {
			avg = RoundAverage(*r.Average)
		}
		base := []string{r.Label, r.Title, strconv.Itoa(r.ResponseCount), avg}
		keys := make([]string, 0, len(r.ValueCounts))
		for k := range r.ValueCounts {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		if len(keys) == 0 {
			if err := w.Write(append(base, "", "")); err != nil {
				return nil, err
			}
			continue
		}
		for _, k := range keys {
			rec := append(append([]string{}, base...), k, strconv.Itoa(r.ValueCounts[k]))
			if err := w.Write(rec); err != nil {
				return nil, err
			}
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

// RoundAverage formats an average rounded half away from zero to two places.
func RoundAverage(v float64) string {
	return decimal.NewFromFloat(v).Round(2).String()
}

// FormatCell renders an answer for a spreadsheet cell. Free text wins over
// the value; lists are comma joined and likert rows are JSON.
func FormatCell(value any, text string) string {
	if text != "" {
		return text
	}
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case []any:
		parts := make([]string, 0, len(v))
		for _, el := range v {
			parts = append(parts, FormatCell(el, ""))
		}
		return strings.Join(parts, ", ")
	case []string:
		return strings.Join(v, ", ")
	}
	buf := &bytes.Buffer{}
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(value); err != nil {
		return ""
	}
	return strings.TrimRight(buf.String(), "\n")
}
