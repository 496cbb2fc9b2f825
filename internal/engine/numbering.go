package engine

import (
	"strconv"

	"github.com/soaringjerry/Surveyor/internal/models"
)

// SectionLabel maps a zero-based section index to its letter: 0→A, 1→B, ….
// Past Z the labels continue as AA, AB, … so they stay alphabetic.
func SectionLabel(index int) string {
	if index < 0 {
		return ""
	}
	var buf []byte
	for n := index; ; n = n/26 - 1 {
		buf = append([]byte{byte('A' + n%26)}, buf...)
		if n < 26 {
			break
		}
	}
	return string(buf)
}

// Numbering holds the stable human-facing labels of a survey. Labels depend
// only on the definition: conditional visibility never renumbers, while
// permanently hidden questions are left out entirely.
type Numbering struct {
	labels map[string]string
}

func NewNumbering(survey *models.Survey) *Numbering {
	n := &Numbering{labels: map[string]string{}}
	for si, sec := range OrderedSections(survey) {
		letter := SectionLabel(si)
		ordinal := 0
		for _, q := range OrderedQuestions(sec) {
			if q.IsHidden {
				continue
			}
			ordinal++
			n.labels[q.ID] = letter + strconv.Itoa(ordinal)
		}
	}
	return n
}

// Label returns the label of the question, or "" when it is hidden or unknown.
func (n *Numbering) Label(questionID string) string {
	if n == nil {
		return ""
	}
	return n.labels[questionID]
}

// QuestionLabel is a one-shot form of NewNumbering(survey).Label(q.ID).
func QuestionLabel(survey *models.Survey, q *models.Question) string {
	if q == nil {
		return ""
	}
	return NewNumbering(survey).Label(q.ID)
}
