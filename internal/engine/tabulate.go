package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/soaringjerry/Surveyor/internal/models"
)

// accumulator reduces the items of one question. Accumulators of disjoint
// response ranges combine with merge, in range order.
type accumulator struct {
	count  int
	values map[string]int
	texts  []string
	sum    float64
	n      int
}

func newAccumulator() *accumulator {
	return &accumulator{values: map[string]int{}}
}

func (a *accumulator) add(q *models.Question, item models.ResponseItem) {
	contributed := false
	value := normalize(item.AnswerValue)
	if q.Type.IsText() {
		if s, ok := value.(string); ok {
			if item.AnswerText == "" && s != "" {
				a.texts = append(a.texts, s)
				contributed = true
			}
			value = nil
		}
	}
	if q.Type == models.Number {
		if s, ok := value.(string); ok {
			if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
				value = f
			}
		}
	}
	switch v := value.(type) {
	case nil:
	case []any:
		for _, el := range v {
			if el == nil {
				continue
			}
			a.values[stringify(el)]++
			contributed = true
		}
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			el := v[k]
			if el == nil {
				continue
			}
			a.values[k+":"+stringify(el)]++
			if f, ok := el.(float64); ok {
				a.sum += f
				a.n++
			}
			contributed = true
		}
	case float64:
		a.values[stringify(v)]++
		a.sum += v
		a.n++
		contributed = true
	case string:
		if v != "" {
			a.values[v]++
			contributed = true
		}
	default:
		a.values[stringify(v)]++
		contributed = true
	}
	if item.AnswerText != "" {
		a.texts = append(a.texts, item.AnswerText)
		contributed = true
	}
	if contributed {
		a.count++
	}
}

func (a *accumulator) merge(b *accumulator) {
	a.count += b.count
	for k, v := range b.values {
		a.values[k] += v
	}
	a.texts = append(a.texts, b.texts...)
	a.sum += b.sum
	a.n += b.n
}

func (a *accumulator) statistic() *models.QuestionStatistic {
	st := &models.QuestionStatistic{
		ResponseCount: a.count,
		ValueCounts:   make(map[string]int, len(a.values)),
		TextResponses: append([]string{}, a.texts...),
	}
	for k, v := range a.values {
		st.ValueCounts[k] = v
	}
	if a.n > 0 {
		avg := a.sum / float64(a.n)
		st.Average = &avg
	}
	return st
}

// stringify renders a value as a value_counts key. Integral numbers print
// without a fraction so 4 and 4.0 share a key.
func stringify(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case nil:
		return ""
	}
	if b, err := json.Marshal(v); err == nil {
		return string(b)
	}
	return fmt.Sprint(v)
}

func reduce(questions map[string]*models.Question, responses []*models.Response) map[string]*accumulator {
	acc := make(map[string]*accumulator, len(questions))
	for id := range questions {
		acc[id] = newAccumulator()
	}
	for _, r := range responses {
		if r == nil {
			continue
		}
		for _, item := range r.Items {
			q, ok := questions[item.QuestionID]
			if !ok {
				continue
			}
			acc[item.QuestionID].add(q, item)
		}
	}
	return acc
}

func questionIndex(survey *models.Survey) map[string]*models.Question {
	out := map[string]*models.Question{}
	for _, q := range AllQuestions(survey) {
		out[q.ID] = q
	}
	return out
}

func finish(acc map[string]*accumulator) map[string]*models.QuestionStatistic {
	out := make(map[string]*models.QuestionStatistic, len(acc))
	for id, a := range acc {
		out[id] = a.statistic()
	}
	return out
}

// Tabulate reduces responses into per-question statistics. Every question of
// the survey gets an entry, permanently hidden ones included; items for
// questions no longer in the survey are ignored. The inputs are not modified
// and repeated calls return equal results.
func Tabulate(survey *models.Survey, responses []*models.Response) map[string]*models.QuestionStatistic {
	return finish(reduce(questionIndex(survey), responses))
}

// TabulateParallel computes the same statistics as Tabulate by reducing
// contiguous shards of responses concurrently and merging them in shard
// order, which keeps text responses in response order.
func TabulateParallel(ctx context.Context, survey *models.Survey, responses []*models.Response, shards int) (map[string]*models.QuestionStatistic, error) {
	questions := questionIndex(survey)
	if shards <= 1 || len(responses) < 2 {
		return finish(reduce(questions, responses)), nil
	}
	if shards > len(responses) {
		shards = len(responses)
	}
	size := (len(responses) + shards - 1) / shards
	parts := make([]map[string]*accumulator, shards)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < shards; i++ {
		lo := i * size
		hi := min(lo+size, len(responses))
		if lo >= hi {
			parts[i] = reduce(questions, nil)
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			parts[i] = reduce(questions, responses[lo:hi])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	total := parts[0]
	for _, p := range parts[1:] {
		for id, a := range p {
			total[id].merge(a)
		}
	}
	return finish(total), nil
}
