package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/soaringjerry/Surveyor/internal/client"
	"github.com/soaringjerry/Surveyor/internal/config"
	"github.com/soaringjerry/Surveyor/internal/engine"
	"github.com/soaringjerry/Surveyor/internal/models"
	"github.com/soaringjerry/Surveyor/internal/services"
	"github.com/soaringjerry/Surveyor/internal/utils"
)

// Config holds the respondent settings. Flags override the environment.
type Config struct {
	Server   string `env:"SURVEYOR_SERVER_URL" envDefault:"http://127.0.0.1:8080"`
	ShareID  string `env:"SURVEYOR_SHARE_ID"`
	Identity string `env:"SURVEYOR_IDENTITY"`
	Lang     string `env:"SURVEYOR_LANG" envDefault:"en"`
}

// ParseConfig reads the environment, then flags. A single positional
// argument is taken as the share id.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := config.ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.Server, "server", cfg.Server, "Surveyor API base URL")
	fs.StringVar(&cfg.ShareID, "share", cfg.ShareID, "share id of the survey")
	fs.StringVar(&cfg.Identity, "identity", cfg.Identity, "respondent identity for duplicate prevention")
	fs.StringVar(&cfg.Lang, "lang", cfg.Lang, "message language (en, ko)")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	if cfg.ShareID == "" && fs.NArg() > 0 {
		cfg.ShareID = fs.Arg(0)
	}
	if strings.TrimSpace(cfg.ShareID) == "" {
		return Config{}, errors.New("share id is required")
	}
	cfg.Lang = utils.DetermineLocale(cfg.Lang, "", utils.SupportedLocales, "en")
	return cfg, nil
}

var errQuit = errors.New("quit without submitting")

// Run loads the survey behind cfg.ShareID and walks the respondent through
// it, reading answers from in. It returns nil once the response is submitted
// or the respondent quits.
func Run(ctx context.Context, cfg Config, in io.Reader, out io.Writer) error {
	if out == nil {
		return errors.New("output is required")
	}
	c := client.New(cfg.Server, client.WithLocale(cfg.Lang))
	sv, err := c.LoadSurvey(ctx, cfg.ShareID)
	if err != nil {
		return describe(cfg.Lang, fmt.Errorf("load survey: %w", err))
	}
	r, err := c.StartResponse(ctx, cfg.ShareID)
	if err != nil {
		return describe(cfg.Lang, fmt.Errorf("start response: %w", err))
	}
	s := &session{
		survey:   sv,
		ctrl:     engine.NewController(sv, r.ID, c, engine.WithLogger(log.New(out, "", 0))),
		in:       bufio.NewScanner(in),
		out:      out,
		lang:     cfg.Lang,
		identity: strings.TrimSpace(cfg.Identity),
	}
	err = s.run(ctx)
	s.ctrl.WaitAutosave()
	if errors.Is(err, errQuit) {
		return nil
	}
	return err
}

// describe swaps a known API failure for its localized message.
func describe(lang string, err error) error {
	if client.IsClosed(err) {
		return errors.New(utils.T(lang, "error.not_accepting_responses"))
	}
	return err
}

type session struct {
	survey   *models.Survey
	ctrl     *engine.Controller
	in       *bufio.Scanner
	out      io.Writer
	lang     string
	identity string
}

func (s *session) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(s.out, format, args...)
}

func (s *session) readLine() (string, error) {
	if !s.in.Scan() {
		if err := s.in.Err(); err != nil {
			return "", err
		}
		return "", io.ErrUnexpectedEOF
	}
	return strings.TrimSpace(s.in.Text()), nil
}

func (s *session) run(ctx context.Context) error {
	s.printf("%s\n", s.survey.Title)
	if s.survey.Description != "" {
		s.printf("%s\n", s.survey.Description)
	}
	if s.ctrl.Phase() == engine.PhaseIntro {
		s.printf("\n%s\n%s\n", s.survey.IntroContent, utils.T(s.lang, "respond.press_enter"))
		if _, err := s.readLine(); err != nil {
			return err
		}
		if err := s.ctrl.DismissIntro(); err != nil {
			return err
		}
	}
	s.printf("%s\n", utils.T(s.lang, "respond.help"))

	for {
		q := s.ctrl.Current()
		if q == nil {
			return errors.New("survey has no questions to answer")
		}
		s.printQuestion(q)
		line, err := s.readLine()
		if err != nil {
			return err
		}
		switch line {
		case ":quit":
			return errQuit
		case ":back":
			_ = s.ctrl.Retreat()
			continue
		case ":clear":
			_ = s.ctrl.ClearAnswer(q.ID)
			continue
		}
		if line != "" {
			a, err := parseAnswer(q, line)
			if err != nil {
				s.printf("  %s (%v)\n", utils.T(s.lang, "respond.invalid_answer"), err)
				continue
			}
			if err := s.ctrl.SetAnswer(q.ID, a); err != nil {
				return err
			}
		}
		if s.ctrl.Current() != q {
			// The answer changed which questions are visible.
			continue
		}
		if !s.ctrl.IsLast() {
			if err := s.ctrl.Advance(ctx); err != nil {
				s.report(err)
			}
			continue
		}
		done, err := s.submit(ctx)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
}

// submit reports whether the session is over. Validation and transient
// failures keep the respondent on the last question.
func (s *session) submit(ctx context.Context) (bool, error) {
	if s.survey.DuplicatePrevention && s.identity == "" {
		s.printf("%s ", utils.T(s.lang, "respond.identity"))
		id, err := s.readLine()
		if err != nil {
			return false, err
		}
		s.identity = id
	}
	resp, err := s.ctrl.Submit(ctx, s.identity)
	if err != nil {
		s.report(err)
		if s.ctrl.Phase() == engine.PhaseError {
			return true, err
		}
		return false, nil
	}
	s.printf("%s (%s)\n", utils.T(s.lang, "respond.submitted"), resp.ID)
	return true, nil
}

func (s *session) report(err error) {
	var verr *engine.ValidationError
	switch {
	case errors.As(err, &verr):
		s.printf("  %s\n", utils.T(s.lang, verr.Kind.MessageKey()))
	case errors.Is(err, engine.ErrDuplicateSubmission):
		s.printf("  %s\n", utils.T(s.lang, "error.duplicate_submission"))
	case client.IsClosed(err):
		s.printf("  %s\n", utils.T(s.lang, "error.not_accepting_responses"))
	default:
		s.printf("  %v\n", err)
	}
}

func (s *session) printQuestion(q *models.Question) {
	mark := ""
	if q.Required {
		mark = " *"
	}
	s.printf("\n%s. %s%s\n", s.ctrl.CurrentLabel(), q.Title, mark)
	if q.Description != "" {
		s.printf("   %s\n", q.Description)
	}
	switch {
	case q.Type.HasOptions():
		for i, opt := range engine.OrderedOptions(q) {
			label := opt.Label
			if label == "" {
				label = opt.Value
			}
			if opt.AllowOther {
				label += " (add text after \":\")"
			}
			s.printf("   %d) %s\n", i+1, label)
		}
		if q.Type == models.MultipleChoice {
			s.printf("   (numbers separated by commas)\n")
		}
	case q.Type == models.Likert && q.LikertConfig != nil:
		cfg := q.LikertConfig
		for i, label := range cfg.Labels {
			s.printf("   %d = %s\n", cfg.ScaleMin+i, label)
		}
		if len(cfg.Rows) > 0 {
			s.printf("   rows: %s (one value per row)\n", strings.Join(cfg.Rows, " | "))
		}
	case q.Type == models.Date:
		s.printf("   (YYYY-MM-DD)\n")
	}
	if a, ok := s.ctrl.Answer(q.ID); ok {
		s.printf("   [%s]\n", services.FormatCell(a.Value, a.Text))
	}
	s.printf("> ")
}

// parseAnswer turns a typed line into the answer shape the engine expects.
func parseAnswer(q *models.Question, line string) (models.Answer, error) {
	switch {
	case q.Type.HasOptions():
		sel, text, _ := strings.Cut(line, ":")
		text = strings.TrimSpace(text)
		if q.Type == models.MultipleChoice {
			var values []any
			for _, part := range strings.Split(sel, ",") {
				opt, err := pickOption(q, part)
				if err != nil {
					return models.Answer{}, err
				}
				values = append(values, opt.Value)
			}
			return models.Answer{Value: values, Text: text}, nil
		}
		opt, err := pickOption(q, sel)
		if err != nil {
			return models.Answer{}, err
		}
		return models.Answer{Value: opt.Value, Text: text}, nil
	case q.Type == models.Likert:
		rows := 1
		if q.LikertConfig != nil && len(q.LikertConfig.Rows) > 0 {
			rows = len(q.LikertConfig.Rows)
		}
		fields := strings.Fields(line)
		if len(fields) != rows {
			return models.Answer{}, fmt.Errorf("want %d value(s), got %d", rows, len(fields))
		}
		values := make(map[string]any, rows)
		for i, f := range fields {
			v, err := strconv.Atoi(f)
			if err != nil {
				return models.Answer{}, fmt.Errorf("%q is not a scale value", f)
			}
			if cfg := q.LikertConfig; cfg != nil && (v < cfg.ScaleMin || v > cfg.ScaleMax) {
				return models.Answer{}, fmt.Errorf("%d is outside %d..%d", v, cfg.ScaleMin, cfg.ScaleMax)
			}
			values[strconv.Itoa(i)] = float64(v)
		}
		return models.Answer{Value: values}, nil
	case q.Type == models.Number:
		v, err := strconv.ParseFloat(line, 64)
		if err != nil {
			return models.Answer{}, fmt.Errorf("%q is not a number", line)
		}
		return models.Answer{Value: v}, nil
	case q.Type == models.Date:
		if _, err := time.Parse(time.DateOnly, line); err != nil {
			return models.Answer{}, fmt.Errorf("%q is not a date", line)
		}
		return models.Answer{Value: line}, nil
	}
	return models.Answer{Text: line}, nil
}

// pickOption accepts a 1-based option number, counted in display order, or
// an option value.
func pickOption(q *models.Question, sel string) (models.QuestionOption, error) {
	sel = strings.TrimSpace(sel)
	opts := engine.OrderedOptions(q)
	if n, err := strconv.Atoi(sel); err == nil && n >= 1 && n <= len(opts) {
		return opts[n-1], nil
	}
	if opt, ok := q.Option(sel); ok {
		return opt, nil
	}
	return models.QuestionOption{}, fmt.Errorf("no option %q", sel)
}
