// Package grading turns submitted answers into scores: multiple-choice
// answers by exact set comparison, open-ended answers through a language
// model, with manual review as the fallback for anything the model could
// not grade.
package grading

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/errgroup"

	"github.com/pavelanni/quizmark/internal/llm"
	"github.com/pavelanni/quizmark/internal/llm/prompts"
	"github.com/pavelanni/quizmark/internal/metrics"
	"github.com/pavelanni/quizmark/internal/model"
)

// Quota accounts for model calls. Consume returns ErrQuotaExceeded (or an
// error wrapping it) when the call must not be made.
type Quota interface {
	Consume(ctx context.Context, kind model.QuotaKind) error
}

type quotaKey struct{}

// WithQuota scopes q to the grading calls made with ctx. It takes
// precedence over Options.Quota, which lets one Grader serve several
// tenants.
func WithQuota(ctx context.Context, q Quota) context.Context {
	return context.WithValue(ctx, quotaKey{}, q)
}

// QuotaFromContext returns the quota set by WithQuota, or nil.
func QuotaFromContext(ctx context.Context) Quota {
	q, _ := ctx.Value(quotaKey{}).(Quota)
	return q
}

func (g *Grader) quota(ctx context.Context) Quota {
	if q := QuotaFromContext(ctx); q != nil {
		return q
	}
	return g.opts.Quota
}

// Cache stores raw model responses by prompt.
type Cache interface {
	Get(ctx context.Context, prompt string) (string, bool, error)
	Set(ctx context.Context, prompt, response string) error
}

// Options tune a Grader. Zero values pick the defaults.
type Options struct {
	// MaxConcurrent bounds the model calls in flight per submission.
	MaxConcurrent int
	// Timeout bounds each model call.
	Timeout time.Duration
	Quota   Quota
	Cache   Cache
	Metrics *metrics.Metrics
	Now     func() time.Time
}

const (
	defaultMaxConcurrent = 4
	defaultTimeout       = 60 * time.Second
)

// Grader grades submissions. It holds no per-submission state and is safe
// for concurrent use.
type Grader struct {
	completer llm.Completer
	prompts   *prompts.Catalog
	opts      Options
}

// New creates a Grader.
func New(c llm.Completer, catalog *prompts.Catalog, opts Options) *Grader {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = defaultMaxConcurrent
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Grader{completer: c, prompts: catalog, opts: opts}
}

// Grade grades every question of quiz against answers and returns a
// submission in a terminal state: Graded when every answer has a result,
// PartiallyGraded when at least one open-ended answer needs manual review.
//
// The configuration is checked before anything else; an invalid one is a
// *model.ConfigError and no model call is made. Questions without an answer
// are graded as empty answers.
func (g *Grader) Grade(ctx context.Context, quiz *model.Quiz, answers []model.Answer, cfg model.GradingConfig) (*model.Submission, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	byIndex, err := indexAnswers(quiz, answers)
	if err != nil {
		return nil, err
	}

	sub := &model.Submission{
		UID:         ulid.Make().String(),
		Status:      model.StatusPending,
		Grades:      make([]model.AnswerGrade, len(quiz.Questions)),
		SubmittedAt: g.opts.Now(),
	}
	for i, q := range quiz.Questions {
		a := byIndex[i]
		a.QuestionIndex = i
		sub.Grades[i] = model.AnswerGrade{Answer: a, MaxPoints: q.Points}
	}

	g.run(ctx, quiz, sub, cfg, func(int) bool { return true })
	return sub, nil
}

// Retry re-dispatches the open-ended answers of sub that still wait for
// review. Manual and successful grades are left alone.
func (g *Grader) Retry(ctx context.Context, quiz *model.Quiz, sub *model.Submission, cfg model.GradingConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if len(sub.Grades) != len(quiz.Questions) {
		return fmt.Errorf("submission has %d answers, quiz has %d questions", len(sub.Grades), len(quiz.Questions))
	}
	g.run(ctx, quiz, sub, cfg, func(i int) bool { return sub.Grades[i].Result == nil })
	return nil
}

func (g *Grader) run(ctx context.Context, quiz *model.Quiz, sub *model.Submission, cfg model.GradingConfig, include func(int) bool) {
	sub.Status = model.StatusGrading

	var eg errgroup.Group
	eg.SetLimit(g.opts.MaxConcurrent)
	for i, q := range quiz.Questions {
		if !include(i) {
			continue
		}
		slot := &sub.Grades[i]
		switch {
		case q.MultipleChoice != nil:
			res := GradeChoice(q, slot.Answer.Selected)
			slot.Result = &res
		case strings.TrimSpace(slot.Answer.Text) == "":
			slot.Result = &model.GradeResult{Provenance: model.ProvenanceAutomatic}
			slot.NeedsReview = false
		default:
			// Each goroutine writes only its own slot.
			eg.Go(func() error {
				res, err := g.gradeOpen(ctx, q, slot.Answer.Text, cfg)
				if err != nil {
					var f *Failure
					reason := ReasonCall
					if errors.As(err, &f) {
						reason = f.Reason
					}
					slog.Warn("open answer needs manual review",
						"submission", sub.UID, "question", i, "reason", reason, "error", err)
					slot.Result = nil
					slot.NeedsReview = true
					slot.FailureReason = string(reason)
					return nil
				}
				slot.Result = &res
				slot.NeedsReview = false
				slot.FailureReason = ""
				return nil
			})
		}
	}
	_ = eg.Wait()

	sub.Recompute()
	if sub.Status == model.StatusGraded {
		now := g.opts.Now()
		sub.GradedAt = &now
	}
	g.opts.Metrics.Submission(string(sub.Status))
	slog.Info("submission graded", "submission", sub.UID, "status", sub.Status,
		"score", sub.Score.String(), "max", sub.MaxScore.String())
}

func (g *Grader) gradeOpen(ctx context.Context, q model.Question, answer string, cfg model.GradingConfig) (model.GradeResult, error) {
	prompt, err := g.prompts.BuildGradingPrompt(prompts.GradingRequest{Question: q, Answer: answer, Config: cfg})
	if err != nil {
		g.opts.Metrics.GradingCall(string(ReasonPrompt), 0)
		return model.GradeResult{}, &Failure{Reason: ReasonPrompt, Err: err}
	}

	if c := g.opts.Cache; c != nil {
		if raw, ok, err := c.Get(ctx, prompt); err != nil {
			slog.Warn("grading cache lookup failed", "error", err)
		} else if ok {
			if res, err := Interpret(raw, q.Points); err == nil {
				g.opts.Metrics.GradingCall("cached", 0)
				return res, nil
			}
		}
	}

	if qu := g.quota(ctx); qu != nil {
		if err := qu.Consume(ctx, model.QuotaAICorrection); err != nil {
			if errors.Is(err, ErrQuotaExceeded) {
				g.opts.Metrics.QuotaRejected(string(model.QuotaAICorrection))
				g.opts.Metrics.GradingCall(string(ReasonQuota), 0)
				return model.GradeResult{}, &Failure{Reason: ReasonQuota, Err: err}
			}
			g.opts.Metrics.GradingCall(string(ReasonCall), 0)
			return model.GradeResult{}, &Failure{Reason: ReasonCall, Err: fmt.Errorf("quota: %w", err)}
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, g.opts.Timeout)
	defer cancel()
	start := time.Now()
	raw, err := g.completer.Complete(callCtx, prompt)
	elapsed := time.Since(start)
	if err != nil {
		reason := ReasonCall
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			reason = ReasonTimeout
		}
		g.opts.Metrics.GradingCall(string(reason), elapsed)
		return model.GradeResult{}, &Failure{Reason: reason, Err: err}
	}

	res, err := Interpret(raw, q.Points)
	if err != nil {
		g.opts.Metrics.GradingCall(string(ReasonMalformed), elapsed)
		return model.GradeResult{}, err
	}
	g.opts.Metrics.GradingCall("ok", elapsed)

	if c := g.opts.Cache; c != nil {
		if err := c.Set(ctx, prompt, raw); err != nil {
			slog.Warn("grading cache store failed", "error", err)
		}
	}
	return res, nil
}

func indexAnswers(quiz *model.Quiz, answers []model.Answer) (map[int]model.Answer, error) {
	out := make(map[int]model.Answer, len(answers))
	for _, a := range answers {
		if a.QuestionIndex < 0 || a.QuestionIndex >= len(quiz.Questions) {
			return nil, fmt.Errorf("%w: unknown question %d", ErrInvalidAnswer, a.QuestionIndex)
		}
		if _, dup := out[a.QuestionIndex]; dup {
			return nil, fmt.Errorf("%w: several answers for question %d", ErrInvalidAnswer, a.QuestionIndex)
		}
		out[a.QuestionIndex] = a
	}
	return out, nil
}
