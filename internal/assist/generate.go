// Package assist holds the optional AI helpers around quizzes: drafting a
// quiz from course material and analysing a graded submission.
package assist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pavelanni/quizmark/internal/grading"
	"github.com/pavelanni/quizmark/internal/llm"
	"github.com/pavelanni/quizmark/internal/llm/prompts"
	"github.com/pavelanni/quizmark/internal/model"
	"github.com/pavelanni/quizmark/internal/quizmd"
)

// MaxContentRunes bounds the course material sent to the model.
const MaxContentRunes = 50000

// ErrInvalidRequest rejects a generation request before any model call.
var ErrInvalidRequest = errors.New("invalid generation request")

// GenerateRequest describes the quiz to draft.
type GenerateRequest struct {
	Title        string
	Content      string
	NumChoice    int
	NumOpen      int
	Difficulty   prompts.Difficulty
	Instructions string
	Language     model.Language
}

// Generated is a drafted quiz. Markdown is always set when the model
// answered, even if it does not parse, so the author can fix it by hand.
type Generated struct {
	Markdown string
	Quiz     *model.Quiz
	Warnings []quizmd.Issue
}

// Generator drafts quizzes with a language model.
type Generator struct {
	completer llm.Completer
	prompts   *prompts.Catalog
}

func NewGenerator(c llm.Completer, catalog *prompts.Catalog) *Generator {
	return &Generator{completer: c, prompts: catalog}
}

// Generate asks the model for a quiz in the Markdown dialect and parses
// it. A parse or validation failure is returned together with the draft.
// The quiz_generation quota of the context is consumed before the call.
func (g *Generator) Generate(ctx context.Context, req GenerateRequest) (*Generated, error) {
	if strings.TrimSpace(req.Title) == "" || strings.TrimSpace(req.Content) == "" {
		return nil, fmt.Errorf("%w: title and content are required", ErrInvalidRequest)
	}
	if req.NumChoice < 0 || req.NumOpen < 0 || req.NumChoice+req.NumOpen == 0 {
		return nil, fmt.Errorf("%w: ask for at least one question", ErrInvalidRequest)
	}

	prompt, err := g.prompts.BuildGenerationPrompt(prompts.GenerationRequest{
		Title:        strings.TrimSpace(req.Title),
		Content:      truncateRunes(req.Content, MaxContentRunes),
		NumChoice:    req.NumChoice,
		NumOpen:      req.NumOpen,
		Difficulty:   req.Difficulty,
		Instructions: req.Instructions,
		Language:     req.Language,
	})
	if err != nil {
		return nil, fmt.Errorf("build generation prompt: %w", err)
	}

	if q := grading.QuotaFromContext(ctx); q != nil {
		if err := q.Consume(ctx, model.QuotaQuizGeneration); err != nil {
			return nil, err
		}
	}

	raw, err := g.completer.Complete(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("generate quiz: %w", err)
	}

	out := &Generated{Markdown: grading.CleanResponse(raw)}
	quiz, warnings, err := quizmd.Load(out.Markdown)
	if err != nil {
		slog.Warn("generated quiz does not load", "title", req.Title, "error", err)
		return out, err
	}
	out.Quiz, out.Warnings = quiz, warnings
	slog.Info("quiz generated", "title", quiz.Title, "questions", len(quiz.Questions), "warnings", len(warnings))
	return out, nil
}

func truncateRunes(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
