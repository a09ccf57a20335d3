package quizmd

import (
	"strings"

	"github.com/pavelanni/quizmark/internal/model"
)

type keywords struct {
	choice, open, expected string
}

var dialects = map[model.Language]keywords{
	model.LangFR: {choice: "QCM", open: "OUVERTE", expected: "Réponse attendue"},
	model.LangEN: {choice: "MCQ", open: "OPEN", expected: "Expected answer"},
}

// Format renders q as canonical Markdown using the keywords of lang
// (French when lang is unknown). Parsing the result yields q again, up to
// source line numbers.
func Format(q *model.Quiz, lang model.Language) string {
	kw, ok := dialects[lang]
	if !ok {
		kw = dialects[model.LangFR]
	}

	var b strings.Builder
	// The title line is written even when empty: the description is only
	// read after one.
	b.WriteString(strings.TrimSpace("# "+q.Title) + "\n\n")
	if q.Description != "" {
		b.WriteString(q.Description + "\n\n")
	}
	for _, qu := range q.Questions {
		first, body, _ := strings.Cut(qu.Text, "\n")
		keyword := kw.open
		if qu.MultipleChoice != nil {
			keyword = kw.choice
		}
		b.WriteString("## " + keyword + " - " + first + " [" + qu.Points.String() + " points]\n")
		if body != "" {
			b.WriteString(body + "\n")
		}
		switch {
		case qu.MultipleChoice != nil:
			for _, o := range qu.MultipleChoice.Options {
				mark := " "
				if o.Correct {
					mark = "x"
				}
				b.WriteString("- [" + mark + "] " + o.Text + "\n")
			}
		case qu.OpenEnded != nil:
			b.WriteString("### " + kw.expected + "\n")
			if qu.OpenEnded.ExpectedAnswer != "" {
				b.WriteString(qu.OpenEnded.ExpectedAnswer + "\n")
			}
		}
		b.WriteString("\n")
	}
	return b.String()
}
