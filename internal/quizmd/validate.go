package quizmd

import (
	"strconv"
	"strings"

	"github.com/pavelanni/quizmark/internal/model"
)

// Validate checks a parsed quiz for semantic problems. It returns a
// *ValidationError when the quiz cannot be used, and warnings for problems
// an author should look at but that do not block publishing.
func Validate(q *model.Quiz) ([]Issue, error) {
	var problems, warnings []Issue

	if len(q.Questions) == 0 {
		problems = append(problems, Issue{Code: CodeNoQuestions})
	}
	for _, qu := range q.Questions {
		if qu.Points <= 0 {
			problems = append(problems, Issue{Line: qu.Line, Code: CodeNonPositivePoints})
		}
	}
	if len(q.Questions) > 0 && q.TotalPoints() <= 0 {
		problems = append(problems, Issue{Code: CodeNonPositiveTotal})
	}
	if len(problems) > 0 {
		return nil, &ValidationError{Issues: problems}
	}

	if strings.TrimSpace(q.Title) == "" {
		warnings = append(warnings, Issue{Code: CodeMissingTitle})
	}
	seen := make(map[string]int, len(q.Questions))
	for _, qu := range q.Questions {
		key := strings.ToLower(strings.Join(strings.Fields(qu.Text), " "))
		if first, ok := seen[key]; ok {
			warnings = append(warnings, Issue{Line: qu.Line, Code: CodeDuplicateQuestion, Detail: strconv.Itoa(first)})
		} else {
			seen[key] = qu.Line
		}
		switch {
		case qu.MultipleChoice != nil && len(qu.MultipleChoice.Options) == 1:
			warnings = append(warnings, Issue{Line: qu.Line, Code: CodeSingleOption})
		case qu.OpenEnded != nil && qu.OpenEnded.ExpectedAnswer == "":
			warnings = append(warnings, Issue{Line: qu.Line, Code: CodeEmptyExpected})
		}
	}
	return warnings, nil
}

// Load parses and validates text in one step.
func Load(text string) (*model.Quiz, []Issue, error) {
	q, err := Parse(text)
	if err != nil {
		return nil, nil, err
	}
	warnings, err := Validate(q)
	if err != nil {
		return nil, nil, err
	}
	return q, warnings, nil
}
