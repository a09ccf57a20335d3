package quizmd

import (
	"fmt"
	"sort"
	"strings"
)

// Code identifies a diagnostic. Codes double as translation message IDs
// (prefixed with "quizmd.") in the i18n bundles.
type Code string

// Structural error codes.
const (
	CodeDuplicateTitle  Code = "duplicate_title"
	CodeBadHeading      Code = "bad_heading"
	CodeUnknownType     Code = "unknown_type"
	CodeMissingText     Code = "missing_text"
	CodeMissingPoints   Code = "missing_points"
	CodeBadPoints       Code = "bad_points"
	CodeEmptyOption     Code = "empty_option"
	CodeStrayOption     Code = "stray_option"
	CodeNoOptions       Code = "no_options"
	CodeNoCorrectOption Code = "no_correct_option"
	CodeMissingExpected Code = "missing_expected_answer"
)

// Validation codes.
const (
	CodeNoQuestions       Code = "no_questions"
	CodeNonPositiveTotal  Code = "non_positive_total"
	CodeNonPositivePoints Code = "non_positive_points"
	CodeMissingTitle      Code = "missing_title"
	CodeDuplicateQuestion Code = "duplicate_question"
	CodeSingleOption      Code = "single_option"
	CodeEmptyExpected     Code = "empty_expected_answer"
)

var messages = map[Code]string{
	CodeDuplicateTitle:  "the quiz already has a title",
	CodeBadHeading:      "question heading must look like \"## TYPE - text [N points]\"",
	CodeUnknownType:     "unknown question type %q",
	CodeMissingText:     "question text is empty",
	CodeMissingPoints:   "missing point annotation \"[N points]\"",
	CodeBadPoints:       "invalid point value %q: expected a positive number with at most one decimal place",
	CodeEmptyOption:     "option text is empty",
	CodeStrayOption:     "option is separated from the option list of its question",
	CodeNoOptions:       "multiple-choice question has no options",
	CodeNoCorrectOption: "multiple-choice question has no option marked [x]",
	CodeMissingExpected: "open question has no expected answer section",

	CodeNoQuestions:       "the quiz has no questions",
	CodeNonPositiveTotal:  "total points must be positive",
	CodeNonPositivePoints: "question points must be positive",
	CodeMissingTitle:      "the quiz has no title",
	CodeDuplicateQuestion: "same text as the question on line %s",
	CodeSingleOption:      "multiple-choice question has a single option",
	CodeEmptyExpected:     "expected answer is empty",
}

func message(code Code, detail string) string {
	m, ok := messages[code]
	if !ok {
		return string(code)
	}
	if strings.Contains(m, "%") {
		return fmt.Sprintf(m, detail)
	}
	return m
}

// StructuralError is a violation of the Markdown quiz grammar.
type StructuralError struct {
	Line   int    `json:"line"`
	Code   Code   `json:"code"`
	Detail string `json:"detail,omitempty"`
}

// Message returns the English description of the error.
func (e StructuralError) Message() string {
	return message(e.Code, e.Detail)
}

func (e StructuralError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Message())
}

// StructuralErrors is every structural error found in one parse, in line
// order.
type StructuralErrors []StructuralError

func (es StructuralErrors) Error() string {
	if len(es) == 1 {
		return es[0].Error()
	}
	parts := make([]string, len(es))
	for i, e := range es {
		parts[i] = e.Error()
	}
	return fmt.Sprintf("%d structural errors: %s", len(es), strings.Join(parts, "; "))
}

func (es StructuralErrors) sorted() StructuralErrors {
	sort.SliceStable(es, func(i, j int) bool { return es[i].Line < es[j].Line })
	return es
}

// Issue is a semantic finding of the validator. Line is 0 for findings
// about the quiz as a whole.
type Issue struct {
	Line   int    `json:"line,omitempty"`
	Code   Code   `json:"code"`
	Detail string `json:"detail,omitempty"`
}

// Message returns the English description of the issue.
func (i Issue) Message() string {
	return message(i.Code, i.Detail)
}

func (i Issue) String() string {
	if i.Line > 0 {
		return fmt.Sprintf("line %d: %s", i.Line, i.Message())
	}
	return i.Message()
}

// ValidationError rejects a structurally valid quiz on semantic grounds.
type ValidationError struct {
	Issues []Issue `json:"issues"`
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Issues))
	for i, is := range e.Issues {
		parts[i] = is.String()
	}
	return "invalid quiz: " + strings.Join(parts, "; ")
}
