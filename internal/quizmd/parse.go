// Package quizmd reads and writes the Markdown quiz dialect.
//
// A quiz is a level-1 title, an optional description, and a sequence of
// question blocks:
//
//	# Title
//
//	## QCM - Which numbers are prime? [2 points]
//	- [x] 2
//	- [ ] 4
//
//	## OUVERTE - Define a prime number. [3 points]
//	### Réponse attendue
//	A number with exactly two divisors.
//
// QCM and MCQ introduce multiple-choice questions, OUVERTE and OPEN
// introduce open-ended ones.
package quizmd

import (
	"errors"
	"strings"

	"github.com/pavelanni/quizmark/internal/model"
)

var (
	errNoUnit      = errors.New("missing unit")
	errNotPositive = errors.New("points must be positive")
)

var choiceKeywords = map[string]bool{"QCM": true, "MCQ": true}

var openKeywords = map[string]bool{"OUVERTE": true, "OPEN": true}

var expectedMarkers = map[string]bool{
	"réponse attendue": true,
	"reponse attendue": true,
	"expected answer":  true,
}

type state int

const (
	stateStart state = iota
	stateDescription
	stateQuestion
	stateSkip
)

type block struct {
	line     int
	kind     model.QuestionKind
	text     string
	points   model.Points
	broken   bool
	body     []string
	options  []model.Option
	inList   bool
	closed   bool
	marker   bool
	expected []string
}

type parser struct {
	quiz     model.Quiz
	errs     StructuralErrors
	st       state
	cur      *block
	desc     []string
	hasTitle bool
}

// Parse converts Markdown text into a quiz. It reports every structural
// error it finds, as a StructuralErrors value, rather than stopping at the
// first. Parse never consults anything but its input.
//
// A successful parse may still hold zero questions; Validate rejects that.
func Parse(text string) (*model.Quiz, error) {
	p := &parser{}
	text = strings.ReplaceAll(text, "\r\n", "\n")
	for i, raw := range strings.Split(text, "\n") {
		p.line(i+1, strings.TrimRight(raw, "\r"))
	}
	p.closeBlock()
	if len(p.errs) > 0 {
		return nil, p.errs.sorted()
	}
	p.quiz.Description = strings.Join(p.desc, "\n")
	return &p.quiz, nil
}

func (p *parser) fail(line int, code Code, detail string) {
	p.errs = append(p.errs, StructuralError{Line: line, Code: code, Detail: detail})
}

func (p *parser) line(n int, raw string) {
	t := strings.TrimSpace(raw)
	level, rest := heading(t)

	switch {
	case level == 1:
		p.closeBlock()
		if p.hasTitle {
			p.fail(n, CodeDuplicateTitle, "")
			p.st = stateSkip
			return
		}
		p.hasTitle = true
		p.quiz.Title = rest
		p.st = stateDescription
		return
	case level == 2:
		p.closeBlock()
		p.openBlock(n, rest)
		return
	}

	switch p.st {
	case stateDescription:
		if t != "" {
			p.desc = append(p.desc, t)
		}
	case stateQuestion:
		p.questionLine(n, t, raw, level, rest)
	}
}

func (p *parser) questionLine(n int, t, raw string, level int, rest string) {
	b := p.cur
	if b.marker {
		b.expected = append(b.expected, raw)
		return
	}
	if b.kind == model.KindOpenEnded {
		if level == 3 && expectedMarkers[strings.ToLower(rest)] {
			b.marker = true
			return
		}
		if t != "" {
			b.body = append(b.body, t)
		}
		return
	}

	opt, ok := parseOption(t)
	switch {
	case ok && b.closed:
		p.fail(n, CodeStrayOption, "")
	case ok:
		if opt.Text == "" {
			p.fail(n, CodeEmptyOption, "")
			b.broken = true
		}
		opt.Images = extractImages(opt.Text)
		b.options = append(b.options, opt)
		b.inList = true
	case t == "":
	case b.inList:
		b.closed = true
	case !b.closed:
		b.body = append(b.body, t)
	}
}

func (p *parser) openBlock(n int, heading string) {
	keyword, after := splitKeyword(heading)
	var kind model.QuestionKind
	switch {
	case choiceKeywords[keyword]:
		kind = model.KindMultipleChoice
	case openKeywords[keyword]:
		kind = model.KindOpenEnded
	default:
		p.fail(n, CodeUnknownType, keyword)
		p.st = stateSkip
		return
	}

	after = strings.TrimSpace(after)
	if !strings.HasPrefix(after, "-") {
		p.fail(n, CodeBadHeading, "")
		p.st = stateSkip
		return
	}
	after = strings.TrimSpace(after[1:])

	b := &block{line: n, kind: kind}
	text, annotation, ok := cutAnnotation(after)
	b.text = text
	if b.text == "" {
		p.fail(n, CodeMissingText, "")
		b.broken = true
	}
	if !ok {
		p.fail(n, CodeMissingPoints, "")
		b.broken = true
	} else if pts, err := parseAnnotation(annotation); err != nil {
		p.fail(n, CodeBadPoints, annotation)
		b.broken = true
	} else {
		b.points = pts
	}

	p.cur = b
	p.st = stateQuestion
}

func (p *parser) closeBlock() {
	b := p.cur
	if b == nil {
		return
	}
	p.cur = nil
	p.st = stateSkip

	q := model.Question{Points: b.points, Line: b.line}
	switch b.kind {
	case model.KindMultipleChoice:
		mc := &model.MultipleChoice{Options: b.options}
		if len(b.options) == 0 {
			p.fail(b.line, CodeNoOptions, "")
			return
		}
		if len(mc.CorrectSet()) == 0 {
			p.fail(b.line, CodeNoCorrectOption, "")
			return
		}
		q.MultipleChoice = mc
	case model.KindOpenEnded:
		if !b.marker {
			p.fail(b.line, CodeMissingExpected, "")
			return
		}
		q.OpenEnded = &model.OpenEnded{ExpectedAnswer: strings.TrimSpace(strings.Join(b.expected, "\n"))}
	}
	if b.broken {
		return
	}

	q.Text = strings.Join(append([]string{b.text}, b.body...), "\n")
	q.Images = extractImages(q.Text)
	p.quiz.Questions = append(p.quiz.Questions, q)
}

// heading returns the ATX heading level of a trimmed line and its text, or
// 0 when the line is not a heading.
func heading(t string) (int, string) {
	n := 0
	for n < len(t) && t[n] == '#' {
		n++
	}
	if n == 0 || n > 6 {
		return 0, ""
	}
	if n < len(t) && t[n] != ' ' && t[n] != '\t' {
		return 0, ""
	}
	return n, strings.TrimSpace(t[n:])
}

func splitKeyword(s string) (string, string) {
	i := strings.IndexAny(s, " \t-")
	if i < 0 {
		return s, ""
	}
	return s[:i], s[i:]
}

// cutAnnotation splits "text [N points]" into its parts. ok is false when
// the heading does not end with a bracketed annotation.
func cutAnnotation(s string) (text, annotation string, ok bool) {
	if !strings.HasSuffix(s, "]") {
		return s, "", false
	}
	open := strings.LastIndex(s, "[")
	if open < 0 {
		return s, "", false
	}
	return strings.TrimSpace(s[:open]), strings.TrimSpace(s[open+1 : len(s)-1]), true
}

func parseAnnotation(a string) (model.Points, error) {
	num := a
	for _, unit := range []string{"points", "point"} {
		if strings.HasSuffix(strings.ToLower(num), unit) {
			num = strings.TrimSpace(num[:len(num)-len(unit)])
			break
		}
	}
	if num == a {
		return 0, errNoUnit
	}
	pts, err := model.ParsePoints(num)
	if err != nil {
		return 0, err
	}
	if pts <= 0 {
		return 0, errNotPositive
	}
	return pts, nil
}

// parseOption recognizes "- [ ] text" and "- [x] text".
func parseOption(t string) (model.Option, bool) {
	if !strings.HasPrefix(t, "-") {
		return model.Option{}, false
	}
	s := strings.TrimLeft(t[1:], " \t")
	if len(s) < 3 || s[0] != '[' || s[2] != ']' {
		return model.Option{}, false
	}
	var correct bool
	switch s[1] {
	case ' ':
	case 'x', 'X':
		correct = true
	default:
		return model.Option{}, false
	}
	rest := s[3:]
	if rest != "" && rest[0] != ' ' && rest[0] != '\t' {
		return model.Option{}, false
	}
	return model.Option{Text: strings.TrimSpace(rest), Correct: correct}, true
}
