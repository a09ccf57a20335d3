package grading

import (
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"

	"github.com/pavelanni/quizmark/internal/model"
)

var (
	errNoScore      = errors.New("no score found in response")
	errScoreNotNum  = errors.New("score is not a number")
	errScoreNotReal = errors.New("score is not a finite number")
	errZeroScale    = errors.New("score out of zero")
)

var scoreKeys = []string{"score", "note", "grade"}

var feedbackKeys = []string{"feedback", "commentaire", "comment", "explanation"}

var scoreLabels = []string{"score", "note", "grade"}

// Interpret extracts a score and feedback from a raw model response.
//
// A JSON object is tried first, including one wrapped in a Markdown code
// fence or surrounded by prose. Failing that, the first number following a
// "score" label is taken and the remaining text becomes the feedback. A
// score written as a fraction "a/b" is rescaled to max. The score is rounded
// to a tenth and clamped into [0, max]. When no score can be recovered the
// error is a *Failure with ReasonMalformed.
func Interpret(raw string, max model.Points) (model.GradeResult, error) {
	text := CleanResponse(raw)

	c, feedback, err := fromJSON(text)
	if errors.Is(err, errNoJSON) {
		c, feedback, err = fromLabel(text)
	}
	if err != nil {
		return model.GradeResult{}, &Failure{Reason: ReasonMalformed, Err: err, Raw: raw}
	}
	score, err := c.scaled(max)
	if err != nil {
		return model.GradeResult{}, &Failure{Reason: ReasonMalformed, Err: err, Raw: raw}
	}

	return model.GradeResult{
		Score:      clamp(score, max),
		Feedback:   strings.TrimSpace(feedback),
		Provenance: model.ProvenanceAI,
	}, nil
}

func clamp(f float64, max model.Points) model.Points {
	if f <= 0 {
		return 0
	}
	if f >= max.Float64() {
		return max
	}
	return model.PointsFromFloat(f).Clamp(max)
}

// claim is a score as the model wrote it. outOf is the denominator of
// "a/b", zero when there was none.
type claim struct {
	value, outOf float64
}

func (c claim) scaled(max model.Points) (float64, error) {
	v := c.value
	if c.outOf != 0 {
		v = v * max.Float64() / c.outOf
	}
	if math.IsNaN(v) || math.IsInf(v, 0) || math.IsInf(c.outOf, 0) {
		return 0, errScoreNotReal
	}
	return v, nil
}

// CleanResponse removes a reasoning block and a surrounding code fence from
// a raw model response.
func CleanResponse(raw string) string {
	return stripFences(stripThink(raw))
}

// stripThink drops the reasoning block some local models emit first.
func stripThink(s string) string {
	if end := strings.Index(s, "</think>"); end >= 0 {
		if start := strings.Index(s, "<think>"); start >= 0 && start < end {
			return s[:start] + s[end+len("</think>"):]
		}
	}
	return s
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		// Language tag, e.g. ```json.
		if !strings.ContainsAny(s[:nl], "{}") {
			s = s[nl+1:]
		}
	}
	if end := strings.LastIndex(s, "```"); end >= 0 {
		s = s[:end]
	}
	return strings.TrimSpace(s)
}

var errNoJSON = errors.New("no JSON object")

func fromJSON(text string) (claim, string, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text), &obj); err != nil {
		start := strings.IndexByte(text, '{')
		end := strings.LastIndexByte(text, '}')
		if start < 0 || end <= start {
			return claim{}, "", errNoJSON
		}
		if err := json.Unmarshal([]byte(text[start:end+1]), &obj); err != nil {
			return claim{}, "", errNoJSON
		}
	}

	var rawScore json.RawMessage
	for _, k := range scoreKeys {
		if v, ok := lookup(obj, k); ok {
			rawScore = v
			break
		}
	}
	if rawScore == nil {
		return claim{}, "", errNoScore
	}
	score, err := jsonNumber(rawScore)
	if err != nil {
		return claim{}, "", err
	}

	var feedback string
	for _, k := range feedbackKeys {
		if v, ok := lookup(obj, k); ok {
			if err := json.Unmarshal(v, &feedback); err == nil {
				break
			}
		}
	}
	return score, feedback, nil
}

func lookup(obj map[string]json.RawMessage, key string) (json.RawMessage, bool) {
	if v, ok := obj[key]; ok {
		return v, true
	}
	for k, v := range obj {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	return nil, false
}

// jsonNumber accepts a JSON number or a string holding one ("3,5" and
// "4/5" too).
func jsonNumber(v json.RawMessage) (claim, error) {
	var f float64
	if err := json.Unmarshal(v, &f); err == nil {
		return claim{value: f}, nil
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return claim{}, errScoreNotNum
	}
	num, den, frac := strings.Cut(s, "/")
	c := claim{}
	var err error
	if c.value, err = parseDecimal(num); err != nil {
		return claim{}, errScoreNotNum
	}
	if frac {
		if c.outOf, err = parseDecimal(strings.TrimSuffix(strings.TrimSpace(den), "points")); err != nil {
			return claim{}, errScoreNotNum
		}
		if c.outOf == 0 {
			return claim{}, errZeroScale
		}
	}
	return c, nil
}

func parseDecimal(s string) (float64, error) {
	return strconv.ParseFloat(strings.Replace(strings.TrimSpace(s), ",", ".", 1), 64)
}

// fromLabel finds "score: 3.5" (or "note = 3,5", "**Score**: 3") and
// returns the number and the text around it.
func fromLabel(text string) (claim, string, error) {
	for _, label := range scoreLabels {
		from := 0
		for {
			i := indexFold(text, label, from)
			if i < 0 {
				break
			}
			from = i + len(label)
			if i > 0 && isLetter(text[i-1]) {
				continue
			}
			numStart, numEnd, ok := numberAfterLabel(text, i+len(label))
			if !ok {
				continue
			}
			f, err := parseDecimal(text[numStart:numEnd])
			if err != nil {
				continue
			}
			outOf, rest := denominator(text[numEnd:])
			if outOf == 0 && rest != text[numEnd:] {
				return claim{}, "", errZeroScale
			}
			before := strings.TrimRight(text[:i], " \t*_\"'#")
			feedback := strings.TrimSpace(before) + "\n" + strings.TrimSpace(rest)
			return claim{value: f, outOf: outOf}, strings.TrimSpace(feedback), nil
		}
	}
	return claim{}, "", errNoScore
}

func numberAfterLabel(s string, i int) (int, int, bool) {
	if i < len(s) && isLetter(s[i]) {
		return 0, 0, false
	}
	for i < len(s) && strings.IndexByte(" \t*\"'_", s[i]) >= 0 {
		i++
	}
	if i < len(s) && (s[i] == ':' || s[i] == '=') {
		i++
	}
	for i < len(s) && strings.IndexByte(" \t*\"'_", s[i]) >= 0 {
		i++
	}
	start := i
	if i < len(s) && (s[i] == '-' || s[i] == '+') {
		i++
	}
	digits := i
	for i < len(s) && isDigit(s[i]) {
		i++
	}
	if i == digits {
		return 0, 0, false
	}
	if i+1 < len(s) && (s[i] == '.' || s[i] == ',') && isDigit(s[i+1]) {
		i++
		for i < len(s) && isDigit(s[i]) {
			i++
		}
	}
	return start, i, true
}

// denominator reads a "/5" or "/ 10 points" that follows the score and
// returns it with the text after it. Without one, s comes back unchanged
// with a zero denominator.
func denominator(s string) (float64, string) {
	t := strings.TrimLeft(s, " \t")
	if !strings.HasPrefix(t, "/") {
		return 0, s
	}
	t = strings.TrimLeft(t[1:], " \t")
	i := 0
	for i < len(t) && (isDigit(t[i]) || t[i] == '.' || t[i] == ',') {
		i++
	}
	if i == 0 {
		return 0, s
	}
	d, err := parseDecimal(t[:i])
	if err != nil {
		return 0, s
	}
	return d, t[i:]
}

func indexFold(s, substr string, from int) int {
	for i := from; i+len(substr) <= len(s); i++ {
		if strings.EqualFold(s[i:i+len(substr)], substr) {
			return i
		}
	}
	return -1
}

func isLetter(b byte) bool { return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' }

func isDigit(b byte) bool { return b >= '0' && b <= '9' }
