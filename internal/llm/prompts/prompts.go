// Package prompts builds the text sent to the language model. Prompt packs
// are TOML files resolved from an ordered list of sources: custom
// directories first, then the defaults embedded in the binary.
package prompts

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"strings"
	"text/template"
	"unicode/utf8"

	"github.com/pelletier/go-toml/v2"

	"github.com/pavelanni/quizmark/internal/model"
)

//go:embed defaults/*.toml
var defaultFS embed.FS

// Prompt pack files.
const (
	GradingFile   = "grading.toml"
	GeneratorFile = "generator.toml"
	AnomalyFile   = "anomaly.toml"
)

const maxAnswerRunes = 10000

var (
	studentAnswerRegex      = regexp.MustCompile(`(?i)</?\s*student-answer\b[^>]*>`)
	systemInstructionsRegex = regexp.MustCompile(`(?i)</?\s*system-instructions\b[^>]*>`)
)

var languages = []model.Language{model.LangFR, model.LangEN}

// Difficulty of generated questions.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// ParseDifficulty accepts the canonical names and the French ones.
func ParseDifficulty(s string) (Difficulty, error) {
	switch s {
	case "easy", "facile":
		return DifficultyEasy, nil
	case "medium", "modere":
		return DifficultyMedium, nil
	case "hard", "difficile":
		return DifficultyHard, nil
	}
	return "", fmt.Errorf("invalid difficulty %q", s)
}

type gradingPack struct {
	Template    string            `toml:"template"`
	ToneHeader  string            `toml:"tone_header"`
	EmptyAnswer string            `toml:"empty_answer"`
	Severity    map[string]string `toml:"severity"`
	Tone        map[string]string `toml:"tone"`

	tmpl *template.Template
}

type generatorPack struct {
	Template   string            `toml:"template"`
	Format     string            `toml:"format"`
	Difficulty map[string]string `toml:"difficulty"`

	tmpl *template.Template
}

type anomalyPack struct {
	Template string `toml:"template"`

	tmpl *template.Template
}

// Catalog holds parsed prompt packs. It is immutable after Load and safe
// for concurrent use.
type Catalog struct {
	grading   map[model.Language]*gradingPack
	generator map[model.Language]*generatorPack
	anomaly   map[model.Language]*anomalyPack
	fallbacks []string
}

// Load resolves each prompt file from the first source that has it, falling
// back to the embedded defaults. Nil sources are skipped.
func Load(sources ...fs.FS) (*Catalog, error) {
	defaults, err := fs.Sub(defaultFS, "defaults")
	if err != nil {
		return nil, err
	}
	var all []fs.FS
	for _, s := range sources {
		if s != nil {
			all = append(all, s)
		}
	}
	all = append(all, defaults)

	c := &Catalog{}
	read := func(name string) ([]byte, error) {
		for i, src := range all {
			data, err := fs.ReadFile(src, name)
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("read %s: %w", name, err)
			}
			if i == len(all)-1 {
				c.fallbacks = append(c.fallbacks, name)
			}
			return data, nil
		}
		return nil, fmt.Errorf("prompt file %s not found", name)
	}

	data, err := read(GradingFile)
	if err != nil {
		return nil, err
	}
	if c.grading, err = decodeGrading(data); err != nil {
		return nil, fmt.Errorf("%s: %w", GradingFile, err)
	}

	if data, err = read(GeneratorFile); err != nil {
		return nil, err
	}
	if c.generator, err = decodeGenerator(data); err != nil {
		return nil, fmt.Errorf("%s: %w", GeneratorFile, err)
	}

	if data, err = read(AnomalyFile); err != nil {
		return nil, err
	}
	if c.anomaly, err = decodeAnomaly(data); err != nil {
		return nil, fmt.Errorf("%s: %w", AnomalyFile, err)
	}
	return c, nil
}

// Fallbacks lists the prompt files that were served from the embedded
// defaults because no custom source provided them.
func (c *Catalog) Fallbacks() []string {
	return append([]string(nil), c.fallbacks...)
}

func parseTemplate(name, text string) (*template.Template, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%s: empty template", name)
	}
	return template.New(name).Option("missingkey=error").Parse(text)
}

func decodeGrading(data []byte) (map[model.Language]*gradingPack, error) {
	var raw map[string]*gradingPack
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	out := make(map[model.Language]*gradingPack, len(languages))
	for _, lang := range languages {
		p, ok := raw[string(lang)]
		if !ok || p == nil {
			return nil, fmt.Errorf("missing language %q", lang)
		}
		for _, sev := range []model.Severity{model.SeverityLenient, model.SeverityNormal, model.SeverityStrict} {
			if p.Severity[string(sev)] == "" {
				return nil, fmt.Errorf("%s: missing severity %q", lang, sev)
			}
		}
		for _, tone := range model.Tones {
			if p.Tone[string(tone)] == "" {
				return nil, fmt.Errorf("%s: missing tone %q", lang, tone)
			}
		}
		tmpl, err := parseTemplate("grading_"+string(lang), p.Template)
		if err != nil {
			return nil, err
		}
		p.tmpl = tmpl
		out[lang] = p
	}
	return out, nil
}

func decodeGenerator(data []byte) (map[model.Language]*generatorPack, error) {
	var raw map[string]*generatorPack
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	out := make(map[model.Language]*generatorPack, len(languages))
	for _, lang := range languages {
		p, ok := raw[string(lang)]
		if !ok || p == nil {
			return nil, fmt.Errorf("missing language %q", lang)
		}
		for _, d := range []Difficulty{DifficultyEasy, DifficultyMedium, DifficultyHard} {
			if p.Difficulty[string(d)] == "" {
				return nil, fmt.Errorf("%s: missing difficulty %q", lang, d)
			}
		}
		tmpl, err := parseTemplate("generator_"+string(lang), p.Template)
		if err != nil {
			return nil, err
		}
		p.tmpl = tmpl
		out[lang] = p
	}
	return out, nil
}

func decodeAnomaly(data []byte) (map[model.Language]*anomalyPack, error) {
	var raw map[string]*anomalyPack
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	out := make(map[model.Language]*anomalyPack, len(languages))
	for _, lang := range languages {
		p, ok := raw[string(lang)]
		if !ok || p == nil {
			return nil, fmt.Errorf("missing language %q", lang)
		}
		tmpl, err := parseTemplate("anomaly_"+string(lang), p.Template)
		if err != nil {
			return nil, err
		}
		p.tmpl = tmpl
		out[lang] = p
	}
	return out, nil
}

// GradingRequest is everything needed to grade one open-ended answer.
type GradingRequest struct {
	Question model.Question
	Answer   string
	Config   model.GradingConfig
}

type gradingData struct {
	Question       string
	ExpectedAnswer string
	Answer         string
	MaxPoints      string
	SeverityText   string
	ToneHeader     string
	ToneText       string
}

// BuildGradingPrompt assembles the grading prompt for an open-ended answer.
// The student's text is stripped of delimiter look-alikes and enclosed in
// <student-answer> tags. No I/O happens here.
func (c *Catalog) BuildGradingPrompt(req GradingRequest) (string, error) {
	if err := req.Config.Validate(); err != nil {
		return "", err
	}
	if req.Question.OpenEnded == nil {
		return "", errors.New("grading prompt requires an open-ended question")
	}
	p := c.grading[req.Config.Language]

	answer := sanitizeAnswer(req.Answer)
	if answer == "" {
		answer = p.EmptyAnswer
	}
	data := gradingData{
		Question:       req.Question.Text,
		ExpectedAnswer: req.Question.OpenEnded.ExpectedAnswer,
		Answer:         answer,
		MaxPoints:      req.Question.Points.String(),
		SeverityText:   p.Severity[string(req.Config.Severity)],
		ToneHeader:     p.ToneHeader,
		ToneText:       p.Tone[string(req.Config.Tone)],
	}
	return execute(p.tmpl, data)
}

// GenerationRequest describes a quiz to generate from course content.
type GenerationRequest struct {
	Title        string
	Content      string
	NumChoice    int
	NumOpen      int
	Difficulty   Difficulty
	Instructions string
	Language     model.Language
}

// BuildGenerationPrompt assembles the quiz generation prompt.
func (c *Catalog) BuildGenerationPrompt(req GenerationRequest) (string, error) {
	p, ok := c.generator[req.Language]
	if !ok {
		return "", &model.ConfigError{Field: "language", Value: string(req.Language)}
	}
	diff, ok := p.Difficulty[string(req.Difficulty)]
	if !ok {
		return "", fmt.Errorf("invalid difficulty %q", req.Difficulty)
	}
	return execute(p.tmpl, struct {
		Title, Format, DifficultyText, Instructions, Content string
		NumChoice, NumOpen                                   int
	}{
		Title:          req.Title,
		Format:         p.Format,
		DifficultyText: diff,
		Instructions:   strings.TrimSpace(req.Instructions),
		Content:        req.Content,
		NumChoice:      req.NumChoice,
		NumOpen:        req.NumOpen,
	})
}

// BuildAnalysisPrompt assembles the submission analysis prompt around a
// JSON context document.
func (c *Catalog) BuildAnalysisPrompt(lang model.Language, context string) (string, error) {
	p, ok := c.anomaly[lang]
	if !ok {
		return "", &model.ConfigError{Field: "language", Value: string(lang)}
	}
	return execute(p.tmpl, struct{ Context string }{context})
}

func execute(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// sanitizeAnswer removes tags that could close the answer delimiter or
// open a fake instruction block, and truncates very long answers.
func sanitizeAnswer(answer string) string {
	answer = studentAnswerRegex.ReplaceAllString(answer, "")
	answer = systemInstructionsRegex.ReplaceAllString(answer, "")
	answer = strings.TrimSpace(answer)

	if utf8.RuneCountInString(answer) > maxAnswerRunes {
		runes := []rune(answer)
		answer = string(runes[:maxAnswerRunes]) + "\n\n[...]"
	}
	return answer
}
