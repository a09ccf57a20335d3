package quizmd

import (
	"strings"

	"github.com/pavelanni/quizmark/internal/model"
)

// extractImages finds inline image references "![alt](file)" in s. The
// surrounding text is left untouched; references are only recorded.
func extractImages(s string) []model.ImageRef {
	var refs []model.ImageRef
	for {
		start := strings.Index(s, "![")
		if start < 0 {
			return refs
		}
		s = s[start+2:]
		closeAlt := strings.Index(s, "](")
		if closeAlt < 0 {
			return refs
		}
		alt := s[:closeAlt]
		if strings.ContainsAny(alt, "[]\n") {
			continue
		}
		rest := s[closeAlt+2:]
		end := strings.IndexAny(rest, ")\n")
		if end < 0 || rest[end] != ')' {
			continue
		}
		file := strings.TrimSpace(rest[:end])
		// A title may follow the filename: ![a](img.png "Title").
		if i := strings.IndexAny(file, " \t"); i >= 0 {
			file = file[:i]
		}
		if file != "" {
			refs = append(refs, model.ImageRef{Alt: alt, Filename: file})
		}
		s = rest[end+1:]
	}
}
