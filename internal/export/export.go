// Package export writes quiz results for use outside the server: JSON for
// other tools, XLSX for teachers.
package export

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/pavelanni/quizmark/internal/model"
)

const (
	summarySheet = "Results"
	answerSheet  = "Answers"
)

// Format is an output format.
type Format string

const (
	FormatJSON Format = "json"
	FormatXLSX Format = "xlsx"
)

// ParseFormat accepts "json" and "xlsx", in any case.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatJSON, FormatXLSX:
		return f, nil
	}
	return "", fmt.Errorf("unknown export format %q", s)
}

// Write encodes exp to w in the given format.
func Write(w io.Writer, f Format, exp model.QuizExport) error {
	switch f {
	case FormatJSON:
		return WriteJSON(w, exp)
	case FormatXLSX:
		return WriteXLSX(w, exp)
	}
	return fmt.Errorf("unknown export format %q", f)
}

// WriteJSON writes exp as indented JSON followed by a newline.
func WriteJSON(w io.Writer, exp model.QuizExport) error {
	data, err := json.MarshalIndent(exp, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}

// WriteXLSX writes a workbook with one summary row per submission and one
// row per answer. Ungraded answers leave the score cell empty.
func WriteXLSX(w io.Writer, exp model.QuizExport) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return err
	}
	if _, err := f.NewSheet(answerSheet); err != nil {
		return err
	}

	if err := writeRows(f, summarySheet, summaryRows(exp.Results)); err != nil {
		return err
	}
	if err := writeRows(f, answerSheet, answerRows(exp.Results)); err != nil {
		return err
	}
	if err := f.SetPanes(summarySheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
		return err
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func summaryRows(results []model.StudentResult) [][]any {
	rows := [][]any{{"Submission", "Quiz", "Username", "Name", "Status", "Submitted", "Score", "Max", "Percentage"}}
	for _, r := range results {
		rows = append(rows, []any{
			r.SubmissionUID,
			r.QuizTitle,
			r.Username,
			r.DisplayName,
			string(r.Status),
			r.SubmittedAt.UTC().Format("2006-01-02 15:04"),
			r.Score.Float64(),
			r.MaxScore.Float64(),
			r.Percentage,
		})
	}
	return rows
}

func answerRows(results []model.StudentResult) [][]any {
	rows := [][]any{{"Submission", "Username", "Question", "Kind", "Text", "Answer", "Score", "Max", "Feedback", "Provenance", "Needs review"}}
	for _, r := range results {
		for _, q := range r.Questions {
			var score any
			if q.Score != nil {
				score = q.Score.Float64()
			}
			rows = append(rows, []any{
				r.SubmissionUID,
				r.Username,
				q.Index + 1,
				string(q.Kind),
				q.Text,
				q.Answer,
				score,
				q.MaxPoints.Float64(),
				q.Feedback,
				string(q.Provenance),
				q.NeedsReview,
			})
		}
	}
	return rows
}

func writeRows(f *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("%s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}
