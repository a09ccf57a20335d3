package export

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/pavelanni/quizmark/internal/model"
)

func sampleExport() model.QuizExport {
	graded := model.Points(20)
	return model.QuizExport{
		ExportedAt: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC),
		Results: []model.StudentResult{{
			SubmissionUID: "01JNX",
			QuizID:        1,
			QuizTitle:     "Primes",
			Username:      "sam",
			DisplayName:   "Sam",
			Status:        model.StatusPartiallyGraded,
			SubmittedAt:   time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC),
			Score:         20,
			MaxScore:      50,
			Percentage:    100,
			Questions: []model.QuestionResult{
				{Index: 0, Kind: model.KindMultipleChoice, Text: "Pick the primes", MaxPoints: 20, Answer: "2; 5", Score: &graded, Provenance: model.ProvenanceAutomatic},
				{Index: 1, Kind: model.KindOpenEnded, Text: "Define a prime.", MaxPoints: 30, Answer: "Two divisors", NeedsReview: true},
			},
		}},
	}
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat(" XLSX ")
	require.NoError(t, err)
	assert.Equal(t, FormatXLSX, f)

	_, err = ParseFormat("csv")
	assert.Error(t, err)
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatJSON, sampleExport()))

	var got model.QuizExport
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	require.Len(t, got.Results, 1)
	assert.Equal(t, model.Points(20), got.Results[0].Score)
	assert.Nil(t, got.Results[0].Questions[1].Score)
	assert.Contains(t, buf.String(), `"score": 2`)
}

func TestWriteXLSX(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatXLSX, sampleExport()))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{summarySheet, answerSheet}, f.GetSheetList())

	rows, err := f.GetRows(summarySheet)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Username", rows[0][2])
	assert.Equal(t, []string{"01JNX", "Primes", "sam", "Sam", "partially_graded", "2026-03-01 09:30", "2", "5", "100"}, rows[1])

	answers, err := f.GetRows(answerSheet)
	require.NoError(t, err)
	require.Len(t, answers, 3)
	assert.Equal(t, "2; 5", answers[1][5])
	assert.Equal(t, "", answers[2][6], "ungraded answers have no score")
	assert.Equal(t, "TRUE", answers[2][10])
}
