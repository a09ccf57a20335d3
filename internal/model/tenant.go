package model

import "time"

// QuotaKind names a monthly AI usage counter.
type QuotaKind string

const (
	QuotaAICorrection   QuotaKind = "ai_correction"
	QuotaQuizGeneration QuotaKind = "quiz_generation"
	QuotaClassAnalysis  QuotaKind = "class_analysis"
)

// Tenant is an organization with its own monthly AI limits. A zero limit
// means unlimited.
type Tenant struct {
	ID                     int64     `db:"id" json:"id"`
	Name                   string    `db:"name" json:"name"`
	Slug                   string    `db:"slug" json:"slug"`
	MonthlyAICorrections   int       `db:"monthly_ai_corrections" json:"monthly_ai_corrections"`
	MonthlyQuizGenerations int       `db:"monthly_quiz_generations" json:"monthly_quiz_generations"`
	MonthlyClassAnalyses   int       `db:"monthly_class_analyses" json:"monthly_class_analyses"`
	UsedAICorrections      int       `db:"used_ai_corrections" json:"used_ai_corrections"`
	UsedQuizGenerations    int       `db:"used_quiz_generations" json:"used_quiz_generations"`
	UsedClassAnalyses      int       `db:"used_class_analyses" json:"used_class_analyses"`
	UsageMonth             string    `db:"usage_month" json:"usage_month"`
	CreatedAt              time.Time `db:"created_at" json:"created_at"`
}

// Usage returns the used and limit counters for kind.
func (t Tenant) Usage(kind QuotaKind) (used, limit int) {
	switch kind {
	case QuotaAICorrection:
		return t.UsedAICorrections, t.MonthlyAICorrections
	case QuotaQuizGeneration:
		return t.UsedQuizGenerations, t.MonthlyQuizGenerations
	case QuotaClassAnalysis:
		return t.UsedClassAnalyses, t.MonthlyClassAnalyses
	}
	return 0, 0
}

// UsageMonthOf formats the calendar month used to reset counters.
func UsageMonthOf(t time.Time) string {
	return t.Format("2006-01")
}
