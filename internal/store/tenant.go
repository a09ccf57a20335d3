package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pavelanni/quizmark/internal/grading"
	"github.com/pavelanni/quizmark/internal/model"
)

const tenantColumns = `id, name, slug, monthly_ai_corrections, monthly_quiz_generations,
	monthly_class_analyses, used_ai_corrections, used_quiz_generations,
	used_class_analyses, usage_month, created_at`

// CreateTenant inserts a tenant with its monthly limits.
func (s *Store) CreateTenant(t model.Tenant) (int64, error) {
	res, err := s.db.Exec(
		`INSERT INTO tenants (name, slug, monthly_ai_corrections, monthly_quiz_generations,
			monthly_class_analyses, usage_month, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.Name, t.Slug, t.MonthlyAICorrections, t.MonthlyQuizGenerations,
		t.MonthlyClassAnalyses, model.UsageMonthOf(time.Now()), time.Now(),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// GetTenant returns a tenant by ID, or nil if there is none.
func (s *Store) GetTenant(id int64) (*model.Tenant, error) {
	var t model.Tenant
	err := s.db.Get(&t, `SELECT `+tenantColumns+` FROM tenants WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// ListTenants returns all tenants.
func (s *Store) ListTenants() ([]model.Tenant, error) {
	var tenants []model.Tenant
	err := s.db.Select(&tenants, `SELECT `+tenantColumns+` FROM tenants ORDER BY id`)
	return tenants, err
}

// SetTenantLimits replaces the monthly limits of a tenant. Zero is unlimited.
func (s *Store) SetTenantLimits(id int64, corrections, generations, analyses int) error {
	_, err := s.db.Exec(
		`UPDATE tenants SET monthly_ai_corrections = ?, monthly_quiz_generations = ?,
			monthly_class_analyses = ? WHERE id = ?`,
		corrections, generations, analyses, id,
	)
	return err
}

func usedColumn(kind model.QuotaKind) (string, error) {
	switch kind {
	case model.QuotaAICorrection:
		return "used_ai_corrections", nil
	case model.QuotaQuizGeneration:
		return "used_quiz_generations", nil
	case model.QuotaClassAnalysis:
		return "used_class_analyses", nil
	}
	return "", fmt.Errorf("unknown quota kind %q", kind)
}

// ConsumeQuota checks the tenant's monthly limit for kind and counts one use.
// Counters reset when the calendar month of now differs from the stored
// usage month. An exhausted limit returns an error wrapping
// grading.ErrQuotaExceeded and counts nothing.
func (s *Store) ConsumeQuota(ctx context.Context, tenantID int64, kind model.QuotaKind, now time.Time) error {
	col, err := usedColumn(kind)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var t model.Tenant
	err = tx.GetContext(ctx, &t, `SELECT `+tenantColumns+` FROM tenants WHERE id = ?`, tenantID)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("tenant %d: %w", tenantID, ErrNotFound)
	}
	if err != nil {
		return err
	}

	month := model.UsageMonthOf(now)
	if t.UsageMonth != month {
		_, err = tx.ExecContext(ctx,
			`UPDATE tenants SET used_ai_corrections = 0, used_quiz_generations = 0,
				used_class_analyses = 0, usage_month = ? WHERE id = ?`,
			month, tenantID,
		)
		if err != nil {
			return err
		}
		slog.Info("quota counters reset", "tenant_id", tenantID, "month", month)
		t.UsedAICorrections, t.UsedQuizGenerations, t.UsedClassAnalyses = 0, 0, 0
	}

	used, limit := t.Usage(kind)
	if limit > 0 && used >= limit {
		return fmt.Errorf("tenant %d %s %d/%d: %w", tenantID, kind, used, limit, grading.ErrQuotaExceeded)
	}

	if _, err := tx.ExecContext(ctx, `UPDATE tenants SET `+col+` = `+col+` + 1 WHERE id = ?`, tenantID); err != nil {
		return err
	}
	return tx.Commit()
}

// TenantQuota binds one tenant's counter of one kind to grading.Quota.
type TenantQuota struct {
	store    *Store
	tenantID int64
	now      func() time.Time
}

// Quota returns the quota of a tenant. A nil tenant has no limit, and the
// returned value is nil.
func (s *Store) Quota(tenantID *int64) *TenantQuota {
	if tenantID == nil {
		return nil
	}
	return &TenantQuota{store: s, tenantID: *tenantID, now: time.Now}
}

// Consume implements grading.Quota.
func (q *TenantQuota) Consume(ctx context.Context, kind model.QuotaKind) error {
	if q == nil {
		return nil
	}
	return q.store.ConsumeQuota(ctx, q.tenantID, kind, q.now())
}
