package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pavelanni/quizmark/internal/grading"
	"github.com/pavelanni/quizmark/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("newTestStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func insertTestUser(t *testing.T, s *Store, username string, role model.UserRole) int64 {
	t.Helper()
	id, err := s.CreateUser(model.User{
		Username:    username,
		DisplayName: "User " + username,
		Role:        role,
		Active:      true,
	})
	if err != nil {
		t.Fatalf("insertTestUser: %v", err)
	}
	return id
}

const testQuiz = `# Primes

## QCM - Pick the primes [2 points]
- [x] 2
- [ ] 4
- [x] 5

## OUVERTE - Define a prime. [3 points]
### Réponse attendue
A number with exactly two divisors.
`

func insertTestQuiz(t *testing.T, s *Store, author int64) int64 {
	t.Helper()
	id, err := s.CreateQuiz(model.QuizRecord{
		Title:     "Primes",
		Markdown:  testQuiz,
		Severity:  model.SeverityNormal,
		Tone:      model.ToneNeutral,
		Language:  model.LangFR,
		Active:    true,
		CreatedBy: author,
	})
	if err != nil {
		t.Fatalf("insertTestQuiz: %v", err)
	}
	return id
}

func TestUserCRUD(t *testing.T) {
	s := newTestStore(t)

	count, err := s.UserCount()
	if err != nil {
		t.Fatalf("UserCount: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected 0 users, got %d", count)
	}

	id := insertTestUser(t, s, "alice", model.UserRoleStudent)

	u, err := s.GetUserByUsername("alice")
	if err != nil {
		t.Fatalf("GetUserByUsername: %v", err)
	}
	if u == nil || u.ID != id || u.Role != model.UserRoleStudent || !u.Active {
		t.Fatalf("unexpected user: %+v", u)
	}

	missing, err := s.GetUserByUsername("bob")
	if err != nil {
		t.Fatalf("GetUserByUsername(missing): %v", err)
	}
	if missing != nil {
		t.Fatalf("expected nil for missing user, got %+v", missing)
	}

	token, err := s.CreateAuthSession(id)
	if err != nil {
		t.Fatalf("CreateAuthSession: %v", err)
	}
	active, err := s.ToggleUserActive(id)
	if err != nil {
		t.Fatalf("ToggleUserActive: %v", err)
	}
	if active {
		t.Fatal("ToggleUserActive reported an active user")
	}
	if sess, _ := s.GetAuthSession(token); sess != nil {
		t.Fatal("deactivation should end the user's sessions")
	}
	if _, err := s.ToggleUserActive(999); !errors.Is(err, ErrNotFound) {
		t.Fatalf("ToggleUserActive(missing) = %v, want ErrNotFound", err)
	}
	u, err = s.GetUserByID(id)
	if err != nil {
		t.Fatalf("GetUserByID: %v", err)
	}
	if u.Active {
		t.Fatal("expected user to be inactive after toggle")
	}

	if _, err := s.CreateUser(model.User{Username: "alice", Role: model.UserRoleStudent}); err == nil {
		t.Fatal("expected error for duplicate username")
	}

	users, err := s.ListUsers()
	if err != nil {
		t.Fatalf("ListUsers: %v", err)
	}
	if len(users) != 1 {
		t.Fatalf("expected 1 user, got %d", len(users))
	}
}

func TestAuthSessions(t *testing.T) {
	s := newTestStore(t)
	uid := insertTestUser(t, s, "alice", model.UserRoleStudent)

	token, err := s.CreateAuthSession(uid)
	if err != nil {
		t.Fatalf("CreateAuthSession: %v", err)
	}
	if len(token) != 64 {
		t.Fatalf("expected 64-char hex token, got %d chars", len(token))
	}

	sess, err := s.GetAuthSession(token)
	if err != nil {
		t.Fatalf("GetAuthSession: %v", err)
	}
	if sess == nil || sess.UserID != uid {
		t.Fatalf("unexpected session: %+v", sess)
	}

	if err := s.DeleteAuthSession(token); err != nil {
		t.Fatalf("DeleteAuthSession: %v", err)
	}
	sess, err = s.GetAuthSession(token)
	if err != nil {
		t.Fatalf("GetAuthSession after delete: %v", err)
	}
	if sess != nil {
		t.Fatal("expected nil session after delete")
	}

	var stored string
	if _, err := s.CreateAuthSession(uid); err != nil {
		t.Fatalf("CreateAuthSession: %v", err)
	}
	if err := s.db.Get(&stored, `SELECT id FROM auth_sessions LIMIT 1`); err != nil {
		t.Fatalf("read session row: %v", err)
	}
	if stored == token || len(stored) != 64 {
		t.Fatalf("session rows should hold a digest, got %q", stored)
	}
	n, err := s.DeleteUserSessions(uid)
	if err != nil || n != 1 {
		t.Fatalf("DeleteUserSessions = %d, %v; want 1", n, err)
	}
}

func TestExpiredAuthSession(t *testing.T) {
	s := newTestStore(t)
	uid := insertTestUser(t, s, "alice", model.UserRoleStudent)

	past := time.Now().Add(-48 * time.Hour)
	for _, token := range []string{"stale", "older"} {
		_, err := s.db.Exec(
			`INSERT INTO auth_sessions (id, user_id, created_at, expires_at) VALUES (?, ?, ?, ?)`,
			tokenDigest(token), uid, past, past.Add(time.Hour),
		)
		if err != nil {
			t.Fatalf("insert stale session: %v", err)
		}
	}

	sess, err := s.GetAuthSession("stale")
	if err != nil {
		t.Fatalf("GetAuthSession: %v", err)
	}
	if sess != nil {
		t.Fatal("expected expired session to be rejected")
	}

	n, err := s.CleanupExpiredSessions()
	if err != nil {
		t.Fatalf("CleanupExpiredSessions: %v", err)
	}
	if n != 1 {
		t.Fatalf("CleanupExpiredSessions removed %d rows, want 1", n)
	}
}

func TestConsumeQuota(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	tid, err := s.CreateTenant(model.Tenant{Name: "School", Slug: "school", MonthlyAICorrections: 2})
	if err != nil {
		t.Fatalf("CreateTenant: %v", err)
	}

	march := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	for i := range 2 {
		if err := s.ConsumeQuota(ctx, tid, model.QuotaAICorrection, march); err != nil {
			t.Fatalf("ConsumeQuota #%d: %v", i+1, err)
		}
	}
	err = s.ConsumeQuota(ctx, tid, model.QuotaAICorrection, march)
	if !errors.Is(err, grading.ErrQuotaExceeded) {
		t.Fatalf("expected ErrQuotaExceeded, got %v", err)
	}

	tenant, err := s.GetTenant(tid)
	if err != nil {
		t.Fatalf("GetTenant: %v", err)
	}
	if tenant.UsedAICorrections != 2 || tenant.UsageMonth != "2026-03" {
		t.Fatalf("unexpected counters: %+v", tenant)
	}

	// Unlimited kinds are still counted.
	if err := s.ConsumeQuota(ctx, tid, model.QuotaQuizGeneration, march); err != nil {
		t.Fatalf("ConsumeQuota(unlimited): %v", err)
	}

	// A new month resets every counter.
	april := march.AddDate(0, 1, 0)
	if err := s.ConsumeQuota(ctx, tid, model.QuotaAICorrection, april); err != nil {
		t.Fatalf("ConsumeQuota after month change: %v", err)
	}
	tenant, err = s.GetTenant(tid)
	if err != nil {
		t.Fatalf("GetTenant: %v", err)
	}
	if tenant.UsedAICorrections != 1 || tenant.UsedQuizGenerations != 0 || tenant.UsageMonth != "2026-04" {
		t.Fatalf("expected reset counters, got %+v", tenant)
	}
}

func TestConsumeQuotaErrors(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.ConsumeQuota(ctx, 42, model.QuotaAICorrection, time.Now()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown tenant, got %v", err)
	}
	if err := s.ConsumeQuota(ctx, 1, "tokens", time.Now()); err == nil {
		t.Fatal("expected error for unknown quota kind")
	}

	var q *TenantQuota = s.Quota(nil)
	if err := q.Consume(ctx, model.QuotaAICorrection); err != nil {
		t.Fatalf("nil tenant quota should be unlimited, got %v", err)
	}
}

func TestQuizCRUD(t *testing.T) {
	s := newTestStore(t)
	author := insertTestUser(t, s, "prof", model.UserRoleTeacher)
	id := insertTestQuiz(t, s, author)

	rec, err := s.GetQuiz(id)
	if err != nil {
		t.Fatalf("GetQuiz: %v", err)
	}
	if rec.Title != "Primes" || rec.GradingConfig().Language != model.LangFR {
		t.Fatalf("unexpected quiz: %+v", rec)
	}

	rec.Tone = model.ToneJovial
	rec.Shuffle = true
	if err := s.UpdateQuiz(*rec); err != nil {
		t.Fatalf("UpdateQuiz: %v", err)
	}
	rec, err = s.GetQuiz(id)
	if err != nil {
		t.Fatalf("GetQuiz after update: %v", err)
	}
	if rec.Tone != model.ToneJovial || !rec.Shuffle {
		t.Fatalf("update not applied: %+v", rec)
	}

	if _, err := s.GetQuiz(999); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := s.UpdateQuiz(model.QuizRecord{ID: 999}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on update, got %v", err)
	}

	list, err := s.ListQuizzes(nil)
	if err != nil {
		t.Fatalf("ListQuizzes: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 quiz, got %d", len(list))
	}
	other := int64(7)
	list, err = s.ListQuizzes(&other)
	if err != nil {
		t.Fatalf("ListQuizzes(tenant): %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("expected no quiz for another tenant, got %d", len(list))
	}
}

func newTestSubmission(quizID, studentID int64) *model.Submission {
	sub := &model.Submission{
		UID:         "01HZX0000000000000000000AB",
		QuizID:      quizID,
		StudentID:   studentID,
		SubmittedAt: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		Grades: []model.AnswerGrade{
			{
				Answer:    model.Answer{QuestionIndex: 0, Selected: []int{0, 2}},
				MaxPoints: 20,
				Result:    &model.GradeResult{Score: 20, Provenance: model.ProvenanceAutomatic},
			},
			{
				Answer:        model.Answer{QuestionIndex: 1, Text: "Two divisors", FocusLost: 2},
				MaxPoints:     30,
				NeedsReview:   true,
				FailureReason: "timeout",
			},
		},
	}
	sub.Recompute()
	return sub
}

func TestSubmissionRoundTrip(t *testing.T) {
	s := newTestStore(t)
	author := insertTestUser(t, s, "prof", model.UserRoleTeacher)
	student := insertTestUser(t, s, "alice", model.UserRoleStudent)
	quizID := insertTestQuiz(t, s, author)

	sub := newTestSubmission(quizID, student)
	if err := s.SaveSubmission(sub); err != nil {
		t.Fatalf("SaveSubmission: %v", err)
	}
	if sub.ID == 0 {
		t.Fatal("expected ID to be set")
	}

	got, err := s.GetSubmission(sub.UID)
	if err != nil {
		t.Fatalf("GetSubmission: %v", err)
	}
	if got.Status != model.StatusPartiallyGraded || got.Score != 20 || got.ResolvedMax != 20 || got.MaxScore != 50 {
		t.Fatalf("unexpected totals: %+v", got)
	}
	if len(got.Grades) != 2 {
		t.Fatalf("expected 2 grades, got %d", len(got.Grades))
	}
	if sel := got.Grades[0].Answer.Selected; len(sel) != 2 || sel[0] != 0 || sel[1] != 2 {
		t.Fatalf("unexpected selection: %v", sel)
	}
	if got.Grades[1].Result != nil || !got.Grades[1].NeedsReview || got.Grades[1].FailureReason != "timeout" {
		t.Fatalf("unexpected pending grade: %+v", got.Grades[1])
	}

	pending, err := s.ListPendingReview()
	if err != nil {
		t.Fatalf("ListPendingReview: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected 1 pending submission, got %d", len(pending))
	}

	if err := grading.ApplyOverride(got, 1, 15, "partial", time.Now()); err != nil {
		t.Fatalf("ApplyOverride: %v", err)
	}
	if err := s.UpdateSubmission(got); err != nil {
		t.Fatalf("UpdateSubmission: %v", err)
	}

	got, err = s.GetSubmission(sub.UID)
	if err != nil {
		t.Fatalf("GetSubmission after update: %v", err)
	}
	if got.Status != model.StatusGraded || got.Score != 35 || got.GradedAt == nil {
		t.Fatalf("override not persisted: %+v", got)
	}
	if r := got.Grades[1].Result; r == nil || r.Provenance != model.ProvenanceManual || r.Feedback != "partial" {
		t.Fatalf("unexpected manual grade: %+v", r)
	}

	if _, err := s.GetSubmission("nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestOneSubmissionPerStudent(t *testing.T) {
	s := newTestStore(t)
	author := insertTestUser(t, s, "prof", model.UserRoleTeacher)
	student := insertTestUser(t, s, "alice", model.UserRoleStudent)
	quizID := insertTestQuiz(t, s, author)

	if n, err := s.CountSubmissions(quizID); err != nil || n != 0 {
		t.Fatalf("CountSubmissions = %d, %v; want 0", n, err)
	}
	if err := s.SaveSubmission(newTestSubmission(quizID, student)); err != nil {
		t.Fatalf("SaveSubmission: %v", err)
	}
	done, err := s.HasSubmitted(quizID, student)
	if err != nil || !done {
		t.Fatalf("HasSubmitted = %v, %v; want true", done, err)
	}
	if done, _ := s.HasSubmitted(quizID, author); done {
		t.Fatal("author has not submitted")
	}

	again := newTestSubmission(quizID, student)
	again.UID = "01HZX0000000000000000000CD"
	if err := s.SaveSubmission(again); !errors.Is(err, ErrAlreadySubmitted) {
		t.Fatalf("expected ErrAlreadySubmitted, got %v", err)
	}
	if n, err := s.CountSubmissions(quizID); err != nil || n != 1 {
		t.Fatalf("CountSubmissions = %d, %v; want 1", n, err)
	}
}

func TestAnalysis(t *testing.T) {
	s := newTestStore(t)
	author := insertTestUser(t, s, "prof", model.UserRoleTeacher)
	sub := newTestSubmission(insertTestQuiz(t, s, author), author)
	if err := s.SaveSubmission(sub); err != nil {
		t.Fatalf("SaveSubmission: %v", err)
	}

	a, err := s.GetAnalysis(sub.UID)
	if err != nil {
		t.Fatalf("GetAnalysis: %v", err)
	}
	if a != "" {
		t.Fatalf("expected empty analysis, got %q", a)
	}
	if err := s.SetAnalysis(sub.UID, `{"summary":"ok"}`); err != nil {
		t.Fatalf("SetAnalysis: %v", err)
	}
	if a, _ = s.GetAnalysis(sub.UID); a != `{"summary":"ok"}` {
		t.Fatalf("unexpected analysis %q", a)
	}
	if err := s.SetAnalysis("nope", "{}"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestExportResults(t *testing.T) {
	s := newTestStore(t)
	author := insertTestUser(t, s, "prof", model.UserRoleTeacher)
	student := insertTestUser(t, s, "alice", model.UserRoleStudent)
	quizID := insertTestQuiz(t, s, author)
	if err := s.SaveSubmission(newTestSubmission(quizID, student)); err != nil {
		t.Fatalf("SaveSubmission: %v", err)
	}

	results, err := s.ExportResults(quizID)
	if err != nil {
		t.Fatalf("ExportResults: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	r := results[0]
	if r.Username != "alice" || r.QuizTitle != "Primes" || r.Percentage != 100 {
		t.Fatalf("unexpected result: %+v", r)
	}
	if len(r.Questions) != 2 {
		t.Fatalf("expected 2 questions, got %d", len(r.Questions))
	}
	if q := r.Questions[0]; q.Kind != model.KindMultipleChoice || q.Answer != "2; 5" || q.Score == nil || *q.Score != 20 {
		t.Fatalf("unexpected choice result: %+v", q)
	}
	if q := r.Questions[1]; q.Text != "Define a prime." || q.Score != nil || !q.NeedsReview {
		t.Fatalf("unexpected open result: %+v", q)
	}
}

func TestDefaultGradingConfig(t *testing.T) {
	s := newTestStore(t)

	_, ok, err := s.DefaultGradingConfig()
	if err != nil {
		t.Fatalf("DefaultGradingConfig: %v", err)
	}
	if ok {
		t.Fatal("expected no defaults on a fresh database")
	}

	if err := s.SetDefaultGradingConfig(model.GradingConfig{Severity: "harsh"}); err == nil {
		t.Fatal("expected invalid config to be rejected")
	}

	want := model.GradingConfig{Severity: model.SeverityStrict, Tone: model.ToneProfessorial, Language: model.LangEN}
	if err := s.SetDefaultGradingConfig(want); err != nil {
		t.Fatalf("SetDefaultGradingConfig: %v", err)
	}
	got, ok, err := s.DefaultGradingConfig()
	if err != nil || !ok || got != want {
		t.Fatalf("got %+v ok=%v err=%v, want %+v", got, ok, err, want)
	}
}
