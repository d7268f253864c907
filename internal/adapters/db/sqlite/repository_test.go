package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/eventmesa/regsvc/internal/domain"
)

func newTestRepository(t *testing.T) *RegistrationRepository {
	t.Helper()
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "regsvc_test.db")

	db, err := Open(dbPath)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := RunMigrations(ctx, db); err != nil {
		t.Fatalf("run migrations: %v", err)
	}
	return NewRegistrationRepository(db)
}

func strptr(s string) *string { return &s }

func floatptr(f float64) *float64 { return &f }

func TestQuestionConfigurationRoundtrip(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	number, err := repo.CreateQuestion(ctx, domain.Question{
		ID:        "q-number",
		FormKind:  domain.FormKindProfile,
		Type:      domain.QuestionTypeNumber,
		Title:     "Your age",
		Mandatory: true,
		Number:    &domain.NumberConfig{MinValue: floatptr(0), MaxValue: floatptr(120)},
		SortIndex: 1,
	})
	if err != nil {
		t.Fatalf("create number question: %v", err)
	}
	if number.Number == nil || number.Number.MaxValue == nil || *number.Number.MaxValue != 120 {
		t.Fatalf("expected number configuration to survive, got %+v", number.Number)
	}

	choices, err := repo.CreateQuestion(ctx, domain.Question{
		ID:        "q-choices",
		FormKind:  domain.FormKindProfile,
		Type:      domain.QuestionTypeChoices,
		Title:     "Shirt size",
		Choices:   &domain.ChoicesConfig{Choices: []string{"S", "M", "L"}, AllowMultiple: false},
		SortIndex: 2,
	})
	if err != nil {
		t.Fatalf("create choices question: %v", err)
	}

	loaded, err := repo.GetQuestionByID(ctx, choices.ID)
	if err != nil {
		t.Fatalf("load question: %v", err)
	}
	if loaded.Choices == nil || len(loaded.Choices.Choices) != 3 {
		t.Fatalf("expected choices configuration to survive, got %+v", loaded.Choices)
	}

	listed, err := repo.ListQuestions(ctx, domain.FormKindProfile)
	if err != nil {
		t.Fatalf("list questions: %v", err)
	}
	if len(listed) != 2 {
		t.Fatalf("expected 2 profile questions, got %d", len(listed))
	}
	if listed[0].ID != "q-number" || listed[1].ID != "q-choices" {
		t.Fatalf("expected sort_index ordering, got %s, %s", listed[0].ID, listed[1].ID)
	}

	confirmation, err := repo.ListQuestions(ctx, domain.FormKindConfirmation)
	if err != nil {
		t.Fatalf("list confirmation questions: %v", err)
	}
	if len(confirmation) != 0 {
		t.Fatalf("expected no confirmation questions, got %d", len(confirmation))
	}
}

func TestGetQuestionByIDNotFound(t *testing.T) {
	repo := newTestRepository(t)

	_, err := repo.GetQuestionByID(context.Background(), "missing")
	var notFound *domain.QuestionNotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected QuestionNotFoundError, got %v", err)
	}
}

func TestUpdateQuestionClearsParentLink(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	parent, err := repo.CreateQuestion(ctx, domain.Question{
		ID: "parent", FormKind: domain.FormKindProfile, Type: domain.QuestionTypeText, Title: "Parent",
	})
	if err != nil {
		t.Fatalf("create parent: %v", err)
	}
	child, err := repo.CreateQuestion(ctx, domain.Question{
		ID: "child", FormKind: domain.FormKindProfile, Type: domain.QuestionTypeText, Title: "Child",
		ParentID: strptr(parent.ID), ShowIfParentHasValue: strptr("yes"),
	})
	if err != nil {
		t.Fatalf("create child: %v", err)
	}

	child.ParentID = nil
	child.ShowIfParentHasValue = nil
	updated, err := repo.UpdateQuestion(ctx, child)
	if err != nil {
		t.Fatalf("update question: %v", err)
	}
	if updated.ParentID != nil || updated.ShowIfParentHasValue != nil {
		t.Fatalf("expected parent link to be cleared, got %+v", updated)
	}
}

func TestSaveAnswersUpsertsByID(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	if _, err := repo.CreateQuestion(ctx, domain.Question{
		ID: "q1", FormKind: domain.FormKindProfile, Type: domain.QuestionTypeText, Title: "Name",
	}); err != nil {
		t.Fatalf("create question: %v", err)
	}
	user, err := repo.CreateUser(ctx, domain.User{Email: "a@example.com", PasswordHash: "x", Role: domain.RoleApplicant})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	answer := domain.Answer{ID: "a1", UserID: user.ID, QuestionID: "q1", Value: "first"}
	if err := repo.SaveAnswers(ctx, []domain.Answer{answer}); err != nil {
		t.Fatalf("save answers: %v", err)
	}

	answer.Value = "second"
	if err := repo.SaveAnswers(ctx, []domain.Answer{answer}); err != nil {
		t.Fatalf("resave answers: %v", err)
	}

	answers, err := repo.ListAnswers(ctx, user.ID, []string{"q1"})
	if err != nil {
		t.Fatalf("list answers: %v", err)
	}
	if len(answers) != 1 {
		t.Fatalf("expected one answer row, got %d", len(answers))
	}
	if answers[0].Value != "second" {
		t.Fatalf("expected value to be overwritten, got %q", answers[0].Value)
	}
}

func TestDeleteQuestionRemovesAnswers(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	if _, err := repo.CreateQuestion(ctx, domain.Question{
		ID: "q1", FormKind: domain.FormKindProfile, Type: domain.QuestionTypeText, Title: "Name",
	}); err != nil {
		t.Fatalf("create question: %v", err)
	}
	user, err := repo.CreateUser(ctx, domain.User{Email: "a@example.com", PasswordHash: "x", Role: domain.RoleApplicant})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if err := repo.SaveAnswers(ctx, []domain.Answer{{ID: "a1", UserID: user.ID, QuestionID: "q1", Value: "v"}}); err != nil {
		t.Fatalf("save answers: %v", err)
	}

	if err := repo.DeleteQuestion(ctx, "q1"); err != nil {
		t.Fatalf("delete question: %v", err)
	}

	answers, err := repo.ListAnswers(ctx, user.ID, []string{"q1"})
	if err != nil {
		t.Fatalf("list answers: %v", err)
	}
	if len(answers) != 0 {
		t.Fatalf("expected answers to be removed with the question, got %d", len(answers))
	}
}

func TestUserLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	u, err := repo.CreateUser(ctx, domain.User{Email: "a@example.com", PasswordHash: "hash", Role: domain.RoleApplicant})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if u.ID == 0 {
		t.Fatalf("expected an assigned user id")
	}

	if _, err := repo.CreateUser(ctx, domain.User{Email: "a@example.com", PasswordHash: "hash", Role: domain.RoleApplicant}); err == nil {
		t.Fatalf("expected duplicate email to be rejected")
	}

	submitted := time.Date(2025, time.June, 1, 10, 0, 0, 0, time.UTC)
	deadline := submitted.Add(24 * time.Hour)
	u.Admitted = true
	u.InitialProfileFormSubmittedAt = &submitted
	u.ConfirmationExpiresAt = &deadline
	u.Confirmed = true

	saved, err := repo.SaveUser(ctx, u)
	if err != nil {
		t.Fatalf("save user: %v", err)
	}
	if !saved.Admitted || !saved.Confirmed {
		t.Fatalf("expected flags to persist, got %+v", saved)
	}
	if saved.InitialProfileFormSubmittedAt == nil || !saved.InitialProfileFormSubmittedAt.Equal(submitted) {
		t.Fatalf("expected submission time to persist")
	}

	// Clearing nullable fields must write NULL, not keep the old value.
	saved.ConfirmationExpiresAt = nil
	saved.Admitted = false
	saved, err = repo.SaveUser(ctx, saved)
	if err != nil {
		t.Fatalf("save user again: %v", err)
	}
	if saved.ConfirmationExpiresAt != nil || saved.Admitted {
		t.Fatalf("expected cleared fields to persist, got %+v", saved)
	}

	count, err := repo.CountUsers(ctx)
	if err != nil {
		t.Fatalf("count users: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 user, got %d", count)
	}

	byEmail, err := repo.GetUserByEmail(ctx, "a@example.com")
	if err != nil {
		t.Fatalf("get by email: %v", err)
	}
	if byEmail.ID != u.ID {
		t.Fatalf("expected user %d, got %d", u.ID, byEmail.ID)
	}

	matches, err := repo.ListUsers(ctx, "a@", 10)
	if err != nil {
		t.Fatalf("list users: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected 1 match, got %d", len(matches))
	}
}

func TestSettingsDefaultRowAndUpdate(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	settings, err := repo.GetSettings(ctx)
	if err != nil {
		t.Fatalf("get settings: %v", err)
	}
	if settings.HoursToConfirm <= 0 {
		t.Fatalf("expected a seeded hours_to_confirm, got %d", settings.HoursToConfirm)
	}

	settings.EventName = "Testaburg"
	settings.HoursToConfirm = 72
	settings.AllowProfileFormFrom = time.Date(2025, time.May, 1, 0, 0, 0, 0, time.UTC)
	settings.AllowProfileFormUntil = time.Date(2025, time.July, 1, 0, 0, 0, 0, time.UTC)

	updated, err := repo.UpdateSettings(ctx, settings)
	if err != nil {
		t.Fatalf("update settings: %v", err)
	}
	if updated.EventName != "Testaburg" || updated.HoursToConfirm != 72 {
		t.Fatalf("expected settings to persist, got %+v", updated)
	}
	if !updated.AllowProfileFormFrom.Equal(settings.AllowProfileFormFrom) {
		t.Fatalf("expected window start to persist")
	}
}

func TestSessionsAndTokens(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	u, err := repo.CreateUser(ctx, domain.User{Email: "a@example.com", PasswordHash: "x", Role: domain.RoleStaff})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	session, err := repo.CreateSession(ctx, domain.AuthSession{
		UserID: u.ID, TokenHash: "hash1", ExpiresAt: time.Now().Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	loaded, err := repo.GetSessionByTokenHash(ctx, "hash1")
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if loaded.ID != session.ID || loaded.UserID != u.ID {
		t.Fatalf("unexpected session %+v", loaded)
	}

	if err := repo.DeleteSessionByTokenHash(ctx, "hash1"); err != nil {
		t.Fatalf("delete session: %v", err)
	}
	if _, err := repo.GetSessionByTokenHash(ctx, "hash1"); err == nil {
		t.Fatalf("expected deleted session to be gone")
	}

	token, err := repo.CreateAPIToken(ctx, domain.APIToken{UserID: u.ID, Name: "cli", TokenHash: "hash2"})
	if err != nil {
		t.Fatalf("create token: %v", err)
	}
	loadedToken, err := repo.GetAPITokenByTokenHash(ctx, "hash2")
	if err != nil {
		t.Fatalf("get token: %v", err)
	}
	if loadedToken.ID != token.ID || loadedToken.ExpiresAt != nil {
		t.Fatalf("unexpected token %+v", loadedToken)
	}
}

func TestAuditLogListsActorEmail(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	u, err := repo.CreateUser(ctx, domain.User{Email: "staff@example.com", PasswordHash: "x", Role: domain.RoleStaff})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	if err := repo.CreateAuditLog(ctx, domain.AuditLog{
		ActorUserID: &u.ID, Action: "admission.admit", TargetType: "user", TargetID: "7",
	}); err != nil {
		t.Fatalf("create audit log: %v", err)
	}
	if err := repo.CreateAuditLog(ctx, domain.AuditLog{
		Action: "auth.bootstrap_staff", TargetType: "user", TargetID: "1",
	}); err != nil {
		t.Fatalf("create audit log: %v", err)
	}

	records, err := repo.ListAuditLogs(ctx, 10)
	if err != nil {
		t.Fatalf("list audit logs: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	// Newest first.
	if records[0].Action != "auth.bootstrap_staff" {
		t.Fatalf("expected newest record first, got %s", records[0].Action)
	}
	if records[1].ActorUserEmail != "staff@example.com" {
		t.Fatalf("expected actor email to be resolved, got %q", records[1].ActorUserEmail)
	}
}
