package application

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/eventmesa/regsvc/internal/domain"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// RegistrationService orchestrates the registration workflows: form
// retrieval, answer submission, admission and the staff-facing management
// surface. All state lives behind the repository port; the service itself
// holds no mutable state and is safe for concurrent use.
type RegistrationService struct {
	repo domain.RegistrationRepository
	now  func() time.Time
}

func NewRegistrationService(repo domain.RegistrationRepository) *RegistrationService {
	return &RegistrationService{
		repo: repo,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the service clock. Tests use it to pin the registration
// window and deadline checks.
func (s *RegistrationService) WithClock(now func() time.Time) *RegistrationService {
	s.now = now
	return s
}

// GetProfileForm returns the profile questions the user is expected to
// answer, together with their existing answers. After a first submission the
// question set is frozen to what existed at that time; questions added later
// are asked on the confirmation form instead.
func (s *RegistrationService) GetProfileForm(ctx context.Context, user domain.User) (domain.Form, error) {
	questions, err := s.repo.ListQuestions(ctx, domain.FormKindProfile)
	if err != nil {
		return domain.Form{}, err
	}

	if submittedAt := user.InitialProfileFormSubmittedAt; submittedAt != nil {
		asked := make([]domain.Question, 0, len(questions))
		for _, q := range questions {
			if !q.CreatedAt.After(*submittedAt) {
				asked = append(asked, q)
			}
		}
		questions = asked
	}

	answers, err := s.repo.ListAnswers(ctx, user.ID, questionIDs(questions))
	if err != nil {
		return domain.Form{}, err
	}

	return domain.Form{Title: "Application", Questions: questions, Answers: answers}, nil
}

// GetConfirmationForm returns the confirmation questions for an admitted
// user, prefixed with the profile questions that were added after the user's
// initial submission. Those skipped questions must form a self-contained
// graph on their own; a skipped child whose parent was already asked cannot
// be rendered meaningfully.
func (s *RegistrationService) GetConfirmationForm(ctx context.Context, user domain.User) (domain.Form, error) {
	if user.ConfirmationExpiresAt == nil {
		return domain.Form{}, &domain.NotAdmittedError{}
	}

	skipped, err := s.skippedProfileQuestions(ctx, user)
	if err != nil {
		return domain.Form{}, err
	}

	confirmationQuestions, err := s.repo.ListQuestions(ctx, domain.FormKindConfirmation)
	if err != nil {
		return domain.Form{}, err
	}

	questions := append(skipped, confirmationQuestions...)
	answers, err := s.repo.ListAnswers(ctx, user.ID, questionIDs(questions))
	if err != nil {
		return domain.Form{}, err
	}

	return domain.Form{Title: "Confirmation", Questions: questions, Answers: answers}, nil
}

func (s *RegistrationService) skippedProfileQuestions(ctx context.Context, user domain.User) ([]domain.Question, error) {
	profileQuestions, err := s.repo.ListQuestions(ctx, domain.FormKindProfile)
	if err != nil {
		return nil, err
	}

	skipped := make([]domain.Question, 0)
	for _, q := range profileQuestions {
		if user.InitialProfileFormSubmittedAt == nil || q.CreatedAt.After(*user.InitialProfileFormSubmittedAt) {
			skipped = append(skipped, q)
		}
	}

	if _, err := BuildQuestionGraph(skipped); err != nil {
		return nil, &domain.IncompleteProfileFormError{Reason: err}
	}
	return skipped, nil
}

// StoreProfileAnswers validates and persists a profile submission. It fails
// with *domain.FormNotAvailableError outside the registration window. The
// first successful submission stamps the user's initial submission time.
func (s *RegistrationService) StoreProfileAnswers(ctx context.Context, user domain.User, raw []domain.RawAnswer) error {
	settings, err := s.repo.GetSettings(ctx)
	if err != nil {
		return err
	}

	now := s.now()
	if now.Before(settings.AllowProfileFormFrom) || now.After(settings.AllowProfileFormUntil) {
		return &domain.FormNotAvailableError{
			From:  settings.AllowProfileFormFrom,
			Until: settings.AllowProfileFormUntil,
			Now:   now,
		}
	}

	form, err := s.GetProfileForm(ctx, user)
	if err != nil {
		return err
	}
	if err := s.replaceAnswers(ctx, user, form.Questions, raw); err != nil {
		return err
	}

	if user.InitialProfileFormSubmittedAt == nil {
		submittedAt := now
		user.InitialProfileFormSubmittedAt = &submittedAt
		if _, err := s.repo.SaveUser(ctx, user); err != nil {
			return err
		}
	}
	return nil
}

// StoreConfirmationAnswers validates and persists a confirmation submission,
// covering the confirmation questions plus any profile questions the user
// skipped. A successful submission confirms the user's spot.
func (s *RegistrationService) StoreConfirmationAnswers(ctx context.Context, user domain.User, raw []domain.RawAnswer) error {
	if user.ConfirmationExpiresAt == nil {
		return &domain.NotAdmittedError{}
	}
	if s.now().After(*user.ConfirmationExpiresAt) {
		return &domain.ConfirmationDeadlineFailedError{Deadline: *user.ConfirmationExpiresAt}
	}

	form, err := s.GetConfirmationForm(ctx, user)
	if err != nil {
		return err
	}
	if err := s.replaceAnswers(ctx, user, form.Questions, raw); err != nil {
		return err
	}

	if !user.Confirmed {
		user.Confirmed = true
		if _, err := s.repo.SaveUser(ctx, user); err != nil {
			return err
		}
	}
	return nil
}

// replaceAnswers is the shared submission core. It builds the question graph,
// resolves the raw payload against the user's existing answers and walks the
// graph from the roots, enforcing mandatory and visibility rules per node.
// Nothing is persisted unless the whole walk succeeds.
func (s *RegistrationService) replaceAnswers(ctx context.Context, user domain.User, questions []domain.Question, raw []domain.RawAnswer) error {
	graph, err := BuildQuestionGraph(questions)
	if err != nil {
		return err
	}

	existing, err := s.repo.ListAnswers(ctx, user.ID, questionIDs(questions))
	if err != nil {
		return err
	}
	answersByQuestion := make(map[string]domain.Answer, len(existing))
	for _, a := range existing {
		answersByQuestion[a.QuestionID] = a
	}

	// Resolve each raw answer to a fresh answer value keyed by question id.
	// Existing rows keep their identity so resubmission overwrites instead of
	// duplicating.
	resolved := make(map[string]domain.Answer, len(raw))
	givenValues := make(map[string]string, len(raw))
	for _, ra := range raw {
		if _, ok := graph.Node(ra.QuestionID); !ok {
			return &domain.QuestionNotFoundError{QuestionID: ra.QuestionID}
		}
		answer, ok := answersByQuestion[ra.QuestionID]
		if !ok {
			answer = domain.Answer{
				ID:         uuid.NewString(),
				UserID:     user.ID,
				QuestionID: ra.QuestionID,
			}
		}
		answer.Value = ra.Value
		resolved[ra.QuestionID] = answer
		givenValues[ra.QuestionID] = ra.Value
	}

	toSave := make([]domain.Answer, 0, len(resolved))
	queue := graph.Roots()
	for len(queue) > 0 {
		node := queue[0]
		queue = append(queue[1:], node.Children...)
		q := node.Question

		answer, has := resolved[q.ID]
		if !has || answer.Value == "" {
			if !q.Mandatory {
				continue
			}
			if node.Parent == nil {
				return &domain.QuestionNotAnsweredError{Title: q.Title, QuestionID: q.ID}
			}

			// Visibility is decided on the parent's value in this same
			// payload, compared without any normalization.
			parentValue, answered := givenValues[node.Parent.Question.ID]
			if !answered {
				return &domain.QuestionGraphBrokenError{QuestionID: q.ID, ParentID: node.Parent.Question.ID}
			}
			if q.ShowIfParentHasValue != nil && parentValue == *q.ShowIfParentHasValue {
				return &domain.QuestionNotAnsweredError{Title: q.Title, QuestionID: q.ID}
			}
			continue
		}

		if !ValidAnswer(q, answer.Value) {
			return &domain.InvalidAnswerError{Title: q.Title, QuestionID: q.ID, Value: answer.Value}
		}
		toSave = append(toSave, answer)
	}

	return s.repo.SaveAnswers(ctx, toSave)
}

// Admit marks the given applicants as admitted and starts each one's
// confirmation clock at now plus the configured number of hours. All users
// are persisted in one batch.
func (s *RegistrationService) Admit(ctx context.Context, userIDs []uint) error {
	if len(userIDs) == 0 {
		return errors.New("at least one user id is required")
	}

	settings, err := s.repo.GetSettings(ctx)
	if err != nil {
		return err
	}
	expiresAt := s.now().Add(time.Duration(settings.HoursToConfirm) * time.Hour)

	users := make([]domain.User, 0, len(userIDs))
	for _, id := range userIDs {
		user, err := s.repo.GetUserByID(ctx, id)
		if err != nil {
			return fmt.Errorf("load user %d: %w", id, err)
		}
		deadline := expiresAt
		user.Admitted = true
		user.ConfirmationExpiresAt = &deadline
		users = append(users, user)
	}

	return s.repo.SaveUsers(ctx, users)
}

// ListApplicants returns applicant accounts with their submission state for
// the review dashboard.
func (s *RegistrationService) ListApplicants(ctx context.Context, query string, limit int) ([]domain.User, error) {
	if limit <= 0 {
		limit = 200
	}
	if limit > 2000 {
		limit = 2000
	}
	return s.repo.ListUsers(ctx, query, limit)
}

func (s *RegistrationService) GetSettings(ctx context.Context) (domain.Settings, error) {
	return s.repo.GetSettings(ctx)
}

func (s *RegistrationService) UpdateSettings(ctx context.Context, settings domain.Settings) (domain.Settings, error) {
	if settings.AllowProfileFormUntil.Before(settings.AllowProfileFormFrom) {
		return domain.Settings{}, errors.New("the registration window must close after it opens")
	}
	if settings.HoursToConfirm <= 0 {
		return domain.Settings{}, errors.New("hours_to_confirm must be positive")
	}
	return s.repo.UpdateSettings(ctx, settings)
}

func (s *RegistrationService) ListQuestions(ctx context.Context, kind domain.FormKind) ([]domain.Question, error) {
	if kind != domain.FormKindProfile && kind != domain.FormKindConfirmation {
		return nil, fmt.Errorf("unknown form kind %q", kind)
	}
	return s.repo.ListQuestions(ctx, kind)
}

// CreateQuestion adds a question to a form. The resulting question set must
// still build into a valid graph, so a bad parent reference is rejected here
// instead of surfacing later during a submission.
func (s *RegistrationService) CreateQuestion(ctx context.Context, q domain.Question) (domain.Question, error) {
	if err := validateQuestionDefinition(q); err != nil {
		return domain.Question{}, err
	}
	if q.ID == "" {
		q.ID = uuid.NewString()
	}

	existing, err := s.repo.ListQuestions(ctx, q.FormKind)
	if err != nil {
		return domain.Question{}, err
	}
	if _, err := BuildQuestionGraph(append(existing, q)); err != nil {
		return domain.Question{}, err
	}

	return s.repo.CreateQuestion(ctx, q)
}

func (s *RegistrationService) UpdateQuestion(ctx context.Context, q domain.Question) (domain.Question, error) {
	if err := validateQuestionDefinition(q); err != nil {
		return domain.Question{}, err
	}

	current, err := s.repo.GetQuestionByID(ctx, q.ID)
	if err != nil {
		return domain.Question{}, err
	}
	if current.FormKind != q.FormKind {
		return domain.Question{}, errors.New("a question cannot move between forms")
	}

	existing, err := s.repo.ListQuestions(ctx, q.FormKind)
	if err != nil {
		return domain.Question{}, err
	}
	updated := make([]domain.Question, 0, len(existing))
	for _, other := range existing {
		if other.ID == q.ID {
			updated = append(updated, q)
			continue
		}
		updated = append(updated, other)
	}
	if _, err := BuildQuestionGraph(updated); err != nil {
		return domain.Question{}, err
	}

	return s.repo.UpdateQuestion(ctx, q)
}

func (s *RegistrationService) DeleteQuestion(ctx context.Context, id string) error {
	q, err := s.repo.GetQuestionByID(ctx, id)
	if err != nil {
		return err
	}

	siblings, err := s.repo.ListQuestions(ctx, q.FormKind)
	if err != nil {
		return err
	}
	for _, other := range siblings {
		if other.ParentID != nil && *other.ParentID == id {
			return fmt.Errorf("question %q still depends on this question", other.Title)
		}
	}

	return s.repo.DeleteQuestion(ctx, id)
}

func validateQuestionDefinition(q domain.Question) error {
	if strings.TrimSpace(q.Title) == "" {
		return errors.New("a question title is required")
	}
	if q.FormKind != domain.FormKindProfile && q.FormKind != domain.FormKindConfirmation {
		return fmt.Errorf("unknown form kind %q", q.FormKind)
	}
	switch q.Type {
	case domain.QuestionTypeText, domain.QuestionTypeCountry:
	case domain.QuestionTypeNumber:
	case domain.QuestionTypeChoices:
		if q.Choices == nil || len(q.Choices.Choices) == 0 {
			return errors.New("a choices question needs at least one option")
		}
	default:
		return fmt.Errorf("unknown question type %q", q.Type)
	}
	if q.ParentID == nil && q.ShowIfParentHasValue != nil {
		return errors.New("show_if_parent_has_value requires a parent question")
	}
	return nil
}

// Signup registers a new applicant account.
func (s *RegistrationService) Signup(ctx context.Context, email, password string) (domain.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return domain.User{}, errors.New("a valid email address is required")
	}
	if len(password) < 6 {
		return domain.User{}, errors.New("the password must be at least 6 characters long")
	}

	hash, err := hashPassword(password)
	if err != nil {
		return domain.User{}, err
	}
	return s.repo.CreateUser(ctx, domain.User{Email: email, PasswordHash: hash, Role: domain.RoleApplicant})
}

// BootstrapStaff creates the initial staff account and default settings on an
// empty database. It is a no-op once any user exists.
func (s *RegistrationService) BootstrapStaff(ctx context.Context, email, password string) error {
	if strings.TrimSpace(email) == "" || strings.TrimSpace(password) == "" {
		return errors.New("bootstrap staff email and password are required")
	}

	count, err := s.repo.CountUsers(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	hash, err := hashPassword(password)
	if err != nil {
		return err
	}
	u, err := s.repo.CreateUser(ctx, domain.User{
		Email:        strings.ToLower(strings.TrimSpace(email)),
		PasswordHash: hash,
		Role:         domain.RoleStaff,
	})
	if err != nil {
		return err
	}

	return s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ActorUserID: &u.ID,
		Action:      "auth.bootstrap_staff",
		TargetType:  "user",
		TargetID:    fmt.Sprintf("%d", u.ID),
		Metadata:    "initial staff account created",
	})
}

func (s *RegistrationService) LoginWithSession(ctx context.Context, email, password string, ttl time.Duration) (domain.User, string, error) {
	u, err := s.authenticateEmailPassword(ctx, email, password)
	if err != nil {
		return domain.User{}, "", err
	}

	plain, hash, err := newTokenPair()
	if err != nil {
		return domain.User{}, "", err
	}
	_, err = s.repo.CreateSession(ctx, domain.AuthSession{
		UserID:    u.ID,
		TokenHash: hash,
		ExpiresAt: s.now().Add(ttl),
	})
	if err != nil {
		return domain.User{}, "", err
	}
	return u, plain, nil
}

func (s *RegistrationService) LoginWithAPIToken(ctx context.Context, email, password, tokenName string, ttl *time.Duration) (domain.User, string, error) {
	u, err := s.authenticateEmailPassword(ctx, email, password)
	if err != nil {
		return domain.User{}, "", err
	}

	plain, hash, err := newTokenPair()
	if err != nil {
		return domain.User{}, "", err
	}
	var expiresAt *time.Time
	if ttl != nil {
		t := s.now().Add(*ttl)
		expiresAt = &t
	}
	_, err = s.repo.CreateAPIToken(ctx, domain.APIToken{
		UserID:    u.ID,
		Name:      defaultString(tokenName, "cli"),
		TokenHash: hash,
		ExpiresAt: expiresAt,
	})
	if err != nil {
		return domain.User{}, "", err
	}
	return u, plain, nil
}

func (s *RegistrationService) AuthenticateSession(ctx context.Context, token string) (domain.Identity, error) {
	hash := hashToken(token)
	session, err := s.repo.GetSessionByTokenHash(ctx, hash)
	if err != nil {
		return domain.Identity{}, errors.New("unauthorized")
	}
	if session.ExpiresAt.Before(s.now()) {
		_ = s.repo.DeleteSessionByTokenHash(ctx, hash)
		return domain.Identity{}, errors.New("session expired")
	}

	u, err := s.repo.GetUserByID(ctx, session.UserID)
	if err != nil {
		return domain.Identity{}, errors.New("unauthorized")
	}
	return domain.Identity{User: u}, nil
}

func (s *RegistrationService) AuthenticateBearerToken(ctx context.Context, token string) (domain.Identity, error) {
	apit, err := s.repo.GetAPITokenByTokenHash(ctx, hashToken(token))
	if err != nil {
		return domain.Identity{}, errors.New("unauthorized")
	}
	if apit.ExpiresAt != nil && apit.ExpiresAt.Before(s.now()) {
		return domain.Identity{}, errors.New("token expired")
	}

	u, err := s.repo.GetUserByID(ctx, apit.UserID)
	if err != nil {
		return domain.Identity{}, errors.New("unauthorized")
	}
	return domain.Identity{User: u}, nil
}

func (s *RegistrationService) LogoutSession(ctx context.Context, token string) error {
	if strings.TrimSpace(token) == "" {
		return nil
	}
	return s.repo.DeleteSessionByTokenHash(ctx, hashToken(token))
}

// IsStaff gates the management surface.
func (s *RegistrationService) IsStaff(identity domain.Identity) bool {
	return identity.User.Role == domain.RoleStaff
}

func (s *RegistrationService) WriteAudit(ctx context.Context, actorUserID *uint, action, targetType, targetID, metadata string) {
	_ = s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ActorUserID: actorUserID,
		Action:      action,
		TargetType:  targetType,
		TargetID:    targetID,
		Metadata:    metadata,
	})
}

func (s *RegistrationService) ListAuditLogs(ctx context.Context, limit int) ([]domain.AuditRecord, error) {
	if limit <= 0 {
		limit = 200
	}
	if limit > 2000 {
		limit = 2000
	}
	return s.repo.ListAuditLogs(ctx, limit)
}

func (s *RegistrationService) authenticateEmailPassword(ctx context.Context, email, password string) (domain.User, error) {
	u, err := s.repo.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return domain.User{}, errors.New("invalid credentials")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return domain.User{}, errors.New("invalid credentials")
	}
	return u, nil
}

func questionIDs(questions []domain.Question) []string {
	ids := make([]string, 0, len(questions))
	for _, q := range questions {
		ids = append(ids, q.ID)
	}
	return ids
}

func hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func newTokenPair() (string, string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", "", err
	}
	plain := base64.RawURLEncoding.EncodeToString(raw)
	return plain, hashToken(plain), nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return fmt.Sprintf("%x", sum[:])
}

func defaultString(input, fallback string) string {
	if strings.TrimSpace(input) == "" {
		return fallback
	}
	return input
}
