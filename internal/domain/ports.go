package domain

import "context"

type RegistrationRepository interface {
	ListQuestions(ctx context.Context, kind FormKind) ([]Question, error)
	GetQuestionByID(ctx context.Context, id string) (Question, error)
	CreateQuestion(ctx context.Context, q Question) (Question, error)
	UpdateQuestion(ctx context.Context, q Question) (Question, error)
	DeleteQuestion(ctx context.Context, id string) error

	ListAnswers(ctx context.Context, userID uint, questionIDs []string) ([]Answer, error)
	// SaveAnswers persists the batch atomically: either every answer is
	// written or none is.
	SaveAnswers(ctx context.Context, answers []Answer) error

	CreateUser(ctx context.Context, u User) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
	GetUserByID(ctx context.Context, id uint) (User, error)
	ListUsers(ctx context.Context, query string, limit int) ([]User, error)
	CountUsers(ctx context.Context) (int64, error)
	SaveUser(ctx context.Context, u User) (User, error)
	SaveUsers(ctx context.Context, users []User) error

	GetSettings(ctx context.Context) (Settings, error)
	UpdateSettings(ctx context.Context, s Settings) (Settings, error)

	CreateSession(ctx context.Context, s AuthSession) (AuthSession, error)
	GetSessionByTokenHash(ctx context.Context, tokenHash string) (AuthSession, error)
	DeleteSessionByTokenHash(ctx context.Context, tokenHash string) error
	CreateAPIToken(ctx context.Context, t APIToken) (APIToken, error)
	GetAPITokenByTokenHash(ctx context.Context, tokenHash string) (APIToken, error)

	CreateAuditLog(ctx context.Context, entry AuditLog) error
	ListAuditLogs(ctx context.Context, limit int) ([]AuditRecord, error)
}
