package sqlite

import "time"

type QuestionModel struct {
	ID                   string `gorm:"primaryKey"`
	FormKind             string `gorm:"not null;index"`
	Type                 string `gorm:"not null"`
	Title                string `gorm:"not null"`
	Description          string
	Placeholder          string
	Mandatory            bool `gorm:"not null;default:false"`
	ParentID             *string
	ShowIfParentHasValue *string
	Configuration        string `gorm:"not null;default:''"`
	SortIndex            int    `gorm:"not null;default:0"`
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

func (QuestionModel) TableName() string { return "questions" }

type AnswerModel struct {
	ID         string `gorm:"primaryKey"`
	UserID     uint   `gorm:"not null;index:idx_user_question,unique"`
	QuestionID string `gorm:"not null;index:idx_user_question,unique"`
	Value      string `gorm:"not null"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (AnswerModel) TableName() string { return "answers" }

type UserModel struct {
	ID                            uint   `gorm:"primaryKey"`
	Email                         string `gorm:"not null;uniqueIndex"`
	PasswordHash                  string `gorm:"not null"`
	Role                          string `gorm:"not null;default:'applicant'"`
	Admitted                      bool   `gorm:"not null;default:false"`
	InitialProfileFormSubmittedAt *time.Time
	ConfirmationExpiresAt         *time.Time
	Confirmed                     bool `gorm:"not null;default:false"`
	CreatedAt                     time.Time
	UpdatedAt                     time.Time
}

func (UserModel) TableName() string { return "users" }

type SettingsModel struct {
	ID                    uint   `gorm:"primaryKey"`
	EventName             string `gorm:"not null;default:''"`
	AllowProfileFormFrom  time.Time
	AllowProfileFormUntil time.Time
	HoursToConfirm        int `gorm:"not null;default:24"`
	UpdatedAt             time.Time
}

func (SettingsModel) TableName() string { return "settings" }

type SessionModel struct {
	ID        uint   `gorm:"primaryKey"`
	UserID    uint   `gorm:"not null;index"`
	TokenHash string `gorm:"not null;uniqueIndex"`
	ExpiresAt time.Time
	CreatedAt time.Time
}

func (SessionModel) TableName() string { return "sessions" }

type APITokenModel struct {
	ID        uint   `gorm:"primaryKey"`
	UserID    uint   `gorm:"not null;index"`
	Name      string `gorm:"not null"`
	TokenHash string `gorm:"not null;uniqueIndex"`
	ExpiresAt *time.Time
	CreatedAt time.Time
}

func (APITokenModel) TableName() string { return "api_tokens" }

type AuditLogModel struct {
	ID          uint `gorm:"primaryKey"`
	ActorUserID *uint
	Action      string `gorm:"not null;index"`
	TargetType  string `gorm:"not null;index"`
	TargetID    string `gorm:"not null;default:''"`
	Metadata    string
	CreatedAt   time.Time
}

func (AuditLogModel) TableName() string { return "audit_logs" }
