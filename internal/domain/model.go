package domain

import "time"

type FormKind string

const (
	FormKindProfile      FormKind = "profile"
	FormKindConfirmation FormKind = "confirmation"
)

type QuestionType string

const (
	QuestionTypeText    QuestionType = "text"
	QuestionTypeNumber  QuestionType = "number"
	QuestionTypeChoices QuestionType = "choices"
	QuestionTypeCountry QuestionType = "country"
)

// NumberConfig holds the numeric constraints of a number question. Nil bounds
// mean unbounded.
type NumberConfig struct {
	AllowDecimals bool     `json:"allow_decimals"`
	MinValue      *float64 `json:"min_value"`
	MaxValue      *float64 `json:"max_value"`
}

type ChoicesConfig struct {
	Choices           []string `json:"choices"`
	AllowMultiple     bool     `json:"allow_multiple"`
	DisplayAsDropdown bool     `json:"display_as_dropdown"`
}

// Question is a single form field definition. Exactly one of Number/Choices is
// set for the corresponding question type; text and country questions carry no
// extra configuration.
type Question struct {
	ID          string       `json:"id"`
	FormKind    FormKind     `json:"form_kind"`
	Type        QuestionType `json:"type"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Placeholder string       `json:"placeholder"`
	Mandatory   bool         `json:"mandatory"`

	// ParentID links this question to another question of the same form. The
	// question is only shown, and only required, when the parent's submitted
	// value equals ShowIfParentHasValue exactly.
	ParentID             *string `json:"parent_id"`
	ShowIfParentHasValue *string `json:"show_if_parent_has_value"`

	Number  *NumberConfig  `json:"number,omitempty"`
	Choices *ChoicesConfig `json:"choices,omitempty"`

	SortIndex int       `json:"sort_index"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Answer is one user's current response to one question. Values are stored as
// strings; numbers and multi-choice selections are serialized by the client.
type Answer struct {
	ID         string    `json:"id"`
	UserID     uint      `json:"user_id"`
	QuestionID string    `json:"question_id"`
	Value      string    `json:"value"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// RawAnswer is one element of an incoming submission payload.
type RawAnswer struct {
	QuestionID string `json:"question_id"`
	Value      string `json:"value"`
}

// Form is what form retrieval returns: the questions the user has to answer
// and the answers they already gave.
type Form struct {
	Title     string     `json:"title"`
	Questions []Question `json:"questions"`
	Answers   []Answer   `json:"answers"`
}

const (
	RoleApplicant = "applicant"
	RoleStaff     = "staff"
)

type User struct {
	ID           uint   `json:"id"`
	Email        string `json:"email"`
	PasswordHash string `json:"-"`
	Role         string `json:"role"`

	Admitted                      bool       `json:"admitted"`
	InitialProfileFormSubmittedAt *time.Time `json:"initial_profile_form_submitted_at"`
	ConfirmationExpiresAt         *time.Time `json:"confirmation_expires_at"`
	Confirmed                     bool       `json:"confirmed"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Settings is the registration configuration snapshot a workflow call reads
// once at its start.
type Settings struct {
	EventName             string    `json:"event_name"`
	AllowProfileFormFrom  time.Time `json:"allow_profile_form_from"`
	AllowProfileFormUntil time.Time `json:"allow_profile_form_until"`
	HoursToConfirm        int       `json:"hours_to_confirm"`
	UpdatedAt             time.Time `json:"updated_at"`
}

type AuthSession struct {
	ID        uint
	UserID    uint
	TokenHash string
	ExpiresAt time.Time
	CreatedAt time.Time
}

type APIToken struct {
	ID        uint
	UserID    uint
	Name      string
	TokenHash string
	ExpiresAt *time.Time
	CreatedAt time.Time
}

type Identity struct {
	User User
}

type AuditLog struct {
	ID          uint
	ActorUserID *uint
	Action      string
	TargetType  string
	TargetID    string
	Metadata    string
	CreatedAt   time.Time
}

type AuditRecord struct {
	ID             uint      `json:"id"`
	Action         string    `json:"action"`
	TargetType     string    `json:"target_type"`
	TargetID       string    `json:"target_id"`
	ActorUserEmail string    `json:"actor_user_email"`
	Metadata       string    `json:"metadata"`
	CreatedAt      time.Time `json:"created_at"`
}
