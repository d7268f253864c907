package sqlite

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/eventmesa/regsvc/internal/domain"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	_ "modernc.org/sqlite"
)

type RegistrationRepository struct {
	db *gorm.DB
}

func Open(path string) (*gorm.DB, error) {
	return gorm.Open(sqlite.Dialector{
		DriverName: "sqlite",
		DSN:        path,
	}, &gorm.Config{})
}

func NewRegistrationRepository(db *gorm.DB) *RegistrationRepository {
	return &RegistrationRepository{db: db}
}

func (r *RegistrationRepository) ListQuestions(ctx context.Context, kind domain.FormKind) ([]domain.Question, error) {
	rows := make([]QuestionModel, 0)
	err := r.db.WithContext(ctx).
		Where("form_kind = ?", string(kind)).
		Order("sort_index ASC, created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	result := make([]domain.Question, 0, len(rows))
	for _, m := range rows {
		q, err := questionToDomain(m)
		if err != nil {
			return nil, err
		}
		result = append(result, q)
	}
	return result, nil
}

func (r *RegistrationRepository) GetQuestionByID(ctx context.Context, id string) (domain.Question, error) {
	var m QuestionModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Question{}, &domain.QuestionNotFoundError{QuestionID: id}
		}
		return domain.Question{}, err
	}
	return questionToDomain(m)
}

func (r *RegistrationRepository) CreateQuestion(ctx context.Context, q domain.Question) (domain.Question, error) {
	m, err := questionToModel(q)
	if err != nil {
		return domain.Question{}, err
	}
	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		return domain.Question{}, err
	}
	return questionToDomain(m)
}

func (r *RegistrationRepository) UpdateQuestion(ctx context.Context, q domain.Question) (domain.Question, error) {
	m, err := questionToModel(q)
	if err != nil {
		return domain.Question{}, err
	}

	err = r.db.WithContext(ctx).Model(&QuestionModel{}).Where("id = ?", m.ID).Updates(map[string]any{
		"form_kind":                m.FormKind,
		"type":                     m.Type,
		"title":                    m.Title,
		"description":              m.Description,
		"placeholder":              m.Placeholder,
		"mandatory":                m.Mandatory,
		"parent_id":                m.ParentID,
		"show_if_parent_has_value": m.ShowIfParentHasValue,
		"configuration":            m.Configuration,
		"sort_index":               m.SortIndex,
	}).Error
	if err != nil {
		return domain.Question{}, err
	}
	return r.GetQuestionByID(ctx, q.ID)
}

func (r *RegistrationRepository) DeleteQuestion(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("question_id = ?", id).Delete(&AnswerModel{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&QuestionModel{}).Error
	})
}

func (r *RegistrationRepository) ListAnswers(ctx context.Context, userID uint, questionIDs []string) ([]domain.Answer, error) {
	if len(questionIDs) == 0 {
		return []domain.Answer{}, nil
	}

	rows := make([]AnswerModel, 0)
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND question_id IN ?", userID, questionIDs).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	result := make([]domain.Answer, 0, len(rows))
	for _, m := range rows {
		result = append(result, domain.Answer{
			ID:         m.ID,
			UserID:     m.UserID,
			QuestionID: m.QuestionID,
			Value:      m.Value,
			CreatedAt:  m.CreatedAt,
			UpdatedAt:  m.UpdatedAt,
		})
	}
	return result, nil
}

// SaveAnswers writes the whole batch in one transaction. Answers resolved to
// an existing row keep their id, so resubmission updates in place.
func (r *RegistrationRepository) SaveAnswers(ctx context.Context, answers []domain.Answer) error {
	if len(answers) == 0 {
		return nil
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, a := range answers {
			var existing AnswerModel
			err := tx.Where("id = ?", a.ID).First(&existing).Error
			switch {
			case errors.Is(err, gorm.ErrRecordNotFound):
				m := AnswerModel{ID: a.ID, UserID: a.UserID, QuestionID: a.QuestionID, Value: a.Value}
				if err := tx.Create(&m).Error; err != nil {
					return err
				}
			case err != nil:
				return err
			default:
				if err := tx.Model(&AnswerModel{}).Where("id = ?", a.ID).Update("value", a.Value).Error; err != nil {
					return err
				}
			}
		}
		return nil
	})
}

func (r *RegistrationRepository) CreateUser(ctx context.Context, u domain.User) (domain.User, error) {
	m := UserModel{
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		Role:         u.Role,
	}
	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return domain.User{}, fmt.Errorf("an account with email %q already exists", u.Email)
		}
		return domain.User{}, err
	}
	return userToDomain(m), nil
}

func (r *RegistrationRepository) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	var m UserModel
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&m).Error; err != nil {
		return domain.User{}, err
	}
	return userToDomain(m), nil
}

func (r *RegistrationRepository) GetUserByID(ctx context.Context, id uint) (domain.User, error) {
	var m UserModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		return domain.User{}, err
	}
	return userToDomain(m), nil
}

func (r *RegistrationRepository) ListUsers(ctx context.Context, query string, limit int) ([]domain.User, error) {
	q := r.db.WithContext(ctx).Model(&UserModel{})
	if strings.TrimSpace(query) != "" {
		q = q.Where("email LIKE ?", "%"+strings.TrimSpace(query)+"%")
	}

	rows := make([]UserModel, 0)
	if err := q.Order("id ASC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}

	result := make([]domain.User, 0, len(rows))
	for _, m := range rows {
		result = append(result, userToDomain(m))
	}
	return result, nil
}

func (r *RegistrationRepository) CountUsers(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&UserModel{}).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *RegistrationRepository) SaveUser(ctx context.Context, u domain.User) (domain.User, error) {
	err := r.db.WithContext(ctx).Model(&UserModel{}).Where("id = ?", u.ID).Updates(map[string]any{
		"role":                              u.Role,
		"admitted":                          u.Admitted,
		"initial_profile_form_submitted_at": u.InitialProfileFormSubmittedAt,
		"confirmation_expires_at":           u.ConfirmationExpiresAt,
		"confirmed":                         u.Confirmed,
	}).Error
	if err != nil {
		return domain.User{}, err
	}
	return r.GetUserByID(ctx, u.ID)
}

func (r *RegistrationRepository) SaveUsers(ctx context.Context, users []domain.User) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, u := range users {
			err := tx.Model(&UserModel{}).Where("id = ?", u.ID).Updates(map[string]any{
				"role":                              u.Role,
				"admitted":                          u.Admitted,
				"initial_profile_form_submitted_at": u.InitialProfileFormSubmittedAt,
				"confirmation_expires_at":           u.ConfirmationExpiresAt,
				"confirmed":                         u.Confirmed,
			}).Error
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *RegistrationRepository) GetSettings(ctx context.Context) (domain.Settings, error) {
	var m SettingsModel
	if err := r.db.WithContext(ctx).First(&m).Error; err != nil {
		return domain.Settings{}, err
	}
	return domain.Settings{
		EventName:             m.EventName,
		AllowProfileFormFrom:  m.AllowProfileFormFrom,
		AllowProfileFormUntil: m.AllowProfileFormUntil,
		HoursToConfirm:        m.HoursToConfirm,
		UpdatedAt:             m.UpdatedAt,
	}, nil
}

func (r *RegistrationRepository) UpdateSettings(ctx context.Context, s domain.Settings) (domain.Settings, error) {
	err := r.db.WithContext(ctx).Model(&SettingsModel{}).Where("id = ?", 1).Updates(map[string]any{
		"event_name":               s.EventName,
		"allow_profile_form_from":  s.AllowProfileFormFrom,
		"allow_profile_form_until": s.AllowProfileFormUntil,
		"hours_to_confirm":         s.HoursToConfirm,
	}).Error
	if err != nil {
		return domain.Settings{}, err
	}
	return r.GetSettings(ctx)
}

func (r *RegistrationRepository) CreateSession(ctx context.Context, s domain.AuthSession) (domain.AuthSession, error) {
	m := SessionModel{UserID: s.UserID, TokenHash: s.TokenHash, ExpiresAt: s.ExpiresAt}
	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		return domain.AuthSession{}, err
	}
	return domain.AuthSession{ID: m.ID, UserID: m.UserID, TokenHash: m.TokenHash, ExpiresAt: m.ExpiresAt, CreatedAt: m.CreatedAt}, nil
}

func (r *RegistrationRepository) GetSessionByTokenHash(ctx context.Context, tokenHash string) (domain.AuthSession, error) {
	var m SessionModel
	if err := r.db.WithContext(ctx).Where("token_hash = ?", tokenHash).First(&m).Error; err != nil {
		return domain.AuthSession{}, err
	}
	return domain.AuthSession{ID: m.ID, UserID: m.UserID, TokenHash: m.TokenHash, ExpiresAt: m.ExpiresAt, CreatedAt: m.CreatedAt}, nil
}

func (r *RegistrationRepository) DeleteSessionByTokenHash(ctx context.Context, tokenHash string) error {
	return r.db.WithContext(ctx).Where("token_hash = ?", tokenHash).Delete(&SessionModel{}).Error
}

func (r *RegistrationRepository) CreateAPIToken(ctx context.Context, t domain.APIToken) (domain.APIToken, error) {
	m := APITokenModel{UserID: t.UserID, Name: t.Name, TokenHash: t.TokenHash, ExpiresAt: t.ExpiresAt}
	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		return domain.APIToken{}, err
	}
	return domain.APIToken{ID: m.ID, UserID: m.UserID, Name: m.Name, TokenHash: m.TokenHash, ExpiresAt: m.ExpiresAt, CreatedAt: m.CreatedAt}, nil
}

func (r *RegistrationRepository) GetAPITokenByTokenHash(ctx context.Context, tokenHash string) (domain.APIToken, error) {
	var m APITokenModel
	if err := r.db.WithContext(ctx).Where("token_hash = ?", tokenHash).First(&m).Error; err != nil {
		return domain.APIToken{}, err
	}
	return domain.APIToken{ID: m.ID, UserID: m.UserID, Name: m.Name, TokenHash: m.TokenHash, ExpiresAt: m.ExpiresAt, CreatedAt: m.CreatedAt}, nil
}

func (r *RegistrationRepository) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	m := AuditLogModel{
		ActorUserID: entry.ActorUserID,
		Action:      entry.Action,
		TargetType:  entry.TargetType,
		TargetID:    entry.TargetID,
		Metadata:    entry.Metadata,
	}
	return r.db.WithContext(ctx).Create(&m).Error
}

func (r *RegistrationRepository) ListAuditLogs(ctx context.Context, limit int) ([]domain.AuditRecord, error) {
	rows := make([]AuditLogModel, 0)
	if err := r.db.WithContext(ctx).Order("id DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}

	result := make([]domain.AuditRecord, 0, len(rows))
	for _, m := range rows {
		record := domain.AuditRecord{
			ID:         m.ID,
			Action:     m.Action,
			TargetType: m.TargetType,
			TargetID:   m.TargetID,
			Metadata:   m.Metadata,
			CreatedAt:  m.CreatedAt,
		}
		if m.ActorUserID != nil {
			var u UserModel
			if err := r.db.WithContext(ctx).Where("id = ?", *m.ActorUserID).First(&u).Error; err == nil {
				record.ActorUserEmail = u.Email
			}
		}
		result = append(result, record)
	}
	return result, nil
}

func questionToDomain(m QuestionModel) (domain.Question, error) {
	q := domain.Question{
		ID:                   m.ID,
		FormKind:             domain.FormKind(m.FormKind),
		Type:                 domain.QuestionType(m.Type),
		Title:                m.Title,
		Description:          m.Description,
		Placeholder:          m.Placeholder,
		Mandatory:            m.Mandatory,
		ParentID:             m.ParentID,
		ShowIfParentHasValue: m.ShowIfParentHasValue,
		SortIndex:            m.SortIndex,
		CreatedAt:            m.CreatedAt,
		UpdatedAt:            m.UpdatedAt,
	}

	if m.Configuration == "" {
		return q, nil
	}
	switch q.Type {
	case domain.QuestionTypeNumber:
		var cfg domain.NumberConfig
		if err := json.Unmarshal([]byte(m.Configuration), &cfg); err != nil {
			return domain.Question{}, fmt.Errorf("decode number configuration of question %s: %w", m.ID, err)
		}
		q.Number = &cfg
	case domain.QuestionTypeChoices:
		var cfg domain.ChoicesConfig
		if err := json.Unmarshal([]byte(m.Configuration), &cfg); err != nil {
			return domain.Question{}, fmt.Errorf("decode choices configuration of question %s: %w", m.ID, err)
		}
		q.Choices = &cfg
	}
	return q, nil
}

func questionToModel(q domain.Question) (QuestionModel, error) {
	m := QuestionModel{
		ID:                   q.ID,
		FormKind:             string(q.FormKind),
		Type:                 string(q.Type),
		Title:                q.Title,
		Description:          q.Description,
		Placeholder:          q.Placeholder,
		Mandatory:            q.Mandatory,
		ParentID:             q.ParentID,
		ShowIfParentHasValue: q.ShowIfParentHasValue,
		SortIndex:            q.SortIndex,
	}

	switch q.Type {
	case domain.QuestionTypeNumber:
		if q.Number != nil {
			raw, err := json.Marshal(q.Number)
			if err != nil {
				return QuestionModel{}, err
			}
			m.Configuration = string(raw)
		}
	case domain.QuestionTypeChoices:
		if q.Choices != nil {
			raw, err := json.Marshal(q.Choices)
			if err != nil {
				return QuestionModel{}, err
			}
			m.Configuration = string(raw)
		}
	}
	return m, nil
}

func userToDomain(m UserModel) domain.User {
	return domain.User{
		ID:                            m.ID,
		Email:                         m.Email,
		PasswordHash:                  m.PasswordHash,
		Role:                          m.Role,
		Admitted:                      m.Admitted,
		InitialProfileFormSubmittedAt: m.InitialProfileFormSubmittedAt,
		ConfirmationExpiresAt:         m.ConfirmationExpiresAt,
		Confirmed:                     m.Confirmed,
		CreatedAt:                     m.CreatedAt,
		UpdatedAt:                     m.UpdatedAt,
	}
}
