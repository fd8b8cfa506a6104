package repository

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"docanalyzer/internal/model"
)

type ChatSessionRepository struct {
	db *gorm.DB
}

func NewChatSessionRepository(db *gorm.DB) *ChatSessionRepository {
	return &ChatSessionRepository{db: db}
}

func (r *ChatSessionRepository) Create(session *model.ChatSession) error {
	if err := r.db.Create(session).Error; err != nil {
		return fmt.Errorf("create chat session failed: %w", err)
	}
	return nil
}

func (r *ChatSessionRepository) GetByToken(token string) (*model.ChatSession, error) {
	var session model.ChatSession
	if err := r.db.Where("session_id = ?", token).First(&session).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get chat session failed: %w", err)
	}
	return &session, nil
}

func (r *ChatSessionRepository) List() ([]model.ChatSession, error) {
	var sessions []model.ChatSession
	if err := r.db.Order("updated_at DESC").Find(&sessions).Error; err != nil {
		return nil, fmt.Errorf("list chat sessions failed: %w", err)
	}
	return sessions, nil
}

// DeleteByToken removes the session and its messages in one
// transaction. Reports found=false when the token is unknown.
func (r *ChatSessionRepository) DeleteByToken(token string) (bool, error) {
	var found bool
	err := r.db.Transaction(func(tx *gorm.DB) error {
		var session model.ChatSession
		if err := tx.Where("session_id = ?", token).First(&session).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return fmt.Errorf("get chat session failed: %w", err)
		}
		found = true
		if err := tx.Where("session_id = ?", session.ID).Delete(&model.ChatMessage{}).Error; err != nil {
			return fmt.Errorf("delete chat messages failed: %w", err)
		}
		if err := tx.Delete(&session).Error; err != nil {
			return fmt.Errorf("delete chat session failed: %w", err)
		}
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("delete chat session %s failed: %w", token, err)
	}
	return found, nil
}
