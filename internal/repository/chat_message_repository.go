package repository

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"docanalyzer/internal/model"
)

type ChatMessageRepository struct {
	db *gorm.DB
}

func NewChatMessageRepository(db *gorm.DB) *ChatMessageRepository {
	return &ChatMessageRepository{db: db}
}

// AppendExchange persists a question/answer pair in one transaction.
// The user message is created first so creation order matches
// conversation order, and the session's message count and activity
// timestamp move in the same commit.
func (r *ChatMessageRepository) AppendExchange(sessionID uint, userMsg, assistantMsg *model.ChatMessage) error {
	err := r.db.Transaction(func(tx *gorm.DB) error {
		userMsg.SessionID = sessionID
		if err := tx.Create(userMsg).Error; err != nil {
			return fmt.Errorf("create user message failed: %w", err)
		}
		assistantMsg.SessionID = sessionID
		if err := tx.Create(assistantMsg).Error; err != nil {
			return fmt.Errorf("create assistant message failed: %w", err)
		}
		updates := map[string]interface{}{
			"message_count": gorm.Expr("message_count + ?", 2),
			"updated_at":    time.Now(),
		}
		if err := tx.Model(&model.ChatSession{}).Where("id = ?", sessionID).Updates(updates).Error; err != nil {
			return fmt.Errorf("bump session counters failed: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("append exchange failed: %w", err)
	}
	return nil
}

// ListBySessionID returns up to limit of the newest messages, in
// conversation order.
func (r *ChatMessageRepository) ListBySessionID(sessionID uint, limit int) ([]model.ChatMessage, error) {
	if limit <= 0 || limit > 500 {
		limit = 200
	}

	var messages []model.ChatMessage
	if err := r.db.Where("session_id = ?", sessionID).Order("created_at DESC, id DESC").Limit(limit).Find(&messages).Error; err != nil {
		return nil, fmt.Errorf("list chat messages failed: %w", err)
	}
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// ListRecentBySessionID returns the newest n messages in conversation
// order, the window the query enhancer reads.
func (r *ChatMessageRepository) ListRecentBySessionID(sessionID uint, n int) ([]model.ChatMessage, error) {
	if n <= 0 {
		return nil, nil
	}

	var messages []model.ChatMessage
	if err := r.db.Where("session_id = ?", sessionID).Order("created_at DESC, id DESC").Limit(n).Find(&messages).Error; err != nil {
		return nil, fmt.Errorf("list recent chat messages failed: %w", err)
	}
	// reverse into conversation order
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}
