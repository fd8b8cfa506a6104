package model

import (
	"encoding/json"
	"time"
)

// ChatSession groups the messages of one conversation. SessionID is the
// opaque token handed to clients; MessageCount is denormalized and kept
// in step with message appends.
type ChatSession struct {
	ID           uint      `gorm:"primaryKey" json:"-"`
	SessionID    string    `gorm:"size:64;not null;uniqueIndex" json:"session_id"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	MessageCount int       `gorm:"not null;default:0" json:"message_count"`
}

type ChatMessage struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	SessionID uint      `gorm:"not null;index" json:"-"`
	Role      string    `gorm:"size:16;not null" json:"role"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	CreatedAt time.Time `json:"created_at"`
	// Sources holds the retrieval provenance of assistant messages as a
	// JSON array; empty for user messages.
	Sources      string  `gorm:"type:text" json:"-"`
	ResponseTime float64 `json:"response_time,omitempty"`
}

// Source is one retrieved chunk attached to an assistant answer.
// Derived at response time, never persisted on its own.
type Source struct {
	VectorID       string  `json:"id"`
	Source         string  `json:"source"`
	ChunkIndex     int     `json:"chunk_index"`
	Similarity     float64 `json:"similarity"`
	ContentPreview string  `json:"content_preview"`
}

// SourceList returns the parsed sources of an assistant message; nil on
// parse error or for user messages.
func (m *ChatMessage) SourceList() []Source {
	if m.Sources == "" {
		return nil
	}
	var sources []Source
	_ = json.Unmarshal([]byte(m.Sources), &sources)
	return sources
}

// SetSources stores the sources as JSON.
func (m *ChatMessage) SetSources(sources []Source) {
	if len(sources) == 0 {
		m.Sources = ""
		return
	}
	b, _ := json.Marshal(sources)
	m.Sources = string(b)
}
