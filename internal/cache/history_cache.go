package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	redisv9 "github.com/redis/go-redis/v9"

	"docanalyzer/internal/model"
)

// HistoryCache keeps recently read session transcripts in Redis. A
// short-lived dirty marker set on every write keeps readers off a
// stale entry until it is rebuilt.
type HistoryCache struct {
	client         *redisv9.Client
	historyTTL     time.Duration
	dirtyMarkerTTL time.Duration
}

func NewHistoryCache(client *redisv9.Client, historyTTL, dirtyMarkerTTL time.Duration) *HistoryCache {
	if historyTTL <= 0 {
		historyTTL = 60 * time.Second
	}
	if dirtyMarkerTTL <= 0 {
		dirtyMarkerTTL = 5 * time.Second
	}
	return &HistoryCache{
		client:         client,
		historyTTL:     historyTTL,
		dirtyMarkerTTL: dirtyMarkerTTL,
	}
}

// cachedMessage is the cache wire form of a ChatMessage. The model's
// Sources column is hidden from API JSON, so the cache carries its own
// field to keep assistant source provenance across a round trip.
type cachedMessage struct {
	ID           uint      `json:"id"`
	SessionID    uint      `json:"session_id"`
	Role         string    `json:"role"`
	Content      string    `json:"content"`
	CreatedAt    time.Time `json:"created_at"`
	Sources      string    `json:"sources,omitempty"`
	ResponseTime float64   `json:"response_time,omitempty"`
}

func encodeHistory(messages []model.ChatMessage) ([]byte, error) {
	cached := make([]cachedMessage, 0, len(messages))
	for _, m := range messages {
		cached = append(cached, cachedMessage{
			ID:           m.ID,
			SessionID:    m.SessionID,
			Role:         m.Role,
			Content:      m.Content,
			CreatedAt:    m.CreatedAt,
			Sources:      m.Sources,
			ResponseTime: m.ResponseTime,
		})
	}
	return json.Marshal(cached)
}

func decodeHistory(raw []byte) ([]model.ChatMessage, error) {
	var cached []cachedMessage
	if err := json.Unmarshal(raw, &cached); err != nil {
		return nil, err
	}
	messages := make([]model.ChatMessage, 0, len(cached))
	for _, m := range cached {
		messages = append(messages, model.ChatMessage{
			ID:           m.ID,
			SessionID:    m.SessionID,
			Role:         m.Role,
			Content:      m.Content,
			CreatedAt:    m.CreatedAt,
			Sources:      m.Sources,
			ResponseTime: m.ResponseTime,
		})
	}
	return messages, nil
}

func (c *HistoryCache) GetHistory(ctx context.Context, sessionToken string) ([]model.ChatMessage, bool, error) {
	raw, err := c.client.Get(ctx, c.historyKey(sessionToken)).Result()
	if err == redisv9.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get history failed: %w", err)
	}

	messages, err := decodeHistory([]byte(raw))
	if err != nil {
		return nil, false, fmt.Errorf("unmarshal cached history failed: %w", err)
	}
	return messages, true, nil
}

func (c *HistoryCache) SetHistory(ctx context.Context, sessionToken string, messages []model.ChatMessage) error {
	payload, err := encodeHistory(messages)
	if err != nil {
		return fmt.Errorf("marshal history cache failed: %w", err)
	}
	if err := c.client.Set(ctx, c.historyKey(sessionToken), payload, c.historyTTL).Err(); err != nil {
		return fmt.Errorf("redis set history failed: %w", err)
	}
	return nil
}

func (c *HistoryCache) DeleteHistory(ctx context.Context, sessionToken string) error {
	if err := c.client.Del(ctx, c.historyKey(sessionToken)).Err(); err != nil {
		return fmt.Errorf("redis delete history failed: %w", err)
	}
	return nil
}

func (c *HistoryCache) MarkDirty(ctx context.Context, sessionToken string) error {
	if err := c.client.Set(ctx, c.dirtyKey(sessionToken), "1", c.dirtyMarkerTTL).Err(); err != nil {
		return fmt.Errorf("redis set dirty marker failed: %w", err)
	}
	return nil
}

func (c *HistoryCache) IsDirty(ctx context.Context, sessionToken string) (bool, error) {
	exists, err := c.client.Exists(ctx, c.dirtyKey(sessionToken)).Result()
	if err != nil {
		return false, fmt.Errorf("redis check dirty marker failed: %w", err)
	}
	return exists > 0, nil
}

func (c *HistoryCache) historyKey(sessionToken string) string {
	return "chat:history:" + sessionToken
}

func (c *HistoryCache) dirtyKey(sessionToken string) string {
	return "chat:history:dirty:" + sessionToken
}
