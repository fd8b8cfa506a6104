package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"docanalyzer/internal/ai"
	"docanalyzer/internal/model"
	"docanalyzer/internal/repository"
	"docanalyzer/internal/vectorstore"
)

const sourcePreviewLen = 200

// Retriever is the read side of the vector store.
type Retriever interface {
	Search(ctx context.Context, queryVector []float32, queryText string, opts vectorstore.SearchOptions) ([]vectorstore.SearchResult, error)
}

// HistoryCache keeps session transcripts close to the reader; all
// methods are best-effort from the service's point of view.
type HistoryCache interface {
	GetHistory(ctx context.Context, sessionToken string) ([]model.ChatMessage, bool, error)
	SetHistory(ctx context.Context, sessionToken string, messages []model.ChatMessage) error
	DeleteHistory(ctx context.Context, sessionToken string) error
	MarkDirty(ctx context.Context, sessionToken string) error
	IsDirty(ctx context.Context, sessionToken string) (bool, error)
}

// RAGOptions tune the retrieval and generation pipeline.
type RAGOptions struct {
	TopK          int
	Threshold     float64
	HybridAlpha   float64
	HistoryWindow int
	MaxRetries    int
	RetryBackoff  time.Duration
}

type ChatService struct {
	sessionRepo  *repository.ChatSessionRepository
	messageRepo  *repository.ChatMessageRepository
	historyCache HistoryCache
	retriever    Retriever
	llm          LLMClient
	chatConfig   ai.ChatConfig
	embConfig    ai.EmbeddingConfig
	scorer       ConfidenceScorer
	opts         RAGOptions
}

func NewChatService(
	sessionRepo *repository.ChatSessionRepository,
	messageRepo *repository.ChatMessageRepository,
	historyCache HistoryCache,
	retriever Retriever,
	llm LLMClient,
	chatConfig ai.ChatConfig,
	embConfig ai.EmbeddingConfig,
	scorer ConfidenceScorer,
	opts RAGOptions,
) *ChatService {
	if opts.TopK <= 0 {
		opts.TopK = 5
	}
	if opts.HistoryWindow <= 0 {
		opts.HistoryWindow = 3
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = 500 * time.Millisecond
	}
	if scorer == nil {
		scorer = OverlapConfidence{}
	}
	return &ChatService{
		sessionRepo:  sessionRepo,
		messageRepo:  messageRepo,
		historyCache: historyCache,
		retriever:    retriever,
		llm:          llm,
		chatConfig:   chatConfig,
		embConfig:    embConfig,
		scorer:       scorer,
		opts:         opts,
	}
}

type AskInput struct {
	SessionToken string
	Message      string
	PromptStyle  string
}

type Performance struct {
	RetrievalTime  float64 `json:"retrieval_time"`
	GenerationTime float64 `json:"generation_time"`
	TotalTime      float64 `json:"total_time"`
}

type AskResult struct {
	Answer       string         `json:"answer"`
	Sources      []model.Source `json:"sources"`
	SessionToken string         `json:"session_id"`
	MessageID    uint           `json:"message_id"`
	Confidence   float64        `json:"confidence"`
	Performance  Performance    `json:"performance"`
}

// AnswerResult is the unpersisted output of one pipeline run; the
// evaluation harness consumes Contexts directly.
type AnswerResult struct {
	Answer         string
	Sources        []model.Source
	Contexts       []string
	Confidence     float64
	RetrievalTime  float64
	GenerationTime float64
}

// Ask runs the full question-answering pipeline against a session and
// persists the exchange.
func (s *ChatService) Ask(ctx context.Context, input AskInput) (*AskResult, error) {
	started := time.Now()

	question := strings.TrimSpace(input.Message)
	if question == "" {
		return nil, ErrInvalidInput
	}

	session, err := s.resolveSession(input.SessionToken)
	if err != nil {
		return nil, err
	}

	history, err := s.messageRepo.ListRecentBySessionID(session.ID, s.opts.HistoryWindow*2)
	if err != nil {
		return nil, err
	}
	query := s.enhanceQuery(ctx, question, history)

	answer, err := s.answer(ctx, query, question, input.PromptStyle, history)
	if err != nil {
		return nil, err
	}

	total := time.Since(started).Seconds()
	userMsg := &model.ChatMessage{Role: "user", Content: question}
	assistantMsg := &model.ChatMessage{
		Role:         "assistant",
		Content:      answer.Answer,
		ResponseTime: total,
	}
	assistantMsg.SetSources(answer.Sources)
	if err := s.messageRepo.AppendExchange(session.ID, userMsg, assistantMsg); err != nil {
		return nil, err
	}
	s.invalidateHistory(ctx, session.SessionID)

	return &AskResult{
		Answer:       answer.Answer,
		Sources:      answer.Sources,
		SessionToken: session.SessionID,
		MessageID:    assistantMsg.ID,
		Confidence:   answer.Confidence,
		Performance: Performance{
			RetrievalTime:  answer.RetrievalTime,
			GenerationTime: answer.GenerationTime,
			TotalTime:      total,
		},
	}, nil
}

// Answer runs retrieve, prompt, generate and confidence without
// touching any session. Ask and the evaluation harness share it.
func (s *ChatService) Answer(ctx context.Context, question, promptStyle string) (*AnswerResult, error) {
	return s.answer(ctx, question, question, promptStyle, nil)
}

// answer retrieves with retrievalQuery (the enhanced form on the Ask
// path) while the prompt and confidence scoring see the user's
// original question plus the recent conversation.
func (s *ChatService) answer(ctx context.Context, retrievalQuery, question, promptStyle string, history []model.ChatMessage) (*AnswerResult, error) {
	retrievalStart := time.Now()
	queryVector, err := s.llm.Embed(ctx, s.embConfig, retrievalQuery)
	if err != nil {
		return nil, fmt.Errorf("%w: embed query: %v", ErrGeneration, err)
	}
	results, err := s.retriever.Search(ctx, queryVector, retrievalQuery, vectorstore.SearchOptions{
		TopK:      s.opts.TopK,
		Threshold: s.opts.Threshold,
		Hybrid:    true,
		Alpha:     s.opts.HybridAlpha,
	})
	if err != nil {
		return nil, err
	}
	retrievalTime := time.Since(retrievalStart).Seconds()

	messages := []ai.ChatMessage{
		{Role: "system", Content: systemPromptFor(promptStyle)},
		{Role: "user", Content: buildUserPrompt(buildContextBlock(results), formatHistory(history), question)},
	}

	generationStart := time.Now()
	answer, err := s.completeWithRetry(ctx, messages)
	if err != nil {
		return nil, err
	}
	generationTime := time.Since(generationStart).Seconds()

	contexts := make([]string, 0, len(results))
	sources := make([]model.Source, 0, len(results))
	for _, r := range results {
		contexts = append(contexts, r.Content)
		sources = append(sources, model.Source{
			VectorID:       r.VectorID,
			Source:         r.Source,
			ChunkIndex:     r.ChunkIndex,
			Similarity:     r.Similarity,
			ContentPreview: preview(r.Content, sourcePreviewLen),
		})
	}

	return &AnswerResult{
		Answer:         answer,
		Sources:        sources,
		Contexts:       contexts,
		Confidence:     s.scorer.Score(question, answer, contexts),
		RetrievalTime:  retrievalTime,
		GenerationTime: generationTime,
	}, nil
}

// completeWithRetry retries transient LLM failures with exponential
// backoff before giving up with ErrGeneration.
func (s *ChatService) completeWithRetry(ctx context.Context, messages []ai.ChatMessage) (string, error) {
	backoff := s.opts.RetryBackoff
	var lastErr error
	for attempt := 0; attempt <= s.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		answer, err := s.llm.Complete(ctx, s.chatConfig, messages)
		if err == nil {
			answer = strings.TrimSpace(answer)
			if answer == "" {
				answer = "The model returned an empty response."
			}
			return answer, nil
		}
		lastErr = err
		log.Warn().Err(err).Int("attempt", attempt+1).Msg("llm completion failed")
	}
	log.Error().Err(lastErr).Msg("llm completion retries exhausted")
	return "", ErrGeneration
}

// enhanceQuery reformulates follow-up questions into standalone ones.
// Without history there is nothing to resolve, so no LLM call is made;
// any failure falls back to the original question.
func (s *ChatService) enhanceQuery(ctx context.Context, question string, history []model.ChatMessage) string {
	if len(history) == 0 {
		return question
	}

	prompt := buildEnhancementPrompt(formatHistory(history), question)
	enhanced, err := s.llm.Complete(ctx, s.chatConfig, []ai.ChatMessage{{Role: "user", Content: prompt}})
	if err != nil {
		log.Warn().Err(err).Msg("query enhancement failed, using original question")
		return question
	}
	enhanced = strings.TrimSpace(enhanced)
	if enhanced == "" {
		return question
	}
	return enhanced
}

func (s *ChatService) resolveSession(token string) (*model.ChatSession, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		session := &model.ChatSession{SessionID: uuid.NewString()}
		if err := s.sessionRepo.Create(session); err != nil {
			return nil, err
		}
		return session, nil
	}

	session, err := s.sessionRepo.GetByToken(token)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

func (s *ChatService) ListSessions() ([]model.ChatSession, error) {
	return s.sessionRepo.List()
}

// GetMessages returns the session transcript in conversation order,
// serving from the cache unless a recent write marked it dirty.
func (s *ChatService) GetMessages(ctx context.Context, token string, limit int) ([]model.ChatMessage, error) {
	session, err := s.sessionRepo.GetByToken(token)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}

	if s.historyCache != nil {
		if dirty, err := s.historyCache.IsDirty(ctx, token); err == nil && !dirty {
			if cached, hit, cacheErr := s.historyCache.GetHistory(ctx, token); cacheErr == nil && hit {
				return trimMessages(cached, limit), nil
			}
		}
	}

	// Always load and cache the full transcript; the limit only trims
	// the returned slice, so a limited read can never poison the cache.
	messages, err := s.messageRepo.ListBySessionID(session.ID, 0)
	if err != nil {
		return nil, err
	}
	if s.historyCache != nil {
		if dirty, err := s.historyCache.IsDirty(ctx, token); err == nil && !dirty {
			_ = s.historyCache.SetHistory(ctx, token, messages)
		}
	}
	return trimMessages(messages, limit), nil
}

func (s *ChatService) DeleteSession(ctx context.Context, token string) error {
	found, err := s.sessionRepo.DeleteByToken(token)
	if err != nil {
		return err
	}
	if !found {
		return ErrSessionNotFound
	}
	if s.historyCache != nil {
		_ = s.historyCache.DeleteHistory(ctx, token)
	}
	return nil
}

func (s *ChatService) invalidateHistory(ctx context.Context, token string) {
	if s.historyCache == nil {
		return
	}
	_ = s.historyCache.MarkDirty(ctx, token)
	_ = s.historyCache.DeleteHistory(ctx, token)
}

func trimMessages(messages []model.ChatMessage, limit int) []model.ChatMessage {
	if limit <= 0 || len(messages) <= limit {
		return messages
	}
	return messages[len(messages)-limit:]
}

func preview(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}
