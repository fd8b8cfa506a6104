package app

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"docanalyzer/internal/ai"
	"docanalyzer/internal/model"
	"docanalyzer/internal/repository"
	"docanalyzer/internal/vectorstore"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&model.Document{},
		&model.Chunk{},
		&model.ChatSession{},
		&model.ChatMessage{},
		&model.EvaluationBatch{},
	))
	return db
}

type fakeLLM struct {
	completeFn    func(messages []ai.ChatMessage) (string, error)
	completeCalls int
	embedCalls    int
}

func (f *fakeLLM) Complete(_ context.Context, _ ai.ChatConfig, messages []ai.ChatMessage) (string, error) {
	f.completeCalls++
	if f.completeFn != nil {
		return f.completeFn(messages)
	}
	return "the answer", nil
}

func (f *fakeLLM) Embed(context.Context, ai.EmbeddingConfig, string) ([]float32, error) {
	f.embedCalls++
	return []float32{1, 0, 0}, nil
}

func (f *fakeLLM) EmbedBatch(_ context.Context, _ ai.EmbeddingConfig, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

type fakeRetriever struct {
	results   []vectorstore.SearchResult
	err       error
	lastQuery string
}

func (f *fakeRetriever) Search(_ context.Context, _ []float32, queryText string, _ vectorstore.SearchOptions) ([]vectorstore.SearchResult, error) {
	f.lastQuery = queryText
	return f.results, f.err
}

// fakeHistoryCache keeps transcripts in memory with the same
// dirty-marker contract as the Redis cache.
type fakeHistoryCache struct {
	history map[string][]model.ChatMessage
	dirty   map[string]bool
}

func newFakeHistoryCache() *fakeHistoryCache {
	return &fakeHistoryCache{
		history: make(map[string][]model.ChatMessage),
		dirty:   make(map[string]bool),
	}
}

func (f *fakeHistoryCache) GetHistory(_ context.Context, token string) ([]model.ChatMessage, bool, error) {
	messages, ok := f.history[token]
	return messages, ok, nil
}

func (f *fakeHistoryCache) SetHistory(_ context.Context, token string, messages []model.ChatMessage) error {
	f.history[token] = messages
	return nil
}

func (f *fakeHistoryCache) DeleteHistory(_ context.Context, token string) error {
	delete(f.history, token)
	return nil
}

func (f *fakeHistoryCache) MarkDirty(_ context.Context, token string) error {
	f.dirty[token] = true
	return nil
}

func (f *fakeHistoryCache) IsDirty(_ context.Context, token string) (bool, error) {
	return f.dirty[token], nil
}

func defaultResults() []vectorstore.SearchResult {
	return []vectorstore.SearchResult{
		{VectorID: "doc1-chunk0", DocumentID: 1, ChunkIndex: 0, Source: "guide.txt", Content: "the answer lives here", Similarity: 0.91},
		{VectorID: "doc1-chunk1", DocumentID: 1, ChunkIndex: 1, Source: "guide.txt", Content: "more supporting detail", Similarity: 0.74},
	}
}

func newTestChatService(t *testing.T, llm *fakeLLM, retriever Retriever) *ChatService {
	t.Helper()
	return newTestChatServiceWithCache(t, llm, retriever, nil)
}

func newTestChatServiceWithCache(t *testing.T, llm *fakeLLM, retriever Retriever, cache HistoryCache) *ChatService {
	t.Helper()
	db := testDB(t)
	return NewChatService(
		repository.NewChatSessionRepository(db),
		repository.NewChatMessageRepository(db),
		cache,
		retriever,
		llm,
		ai.ChatConfig{Model: "test"},
		ai.EmbeddingConfig{Model: "test-embed"},
		OverlapConfidence{},
		RAGOptions{TopK: 3, HybridAlpha: 0.7, HistoryWindow: 3, MaxRetries: 1, RetryBackoff: time.Millisecond},
	)
}

func TestAskCreatesSessionAndPersistsExchange(t *testing.T) {
	llm := &fakeLLM{}
	svc := newTestChatService(t, llm, &fakeRetriever{results: defaultResults()})

	result, err := svc.Ask(context.Background(), AskInput{Message: "where does the answer live?"})
	require.NoError(t, err)

	assert.NotEmpty(t, result.SessionToken)
	assert.Equal(t, "the answer", result.Answer)
	require.Len(t, result.Sources, 2)
	assert.Equal(t, "guide.txt", result.Sources[0].Source)

	messages, err := svc.GetMessages(context.Background(), result.SessionToken, 0)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "user", messages[0].Role)
	assert.Equal(t, "where does the answer live?", messages[0].Content)
	assert.Equal(t, "assistant", messages[1].Role)
	assert.Len(t, messages[1].SourceList(), 2)
	assert.Greater(t, messages[1].ResponseTime, 0.0)

	sessions, err := svc.ListSessions()
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, 2, sessions[0].MessageCount)
}

func TestAskReusesExistingSession(t *testing.T) {
	llm := &fakeLLM{}
	svc := newTestChatService(t, llm, &fakeRetriever{results: defaultResults()})

	first, err := svc.Ask(context.Background(), AskInput{Message: "first question"})
	require.NoError(t, err)
	second, err := svc.Ask(context.Background(), AskInput{Message: "second question", SessionToken: first.SessionToken})
	require.NoError(t, err)

	assert.Equal(t, first.SessionToken, second.SessionToken)

	messages, err := svc.GetMessages(context.Background(), first.SessionToken, 0)
	require.NoError(t, err)
	require.Len(t, messages, 4)
	assert.Equal(t, []string{"user", "assistant", "user", "assistant"}, []string{
		messages[0].Role, messages[1].Role, messages[2].Role, messages[3].Role,
	})

	sessions, err := svc.ListSessions()
	require.NoError(t, err)
	assert.Equal(t, 4, sessions[0].MessageCount)
}

func TestAskUnknownSession(t *testing.T) {
	svc := newTestChatService(t, &fakeLLM{}, &fakeRetriever{})

	_, err := svc.Ask(context.Background(), AskInput{Message: "hi", SessionToken: "no-such-token"})
	assert.True(t, errors.Is(err, ErrSessionNotFound))
}

func TestAskEmptyMessage(t *testing.T) {
	svc := newTestChatService(t, &fakeLLM{}, &fakeRetriever{})

	_, err := svc.Ask(context.Background(), AskInput{Message: "   "})
	assert.True(t, errors.Is(err, ErrInvalidInput))
}

func TestEnhancementSkippedWithoutHistory(t *testing.T) {
	llm := &fakeLLM{}
	svc := newTestChatService(t, llm, &fakeRetriever{results: defaultResults()})

	first, err := svc.Ask(context.Background(), AskInput{Message: "first question"})
	require.NoError(t, err)
	// empty session: one completion for the answer, none for enhancement
	assert.Equal(t, 1, llm.completeCalls)

	_, err = svc.Ask(context.Background(), AskInput{Message: "what about it?", SessionToken: first.SessionToken})
	require.NoError(t, err)
	// follow-up adds an enhancement call plus the answer call
	assert.Equal(t, 3, llm.completeCalls)
}

func TestEnhancementFailureFallsBackToOriginal(t *testing.T) {
	calls := 0
	llm := &fakeLLM{completeFn: func([]ai.ChatMessage) (string, error) {
		calls++
		if calls == 2 {
			// the follow-up's enhancement call
			return "", errors.New("boom")
		}
		return "the answer", nil
	}}
	svc := newTestChatService(t, llm, &fakeRetriever{results: defaultResults()})

	first, err := svc.Ask(context.Background(), AskInput{Message: "first question"})
	require.NoError(t, err)

	result, err := svc.Ask(context.Background(), AskInput{Message: "follow up", SessionToken: first.SessionToken})
	require.NoError(t, err)
	assert.Equal(t, "the answer", result.Answer)
}

func TestRetryExhaustionReturnsGenerationError(t *testing.T) {
	llm := &fakeLLM{completeFn: func([]ai.ChatMessage) (string, error) {
		return "", errors.New("upstream down")
	}}
	svc := newTestChatService(t, llm, &fakeRetriever{results: defaultResults()})

	_, err := svc.Ask(context.Background(), AskInput{Message: "question"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrGeneration))
	// initial attempt + MaxRetries
	assert.Equal(t, 2, llm.completeCalls)

	sessions, err := svc.ListSessions()
	require.NoError(t, err)
	// failed generation persists nothing
	assert.Equal(t, 0, sessions[0].MessageCount)
}

func TestPerformanceBreakdown(t *testing.T) {
	svc := newTestChatService(t, &fakeLLM{}, &fakeRetriever{results: defaultResults()})

	result, err := svc.Ask(context.Background(), AskInput{Message: "question"})
	require.NoError(t, err)

	perf := result.Performance
	assert.GreaterOrEqual(t, perf.RetrievalTime, 0.0)
	assert.GreaterOrEqual(t, perf.GenerationTime, 0.0)
	assert.GreaterOrEqual(t, perf.TotalTime+1e-6, perf.RetrievalTime+perf.GenerationTime)
}

func TestAnswerWithoutContext(t *testing.T) {
	svc := newTestChatService(t, &fakeLLM{}, &fakeRetriever{})

	answer, err := svc.Answer(context.Background(), "anything indexed?", PromptStyleDefault)
	require.NoError(t, err)
	assert.Empty(t, answer.Sources)
	assert.InDelta(t, 0.1, answer.Confidence, 1e-9)
}

func TestGetMessagesLimit(t *testing.T) {
	svc := newTestChatService(t, &fakeLLM{}, &fakeRetriever{results: defaultResults()})

	first, err := svc.Ask(context.Background(), AskInput{Message: "one"})
	require.NoError(t, err)
	_, err = svc.Ask(context.Background(), AskInput{Message: "two", SessionToken: first.SessionToken})
	require.NoError(t, err)

	messages, err := svc.GetMessages(context.Background(), first.SessionToken, 2)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	// the newest pair survives the limit
	assert.Equal(t, "two", messages[0].Content)
}

func TestLimitedReadDoesNotTruncateCachedTranscript(t *testing.T) {
	cache := newFakeHistoryCache()
	svc := newTestChatServiceWithCache(t, &fakeLLM{}, &fakeRetriever{results: defaultResults()}, cache)

	first, err := svc.Ask(context.Background(), AskInput{Message: "one"})
	require.NoError(t, err)
	_, err = svc.Ask(context.Background(), AskInput{Message: "two", SessionToken: first.SessionToken})
	require.NoError(t, err)

	// writes mark the entry dirty; clear it as the marker's expiry would
	cache.dirty[first.SessionToken] = false

	limited, err := svc.GetMessages(context.Background(), first.SessionToken, 2)
	require.NoError(t, err)
	require.Len(t, limited, 2)

	// the limited read must have cached the whole transcript
	full, err := svc.GetMessages(context.Background(), first.SessionToken, 0)
	require.NoError(t, err)
	require.Len(t, full, 4)
	assert.Equal(t, "one", full[0].Content)
	assert.Len(t, cache.history[first.SessionToken], 4)
}

func TestFollowUpPromptCarriesConversationAndOriginalQuestion(t *testing.T) {
	retriever := &fakeRetriever{results: defaultResults()}
	var generationPrompt string
	llm := &fakeLLM{completeFn: func(messages []ai.ChatMessage) (string, error) {
		last := messages[len(messages)-1].Content
		if strings.Contains(last, "Follow-up question:") {
			return "what does the deployment pipeline do?", nil
		}
		generationPrompt = last
		return "the answer", nil
	}}
	svc := newTestChatService(t, llm, retriever)

	first, err := svc.Ask(context.Background(), AskInput{Message: "tell me about the pipeline"})
	require.NoError(t, err)
	_, err = svc.Ask(context.Background(), AskInput{Message: "and what about it?", SessionToken: first.SessionToken})
	require.NoError(t, err)

	// retrieval sees the rewritten query, the prompt keeps the original
	// question plus the prior turns
	assert.Equal(t, "what does the deployment pipeline do?", retriever.lastQuery)
	assert.Contains(t, generationPrompt, "Recent conversation:")
	assert.Contains(t, generationPrompt, "User: tell me about the pipeline")
	assert.Contains(t, generationPrompt, "Question: and what about it?")
	assert.NotContains(t, generationPrompt, "what does the deployment pipeline do?")
}

func TestPreviewTruncation(t *testing.T) {
	assert.Equal(t, "short", preview("short", 10))
	assert.Equal(t, "abc...", preview("abcdef", 3))
	// rune boundaries, not bytes
	assert.Equal(t, "日本...", preview("日本語テキスト", 2))
}

func TestDeleteSessionCascades(t *testing.T) {
	svc := newTestChatService(t, &fakeLLM{}, &fakeRetriever{results: defaultResults()})

	result, err := svc.Ask(context.Background(), AskInput{Message: "question"})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteSession(context.Background(), result.SessionToken))

	sessions, err := svc.ListSessions()
	require.NoError(t, err)
	assert.Empty(t, sessions)

	_, err = svc.GetMessages(context.Background(), result.SessionToken, 0)
	assert.True(t, errors.Is(err, ErrSessionNotFound))

	err = svc.DeleteSession(context.Background(), result.SessionToken)
	assert.True(t, errors.Is(err, ErrSessionNotFound))
}
