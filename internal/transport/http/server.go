package http

import (
	"time"

	"github.com/gin-gonic/gin"

	"docanalyzer/internal/ai"
	appsvc "docanalyzer/internal/app"
	"docanalyzer/internal/bootstrap"
	"docanalyzer/internal/cache"
	"docanalyzer/internal/repository"
	"docanalyzer/internal/transport/http/handler"
)

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	healthHandler := handler.NewHealthHandler(app)
	router.GET("/health", healthHandler.Check)

	sessionRepo := repository.NewChatSessionRepository(app.MySQL)
	messageRepo := repository.NewChatMessageRepository(app.MySQL)
	evalRepo := repository.NewEvaluationRepository(app.MySQL)
	historyCache := cache.NewHistoryCache(
		app.Redis,
		time.Duration(app.Config.Redis.HistoryTTLSeconds)*time.Second,
		time.Duration(app.Config.Redis.HistoryDirtyTTLSeconds)*time.Second,
	)

	chatConfig := ai.ChatConfig{
		BaseURL:     app.Config.LLM.BaseURL,
		APIKey:      app.Config.LLM.APIKey,
		Model:       app.Config.LLM.Model,
		Temperature: app.Config.LLM.Temperature,
		MaxTokens:   app.Config.LLM.MaxTokens,
	}
	embConfig := ai.EmbeddingConfig{
		BaseURL: app.Config.LLM.BaseURL,
		APIKey:  app.Config.LLM.APIKey,
		Model:   app.Config.LLM.EmbeddingModel,
	}

	chatService := appsvc.NewChatService(
		sessionRepo,
		messageRepo,
		historyCache,
		app.VectorStore,
		app.LLM,
		chatConfig,
		embConfig,
		appsvc.OverlapConfidence{},
		appsvc.RAGOptions{
			TopK:          app.Config.RAG.TopK,
			Threshold:     app.Config.RAG.SimilarityThreshold,
			HybridAlpha:   app.Config.RAG.HybridAlpha,
			HistoryWindow: app.Config.RAG.HistoryWindow,
			MaxRetries:    app.Config.LLM.MaxRetries,
			RetryBackoff:  time.Duration(app.Config.LLM.RetryBackoffMs) * time.Millisecond,
		},
	)
	evalService := appsvc.NewEvalService(chatService, evalRepo, appsvc.NewLLMScorer(app.LLM, chatConfig))

	documentHandler := handler.NewDocumentHandler(app.Ingest)
	chatHandler := handler.NewChatHandler(chatService)
	evaluationHandler := handler.NewEvaluationHandler(evalService)

	v1 := router.Group("/api/v1")

	docGroup := v1.Group("/documents")
	docGroup.POST("/upload", documentHandler.Upload)
	docGroup.GET("/", documentHandler.List)
	docGroup.DELETE("/:id", documentHandler.Delete)

	chatGroup := v1.Group("/chat")
	chatGroup.POST("/", chatHandler.Ask)
	chatGroup.GET("/sessions", chatHandler.ListSessions)
	chatGroup.GET("/sessions/:id/messages", chatHandler.GetMessages)
	chatGroup.DELETE("/sessions/:id", chatHandler.DeleteSession)

	evalGroup := v1.Group("/evaluation")
	evalGroup.POST("/single", evaluationHandler.Single)
	evalGroup.POST("/batch", evaluationHandler.Batch)
	evalGroup.GET("/batches", evaluationHandler.ListBatches)
	evalGroup.GET("/batches/:id", evaluationHandler.GetBatch)

	return router
}
