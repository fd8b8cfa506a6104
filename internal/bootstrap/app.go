package bootstrap

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"docanalyzer/internal/ai"
	appsvc "docanalyzer/internal/app"
	"docanalyzer/internal/chunker"
	"docanalyzer/internal/config"
	"docanalyzer/internal/extract"
	"docanalyzer/internal/model"
	mysqlClient "docanalyzer/internal/platform/mysql"
	rabbitmqClient "docanalyzer/internal/platform/rabbitmq"
	redisClient "docanalyzer/internal/platform/redis"
	"docanalyzer/internal/repository"
	"docanalyzer/internal/vectorstore"
	"docanalyzer/internal/worker"
)

type App struct {
	Config       *config.Config
	MySQL        *gorm.DB
	Redis        *redis.Client
	MQConn       *amqp.Connection
	VectorStore  *vectorstore.Store
	LLM          *ai.OpenAICompatibleClient
	Ingest       *appsvc.IngestService
	IngestWorker *worker.IngestWorker

	StartedAt time.Time
}

func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}

	mysqlDB, err := mysqlClient.New(ctx, cfg.MySQLDSN(), cfg.MySQL.MaxOpenConns, cfg.MySQL.MaxIdleConns)
	if err != nil {
		return nil, err
	}
	if err := mysqlDB.AutoMigrate(
		&model.Document{},
		&model.Chunk{},
		&model.ChatSession{},
		&model.ChatMessage{},
		&model.EvaluationBatch{},
	); err != nil {
		return nil, fmt.Errorf("auto migrate tables failed: %w", err)
	}

	redisCli, err := redisClient.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.PoolSize)
	if err != nil {
		return nil, err
	}

	mqConn, err := rabbitmqClient.New(ctx, cfg.RabbitMQ.URL)
	if err != nil {
		return nil, err
	}

	chunkRepo := repository.NewChunkRepository(mysqlDB)
	store, err := vectorstore.New(cfg.Vector.PersistDir, cfg.Vector.Collection, chunkRepo)
	if err != nil {
		return nil, err
	}

	splitter, err := chunker.New(cfg.RAG.ChunkSize, cfg.RAG.ChunkOverlap, cfg.RAG.ChunkUnit)
	if err != nil {
		return nil, fmt.Errorf("build chunker failed: %w", err)
	}

	llmClient := ai.NewOpenAICompatibleClient()
	embConfig := ai.EmbeddingConfig{
		BaseURL: cfg.LLM.BaseURL,
		APIKey:  cfg.LLM.APIKey,
		Model:   cfg.LLM.EmbeddingModel,
	}

	publisher := rabbitmqClient.NewIngestPublisher(mqConn, cfg.RabbitMQ.IngestQueue)
	ingest := appsvc.NewIngestService(
		repository.NewDocumentRepository(mysqlDB),
		chunkRepo,
		store,
		extract.New(),
		splitter,
		llmClient,
		embConfig,
		publisher,
		appsvc.IngestOptions{
			UploadDir:        cfg.Upload.Dir,
			MaxFileSize:      cfg.Upload.MaxFileSize,
			ExtensionAllowed: cfg.ExtensionAllowed,
		},
	)

	ingestWorker := worker.NewIngestWorker(mqConn, ingest, cfg.RabbitMQ.IngestQueue)
	if err := ingestWorker.Start(ctx); err != nil {
		return nil, fmt.Errorf("start ingest worker failed: %w", err)
	}

	return &App{
		Config:       cfg,
		MySQL:        mysqlDB,
		Redis:        redisCli,
		MQConn:       mqConn,
		VectorStore:  store,
		LLM:          llmClient,
		Ingest:       ingest,
		IngestWorker: ingestWorker,
		StartedAt:    time.Now(),
	}, nil
}

func (a *App) Close() error {
	var closeErr error
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			closeErr = err
		}
	}
	if a.IngestWorker != nil {
		a.IngestWorker.Close()
	}
	if a.MQConn != nil {
		if err := a.MQConn.Close(); err != nil {
			closeErr = err
		}
	}
	if a.MySQL != nil {
		sqlDB, err := a.MySQL.DB()
		if err == nil {
			if err := sqlDB.Close(); err != nil {
				closeErr = err
			}
		}
	}
	return closeErr
}
