package bootstrap

import (
	"context"
	"fmt"
	"log"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"bimagent/internal/ai"
	"bimagent/internal/app"
	"bimagent/internal/cache"
	"bimagent/internal/config"
	"bimagent/internal/index"
	"bimagent/internal/ingest"
	"bimagent/internal/model"
	mysqlClient "bimagent/internal/platform/mysql"
	rabbitmqClient "bimagent/internal/platform/rabbitmq"
	redisClient "bimagent/internal/platform/redis"
	"bimagent/internal/repository"
	"bimagent/internal/worker"
)

type App struct {
	Config *config.Config
	MySQL  *gorm.DB
	Redis  *redis.Client
	MQConn *amqp.Connection

	Embedder ai.Embedder
	Index    *index.Index

	AuthService       *app.AuthService
	ChatService       *app.ChatService
	ProjectService    *app.ProjectService
	DocumentService   *app.DocumentService
	GenerationService *app.GenerationService
	VerifierService   *app.VerifierService
	RAGAdminService   *app.RAGAdminService

	MessageWorker    *worker.MessagePersistWorker
	GenerationWorker *worker.GenerationWorker

	StartedAt time.Time
}

func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}

	mysqlDB, err := mysqlClient.New(ctx, cfg.MySQLDSN())
	if err != nil {
		return nil, err
	}
	if err := mysqlDB.AutoMigrate(
		&model.User{},
		&model.Session{},
		&model.Message{},
		&model.Project{},
		&model.GeneratedDocument{},
		&model.KnowledgeChunk{},
	); err != nil {
		return nil, fmt.Errorf("auto migrate tables failed: %w", err)
	}

	redisCli, err := redisClient.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return nil, err
	}

	mqConn, err := rabbitmqClient.New(ctx, cfg.RabbitMQ.URL)
	if err != nil {
		return nil, err
	}

	embedder := newEmbedder(cfg)

	chunkRepo := repository.NewChunkRepository(mysqlDB)
	knowledgeIndex := index.New(chunkRepo, cfg.Index.Collection, cfg.Embedding.Model)
	if err := knowledgeIndex.Init(ctx); err != nil {
		// Retrieval fails open: the server starts, chat runs ungrounded,
		// and a reindex or restart can bring the index back.
		log.Printf("bootstrap: index unavailable: %v", err)
	}

	retrieval := app.NewRetrievalService(embedder, knowledgeIndex, cfg.Index.TopK)

	ingestor := ingest.NewIngestor(embedder, knowledgeIndex, ingest.Options{
		CorpusDir:     cfg.Ingest.CorpusDir,
		Collection:    cfg.Index.Collection,
		ChunkSize:     cfg.Ingest.ChunkSize,
		ChunkOverlap:  cfg.Ingest.ChunkOverlap,
		MinChunkChars: cfg.Ingest.MinChunkChars,
		MinPageChars:  cfg.Ingest.MinPageChars,
		MaxFileMB:     cfg.Ingest.MaxFileMB,
		UpsertBatch:   cfg.Ingest.UpsertBatch,
		EmbedBatch:    cfg.Ingest.EmbedBatch,
	})

	userRepo := repository.NewUserRepository(mysqlDB)
	sessionRepo := repository.NewSessionRepository(mysqlDB)
	messageRepo := repository.NewMessageRepository(mysqlDB)
	projectRepo := repository.NewProjectRepository(mysqlDB)
	documentRepo := repository.NewDocumentRepository(mysqlDB)

	historyCache := cache.NewHistoryCache(
		redisCli,
		time.Duration(cfg.Redis.HistoryTTLSeconds)*time.Second,
		time.Duration(cfg.Redis.HistoryDirtyTTLSeconds)*time.Second,
	)
	jobStatusCache := cache.NewJobStatusCache(
		redisCli,
		time.Duration(cfg.Redis.JobStatusTTLSeconds)*time.Second,
	)
	rateLimiter := cache.NewChatRateLimiter(redisCli, cfg.Chat.MaxPerHour, time.Hour)

	messagePublisher := rabbitmqClient.NewMessagePublisher(mqConn, cfg.RabbitMQ.MessageQueue)
	jobPublisher := rabbitmqClient.NewJobPublisher(mqConn, cfg.RabbitMQ.GenerationQueue)

	llmConfig := ai.ChatConfig{
		BaseURL: cfg.LLM.BaseURL,
		APIKey:  cfg.LLM.APIKey,
		Model:   cfg.LLM.Model,
	}

	authService := app.NewAuthService(
		userRepo,
		cfg.Auth.JWTSecret,
		time.Duration(cfg.Auth.JWTExpireMinute)*time.Minute,
	)
	chatService := app.NewChatService(
		sessionRepo,
		messageRepo,
		messagePublisher,
		historyCache,
		retrieval,
		rateLimiter,
		llmConfig,
		cfg.LLM.MaxContextMessage,
	)
	projectService := app.NewProjectService(projectRepo)
	documentService := app.NewDocumentService(documentRepo, projectRepo)
	generationService := app.NewGenerationService(
		projectRepo,
		documentRepo,
		retrieval,
		jobPublisher,
		jobStatusCache,
		llmConfig,
	)
	verifierService := app.NewVerifierService(projectRepo, documentRepo, llmConfig)
	ragAdminService := app.NewRAGAdminService(
		retrieval,
		ingestor,
		knowledgeIndex,
		chunkRepo,
		cfg.Index.Collection,
		cfg.Ingest.CorpusDir,
		cfg.Ingest.MaxFileMB,
	)

	messageWorker := worker.NewMessagePersistWorker(mqConn, messageRepo, cfg.RabbitMQ.MessageQueue)
	if err := messageWorker.Start(ctx); err != nil {
		return nil, fmt.Errorf("start message worker failed: %w", err)
	}
	generationWorker := worker.NewGenerationWorker(mqConn, generationService, cfg.RabbitMQ.GenerationQueue)
	if err := generationWorker.Start(ctx); err != nil {
		messageWorker.Close()
		return nil, fmt.Errorf("start generation worker failed: %w", err)
	}

	return &App{
		Config:            cfg,
		MySQL:             mysqlDB,
		Redis:             redisCli,
		MQConn:            mqConn,
		Embedder:          embedder,
		Index:             knowledgeIndex,
		AuthService:       authService,
		ChatService:       chatService,
		ProjectService:    projectService,
		DocumentService:   documentService,
		GenerationService: generationService,
		VerifierService:   verifierService,
		RAGAdminService:   ragAdminService,
		MessageWorker:     messageWorker,
		GenerationWorker:  generationWorker,
		StartedAt:         time.Now(),
	}, nil
}

// newEmbedder picks the embedding provider: an OpenAI-compatible endpoint
// or the in-process ONNX sentence encoder.
func newEmbedder(cfg *config.Config) ai.Embedder {
	if cfg.Embedding.Provider == "local" {
		return ai.NewLocalEmbedder(ai.LocalEmbedderConfig{
			ModelPath: cfg.Embedding.ModelPath,
			VocabPath: cfg.Embedding.VocabPath,
			LibPath:   cfg.Embedding.ONNXLib,
			ModelID:   cfg.Embedding.Model,
			MaxSeqLen: cfg.Embedding.MaxSeqLen,
			Dims:      cfg.Embedding.Dimensions,
		})
	}
	return ai.NewAPIEmbedder(ai.NewOpenAICompatibleClient(), ai.EmbeddingConfig{
		BaseURL: cfg.Embedding.BaseURL,
		APIKey:  cfg.Embedding.APIKey,
		Model:   cfg.Embedding.Model,
	})
}

func (a *App) Close() error {
	var closeErr error
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			closeErr = err
		}
	}
	if a.MessageWorker != nil {
		a.MessageWorker.Close()
	}
	if a.GenerationWorker != nil {
		a.GenerationWorker.Close()
	}
	if closer, ok := a.Embedder.(interface{ Close() }); ok {
		closer.Close()
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
