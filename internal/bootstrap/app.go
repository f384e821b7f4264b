package bootstrap

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"coursepilot/internal/ai"
	"coursepilot/internal/config"
	"coursepilot/internal/ingest"
	"coursepilot/internal/model"
	"coursepilot/internal/parser"
	mysqlClient "coursepilot/internal/platform/mysql"
	rabbitmqClient "coursepilot/internal/platform/rabbitmq"
	redisClient "coursepilot/internal/platform/redis"
	"coursepilot/internal/ratelimit"
	"coursepilot/internal/repository"
	"coursepilot/internal/storage"
	"coursepilot/internal/worker"
)

type App struct {
	Config       *config.Config
	MySQL        *gorm.DB
	Redis        *redis.Client
	MQConn       *amqp.Connection
	Store        storage.Store
	Orchestrator *ingest.Orchestrator
	IngestWorker *worker.IngestWorker

	MessageLimiter *ratelimit.Limiter
	UploadLimiter  *ratelimit.Limiter

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
		&model.Course{},
		&model.Document{},
		&model.DocumentChunk{},
		&model.ChatSession{},
		&model.Message{},
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

	store, err := storage.NewDiskStore(cfg.Storage.Dir)
	if err != nil {
		return nil, fmt.Errorf("init storage failed: %w", err)
	}

	var vision parser.VisionDescriber
	if cfg.Parser.OCREnabled {
		vision = ai.NewVisionClient(ai.NewOpenAICompatibleClient(), ai.ChatConfig{
			BaseURL: cfg.LLM.BaseURL,
			APIKey:  cfg.LLM.APIKey,
			Model:   cfg.LLM.VisionModel,
		})
	}

	docRepo := repository.NewDocumentRepository(mysqlDB)
	chunkRepo := repository.NewChunkRepository(mysqlDB)
	jobPublisher := rabbitmqClient.NewIngestJobPublisher(mqConn, cfg.RabbitMQ.IngestJobQueue)

	orchestrator := ingest.NewOrchestrator(docRepo, chunkRepo, store, parser.New(vision), jobPublisher, ingest.Options{
		MaxUploadBytes: cfg.Upload.MaxSizeBytes,
		ParserOptions: parser.Options{
			MaxTextChars: cfg.Parser.MaxTextChars,
			OCREnabled:   cfg.Parser.OCREnabled,
		},
	})

	ingestWorker := worker.NewIngestWorker(mqConn, orchestrator, cfg.RabbitMQ.IngestJobQueue)
	if err := ingestWorker.Start(ctx); err != nil {
		return nil, fmt.Errorf("start ingest worker failed: %w", err)
	}

	return &App{
		Config:         cfg,
		MySQL:          mysqlDB,
		Redis:          redisCli,
		MQConn:         mqConn,
		Store:          store,
		Orchestrator:   orchestrator,
		IngestWorker:   ingestWorker,
		MessageLimiter: ratelimit.New(cfg.RateLimit.MessageMaxRequests, time.Duration(cfg.RateLimit.MessageWindowSeconds)*time.Second),
		UploadLimiter:  ratelimit.New(cfg.RateLimit.UploadMaxRequests, time.Duration(cfg.RateLimit.UploadWindowSeconds)*time.Second),
		StartedAt:      time.Now(),
	}, nil
}

func (a *App) Close() error {
	var closeErr error
	if a.MessageLimiter != nil {
		a.MessageLimiter.Stop()
	}
	if a.UploadLimiter != nil {
		a.UploadLimiter.Stop()
	}
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
