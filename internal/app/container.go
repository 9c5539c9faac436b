package app

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-grader/internal/config"
	"github.com/noah-isme/gema-grader/internal/database"
	"github.com/noah-isme/gema-grader/internal/handler"
	"github.com/noah-isme/gema-grader/internal/repository"
	"github.com/noah-isme/gema-grader/internal/service"
	"github.com/noah-isme/gema-grader/pkg/ai"
	cloud "github.com/noah-isme/gema-grader/pkg/cloudinary"
	"github.com/noah-isme/gema-grader/pkg/document"
)

const connectTimeout = 5 * time.Second

// Container holds the connections and services shared by the API server and gradectl.
type Container struct {
	Config      config.Config
	DB          *gorm.DB
	Redis       *redis.Client
	NATS        *nats.Conn
	Submissions repository.SubmissionRepository
	Grading     service.GradingService
	logger      zerolog.Logger
}

// New connects every configured backend and builds the grading pipeline.
// Redis and NATS are optional; without them grading is serialized per process
// and completion events are not published.
func New(cfg config.Config, logger zerolog.Logger) (*Container, error) {
	container := &Container{Config: cfg, logger: logger}

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	container.DB = db

	if err := database.Migrate(db); err != nil {
		container.Close()
		return nil, err
	}

	if cfg.RedisURL != "" {
		pingCtx, cancel := context.WithTimeout(context.Background(), connectTimeout)
		client, err := database.ConnectRedis(pingCtx, cfg.RedisURL, cfg.AppName)
		cancel()
		if err != nil {
			container.Close()
			return nil, err
		}
		container.Redis = client
	}

	if cfg.NATSURL != "" {
		conn, err := database.ConnectNATS(cfg.NATSURL, cfg.AppName)
		if err != nil {
			container.Close()
			return nil, err
		}
		container.NATS = conn
	}

	store, err := newDocumentStore(cfg, logger)
	if err != nil {
		container.Close()
		return nil, err
	}

	generator, err := ai.NewOpenAIGenerator(ai.OpenAIConfig{
		APIKey:  cfg.OpenAIAPIKey,
		BaseURL: cfg.AIBaseURL,
		Model:   cfg.AIModel,
		Logger:  logger,
	})
	if err != nil {
		container.Close()
		return nil, fmt.Errorf("failed to create generator: %w", err)
	}

	container.Submissions = repository.NewSubmissionRepository(db)
	container.Grading = service.NewGradingService(
		container.Submissions,
		repository.NewGradingResultRepository(db),
		document.NewExtractor(store, logger),
		service.NewAnswerSynthesizer(generator, service.GenerationConfig{
			MaxTokens:   cfg.SynthesisMaxTokens,
			Temperature: cfg.AITemperature,
			Timeout:     cfg.AIRequestTimeout,
		}, logger),
		service.NewSubmissionGrader(generator, service.GenerationConfig{
			MaxTokens:   cfg.GradingMaxTokens,
			Temperature: cfg.AITemperature,
			Timeout:     cfg.AIRequestTimeout,
		}, logger),
		service.NewGradingGuard(container.Redis, cfg.EventsChannel, cfg.GradingLockTTL, logger),
		service.NewGradingEventPublisher(container.NATS, container.Redis, cfg.EventsChannel, logger),
		logger,
		service.GradingConfig{Provider: cfg.AIProvider, Model: generator.Model()},
	)

	return container, nil
}

func newDocumentStore(cfg config.Config, logger zerolog.Logger) (document.Store, error) {
	switch cfg.DocumentsBackend {
	case config.DocumentBackendCloudinary:
		resolver, err := cloud.New(cloud.Config{
			CloudName: cfg.CloudinaryCloudName,
			APIKey:    cfg.CloudinaryAPIKey,
			APISecret: cfg.CloudinaryAPISecret,
			Folder:    cfg.CloudinaryFolder,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create cloudinary client: %w", err)
		}
		return document.NewResolvingStore(resolver), nil
	default:
		return document.NewAFSStore(cfg.DocumentsBaseURL), nil
	}
}

// HealthProbes returns a probe per connected backend.
func (c *Container) HealthProbes() map[string]handler.HealthProbe {
	probes := map[string]handler.HealthProbe{
		"database": func(ctx context.Context) error {
			sqlDB, err := c.DB.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}
	if c.Redis != nil {
		probes["redis"] = func(ctx context.Context) error {
			return c.Redis.Ping(ctx).Err()
		}
	}
	if c.NATS != nil {
		probes["nats"] = func(context.Context) error {
			if !c.NATS.IsConnected() {
				return fmt.Errorf("nats status %s", c.NATS.Status())
			}
			return nil
		}
	}
	return probes
}

// Close releases every open connection.
func (c *Container) Close() {
	if c.NATS != nil {
		if err := c.NATS.Drain(); err != nil {
			c.logger.Warn().Err(err).Msg("failed to drain nats connection")
		}
	}
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			c.logger.Warn().Err(err).Msg("failed to close redis client")
		}
	}
	if c.DB != nil {
		if sqlDB, err := c.DB.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
}
