package main

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/septivank/battery-drain-worker/internal/archive"
	"github.com/septivank/battery-drain-worker/internal/cache"
	"github.com/septivank/battery-drain-worker/internal/config"
	"github.com/septivank/battery-drain-worker/internal/db"
	"github.com/septivank/battery-drain-worker/internal/httpapi"
	"github.com/septivank/battery-drain-worker/internal/mq"
	"github.com/septivank/battery-drain-worker/internal/mqttingest"
	"github.com/septivank/battery-drain-worker/internal/observability"
	"github.com/septivank/battery-drain-worker/internal/repository"
	"github.com/septivank/battery-drain-worker/internal/service"
	"github.com/septivank/battery-drain-worker/internal/validator"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func startWorker(
	lc fx.Lifecycle,
	conn *mq.Connection,
	cfg *config.Config,
	logger *zap.Logger,
	processor *service.ProcessorService,
) (*mq.Consumer, error) {
	// Create context for consumer that will be cancelled on shutdown
	ctx, cancel := context.WithCancel(context.Background())

	consumer, err := mq.NewConsumer(mq.ConsumerConfig{
		Connection:       conn,
		Queue:            cfg.RabbitMQ.IngestQueue,
		DLQQueue:         cfg.RabbitMQ.DLQQueue,
		Exchange:         cfg.RabbitMQ.IngestExchange,
		RoutingKey:       cfg.RabbitMQ.IngestRoutingKey,
		PrefetchCount:    cfg.RabbitMQ.PrefetchCount,
		Logger:           logger,
		MessageProcessor: processor.ProcessMessage,
	})
	if err != nil {
		cancel()
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStart: func(startCtx context.Context) error {
			logger.Info("starting ingest consumer",
				zap.String("queue", cfg.RabbitMQ.IngestQueue),
				zap.Int("prefetch", cfg.RabbitMQ.PrefetchCount))
			return consumer.Start(ctx)
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			if err := consumer.Close(); err != nil {
				logger.Error("failed to close consumer", zap.Error(err))
				return err
			}
			logger.Info("ingest consumer stopped gracefully")
			return nil
		},
	})

	return consumer, nil
}

func startMQTTIngest(lc fx.Lifecycle, cfg *config.Config, processor *service.ProcessorService, logger *zap.Logger) {
	if cfg.MQTT.BrokerURL == "" {
		logger.Info("mqtt ingest disabled")
		return
	}

	subscriber := mqttingest.NewSubscriber(mqttingest.Config{
		BrokerURL: cfg.MQTT.BrokerURL,
		ClientID:  cfg.MQTT.ClientID,
		Username:  cfg.MQTT.Username,
		Password:  cfg.MQTT.Password,
		Topic:     cfg.MQTT.Topic,
		QoS:       byte(cfg.MQTT.QoS),
	}, processor.ProcessMessage, logger)

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			return subscriber.Start()
		},
		OnStop: func(context.Context) error {
			subscriber.Stop()
			return nil
		},
	})
}

func startScheduler(lc fx.Lifecycle, scheduler *service.Scheduler) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			scheduler.Start()
			return nil
		},
		OnStop: func(context.Context) error {
			scheduler.Stop()
			return nil
		},
	})
}

func startHTTPServer(lc fx.Lifecycle, server *httpapi.Server) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			return server.Start()
		},
		OnStop: func(ctx context.Context) error {
			return server.Stop(ctx)
		},
	})
}

// ProvideRepository creates a new repository instance
func ProvideRepository(pool *db.Pool) *repository.Repository {
	return repository.NewRepository(pool)
}

// ProvideValidator creates a new validator instance
func ProvideValidator(cfg *config.Config) *validator.Validator {
	return validator.NewValidator(cfg.Validation.FutureSkewMinutes)
}

// ProvidePublisher creates the worker events publisher
func ProvidePublisher(lc fx.Lifecycle, conn *mq.Connection, cfg *config.Config, logger *zap.Logger) (*mq.Publisher, error) {
	publisher, err := mq.NewPublisher(conn, cfg.RabbitMQ.WorkerExchange, logger)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return publisher.Close()
		},
	})
	return publisher, nil
}

// ProvideRedisClient creates the cache client
func ProvideRedisClient(lc fx.Lifecycle, logger *zap.Logger, cfg *config.Config) *redis.Client {
	return cache.NewRedisClient(lc, logger, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
}

// ProvideReadingCache creates the batch cache on top of redis
func ProvideReadingCache(client *redis.Client, cfg *config.Config, logger *zap.Logger) *cache.ReadingCache {
	return cache.NewReadingCache(cache.NewRedisKVStore(client), cfg.Redis.CacheTTL, logger)
}

// ProvideReadingSource creates the cached full-batch source
func ProvideReadingSource(
	repo *repository.Repository,
	readingCache *cache.ReadingCache,
	metrics *observability.Metrics,
	cfg *config.Config,
	logger *zap.Logger,
) *service.ReadingSource {
	return service.NewReadingSource(repo, readingCache, cfg.Analysis.BatchCap, metrics, logger)
}

// ProvideProcessorService creates a new processor service instance
func ProvideProcessorService(
	repo *repository.Repository,
	publisher *mq.Publisher,
	source *service.ReadingSource,
	validator *validator.Validator,
	metrics *observability.Metrics,
	cfg *config.Config,
	logger *zap.Logger,
) *service.ProcessorService {
	return service.NewProcessorService(repo, publisher, source, validator, metrics, cfg.RabbitMQ.IngestedKey, logger)
}

// ProvideQueryService creates the read-side query service
func ProvideQueryService(repo *repository.Repository, source *service.ReadingSource, cfg *config.Config) *service.QueryService {
	return service.NewQueryService(repo, source, cfg.API.DefaultPageSize, cfg.Analysis.FullBatchLimit, cfg.API.LatestLimit)
}

// ProvideArchiver creates the object storage archiver, or nil when no endpoint is configured
func ProvideArchiver(cfg *config.Config, logger *zap.Logger) (service.RunArchiver, error) {
	if cfg.Archive.Endpoint == "" {
		logger.Info("analysis archive disabled")
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := archive.NewMinioClient(ctx, archive.Config{
		Endpoint:  cfg.Archive.Endpoint,
		AccessKey: cfg.Archive.AccessKey,
		SecretKey: cfg.Archive.SecretKey,
		Bucket:    cfg.Archive.Bucket,
		UseSSL:    cfg.Archive.UseSSL,
	})
	if err != nil {
		return nil, err
	}
	return archive.NewArchiver(client, cfg.Archive.Bucket, logger), nil
}

// ProvideAnalysisService creates the analysis service
func ProvideAnalysisService(
	source *service.ReadingSource,
	publisher *mq.Publisher,
	archiver service.RunArchiver,
	metrics *observability.Metrics,
	cfg *config.Config,
	logger *zap.Logger,
) *service.AnalysisService {
	routes := service.AnalysisRoutes{
		Completed:     cfg.RabbitMQ.AnalysisKey,
		SiteAttention: cfg.RabbitMQ.SiteAlertKey,
	}
	return service.NewAnalysisService(source, publisher, archiver, routes, metrics, logger)
}

// ProvideScheduler creates the periodic analysis scheduler
func ProvideScheduler(analysis *service.AnalysisService, cfg *config.Config, logger *zap.Logger) *service.Scheduler {
	return service.NewScheduler(analysis, cfg.Analysis.Interval, logger)
}

// ProvideHTTPServer creates the REST API server
func ProvideHTTPServer(
	queries *service.QueryService,
	analysis *service.AnalysisService,
	metrics *observability.Metrics,
	cfg *config.Config,
	logger *zap.Logger,
) *httpapi.Server {
	opts := httpapi.Options{
		Addr:        cfg.ListenAddr(),
		BearerToken: cfg.HTTP.BearerToken,
		ExportLimit: cfg.Analysis.FullBatchLimit,
	}
	return httpapi.New(opts, queries, analysis, metrics, logger)
}

// ProvideDBPool creates a new database pool instance
func ProvideDBPool(lc fx.Lifecycle, logger *zap.Logger, cfg *config.Config) (*db.Pool, error) {
	return db.NewPool(lc, logger, cfg.Database.URL)
}

// ProvideMQConnection creates a new RabbitMQ connection instance
func ProvideMQConnection(lc fx.Lifecycle, logger *zap.Logger, cfg *config.Config) (*mq.Connection, error) {
	return mq.NewConnection(lc, logger, cfg.RabbitMQ.URL)
}
