package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/ricardoamartinez/vggt/internal/archive"
	"github.com/ricardoamartinez/vggt/internal/infra/config"
	"github.com/ricardoamartinez/vggt/internal/infra/email"
	"github.com/ricardoamartinez/vggt/internal/infra/ffmpeg"
	"github.com/ricardoamartinez/vggt/internal/infra/metrics"
	miniostorage "github.com/ricardoamartinez/vggt/internal/infra/minio"
	"github.com/ricardoamartinez/vggt/internal/infra/postgres"
	"github.com/ricardoamartinez/vggt/internal/infra/rabbitmq"
	"github.com/ricardoamartinez/vggt/internal/infra/tracing"
	"github.com/ricardoamartinez/vggt/internal/infra/vggt"
	"github.com/ricardoamartinez/vggt/internal/usecase"
	"github.com/ricardoamartinez/vggt/pkg/logger"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	fatalOnErr(err, "load config")

	log, err := logger.New(cfg.LogLevel)
	fatalOnErr(err, "init logger")
	defer log.Sync()

	log.Info("starting vggt-processing-service")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Tracing (non-fatal if Jaeger unavailable)
	tp, err := tracing.InitTracer(ctx, cfg.JaegerEndpoint)
	if err != nil {
		log.Warn("tracing init failed, continuing without tracing", zap.Error(err))
	} else {
		defer tp.Shutdown(ctx)
	}

	// Database
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	fatalOnErr(err, "connect to postgres")
	defer pool.Close()

	// Migrations
	err = postgres.RunMigrations(cfg.DatabaseURL, "migrations")
	if err != nil {
		log.Warn("migration warning", zap.Error(err))
	}

	// MinIO
	storage, err := miniostorage.NewStorage(miniostorage.StorageConfig{
		Endpoint:      cfg.MinIOEndpoint,
		AccessKey:     cfg.MinIOAccessKey,
		SecretKey:     cfg.MinIOSecretKey,
		UseSSL:        cfg.MinIOUseSSL,
		UploadBucket:  cfg.MinIOUploadBucket,
		ResultsBucket: cfg.MinIOResultsBucket,
	})
	fatalOnErr(err, "create minio storage")
	fatalOnErr(storage.EnsureBuckets(ctx), "ensure minio buckets")

	// RabbitMQ publisher connection
	rmqConn, err := amqp.Dial(cfg.RabbitMQURL)
	fatalOnErr(err, "connect to rabbitmq for publisher")
	defer rmqConn.Close()

	pub, err := rabbitmq.NewPublisher(rmqConn, cfg.RabbitMQExchange)
	fatalOnErr(err, "create rabbitmq publisher")

	statusPub := rabbitmq.NewStatusPublisher(pub, cfg.RabbitMQStatusQueue)
	dlqPub := rabbitmq.NewDLQPublisher(pub, cfg.RabbitMQDLQ)

	// Infra adapters
	repo := postgres.NewJobRepository(pool)
	prober := ffmpeg.NewProber()
	extractor := ffmpeg.NewExtractor(cfg.FFmpegFPS, cfg.FFmpegFormat, cfg.FFmpegFrameSize, log)
	archiver := archive.NewWriter()
	notifier := email.NewSMTPNotifier(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPFrom, log)

	model := vggt.NewClient(vggt.ClientConfig{
		BaseURL:        cfg.VGGTBaseURL,
		RequestTimeout: time.Duration(cfg.VGGTRequestTimeoutS) * time.Second,
	}, log)

	// Reachability check only: jobs arriving before the endpoint is up
	// fail and retry on their own.
	if info, err := model.Health(ctx); err != nil {
		log.Warn("vggt endpoint not reachable at startup", zap.Error(err))
	} else {
		log.Info("vggt endpoint ready",
			zap.String("model", info.Model),
			zap.String("device", info.Device),
			zap.String("dtype", info.Dtype),
		)
	}

	// Use case
	uc := usecase.NewReconstructVideoUseCase(
		repo, storage, prober, extractor, model, archiver,
		statusPub, dlqPub, notifier,
		log,
		usecase.ReconstructVideoConfig{
			TempDir:    cfg.TempDir,
			BatchSize:  cfg.VGGTBatchSize,
			MaxRetries: cfg.MaxRetries,
		},
	)

	// Metrics server
	metricsSrv := metrics.StartMetricsServer(ctx, cfg.MetricsPort, log)

	// Consumer (worker pool)
	consumer, err := rabbitmq.NewConsumer(rabbitmq.ConsumerConfig{
		URL:         cfg.RabbitMQURL,
		Queue:       cfg.RabbitMQRequestQueue,
		Exchange:    cfg.RabbitMQExchange,
		DLQ:         cfg.RabbitMQDLQ,
		StatusQueue: cfg.RabbitMQStatusQueue,
		Prefetch:    cfg.RabbitMQPrefetch,
		WorkerCount: cfg.WorkerCount,
		BaseDelayMs: cfg.RetryBaseDelayMs,
	}, uc.Execute, log)
	fatalOnErr(err, "create consumer")

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Info("received shutdown signal", zap.String("signal", sig.String()))
		cancel()
	}()

	log.Info("vggt-processing-service started, consuming messages")

	if err := consumer.Start(ctx); err != nil {
		log.Error("consumer error", zap.Error(err))
	}

	// Shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	metricsSrv.Shutdown(shutdownCtx)

	consumer.Close()
	log.Info("vggt-processing-service stopped")
}

func fatalOnErr(err error, msg string) {
	if err != nil {
		panic(msg + ": " + err.Error())
	}
}
