package integration

import (
	"archive/zip"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/ricardoamartinez/vggt/internal/archive"
	"github.com/ricardoamartinez/vggt/internal/domain/entity"
	"github.com/ricardoamartinez/vggt/internal/domain/port"
	"github.com/ricardoamartinez/vggt/internal/infra/email"
	"github.com/ricardoamartinez/vggt/internal/infra/ffmpeg"
	miniostorage "github.com/ricardoamartinez/vggt/internal/infra/minio"
	"github.com/ricardoamartinez/vggt/internal/infra/postgres"
	"github.com/ricardoamartinez/vggt/internal/infra/rabbitmq"
	"github.com/ricardoamartinez/vggt/internal/infra/vggt"
	"github.com/ricardoamartinez/vggt/internal/usecase"
	"github.com/ricardoamartinez/vggt/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcminio "github.com/testcontainers/testcontainers-go/modules/minio"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	tcrabbitmq "github.com/testcontainers/testcontainers-go/modules/rabbitmq"
)

// fakeModelServer stands in for the external VGGT serving endpoint.
func fakeModelServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(port.ModelInfo{Model: "VGGT-1B", Device: "cpu", Dtype: "float32"})
	})
	mux.HandleFunc("/v1/reconstruct", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(64 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		files := r.MultipartForm.File["frames"]
		cameras := make([]port.CameraPose, len(files))
		for i, fh := range files {
			cameras[i] = port.CameraPose{
				Frame:     fh.Filename,
				Extrinsic: make([]float64, 12),
				Intrinsic: make([]float64, 9),
			}
		}
		json.NewEncoder(w).Encode(port.BatchPrediction{
			FrameCount:       len(files),
			InferenceSeconds: 0.01,
			Device:           "cpu",
			Dtype:            "float32",
			Cameras:          cameras,
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestReconstructVideoEndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	// Start PostgreSQL container
	pgContainer, err := tcpostgres.Run(ctx,
		"postgres:15-alpine",
		tcpostgres.WithDatabase("jobs"),
		tcpostgres.WithUsername("job_user"),
		tcpostgres.WithPassword("job_pass"),
		tcpostgres.BasicWaitStrategies(),
	)
	require.NoError(t, err)
	defer pgContainer.Terminate(ctx)

	pgConnStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	// Start RabbitMQ container
	rmqContainer, err := tcrabbitmq.Run(ctx,
		"rabbitmq:3.12-management-alpine",
	)
	require.NoError(t, err)
	defer rmqContainer.Terminate(ctx)

	rmqURL, err := rmqContainer.AmqpURL(ctx)
	require.NoError(t, err)

	// Start MinIO container
	minioContainer, err := tcminio.Run(ctx,
		"minio/minio:latest",
		tcminio.WithUsername("minioadmin"),
		tcminio.WithPassword("minioadmin"),
	)
	require.NoError(t, err)
	defer minioContainer.Terminate(ctx)

	minioEndpoint, err := minioContainer.ConnectionString(ctx)
	require.NoError(t, err)

	// Run migrations
	err = postgres.RunMigrations(pgConnStr, "../../migrations")
	require.NoError(t, err)

	// Setup MinIO storage
	storage, err := miniostorage.NewStorage(miniostorage.StorageConfig{
		Endpoint:      minioEndpoint,
		AccessKey:     "minioadmin",
		SecretKey:     "minioadmin",
		UseSSL:        false,
		UploadBucket:  "uploads",
		ResultsBucket: "reconstructions",
	})
	require.NoError(t, err)
	require.NoError(t, storage.EnsureBuckets(ctx))

	// Upload test video to MinIO
	testVideoPath := filepath.Join("..", "testdata", "test.mp4")
	if _, err := os.Stat(testVideoPath); os.IsNotExist(err) {
		t.Skip("test video not found at tests/testdata/test.mp4 - generate it with: ffmpeg -f lavfi -i testsrc=duration=2:size=320x240:rate=1 -c:v libx264 -pix_fmt yuv420p tests/testdata/test.mp4")
	}

	minioClient, err := miniogo.New(minioEndpoint, &miniogo.Options{
		Creds:  credentials.NewStaticV4("minioadmin", "minioadmin", ""),
		Secure: false,
	})
	require.NoError(t, err)

	videoKey := "testuser/test.mp4"
	_, err = minioClient.FPutObject(ctx, "uploads", videoKey, testVideoPath, miniogo.PutObjectOptions{
		ContentType: "video/mp4",
	})
	require.NoError(t, err)

	// Fake model endpoint
	modelSrv := fakeModelServer(t)

	// Setup RabbitMQ publisher connection
	rmqConn, err := amqp.Dial(rmqURL)
	require.NoError(t, err)
	defer rmqConn.Close()

	pub, err := rabbitmq.NewPublisher(rmqConn, "vggt.reconstruction")
	require.NoError(t, err)

	statusPub := rabbitmq.NewStatusPublisher(pub, "reconstruction.status")
	dlqPub := rabbitmq.NewDLQPublisher(pub, "reconstruction.request.dlq")

	// Setup DB pool
	pool, err := pgxpool.New(ctx, pgConnStr)
	require.NoError(t, err)
	defer pool.Close()

	// Setup use case
	log, _ := logger.New("debug")
	repo := postgres.NewJobRepository(pool)
	prober := ffmpeg.NewProber()
	extractor := ffmpeg.NewExtractor(1, "png", 0, log)
	model := vggt.NewClient(vggt.ClientConfig{
		BaseURL:        modelSrv.URL,
		RequestTimeout: 30 * time.Second,
	}, log)
	archiver := archive.NewWriter()
	notifier := email.NewSMTPNotifier("localhost", 1025, "test@test.local", log)

	uc := usecase.NewReconstructVideoUseCase(
		repo, storage, prober, extractor, model, archiver,
		statusPub, dlqPub, notifier,
		log,
		usecase.ReconstructVideoConfig{
			TempDir:    t.TempDir(),
			BatchSize:  2,
			MaxRetries: 3,
		},
	)

	// Setup consumer
	consumer, err := rabbitmq.NewConsumer(rabbitmq.ConsumerConfig{
		URL:         rmqURL,
		Queue:       "reconstruction.request",
		Exchange:    "vggt.reconstruction",
		DLQ:         "reconstruction.request.dlq",
		StatusQueue: "reconstruction.status",
		Prefetch:    1,
		WorkerCount: 1,
		BaseDelayMs: 100,
	}, uc.Execute, log)
	require.NoError(t, err)
	defer consumer.Close()

	// Start consumer in background
	consumerCtx, consumerCancel := context.WithCancel(ctx)
	defer consumerCancel()

	go func() {
		consumer.Start(consumerCtx)
	}()

	// Give consumer time to start
	time.Sleep(500 * time.Millisecond)

	// Publish reconstruction request
	jobID := uuid.New()
	videoInfo, _ := os.Stat(testVideoPath)
	requestMsg := entity.ReconstructionRequestMessage{
		JobID:     jobID,
		UserID:    "testuser",
		VideoKey:  videoKey,
		FileSize:  videoInfo.Size(),
		UserEmail: "test@test.local",
	}
	msgBody, err := json.Marshal(requestMsg)
	require.NoError(t, err)

	pubCh, err := rmqConn.Channel()
	require.NoError(t, err)
	err = pubCh.PublishWithContext(ctx,
		"vggt.reconstruction",
		"reconstruction.request",
		false, false,
		amqp.Publishing{
			ContentType: "application/json",
			Body:        msgBody,
		},
	)
	require.NoError(t, err)
	pubCh.Close()

	// Wait for status message
	statusCh, err := rmqConn.Channel()
	require.NoError(t, err)
	defer statusCh.Close()

	statusMsgs, err := statusCh.Consume("reconstruction.status", "", true, false, false, false, nil)
	require.NoError(t, err)

	var statusMsg entity.ReconstructionStatusMessage
	select {
	case delivery := <-statusMsgs:
		err = json.Unmarshal(delivery.Body, &statusMsg)
		require.NoError(t, err)
	case <-time.After(2 * time.Minute):
		t.Fatal("timeout waiting for status message")
	}

	// Assert status
	assert.Equal(t, jobID, statusMsg.JobID)
	assert.Equal(t, entity.JobStatusCompleted, statusMsg.Status)
	assert.Greater(t, statusMsg.FrameCount, 0)
	assert.NotEmpty(t, statusMsg.ResultKey)
	assert.Greater(t, statusMsg.InferenceSeconds, 0.0)

	// Verify archive exists in MinIO
	resultObj, err := minioClient.GetObject(ctx, "reconstructions", statusMsg.ResultKey, miniogo.GetObjectOptions{})
	require.NoError(t, err)

	tmpZip := filepath.Join(t.TempDir(), "result.zip")
	tmpFile, err := os.Create(tmpZip)
	require.NoError(t, err)
	_, err = tmpFile.ReadFrom(resultObj)
	require.NoError(t, err)
	tmpFile.Close()

	zipReader, err := zip.OpenReader(tmpZip)
	require.NoError(t, err)
	defer zipReader.Close()

	var haveManifest bool
	batchCount := 0
	for _, f := range zipReader.File {
		switch {
		case f.Name == archive.ManifestName:
			haveManifest = true
		default:
			batchCount++
		}
	}
	assert.True(t, haveManifest, "archive should contain a manifest")
	assert.Greater(t, batchCount, 0, "archive should contain batch predictions")

	// Verify manifest contents
	mf, err := zipReader.Open(archive.ManifestName)
	require.NoError(t, err)
	var manifest port.ResultManifest
	require.NoError(t, json.NewDecoder(mf).Decode(&manifest))
	mf.Close()
	assert.Equal(t, statusMsg.FrameCount, manifest.FrameCount)
	assert.Equal(t, "standard", manifest.ExtractionMethod)
	assert.Equal(t, 2, manifest.BatchSize)

	// Verify job record in database
	var dbStatus string
	var dbFrameCount int
	err = pool.QueryRow(ctx,
		"SELECT status, frame_count FROM reconstruction_jobs WHERE id=$1", jobID,
	).Scan(&dbStatus, &dbFrameCount)
	require.NoError(t, err)
	assert.Equal(t, "COMPLETED", dbStatus)
	assert.Equal(t, statusMsg.FrameCount, dbFrameCount)

	consumerCancel()

	t.Logf("Test passed: %d frames reconstructed, archive at %s", statusMsg.FrameCount, statusMsg.ResultKey)
}

func TestReconstructVideoMalformedMessage(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	// Start PostgreSQL
	pgContainer, err := tcpostgres.Run(ctx,
		"postgres:15-alpine",
		tcpostgres.WithDatabase("jobs"),
		tcpostgres.WithUsername("job_user"),
		tcpostgres.WithPassword("job_pass"),
		tcpostgres.BasicWaitStrategies(),
	)
	require.NoError(t, err)
	defer pgContainer.Terminate(ctx)

	pgConnStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	// Start RabbitMQ
	rmqContainer, err := tcrabbitmq.Run(ctx,
		"rabbitmq:3.12-management-alpine",
	)
	require.NoError(t, err)
	defer rmqContainer.Terminate(ctx)

	rmqURL, err := rmqContainer.AmqpURL(ctx)
	require.NoError(t, err)

	// Run migrations
	err = postgres.RunMigrations(pgConnStr, "../../migrations")
	require.NoError(t, err)

	// MinIO (minimal - no video upload needed for this test)
	minioContainer, err := tcminio.Run(ctx,
		"minio/minio:latest",
		tcminio.WithUsername("minioadmin"),
		tcminio.WithPassword("minioadmin"),
	)
	require.NoError(t, err)
	defer minioContainer.Terminate(ctx)

	minioEndpoint, err := minioContainer.ConnectionString(ctx)
	require.NoError(t, err)

	storage, err := miniostorage.NewStorage(miniostorage.StorageConfig{
		Endpoint:      minioEndpoint,
		AccessKey:     "minioadmin",
		SecretKey:     "minioadmin",
		UseSSL:        false,
		UploadBucket:  "uploads",
		ResultsBucket: "reconstructions",
	})
	require.NoError(t, err)
	require.NoError(t, storage.EnsureBuckets(ctx))

	// Setup
	pool, err := pgxpool.New(ctx, pgConnStr)
	require.NoError(t, err)
	defer pool.Close()

	log, _ := logger.New("debug")
	rmqConn, err := amqp.Dial(rmqURL)
	require.NoError(t, err)
	defer rmqConn.Close()

	pub, err := rabbitmq.NewPublisher(rmqConn, "vggt.reconstruction")
	require.NoError(t, err)

	statusPub := rabbitmq.NewStatusPublisher(pub, "reconstruction.status")
	dlqPub := rabbitmq.NewDLQPublisher(pub, "reconstruction.request.dlq")

	modelSrv := fakeModelServer(t)

	repo := postgres.NewJobRepository(pool)
	prober := ffmpeg.NewProber()
	extractor := ffmpeg.NewExtractor(1, "png", 0, log)
	model := vggt.NewClient(vggt.ClientConfig{
		BaseURL:        modelSrv.URL,
		RequestTimeout: 30 * time.Second,
	}, log)
	archiver := archive.NewWriter()
	notifier := email.NewSMTPNotifier("localhost", 1025, "test@test.local", log)

	uc := usecase.NewReconstructVideoUseCase(
		repo, storage, prober, extractor, model, archiver,
		statusPub, dlqPub, notifier,
		log,
		usecase.ReconstructVideoConfig{
			TempDir:    t.TempDir(),
			BatchSize:  2,
			MaxRetries: 3,
		},
	)

	consumer, err := rabbitmq.NewConsumer(rabbitmq.ConsumerConfig{
		URL:         rmqURL,
		Queue:       "reconstruction.request",
		Exchange:    "vggt.reconstruction",
		DLQ:         "reconstruction.request.dlq",
		StatusQueue: "reconstruction.status",
		Prefetch:    1,
		WorkerCount: 1,
		BaseDelayMs: 100,
	}, uc.Execute, log)
	require.NoError(t, err)
	defer consumer.Close()

	consumerCtx, consumerCancel := context.WithCancel(ctx)
	defer consumerCancel()

	go func() {
		consumer.Start(consumerCtx)
	}()
	time.Sleep(500 * time.Millisecond)

	// Publish malformed message
	pubCh, err := rmqConn.Channel()
	require.NoError(t, err)
	err = pubCh.PublishWithContext(ctx,
		"vggt.reconstruction",
		"reconstruction.request",
		false, false,
		amqp.Publishing{
			ContentType: "application/json",
			Body:        []byte(`{invalid json`),
		},
	)
	require.NoError(t, err)
	pubCh.Close()

	// Wait and verify message landed in DLQ
	time.Sleep(2 * time.Second)

	dlqCh, err := rmqConn.Channel()
	require.NoError(t, err)
	defer dlqCh.Close()

	dlqMsg, ok, err := dlqCh.Get("reconstruction.request.dlq", true)
	require.NoError(t, err)
	assert.True(t, ok, "malformed message should be in DLQ")
	assert.Equal(t, `{invalid json`, string(dlqMsg.Body))

	consumerCancel()
	t.Log("Test passed: malformed message sent to DLQ")
}
