package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/ricardoamartinez/vggt/internal/domain/entity"
	"github.com/ricardoamartinez/vggt/internal/domain/port"
	"github.com/ricardoamartinez/vggt/internal/infra/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

type ReconstructVideoUseCase struct {
	repo      port.JobRepository
	storage   port.VideoStorage
	prober    port.VideoProber
	extractor port.FrameExtractor
	model     port.ReconstructionModel
	archiver  port.ResultArchiver
	publisher port.StatusPublisher
	dlq       port.DLQPublisher
	notifier  port.FailureNotifier
	logger    *zap.Logger
	tempDir   string
	batchSize int
	maxRetry  int
}

type ReconstructVideoConfig struct {
	TempDir    string
	BatchSize  int
	MaxRetries int
}

func NewReconstructVideoUseCase(
	repo port.JobRepository,
	storage port.VideoStorage,
	prober port.VideoProber,
	extractor port.FrameExtractor,
	model port.ReconstructionModel,
	archiver port.ResultArchiver,
	publisher port.StatusPublisher,
	dlq port.DLQPublisher,
	notifier port.FailureNotifier,
	logger *zap.Logger,
	cfg ReconstructVideoConfig,
) *ReconstructVideoUseCase {
	return &ReconstructVideoUseCase{
		repo:      repo,
		storage:   storage,
		prober:    prober,
		extractor: extractor,
		model:     model,
		archiver:  archiver,
		publisher: publisher,
		dlq:       dlq,
		notifier:  notifier,
		logger:    logger,
		tempDir:   cfg.TempDir,
		batchSize: cfg.BatchSize,
		maxRetry:  cfg.MaxRetries,
	}
}

func (uc *ReconstructVideoUseCase) Execute(ctx context.Context, rawMsg []byte) error {
	tracer := otel.Tracer("usecase")
	ctx, span := tracer.Start(ctx, "ReconstructVideoUseCase.Execute")
	defer span.End()

	totalTimer := time.Now()

	var msg entity.ReconstructionRequestMessage
	if err := json.Unmarshal(rawMsg, &msg); err != nil {
		uc.logger.Error("failed to unmarshal message", zap.Error(err), zap.ByteString("body", rawMsg))
		_ = uc.dlq.PublishToDLQ(ctx, rawMsg, "unmarshal_error: "+err.Error())
		return nil
	}

	span.SetAttributes(
		attribute.String("job.id", msg.JobID.String()),
		attribute.String("job.video_key", msg.VideoKey),
	)

	log := uc.logger.With(zap.String("job_id", msg.JobID.String()), zap.String("video_key", msg.VideoKey))

	job, err := uc.repo.FindByID(ctx, msg.JobID)
	if err != nil {
		job = entity.NewJob(msg.UserID, msg.VideoKey, msg.FileSize, uc.maxRetry)
		job.ID = msg.JobID
		if err := uc.repo.Create(ctx, job); err != nil {
			log.Error("failed to create job record", zap.Error(err))
			return fmt.Errorf("create job: %w", err)
		}
	}

	if !job.CanRetry() {
		log.Warn("job exhausted retries, sending to DLQ")
		_ = uc.handlePermanentFailure(ctx, job, msg, rawMsg, "max retries exceeded")
		return nil
	}

	job.MarkProcessing()
	if err := uc.repo.Update(ctx, job); err != nil {
		log.Error("failed to update job to PROCESSING", zap.Error(err))
		return fmt.Errorf("update job: %w", err)
	}

	metrics.ActiveWorkers.Inc()
	defer metrics.ActiveWorkers.Dec()

	if err := uc.reconstructPipeline(ctx, job, msg, rawMsg, log); err != nil {
		return err
	}

	metrics.JobsProcessedTotal.WithLabelValues("completed").Inc()
	metrics.JobStageDuration.WithLabelValues("total").Observe(time.Since(totalTimer).Seconds())

	return nil
}

func (uc *ReconstructVideoUseCase) reconstructPipeline(
	ctx context.Context,
	job *entity.Job,
	msg entity.ReconstructionRequestMessage,
	rawMsg []byte,
	log *zap.Logger,
) error {
	tracer := otel.Tracer("usecase")

	workDir := filepath.Join(uc.tempDir, job.ID.String())
	if err := os.MkdirAll(workDir, 0755); err != nil {
		return fmt.Errorf("create workdir: %w", err)
	}
	defer os.RemoveAll(workDir)

	// Download video from object storage
	dlStart := time.Now()
	ctx2, spanDl := tracer.Start(ctx, "download_video")
	videoPath := filepath.Join(workDir, "input.mp4")
	if err := uc.storage.DownloadVideo(ctx2, msg.VideoKey, videoPath); err != nil {
		spanDl.End()
		log.Error("failed to download video", zap.Error(err))
		return uc.handleRetryableFailure(ctx, job, msg, rawMsg, "download_video: "+err.Error(), log)
	}
	spanDl.End()
	metrics.JobStageDuration.WithLabelValues("download").Observe(time.Since(dlStart).Seconds())

	// Probe the container (non-fatal: extraction has its own recovery)
	ctxPr, spanPr := tracer.Start(ctx, "probe_video")
	probe, err := uc.prober.Probe(ctxPr, videoPath)
	spanPr.End()
	if err != nil {
		log.Warn("probe failed, continuing to extraction", zap.Error(err))
		probe = &port.ProbeResult{}
	} else if vs := probe.VideoStream(); vs != nil {
		log.Info("video probed",
			zap.String("format", probe.FormatName),
			zap.String("codec", vs.CodecName),
			zap.Int("width", vs.Width),
			zap.Int("height", vs.Height),
			zap.Float64("fps", vs.AvgFrameRate),
		)
	}

	// Extract frames through the ffmpeg recovery ladder
	exStart := time.Now()
	ctx3, spanEx := tracer.Start(ctx, "extract_frames")
	framesDir := filepath.Join(workDir, "frames")
	if err := os.MkdirAll(framesDir, 0755); err != nil {
		spanEx.End()
		return fmt.Errorf("create frames dir: %w", err)
	}
	result, err := uc.extractor.ExtractFrames(ctx3, videoPath, framesDir)
	if err != nil {
		spanEx.End()
		uc.logStructure(videoPath, log)
		log.Error("frame extraction failed", zap.Error(err))
		return uc.handleRetryableFailure(ctx, job, msg, rawMsg, "extract_frames: "+err.Error(), log)
	}
	spanEx.End()
	metrics.JobStageDuration.WithLabelValues("extract").Observe(time.Since(exStart).Seconds())
	metrics.FramesExtractedTotal.Add(float64(result.FrameCount))
	if result.Method != "standard" {
		metrics.ExtractionFallbackTotal.WithLabelValues(result.Method).Inc()
	}

	// Run inference batch by batch, strictly in order
	infStart := time.Now()
	ctx4, spanInf := tracer.Start(ctx, "run_inference")
	spanInf.SetAttributes(attribute.Int("batch_size", uc.batchSize))
	predictions, batchSummaries, inferenceSeconds, err := uc.runInference(ctx4, result.FramePaths, log)
	if err != nil {
		spanInf.End()
		log.Error("inference failed", zap.Error(err))
		return uc.handleRetryableFailure(ctx, job, msg, rawMsg, "run_inference: "+err.Error(), log)
	}
	spanInf.End()
	metrics.JobStageDuration.WithLabelValues("inference").Observe(time.Since(infStart).Seconds())

	// Package the results
	arStart := time.Now()
	ctx5, spanAr := tracer.Start(ctx, "archive_results")
	manifest := uc.buildManifest(job, msg, probe, result, batchSummaries, inferenceSeconds)
	archivePath := filepath.Join(workDir, "reconstruction.zip")
	if err := uc.archiver.CreateArchive(ctx5, manifest, predictions, archivePath); err != nil {
		spanAr.End()
		log.Error("archive creation failed", zap.Error(err))
		return uc.handleRetryableFailure(ctx, job, msg, rawMsg, "archive_results: "+err.Error(), log)
	}
	spanAr.End()
	metrics.JobStageDuration.WithLabelValues("archive").Observe(time.Since(arStart).Seconds())

	// Upload the artifact
	upStart := time.Now()
	ctx6, spanUp := tracer.Start(ctx, "upload_result")
	resultKey := fmt.Sprintf("%s/reconstruction_%s.zip", msg.UserID, job.ID.String())
	archiveFile, err := os.Open(archivePath)
	if err != nil {
		spanUp.End()
		return uc.handleRetryableFailure(ctx, job, msg, rawMsg, "open_archive: "+err.Error(), log)
	}
	archiveStat, _ := archiveFile.Stat()
	if err := uc.storage.UploadResult(ctx6, resultKey, archiveFile, archiveStat.Size()); err != nil {
		archiveFile.Close()
		spanUp.End()
		log.Error("result upload failed", zap.Error(err))
		return uc.handleRetryableFailure(ctx, job, msg, rawMsg, "upload_result: "+err.Error(), log)
	}
	archiveFile.Close()
	spanUp.End()
	metrics.JobStageDuration.WithLabelValues("upload").Observe(time.Since(upStart).Seconds())

	job.MarkCompleted(entity.CompletionStats{
		ResultKey:         resultKey,
		FrameCount:        result.FrameCount,
		BatchSize:         uc.batchSize,
		VideoDuration:     result.VideoDuration,
		ExtractionSeconds: result.ExtractionSeconds,
		ExtractionMethod:  result.Method,
		InferenceSeconds:  inferenceSeconds,
	})
	if err := uc.repo.Update(ctx, job); err != nil {
		log.Error("failed to update job to COMPLETED", zap.Error(err))
		return fmt.Errorf("update job completed: %w", err)
	}

	uc.publishStatus(ctx, job, log)

	log.Info("job completed successfully",
		zap.Int("frame_count", result.FrameCount),
		zap.String("extraction_method", result.Method),
		zap.Float64("extraction_fps", result.FramesPerSecond()),
		zap.Float64("inference_seconds", inferenceSeconds),
		zap.String("result_key", resultKey),
	)

	return nil
}

func (uc *ReconstructVideoUseCase) runInference(
	ctx context.Context,
	framePaths []string,
	log *zap.Logger,
) ([]*port.BatchPrediction, []port.BatchSummary, float64, error) {
	batches := SplitBatches(framePaths, uc.batchSize)

	predictions := make([]*port.BatchPrediction, 0, len(batches))
	summaries := make([]port.BatchSummary, 0, len(batches))
	var totalSeconds float64

	for i, batch := range batches {
		pred, err := uc.model.Predict(ctx, batch)
		if err != nil {
			return nil, nil, 0, fmt.Errorf("batch %d/%d: %w", i+1, len(batches), err)
		}

		metrics.InferenceBatchesTotal.Inc()
		metrics.InferenceBatchDuration.Observe(pred.InferenceSeconds)

		predictions = append(predictions, pred)
		summaries = append(summaries, port.BatchSummary{
			Index:            i,
			FrameCount:       len(batch),
			InferenceSeconds: pred.InferenceSeconds,
		})
		totalSeconds += pred.InferenceSeconds

		log.Debug("batch inferred",
			zap.Int("batch", i+1),
			zap.Int("of", len(batches)),
			zap.Int("frames", len(batch)),
			zap.Float64("seconds", pred.InferenceSeconds),
		)
	}

	return predictions, summaries, totalSeconds, nil
}

func (uc *ReconstructVideoUseCase) buildManifest(
	job *entity.Job,
	msg entity.ReconstructionRequestMessage,
	probe *port.ProbeResult,
	result *port.FrameExtractionResult,
	batches []port.BatchSummary,
	inferenceSeconds float64,
) port.ResultManifest {
	frameFiles := make([]string, len(result.FramePaths))
	for i, p := range result.FramePaths {
		frameFiles[i] = filepath.Base(p)
	}

	return port.ResultManifest{
		JobID:             job.ID.String(),
		VideoKey:          msg.VideoKey,
		FormatName:        probe.FormatName,
		VideoDuration:     result.VideoDuration,
		FrameCount:        result.FrameCount,
		FrameFiles:        frameFiles,
		ExtractionMethod:  result.Method,
		ExtractionSeconds: result.ExtractionSeconds,
		BatchSize:         uc.batchSize,
		Batches:           batches,
		InferenceSeconds:  inferenceSeconds,
		CreatedAt:         time.Now().UTC(),
	}
}

// logStructure records the moov/mdat layout after an extraction failure
// so operators can tell a trailing-moov capture from a corrupt upload.
func (uc *ReconstructVideoUseCase) logStructure(videoPath string, log *zap.Logger) {
	report, err := uc.prober.ScanStructure(videoPath)
	if err != nil {
		log.Warn("structure scan failed", zap.Error(err))
		return
	}
	log.Info("video structure",
		zap.Bool("moov_in_header", report.MoovInHeader),
		zap.Bool("moov_at_end", report.MoovAtEnd),
		zap.Bool("mdat_found", report.MdatFound),
		zap.Bool("looks_like_mp4", report.LooksLikeMP4),
	)
}

func (uc *ReconstructVideoUseCase) handleRetryableFailure(
	ctx context.Context,
	job *entity.Job,
	msg entity.ReconstructionRequestMessage,
	rawMsg []byte,
	errMsg string,
	log *zap.Logger,
) error {
	job.MarkFailed(errMsg)
	_ = uc.repo.Update(ctx, job)

	if !job.CanRetry() {
		return uc.handlePermanentFailure(ctx, job, msg, rawMsg, errMsg)
	}

	metrics.RetryTotal.WithLabelValues(strconv.Itoa(job.Attempt)).Inc()
	uc.publishStatus(ctx, job, log)

	return fmt.Errorf("retryable failure (attempt %d/%d): %s", job.Attempt, job.MaxAttempts, errMsg)
}

func (uc *ReconstructVideoUseCase) handlePermanentFailure(
	ctx context.Context,
	job *entity.Job,
	msg entity.ReconstructionRequestMessage,
	rawMsg []byte,
	errMsg string,
) error {
	job.MarkFailed(errMsg)
	_ = uc.repo.Update(ctx, job)

	_ = uc.dlq.PublishToDLQ(ctx, rawMsg, errMsg)

	uc.publishStatus(ctx, job, uc.logger)

	metrics.JobsProcessedTotal.WithLabelValues("dlq").Inc()

	if msg.UserEmail != "" {
		_ = uc.notifier.NotifyFailure(ctx, msg.UserEmail, job.ID.String(), msg.VideoKey, errMsg)
	}

	return nil
}

func (uc *ReconstructVideoUseCase) publishStatus(ctx context.Context, job *entity.Job, log *zap.Logger) {
	statusMsg := entity.ReconstructionStatusMessage{
		JobID:             job.ID,
		UserID:            job.UserID,
		Status:            job.Status,
		VideoKey:          job.VideoKey,
		ResultKey:         job.ResultKey,
		FrameCount:        job.FrameCount,
		Duration:          job.VideoDuration,
		ExtractionSeconds: job.ExtractionSeconds,
		InferenceSeconds:  job.InferenceSeconds,
		ErrorMessage:      job.ErrorMessage,
		Attempt:           job.Attempt,
		MaxAttempts:       job.MaxAttempts,
	}
	data, _ := json.Marshal(statusMsg)
	if err := uc.publisher.PublishStatus(ctx, data); err != nil {
		log.Error("failed to publish status", zap.Error(err))
	}
}
