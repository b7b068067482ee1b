package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ricardoamartinez/vggt/internal/domain/entity"
)

type JobRepository struct {
	pool *pgxpool.Pool
}

func NewJobRepository(pool *pgxpool.Pool) *JobRepository {
	return &JobRepository{pool: pool}
}

func (r *JobRepository) Create(ctx context.Context, job *entity.Job) error {
	query := `
		INSERT INTO reconstruction_jobs (
			id, user_id, video_key, result_key, status, frame_count,
			batch_size, file_size, video_duration, extraction_seconds,
			extraction_method, inference_seconds, attempt, max_attempts,
			error_message, created_at, updated_at, completed_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)`

	_, err := r.pool.Exec(ctx, query,
		job.ID, job.UserID, job.VideoKey, job.ResultKey, string(job.Status),
		job.FrameCount, job.BatchSize, job.FileSize, job.VideoDuration,
		job.ExtractionSeconds, job.ExtractionMethod, job.InferenceSeconds,
		job.Attempt, job.MaxAttempts, job.ErrorMessage,
		job.CreatedAt, job.UpdatedAt, job.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

func (r *JobRepository) Update(ctx context.Context, job *entity.Job) error {
	query := `
		UPDATE reconstruction_jobs SET
			status=$2, result_key=$3, frame_count=$4, batch_size=$5,
			video_duration=$6, extraction_seconds=$7, extraction_method=$8,
			inference_seconds=$9, attempt=$10, error_message=$11,
			updated_at=$12, completed_at=$13
		WHERE id=$1`

	_, err := r.pool.Exec(ctx, query,
		job.ID, string(job.Status), job.ResultKey, job.FrameCount,
		job.BatchSize, job.VideoDuration, job.ExtractionSeconds,
		job.ExtractionMethod, job.InferenceSeconds, job.Attempt,
		job.ErrorMessage, job.UpdatedAt, job.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	return nil
}

func (r *JobRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.Job, error) {
	query := `
		SELECT id, user_id, video_key, result_key, status, frame_count,
			batch_size, file_size, video_duration, extraction_seconds,
			extraction_method, inference_seconds, attempt, max_attempts,
			error_message, created_at, updated_at, completed_at
		FROM reconstruction_jobs WHERE id=$1`

	job := &entity.Job{}
	var status string
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&job.ID, &job.UserID, &job.VideoKey, &job.ResultKey, &status,
		&job.FrameCount, &job.BatchSize, &job.FileSize, &job.VideoDuration,
		&job.ExtractionSeconds, &job.ExtractionMethod, &job.InferenceSeconds,
		&job.Attempt, &job.MaxAttempts, &job.ErrorMessage,
		&job.CreatedAt, &job.UpdatedAt, &job.CompletedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("find job by id: %w", err)
	}
	job.Status = entity.JobStatus(status)
	return job, nil
}
