package entity

import (
	"time"

	"github.com/google/uuid"
)

type JobStatus string

const (
	JobStatusPending    JobStatus = "PENDING"
	JobStatusProcessing JobStatus = "PROCESSING"
	JobStatusCompleted  JobStatus = "COMPLETED"
	JobStatusFailed     JobStatus = "FAILED"
)

// Job tracks one video through the reconstruction pipeline: frame
// extraction followed by batched inference against the VGGT endpoint.
type Job struct {
	ID                uuid.UUID
	UserID            string
	VideoKey          string
	ResultKey         string
	Status            JobStatus
	FrameCount        int
	BatchSize         int
	FileSize          int64
	VideoDuration     float64
	ExtractionSeconds float64
	ExtractionMethod  string
	InferenceSeconds  float64
	Attempt           int
	MaxAttempts       int
	ErrorMessage      string
	CreatedAt         time.Time
	UpdatedAt         time.Time
	CompletedAt       *time.Time
}

// CompletionStats carries the pipeline measurements recorded when a job
// finishes successfully.
type CompletionStats struct {
	ResultKey         string
	FrameCount        int
	BatchSize         int
	VideoDuration     float64
	ExtractionSeconds float64
	ExtractionMethod  string
	InferenceSeconds  float64
}

func NewJob(userID, videoKey string, fileSize int64, maxAttempts int) *Job {
	now := time.Now().UTC()
	return &Job{
		ID:          uuid.New(),
		UserID:      userID,
		VideoKey:    videoKey,
		FileSize:    fileSize,
		Status:      JobStatusPending,
		Attempt:     0,
		MaxAttempts: maxAttempts,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func (j *Job) MarkProcessing() {
	j.Status = JobStatusProcessing
	j.Attempt++
	j.UpdatedAt = time.Now().UTC()
}

func (j *Job) MarkCompleted(stats CompletionStats) {
	now := time.Now().UTC()
	j.Status = JobStatusCompleted
	j.ResultKey = stats.ResultKey
	j.FrameCount = stats.FrameCount
	j.BatchSize = stats.BatchSize
	j.VideoDuration = stats.VideoDuration
	j.ExtractionSeconds = stats.ExtractionSeconds
	j.ExtractionMethod = stats.ExtractionMethod
	j.InferenceSeconds = stats.InferenceSeconds
	j.UpdatedAt = now
	j.CompletedAt = &now
}

func (j *Job) MarkFailed(errMsg string) {
	j.Status = JobStatusFailed
	j.ErrorMessage = errMsg
	j.UpdatedAt = time.Now().UTC()
}

func (j *Job) CanRetry() bool {
	return j.Attempt < j.MaxAttempts
}
