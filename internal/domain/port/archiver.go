package port

import (
	"context"
	"time"
)

// BatchSummary is the per-batch timing entry written into the manifest.
type BatchSummary struct {
	Index            int     `json:"index"`
	FrameCount       int     `json:"frame_count"`
	InferenceSeconds float64 `json:"inference_seconds"`
}

// ResultManifest describes the reconstruction artifact: what video it
// came from, how the frames were extracted and how inference went.
type ResultManifest struct {
	JobID             string         `json:"job_id"`
	VideoKey          string         `json:"video_key"`
	FormatName        string         `json:"format_name,omitempty"`
	VideoDuration     float64        `json:"video_duration_seconds"`
	FrameCount        int            `json:"frame_count"`
	FrameFiles        []string       `json:"frame_files"`
	ExtractionMethod  string         `json:"extraction_method"`
	ExtractionSeconds float64        `json:"extraction_seconds"`
	BatchSize         int            `json:"batch_size"`
	Batches           []BatchSummary `json:"batches"`
	InferenceSeconds  float64        `json:"inference_seconds"`
	CreatedAt         time.Time      `json:"created_at"`
}

// ResultArchiver packages the manifest and the per-batch predictions
// into the artifact uploaded to object storage.
type ResultArchiver interface {
	CreateArchive(ctx context.Context, manifest ResultManifest, predictions []*BatchPrediction, outputPath string) error
}
