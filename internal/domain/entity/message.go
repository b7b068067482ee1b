package entity

import "github.com/google/uuid"

// ReconstructionRequestMessage is the inbound message from the
// reconstruction.request queue.
type ReconstructionRequestMessage struct {
	JobID     uuid.UUID `json:"job_id"`
	UserID    string    `json:"user_id"`
	VideoKey  string    `json:"video_key"`
	FileSize  int64     `json:"file_size"`
	UserEmail string    `json:"user_email"`
}

// ReconstructionStatusMessage is the outbound message published to the
// reconstruction.status queue.
type ReconstructionStatusMessage struct {
	JobID             uuid.UUID `json:"job_id"`
	UserID            string    `json:"user_id"`
	Status            JobStatus `json:"status"`
	VideoKey          string    `json:"video_key"`
	ResultKey         string    `json:"result_key,omitempty"`
	FrameCount        int       `json:"frame_count,omitempty"`
	Duration          float64   `json:"duration_seconds,omitempty"`
	ExtractionSeconds float64   `json:"extraction_seconds,omitempty"`
	InferenceSeconds  float64   `json:"inference_seconds,omitempty"`
	ErrorMessage      string    `json:"error_message,omitempty"`
	Attempt           int       `json:"attempt"`
	MaxAttempts       int       `json:"max_attempts"`
}
