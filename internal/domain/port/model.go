package port

import "context"

// CameraPose is the per-frame camera estimate returned by the model.
// Extrinsic is a 3x4 world-to-camera matrix, Intrinsic a 3x3 matrix,
// both row-major.
type CameraPose struct {
	Frame     string    `json:"frame"`
	Extrinsic []float64 `json:"extrinsic"`
	Intrinsic []float64 `json:"intrinsic"`
}

// BatchPrediction is the model output for one batch of frames.
type BatchPrediction struct {
	FrameCount       int          `json:"frame_count"`
	InferenceSeconds float64      `json:"inference_seconds"`
	PeakMemoryGB     float64      `json:"peak_memory_gb"`
	Device           string       `json:"device"`
	Dtype            string       `json:"dtype"`
	Cameras          []CameraPose `json:"cameras"`
	DepthMapKeys     []string     `json:"depth_map_keys,omitempty"`
	PointMapKeys     []string     `json:"point_map_keys,omitempty"`
}

// ModelInfo is the serving endpoint's self-description.
type ModelInfo struct {
	Model             string `json:"model"`
	Device            string `json:"device"`
	Dtype             string `json:"dtype"`
	ComputeCapability string `json:"compute_capability,omitempty"`
}

// ReconstructionModel drives an externally served pretrained model.
// Predict sends one batch of frame images and blocks until the model
// returns; batching policy belongs to the caller.
type ReconstructionModel interface {
	Predict(ctx context.Context, framePaths []string) (*BatchPrediction, error)
	Health(ctx context.Context) (*ModelInfo, error)
}
