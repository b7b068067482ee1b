package port

import "context"

// FrameExtractionResult reports what a successful extraction produced.
// Method records which ffmpeg invocation variant succeeded, since
// damaged containers only decode under one of the recovery variants.
type FrameExtractionResult struct {
	FramePaths        []string
	FrameCount        int
	VideoDuration     float64
	Method            string
	ExtractionSeconds float64
}

// FramesPerSecond is the headline extraction throughput number.
func (r *FrameExtractionResult) FramesPerSecond() float64 {
	if r.ExtractionSeconds <= 0 {
		return 0
	}
	return float64(r.FrameCount) / r.ExtractionSeconds
}

type FrameExtractor interface {
	ExtractFrames(ctx context.Context, videoPath string, outputDir string) (*FrameExtractionResult, error)
}
