// Package bench measures end-to-end inference latency of the external
// reconstruction endpoint across batch sizes, isolating it from frame
// extraction, and compares against the reference numbers published for
// the model on an H100.
package bench

import (
	"context"
	"fmt"
	"math"

	"github.com/ricardoamartinez/vggt/internal/domain/port"
	"go.uber.org/zap"
)

// DefaultCases mirrors the batch sizes in the published benchmark table.
var DefaultCases = []int{1, 2, 4, 8, 10, 20, 50}

// paperTimes and paperMemoryGB are the reference H100 measurements for
// the pretrained 1B model, keyed by input frame count.
var paperTimes = map[int]float64{
	1: 0.04, 2: 0.05, 4: 0.07, 8: 0.11,
	10: 0.14, 20: 0.31, 50: 1.04,
}

var paperMemoryGB = map[int]float64{
	1: 1.88, 2: 2.07, 4: 2.45, 8: 3.23,
	10: 3.63, 20: 5.58, 50: 11.41,
}

// Case is the measured result for one batch size.
type Case struct {
	NumImages     int
	MeanSeconds   float64
	StddevSeconds float64
	PeakMemoryGB  float64
	Device        string
	Dtype         string
	PaperSeconds  float64 // 0 when the table has no entry
	PaperMemoryGB float64
	Slowdown      float64 // 0 when no reference exists
}

type Runner struct {
	model  port.ReconstructionModel
	runs   int
	logger *zap.Logger
}

// NewRunner builds a benchmark runner that times each case over the
// given number of measured calls (after one warmup call).
func NewRunner(model port.ReconstructionModel, runs int, logger *zap.Logger) *Runner {
	if runs <= 0 {
		runs = 3
	}
	return &Runner{model: model, runs: runs, logger: logger}
}

// Run benchmarks each case against the endpoint using the first N of
// the given image paths. Cases larger than the available image set are
// skipped, matching the original harness.
func (r *Runner) Run(ctx context.Context, imagePaths []string, cases []int) ([]Case, error) {
	if len(imagePaths) == 0 {
		return nil, fmt.Errorf("no images to benchmark with")
	}
	if len(cases) == 0 {
		cases = DefaultCases
	}

	results := make([]Case, 0, len(cases))
	for _, n := range cases {
		if n > len(imagePaths) {
			continue
		}

		c, err := r.runCase(ctx, imagePaths[:n])
		if err != nil {
			return nil, fmt.Errorf("case %d images: %w", n, err)
		}
		results = append(results, c)

		r.logger.Info("benchmark case done",
			zap.Int("num_images", c.NumImages),
			zap.Float64("mean_seconds", c.MeanSeconds),
			zap.Float64("stddev_seconds", c.StddevSeconds),
			zap.Float64("peak_memory_gb", c.PeakMemoryGB),
		)
	}
	return results, nil
}

func (r *Runner) runCase(ctx context.Context, batch []string) (Case, error) {
	// Warmup run, untimed: first call pays one-off costs (kernel
	// compilation, allocator growth) that would skew the mean.
	if _, err := r.model.Predict(ctx, batch); err != nil {
		return Case{}, fmt.Errorf("warmup: %w", err)
	}

	times := make([]float64, 0, r.runs)
	c := Case{NumImages: len(batch)}

	for i := 0; i < r.runs; i++ {
		pred, err := r.model.Predict(ctx, batch)
		if err != nil {
			return Case{}, fmt.Errorf("run %d: %w", i+1, err)
		}
		times = append(times, pred.InferenceSeconds)
		if pred.PeakMemoryGB > c.PeakMemoryGB {
			c.PeakMemoryGB = pred.PeakMemoryGB
		}
		c.Device = pred.Device
		c.Dtype = pred.Dtype
	}

	c.MeanSeconds, c.StddevSeconds = meanStddev(times)
	c.PaperSeconds = paperTimes[c.NumImages]
	c.PaperMemoryGB = paperMemoryGB[c.NumImages]
	if c.PaperSeconds > 0 && c.MeanSeconds > 0 {
		c.Slowdown = c.MeanSeconds / c.PaperSeconds
	}
	return c, nil
}

func meanStddev(xs []float64) (mean, stddev float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))

	var variance float64
	for _, x := range xs {
		d := x - mean
		variance += d * d
	}
	variance /= float64(len(xs))
	return mean, math.Sqrt(variance)
}
