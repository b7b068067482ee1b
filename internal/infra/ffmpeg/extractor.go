package ffmpeg

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ricardoamartinez/vggt/internal/domain/port"
	"go.uber.org/zap"
)

// extractionMethod is one ffmpeg invocation variant. The ladder starts
// with the plain fps-filter call and walks through the recovery variants
// that handle truncated indexes, broken timestamps and trailing moov
// atoms from in-camera recordings.
type extractionMethod struct {
	name string
	args func(e *Extractor, videoPath, pattern string) []string
}

var ladder = []extractionMethod{
	{
		name: "standard",
		args: func(e *Extractor, videoPath, pattern string) []string {
			return []string{
				"-i", videoPath,
				"-vf", e.filterChain(true),
				"-y", "-loglevel", "warning",
				pattern,
			}
		},
	},
	{
		name: "genpts_ignore_index",
		args: func(e *Extractor, videoPath, pattern string) []string {
			return []string{
				"-fflags", "+genpts+ignore_index",
				"-i", videoPath,
				"-vf", e.filterChain(true),
				"-f", "image2",
				"-y", "-loglevel", "warning",
				pattern,
			}
		},
	},
	{
		name: "error_tolerant",
		args: func(e *Extractor, videoPath, pattern string) []string {
			return []string{
				"-err_detect", "ignore_err",
				"-fflags", "+genpts",
				"-i", videoPath,
				"-vf", e.filterChain(true),
				"-f", "image2",
				"-y", "-loglevel", "warning",
				pattern,
			}
		},
	},
	{
		name: "force_mp4_demuxer",
		args: func(e *Extractor, videoPath, pattern string) []string {
			return []string{
				"-f", "mp4",
				"-fflags", "+genpts",
				"-i", videoPath,
				"-vf", e.filterChain(true),
				"-f", "image2",
				"-y", "-loglevel", "warning",
				pattern,
			}
		},
	},
	{
		name: "genpts_igndts_ignidx",
		args: func(e *Extractor, videoPath, pattern string) []string {
			args := []string{
				"-fflags", "+genpts+igndts+ignidx",
				"-i", videoPath,
				"-r", strconv.Itoa(e.fps),
			}
			if chain := e.filterChain(false); chain != "" {
				args = append(args, "-vf", chain)
			}
			return append(args,
				"-f", "image2",
				"-y", "-loglevel", "warning",
				pattern,
			)
		},
	},
}

type Extractor struct {
	fps       int
	format    string
	frameSize int // 0 keeps the native resolution
	logger    *zap.Logger
}

func NewExtractor(fps int, format string, frameSize int, logger *zap.Logger) *Extractor {
	return &Extractor{fps: fps, format: format, frameSize: frameSize, logger: logger}
}

// filterChain builds the -vf argument: fps sampling, then an optional
// scale-and-pad to a black square so frames match the model input size.
func (e *Extractor) filterChain(withFPS bool) string {
	var filters []string
	if withFPS {
		filters = append(filters, fmt.Sprintf("fps=%d", e.fps))
	}
	if e.frameSize > 0 {
		s := e.frameSize
		filters = append(filters,
			fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=decrease", s, s),
			fmt.Sprintf("pad=%d:%d:(%d-iw)/2:(%d-ih)/2:color=black", s, s, s, s),
		)
	}
	return strings.Join(filters, ",")
}

// ExtractFrames tries each ladder method in order until one produces
// frames. A method that exits 0 but writes nothing counts as a failure.
func (e *Extractor) ExtractFrames(ctx context.Context, videoPath string, outputDir string) (*port.FrameExtractionResult, error) {
	duration, err := e.getVideoDuration(ctx, videoPath)
	if err != nil {
		e.logger.Warn("could not get video duration", zap.Error(err))
	}

	pattern := filepath.Join(outputDir, fmt.Sprintf("frame_%%06d.%s", e.format))
	glob := filepath.Join(outputDir, fmt.Sprintf("frame_*.%s", e.format))

	var lastErr error
	for i, m := range ladder {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if err := clearFrames(glob); err != nil {
			return nil, fmt.Errorf("clear previous frames: %w", err)
		}

		start := time.Now()
		frames, runErr := e.runMethod(ctx, m, videoPath, pattern, glob)
		elapsed := time.Since(start).Seconds()

		if runErr != nil {
			lastErr = runErr
			if i < len(ladder)-1 {
				e.logger.Warn("extraction method failed, trying fallback",
					zap.String("method", m.name),
					zap.Error(runErr),
				)
			}
			continue
		}

		e.logger.Info("frames extracted",
			zap.String("method", m.name),
			zap.Int("count", len(frames)),
			zap.Float64("seconds", elapsed),
			zap.Float64("video_duration", duration),
		)

		return &port.FrameExtractionResult{
			FramePaths:        frames,
			FrameCount:        len(frames),
			VideoDuration:     duration,
			Method:            m.name,
			ExtractionSeconds: elapsed,
		}, nil
	}

	return nil, fmt.Errorf("all extraction methods failed: %w", lastErr)
}

func (e *Extractor) runMethod(ctx context.Context, m extractionMethod, videoPath, pattern, glob string) ([]string, error) {
	cmd := exec.CommandContext(ctx, "ffmpeg", m.args(e, videoPath, pattern)...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg %s: %w, output: %s", m.name, err, truncateOutput(output))
	}

	frames, err := filepath.Glob(glob)
	if err != nil {
		return nil, fmt.Errorf("glob frames: %w", err)
	}
	if len(frames) == 0 {
		return nil, fmt.Errorf("ffmpeg %s: exited cleanly but extracted no frames", m.name)
	}
	sort.Strings(frames)
	return frames, nil
}

// MethodReport is the outcome of running one ladder method in isolation.
type MethodReport struct {
	Name       string
	Args       []string
	FrameCount int
	Seconds    float64
	Err        error
}

// Diagnose runs every ladder method against the video independently,
// each into its own subdirectory, and reports all outcomes. Used by the
// extractcheck CLI to find which invocation a damaged file responds to.
func (e *Extractor) Diagnose(ctx context.Context, videoPath string, outputDir string) []MethodReport {
	reports := make([]MethodReport, 0, len(ladder))
	for i, m := range ladder {
		dir := filepath.Join(outputDir, fmt.Sprintf("method%d", i+1))
		if err := os.MkdirAll(dir, 0755); err != nil {
			reports = append(reports, MethodReport{Name: m.name, Err: err})
			continue
		}

		pattern := filepath.Join(dir, fmt.Sprintf("frame_%%06d.%s", e.format))
		glob := filepath.Join(dir, fmt.Sprintf("frame_*.%s", e.format))
		args := m.args(e, videoPath, pattern)

		start := time.Now()
		frames, err := e.runMethod(ctx, m, videoPath, pattern, glob)
		reports = append(reports, MethodReport{
			Name:       m.name,
			Args:       args,
			FrameCount: len(frames),
			Seconds:    time.Since(start).Seconds(),
			Err:        err,
		})
	}
	return reports
}

func (e *Extractor) getVideoDuration(ctx context.Context, videoPath string) (float64, error) {
	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		videoPath,
	)
	output, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe: %w", err)
	}

	durationStr := strings.TrimSpace(string(output))
	duration, err := strconv.ParseFloat(durationStr, 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration: %w", err)
	}
	return duration, nil
}

func clearFrames(glob string) error {
	stale, err := filepath.Glob(glob)
	if err != nil {
		return err
	}
	for _, f := range stale {
		if err := os.Remove(f); err != nil {
			return err
		}
	}
	return nil
}

func truncateOutput(out []byte) string {
	const max = 2048
	s := strings.TrimSpace(string(out))
	if len(s) > max {
		return s[len(s)-max:]
	}
	return s
}
