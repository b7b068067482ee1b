// extractcheck diagnoses frame extraction for a single video file: it
// probes the container, scans the atom layout, then runs every ffmpeg
// invocation variant independently and reports which ones work.
//
// Usage:
//
//	extractcheck -video upload.mp4
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ricardoamartinez/vggt/internal/infra/ffmpeg"
	"github.com/ricardoamartinez/vggt/pkg/logger"
)

func main() {
	videoPath := flag.String("video", "", "video file to diagnose (required)")
	fps := flag.Int("fps", 1, "frames per second to sample")
	format := flag.String("format", "png", "frame image format")
	frameSize := flag.Int("frame-size", 0, "square frame size, 0 keeps native resolution")
	keep := flag.Bool("keep", false, "keep extracted frames instead of deleting them")
	timeout := flag.Duration("timeout", 5*time.Minute, "overall timeout")
	flag.Parse()

	if *videoPath == "" {
		flag.Usage()
		os.Exit(2)
	}

	log, err := logger.New("warn")
	if err != nil {
		fmt.Fprintln(os.Stderr, "init logger:", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	prober := ffmpeg.NewProber()

	fmt.Printf("=== ANALYZING VIDEO: %s ===\n", *videoPath)
	info, err := os.Stat(*videoPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "stat video:", err)
		os.Exit(1)
	}
	fmt.Printf("File size: %d bytes (%.2f MB)\n", info.Size(), float64(info.Size())/1024/1024)

	probe, err := prober.Probe(ctx, *videoPath)
	if err != nil {
		fmt.Println("ffprobe failed:", err)
	} else {
		fmt.Printf("Format: %s  Duration: %.2fs  Bitrate: %d\n",
			probe.FormatName, probe.DurationSeconds, probe.BitRate)
		for _, s := range probe.Streams {
			if s.CodecType == "video" {
				fmt.Printf("Video stream: %s %dx%d @ %.2f fps\n",
					s.CodecName, s.Width, s.Height, s.AvgFrameRate)
			} else {
				fmt.Printf("%s stream: %s\n", s.CodecType, s.CodecName)
			}
		}
	}

	fmt.Println("\n=== CHECKING FILE STRUCTURE ===")
	structure, err := prober.ScanStructure(*videoPath)
	if err != nil {
		fmt.Println("structure scan failed:", err)
	} else {
		fmt.Printf("Looks like MP4:  %v\n", structure.LooksLikeMP4)
		fmt.Printf("moov in header:  %v\n", structure.MoovInHeader)
		fmt.Printf("moov at end:     %v\n", structure.MoovAtEnd)
		fmt.Printf("mdat found:      %v\n", structure.MdatFound)
		if !structure.MoovInHeader && structure.MoovAtEnd {
			fmt.Println("Note: trailing moov atom (in-camera recording); strict demuxing may reject this file")
		}
	}

	outputDir, err := os.MkdirTemp("", "extractcheck-*")
	if err != nil {
		fmt.Fprintln(os.Stderr, "create output dir:", err)
		os.Exit(1)
	}
	if !*keep {
		defer os.RemoveAll(outputDir)
	}

	fmt.Println("\n=== TESTING FFMPEG METHODS ===")
	extractor := ffmpeg.NewExtractor(*fps, *format, *frameSize, log)
	reports := extractor.Diagnose(ctx, *videoPath, outputDir)

	var working []string
	for i, r := range reports {
		fmt.Printf("\n--- Method %d: %s ---\n", i+1, r.Name)
		fmt.Printf("Command: ffmpeg %s\n", strings.Join(r.Args, " "))
		if r.Err != nil {
			fmt.Printf("FAILED after %.2fs: %v\n", r.Seconds, r.Err)
			continue
		}
		fmt.Printf("SUCCESS: %d frames in %.2fs (%.1f frames/second)\n",
			r.FrameCount, r.Seconds, float64(r.FrameCount)/r.Seconds)
		working = append(working, r.Name)
	}

	fmt.Println("\n=== SUMMARY ===")
	if len(working) == 0 {
		fmt.Println("No methods succeeded. The video may be corrupted, use an unsupported codec, or need a different ffmpeg build.")
		os.Exit(1)
	}
	fmt.Printf("Working methods: %s\n", strings.Join(working, ", "))
	if *keep {
		fmt.Printf("Frames kept under %s\n", outputDir)
	}
}
