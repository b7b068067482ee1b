package ffmpeg

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/ricardoamartinez/vggt/internal/domain/port"
)

type Prober struct{}

func NewProber() *Prober {
	return &Prober{}
}

// probeOutput mirrors ffprobe's JSON output. ffprobe reports numeric
// format fields as strings.
type probeOutput struct {
	Format struct {
		FormatName string `json:"format_name"`
		Duration   string `json:"duration"`
		Size       string `json:"size"`
		BitRate    string `json:"bit_rate"`
	} `json:"format"`
	Streams []struct {
		CodecType    string `json:"codec_type"`
		CodecName    string `json:"codec_name"`
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		AvgFrameRate string `json:"avg_frame_rate"`
	} `json:"streams"`
}

func (p *Prober) Probe(ctx context.Context, videoPath string) (*port.ProbeResult, error) {
	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		videoPath,
	)
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe %s: %w", videoPath, err)
	}
	return parseProbeOutput(output)
}

func parseProbeOutput(data []byte) (*port.ProbeResult, error) {
	var out probeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode ffprobe output: %w", err)
	}

	result := &port.ProbeResult{
		FormatName:      out.Format.FormatName,
		DurationSeconds: parseFloatField(out.Format.Duration),
		SizeBytes:       parseIntField(out.Format.Size),
		BitRate:         parseIntField(out.Format.BitRate),
	}
	for _, s := range out.Streams {
		result.Streams = append(result.Streams, port.StreamInfo{
			CodecType:    s.CodecType,
			CodecName:    s.CodecName,
			Width:        s.Width,
			Height:       s.Height,
			AvgFrameRate: parseFrameRate(s.AvgFrameRate),
		})
	}
	return result, nil
}

// parseFrameRate parses ffprobe's rational frame rates ("30000/1001").
func parseFrameRate(s string) float64 {
	num, den, found := strings.Cut(s, "/")
	if !found {
		return parseFloatField(s)
	}
	n := parseFloatField(num)
	d := parseFloatField(den)
	if d == 0 {
		return 0
	}
	return n / d
}

func parseFloatField(s string) float64 {
	v, _ := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return v
}

func parseIntField(s string) int64 {
	v, _ := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	return v
}

// ScanStructure reads the head and tail of the file looking for the
// moov and mdat atoms. A moov atom only at the end means the file was
// written live (GoPro style) and strict demuxing may reject it.
func (p *Prober) ScanStructure(videoPath string) (*port.StructureReport, error) {
	f, err := os.Open(videoPath)
	if err != nil {
		return nil, fmt.Errorf("open video: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat video: %w", err)
	}

	head := make([]byte, 8192)
	n, err := f.Read(head)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("read header: %w", err)
	}
	head = head[:n]

	tailSize := int64(1024)
	if info.Size() < tailSize {
		tailSize = info.Size()
	}
	tail := make([]byte, tailSize)
	if _, err := f.ReadAt(tail, info.Size()-tailSize); err != nil && err != io.EOF {
		return nil, fmt.Errorf("read tail: %w", err)
	}

	report := &port.StructureReport{
		MoovInHeader: bytes.Contains(head, []byte("moov")),
		MoovAtEnd:    bytes.Contains(tail, []byte("moov")),
		MdatFound:    bytes.Contains(head, []byte("mdat")) || bytes.Contains(tail, []byte("mdat")),
		LooksLikeMP4: len(head) >= 8 && bytes.Equal(head[4:8], []byte("ftyp")),
	}
	return report, nil
}
