package port

import "context"

// StreamInfo describes one stream reported by the container probe.
type StreamInfo struct {
	CodecType    string
	CodecName    string
	Width        int
	Height       int
	AvgFrameRate float64
}

// ProbeResult summarizes the container-level metadata of a video file.
type ProbeResult struct {
	FormatName      string
	DurationSeconds float64
	SizeBytes       int64
	BitRate         int64
	Streams         []StreamInfo
}

// VideoStream returns the first video stream, or nil if the file has none.
func (p *ProbeResult) VideoStream() *StreamInfo {
	for i := range p.Streams {
		if p.Streams[i].CodecType == "video" {
			return &p.Streams[i]
		}
	}
	return nil
}

// StructureReport records where the moov and mdat atoms sit in an
// MP4-family file. Cameras that write while recording (GoPro, dashcams)
// put moov at the end, which trips up strict demuxing.
type StructureReport struct {
	MoovInHeader bool
	MoovAtEnd    bool
	MdatFound    bool
	LooksLikeMP4 bool
}

type VideoProber interface {
	Probe(ctx context.Context, videoPath string) (*ProbeResult, error)
	ScanStructure(videoPath string) (*StructureReport, error)
}
