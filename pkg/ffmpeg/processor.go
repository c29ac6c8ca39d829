package ffmpeg

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/png"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

// ErrNoFrame is returned when ffmpeg produces no image for the requested frame.
var ErrNoFrame = errors.New("no frame decoded")

// VideoProcessor inspects videos and grabs frames using ffmpeg.
type VideoProcessor struct {
	ffmpegPath  string
	ffprobePath string
}

// NewVideoProcessor creates a new video processor. Empty paths are resolved
// from PATH.
func NewVideoProcessor(ffmpegPath, ffprobePath string) (*VideoProcessor, error) {
	var err error
	if ffmpegPath == "" {
		if ffmpegPath, err = exec.LookPath("ffmpeg"); err != nil {
			return nil, fmt.Errorf("ffmpeg not found in PATH: %w", err)
		}
	}
	if ffprobePath == "" {
		if ffprobePath, err = exec.LookPath("ffprobe"); err != nil {
			return nil, fmt.Errorf("ffprobe not found in PATH: %w", err)
		}
	}

	return &VideoProcessor{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
	}, nil
}

// VideoInfo contains metadata about a video file.
type VideoInfo struct {
	Duration   float64 // seconds
	Width      int
	Height     int
	VideoCodec string
	FrameRate  float64
	Frames     int64 // 0 when the container does not record it
	FileSize   int64
}

type probeStream struct {
	CodecType     string `json:"codec_type"`
	CodecName     string `json:"codec_name"`
	Width         int    `json:"width"`
	Height        int    `json:"height"`
	AvgFrameRate  string `json:"avg_frame_rate"`
	NbFrames      string `json:"nb_frames"`
	NbReadPackets string `json:"nb_read_packets"`
}

type probeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
	Streams []probeStream `json:"streams"`
}

// GetVideoInfo extracts metadata from a video file.
func (p *VideoProcessor) GetVideoInfo(ctx context.Context, videoPath string) (*VideoInfo, error) {
	stat, err := os.Stat(videoPath)
	if err != nil {
		return nil, fmt.Errorf("stat video: %w", err)
	}

	cmd := exec.CommandContext(ctx, p.ffprobePath,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		videoPath,
	)

	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe: %w", err)
	}

	info, err := parseVideoInfo(output)
	if err != nil {
		return nil, err
	}
	info.FileSize = stat.Size()
	return info, nil
}

func parseVideoInfo(output []byte) (*VideoInfo, error) {
	var parsed probeOutput
	if err := json.Unmarshal(output, &parsed); err != nil {
		return nil, fmt.Errorf("parse ffprobe output: %w", err)
	}

	info := &VideoInfo{}
	if parsed.Format.Duration != "" {
		if dur, err := strconv.ParseFloat(parsed.Format.Duration, 64); err == nil {
			info.Duration = dur
		}
	}

	for _, s := range parsed.Streams {
		if s.CodecType != "video" {
			continue
		}
		info.VideoCodec = s.CodecName
		info.Width = s.Width
		info.Height = s.Height
		info.FrameRate = parseRatio(s.AvgFrameRate)
		if n, err := strconv.ParseInt(s.NbFrames, 10, 64); err == nil {
			info.Frames = n
		}
		break
	}

	return info, nil
}

// FrameCount returns the number of video frames in the file. The container's
// frame count is used when recorded; otherwise packets are counted, which
// reads the whole stream. A file without a video stream has zero frames.
func (p *VideoProcessor) FrameCount(ctx context.Context, videoPath string) (int64, error) {
	info, err := p.GetVideoInfo(ctx, videoPath)
	if err != nil {
		return 0, err
	}
	if info.Frames > 0 {
		return info.Frames, nil
	}
	if info.VideoCodec == "" {
		return 0, nil
	}

	cmd := exec.CommandContext(ctx, p.ffprobePath,
		"-v", "error",
		"-select_streams", "v:0",
		"-count_packets",
		"-show_entries", "stream=nb_read_packets",
		"-print_format", "json",
		videoPath,
	)
	output, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe count packets: %w", err)
	}
	return parsePacketCount(output)
}

func parsePacketCount(output []byte) (int64, error) {
	var parsed probeOutput
	if err := json.Unmarshal(output, &parsed); err != nil {
		return 0, fmt.Errorf("parse ffprobe output: %w", err)
	}
	if len(parsed.Streams) == 0 || parsed.Streams[0].NbReadPackets == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(parsed.Streams[0].NbReadPackets, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse packet count %q: %w", parsed.Streams[0].NbReadPackets, err)
	}
	return n, nil
}

// FrameAt decodes the frame with the given zero-based index.
func (p *VideoProcessor) FrameAt(ctx context.Context, videoPath string, index int64) (image.Image, error) {
	if index < 0 {
		return nil, fmt.Errorf("negative frame index %d", index)
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, p.ffmpegPath,
		"-v", "error",
		"-i", videoPath,
		"-vf", fmt.Sprintf(`select=eq(n\,%d)`, index),
		"-frames:v", "1",
		"-f", "image2pipe",
		"-vcodec", "png",
		"pipe:1",
	)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg select frame %d: %w: %s", index, err, strings.TrimSpace(stderr.String()))
	}
	if stdout.Len() == 0 {
		return nil, ErrNoFrame
	}

	img, err := png.Decode(&stdout)
	if err != nil {
		return nil, fmt.Errorf("decode frame %d: %w", index, err)
	}
	return img, nil
}

// GetVersion returns the ffmpeg version string.
func (p *VideoProcessor) GetVersion(ctx context.Context) (string, error) {
	cmd := exec.CommandContext(ctx, p.ffmpegPath, "-version")
	output, err := cmd.Output()
	if err != nil {
		return "", err
	}

	lines := strings.SplitN(string(output), "\n", 2)
	if len(lines) > 0 {
		return strings.TrimSpace(lines[0]), nil
	}
	return "", nil
}

func parseRatio(s string) float64 {
	if s == "" || s == "0/0" {
		return 0
	}
	parts := strings.SplitN(s, "/", 2)
	if len(parts) != 2 {
		f, _ := strconv.ParseFloat(s, 64)
		return f
	}
	num, err1 := strconv.ParseFloat(parts[0], 64)
	den, err2 := strconv.ParseFloat(parts[1], 64)
	if err1 != nil || err2 != nil || den == 0 {
		return 0
	}
	return num / den
}
