package video

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// FFmpeg opens videos through the ffprobe and ffmpeg binaries.
type FFmpeg struct {
	ffmpegPath  string
	ffprobePath string
	logger      *zap.Logger
}

func NewFFmpeg(logger *zap.Logger) (*FFmpeg, error) {
	ffmpegPath, err := exec.LookPath("ffmpeg")
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not found in PATH: %w", err)
	}
	ffprobePath, err := exec.LookPath("ffprobe")
	if err != nil {
		return nil, fmt.Errorf("ffprobe not found in PATH: %w", err)
	}
	logger.Info("found ffmpeg", zap.String("ffmpeg", ffmpegPath), zap.String("ffprobe", ffprobePath))

	return &FFmpeg{ffmpegPath: ffmpegPath, ffprobePath: ffprobePath, logger: logger}, nil
}

// Open probes the first video stream of the file at path.
func (f *FFmpeg) Open(ctx context.Context, path string) (Source, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("video file not accessible: %w", err)
	}

	info, err := f.probe(ctx, path)
	if err != nil {
		return nil, err
	}

	f.logger.Debug("probed video",
		zap.String("path", path),
		zap.Int("frames", info.FrameCount),
		zap.Float64("fps", info.FPS),
		zap.Int("width", info.Width),
		zap.Int("height", info.Height),
	)

	return &fileSource{ffmpeg: f, path: path, info: info}, nil
}

type probeOutput struct {
	Streams []struct {
		Width         int    `json:"width"`
		Height        int    `json:"height"`
		RFrameRate    string `json:"r_frame_rate"`
		NbFrames      string `json:"nb_frames"`
		NbReadPackets string `json:"nb_read_packets"`
	} `json:"streams"`
}

func (f *FFmpeg) probe(ctx context.Context, path string) (Info, error) {
	cmd := exec.CommandContext(ctx, f.ffprobePath,
		"-v", "error",
		"-select_streams", "v:0",
		"-count_packets",
		"-show_entries", "stream=width,height,r_frame_rate,nb_frames,nb_read_packets",
		"-of", "json",
		path,
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return Info{}, fmt.Errorf("ffprobe: %w, output: %s", err, stderr.String())
	}

	return parseProbe(stdout.Bytes())
}

func parseProbe(data []byte) (Info, error) {
	var out probeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return Info{}, fmt.Errorf("parse ffprobe output: %w", err)
	}
	if len(out.Streams) == 0 {
		return Info{}, fmt.Errorf("no video stream found")
	}

	s := out.Streams[0]
	info := Info{
		Width:  s.Width,
		Height: s.Height,
		FPS:    parseRate(s.RFrameRate),
	}

	// Container frame count first, decoded packet count when the container
	// does not record it.
	if n, err := strconv.Atoi(s.NbFrames); err == nil && n > 0 {
		info.FrameCount = n
	} else if n, err := strconv.Atoi(s.NbReadPackets); err == nil {
		info.FrameCount = n
	}

	return info, nil
}

func parseRate(rate string) float64 {
	num, den, found := strings.Cut(rate, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	if !found {
		return n
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0
	}
	return n / d
}

type fileSource struct {
	ffmpeg *FFmpeg
	path   string
	info   Info
}

func (s *fileSource) Info() Info {
	return s.info
}

// Frame decodes exactly the frame at index by selecting on the decoder's
// frame counter rather than seeking by timestamp, which is unreliable for
// variable frame rate input.
func (s *fileSource) Frame(ctx context.Context, index int) (image.Image, error) {
	if index < 0 || index >= s.info.FrameCount {
		return nil, fmt.Errorf("frame %d out of range [0, %d)", index, s.info.FrameCount)
	}

	args := []string{
		"-v", "error",
		"-i", s.path,
		"-vf", fmt.Sprintf(`select=eq(n\,%d)`, index),
		"-vsync", "0",
		"-frames:v", "1",
		"-f", "image2pipe",
		"-vcodec", "png",
		"-",
	}
	cmd := exec.CommandContext(ctx, s.ffmpeg.ffmpegPath, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		s.ffmpeg.logger.Debug("ffmpeg stderr", zap.String("output", stderr.String()))
		return nil, fmt.Errorf("failed to extract frame %d: %w", index, err)
	}
	if stdout.Len() == 0 {
		return nil, fmt.Errorf("no frame found at index %d", index)
	}

	img, err := png.Decode(&stdout)
	if err != nil {
		return nil, fmt.Errorf("failed to decode frame %d: %w", index, err)
	}
	return img, nil
}

func (s *fileSource) Close() error {
	return nil
}
