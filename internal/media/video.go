package media

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	ffmpeg "github.com/u2takey/ffmpeg-go"

	"github.com/HC91Dev/MultiPlatformPoster/internal/logutil"
)

// bitrateSafetyMargin leaves room for container overhead and encoder overshoot.
const bitrateSafetyMargin = 0.9

// VideoInfo is the subset of probe output the compressor needs.
type VideoInfo struct {
	BitRate  int64 // bits per second
	Duration time.Duration
}

// Transcoder runs the external video tooling.
type Transcoder interface {
	Probe(ctx context.Context, path string) (VideoInfo, error)
	Transcode(ctx context.Context, src, dst string, kbps int64) error
	Thumbnail(ctx context.Context, src, dst string) error
}

// FFmpeg drives ffmpeg and ffprobe through ffmpeg-go.
type FFmpeg struct{}

type probeOutput struct {
	Format struct {
		BitRate  string `json:"bit_rate"`
		Duration string `json:"duration"`
	} `json:"format"`
}

// Probe reads the container bitrate and duration.
func (FFmpeg) Probe(ctx context.Context, path string) (VideoInfo, error) {
	if err := ctx.Err(); err != nil {
		return VideoInfo{}, err
	}
	raw, err := ffmpeg.Probe(path)
	if err != nil {
		return VideoInfo{}, fmt.Errorf("ffprobe %s: %w", path, err)
	}
	return parseProbe(raw)
}

func parseProbe(raw string) (VideoInfo, error) {
	var out probeOutput
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return VideoInfo{}, fmt.Errorf("decode probe output: %w", err)
	}
	var info VideoInfo
	if out.Format.BitRate != "" {
		br, err := strconv.ParseInt(out.Format.BitRate, 10, 64)
		if err != nil {
			return VideoInfo{}, fmt.Errorf("parse bit_rate %q: %w", out.Format.BitRate, err)
		}
		info.BitRate = br
	}
	if out.Format.Duration != "" {
		secs, err := strconv.ParseFloat(out.Format.Duration, 64)
		if err == nil {
			info.Duration = time.Duration(secs * float64(time.Second))
		}
	}
	return info, nil
}

// Transcode re-encodes src with libx264 at the given video bitrate.
func (FFmpeg) Transcode(ctx context.Context, src, dst string, kbps int64) error {
	stream := ffmpeg.Input(src).
		Output(dst, ffmpeg.KwArgs{"c:v": "libx264", "b:v": fmt.Sprintf("%dk", kbps), "c:a": "aac"}).
		OverWriteOutput()
	return runStream(ctx, stream)
}

// Thumbnail extracts one frame near the start of src as an image.
func (FFmpeg) Thumbnail(ctx context.Context, src, dst string) error {
	stream := ffmpeg.Input(src, ffmpeg.KwArgs{"ss": "1"}).
		Output(dst, ffmpeg.KwArgs{"vframes": 1}).
		OverWriteOutput()
	return runStream(ctx, stream)
}

func runStream(ctx context.Context, stream *ffmpeg.Stream) error {
	compiled := stream.Compile()
	cmd := exec.CommandContext(ctx, compiled.Path, compiled.Args[1:]...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	logutil.Debugf("running ffmpeg: args=%s", strings.Join(compiled.Args[1:], " "))
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if i := strings.LastIndex(msg, "\n"); i >= 0 {
			msg = msg[i+1:]
		}
		return fmt.Errorf("ffmpeg: %w: %s", err, msg)
	}
	return nil
}

// VideoCompressor re-encodes videos to fit a byte budget.
type VideoCompressor struct {
	Transcoder Transcoder
	Temps      *TempFiles
	Dir        string

	now func() time.Time
}

// NewVideoCompressor returns a compressor using tc and registering outputs in temps.
func NewVideoCompressor(tc Transcoder, temps *TempFiles) *VideoCompressor {
	if tc == nil {
		tc = FFmpeg{}
	}
	return &VideoCompressor{Transcoder: tc, Temps: temps, now: time.Now}
}

// Compress returns src when it already fits, otherwise a re-encoded copy. On
// failure the original path is returned with the error.
func (c *VideoCompressor) Compress(ctx context.Context, src string, maxBytes int64) (string, error) {
	info, err := os.Stat(src)
	if err != nil {
		return src, fmt.Errorf("stat video: %w", err)
	}
	if info.Size() <= maxBytes {
		return src, nil
	}
	probe, err := c.Transcoder.Probe(ctx, src)
	if err != nil {
		return src, err
	}
	if probe.BitRate <= 0 {
		return src, errors.New("probe video: unknown bitrate")
	}
	target := float64(probe.BitRate) * (float64(maxBytes) / float64(info.Size())) * bitrateSafetyMargin
	kbps := max(int64(math.Round(target/1000)), 1)

	out, err := OutputPath(src, c.Dir, ".mp4", c.clock())
	if err != nil {
		return src, err
	}
	c.Temps.Track(out)
	logutil.Debugf("transcoding video: src=%s dst=%s bitrate=%dk", src, out, kbps)
	if err := c.Transcoder.Transcode(ctx, src, out, kbps); err != nil {
		return src, fmt.Errorf("transcode video: %w", err)
	}
	return out, nil
}

// PosterFrame writes a still image taken from src, used as a video preview.
func (c *VideoCompressor) PosterFrame(ctx context.Context, src string) (string, error) {
	out, err := OutputPath(src, c.Dir, ".jpg", c.clock())
	if err != nil {
		return "", err
	}
	c.Temps.Track(out)
	if err := c.Transcoder.Thumbnail(ctx, src, out); err != nil {
		return "", fmt.Errorf("extract poster frame: %w", err)
	}
	return out, nil
}

func (c *VideoCompressor) clock() time.Time {
	if c.now != nil {
		return c.now()
	}
	return time.Now()
}
