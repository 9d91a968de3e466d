package media

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/HC91Dev/MultiPlatformPoster/internal/logutil"
	"github.com/HC91Dev/MultiPlatformPoster/internal/poster"
)

// MaxEmbedFiles bounds the Discord embeds pass-through.
const MaxEmbedFiles = 10

// Media actions reported to a Recorder.
const (
	ActionKept       = "kept"
	ActionCompressed = "compressed"
	ActionSkipped    = "skipped"
)

// Recorder observes per-file adaptation outcomes.
type Recorder interface {
	MediaAction(platform poster.Platform, action string)
}

// Options tune one adaptation pass.
type Options struct {
	ExtendedQuota bool
	DiscordMode   poster.DiscordMode
}

// Adapter filters and compresses media for a platform.
type Adapter struct {
	Images   *ImageCompressor
	Videos   *VideoCompressor
	Recorder Recorder
	// Limits defaults to poster.LimitsFor.
	Limits func(poster.Platform, bool) (poster.Limits, bool)
}

// NewAdapter wires compressors that register their outputs in temps.
func NewAdapter(temps *TempFiles, tc Transcoder) *Adapter {
	return &Adapter{
		Images: NewImageCompressor(temps),
		Videos: NewVideoCompressor(tc, temps),
		Limits: poster.LimitsFor,
	}
}

// Adapt returns the ordered subset of files usable on platform, substituting
// compressed copies for oversized ones. A file is never returned if it exceeds
// the platform's budget for its class.
func (a *Adapter) Adapt(ctx context.Context, files []string, platform poster.Platform, opts Options, status *poster.Reporter) []string {
	if platform == poster.Discord && opts.DiscordMode == poster.DiscordEmbeds {
		status.Infof("Skipping compression for Discord embeds mode")
		out := poster.Truncate(files, MaxEmbedFiles)
		for range out {
			a.record(platform, ActionKept)
		}
		return append([]string(nil), out...)
	}

	limitsFor := a.Limits
	if limitsFor == nil {
		limitsFor = poster.LimitsFor
	}
	limits, ok := limitsFor(platform, opts.ExtendedQuota)
	if !ok {
		status.Warnf("No media limits known for %s - skipping all media", platform)
		return nil
	}

	var out []string
	for _, file := range files {
		if path, ok := a.adaptOne(ctx, file, platform, limits, status); ok {
			out = append(out, path)
		}
	}
	status.Infof("Prepared %d files for %s", len(out), platform)
	return out
}

func (a *Adapter) adaptOne(ctx context.Context, file string, platform poster.Platform, limits poster.Limits, status *poster.Reporter) (string, bool) {
	name := filepath.Base(file)
	if !limits.Accepts(file) {
		status.Warnf("Skipping %s - unsupported format for %s", name, platform)
		a.record(platform, ActionSkipped)
		return "", false
	}
	info, err := os.Stat(file)
	if err != nil {
		status.Warnf("Skipping %s - cannot read file: %v", name, err)
		a.record(platform, ActionSkipped)
		return "", false
	}
	maxBytes := limits.MaxBytes(file)
	if info.Size() <= maxBytes {
		status.Successf("%s ready (%s)", name, megabytes(info.Size()))
		a.record(platform, ActionKept)
		return file, true
	}

	status.Infof("Compressing %s for %s...", name, platform)
	var path string
	if poster.IsVideo(file) {
		path, err = a.Videos.Compress(ctx, file, maxBytes)
	} else {
		path, err = a.Images.Compress(file, maxBytes)
	}
	if err != nil {
		logutil.Debugf("compression failed, using original: path=%s err=%v", file, err)
	}

	size := info.Size()
	if path != file {
		if st, statErr := os.Stat(path); statErr == nil {
			size = st.Size()
		}
	}
	if size > maxBytes {
		status.Warnf("%s still too large after compression (%s > %s) - skipping for %s",
			name, megabytes(size), megabytes(maxBytes), platform)
		a.record(platform, ActionSkipped)
		return "", false
	}
	status.Successf("Compressed %s to %s", name, megabytes(size))
	a.record(platform, ActionCompressed)
	return path, true
}

func (a *Adapter) record(p poster.Platform, action string) {
	if a.Recorder != nil {
		a.Recorder.MediaAction(p, action)
	}
}

func megabytes(n int64) string {
	return fmt.Sprintf("%.1fMB", float64(n)/(1024*1024))
}
