package poster

import (
	"path/filepath"
	"slices"
	"strings"
)

const (
	kib = 1024
	mib = 1024 * kib
	gib = 1024 * mib
)

// Limits describes what a platform accepts per media file and per post.
type Limits struct {
	MaxImageBytes int64
	MaxVideoBytes int64
	Formats       []string
	MaxMedia      int
}

// Accepts reports whether the file extension is in the accepted set.
func (l Limits) Accepts(path string) bool {
	return slices.Contains(l.Formats, Ext(path))
}

// MaxBytes returns the size budget for the file's media class.
func (l Limits) MaxBytes(path string) int64 {
	if IsVideo(path) {
		return l.MaxVideoBytes
	}
	return l.MaxImageBytes
}

var (
	imageFormats = []string{".jpg", ".jpeg", ".png", ".gif"}
	discordForms = []string{".jpg", ".jpeg", ".png", ".gif", ".mp4", ".webm"}

	limitsTable = map[Platform]Limits{
		Twitter:   {MaxImageBytes: 5 * mib, MaxVideoBytes: 512 * mib, Formats: append(slices.Clone(imageFormats), ".mp4"), MaxMedia: 4},
		Bluesky:   {MaxImageBytes: 1 * mib, MaxVideoBytes: 50 * mib, Formats: append(slices.Clone(imageFormats), ".mp4"), MaxMedia: 4},
		Discord:   {MaxImageBytes: 8 * mib, MaxVideoBytes: 8 * mib, Formats: discordForms, MaxMedia: 10},
		Instagram: {MaxImageBytes: 8 * mib, MaxVideoBytes: 100 * mib, Formats: []string{".jpg", ".jpeg", ".png", ".mp4"}, MaxMedia: 1},
		Reddit:    {MaxImageBytes: 20 * mib, MaxVideoBytes: 1 * gib, Formats: append(slices.Clone(imageFormats), ".mp4"), MaxMedia: 1},
		Mastodon:  {MaxImageBytes: 16 * mib, MaxVideoBytes: 99 * mib, Formats: discordForms, MaxMedia: 4},
	}

	discordNitro = Limits{MaxImageBytes: 50 * mib, MaxVideoBytes: 500 * mib, Formats: discordForms, MaxMedia: 10}
)

// LimitsFor returns the media constraints of a platform. extendedQuota selects
// the Nitro table for Discord and is ignored elsewhere.
func LimitsFor(p Platform, extendedQuota bool) (Limits, bool) {
	if p == Discord && extendedQuota {
		return discordNitro, true
	}
	l, ok := limitsTable[p]
	return l, ok
}

// MaxMedia returns the per-post media cap of a platform.
func MaxMedia(p Platform) int {
	return limitsTable[p].MaxMedia
}

// Ext returns the lower-cased extension of path including the dot.
func Ext(path string) string {
	return strings.ToLower(filepath.Ext(path))
}

// IsVideo classifies a file by extension.
func IsVideo(path string) bool {
	switch Ext(path) {
	case ".mp4", ".mov", ".webm":
		return true
	}
	return false
}

// IsImage classifies a file by extension.
func IsImage(path string) bool {
	switch Ext(path) {
	case ".jpg", ".jpeg", ".png", ".gif":
		return true
	}
	return false
}

// Truncate returns at most n items of media, preserving order.
func Truncate(media []string, n int) []string {
	if n >= 0 && len(media) > n {
		return media[:n]
	}
	return media
}
