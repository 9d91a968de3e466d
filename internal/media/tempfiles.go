package media

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/HC91Dev/MultiPlatformPoster/internal/logutil"
	"github.com/HC91Dev/MultiPlatformPoster/internal/poster"
)

const suffixAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// TempFiles is the run-owned list of compressed outputs. It is not safe for
// concurrent use; the run goroutine is its only user.
type TempFiles struct {
	paths []string
	seen  map[string]struct{}
}

// NewTempFiles returns an empty list.
func NewTempFiles() *TempFiles {
	return &TempFiles{seen: make(map[string]struct{})}
}

// Track registers path for deletion at cleanup. Registering twice is a no-op.
func (t *TempFiles) Track(path string) {
	if t == nil || path == "" {
		return
	}
	if _, ok := t.seen[path]; ok {
		return
	}
	t.seen[path] = struct{}{}
	t.paths = append(t.paths, path)
}

// Paths returns the tracked files in registration order.
func (t *TempFiles) Paths() []string {
	if t == nil {
		return nil
	}
	return append([]string(nil), t.paths...)
}

// Len returns the number of tracked files.
func (t *TempFiles) Len() int {
	if t == nil {
		return 0
	}
	return len(t.paths)
}

// Cleanup deletes every tracked file once, reporting each attempt. Failures
// are reported and otherwise ignored. The list is empty afterwards.
func (t *TempFiles) Cleanup(status *poster.Reporter) (removed int) {
	if t == nil || len(t.paths) == 0 {
		return 0
	}
	status.Infof("Cleaning up temporary files...")
	for _, path := range t.paths {
		name := filepath.Base(path)
		if err := os.Remove(path); err != nil {
			logutil.Debugf("remove temp file failed: path=%s err=%v", path, err)
			status.Warnf("Failed to remove %s: %v", name, err)
			continue
		}
		removed++
		status.Successf("Removed temporary file: %s", name)
	}
	t.paths = nil
	t.seen = make(map[string]struct{})
	return removed
}

// OutputPath derives a fresh output name from src: the source base name, a
// nanosecond timestamp and a short random suffix. dir overrides the source
// directory when set; ext overrides the source extension when set.
func OutputPath(src, dir, ext string, now time.Time) (string, error) {
	id, err := gonanoid.Generate(suffixAlphabet, 6)
	if err != nil {
		return "", fmt.Errorf("generate output suffix: %w", err)
	}
	srcExt := filepath.Ext(src)
	if ext == "" {
		ext = srcExt
	}
	if dir == "" {
		dir = filepath.Dir(src)
	}
	base := strings.TrimSuffix(filepath.Base(src), srcExt)
	return filepath.Join(dir, fmt.Sprintf("%s_compressed_%d_%s%s", base, now.UnixNano(), id, ext)), nil
}
