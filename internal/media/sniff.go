package media

import (
	"io"
	"mime"
	"os"

	"github.com/h2non/filetype"
	"github.com/h2non/filetype/types"

	"github.com/HC91Dev/MultiPlatformPoster/internal/poster"
)

const (
	sniffLen           = 261
	defaultContentType = "application/octet-stream"
)

// ContentType sniffs the MIME type of a file from its magic bytes, falling
// back to the extension and then to application/octet-stream.
func ContentType(path string) string {
	if kind := sniff(path); kind != types.Unknown {
		return kind.MIME.Value
	}
	if byExt := mime.TypeByExtension(poster.Ext(path)); byExt != "" {
		return byExt
	}
	return defaultContentType
}

func sniff(path string) types.Type {
	f, err := os.Open(path)
	if err != nil {
		return types.Unknown
	}
	defer f.Close()

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(f, head)
	if err != nil && n == 0 {
		return types.Unknown
	}
	kind, err := filetype.Match(head[:n])
	if err != nil {
		return types.Unknown
	}
	return kind
}
