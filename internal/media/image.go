package media

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"time"

	"github.com/disintegration/imaging"

	"github.com/HC91Dev/MultiPlatformPoster/internal/logutil"
)

const (
	jpegQualityStart = 90
	jpegQualityFloor = 60
	jpegQualityStep  = 5

	// scale steps in tenths of the original linear dimensions
	scaleStart = 9
	scaleFloor = 5
)

// ImageCompressor shrinks images below a byte budget.
type ImageCompressor struct {
	// Temps receives every output file created, even ones later rejected.
	Temps *TempFiles
	// Dir is where outputs are written; empty means next to the source.
	Dir string

	now func() time.Time
}

// NewImageCompressor returns a compressor registering its outputs in temps.
func NewImageCompressor(temps *TempFiles) *ImageCompressor {
	return &ImageCompressor{Temps: temps, now: time.Now}
}

// Compress writes a smaller copy of src and returns its path. The result may
// still exceed maxBytes when the floors are reached; callers re-check the
// size. On failure the original path is returned along with the error.
func (c *ImageCompressor) Compress(src string, maxBytes int64) (string, error) {
	format, err := imaging.FormatFromFilename(src)
	if err != nil {
		return src, fmt.Errorf("detect image format: %w", err)
	}
	img, err := imaging.Open(src, imaging.AutoOrientation(true))
	if err != nil {
		return src, fmt.Errorf("decode image: %w", err)
	}
	if format == imaging.JPEG && !isOpaque(img) {
		img = flatten(img)
	}

	out, err := OutputPath(src, c.Dir, "", c.clock())
	if err != nil {
		return src, err
	}
	c.Temps.Track(out)

	size, err := saveAndMeasure(img, out, imaging.PNGCompressionLevel(png.BestCompression))
	if err != nil {
		return src, err
	}
	if size <= maxBytes {
		return out, nil
	}

	if format == imaging.JPEG {
		for q := jpegQualityStart; q >= jpegQualityFloor; q -= jpegQualityStep {
			size, err = saveAndMeasure(img, out, imaging.JPEGQuality(q))
			if err != nil {
				return src, err
			}
			logutil.Debugf("jpeg recompress: path=%s quality=%d size=%d", out, q, size)
			if size <= maxBytes {
				return out, nil
			}
		}
		return out, nil
	}

	bounds := img.Bounds()
	for s := scaleStart; s >= scaleFloor; s-- {
		w := max(1, bounds.Dx()*s/10)
		h := max(1, bounds.Dy()*s/10)
		resized := imaging.Resize(img, w, h, imaging.Lanczos)
		size, err = saveAndMeasure(resized, out, imaging.PNGCompressionLevel(png.BestCompression))
		if err != nil {
			return src, err
		}
		logutil.Debugf("image downscale: path=%s scale=0.%d size=%d", out, s, size)
		if size <= maxBytes {
			return out, nil
		}
	}
	return out, nil
}

func (c *ImageCompressor) clock() time.Time {
	if c.now != nil {
		return c.now()
	}
	return time.Now()
}

func saveAndMeasure(img image.Image, path string, opts ...imaging.EncodeOption) (int64, error) {
	if err := imaging.Save(img, path, opts...); err != nil {
		return 0, fmt.Errorf("save image: %w", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("stat image: %w", err)
	}
	return info.Size(), nil
}

func isOpaque(img image.Image) bool {
	if o, ok := img.(interface{ Opaque() bool }); ok {
		return o.Opaque()
	}
	return true
}

// flatten composites img onto an opaque white canvas.
func flatten(img image.Image) image.Image {
	b := img.Bounds()
	bg := imaging.New(b.Dx(), b.Dy(), color.White)
	return imaging.Overlay(bg, img, image.Pt(0, 0), 1.0)
}
