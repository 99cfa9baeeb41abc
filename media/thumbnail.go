package media

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"os"
	"time"

	"github.com/disintegration/imaging"
	"github.com/rs/zerolog/log"
	"github.com/rwcarlsen/goexif/exif"

	"github.com/camden-git/imageindex/metrics"
)

const (
	ThumbnailJpegQuality = 90

	// DefaultMaxImagePixels bounds the size of images decoded for thumbnails.
	DefaultMaxImagePixels = 100_000_000

	// an embedded preview is used when it covers this share of the requested bounds
	embeddedPreviewMinRatio = 0.8
)

var errImageTooLarge = errors.New("image exceeds pixel limit")

// Generator produces JPEG thumbnails, reusing the EXIF-embedded preview when
// it is large enough.
type Generator struct {
	maxPixels int
}

func NewGenerator(maxPixels int) *Generator {
	if maxPixels <= 0 {
		maxPixels = DefaultMaxImagePixels
	}
	return &Generator{maxPixels: maxPixels}
}

// Generate returns a JPEG no larger than maxWidth x maxHeight for the image at
// path. Any failure to read or decode the image is a *DecodeError.
func (g *Generator) Generate(path string, maxWidth, maxHeight int) (thumb []byte, err error) {
	if maxWidth <= 0 || maxHeight <= 0 {
		return nil, fmt.Errorf("invalid thumbnail bounds %dx%d", maxWidth, maxHeight)
	}

	start := time.Now()
	source := "decoded"
	defer func() {
		if r := recover(); r != nil {
			err = &DecodeError{Path: path, Err: fmt.Errorf("decoder panic: %v", r)}
			thumb = nil
		}
		status := "success"
		if err != nil {
			status = "error"
		}
		metrics.ThumbnailGenerationsTotal.WithLabelValues(source, status).Inc()
		metrics.ThumbnailGenerationDuration.Observe(time.Since(start).Seconds())
	}()

	file, err := os.Open(path)
	if err != nil {
		return nil, &DecodeError{Path: path, Err: err}
	}
	defer file.Close()

	orientation := OrientationNormal
	var img image.Image

	if exifData, exifErr := exif.Decode(file); exifErr == nil {
		orientation = readOrientation(exifData)
		if preview := embeddedPreview(exifData, maxWidth, maxHeight); preview != nil {
			img = preview
			source = "embedded"
		}
	}

	if img == nil {
		if _, err := file.Seek(0, io.SeekStart); err != nil {
			return nil, &DecodeError{Path: path, Err: err}
		}
		img, err = g.decode(file)
		if err != nil {
			return nil, &DecodeError{Path: path, Err: err}
		}
	}

	img = applyOrientation(img, orientation)
	img = imaging.Fit(img, maxWidth, maxHeight, imaging.Lanczos)
	img = flatten(img)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(ThumbnailJpegQuality)); err != nil {
		return nil, fmt.Errorf("thumbnail encoding failed for %s: %w", path, err)
	}

	log.Debug().Str("path", path).Str("source", source).Int("bytes", buf.Len()).Msg("thumbnail: generated")
	return buf.Bytes(), nil
}

// decode reads the header first so oversized images are refused before any
// pixel buffer is allocated.
func (g *Generator) decode(r io.ReadSeeker) (image.Image, error) {
	cfg, _, err := image.DecodeConfig(r)
	if err != nil {
		return nil, err
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("invalid image dimensions: %dx%d", cfg.Width, cfg.Height)
	}
	if cfg.Width*cfg.Height > g.maxPixels {
		return nil, fmt.Errorf("%w: %dx%d > %d pixels", errImageTooLarge, cfg.Width, cfg.Height, g.maxPixels)
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	img, _, err := image.Decode(r)
	return img, err
}

// embeddedPreview returns the decoded EXIF thumbnail when it is big enough for
// the requested bounds, nil otherwise.
func embeddedPreview(exifData *exif.Exif, maxWidth, maxHeight int) image.Image {
	data, err := exifData.JpegThumbnail()
	if err != nil || len(data) == 0 {
		return nil
	}
	preview, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil
	}
	b := preview.Bounds()
	if !previewCovers(b.Dx(), b.Dy(), maxWidth, maxHeight) {
		return nil
	}
	return preview
}

func previewCovers(width, height, maxWidth, maxHeight int) bool {
	return float64(width) >= embeddedPreviewMinRatio*float64(maxWidth) &&
		float64(height) >= embeddedPreviewMinRatio*float64(maxHeight)
}

// applyOrientation rotates img as its EXIF orientation asks. Mirroring
// orientations are not applied.
func applyOrientation(img image.Image, orientation int) image.Image {
	switch orientation {
	case OrientationRotate180:
		return imaging.Rotate180(img)
	case OrientationRotate90:
		return imaging.Rotate270(img)
	case OrientationRotate270:
		return imaging.Rotate90(img)
	default:
		return img
	}
}

// flatten composites images with an alpha channel onto white so the JPEG
// encoder gets three opaque channels.
func flatten(img image.Image) image.Image {
	if o, ok := img.(interface{ Opaque() bool }); ok && o.Opaque() {
		return img
	}
	b := img.Bounds()
	bg := imaging.New(b.Dx(), b.Dy(), color.White)
	return imaging.Overlay(bg, img, image.Pt(0, 0), 1.0)
}
