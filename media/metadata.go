package media

import (
	"fmt"
	"image"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/rwcarlsen/goexif/exif"
	"github.com/rwcarlsen/goexif/tiff"
)

// longest undefined-type tag value kept in the EXIF map
const maxUndefinedTagBytes = 64

// exifCollector gathers every readable tag into a flat string map.
type exifCollector map[string]string

func (c exifCollector) Walk(name exif.FieldName, tag *tiff.Tag) error {
	if tag == nil || name == exif.MakerNote {
		return nil
	}
	var val string
	switch tag.Format() {
	case tiff.StringVal:
		s, err := tag.StringVal()
		if err != nil {
			return nil
		}
		val = strings.TrimRight(strings.TrimSpace(s), "\x00")
	case tiff.UndefVal:
		if tag.Count > maxUndefinedTagBytes {
			return nil
		}
		val = tag.String()
	default:
		val = tag.String()
	}
	if val != "" {
		c[string(name)] = val
	}
	return nil
}

// helper to get Shutter Speed specifically, formatting it nicely
func getShutterSpeed(exifData *exif.Exif) string {
	tag, err := exifData.Get(exif.ExposureTime)
	if err != nil || tag == nil {
		return ""
	}
	num, den, err := tag.Rat2(0)
	if err != nil || den == 0 {
		return ""
	}
	if num == 1 && den > 1 {
		return fmt.Sprintf("1/%d", den)
	}
	val := float64(num) / float64(den)
	if val >= 1.0 {
		return fmt.Sprintf("%.1fs", val)
	}
	return fmt.Sprintf("%.4fs", val)
}

func readOrientation(exifData *exif.Exif) int {
	tag, err := exifData.Get(exif.Orientation)
	if err != nil || tag == nil {
		return OrientationNormal
	}
	v, err := tag.Int(0)
	if err != nil || v < 1 || v > 8 {
		return OrientationNormal
	}
	return v
}

// ReadImageInfo reads dimensions, format and EXIF of the image at path
// without decoding its pixels. Missing EXIF is not an error; an unreadable
// header is a *DecodeError.
func ReadImageInfo(path string) (*ImageInfo, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("metadata: failed to open file %s: %w", path, err)
	}
	defer file.Close()

	config, format, err := image.DecodeConfig(file)
	if err != nil {
		return nil, &DecodeError{Path: path, Err: err}
	}

	info := &ImageInfo{
		Width:       config.Width,
		Height:      config.Height,
		Format:      formatName(format),
		Orientation: OrientationNormal,
	}

	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("metadata: failed to seek file %s: %w", path, err)
	}

	exifData, err := exif.Decode(file)
	if err != nil {
		// not fatal, most PNG/GIF files carry no EXIF
		log.Debug().Str("path", path).Err(err).Msg("metadata: no EXIF data")
		return info, nil
	}

	collected := exifCollector{}
	if err := exifData.Walk(collected); err != nil {
		log.Debug().Str("path", path).Err(err).Msg("metadata: EXIF walk stopped early")
	}
	if shutter := getShutterSpeed(exifData); shutter != "" {
		collected["ShutterSpeed"] = shutter
	}
	if dt, err := exifData.DateTime(); err == nil {
		taken := dt
		info.TakenAt = &taken
		collected["TakenAt"] = dt.Format(time.RFC3339)
	}
	if len(collected) > 0 {
		info.Exif = map[string]string(collected)
	}
	info.Orientation = readOrientation(exifData)
	return info, nil
}

// InfoReader adapts ReadImageInfo to the scanner's metadata interface.
type InfoReader struct{}

func (InfoReader) Read(path string) (*ImageInfo, error) {
	return ReadImageInfo(path)
}
