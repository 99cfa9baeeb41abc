package media

import "time"

// ImageInfo is what the indexer needs to know about an image file without
// keeping any pixels.
type ImageInfo struct {
	Width       int
	Height      int
	Format      string // upper-case decoder name, e.g. "JPEG"
	Orientation int    // EXIF orientation, 1 when absent
	TakenAt     *time.Time
	Exif        map[string]string
}

// Orientation tag values that only rotate. Mirrored variants (2, 4, 5, 7) are
// left as decoded.
const (
	OrientationNormal    = 1
	OrientationRotate180 = 3
	OrientationRotate90  = 6 // rotate 90° clockwise to display
	OrientationRotate270 = 8 // rotate 90° counter-clockwise to display
)
