package media

import (
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"path/filepath"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// extensions the scanner indexes; each has a registered decoder
var supportedImageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".bmp":  true,
	".tif":  true,
	".tiff": true,
	".webp": true,
}

// IsRasterImage reports whether filename has an extension the indexer can decode.
// Hidden files are not filtered here.
func IsRasterImage(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return supportedImageExtensions[ext]
}

// formatName turns a decoder name from image.DecodeConfig into the stored
// format, e.g. "jpeg" -> "JPEG".
func formatName(decoder string) string {
	return strings.ToUpper(strings.TrimSpace(decoder))
}
