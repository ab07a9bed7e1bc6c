package constants

import "strings"

// MediaKind is the coarse document class the extraction pipeline dispatches on.
type MediaKind string

const (
	IMAGE MediaKind = "image"
	PDF   MediaKind = "pdf"
	OTHER MediaKind = "other"
)

// MaxUploadBytes is the advisory upload ceiling (10 MB).
const MaxUploadBytes = 10 << 20

// AllowedExtensions holds the file extensions picked up by directory scans.
var AllowedExtensions = map[string]struct{}{
	"pdf":  {},
	"jpg":  {},
	"jpeg": {},
	"png":  {},
	"bmp":  {},
	"gif":  {},
	"tif":  {},
	"tiff": {},
	"webp": {},
	"heic": {},
	"heif": {},
}

var extMediaTypes = map[string]string{
	"pdf":  "application/pdf",
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"bmp":  "image/bmp",
	"gif":  "image/gif",
	"tif":  "image/tiff",
	"tiff": "image/tiff",
	"webp": "image/webp",
	"heic": "image/heic",
	"heif": "image/heif",
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// MediaTypeForExt returns the media type for a known extension, or "" if unknown.
func MediaTypeForExt(ext string) string {
	return extMediaTypes[NormalizeExt(ext)]
}

// KindFromMediaType maps a declared media type (parameters allowed) to a MediaKind.
// image/* is an image, application/pdf is a pdf, anything else is OTHER.
func KindFromMediaType(mediaType string) MediaKind {
	mt := strings.ToLower(strings.TrimSpace(mediaType))
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	switch {
	case strings.HasPrefix(mt, "image/"):
		return IMAGE
	case mt == "application/pdf":
		return PDF
	default:
		return OTHER
	}
}

// KindFromExt maps a file extension to a MediaKind.
func KindFromExt(ext string) MediaKind {
	return KindFromMediaType(MediaTypeForExt(ext))
}

// IsHEICExt reports whether ext is a HEIC/HEIF extension.
func IsHEICExt(ext string) bool {
	switch NormalizeExt(ext) {
	case "heic", "heif":
		return true
	}
	return false
}

// IsHEICMediaType reports whether mediaType is a HEIC/HEIF image type.
func IsHEICMediaType(mediaType string) bool {
	switch strings.ToLower(strings.TrimSpace(mediaType)) {
	case "image/heic", "image/heif", "image/heic-sequence", "image/heif-sequence":
		return true
	}
	return false
}
