package constants

import "strings"

// Input formats accepted by the pipeline.
const (
	IMAGE = "IMAGE"
	PDF   = "PDF"
)

// AllowedExtensions holds the file extensions accepted for analysis.
var AllowedExtensions = map[string]struct{}{
	"pdf":  {},
	"jpg":  {},
	"jpeg": {},
	"png":  {},
	"bmp":  {},
	"webp": {},
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// MapExtToFormat returns IMAGE or PDF for a supported extension, "" otherwise.
func MapExtToFormat(ext string) string {
	ext = NormalizeExt(ext)
	if _, ok := AllowedExtensions[ext]; !ok {
		return ""
	}
	if ext == "pdf" {
		return PDF
	}
	return IMAGE
}

// MaxUploadBytes caps images accepted over HTTP.
const MaxUploadBytes = 20 << 20
