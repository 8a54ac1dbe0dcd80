package ingest

import (
	"path/filepath"
	"strings"

	"github.com/joseph-ayodele/labreport/constants"
)

// AllowedExt checks if a file extension is one the pipeline accepts.
func AllowedExt(ext string) bool {
	return constants.MapExtToFormat(ext) != ""
}

// IsHidden checks if a file or directory is hidden (starts with '.').
func IsHidden(path string) bool {
	base := filepath.Base(path)
	return strings.HasPrefix(base, ".")
}
