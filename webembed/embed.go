//go:build !dev

// Package webembed provides the embedded HTML templates for the media indexes.
package webembed

import (
	"embed"
	"io/fs"
)

//go:embed templates
var templateFS embed.FS

// GetFS returns the embedded template filesystem.
func GetFS() (fs.FS, error) {
	return fs.Sub(templateFS, "templates")
}
