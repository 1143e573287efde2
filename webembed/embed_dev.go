//go:build dev

// Package webembed provides the embedded HTML templates for the media indexes.
package webembed

import (
	"io/fs"
	"os"
)

// GetFS reads templates from disk in dev mode so they can be edited without rebuilding.
func GetFS() (fs.FS, error) {
	dir := os.Getenv("SMS900_TEMPLATE_DIR")
	if dir == "" {
		dir = "webembed/templates"
	}
	return os.DirFS(dir), nil
}
