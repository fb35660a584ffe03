package firmware

import (
	"context"
	"errors"
)

var (
	// ErrNotFound reports a missing descriptor, an empty flash_files table or a missing file.
	ErrNotFound = errors.New("not found")
	// ErrInvalidManifest reports a descriptor or chip index that cannot be parsed.
	ErrInvalidManifest = errors.New("invalid manifest")
	// ErrInvalidPath reports a chip type or file path that would resolve outside the firmware root.
	ErrInvalidPath = errors.New("invalid path")
)

// resultLabel maps an error to a metrics label
func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidManifest):
		return "invalid_manifest"
	case errors.Is(err, ErrInvalidPath):
		return "invalid_path"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "error"
	}
}
