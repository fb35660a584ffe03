package firmware

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	securejoin "github.com/cyphar/filepath-securejoin"

	"github.com/webflasher/firmware-server/internal/domain"
)

// OpenFile opens a firmware file for download. The caller must close the
// returned file.
func (c *Catalog) OpenFile(ctx context.Context, chipType, filePath string) (*os.File, fs.FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	if err := checkChipType(chipType); err != nil {
		return nil, nil, err
	}

	path, err := c.resolve(chipType, filePath)
	if err != nil {
		return nil, nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil, fmt.Errorf("%w: file %q for chip type %q", ErrNotFound, filePath, chipType)
		}
		return nil, nil, fmt.Errorf("failed to open firmware file: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("failed to stat firmware file: %w", err)
	}
	if !info.Mode().IsRegular() {
		f.Close()
		return nil, nil, fmt.Errorf("%w: file %q for chip type %q", ErrNotFound, filePath, chipType)
	}

	return f, info, nil
}

// resolve maps a descriptor-relative path to a location inside the chip's
// directory. Absolute paths and paths climbing out with ".." are rejected;
// symlinks are resolved without leaving the chip directory.
func (c *Catalog) resolve(chipType, rel string) (string, error) {
	if !filepath.IsLocal(filepath.FromSlash(rel)) {
		return "", fmt.Errorf("%w: %q is not a relative path inside the chip directory", ErrInvalidPath, rel)
	}

	path, err := securejoin.SecureJoin(filepath.Join(c.root, chipType), rel)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidPath, err)
	}
	return path, nil
}

func checkChipType(chipType string) error {
	if err := domain.ValidateChipType(chipType); err != nil {
		return fmt.Errorf("%w: chip type %q", ErrInvalidPath, chipType)
	}
	return nil
}
