package firmware

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/cespare/xxhash/v2"

	"github.com/webflasher/firmware-server/internal/domain"
	"github.com/webflasher/firmware-server/internal/middleware"
)

// cachedDescriptor is only reused while the descriptor bytes hash the same
type cachedDescriptor struct {
	sum        uint64
	descriptor *domain.FlasherDescriptor
}

// loadDescriptor reads the descriptor on every call and decodes it unless a
// copy decoded from identical bytes is cached. The returned descriptor must
// not be modified.
func (c *Catalog) loadDescriptor(chipType string) (*domain.FlasherDescriptor, error) {
	path := filepath.Join(c.root, chipType, DescriptorFile)

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: manifest file for chip type %q", ErrNotFound, chipType)
		}
		return nil, fmt.Errorf("failed to stat manifest file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: manifest file for chip type %q", ErrNotFound, chipType)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: manifest file for chip type %q", ErrNotFound, chipType)
		}
		return nil, fmt.Errorf("failed to read manifest file: %w", err)
	}

	var sum uint64
	if c.cache != nil {
		sum = xxhash.Sum64(content)
		if cached, ok := c.cache.Get(path); ok && cached.sum == sum {
			c.cacheHits.Add(1)
			middleware.DescriptorCacheHits.Inc()
			return cached.descriptor, nil
		}
		c.cacheMisses.Add(1)
		middleware.DescriptorCacheMisses.Inc()
	}

	var descriptor domain.FlasherDescriptor
	if err := json.Unmarshal(content, &descriptor); err != nil {
		return nil, fmt.Errorf("%w: failed to parse manifest file: %w", ErrInvalidManifest, err)
	}

	if c.cache != nil {
		c.cache.Add(path, &cachedDescriptor{sum: sum, descriptor: &descriptor})
	}

	return &descriptor, nil
}
