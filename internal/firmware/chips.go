package firmware

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/webflasher/firmware-server/internal/domain"
	"github.com/webflasher/firmware-server/internal/middleware"
)

// ListChips returns every chip type under the root that has a flasher
// descriptor, decorated with metadata from chips.yaml when present
func (c *Catalog) ListChips(ctx context.Context) ([]domain.ChipInfo, error) {
	meta, err := c.loadChipIndex()
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(c.root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			c.logger.Warn("firmware root does not exist", "root", c.root)
			middleware.FirmwareChipsTotal.Set(0)
			return []domain.ChipInfo{}, nil
		}
		return nil, fmt.Errorf("failed to read firmware root: %w", err)
	}

	chips := make([]domain.ChipInfo, 0, len(entries))
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		id := entry.Name()
		if domain.ValidateChipType(id) != nil {
			continue
		}

		info, err := os.Stat(filepath.Join(c.root, id, DescriptorFile))
		if err != nil || !info.Mode().IsRegular() {
			continue
		}

		chip := domain.ChipInfo{
			ID:       id,
			Name:     id,
			Baudrate: DefaultBaudrate,
		}
		if m, ok := meta[id]; ok {
			if m.Name != "" {
				chip.Name = m.Name
			}
			if m.Baudrate > 0 {
				chip.Baudrate = m.Baudrate
			}
			chip.Description = m.Description
		}
		chips = append(chips, chip)
	}

	sort.Slice(chips, func(i, j int) bool {
		return chips[i].ID < chips[j].ID
	})

	middleware.FirmwareChipsTotal.Set(float64(len(chips)))
	return chips, nil
}

func (c *Catalog) loadChipIndex() (map[string]domain.ChipMeta, error) {
	content, err := os.ReadFile(filepath.Join(c.root, ChipIndexFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", ChipIndexFile, err)
	}

	var index domain.ChipIndex
	if err := yaml.Unmarshal(content, &index); err != nil {
		return nil, fmt.Errorf("%w: failed to parse %s: %w", ErrInvalidManifest, ChipIndexFile, err)
	}
	if err := domain.ValidateChipIndex(&index); err != nil {
		return nil, fmt.Errorf("%w: invalid %s: %w", ErrInvalidManifest, ChipIndexFile, err)
	}

	meta := make(map[string]domain.ChipMeta, len(index.Chips))
	for _, m := range index.Chips {
		meta[m.ID] = m
	}
	return meta, nil
}
