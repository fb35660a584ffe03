package firmware

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webflasher/firmware-server/internal/domain"
)

func TestListChips(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"esp32/flasher_args.json":   `{"flash_files": {}}`,
		"esp32c3/flasher_args.json": `{"flash_files": {}}`,
		"esp32s3/boot.bin":          "no descriptor",
		".git/flasher_args.json":    `{}`,
		"README.md":                 "docs",
		"chips.yaml": `chips:
  - id: esp32c3
    name: ESP32-C3
    description: RISC-V single core
    baudrate: 115200
  - id: esp32h2
    name: not on disk
`,
	})
	c := newTestCatalog(t, root, 0)

	chips, err := c.ListChips(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []domain.ChipInfo{
		{ID: "esp32", Name: "esp32", Baudrate: DefaultBaudrate},
		{ID: "esp32c3", Name: "ESP32-C3", Description: "RISC-V single core", Baudrate: 115200},
	}, chips)
}

func TestListChips_WithoutIndex(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"esp32/flasher_args.json": `{}`,
	})
	c := newTestCatalog(t, root, 0)

	chips, err := c.ListChips(context.Background())

	require.NoError(t, err)
	require.Len(t, chips, 1)
	assert.Equal(t, "esp32", chips[0].ID)
}

func TestListChips_MissingRoot(t *testing.T) {
	c := newTestCatalog(t, filepath.Join(t.TempDir(), "nope"), 0)

	chips, err := c.ListChips(context.Background())

	require.NoError(t, err)
	assert.NotNil(t, chips)
	assert.Empty(t, chips)
}

func TestListChips_InvalidIndex(t *testing.T) {
	tests := []struct {
		name  string
		index string
	}{
		{name: "malformed yaml", index: "chips: [\n"},
		{name: "missing id", index: "chips:\n  - name: ESP32\n"},
		{name: "traversal id", index: "chips:\n  - id: ../esp32\n"},
		{name: "negative baudrate", index: "chips:\n  - id: esp32\n    baudrate: -1\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			require.NoError(t, os.WriteFile(filepath.Join(root, ChipIndexFile), []byte(tt.index), 0o644))
			c := newTestCatalog(t, root, 0)

			_, err := c.ListChips(context.Background())

			assert.ErrorIs(t, err, ErrInvalidManifest)
		})
	}
}
