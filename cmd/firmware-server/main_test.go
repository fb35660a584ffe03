package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webflasher/firmware-server/internal/domain"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"FIRMWARE_ROOT", "CACHE_SIZE", "PORT", "LOG_LEVEL", "FIRMWARE_REPO_URL",
		"WEBHOOK_SECRET", "GITHUB_APP_ID", "GITHUB_APP_PRIVATE_KEY",
		"GITHUB_APP_PRIVATE_KEY_PATH", "GITHUB_INSTALLATION_ID",
	} {
		t.Setenv(name, "")
	}
}

func firmwareRoot(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	files := map[string]string{
		"esp32/flasher_args.json":   `{"flash_files": {"0x10000": "app.bin", "0x1000": "bootloader.bin", "0x9000": "gone.bin"}}`,
		"esp32/app.bin":             "app",
		"esp32/bootloader.bin":      "boot",
		"esp32c3/flasher_args.json": `{"flash_files": {"0x0": "bootloader.bin"}}`,
		"esp32c3/bootloader.bin":    "boot",
		"chips.yaml":                "chips:\n  - id: esp32c3\n    name: ESP32-C3\n    baudrate: 115200\n",
	}
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return root
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestRootCommand(t *testing.T) {
	cmd := newRootCmd()

	assert.Equal(t, "firmware-server", cmd.Use)
	assert.NotNil(t, cmd.PersistentFlags().Lookup("root"))
	assert.NotNil(t, cmd.Flags().Lookup("port"))

	names := []string{}
	for _, sub := range cmd.Commands() {
		names = append(names, sub.Name())
	}
	assert.ElementsMatch(t, []string{"manifest", "chips"}, names)
}

func TestManifestCommand(t *testing.T) {
	clearEnv(t)
	root := firmwareRoot(t)

	stdout, stderr, err := execute(t, "manifest", "esp32", "--root", root)

	require.NoError(t, err)
	var manifest []domain.ManifestEntry
	require.NoError(t, json.Unmarshal([]byte(stdout), &manifest))
	assert.Equal(t, []domain.ManifestEntry{
		{File: "bootloader.bin", Address: 0x1000},
		{File: "app.bin", Address: 0x10000},
	}, manifest)
	assert.Contains(t, stderr, "gone.bin")
}

func TestManifestCommand_UsesEnvironmentRoot(t *testing.T) {
	clearEnv(t)
	t.Setenv("FIRMWARE_ROOT", firmwareRoot(t))

	stdout, _, err := execute(t, "manifest", "esp32c3")

	require.NoError(t, err)
	assert.JSONEq(t, `[{"file": "bootloader.bin", "address": 0}]`, stdout)
}

func TestManifestCommand_Errors(t *testing.T) {
	clearEnv(t)
	root := firmwareRoot(t)

	tests := []struct {
		name string
		args []string
	}{
		{name: "missing chip type argument", args: []string{"manifest", "--root", root}},
		{name: "unknown chip type", args: []string{"manifest", "esp32p4", "--root", root}},
		{name: "traversal", args: []string{"manifest", "..", "--root", root}},
		{name: "invalid config", args: []string{"manifest", "esp32", "--root", ""}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := execute(t, tt.args...)
			assert.Error(t, err)
		})
	}
}

func TestChipsCommand(t *testing.T) {
	clearEnv(t)
	root := firmwareRoot(t)

	stdout, _, err := execute(t, "chips", "--root", root)

	require.NoError(t, err)
	var chips []domain.ChipInfo
	require.NoError(t, json.Unmarshal([]byte(stdout), &chips))
	require.Len(t, chips, 2)
	assert.Equal(t, "esp32", chips[0].ID)
	assert.Equal(t, "esp32", chips[0].Name)
	assert.Equal(t, 921600, chips[0].Baudrate)
	assert.Equal(t, "ESP32-C3", chips[1].Name)
	assert.Equal(t, 115200, chips[1].Baudrate)
}
