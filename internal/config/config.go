package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config holds all application configuration
type Config struct {
	// Firmware settings
	FirmwareRoot string `validate:"required"`
	CacheSize    int    `validate:"min=0"`

	// Server settings
	Port               int `validate:"min=1,max=65535"`
	CORSAllowedOrigins []string

	// Logging
	LogLevel slog.Level

	// Firmware mirror settings (optional git repository backing FirmwareRoot)
	RepoURL       string
	RepoBranch    string        `validate:"required"`
	PollInterval  time.Duration `validate:"gt=0"`
	CloneTimeout  time.Duration `validate:"gt=0"`
	WebhookSecret string        `validate:"required_with=RepoURL"`

	// GitHub App authentication for private mirrors
	GitHubAppID          int64
	GitHubAppPrivateKey  []byte
	GitHubInstallationID int64

	// Observability
	OTLPEndpoint string
}

// MirrorEnabled reports whether the firmware root is synced from git
func (c *Config) MirrorEnabled() bool {
	return c.RepoURL != ""
}

// GitHubAppEnabled reports whether GitHub App credentials were provided
func (c *Config) GitHubAppEnabled() bool {
	return c.GitHubAppID != 0
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		// Defaults
		FirmwareRoot:       "./firmware",
		CacheSize:          256,
		Port:               8000,
		CORSAllowedOrigins: []string{"*"},
		LogLevel:           slog.LevelInfo,
		RepoBranch:         "main",
		PollInterval:       5 * time.Minute,
		CloneTimeout:       2 * time.Minute,
	}

	if v := os.Getenv("FIRMWARE_ROOT"); v != "" {
		cfg.FirmwareRoot = v
	}

	if v := os.Getenv("CACHE_SIZE"); v != "" {
		size, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid CACHE_SIZE: %w", err)
		}
		cfg.CacheSize = size
	}

	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid PORT: %w", err)
		}
		cfg.Port = port
	}

	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		cfg.CORSAllowedOrigins = splitList(v)
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(v)); err != nil {
			return nil, fmt.Errorf("invalid LOG_LEVEL: %w", err)
		}
	}

	// Optional: firmware mirror
	cfg.RepoURL = os.Getenv("FIRMWARE_REPO_URL")

	if v := os.Getenv("FIRMWARE_REPO_BRANCH"); v != "" {
		cfg.RepoBranch = v
	}

	if v := os.Getenv("POLL_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid POLL_INTERVAL: %w", err)
		}
		cfg.PollInterval = d
	}

	if v := os.Getenv("CLONE_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid CLONE_TIMEOUT: %w", err)
		}
		cfg.CloneTimeout = d
	}

	cfg.WebhookSecret = os.Getenv("WEBHOOK_SECRET")

	if err := loadGitHubApp(cfg); err != nil {
		return nil, err
	}

	// Optional: OTLP endpoint for tracing
	cfg.OTLPEndpoint = os.Getenv("OTLP_ENDPOINT")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks field constraints and cross-field requirements
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.GitHubAppEnabled() && !c.MirrorEnabled() {
		return errors.New("GITHUB_APP_ID is set but FIRMWARE_REPO_URL is not")
	}
	return nil
}

// loadGitHubApp reads the GitHub App credentials, which must be provided
// together or not at all
func loadGitHubApp(cfg *Config) error {
	appIDStr := os.Getenv("GITHUB_APP_ID")
	installIDStr := os.Getenv("GITHUB_INSTALLATION_ID")
	privateKeyPath := os.Getenv("GITHUB_APP_PRIVATE_KEY_PATH")
	privateKeyValue := os.Getenv("GITHUB_APP_PRIVATE_KEY")

	if appIDStr == "" && installIDStr == "" && privateKeyPath == "" && privateKeyValue == "" {
		return nil
	}

	if appIDStr == "" {
		return errors.New("GITHUB_APP_ID is required when GitHub App credentials are provided")
	}
	appID, err := strconv.ParseInt(appIDStr, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid GITHUB_APP_ID: %w", err)
	}
	cfg.GitHubAppID = appID

	// Private key can be provided as file path or direct value
	switch {
	case privateKeyPath != "":
		key, err := os.ReadFile(privateKeyPath)
		if err != nil {
			return fmt.Errorf("failed to read private key file: %w", err)
		}
		cfg.GitHubAppPrivateKey = key
	case privateKeyValue != "":
		cfg.GitHubAppPrivateKey = []byte(privateKeyValue)
	default:
		return errors.New("GITHUB_APP_PRIVATE_KEY or GITHUB_APP_PRIVATE_KEY_PATH is required")
	}

	if installIDStr == "" {
		return errors.New("GITHUB_INSTALLATION_ID is required")
	}
	installID, err := strconv.ParseInt(installIDStr, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid GITHUB_INSTALLATION_ID: %w", err)
	}
	cfg.GitHubInstallationID = installID

	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
