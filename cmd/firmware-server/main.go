package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/spf13/cobra"

	"github.com/webflasher/firmware-server/internal/config"
	"github.com/webflasher/firmware-server/internal/firmware"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// options holds flags that override environment configuration
type options struct {
	root string
	port int
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "firmware-server",
		Short: "Serve firmware manifests and images to web-based flashing tools",
		Long: `firmware-server reads <root>/<chip>/flasher_args.json, exposes an
address-ordered manifest at /api/firmware/<chip> and serves the referenced
images from /firmware/<chip>/<path>.`,
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}

			logger := newLogger(os.Stdout, cfg.LogLevel)
			slog.SetDefault(logger)

			if err := run(cfg, logger); err != nil {
				logger.Error("application failed", "error", err)
				return err
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.root, "root", "", "firmware root directory (overrides FIRMWARE_ROOT)")
	cmd.Flags().IntVar(&opts.port, "port", 0, "listen port (overrides PORT)")

	cmd.AddCommand(newManifestCmd(opts), newChipsCmd(opts))

	return cmd
}

func newManifestCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "manifest <chip-type>",
		Short: "Print the flashing manifest for a chip type",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := newCatalog(cmd, opts)
			if err != nil {
				return err
			}

			manifest, err := catalog.BuildManifest(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), manifest)
		},
	}
}

func newChipsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "chips",
		Short: "List chip types that have firmware available",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := newCatalog(cmd, opts)
			if err != nil {
				return err
			}

			chips, err := catalog.ListChips(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), chips)
		},
	}
}

func loadConfig(cmd *cobra.Command, opts *options) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if cmd.Flags().Changed("root") {
		cfg.FirmwareRoot = opts.root
	}
	if cmd.Flags().Changed("port") {
		cfg.Port = opts.port
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newCatalog builds an uncached catalog for one-shot commands; diagnostics go
// to stderr so stdout stays machine readable
func newCatalog(cmd *cobra.Command, opts *options) (*firmware.Catalog, error) {
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return nil, err
	}

	return firmware.New(firmware.Config{
		Root:   cfg.FirmwareRoot,
		Logger: newLogger(cmd.ErrOrStderr(), cfg.LogLevel),
	})
}

func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
