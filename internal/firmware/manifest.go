package firmware

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/webflasher/firmware-server/internal/domain"
	"github.com/webflasher/firmware-server/internal/middleware"
)

// Reasons a descriptor entry is left out of a manifest
const (
	skipBadAddress  = "bad_address"
	skipUnsafePath  = "unsafe_path"
	skipMissingFile = "missing_file"
)

// BuildManifest turns the chip's flasher descriptor into an address-ordered
// list of files. Entries with an unparseable address, an unsafe path or a
// missing file are logged and skipped; they never fail the build.
func (c *Catalog) BuildManifest(ctx context.Context, chipType string) ([]domain.ManifestEntry, error) {
	ctx, span := tracer.Start(ctx, "firmware.BuildManifest",
		trace.WithAttributes(attribute.String("firmware.chip_type", chipType)),
	)
	defer span.End()

	manifest, err := c.buildManifest(ctx, chipType)
	middleware.FirmwareManifestBuilds.WithLabelValues(resultLabel(err)).Inc()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(attribute.Int("firmware.entries", len(manifest)))
	return manifest, nil
}

func (c *Catalog) buildManifest(ctx context.Context, chipType string) ([]domain.ManifestEntry, error) {
	if err := checkChipType(chipType); err != nil {
		return nil, err
	}

	descriptor, err := c.loadDescriptor(chipType)
	if err != nil {
		return nil, err
	}

	if len(descriptor.FlashFiles) == 0 {
		return nil, fmt.Errorf("%w: no flash files declared for chip type %q", ErrNotFound, chipType)
	}

	manifest := make([]domain.ManifestEntry, 0, len(descriptor.FlashFiles))
	for addressStr, file := range descriptor.FlashFiles {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		address, err := ParseAddress(addressStr)
		if err != nil {
			c.skip(ctx, chipType, addressStr, file, skipBadAddress, err)
			continue
		}

		path, err := c.resolve(chipType, file)
		if err != nil {
			c.skip(ctx, chipType, addressStr, file, skipUnsafePath, err)
			continue
		}

		info, err := os.Stat(path)
		if err != nil {
			c.skip(ctx, chipType, addressStr, file, skipMissingFile, err)
			continue
		}
		if !info.Mode().IsRegular() {
			c.skip(ctx, chipType, addressStr, file, skipMissingFile, fmt.Errorf("%s is not a regular file", path))
			continue
		}

		manifest = append(manifest, domain.ManifestEntry{
			File:    file,
			Address: address,
		})
	}

	sort.Slice(manifest, func(i, j int) bool {
		if manifest[i].Address != manifest[j].Address {
			return manifest[i].Address < manifest[j].Address
		}
		return manifest[i].File < manifest[j].File
	})

	return manifest, nil
}

func (c *Catalog) skip(ctx context.Context, chipType, address, file, reason string, err error) {
	middleware.FirmwareSkippedEntries.WithLabelValues(reason).Inc()
	c.logger.WarnContext(ctx, "skipping manifest entry",
		"chip_type", chipType,
		"address", address,
		"file", file,
		"reason", reason,
		"error", err,
	)
}

// ParseAddress parses a hexadecimal flash address with an optional 0x prefix
func ParseAddress(s string) (uint32, error) {
	digits := strings.TrimSpace(s)
	if len(digits) >= 2 && digits[0] == '0' && (digits[1] == 'x' || digits[1] == 'X') {
		digits = digits[2:]
	}
	if digits == "" {
		return 0, fmt.Errorf("empty flash address %q", s)
	}

	v, err := strconv.ParseUint(digits, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid flash address %q: %w", s, err)
	}
	return uint32(v), nil
}
