package firmware

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.opentelemetry.io/otel"

	"github.com/webflasher/firmware-server/internal/domain"
)

const (
	// DescriptorFile is the per-chip flasher descriptor name
	DescriptorFile = "flasher_args.json"
	// ChipIndexFile holds optional chip metadata at the firmware root
	ChipIndexFile = "chips.yaml"
	// DefaultBaudrate is used for chips without a configured baudrate
	DefaultBaudrate = 921600
)

var tracer = otel.Tracer("firmware-server/firmware")

// Catalog serves manifests and firmware files from a firmware root directory
type Catalog struct {
	root      string
	cache     *lru.Cache[string, *cachedDescriptor]
	cacheSize int
	logger    *slog.Logger

	cacheHits   atomic.Int64
	cacheMisses atomic.Int64
}

// Config holds catalog configuration
type Config struct {
	Root string
	// CacheSize bounds the parsed descriptor cache; zero disables it
	CacheSize int
	Logger    *slog.Logger
}

// New creates a new catalog instance
func New(cfg Config) (*Catalog, error) {
	if cfg.Root == "" {
		return nil, errors.New("firmware root is required")
	}
	if cfg.CacheSize < 0 {
		return nil, fmt.Errorf("invalid cache size %d", cfg.CacheSize)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve firmware root: %w", err)
	}

	c := &Catalog{
		root:      root,
		cacheSize: cfg.CacheSize,
		logger:    cfg.Logger,
	}

	if cfg.CacheSize > 0 {
		cache, err := lru.New[string, *cachedDescriptor](cfg.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("failed to create LRU cache: %w", err)
		}
		c.cache = cache
	}

	return c, nil
}

// Root returns the absolute firmware root
func (c *Catalog) Root() string {
	return c.root
}

// Invalidate drops every cached descriptor
func (c *Catalog) Invalidate() {
	if c.cache == nil {
		return
	}
	c.cache.Purge()
	c.cacheHits.Store(0)
	c.cacheMisses.Store(0)
	c.logger.Debug("descriptor cache purged")
}

// CacheStats returns current cache statistics, or nil when caching is disabled
func (c *Catalog) CacheStats() *domain.CacheStats {
	if c.cache == nil {
		return nil
	}

	hits := c.cacheHits.Load()
	misses := c.cacheMisses.Load()
	total := hits + misses

	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total)
	}

	return &domain.CacheStats{
		Size:     c.cache.Len(),
		Capacity: c.cacheSize,
		HitRate:  hitRate,
	}
}
