package sync

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/webflasher/firmware-server/internal/domain"
	"github.com/webflasher/firmware-server/internal/middleware"
)

// Puller updates the local firmware working copy
type Puller interface {
	PullWithRetry(ctx context.Context, maxRetries int) (bool, error)
	CurrentCommit() string
}

// Catalog is the firmware view that must follow the working copy
type Catalog interface {
	Invalidate()
	ListChips(ctx context.Context) ([]domain.ChipInfo, error)
}

// Status is a snapshot of mirror activity
type Status struct {
	Commit    string
	LastSync  time.Time
	LastError string
	Syncing   bool
}

// Manager keeps the firmware root in step with its git mirror. It pulls at
// startup, on every poll tick and once per burst of push notifications.
type Manager struct {
	store        Puller
	catalog      Catalog
	pollInterval time.Duration
	debounce     time.Duration
	maxRetries   int
	logger       *slog.Logger

	triggers chan struct{}

	mu       sync.Mutex
	lastSync time.Time
	lastErr  error
	syncing  bool
}

// Config holds sync manager configuration
type Config struct {
	Store   Puller
	Catalog Catalog
	// PollInterval defaults to 5m
	PollInterval time.Duration
	// Debounce is how long a push notification waits for further pushes; defaults to 10s
	Debounce time.Duration
	// MaxRetries bounds pull attempts per sync; defaults to 3
	MaxRetries int
	Logger     *slog.Logger
}

func NewManager(cfg Config) *Manager {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Minute
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = 10 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Manager{
		store:        cfg.Store,
		catalog:      cfg.Catalog,
		pollInterval: cfg.PollInterval,
		debounce:     cfg.Debounce,
		maxRetries:   cfg.MaxRetries,
		logger:       cfg.Logger,
		triggers:     make(chan struct{}, 1),
	}
}

// Start syncs once, then serves poll ticks and triggers until ctx is done
func (m *Manager) Start(ctx context.Context) {
	m.logger.Info("firmware mirror sync started",
		"poll_interval", m.pollInterval,
		"debounce", m.debounce,
	)
	m.sync(ctx, "startup")

	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	var pending *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			if pending != nil {
				pending.Stop()
			}
			m.logger.Info("firmware mirror sync stopped")
			return

		case <-ticker.C:
			m.sync(ctx, "poll")

		case <-m.triggers:
			// Later pushes in the window ride on the pending pull
			if pending == nil {
				pending = time.NewTimer(m.debounce)
				fire = pending.C
			}

		case <-fire:
			pending, fire = nil, nil
			m.sync(ctx, "webhook")
		}
	}
}

// Trigger schedules a pull without blocking
func (m *Manager) Trigger() {
	select {
	case m.triggers <- struct{}{}:
	default:
	}
}

// Status reports the mirror commit and the outcome of the last pull
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := Status{
		Commit:   m.store.CurrentCommit(),
		LastSync: m.lastSync,
		Syncing:  m.syncing,
	}
	if m.lastErr != nil {
		st.LastError = m.lastErr.Error()
	}
	return st
}

func (m *Manager) sync(ctx context.Context, source string) {
	m.mu.Lock()
	m.syncing = true
	m.mu.Unlock()

	start := time.Now()
	changed, err := m.store.PullWithRetry(ctx, m.maxRetries)
	elapsed := time.Since(start)
	middleware.MirrorSyncDuration.Observe(elapsed.Seconds())

	m.mu.Lock()
	m.syncing = false
	m.lastErr = err
	if err == nil {
		m.lastSync = time.Now()
	}
	m.mu.Unlock()

	if err != nil {
		if ctx.Err() != nil {
			return
		}
		middleware.MirrorSyncErrors.Inc()
		m.logger.Error("firmware mirror sync failed",
			"source", source,
			"error", err,
			"duration", elapsed,
		)
		return
	}

	commit := m.store.CurrentCommit()
	if !changed {
		m.logger.Debug("firmware mirror up to date", "source", source, "commit", commit)
		return
	}

	m.catalog.Invalidate()

	chips, err := m.catalog.ListChips(ctx)
	if err != nil {
		m.logger.Warn("firmware tree updated but chips could not be listed",
			"source", source,
			"commit", commit,
			"error", err,
		)
		return
	}

	m.logger.Info("firmware tree updated",
		"source", source,
		"commit", commit,
		"chip_count", len(chips),
		"duration", elapsed,
	)
}
