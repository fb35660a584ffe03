package gitstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
)

// Authenticator supplies credentials for fetching the repository
type Authenticator interface {
	GitAuth(ctx context.Context) (transport.AuthMethod, error)
}

// Store keeps a local working copy of the firmware repository
type Store struct {
	config        Config
	repo          *git.Repository
	worktree      *git.Worktree
	currentCommit string
	mu            sync.RWMutex
	logger        *slog.Logger
}

// Config holds git store configuration
type Config struct {
	RepoURL   string
	Branch    string
	LocalPath string
	// Auth may be nil for public repositories
	Auth   Authenticator
	Logger *slog.Logger
}

// New creates a new git store instance
func New(cfg Config) (*Store, error) {
	if cfg.RepoURL == "" {
		return nil, errors.New("repo URL is required")
	}
	if cfg.LocalPath == "" {
		return nil, errors.New("local path is required")
	}
	if cfg.Branch == "" {
		cfg.Branch = "main"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Store{
		config: cfg,
		logger: cfg.Logger,
	}, nil
}

// Open uses an existing working copy of the configured repository at the
// local path, or clones one when the path is missing or empty. Any other
// content at the local path is left untouched and reported as an error.
func (s *Store) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.config.LocalPath)
	switch {
	case errors.Is(err, fs.ErrNotExist) || (err == nil && len(entries) == 0):
		return s.clone(ctx)
	case err != nil:
		return fmt.Errorf("failed to read local path: %w", err)
	}

	repo, err := git.PlainOpen(s.config.LocalPath)
	if err != nil {
		return fmt.Errorf("refusing to replace non-repository content at %s: %w", s.config.LocalPath, err)
	}

	remote, err := repo.Remote(git.DefaultRemoteName)
	if err != nil {
		return fmt.Errorf("existing repository has no %s remote: %w", git.DefaultRemoteName, err)
	}
	urls := remote.Config().URLs
	if len(urls) == 0 || urls[0] != s.config.RepoURL {
		return fmt.Errorf("existing repository at %s tracks %v, not %s", s.config.LocalPath, urls, s.config.RepoURL)
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("failed to get worktree: %w", err)
	}

	s.repo = repo
	s.worktree = worktree
	if err := s.updateCurrentCommit(); err != nil {
		return fmt.Errorf("failed to get current commit: %w", err)
	}

	s.logger.Info("opened existing firmware repository",
		"path", s.config.LocalPath,
		"commit", s.currentCommit,
	)
	return nil
}

func (s *Store) clone(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(s.config.LocalPath), 0o755); err != nil {
		return fmt.Errorf("failed to create parent directory: %w", err)
	}

	auth, err := s.getAuth(ctx)
	if err != nil {
		return fmt.Errorf("failed to get auth: %w", err)
	}

	s.logger.Info("cloning firmware repository",
		"url", s.config.RepoURL,
		"branch", s.config.Branch,
		"path", s.config.LocalPath,
	)

	repo, err := git.PlainCloneContext(ctx, s.config.LocalPath, false, &git.CloneOptions{
		URL:           s.config.RepoURL,
		Auth:          auth,
		Depth:         1,
		SingleBranch:  true,
		ReferenceName: plumbing.NewBranchReferenceName(s.config.Branch),
	})
	if err != nil {
		return fmt.Errorf("clone failed: %w", err)
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("failed to get worktree: %w", err)
	}

	s.repo = repo
	s.worktree = worktree

	if err := s.updateCurrentCommit(); err != nil {
		return fmt.Errorf("failed to get current commit: %w", err)
	}

	s.logger.Info("clone completed", "commit", s.currentCommit)
	return nil
}

// Pull fetches and merges changes from remote
func (s *Store) Pull(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.repo == nil {
		return false, errors.New("repository not initialized")
	}

	oldCommit := s.currentCommit

	auth, err := s.getAuth(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to get auth: %w", err)
	}

	err = s.worktree.PullContext(ctx, &git.PullOptions{
		RemoteName:    git.DefaultRemoteName,
		ReferenceName: plumbing.NewBranchReferenceName(s.config.Branch),
		SingleBranch:  true,
		Auth:          auth,
		Force:         true,
	})
	if errors.Is(err, git.NoErrAlreadyUpToDate) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("pull failed: %w", err)
	}

	if err := s.updateCurrentCommit(); err != nil {
		return false, fmt.Errorf("failed to update commit: %w", err)
	}

	changed := oldCommit != s.currentCommit
	if changed {
		s.logger.Info("firmware repository updated",
			"old_commit", oldCommit,
			"new_commit", s.currentCommit,
		)
	}

	return changed, nil
}

// PullWithRetry attempts to pull with exponential backoff
func (s *Store) PullWithRetry(ctx context.Context, maxRetries int) (bool, error) {
	var lastErr error
	backoff := 1 * time.Second

	for attempt := 0; attempt < maxRetries; attempt++ {
		changed, err := s.Pull(ctx)
		if err == nil {
			return changed, nil
		}

		lastErr = err
		s.logger.Warn("pull attempt failed",
			"attempt", attempt+1,
			"max_retries", maxRetries,
			"error", err,
			"next_backoff", backoff,
		)

		if attempt+1 == maxRetries {
			break
		}

		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(backoff):
			backoff *= 2
			if backoff > 30*time.Second {
				backoff = 30 * time.Second
			}
		}
	}

	return false, fmt.Errorf("pull failed after %d retries: %w", maxRetries, lastErr)
}

// CurrentCommit returns the current HEAD commit SHA
func (s *Store) CurrentCommit() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentCommit
}

// RepoURL returns the configured repository URL
func (s *Store) RepoURL() string {
	return s.config.RepoURL
}

// Branch returns the configured branch
func (s *Store) Branch() string {
	return s.config.Branch
}

func (s *Store) getAuth(ctx context.Context) (transport.AuthMethod, error) {
	if s.config.Auth == nil {
		return nil, nil
	}
	return s.config.Auth.GitAuth(ctx)
}

func (s *Store) updateCurrentCommit() error {
	ref, err := s.repo.Head()
	if err != nil {
		return err
	}
	s.currentCommit = ref.Hash().String()
	return nil
}
