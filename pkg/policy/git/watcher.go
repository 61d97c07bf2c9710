package git

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"
)

// reloadDebounce is the quiet period after a detected change before the
// reload fires, so a burst of commits lands as one bundle swap.
const reloadDebounce = 100 * time.Millisecond

// ReloadCallback is invoked with the checkout's bundle path when rule
// files changed. Returning an error signals that the new bundle failed
// validation and triggers a rollback to the previous commit.
type ReloadCallback func(policyPath string) error

// Watcher polls a bundle repository for new commits and swaps the rule
// bundle when bundle files changed. Commits that touch only other files
// (docs, CI config) advance the tracked SHA without a reload. A reload
// whose validation fails rolls the checkout back to the last commit
// whose bundle was accepted.
type Watcher struct {
	repo         *Repository
	pollInterval time.Duration
	pollTimeout  time.Duration
	reloadFn     ReloadCallback
	logger       *slog.Logger

	mu            sync.RWMutex
	running       bool
	lastCommitSHA string
	metrics       *WatcherMetrics
	stopCh        chan struct{}

	debounceMu    sync.Mutex
	debounceTimer *time.Timer
}

// WatcherMetrics tracks watcher operation metrics.
type WatcherMetrics struct {
	PollCount         int64
	SuccessfulReloads int64
	FailedReloads     int64
	LastReloadTime    time.Time
	LastReloadDur     time.Duration
	SkippedPolls      int64 // Commits without bundle-file changes
}

// NewWatcher creates a watcher over repo, polling at interval with
// timeout bounding each remote operation.
func NewWatcher(repo *Repository, interval, timeout time.Duration, reloadFn ReloadCallback) *Watcher {
	return &Watcher{
		repo:         repo,
		pollInterval: interval,
		pollTimeout:  timeout,
		reloadFn:     reloadFn,
		stopCh:       make(chan struct{}),
		logger:       slog.Default(),
		metrics:      &WatcherMetrics{},
	}
}

// SetLogger sets a custom logger for the watcher.
func (w *Watcher) SetLogger(logger *slog.Logger) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.logger = logger
}

// Start records the checkout's current commit as last-known-good and
// begins polling in the background until ctx is cancelled or Stop is
// called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("watcher already running")
	}

	commit, err := w.repo.GetCurrentCommit()
	if err != nil {
		w.mu.Unlock()
		return fmt.Errorf("failed to get initial commit: %w", err)
	}
	w.lastCommitSHA = commit.SHA
	w.running = true
	w.mu.Unlock()

	w.logger.Info("bundle watcher started",
		"poll_interval", w.pollInterval,
		"initial_commit", shortSHA(commit.SHA))

	go w.pollLoop(ctx)
	return nil
}

// Stop halts polling and cancels any pending debounced reload.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return fmt.Errorf("watcher not running")
	}
	close(w.stopCh)
	w.running = false

	w.debounceMu.Lock()
	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceMu.Unlock()

	w.logger.Info("bundle watcher stopped")
	return nil
}

// IsRunning reports whether the poll loop is active.
func (w *Watcher) IsRunning() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.running
}

// pollLoop drives change detection on the configured interval.
func (w *Watcher) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			if err := w.checkForChanges(ctx); err != nil {
				w.logger.Error("bundle poll failed", "error", err)
			}
		}
	}
}

// checkForChanges pulls the remote and schedules a reload if bundle
// files moved.
func (w *Watcher) checkForChanges(ctx context.Context) error {
	w.metrics.PollCount++

	pullCtx, cancel := context.WithTimeout(ctx, w.pollTimeout)
	defer cancel()

	result, err := w.repo.Pull(pullCtx)
	if err != nil {
		return fmt.Errorf("failed to pull: %w", err)
	}
	if !result.HadChanges {
		return nil
	}

	w.logger.Info("bundle repository changed",
		"from_sha", shortSHA(result.FromSHA),
		"to_sha", shortSHA(result.ToSHA),
		"changed_files", len(result.ChangedFiles))

	if !hasBundleFileChanges(result.ChangedFiles) {
		// Advance the tracked SHA so the same commit isn't re-examined,
		// but leave the active bundle alone.
		w.metrics.SkippedPolls++
		w.logger.Info("no bundle files changed, skipping reload",
			"changed_files", result.ChangedFiles)
		w.mu.Lock()
		w.lastCommitSHA = result.ToSHA
		w.mu.Unlock()
		return nil
	}

	w.scheduleReload(ctx, result.ToSHA)
	return nil
}

// hasBundleFileChanges reports whether any changed file is a rule file.
func hasBundleFileChanges(files []string) bool {
	for _, file := range files {
		switch filepath.Ext(file) {
		case ".mpl", ".yaml", ".yml":
			return true
		}
	}
	return false
}

// scheduleReload (re)arms the debounce timer for a reload of newSHA.
func (w *Watcher) scheduleReload(ctx context.Context, newSHA string) {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()

	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceTimer = time.AfterFunc(reloadDebounce, func() {
		if err := w.performReload(ctx, newSHA); err != nil {
			w.logger.Error("bundle reload failed", "error", err)
		}
	})
}

// performReload runs the reload callback and rolls the checkout back to
// the last accepted commit when validation fails.
func (w *Watcher) performReload(ctx context.Context, newSHA string) error {
	start := time.Now()
	defer func() {
		w.metrics.LastReloadDur = time.Since(start)
		w.metrics.LastReloadTime = time.Now()
	}()

	w.mu.RLock()
	goodSHA := w.lastCommitSHA
	w.mu.RUnlock()

	w.logger.Info("reloading bundle", "commit_sha", shortSHA(newSHA))

	if err := w.reloadFn(w.repo.GetPolicyPath()); err != nil {
		w.metrics.FailedReloads++
		w.logger.Error("bundle validation failed, rolling back",
			"error", err,
			"current_sha", shortSHA(newSHA),
			"rollback_to", shortSHA(goodSHA))

		if rollbackErr := w.rollback(ctx, goodSHA); rollbackErr != nil {
			return fmt.Errorf("validation failed and rollback failed: %w (rollback: %v)", err, rollbackErr)
		}

		w.logger.Info("rolled back to last accepted commit", "sha", shortSHA(goodSHA))
		return fmt.Errorf("policy validation failed: %w", err)
	}

	w.mu.Lock()
	w.lastCommitSHA = newSHA
	w.mu.Unlock()
	w.metrics.SuccessfulReloads++

	w.logger.Info("bundle reloaded",
		"from_sha", shortSHA(goodSHA),
		"to_sha", shortSHA(newSHA))
	return nil
}

// rollback pins the checkout at sha and re-runs the reload callback so
// the active bundle and the working tree agree again.
func (w *Watcher) rollback(ctx context.Context, sha string) error {
	if err := w.repo.Rollback(ctx, sha); err != nil {
		return fmt.Errorf("failed to rollback repository: %w", err)
	}
	if err := w.reloadFn(w.repo.GetPolicyPath()); err != nil {
		return fmt.Errorf("failed to reload policies after rollback: %w", err)
	}
	return nil
}

// ForceCheck polls immediately instead of waiting for the next tick.
func (w *Watcher) ForceCheck(ctx context.Context) error {
	if !w.IsRunning() {
		return fmt.Errorf("watcher not running")
	}
	w.logger.Info("force checking for bundle changes")
	return w.checkForChanges(ctx)
}

// GetLastCommitSHA returns the commit whose bundle is active.
func (w *Watcher) GetLastCommitSHA() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.lastCommitSHA
}

// GetMetrics returns a copy of the watcher metrics.
func (w *Watcher) GetMetrics() WatcherMetrics {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return *w.metrics
}

// shortSHA trims a commit SHA for log lines; short input passes through.
func shortSHA(sha string) string {
	if len(sha) > 8 {
		return sha[:8]
	}
	return sha
}
