package manager

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mercator-hq/warden/pkg/config"
	"github.com/mercator-hq/warden/pkg/mpl/ast"
	"github.com/mercator-hq/warden/pkg/mpl/parser"
	"github.com/mercator-hq/warden/pkg/mpl/validator"
	"github.com/mercator-hq/warden/pkg/policy/git"
)

// maxPolicyFileSize rejects bundle files that cannot plausibly be rule
// definitions.
const maxPolicyFileSize = 10 * 1024 * 1024 // 10 MiB

// bundle is one atomically-swapped set of policies. The manager never
// mutates a published bundle; reloads build a fresh one.
type bundle struct {
	policies []*ast.Policy
	byName   map[string]*ast.Policy
	version  string
	loadedAt time.Time
}

func newBundle(policies []*ast.Policy) *bundle {
	b := &bundle{
		policies: policies,
		byName:   make(map[string]*ast.Policy, len(policies)),
		loadedAt: time.Now(),
	}
	for _, p := range policies {
		// Last policy with a given name wins, matching load order.
		b.byName[p.Name] = p
	}
	b.version = bundleVersion(policies)
	return b
}

// bundleVersion derives a stable content hash from the bundle's policy
// identities, so two loads of identical rules compare equal.
func bundleVersion(policies []*ast.Policy) string {
	names := make([]string, 0, len(policies))
	for _, p := range policies {
		names = append(names, fmt.Sprintf("%s@%s:%d", p.Name, p.Version, len(p.Rules)))
	}
	sort.Strings(names)

	h := sha256.Sum256([]byte(strings.Join(names, "\n")))
	return hex.EncodeToString(h[:8])
}

// DefaultPolicyManager is the default PolicyManager implementation. It
// reads rule bundles from a file, a directory, or a git checkout, and
// swaps them atomically on reload.
type DefaultPolicyManager struct {
	config    *config.PolicyConfig
	parser    *parser.Parser
	validator *validator.Validator
	logger    *slog.Logger

	// Git source management
	gitRepo    *git.Repository
	gitWatcher *git.Watcher

	// Active bundle and load bookkeeping
	mu            sync.RWMutex
	active        *bundle
	lastLoadError error

	// Watch management
	watchMu     sync.Mutex
	watchCancel context.CancelFunc
	watchEvents chan ReloadEvent
}

// NewPolicyManager creates a policy manager. In git mode the repository
// is cloned immediately so the first LoadPolicies reads a checkout.
func NewPolicyManager(
	cfg *config.PolicyConfig,
	p *parser.Parser,
	v *validator.Validator,
	logger *slog.Logger,
) (*DefaultPolicyManager, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if p == nil {
		return nil, fmt.Errorf("parser cannot be nil")
	}
	if v == nil {
		return nil, fmt.Errorf("validator cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	m := &DefaultPolicyManager{
		config:      cfg,
		parser:      p,
		validator:   v,
		logger:      logger,
		active:      newBundle(nil),
		watchEvents: make(chan ReloadEvent, 100),
	}

	if cfg.Mode == "git" && cfg.Git.Enabled {
		logger.Info("initializing git policy source",
			"repository", cfg.Git.Repository,
			"branch", cfg.Git.Branch,
		)

		gitRepo, err := git.NewRepository(&cfg.Git)
		if err != nil {
			return nil, fmt.Errorf("failed to create git repository: %w", err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), cfg.Git.Poll.Timeout)
		defer cancel()
		if err := gitRepo.Clone(ctx); err != nil {
			return nil, fmt.Errorf("failed to clone repository: %w", err)
		}
		m.gitRepo = gitRepo

		if cfg.Git.Poll.Enabled {
			m.gitWatcher = git.NewWatcher(
				gitRepo,
				cfg.Git.Poll.Interval,
				cfg.Git.Poll.Timeout,
				func(string) error { return m.ReloadPolicies() },
			)
		}
	}

	return m, nil
}

// LoadPolicies loads the bundle from the configured source, validates
// it, and makes it active.
func (m *DefaultPolicyManager) LoadPolicies() error {
	return m.swapBundle("load")
}

// ReloadPolicies re-reads the source. On any failure the previous
// bundle stays active and the error is reported.
func (m *DefaultPolicyManager) ReloadPolicies() error {
	return m.swapBundle("reload")
}

// swapBundle reads, validates, and atomically publishes a new bundle.
func (m *DefaultPolicyManager) swapBundle(op string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	start := time.Now()
	m.logger.Info("loading rule bundle",
		"op", op,
		"mode", m.config.Mode,
		"path", m.sourcePath(),
	)

	policies, err := m.readBundle()
	if err != nil {
		m.lastLoadError = err
		m.logger.Error("bundle read failed, keeping active bundle",
			"op", op, "error", err,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return err
	}

	if err := m.validatePolicies(policies); err != nil {
		m.lastLoadError = err
		m.logger.Error("bundle validation failed, keeping active bundle",
			"op", op, "error", err,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return err
	}

	m.active = newBundle(policies)
	m.lastLoadError = nil

	m.logger.Info("rule bundle active",
		"op", op,
		"count", len(policies),
		"version", m.active.version,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// sourcePath reports where the bundle is read from: the configured file
// path, or the git checkout's policy path in git mode.
func (m *DefaultPolicyManager) sourcePath() string {
	if m.config.Mode == "git" && m.gitRepo != nil {
		return m.gitRepo.GetPolicyPath()
	}
	return m.config.FilePath
}

// readBundle parses every bundle file at the source path. A directory
// source reads each .yaml/.yml file in lexical order, skipping hidden
// entries; a file source reads just that file.
func (m *DefaultPolicyManager) readBundle() ([]*ast.Policy, error) {
	path := m.sourcePath()

	info, err := os.Stat(path)
	if err != nil {
		return nil, &LoadError{FilePath: path, Message: "cannot access policy path", Cause: err}
	}

	if !info.IsDir() {
		policy, err := m.readBundleFile(path, info.Size())
		if err != nil {
			return nil, err
		}
		return []*ast.Policy{policy}, nil
	}

	var files []string
	err = filepath.Walk(path, func(p string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		base := filepath.Base(p)
		if strings.HasPrefix(base, ".") && p != path {
			if fi.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if fi.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(p)) {
		case ".yaml", ".yml":
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, &LoadError{FilePath: path, Message: "directory walk failed", Cause: err}
	}
	sort.Strings(files)

	if len(files) == 0 {
		return nil, &LoadError{FilePath: path, Message: "no policy files found"}
	}

	policies := make([]*ast.Policy, 0, len(files))
	for _, f := range files {
		fi, err := os.Stat(f)
		if err != nil {
			return nil, &LoadError{FilePath: f, Message: "cannot stat policy file", Cause: err}
		}
		policy, err := m.readBundleFile(f, fi.Size())
		if err != nil {
			return nil, err
		}
		policies = append(policies, policy)
	}
	return policies, nil
}

// readBundleFile parses one bundle file, enforcing the size ceiling.
func (m *DefaultPolicyManager) readBundleFile(path string, size int64) (*ast.Policy, error) {
	if size > maxPolicyFileSize {
		return nil, &LoadError{
			FilePath: path,
			Message:  fmt.Sprintf("file exceeds %d byte limit", int64(maxPolicyFileSize)),
		}
	}

	policy, err := m.parser.Parse(path)
	if err != nil {
		return nil, &ParseError{FilePath: path, Cause: err}
	}
	return policy, nil
}

// validatePolicies runs the validator over every policy and surfaces
// duplicate policy names and rule IDs, which usually indicate a merge
// gone wrong in the bundle repository.
func (m *DefaultPolicyManager) validatePolicies(policies []*ast.Policy) error {
	if !m.config.Validation.Enabled {
		m.logger.Debug("policy validation disabled")
		return nil
	}

	errList := &ErrorList{}
	for _, policy := range policies {
		if err := m.validator.Validate(policy); err != nil {
			errList.Add(&ValidationError{
				PolicyID: policy.Name,
				Message:  err.Error(),
				Cause:    err,
			})
			if m.config.Validation.Strict {
				return errList.ToError()
			}
		}
	}

	seenPolicies := make(map[string]bool, len(policies))
	ruleLocations := make(map[string][]string)
	for _, policy := range policies {
		if seenPolicies[policy.Name] {
			m.logger.Warn("duplicate policy name, last definition wins",
				"policy", policy.Name)
		}
		seenPolicies[policy.Name] = true

		for _, rule := range policy.Rules {
			if rule.Name != "" {
				ruleLocations[rule.Name] = append(ruleLocations[rule.Name], policy.Name)
			}
		}
	}
	for ruleID, owners := range ruleLocations {
		if len(owners) > 1 {
			m.logger.Warn("duplicate rule ID across policies",
				"rule_id", ruleID, "policies", owners)
		}
	}

	return errList.ToError()
}

// GetPolicy retrieves a single policy from the active bundle.
func (m *DefaultPolicyManager) GetPolicy(id string) (*ast.Policy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	policy, ok := m.active.byName[id]
	if !ok {
		return nil, fmt.Errorf("policy %q not found", id)
	}
	return policy, nil
}

// GetAllPolicies snapshots the active bundle.
func (m *DefaultPolicyManager) GetAllPolicies() []*ast.Policy {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*ast.Policy, len(m.active.policies))
	copy(out, m.active.policies)
	return out
}

// GetPolicyVersion identifies the active bundle.
func (m *DefaultPolicyManager) GetPolicyVersion() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.active.version
}

// GetBundleInfo summarizes the active bundle for diagnostics.
func (m *DefaultPolicyManager) GetBundleInfo() BundleInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	info := BundleInfo{
		Version:     m.active.version,
		LoadedAt:    m.active.loadedAt,
		PolicyCount: len(m.active.policies),
	}
	for _, p := range m.active.policies {
		info.RuleCount += len(p.Rules)
	}
	return info
}

// GetLastLoadTime returns when the active bundle was published.
func (m *DefaultPolicyManager) GetLastLoadTime() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.active.loadedAt
}

// GetLastLoadError returns the error from the most recent load attempt.
func (m *DefaultPolicyManager) GetLastLoadError() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastLoadError
}

// ValidatePoliciesDryRun reads and validates the source without touching
// the active bundle. Used by linting workflows.
func (m *DefaultPolicyManager) ValidatePoliciesDryRun() error {
	m.logger.Info("dry-run validation", "path", m.sourcePath())

	policies, err := m.readBundle()
	if err != nil {
		return fmt.Errorf("failed to load policies: %w", err)
	}
	if err := m.validatePolicies(policies); err != nil {
		return fmt.Errorf("policy validation failed: %w", err)
	}

	m.logger.Info("dry-run validation successful", "count", len(policies))
	return nil
}

// Watch blocks, reloading the bundle when the source changes, until ctx
// is cancelled. Git mode polls the remote; file mode uses fsnotify.
func (m *DefaultPolicyManager) Watch(ctx context.Context) error {
	m.watchMu.Lock()
	if m.watchCancel != nil {
		m.watchMu.Unlock()
		return fmt.Errorf("watch already started")
	}
	watchCtx, cancel := context.WithCancel(ctx)
	m.watchCancel = cancel
	m.watchMu.Unlock()

	if m.config.Mode == "git" && m.gitWatcher != nil {
		m.logger.Info("starting git bundle watcher",
			"repository", m.config.Git.Repository,
			"poll_interval", m.config.Git.Poll.Interval,
		)
		if err := m.gitWatcher.Start(watchCtx); err != nil {
			return fmt.Errorf("failed to start git watcher: %w", err)
		}
		<-watchCtx.Done()
		return m.gitWatcher.Stop()
	}

	if !m.config.Watch {
		return fmt.Errorf("policy watching is not enabled in configuration")
	}

	watchConfig := DefaultFileWatcherConfig()
	watchConfig.Path = m.config.FilePath
	watcher, err := NewFileWatcher(watchConfig, m.logger)
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}

	go func() {
		if err := watcher.Watch(watchCtx, func() error {
			return m.ReloadPolicies()
		}); err != nil {
			m.logger.Error("file watcher error", "error", err)
		}
	}()

	<-watchCtx.Done()
	return watcher.Stop()
}

// Close stops watchers and releases resources.
func (m *DefaultPolicyManager) Close() error {
	m.watchMu.Lock()
	if m.watchCancel != nil {
		m.watchCancel()
		m.watchCancel = nil
	}
	m.watchMu.Unlock()

	if m.gitWatcher != nil {
		if err := m.gitWatcher.Stop(); err != nil {
			m.logger.Error("failed to stop git watcher", "error", err)
		}
	}

	m.logger.Info("policy manager closed")
	return nil
}

// Engine-source bridge: the interpreter engine can read its policies
// through the manager instead of a bare file source.

// PolicyEventType classifies bundle changes surfaced to the engine.
type PolicyEventType int

const (
	PolicyEventCreated PolicyEventType = iota
	PolicyEventModified
	PolicyEventDeleted
	PolicyEventError
)

// PolicyEvent is one bundle change surfaced to the engine.
type PolicyEvent struct {
	Type  PolicyEventType
	Path  string
	Error error
}

// LoadPoliciesForEngine implements the engine's policy-source load.
func (m *DefaultPolicyManager) LoadPoliciesForEngine(ctx context.Context) ([]*ast.Policy, error) {
	m.mu.RLock()
	empty := len(m.active.policies) == 0
	m.mu.RUnlock()

	if empty {
		if err := m.LoadPolicies(); err != nil {
			return nil, err
		}
	}
	return m.GetAllPolicies(), nil
}

// WatchForEngine implements the engine's policy-source watch.
func (m *DefaultPolicyManager) WatchForEngine(ctx context.Context) (<-chan PolicyEvent, error) {
	events := make(chan PolicyEvent, 100)

	go func() {
		defer close(events)

		if err := m.Watch(ctx); err != nil {
			events <- PolicyEvent{Type: PolicyEventError, Error: err}
			return
		}

		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-m.watchEvents:
				if !ok {
					return
				}
				engineEvent := PolicyEvent{Path: event.FilePath}
				switch event.Type {
				case ReloadEventCreate:
					engineEvent.Type = PolicyEventCreated
				case ReloadEventModify:
					engineEvent.Type = PolicyEventModified
				case ReloadEventDelete:
					engineEvent.Type = PolicyEventDeleted
				}
				select {
				case events <- engineEvent:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return events, nil
}

// Git-specific operations, used by the policy lifecycle CLI.

// GetCurrentCommit returns the checkout's current commit.
func (m *DefaultPolicyManager) GetCurrentCommit() (*git.CommitInfo, error) {
	if m.config.Mode != "git" || m.gitRepo == nil {
		return nil, fmt.Errorf("not in git mode")
	}
	return m.gitRepo.GetCurrentCommit()
}

// GetCommitHistory returns up to limit commits of bundle history.
func (m *DefaultPolicyManager) GetCommitHistory(limit int) ([]*git.CommitInfo, error) {
	if m.config.Mode != "git" || m.gitRepo == nil {
		return nil, fmt.Errorf("not in git mode")
	}
	return m.gitRepo.GetCommitHistory(limit)
}

// RollbackToCommit checks out commitSHA and activates that bundle.
func (m *DefaultPolicyManager) RollbackToCommit(ctx context.Context, commitSHA string) error {
	if m.config.Mode != "git" || m.gitRepo == nil {
		return fmt.Errorf("not in git mode")
	}

	m.logger.Info("rolling back bundle", "commit_sha", commitSHA)

	if err := m.gitRepo.Rollback(ctx, commitSHA); err != nil {
		return fmt.Errorf("failed to rollback git repository: %w", err)
	}
	if err := m.ReloadPolicies(); err != nil {
		return fmt.Errorf("failed to load policies after rollback: %w", err)
	}

	m.logger.Info("rollback complete", "commit_sha", commitSHA)
	return nil
}

// ForceSync pulls the remote and activates the new bundle. If the new
// bundle fails validation the checkout is rolled back to the previous
// commit so the working tree matches the still-active bundle.
func (m *DefaultPolicyManager) ForceSync(ctx context.Context) error {
	if m.config.Mode != "git" || m.gitRepo == nil {
		return fmt.Errorf("not in git mode")
	}

	m.logger.Info("forcing git sync")

	result, err := m.gitRepo.Pull(ctx)
	if err != nil {
		return fmt.Errorf("failed to pull changes: %w", err)
	}
	if !result.HadChanges {
		m.logger.Info("no changes detected")
		return nil
	}

	m.logger.Info("changes detected, reloading bundle",
		"from_sha", result.FromSHA,
		"to_sha", result.ToSHA,
		"changed_files", len(result.ChangedFiles),
	)

	if err := m.ReloadPolicies(); err != nil {
		m.logger.Error("reload failed after sync, rolling back checkout",
			"error", err, "target_sha", result.FromSHA)

		if rollbackErr := m.gitRepo.Rollback(ctx, result.FromSHA); rollbackErr != nil {
			return fmt.Errorf("failed to reload policies: %w (rollback also failed: %v)", err, rollbackErr)
		}
		return fmt.Errorf("failed to reload policies: %w", err)
	}

	return nil
}

// GetGitMetrics reports git operation metrics, zero-valued outside git
// mode.
func (m *DefaultPolicyManager) GetGitMetrics() git.RepositoryMetrics {
	if m.config.Mode != "git" || m.gitRepo == nil {
		return git.RepositoryMetrics{}
	}
	return m.gitRepo.GetMetrics()
}
