package git

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"

	"github.com/mercator-hq/warden/pkg/config"
)

// errHistoryLimit stops commit-log iteration once enough history has
// been collected; it never escapes GetCommitHistory.
var errHistoryLimit = errors.New("history limit reached")

// Repository is a local checkout of a rule-bundle repository. All
// operations run against the checkout; the remote is only touched by
// Clone and Pull.
type Repository struct {
	config    *config.GitPolicyConfig
	localPath string
	auth      AuthProvider

	mu      sync.RWMutex
	repo    *gogit.Repository
	metrics *RepositoryMetrics
}

// NewRepository prepares a checkout manager for the configured bundle
// repository. Nothing touches the filesystem or network until Clone.
func NewRepository(cfg *config.GitPolicyConfig) (*Repository, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.Repository == "" {
		return nil, fmt.Errorf("repository URL cannot be empty")
	}
	if cfg.Branch == "" {
		return nil, fmt.Errorf("branch cannot be empty")
	}

	auth, err := NewAuthProvider(&cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("failed to create auth provider: %w", err)
	}

	localPath := cfg.Clone.LocalPath
	if localPath == "" {
		localPath = filepath.Join(os.TempDir(), "warden-policies")
	}

	return &Repository{
		config:    cfg,
		localPath: localPath,
		auth:      auth,
		metrics:   &RepositoryMetrics{},
	}, nil
}

// authMethod resolves the transport auth for remote operations.
func (r *Repository) authMethod() (transport.AuthMethod, error) {
	auth, err := r.auth.GetAuth()
	if err != nil {
		return nil, fmt.Errorf("failed to get auth: %w", err)
	}
	return auth, nil
}

// Clone materializes the checkout. An existing checkout is reused
// unless CleanOnStart asks for a fresh one.
func (r *Repository) Clone(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	start := time.Now()
	defer func() {
		r.metrics.CloneDuration = time.Since(start)
	}()

	if r.config.Clone.CleanOnStart {
		if err := os.RemoveAll(r.localPath); err != nil {
			return fmt.Errorf("failed to clean existing repository: %w", err)
		}
	}

	// Reuse a checkout left by a previous run.
	if _, err := os.Stat(filepath.Join(r.localPath, ".git")); err == nil {
		repo, err := gogit.PlainOpen(r.localPath)
		if err != nil {
			return fmt.Errorf("failed to open existing repo: %w", err)
		}
		r.repo = repo
		return nil
	}

	if err := os.MkdirAll(r.localPath, 0755); err != nil {
		return fmt.Errorf("failed to create repository directory: %w", err)
	}

	auth, err := r.authMethod()
	if err != nil {
		return err
	}

	cloneCtx, cancel := context.WithTimeout(ctx, r.config.Poll.Timeout)
	defer cancel()

	repo, err := gogit.PlainCloneContext(cloneCtx, r.localPath, false, &gogit.CloneOptions{
		URL:           r.config.Repository,
		ReferenceName: plumbing.NewBranchReferenceName(r.config.Branch),
		SingleBranch:  r.config.Clone.Depth > 0,
		Depth:         r.config.Clone.Depth,
		Auth:          auth,
	})
	if err != nil {
		return fmt.Errorf("failed to clone repository: %w", err)
	}

	r.repo = repo
	return nil
}

// headSHA reads the checkout's current HEAD. Callers hold r.mu.
func (r *Repository) headSHA() (plumbing.Hash, error) {
	ref, err := r.repo.Head()
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("failed to get HEAD: %w", err)
	}
	return ref.Hash(), nil
}

// Pull fast-forwards the checkout to the remote branch and reports
// whether the bundle changed, and which files moved.
func (r *Repository) Pull(ctx context.Context) (*PullResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	start := time.Now()
	defer func() {
		r.metrics.PullDuration = time.Since(start)
		r.metrics.LastPullTime = time.Now()
	}()

	if r.repo == nil {
		return nil, fmt.Errorf("repository not initialized, call Clone() first")
	}

	fromHash, err := r.headSHA()
	if err != nil {
		return nil, err
	}

	worktree, err := r.repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("failed to get worktree: %w", err)
	}

	auth, err := r.authMethod()
	if err != nil {
		return nil, err
	}

	pullCtx, cancel := context.WithTimeout(ctx, r.config.Poll.Timeout)
	defer cancel()

	// Never force: a diverged remote is an operator problem, not
	// something to paper over by discarding local state.
	err = worktree.PullContext(pullCtx, &gogit.PullOptions{
		RemoteName: "origin",
		Auth:       auth,
	})
	if err != nil && err != gogit.NoErrAlreadyUpToDate {
		r.metrics.FailedPulls++
		return nil, fmt.Errorf("failed to pull: %w", err)
	}
	r.metrics.SuccessfulPulls++

	toHash, err := r.headSHA()
	if err != nil {
		return nil, err
	}

	result := &PullResult{
		FromSHA:    fromHash.String(),
		ToSHA:      toHash.String(),
		HadChanges: fromHash != toHash,
	}
	if result.HadChanges {
		changed, err := r.diffFiles(fromHash, toHash)
		if err != nil {
			return nil, err
		}
		result.ChangedFiles = changed
		r.metrics.LastCommitSHA = result.ToSHA
	}

	return result, nil
}

// commitInfo converts a commit object into the CLI/evidence view.
func (r *Repository) commitInfo(c *object.Commit) *CommitInfo {
	return &CommitInfo{
		SHA:        c.Hash.String(),
		Author:     c.Author.Name,
		Email:      c.Author.Email,
		Timestamp:  c.Author.When,
		Message:    c.Message,
		Branch:     r.config.Branch,
		Repository: r.config.Repository,
	}
}

// GetCurrentCommit returns metadata for the checkout's HEAD commit.
func (r *Repository) GetCurrentCommit() (*CommitInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.repo == nil {
		return nil, fmt.Errorf("repository not initialized, call Clone() first")
	}

	hash, err := r.headSHA()
	if err != nil {
		return nil, err
	}
	commit, err := r.repo.CommitObject(hash)
	if err != nil {
		return nil, fmt.Errorf("failed to get commit: %w", err)
	}

	return r.commitInfo(commit), nil
}

// GetChangedFiles returns the files that differ between two commits.
func (r *Repository) GetChangedFiles(fromSHA, toSHA string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.repo == nil {
		return nil, fmt.Errorf("repository not initialized")
	}
	return r.diffFiles(plumbing.NewHash(fromSHA), plumbing.NewHash(toSHA))
}

// diffFiles diffs two commits' trees. Callers hold r.mu.
func (r *Repository) diffFiles(fromHash, toHash plumbing.Hash) ([]string, error) {
	fromTree, err := r.commitTree(fromHash)
	if err != nil {
		return nil, err
	}
	toTree, err := r.commitTree(toHash)
	if err != nil {
		return nil, err
	}

	changes, err := fromTree.Diff(toTree)
	if err != nil {
		return nil, fmt.Errorf("failed to diff trees: %w", err)
	}

	files := make([]string, 0, len(changes))
	for _, change := range changes {
		switch {
		case change.To.Name != "":
			files = append(files, change.To.Name)
		case change.From.Name != "":
			// Deleted file: only the old side has a name.
			files = append(files, change.From.Name)
		}
	}
	return files, nil
}

// commitTree loads the tree for one commit. Callers hold r.mu.
func (r *Repository) commitTree(hash plumbing.Hash) (*object.Tree, error) {
	commit, err := r.repo.CommitObject(hash)
	if err != nil {
		return nil, fmt.Errorf("failed to get commit %s: %w", hash, err)
	}
	tree, err := commit.Tree()
	if err != nil {
		return nil, fmt.Errorf("failed to get tree for %s: %w", hash, err)
	}
	return tree, nil
}

// Rollback checks the worktree out at targetSHA, detaching HEAD. Used
// to pin the bundle to a known-good commit after a bad sync.
func (r *Repository) Rollback(ctx context.Context, targetSHA string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.repo == nil {
		return fmt.Errorf("repository not initialized")
	}

	targetHash := plumbing.NewHash(targetSHA)
	if _, err := r.repo.CommitObject(targetHash); err != nil {
		return fmt.Errorf("target commit not found: %w", err)
	}

	worktree, err := r.repo.Worktree()
	if err != nil {
		return fmt.Errorf("failed to get worktree: %w", err)
	}
	if err := worktree.Checkout(&gogit.CheckoutOptions{Hash: targetHash}); err != nil {
		return fmt.Errorf("failed to checkout commit %s: %w", targetSHA, err)
	}

	return nil
}

// GetCommitHistory returns up to limit commits, newest first.
func (r *Repository) GetCommitHistory(limit int) ([]*CommitInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.repo == nil {
		return nil, fmt.Errorf("repository not initialized")
	}

	hash, err := r.headSHA()
	if err != nil {
		return nil, err
	}
	iter, err := r.repo.Log(&gogit.LogOptions{From: hash})
	if err != nil {
		return nil, fmt.Errorf("failed to get commit log: %w", err)
	}

	history := make([]*CommitInfo, 0, limit)
	err = iter.ForEach(func(c *object.Commit) error {
		if len(history) >= limit {
			return errHistoryLimit
		}
		history = append(history, r.commitInfo(c))
		return nil
	})
	if err != nil && !errors.Is(err, errHistoryLimit) {
		return nil, fmt.Errorf("failed to iterate commits: %w", err)
	}

	return history, nil
}

// GetMetrics returns a copy of the repository's operation metrics.
func (r *Repository) GetMetrics() RepositoryMetrics {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return *r.metrics
}

// GetPolicyPath returns the bundle directory inside the checkout.
func (r *Repository) GetPolicyPath() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return filepath.Join(r.localPath, r.config.Path)
}
