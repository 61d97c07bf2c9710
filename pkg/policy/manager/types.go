package manager

import (
	"context"
	"time"

	"github.com/mercator-hq/warden/pkg/mpl/ast"
)

// PolicyManager loads, validates, and hot-reloads the rule bundles the
// gateway's reference engine evaluates. One bundle is active at a time;
// swaps are atomic and a failed reload keeps the previous bundle.
type PolicyManager interface {
	// LoadPolicies loads the bundle from the configured source.
	LoadPolicies() error

	// ReloadPolicies re-reads the source. The active bundle is only
	// replaced if every policy in the new bundle validates.
	ReloadPolicies() error

	// GetPolicy retrieves a single policy from the active bundle.
	GetPolicy(id string) (*ast.Policy, error)

	// GetAllPolicies snapshots the active bundle.
	GetAllPolicies() []*ast.Policy

	// GetPolicyVersion identifies the active bundle (a content hash).
	GetPolicyVersion() string

	// Watch blocks, reloading the bundle whenever the source changes,
	// until ctx is cancelled.
	Watch(ctx context.Context) error

	// Close stops watchers and releases resources.
	Close() error
}

// BundleInfo summarizes the active bundle for diagnostics.
type BundleInfo struct {
	// Version is the bundle's content hash.
	Version string

	// LoadedAt is when the bundle became active.
	LoadedAt time.Time

	// PolicyCount and RuleCount size the bundle.
	PolicyCount int
	RuleCount   int
}

// ReloadEvent is a source change that triggered (or will trigger) a
// reload.
type ReloadEvent struct {
	// Type is the event type (create, modify, delete).
	Type ReloadEventType

	// FilePath is the path to the file that changed.
	FilePath string

	// Timestamp is when the event occurred.
	Timestamp time.Time
}

// ReloadEventType classifies a source change.
type ReloadEventType int

const (
	// ReloadEventCreate indicates a new file was created.
	ReloadEventCreate ReloadEventType = iota

	// ReloadEventModify indicates an existing file was modified.
	ReloadEventModify

	// ReloadEventDelete indicates a file was deleted.
	ReloadEventDelete
)

// String returns a string representation of the event type.
func (t ReloadEventType) String() string {
	switch t {
	case ReloadEventCreate:
		return "create"
	case ReloadEventModify:
		return "modify"
	case ReloadEventDelete:
		return "delete"
	default:
		return "unknown"
	}
}
