package source

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/mercator-hq/warden/pkg/mpl/ast"
	"github.com/mercator-hq/warden/pkg/mpl/parser"
	"github.com/mercator-hq/warden/pkg/policy/engine"
)

// watchDebounce coalesces bursts of filesystem events (editor save
// sequences produce several) into one notification.
const watchDebounce = 250 * time.Millisecond

// FileSource loads policies from YAML files on disk. The path may be a
// single bundle file or a directory of .yaml/.yml files.
type FileSource struct {
	path   string
	logger *slog.Logger
}

func NewFileSource(path string, logger *slog.Logger) *FileSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileSource{
		path:   path,
		logger: logger,
	}
}

// LoadPolicies loads all policies from the configured path.
func (s *FileSource) LoadPolicies(ctx context.Context) ([]*ast.Policy, error) {
	info, err := os.Stat(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat path %q: %w", s.path, err)
	}

	var policies []*ast.Policy
	if info.IsDir() {
		policies, err = s.loadDirectory(ctx)
		if err != nil {
			return nil, err
		}
	} else {
		policy, err := s.loadFile(ctx, s.path)
		if err != nil {
			return nil, err
		}
		policies = []*ast.Policy{policy}
	}

	s.logger.Info("loaded policies from source",
		"path", s.path,
		"policy_count", len(policies),
	)
	return policies, nil
}

func (s *FileSource) loadDirectory(ctx context.Context) ([]*ast.Policy, error) {
	var policies []*ast.Policy

	err := filepath.Walk(s.path, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !isBundleFile(path) {
			return nil
		}
		policy, err := s.loadFile(ctx, path)
		if err != nil {
			// A broken file must not take down the rest of the bundle.
			s.logger.Warn("failed to load policy file, skipping",
				"path", path,
				"error", err,
			)
			return nil
		}
		policies = append(policies, policy)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk directory %q: %w", s.path, err)
	}
	return policies, nil
}

func (s *FileSource) loadFile(ctx context.Context, path string) (*ast.Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %q: %w", path, err)
	}

	p := parser.NewParser()
	policy, err := p.ParseBytes(data, path)
	if err != nil {
		return nil, fmt.Errorf("failed to parse policy file %q: %w", path, err)
	}
	policy.SourceFile = path

	s.logger.Debug("loaded policy file",
		"path", path,
		"policy_name", policy.Name,
		"rule_count", len(policy.Rules),
	)
	return policy, nil
}

// Watch watches the source path for changes and emits one debounced
// event per burst of filesystem activity. The channel closes when the
// context is cancelled or the underlying watcher fails.
func (s *FileSource) Watch(ctx context.Context) (<-chan engine.PolicyEvent, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	// Watch the containing directory even for a single-file source:
	// editors replace files via rename, which drops a watch on the
	// file itself.
	watchPath := s.path
	if info, err := os.Stat(s.path); err == nil && !info.IsDir() {
		watchPath = filepath.Dir(s.path)
	}
	if err := fw.Add(watchPath); err != nil {
		fw.Close()
		return nil, fmt.Errorf("failed to watch %q: %w", watchPath, err)
	}

	eventCh := make(chan engine.PolicyEvent)
	go func() {
		defer close(eventCh)
		defer fw.Close()

		var (
			timer   *time.Timer
			timerCh <-chan time.Time
			pending engine.PolicyEvent
		)

		for {
			select {
			case <-ctx.Done():
				return

			case ev, ok := <-fw.Events:
				if !ok {
					return
				}
				if !s.relevant(ev.Name) {
					continue
				}
				pending = engine.PolicyEvent{
					Type: eventType(ev.Op),
					Path: ev.Name,
				}
				if timer == nil {
					timer = time.NewTimer(watchDebounce)
					timerCh = timer.C
				} else {
					timer.Reset(watchDebounce)
				}

			case err, ok := <-fw.Errors:
				if !ok {
					return
				}
				select {
				case eventCh <- engine.PolicyEvent{Error: err}:
				case <-ctx.Done():
					return
				}

			case <-timerCh:
				select {
				case eventCh <- pending:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	s.logger.Info("policy file watcher started", "path", watchPath)
	return eventCh, nil
}

// relevant reports whether a filesystem event path concerns this
// source: the single configured file, or any bundle file when the
// source is a directory.
func (s *FileSource) relevant(path string) bool {
	if filepath.Clean(path) == filepath.Clean(s.path) {
		return true
	}
	if !isBundleFile(path) {
		return false
	}
	rel, err := filepath.Rel(s.path, path)
	return err == nil && !strings.HasPrefix(rel, "..")
}

func isBundleFile(path string) bool {
	ext := filepath.Ext(path)
	return ext == ".yaml" || ext == ".yml"
}

func eventType(op fsnotify.Op) engine.PolicyEventType {
	switch {
	case op.Has(fsnotify.Create):
		return engine.PolicyEventCreated
	case op.Has(fsnotify.Remove), op.Has(fsnotify.Rename):
		return engine.PolicyEventDeleted
	default:
		return engine.PolicyEventModified
	}
}
