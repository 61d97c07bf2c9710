package secrets

import (
	"fmt"
	"time"

	"github.com/mercator-hq/warden/pkg/config"
)

// NewManagerFromConfig builds a secret manager from the gateway's
// security.secrets configuration. With no providers configured it
// returns a manager backed by the environment provider alone, so
// ${secret:name} references always have somewhere to resolve from.
func NewManagerFromConfig(cfg *config.SecretsConfig) (*Manager, error) {
	var providers []SecretProvider

	// The enabled flag only filters when the configuration uses it:
	// with no provider marked enabled, every listed provider counts.
	anyEnabled := false
	for _, pc := range cfg.Providers {
		if pc.Enabled {
			anyEnabled = true
		}
	}

	for _, pc := range cfg.Providers {
		if anyEnabled && !pc.Enabled {
			continue
		}
		switch pc.Type {
		case "env":
			prefix := pc.Prefix
			if prefix == "" {
				prefix = "WARDEN_SECRET_"
			}
			providers = append(providers, NewEnvProvider(prefix))
		case "file":
			fp, err := NewFileProvider(pc.Path, pc.Watch)
			if err != nil {
				return nil, fmt.Errorf("file secret provider: %w", err)
			}
			providers = append(providers, fp)
		default:
			return nil, fmt.Errorf("unknown secret provider type %q", pc.Type)
		}
	}

	if len(providers) == 0 {
		providers = append(providers, NewEnvProvider("WARDEN_SECRET_"))
	}

	cacheTTL := 5 * time.Minute
	if cfg.Cache.TTL != "" {
		if d, err := time.ParseDuration(cfg.Cache.TTL); err == nil {
			cacheTTL = d
		}
	}
	maxSize := cfg.Cache.MaxSize
	if maxSize == 0 {
		maxSize = 1000
	}

	return NewManager(providers, CacheConfig{
		Enabled: cfg.Cache.Enabled,
		TTL:     cacheTTL,
		MaxSize: maxSize,
	}), nil
}
