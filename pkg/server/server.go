// Package server assembles the gateway: the net/http host proxy, the
// mediation plugin, the engine manager, limits, and telemetry.
package server

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/mercator-hq/warden/pkg/config"
	"github.com/mercator-hq/warden/pkg/dispatch"
	"github.com/mercator-hq/warden/pkg/enginemgr"
	"github.com/mercator-hq/warden/pkg/evidence"
	evidencestorage "github.com/mercator-hq/warden/pkg/evidence/storage"
	"github.com/mercator-hq/warden/pkg/evidence/recorder"
	"github.com/mercator-hq/warden/pkg/limits"
	"github.com/mercator-hq/warden/pkg/mediator"
	"github.com/mercator-hq/warden/pkg/policy"
	"github.com/mercator-hq/warden/pkg/policy/engine"
	"github.com/mercator-hq/warden/pkg/proxy/middleware"
	"github.com/mercator-hq/warden/pkg/proxycap/httphost"
	"github.com/mercator-hq/warden/pkg/security/auth"
	"github.com/mercator-hq/warden/pkg/security/secrets"
	securitytls "github.com/mercator-hq/warden/pkg/security/tls"
	"github.com/mercator-hq/warden/pkg/telemetry/health"
	"github.com/mercator-hq/warden/pkg/telemetry/metrics"
)

// Server is the gateway process: one listener, one host proxy, one
// mediation plugin, and the engine manager behind it.
type Server struct {
	config *config.Config

	httpServer *http.Server
	host       *httphost.Host
	plugin     *mediator.Plugin
	dispatcher *dispatch.Dispatcher
	engineMgr  *enginemgr.Manager
	control    *enginemgr.ControlChannel
	limitsMgr  *limits.Manager
	collector  *metrics.Collector
	evidence   *recorder.Recorder
	evStore    evidence.Storage

	shutdownChan chan struct{}
	shutdownOnce sync.Once
	mu           sync.RWMutex
	isRunning    bool
}

// slogf bridges slog onto the printf-style logger the engine manager and
// dispatcher expect.
type slogf struct {
	l *slog.Logger
}

func (s slogf) Errorf(format string, args ...any) { s.l.Error(fmt.Sprintf(format, args...)) }
func (s slogf) Infof(format string, args ...any)  { s.l.Info(fmt.Sprintf(format, args...)) }
func (s slogf) Debugf(format string, args ...any) { s.l.Debug(fmt.Sprintf(format, args...)) }

// limitsChecker adapts the limits manager to the policy engine's
// rate_limit action.
type limitsChecker struct {
	m *limits.Manager
}

func (c limitsChecker) Allow(ctx context.Context, identifier string) (bool, error) {
	result, err := c.m.CheckLimits(ctx, identifier, 0)
	if err != nil {
		return true, err
	}
	return result.Allowed, nil
}

// NewServer wires the gateway from configuration. The engine config at
// cfg.Engine.ConfigPath is loaded as the first engine generation; when
// that fails and PermitBeforeReady is off, construction fails.
func NewServer(cfg *config.Config) (*Server, error) {
	logger := slog.Default()

	upstream, err := url.Parse(cfg.Engine.UpstreamURL)
	if err != nil {
		return nil, fmt.Errorf("invalid upstream URL %q: %w", cfg.Engine.UpstreamURL, err)
	}

	// API keys in the auth config may be ${secret:...} references;
	// resolve them through the secret providers so key material never
	// sits in the config tree.
	if cfg.Security.Authentication.Enabled {
		sec, err := secrets.NewManagerFromConfig(&cfg.Security.Secrets)
		if err != nil {
			return nil, fmt.Errorf("secret manager: %w", err)
		}
		for i, key := range cfg.Security.Authentication.Keys {
			resolved, err := sec.ResolveReferences(context.Background(), key.Key)
			if err != nil {
				return nil, fmt.Errorf("resolve api key %d: %w", i, err)
			}
			cfg.Security.Authentication.Keys[i].Key = resolved
		}
	}

	// The evidence recorder persists one audit record per transaction;
	// the engine adapter feeds it.
	var evStore evidence.Storage
	var rec *recorder.Recorder
	if cfg.Evidence.Enabled {
		switch cfg.Evidence.Backend {
		case "memory":
			evStore = evidencestorage.NewMemoryStorage()
		default:
			store, err := evidencestorage.NewSQLiteStorage(&evidencestorage.SQLiteConfig{
				Path:         cfg.Evidence.SQLite.Path,
				MaxOpenConns: cfg.Evidence.SQLite.MaxOpenConns,
				MaxIdleConns: cfg.Evidence.SQLite.MaxIdleConns,
				WALMode:      cfg.Evidence.SQLite.WALMode,
				BusyTimeout:  cfg.Evidence.SQLite.BusyTimeout,
			})
			if err != nil {
				return nil, fmt.Errorf("evidence storage: %w", err)
			}
			evStore = store
		}
		rec = recorder.NewRecorder(evStore, &recorder.Config{
			Enabled:        true,
			AsyncBuffer:    cfg.Evidence.Recorder.AsyncBuffer,
			WriteTimeout:   cfg.Evidence.Recorder.WriteTimeout,
			HashRequest:    cfg.Evidence.Recorder.HashRequest,
			HashResponse:   cfg.Evidence.Recorder.HashResponse,
			RedactAPIKeys:  cfg.Evidence.Recorder.RedactAPIKeys,
			MaxFieldLength: cfg.Evidence.Recorder.MaxFieldLength,
		})
	}

	engineMgr := enginemgr.New(policy.Factory(cfg, rec, logger), cfg.Engine.MaxConcurrent, slogf{logger})
	if err := engineMgr.Create(cfg.Engine.ConfigPath); err != nil {
		if !cfg.Engine.PermitBeforeReady {
			return nil, fmt.Errorf("initial engine load failed: %w", err)
		}
		logger.Warn("initial engine load failed, traffic flows unchecked until a reload succeeds",
			"path", cfg.Engine.ConfigPath, "error", err)
	}

	dispatcher := dispatch.New(cfg.Dispatch.Workers, slogf{logger})

	plugin := mediator.New(mediator.Config{
		Manager:           engineMgr,
		Dispatcher:        dispatcher,
		Logger:            logger,
		Blocking:          cfg.Engine.Blocking,
		RendezvousTimeout: cfg.Dispatch.RendezvousTimeout,
		EngineConfigPath:  cfg.Engine.ConfigPath,
	})

	host := httphost.New(upstream, nil, logger)
	host.Register(plugin)

	limitsMgr, err := middleware.NewLimitsManagerFromConfig(&cfg.Limits)
	if err != nil {
		return nil, fmt.Errorf("limits manager: %w", err)
	}
	engine.SetRateLimitChecker(limitsChecker{limitsMgr})

	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)

	s := &Server{
		config:       cfg,
		host:         host,
		plugin:       plugin,
		dispatcher:   dispatcher,
		engineMgr:    engineMgr,
		limitsMgr:    limitsMgr,
		collector:    collector,
		evidence:     rec,
		evStore:      evStore,
		shutdownChan: make(chan struct{}),
	}

	// The control channel maps manager-directed updates (here: config
	// file changes) onto engine reloads.
	control, err := enginemgr.NewControlChannel(
		engineMgr,
		cfg.Engine.ControlPollSchedule,
		s.pollEngineConfig(cfg.Engine.ConfigPath),
		slogf{logger},
	)
	if err != nil {
		return nil, err
	}
	s.control = control

	return s, nil
}

// pollEngineConfig reports a reload when the engine config file's
// modification time moves.
func (s *Server) pollEngineConfig(path string) func() (string, bool) {
	var lastMod int64
	return func() (string, bool) {
		info, err := os.Stat(path)
		if err != nil {
			return path, false
		}
		mod := info.ModTime().UnixNano()
		if lastMod == 0 {
			lastMod = mod
			return path, false
		}
		if mod != lastMod {
			lastMod = mod
			return path, true
		}
		return path, false
	}
}

// Start starts the HTTP server and blocks until shutdown.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return fmt.Errorf("server is already running")
	}
	s.isRunning = true
	s.mu.Unlock()

	handler := s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:           s.config.Proxy.ListenAddress,
		Handler:        handler,
		ReadTimeout:    s.config.Proxy.ReadTimeout,
		WriteTimeout:   s.config.Proxy.WriteTimeout,
		IdleTimeout:    s.config.Proxy.IdleTimeout,
		MaxHeaderBytes: s.config.Proxy.MaxHeaderBytes,
		// Sessions are derived from connections: the host needs to see
		// every accept and close.
		ConnContext: s.host.ConnContext,
		ConnState:   s.host.ConnState,
	}

	if s.config.Security.TLS.Enabled {
		tlsConfig, err := s.configureTLS()
		if err != nil {
			return fmt.Errorf("failed to configure TLS: %w", err)
		}
		s.httpServer.TLSConfig = tlsConfig
	}

	s.control.Start()

	errChan := make(chan error, 1)
	go func() {
		slog.Info("starting gateway",
			"address", s.config.Proxy.ListenAddress,
			"upstream", s.config.Engine.UpstreamURL,
			"tls_enabled", s.config.Security.TLS.Enabled,
		)

		var err error
		if s.config.Security.TLS.Enabled {
			err = s.httpServer.ListenAndServeTLS(
				s.config.Security.TLS.CertFile,
				s.config.Security.TLS.KeyFile,
			)
		} else {
			err = s.httpServer.ListenAndServe()
		}

		if err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-ctx.Done():
		slog.Info("context cancelled, initiating shutdown")
		return s.Shutdown(context.Background())
	case sig := <-sigChan:
		slog.Info("received shutdown signal", "signal", sig.String())
		return s.Shutdown(context.Background())
	case err := <-errChan:
		return err
	case <-s.shutdownChan:
		slog.Info("shutdown requested")
		return s.Shutdown(context.Background())
	}
}

// Shutdown gracefully shuts down the gateway: stop accepting, drain
// in-flight exchanges, stop the control channel, drain the dispatcher,
// then close every engine generation.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.mu.Lock()
		if !s.isRunning {
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()

		slog.Info("initiating graceful shutdown", "timeout", s.config.Proxy.ShutdownTimeout.String())

		shutdownCtx, cancel := context.WithTimeout(ctx, s.config.Proxy.ShutdownTimeout)
		defer cancel()

		if s.httpServer != nil {
			if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
				slog.Error("error during server shutdown", "error", err)
				shutdownErr = fmt.Errorf("server shutdown error: %w", err)
			}
		}

		s.control.Stop()
		s.dispatcher.Close()
		s.engineMgr.Shutdown()
		if s.evidence != nil {
			if err := s.evidence.Close(); err != nil {
				slog.Error("error closing evidence recorder", "error", err)
			}
		}
		if s.evStore != nil {
			if err := s.evStore.Close(); err != nil {
				slog.Error("error closing evidence storage", "error", err)
			}
		}
		if err := s.limitsMgr.Close(); err != nil {
			slog.Error("error closing limits manager", "error", err)
		}

		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()

		slog.Info("gateway stopped")
	})

	return shutdownErr
}

// setupRoutes configures HTTP routes and middleware chain.
func (s *Server) setupRoutes() http.Handler {
	mux := http.NewServeMux()

	// Operational endpoints stay outside the mediation pipeline. The
	// readiness probe reports unready until an engine generation loads,
	// unless unchecked traffic is explicitly permitted.
	checkTimeout := s.config.Telemetry.Health.CheckTimeout
	if checkTimeout <= 0 {
		checkTimeout = 5 * time.Second
	}
	checker := health.New(checkTimeout)
	checker.RegisterCheck("engine", func(ctx context.Context) error {
		return s.Health()
	})

	livenessPath := s.config.Telemetry.Health.LivenessPath
	if livenessPath == "" {
		livenessPath = "/healthz"
	}
	readinessPath := s.config.Telemetry.Health.ReadinessPath
	if readinessPath == "" {
		readinessPath = "/readyz"
	}
	mux.HandleFunc(livenessPath, checker.LivenessHandler())
	mux.HandleFunc(readinessPath, checker.ReadinessHandler())

	if s.config.Telemetry.Metrics.Enabled {
		mux.Handle(s.config.Telemetry.Metrics.Path, s.collector.Handler())
	}

	// Everything else is inspected traffic toward the origin.
	mux.Handle("/", s.host)

	var handler http.Handler = mux

	// Timeout middleware
	handler = middleware.TimeoutMiddleware(s.config.Proxy.WriteTimeout)(handler)

	// CORS middleware
	corsConfig := s.convertCORSConfig()
	handler = middleware.CORSMiddleware(corsConfig)(handler)

	// Limits middleware rejects over-quota clients before the mediation
	// pipeline spends any work on them.
	handler = middleware.LimitsMiddleware(s.limitsMgr)(handler)

	// API key authentication, when configured.
	if s.config.Security.Authentication.Enabled {
		handler = s.authMiddleware().Handle(handler)
	}

	// Request ID middleware
	handler = middleware.RequestIDMiddleware(handler)

	// Logging middleware
	handler = middleware.LoggingMiddleware(handler)

	// Recovery middleware (outermost)
	handler = middleware.RecoveryMiddleware(handler)

	return handler
}

// configureTLS builds the listener's TLS configuration, with hot
// certificate reload.
func (s *Server) configureTLS() (*tls.Config, error) {
	secCfg := &securitytls.Config{
		Enabled:        true,
		CertFile:       s.config.Security.TLS.CertFile,
		KeyFile:        s.config.Security.TLS.KeyFile,
		MinVersion:     s.config.Security.TLS.MinVersion,
		ReloadInterval: s.config.Security.TLS.ReloadInterval,
		MTLS: securitytls.MTLSConfig{
			Enabled:          s.config.Security.TLS.MTLS.Enabled,
			ClientCAFile:     s.config.Security.TLS.MTLS.ClientCAFile,
			ClientAuthType:   s.config.Security.TLS.MTLS.ClientAuthType,
			VerifyClientCert: s.config.Security.TLS.MTLS.VerifyClientCert,
			IdentitySource:   s.config.Security.TLS.MTLS.IdentitySource,
		},
	}

	tlsConfig, err := secCfg.ToTLSConfig()
	if err != nil {
		return nil, err
	}

	// Hot-reload the certificate so rotations don't need a restart.
	reloader := securitytls.NewCertificateReloader(
		s.config.Security.TLS.CertFile,
		s.config.Security.TLS.KeyFile,
		secCfg.ParseReloadInterval(),
	)
	if err := reloader.Start(context.Background()); err != nil {
		return nil, fmt.Errorf("certificate reloader: %w", err)
	}
	tlsConfig.GetCertificate = reloader.GetCertificateFunc()
	tlsConfig.Certificates = nil

	return tlsConfig, nil
}

// IsRunning returns true if the server is running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Handler returns the configured HTTP handler (for tests).
func (s *Server) Handler() http.Handler {
	return s.setupRoutes()
}

// ControlUpdate forwards a manager-directed update to the mediation
// plugin, reloading the engine configuration.
func (s *Server) ControlUpdate() {
	s.host.ControlUpdate()
}

// Health reports readiness: an engine generation must be loaded unless
// unchecked traffic is explicitly permitted.
func (s *Server) Health() error {
	if s.engineMgr.Generations() == 0 && !s.config.Engine.PermitBeforeReady {
		return fmt.Errorf("no engine generation loaded")
	}
	return nil
}

// authMiddleware builds the API key middleware from configuration.
func (s *Server) authMiddleware() *auth.APIKeyMiddleware {
	authCfg := s.config.Security.Authentication

	keys := make([]*auth.APIKeyInfo, 0, len(authCfg.Keys))
	for _, k := range authCfg.Keys {
		keys = append(keys, &auth.APIKeyInfo{
			Key:       k.Key,
			UserID:    k.UserID,
			TeamID:    k.TeamID,
			Enabled:   k.Enabled,
			RateLimit: k.RateLimit,
		})
	}

	sources := make([]auth.APIKeySource, 0, len(authCfg.Sources))
	for _, src := range authCfg.Sources {
		sources = append(sources, auth.APIKeySource{
			Type:   src.Type,
			Name:   src.Name,
			Scheme: src.Scheme,
		})
	}

	return auth.NewAPIKeyMiddleware(auth.NewAPIKeyValidator(keys), sources)
}

// convertCORSConfig converts config.CORSConfig to middleware.CORSConfig.
func (s *Server) convertCORSConfig() *middleware.CORSConfig {
	return &middleware.CORSConfig{
		Enabled:          s.config.Proxy.CORS.Enabled,
		AllowedOrigins:   s.config.Proxy.CORS.AllowedOrigins,
		AllowedMethods:   s.config.Proxy.CORS.AllowedMethods,
		AllowedHeaders:   s.config.Proxy.CORS.AllowedHeaders,
		ExposedHeaders:   s.config.Proxy.CORS.ExposedHeaders,
		MaxAge:           s.config.Proxy.CORS.MaxAge,
		AllowCredentials: s.config.Proxy.CORS.AllowCredentials,
	}
}
