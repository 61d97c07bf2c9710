package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/mercator-hq/warden/pkg/cli"
	"github.com/mercator-hq/warden/pkg/config"
	"github.com/mercator-hq/warden/pkg/server"
)

var runFlags struct {
	listenAddress     string
	disableLogging    bool
	logPath           string
	verbosity         string
	maxEngines        int
	txLogPath         string
	permitBeforeReady bool
	dryRun            bool
}

var runCmd = &cobra.Command{
	Use:   "run [engine-config]",
	Short: "Start the gateway",
	Long: `Start the gateway with the specified configuration.

The gateway listens on the configured address and runs every exchange
through the rules engine loaded from the engine config file. The engine
config path may be given as a positional argument or in the gateway
configuration under engine.config_path.

Examples:
  # Start with the engine config as positional argument
  wardenctl run rules.yaml

  # Start with a custom gateway config
  wardenctl run --config /etc/warden/warden.yaml rules.yaml

  # Let traffic through unchecked until the first engine loads
  wardenctl run -0 rules.yaml

  # Validate config without starting the gateway
  wardenctl run --dry-run rules.yaml`,
	Args: cobra.MaximumNArgs(1),
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&runFlags.listenAddress, "listen", "", "override listen address")
	runCmd.Flags().BoolVarP(&runFlags.disableLogging, "no-log", "L", false, "disable logging")
	runCmd.Flags().StringVarP(&runFlags.logPath, "log", "l", "", "log file path (default stdout)")
	runCmd.Flags().StringVarP(&runFlags.verbosity, "verbosity", "v", "", "log verbosity (debug, info, warn, error)")
	runCmd.Flags().IntVarP(&runFlags.maxEngines, "max-engines", "m", 0, "max concurrent engine references (0 = unlimited)")
	runCmd.Flags().StringVarP(&runFlags.txLogPath, "txlog", "x", "", "transaction log (evidence) path")
	runCmd.Flags().BoolVarP(&runFlags.permitBeforeReady, "permit-before-ready", "0", false, "permit traffic through unchecked before the first engine is ready")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config without starting the gateway")
}

func runServer(cmd *cobra.Command, args []string) error {
	// Load configuration
	if err := config.Initialize(cfgFile); err != nil {
		return cli.NewConfigError("", fmt.Sprintf("failed to load config: %v", err))
	}
	cfg := config.GetConfig()

	// Apply flag overrides
	if len(args) == 1 {
		cfg.Engine.ConfigPath = args[0]
	}
	if runFlags.listenAddress != "" {
		cfg.Proxy.ListenAddress = runFlags.listenAddress
	}
	if runFlags.verbosity != "" {
		cfg.Telemetry.Logging.Level = runFlags.verbosity
	}
	if runFlags.maxEngines > 0 {
		cfg.Engine.MaxConcurrent = runFlags.maxEngines
	}
	if runFlags.txLogPath != "" {
		cfg.Evidence.SQLite.Path = runFlags.txLogPath
	}
	if runFlags.permitBeforeReady {
		cfg.Engine.PermitBeforeReady = true
	}

	if cfg.Engine.ConfigPath == "" {
		return cli.NewConfigError("engine.config_path", "engine config path is required (positional argument or config file)")
	}

	// Initialize logging based on config and flags
	var logLevel slog.Level
	switch cfg.Telemetry.Logging.Level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn", "warning":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelWarn
	}

	var logSink io.Writer = os.Stdout
	if runFlags.disableLogging {
		logSink = io.Discard
	} else if runFlags.logPath != "" {
		f, err := os.OpenFile(runFlags.logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return cli.NewConfigError("log", fmt.Sprintf("cannot open log file: %v", err))
		}
		defer f.Close()
		logSink = f
	}

	logger := slog.New(slog.NewJSONHandler(logSink, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	if runFlags.dryRun {
		fmt.Println("✓ Configuration valid")
		return nil
	}

	// Print startup banner
	printBanner(cfg)

	// Create the gateway
	srv, err := server.NewServer(cfg)
	if err != nil {
		return cli.NewCommandError("run", err)
	}

	fmt.Println()
	fmt.Printf("✓ Gateway listening on %s\n", cfg.Proxy.ListenAddress)
	fmt.Printf("✓ Forwarding to %s\n", cfg.Engine.UpstreamURL)
	fmt.Printf("✓ Health endpoint: http://%s/healthz\n", cfg.Proxy.ListenAddress)
	if cfg.Telemetry.Metrics.Enabled {
		fmt.Printf("✓ Metrics endpoint: http://%s%s\n", cfg.Proxy.ListenAddress, cfg.Telemetry.Metrics.Path)
	}
	fmt.Println("\nPress Ctrl+C to stop")

	// Start blocks until a signal or fatal error; it handles graceful
	// shutdown internally.
	if err := srv.Start(context.Background()); err != nil {
		return cli.NewCommandError("run", err)
	}

	fmt.Println("✓ Gateway stopped")
	return nil
}

func printBanner(cfg *config.Config) {
	fmt.Printf("Warden v%s\n", Version)
	fmt.Printf("Loading configuration from: %s\n", cfgFile)
	fmt.Println("✓ Configuration loaded")

	slog.Debug("engine config", "path", cfg.Engine.ConfigPath, "blocking", cfg.Engine.Blocking)

	// Policy info
	if cfg.Policy.Mode == "file" {
		slog.Debug("policy mode", "mode", "file", "path", cfg.Policy.FilePath)
	} else if cfg.Policy.Mode == "git" {
		slog.Debug("policy mode", "mode", "git")
	}

	// Evidence info
	if cfg.Evidence.Enabled {
		slog.Debug("evidence enabled", "backend", cfg.Evidence.Backend)
	}
}
