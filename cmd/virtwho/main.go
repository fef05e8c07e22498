package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cuemby/virtwho/pkg/config"
	"github.com/cuemby/virtwho/pkg/executor"
	"github.com/cuemby/virtwho/pkg/log"
	"github.com/cuemby/virtwho/pkg/metrics"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "virtwho",
	Short: "virt-who collects hypervisor/guest associations and reports them to a subscription manager",
	Long: `virt-who polls one or more virtualization sources (libvirt, ESX, XenServer,
RHEV-M, VDSM, Hyper-V) for the hypervisors and guests they host, and
submits the resulting host/guest associations to one or more
subscription-management destinations.`,
	Version: Version,
	RunE:    runAgent,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"virtwho version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("config", "", "Path to the YAML configuration file")
	rootCmd.PersistentFlags().Int("interval", 0, "Default polling interval in seconds (0 = use config/default)")
	rootCmd.PersistentFlags().Bool("oneshot", false, "Run exactly one cycle per source and destination, then exit")
	rootCmd.PersistentFlags().Bool("print", false, "Gather reports but do not submit them to any destination")
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().Bool("background", false, "Suppress console logging (for daemonized runs)")
	rootCmd.PersistentFlags().String("reporter-id", "", "Stable identifier attached to every submission")
	rootCmd.PersistentFlags().String("metrics-addr", "", "Address to serve Prometheus metrics on, e.g. :9090 (empty disables)")

	cobra.OnInitialize(initLogging)
}

func initLogging() {
	debug, _ := rootCmd.PersistentFlags().GetBool("debug")
	background, _ := rootCmd.PersistentFlags().GetBool("background")
	log.Init(log.Config{
		Level:      levelFor(debug),
		JSONOutput: background,
	})
}

func levelFor(debug bool) log.Level {
	if debug {
		return log.DebugLevel
	}
	return log.InfoLevel
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")

	var overrides config.Overrides
	if cmd.Flags().Changed("interval") {
		v, _ := cmd.Flags().GetInt("interval")
		if v != 0 {
			overrides.Interval = &v
		}
	}
	if cmd.Flags().Changed("oneshot") {
		v, _ := cmd.Flags().GetBool("oneshot")
		overrides.OneShot = &v
	}
	if cmd.Flags().Changed("print") {
		v, _ := cmd.Flags().GetBool("print")
		overrides.Print = &v
	}
	if cmd.Flags().Changed("debug") {
		v, _ := cmd.Flags().GetBool("debug")
		overrides.Debug = &v
	}
	if cmd.Flags().Changed("background") {
		v, _ := cmd.Flags().GetBool("background")
		overrides.Background = &v
	}
	if cmd.Flags().Changed("reporter-id") {
		v, _ := cmd.Flags().GetString("reporter-id")
		overrides.ReporterID = &v
	}
	if cmd.Flags().Changed("metrics-addr") {
		v, _ := cmd.Flags().GetString("metrics-addr")
		overrides.MetricsAddr = &v
	}

	return config.Load(path, overrides)
}

func runAgent(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := log.Logger
	logger.Info().
		Int("sources", len(cfg.Sources)).
		Int("destinations", len(cfg.Destinations)).
		Bool("oneshot", cfg.OneShot).
		Msg("starting virt-who")

	exec := executor.New(cfg, logger, nil)

	sampler := metrics.NewSampler(exec.SourceCount, exec.DestCount)
	sampler.Start()
	defer sampler.Stop()

	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error().Err(err).Msg("metrics server failed")
			}
		}()
		defer srv.Close()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var watcher *config.Watcher
	if cfg.ConfigPath != "" {
		watcher, err = config.NewWatcher(cfg.ConfigPath, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("failed to start config watcher, SIGHUP-only reload available")
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	runErr := make(chan error, 1)
	go func() { runErr <- exec.Run(ctx) }()

	for {
		select {
		case err := <-runErr:
			if watcher != nil {
				watcher.Close()
			}
			return err

		case sig := <-sigCh:
			switch sig {
			case syscall.SIGHUP:
				logger.Info().Msg("SIGHUP received, reloading configuration")
				reloadExecutor(cmd, exec)
			default:
				logger.Info().Str("signal", sig.String()).Msg("shutdown signal received")
				exec.Shutdown(shutdownMaxWait)
				cancel()
			}

		case <-watcherReloads(watcher):
			logger.Info().Msg("configuration file changed, reloading")
			reloadExecutor(cmd, exec)
		}
	}
}

// watcherReloads returns w.Reloads, or a nil channel (which blocks
// forever in a select) when there is no watcher running.
func watcherReloads(w *config.Watcher) chan struct{} {
	if w == nil {
		return nil
	}
	return w.Reloads
}

// shutdownMaxWait bounds how long Shutdown waits for workers to
// terminate on their own before forcibly stopping the stragglers.
const shutdownMaxWait = 10 * time.Second

// reloadExecutor re-resolves configuration (file + env + the flags this
// invocation was started with) and hands the fresh config.Config to the
// running Executor, which terminates the in-flight worker set and
// rebuilds it from the new configuration immediately.
func reloadExecutor(cmd *cobra.Command, exec *executor.Executor) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		log.Logger.Error().Err(err).Msg("reload failed, keeping previous configuration")
		return
	}
	exec.Reload(cfg)
}
