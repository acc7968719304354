package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/tnez/RRF-Loop/internal/host"
	"github.com/tnez/RRF-Loop/internal/trial"
	"github.com/tnez/RRF-Loop/pkg/auth"
	"github.com/tnez/RRF-Loop/pkg/config"
	"github.com/tnez/RRF-Loop/pkg/loop"
	"github.com/tnez/RRF-Loop/pkg/metrics"
	"github.com/tnez/RRF-Loop/pkg/middleware"
	"github.com/tnez/RRF-Loop/pkg/models"
	"github.com/tnez/RRF-Loop/pkg/retry"
	"github.com/tnez/RRF-Loop/pkg/shutdown"
	"github.com/tnez/RRF-Loop/pkg/store"
	"github.com/tnez/RRF-Loop/pkg/tls"
	"github.com/tnez/RRF-Loop/pkg/tracing"
)

// Version is stamped at build time
var Version = "dev"

var (
	runFresh       bool
	runMaxTrials   int
	runMaxFailures int
	runMetricsAddr string
	runDumpMetrics bool
	runManifest    string
	runTLS         tls.ServerConfig
)

var runCmd = &cobra.Command{
	Use:   "run [-- trial-command args...]",
	Short: "Run the loop component until it takes the overrun branch",
	Long: `Configures the loop component, resumes an interrupted session when the raw
data file holds one (or starts a fresh session), then runs trials until the run
count exceeds the target. Each hand-back is recorded to the outcome store.

Arguments after -- replace trial_command from the config file.`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().BoolVar(&runFresh, "fresh", false, "archive an interrupted session and start over")
	runCmd.Flags().IntVar(&runMaxTrials, "max-trials", 0, "stop and complete the session after this many trials (0 = until overrun)")
	runCmd.Flags().IntVar(&runMaxFailures, "max-failures", 3, "stop after this many consecutive failed trials (0 = never)")
	runCmd.Flags().StringVar(&runMetricsAddr, "metrics-addr", "", "serve /metrics, /status and /health on this address, e.g. :9464")
	runCmd.Flags().BoolVar(&runDumpMetrics, "dump-metrics", false, "print metrics in Prometheus text format when the run ends")
	runCmd.Flags().StringVar(&runManifest, "manifest", "", "session manifest to take the jump table from")
	runCmd.Flags().StringVar(&runTLS.CertFile, "tls-cert", "", "serve the status endpoint over TLS with this certificate")
	runCmd.Flags().StringVar(&runTLS.KeyFile, "tls-key", "", "private key for --tls-cert")
	runCmd.Flags().StringVar(&runTLS.ClientCAFile, "tls-client-ca", "", "require client certificates signed by this CA")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Close()

	mgr := shutdown.New(context.Background(), 10*time.Second, logger)
	mgr.WatchSignals()
	defer mgr.Shutdown()

	tp, err := tracing.InitTracer(tracing.Config{
		ServiceName:    "rrfloop",
		ServiceVersion: Version,
		Environment:    cfg.Tracing.Environment,
		OTLPEndpoint:   cfg.Tracing.Endpoint,
		Enabled:        cfg.Tracing.Enabled,
	}, logger)
	if err != nil {
		return err
	}
	mgr.Register("tracing", tp.Shutdown)

	retryCfg := retry.DefaultConfig()
	retryCfg.OnRetry = func(attempt int, err error, wait time.Duration) {
		logger.Warn("Store not available, retrying", map[string]interface{}{
			"attempt": attempt,
			"wait":    wait.String(),
			"error":   err.Error(),
		})
	}
	outcomes, err := store.NewStore(mgr.Context(), cfg.Store, retryCfg)
	if err != nil {
		return fmt.Errorf("failed to open outcome store: %w", err)
	}
	mgr.Register("store", shutdown.CloseResource(outcomes))

	jumps, err := resolveJumps(cfg)
	if err != nil {
		return err
	}

	m := metrics.NewComponentMetrics()
	opts := []loop.Option{
		loop.WithLogger(logger),
		loop.WithMetrics(m),
		loop.WithOptions(cfg.LoopOptions()),
	}

	argv := cfg.TrialCommand
	if len(args) > 0 {
		argv = args
	}
	if len(argv) > 0 {
		tc, err := trial.NewCommand(argv)
		if err != nil {
			return err
		}
		opts = append(opts, loop.WithTrial(tc.Func()))
	}

	runner := host.NewRunner(loop.NewController(opts...), jumps, outcomes, logger, host.Options{
		MaxTrials:              runMaxTrials,
		MaxConsecutiveFailures: runMaxFailures,
		Fresh:                  runFresh,
	})
	mgr.Register("component", func(context.Context) error { return runner.Close() })

	if runMetricsAddr != "" {
		router := host.NewStatusRouter(runner, m.Registry())
		router.Use(middleware.RequestLogger(logger))
		if cfg.Status.Token != "" {
			key, err := auth.NewAPIKey(cfg.Status.Token)
			if err != nil {
				return err
			}
			router.Use(middleware.BearerAuth(key, "/health"))
		}
		server := host.NewStatusServer(runMetricsAddr, router)
		if runTLS.Enabled() {
			tlsConfig, err := tls.LoadServerConfig(runTLS)
			if err != nil {
				return fmt.Errorf("failed to load status endpoint TLS: %w", err)
			}
			server.TLSConfig = tlsConfig
		}
		go func() {
			logger.Info("Status endpoint listening", map[string]interface{}{
				"addr": runMetricsAddr,
				"tls":  server.TLSConfig != nil,
				"auth": cfg.Status.Token != "",
			})
			var err error
			if server.TLSConfig != nil {
				err = server.ListenAndServeTLS("", "")
			} else {
				err = server.ListenAndServe()
			}
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Status server error", map[string]interface{}{"error": err.Error()})
			}
		}()
		mgr.Register("status server", shutdown.StopHTTPServer(server))
	}

	resumed, err := runner.Start(cfg.Definition())
	if err != nil {
		return err
	}
	if resumed {
		fmt.Fprintf(cmd.OutOrStdout(), "Resumed interrupted session at run %d\n", runner.Status().RunCount)
	}

	last, runErr := runner.Run(mgr.Context())
	if err := printOutcome(cmd, runner.Status(), last); err != nil {
		return err
	}
	if runDumpMetrics {
		if err := m.WriteText(cmd.OutOrStdout()); err != nil {
			return fmt.Errorf("failed to write metrics: %w", err)
		}
	}
	if errors.Is(runErr, context.Canceled) {
		fmt.Fprintln(cmd.OutOrStdout(), "Interrupted; run again to resume the session")
		return nil
	}
	return runErr
}

func resolveJumps(cfg *config.Config) ([]string, error) {
	if runManifest == "" {
		return cfg.Jumps, nil
	}
	manifest, err := config.LoadManifest(runManifest)
	if err != nil {
		return nil, err
	}
	jumps, ok := manifest.Jumps(cfg.TaskName)
	if !ok {
		return nil, fmt.Errorf("manifest has no component named %q", cfg.TaskName)
	}
	return jumps, nil
}

func printOutcome(cmd *cobra.Command, status host.Status, last *models.Outcome) error {
	out := cmd.OutOrStdout()
	if IsJSONOutput() {
		return printJSON(out, map[string]interface{}{"status": status, "last_outcome": last})
	}

	fmt.Fprintf(out, "Task:          %s\n", status.Task)
	fmt.Fprintf(out, "Session:       %s\n", status.SessionID)
	fmt.Fprintf(out, "State:         %s\n", status.State)
	fmt.Fprintf(out, "Runs:          %d\n", status.RunCount)
	if status.BranchIndex != nil {
		fmt.Fprintf(out, "Branch index:  %d\n", *status.BranchIndex)
	}
	if status.NextJump != "" {
		fmt.Fprintf(out, "Next:          %s\n", status.NextJump)
	}
	if len(status.Errors) > 0 {
		fmt.Fprintf(out, "Errors:        %d\n", len(status.Errors))
		for _, e := range status.Errors {
			fmt.Fprintf(out, "  - %s\n", e)
		}
	}
	return nil
}
