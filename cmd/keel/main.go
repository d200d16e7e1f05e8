package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuemby/keel/pkg/acceptor"
	"github.com/cuemby/keel/pkg/backend"
	"github.com/cuemby/keel/pkg/config"
	"github.com/cuemby/keel/pkg/engine"
	"github.com/cuemby/keel/pkg/log"
	"github.com/cuemby/keel/pkg/metrics"
	"github.com/cuemby/keel/pkg/registry"
	"github.com/spf13/cobra"
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
	Use:   "keel",
	Short: "keel - a partitioned apply engine for consensus-committed logs",
	Long: `keel runs one serialized apply engine per (table, partition): it
accepts committed log records in order, dispatches them against a
pluggable storage backend, and manages point-in-time snapshots of that
backend's state.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"keel version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(snapshotCmd)
	rootCmd.AddCommand(applyCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}

// openEngine loads cfg from path, constructs the default Bolt-backed,
// in-memory-queue engine, and opens it. Callers start its worker loop.
func openEngine(path string) (*engine.Engine, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	e := engine.New(cfg, backend.NewBoltBackend(), registry.New(), acceptor.NewInMemoryQueue())
	if err := e.Open(); err != nil {
		return nil, fmt.Errorf("open engine: %w", err)
	}
	return e, nil
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one apply engine instance, serving metrics and health endpoints",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfgPath, _ := cmd.Flags().GetString("config")
		metricsAddr, _ := cmd.Flags().GetString("metrics-addr")

		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		q := acceptor.NewInMemoryQueue()
		e := engine.New(cfg, backend.NewBoltBackend(), registry.New(), q)
		if err := e.Open(); err != nil {
			return fmt.Errorf("open engine: %w", err)
		}

		ctx, cancel := signalContext()
		defer cancel()
		e.Start(ctx)
		e.StartMetricsCollector(ctx, 15*time.Second)

		metrics.SetVersion(Version)
		metrics.RegisterComponent("engine", true, "ready")
		metrics.RegisterComponent("backend", true, "ready")

		go func() {
			http.Handle("/metrics", metrics.Handler())
			http.Handle("/health", metrics.HealthHandler())
			http.Handle("/ready", metrics.ReadyHandler())
			http.Handle("/live", metrics.LivenessHandler())
			if err := http.ListenAndServe(metricsAddr, nil); err != nil {
				fmt.Fprintf(os.Stderr, "metrics server error: %v\n", err)
			}
		}()
		fmt.Printf("keel running for %s/%d, metrics at http://%s/metrics\n", cfg.Table, cfg.Partition, metricsAddr)

		<-ctx.Done()
		if cerr := e.Terminate(); cerr != nil {
			fmt.Printf("error closing backend: %v\n", cerr)
		}
		if termErr := e.TerminationError(); termErr != nil {
			fmt.Printf("shutting down: %v\n", termErr)
		} else {
			fmt.Println("shutting down...")
		}
		return nil
	},
}

func init() {
	runCmd.Flags().StringP("config", "c", "", "Path to engine config YAML (required)")
	runCmd.Flags().String("metrics-addr", "127.0.0.1:9090", "Address to serve /metrics, /health, /ready, /live")
	_ = runCmd.MarkFlagRequired("config")
}

// signalContext returns a context cancelled on SIGINT/SIGTERM, for the
// long-running run command.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// backgroundContext is used by the one-shot subcommands (status,
// snapshot, apply): the engine's worker loop only needs to run for the
// duration of a single synchronous call, so there is nothing to cancel
// on a signal.
func backgroundContext() (context.Context, context.CancelFunc) {
	return context.WithCancel(context.Background())
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Open the backend and print its current status and position",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfgPath, _ := cmd.Flags().GetString("config")
		e, err := openEngine(cfgPath)
		if err != nil {
			return err
		}

		ctx, cancel := backgroundContext()
		e.Start(ctx)
		defer cancel()
		defer func() { _ = e.Terminate() }()

		report, err := e.Status()
		if err != nil {
			return fmt.Errorf("status: %w", err)
		}

		fmt.Printf("Name:         %s\n", report.Name)
		fmt.Printf("Table:        %s\n", report.Table)
		fmt.Printf("Partition:    %d\n", report.Partition)
		fmt.Printf("State:        %s\n", report.State)
		fmt.Printf("LastApplied:  %s\n", report.LastApplied)
		for _, entry := range report.Backend {
			fmt.Printf("  %s: %s\n", entry.Key, entry.Value)
		}
		return nil
	},
}

func init() {
	statusCmd.Flags().StringP("config", "c", "", "Path to engine config YAML (required)")
	_ = statusCmd.MarkFlagRequired("config")
}

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Manage backend snapshots",
}

var snapshotCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a snapshot of the backend's current state",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfgPath, _ := cmd.Flags().GetString("config")
		e, err := openEngine(cfgPath)
		if err != nil {
			return err
		}
		ctx, cancel := backgroundContext()
		e.Start(ctx)
		defer cancel()
		defer func() { _ = e.Terminate() }()

		entry, err := e.CreateSnapshot()
		if err != nil {
			return fmt.Errorf("create snapshot: %w", err)
		}
		fmt.Printf("snapshot created: %s (%s)\n", entry.Name, entry.Position)
		return nil
	},
}

var snapshotListCmd = &cobra.Command{
	Use:   "list",
	Short: "List snapshot directories",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfgPath, _ := cmd.Flags().GetString("config")
		e, err := openEngine(cfgPath)
		if err != nil {
			return err
		}
		ctx, cancel := backgroundContext()
		e.Start(ctx)
		defer cancel()
		defer func() { _ = e.Terminate() }()

		entries, err := e.ListSnapshots()
		if err != nil {
			return fmt.Errorf("list snapshots: %w", err)
		}
		if len(entries) == 0 {
			fmt.Println("no snapshots found")
			return nil
		}
		for _, entry := range entries {
			fmt.Printf("%s\t%s\n", entry.Name, entry.Position)
		}
		return nil
	},
}

var snapshotDeleteCmd = &cobra.Command{
	Use:   "delete NAME",
	Short: "Delete a snapshot directory by name",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfgPath, _ := cmd.Flags().GetString("config")
		e, err := openEngine(cfgPath)
		if err != nil {
			return err
		}
		ctx, cancel := backgroundContext()
		e.Start(ctx)
		defer cancel()
		defer func() { _ = e.Terminate() }()

		if err := e.DeleteSnapshot(args[0]); err != nil {
			return fmt.Errorf("delete snapshot: %w", err)
		}
		fmt.Printf("snapshot deleted: %s\n", args[0])
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{snapshotCreateCmd, snapshotListCmd, snapshotDeleteCmd} {
		c.Flags().StringP("config", "c", "", "Path to engine config YAML (required)")
		_ = c.MarkFlagRequired("config")
	}
	snapshotCmd.AddCommand(snapshotCreateCmd)
	snapshotCmd.AddCommand(snapshotListCmd)
	snapshotCmd.AddCommand(snapshotDeleteCmd)
}
