// Package cmd wires the collocation agent's command line interface.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"colloc-agent/internal/agent"
	"colloc-agent/internal/allocation"
	"colloc-agent/internal/collectors"
	"colloc-agent/internal/config"
	"colloc-agent/internal/database"
	"colloc-agent/internal/discovery"
	"colloc-agent/internal/logging"
	"colloc-agent/internal/resctrl"
)

const Version = "0.3.0"

func Execute() error {
	var configFile string
	var logLevel string

	rootCmd := &cobra.Command{
		Use:   "colloc-agent",
		Short: "Node-local workload collocation agent",
		Long: "colloc-agent reconciles CPU quota/shares and cache/bandwidth partitioning " +
			"for collocated workloads and exports the resulting allocation state as metrics.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loadEnvironment()
			if logLevel != "" {
				if err := logging.SetLogLevel(logLevel); err != nil {
					return err
				}
				if err := logging.SetReconcilerLogLevel(logLevel); err != nil {
					return err
				}
			}
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "config.yaml", "Path to the agent configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Set log level (trace, debug, info, warn, error)")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the reconciliation loop",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAgent(configFile)
		},
	}

	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration file and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := config.LoadConfig(configFile); err != nil {
				return err
			}
			logging.GetLogger().WithField("config", configFile).Info("Configuration is valid")
			return nil
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the agent version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(Version)
		},
	}

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(versionCmd)

	return rootCmd.Execute()
}

func runAgent(configFile string) error {
	logger := logging.GetLogger()

	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return err
	}

	node, err := discovery.NewDockerNode()
	if err != nil {
		return err
	}
	defer node.Close()

	measurements := collectors.NewManager()
	defer measurements.Close()

	applier := resctrl.NewApplier(cfg.Allocation)
	if err := applier.Initialize(); err != nil {
		return err
	}

	var allocator allocation.Allocator = allocation.NOPAllocator{}
	if cfg.Static != nil {
		allocator = &agent.StaticAllocator{Config: *cfg.Static}
	}

	var sink agent.MetricsSink
	if cfg.Database.Enabled {
		db, err := database.NewInfluxDBClient(cfg.Database)
		if err != nil {
			return err
		}
		defer db.Close()
		sink = db
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-signals
		logger.WithField("signal", sig).Info("Shutting down")
		cancel()
	}()

	a := agent.New(cfg, node, measurements, allocator, applier, sink)
	if err := a.Run(ctx); err != nil && err != context.Canceled {
		return err
	}
	return nil
}

func loadEnvironment() {
	logger := logging.GetLogger()

	envFile := ".env"
	if _, err := os.Stat(envFile); err != nil {
		execPath, err := os.Executable()
		if err != nil {
			return
		}
		envFile = filepath.Join(filepath.Dir(execPath), ".env")
		if _, err := os.Stat(envFile); err != nil {
			return
		}
	}
	if err := godotenv.Load(envFile); err != nil {
		logger.WithField("file", envFile).WithError(err).Warn("Error loading .env file")
	} else {
		logger.WithField("file", envFile).Debug("Loaded environment variables")
	}
}
