package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ethpandaops/statsd-cloudwatch/internal/agent"
	"github.com/ethpandaops/statsd-cloudwatch/internal/version"
)

var (
	cfgFile  string
	logLevel string
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "statsd-cloudwatch",
		Short: "Forward statsd flushes to Amazon CloudWatch",
		Long: `statsd-cloudwatch receives the aggregated metrics a statsd daemon
flushes every interval and publishes them as CloudWatch data points,
optionally mirroring them to an HTTP endpoint or ClickHouse.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          run,
	}

	configFlags(cmd)

	cmd.AddCommand(versionCmd(), migrateCmd())

	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version information",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Println(version.FullWithPlatform())
		},
	}
}

// configFlags registers the flags of commands that read the config file.
func configFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(
		&cfgFile, "config", "",
		"path to config file (required)",
	)
	cmd.Flags().StringVar(
		&logLevel, "log-level", "",
		"override log level (debug, info, warn, error)",
	)

	if err := cmd.MarkFlagRequired("config"); err != nil {
		fmt.Fprintf(os.Stderr, "error marking flag required: %v\n", err)
		os.Exit(1)
	}
}

// setup loads the config and builds the logger shared by all commands.
func setup() (*agent.Config, *logrus.Logger, error) {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	cfg, err := agent.LoadConfig(cfgFile)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}

	// CLI flag overrides config file.
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing log level %q: %w", cfg.LogLevel, err)
	}

	log.SetLevel(level)

	return cfg, log, nil
}

func run(_ *cobra.Command, _ []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer cancel()

	a, err := agent.New(log, cfg)
	if err != nil {
		return fmt.Errorf("creating agent: %w", err)
	}

	log.WithField("version", version.Full()).Info("Starting statsd-cloudwatch")

	if err := a.Start(ctx); err != nil {
		return fmt.Errorf("starting agent: %w", err)
	}

	<-ctx.Done()

	log.Info("Shutting down statsd-cloudwatch")

	if err := a.Stop(); err != nil {
		log.WithError(err).Error("Error during shutdown")
		return fmt.Errorf("stopping agent: %w", err)
	}

	log.Info("Shutdown complete")

	return nil
}
