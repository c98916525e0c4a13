package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ethpandaops/statsd-cloudwatch/internal/agent"
	"github.com/ethpandaops/statsd-cloudwatch/internal/migrate"
	"github.com/ethpandaops/statsd-cloudwatch/internal/sink"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the ClickHouse schema of clickhouse sinks",
	}

	actions := []struct {
		use   string
		short string
		fn    func(ctx context.Context, log logrus.FieldLogger, m migrate.Migrator) error
	}{
		{
			use:   "up",
			short: "Apply all pending migrations",
			fn: func(ctx context.Context, _ logrus.FieldLogger, m migrate.Migrator) error {
				return m.Up(ctx)
			},
		},
		{
			use:   "down",
			short: "Roll back the last migration",
			fn: func(ctx context.Context, _ logrus.FieldLogger, m migrate.Migrator) error {
				return m.Down(ctx)
			},
		},
		{
			use:   "status",
			short: "Print the current schema version",
			fn: func(ctx context.Context, log logrus.FieldLogger, m migrate.Migrator) error {
				version, dirty, err := m.Status(ctx)
				if err != nil {
					return err
				}

				log.WithFields(logrus.Fields{
					"version": version,
					"dirty":   dirty,
				}).Info("Schema status")

				return nil
			},
		},
	}

	for _, action := range actions {
		sub := &cobra.Command{
			Use:   action.use,
			Short: action.short,
			RunE: func(cmd *cobra.Command, _ []string) error {
				cfg, log, err := setup()
				if err != nil {
					return err
				}

				return forEachClickHouse(cmd.Context(), log, cfg, action.fn)
			},
		}

		configFlags(sub)
		cmd.AddCommand(sub)
	}

	cmd.AddCommand(forceCmd())

	return cmd
}

func forceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "force <version>",
		Short: "Set the schema version without running migrations, clearing the dirty flag",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid version %q: %w", args[0], err)
			}

			cfg, log, err := setup()
			if err != nil {
				return err
			}

			return forEachClickHouse(cmd.Context(), log, cfg,
				func(ctx context.Context, _ logrus.FieldLogger, m migrate.Migrator) error {
					return m.Force(ctx, version)
				})
		},
	}

	configFlags(cmd)

	return cmd
}

// forEachClickHouse runs fn against every distinct ClickHouse database
// referenced by a clickhouse sink.
func forEachClickHouse(
	ctx context.Context,
	log logrus.FieldLogger,
	cfg *agent.Config,
	fn func(ctx context.Context, log logrus.FieldLogger, m migrate.Migrator) error,
) error {
	names := cfg.CloudWatch.InstanceNames()
	done := make(map[string]struct{}, len(names))

	for i, inst := range cfg.CloudWatch.Instances {
		if inst.Sink.Type != sink.TypeClickHouse {
			continue
		}

		ch := inst.Sink.ClickHouse
		ch.ApplyDefaults()

		dsn := ch.DSN()
		if _, ok := done[dsn]; ok {
			continue
		}

		done[dsn] = struct{}{}

		ilog := log.WithFields(logrus.Fields{
			"instance": names[i],
			"endpoint": ch.Endpoint,
			"database": ch.Database,
		})

		if err := fn(ctx, ilog, migrate.New(ilog, dsn)); err != nil {
			return fmt.Errorf("instance %s: %w", names[i], err)
		}
	}

	if len(done) == 0 {
		return fmt.Errorf("no instance uses a clickhouse sink")
	}

	return nil
}
