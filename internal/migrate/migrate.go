// Package migrate applies the embedded ClickHouse schema that backs the
// clickhouse sink.
package migrate

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"net/url"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/clickhouse" // registers clickhouse://
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/sirupsen/logrus"
)

//go:embed sql/*.sql
var migrations embed.FS

// MigrationsTable records applied schema versions.
const MigrationsTable = "statsd_cloudwatch_schema_migrations"

// Migrator runs schema migrations against one ClickHouse database.
type Migrator interface {
	Up(ctx context.Context) error
	// Down reverts the most recent migration.
	Down(ctx context.Context) error
	// Force records version as applied and clears the dirty flag without
	// running any migration.
	Force(ctx context.Context, version int) error
	Status(ctx context.Context) (version uint, dirty bool, err error)
}

type migrator struct {
	log logrus.FieldLogger
	dsn string
}

// New returns a Migrator for dsn, e.g. "clickhouse://host:9000/default".
func New(log logrus.FieldLogger, dsn string) Migrator {
	return &migrator{
		log: log.WithField("component", "migrate"),
		dsn: dsn,
	}
}

func (m *migrator) Up(_ context.Context) error {
	return m.withMigrate(func(mig *migrate.Migrate) error {
		if err := ignoreNoChange(mig.Up()); err != nil {
			return fmt.Errorf("applying migrations: %w", err)
		}

		version, _, _ := mig.Version()
		m.log.WithField("version", version).Info("Schema migrated")

		return nil
	})
}

func (m *migrator) Down(_ context.Context) error {
	return m.withMigrate(func(mig *migrate.Migrate) error {
		if err := ignoreNoChange(mig.Steps(-1)); err != nil {
			return fmt.Errorf("reverting migration: %w", err)
		}

		m.log.Info("Reverted last migration")

		return nil
	})
}

func (m *migrator) Force(_ context.Context, version int) error {
	if version < -1 {
		return fmt.Errorf("invalid version %d", version)
	}

	return m.withMigrate(func(mig *migrate.Migrate) error {
		if err := mig.Force(version); err != nil {
			return fmt.Errorf("forcing version %d: %w", version, err)
		}

		m.log.WithField("version", version).Warn("Forced schema version")

		return nil
	})
}

func (m *migrator) Status(_ context.Context) (version uint, dirty bool, err error) {
	err = m.withMigrate(func(mig *migrate.Migrate) error {
		var verr error

		version, dirty, verr = mig.Version()
		if verr != nil && !errors.Is(verr, migrate.ErrNilVersion) {
			return fmt.Errorf("reading schema version: %w", verr)
		}

		return nil
	})

	return version, dirty, err
}

// withMigrate opens a migrate instance for the duration of fn.
func (m *migrator) withMigrate(fn func(*migrate.Migrate) error) error {
	source, err := iofs.New(migrations, "sql")
	if err != nil {
		return fmt.Errorf("loading embedded migrations: %w", err)
	}

	dsn, err := migrationDSN(m.dsn)
	if err != nil {
		return err
	}

	mig, err := migrate.NewWithSourceInstance("iofs", source, dsn)
	if err != nil {
		return fmt.Errorf("connecting to clickhouse: %w", err)
	}

	defer func() {
		srcErr, dbErr := mig.Close()
		if err := errors.Join(srcErr, dbErr); err != nil {
			m.log.WithError(err).Debug("Closing migrate instance")
		}
	}()

	return fn(mig)
}

func ignoreNoChange(err error) error {
	if errors.Is(err, migrate.ErrNoChange) {
		return nil
	}

	return err
}

// migrationDSN adds the driver options migrate needs for ClickHouse.
func migrationDSN(dsn string) (string, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("parsing dsn: %w", err)
	}

	if u.Scheme != "clickhouse" {
		return "", fmt.Errorf("unsupported dsn scheme %q", u.Scheme)
	}

	q := u.Query()
	q.Set("x-multi-statement", "true")
	q.Set("x-migrations-table", MigrationsTable)
	u.RawQuery = q.Encode()

	return u.String(), nil
}
