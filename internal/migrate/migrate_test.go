package migrate

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"strings"
	"testing"

	"github.com/golang-migrate/migrate/v4"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationDSN(t *testing.T) {
	tests := []struct {
		name    string
		dsn     string
		want    string
		wantErr string
	}{
		{
			name: "adds driver options",
			dsn:  "clickhouse://writer:pw@localhost:9000/metrics",
			want: "clickhouse://writer:pw@localhost:9000/metrics?x-migrations-table=" +
				MigrationsTable + "&x-multi-statement=true",
		},
		{
			name: "keeps existing query",
			dsn:  "clickhouse://localhost:9000/default?secure=true",
			want: "clickhouse://localhost:9000/default?secure=true&x-migrations-table=" +
				MigrationsTable + "&x-multi-statement=true",
		},
		{name: "unparseable", dsn: "://bad", wantErr: "parsing dsn"},
		{name: "wrong scheme", dsn: "postgres://localhost/db", wantErr: `unsupported dsn scheme "postgres"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := migrationDSN(tt.dsn)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIgnoreNoChange(t *testing.T) {
	assert.NoError(t, ignoreNoChange(nil))
	assert.NoError(t, ignoreNoChange(migrate.ErrNoChange))

	boom := errors.New("boom")
	assert.ErrorIs(t, ignoreNoChange(boom), boom)
}

func TestEmbeddedMigrations(t *testing.T) {
	files, err := fs.Glob(migrations, "sql/*.sql")
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{
		"sql/000001_cloudwatch_datapoints.up.sql",
		"sql/000001_cloudwatch_datapoints.down.sql",
	}, files)

	up, err := fs.ReadFile(migrations, "sql/000001_cloudwatch_datapoints.up.sql")
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(up), "CREATE TABLE IF NOT EXISTS"))
}

func TestMigrator_InvalidDSN(t *testing.T) {
	log := logrus.New()
	log.SetOutput(io.Discard)

	m := New(log, "mysql://localhost/db")

	require.Error(t, m.Up(context.Background()))
	require.Error(t, m.Force(context.Background(), 1))

	_, _, err := m.Status(context.Background())
	require.Error(t, err)

	err = m.Force(context.Background(), -2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid version")
}
