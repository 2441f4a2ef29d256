package postgres

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMigrateURL(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"postgres://u:p@localhost:5432/radar?sslmode=disable": "pgx5://u:p@localhost:5432/radar?sslmode=disable",
		"postgresql://localhost/radar":                        "pgx5://localhost/radar",
		"pgx5://localhost/radar":                              "pgx5://localhost/radar",
	}
	for in, want := range tests {
		require.Equal(t, want, migrateURL(in))
	}
}

func TestEmbeddedMigrations(t *testing.T) {
	t.Parallel()

	src, err := migrationSource()
	require.NoError(t, err)
	defer func() { _ = src.Close() }()

	version, err := src.First()
	require.NoError(t, err)
	require.Equal(t, uint(1), version)

	up, identifier, err := src.ReadUp(version)
	require.NoError(t, err)
	defer func() { _ = up.Close() }()
	require.Equal(t, "init", identifier)
}

func TestMigrateRequiresDSN(t *testing.T) {
	t.Parallel()

	require.ErrorContains(t, MigrateUp("", zap.NewNop()), "db.dsn is required")
	require.ErrorContains(t, MigrateDown("", 1, zap.NewNop()), "db.dsn is required")
}
