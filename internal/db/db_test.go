package db

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectAndMigrate(t *testing.T) {
	ctx := context.Background()

	database, err := Connect(ctx, DriverSQLite, "file::memory:")
	require.NoError(t, err)
	defer database.Close()

	require.NoError(t, RunMigrations(database))
	// a second run is a no-op
	require.NoError(t, RunMigrations(database))

	var tables []string
	err = database.SelectContext(ctx, &tables, "SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'schema_migrations' ORDER BY name")
	require.NoError(t, err)
	assert.Equal(t, []string{"match_events", "matches", "team_players", "teams", "tournament_participants", "tournaments"}, tables)

	require.NoError(t, RollbackMigrations(database))

	var count int
	err = database.GetContext(ctx, &count, "SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'matches'")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestConnect_UnknownDriver(t *testing.T) {
	_, err := Connect(context.Background(), "mysql", "whatever")
	assert.Error(t, err)
}
