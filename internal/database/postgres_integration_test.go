//go:build integration

package database

import (
	"context"
	"fmt"
	"log"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

var postgresDSN string

func TestMain(m *testing.M) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "ledger",
			"POSTGRES_PASSWORD": "ledger",
			"POSTGRES_DB":       "ledger",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	pgContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		log.Fatalf("could not start postgres container: %s", err)
	}

	host, err := pgContainer.Host(ctx)
	if err != nil {
		log.Fatalf("could not get container host: %s", err)
	}
	port, err := pgContainer.MappedPort(ctx, "5432")
	if err != nil {
		log.Fatalf("could not get mapped port: %s", err)
	}
	postgresDSN = fmt.Sprintf("postgres://ledger:ledger@%s:%s/ledger?sslmode=disable", host, port.Port())

	code := m.Run()

	if err := pgContainer.Terminate(ctx); err != nil {
		log.Printf("could not stop postgres container: %s", err)
	}
	os.Exit(code)
}

func TestEnsureSchema_Postgres(t *testing.T) {
	ctx := context.Background()
	db, err := NewDatabase(postgresDSN)
	require.NoError(t, err)

	require.NoError(t, EnsureSchema(ctx, db))
	require.NoError(t, EnsureSchema(ctx, db))

	pool, err := pgxpool.New(ctx, postgresDSN)
	require.NoError(t, err)
	defer pool.Close()

	var indexDef string
	err = pool.QueryRow(ctx,
		`SELECT indexdef FROM pg_indexes WHERE tablename = 'actual_trades' AND indexname = 'idx_actual_trades_open_lots'`,
	).Scan(&indexDef)
	require.NoError(t, err)
	assert.Contains(t, indexDef, "WHERE")
	assert.Contains(t, indexDef, "remaining_quantity")

	var dataType string
	err = pool.QueryRow(ctx,
		`SELECT data_type FROM information_schema.columns WHERE table_name = 'portfolio_snapshots' AND column_name = 'snapshot_data'`,
	).Scan(&dataType)
	require.NoError(t, err)
	assert.Equal(t, "jsonb", dataType)
}
