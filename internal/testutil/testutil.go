// Package testutil provides PostgreSQL databases for integration tests.
//
// A single container is started lazily and shared by every test in the
// process; each test gets its own freshly created database. Set
// SCRIPTREL_TEST_DATABASE_URL (or _HOST and friends) to use an existing
// server instead.
package testutil

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"net/url"
	"sync"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/pthm/scriptrel/pkg/sqlsplit"
	scriptsql "github.com/pthm/scriptrel/sql"
)

// Singleton container state
var (
	singletonOnce sync.Once
	singletonDSN  string
	singletonErr  error
)

// ensureSingleton lazily initializes the shared PostgreSQL server.
// Safe for concurrent access via sync.Once.
func ensureSingleton() (string, error) {
	singletonOnce.Do(func() {
		cfg, err := GetDatabaseConfig()
		if err != nil {
			singletonErr = err
			return
		}
		if cfg.External() {
			singletonDSN = cfg.DSN()
			return
		}

		ctx := context.Background()
		container, err := postgres.Run(ctx,
			"postgres:18-alpine",
			postgres.WithDatabase("postgres"),
			postgres.WithUsername("test"),
			postgres.WithPassword("test"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(60*time.Second),
			),
		)
		if err != nil {
			singletonErr = fmt.Errorf("failed to start PostgreSQL container: %w", err)
			return
		}

		dsn, err := container.ConnectionString(ctx)
		if err != nil {
			_ = container.Terminate(ctx)
			singletonErr = fmt.Errorf("failed to get PostgreSQL connection string: %w", err)
			return
		}

		// Append sslmode=disable for local testing
		singletonDSN = dsn + "sslmode=disable"
		// Container is not stored - ryuk will handle cleanup automatically
	})

	return singletonDSN, singletonErr
}

// Tier is an isolated database standing in for one TEST or DEV tier.
type Tier struct {
	DB  *sql.DB
	DSN string
}

// EmptyDB returns a connection to a new empty database.
// The database is dropped when the test completes.
func EmptyDB(tb testing.TB) *Tier {
	tb.Helper()

	adminDSN, err := ensureSingleton()
	require.NoError(tb, err, "failed to start PostgreSQL")

	name := uniqueDBName("tier")
	require.NoError(tb, execAdmin(context.Background(), adminDSN, "CREATE DATABASE "+name),
		"failed to create test database")

	dsn, err := replaceDBName(adminDSN, name)
	require.NoError(tb, err)

	db, err := sql.Open("pgx", dsn)
	require.NoError(tb, err, "failed to connect to test database")
	require.NoError(tb, db.Ping(), "failed to ping test database")

	tb.Cleanup(func() {
		_ = db.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = execAdmin(ctx, adminDSN, fmt.Sprintf(`
			SELECT pg_terminate_backend(pid)
			FROM pg_stat_activity
			WHERE datname = '%s' AND pid <> pg_backend_pid()
		`, name))
		_ = execAdmin(ctx, adminDSN, "DROP DATABASE IF EXISTS "+name)
	})

	return &Tier{DB: db, DSN: dsn}
}

// ControlDB returns a database with the sistema schema: the version control
// table plus the verify and mark functions every treated script calls.
func ControlDB(tb testing.TB) *Tier {
	tb.Helper()

	tier := EmptyDB(tb)
	ctx := context.Background()
	for _, stmt := range sqlsplit.Split(scriptsql.ControlSQL) {
		_, err := tier.DB.ExecContext(ctx, stmt)
		require.NoError(tb, err, "failed to create control schema")
	}
	return tier
}

// AppliedScripts returns the control table contents in application order.
func AppliedScripts(tb testing.TB, db *sql.DB) []string {
	tb.Helper()

	rows, err := db.Query(`SELECT nm_arquivo FROM sistema.tb_sys_controle_versao ORDER BY nr_versao_banco`)
	require.NoError(tb, err)
	defer func() { _ = rows.Close() }()

	var names []string
	for rows.Next() {
		var name string
		require.NoError(tb, rows.Scan(&name))
		names = append(names, name)
	}
	require.NoError(tb, rows.Err())
	return names
}

func execAdmin(ctx context.Context, adminDSN, query string) error {
	db, err := sql.Open("pgx", adminDSN)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	_, err = db.ExecContext(ctx, query)
	return err
}

// uniqueDBName generates a unique database name with the given prefix.
func uniqueDBName(prefix string) string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return fmt.Sprintf("%s_%s", prefix, hex.EncodeToString(b))
}

// replaceDBName swaps the database in a postgres:// URL.
func replaceDBName(dsn, name string) (string, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("parse dsn: %w", err)
	}
	u.Path = "/" + name
	return u.String(), nil
}
