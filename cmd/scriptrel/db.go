package main

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"

	"github.com/pthm/scriptrel"
	"github.com/pthm/scriptrel/internal/cli"
	"github.com/pthm/scriptrel/internal/release"
)

// Tier names accepted by --tier.
const (
	tierTest = "test"
	tierDev  = "dev"
)

func tierLabel(sub release.Subsystem, tier string) string {
	return sub.Name + "/" + strings.ToUpper(tier)
}

// openTier opens the database of one subsystem tier without connecting.
// Returns a nil DB when the tier has no connection settings.
func openTier(sub release.Subsystem, tier string) (*sql.DB, error) {
	tc, err := cfg.Tier(sub.Key(), tier)
	if err != nil {
		return nil, cli.Classify("resolving tier", err)
	}
	if !tc.Configured() {
		return nil, nil
	}

	dsn, err := tc.DSN()
	if err != nil {
		return nil, cli.ConfigError(tierLabel(sub, tier)+" database configuration", err)
	}
	driver, err := cfg.Driver()
	if err != nil {
		return nil, cli.ConfigError("database configuration", err)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, cli.DBConnectError("opening "+tierLabel(sub, tier), err)
	}
	return db, nil
}

// connectTier opens a tier that must be configured and checks it answers.
func connectTier(ctx context.Context, sub release.Subsystem, tier string) (*sql.DB, error) {
	label := tierLabel(sub, tier)

	db, err := openTier(sub, tier)
	if err != nil {
		return nil, err
	}
	if db == nil {
		return nil, cli.ConfigError(fmt.Sprintf("%s database is not configured (set subsystems.%s.%s.url)",
			label, sub.Key(), tier), nil)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, cli.DBConnectError("connecting to "+label,
			fmt.Errorf("%w: %w", scriptrel.ErrConnection, err))
	}
	return db, nil
}
