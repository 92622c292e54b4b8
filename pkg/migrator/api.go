package migrator

import (
	"context"
	"io"
)

// ApplyPending brings the database up to date with the scripts in dir using
// default options. It returns the number of scripts applied.
//
// Example, on a release machine:
//
//	n, err := migrator.ApplyPending(ctx, db, "src/Scripts/Gestor")
//	if err != nil {
//	    log.Fatalf("catch-up failed after %d scripts: %v", n, err)
//	}
//
// For dry-run or a custom control query, use ApplyWithOptions.
func ApplyPending(ctx context.Context, db Execer, dir string) (int, error) {
	return NewMigrator(db, dir, Options{}).ApplyPending(ctx)
}

// ApplyWithOptions is ApplyPending with explicit options.
//
// Example: print what would run without touching the database
//
//	var buf bytes.Buffer
//	n, err := migrator.ApplyWithOptions(ctx, db, dir, migrator.Options{DryRun: &buf})
func ApplyWithOptions(ctx context.Context, db Execer, dir string, opts Options) (int, error) {
	return NewMigrator(db, dir, opts).ApplyPending(ctx)
}

// Preview writes the pending plan for dir to w and returns how many scripts
// would run.
func Preview(ctx context.Context, db Execer, dir string, w io.Writer) (int, error) {
	m := NewMigrator(db, dir, Options{DryRun: w})
	pending, err := m.Pending(ctx)
	if err != nil {
		return 0, err
	}
	if _, err := m.ApplyPending(ctx); err != nil {
		return 0, err
	}
	return len(pending), nil
}
