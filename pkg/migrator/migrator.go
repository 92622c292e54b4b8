package migrator

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/pthm/scriptrel"
	"github.com/pthm/scriptrel/internal/textenc"
	"github.com/pthm/scriptrel/pkg/script"
	"github.com/pthm/scriptrel/pkg/treat"
)

// DefaultControlQuery reads the most recently applied script name of a tier.
const DefaultControlQuery = `select nm_arquivo from sistema.tb_sys_controle_versao order by nr_versao_banco desc limit 1`

// Options controls how a Migrator reads the control table and script files.
type Options struct {
	// ControlQuery must return at most one row with one text column holding
	// the name of the last applied script. Empty means DefaultControlQuery.
	ControlQuery string

	// MarkFunc is the database function called by Mark. Empty means
	// treat.DefaultMarkFunc.
	MarkFunc string

	// Codec decodes script files. Nil means textenc.Default().
	Codec *textenc.Codec

	// DryRun writes the pending plan to the provided writer without executing
	// anything. The control query still runs.
	DryRun io.Writer
}

// Migrator applies numbered scripts from one directory to one database tier.
// It is safe to run repeatedly: only scripts newer than the control record
// are executed.
//
// Typical use during a release:
//
//	m := migrator.NewMigrator(db, "src/Scripts/Gestor", migrator.Options{})
//	n, err := m.ApplyPending(ctx)
type Migrator struct {
	db   Execer
	dir  string
	opts Options
}

// NewMigrator creates a migrator for the scripts in dir.
// The Execer is typically *sql.DB but can be *sql.Tx for testing.
func NewMigrator(db Execer, dir string, opts Options) *Migrator {
	if opts.ControlQuery == "" {
		opts.ControlQuery = DefaultControlQuery
	}
	if opts.MarkFunc == "" {
		opts.MarkFunc = treat.DefaultMarkFunc
	}
	if opts.Codec == nil {
		opts.Codec = textenc.Default()
	}
	return &Migrator{db: db, dir: dir, opts: opts}
}

// Dir returns the script directory.
func (m *Migrator) Dir() string {
	return m.dir
}

// LastAppliedName returns the script name stored in the control record, or
// "" when nothing has been applied yet.
func (m *Migrator) LastAppliedName(ctx context.Context) (string, error) {
	var name sql.NullString
	err := m.db.QueryRowContext(ctx, m.opts.ControlQuery).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil // Nothing applied yet
	}
	if err != nil {
		return "", scriptrel.WrapDBError("reading control record", err, scriptrel.ErrQuery)
	}
	return strings.TrimSpace(name.String), nil
}

// LastApplied returns the sequence of the last applied script, 0 when the
// control table is empty or holds a name without a sequence.
func (m *Migrator) LastApplied(ctx context.Context) (int, error) {
	name, err := m.LastAppliedName(ctx)
	if err != nil {
		return 0, err
	}
	return script.ParseSequence(name), nil
}

// Pending returns the scripts in the directory newer than the control record,
// in ascending sequence order.
func (m *Migrator) Pending(ctx context.Context) ([]script.File, error) {
	last, err := m.LastApplied(ctx)
	if err != nil {
		return nil, err
	}
	files, err := script.List(m.dir)
	if err != nil {
		return nil, err
	}
	return script.Pending(files, last), nil
}

// ApplyPending executes every pending script in ascending sequence order and
// returns how many were committed. In dry-run mode it writes the plan and
// returns 0.
//
// Each script runs in its own transaction. The first failing statement rolls
// back its script and stops the queue; scripts committed before it stay
// applied. A directory with two files sharing a pending sequence is rejected
// before anything runs.
func (m *Migrator) ApplyPending(ctx context.Context) (int, error) {
	last, err := m.LastApplied(ctx)
	if err != nil {
		return 0, err
	}
	files, err := script.List(m.dir)
	if err != nil {
		return 0, err
	}
	pending := script.Pending(files, last)

	if dups := script.Duplicates(pending); len(dups) > 0 {
		return 0, duplicateError(dups)
	}

	if len(pending) == 0 {
		slog.Info("already current", "dir", m.dir, "last", last)
		return 0, nil
	}

	// Nothing is committed in dry-run mode.
	if m.opts.DryRun != nil {
		return 0, m.outputDryRun(m.opts.DryRun, last, pending)
	}

	applied := 0
	for _, f := range pending {
		text, err := m.opts.Codec.ReadFile(f.Path)
		if err != nil {
			return applied, err
		}
		if err := m.ExecScript(ctx, f.Name(), text); err != nil {
			return applied, err
		}
		applied++
		slog.Info("applied script", "file", f.Name())
	}
	return applied, nil
}

// ExecScript runs every statement of text in one transaction. Treated
// scripts are cut at their sentinel lines first; plain files go through the
// statement splitter. label names the script in errors.
func (m *Migrator) ExecScript(ctx context.Context, label, text string) error {
	stmts := treat.Statements(text)
	if len(stmts) == 0 {
		slog.Warn("script has no statements", "file", label)
		return nil
	}
	return m.inTx(ctx, label, func(db Execer) error {
		for i, stmt := range stmts {
			if _, err := db.ExecContext(ctx, stmt); err != nil {
				return scriptrel.WrapDBError(
					fmt.Sprintf("%s: statement %d of %d", label, i+1, len(stmts)),
					err, scriptrel.ErrExecution)
			}
		}
		return nil
	})
}

// Mark runs only the mark call for id. Used on tiers that trust a previous
// full execution elsewhere.
func (m *Migrator) Mark(ctx context.Context, id script.ID) error {
	call := treat.Call(m.opts.MarkFunc, id)
	if m.opts.DryRun != nil {
		_, err := fmt.Fprintf(m.opts.DryRun, "-- mark %s\n%s\n", id, call)
		return err
	}
	return m.inTx(ctx, id.String(), func(db Execer) error {
		if _, err := db.ExecContext(ctx, call); err != nil {
			return scriptrel.WrapDBError("marking "+id.String(), err, scriptrel.ErrExecution)
		}
		return nil
	})
}

// inTx runs fn inside a transaction when the db supports it. The deferred
// rollback is a no-op after a successful commit.
func (m *Migrator) inTx(ctx context.Context, label string, fn func(db Execer) error) error {
	txer, ok := m.db.(txBeginner)
	if !ok {
		// Fall back to non-transactional (for *sql.Tx owned by the caller)
		return fn(m.db)
	}

	tx, err := txer.BeginTx(ctx, nil)
	if err != nil {
		return scriptrel.WrapDBError(label+": starting transaction", err, scriptrel.ErrConnection)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return scriptrel.WrapDBError(label+": commit", err, scriptrel.ErrExecution)
	}
	return nil
}

// Status represents the migration state of one tier.
type Status struct {
	// LastName is the script name in the control record ("" when empty).
	LastName string

	// LastApplied is the sequence parsed from LastName.
	LastApplied int

	// Latest is the highest sequence present in the directory.
	Latest int

	// Pending lists the scripts newer than LastApplied.
	Pending []script.File

	// Duplicates maps sequences shared by more than one file.
	Duplicates map[int][]script.File
}

// Current reports whether nothing is pending.
func (s *Status) Current() bool {
	return len(s.Pending) == 0
}

// GetStatus returns the current migration state without executing anything.
func (m *Migrator) GetStatus(ctx context.Context) (*Status, error) {
	name, err := m.LastAppliedName(ctx)
	if err != nil {
		return nil, err
	}
	files, err := script.List(m.dir)
	if err != nil {
		return nil, err
	}

	status := &Status{
		LastName:    name,
		LastApplied: script.ParseSequence(name),
		Duplicates:  script.Duplicates(files),
	}
	if n := len(files); n > 0 {
		status.Latest = files[n-1].ID.Seq
	}
	status.Pending = script.Pending(files, status.LastApplied)
	return status, nil
}

// outputDryRun writes the statements that ApplyPending would execute.
func (m *Migrator) outputDryRun(w io.Writer, last int, pending []script.File) error {
	_, _ = fmt.Fprintf(w, "-- Pending scripts in %s (last applied: %04d)\n\n", m.dir, last)
	for _, f := range pending {
		text, err := m.opts.Codec.ReadFile(f.Path)
		if err != nil {
			return err
		}
		stmts := treat.Statements(text)
		_, _ = fmt.Fprintf(w, "-- ============================================================\n")
		_, _ = fmt.Fprintf(w, "-- %s (%d statements)\n", f.Name(), len(stmts))
		_, _ = fmt.Fprintf(w, "-- ============================================================\n\n")
		for _, stmt := range stmts {
			_, _ = fmt.Fprintf(w, "%s\n\n", stmt)
		}
	}
	return nil
}

func duplicateError(dups map[int][]script.File) error {
	var parts []string
	for _, files := range dups {
		names := make([]string, len(files))
		for i, f := range files {
			names[i] = filepath.Base(f.Path)
		}
		parts = append(parts, strings.Join(names, ", "))
	}
	return fmt.Errorf("%w: duplicate sequence numbers: %s", scriptrel.ErrFormat, strings.Join(parts, "; "))
}
