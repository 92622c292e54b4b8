//go:build integration

package migrator_test

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pthm/scriptrel"
	"github.com/pthm/scriptrel/internal/testutil"
	"github.com/pthm/scriptrel/pkg/migrator"
	"github.com/pthm/scriptrel/pkg/script"
	"github.com/pthm/scriptrel/pkg/treat"
)

func treated(t *testing.T, seq int, raw string) treat.Result {
	t.Helper()
	res, err := treat.Treat(raw, treat.Options{
		Subsystem: script.Gestor,
		Seq:       seq,
		Initials:  "JO",
		Author:    "Integration",
		Now:       time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC),
		Host:      "127.0.0.1",
	})
	require.NoError(t, err)
	return res
}

func publish(t *testing.T, dir string, res treat.Result) {
	t.Helper()
	path := filepath.Join(dir, res.ID.FileName())
	require.NoError(t, os.WriteFile(path, []byte(res.Text), 0o644))
}

func TestIntegration_ApplyPendingTreatedScripts(t *testing.T) {
	ctx := context.Background()
	tier := testutil.ControlDB(t)
	dir := t.TempDir()

	publish(t, dir, treated(t, 1, "create table clientes (id int primary key, nome text);"))
	publish(t, dir, treated(t, 2, `
insert into clientes values (1, 'a;b');
DO $$
BEGIN
  UPDATE clientes SET nome = upper(nome);
END
$$
insert into clientes values (2, 'c');`))

	m := migrator.NewMigrator(tier.DB, dir, migrator.Options{})
	n, err := m.ApplyPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"0001.0.GJO.sql", "0002.0.GJO.sql"}, testutil.AppliedScripts(t, tier.DB))

	var nome string
	require.NoError(t, tier.DB.QueryRow(`select nome from clientes where id = 1`).Scan(&nome))
	assert.Equal(t, "A;B", nome)

	n, err = m.ApplyPending(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestIntegration_FailingScriptRollsBack(t *testing.T) {
	ctx := context.Background()
	tier := testutil.ControlDB(t)
	dir := t.TempDir()

	publish(t, dir, treated(t, 1, "create table t1 (id int);"))
	publish(t, dir, treated(t, 2, "create table t2 (id int);\ninsert into nope values (1);"))
	publish(t, dir, treated(t, 3, "create table t3 (id int);"))

	n, err := migrator.ApplyPending(ctx, tier.DB, dir)
	require.Error(t, err)
	assert.Equal(t, 1, n)
	assert.True(t, scriptrel.IsExecutionErr(err), "got %v", err)
	assert.Equal(t, "42P01", scriptrel.SQLState(err))
	assert.Equal(t, []string{"0001.0.GJO.sql"}, testutil.AppliedScripts(t, tier.DB))

	var exists bool
	require.NoError(t, tier.DB.QueryRow(`select to_regclass('public.t2') is not null`).Scan(&exists))
	assert.False(t, exists)
}

func TestIntegration_VerifyRejectsReplay(t *testing.T) {
	ctx := context.Background()
	tier := testutil.ControlDB(t)
	res := treated(t, 1, "create table replay (id int);")

	m := migrator.NewMigrator(tier.DB, t.TempDir(), migrator.Options{})
	require.NoError(t, m.ExecScript(ctx, res.ID.FileName(), res.Text))

	err := m.ExecScript(ctx, res.ID.FileName(), res.Text)
	require.Error(t, err)
	assert.True(t, scriptrel.IsExecutionErr(err))
	assert.Contains(t, err.Error(), "statement 1 of")
}

func TestIntegration_MarkOnly(t *testing.T) {
	ctx := context.Background()
	dev := testutil.ControlDB(t)
	res := treated(t, 4, "create table only_on_test (id int);")

	m := migrator.NewMigrator(dev.DB, t.TempDir(), migrator.Options{})
	require.NoError(t, m.Mark(ctx, res.ID))
	assert.Equal(t, []string{"0004.0.GJO.sql"}, testutil.AppliedScripts(t, dev.DB))

	last, err := m.LastApplied(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, last)

	var exists bool
	require.NoError(t, dev.DB.QueryRow(`select to_regclass('public.only_on_test') is not null`).Scan(&exists))
	assert.False(t, exists, "mark must not run the script body")
}

func TestIntegration_ConnectionFailure(t *testing.T) {
	ctx := context.Background()
	db, err := sql.Open("pgx", "postgres://nobody@127.0.0.1:1/none?sslmode=disable&connect_timeout=2")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = migrator.ApplyPending(ctx, db, t.TempDir())
	require.Error(t, err)
	assert.True(t, scriptrel.IsConnectionErr(err), "got %v", err)
}

func TestIntegration_MissingControlTable(t *testing.T) {
	ctx := context.Background()
	tier := testutil.EmptyDB(t)

	_, err := migrator.ApplyPending(ctx, tier.DB, t.TempDir())
	require.Error(t, err)
	assert.True(t, scriptrel.IsQueryErr(err), "got %v", err)
}
