package script

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pthm/scriptrel"
)

func touch(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, name := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("select 1;"), 0o644))
	}
}

func TestNextSequence(t *testing.T) {
	t.Run("empty directory", func(t *testing.T) {
		n, err := NextSequence(t.TempDir(), 'G')
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("missing directory", func(t *testing.T) {
		n, err := NextSequence(filepath.Join(t.TempDir(), "nope"), 'G')
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("max plus one ignoring gaps", func(t *testing.T) {
		dir := t.TempDir()
		touch(t, dir, "0001.0.GJO.sql", "0003.0.GAB.sql")
		n, err := NextSequence(dir, 'G')
		require.NoError(t, err)
		assert.Equal(t, 4, n)
	})

	t.Run("only counts the requested letter", func(t *testing.T) {
		dir := t.TempDir()
		touch(t, dir, "0002.0.GJO.sql", "0009.0.SJO.sql", "0010.1.GJO.sql", "notes.txt", "0011.0.GJO.sql.bak")
		n, err := NextSequence(dir, 'g')
		require.NoError(t, err)
		assert.Equal(t, 3, n)
	})
}

func TestParseSequence(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"0042.0.GJO.sql", 42},
		{"0042.0.GJO", 42},
		{"/srv/scripts/Gestor/0007.0.SAB.sql", 7},
		{"9342.0.gjo.sql", 9342},
		{"", 0},
		{"nothing here", 0},
		{"0042.1.GJO.sql", 0},
		{"0042.0.XJO.sql", 42},
		{"0042.0.1JO.sql", 0},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseSequence(tt.in))
		})
	}
}

func TestList(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "0010.0.GJO.sql", "0002.0.GAB.sql", "0005.0.SJO.sql", "README.md", "0001.0.GJ.sql")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "0003.0.GJO.sql"), 0o755))

	files, err := List(dir)
	require.NoError(t, err)

	var names []string
	for _, f := range files {
		names = append(names, f.Name())
	}
	assert.Equal(t, []string{"0002.0.GAB.sql", "0005.0.SJO.sql", "0010.0.GJO.sql"}, names)
	assert.Equal(t, ID{Seq: 10, Letter: 'G', Initials: "JO"}, files[2].ID)
}

func TestList_AnySubsystemLetter(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "0001.0.XJO.sql", "0002.0.XAB.sql", "0003.0.xJO.sql")

	files, err := List(dir)
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, ID{Seq: 2, Letter: 'X', Initials: "AB"}, files[1].ID)

	n, err := NextSequence(dir, 'X')
	require.NoError(t, err)
	assert.Equal(t, files[len(files)-1].ID.Seq+1, n)
}

func TestListMissingDirectory(t *testing.T) {
	files, err := List(filepath.Join(t.TempDir(), "missing"))
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestPendingAndDuplicates(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "0003.0.GJO.sql", "0004.0.GJO.sql", "0005.0.GJO.sql", "0006.0.GJO.sql", "0006.0.GAB.sql", "0007.0.GJO.sql")
	files, err := List(dir)
	require.NoError(t, err)

	pending := Pending(files, 5)
	var seqs []int
	for _, f := range pending {
		seqs = append(seqs, f.ID.Seq)
	}
	assert.Equal(t, []int{6, 6, 7}, seqs)

	dups := Duplicates(files)
	require.Len(t, dups, 1)
	assert.Len(t, dups[6], 2)
}

func TestID(t *testing.T) {
	id, err := NewID(42, 'g', "jo")
	require.NoError(t, err)
	assert.Equal(t, "0042.0.GJO", id.String())
	assert.Equal(t, "0042.0.GJO.sql", id.FileName())

	parsed, err := ParseID("0042.0.GJO.sql")
	require.NoError(t, err)
	assert.Equal(t, id, parsed)

	parsed, err = ParseID(" 0042.0.GJO ")
	require.NoError(t, err)
	assert.Equal(t, id, parsed)
}

func TestIDErrors(t *testing.T) {
	for _, in := range []string{"", "42.0.GJO", "0042.1.GJO", "0042.0.GJOX", "0042.0.G1O", "0000.0.GJO"} {
		t.Run(in, func(t *testing.T) {
			_, err := ParseID(in)
			require.Error(t, err)
			assert.True(t, scriptrel.IsFormatErr(err))
		})
	}

	_, err := NewID(10000, 'G', "JO")
	assert.True(t, scriptrel.IsFormatErr(err))
	_, err = NewID(1, 'G', "J")
	assert.True(t, scriptrel.IsFormatErr(err))
}

func TestValidInitials(t *testing.T) {
	assert.True(t, ValidInitials("JO"))
	assert.True(t, ValidInitials("ab"))
	assert.False(t, ValidInitials("J"))
	assert.False(t, ValidInitials("JOE"))
	assert.False(t, ValidInitials("J1"))
}

func TestSubsystem(t *testing.T) {
	assert.Equal(t, "gestor", Gestor.Key())
	assert.Equal(t, "Supervisor", Supervisor.String())
}
