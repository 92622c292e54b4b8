package treat

import (
	"strings"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pthm/scriptrel"
	"github.com/pthm/scriptrel/pkg/script"
)

func newGoldie(t *testing.T) *goldie.Goldie {
	t.Helper()
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

func TestTreat_Golden(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		opts Options
	}{
		{
			name: "treat_gestor",
			raw: "-- cria tabela de clientes\r\n" +
				"create table clientes (id int primary key, nome varchar(80));\r\n" +
				"insert into clientes values (1, 'João; Silva');\r\n" +
				"DO $$\r\nBEGIN\r\n  RAISE NOTICE 'ok;';\r\nEND\r\n$$\r\n" +
				"update clientes set nome = upper(nome)\r\n",
			opts: Options{
				Subsystem: script.Gestor,
				Seq:       42,
				Initials:  "jo",
				Author:    "João Oliveira",
				Now:       time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC),
				Host:      "10.0.0.7",
			},
		},
		{
			name: "treat_supervisor_sentinels",
			raw: "select 1;\n" + Sentinel + "\n\n" + Sentinel + "\nselect 2;\n\n;\n",
			opts: Options{
				Subsystem: script.Supervisor,
				Seq:       7,
				Initials:  "AS",
				Author:    "Ana Souza",
				Now:       time.Date(2026, 2, 1, 18, 5, 0, 0, time.UTC),
				Host:      "192.168.1.20",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Treat(tt.raw, tt.opts)
			require.NoError(t, err)
			assert.False(t, res.AlreadyTreated)
			newGoldie(t).Assert(t, tt.name, []byte(res.Text))
		})
	}
}

func TestTreat_Idempotent(t *testing.T) {
	opts := Options{
		Subsystem: script.Gestor,
		Seq:       12,
		Initials:  "JO",
		Author:    "João",
		Host:      "127.0.0.1",
	}
	first, err := Treat("select 1;\nselect 2;", opts)
	require.NoError(t, err)
	assert.Equal(t, "0012.0.GJO", first.ID.String())

	// A later run would allocate a new sequence; the embedded id must win.
	opts.Seq = 13
	second, err := Treat(first.Text, opts)
	require.NoError(t, err)
	assert.True(t, second.AlreadyTreated)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.Text, second.Text)
}

func TestTreat_NoDoubleSentinels(t *testing.T) {
	res, err := Treat("select 1;;;\n\n;select 2;", Options{
		Subsystem: script.Gestor, Seq: 1, Initials: "JO", Host: "h",
	})
	require.NoError(t, err)
	assert.NotContains(t, res.Text, Sentinel+"\n\n"+Sentinel)
	assert.NotContains(t, res.Text, Sentinel+"\n"+Sentinel)
	assert.True(t, strings.HasSuffix(res.Text, Sentinel+"\n"))
}

func TestTreat_InvalidOptions(t *testing.T) {
	_, err := Treat("select 1;", Options{Subsystem: script.Gestor, Seq: 1, Initials: "J"})
	require.Error(t, err)
	assert.True(t, scriptrel.IsFormatErr(err))

	_, err = Treat("select 1;", Options{Subsystem: script.Gestor, Seq: 0, Initials: "JO"})
	require.Error(t, err)
}

func TestTreat_TreatedWithoutID(t *testing.T) {
	raw := "/*\n--#AUTOR...: x\n*/\nselect * from sistema.fn_verifica_script();\n"
	_, err := Treat(raw, Options{Subsystem: script.Gestor, Seq: 1, Initials: "JO"})
	require.Error(t, err)
	assert.True(t, scriptrel.IsFormatErr(err))
}

func TestIsTreated(t *testing.T) {
	tests := []struct {
		name string
		text string
		want bool
	}{
		{"plain sql", "select 1;", false},
		{"marker only", "--#AUTOR...: x\nselect 1;", false},
		{"call only", "select * from sistema.fn_verifica_script('0001.0.GJO');", false},
		{"marker and call", "--#AUTOR...: x\nselect * from sistema.FN_VERIFICA_SCRIPT('0001.0.GJO');", true},
		{"script header", "--#SCRIPT..: 0001.0.GJO\nselect 1;", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTreated(tt.text, DefaultVerifyFunc))
		})
	}
}

func TestExtractID(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		want   string
		wantOK bool
	}{
		{"header", "--#SCRIPT..: 0003.0.SAB\n", "0003.0.SAB", true},
		{"verify call", "select * from sistema.fn_verifica_script( '0004.0.GJO.sql' );", "0004.0.GJO", true},
		{"unqualified call", "select fn_verifica_script('0005.0.GJO')", "0005.0.GJO", true},
		{"missing", "select 1;", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractID(tt.text, DefaultVerifyFunc)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBlocks(t *testing.T) {
	text := "select 1;\r\n" + Sentinel + "\r\n\r\nselect 2;\r\n" + Sentinel + "\r\n"
	assert.Equal(t, []string{"select 1;", "select 2;"}, Blocks(text))
	assert.Equal(t, []string{"select 1; select 2;"}, Blocks("  select 1; select 2;\n"))
	assert.Empty(t, Blocks("\n\n"))
}

func TestStatements(t *testing.T) {
	res, err := Treat("create table t (id int);\ninsert into t values (1);", Options{
		Subsystem: script.Gestor, Seq: 3, Initials: "JO", Author: "a", Host: "h",
	})
	require.NoError(t, err)

	stmts := Statements(res.Text)
	require.Len(t, stmts, 4)
	assert.Contains(t, stmts[0], "fn_verifica_script('0003.0.GJO')")
	assert.True(t, strings.HasPrefix(stmts[0], "/*"), "header stays attached to the verify call")
	assert.Equal(t, "create table t (id int);", stmts[1])
	assert.Equal(t, "insert into t values (1);", stmts[2])
	assert.Equal(t, "select * from sistema.fn_atualiza_script('0003.0.GJO');", stmts[3])

	assert.Equal(t, []string{"select 1;", "select 2;"}, Statements("select 1; select 2;"))
}

func TestScrubHeader(t *testing.T) {
	res, err := Treat("select 1 /* keep */;", Options{
		Subsystem: script.Gestor, Seq: 9, Initials: "JO", Author: "a", Host: "h",
	})
	require.NoError(t, err)

	scrubbed := ScrubHeader(res.Text, DefaultVerifyFunc)
	head, tail, found := strings.Cut(scrubbed, "select * from sistema.fn_verifica_script(")
	require.True(t, found)
	assert.NotContains(t, head, "/*")
	assert.NotContains(t, head, "*/")
	assert.Contains(t, head, "--#AUTOR...: a")
	assert.Contains(t, tail, "/* keep */")

	id, ok := ExtractID(scrubbed, DefaultVerifyFunc)
	require.True(t, ok)
	assert.Equal(t, "0009.0.GJO", id)

	assert.Equal(t, "select 1;", ScrubHeader("select 1;", DefaultVerifyFunc))
}

func TestCustomFunctions(t *testing.T) {
	res, err := Treat("select 1;", Options{
		Subsystem:  script.Gestor,
		Seq:        1,
		Initials:   "JO",
		Host:       "h",
		VerifyFunc: "ctl.check_script",
		MarkFunc:   "ctl.mark_script",
	})
	require.NoError(t, err)
	assert.Contains(t, res.Text, "select * from ctl.check_script('0001.0.GJO');")
	assert.Contains(t, res.Text, "select * from ctl.mark_script('0001.0.GJO');")
	assert.True(t, IsTreated(res.Text, "ctl.check_script"))
}

func TestHostHint(t *testing.T) {
	assert.NotEmpty(t, HostHint())
}
