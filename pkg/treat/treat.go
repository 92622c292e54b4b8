// Package treat turns a raw SQL source file into a treated release script.
//
// A treated script is stamped with a header, starts with a call to the
// database verify function, carries each original statement followed by a
// sentinel line, and ends with a call to the mark function:
//
//	/*
//	--#AUTOR...: João Oliveira
//	--#DATA....: 14/03/26 09:26:53 - IP: 10.0.0.7
//	--#SISTEMA.: Gestor
//	--#SCRIPT..: 0042.0.GJO
//	*/
//
//	select * from sistema.fn_verifica_script('0042.0.GJO');
//
//	---------- END OFF COMMAND ----------
//
//	create table t (id int);
//	---------- END OFF COMMAND ----------
//
//	select * from sistema.fn_atualiza_script('0042.0.GJO');
//
//	---------- END OFF COMMAND ----------
//
// The sentinel is a hard statement boundary: executors that receive a treated
// script can cut it into blocks without running the tokenizer again.
package treat

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/pthm/scriptrel"
	"github.com/pthm/scriptrel/pkg/script"
	"github.com/pthm/scriptrel/pkg/sqlsplit"
)

// Sentinel separates statements inside a treated script. It is a SQL line
// comment, so the script stays valid when run as a whole.
const Sentinel = "---------- END OFF COMMAND ----------"

// Default database functions called at the top and bottom of every script.
const (
	DefaultVerifyFunc = "sistema.fn_verifica_script"
	DefaultMarkFunc   = "sistema.fn_atualiza_script"
)

// Header markers.
const (
	headerAuthor    = "--#AUTOR...: "
	headerDate      = "--#DATA....: "
	headerSubsystem = "--#SISTEMA.: "
	headerScript    = "--#SCRIPT..: "

	// AuthorMarker is present in every treated header.
	AuthorMarker = "--#AUTOR"
)

const dateLayout = "02/01/06 15:04:05"

// Options configures a Treat call.
type Options struct {
	Subsystem script.Subsystem
	// Seq is the sequence number to allocate when the text is not treated yet.
	Seq      int
	Initials string
	Author   string

	// Now stamps the header. Zero means time.Now().
	Now time.Time
	// Host is the machine hint written next to the date. Empty means HostHint().
	Host string

	VerifyFunc string
	MarkFunc   string
}

func (o Options) verifyFunc() string {
	if o.VerifyFunc == "" {
		return DefaultVerifyFunc
	}
	return o.VerifyFunc
}

func (o Options) markFunc() string {
	if o.MarkFunc == "" {
		return DefaultMarkFunc
	}
	return o.MarkFunc
}

// Result is the outcome of Treat.
type Result struct {
	ID   script.ID
	Text string
	// AlreadyTreated is set when the input was a treated script; Text is then
	// the unchanged input.
	AlreadyTreated bool
}

// Treat produces the treated script for raw. If raw is already treated, the
// embedded id is returned and nothing is regenerated, so treating the output
// of Treat again always yields the same id.
func Treat(raw string, opts Options) (Result, error) {
	if IsTreated(raw, opts.verifyFunc()) {
		existing, ok := ExtractID(raw, opts.verifyFunc())
		if !ok {
			return Result{}, fmt.Errorf("%w: text looks treated but no script id was found in %s()",
				scriptrel.ErrFormat, opts.verifyFunc())
		}
		id, err := script.ParseID(existing)
		if err != nil {
			return Result{}, err
		}
		return Result{ID: id, Text: raw, AlreadyTreated: true}, nil
	}

	id, err := script.NewID(opts.Seq, opts.Subsystem.Letter, opts.Initials)
	if err != nil {
		return Result{}, err
	}

	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	host := opts.Host
	if host == "" {
		host = HostHint()
	}

	b := &builder{}
	b.add("/*")
	b.add(headerAuthor + opts.Author)
	b.add(headerDate + now.Format(dateLayout) + " - IP: " + host)
	b.add(headerSubsystem + opts.Subsystem.Name)
	b.add(headerScript + id.String())
	b.add("*/")
	b.add("")
	b.add(Call(opts.verifyFunc(), id))
	b.add("")
	b.sep()

	for _, stmt := range sqlsplit.Split(raw) {
		b.add(stmt)
		b.sep()
	}

	b.add(Call(opts.markFunc(), id))
	b.add("")
	b.sep()

	return Result{ID: id, Text: b.String()}, nil
}

// Call renders the statement that invokes fn with the script id.
func Call(fn string, id script.ID) string {
	return fmt.Sprintf("select * from %s('%s');", fn, id.String())
}

// IsTreated reports whether text already went through Treat: either the
// structured script header is present, or the author marker together with a
// call to verifyFunc.
func IsTreated(text, verifyFunc string) bool {
	if headerIDPattern.MatchString(text) {
		return true
	}
	return strings.Contains(text, AuthorMarker) &&
		strings.Contains(strings.ToLower(text), strings.ToLower(bareFunc(verifyFunc))+"(")
}

var headerIDPattern = regexp.MustCompile(`(?m)^\s*` + regexp.QuoteMeta(headerScript) + `(\S+)\s*$`)

// ExtractID returns the script id (without extension) embedded in a treated
// text. The header line is preferred; the argument of the verify call is the
// fallback for scripts written before the header line existed.
func ExtractID(text, verifyFunc string) (string, bool) {
	if m := headerIDPattern.FindStringSubmatch(text); m != nil {
		return trimExt(m[1]), true
	}

	pattern := regexp.MustCompile(`(?i)` + regexp.QuoteMeta(bareFunc(verifyFunc)) + `\(\s*'([^']+)'\s*\)`)
	m := pattern.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	id := trimExt(strings.TrimSpace(m[1]))
	return id, id != ""
}

// Blocks cuts a treated script at its sentinel lines. Text without a
// sentinel is returned as a single block.
func Blocks(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	var blocks []string
	for _, part := range strings.Split(text, Sentinel) {
		if part = strings.TrimSpace(part); part != "" {
			blocks = append(blocks, part)
		}
	}
	return blocks
}

// Statements returns the executable statements of a script file: the
// sentinel blocks of a treated script, each passed through the splitter, or
// the splitter output for a plain file.
func Statements(text string) []string {
	var stmts []string
	for _, block := range Blocks(text) {
		stmts = append(stmts, sqlsplit.Split(block)...)
	}
	return stmts
}

// ScrubHeader blanks the /* and */ markers that precede the first verify
// call, leaving the --# header lines as plain line comments. The rest of the
// script is untouched.
func ScrubHeader(text, verifyFunc string) string {
	pattern := regexp.MustCompile(`(?i)` + regexp.QuoteMeta(bareFunc(verifyFunc)) + `\s*\(`)
	loc := pattern.FindStringIndex(text)
	if loc == nil {
		return text
	}
	head := strings.NewReplacer("/*", "  ", "*/", "  ").Replace(text[:loc[0]])
	return head + text[loc[0]:]
}

// bareFunc drops the schema qualifier: sistema.fn_x -> fn_x.
func bareFunc(fn string) string {
	if i := strings.LastIndex(fn, "."); i >= 0 {
		return fn[i+1:]
	}
	return fn
}

func trimExt(s string) string {
	if strings.HasSuffix(strings.ToLower(s), script.Ext) {
		return s[:len(s)-len(script.Ext)]
	}
	return s
}

var repeatedSentinel = regexp.MustCompile(`(?:` + regexp.QuoteMeta(Sentinel) + `\s*){2,}`)

// builder accumulates output lines and inserts a sentinel only after real
// content, so no two sentinels are ever adjacent.
type builder struct {
	lines []string
	dirty bool
}

func (b *builder) add(line string) {
	b.lines = append(b.lines, line)
	if t := strings.TrimSpace(line); t != "" && t != Sentinel {
		b.dirty = true
	}
}

func (b *builder) sep() {
	if !b.dirty {
		return
	}
	if n := len(b.lines); n == 0 || strings.TrimSpace(b.lines[n-1]) != Sentinel {
		b.lines = append(b.lines, Sentinel)
	}
	b.lines = append(b.lines, "")
	b.dirty = false
}

func (b *builder) String() string {
	out := strings.Join(b.lines, "\n")
	out = repeatedSentinel.ReplaceAllString(out, Sentinel+"\n\n")
	return strings.TrimSpace(out) + "\n"
}
