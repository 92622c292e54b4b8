// Package script implements the naming and sequencing rules for release scripts.
//
// Every published script is named NNNN.0.<Letter><Initials>.sql:
//
//	0042.0.GJO.sql
//	│    │ ││
//	│    │ │└─ author initials (two letters)
//	│    │ └── subsystem letter (G = Gestor, S = Supervisor)
//	│    └──── fixed sub-revision
//	└───────── zero-padded sequence number
//
// The file name without extension is the script id passed to the database
// verify/mark functions. Sequence numbers only grow; a directory never holds
// two files with the same sequence.
package script

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/pthm/scriptrel"
)

// Ext is the extension of every script file.
const Ext = ".sql"

// Subsystem is one independently versioned script family.
type Subsystem struct {
	// Name is the display name, also used as the directory name (Gestor).
	Name string
	// Letter is the upper-case letter embedded in script ids.
	Letter byte
}

// Built-in subsystems.
var (
	Gestor     = Subsystem{Name: "Gestor", Letter: 'G'}
	Supervisor = Subsystem{Name: "Supervisor", Letter: 'S'}
)

// Key returns the lower-case name used for config keys and sidecar files.
func (s Subsystem) Key() string {
	return strings.ToLower(s.Name)
}

func (s Subsystem) String() string {
	return s.Name
}

// ID identifies a script: sequence, fixed zero sub-revision, subsystem letter
// and author initials.
type ID struct {
	Seq      int
	Letter   byte
	Initials string
}

// NewID builds an id, normalising letter and initials to upper case.
func NewID(seq int, letter byte, initials string) (ID, error) {
	id := ID{
		Seq:      seq,
		Letter:   upper(letter),
		Initials: strings.ToUpper(initials),
	}
	if seq < 1 || seq > 9999 {
		return ID{}, fmt.Errorf("%w: sequence %d out of range 1-9999", scriptrel.ErrFormat, seq)
	}
	if !isLetter(id.Letter) {
		return ID{}, fmt.Errorf("%w: subsystem letter %q", scriptrel.ErrFormat, letter)
	}
	if !ValidInitials(id.Initials) {
		return ID{}, fmt.Errorf("%w: initials %q must be two letters", scriptrel.ErrFormat, initials)
	}
	return id, nil
}

// String renders the id without extension (0042.0.GJO).
func (id ID) String() string {
	return fmt.Sprintf("%04d.0.%c%s", id.Seq, id.Letter, id.Initials)
}

// FileName renders the id with the script extension (0042.0.GJO.sql).
func (id ID) FileName() string {
	return id.String() + Ext
}

// IsZero reports whether id is the zero value.
func (id ID) IsZero() bool {
	return id.Seq == 0 && id.Letter == 0 && id.Initials == ""
}

var idPattern = regexp.MustCompile(`^(\d{4})\.0\.([A-Za-z])([A-Za-z]{2})$`)

// ParseID parses a script id, with or without the .sql extension.
// The grammar is strict: anything else is an ErrFormat.
func ParseID(s string) (ID, error) {
	trimmed := strings.TrimSpace(s)
	if strings.HasSuffix(strings.ToLower(trimmed), Ext) {
		trimmed = trimmed[:len(trimmed)-len(Ext)]
	}
	m := idPattern.FindStringSubmatch(trimmed)
	if m == nil {
		return ID{}, fmt.Errorf("%w: %q", scriptrel.ErrFormat, s)
	}
	seq, _ := strconv.Atoi(m[1])
	return NewID(seq, m[2][0], m[3])
}

// ValidInitials reports whether s is exactly two ASCII letters.
func ValidInitials(s string) bool {
	return len(s) == 2 && isLetter(s[0]) && isLetter(s[1])
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func upper(c byte) byte {
	if c >= 'a' && c <= 'z' {
		return c - 'a' + 'A'
	}
	return c
}
