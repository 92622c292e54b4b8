package script

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"github.com/pthm/scriptrel"
)

// File is a script present on disk.
type File struct {
	ID   ID
	Path string
}

// Name returns the base file name.
func (f File) Name() string {
	return filepath.Base(f.Path)
}

var (
	// listPattern matches published scripts of any subsystem letter, with
	// the same case rules NextSequence applies.
	listPattern = regexp.MustCompile(`^(\d{4})\.0\.([A-Z])([A-Za-z]{2})\.sql$`)

	// seqPattern finds a script id anywhere in a string (control table
	// values may carry a path or a lower-case letter).
	seqPattern = regexp.MustCompile(`(\d{4})\.0\.[A-Za-z]{3}`)
)

// NextSequence returns 1 + the highest sequence among files in dir named
// NNNN.0.<letter>XX.sql, or 1 when there are none. A missing directory counts
// as empty. Gaps are ignored.
//
// Allocation is not safe against concurrent writers; callers must make sure a
// single process drives a release at a time.
func NextSequence(dir string, letter byte) (int, error) {
	pattern := regexp.MustCompile(fmt.Sprintf(`^(\d{4})\.0\.%c[A-Za-z]{2}\.sql$`, upper(letter)))

	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 1, nil
		}
		return 0, fmt.Errorf("%w: reading %s: %w", scriptrel.ErrFilesystem, dir, err)
	}

	maxSeq := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		m := pattern.FindStringSubmatch(entry.Name())
		if m == nil {
			continue
		}
		if n, _ := strconv.Atoi(m[1]); n > maxSeq {
			maxSeq = n
		}
	}
	return maxSeq + 1, nil
}

// ParseSequence extracts the sequence from the first script id found anywhere
// in s. Returns 0 when there is none, which callers treat as "nothing applied".
func ParseSequence(s string) int {
	m := seqPattern.FindStringSubmatch(s)
	if m == nil {
		return 0
	}
	n, _ := strconv.Atoi(m[1])
	return n
}

// List returns the scripts in dir sorted by ascending sequence. Entries that
// don't follow the naming grammar are skipped. A missing directory yields an
// empty list.
func List(dir string) ([]File, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: reading %s: %w", scriptrel.ErrFilesystem, dir, err)
	}

	files := make([]File, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		m := listPattern.FindStringSubmatch(entry.Name())
		if m == nil {
			continue
		}
		seq, _ := strconv.Atoi(m[1])
		files = append(files, File{
			ID:   ID{Seq: seq, Letter: m[2][0], Initials: m[3]},
			Path: filepath.Join(dir, entry.Name()),
		})
	}

	sort.SliceStable(files, func(i, j int) bool {
		if files[i].ID.Seq != files[j].ID.Seq {
			return files[i].ID.Seq < files[j].ID.Seq
		}
		return files[i].Name() < files[j].Name()
	})
	return files, nil
}

// Pending returns the files with a sequence above last, keeping order.
func Pending(files []File, last int) []File {
	var out []File
	for _, f := range files {
		if f.ID.Seq > last {
			out = append(out, f)
		}
	}
	return out
}

// Duplicates returns the sequences shared by more than one file.
func Duplicates(files []File) map[int][]File {
	bySeq := make(map[int][]File)
	for _, f := range files {
		bySeq[f.ID.Seq] = append(bySeq[f.ID.Seq], f)
	}
	dups := make(map[int][]File)
	for seq, group := range bySeq {
		if len(group) > 1 {
			dups[seq] = group
		}
	}
	return dups
}
