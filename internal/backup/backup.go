// Package backup keeps copies of source files before they are rewritten, so
// an aborted release can put the originals back.
//
// The ledger is a text file (pending.txt) with one originalPath|backupPath
// record per line. New records are appended; when the same original path is
// registered twice, the later record wins and the superseded backup file is
// removed. Restore and Clear consume the records of a path and rewrite the
// ledger; an empty ledger is deleted along with its directory.
package backup

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pthm/scriptrel"
)

// LedgerFile is the name of the ledger inside the backup directory.
const LedgerFile = "pending.txt"

// Record pairs an original file with its backup copy.
type Record struct {
	Original string
	Backup   string
}

// Ledger manages backups stored in a single directory.
type Ledger struct {
	dir string
	now func() time.Time
}

// New creates a ledger rooted at dir. The directory is created lazily.
func New(dir string) *Ledger {
	return &Ledger{dir: dir, now: time.Now}
}

// Dir returns the backup directory.
func (l *Ledger) Dir() string {
	return l.dir
}

func (l *Ledger) ledgerPath() string {
	return filepath.Join(l.dir, LedgerFile)
}

// Register copies original into the backup directory and records the pair.
func (l *Ledger) Register(original string) (Record, error) {
	orig, err := filepath.Abs(original)
	if err != nil {
		return Record{}, fmt.Errorf("%w: resolving %s: %w", scriptrel.ErrFilesystem, original, err)
	}

	previous, hadPrevious, err := l.Lookup(orig)
	if err != nil {
		return Record{}, err
	}

	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return Record{}, fmt.Errorf("%w: creating %s: %w", scriptrel.ErrFilesystem, l.dir, err)
	}

	stamp := l.now().Format("20060102-150405")
	bak, err := filepath.Abs(filepath.Join(l.dir, fmt.Sprintf("%s.bak-%s", filepath.Base(orig), stamp)))
	if err != nil {
		return Record{}, fmt.Errorf("%w: resolving backup path: %w", scriptrel.ErrFilesystem, err)
	}
	if err := copyFile(orig, bak); err != nil {
		return Record{}, err
	}

	rec := Record{Original: orig, Backup: bak}
	if err := l.appendRecord(rec); err != nil {
		return Record{}, err
	}

	if hadPrevious && previous.Backup != bak {
		if err := os.Remove(previous.Backup); err != nil && !errors.Is(err, fs.ErrNotExist) {
			slog.Warn("could not remove superseded backup", "backup", previous.Backup, "error", err)
		}
	}

	slog.Info("backup registered", "file", filepath.Base(orig), "backup", filepath.Base(bak))
	return rec, nil
}

// Load returns the active record of every original path. When a path was
// registered more than once, the last record wins.
func (l *Ledger) Load() (map[string]Record, error) {
	f, err := os.Open(l.ledgerPath())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]Record{}, nil
		}
		return nil, fmt.Errorf("%w: opening ledger: %w", scriptrel.ErrFilesystem, err)
	}
	defer func() { _ = f.Close() }()

	records := make(map[string]Record)
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		left, right, ok := strings.Cut(strings.TrimRight(sc.Text(), "\r"), "|")
		if !ok || left == "" || right == "" {
			continue
		}
		records[filepath.Clean(left)] = Record{Original: filepath.Clean(left), Backup: filepath.Clean(right)}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: reading ledger: %w", scriptrel.ErrFilesystem, err)
	}
	return records, nil
}

// Lookup returns the active record for original, if any.
func (l *Ledger) Lookup(original string) (Record, bool, error) {
	orig, err := filepath.Abs(original)
	if err != nil {
		return Record{}, false, fmt.Errorf("%w: resolving %s: %w", scriptrel.ErrFilesystem, original, err)
	}
	records, err := l.Load()
	if err != nil {
		return Record{}, false, err
	}
	rec, ok := records[orig]
	return rec, ok, nil
}

// Restore moves the backup of original back into place and drops its record.
// Returns false when no backup was registered for the path.
func (l *Ledger) Restore(original string) (bool, error) {
	rec, ok, err := l.Lookup(original)
	if err != nil || !ok {
		return false, err
	}

	restoreErr := restoreRecord(rec)
	if err := l.drop(rec.Original); err != nil {
		return false, errors.Join(restoreErr, err)
	}
	if restoreErr != nil {
		return false, restoreErr
	}
	slog.Info("restored from backup", "file", filepath.Base(rec.Original), "backup", filepath.Base(rec.Backup))
	return true, nil
}

// RestoreAll restores every active record and removes the ledger. A failure
// on one file is logged and does not stop the others; the failures are
// returned joined together with the number of files restored.
func (l *Ledger) RestoreAll() (int, error) {
	records, err := l.Load()
	if err != nil {
		return 0, err
	}

	origs := make([]string, 0, len(records))
	for orig := range records {
		origs = append(origs, orig)
	}
	sort.Strings(origs)

	restored := 0
	var errs []error
	for _, orig := range origs {
		rec := records[orig]
		if err := restoreRecord(rec); err != nil {
			slog.Warn("restore failed", "file", rec.Original, "error", err)
			errs = append(errs, err)
			continue
		}
		slog.Info("restored from backup", "file", filepath.Base(rec.Original), "backup", filepath.Base(rec.Backup))
		restored++
	}

	if err := l.save(nil); err != nil {
		errs = append(errs, err)
	}
	return restored, errors.Join(errs...)
}

// Clear removes the backup file and record of original, after the original
// has been published successfully. It is a no-op without a record.
func (l *Ledger) Clear(original string) error {
	rec, ok, err := l.Lookup(original)
	if err != nil || !ok {
		return err
	}
	if err := os.Remove(rec.Backup); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("could not remove backup", "backup", rec.Backup, "error", err)
	}
	if err := l.drop(rec.Original); err != nil {
		return err
	}
	slog.Info("backup record cleared", "file", filepath.Base(rec.Original))
	return nil
}

func (l *Ledger) drop(orig string) error {
	records, err := l.Load()
	if err != nil {
		return err
	}
	delete(records, orig)
	return l.save(records)
}

func (l *Ledger) appendRecord(rec Record) error {
	f, err := os.OpenFile(l.ledgerPath(), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("%w: opening ledger: %w", scriptrel.ErrFilesystem, err)
	}
	if _, err := fmt.Fprintf(f, "%s|%s\n", rec.Original, rec.Backup); err != nil {
		_ = f.Close()
		return fmt.Errorf("%w: appending to ledger: %w", scriptrel.ErrFilesystem, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: closing ledger: %w", scriptrel.ErrFilesystem, err)
	}
	return nil
}

// save rewrites the ledger with records. With no records the ledger is
// removed, and so is the backup directory once it is empty.
func (l *Ledger) save(records map[string]Record) error {
	if len(records) == 0 {
		if err := os.Remove(l.ledgerPath()); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: removing ledger: %w", scriptrel.ErrFilesystem, err)
		}
		if entries, err := os.ReadDir(l.dir); err == nil && len(entries) == 0 {
			_ = os.Remove(l.dir)
		}
		return nil
	}

	origs := make([]string, 0, len(records))
	for orig := range records {
		origs = append(origs, orig)
	}
	sort.Strings(origs)

	var b strings.Builder
	for _, orig := range origs {
		fmt.Fprintf(&b, "%s|%s\n", records[orig].Original, records[orig].Backup)
	}
	if err := os.WriteFile(l.ledgerPath(), []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("%w: writing ledger: %w", scriptrel.ErrFilesystem, err)
	}
	return nil
}

// restoreRecord replaces the original with its backup. The rename is atomic
// when both live on the same filesystem.
func restoreRecord(rec Record) error {
	if _, err := os.Stat(rec.Backup); err != nil {
		return fmt.Errorf("%w: backup %s: %w", scriptrel.ErrFilesystem, rec.Backup, err)
	}
	if err := os.MkdirAll(filepath.Dir(rec.Original), 0o755); err != nil {
		return fmt.Errorf("%w: creating %s: %w", scriptrel.ErrFilesystem, filepath.Dir(rec.Original), err)
	}
	if err := os.Rename(rec.Backup, rec.Original); err != nil {
		return fmt.Errorf("%w: restoring %s: %w", scriptrel.ErrFilesystem, rec.Original, err)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("%w: opening %s: %w", scriptrel.ErrFilesystem, src, err)
	}
	defer func() { _ = in.Close() }()

	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("%w: stat %s: %w", scriptrel.ErrFilesystem, src, err)
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, info.Mode().Perm())
	if err != nil {
		return fmt.Errorf("%w: creating %s: %w", scriptrel.ErrFilesystem, dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("%w: copying %s: %w", scriptrel.ErrFilesystem, src, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("%w: closing %s: %w", scriptrel.ErrFilesystem, dst, err)
	}
	return os.Chtimes(dst, info.ModTime(), info.ModTime())
}
