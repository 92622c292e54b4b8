// Package release implements the release workflow of a script repository:
// treating raw sources, bringing the TEST and DEV tiers up to date, running
// the new script, and publishing it as a numbered file.
package release

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pthm/scriptrel"
	"github.com/pthm/scriptrel/internal/backup"
	"github.com/pthm/scriptrel/internal/textenc"
	"github.com/pthm/scriptrel/pkg/script"
	"github.com/pthm/scriptrel/pkg/treat"
)

// Subsystem locates the files of one script family.
type Subsystem struct {
	script.Subsystem

	// Source is the raw SQL file edited by developers (gestor.sql).
	Source string

	// Dir holds the numbered scripts (src/Scripts/Gestor).
	Dir string
}

// Workspace is the on-disk state shared by the release workflows.
type Workspace struct {
	// StateDir holds the .target_<subsystem>.txt sidecars.
	StateDir string
	Ledger   *backup.Ledger
	Codec    *textenc.Codec

	Author   string
	Initials string

	VerifyFunc string
	MarkFunc   string

	// Now and Host override the header stamp. Used by tests.
	Now  func() time.Time
	Host string
}

func (w *Workspace) codec() *textenc.Codec {
	if w.Codec == nil {
		return textenc.Default()
	}
	return w.Codec
}

func (w *Workspace) verifyFunc() string {
	if w.VerifyFunc == "" {
		return treat.DefaultVerifyFunc
	}
	return w.VerifyFunc
}

// TreatOutcome describes what Treat did to a source file.
type TreatOutcome struct {
	Target Target
	// Skipped is set when the source is missing or blank.
	Skipped bool
	// AlreadyTreated is set when the source was treated by an earlier run;
	// the file is left untouched and the sidecar is refreshed.
	AlreadyTreated bool
}

// Treat turns the subsystem's source file into a treated script in place.
// The original bytes are registered in the backup ledger before the file is
// rewritten, so Restore can undo the change.
func (w *Workspace) Treat(sub Subsystem) (*TreatOutcome, error) {
	log := slog.With("subsystem", sub.Name)

	raw, err := w.codec().ReadFile(sub.Source)
	if errors.Is(err, fs.ErrNotExist) {
		log.Info("no source file", "file", sub.Source)
		return &TreatOutcome{Skipped: true}, nil
	}
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(raw) == "" {
		log.Info("source file is empty", "file", sub.Source)
		return &TreatOutcome{Skipped: true}, nil
	}

	if treat.IsTreated(raw, w.verifyFunc()) {
		res, err := treat.Treat(raw, treat.Options{Subsystem: sub.Subsystem, VerifyFunc: w.verifyFunc()})
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(sub.Source), err)
		}
		target := Target{Subsystem: sub.Subsystem, ID: res.ID}
		if err := writeTarget(w.StateDir, target); err != nil {
			return nil, err
		}
		log.Info("already treated", "script", res.ID.String())
		return &TreatOutcome{Target: target, AlreadyTreated: true}, nil
	}

	seq, err := script.NextSequence(sub.Dir, sub.Letter)
	if err != nil {
		return nil, err
	}

	opts := treat.Options{
		Subsystem:  sub.Subsystem,
		Seq:        seq,
		Initials:   w.Initials,
		Author:     w.Author,
		Host:       w.Host,
		VerifyFunc: w.VerifyFunc,
		MarkFunc:   w.MarkFunc,
	}
	if w.Now != nil {
		opts.Now = w.Now()
	}
	res, err := treat.Treat(raw, opts)
	if err != nil {
		return nil, err
	}

	if _, err := w.Ledger.Register(sub.Source); err != nil {
		return nil, err
	}
	if err := w.codec().WriteFile(sub.Source, res.Text); err != nil {
		w.rollback(sub)
		return nil, err
	}
	target := Target{Subsystem: sub.Subsystem, ID: res.ID}
	if err := writeTarget(w.StateDir, target); err != nil {
		w.rollback(sub)
		return nil, err
	}

	log.Info("treated", "script", res.ID.String(), "file", filepath.Base(sub.Source))
	return &TreatOutcome{Target: target}, nil
}

// LoadTarget returns the pending target of a subsystem together with the
// treated text of its source file. ErrNoTarget means there is nothing to
// release for this subsystem.
func (w *Workspace) LoadTarget(sub Subsystem) (Target, string, error) {
	target, err := readTarget(w.StateDir, sub.Subsystem)
	if err != nil {
		return Target{}, "", err
	}

	text, err := w.codec().ReadFile(sub.Source)
	if errors.Is(err, fs.ErrNotExist) {
		return Target{}, "", fmt.Errorf("%s: source %s is gone: %w", sub.Name, filepath.Base(sub.Source), ErrNoTarget)
	}
	if err != nil {
		return Target{}, "", err
	}

	id, ok := treat.ExtractID(text, w.verifyFunc())
	if !ok || id != target.ID.String() {
		return Target{}, "", fmt.Errorf("%w: %s does not contain treated script %s",
			scriptrel.ErrFormat, filepath.Base(sub.Source), target.ID)
	}
	return target, text, nil
}

// Publish writes the treated source of a subsystem as its numbered script
// file and cleans up the source, sidecar and backup. It refuses to overwrite
// an existing file or to reuse a sequence already taken in the directory.
// When the copy fails, the source is restored from its backup.
func (w *Workspace) Publish(sub Subsystem) (string, error) {
	target, text, err := w.LoadTarget(sub)
	if err != nil {
		return "", err
	}

	dest := filepath.Join(sub.Dir, target.ID.FileName())
	if _, err := os.Stat(dest); err == nil {
		return "", fmt.Errorf("%w: refusing to overwrite %s", scriptrel.ErrFilesystem, dest)
	}
	files, err := script.List(sub.Dir)
	if err != nil {
		return "", err
	}
	for _, f := range files {
		if f.ID.Seq == target.ID.Seq {
			return "", fmt.Errorf("%w: sequence %04d already used by %s",
				scriptrel.ErrFormat, target.ID.Seq, f.Name())
		}
	}

	if err := os.MkdirAll(sub.Dir, 0o755); err != nil {
		w.rollback(sub)
		return "", fmt.Errorf("%w: creating %s: %w", scriptrel.ErrFilesystem, sub.Dir, err)
	}
	if err := w.codec().WriteFile(dest, treat.ScrubHeader(text, w.verifyFunc())); err != nil {
		w.rollback(sub)
		return "", err
	}

	if err := os.Remove(sub.Source); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("could not remove source", "file", sub.Source, "error", err)
	}
	if err := removeTarget(w.StateDir, sub.Subsystem); err != nil {
		slog.Warn("could not remove target", "subsystem", sub.Name, "error", err)
	}
	if err := w.Ledger.Clear(sub.Source); err != nil {
		slog.Warn("could not clear backup", "file", sub.Source, "error", err)
	}

	slog.Info("published", "subsystem", sub.Name, "script", target.ID.FileName())
	return dest, nil
}

// Restore puts every backed-up source back and drops the ledger. Sidecars
// of restored subsystems are removed since their sources are raw again.
func (w *Workspace) Restore(subs []Subsystem) (int, error) {
	records, err := w.Ledger.Load()
	if err != nil {
		return 0, err
	}

	n, restoreErr := w.Ledger.RestoreAll()

	var errs []error
	if restoreErr != nil {
		errs = append(errs, restoreErr)
	}
	for _, sub := range subs {
		abs, _ := filepath.Abs(sub.Source)
		if _, ok := records[abs]; !ok {
			continue
		}
		if err := removeTarget(w.StateDir, sub.Subsystem); err != nil {
			errs = append(errs, err)
		}
	}
	return n, errors.Join(errs...)
}

// rollback restores the source after a failed rewrite. Failures are logged;
// the ledger keeps the record for a manual restore.
func (w *Workspace) rollback(sub Subsystem) {
	if _, err := w.Ledger.Restore(sub.Source); err != nil {
		slog.Error("could not restore source, run restore manually",
			"file", sub.Source, "backup_dir", w.Ledger.Dir(), "error", err)
	}
}
