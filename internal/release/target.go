package release

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pthm/scriptrel"
	"github.com/pthm/scriptrel/pkg/script"
)

// ErrNoTarget is returned when a subsystem has no treated source waiting
// for release.
var ErrNoTarget = errors.New("no release target")

// Target is the handoff from treat to release: the subsystem and the id of
// the script sitting, treated, in the subsystem's source file.
type Target struct {
	Subsystem script.Subsystem
	ID        script.ID
}

func (t Target) String() string {
	return t.Subsystem.Name + "/" + t.ID.String()
}

func sidecarPath(stateDir string, sub script.Subsystem) string {
	return filepath.Join(stateDir, ".target_"+sub.Key()+".txt")
}

func writeTarget(stateDir string, t Target) error {
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return fmt.Errorf("%w: creating state dir: %w", scriptrel.ErrFilesystem, err)
	}
	path := sidecarPath(stateDir, t.Subsystem)
	if err := os.WriteFile(path, []byte(t.ID.String()+"\n"), 0o644); err != nil {
		return fmt.Errorf("%w: writing %s: %w", scriptrel.ErrFilesystem, filepath.Base(path), err)
	}
	return nil
}

func readTarget(stateDir string, sub script.Subsystem) (Target, error) {
	path := sidecarPath(stateDir, sub)
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Target{}, fmt.Errorf("%s: %w", sub.Name, ErrNoTarget)
	}
	if err != nil {
		return Target{}, fmt.Errorf("%w: reading %s: %w", scriptrel.ErrFilesystem, filepath.Base(path), err)
	}
	id, err := script.ParseID(strings.TrimSpace(string(b)))
	if err != nil {
		return Target{}, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	if id.Letter != sub.Letter {
		return Target{}, fmt.Errorf("%w: %s holds %s, not a %s script",
			scriptrel.ErrFormat, filepath.Base(path), id, sub.Name)
	}
	return Target{Subsystem: sub, ID: id}, nil
}

func removeTarget(stateDir string, sub script.Subsystem) error {
	err := os.Remove(sidecarPath(stateDir, sub))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: removing target: %w", scriptrel.ErrFilesystem, err)
	}
	return nil
}
