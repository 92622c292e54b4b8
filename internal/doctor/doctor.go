// Package doctor provides health checks for a script repository and its
// database tiers.
//
// The doctor command validates that a release can run: the author settings,
// the numbered script directories, the backup ledger, the sources waiting to
// be published, and the control table of every configured tier.
//
// Example usage:
//
//	d := doctor.New(ws, subs, tiers, migrator.Options{})
//	report := d.Run(ctx)
//	report.Print(os.Stdout, true) // verbose=true
package doctor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pthm/scriptrel/internal/release"
	"github.com/pthm/scriptrel/internal/textenc"
	"github.com/pthm/scriptrel/pkg/migrator"
	"github.com/pthm/scriptrel/pkg/script"
	"github.com/pthm/scriptrel/pkg/treat"
)

// Status represents the result of a health check.
type Status int

const (
	// StatusPass indicates the check passed.
	StatusPass Status = iota
	// StatusWarn indicates a non-critical issue.
	StatusWarn
	// StatusFail indicates a critical issue that will cause failures.
	StatusFail
)

func (s Status) String() string {
	switch s {
	case StatusPass:
		return "pass"
	case StatusWarn:
		return "warn"
	case StatusFail:
		return "fail"
	default:
		return "unknown"
	}
}

// Symbol returns a status indicator symbol for terminal output.
func (s Status) Symbol() string {
	switch s {
	case StatusPass:
		return "✓"
	case StatusWarn:
		return "⚠"
	case StatusFail:
		return "✗"
	default:
		return "?"
	}
}

// CheckResult represents the outcome of a single health check.
type CheckResult struct {
	// Category groups related checks (e.g., "Gestor", "Gestor/TEST").
	Category string

	// Name is a short identifier for the check.
	Name string

	// Status is the check outcome.
	Status Status

	// Message is a human-readable description of the result.
	Message string

	// Details provides additional information for verbose output.
	Details string

	// FixHint suggests how to resolve issues.
	FixHint string
}

// Report contains all health check results.
type Report struct {
	Checks []CheckResult

	// Summary counts.
	Passed   int
	Warnings int
	Errors   int
}

// AddCheck adds a check result and updates summary counts.
func (r *Report) AddCheck(check CheckResult) {
	r.Checks = append(r.Checks, check)
	switch check.Status {
	case StatusPass:
		r.Passed++
	case StatusWarn:
		r.Warnings++
	case StatusFail:
		r.Errors++
	}
}

// Print writes the report to the given writer.
func (r *Report) Print(w io.Writer, verbose bool) {
	// Group checks by category
	categories := make(map[string][]CheckResult)
	var categoryOrder []string
	for _, check := range r.Checks {
		if _, exists := categories[check.Category]; !exists {
			categoryOrder = append(categoryOrder, check.Category)
		}
		categories[check.Category] = append(categories[check.Category], check)
	}

	for _, cat := range categoryOrder {
		_, _ = fmt.Fprintf(w, "\n%s\n", cat)
		for _, check := range categories[cat] {
			_, _ = fmt.Fprintf(w, "  %s %s\n", check.Status.Symbol(), check.Message)
			if verbose && check.Details != "" {
				for _, line := range strings.Split(check.Details, "\n") {
					_, _ = fmt.Fprintf(w, "      %s\n", line)
				}
			}
			if check.Status != StatusPass && check.FixHint != "" {
				_, _ = fmt.Fprintf(w, "      Fix: %s\n", check.FixHint)
			}
		}
	}

	_, _ = fmt.Fprintf(w, "\nSummary: %d passed, %d warnings, %d errors\n",
		r.Passed, r.Warnings, r.Errors)
}

// HasErrors returns true if any check failed.
func (r *Report) HasErrors() bool {
	return r.Errors > 0
}

// Find returns the first check with the given category and name.
func (r *Report) Find(category, name string) (CheckResult, bool) {
	for _, c := range r.Checks {
		if c.Category == category && c.Name == name {
			return c, true
		}
	}
	return CheckResult{}, false
}

// Tier is one database to inspect. DB is nil when the tier has no
// connection settings; OpenErr records a failure to open it.
type Tier struct {
	Subsystem release.Subsystem
	Name      string
	DB        migrator.Execer
	OpenErr   error
}

// Doctor performs health checks on a script repository.
type Doctor struct {
	ws    *release.Workspace
	subs  []release.Subsystem
	tiers []Tier
	opts  migrator.Options
}

// New creates a new Doctor instance.
func New(ws *release.Workspace, subs []release.Subsystem, tiers []Tier, opts migrator.Options) *Doctor {
	return &Doctor{ws: ws, subs: subs, tiers: tiers, opts: opts}
}

// Run executes all health checks and returns a report. Failures to reach a
// database are reported as failed checks, not returned.
func (d *Doctor) Run(ctx context.Context) *Report {
	report := &Report{}

	d.checkAuthor(report)
	d.checkLedger(report)
	for _, sub := range d.subs {
		d.checkDirectory(report, sub)
		d.checkSource(report, sub)
	}
	for _, tier := range d.tiers {
		d.checkTier(ctx, report, tier)
	}
	return report
}

const categoryConfig = "Configuration"

func (d *Doctor) checkAuthor(report *Report) {
	if !script.ValidInitials(d.ws.Initials) {
		report.AddCheck(CheckResult{
			Category: categoryConfig,
			Name:     "initials",
			Status:   StatusFail,
			Message:  fmt.Sprintf("Author initials %q are not two letters", d.ws.Initials),
			FixHint:  "Set author.initials in scriptrel.yaml or SCRIPTREL_AUTHOR_INITIALS",
		})
	} else {
		report.AddCheck(CheckResult{
			Category: categoryConfig,
			Name:     "initials",
			Status:   StatusPass,
			Message:  fmt.Sprintf("Author initials %s", strings.ToUpper(d.ws.Initials)),
		})
	}

	if strings.TrimSpace(d.ws.Author) == "" {
		report.AddCheck(CheckResult{
			Category: categoryConfig,
			Name:     "author",
			Status:   StatusWarn,
			Message:  "Author name is empty; headers will carry a blank author",
			FixHint:  "Set author.name in scriptrel.yaml",
		})
	}

	if d.ws.Codec != nil {
		report.AddCheck(CheckResult{
			Category: categoryConfig,
			Name:     "encoding",
			Status:   StatusPass,
			Message:  fmt.Sprintf("Script encoding %s", d.ws.Codec.Name()),
		})
	}
}

func (d *Doctor) checkLedger(report *Report) {
	const category = "Backups"

	records, err := d.ws.Ledger.Load()
	if err != nil {
		report.AddCheck(CheckResult{
			Category: category,
			Name:     "ledger",
			Status:   StatusFail,
			Message:  "Backup ledger is unreadable",
			Details:  err.Error(),
		})
		return
	}
	if len(records) == 0 {
		report.AddCheck(CheckResult{
			Category: category,
			Name:     "ledger",
			Status:   StatusPass,
			Message:  "No pending backups",
		})
		return
	}

	origs := make([]string, 0, len(records))
	for orig := range records {
		origs = append(origs, orig)
	}
	sort.Strings(origs)

	var missing, lines []string
	for _, orig := range origs {
		rec := records[orig]
		lines = append(lines, fmt.Sprintf("%s <- %s", rec.Original, filepath.Base(rec.Backup)))
		if _, err := os.Stat(rec.Backup); err != nil {
			missing = append(missing, filepath.Base(rec.Backup))
		}
	}

	report.AddCheck(CheckResult{
		Category: category,
		Name:     "ledger",
		Status:   StatusWarn,
		Message:  fmt.Sprintf("%d source(s) have a pending backup", len(records)),
		Details:  strings.Join(lines, "\n"),
		FixHint:  "Publish the treated sources or run 'scriptrel restore'",
	})
	if len(missing) > 0 {
		report.AddCheck(CheckResult{
			Category: category,
			Name:     "backup_files",
			Status:   StatusFail,
			Message:  fmt.Sprintf("%d backup file(s) referenced by the ledger are missing", len(missing)),
			Details:  strings.Join(missing, "\n"),
			FixHint:  "Restore these sources from version control",
		})
	}
}

func (d *Doctor) checkDirectory(report *Report, sub release.Subsystem) {
	category := sub.Name

	info, err := os.Stat(sub.Dir)
	if err != nil || !info.IsDir() {
		report.AddCheck(CheckResult{
			Category: category,
			Name:     "directory",
			Status:   StatusFail,
			Message:  fmt.Sprintf("Script directory not found at %s", sub.Dir),
			FixHint:  "Check scripts_dir and subsystems." + sub.Key() + ".dir",
		})
		return
	}

	files, err := script.List(sub.Dir)
	if err != nil {
		report.AddCheck(CheckResult{
			Category: category,
			Name:     "directory",
			Status:   StatusFail,
			Message:  "Script directory is unreadable",
			Details:  err.Error(),
		})
		return
	}

	latest := 0
	if len(files) > 0 {
		latest = files[len(files)-1].ID.Seq
	}
	report.AddCheck(CheckResult{
		Category: category,
		Name:     "directory",
		Status:   StatusPass,
		Message:  fmt.Sprintf("%d script(s), latest sequence %04d", len(files), latest),
	})

	if dups := script.Duplicates(files); len(dups) > 0 {
		seqs := make([]int, 0, len(dups))
		for seq := range dups {
			seqs = append(seqs, seq)
		}
		sort.Ints(seqs)
		var lines []string
		for _, seq := range seqs {
			names := make([]string, 0, len(dups[seq]))
			for _, f := range dups[seq] {
				names = append(names, f.Name())
			}
			lines = append(lines, fmt.Sprintf("%04d: %s", seq, strings.Join(names, ", ")))
		}
		report.AddCheck(CheckResult{
			Category: category,
			Name:     "duplicates",
			Status:   StatusFail,
			Message:  fmt.Sprintf("%d sequence number(s) used by more than one script", len(dups)),
			Details:  strings.Join(lines, "\n"),
			FixHint:  "Renumber the later script to the next free sequence",
		})
	} else {
		report.AddCheck(CheckResult{
			Category: category,
			Name:     "duplicates",
			Status:   StatusPass,
			Message:  "No duplicate sequence numbers",
		})
	}

	if stray := strayScripts(sub.Dir, files); len(stray) > 0 {
		report.AddCheck(CheckResult{
			Category: category,
			Name:     "names",
			Status:   StatusWarn,
			Message:  fmt.Sprintf("%d .sql file(s) do not follow NNNN.0.<Letter><Initials>.sql and are ignored", len(stray)),
			Details:  strings.Join(stray, "\n"),
		})
	}
}

// strayScripts lists .sql files the applier will never pick up.
func strayScripts(dir string, listed []script.File) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	known := make(map[string]bool, len(listed))
	for _, f := range listed {
		known[f.Name()] = true
	}
	var stray []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), script.Ext) {
			continue
		}
		if !known[e.Name()] {
			stray = append(stray, e.Name())
		}
	}
	return stray
}

func (d *Doctor) checkSource(report *Report, sub release.Subsystem) {
	category := sub.Name

	_, err := os.Stat(sub.Source)
	if errors.Is(err, fs.ErrNotExist) {
		report.AddCheck(CheckResult{
			Category: category,
			Name:     "source",
			Status:   StatusPass,
			Message:  fmt.Sprintf("No pending source (%s)", filepath.Base(sub.Source)),
		})
		return
	}

	target, _, err := d.ws.LoadTarget(sub)
	switch {
	case err == nil:
		report.AddCheck(CheckResult{
			Category: category,
			Name:     "source",
			Status:   StatusPass,
			Message:  fmt.Sprintf("%s is treated as %s and ready to release", filepath.Base(sub.Source), target.ID),
		})
	case errors.Is(err, release.ErrNoTarget):
		codec := d.ws.Codec
		if codec == nil {
			codec = textenc.Default()
		}
		verify := d.ws.VerifyFunc
		if verify == "" {
			verify = treat.DefaultVerifyFunc
		}
		text, readErr := codec.ReadFile(sub.Source)
		if readErr == nil && treat.IsTreated(text, verify) {
			report.AddCheck(CheckResult{
				Category: category,
				Name:     "source",
				Status:   StatusWarn,
				Message:  fmt.Sprintf("%s is treated but has no release target", filepath.Base(sub.Source)),
				FixHint:  "Run 'scriptrel treat " + sub.Key() + "' to recreate it",
			})
			return
		}
		report.AddCheck(CheckResult{
			Category: category,
			Name:     "source",
			Status:   StatusWarn,
			Message:  fmt.Sprintf("%s has not been treated yet", filepath.Base(sub.Source)),
			FixHint:  "Run 'scriptrel treat " + sub.Key() + "'",
		})
	default:
		report.AddCheck(CheckResult{
			Category: category,
			Name:     "source",
			Status:   StatusFail,
			Message:  "Release target does not match the source",
			Details:  err.Error(),
			FixHint:  "Run 'scriptrel restore' and treat the source again",
		})
	}
}

func (d *Doctor) checkTier(ctx context.Context, report *Report, tier Tier) {
	category := tier.Subsystem.Name + "/" + tier.Name

	switch {
	case tier.OpenErr != nil:
		report.AddCheck(CheckResult{
			Category: category,
			Name:     "connection",
			Status:   StatusFail,
			Message:  "Cannot open database",
			Details:  tier.OpenErr.Error(),
			FixHint:  "Check subsystems." + tier.Subsystem.Key() + "." + strings.ToLower(tier.Name) + " settings",
		})
		return
	case tier.DB == nil:
		report.AddCheck(CheckResult{
			Category: category,
			Name:     "connection",
			Status:   StatusWarn,
			Message:  "No connection settings",
			FixHint:  "Set subsystems." + tier.Subsystem.Key() + "." + strings.ToLower(tier.Name) + ".url",
		})
		return
	}

	if pinger, ok := tier.DB.(interface{ PingContext(context.Context) error }); ok {
		if err := pinger.PingContext(ctx); err != nil {
			report.AddCheck(CheckResult{
				Category: category,
				Name:     "connection",
				Status:   StatusFail,
				Message:  "Database is unreachable",
				Details:  err.Error(),
			})
			return
		}
		report.AddCheck(CheckResult{
			Category: category,
			Name:     "connection",
			Status:   StatusPass,
			Message:  "Database is reachable",
		})
	}

	m := migrator.NewMigrator(tier.DB, tier.Subsystem.Dir, d.opts)
	status, err := m.GetStatus(ctx)
	if err != nil {
		report.AddCheck(CheckResult{
			Category: category,
			Name:     "control",
			Status:   StatusFail,
			Message:  "Cannot read the version control table",
			Details:  err.Error(),
			FixHint:  "Check control.query and the database permissions",
		})
		return
	}

	last := status.LastName
	if last == "" {
		last = "nothing applied"
	}
	report.AddCheck(CheckResult{
		Category: category,
		Name:     "control",
		Status:   StatusPass,
		Message:  fmt.Sprintf("Last applied: %s", last),
	})

	switch {
	case status.LastApplied > status.Latest:
		report.AddCheck(CheckResult{
			Category: category,
			Name:     "pending",
			Status:   StatusFail,
			Message: fmt.Sprintf("Database is ahead of the directory (%04d applied, %04d on disk)",
				status.LastApplied, status.Latest),
			FixHint: "Update the script directory from version control",
		})
	case status.Current():
		report.AddCheck(CheckResult{
			Category: category,
			Name:     "pending",
			Status:   StatusPass,
			Message:  "Up to date",
		})
	default:
		names := make([]string, len(status.Pending))
		for i, f := range status.Pending {
			names[i] = f.Name()
		}
		report.AddCheck(CheckResult{
			Category: category,
			Name:     "pending",
			Status:   StatusWarn,
			Message:  fmt.Sprintf("%d pending script(s)", len(status.Pending)),
			Details:  strings.Join(names, "\n"),
			FixHint:  "Run 'scriptrel apply " + tier.Subsystem.Key() + " --tier " + strings.ToLower(tier.Name) + "'",
		})
	}
}
