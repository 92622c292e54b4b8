package release

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/pthm/scriptrel/pkg/migrator"
)

// Stage is a step of the release pipeline. Stages run strictly in order.
type Stage int

const (
	StageStart Stage = iota
	StageTestCatchup
	StageDevCatchup
	StageApplyNewToTest
	StageMarkAppliedInDev
	StageDone
)

func (s Stage) String() string {
	switch s {
	case StageStart:
		return "start"
	case StageTestCatchup:
		return "test-catchup"
	case StageDevCatchup:
		return "dev-catchup"
	case StageApplyNewToTest:
		return "apply-new-to-test"
	case StageMarkAppliedInDev:
		return "mark-applied-in-dev"
	case StageDone:
		return "done"
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// Tier names used in logs and errors.
const (
	TierTest = "TEST"
	TierDev  = "DEV"
)

// StageError reports the stage at which a subsystem's run stopped.
type StageError struct {
	Subsystem string
	Stage     Stage
	Tier      string
	Err       error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s/%s %s: %v", e.Subsystem, e.Tier, e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Pipeline releases one subsystem against its TEST and DEV databases.
type Pipeline struct {
	Subsystem Subsystem
	Test      migrator.Execer
	Dev       migrator.Execer
	Options   migrator.Options
}

// Report summarises a pipeline run.
type Report struct {
	RunID   string
	Target  Target
	Reached Stage
	// Scripts applied during catch-up, per tier.
	TestApplied int
	DevApplied  int
}

// Run executes the stages for target. text is the treated script; it runs in
// full on TEST while DEV only receives the mark call. Any failure stops the
// run and is returned as a *StageError; the report tells how far it got.
func (p *Pipeline) Run(ctx context.Context, target Target, text string) (*Report, error) {
	report := &Report{RunID: uuid.NewString(), Target: target, Reached: StageStart}
	log := slog.With("run_id", report.RunID, "subsystem", p.Subsystem.Name, "script", target.ID.String())

	test := migrator.NewMigrator(p.Test, p.Subsystem.Dir, p.Options)
	dev := migrator.NewMigrator(p.Dev, p.Subsystem.Dir, p.Options)

	fail := func(stage Stage, tier string, err error) (*Report, error) {
		log.Error("release failed", "stage", stage.String(), "tier", tier, "error", err)
		return report, &StageError{Subsystem: p.Subsystem.Name, Stage: stage, Tier: tier, Err: err}
	}

	report.Reached = StageTestCatchup
	log.Info("catching up", "stage", report.Reached.String(), "tier", TierTest)
	n, err := test.ApplyPending(ctx)
	report.TestApplied = n
	if err != nil {
		return fail(StageTestCatchup, TierTest, err)
	}

	report.Reached = StageDevCatchup
	log.Info("catching up", "stage", report.Reached.String(), "tier", TierDev)
	n, err = dev.ApplyPending(ctx)
	report.DevApplied = n
	if err != nil {
		return fail(StageDevCatchup, TierDev, err)
	}

	report.Reached = StageApplyNewToTest
	log.Info("running new script", "stage", report.Reached.String(), "tier", TierTest)
	if p.Options.DryRun != nil {
		_, _ = fmt.Fprintf(p.Options.DryRun, "-- new script %s on %s\n%s\n", target.ID, TierTest, text)
	} else if err := test.ExecScript(ctx, "new "+target.ID.String(), text); err != nil {
		return fail(StageApplyNewToTest, TierTest, err)
	}

	report.Reached = StageMarkAppliedInDev
	log.Info("marking applied", "stage", report.Reached.String(), "tier", TierDev)
	if err := dev.Mark(ctx, target.ID); err != nil {
		return fail(StageMarkAppliedInDev, TierDev, err)
	}

	report.Reached = StageDone
	log.Info("released", "test_catchup", report.TestApplied, "dev_catchup", report.DevApplied)
	return report, nil
}

// Job pairs a pipeline with the target it should release.
type Job struct {
	Pipeline *Pipeline
	Target   Target
	Text     string
}

// RunAll runs each job in order. A failing subsystem does not stop the
// others; all failures are joined in the returned error.
func RunAll(ctx context.Context, jobs []Job) ([]*Report, error) {
	reports := make([]*Report, 0, len(jobs))
	var errs []error
	for _, job := range jobs {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		report, err := job.Pipeline.Run(ctx, job.Target, job.Text)
		reports = append(reports, report)
		if err != nil {
			errs = append(errs, err)
		}
	}
	return reports, errors.Join(errs...)
}
