package main

import (
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/pthm/scriptrel/internal/cli"
	"github.com/pthm/scriptrel/internal/release"
)

var (
	releaseDryRun  bool
	releasePublish bool
)

var releaseCmd = &cobra.Command{
	Use:   "release [subsystem...]",
	Short: "Release treated scripts through TEST and DEV",
	Long: `Release the treated source of each subsystem.

For every subsystem with a release target the pipeline:
  1. applies the scripts pending on TEST
  2. applies the scripts pending on DEV
  3. runs the new script on TEST
  4. marks the new script as applied on DEV

A failing subsystem stops at the failing step; the others still run.`,
	Example: `  # Release everything that was treated
  scriptrel release

  # Release Gestor and publish it on success
  scriptrel release gestor --publish

  # Show the SQL each step would run
  scriptrel release --dry-run`,
	RunE: func(cmd *cobra.Command, args []string) error {
		subs, err := selectSubsystems(args)
		if err != nil {
			return err
		}
		ws, err := cfg.Workspace()
		if err != nil {
			return cli.Classify("preparing workspace", err)
		}
		opts, err := cfg.MigratorOptions()
		if err != nil {
			return cli.Classify("invalid configuration", err)
		}
		if releaseDryRun {
			opts.DryRun = cmd.OutOrStdout()
		}

		var (
			jobs []release.Job
			errs []error
			dbs  []*sql.DB
		)
		defer func() {
			for _, db := range dbs {
				_ = db.Close()
			}
		}()

		for _, sub := range subs {
			target, text, err := ws.LoadTarget(sub)
			if errors.Is(err, release.ErrNoTarget) {
				slog.Info("nothing to release", "subsystem", sub.Name)
				continue
			}
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", sub.Name, err))
				continue
			}

			test, err := connectTier(cmd.Context(), sub, tierTest)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			dbs = append(dbs, test)
			dev, err := connectTier(cmd.Context(), sub, tierDev)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			dbs = append(dbs, dev)

			jobs = append(jobs, release.Job{
				Pipeline: &release.Pipeline{Subsystem: sub, Test: test, Dev: dev, Options: opts},
				Target:   target,
				Text:     text,
			})
		}

		if len(jobs) == 0 && len(errs) == 0 {
			if !quiet {
				fmt.Fprintln(cmd.OutOrStdout(), "Nothing to release.")
			}
			return nil
		}

		reports, runErr := release.RunAll(cmd.Context(), jobs)
		if runErr != nil {
			errs = append(errs, runErr)
		}
		if !quiet {
			printReports(cmd.OutOrStdout(), reports)
		}

		if releasePublish && !releaseDryRun {
			var done []release.Subsystem
			// reports follow the order of jobs
			for i, r := range reports {
				if r.Reached == release.StageDone {
					done = append(done, jobs[i].Pipeline.Subsystem)
				}
			}
			if err := runPublish(cmd.OutOrStdout(), ws, done); err != nil {
				errs = append(errs, err)
			}
		}

		return cli.Classify("release failed", errors.Join(errs...))
	},
}

func init() {
	f := releaseCmd.Flags()
	f.BoolVar(&releaseDryRun, "dry-run", false, "output the SQL of every step without running it")
	f.BoolVar(&releasePublish, "publish", false, "publish each subsystem that released successfully")
}

func printReports(w io.Writer, reports []*release.Report) {
	for _, r := range reports {
		if r == nil {
			continue
		}
		if r.Reached == release.StageDone {
			_, _ = fmt.Fprintf(w, "%s: released %s (catch-up: %d on TEST, %d on DEV)\n",
				r.Target.Subsystem.Name, r.Target.ID, r.TestApplied, r.DevApplied)
			continue
		}
		_, _ = fmt.Fprintf(w, "%s: stopped at %s (run %s)\n",
			r.Target.Subsystem.Name, r.Reached, r.RunID)
	}
}
