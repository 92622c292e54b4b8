package main

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pthm/scriptrel/internal/cli"
	"github.com/pthm/scriptrel/internal/doctor"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run health checks",
	Long:  `Run health checks on the script directories, the pending sources and the TEST and DEV databases.`,
	Example: `  # Run health checks
  scriptrel doctor

  # Show details for every check
  scriptrel doctor -v`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		subs, err := cfg.ReleaseSubsystems()
		if err != nil {
			return cli.Classify("resolving subsystems", err)
		}
		ws, err := cfg.Workspace()
		if err != nil {
			return cli.Classify("preparing workspace", err)
		}
		opts, err := cfg.MigratorOptions()
		if err != nil {
			return cli.Classify("invalid configuration", err)
		}

		var tiers []doctor.Tier
		for _, sub := range subs {
			for _, tier := range []string{tierTest, tierDev} {
				t := doctor.Tier{Subsystem: sub, Name: strings.ToUpper(tier)}
				db, err := openTier(sub, tier)
				switch {
				case err != nil:
					t.OpenErr = err
				case db != nil:
					defer func(db *sql.DB) { _ = db.Close() }(db)
					t.DB = db
				}
				tiers = append(tiers, t)
			}
		}

		out := cmd.OutOrStdout()
		if !quiet {
			_, _ = fmt.Fprintln(out, "scriptrel doctor - Health Check")
		}

		report := doctor.New(ws, subs, tiers, opts).Run(cmd.Context())
		report.Print(out, verbose > 0)

		if report.HasErrors() {
			return cli.GeneralError("health checks failed", nil)
		}
		return nil
	},
}
