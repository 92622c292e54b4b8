package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pthm/scriptrel/internal/cli"
	"github.com/pthm/scriptrel/pkg/migrator"
)

var (
	applyTier   string
	applyDryRun bool
)

var applyCmd = &cobra.Command{
	Use:   "apply <subsystem>",
	Short: "Apply pending scripts to one tier",
	Long: `Apply every script of a subsystem directory numbered above the last one
recorded in the tier's control table. Each script runs in its own transaction;
the first failure stops the run and earlier scripts stay applied.`,
	Example: `  # Bring the Gestor TEST database up to date
  scriptrel apply gestor

  # Preview what would run on Supervisor DEV
  scriptrel apply supervisor --tier dev --dry-run`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tier := strings.ToLower(applyTier)
		if tier != tierTest && tier != tierDev {
			return cli.ConfigError(fmt.Sprintf("unknown tier %q (use test or dev)", applyTier), nil)
		}

		sub, err := cfg.ReleaseSubsystem(args[0])
		if err != nil {
			return cli.Classify("resolving subsystem", err)
		}
		opts, err := cfg.MigratorOptions()
		if err != nil {
			return cli.Classify("invalid configuration", err)
		}

		db, err := connectTier(cmd.Context(), sub, tier)
		if err != nil {
			return err
		}
		defer func() { _ = db.Close() }()

		label := tierLabel(sub, tier)
		if applyDryRun {
			opts.DryRun = cmd.OutOrStdout()
			if !quiet {
				fmt.Fprintln(cmd.ErrOrStderr(), "-- Dry-run mode: scripts will be output but not applied")
				fmt.Fprintln(cmd.ErrOrStderr(), "")
			}
		}

		n, err := migrator.NewMigrator(db, sub.Dir, opts).ApplyPending(cmd.Context())
		if err != nil {
			return cli.Classify(label+": apply failed", err)
		}

		if applyDryRun || quiet {
			return nil
		}
		if n == 0 {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s is up to date.\n", label)
		} else {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Applied %d script(s) to %s.\n", n, label)
		}
		return nil
	},
}

func init() {
	f := applyCmd.Flags()
	f.StringVar(&applyTier, "tier", tierTest, "tier to apply to (test or dev)")
	f.BoolVar(&applyDryRun, "dry-run", false, "output pending scripts without applying")
}
