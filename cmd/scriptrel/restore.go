package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pthm/scriptrel/internal/cli"
)

var restoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Restore backed-up sources",
	Long: `Put every source registered in the backup ledger back to its original
content and drop the ledger. Use it after a treat or release that should not
go ahead.`,
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

		n, err := ws.Restore(subs)
		if !quiet {
			if n == 0 && err == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "No backups to restore.")
			} else {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Restored %d source(s).\n", n)
			}
		}
		return cli.Classify("restore failed", err)
	},
}
