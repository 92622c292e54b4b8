package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pthm/scriptrel/internal/cli"
)

var treatCmd = &cobra.Command{
	Use:   "treat [subsystem...]",
	Short: "Number and wrap the raw source scripts",
	Long: `Turn each raw source (gestor.sql, supervisor.sql) into a treated script in place.

The source gets the next free sequence number of its subsystem, an author
header, the verify and mark calls and a sentinel line after every statement.
The original file is backed up first so 'scriptrel restore' can undo the
change. Sources that are already treated are left alone.`,
	Example: `  # Treat every subsystem
  scriptrel treat

  # Treat only the Gestor source
  scriptrel treat gestor`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate(); err != nil {
			return cli.Classify("invalid configuration", err)
		}
		subs, err := selectSubsystems(args)
		if err != nil {
			return err
		}
		ws, err := cfg.Workspace()
		if err != nil {
			return cli.Classify("preparing workspace", err)
		}

		out := cmd.OutOrStdout()
		var errs []error
		for _, sub := range subs {
			res, err := ws.Treat(sub)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", sub.Name, err))
				continue
			}
			if quiet {
				continue
			}
			switch {
			case res.Skipped:
				_, _ = fmt.Fprintf(out, "%s: nothing to treat\n", sub.Name)
			case res.AlreadyTreated:
				_, _ = fmt.Fprintf(out, "%s: already treated as %s\n", sub.Name, res.Target.ID)
			default:
				_, _ = fmt.Fprintf(out, "%s: treated as %s\n", sub.Name, res.Target.ID)
			}
		}
		return cli.Classify("treat failed", errors.Join(errs...))
	},
}
