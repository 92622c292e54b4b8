package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/pthm/scriptrel/internal/cli"
	"github.com/pthm/scriptrel/internal/release"
)

var publishCmd = &cobra.Command{
	Use:   "publish [subsystem...]",
	Short: "Move treated sources into the script directories",
	Long: `Write each treated source as its numbered script file and clean up.

The header comment markers are blanked so the file runs as plain SQL. The
source, its release target and its backup are removed afterwards. Publishing
refuses to overwrite an existing file or to reuse a taken sequence number.`,
	Example: `  # Publish every treated source
  scriptrel publish

  # Publish only Supervisor
  scriptrel publish supervisor`,
	RunE: func(cmd *cobra.Command, args []string) error {
		subs, err := selectSubsystems(args)
		if err != nil {
			return err
		}
		ws, err := cfg.Workspace()
		if err != nil {
			return cli.Classify("preparing workspace", err)
		}
		return runPublish(cmd.OutOrStdout(), ws, subs)
	},
}

func runPublish(out io.Writer, ws *release.Workspace, subs []release.Subsystem) error {
	var errs []error
	for _, sub := range subs {
		dest, err := ws.Publish(sub)
		if errors.Is(err, release.ErrNoTarget) {
			if !quiet {
				_, _ = fmt.Fprintf(out, "%s: nothing to publish\n", sub.Name)
			}
			continue
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", sub.Name, err))
			continue
		}
		if !quiet {
			_, _ = fmt.Fprintf(out, "%s: published %s\n", sub.Name, dest)
		}
	}
	return cli.Classify("publish failed", errors.Join(errs...))
}
