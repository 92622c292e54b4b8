package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pthm/scriptrel/internal/cli"
	"github.com/pthm/scriptrel/internal/release"
	"github.com/pthm/scriptrel/pkg/migrator"
	"github.com/pthm/scriptrel/pkg/script"
)

var statusCmd = &cobra.Command{
	Use:   "status [subsystem...]",
	Short: "Show applied and pending scripts",
	Long:  `Show the latest script on disk, the pending release target and, for each configured tier, the last applied script and what is pending.`,
	Example: `  # Check every subsystem
  scriptrel status

  # Check only Gestor
  scriptrel status gestor`,
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

		out := cmd.OutOrStdout()
		var errs []error
		for i, sub := range subs {
			if i > 0 {
				fmt.Fprintln(out)
			}
			if err := printSubsystemStatus(cmd.Context(), out, ws, sub, opts); err != nil {
				errs = append(errs, err)
			}
		}
		return cli.Classify("status incomplete", errors.Join(errs...))
	},
}

func printSubsystemStatus(ctx context.Context, out io.Writer, ws *release.Workspace, sub release.Subsystem, opts migrator.Options) error {
	_, _ = fmt.Fprintf(out, "%s (%s)\n", sub.Name, sub.Dir)

	files, err := script.List(sub.Dir)
	if err != nil {
		_, _ = fmt.Fprintf(out, "  Scripts:  unreadable\n")
		return fmt.Errorf("%s: %w", sub.Name, err)
	}
	if len(files) == 0 {
		_, _ = fmt.Fprintf(out, "  Scripts:  none\n")
	} else {
		_, _ = fmt.Fprintf(out, "  Scripts:  %d, latest %s\n", len(files), files[len(files)-1].Name())
	}

	target, _, err := ws.LoadTarget(sub)
	switch {
	case err == nil:
		_, _ = fmt.Fprintf(out, "  Target:   %s ready to release\n", target.ID)
	case errors.Is(err, release.ErrNoTarget):
		_, _ = fmt.Fprintf(out, "  Target:   none\n")
	default:
		_, _ = fmt.Fprintf(out, "  Target:   invalid (%v)\n", err)
	}

	var errs []error
	for _, tier := range []string{tierTest, tierDev} {
		label := fmt.Sprintf("  %-9s ", strings.ToUpper(tier)+":")
		db, err := openTier(sub, tier)
		if err != nil {
			_, _ = fmt.Fprintf(out, "%snot usable (%v)\n", label, err)
			errs = append(errs, err)
			continue
		}
		if db == nil {
			_, _ = fmt.Fprintf(out, "%snot configured\n", label)
			continue
		}

		s, err := migrator.NewMigrator(db, sub.Dir, opts).GetStatus(ctx)
		_ = db.Close()
		if err != nil {
			_, _ = fmt.Fprintf(out, "%serror\n", label)
			errs = append(errs, fmt.Errorf("%s: %w", tierLabel(sub, tier), err))
			continue
		}

		last := s.LastName
		if last == "" {
			last = "nothing applied"
		}
		switch {
		case s.LastApplied > s.Latest:
			_, _ = fmt.Fprintf(out, "%s%s, ahead of the directory\n", label, last)
		case s.Current():
			_, _ = fmt.Fprintf(out, "%s%s, up to date\n", label, last)
		default:
			_, _ = fmt.Fprintf(out, "%s%s, %d pending\n", label, last, len(s.Pending))
		}
	}
	return errors.Join(errs...)
}
