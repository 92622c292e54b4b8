package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pthm/scriptrel/internal/cli"
	"github.com/pthm/scriptrel/internal/release"
)

var (
	// Global state set during PersistentPreRunE
	cfg        *cli.Config
	configPath string

	// Persistent flags
	cfgFile string
	verbose int
	quiet   bool
)

var rootCmd = &cobra.Command{
	Use:   "scriptrel",
	Short: "Incremental SQL release scripts",
	Long: `scriptrel - Incremental SQL release scripts

Scriptrel numbers the SQL written by developers, wraps it with the version
control calls every database expects, and releases it through the TEST and DEV
tiers of the Gestor and Supervisor subsystems.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		setupLogging(cmd.ErrOrStderr())

		// Skip config loading for help/completion/version commands
		if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "version" {
			return nil
		}

		var err error
		cfg, configPath, err = cli.LoadConfig(cfgFile)
		if err != nil {
			return cli.ConfigError("loading configuration", err)
		}
		slog.Debug("configuration loaded", "file", configPath, "project_root", cfg.ProjectRoot)

		return nil
	},
	SilenceUsage:  true, // Don't show usage on errors
	SilenceErrors: true, // We handle errors ourselves
}

// Command group IDs
const (
	groupRelease  = "release"
	groupDatabase = "database"
	groupUtility  = "utility"
)

func init() {
	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: auto-discover scriptrel.yaml)")
	rootCmd.PersistentFlags().CountVarP(&verbose, "verbose", "v", "increase verbosity (can be repeated)")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress non-error output")

	rootCmd.AddGroup(
		&cobra.Group{ID: groupRelease, Title: "Release:"},
		&cobra.Group{ID: groupDatabase, Title: "Database:"},
		&cobra.Group{ID: groupUtility, Title: "Utility:"},
	)

	// Release commands
	treatCmd.GroupID = groupRelease
	releaseCmd.GroupID = groupRelease
	publishCmd.GroupID = groupRelease
	restoreCmd.GroupID = groupRelease
	rootCmd.AddCommand(treatCmd)
	rootCmd.AddCommand(releaseCmd)
	rootCmd.AddCommand(publishCmd)
	rootCmd.AddCommand(restoreCmd)

	// Database commands
	applyCmd.GroupID = groupDatabase
	statusCmd.GroupID = groupDatabase
	doctorCmd.GroupID = groupDatabase
	rootCmd.AddCommand(applyCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(doctorCmd)

	// Utility commands
	configCmd.GroupID = groupUtility
	versionCmd.GroupID = groupUtility
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command. Interrupts cancel the context so a running
// script is rolled back instead of left half applied.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		cli.ExitWithError(err)
	}
}

// setupLogging installs the default slog handler. Progress is logged at info;
// -v adds debug output and --quiet keeps only warnings and errors.
func setupLogging(w io.Writer) {
	level := slog.LevelInfo
	switch {
	case quiet:
		level = slog.LevelWarn
	case verbose > 0:
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}

// selectSubsystems resolves the subsystems named on the command line, or
// every configured subsystem when none are given.
func selectSubsystems(args []string) ([]release.Subsystem, error) {
	if len(args) == 0 {
		subs, err := cfg.ReleaseSubsystems()
		if err != nil {
			return nil, cli.Classify("resolving subsystems", err)
		}
		return subs, nil
	}

	subs := make([]release.Subsystem, 0, len(args))
	for _, key := range args {
		sub, err := cfg.ReleaseSubsystem(key)
		if err != nil {
			return nil, cli.Classify("resolving subsystems", err)
		}
		subs = append(subs, sub)
	}
	return subs, nil
}
