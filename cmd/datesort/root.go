package main

import (
	"context"
	"errors"
	"fmt"

	internal "github.com/ZanzyTHEbar/datesort/datesort"
	"github.com/ZanzyTHEbar/datesort/datesort/config"
	"github.com/ZanzyTHEbar/datesort/datesort/filesystem"
	"github.com/ZanzyTHEbar/datesort/datesort/filesystem/types"

	"github.com/spf13/cobra"
)

// errEntriesFailed is returned in strict mode when any entry could not be organized
var errEntriesFailed = errors.New("some entries could not be organized")

func newRootCommand() *cobra.Command {
	var configFlag string
	var jsonFlag bool

	rootCmd := &cobra.Command{
		Use:   "datesort",
		Short: "Sort photos and videos into year/month/day directories",
		Long: `datesort moves image and video files into date directories named after
their modification time, next to where they already are:

  <parent>/photo.jpg  ->  <parent>/<year>/<month>/<day>/photo.jpg

Every setting can also come from a config file or DATESORT_* environment variables.`,
		Args:          noPositionalArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, configFlag, jsonFlag)
		},
	}

	flags := rootCmd.Flags()
	flags.StringVarP(&configFlag, "config", "c", "", "Configuration file path")
	flags.StringP("dir", "d", "", "Directory to organize")
	flags.BoolP("recursive", "r", true, "Descend into subdirectories (use --recursive=false to disable)")
	flags.String("timezone", internal.DefaultTimezone, "IANA timezone used to derive dates")
	flags.String("layout", internal.DefaultLayout, "Date directory layout: unpadded (2024/3/5) or padded (2024/03/05)")
	flags.String("source", internal.DefaultTimestampSource, "Timestamp source: modtime or exif")
	flags.String("conflict", internal.DefaultConflict, "When the destination exists: overwrite, skip or rename")
	flags.Bool("dry-run", false, "Report planned moves without changing anything")
	flags.Bool("follow-symlinks", false, "Descend into symlinked directories")
	flags.Bool("skip-hidden", false, "Ignore dot-files and dot-directories")
	flags.Int("max-depth", 0, "Maximum directory depth below the root (0 = unlimited)")
	flags.Int("workers", 1, "Number of files moved concurrently")
	flags.Bool("strict", false, "Exit non-zero when any entry fails")
	flags.Bool("watch", false, "Keep running and organize new files as they appear")
	flags.BoolVar(&jsonFlag, "json", false, "Print the run report as JSON")
	flags.String("log-level", internal.DefaultLogLevel, "Log level: debug, info, warn, error")
	flags.String("log-format", internal.DefaultLogFormat, "Log format: auto, console or json")

	return rootCmd
}

// noPositionalArgs rejects arguments, pointing at the --flag=value form when
// a boolean value was passed as a separate word (datesort -r false).
func noPositionalArgs(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return nil
	}
	if args[0] == "true" || args[0] == "false" {
		return fmt.Errorf("unexpected argument %q: boolean flags take their value with '=', e.g. --recursive=%s or -r=%s",
			args[0], args[0], args[0])
	}
	return fmt.Errorf("unknown command %q for %q", args[0], cmd.CommandPath())
}

func run(cmd *cobra.Command, configPath string, asJSON bool) error {
	cfg, err := config.LoadConfig(configPath, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := internal.NewLogger(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}

	fs, err := filesystem.New(cfg, logger)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if cfg.Watch.Enabled {
		return fs.Watch(ctx, func(report *types.Report) {
			if err := printReport(cmd, report, asJSON); err != nil {
				logger.Warn().Err(err).Msg("Failed to print report")
			}
			logger.Debug().Fields(fs.Metrics()).Msg("File operation totals")
		})
	}

	report, err := fs.Organize(ctx)
	logger.Debug().Fields(fs.Metrics()).Msg("File operation totals")
	if report != nil {
		if printErr := printReport(cmd, report, asJSON); printErr != nil {
			return printErr
		}
	}
	if err != nil {
		return err
	}

	if cfg.Organize.Strict && report.HasFailures() {
		return fmt.Errorf("%d failed: %w", report.Failed, errEntriesFailed)
	}
	return nil
}
