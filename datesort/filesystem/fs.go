package filesystem

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/ZanzyTHEbar/datesort/datesort/config"
	"github.com/ZanzyTHEbar/datesort/datesort/filesystem/classify"
	"github.com/ZanzyTHEbar/datesort/datesort/filesystem/common"
	"github.com/ZanzyTHEbar/datesort/datesort/filesystem/fileops"
	"github.com/ZanzyTHEbar/datesort/datesort/filesystem/lock"
	"github.com/ZanzyTHEbar/datesort/datesort/filesystem/options"
	"github.com/ZanzyTHEbar/datesort/datesort/filesystem/resolve"
	"github.com/ZanzyTHEbar/datesort/datesort/filesystem/services"
	"github.com/ZanzyTHEbar/datesort/datesort/filesystem/types"
	"github.com/ZanzyTHEbar/datesort/datesort/filesystem/watcher"

	"github.com/rs/zerolog"
)

// FileSystem is the main entry point of datesort. It assembles the
// classifier, resolver, file operations and organizer from configuration and
// runs single passes or watch mode over the configured root.
type FileSystem struct {
	organizer *services.Organizer
	fileOps   *fileops.FileOps
	pathUtils *common.PathUtils

	root      string
	options   options.OrganizeOptions
	watchOpts options.WatchOptions
	lockDir   string

	logger zerolog.Logger
}

// New creates a filesystem manager from a validated configuration
func New(cfg *config.Config, logger zerolog.Logger) (*FileSystem, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	root, err := cfg.Organize.RootPath()
	if err != nil {
		return nil, err
	}
	loc, err := cfg.Organize.Location()
	if err != nil {
		return nil, err
	}
	layout, err := resolve.ParseLayout(cfg.Organize.Layout)
	if err != nil {
		return nil, err
	}
	source, err := resolve.NewSource(resolve.SourceKind(cfg.Organize.TimestampSource), loc)
	if err != nil {
		return nil, err
	}
	opts, err := cfg.Organize.Options()
	if err != nil {
		return nil, err
	}

	fileOps := fileops.NewFileOps(logger)
	organizer := services.NewOrganizer(
		classify.NewExtensionClassifier(cfg.Organize.Extensions),
		resolve.NewDateResolver(loc, layout, source),
		fileOps,
		logger,
	)

	logger.Debug().
		Str("root", root).
		Str("timezone", loc.String()).
		Str("layout", string(layout)).
		Str("source", cfg.Organize.TimestampSource).
		Strs("extensions", cfg.Organize.Extensions).
		Msg("Filesystem configured")

	return &FileSystem{
		organizer: organizer,
		fileOps:   fileOps,
		pathUtils: common.NewPathUtils(),
		root:      root,
		options:   opts,
		watchOpts: cfg.Watch.WatchOptions(),
		lockDir:   cfg.LockDir,
		logger:    logger,
	}, nil
}

// Root returns the absolute directory being organized
func (dfs *FileSystem) Root() string {
	return dfs.root
}

// Options returns the traversal options used for every pass
func (dfs *FileSystem) Options() options.OrganizeOptions {
	return dfs.options
}

// Metrics returns file operation counters accumulated across passes
func (dfs *FileSystem) Metrics() map[string]interface{} {
	return dfs.fileOps.GetMetrics()
}

// Organize runs one pass over the root while holding the run lock
func (dfs *FileSystem) Organize(ctx context.Context) (*types.Report, error) {
	release, err := dfs.acquire()
	if err != nil {
		return nil, err
	}
	defer release()

	return dfs.organizer.Organize(ctx, dfs.root, dfs.options)
}

// Watch runs an initial pass and then another pass after every quiet period
// of filesystem activity below the root, until ctx is cancelled. onReport is
// called after each pass.
func (dfs *FileSystem) Watch(ctx context.Context, onReport func(*types.Report)) error {
	release, err := dfs.acquire()
	if err != nil {
		return err
	}
	defer release()

	report, err := dfs.organizer.Organize(ctx, dfs.root, dfs.options)
	if report != nil && onReport != nil {
		onReport(report)
	}
	if err != nil {
		return nilIfCancelled(ctx, err)
	}

	w, err := watcher.NewFSNotifyWatcher(watcher.Config{
		Debounce: dfs.watchOpts.Debounce,
		MaxDelay: dfs.watchOpts.MaxDelay,
		Skip:     dfs.skipWatch,
	}, dfs.logger)
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Start(ctx, dfs.root); err != nil {
		return common.LogAndWrapError(dfs.logger, err, "failed to watch %s", dfs.root)
	}

	dfs.logger.Info().Str("root", dfs.root).Dur("debounce", dfs.watchOpts.Debounce).Msg("Watching for changes")

	for {
		select {
		case <-ctx.Done():
			dfs.logger.Info().Msg("Watch stopped")
			return nil

		case batch, ok := <-w.Batches():
			if !ok {
				return nil
			}
			dfs.logger.Debug().Int("events", len(batch)).Msg("Change detected, running pass")
			if removesPaths(batch) {
				dfs.organizer.PruneDestinations()
			}

			report, err := dfs.organizer.Organize(ctx, dfs.root, dfs.options)
			if report != nil && onReport != nil {
				onReport(report)
			}
			if err != nil {
				return nilIfCancelled(ctx, err)
			}

		case err, ok := <-w.Errors():
			if !ok {
				return nil
			}
			dfs.logger.Warn().Err(err).Msg("Watcher error")
		}
	}
}

// removesPaths reports whether any event in batch deleted or renamed a path
func removesPaths(batch []watcher.Event) bool {
	for _, ev := range batch {
		if ev.Type == watcher.EventRemove || ev.Type == watcher.EventRename {
			return true
		}
	}
	return false
}

// skipWatch keeps watches off directories a pass would never descend into
func (dfs *FileSystem) skipWatch(dir string) bool {
	if !dfs.options.Recursive {
		return true
	}
	if dfs.options.SkipHidden && dfs.pathUtils.IsHidden(filepath.Base(dir)) {
		return true
	}
	return dfs.organizer.IsDestination(dir)
}

func (dfs *FileSystem) acquire() (func(), error) {
	if dfs.lockDir == "" || dfs.options.DryRun {
		return func() {}, nil
	}

	l, err := lock.Acquire(dfs.lockDir, dfs.root)
	if err != nil {
		return nil, common.LogAndWrapError(dfs.logger, err, "failed to lock %s", dfs.root)
	}
	dfs.logger.Debug().Str("lock", l.Path()).Msg("Run lock acquired")

	return func() {
		if err := l.Release(); err != nil {
			dfs.logger.Warn().Err(err).Msg("Failed to release run lock")
		}
	}, nil
}

func nilIfCancelled(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return nil
	}
	return err
}
