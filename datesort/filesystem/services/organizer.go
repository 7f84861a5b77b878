package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/ZanzyTHEbar/datesort/datesort/filesystem/classify"
	"github.com/ZanzyTHEbar/datesort/datesort/filesystem/common"
	"github.com/ZanzyTHEbar/datesort/datesort/filesystem/fileops"
	"github.com/ZanzyTHEbar/datesort/datesort/filesystem/options"
	"github.com/ZanzyTHEbar/datesort/datesort/filesystem/resolve"
	"github.com/ZanzyTHEbar/datesort/datesort/filesystem/types"
	"github.com/ZanzyTHEbar/datesort/datesort/trees"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"
)

// Organizer walks a directory tree and relocates eligible files into
// date-structured directories under their current parent.
//
// A pass runs in two phases: the whole tree is enumerated first and only then
// are files moved, so directories created by a pass are never traversal
// targets of that same pass. Year directories created by earlier passes are
// remembered and excluded from descent.
type Organizer struct {
	classifier classify.Classifier
	resolver   resolve.Resolver
	mover      fileops.Mover
	index      *trees.DestinationIndex
	pathUtils  *common.PathUtils
	logger     zerolog.Logger
}

// NewOrganizer creates a new organizer from its strategies
func NewOrganizer(classifier classify.Classifier, resolver resolve.Resolver, mover fileops.Mover, logger zerolog.Logger) *Organizer {
	return &Organizer{
		classifier: classifier,
		resolver:   resolver,
		mover:      mover,
		index:      trees.NewDestinationIndex(),
		pathUtils:  common.NewPathUtils(),
		logger:     logger.With().Str("component", "organizer").Logger(),
	}
}

// IsDestination reports whether path lies in a year directory created by a
// previous pass
func (o *Organizer) IsDestination(path string) bool {
	return o.index.Covers(path)
}

// PruneDestinations forgets recorded year directories that no longer exist,
// so a directory recreated under the same name is walked again. It returns
// the number of roots dropped.
func (o *Organizer) PruneDestinations() int {
	pruned := 0
	for _, root := range o.index.Roots() {
		if _, err := os.Stat(root); os.IsNotExist(err) {
			pruned += o.index.Remove(root)
		}
	}
	if pruned > 0 {
		o.logger.Debug().Int("pruned", pruned).Int("remaining", o.index.Len()).Msg("Dropped deleted destination roots")
	}
	return pruned
}

// Organize performs one traversal pass over root. Per-entry and per-subtree
// failures are recorded in the report and never abort the pass. The returned
// error is non-nil only for invalid options or context cancellation, in which
// case the partial report is still returned.
func (o *Organizer) Organize(ctx context.Context, root string, opts options.OrganizeOptions) (*types.Report, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	root = o.pathUtils.NormalizePath(root)
	report := types.NewReport(uuid.NewString(), root, opts.Recursive, opts.DryRun)
	logger := o.logger.With().Str("run", report.RunID).Logger()

	logger.Info().
		Str("root", root).
		Bool("recursive", opts.Recursive).
		Bool("dryRun", opts.DryRun).
		Msg("Starting directory organization")

	info, err := os.Stat(root)
	if err != nil {
		o.fail(logger, report, root, common.NewEntryError(common.KindDirectoryRead, root, err))
		report.Finish()
		return report, nil
	}
	if !info.IsDir() {
		logger.Info().Str("root", root).Msg("Root is not a directory, nothing to organize")
		report.Finish()
		return report, nil
	}

	c := &collector{
		organizer:  o,
		logger:     logger,
		root:       root,
		opts:       opts,
		classifier: o.classifier,
		report:     report,
		visited:    make(map[string]struct{}),
	}

	matcher, err := classify.LoadIgnoreFile(root, opts.IgnoreFile)
	if err != nil {
		logger.Warn().Err(err).Str("root", root).Msg("Failed to load ignore patterns")
	}
	if matcher != nil {
		c.ignore = classify.NewIgnoreClassifier(o.classifier, root, matcher)
		c.classifier = c.ignore
	}

	if err := c.walk(ctx, root, 0); err != nil {
		report.Finish()
		return report, err
	}

	logger.Debug().Int("eligible", len(c.plan)).Int("scanned", report.Scanned).Msg("Enumeration finished")

	if err := o.act(ctx, logger, root, c.plan, opts, report); err != nil {
		report.Finish()
		return report, err
	}

	report.Finish()
	logger.Info().
		Dur("duration", report.Duration).
		Int("moved", report.Moved).
		Int("planned", report.Planned).
		Int("skipped", report.Skipped).
		Int("failed", report.Failed).
		Msg("Directory organization completed")

	return report, nil
}

// act relocates every planned entry, sequentially or with a bounded pool
func (o *Organizer) act(ctx context.Context, logger zerolog.Logger, root string, plan []types.Entry, opts options.OrganizeOptions, report *types.Report) error {
	if opts.Workers <= 1 {
		for _, entry := range plan {
			if err := o.relocate(ctx, logger, root, entry, opts, report); err != nil {
				return err
			}
		}
		return nil
	}

	p := pool.New().WithMaxGoroutines(opts.Workers).WithContext(ctx)
	for _, entry := range plan {
		entry := entry
		p.Go(func(ctx context.Context) error {
			return o.relocate(ctx, logger, root, entry, opts, report)
		})
	}
	if err := p.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// relocate handles a single eligible entry. Only context errors are returned.
func (o *Organizer) relocate(ctx context.Context, logger zerolog.Logger, root string, entry types.Entry, opts options.OrganizeOptions, report *types.Report) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	dest, err := o.resolver.Resolve(entry)
	if err != nil {
		o.fail(logger, report, entry.Path, err)
		return nil
	}

	op := types.FileOperation{
		Type:       types.OpMove,
		SourcePath: entry.Path,
		TargetPath: dest.Path,
		Segment:    dest.Segment,
		Timestamp:  time.Now(),
	}

	if opts.SkipOrganized && o.alreadyOrganized(root, entry.Dir, dest.Segment) {
		op.Type = types.OpSkip
		op.Reason = types.SkipAlreadyOrganized
		report.RecordOperation(op)
		logger.Debug().Str("path", entry.Path).Msg("File already organized")
		return nil
	}

	if opts.DryRun {
		op.Type = types.OpPlan
		report.RecordOperation(op)
		logger.Info().Str("src", entry.Path).Str("dst", dest.Path).Msg("Dry run: would move file")
		return nil
	}

	_, statErr := os.Stat(dest.Root)
	rootCreated := os.IsNotExist(statErr)

	if err := o.mover.EnsureDir(ctx, filepath.Dir(dest.Path)); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		o.fail(logger, report, entry.Path, common.NewEntryError(common.KindDestinationCreate, entry.Path, err))
		return nil
	}
	if rootCreated && o.index.Insert(dest.Root) {
		logger.Debug().Str("dir", dest.Root).Msg("Recorded destination root")
	}

	final, err := o.mover.MoveFile(ctx, entry.Path, dest.Path, opts.MoveOptions())
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		if errors.Is(err, common.ErrDestinationExists) {
			op.Type = types.OpSkip
			op.Reason = types.SkipConflict
			report.RecordOperation(op)
			logger.Info().Str("src", entry.Path).Str("dst", dest.Path).Msg("Destination exists, leaving file in place")
			return nil
		}
		o.fail(logger, report, entry.Path, common.NewEntryError(common.KindMove, entry.Path, err))
		return nil
	}

	op.TargetPath = final
	report.RecordOperation(op)
	logger.Debug().Str("src", entry.Path).Str("dst", final).Msg("Moved file")
	return nil
}

// alreadyOrganized reports whether dir ends with segment below root. The
// components of root itself never count, so a root named like a date
// directory is still organized.
func (o *Organizer) alreadyOrganized(root, dir, segment string) bool {
	if !o.pathUtils.IsSubpath(root, dir) {
		return false
	}
	rel, err := filepath.Rel(root, dir)
	if err != nil {
		return false
	}
	return o.pathUtils.HasSegmentSuffix(rel, segment)
}

func (o *Organizer) fail(logger zerolog.Logger, report *types.Report, path string, err error) {
	report.RecordFailure(path, err)
	logger.Warn().
		Err(err).
		Str("path", path).
		Str("kind", string(common.KindOf(err))).
		Msg("Skipping entry")
}
