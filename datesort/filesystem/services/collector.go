package services

import (
	"context"
	"io/fs"
	"os"

	"github.com/ZanzyTHEbar/datesort/datesort/filesystem/classify"
	"github.com/ZanzyTHEbar/datesort/datesort/filesystem/common"
	"github.com/ZanzyTHEbar/datesort/datesort/filesystem/options"
	"github.com/ZanzyTHEbar/datesort/datesort/filesystem/types"

	"github.com/rs/zerolog"
)

// collector enumerates the tree before anything is moved
type collector struct {
	organizer  *Organizer
	logger     zerolog.Logger
	root       string
	opts       options.OrganizeOptions
	classifier classify.Classifier
	ignore     *classify.IgnoreClassifier
	report     *types.Report

	visited map[string]struct{}
	plan    []types.Entry
}

// walk visits dir depth-first. Only context cancellation is returned; an
// unreadable directory is recorded and its siblings are still visited.
func (c *collector) walk(ctx context.Context, dir string, depth int) error {
	canonical := c.organizer.pathUtils.CanonicalPath(dir)
	if _, seen := c.visited[canonical]; seen {
		c.logger.Debug().Str("dir", dir).Str("target", canonical).Msg("Directory already visited, skipping")
		return nil
	}
	c.visited[canonical] = struct{}{}

	entries, err := os.ReadDir(dir)
	if err != nil {
		c.organizer.fail(c.logger, c.report, dir, common.NewEntryError(common.KindDirectoryRead, dir, err))
		return nil
	}

	for _, d := range entries {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if c.opts.SkipHidden && c.organizer.pathUtils.IsHidden(d.Name()) {
			continue
		}

		entry := types.NewEntry(dir, d)
		isDir := d.IsDir()
		regular := d.Type().IsRegular()

		if d.Type()&fs.ModeSymlink != 0 {
			target, err := os.Stat(entry.Path)
			if err == nil && target.IsDir() {
				if !c.opts.FollowSymlinks {
					c.logger.Debug().Str("path", entry.Path).Msg("Not following directory symlink")
					continue
				}
				isDir = true
			}
			regular = err == nil && target.Mode().IsRegular()
		}

		if isDir {
			if err := c.descend(ctx, entry, depth); err != nil {
				return err
			}
			continue
		}

		// pipes, sockets, devices and dangling links are never opened
		if !regular {
			c.report.RecordScanned(false)
			c.logger.Debug().Str("path", entry.Path).Str("mode", d.Type().String()).Msg("Not a regular file, skipping")
			continue
		}

		eligible := c.classifier.Eligible(entry.Path)
		c.report.RecordScanned(eligible)
		if eligible {
			c.plan = append(c.plan, entry)
		}
	}

	return nil
}

func (c *collector) descend(ctx context.Context, entry types.Entry, depth int) error {
	if !c.opts.Recursive {
		return nil
	}
	if c.opts.MaxDepth > 0 && depth+1 > c.opts.MaxDepth {
		return nil
	}
	if c.ignore != nil && c.ignore.Ignored(entry.Path, true) {
		c.logger.Debug().Str("dir", entry.Path).Msg("Directory matched ignore patterns")
		return nil
	}
	if c.organizer.index.Covers(entry.Path) {
		c.logger.Debug().Str("dir", entry.Path).Msg("Skipping destination directory from a previous pass")
		return nil
	}
	return c.walk(ctx, entry.Path, depth+1)
}
