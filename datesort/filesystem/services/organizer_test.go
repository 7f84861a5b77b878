package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	internal "github.com/ZanzyTHEbar/datesort/datesort"
	"github.com/ZanzyTHEbar/datesort/datesort/filesystem/classify"
	"github.com/ZanzyTHEbar/datesort/datesort/filesystem/common"
	"github.com/ZanzyTHEbar/datesort/datesort/filesystem/fileops"
	"github.com/ZanzyTHEbar/datesort/datesort/filesystem/options"
	"github.com/ZanzyTHEbar/datesort/datesort/filesystem/resolve"
	"github.com/ZanzyTHEbar/datesort/datesort/filesystem/types"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var shotAt = time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC)

func newTestOrganizer() *Organizer {
	return NewOrganizer(
		classify.NewExtensionClassifier(internal.DefaultExtensions),
		resolve.NewDateResolver(time.UTC, resolve.LayoutUnpadded, resolve.ModTimeSource{}),
		fileops.NewFileOps(zerolog.Nop()),
		zerolog.Nop(),
	)
}

// writeTree creates each relative path under root with the given mtime
func writeTree(t *testing.T, root string, mtime time.Time, paths ...string) {
	t.Helper()
	for _, rel := range paths {
		full := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(rel), 0o644))
		require.NoError(t, os.Chtimes(full, mtime, mtime))
	}
}

func organize(t *testing.T, o *Organizer, root string, mutate func(*options.OrganizeOptions)) *types.Report {
	t.Helper()
	opts := options.DefaultOrganizeOptions()
	if mutate != nil {
		mutate(&opts)
	}
	report, err := o.Organize(context.Background(), root, opts)
	require.NoError(t, err)
	require.NotNil(t, report)
	return report
}

func TestOrganizeMovesEligibleFileIntoDateDirectory(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, shotAt, "photo.jpg", "notes.txt")

	report := organize(t, newTestOrganizer(), root, nil)

	assert.FileExists(t, filepath.Join(root, "2024", "3", "5", "photo.jpg"))
	assert.NoFileExists(t, filepath.Join(root, "photo.jpg"))
	assert.FileExists(t, filepath.Join(root, "notes.txt"))

	assert.Equal(t, 2, report.Scanned)
	assert.Equal(t, 1, report.Eligible)
	assert.Equal(t, 1, report.Moved)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 0, report.Failed)
	assert.NotEmpty(t, report.RunID)
	assert.False(t, report.EndTime.IsZero())
}

func TestOrganizeNestedDirectoryUsesImmediateParent(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, shotAt, "A/photo.mov")

	report := organize(t, newTestOrganizer(), root, nil)

	assert.FileExists(t, filepath.Join(root, "A", "2024", "3", "5", "photo.mov"))
	assert.NoDirExists(t, filepath.Join(root, "2024"))
	assert.Equal(t, 1, report.Moved)
}

func TestOrganizeDoesNotReprocessCreatedDirectories(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, shotAt, "A/img1.jpg", "A/img2.jpg")

	report := organize(t, newTestOrganizer(), root, nil)

	dayDir := filepath.Join(root, "A", "2024", "3", "5")
	assert.FileExists(t, filepath.Join(dayDir, "img1.jpg"))
	assert.FileExists(t, filepath.Join(dayDir, "img2.jpg"))
	assert.NoDirExists(t, filepath.Join(dayDir, "2024"))
	assert.Equal(t, 2, report.Moved)
	assert.Len(t, report.Operations, 2)

	entries, err := os.ReadDir(dayDir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestOrganizeTopLevelFilesAreNotMovedTwice(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, shotAt, "a.jpg", "b.JPG", "c.tiff", "d.MOV")

	report := organize(t, newTestOrganizer(), root, nil)

	assert.Equal(t, 4, report.Moved)
	assert.NoDirExists(t, filepath.Join(root, "2024", "3", "5", "2024"))
	for _, name := range []string{"a.jpg", "b.JPG", "c.tiff", "d.MOV"} {
		assert.FileExists(t, filepath.Join(root, "2024", "3", "5", name))
	}
}

func TestOrganizeIsIdempotentAcrossOrganizers(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, shotAt, "A/img1.jpg", "A/img2.jpg")

	first := organize(t, newTestOrganizer(), root, nil)
	require.Equal(t, 2, first.Moved)

	second := organize(t, newTestOrganizer(), root, nil)
	assert.Equal(t, 0, second.Moved)
	assert.Equal(t, 2, second.Eligible)
	assert.Equal(t, 2, second.Skipped)
	for _, op := range second.Operations {
		assert.Equal(t, types.OpSkip, op.Type)
		assert.Equal(t, types.SkipAlreadyOrganized, op.Reason)
	}
	assert.NoDirExists(t, filepath.Join(root, "A", "2024", "3", "5", "2024"))
}

func TestOrganizeSameOrganizerSkipsItsDestinationRoots(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, shotAt, "A/img1.jpg")

	o := newTestOrganizer()
	organize(t, o, root, nil)
	assert.Equal(t, []string{filepath.Join(root, "A", "2024")}, o.index.Roots())

	second := organize(t, o, root, nil)
	assert.Equal(t, 0, second.Scanned)
	assert.Equal(t, 0, second.Moved)
}

func TestOrganizeDestinationIndexOnlyRecordsCreatedRoots(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, shotAt, "2024/loose.jpg", "new.jpg")

	o := newTestOrganizer()
	report := organize(t, o, root, nil)

	// root/2024 existed before the pass, so only the nested root is recorded
	assert.Equal(t, []string{filepath.Join(root, "2024", "2024")}, o.index.Roots())
	assert.Equal(t, 2, report.Moved)
	assert.FileExists(t, filepath.Join(root, "2024", "3", "5", "new.jpg"))
	assert.FileExists(t, filepath.Join(root, "2024", "2024", "3", "5", "loose.jpg"))
}

func TestOrganizeRootNamedLikeItsDateDirectory(t *testing.T) {
	root := filepath.Join(t.TempDir(), "2024", "3", "5")
	writeTree(t, root, shotAt, "photo.jpg")

	report := organize(t, newTestOrganizer(), root, nil)

	assert.Equal(t, 1, report.Moved)
	assert.Equal(t, 0, report.Skipped)
	assert.FileExists(t, filepath.Join(root, "2024", "3", "5", "photo.jpg"))
	assert.NoFileExists(t, filepath.Join(root, "photo.jpg"))
}

func TestOrganizeAlreadyOrganizedOnlyCountsComponentsBelowRoot(t *testing.T) {
	o := newTestOrganizer()
	root := filepath.Join("/photos", "2024", "3")
	seg := filepath.Join("2024", "3", "5")

	assert.False(t, o.alreadyOrganized(filepath.Join("/photos", "2024", "3", "5"), filepath.Join("/photos", "2024", "3", "5"), seg))
	assert.False(t, o.alreadyOrganized(root, filepath.Join(root, "5"), seg))
	assert.True(t, o.alreadyOrganized(root, filepath.Join(root, "2024", "3", "5"), seg))
	assert.True(t, o.alreadyOrganized("/photos", filepath.Join("/photos", "A", "2024", "3", "5"), seg))
}

func TestPruneDestinationsDropsDeletedRoots(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, shotAt, "A/img1.jpg", "B/img2.jpg")

	o := newTestOrganizer()
	organize(t, o, root, nil)
	require.Len(t, o.index.Roots(), 2)

	assert.Equal(t, 0, o.PruneDestinations())

	require.NoError(t, os.RemoveAll(filepath.Join(root, "A", "2024")))
	assert.Equal(t, 1, o.PruneDestinations())
	assert.Equal(t, []string{filepath.Join(root, "B", "2024")}, o.index.Roots())
	assert.False(t, o.IsDestination(filepath.Join(root, "A", "2024", "3")))

	// a recreated directory with the old name is walked again
	writeTree(t, root, shotAt, "A/2024/loose.jpg")
	report := organize(t, o, root, nil)
	assert.Equal(t, 1, report.Moved)
	assert.FileExists(t, filepath.Join(root, "A", "2024", "2024", "3", "5", "loose.jpg"))
}

func TestOrganizeNonRecursiveLeavesSubdirectories(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, shotAt, "top.jpg", "A/deep.jpg")

	report := organize(t, newTestOrganizer(), root, func(o *options.OrganizeOptions) {
		o.Recursive = false
	})

	assert.FileExists(t, filepath.Join(root, "2024", "3", "5", "top.jpg"))
	assert.FileExists(t, filepath.Join(root, "A", "deep.jpg"))
	assert.Equal(t, 1, report.Scanned)
	assert.False(t, report.Recursive)
}

func TestOrganizeMaxDepth(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, shotAt, "A/one.jpg", "A/B/two.jpg")

	report := organize(t, newTestOrganizer(), root, func(o *options.OrganizeOptions) {
		o.MaxDepth = 1
	})

	assert.FileExists(t, filepath.Join(root, "A", "2024", "3", "5", "one.jpg"))
	assert.FileExists(t, filepath.Join(root, "A", "B", "two.jpg"))
	assert.Equal(t, 1, report.Moved)
}

func TestOrganizeDryRunChangesNothing(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, shotAt, "photo.jpg", "A/clip.mov")

	o := newTestOrganizer()
	report := organize(t, o, root, func(o *options.OrganizeOptions) {
		o.DryRun = true
	})

	assert.FileExists(t, filepath.Join(root, "photo.jpg"))
	assert.FileExists(t, filepath.Join(root, "A", "clip.mov"))
	assert.NoDirExists(t, filepath.Join(root, "2024"))
	assert.Equal(t, 2, report.Planned)
	assert.Equal(t, 0, report.Moved)
	assert.True(t, report.DryRun)
	assert.Empty(t, o.index.Roots())

	targets := make([]string, 0, len(report.Operations))
	for _, op := range report.Operations {
		assert.Equal(t, types.OpPlan, op.Type)
		targets = append(targets, op.TargetPath)
	}
	assert.ElementsMatch(t, []string{
		filepath.Join(root, "2024", "3", "5", "photo.jpg"),
		filepath.Join(root, "A", "2024", "3", "5", "clip.mov"),
	}, targets)
}

type failingResolver struct {
	next resolve.Resolver
	fail string
}

func (r failingResolver) Resolve(entry types.Entry) (resolve.Destination, error) {
	if entry.Name == r.fail {
		return resolve.Destination{}, common.NewEntryError(common.KindMetadataUnavailable, entry.Path, errors.New("stat failed"))
	}
	return r.next.Resolve(entry)
}

func TestOrganizeContinuesAfterMetadataFailure(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, shotAt, "bad.jpg", "good.jpg")

	o := NewOrganizer(
		classify.NewExtensionClassifier(internal.DefaultExtensions),
		failingResolver{
			next: resolve.NewDateResolver(time.UTC, resolve.LayoutUnpadded, resolve.ModTimeSource{}),
			fail: "bad.jpg",
		},
		fileops.NewFileOps(zerolog.Nop()),
		zerolog.Nop(),
	)
	report := organize(t, o, root, nil)

	assert.FileExists(t, filepath.Join(root, "bad.jpg"))
	assert.FileExists(t, filepath.Join(root, "2024", "3", "5", "good.jpg"))
	assert.Equal(t, 1, report.Moved)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, common.KindMetadataUnavailable, report.Failures[0].Kind)
	assert.Equal(t, filepath.Join(root, "bad.jpg"), report.Failures[0].Path)
	assert.True(t, report.HasFailures())
}

func TestOrganizePreEpochTimestampIsTimeConversionFailure(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, time.Date(1965, 1, 1, 0, 0, 0, 0, time.UTC), "old.jpg")

	report := organize(t, newTestOrganizer(), root, nil)

	assert.FileExists(t, filepath.Join(root, "old.jpg"))
	require.Len(t, report.Failures, 1)
	assert.Equal(t, common.KindTimeConversion, report.Failures[0].Kind)
}

func TestOrganizeUnreadableDirectoryIsContained(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission bits are not enforced for root")
	}
	root := t.TempDir()
	writeTree(t, root, shotAt, "locked/inner.jpg", "open/photo.jpg")
	locked := filepath.Join(root, "locked")
	require.NoError(t, os.Chmod(locked, 0o000))
	t.Cleanup(func() { _ = os.Chmod(locked, 0o755) })

	report := organize(t, newTestOrganizer(), root, nil)

	assert.FileExists(t, filepath.Join(root, "open", "2024", "3", "5", "photo.jpg"))
	require.Len(t, report.Failures, 1)
	assert.Equal(t, common.KindDirectoryRead, report.Failures[0].Kind)
	assert.Equal(t, locked, report.Failures[0].Path)
}

func TestOrganizeMissingRootIsDirectoryReadFailure(t *testing.T) {
	root := filepath.Join(t.TempDir(), "missing")

	report := organize(t, newTestOrganizer(), root, nil)

	assert.Equal(t, 0, report.Scanned)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, common.KindDirectoryRead, report.Failures[0].Kind)
}

func TestOrganizeFileRootIsNoop(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, shotAt, "photo.jpg")

	report := organize(t, newTestOrganizer(), filepath.Join(dir, "photo.jpg"), nil)

	assert.FileExists(t, filepath.Join(dir, "photo.jpg"))
	assert.Equal(t, 0, report.Scanned)
	assert.False(t, report.HasFailures())
}

func TestOrganizeSymlinkCycleTerminates(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, shotAt, "A/photo.jpg")
	require.NoError(t, os.Symlink(root, filepath.Join(root, "A", "loop")))

	done := make(chan *types.Report, 1)
	go func() {
		report, err := newTestOrganizer().Organize(context.Background(), root, options.OrganizeOptions{
			Recursive:      true,
			FollowSymlinks: true,
			SkipOrganized:  true,
			Conflict:       options.ConflictOverwrite,
			Workers:        1,
		})
		assert.NoError(t, err)
		done <- report
	}()

	select {
	case report := <-done:
		assert.Equal(t, 1, report.Moved)
		assert.FileExists(t, filepath.Join(root, "A", "2024", "3", "5", "photo.jpg"))
	case <-time.After(10 * time.Second):
		t.Fatal("traversal did not terminate on a symlink cycle")
	}
}

func TestOrganizeDoesNotFollowDirectorySymlinksByDefault(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	writeTree(t, outside, shotAt, "elsewhere.jpg")
	require.NoError(t, os.Symlink(outside, filepath.Join(root, "link")))

	report := organize(t, newTestOrganizer(), root, nil)

	assert.Equal(t, 0, report.Scanned)
	assert.FileExists(t, filepath.Join(outside, "elsewhere.jpg"))
}

func TestOrganizeSkipHidden(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, shotAt, ".cache/thumb.jpg", ".hidden.jpg", "shown.jpg")

	report := organize(t, newTestOrganizer(), root, func(o *options.OrganizeOptions) {
		o.SkipHidden = true
	})

	assert.Equal(t, 1, report.Moved)
	assert.FileExists(t, filepath.Join(root, ".cache", "thumb.jpg"))
	assert.FileExists(t, filepath.Join(root, ".hidden.jpg"))
}

func TestOrganizeHonorsIgnoreFile(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, shotAt, "keep/raw.jpg", "skip.jpg", "move.jpg")
	require.NoError(t, os.WriteFile(filepath.Join(root, internal.DefaultIgnoreFileName), []byte("keep/\nskip.jpg\n"), 0o644))

	report := organize(t, newTestOrganizer(), root, func(o *options.OrganizeOptions) {
		o.IgnoreFile = internal.DefaultIgnoreFileName
	})

	assert.Equal(t, 1, report.Moved)
	assert.FileExists(t, filepath.Join(root, "keep", "raw.jpg"))
	assert.FileExists(t, filepath.Join(root, "skip.jpg"))
	assert.FileExists(t, filepath.Join(root, "2024", "3", "5", "move.jpg"))
	assert.FileExists(t, filepath.Join(root, internal.DefaultIgnoreFileName))
}

func TestOrganizeSkipConflictLeavesSource(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, shotAt, "photo.jpg", "2024/3/5/photo.jpg")

	report := organize(t, newTestOrganizer(), root, func(o *options.OrganizeOptions) {
		o.Conflict = options.ConflictSkip
		o.Recursive = false
	})

	assert.FileExists(t, filepath.Join(root, "photo.jpg"))
	require.Len(t, report.Operations, 1)
	assert.Equal(t, types.SkipConflict, report.Operations[0].Reason)
	assert.Equal(t, 0, report.Failed)
}

func TestOrganizeRenameConflictKeepsBothFiles(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, shotAt, "photo.jpg", "2024/3/5/photo.jpg")

	report := organize(t, newTestOrganizer(), root, func(o *options.OrganizeOptions) {
		o.Conflict = options.ConflictRename
		o.Recursive = false
	})

	renamed := filepath.Join(root, "2024", "3", "5", "photo_1.jpg")
	assert.FileExists(t, renamed)
	assert.FileExists(t, filepath.Join(root, "2024", "3", "5", "photo.jpg"))
	require.Len(t, report.Operations, 1)
	assert.Equal(t, renamed, report.Operations[0].TargetPath)
	assert.Equal(t, 1, report.Moved)
}

func TestOrganizeDestinationCreateFailure(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, shotAt, "photo.jpg")
	require.NoError(t, os.WriteFile(filepath.Join(root, "2024"), []byte("in the way"), 0o644))

	report := organize(t, newTestOrganizer(), root, nil)

	assert.FileExists(t, filepath.Join(root, "photo.jpg"))
	require.Len(t, report.Failures, 1)
	assert.Equal(t, common.KindDestinationCreate, report.Failures[0].Kind)
}

type brokenMover struct {
	fileops.Mover
}

func (brokenMover) MoveFile(context.Context, string, string, options.MoveOptions) (string, error) {
	return "", errors.New("device unplugged")
}

func TestOrganizeMoveFailureIsRecorded(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, shotAt, "a.jpg", "b.jpg")

	o := NewOrganizer(
		classify.NewExtensionClassifier(internal.DefaultExtensions),
		resolve.NewDateResolver(time.UTC, resolve.LayoutUnpadded, resolve.ModTimeSource{}),
		brokenMover{Mover: fileops.NewFileOps(zerolog.Nop())},
		zerolog.Nop(),
	)
	report := organize(t, o, root, nil)

	assert.Equal(t, 2, report.Failed)
	for _, f := range report.Failures {
		assert.Equal(t, common.KindMove, f.Kind)
	}
	assert.FileExists(t, filepath.Join(root, "a.jpg"))
}

func TestOrganizeWithWorkerPool(t *testing.T) {
	root := t.TempDir()
	var paths []string
	for i := 0; i < 40; i++ {
		paths = append(paths, fmt.Sprintf("dir%d/img%02d.jpg", i%4, i))
	}
	writeTree(t, root, shotAt, paths...)

	report := organize(t, newTestOrganizer(), root, func(o *options.OrganizeOptions) {
		o.Workers = 8
	})

	assert.Equal(t, 40, report.Moved)
	assert.Equal(t, 0, report.Failed)
	for i := 0; i < 40; i++ {
		assert.FileExists(t, filepath.Join(root, fmt.Sprintf("dir%d", i%4), "2024", "3", "5", fmt.Sprintf("img%02d.jpg", i)))
	}
}

func TestOrganizeCancelledContext(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, shotAt, "photo.jpg")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := newTestOrganizer().Organize(ctx, root, options.DefaultOrganizeOptions())
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, report)
	assert.FileExists(t, filepath.Join(root, "photo.jpg"))
}

func TestOrganizeRejectsInvalidOptions(t *testing.T) {
	opts := options.DefaultOrganizeOptions()
	opts.MaxDepth = -1

	report, err := newTestOrganizer().Organize(context.Background(), t.TempDir(), opts)
	assert.Error(t, err)
	assert.Nil(t, report)
}
