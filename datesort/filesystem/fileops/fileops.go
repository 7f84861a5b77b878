package fileops

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/ZanzyTHEbar/datesort/datesort/filesystem/common"
	"github.com/ZanzyTHEbar/datesort/datesort/filesystem/options"

	"github.com/rs/zerolog"
)

// Mover is the mutation surface the organizer needs
type Mover interface {
	EnsureDir(ctx context.Context, dir string) error
	MoveFile(ctx context.Context, srcPath, dstPath string, opts options.MoveOptions) (string, error)
}

// FileOps provides low-level file system operations
type FileOps struct {
	logger  zerolog.Logger
	metrics *Metrics

	mu       sync.Mutex
	dirLocks map[string]*sync.Mutex

	// rename is swapped in tests to simulate cross-device failures
	rename func(oldpath, newpath string) error
}

// NewFileOps creates a new file operations instance
func NewFileOps(logger zerolog.Logger) *FileOps {
	return &FileOps{
		logger:   logger.With().Str("component", "fileops").Logger(),
		metrics:  &Metrics{},
		dirLocks: make(map[string]*sync.Mutex),
		rename:   os.Rename,
	}
}

// EnsureDir creates dir and any missing parents. Calls for the same path are
// serialized and an existing directory is not an error.
func (fo *FileOps) EnsureDir(ctx context.Context, dir string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if err := common.ValidatePath(dir); err != nil {
		return fmt.Errorf("invalid path: %w", err)
	}

	lock := fo.dirLock(filepath.Clean(dir))
	lock.Lock()
	defer lock.Unlock()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		fo.metrics.recordDir(false)
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	fo.metrics.recordDir(true)
	return nil
}

// MoveFile renames srcPath to dstPath, falling back to copy+remove when the
// rename crosses devices and opts.FallbackToCopy is set. It returns the path
// the file ended up at, which differs from dstPath under ConflictRename.
func (fo *FileOps) MoveFile(ctx context.Context, srcPath, dstPath string, opts options.MoveOptions) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}

	if filepath.Clean(srcPath) == filepath.Clean(dstPath) {
		return dstPath, nil
	}

	if opts.Conflict == options.ConflictRename {
		// hold the directory so concurrent moves cannot claim the same name
		lock := fo.dirLock(filepath.Clean(filepath.Dir(dstPath)))
		lock.Lock()
		defer lock.Unlock()
	}

	dstPath, err := fo.checkConflict(dstPath, opts.Conflict)
	if err != nil {
		return "", err
	}

	err = fo.rename(srcPath, dstPath)
	if err == nil {
		fo.metrics.record(true, 0)
		return dstPath, nil
	}
	if !common.IsCrossDeviceError(err) || !opts.FallbackToCopy {
		fo.metrics.record(false, 0)
		return "", fmt.Errorf("failed to move file: %w", err)
	}

	fo.logger.Warn().Str("src", srcPath).Str("dst", dstPath).Msg("Cross-device move detected, falling back to copy+delete")

	n, err := fo.copyFile(ctx, srcPath, dstPath)
	if err != nil {
		fo.metrics.record(false, n)
		return "", fmt.Errorf("failed to copy file during move: %w", err)
	}

	if err := os.Remove(srcPath); err != nil {
		fo.metrics.record(false, n)
		return "", fmt.Errorf("failed to remove source file after copy: %w", err)
	}

	fo.metrics.record(true, n)
	return dstPath, nil
}

// GetMetrics returns performance metrics
func (fo *FileOps) GetMetrics() map[string]interface{} {
	return fo.metrics.Snapshot()
}

// checkConflict returns the path to move to, or ErrDestinationExists when
// the strategy leaves the file in place
func (fo *FileOps) checkConflict(dstPath string, strategy options.ConflictStrategy) (string, error) {
	info, err := os.Lstat(dstPath)
	if err != nil {
		if os.IsNotExist(err) {
			return dstPath, nil
		}
		return "", fmt.Errorf("failed to check destination: %w", err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("destination %s is a directory", dstPath)
	}

	switch strategy {
	case options.ConflictSkip:
		return "", fmt.Errorf("%s: %w", dstPath, common.ErrDestinationExists)
	case options.ConflictRename:
		return UniquePath(dstPath), nil
	case options.ConflictOverwrite, "":
		return dstPath, nil
	default:
		return "", fmt.Errorf("unknown conflict strategy: %v", strategy)
	}
}

// UniquePath returns path, or the first free "name_N.ext" sibling if path exists
func UniquePath(path string) string {
	if _, err := os.Lstat(path); os.IsNotExist(err) {
		return path
	}

	dir := filepath.Dir(path)
	name := filepath.Base(path)
	ext := filepath.Ext(name)
	baseName := strings.TrimSuffix(name, ext)

	for counter := 1; ; counter++ {
		candidate := filepath.Join(dir, fmt.Sprintf("%s_%d%s", baseName, counter, ext))
		if _, err := os.Lstat(candidate); os.IsNotExist(err) {
			return candidate
		}
		if counter >= 9999 {
			return filepath.Join(dir, fmt.Sprintf("%s_%d_%d%s", baseName, counter, time.Now().UnixNano(), ext))
		}
	}
}

func (fo *FileOps) copyFile(ctx context.Context, srcPath, dstPath string) (int64, error) {
	srcFile, err := os.Open(srcPath)
	if err != nil {
		return 0, fmt.Errorf("failed to open source file: %w", err)
	}
	defer srcFile.Close()

	info, err := srcFile.Stat()
	if err != nil {
		return 0, fmt.Errorf("failed to stat source file: %w", err)
	}

	tmp := dstPath + ".partial"
	dstFile, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return 0, fmt.Errorf("failed to create destination file: %w", err)
	}

	n, err := copyWithContext(ctx, dstFile, srcFile)
	if err == nil {
		err = dstFile.Sync()
	}
	if closeErr := dstFile.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tmp)
		return n, fmt.Errorf("failed to copy file content: %w", err)
	}

	if err := os.Chtimes(tmp, info.ModTime(), info.ModTime()); err != nil {
		fo.logger.Warn().Err(err).Str("path", dstPath).Msg("Failed to preserve modification time")
	}

	if err := os.Rename(tmp, dstPath); err != nil {
		_ = os.Remove(tmp)
		return n, fmt.Errorf("failed to finalize destination file: %w", err)
	}
	return n, nil
}

func copyWithContext(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	buffer := make([]byte, 32*1024)
	var total int64

	for {
		select {
		case <-ctx.Done():
			return total, ctx.Err()
		default:
		}

		n, readErr := src.Read(buffer)
		if n > 0 {
			if _, writeErr := dst.Write(buffer[:n]); writeErr != nil {
				return total, writeErr
			}
			total += int64(n)
		}

		if readErr != nil {
			if readErr == io.EOF {
				return total, nil
			}
			return total, readErr
		}
	}
}

func (fo *FileOps) dirLock(dir string) *sync.Mutex {
	fo.mu.Lock()
	defer fo.mu.Unlock()

	lock, ok := fo.dirLocks[dir]
	if !ok {
		lock = &sync.Mutex{}
		fo.dirLocks[dir] = lock
	}
	return lock
}

// Ensure FileOps implements the interface
var _ Mover = (*FileOps)(nil)
