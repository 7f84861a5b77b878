package common

import (
	"errors"
	"path/filepath"
	"strings"
	"syscall"
)

// PathUtils provides path manipulation utilities used across filesystem packages
type PathUtils struct{}

// NewPathUtils creates a new PathUtils instance
func NewPathUtils() *PathUtils {
	return &PathUtils{}
}

// NormalizePath converts a path to a clean absolute path
func (pu *PathUtils) NormalizePath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(path)
	}
	return filepath.Clean(abs)
}

// CanonicalPath resolves symlinks so that two spellings of one directory
// compare equal. Falls back to the normalized path when resolution fails.
func (pu *PathUtils) CanonicalPath(path string) string {
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		return pu.NormalizePath(path)
	}
	return pu.NormalizePath(resolved)
}

// IsSubpath checks if child is a strict subpath of parent
func (pu *PathUtils) IsSubpath(parent, child string) bool {
	parent = pu.NormalizePath(parent)
	child = pu.NormalizePath(child)

	rel, err := filepath.Rel(parent, child)
	if err != nil {
		return false
	}

	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// HasSegmentSuffix reports whether dir ends with the relative segment seg,
// compared component by component.
func (pu *PathUtils) HasSegmentSuffix(dir, seg string) bool {
	dirParts := splitComponents(filepath.Clean(dir))
	segParts := splitComponents(filepath.Clean(seg))
	if len(segParts) == 0 || len(segParts) > len(dirParts) {
		return false
	}
	offset := len(dirParts) - len(segParts)
	for i, part := range segParts {
		if dirParts[offset+i] != part {
			return false
		}
	}
	return true
}

// IsHidden reports whether a base name is a dot-file
func (pu *PathUtils) IsHidden(name string) bool {
	return len(name) > 1 && name[0] == '.' && name != ".."
}

// IsCrossDeviceError reports whether err came from renaming across filesystems
func IsCrossDeviceError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, syscall.EXDEV) {
		return true
	}
	return strings.Contains(err.Error(), "cross-device link")
}

func splitComponents(path string) []string {
	parts := strings.Split(filepath.ToSlash(path), "/")
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
