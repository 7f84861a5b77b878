package options

import (
	"fmt"
	"time"
)

// ConflictStrategy defines how to handle an existing file at the destination
type ConflictStrategy string

const (
	ConflictOverwrite ConflictStrategy = "overwrite"
	ConflictSkip      ConflictStrategy = "skip"
	ConflictRename    ConflictStrategy = "rename"
)

// ParseConflictStrategy validates a strategy name from config or flags
func ParseConflictStrategy(s string) (ConflictStrategy, error) {
	switch ConflictStrategy(s) {
	case ConflictOverwrite, ConflictSkip, ConflictRename:
		return ConflictStrategy(s), nil
	case "":
		return ConflictOverwrite, nil
	default:
		return "", fmt.Errorf("unknown conflict strategy %q (want overwrite, skip or rename)", s)
	}
}

// MoveOptions configures a single file move
type MoveOptions struct {
	Conflict       ConflictStrategy // How to handle file conflicts
	FallbackToCopy bool             // Use copy+delete for cross-device moves
}

// OrganizeOptions configures one traversal pass
type OrganizeOptions struct {
	Recursive      bool             // Descend into subdirectories
	MaxDepth       int              // Maximum recursion depth (0 = unlimited)
	FollowSymlinks bool             // Descend into symlinked directories
	SkipHidden     bool             // Ignore dot-files and dot-directories
	DryRun         bool             // Record planned moves without executing them
	SkipOrganized  bool             // Leave files that already sit in their date directory
	Conflict       ConflictStrategy // How to handle file conflicts
	FallbackToCopy bool             // Copy+delete when rename crosses devices
	Workers        int              // Act-phase workers (1 = sequential)
	IgnoreFile     string           // Gitignore-style file name looked up in the root
}

// WatchOptions configures watch mode
type WatchOptions struct {
	Debounce time.Duration // Quiet period before a new pass starts
	MaxDelay time.Duration // Upper bound on how long a busy tree can postpone a pass
}

// DefaultOrganizeOptions returns sensible defaults for organization passes
func DefaultOrganizeOptions() OrganizeOptions {
	return OrganizeOptions{
		Recursive:      true,
		MaxDepth:       0, // Unlimited
		FollowSymlinks: false,
		SkipHidden:     false,
		DryRun:         false,
		SkipOrganized:  true,
		Conflict:       ConflictOverwrite,
		FallbackToCopy: true,
		Workers:        1,
	}
}

// MoveOptions derives per-file move options from a pass configuration
func (o OrganizeOptions) MoveOptions() MoveOptions {
	return MoveOptions{
		Conflict:       o.Conflict,
		FallbackToCopy: o.FallbackToCopy,
	}
}

// Validate checks option ranges
func (o OrganizeOptions) Validate() error {
	if o.MaxDepth < 0 {
		return fmt.Errorf("max depth must be >= 0, got %d", o.MaxDepth)
	}
	if o.Workers < 0 {
		return fmt.Errorf("workers must be >= 0, got %d", o.Workers)
	}
	if _, err := ParseConflictStrategy(string(o.Conflict)); err != nil {
		return err
	}
	return nil
}
