package common

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// Failure kinds reported while organizing. Each one is contained to a single
// entry (or a single subtree for ErrDirectoryRead) and never aborts a run.
var (
	ErrDirectoryRead       = errors.New("directory read failure")
	ErrMetadataUnavailable = errors.New("metadata unavailable")
	ErrTimeConversion      = errors.New("time conversion error")
	ErrDestinationCreate   = errors.New("destination create failure")
	ErrMove                = errors.New("move failure")
)

// Common error types used across filesystem packages
var (
	ErrPathEmpty         = errors.New("path cannot be empty")
	ErrPathTooLong       = errors.New("path too long (max 4096 characters)")
	ErrPathInvalid       = errors.New("path contains invalid characters")
	ErrDestinationExists = errors.New("destination already exists")
)

// Kind names a failure class in reports and logs.
type Kind string

const (
	KindDirectoryRead       Kind = "directory_read"
	KindMetadataUnavailable Kind = "metadata_unavailable"
	KindTimeConversion      Kind = "time_conversion"
	KindDestinationCreate   Kind = "destination_create"
	KindMove                Kind = "move"
	KindUnknown             Kind = "unknown"
)

var kindSentinels = map[Kind]error{
	KindDirectoryRead:       ErrDirectoryRead,
	KindMetadataUnavailable: ErrMetadataUnavailable,
	KindTimeConversion:      ErrTimeConversion,
	KindDestinationCreate:   ErrDestinationCreate,
	KindMove:                ErrMove,
}

// EntryError ties a failure kind to the path it happened on.
// errors.Is matches both the kind sentinel and anything in the wrapped cause.
type EntryError struct {
	Kind Kind
	Path string
	Err  error
}

// NewEntryError wraps err as a failure of the given kind for path.
func NewEntryError(kind Kind, path string, err error) *EntryError {
	return &EntryError{Kind: kind, Path: path, Err: err}
}

func (e *EntryError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Path)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Path, e.Err)
}

func (e *EntryError) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for this error's kind.
func (e *EntryError) Is(target error) bool {
	sentinel, ok := kindSentinels[e.Kind]
	return ok && sentinel == target
}

// KindOf classifies err into a failure kind by checking the sentinels.
func KindOf(err error) Kind {
	var entryErr *EntryError
	if errors.As(err, &entryErr) {
		return entryErr.Kind
	}
	for kind, sentinel := range kindSentinels {
		if errors.Is(err, sentinel) {
			return kind
		}
	}
	return KindUnknown
}

// ValidatePath validates that a path is usable for filesystem operations
func ValidatePath(path string) error {
	if strings.TrimSpace(path) == "" {
		return ErrPathEmpty
	}
	if strings.Contains(path, "\x00") {
		return ErrPathInvalid
	}
	if len(path) > 4096 {
		return ErrPathTooLong
	}
	return nil
}

// LogAndWrapError logs an error at warn level and wraps it with context
func LogAndWrapError(logger zerolog.Logger, err error, message string, args ...interface{}) error {
	if err == nil {
		return nil
	}

	context := fmt.Sprintf(message, args...)
	logger.Warn().Err(err).Msg(context)

	return fmt.Errorf("%s: %w", context, err)
}
