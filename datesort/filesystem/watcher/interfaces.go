package watcher

import (
	"context"
	"time"
)

// EventType represents the type of file system event
type EventType int

const (
	// EventCreate represents file/directory creation
	EventCreate EventType = iota
	// EventWrite represents file modification
	EventWrite
	// EventRemove represents file/directory removal
	EventRemove
	// EventRename represents file/directory rename
	EventRename
)

func (t EventType) String() string {
	switch t {
	case EventCreate:
		return "create"
	case EventWrite:
		return "write"
	case EventRemove:
		return "remove"
	case EventRename:
		return "rename"
	default:
		return "unknown"
	}
}

// Event represents a file system event
type Event struct {
	Type      EventType
	Path      string
	Timestamp time.Time
	IsDir     bool
}

// Watcher reports debounced batches of changes below a set of roots
type Watcher interface {
	// Start begins watching the specified paths and their subdirectories
	Start(ctx context.Context, paths ...string) error

	// Batches returns coalesced events, one batch per quiet period
	Batches() <-chan []Event

	// Errors returns a channel of errors encountered during watching
	Errors() <-chan error

	// Close stops watching and cleans up resources
	Close() error
}

// Config holds configuration for the watcher
type Config struct {
	// Debounce is the quiet period that must pass before a batch is emitted
	Debounce time.Duration

	// MaxDelay caps how long a continuously busy tree can postpone a batch
	MaxDelay time.Duration

	// Skip, when set, excludes directories from being watched
	Skip func(dir string) bool
}
