package types

import (
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ZanzyTHEbar/datesort/datesort/filesystem/common"
)

// Entry is a filesystem node encountered during traversal. Metadata is read
// lazily and never cached across passes.
type Entry struct {
	Path  string `json:"path"`
	Name  string `json:"name"`
	Dir   string `json:"dir"`
	IsDir bool   `json:"is_dir"`

	dirEntry fs.DirEntry
}

// NewEntry builds an Entry for a child of dir reported by os.ReadDir.
func NewEntry(dir string, d fs.DirEntry) Entry {
	return Entry{
		Path:     filepath.Join(dir, d.Name()),
		Name:     d.Name(),
		Dir:      dir,
		IsDir:    d.IsDir(),
		dirEntry: d,
	}
}

// Info returns the entry's metadata. Symlinks are not followed.
func (e Entry) Info() (fs.FileInfo, error) {
	if e.dirEntry != nil {
		return e.dirEntry.Info()
	}
	return os.Lstat(e.Path)
}

// OpType defines the types of operations recorded in a report
type OpType string

const (
	OpMove OpType = "move"
	OpSkip OpType = "skip"
	OpPlan OpType = "plan"
)

// SkipReason explains why an eligible file was left in place
type SkipReason string

const (
	SkipAlreadyOrganized SkipReason = "already_organized"
	SkipConflict         SkipReason = "destination_exists"
)

// FileOperation represents a relocation performed (or planned) during a pass
type FileOperation struct {
	Type       OpType     `json:"type"`
	SourcePath string     `json:"source_path"`
	TargetPath string     `json:"target_path"`
	Segment    string     `json:"segment"`
	Reason     SkipReason `json:"reason,omitempty"`
	Timestamp  time.Time  `json:"timestamp"`
}

// Failure is a per-entry or per-subtree problem that did not stop the run
type Failure struct {
	Path  string      `json:"path"`
	Kind  common.Kind `json:"kind"`
	Error string      `json:"error"`
}

// Report is the structured outcome of one traversal pass
type Report struct {
	RunID     string        `json:"run_id"`
	Root      string        `json:"root"`
	Recursive bool          `json:"recursive"`
	DryRun    bool          `json:"dry_run"`
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Duration  time.Duration `json:"duration"`

	Scanned  int `json:"scanned"`
	Eligible int `json:"eligible"`
	Moved    int `json:"moved"`
	Planned  int `json:"planned"`
	Skipped  int `json:"skipped"`
	Failed   int `json:"failed"`

	Operations []FileOperation `json:"operations"`
	Failures   []Failure       `json:"failures"`

	mu sync.Mutex
}

// NewReport creates an empty report for a pass over root
func NewReport(runID, root string, recursive, dryRun bool) *Report {
	return &Report{
		RunID:      runID,
		Root:       root,
		Recursive:  recursive,
		DryRun:     dryRun,
		StartTime:  time.Now(),
		Operations: make([]FileOperation, 0),
		Failures:   make([]Failure, 0),
	}
}

// RecordScanned counts a non-directory entry seen during enumeration
func (r *Report) RecordScanned(eligible bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Scanned++
	if eligible {
		r.Eligible++
	} else {
		r.Skipped++
	}
}

// RecordOperation stores an operation and bumps the matching counter
func (r *Report) RecordOperation(op FileOperation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch op.Type {
	case OpMove:
		r.Moved++
	case OpPlan:
		r.Planned++
	case OpSkip:
		r.Skipped++
	}
	r.Operations = append(r.Operations, op)
}

// RecordFailure stores a failure for path
func (r *Report) RecordFailure(path string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Failed++
	r.Failures = append(r.Failures, Failure{
		Path:  path,
		Kind:  common.KindOf(err),
		Error: err.Error(),
	})
}

// Finish stamps the end time
func (r *Report) Finish() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.EndTime = time.Now()
	r.Duration = r.EndTime.Sub(r.StartTime)
}

// HasFailures reports whether any entry failed during the pass
func (r *Report) HasFailures() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Failed > 0
}
