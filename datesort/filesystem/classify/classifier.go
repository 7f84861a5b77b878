// Package classify decides which files are eligible for relocation.
package classify

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	ignore "github.com/sabhiram/go-gitignore"
)

// Classifier decides whether a file path is eligible for relocation.
// Callers exclude directories before asking.
type Classifier interface {
	Eligible(path string) bool
}

// ExtensionClassifier accepts files whose extension is in a fixed,
// case-sensitive set. "photo.Jpg" is not matched by a set holding "jpg" and "JPG".
type ExtensionClassifier struct {
	extensions map[string]struct{}
}

// NewExtensionClassifier builds a classifier for the given extensions. A
// leading dot on an extension is tolerated.
func NewExtensionClassifier(extensions []string) *ExtensionClassifier {
	set := make(map[string]struct{}, len(extensions))
	for _, ext := range extensions {
		ext = strings.TrimPrefix(strings.TrimSpace(ext), ".")
		if ext == "" {
			continue
		}
		set[ext] = struct{}{}
	}
	return &ExtensionClassifier{extensions: set}
}

// Eligible reports whether the extension of path is recognized
func (c *ExtensionClassifier) Eligible(path string) bool {
	ext := Extension(path)
	if ext == "" {
		return false
	}
	_, ok := c.extensions[ext]
	return ok
}

// Extension returns the text after the final dot of the base name, without
// the dot. Names whose only dot is the leading one have no extension.
func Extension(path string) string {
	name := filepath.Base(path)
	i := strings.LastIndexByte(name, '.')
	if i <= 0 {
		return ""
	}
	return name[i+1:]
}

// IgnoreMatcher matches paths against gitignore-style patterns
type IgnoreMatcher interface {
	MatchesPath(path string) bool
}

// IgnoreClassifier rejects paths matched by an ignore file before delegating
type IgnoreClassifier struct {
	next    Classifier
	root    string
	matcher IgnoreMatcher
}

// NewIgnoreClassifier wraps next so that paths under root matched by matcher
// are never eligible. A nil matcher disables filtering.
func NewIgnoreClassifier(next Classifier, root string, matcher IgnoreMatcher) *IgnoreClassifier {
	return &IgnoreClassifier{next: next, root: root, matcher: matcher}
}

// Eligible implements Classifier
func (c *IgnoreClassifier) Eligible(path string) bool {
	if c.Ignored(path, false) {
		return false
	}
	return c.next.Eligible(path)
}

// Ignored reports whether path is matched by the ignore patterns. Directory
// paths get a trailing slash so that "dir/" patterns apply to them.
func (c *IgnoreClassifier) Ignored(path string, isDir bool) bool {
	if c.matcher == nil {
		return false
	}
	rel, err := filepath.Rel(c.root, path)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return false
	}
	rel = filepath.ToSlash(rel)
	if isDir {
		rel += "/"
	}
	return c.matcher.MatchesPath(rel)
}

// LoadIgnoreFile compiles dir/name if it exists. A missing file yields a nil
// matcher and no error.
func LoadIgnoreFile(dir, name string) (IgnoreMatcher, error) {
	if name == "" {
		return nil, nil
	}
	ignorePath := filepath.Join(dir, name)

	if _, err := os.Stat(ignorePath); err == nil {
		ignored, err := ignore.CompileIgnoreFile(ignorePath)
		if err != nil {
			return nil, fmt.Errorf("error reading %s file: %w", name, err)
		}
		return ignored, nil
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("error checking for %s file: %w", name, err)
	}

	return nil, nil
}
