package internal

import (
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
)

var (
	// DefaultConfigPath is the default path to the config file
	DefaultAppName        = "datesort"
	DefaultConfigPath     = filepath.Join(getHomeDir(), ".config", DefaultAppName)
	DefaultCacheDir       = filepath.Join(DefaultConfigPath, ".cache")
	DefaultLockDir        = filepath.Join(DefaultCacheDir, "locks")
	DefaultIgnoreFileName = "." + DefaultAppName + "-ignore"
	DefaultEnvPrefix      = strings.ToUpper(DefaultAppName)

	// Default organize settings
	DefaultExtensions      = []string{"jpg", "jpeg", "tiff", "JPG", "JPEG", "TIFF", "mov", "MOV"}
	DefaultTimezone        = "Local"
	DefaultDebounce        = 2 * time.Second
	DefaultLogLevel        = "info"
	DefaultLogFormat       = "auto"
	DefaultConflict        = "overwrite"
	DefaultLayout          = "unpadded"
	DefaultTimestampSource = "modtime"
)

func getHomeDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current working directory if home directory is unavailable
		cwd, cwdErr := os.Getwd()
		if cwdErr != nil {
			log.Printf("Unable to get home or working directory, using /tmp: %v", err)
			return "/tmp"
		}
		log.Printf("Unable to get home directory, using current working directory: %v", err)
		return cwd
	}
	return homeDir
}

// NewLogger builds a zerolog logger writing to w. Format "auto" selects the
// console writer when w is a terminal and JSON lines otherwise.
func NewLogger(w io.Writer, level, format string) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return zerolog.Nop(), err
	}
	if lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	out := w
	switch strings.ToLower(format) {
	case "console":
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	case "json":
	case "", "auto":
		if isTerminal(w) {
			out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
		}
	default:
		return zerolog.Nop(), &UnknownLogFormatError{Format: format}
	}

	return zerolog.New(out).Level(lvl).With().Timestamp().Logger(), nil
}

// UnknownLogFormatError is returned by NewLogger for unsupported formats.
type UnknownLogFormatError struct {
	Format string
}

func (e *UnknownLogFormatError) Error() string {
	return "unknown log format: " + e.Format
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
