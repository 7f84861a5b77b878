package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	internal "github.com/ZanzyTHEbar/datesort/datesort"
	"github.com/ZanzyTHEbar/datesort/datesort/filesystem/options"
	"github.com/ZanzyTHEbar/datesort/datesort/filesystem/resolve"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config stores all configuration of the application.
// The values are read by viper from a config file, environment variables and
// command line flags, in increasing order of precedence.
type Config struct {
	Organize OrganizeConfig `mapstructure:"organize"`
	Watch    WatchConfig    `mapstructure:"watch"`
	Log      LogConfig      `mapstructure:"log"`
	LockDir  string         `mapstructure:"lockDir"`
}

// OrganizeConfig stores the settings of an organization pass.
type OrganizeConfig struct {
	Root            string   `mapstructure:"root"`
	Recursive       bool     `mapstructure:"recursive"`
	Timezone        string   `mapstructure:"timezone"`
	Layout          string   `mapstructure:"layout"`
	TimestampSource string   `mapstructure:"timestampSource"`
	Conflict        string   `mapstructure:"conflict"`
	Extensions      []string `mapstructure:"extensions"`
	IgnoreFile      string   `mapstructure:"ignoreFile"`
	DryRun          bool     `mapstructure:"dryRun"`
	FollowSymlinks  bool     `mapstructure:"followSymlinks"`
	SkipHidden      bool     `mapstructure:"skipHidden"`
	SkipOrganized   bool     `mapstructure:"skipOrganized"`
	FallbackToCopy  bool     `mapstructure:"fallbackToCopy"`
	MaxDepth        int      `mapstructure:"maxDepth"`
	Workers         int      `mapstructure:"workers"`
	Strict          bool     `mapstructure:"strict"`
}

// WatchConfig stores watch mode settings.
type WatchConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Debounce time.Duration `mapstructure:"debounce"`
	MaxDelay time.Duration `mapstructure:"maxDelay"`
}

// LogConfig stores logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ErrRootRequired is returned when no directory to organize was configured
var ErrRootRequired = errors.New("a directory to organize is required (--dir, organize.root or " + internal.DefaultEnvPrefix + "_ORGANIZE_ROOT)")

// FlagKeys maps command line flag names to config keys
var FlagKeys = map[string]string{
	"dir":             "organize.root",
	"recursive":       "organize.recursive",
	"timezone":        "organize.timezone",
	"layout":          "organize.layout",
	"source":          "organize.timestampSource",
	"conflict":        "organize.conflict",
	"dry-run":         "organize.dryRun",
	"follow-symlinks": "organize.followSymlinks",
	"skip-hidden":     "organize.skipHidden",
	"max-depth":       "organize.maxDepth",
	"workers":         "organize.workers",
	"strict":          "organize.strict",
	"watch":           "watch.enabled",
	"log-level":       "log.level",
	"log-format":      "log.format",
}

// LoadConfig reads configuration from file, environment variables and the
// flags in fs (which may be nil). An empty configPath searches the default
// locations; a missing file there is not an error.
func LoadConfig(configPath string, fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath(internal.DefaultConfigPath)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	setDefaults(v)

	v.SetEnvPrefix(internal.DefaultEnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_")) // organize.dryRun becomes DATESORT_ORGANIZE_DRYRUN
	v.AutomaticEnv()

	if fs != nil {
		for name, key := range FlagKeys {
			if flag := fs.Lookup(name); flag != nil {
				if err := v.BindPFlag(key, flag); err != nil {
					return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
				}
			}
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || configPath != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	defaults := options.DefaultOrganizeOptions()

	v.SetDefault("organize.root", "")
	v.SetDefault("organize.recursive", defaults.Recursive)
	v.SetDefault("organize.timezone", internal.DefaultTimezone)
	v.SetDefault("organize.layout", internal.DefaultLayout)
	v.SetDefault("organize.timestampSource", internal.DefaultTimestampSource)
	v.SetDefault("organize.conflict", internal.DefaultConflict)
	v.SetDefault("organize.extensions", internal.DefaultExtensions)
	v.SetDefault("organize.ignoreFile", internal.DefaultIgnoreFileName)
	v.SetDefault("organize.dryRun", defaults.DryRun)
	v.SetDefault("organize.followSymlinks", defaults.FollowSymlinks)
	v.SetDefault("organize.skipHidden", defaults.SkipHidden)
	v.SetDefault("organize.skipOrganized", defaults.SkipOrganized)
	v.SetDefault("organize.fallbackToCopy", defaults.FallbackToCopy)
	v.SetDefault("organize.maxDepth", defaults.MaxDepth)
	v.SetDefault("organize.workers", defaults.Workers)
	v.SetDefault("organize.strict", false)

	v.SetDefault("watch.enabled", false)
	v.SetDefault("watch.debounce", internal.DefaultDebounce)
	v.SetDefault("watch.maxDelay", 15*internal.DefaultDebounce)

	v.SetDefault("log.level", internal.DefaultLogLevel)
	v.SetDefault("log.format", internal.DefaultLogFormat)

	v.SetDefault("lockDir", internal.DefaultLockDir)
}

// Validate checks that every enumerated setting names a known value
func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.Organize.Root) == "" {
		errs = append(errs, ErrRootRequired)
	}
	if _, err := resolve.ParseLayout(c.Organize.Layout); err != nil {
		errs = append(errs, err)
	}
	if _, err := resolve.NewSource(resolve.SourceKind(c.Organize.TimestampSource), time.UTC); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Organize.Location(); err != nil {
		errs = append(errs, err)
	}
	if len(c.Organize.Extensions) == 0 {
		errs = append(errs, errors.New("at least one extension must be configured"))
	}
	if c.Watch.Debounce < 0 {
		errs = append(errs, fmt.Errorf("watch debounce must be >= 0, got %s", c.Watch.Debounce))
	}
	opts, err := c.Organize.Options()
	if err != nil {
		errs = append(errs, err)
	} else if err := opts.Validate(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// Location resolves the configured timezone. "Local" and an empty value mean
// the system zone.
func (c OrganizeConfig) Location() (*time.Location, error) {
	switch strings.TrimSpace(c.Timezone) {
	case "", "Local", "local":
		return time.Local, nil
	default:
		loc, err := time.LoadLocation(c.Timezone)
		if err != nil {
			return nil, fmt.Errorf("unknown timezone %q: %w", c.Timezone, err)
		}
		return loc, nil
	}
}

// Options converts the config into traversal options
func (c OrganizeConfig) Options() (options.OrganizeOptions, error) {
	conflict, err := options.ParseConflictStrategy(c.Conflict)
	if err != nil {
		return options.OrganizeOptions{}, err
	}

	workers := c.Workers
	if workers == 0 {
		workers = 1
	}

	return options.OrganizeOptions{
		Recursive:      c.Recursive,
		MaxDepth:       c.MaxDepth,
		FollowSymlinks: c.FollowSymlinks,
		SkipHidden:     c.SkipHidden,
		DryRun:         c.DryRun,
		SkipOrganized:  c.SkipOrganized,
		Conflict:       conflict,
		FallbackToCopy: c.FallbackToCopy,
		Workers:        workers,
		IgnoreFile:     c.IgnoreFile,
	}, nil
}

// WatchOptions converts the watch config into watcher options
func (c WatchConfig) WatchOptions() options.WatchOptions {
	return options.WatchOptions{Debounce: c.Debounce, MaxDelay: c.MaxDelay}
}

// RootPath returns the absolute root directory
func (c OrganizeConfig) RootPath() (string, error) {
	if strings.TrimSpace(c.Root) == "" {
		return "", ErrRootRequired
	}
	return filepath.Abs(c.Root)
}
