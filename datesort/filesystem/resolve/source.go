package resolve

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ZanzyTHEbar/datesort/datesort/filesystem/common"
	"github.com/ZanzyTHEbar/datesort/datesort/filesystem/types"

	exiflib "github.com/rwcarlsen/goexif/exif"
)

// TimestampSource reports the instant a file's date is derived from
type TimestampSource interface {
	Timestamp(entry types.Entry) (time.Time, error)
}

// SourceKind names a timestamp source in config
type SourceKind string

const (
	SourceModTime SourceKind = "modtime"
	SourceExif    SourceKind = "exif"
)

// NewSource builds the source named by kind
func NewSource(kind SourceKind, loc *time.Location) (TimestampSource, error) {
	switch kind {
	case SourceModTime, "":
		return ModTimeSource{}, nil
	case SourceExif:
		return NewExifSource(loc, ModTimeSource{}), nil
	default:
		return nil, fmt.Errorf("unknown timestamp source %q (want modtime or exif)", kind)
	}
}

// ModTimeSource reads the last-modified time from filesystem metadata
type ModTimeSource struct{}

// Timestamp implements TimestampSource
func (ModTimeSource) Timestamp(entry types.Entry) (time.Time, error) {
	info, err := entry.Info()
	if err != nil {
		return time.Time{}, fmt.Errorf("read metadata: %v: %w", err, common.ErrMetadataUnavailable)
	}
	return info.ModTime(), nil
}

// ExifSource prefers the EXIF capture date and falls back to another source
// when a file carries none.
type ExifSource struct {
	location *time.Location
	fallback TimestampSource
}

// NewExifSource interprets EXIF wall-clock dates in loc
func NewExifSource(loc *time.Location, fallback TimestampSource) *ExifSource {
	if loc == nil {
		loc = time.Local
	}
	return &ExifSource{location: loc, fallback: fallback}
}

// errNoExifDate marks files without a usable capture date
var errNoExifDate = errors.New("no exif date")

// Timestamp implements TimestampSource
func (s *ExifSource) Timestamp(entry types.Entry) (time.Time, error) {
	ts, err := s.exifDate(entry.Path)
	if err == nil {
		return ts, nil
	}
	if s.fallback == nil {
		return time.Time{}, fmt.Errorf("%v: %w", err, common.ErrMetadataUnavailable)
	}
	return s.fallback.Timestamp(entry)
}

func (s *ExifSource) exifDate(path string) (time.Time, error) {
	f, err := os.Open(path)
	if err != nil {
		return time.Time{}, err
	}
	defer f.Close()

	x, err := exiflib.Decode(f)
	if err != nil {
		return time.Time{}, errNoExifDate
	}
	dt, err := x.DateTime()
	if err != nil {
		return time.Time{}, errNoExifDate
	}

	// EXIF dates are camera wall-clock; keep the fields, pin the zone.
	return time.Date(dt.Year(), dt.Month(), dt.Day(), dt.Hour(), dt.Minute(), dt.Second(), 0, s.location), nil
}
