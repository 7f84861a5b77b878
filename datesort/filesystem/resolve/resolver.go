// Package resolve computes the date-structured destination of an eligible file.
package resolve

import (
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"github.com/ZanzyTHEbar/datesort/datesort/filesystem/common"
	"github.com/ZanzyTHEbar/datesort/datesort/filesystem/types"
)

// Resolver maps an eligible entry to its destination
type Resolver interface {
	Resolve(entry types.Entry) (Destination, error)
}

// Destination is the computed target of a relocation
type Destination struct {
	Path    string    // <parent>/<segment>/<name>
	Segment string    // year/month/day, relative
	Root    string    // <parent>/<year>, the top directory the move may create
	Time    time.Time // timestamp the segment was derived from, in the resolver's location
}

// Layout controls zero-padding of the month and day segments
type Layout string

const (
	// LayoutUnpadded renders 2024/3/5
	LayoutUnpadded Layout = "unpadded"
	// LayoutPadded renders 2024/03/05, which sorts lexically
	LayoutPadded Layout = "padded"
)

// ParseLayout validates a layout name from config or flags
func ParseLayout(s string) (Layout, error) {
	switch Layout(s) {
	case LayoutUnpadded, LayoutPadded:
		return Layout(s), nil
	case "":
		return LayoutUnpadded, nil
	default:
		return "", fmt.Errorf("unknown layout %q (want unpadded or padded)", s)
	}
}

// Segment renders the year/month/day path for t
func (l Layout) Segment(t time.Time) string {
	year := strconv.Itoa(t.Year())
	if l == LayoutPadded {
		return filepath.Join(year, fmt.Sprintf("%02d", int(t.Month())), fmt.Sprintf("%02d", t.Day()))
	}
	return filepath.Join(year, strconv.Itoa(int(t.Month())), strconv.Itoa(t.Day()))
}

// DateResolver builds <parent>/<year>/<month>/<day>/<name> from an entry's timestamp
type DateResolver struct {
	location *time.Location
	layout   Layout
	source   TimestampSource
}

// NewDateResolver creates a resolver. A nil location means time.Local and a
// nil source means the file's modification time.
func NewDateResolver(loc *time.Location, layout Layout, source TimestampSource) *DateResolver {
	if loc == nil {
		loc = time.Local
	}
	if layout == "" {
		layout = LayoutUnpadded
	}
	if source == nil {
		source = ModTimeSource{}
	}
	return &DateResolver{location: loc, layout: layout, source: source}
}

// Resolve implements Resolver
func (r *DateResolver) Resolve(entry types.Entry) (Destination, error) {
	ts, err := r.source.Timestamp(entry)
	if err != nil {
		kind := common.KindOf(err)
		if kind == common.KindUnknown {
			kind = common.KindMetadataUnavailable
		}
		return Destination{}, common.NewEntryError(kind, entry.Path, err)
	}

	if ts.IsZero() {
		return Destination{}, common.NewEntryError(common.KindMetadataUnavailable, entry.Path,
			fmt.Errorf("no timestamp reported: %w", common.ErrMetadataUnavailable))
	}

	if ts.Before(unixEpoch) {
		return Destination{}, common.NewEntryError(common.KindTimeConversion, entry.Path,
			fmt.Errorf("timestamp %s precedes the unix epoch: %w", ts.UTC().Format(time.RFC3339), common.ErrTimeConversion))
	}

	local := ts.In(r.location)
	segment := r.layout.Segment(local)

	return Destination{
		Path:    filepath.Join(entry.Dir, segment, entry.Name),
		Segment: segment,
		Root:    filepath.Join(entry.Dir, strconv.Itoa(local.Year())),
		Time:    local,
	}, nil
}

var unixEpoch = time.Unix(0, 0)

// Ensure DateResolver implements the interface
var _ Resolver = (*DateResolver)(nil)
