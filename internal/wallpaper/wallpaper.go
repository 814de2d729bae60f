// Package wallpaper holds the domain model shared by the build pipeline:
// frame descriptions, resize policies, build results and the error taxonomy.
package wallpaper

import (
	"fmt"
	"image"
	"math"
	"strings"
	"time"
)

// SecondsPerDay is the length of the h24 timeline cycle.
const SecondsPerDay = 24 * 60 * 60

// Appearance associates a frame with the light or dark system appearance.
type Appearance int

const (
	AppearanceNone Appearance = iota
	AppearanceLight
	AppearanceDark
)

func (a Appearance) String() string {
	switch a {
	case AppearanceLight:
		return "light"
	case AppearanceDark:
		return "dark"
	default:
		return "none"
	}
}

// ParseAppearance accepts "light", "dark" and an empty string (no role).
func ParseAppearance(s string) (Appearance, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return AppearanceNone, nil
	case "light":
		return AppearanceLight, nil
	case "dark":
		return AppearanceDark, nil
	default:
		return AppearanceNone, fmt.Errorf("appearance must be one of 'light', 'dark' or omitted, got %q", s)
	}
}

// ResizePolicy decides what happens when frame geometries differ.
type ResizePolicy string

const (
	// ResizeFit scales every frame to cover frame 0's geometry and
	// center-crops the overflow.
	ResizeFit ResizePolicy = "fit"
	// ResizeStrict rejects any frame whose geometry differs from frame 0.
	ResizeStrict ResizePolicy = "strict"
)

// ParseResizePolicy validates a policy name coming from flags or config.
func ParseResizePolicy(s string) (ResizePolicy, error) {
	switch p := ResizePolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case ResizeFit, ResizeStrict:
		return p, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownResizePolicy, s)
	}
}

// FrameSpec is one resolved manifest entry.
type FrameSpec struct {
	Image      image.Image
	TimeOfDay  int // seconds since midnight, [0, SecondsPerDay)
	Appearance Appearance
	Source     string // label for logs and warnings, usually the file path
}

// Label returns Source or a positional fallback.
func (f FrameSpec) Label(index int) string {
	if f.Source != "" {
		return f.Source
	}
	return fmt.Sprintf("frame %d", index)
}

// FormatClock renders seconds since midnight as HH:MM:SS.
func FormatClock(seconds int) string {
	return fmt.Sprintf("%02d:%02d:%02d", seconds/3600, seconds%3600/60, seconds%60)
}

// TimelineEntry binds one container frame to its place on the 24-hour cycle.
type TimelineEntry struct {
	Index  int        // zero-based position in the container
	Offset float64    // fraction of the day, [0,1)
	Role   Appearance // light/dark association, if any
}

// Seconds converts the offset back to seconds since midnight.
func (e TimelineEntry) Seconds() int {
	return int(math.Round(e.Offset * SecondsPerDay))
}

// Warning is a non-fatal note produced during a build.
type Warning struct {
	FrameIndex int
	Message    string
}

func (w Warning) String() string {
	return fmt.Sprintf("frame %d: %s", w.FrameIndex, w.Message)
}

// Timings records how long each build phase took.
type Timings struct {
	Validate  time.Duration
	Normalize time.Duration
	Encode    time.Duration
	Mux       time.Duration
}

// Total is the sum of all phases.
func (t Timings) Total() time.Duration {
	return t.Validate + t.Normalize + t.Encode + t.Mux
}

// BuildResult is the finished container plus everything needed to report on it.
type BuildResult struct {
	Container []byte
	Metadata  []byte // serialized XMP packet embedded in Container
	Timeline  []TimelineEntry
	// Width and Height are the coded geometry stored in ispe, which can be
	// the normalized size padded up to even numbers.
	Width    int
	Height   int
	Frames   int
	Warnings []Warning
	Timings  Timings
}
