// Package timeline builds the h24 dynamic wallpaper metadata: a binary
// property list mapping frame indexes to fractions of a day (and optionally
// to the light/dark appearance), wrapped in an XMP packet.
package timeline

import (
	"fmt"
	"math"

	"github.com/ivlev/heicwall/internal/wallpaper"
)

// offsetScale rounds offsets to 6 decimal places (~0.09 s of day time).
const offsetScale = 1e6

// Entry binds one container frame to its place on the 24-hour cycle.
type Entry = wallpaper.TimelineEntry

// Timeline is the ordered list of entries. Entries[i].Index == i always
// holds, so the slice order is the container's frame order.
type Timeline struct {
	Entries []Entry
}

// New validates frames and derives the timeline from them. frames must be
// sorted by TimeOfDay with unique times and at most one frame per
// appearance role. Nothing is serialized here.
//
// A single frame is legal and is pinned to offset 0: there is nothing to
// switch between, but the OS still expects one entry per frame.
func New(frames []wallpaper.FrameSpec) (*Timeline, error) {
	if len(frames) == 0 {
		return nil, wallpaper.ErrEmptyManifest
	}

	seenTimes := make(map[int]struct{}, len(frames))
	for i, f := range frames {
		if f.TimeOfDay < 0 || f.TimeOfDay >= wallpaper.SecondsPerDay {
			return nil, &wallpaper.TimeOutOfRangeError{FrameIndex: i, Time: f.TimeOfDay}
		}
		if _, dup := seenTimes[f.TimeOfDay]; dup {
			return nil, &wallpaper.DuplicateTimeOfDayError{Time: f.TimeOfDay}
		}
		seenTimes[f.TimeOfDay] = struct{}{}
	}
	for i := 1; i < len(frames); i++ {
		if frames[i].TimeOfDay < frames[i-1].TimeOfDay {
			return nil, &wallpaper.FrameOrderError{FrameIndex: i}
		}
	}

	// Each role is checked on its own: mixed tags are fine, repeats are not.
	roleOwner := map[wallpaper.Appearance]int{}
	for i, f := range frames {
		if f.Appearance == wallpaper.AppearanceNone {
			continue
		}
		if _, taken := roleOwner[f.Appearance]; taken {
			return nil, &wallpaper.DuplicateAppearanceRoleError{Role: f.Appearance}
		}
		roleOwner[f.Appearance] = i
	}

	tl := &Timeline{Entries: make([]Entry, len(frames))}
	for i, f := range frames {
		offset := 0.0
		if len(frames) > 1 {
			offset = roundOffset(float64(f.TimeOfDay) / wallpaper.SecondsPerDay)
		}
		if offset < 0 || offset >= 1 {
			return nil, fmt.Errorf("frame %d: offset %v outside [0,1)", i, offset)
		}
		tl.Entries[i] = Entry{Index: i, Offset: offset, Role: f.Appearance}
	}
	return tl, nil
}

// Len returns the number of entries.
func (t *Timeline) Len() int { return len(t.Entries) }

// Light returns the index of the frame tagged light, if any.
func (t *Timeline) Light() (int, bool) { return t.roleIndex(wallpaper.AppearanceLight) }

// Dark returns the index of the frame tagged dark, if any.
func (t *Timeline) Dark() (int, bool) { return t.roleIndex(wallpaper.AppearanceDark) }

func (t *Timeline) roleIndex(role wallpaper.Appearance) (int, bool) {
	for _, e := range t.Entries {
		if e.Role == role {
			return e.Index, true
		}
	}
	return 0, false
}

func roundOffset(v float64) float64 {
	return math.Round(v*offsetScale) / offsetScale
}
