package wallpaper

import (
	"errors"
	"fmt"
	"image"
)

var (
	// ErrEmptyManifest is returned when a build receives no frames.
	ErrEmptyManifest = errors.New("manifest contains no frames")
	// ErrUnknownResizePolicy is returned for policies other than fit and strict.
	ErrUnknownResizePolicy = errors.New("unknown resize policy")
	// ErrNilImage is returned when a frame carries no raster data.
	ErrNilImage = errors.New("frame has no image")
)

// GeometryMismatchError reports a frame whose size differs from frame 0
// under the strict resize policy.
type GeometryMismatchError struct {
	FrameIndex int
	Expected   image.Point
	Actual     image.Point
}

func (e *GeometryMismatchError) Error() string {
	return fmt.Sprintf("frame %d is %dx%d, expected %dx%d (resize policy strict)",
		e.FrameIndex, e.Actual.X, e.Actual.Y, e.Expected.X, e.Expected.Y)
}

// DuplicateTimeOfDayError reports two frames scheduled at the same second.
type DuplicateTimeOfDayError struct {
	Time int
}

func (e *DuplicateTimeOfDayError) Error() string {
	return fmt.Sprintf("more than one frame scheduled at %s", FormatClock(e.Time))
}

// DuplicateAppearanceRoleError reports two frames claiming the same role.
type DuplicateAppearanceRoleError struct {
	Role Appearance
}

func (e *DuplicateAppearanceRoleError) Error() string {
	return fmt.Sprintf("more than one frame tagged %q", e.Role.String())
}

// InvalidQualityError reports an encoder quality outside [1,100].
type InvalidQualityError struct {
	Value int
}

func (e *InvalidQualityError) Error() string {
	return fmt.Sprintf("quality %d out of range [1,100]", e.Value)
}

// FrameEncodingError wraps a codec failure for a specific frame.
type FrameEncodingError struct {
	FrameIndex int
	Err        error
}

func (e *FrameEncodingError) Error() string {
	return fmt.Sprintf("encode frame %d: %v", e.FrameIndex, e.Err)
}

func (e *FrameEncodingError) Unwrap() error { return e.Err }

// TimeOutOfRangeError reports a time of day outside [0, SecondsPerDay).
type TimeOutOfRangeError struct {
	FrameIndex int
	Time       int
}

func (e *TimeOutOfRangeError) Error() string {
	return fmt.Sprintf("frame %d: time %d s outside [0,%d)", e.FrameIndex, e.Time, SecondsPerDay)
}

// FrameOrderError reports a frame that is earlier than its predecessor.
type FrameOrderError struct {
	FrameIndex int
}

func (e *FrameOrderError) Error() string {
	return fmt.Sprintf("frame %d is not in ascending time order", e.FrameIndex)
}
