package timeline

import (
	"bytes"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/ivlev/heicwall/internal/wallpaper"
)

func clock(h, m, s int) int { return h*3600 + m*60 + s }

func specs(times ...int) []wallpaper.FrameSpec {
	frames := make([]wallpaper.FrameSpec, len(times))
	for i, t := range times {
		frames[i] = wallpaper.FrameSpec{TimeOfDay: t}
	}
	return frames
}

func TestNewOneEntryPerFrame(t *testing.T) {
	frames := specs(clock(0, 0, 0), clock(6, 30, 0), clock(12, 0, 0), clock(18, 45, 15), clock(23, 59, 59))

	tl, err := New(frames)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if tl.Len() != len(frames) {
		t.Fatalf("expected %d entries, got %d", len(frames), tl.Len())
	}
	for i, e := range tl.Entries {
		if e.Index != i {
			t.Errorf("entry %d: index %d", i, e.Index)
		}
		want := float64(frames[i].TimeOfDay) / wallpaper.SecondsPerDay
		if math.Abs(e.Offset-want) > 1e-4 {
			t.Errorf("entry %d: offset %f, want %f", i, e.Offset, want)
		}
		if e.Offset < 0 || e.Offset >= 1 {
			t.Errorf("entry %d: offset %f outside [0,1)", i, e.Offset)
		}
	}
}

func TestNewSingleFramePinnedToZero(t *testing.T) {
	tl, err := New(specs(clock(12, 0, 0)))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if tl.Len() != 1 {
		t.Fatalf("expected 1 entry, got %d", tl.Len())
	}
	if tl.Entries[0].Offset != 0 {
		t.Errorf("expected offset 0.0, got %f", tl.Entries[0].Offset)
	}
}

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name   string
		frames []wallpaper.FrameSpec
		check  func(t *testing.T, err error)
	}{
		{
			name:   "empty",
			frames: nil,
			check: func(t *testing.T, err error) {
				if !errors.Is(err, wallpaper.ErrEmptyManifest) {
					t.Errorf("expected ErrEmptyManifest, got %v", err)
				}
			},
		},
		{
			name:   "duplicate time",
			frames: specs(clock(6, 0, 0), clock(12, 0, 0), clock(12, 0, 0)),
			check: func(t *testing.T, err error) {
				var dup *wallpaper.DuplicateTimeOfDayError
				if !errors.As(err, &dup) {
					t.Fatalf("expected DuplicateTimeOfDayError, got %v", err)
				}
				if dup.Time != clock(12, 0, 0) {
					t.Errorf("expected time %d, got %d", clock(12, 0, 0), dup.Time)
				}
			},
		},
		{
			name:   "unsorted",
			frames: specs(clock(12, 0, 0), clock(6, 0, 0)),
			check: func(t *testing.T, err error) {
				var order *wallpaper.FrameOrderError
				if !errors.As(err, &order) {
					t.Fatalf("expected FrameOrderError, got %v", err)
				}
				if order.FrameIndex != 1 {
					t.Errorf("expected index 1, got %d", order.FrameIndex)
				}
			},
		},
		{
			name:   "out of range",
			frames: specs(clock(6, 0, 0), wallpaper.SecondsPerDay),
			check: func(t *testing.T, err error) {
				var rng *wallpaper.TimeOutOfRangeError
				if !errors.As(err, &rng) {
					t.Fatalf("expected TimeOutOfRangeError, got %v", err)
				}
				if rng.FrameIndex != 1 {
					t.Errorf("expected index 1, got %d", rng.FrameIndex)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tl, err := New(tt.frames)
			if tl != nil {
				t.Errorf("expected no timeline on error")
			}
			tt.check(t, err)
		})
	}
}

func TestNewDuplicateAppearanceRole(t *testing.T) {
	frames := specs(clock(6, 0, 0), clock(12, 0, 0), clock(20, 0, 0))
	frames[0].Appearance = wallpaper.AppearanceLight
	frames[1].Appearance = wallpaper.AppearanceDark
	frames[2].Appearance = wallpaper.AppearanceDark

	_, err := New(frames)
	var dup *wallpaper.DuplicateAppearanceRoleError
	if !errors.As(err, &dup) {
		t.Fatalf("expected DuplicateAppearanceRoleError, got %v", err)
	}
	if dup.Role.String() != "dark" {
		t.Errorf("expected role dark, got %s", dup.Role)
	}
}

func TestNewMixedRolesCheckedPerRole(t *testing.T) {
	frames := specs(clock(1, 0, 0), clock(2, 0, 0), clock(3, 0, 0), clock(4, 0, 0))
	frames[0].Appearance = wallpaper.AppearanceDark
	frames[1].Appearance = wallpaper.AppearanceLight
	frames[2].Appearance = wallpaper.AppearanceLight
	frames[3].Appearance = wallpaper.AppearanceLight

	_, err := New(frames)
	var dup *wallpaper.DuplicateAppearanceRoleError
	if !errors.As(err, &dup) || dup.Role != wallpaper.AppearanceLight {
		t.Fatalf("expected duplicate light role, got %v", err)
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	frames := specs(clock(0, 0, 1), clock(7, 15, 0), clock(13, 37, 42), clock(21, 0, 0), clock(23, 59, 59))
	frames[1].Appearance = wallpaper.AppearanceLight
	frames[3].Appearance = wallpaper.AppearanceDark

	tl, err := New(frames)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	packet, err := tl.Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	decoded, err := Decode(packet)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if decoded.Len() != len(frames) {
		t.Fatalf("expected %d entries, got %d", len(frames), decoded.Len())
	}
	for i, e := range decoded.Entries {
		if e.Index != i {
			t.Errorf("entry %d: index %d", i, e.Index)
		}
		if got := e.Seconds(); got != frames[i].TimeOfDay {
			t.Errorf("entry %d: %d seconds after round trip, want %d", i, got, frames[i].TimeOfDay)
		}
	}
	if idx, ok := decoded.Light(); !ok || idx != 1 {
		t.Errorf("expected light frame 1, got %d (%v)", idx, ok)
	}
	if idx, ok := decoded.Dark(); !ok || idx != 3 {
		t.Errorf("expected dark frame 3, got %d (%v)", idx, ok)
	}
}

func TestEncodeIsDeterministic(t *testing.T) {
	frames := specs(clock(6, 0, 0), clock(18, 0, 0))
	frames[0].Appearance = wallpaper.AppearanceLight

	var packets [][]byte
	for i := 0; i < 2; i++ {
		tl, err := New(frames)
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		packet, err := tl.Encode()
		if err != nil {
			t.Fatalf("Encode failed: %v", err)
		}
		packets = append(packets, packet)
	}
	if !bytes.Equal(packets[0], packets[1]) {
		t.Error("two encodes of the same frames differ")
	}
}

func TestEncodePacketShape(t *testing.T) {
	tl, err := New(specs(clock(9, 0, 0), clock(21, 0, 0)))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	packet, err := tl.Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	s := string(packet)
	for _, want := range []string{"<x:xmpmeta", "<rdf:RDF", "xmlns:apple_desktop='" + NamespaceURI + "'", "apple_desktop:h24='", "<?xpacket end='w'?>"} {
		if !strings.Contains(s, want) {
			t.Errorf("packet missing %q", want)
		}
	}

	// No roles, no ap block.
	decoded, err := Decode(packet)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if _, ok := decoded.Light(); ok {
		t.Error("unexpected light role")
	}
	if _, ok := decoded.Dark(); ok {
		t.Error("unexpected dark role")
	}
}

func TestDecodeRejectsSolarAndMissing(t *testing.T) {
	solar := []byte(`<x:xmpmeta xmlns:x="adobe:ns:meta/"><rdf:RDF xmlns:rdf="http://www.w3.org/1999/02/22-rdf-syntax-ns#">` +
		`<rdf:Description xmlns:apple_desktop="` + NamespaceURI + `" apple_desktop:solar="AAAA"/></rdf:RDF></x:xmpmeta>`)
	if _, err := Decode(solar); !errors.Is(err, ErrSolarUnsupported) {
		t.Errorf("expected ErrSolarUnsupported, got %v", err)
	}

	empty := []byte(`<x:xmpmeta xmlns:x="adobe:ns:meta/"></x:xmpmeta>`)
	if _, err := Decode(empty); !errors.Is(err, ErrNoTimeline) {
		t.Errorf("expected ErrNoTimeline, got %v", err)
	}
}
