// Package manifest reads the JSON or YAML file that lists wallpaper frames.
//
//	frames:
//	  - file: dawn.png
//	    time: "06:30"
//	    light: true
//	  - image: slides.pdf
//	    page: 2
//	    time: "21:00:00"
//	    appearance: dark
package manifest

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ivlev/heicwall/internal/wallpaper"
)

// ErrInvalid wraps every structural problem found in a manifest.
var ErrInvalid = errors.New("invalid manifest")

// Entry is one frame reference, already resolved against the manifest directory.
type Entry struct {
	Path       string
	Page       int // 1-based PDF page, 0 for image files
	TimeOfDay  int // seconds since midnight
	Appearance wallpaper.Appearance
}

// Manifest is a parsed frame list sorted by time of day.
type Manifest struct {
	Path    string
	Entries []Entry
}

type rawManifest struct {
	Frames []rawEntry `yaml:"frames"`
}

type rawEntry struct {
	File       string `yaml:"file"`
	Image      string `yaml:"image"`
	Time       string `yaml:"time"`
	Appearance string `yaml:"appearance"`
	Light      bool   `yaml:"light"`
	Dark       bool   `yaml:"dark"`
	Page       int    `yaml:"page"`
}

// Load reads and parses the manifest at path.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("manifest not found: %s", path)
		}
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve manifest path: %w", err)
	}
	m, err := Parse(data, filepath.Dir(abs))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	m.Path = abs
	return m, nil
}

// Parse decodes manifest data. JSON is accepted as a YAML subset. Relative
// frame paths are joined to baseDir.
func Parse(data []byte, baseDir string) (*Manifest, error) {
	var raw rawManifest
	dec := yaml.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if len(raw.Frames) == 0 {
		return nil, fmt.Errorf("%w: 'frames' must be a non-empty list", ErrInvalid)
	}

	m := &Manifest{Entries: make([]Entry, 0, len(raw.Frames))}
	for i, r := range raw.Frames {
		e, err := r.resolve(baseDir)
		if err != nil {
			return nil, fmt.Errorf("%w: frame %d: %v", ErrInvalid, i, err)
		}
		m.Entries = append(m.Entries, e)
	}
	// Equal times stay in file order; the timeline rejects them later.
	sort.SliceStable(m.Entries, func(i, j int) bool {
		return m.Entries[i].TimeOfDay < m.Entries[j].TimeOfDay
	})
	return m, nil
}

func (r rawEntry) resolve(baseDir string) (Entry, error) {
	path := r.File
	if path == "" {
		path = r.Image
	}
	if path == "" || r.Time == "" {
		return Entry{}, errors.New("entries require 'file' and 'time'")
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(baseDir, path)
	}
	if r.Page < 0 {
		return Entry{}, fmt.Errorf("page must be positive, got %d", r.Page)
	}

	seconds, err := ParseClock(r.Time)
	if err != nil {
		return Entry{}, err
	}

	appearance, err := r.appearance()
	if err != nil {
		return Entry{}, err
	}
	return Entry{Path: path, Page: r.Page, TimeOfDay: seconds, Appearance: appearance}, nil
}

func (r rawEntry) appearance() (wallpaper.Appearance, error) {
	if strings.TrimSpace(r.Appearance) != "" {
		return wallpaper.ParseAppearance(r.Appearance)
	}
	switch {
	case r.Light && r.Dark:
		return wallpaper.AppearanceNone, errors.New("a frame cannot be both light and dark")
	case r.Light:
		return wallpaper.AppearanceLight, nil
	case r.Dark:
		return wallpaper.AppearanceDark, nil
	}
	return wallpaper.AppearanceNone, nil
}

// ParseClock converts HH:MM or HH:MM:SS into seconds since midnight.
// "24:00" is rejected: it is the same instant as "00:00" of the next cycle.
func ParseClock(s string) (int, error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) != 2 && len(parts) != 3 {
		return 0, fmt.Errorf("time %q must use HH:MM or HH:MM:SS", s)
	}
	var vals [3]int
	for i, p := range parts {
		v, err := strconv.Atoi(p)
		if err != nil || v < 0 {
			return 0, fmt.Errorf("time %q contains invalid numbers", s)
		}
		vals[i] = v
	}
	h, m, sec := vals[0], vals[1], vals[2]
	if h > 23 {
		return 0, fmt.Errorf("hour out of range in %q", s)
	}
	if m > 59 || sec > 59 {
		return 0, fmt.Errorf("minute/second out of range in %q", s)
	}
	return h*3600 + m*60 + sec, nil
}
