package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/ivlev/heicwall/internal/wallpaper"
)

//go:embed sample_config.toml
var sampleConfig string

// EncoderAuto lets the codec layer pick whatever HEVC encoder ffmpeg offers.
const EncoderAuto = "auto"

// Config holds build options. Zero values in a config file keep the defaults.
type Config struct {
	ManifestPath string `toml:"manifest"`
	OutputPath   string `toml:"output"`
	InputDir     string `toml:"input_dir"`
	OutputDir    string `toml:"output_dir"`
	Quality      int    `toml:"quality"`
	ResizeMode   string `toml:"resize_mode"`
	Workers      int    `toml:"workers"`
	VideoEncoder string `toml:"encoder"`
	Preset       string `toml:"preset"`
	FFmpegPath   string `toml:"ffmpeg"`
	DPI          int    `toml:"dpi"`
	ShowStats    bool   `toml:"stats"`
	BuildVersion string `toml:"-"`
}

// Default returns the configuration used when no file and no flags are given.
func Default() Config {
	return Config{
		InputDir:     "input",
		OutputDir:    "output",
		Quality:      90,
		ResizeMode:   string(wallpaper.ResizeFit),
		Workers:      0,
		VideoEncoder: EncoderAuto,
		Preset:       "medium",
		FFmpegPath:   "ffmpeg",
		DPI:          150,
	}
}

// SampleConfig returns the commented sample file.
func SampleConfig() string {
	return sampleConfig
}

// DefaultConfigPath returns $XDG_CONFIG_HOME/heicwall/config.toml,
// falling back to ~/.config.
func DefaultConfigPath() (string, error) {
	if base, ok := os.LookupEnv("XDG_CONFIG_HOME"); ok && strings.TrimSpace(base) != "" {
		return filepath.Join(base, "heicwall", "config.toml"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".config", "heicwall", "config.toml"), nil
}

// Load reads the config file at path (or the default location when path is
// empty) on top of Default. A missing file is not an error; exists reports
// whether one was read.
func Load(path string) (cfg *Config, resolved string, exists bool, err error) {
	c := Default()

	resolved = path
	if resolved == "" {
		resolved, err = DefaultConfigPath()
		if err != nil {
			return nil, "", false, err
		}
	}

	file, err := os.Open(resolved)
	switch {
	case err == nil:
		defer file.Close()
		decoder := toml.NewDecoder(file).DisallowUnknownFields()
		if err := decoder.Decode(&c); err != nil {
			return nil, "", false, fmt.Errorf("parse config %s: %w", resolved, err)
		}
		exists = true
	case errors.Is(err, fs.ErrNotExist):
	default:
		return nil, "", false, fmt.Errorf("open config: %w", err)
	}

	c.normalize()
	if err := c.Validate(); err != nil {
		return nil, "", false, err
	}
	return &c, resolved, exists, nil
}

func (c *Config) normalize() {
	c.ResizeMode = strings.ToLower(strings.TrimSpace(c.ResizeMode))
	c.VideoEncoder = strings.TrimSpace(c.VideoEncoder)
	if c.VideoEncoder == "" {
		c.VideoEncoder = EncoderAuto
	}
	if c.FFmpegPath == "" {
		c.FFmpegPath = "ffmpeg"
	}
	if c.Preset == "" {
		c.Preset = "medium"
	}
}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if c.Quality < 1 || c.Quality > 100 {
		return fmt.Errorf("quality must be between 1 and 100, got %d", c.Quality)
	}
	if _, err := wallpaper.ParseResizePolicy(c.ResizeMode); err != nil {
		return err
	}
	if c.Workers < 0 {
		return errors.New("workers must be 0 (auto) or positive")
	}
	if c.DPI < 36 || c.DPI > 1200 {
		return fmt.Errorf("dpi must be between 36 and 1200, got %d", c.DPI)
	}
	switch c.VideoEncoder {
	case EncoderAuto, "libx265", "hevc_videotoolbox":
	default:
		return fmt.Errorf("encoder must be auto, libx265 or hevc_videotoolbox, got %q", c.VideoEncoder)
	}
	return nil
}
