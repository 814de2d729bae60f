package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"github.com/ivlev/heicwall/internal/config"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if exists {
		t.Fatal("expected config file to be absent")
	}
	if !strings.HasSuffix(resolved, filepath.Join("heicwall", "config.toml")) {
		t.Fatalf("unexpected resolved path %q", resolved)
	}
	if *cfg != config.Default() {
		t.Fatalf("expected defaults, got %+v", *cfg)
	}
	if cfg.Quality != 90 || cfg.ResizeMode != "fit" || cfg.DPI != 150 || cfg.VideoEncoder != config.EncoderAuto {
		t.Fatalf("unexpected defaults: %+v", *cfg)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "heicwall.toml")
	body := "quality = 70\nresize_mode = \"STRICT\"\nworkers = 3\nencoder = \"libx265\"\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("expected %s to be read, got %q exists=%v", path, resolved, exists)
	}
	if cfg.Quality != 70 || cfg.ResizeMode != "strict" || cfg.Workers != 3 || cfg.VideoEncoder != "libx265" {
		t.Fatalf("file values not applied: %+v", *cfg)
	}
	if cfg.DPI != 150 || cfg.Preset != "medium" {
		t.Fatalf("unset keys should keep defaults: %+v", *cfg)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := map[string]string{
		"quality":     "quality = 0\n",
		"resize mode": "resize_mode = \"stretch\"\n",
		"workers":     "workers = -2\n",
		"dpi":         "dpi = 5\n",
		"encoder":     "encoder = \"libx264\"\n",
		"unknown key": "colour = \"red\"\n",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.toml")
			if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
				t.Fatal(err)
			}
			if _, _, _, err := config.Load(path); err == nil {
				t.Fatalf("expected error for %q", body)
			}
		})
	}
}

func TestSampleConfigParses(t *testing.T) {
	cfg := config.Default()
	if err := toml.Unmarshal([]byte(config.SampleConfig()), &cfg); err != nil {
		t.Fatalf("sample config does not parse: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("sample config is invalid: %v", err)
	}
	if cfg.Quality != config.Default().Quality {
		t.Fatalf("sample quality %d differs from default", cfg.Quality)
	}
}
