package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/ivlev/heicwall/internal/codec"
	"github.com/ivlev/heicwall/internal/config"
	"github.com/ivlev/heicwall/internal/engine"
	"github.com/ivlev/heicwall/internal/manifest"
	"github.com/ivlev/heicwall/internal/output"
	"github.com/ivlev/heicwall/internal/source"
	"github.com/ivlev/heicwall/internal/system"
	"github.com/ivlev/heicwall/internal/wallpaper"
)

type buildFlags struct {
	manifest   string
	output     string
	quality    int
	resizeMode string
	workers    int
	encoder    string
	dpi        int
	stats      bool
}

func newBuildCommand(ctx *commandContext) *cobra.Command {
	var f buildFlags

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Собрать HEIC с динамическими обоями по манифесту",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			base, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			cfg := *base
			if err := f.apply(cmd, &cfg); err != nil {
				return err
			}
			return runBuild(cmd, ctx, &cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&f.manifest, "manifest", "m", "", "Манифест JSON/YAML (по умолчанию: самый свежий в input/)")
	flags.StringVarP(&f.output, "output", "o", "", "Путь к HEIC (если пусто, генерируется автоматически в output/)")
	flags.IntVar(&f.quality, "quality", 0, "Качество 1..100")
	flags.StringVar(&f.resizeMode, "resize-mode", "", "fit (масштаб и обрезка по первому кадру) или strict")
	flags.IntVar(&f.workers, "workers", 0, "Параллельные энкодеры (0 - по CPU и памяти)")
	flags.StringVar(&f.encoder, "encoder", "", "auto, libx265 или hevc_videotoolbox")
	flags.IntVar(&f.dpi, "dpi", 0, "DPI для страниц PDF")
	flags.BoolVar(&f.stats, "stats", false, "Показать время этапов")
	return cmd
}

// apply переносит в cfg только явно заданные флаги.
func (f *buildFlags) apply(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("manifest") {
		cfg.ManifestPath = f.manifest
	}
	if flags.Changed("output") {
		cfg.OutputPath = f.output
	}
	if flags.Changed("quality") {
		cfg.Quality = f.quality
	}
	if flags.Changed("resize-mode") {
		cfg.ResizeMode = strings.ToLower(strings.TrimSpace(f.resizeMode))
	}
	if flags.Changed("workers") {
		cfg.Workers = f.workers
	}
	if flags.Changed("encoder") {
		cfg.VideoEncoder = strings.TrimSpace(f.encoder)
	}
	if flags.Changed("dpi") {
		cfg.DPI = f.dpi
	}
	if flags.Changed("stats") {
		cfg.ShowStats = f.stats
	}
	return cfg.Validate()
}

func runBuild(cmd *cobra.Command, ctx *commandContext, cfg *config.Config) error {
	out := cmd.OutOrStdout()
	log := ctx.logger()
	runCtx := cmd.Context()

	manifestPath := cfg.ManifestPath
	if manifestPath == "" {
		latest, err := system.FindLatestManifest(cfg.InputDir)
		if err != nil {
			return fmt.Errorf("%w. Положите манифест в %s/", err, cfg.InputDir)
		}
		manifestPath = latest
		fmt.Fprintf(out, "[*] Выбран манифест: %s\n", manifestPath)
	}

	m, err := manifest.Load(manifestPath)
	if err != nil {
		return err
	}

	loader := &source.Loader{DPI: cfg.DPI, Workers: cfg.Workers, Logger: log}
	frames, err := loader.Load(runCtx, m.Entries)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "[*] Загружено кадров: %d\n", len(frames))

	encoderName := cfg.VideoEncoder
	if encoderName == config.EncoderAuto {
		encoderName, err = codec.DetectEncoder(runCtx, cfg.FFmpegPath)
		if err != nil {
			return err
		}
	}
	if encoderName != codec.EncoderX265 {
		fmt.Fprintf(out, "[*] Обнаружено аппаратное ускорение: %s\n", encoderName)
	}

	enc := &codec.FFmpegEncoder{
		Binary: cfg.FFmpegPath,
		Codec:  encoderName,
		Preset: cfg.Preset,
		Logger: log,
	}
	builder := engine.NewBuilder(enc, cfg.Workers, log)
	builder.OnState = func(from, to engine.State) {
		if to == engine.StateEncoding {
			fmt.Fprintf(out, "[*] Кодирование %d кадров (%s, качество %d)...\n", len(frames), encoderName, cfg.Quality)
		}
	}

	res, err := builder.Build(runCtx, frames, wallpaper.ResizePolicy(cfg.ResizeMode), cfg.Quality)
	if err != nil {
		return err
	}
	for _, w := range res.Warnings {
		fmt.Fprintf(out, "[!] %s\n", w.Message)
	}

	target := cfg.OutputPath
	if target == "" {
		target = output.DefaultPath(cfg.OutputDir, m.Path, time.Now())
	}
	if err := output.WriteFile(target, res.Container); err != nil {
		return err
	}

	fmt.Fprintf(out, "[+] Успех! Результат: %s (%s, %d кадров, %dx%d)\n",
		target, humanize.Bytes(uint64(len(res.Container))), res.Frames, res.Width, res.Height)
	if cfg.ShowStats {
		printStats(out, res)
	}
	return nil
}

func printStats(out io.Writer, res *wallpaper.BuildResult) {
	t := res.Timings
	rows := [][]string{
		{"validate", t.Validate.Round(time.Millisecond).String()},
		{"normalize", t.Normalize.Round(time.Millisecond).String()},
		{"encode", t.Encode.Round(time.Millisecond).String()},
		{"mux", t.Mux.Round(time.Millisecond).String()},
		{"total", t.Total().Round(time.Millisecond).String()},
	}
	fmt.Fprintln(out, renderTable([]string{"Этап", "Время"}, rows, []columnAlignment{alignLeft, alignRight}, isTerminal(out)))
	fmt.Fprintf(out, "[*] Метаданные XMP: %s\n", humanize.Bytes(uint64(len(res.Metadata))))
}
