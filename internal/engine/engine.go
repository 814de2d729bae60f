package engine

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ivlev/heicwall/internal/codec"
	"github.com/ivlev/heicwall/internal/heif"
	"github.com/ivlev/heicwall/internal/normalize"
	"github.com/ivlev/heicwall/internal/system"
	"github.com/ivlev/heicwall/internal/timeline"
	"github.com/ivlev/heicwall/internal/wallpaper"
)

const (
	MinQuality = 1
	MaxQuality = 100
)

// State - этап сборки. Этапы идут строго по возрастанию, Failed конечен.
type State int

const (
	StateValidating State = iota
	StateNormalizing
	StateEncoding
	StateMuxing
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateValidating:
		return "validating"
	case StateNormalizing:
		return "normalizing"
	case StateEncoding:
		return "encoding"
	case StateMuxing:
		return "muxing"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Builder собирает динамические обои. Один Builder можно использовать для
// нескольких сборок подряд: состояние живёт только внутри Build.
type Builder struct {
	Encoder codec.Encoder
	// Workers ограничивает параллельные энкодеры; 0 - подобрать по CPU и памяти.
	Workers int
	Logger  *slog.Logger
	// OnState вызывается на каждом переходе между этапами.
	OnState func(from, to State)
}

func NewBuilder(enc codec.Encoder, workers int, logger *slog.Logger) *Builder {
	return &Builder{
		Encoder: enc,
		Workers: workers,
		Logger:  logger,
	}
}

func (b *Builder) logger() *slog.Logger {
	if b.Logger == nil {
		return slog.Default()
	}
	return b.Logger
}

// buildRun - одна сборка: Validating -> Normalizing -> Encoding -> Muxing -> Done.
type buildRun struct {
	b       *Builder
	state   State
	timings wallpaper.Timings
	mark    time.Time
}

func (r *buildRun) advance(to State) error {
	if r.state == StateDone || r.state == StateFailed || to <= r.state {
		return fmt.Errorf("недопустимый переход %s -> %s", r.state, to)
	}
	r.record()
	r.b.logger().Debug("build state", slog.String("from", r.state.String()), slog.String("to", to.String()))
	if r.b.OnState != nil {
		r.b.OnState(r.state, to)
	}
	r.state = to
	r.mark = time.Now()
	return nil
}

// record относит время с прошлого перехода к текущему этапу.
func (r *buildRun) record() {
	d := time.Since(r.mark)
	switch r.state {
	case StateValidating:
		r.timings.Validate += d
	case StateNormalizing:
		r.timings.Normalize += d
	case StateEncoding:
		r.timings.Encode += d
	case StateMuxing:
		r.timings.Mux += d
	}
}

func (r *buildRun) fail(err error) {
	if r.state == StateFailed {
		return
	}
	r.b.logger().Debug("build failed", slog.String("state", r.state.String()), slog.Any("error", err))
	if r.b.OnState != nil {
		r.b.OnState(r.state, StateFailed)
	}
	r.state = StateFailed
}

// Build проверяет кадры, приводит их к одной геометрии, кодирует и собирает
// HEIF-контейнер. При любой ошибке результат не возвращается; ошибки
// валидации обнаруживаются до кодирования.
func (b *Builder) Build(ctx context.Context, frames []wallpaper.FrameSpec, policy wallpaper.ResizePolicy, quality int) (*wallpaper.BuildResult, error) {
	if b.Encoder == nil {
		return nil, errors.New("не задан энкодер кадров")
	}
	r := &buildRun{b: b, state: StateValidating, mark: time.Now()}
	res, err := r.run(ctx, frames, policy, quality)
	if err != nil {
		r.fail(err)
		return nil, err
	}
	return res, nil
}

func (r *buildRun) run(ctx context.Context, frames []wallpaper.FrameSpec, policy wallpaper.ResizePolicy, quality int) (*wallpaper.BuildResult, error) {
	log := r.b.logger()

	// 1. Validating
	if quality < MinQuality || quality > MaxQuality {
		return nil, &wallpaper.InvalidQualityError{Value: quality}
	}
	if len(frames) == 0 {
		return nil, wallpaper.ErrEmptyManifest
	}
	if _, err := wallpaper.ParseResizePolicy(string(policy)); err != nil {
		return nil, err
	}
	for i, f := range frames {
		if f.Image == nil {
			return nil, fmt.Errorf("кадр %d (%s): %w", i, f.Label(i), wallpaper.ErrNilImage)
		}
	}
	// Таймлайн - единственная упорядоченная последовательность кадров:
	// по нему идут нормализация, кодирование и сборка контейнера.
	tl, err := timeline.New(frames)
	if err != nil {
		return nil, err
	}

	// 2. Normalizing
	if err := r.advance(StateNormalizing); err != nil {
		return nil, err
	}
	images := make([]image.Image, tl.Len())
	for _, e := range tl.Entries {
		images[e.Index] = frames[e.Index].Image
	}
	norm, err := normalize.Frames(images, policy)
	if err != nil {
		return nil, err
	}
	defer norm.Release()

	var warnings []wallpaper.Warning
	for _, i := range norm.Resized() {
		orig := norm.Frames[i].Original
		w := wallpaper.Warning{
			FrameIndex: i,
			Message: fmt.Sprintf("%s resized from %dx%d to %dx%d",
				frames[i].Label(i), orig.X, orig.Y, norm.Size.X, norm.Size.Y),
		}
		warnings = append(warnings, w)
		log.Warn("frame resized", slog.Int("frame", i), slog.String("detail", w.Message))
	}

	// 3. Encoding
	if err := r.advance(StateEncoding); err != nil {
		return nil, err
	}
	coded, err := r.encode(ctx, tl, norm, quality)
	if err != nil {
		return nil, err
	}

	// 4. Muxing - строго в порядке таймлайна, в одном потоке
	if err := r.advance(StateMuxing); err != nil {
		return nil, err
	}
	xmp, err := tl.Encode()
	if err != nil {
		return nil, err
	}
	container, err := heif.Mux(coded, xmp)
	if err != nil {
		return nil, err
	}

	if err := r.advance(StateDone); err != nil {
		return nil, err
	}
	// Геометрия из битстрима: кодек дополняет нечётные стороны до чётных.
	width, height := coded[0].Width, coded[0].Height
	log.Info("dynamic wallpaper built",
		slog.Int("frames", tl.Len()),
		slog.Int("width", width),
		slog.Int("height", height),
		slog.Int("bytes", len(container)))

	return &wallpaper.BuildResult{
		Container: container,
		Metadata:  xmp,
		Timeline:  tl.Entries,
		Width:     width,
		Height:    height,
		Frames:    tl.Len(),
		Warnings:  warnings,
		Timings:   r.timings,
	}, nil
}

// encode кодирует кадры параллельно; каждый воркер пишет только свой слот.
func (r *buildRun) encode(ctx context.Context, tl *timeline.Timeline, norm *normalize.Result, quality int) ([]heif.Image, error) {
	workers := r.b.Workers
	if workers <= 0 {
		workers = system.RecommendedWorkers(tl.Len(), norm.Size.X, norm.Size.Y)
	}
	r.b.logger().Debug("encoding frames", slog.Int("frames", tl.Len()), slog.Int("workers", workers))

	coded := make([]heif.Image, tl.Len())
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, e := range tl.Entries {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return &wallpaper.FrameEncodingError{FrameIndex: e.Index, Err: err}
			}
			img, err := r.b.Encoder.Encode(gctx, norm.Frames[e.Index].Image, quality)
			if err != nil {
				return &wallpaper.FrameEncodingError{FrameIndex: e.Index, Err: err}
			}
			coded[e.Index] = img
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return coded, nil
}
