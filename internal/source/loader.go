package source

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/ivlev/heicwall/internal/manifest"
	"github.com/ivlev/heicwall/internal/wallpaper"
)

const DefaultDPI = 150

// Loader превращает записи манифеста в декодированные кадры.
type Loader struct {
	DPI     int // плотность растеризации PDF
	Workers int // 0 - по числу CPU
	Logger  *slog.Logger
}

// Load декодирует кадры параллельно. Порядок результата совпадает с entries.
func (l *Loader) Load(ctx context.Context, entries []manifest.Entry) ([]wallpaper.FrameSpec, error) {
	workers := l.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	dpi := l.DPI
	if dpi <= 0 {
		dpi = DefaultDPI
	}
	log := l.Logger
	if log == nil {
		log = slog.Default()
	}

	frames := make([]wallpaper.FrameSpec, len(entries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, e := range entries {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			img, err := loadEntry(e, dpi)
			if err != nil {
				return fmt.Errorf("кадр %d: %w", i, err)
			}
			frames[i] = wallpaper.FrameSpec{
				Image:      img,
				TimeOfDay:  e.TimeOfDay,
				Appearance: e.Appearance,
				Source:     label(e),
			}
			log.Debug("frame loaded",
				slog.Int("frame", i),
				slog.String("source", frames[i].Source),
				slog.Int("width", img.Bounds().Dx()),
				slog.Int("height", img.Bounds().Dy()))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return frames, nil
}

func loadEntry(e manifest.Entry, dpi int) (img image.Image, err error) {
	src, err := Open(e.Path)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := src.Close(); err == nil && cerr != nil {
			err = cerr
		}
	}()

	page := e.Page
	if page == 0 {
		page = 1
	}
	if page > src.PageCount() {
		return nil, fmt.Errorf("%s: страница %d, а всего страниц %d", e.Path, page, src.PageCount())
	}
	return src.RenderPage(page-1, dpi)
}

func label(e manifest.Entry) string {
	if e.Page > 0 {
		return fmt.Sprintf("%s#%d", e.Path, e.Page)
	}
	return e.Path
}
