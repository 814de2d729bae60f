package codec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"io"
	"log/slog"
	"math"
	"os/exec"
	"strings"

	"github.com/ivlev/heicwall/internal/heif"
)

// Encoder кодирует один нормализованный кадр в HEVC-картинку для HEIF.
type Encoder interface {
	Encode(ctx context.Context, img image.Image, quality int) (heif.Image, error)
}

const (
	EncoderX265         = "libx265"
	EncoderVideoToolbox = "hevc_videotoolbox"
)

// ErrNoHEVCEncoder означает, что ffmpeg собран без HEVC-энкодера.
var ErrNoHEVCEncoder = errors.New("ffmpeg не поддерживает ни libx265, ни hevc_videotoolbox")

// FFmpegEncoder гоняет каждый кадр через отдельный процесс ffmpeg:
// сырой RGBA в stdin, Annex-B HEVC из stdout.
type FFmpegEncoder struct {
	Binary string // по умолчанию "ffmpeg"
	Codec  string // libx265 или hevc_videotoolbox
	Preset string // пресет x265, по умолчанию "medium"
	Logger *slog.Logger
}

func (e *FFmpegEncoder) binary() string {
	if e.Binary == "" {
		return "ffmpeg"
	}
	return e.Binary
}

func (e *FFmpegEncoder) logger() *slog.Logger {
	if e.Logger == nil {
		return slog.Default()
	}
	return e.Logger
}

func (e *FFmpegEncoder) Encode(ctx context.Context, img image.Image, quality int) (heif.Image, error) {
	if img == nil {
		return heif.Image{}, errors.New("nil image")
	}
	inputW, inputH := img.Bounds().Dx(), img.Bounds().Dy()
	args := e.buildFFmpegArgs(inputW, inputH, quality)

	cmd := exec.CommandContext(ctx, e.binary(), args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return heif.Image{}, fmt.Errorf("stdin pipe error: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return heif.Image{}, fmt.Errorf("ffmpeg start error: %w", err)
	}

	// Запись raw RGBA данных
	if err := writeRawRGBA(stdin, img); err != nil {
		stdin.Close()
		cmd.Wait()
		return heif.Image{}, fmt.Errorf("write raw error: %w", err)
	}
	stdin.Close()

	if err := cmd.Wait(); err != nil {
		return heif.Image{}, fmt.Errorf("ffmpeg wait error: %w, output: %s", err, strings.TrimSpace(stderr.String()))
	}

	coded, err := heif.ImageFromAnnexB(stdout.Bytes())
	if err != nil {
		return heif.Image{}, err
	}
	wantW, wantH := evenUp(inputW), evenUp(inputH)
	if coded.Width != wantW || coded.Height != wantH {
		return heif.Image{}, fmt.Errorf("энкодер вернул %dx%d вместо %dx%d", coded.Width, coded.Height, wantW, wantH)
	}
	e.logger().Debug("frame encoded",
		slog.String("codec", e.codec()),
		slog.Int("width", coded.Width),
		slog.Int("height", coded.Height),
		slog.Int("bytes", len(coded.Data)))
	return coded, nil
}

func (e *FFmpegEncoder) codec() string {
	if e.Codec == "" {
		return EncoderX265
	}
	return e.Codec
}

func (e *FFmpegEncoder) buildFFmpegArgs(inputW, inputH int, quality int) []string {
	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-f", "rawvideo",
		"-pixel_format", "rgba",
		"-video_size", fmt.Sprintf("%dx%d", inputW, inputH),
		"-i", "-",
		"-frames:v", "1",
	}
	// yuv420p требует чётных сторон
	if inputW%2 != 0 || inputH%2 != 0 {
		args = append(args, "-vf", "pad=ceil(iw/2)*2:ceil(ih/2)*2")
	}
	args = append(args, "-pix_fmt", "yuv420p", "-c:v", e.codec())

	// Качество в зависимости от энкодера
	switch e.codec() {
	case EncoderVideoToolbox:
		args = append(args, "-q:v", fmt.Sprintf("%d", quality), "-allow_sw", "1")
	default: // libx265
		preset := e.Preset
		if preset == "" {
			preset = "medium"
		}
		args = append(args,
			"-crf", fmt.Sprintf("%d", CRFFromQuality(quality)),
			"-preset", preset,
			"-x265-params", "log-level=error:info=0",
		)
	}

	args = append(args, "-f", "hevc", "-")
	return args
}

// CRFFromQuality переводит качество 1..100 в CRF x265 0..51 (100 -> 0).
func CRFFromQuality(quality int) int {
	crf := int(math.Round(float64(100-quality) * 51 / 100))
	if crf < 0 {
		return 0
	}
	if crf > 51 {
		return 51
	}
	return crf
}

func evenUp(v int) int {
	return v + v%2
}

func writeRawRGBA(w io.Writer, img image.Image) error {
	bounds := img.Bounds()
	rgba, ok := img.(*image.RGBA)
	// Проверяем, является ли изображение уже RGBA и имеет ли стандартный шаг (stride)
	if !ok || rgba.Stride != bounds.Dx()*4 || rgba.Rect.Min.X != 0 || rgba.Rect.Min.Y != 0 {
		rgba = image.NewRGBA(image.Rectangle{Max: bounds.Size()})
		draw.Draw(rgba, rgba.Bounds(), img, bounds.Min, draw.Src)
	}
	_, err := w.Write(rgba.Pix[:bounds.Dx()*bounds.Dy()*4])
	return err
}

// DetectEncoder выбирает HEVC-энкодер: VideoToolbox на macOS, иначе libx265.
func DetectEncoder(ctx context.Context, binary string) (string, error) {
	if binary == "" {
		binary = "ffmpeg"
	}
	out, err := exec.CommandContext(ctx, binary, "-hide_banner", "-encoders").CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("ffmpeg -encoders: %w", err)
	}
	return pickEncoder(string(out))
}

func pickEncoder(encoders string) (string, error) {
	// Приоритеты:
	// 1. MacOS (VideoToolbox)
	// 2. Software (libx265)
	for _, name := range []string{EncoderVideoToolbox, EncoderX265} {
		if strings.Contains(encoders, " "+name+" ") {
			return name, nil
		}
	}
	return "", ErrNoHEVCEncoder
}
