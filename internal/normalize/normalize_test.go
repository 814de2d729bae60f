package normalize

import (
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/ivlev/heicwall/internal/wallpaper"
)

func solid(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func TestFramesStrictMismatch(t *testing.T) {
	images := []image.Image{
		solid(40, 30, color.RGBA{R: 255, A: 255}),
		solid(40, 30, color.RGBA{G: 255, A: 255}),
		solid(20, 30, color.RGBA{B: 255, A: 255}),
	}

	res, err := Frames(images, wallpaper.ResizeStrict)
	if res != nil {
		t.Error("expected no partial output")
	}
	var gm *wallpaper.GeometryMismatchError
	if !errors.As(err, &gm) {
		t.Fatalf("expected GeometryMismatchError, got %v", err)
	}
	if gm.FrameIndex != 2 {
		t.Errorf("expected offending index 2, got %d", gm.FrameIndex)
	}
	if gm.Expected != image.Pt(40, 30) || gm.Actual != image.Pt(20, 30) {
		t.Errorf("unexpected geometries: expected %v actual %v", gm.Expected, gm.Actual)
	}
}

func TestFramesFitResizesToFirstFrame(t *testing.T) {
	small := solid(20, 10, color.RGBA{B: 200, A: 255})
	images := []image.Image{
		solid(40, 30, color.RGBA{R: 255, A: 255}),
		small,
		solid(80, 20, color.RGBA{G: 255, A: 255}),
	}

	res, err := Frames(images, wallpaper.ResizeFit)
	if err != nil {
		t.Fatalf("Frames failed: %v", err)
	}
	defer res.Release()

	if res.Size != image.Pt(40, 30) {
		t.Fatalf("expected target 40x30, got %v", res.Size)
	}
	for i, f := range res.Frames {
		if f.Image.Bounds().Size() != res.Size {
			t.Errorf("frame %d: %v", i, f.Image.Bounds().Size())
		}
	}
	if res.Frames[0].Image != images[0] {
		t.Error("frame 0 should pass through untouched")
	}
	if got := res.Resized(); len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Errorf("unexpected resized set %v", got)
	}
	if res.Frames[1].Original != image.Pt(20, 10) {
		t.Errorf("original geometry lost: %v", res.Frames[1].Original)
	}

	// source left untouched
	if small.Bounds().Size() != image.Pt(20, 10) || small.RGBAAt(5, 5) != (color.RGBA{B: 200, A: 255}) {
		t.Error("input image was modified")
	}
	// fill survives scaling
	got := res.Frames[1].Image.(*image.RGBA).RGBAAt(20, 15)
	if got.B < 190 || got.R > 10 || got.G > 10 {
		t.Errorf("unexpected pixel after resize: %v", got)
	}
}

func TestFramesFitIsDeterministic(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 37, 23))
	for y := 0; y < 23; y++ {
		for x := 0; x < 37; x++ {
			src.SetRGBA(x, y, color.RGBA{R: uint8(x * 7), G: uint8(y * 11), B: uint8(x ^ y), A: 255})
		}
	}
	images := []image.Image{solid(16, 16, color.RGBA{A: 255}), src}

	a, err := Frames(images, wallpaper.ResizeFit)
	if err != nil {
		t.Fatal(err)
	}
	pixA := append([]uint8(nil), a.Frames[1].Image.(*image.RGBA).Pix...)
	a.Release()

	b, err := Frames(images, wallpaper.ResizeFit)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Release()
	pixB := b.Frames[1].Image.(*image.RGBA).Pix
	if string(pixA) != string(pixB) {
		t.Error("fit produced different pixels for the same input")
	}
}

func TestFramesRejectsBadInput(t *testing.T) {
	if _, err := Frames(nil, wallpaper.ResizeFit); !errors.Is(err, wallpaper.ErrEmptyManifest) {
		t.Errorf("expected ErrEmptyManifest, got %v", err)
	}
	one := []image.Image{solid(4, 4, color.RGBA{A: 255})}
	if _, err := Frames(one, "stretch"); !errors.Is(err, wallpaper.ErrUnknownResizePolicy) {
		t.Errorf("expected ErrUnknownResizePolicy, got %v", err)
	}
	withNil := []image.Image{solid(4, 4, color.RGBA{A: 255}), nil}
	if _, err := Frames(withNil, wallpaper.ResizeFit); !errors.Is(err, wallpaper.ErrNilImage) {
		t.Errorf("expected ErrNilImage, got %v", err)
	}
}

func TestCoverCropsCenter(t *testing.T) {
	// left and right thirds red, middle green; square target
	src := solid(30, 10, color.RGBA{R: 255, A: 255})
	for y := 0; y < 10; y++ {
		for x := 10; x < 20; x++ {
			src.SetRGBA(x, y, color.RGBA{G: 255, A: 255})
		}
	}
	dst := image.NewRGBA(image.Rect(0, 0, 10, 10))
	Cover(dst, src)

	c := dst.RGBAAt(5, 5)
	if c.G < 250 || c.R > 5 {
		t.Errorf("expected center crop to be green, got %v", c)
	}
}
