package source

import (
	"bytes"
	"context"
	"encoding/binary"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"

	"github.com/ivlev/heicwall/internal/manifest"
	"github.com/ivlev/heicwall/internal/wallpaper"
)

func writeImage(t *testing.T, path string, w, h int, c color.RGBA) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	switch filepath.Ext(path) {
	case ".png":
		err = png.Encode(f, img)
	case ".bmp":
		err = bmp.Encode(f, img)
	case ".tiff":
		err = tiff.Encode(f, img, nil)
	default:
		t.Fatalf("no encoder for %s", path)
	}
	if err != nil {
		t.Fatal(err)
	}
}

func TestImageSourceFormats(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.png", "b.bmp", "c.tiff"} {
		path := filepath.Join(dir, name)
		writeImage(t, path, 12, 7, color.RGBA{R: 200, A: 255})

		src, err := Open(path)
		if err != nil {
			t.Fatalf("%s: Open failed: %v", name, err)
		}
		if src.PageCount() != 1 {
			t.Errorf("%s: expected one page", name)
		}
		size, err := src.PageSize(0)
		if err != nil || size != image.Pt(12, 7) {
			t.Errorf("%s: PageSize = %v, %v", name, size, err)
		}
		img, err := src.RenderPage(0, 300)
		if err != nil {
			t.Fatalf("%s: RenderPage failed: %v", name, err)
		}
		if r, _, _, _ := img.At(img.Bounds().Min.X, img.Bounds().Min.Y).RGBA(); r>>8 != 200 {
			t.Errorf("%s: unexpected red channel %d", name, r>>8)
		}
		if _, err := src.RenderPage(1, 300); err == nil {
			t.Errorf("%s: page 2 of an image should fail", name)
		}
		src.Close()
	}
}

// writeOrientedJPEG stores img with an APP1 EXIF segment carrying the
// given Orientation value right after SOI.
func writeOrientedJPEG(t *testing.T, path string, img image.Image, orientation uint16) {
	t.Helper()
	var enc bytes.Buffer
	if err := jpeg.Encode(&enc, img, &jpeg.Options{Quality: 95}); err != nil {
		t.Fatal(err)
	}

	var exif bytes.Buffer
	exif.WriteString("Exif\x00\x00")
	exif.WriteString("MM\x00\x2a")
	binary.Write(&exif, binary.BigEndian, uint32(8)) // IFD0
	binary.Write(&exif, binary.BigEndian, uint16(1)) // одна запись
	binary.Write(&exif, binary.BigEndian, uint16(0x0112))
	binary.Write(&exif, binary.BigEndian, uint16(3)) // SHORT
	binary.Write(&exif, binary.BigEndian, uint32(1))
	binary.Write(&exif, binary.BigEndian, orientation)
	binary.Write(&exif, binary.BigEndian, uint16(0))
	binary.Write(&exif, binary.BigEndian, uint32(0)) // следующего IFD нет

	var out bytes.Buffer
	out.Write(enc.Bytes()[:2]) // SOI
	out.Write([]byte{0xFF, 0xE1})
	binary.Write(&out, binary.BigEndian, uint16(exif.Len()+2))
	out.Write(exif.Bytes())
	out.Write(enc.Bytes()[2:])
	if err := os.WriteFile(path, out.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestImageSourceAppliesEXIFOrientation(t *testing.T) {
	// левая половина красная, правая синяя
	img := image.NewRGBA(image.Rect(0, 0, 32, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 32; x++ {
			c := color.RGBA{R: 255, A: 255}
			if x >= 16 {
				c = color.RGBA{B: 255, A: 255}
			}
			img.SetRGBA(x, y, c)
		}
	}
	path := filepath.Join(t.TempDir(), "camera.jpg")
	writeOrientedJPEG(t, path, img, 6) // повернуть на 90° по часовой

	src, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer src.Close()

	got, err := src.RenderPage(0, 0)
	if err != nil {
		t.Fatalf("RenderPage failed: %v", err)
	}
	if size := got.Bounds().Size(); size != image.Pt(16, 32) {
		t.Fatalf("expected rotated 16x32, got %v", size)
	}
	if size, err := src.PageSize(0); err != nil || size != image.Pt(16, 32) {
		t.Errorf("PageSize = %v, %v; want rotated 16x32", size, err)
	}
	b := got.Bounds()
	top := color.RGBAModel.Convert(got.At(b.Min.X+8, b.Min.Y+6)).(color.RGBA)
	bottom := color.RGBAModel.Convert(got.At(b.Min.X+8, b.Min.Y+25)).(color.RGBA)
	if top.R < 200 || top.B > 60 {
		t.Errorf("top half should be red after rotation, got %v", top)
	}
	if bottom.B < 200 || bottom.R > 60 {
		t.Errorf("bottom half should be blue after rotation, got %v", bottom)
	}
}

func TestOpenRejectsDirectory(t *testing.T) {
	if _, err := Open(t.TempDir()); err == nil {
		t.Fatal("expected error for directory")
	}
}

func TestIsImage(t *testing.T) {
	for path, want := range map[string]bool{
		"a.JPG": true, "b.webp": true, "c.tif": true, "d.pdf": false, "e": false,
	} {
		if IsImage(path) != want {
			t.Errorf("IsImage(%q) != %v", path, want)
		}
	}
}

func TestLoaderKeepsEntryOrder(t *testing.T) {
	dir := t.TempDir()
	var entries []manifest.Entry
	for i, name := range []string{"1.png", "2.png", "3.png", "4.png"} {
		path := filepath.Join(dir, name)
		writeImage(t, path, 4+i, 4, color.RGBA{G: uint8(i * 10), A: 255})
		entries = append(entries, manifest.Entry{Path: path, TimeOfDay: i * 3600, Appearance: wallpaper.Appearance(i % 3)})
	}

	l := &Loader{Workers: 2}
	frames, err := l.Load(context.Background(), entries)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	for i, f := range frames {
		if f.Image.Bounds().Dx() != 4+i {
			t.Errorf("frame %d: width %d", i, f.Image.Bounds().Dx())
		}
		if f.TimeOfDay != entries[i].TimeOfDay || f.Appearance != entries[i].Appearance || f.Source != entries[i].Path {
			t.Errorf("frame %d: metadata not carried: %+v", i, f)
		}
	}
}

func TestLoaderReportsFrameIndex(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "ok.png")
	writeImage(t, good, 2, 2, color.RGBA{A: 255})
	broken := filepath.Join(dir, "broken.png")
	if err := os.WriteFile(broken, []byte("not a png"), 0o644); err != nil {
		t.Fatal(err)
	}

	l := &Loader{Workers: 1}
	_, err := l.Load(context.Background(), []manifest.Entry{{Path: good}, {Path: broken}})
	if err == nil || !strings.Contains(err.Error(), "кадр 1") {
		t.Fatalf("expected error naming frame 1, got %v", err)
	}

	_, err = l.Load(context.Background(), []manifest.Entry{{Path: good, Page: 2}})
	if err == nil {
		t.Fatal("expected error for page 2 of an image")
	}
}
