// Package normalize brings a sequence of frames to one pixel geometry.
package normalize

import (
	"fmt"
	"image"

	"golang.org/x/image/draw"

	"github.com/ivlev/heicwall/internal/system"
	"github.com/ivlev/heicwall/internal/wallpaper"
)

// Frame is one normalized frame.
type Frame struct {
	Image    image.Image
	Original image.Point // geometry before normalization
	// Resized frames own a pooled RGBA buffer; Release hands it back.
	Resized bool
}

// Result holds frames that all share Size.
type Result struct {
	Frames []Frame
	Size   image.Point
}

// Frames normalizes images to the geometry of images[0].
//
// Under ResizeFit a frame of different geometry is scaled to cover the
// target (aspect preserved, scale = max(tw/w, th/h)) with CatmullRom and
// the overflow is center-cropped. Under ResizeStrict any difference fails
// with *wallpaper.GeometryMismatchError before anything is allocated.
// Input images are never modified; frames already at the target size are
// passed through as-is.
func Frames(images []image.Image, policy wallpaper.ResizePolicy) (*Result, error) {
	if len(images) == 0 {
		return nil, wallpaper.ErrEmptyManifest
	}
	if policy != wallpaper.ResizeFit && policy != wallpaper.ResizeStrict {
		return nil, fmt.Errorf("%w: %q", wallpaper.ErrUnknownResizePolicy, policy)
	}
	for i, img := range images {
		if img == nil {
			return nil, fmt.Errorf("frame %d: %w", i, wallpaper.ErrNilImage)
		}
		if img.Bounds().Empty() {
			return nil, fmt.Errorf("frame %d: empty image bounds %v", i, img.Bounds())
		}
	}

	target := images[0].Bounds().Size()
	if policy == wallpaper.ResizeStrict {
		for i, img := range images[1:] {
			if size := img.Bounds().Size(); size != target {
				return nil, &wallpaper.GeometryMismatchError{FrameIndex: i + 1, Expected: target, Actual: size}
			}
		}
	}

	res := &Result{Frames: make([]Frame, len(images)), Size: target}
	for i, img := range images {
		size := img.Bounds().Size()
		res.Frames[i] = Frame{Image: img, Original: size}
		if size == target {
			continue
		}
		dst := system.GetImage(target)
		Cover(dst, img)
		res.Frames[i].Image = dst
		res.Frames[i].Resized = true
	}
	return res, nil
}

// Resized returns the indexes of frames that were rescaled.
func (r *Result) Resized() []int {
	var idx []int
	for i, f := range r.Frames {
		if f.Resized {
			idx = append(idx, i)
		}
	}
	return idx
}

// Release returns pooled buffers. Frames must not be used afterwards.
func (r *Result) Release() {
	if r == nil {
		return
	}
	for i, f := range r.Frames {
		if !f.Resized {
			continue
		}
		if rgba, ok := f.Image.(*image.RGBA); ok {
			system.PutImage(rgba)
		}
		r.Frames[i].Image = nil
		r.Frames[i].Resized = false
	}
}

// Cover fills dst with src scaled to cover dst's bounds and center-cropped.
func Cover(dst draw.Image, src image.Image) {
	db, sb := dst.Bounds(), src.Bounds()
	tw, th := db.Dx(), db.Dy()
	sw, sh := sb.Dx(), sb.Dy()

	cropW, cropH := sw, sh
	if sw*th > sh*tw {
		// source is wider than the target: trim the sides
		cropW = (sh*tw + th/2) / th
	} else {
		cropH = (sw*th + tw/2) / tw
	}
	if cropW < 1 {
		cropW = 1
	}
	if cropH < 1 {
		cropH = 1
	}
	x0 := sb.Min.X + (sw-cropW)/2
	y0 := sb.Min.Y + (sh-cropH)/2
	draw.CatmullRom.Scale(dst, db, src, image.Rect(x0, y0, x0+cropW, y0+cropH), draw.Src, nil)
}
