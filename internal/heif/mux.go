// Package heif writes and reads the subset of the HEIF (ISO/IEC 23008-12)
// container used by dynamic wallpapers: a collection of HEVC coded image
// items plus one XMP metadata item.
//
// Layout produced by Mux:
//
//	ftyp  heic / mif1,heic
//	meta  hdlr(pict) pitm iloc iinf iref(cdsc) iprp(ipco, ipma)
//	mdat  frame 0 .. frame N-1, XMP packet
//
// Frame i is item ID i+1; the XMP item follows the last frame. Item order in
// iinf and data order in mdat both follow the order of the frames argument.
package heif

import (
	"bytes"
	"errors"
	"fmt"
	"math"
)

const (
	itemTypeHEVC = "hvc1"
	itemTypeMIME = "mime"

	// XMPContentType marks the metadata item.
	XMPContentType = "application/rdf+xml"

	maxItemID = 0xFFFF
)

var (
	// ErrNoFrames is returned when Mux receives nothing to store.
	ErrNoFrames = errors.New("heif: no frames to mux")
	// ErrInvalidImage is returned for frames missing data, decoder config or geometry.
	ErrInvalidImage = errors.New("heif: invalid coded image")
	// ErrTooLarge is returned when offsets would not fit the 32-bit iloc and
	// mdat size fields.
	ErrTooLarge = errors.New("heif: payload exceeds 4 GiB")
)

// Image is one HEVC coded picture ready to be stored as an item.
type Image struct {
	Width  int
	Height int
	// Config is the HEVCDecoderConfigurationRecord (hvcC payload).
	Config []byte
	// Data holds the picture's NAL units, each prefixed by a 4-byte length.
	Data []byte
}

func (img Image) validate() error {
	switch {
	case img.Width <= 0 || img.Height <= 0:
		return fmt.Errorf("%w: geometry %dx%d", ErrInvalidImage, img.Width, img.Height)
	case len(img.Config) == 0:
		return fmt.Errorf("%w: missing decoder configuration", ErrInvalidImage)
	case len(img.Data) == 0:
		return fmt.Errorf("%w: empty bitstream", ErrInvalidImage)
	}
	return nil
}

type itemLayout struct {
	id     uint16
	offset uint32 // relative to the start of mdat payload
	length uint32
}

type association struct {
	index     uint16 // 1-based into ipco
	essential bool
}

// Mux assembles frames and the XMP packet into a HEIF file. frames[0] is the
// primary item. Nothing is returned unless every frame is valid.
func Mux(frames []Image, xmp []byte) ([]byte, error) {
	if len(frames) == 0 {
		return nil, ErrNoFrames
	}
	itemCount := len(frames)
	if len(xmp) > 0 {
		itemCount++
	}
	if itemCount > maxItemID {
		return nil, fmt.Errorf("heif: %d items exceed the 16-bit item id space", itemCount)
	}
	for i, f := range frames {
		if err := f.validate(); err != nil {
			return nil, fmt.Errorf("frame %d: %w", i, err)
		}
	}

	// ipco: one hvcC per distinct config, one ispe per distinct geometry,
	// a single shared pixi.
	var props [][]byte
	hvcIndex := map[string]uint16{}
	ispeIndex := map[[2]int]uint16{}
	addProp := func(p []byte) uint16 {
		props = append(props, p)
		return uint16(len(props))
	}
	pixi := addProp(pixiBox())
	assoc := make([][]association, len(frames))
	for i, f := range frames {
		hi, ok := hvcIndex[string(f.Config)]
		if !ok {
			hi = addProp(box("hvcC", f.Config))
			hvcIndex[string(f.Config)] = hi
		}
		dims := [2]int{f.Width, f.Height}
		si, ok := ispeIndex[dims]
		if !ok {
			si = addProp(ispeBox(f.Width, f.Height))
			ispeIndex[dims] = si
		}
		assoc[i] = []association{{index: hi, essential: true}, {index: si}, {index: pixi}}
	}

	lengths := make([]int, 0, itemCount)
	for _, f := range frames {
		lengths = append(lengths, len(f.Data))
	}
	xmpID := uint16(0)
	if len(xmp) > 0 {
		xmpID = uint16(len(frames) + 1)
		lengths = append(lengths, len(xmp))
	}
	layout, total, err := planLayout(lengths)
	if err != nil {
		return nil, err
	}

	ftyp := ftypBox()
	// iloc holds absolute offsets with fixed-width fields, so the meta size
	// does not depend on the base offset: size it once, then write for real.
	sizing := metaBox(frames, xmpID, layout, 0, props, assoc)
	if uint64(len(ftyp)+len(sizing)+8)+total > math.MaxUint32 {
		return nil, fmt.Errorf("%w: mdat ends past byte %d", ErrTooLarge, uint64(math.MaxUint32))
	}
	base := uint32(len(ftyp) + len(sizing) + 8)
	meta := metaBox(frames, xmpID, layout, base, props, assoc)

	var mdat bytes.Buffer
	for _, f := range frames {
		mdat.Write(f.Data)
	}
	mdat.Write(xmp)

	out := make([]byte, 0, len(ftyp)+len(meta)+8+mdat.Len())
	out = append(out, ftyp...)
	out = append(out, meta...)
	out = append(out, box("mdat", mdat.Bytes())...)
	return out, nil
}

// planLayout places item payloads back to back in mdat; item i gets ID i+1.
// The mdat box size (payload + 8) must fit 32 bits.
func planLayout(lengths []int) ([]itemLayout, uint64, error) {
	layout := make([]itemLayout, 0, len(lengths))
	var offset uint64
	for i, n := range lengths {
		end := offset + uint64(n)
		if end > math.MaxUint32-8 {
			return nil, 0, fmt.Errorf("%w: item %d ends at byte %d", ErrTooLarge, i+1, end)
		}
		layout = append(layout, itemLayout{id: uint16(i + 1), offset: uint32(offset), length: uint32(n)})
		offset = end
	}
	return layout, offset, nil
}

func ftypBox() []byte {
	w := boxWriter{}
	w.fourCC("heic")
	w.u32(0)
	w.fourCC("mif1")
	w.fourCC("heic")
	return box("ftyp", w.b)
}

func metaBox(frames []Image, xmpID uint16, layout []itemLayout, base uint32, props [][]byte, assoc [][]association) []byte {
	return fullBox("meta", 0, 0,
		hdlrBox(),
		pitmBox(1),
		ilocBox(layout, base),
		iinfBox(len(frames), xmpID),
		irefBox(xmpID),
		iprpBox(props, assoc),
	)
}

func hdlrBox() []byte {
	w := boxWriter{}
	w.u32(0) // pre_defined
	w.fourCC("pict")
	w.u32(0)
	w.u32(0)
	w.u32(0)
	w.cstring("")
	return fullBox("hdlr", 0, 0, w.b)
}

func pitmBox(id uint16) []byte {
	w := boxWriter{}
	w.u16(id)
	return fullBox("pitm", 0, 0, w.b)
}

func ilocBox(layout []itemLayout, base uint32) []byte {
	w := boxWriter{}
	w.u8(4<<4 | 4) // offset_size, length_size
	w.u8(0)        // base_offset_size, reserved
	w.u16(uint16(len(layout)))
	for _, it := range layout {
		w.u16(it.id)
		w.u16(0) // data_reference_index: this file
		w.u16(1) // extent_count
		w.u32(base + it.offset)
		w.u32(it.length)
	}
	return fullBox("iloc", 0, 0, w.b)
}

func iinfBox(frames int, xmpID uint16) []byte {
	w := boxWriter{}
	count := frames
	if xmpID != 0 {
		count++
	}
	w.u16(uint16(count))
	for i := 0; i < frames; i++ {
		w.raw(infeBox(uint16(i+1), itemTypeHEVC, ""))
	}
	if xmpID != 0 {
		w.raw(infeBox(xmpID, itemTypeMIME, XMPContentType))
	}
	return fullBox("iinf", 0, 0, w.b)
}

func infeBox(id uint16, itemType, contentType string) []byte {
	w := boxWriter{}
	w.u16(id)
	w.u16(0) // item_protection_index
	w.fourCC(itemType)
	w.cstring("")
	if itemType == itemTypeMIME {
		w.cstring(contentType)
	}
	return fullBox("infe", 2, 0, w.b)
}

// irefBox links the XMP item to the primary image (content description).
func irefBox(xmpID uint16) []byte {
	if xmpID == 0 {
		return nil
	}
	w := boxWriter{}
	w.u16(xmpID)
	w.u16(1)
	w.u16(1)
	return fullBox("iref", 0, 0, box("cdsc", w.b))
}

func iprpBox(props [][]byte, assoc [][]association) []byte {
	ipco := box("ipco", props...)

	// ipma with 7-bit indexes unless ipco outgrew them.
	var flags uint32
	if len(props) > 0x7F {
		flags = 1
	}
	w := boxWriter{}
	w.u32(uint32(len(assoc)))
	for i, list := range assoc {
		w.u16(uint16(i + 1))
		w.u8(uint8(len(list)))
		for _, a := range list {
			if flags&1 != 0 {
				v := a.index & 0x7FFF
				if a.essential {
					v |= 0x8000
				}
				w.u16(v)
				continue
			}
			v := uint8(a.index & 0x7F)
			if a.essential {
				v |= 0x80
			}
			w.u8(v)
		}
	}
	ipma := fullBox("ipma", 0, flags, w.b)
	return box("iprp", ipco, ipma)
}

func ispeBox(width, height int) []byte {
	w := boxWriter{}
	w.u32(uint32(width))
	w.u32(uint32(height))
	return fullBox("ispe", 0, 0, w.b)
}

// pixiBox declares three 8-bit channels, which is what the codec emits.
func pixiBox() []byte {
	return fullBox("pixi", 0, 0, []byte{3, 8, 8, 8})
}
