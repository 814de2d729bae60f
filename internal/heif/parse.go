package heif

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrNoXMP is returned by ReadXMP when the file carries no XMP item.
var ErrNoXMP = errors.New("heif: no XMP metadata item")

// Item describes one entry of the meta box.
type Item struct {
	ID          uint32
	Type        string
	ContentType string
	Width       int
	Height      int
	extents     []extent
	method      uint8
}

// Size is the total length of the item's payload.
func (it Item) Size() uint64 {
	var n uint64
	for _, e := range it.extents {
		n += e.length
	}
	return n
}

type extent struct {
	offset uint64
	length uint64
}

// Info is the parsed item table of a HEIF file.
type Info struct {
	MajorBrand string
	Primary    uint32
	Items      []Item // in iinf order
}

// Images returns the coded image items in storage order.
func (info *Info) Images() []Item {
	var out []Item
	for _, it := range info.Items {
		if it.Type == itemTypeHEVC {
			out = append(out, it)
		}
	}
	return out
}

// Parse parses the ftyp and meta boxes of data.
func Parse(data []byte) (*Info, error) {
	info := &Info{}
	var meta []byte
	err := walkBoxes(data, func(typ string, payload []byte) error {
		switch typ {
		case "ftyp":
			if len(payload) >= 4 {
				info.MajorBrand = string(payload[:4])
			}
		case "meta":
			meta = payload
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if meta == nil {
		return nil, errors.New("heif: no meta box")
	}
	if len(meta) < 4 {
		return nil, errors.New("heif: truncated meta box")
	}
	if err := info.parseMeta(meta[4:]); err != nil {
		return nil, err
	}
	return info, nil
}

// ReadXMP returns the bytes of the first application/rdf+xml item.
func ReadXMP(data []byte) ([]byte, error) {
	info, err := Parse(data)
	if err != nil {
		return nil, err
	}
	for _, it := range info.Items {
		if it.Type == itemTypeMIME && it.ContentType == XMPContentType {
			return it.read(data)
		}
	}
	return nil, ErrNoXMP
}

func (it Item) read(data []byte) ([]byte, error) {
	if it.method != 0 {
		return nil, fmt.Errorf("heif: item %d uses unsupported construction method %d", it.ID, it.method)
	}
	var out []byte
	for _, e := range it.extents {
		end := e.offset + e.length
		if e.length == 0 || end > uint64(len(data)) || end < e.offset {
			return nil, fmt.Errorf("heif: item %d extent out of bounds", it.ID)
		}
		out = append(out, data[e.offset:end]...)
	}
	if len(it.extents) == 0 {
		return nil, fmt.Errorf("heif: item %d has no location", it.ID)
	}
	return out, nil
}

func (info *Info) parseMeta(meta []byte) error {
	byID := map[uint32]int{}
	var props [][2]int // ispe geometry per ipco index (0 when not ispe)
	var ipma []byte
	var ipmaVer uint8
	var ipmaFlags uint32
	var iloc []byte

	err := walkBoxes(meta, func(typ string, payload []byte) error {
		r := &reader{b: payload}
		switch typ {
		case "pitm":
			ver, _ := r.fullHeader()
			if ver == 0 {
				info.Primary = uint32(r.u16())
			} else {
				info.Primary = r.u32()
			}
			return r.err
		case "iinf":
			ver, _ := r.fullHeader()
			if ver == 0 {
				r.u16()
			} else {
				r.u32()
			}
			if r.err != nil {
				return r.err
			}
			return walkBoxes(r.rest(), func(typ string, payload []byte) error {
				if typ != "infe" {
					return nil
				}
				it, err := parseInfe(payload)
				if err != nil {
					return err
				}
				byID[it.ID] = len(info.Items)
				info.Items = append(info.Items, it)
				return nil
			})
		case "iloc":
			iloc = payload
		case "iprp":
			return walkBoxes(payload, func(typ string, payload []byte) error {
				switch typ {
				case "ipco":
					return walkBoxes(payload, func(typ string, payload []byte) error {
						var dims [2]int
						if typ == "ispe" {
							pr := &reader{b: payload}
							pr.fullHeader()
							dims = [2]int{int(pr.u32()), int(pr.u32())}
							if pr.err != nil {
								return pr.err
							}
						}
						props = append(props, dims)
						return nil
					})
				case "ipma":
					pr := &reader{b: payload}
					ipmaVer, ipmaFlags = pr.fullHeader()
					ipma = pr.rest()
					return pr.err
				}
				return nil
			})
		}
		return nil
	})
	if err != nil {
		return err
	}

	if iloc != nil {
		if err := info.parseIloc(iloc, byID); err != nil {
			return err
		}
	}
	if ipma != nil {
		r := &reader{b: ipma}
		count := r.u32()
		for i := uint32(0); i < count && r.err == nil; i++ {
			var id uint32
			if ipmaVer < 1 {
				id = uint32(r.u16())
			} else {
				id = r.u32()
			}
			n := int(r.u8())
			for j := 0; j < n && r.err == nil; j++ {
				var idx int
				if ipmaFlags&1 != 0 {
					idx = int(r.u16() & 0x7FFF)
				} else {
					idx = int(r.u8() & 0x7F)
				}
				pos, ok := byID[id]
				if !ok || idx < 1 || idx > len(props) {
					continue
				}
				if d := props[idx-1]; d[0] > 0 {
					info.Items[pos].Width, info.Items[pos].Height = d[0], d[1]
				}
			}
		}
		if r.err != nil {
			return fmt.Errorf("heif: ipma: %w", r.err)
		}
	}
	return nil
}

func parseInfe(payload []byte) (Item, error) {
	r := &reader{b: payload}
	ver, _ := r.fullHeader()
	if ver < 2 {
		return Item{}, fmt.Errorf("heif: infe version %d not supported", ver)
	}
	var it Item
	if ver == 2 {
		it.ID = uint32(r.u16())
	} else {
		it.ID = r.u32()
	}
	r.u16() // item_protection_index
	it.Type = r.fourCC()
	r.cstring() // item_name
	if it.Type == itemTypeMIME {
		it.ContentType = r.cstring()
	}
	if r.err != nil {
		return Item{}, fmt.Errorf("heif: infe: %w", r.err)
	}
	return it, nil
}

func (info *Info) parseIloc(payload []byte, byID map[uint32]int) error {
	r := &reader{b: payload}
	ver, _ := r.fullHeader()
	sizes := r.u8()
	offsetSize, lengthSize := int(sizes>>4), int(sizes&0x0F)
	sizes = r.u8()
	baseSize, indexSize := int(sizes>>4), 0
	if ver == 1 || ver == 2 {
		indexSize = int(sizes & 0x0F)
	}
	var count uint32
	if ver < 2 {
		count = uint32(r.u16())
	} else {
		count = r.u32()
	}
	for i := uint32(0); i < count && r.err == nil; i++ {
		var id uint32
		if ver < 2 {
			id = uint32(r.u16())
		} else {
			id = r.u32()
		}
		var method uint8
		if ver == 1 || ver == 2 {
			method = uint8(r.u16() & 0x0F)
		}
		r.u16() // data_reference_index
		base := r.uintN(baseSize)
		n := int(r.u16())
		exts := make([]extent, 0, n)
		for j := 0; j < n && r.err == nil; j++ {
			if indexSize > 0 {
				r.uintN(indexSize)
			}
			off := r.uintN(offsetSize)
			length := r.uintN(lengthSize)
			exts = append(exts, extent{offset: base + off, length: length})
		}
		if pos, ok := byID[id]; ok {
			info.Items[pos].extents = exts
			info.Items[pos].method = method
		}
	}
	if r.err != nil {
		return fmt.Errorf("heif: iloc: %w", r.err)
	}
	return nil
}

// walkBoxes calls fn for each box in data, in order.
func walkBoxes(data []byte, fn func(typ string, payload []byte) error) error {
	for off := 0; off < len(data); {
		if len(data)-off < 8 {
			return fmt.Errorf("heif: truncated box header at %d", off)
		}
		size := uint64(binary.BigEndian.Uint32(data[off:]))
		typ := string(data[off+4 : off+8])
		hdr := uint64(8)
		switch size {
		case 0:
			size = uint64(len(data) - off)
		case 1:
			if len(data)-off < 16 {
				return fmt.Errorf("heif: truncated large box %q", typ)
			}
			size = binary.BigEndian.Uint64(data[off+8:])
			hdr = 16
		}
		if size < hdr || size > uint64(len(data)-off) {
			return fmt.Errorf("heif: box %q size %d out of bounds", typ, size)
		}
		if err := fn(typ, data[off+int(hdr):off+int(size)]); err != nil {
			return err
		}
		off += int(size)
	}
	return nil
}

// reader is a bounds-checked big-endian cursor with a sticky error.
type reader struct {
	b   []byte
	off int
	err error
}

func (r *reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || len(r.b)-r.off < n {
		r.err = errors.New("unexpected end of box")
		return nil
	}
	p := r.b[r.off : r.off+n]
	r.off += n
	return p
}

func (r *reader) u8() uint8 {
	if p := r.take(1); p != nil {
		return p[0]
	}
	return 0
}

func (r *reader) u16() uint16 {
	if p := r.take(2); p != nil {
		return binary.BigEndian.Uint16(p)
	}
	return 0
}

func (r *reader) u32() uint32 {
	if p := r.take(4); p != nil {
		return binary.BigEndian.Uint32(p)
	}
	return 0
}

func (r *reader) uintN(size int) uint64 {
	switch size {
	case 0:
		return 0
	case 4:
		return uint64(r.u32())
	case 8:
		if p := r.take(8); p != nil {
			return binary.BigEndian.Uint64(p)
		}
		return 0
	default:
		if r.err == nil {
			r.err = fmt.Errorf("unsupported field size %d", size)
		}
		return 0
	}
}

func (r *reader) fourCC() string {
	if p := r.take(4); p != nil {
		return string(p)
	}
	return ""
}

func (r *reader) cstring() string {
	if r.err != nil {
		return ""
	}
	for i := r.off; i < len(r.b); i++ {
		if r.b[i] == 0 {
			s := string(r.b[r.off:i])
			r.off = i + 1
			return s
		}
	}
	// Some writers omit the final terminator.
	s := string(r.b[r.off:])
	r.off = len(r.b)
	return s
}

func (r *reader) fullHeader() (uint8, uint32) {
	v := r.u32()
	return uint8(v >> 24), v & 0xFFFFFF
}

func (r *reader) rest() []byte {
	if r.err != nil {
		return nil
	}
	p := r.b[r.off:]
	r.off = len(r.b)
	return p
}
