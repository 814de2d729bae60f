package heif

import (
	"encoding/binary"
)

// boxWriter accumulates big-endian ISOBMFF fields.
type boxWriter struct {
	b []byte
}

func (w *boxWriter) u8(v uint8)   { w.b = append(w.b, v) }
func (w *boxWriter) u16(v uint16) { w.b = binary.BigEndian.AppendUint16(w.b, v) }
func (w *boxWriter) u32(v uint32) { w.b = binary.BigEndian.AppendUint32(w.b, v) }
func (w *boxWriter) raw(p []byte) { w.b = append(w.b, p...) }

func (w *boxWriter) fourCC(s string) {
	var cc [4]byte
	copy(cc[:], s)
	w.b = append(w.b, cc[:]...)
}

func (w *boxWriter) cstring(s string) {
	w.b = append(w.b, s...)
	w.b = append(w.b, 0)
}

// box wraps payload parts into a plain box.
func box(typ string, parts ...[]byte) []byte {
	size := 8
	for _, p := range parts {
		size += len(p)
	}
	w := boxWriter{b: make([]byte, 0, size)}
	w.u32(uint32(size))
	w.fourCC(typ)
	for _, p := range parts {
		w.raw(p)
	}
	return w.b
}

// fullBox prefixes payload parts with the version/flags word.
func fullBox(typ string, version uint8, flags uint32, parts ...[]byte) []byte {
	hdr := boxWriter{}
	hdr.u32(uint32(version)<<24 | flags&0xFFFFFF)
	return box(typ, append([][]byte{hdr.b}, parts...)...)
}
