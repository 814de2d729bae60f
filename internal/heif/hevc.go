package heif

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// HEVC NAL unit types relevant to still images.
const (
	nalVPS       = 32
	nalSPS       = 33
	nalPPS       = 34
	nalAUD       = 35
	nalSEIPrefix = 39
)

// ErrIncompleteStream is returned when an Annex-B stream lacks parameter
// sets or picture data.
var ErrIncompleteStream = errors.New("heif: incomplete HEVC stream")

// SplitAnnexB splits a byte stream on 00 00 01 / 00 00 00 01 start codes.
func SplitAnnexB(stream []byte) [][]byte {
	var nals [][]byte
	start := -1
	for i := 0; i+2 < len(stream); {
		if stream[i] == 0 && stream[i+1] == 0 && stream[i+2] == 1 {
			if start >= 0 {
				nals = appendNAL(nals, stream[start:i])
			}
			i += 3
			start = i
			continue
		}
		i++
	}
	if start >= 0 && start < len(stream) {
		nals = appendNAL(nals, stream[start:])
	}
	return nals
}

func appendNAL(nals [][]byte, nal []byte) [][]byte {
	// trailing_zero_8bits and the leading zero of a 4-byte start code
	for len(nal) > 0 && nal[len(nal)-1] == 0 {
		nal = nal[:len(nal)-1]
	}
	if len(nal) < 2 {
		return nals
	}
	return append(nals, nal)
}

func nalType(nal []byte) int {
	return int(nal[0]>>1) & 0x3F
}

// ImageFromAnnexB packs one coded picture into an Image: parameter sets go
// into the hvcC record, slice data is stored length-prefixed. Geometry is
// taken from the SPS after the conformance window.
func ImageFromAnnexB(stream []byte) (Image, error) {
	var vps, sps, pps, sei [][]byte
	var data []byte
	for _, nal := range SplitAnnexB(stream) {
		switch t := nalType(nal); {
		case t == nalVPS:
			vps = append(vps, nal)
		case t == nalSPS:
			sps = append(sps, nal)
		case t == nalPPS:
			pps = append(pps, nal)
		case t == nalSEIPrefix:
			sei = append(sei, nal)
		case t < nalVPS:
			data = binary.BigEndian.AppendUint32(data, uint32(len(nal)))
			data = append(data, nal...)
		case t == nalAUD:
		}
	}
	if len(vps) == 0 || len(sps) == 0 || len(pps) == 0 {
		return Image{}, fmt.Errorf("%w: missing parameter sets (vps=%d sps=%d pps=%d)", ErrIncompleteStream, len(vps), len(sps), len(pps))
	}
	if len(data) == 0 {
		return Image{}, fmt.Errorf("%w: no slice data", ErrIncompleteStream)
	}

	info, err := parseSPS(sps[0])
	if err != nil {
		return Image{}, err
	}
	arrays := []nalArray{{nalVPS, vps}, {nalSPS, sps}, {nalPPS, pps}}
	if len(sei) > 0 {
		arrays = append(arrays, nalArray{nalSEIPrefix, sei})
	}
	return Image{
		Width:  info.width,
		Height: info.height,
		Config: decoderConfig(info, arrays),
		Data:   data,
	}, nil
}

type nalArray struct {
	typ  int
	nals [][]byte
}

type spsInfo struct {
	profileSpace      uint8
	tier              uint8
	profileIDC        uint8
	compatibility     uint32
	constraints       [6]byte
	levelIDC          uint8
	maxSubLayers      uint8
	temporalIDNesting bool
	chromaFormat      uint8
	bitDepthLuma      uint8
	bitDepthChroma    uint8
	width             int
	height            int
}

func parseSPS(nal []byte) (spsInfo, error) {
	var s spsInfo
	r := &bitReader{b: unescapeRBSP(nal)}
	r.skip(16) // nal_unit_header
	r.skip(4)  // sps_video_parameter_set_id
	maxSubLayersMinus1 := int(r.bits(3))
	s.maxSubLayers = uint8(maxSubLayersMinus1 + 1)
	s.temporalIDNesting = r.flag()

	s.profileSpace = uint8(r.bits(2))
	s.tier = uint8(r.bits(1))
	s.profileIDC = uint8(r.bits(5))
	s.compatibility = uint32(r.bits(32))
	for i := range s.constraints {
		s.constraints[i] = uint8(r.bits(8))
	}
	s.levelIDC = uint8(r.bits(8))

	profilePresent := make([]bool, maxSubLayersMinus1)
	levelPresent := make([]bool, maxSubLayersMinus1)
	for i := 0; i < maxSubLayersMinus1; i++ {
		profilePresent[i] = r.flag()
		levelPresent[i] = r.flag()
	}
	if maxSubLayersMinus1 > 0 {
		for i := maxSubLayersMinus1; i < 8; i++ {
			r.skip(2)
		}
	}
	for i := 0; i < maxSubLayersMinus1; i++ {
		if profilePresent[i] {
			r.skip(88)
		}
		if levelPresent[i] {
			r.skip(8)
		}
	}

	r.ue() // sps_seq_parameter_set_id
	s.chromaFormat = uint8(r.ue())
	if s.chromaFormat == 3 {
		r.skip(1) // separate_colour_plane_flag
	}
	width, height := int(r.ue()), int(r.ue())
	if r.flag() { // conformance_window_flag
		subW, subH := 1, 1
		switch s.chromaFormat {
		case 1:
			subW, subH = 2, 2
		case 2:
			subW = 2
		}
		left, right, top, bottom := int(r.ue()), int(r.ue()), int(r.ue()), int(r.ue())
		width -= subW * (left + right)
		height -= subH * (top + bottom)
	}
	s.bitDepthLuma = uint8(r.ue() + 8)
	s.bitDepthChroma = uint8(r.ue() + 8)
	s.width, s.height = width, height

	if r.err != nil {
		return spsInfo{}, fmt.Errorf("heif: parse SPS: %w", r.err)
	}
	if width <= 0 || height <= 0 {
		return spsInfo{}, fmt.Errorf("heif: SPS declares geometry %dx%d", width, height)
	}
	return s, nil
}

// decoderConfig writes an HEVCDecoderConfigurationRecord (ISO/IEC 14496-15).
func decoderConfig(s spsInfo, arrays []nalArray) []byte {
	w := boxWriter{}
	w.u8(1) // configurationVersion
	w.u8(s.profileSpace<<6 | s.tier<<5 | s.profileIDC&0x1F)
	w.u32(s.compatibility)
	w.raw(s.constraints[:])
	w.u8(s.levelIDC)
	w.u16(0xF000) // min_spatial_segmentation_idc = 0
	w.u8(0xFC)    // parallelismType = 0
	w.u8(0xFC | s.chromaFormat&0x03)
	w.u8(0xF8 | (s.bitDepthLuma-8)&0x07)
	w.u8(0xF8 | (s.bitDepthChroma-8)&0x07)
	w.u16(0) // avgFrameRate
	nesting := uint8(0)
	if s.temporalIDNesting {
		nesting = 1
	}
	// constantFrameRate=0, numTemporalLayers, temporalIdNested, lengthSizeMinusOne=3
	w.u8((s.maxSubLayers&0x07)<<3 | nesting<<2 | 3)
	w.u8(uint8(len(arrays)))
	for _, a := range arrays {
		w.u8(0x80 | uint8(a.typ)&0x3F) // array_completeness=1
		w.u16(uint16(len(a.nals)))
		for _, nal := range a.nals {
			w.u16(uint16(len(nal)))
			w.raw(nal)
		}
	}
	return w.b
}

// unescapeRBSP drops emulation prevention bytes (00 00 03 -> 00 00).
func unescapeRBSP(nal []byte) []byte {
	out := make([]byte, 0, len(nal))
	zeros := 0
	for _, b := range nal {
		if zeros >= 2 && b == 3 {
			zeros = 0
			continue
		}
		out = append(out, b)
		if b == 0 {
			zeros++
		} else {
			zeros = 0
		}
	}
	return out
}

type bitReader struct {
	b   []byte
	pos int // in bits
	err error
}

func (r *bitReader) bits(n int) uint64 {
	if r.err != nil {
		return 0
	}
	if r.pos+n > len(r.b)*8 {
		r.err = errors.New("unexpected end of RBSP")
		return 0
	}
	var v uint64
	for i := 0; i < n; i++ {
		byteVal := r.b[r.pos>>3]
		bit := (byteVal >> (7 - uint(r.pos&7))) & 1
		v = v<<1 | uint64(bit)
		r.pos++
	}
	return v
}

func (r *bitReader) skip(n int) { r.bits(n) }

func (r *bitReader) flag() bool { return r.bits(1) == 1 }

// ue reads an unsigned Exp-Golomb code.
func (r *bitReader) ue() uint64 {
	zeros := 0
	for r.err == nil && r.bits(1) == 0 {
		zeros++
		if zeros > 31 {
			r.err = errors.New("exp-golomb code too long")
			return 0
		}
	}
	if r.err != nil {
		return 0
	}
	return (1<<uint(zeros) - 1) + r.bits(zeros)
}
