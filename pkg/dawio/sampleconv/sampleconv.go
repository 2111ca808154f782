// Package sampleconv converts between interleaved native sample formats and
// interleaved float32. Conversion never allocates.
package sampleconv

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Format is a little-endian PCM sample format.
type Format int

// Formats in the order backends try them.
const (
	F32LE Format = iota
	S32LE
	S24LE  // 24 bits in the low bytes of a 32-bit word
	S24LE3 // packed 3 bytes
	S16LE
	F64LE
	U8
)

// Preferred is the negotiation order used when a device offers several
// formats.
var Preferred = []Format{F32LE, S32LE, S24LE, S24LE3, S16LE, F64LE, U8}

// Bytes returns the size of one sample.
func (f Format) Bytes() int {
	switch f {
	case F32LE, S32LE, S24LE:
		return 4
	case S24LE3:
		return 3
	case S16LE:
		return 2
	case F64LE:
		return 8
	case U8:
		return 1
	default:
		return 0
	}
}

func (f Format) String() string {
	switch f {
	case F32LE:
		return "FLOAT_LE"
	case S32LE:
		return "S32_LE"
	case S24LE:
		return "S24_LE"
	case S24LE3:
		return "S24_3LE"
	case S16LE:
		return "S16_LE"
	case F64LE:
		return "FLOAT64_LE"
	case U8:
		return "U8"
	default:
		return fmt.Sprintf("format(%d)", int(f))
	}
}

const (
	scale32 = 2147483648.0
	scale24 = 8388608.0
	scale16 = 32768.0
	scale8  = 128.0
)

// ToFloat32 decodes samples from src into dst and returns the number of
// samples written, bounded by both lengths.
func ToFloat32(f Format, src []byte, dst []float32) int {
	size := f.Bytes()
	if size == 0 {
		return 0
	}
	n := min(len(src)/size, len(dst))
	le := binary.LittleEndian
	switch f {
	case F32LE:
		for i := 0; i < n; i++ {
			dst[i] = math.Float32frombits(le.Uint32(src[i*4:]))
		}
	case S32LE:
		for i := 0; i < n; i++ {
			dst[i] = float32(float64(int32(le.Uint32(src[i*4:]))) / scale32)
		}
	case S24LE:
		for i := 0; i < n; i++ {
			v := int32(le.Uint32(src[i*4:])<<8) >> 8
			dst[i] = float32(float64(v) / scale24)
		}
	case S24LE3:
		for i := 0; i < n; i++ {
			b := src[i*3:]
			v := int32(uint32(b[0])<<8|uint32(b[1])<<16|uint32(b[2])<<24) >> 8
			dst[i] = float32(float64(v) / scale24)
		}
	case S16LE:
		for i := 0; i < n; i++ {
			dst[i] = float32(float64(int16(le.Uint16(src[i*2:]))) / scale16)
		}
	case F64LE:
		for i := 0; i < n; i++ {
			dst[i] = float32(math.Float64frombits(le.Uint64(src[i*8:])))
		}
	case U8:
		for i := 0; i < n; i++ {
			dst[i] = float32((float64(src[i]) - scale8) / scale8)
		}
	}
	return n
}

// FromFloat32 encodes src into dst, clipping to [-1, 1) for integer formats,
// and returns the number of samples written.
func FromFloat32(f Format, src []float32, dst []byte) int {
	size := f.Bytes()
	if size == 0 {
		return 0
	}
	n := min(len(dst)/size, len(src))
	le := binary.LittleEndian
	switch f {
	case F32LE:
		for i := 0; i < n; i++ {
			le.PutUint32(dst[i*4:], math.Float32bits(src[i]))
		}
	case S32LE:
		for i := 0; i < n; i++ {
			le.PutUint32(dst[i*4:], uint32(quantize(src[i], scale32)))
		}
	case S24LE:
		for i := 0; i < n; i++ {
			le.PutUint32(dst[i*4:], uint32(quantize(src[i], scale24)))
		}
	case S24LE3:
		for i := 0; i < n; i++ {
			v := uint32(quantize(src[i], scale24))
			b := dst[i*3:]
			b[0], b[1], b[2] = byte(v), byte(v>>8), byte(v>>16)
		}
	case S16LE:
		for i := 0; i < n; i++ {
			le.PutUint16(dst[i*2:], uint16(int16(quantize(src[i], scale16))))
		}
	case F64LE:
		for i := 0; i < n; i++ {
			le.PutUint64(dst[i*8:], math.Float64bits(float64(src[i])))
		}
	case U8:
		for i := 0; i < n; i++ {
			dst[i] = byte(quantize(src[i], scale8) + 128)
		}
	}
	return n
}

// quantize maps s in [-1, 1] to a signed integer of the given full scale,
// clipping out-of-range input.
func quantize(s float32, full float64) int32 {
	if s != s {
		return 0
	}
	v := math.Round(float64(s) * full)
	if v >= full {
		v = full - 1
	} else if v < -full {
		v = -full
	}
	return int32(v)
}
