package format

import (
	"encoding/binary"
	"math"

	"github.com/go-audio/audio"
)

const (
	max8  = 1 << 7
	max16 = 1 << 15
	max24 = 1 << 23
)

// Silence fills b with silent samples.
func (f Format) Silence(b []byte) {
	var v byte
	if f.SampleType == Unsigned8 {
		v = 0x80
	}
	for i := range b {
		b[i] = v
	}
}

// Accumulate adds samples of src to dst. Integer samples saturate. Both
// slices must contain the same number of whole samples.
func (f Format) Accumulate(dst, src []byte) {
	if len(dst) != len(src) {
		panic("format: accumulate length mismatch")
	}
	switch f.SampleType {
	case Unsigned8:
		for i := range dst {
			dst[i] = uint8(clamp(int64(dst[i])+int64(src[i])-max8, 0, math.MaxUint8))
		}
	case Signed16:
		for i := 0; i+1 < len(dst); i += 2 {
			v := int64(int16(binary.LittleEndian.Uint16(dst[i:]))) + int64(int16(binary.LittleEndian.Uint16(src[i:])))
			binary.LittleEndian.PutUint16(dst[i:], uint16(int16(clamp(v, math.MinInt16, math.MaxInt16))))
		}
	case Signed24In32:
		for i := 0; i+3 < len(dst); i += 4 {
			v := int64(int32(binary.LittleEndian.Uint32(dst[i:]))) + int64(int32(binary.LittleEndian.Uint32(src[i:])))
			binary.LittleEndian.PutUint32(dst[i:], uint32(int32(clamp(v, math.MinInt32, math.MaxInt32))))
		}
	case Float32:
		for i := 0; i+3 < len(dst); i += 4 {
			v := math.Float32frombits(binary.LittleEndian.Uint32(dst[i:])) + math.Float32frombits(binary.LittleEndian.Uint32(src[i:]))
			binary.LittleEndian.PutUint32(dst[i:], math.Float32bits(v))
		}
	default:
		panic("format: unsupported sample type")
	}
}

// Sample returns i-th sample of payload normalized to [-1, 1).
func (f Format) Sample(payload []byte, i int) float64 {
	switch f.SampleType {
	case Unsigned8:
		return float64(int(payload[i])-max8) / max8
	case Signed16:
		return float64(int16(binary.LittleEndian.Uint16(payload[i*2:]))) / max16
	case Signed24In32:
		// 24 significant bits are stored in the upper part of the word.
		return float64(int32(binary.LittleEndian.Uint32(payload[i*4:]))>>8) / max24
	case Float32:
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(payload[i*4:])))
	}
	panic("format: unsupported sample type")
}

// PutSample stores normalized value v as i-th sample of payload. Values
// outside [-1, 1) are clipped for integer sample types.
func (f Format) PutSample(payload []byte, i int, v float64) {
	switch f.SampleType {
	case Unsigned8:
		payload[i] = uint8(clamp(int64(math.Round(v*max8))+max8, 0, math.MaxUint8))
	case Signed16:
		binary.LittleEndian.PutUint16(payload[i*2:], uint16(int16(clamp(int64(math.Round(v*max16)), math.MinInt16, math.MaxInt16))))
	case Signed24In32:
		s := clamp(int64(math.Round(v*max24)), -max24, max24-1)
		binary.LittleEndian.PutUint32(payload[i*4:], uint32(int32(s)<<8))
	case Float32:
		binary.LittleEndian.PutUint32(payload[i*4:], math.Float32bits(float32(v)))
	default:
		panic("format: unsupported sample type")
	}
}

// Float32s converts interleaved payload into normalized float32 samples.
// Returns number of converted samples.
func (f Format) Float32s(dst []float32, payload []byte) int {
	n := len(payload) / f.BytesPerSample()
	if n > len(dst) {
		n = len(dst)
	}
	for i := 0; i < n; i++ {
		dst[i] = float32(f.Sample(payload, i))
	}
	return n
}

// Int16s converts interleaved payload into 16-bit samples. Returns number
// of converted samples.
func (f Format) Int16s(dst []int16, payload []byte) int {
	n := len(payload) / f.BytesPerSample()
	if n > len(dst) {
		n = len(dst)
	}
	for i := 0; i < n; i++ {
		dst[i] = int16(clamp(int64(math.Round(f.Sample(payload, i)*max16)), math.MinInt16, math.MaxInt16))
	}
	return n
}

// IntBuffer converts interleaved payload into go-audio int buffer. Float
// and 8 bit payloads are converted to 16 bits.
func (f Format) IntBuffer(payload []byte) *audio.IntBuffer {
	depth := f.SampleType.BitDepth()
	if f.SampleType == Float32 || f.SampleType == Unsigned8 {
		depth = 16
	}
	scale := float64(int64(1) << (depth - 1))
	n := len(payload) / f.BytesPerSample()
	buf := &audio.IntBuffer{
		Format:         f.PCM(),
		Data:           make([]int, n),
		SourceBitDepth: depth,
	}
	for i := range buf.Data {
		buf.Data[i] = int(clamp(int64(math.Round(f.Sample(payload, i)*scale)), -int64(scale), int64(scale)-1))
	}
	return buf
}

// PutIntBuffer stores samples of go-audio int buffer into payload. Returns
// number of whole frames stored.
func (f Format) PutIntBuffer(payload []byte, buf *audio.IntBuffer) int {
	depth := buf.SourceBitDepth
	if depth <= 0 {
		depth = 16
	}
	scale := float64(int64(1) << (depth - 1))
	n := len(payload) / f.BytesPerSample()
	if len(buf.Data) < n {
		n = len(buf.Data)
	}
	n -= n % f.Channels
	for i := 0; i < n; i++ {
		f.PutSample(payload, i, float64(buf.Data[i])/scale)
	}
	return n / f.Channels
}

// Float32Buffer converts interleaved payload into go-audio float buffer.
func (f Format) Float32Buffer(payload []byte) *audio.Float32Buffer {
	buf := &audio.Float32Buffer{
		Format:         f.PCM(),
		Data:           make([]float32, len(payload)/f.BytesPerSample()),
		SourceBitDepth: f.SampleType.BitDepth(),
	}
	f.Float32s(buf.Data, payload)
	return buf
}

func clamp(v, lo, hi int64) int64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
