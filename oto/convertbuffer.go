package oto

import (
	"encoding/binary"
	"math"
)

// FloatBufferToFloat32LE converts a []float32 buffer to little-endian float32
// bytes, appending to dst. Samples are clamped to [-1, 1].
func FloatBufferToFloat32LE(buff []float32, dst []byte) []byte {
	for _, v := range buff {
		if v != v {
			v = 0
		}
		v = max(-1, min(1, v))
		dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(v))
	}
	return dst
}
