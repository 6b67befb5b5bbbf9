// Package testutils holds byte-fixture helpers shared across this module's
// _test.go files: little-endian fixed-width packers and the varint/zigzag/tag
// encoders needed to hand-build wire-format messages without depending on a
// full protobuf encoder.
package testutils

import (
	"encoding/binary"
	"math"
)

// Flatten concatenates slices of the same type.
func Flatten[T any](slices ...[]T) []T {
	var result []T
	for _, s := range slices {
		result = append(result, s...)
	}
	return result
}

// U8b returns a byte slice containing a single uint8 value.
func U8b(v uint8) []byte {
	return []byte{v}
}

// U16b returns a byte slice containing a single little-endian uint16 value.
func U16b(v uint16) []byte {
	buf := make([]byte, 2)
	binary.LittleEndian.PutUint16(buf, v)
	return buf
}

// U32b returns a byte slice containing a single little-endian uint32 value.
func U32b(v uint32) []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, v)
	return buf
}

// U64b returns a byte slice containing a single little-endian uint64 value.
func U64b(v uint64) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, v)
	return buf
}

func F32b(v float32) []byte {
	return U32b(math.Float32bits(v))
}

func F64b(v float64) []byte {
	return U64b(math.Float64bits(v))
}

// Varint encodes v as a protobuf base-128 varint.
func Varint(v uint64) []byte {
	var buf []byte
	for v >= 0x80 {
		buf = append(buf, byte(v)|0x80)
		v >>= 7
	}
	return append(buf, byte(v))
}

// Tag encodes a field number and wire type as the single leading varint of
// a protobuf field.
func Tag(fieldNumber uint32, wireType uint32) []byte {
	return Varint(uint64(fieldNumber)<<3 | uint64(wireType))
}

// ZigZag32 applies the zigzag transform used by sint32 fields, inverse of
// the decoder's zigzag32.
func ZigZag32(v int32) uint32 {
	return uint32((v << 1) ^ (v >> 31))
}

// ZigZag64 applies the zigzag transform used by sint64 fields, inverse of
// the decoder's zigzag64.
func ZigZag64(v int64) uint64 {
	return uint64((v << 1) ^ (v >> 63))
}

// LengthDelimited prepends a varint length prefix to data.
func LengthDelimited(data []byte) []byte {
	return append(Varint(uint64(len(data))), data...)
}
