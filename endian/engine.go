// Package endian selects the byte order used by the result container.
//
// Containers written by this module default to little-endian. The byte order
// is recorded as a header flag so readers on any host can decode them:
//
//	engine := endian.FromFlags(flags)
//	count := engine.Uint32(header[8:12])
package endian

import "encoding/binary"

// EndianEngine combines binary.ByteOrder and binary.AppendByteOrder.
//
// binary.LittleEndian and binary.BigEndian both satisfy it.
type EndianEngine interface {
	binary.ByteOrder
	binary.AppendByteOrder
}

// BigEndianFlag is the container header flag bit marking big-endian payloads.
const BigEndianFlag uint16 = 0x0001

// GetLittleEndianEngine returns the little-endian engine.
func GetLittleEndianEngine() EndianEngine {
	return binary.LittleEndian
}

// GetBigEndianEngine returns the big-endian engine.
func GetBigEndianEngine() EndianEngine {
	return binary.BigEndian
}

// FromFlags returns the engine encoded in container header flags.
func FromFlags(flags uint16) EndianEngine {
	if flags&BigEndianFlag != 0 {
		return binary.BigEndian
	}

	return binary.LittleEndian
}

// Flag returns the header flag bits for engine.
func Flag(engine EndianEngine) uint16 {
	if engine == EndianEngine(binary.BigEndian) {
		return BigEndianFlag
	}

	return 0
}
