package container

import (
	"time"

	"github.com/arloliu/yieldfit/endian"
	"github.com/arloliu/yieldfit/errs"
	"github.com/arloliu/yieldfit/format"
)

const (
	// HeaderSize is the fixed container header size in bytes.
	HeaderSize = 32

	// Version is the current container layout version.
	Version uint8 = 1

	MagicNumber     uint16 = 0xF170 // magic number, bits 4-15 of the options field
	MagicNumberMask uint16 = 0xFFF0

	FlagBigEndian uint16 = endian.BigEndianFlag // bit 0: payload byte order
	FlagSnapshot  uint16 = 0x0002               // bit 1: at least one record carries a model snapshot
)

// Header is the fixed-size section at the start of a result container.
//
// Layout (byte offsets):
//
//	0-1   options: magic number and flags, always little-endian
//	2     layout version
//	3     payload compression
//	4-7   record count
//	8-11  compressed payload size
//	12-15 raw payload size
//	16-23 xxHash64 of the compressed payload
//	24-31 creation time, unix microseconds
type Header struct {
	Options        uint16
	Version        uint8
	Compression    format.CompressionType
	RecordCount    uint32
	PayloadSize    uint32
	RawPayloadSize uint32
	Checksum       uint64
	CreatedAt      int64
}

// Engine returns the byte order recorded in the header flags.
func (h *Header) Engine() endian.EndianEngine {
	return endian.FromFlags(h.Options)
}

// HasSnapshot reports whether any record carries a model snapshot.
func (h *Header) HasSnapshot() bool {
	return h.Options&FlagSnapshot != 0
}

// CreatedTime returns the creation time.
func (h *Header) CreatedTime() time.Time {
	return time.UnixMicro(h.CreatedAt)
}

// Parse parses the header from exactly HeaderSize bytes.
//
// Returns:
//   - error: ErrInvalidHeaderSize, ErrInvalidMagicNumber or ErrUnsupportedVersion
func (h *Header) Parse(data []byte) error {
	if len(data) != HeaderSize {
		return errs.ErrInvalidHeaderSize
	}

	h.Options = uint16(data[0]) | uint16(data[1])<<8
	if h.Options&MagicNumberMask != MagicNumber {
		return errs.ErrInvalidMagicNumber
	}

	h.Version = data[2]
	if h.Version == 0 || h.Version > Version {
		return errs.ErrUnsupportedVersion
	}
	h.Compression = format.CompressionType(data[3])

	engine := h.Engine()
	h.RecordCount = engine.Uint32(data[4:8])
	h.PayloadSize = engine.Uint32(data[8:12])
	h.RawPayloadSize = engine.Uint32(data[12:16])
	h.Checksum = engine.Uint64(data[16:24])
	h.CreatedAt = int64(engine.Uint64(data[24:32])) //nolint:gosec

	return nil
}

// Bytes serializes the header.
func (h *Header) Bytes() []byte {
	b := make([]byte, HeaderSize)
	engine := h.Engine()

	b[0] = byte(h.Options)
	b[1] = byte(h.Options >> 8)
	b[2] = h.Version
	b[3] = uint8(h.Compression)
	engine.PutUint32(b[4:8], h.RecordCount)
	engine.PutUint32(b[8:12], h.PayloadSize)
	engine.PutUint32(b[12:16], h.RawPayloadSize)
	engine.PutUint64(b[16:24], h.Checksum)
	engine.PutUint64(b[24:32], uint64(h.CreatedAt)) //nolint:gosec

	return b
}

// ParseHeader parses the header at the start of data.
func ParseHeader(data []byte) (Header, error) {
	if len(data) < HeaderSize {
		return Header{}, errs.ErrInvalidHeaderSize
	}

	var h Header
	if err := h.Parse(data[:HeaderSize]); err != nil {
		return Header{}, err
	}

	return h, nil
}
