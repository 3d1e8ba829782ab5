// Package container implements the binary file format for named fit results.
//
// A container is a 32-byte Header followed by a compressed payload holding
// RecordCount records. The header records byte order, compression and an
// xxHash64 checksum of the compressed payload, so a reader can validate a
// file before decoding any record:
//
//	w, _ := container.NewWriter(container.WithCompression(format.CompressionZstd))
//	data, _ := w.Encode(records)
//	header, records, err := container.Decode(data)
package container

import (
	"fmt"
	"math"
	"time"

	"github.com/arloliu/yieldfit/compress"
	"github.com/arloliu/yieldfit/endian"
	"github.com/arloliu/yieldfit/errs"
	"github.com/arloliu/yieldfit/format"
	"github.com/arloliu/yieldfit/internal/hash"
	"github.com/arloliu/yieldfit/internal/options"
)

// Writer encodes records into containers. A Writer is immutable after
// construction and safe for concurrent use.
type Writer struct {
	engine      endian.EndianEngine
	compression format.CompressionType
	now         func() time.Time
}

// Option configures a Writer.
type Option = options.Option[*Writer]

// WithCompression selects the payload codec. The default is Zstd.
func WithCompression(ct format.CompressionType) Option {
	return options.New(func(w *Writer) error {
		if _, err := compress.GetCodec(ct); err != nil {
			return errs.Configuration("container compression: %v", err)
		}
		w.compression = ct

		return nil
	})
}

// WithBigEndian writes header fields and payload in big-endian order.
func WithBigEndian() Option {
	return options.NoError(func(w *Writer) {
		w.engine = endian.GetBigEndianEngine()
	})
}

// WithLittleEndian writes header fields and payload in little-endian order.
// This is the default.
func WithLittleEndian() Option {
	return options.NoError(func(w *Writer) {
		w.engine = endian.GetLittleEndianEngine()
	})
}

// WithClock overrides the creation-time source.
func WithClock(now func() time.Time) Option {
	return options.NoError(func(w *Writer) {
		if now != nil {
			w.now = now
		}
	})
}

// NewWriter creates a Writer.
//
// Parameters:
//   - opts: compression, byte order and clock options
//
// Returns:
//   - *Writer: configured writer
//   - error: configuration error from an invalid option
func NewWriter(opts ...Option) (*Writer, error) {
	w := &Writer{
		engine:      endian.GetLittleEndianEngine(),
		compression: format.CompressionZstd,
		now:         time.Now,
	}
	if err := options.Apply(w, opts...); err != nil {
		return nil, err
	}

	return w, nil
}

// Encode serializes records into a single container.
//
// Returns:
//   - []byte: header followed by the compressed payload
//   - error: record encoding or compression failure
func (w *Writer) Encode(records []Record) ([]byte, error) {
	data, _, err := w.EncodeWithStats(records)
	return data, err
}

// EncodeWithStats is Encode that also reports the payload compression statistics.
func (w *Writer) EncodeWithStats(records []Record) ([]byte, compress.Stats, error) {
	stats := compress.Stats{Algorithm: w.compression}
	if uint64(len(records)) > math.MaxUint32 {
		return nil, stats, fmt.Errorf("too many records: %d", len(records))
	}

	enc := newRecordEncoder(w.engine)
	defer enc.release()

	flags := MagicNumber | endian.Flag(w.engine)
	for i := range records {
		if err := enc.putRecord(&records[i]); err != nil {
			return nil, stats, err
		}
		if records[i].Snapshot != nil {
			flags |= FlagSnapshot
		}
	}

	raw := enc.buf.Bytes()
	codec, err := compress.GetCodec(w.compression)
	if err != nil {
		return nil, stats, err
	}
	payload, err := codec.Compress(raw)
	if err != nil {
		return nil, stats, fmt.Errorf("compress payload: %w", err)
	}
	if uint64(len(payload)) > math.MaxUint32 || uint64(len(raw)) > math.MaxUint32 {
		return nil, stats, fmt.Errorf("payload too large: %d bytes", len(raw))
	}

	header := Header{
		Options:        flags,
		Version:        Version,
		Compression:    w.compression,
		RecordCount:    uint32(len(records)), //nolint:gosec
		PayloadSize:    uint32(len(payload)), //nolint:gosec
		RawPayloadSize: uint32(len(raw)),     //nolint:gosec
		Checksum:       hash.Checksum(payload),
		CreatedAt:      w.now().UnixMicro(),
	}

	out := make([]byte, 0, HeaderSize+len(payload))
	out = append(out, header.Bytes()...)
	out = append(out, payload...)

	stats.OriginalSize = int64(len(raw))
	stats.CompressedSize = int64(len(payload))

	return out, stats, nil
}

// Decode validates and decodes a container.
//
// Returns:
//   - Header: parsed header
//   - []Record: decoded records in write order
//   - error: header, checksum, decompression or truncation errors
func Decode(data []byte) (Header, []Record, error) {
	header, err := ParseHeader(data)
	if err != nil {
		return Header{}, nil, err
	}

	payload := data[HeaderSize:]
	if uint64(len(payload)) < uint64(header.PayloadSize) {
		return header, nil, fmt.Errorf("%w: header declares %d payload bytes, have %d",
			errs.ErrTruncatedPayload, header.PayloadSize, len(payload))
	}
	payload = payload[:header.PayloadSize]

	if hash.Checksum(payload) != header.Checksum {
		return header, nil, errs.ErrChecksumMismatch
	}

	codec, err := compress.GetCodec(header.Compression)
	if err != nil {
		return header, nil, err
	}
	raw, err := codec.Decompress(payload)
	if err != nil {
		return header, nil, fmt.Errorf("decompress payload: %w", err)
	}
	if len(raw) != int(header.RawPayloadSize) {
		return header, nil, fmt.Errorf("%w: raw payload is %d bytes, header declares %d",
			errs.ErrTruncatedPayload, len(raw), header.RawPayloadSize)
	}

	dec := &recordDecoder{data: raw, engine: header.Engine()}
	records := make([]Record, 0, min(int(header.RecordCount), len(raw)/8+1))
	for range header.RecordCount {
		r := dec.readRecord()
		if dec.err != nil {
			return header, nil, dec.err
		}
		records = append(records, r)
	}

	return header, records, nil
}
