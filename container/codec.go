package container

import (
	"fmt"
	"math"

	"github.com/arloliu/yieldfit/endian"
	"github.com/arloliu/yieldfit/errs"
	"github.com/arloliu/yieldfit/internal/pool"
)

// MaxStringLength bounds names and tags, which carry a uint16 length prefix.
const MaxStringLength = math.MaxUint16

// recordEncoder appends records to a pooled buffer.
//
// Strings are a uint16 length followed by UTF-8 bytes; floats are IEEE 754
// bits; slices are a uint32 count followed by their elements.
type recordEncoder struct {
	buf    *pool.ByteBuffer
	engine endian.EndianEngine
}

func newRecordEncoder(engine endian.EndianEngine) *recordEncoder {
	return &recordEncoder{buf: pool.GetPayloadBuffer(), engine: engine}
}

func (e *recordEncoder) release() {
	pool.PutPayloadBuffer(e.buf)
	e.buf = nil
}

func (e *recordEncoder) putString(s string) error {
	if len(s) > MaxStringLength {
		return fmt.Errorf("string length %d exceeds maximum %d", len(s), MaxStringLength)
	}
	e.buf.Grow(2 + len(s))
	e.buf.B = e.engine.AppendUint16(e.buf.B, uint16(len(s))) //nolint:gosec
	e.buf.B = append(e.buf.B, s...)

	return nil
}

func (e *recordEncoder) putFloat(v float64) {
	e.buf.B = e.engine.AppendUint64(e.buf.B, math.Float64bits(v))
}

func (e *recordEncoder) putInt32(v int32) {
	e.buf.B = e.engine.AppendUint32(e.buf.B, uint32(v)) //nolint:gosec
}

func (e *recordEncoder) putCount(n int) {
	e.buf.B = e.engine.AppendUint32(e.buf.B, uint32(n)) //nolint:gosec
}

func (e *recordEncoder) putByte(b byte) {
	e.buf.B = append(e.buf.B, b)
}

func (e *recordEncoder) putBool(b bool) {
	if b {
		e.putByte(1)
		return
	}
	e.putByte(0)
}

func (e *recordEncoder) putParameter(p Parameter) error {
	if err := e.putString(p.Name); err != nil {
		return err
	}
	for _, v := range [...]float64{p.Value, p.Error, p.ErrorLo, p.ErrorHi, p.Min, p.Max} {
		e.putFloat(v)
	}
	e.putBool(p.Constant)

	return nil
}

func (e *recordEncoder) putParameters(params []Parameter) error {
	e.putCount(len(params))
	for _, p := range params {
		if err := e.putParameter(p); err != nil {
			return err
		}
	}

	return nil
}

func (e *recordEncoder) putRecord(r *Record) error {
	for _, s := range [...]string{r.Name, r.FitTypeTag, r.Timestamp} {
		if err := e.putString(s); err != nil {
			return err
		}
	}
	for _, v := range [...]int32{r.Status, r.AuxStatus, r.CovQuality, r.Attempts, r.StrategyLevel} {
		e.putInt32(v)
	}
	e.putByte(r.Terminal)
	e.putFloat(r.MinNLL)
	e.putFloat(r.EDM)

	if err := e.putParameters(r.Parameters); err != nil {
		return err
	}

	n := len(r.CovarianceNames)
	if len(r.Covariance) != n*n {
		return fmt.Errorf("record %q: covariance has %d entries for %d names", r.Name, len(r.Covariance), n)
	}
	e.putCount(n)
	for _, name := range r.CovarianceNames {
		if err := e.putString(name); err != nil {
			return err
		}
	}
	for _, v := range r.Covariance {
		e.putFloat(v)
	}

	e.putCount(len(r.Yields))
	for _, y := range r.Yields {
		if err := e.putString(y.Name); err != nil {
			return err
		}
		e.putFloat(y.Value)
		e.putFloat(y.Error)
	}

	e.putFloat(r.ChiSquare)
	e.putFloat(r.NDF)
	e.putFloat(r.ReducedChiSquare)

	e.putBool(r.Snapshot != nil)
	if r.Snapshot == nil {
		return nil
	}

	s := r.Snapshot
	for _, str := range [...]string{s.Name, s.Observable, s.Signal, s.Background} {
		if err := e.putString(str); err != nil {
			return err
		}
	}
	e.putFloat(s.RangeMin)
	e.putFloat(s.RangeMax)

	return e.putParameters(s.Parameters)
}

// recordDecoder reads records back. The first failure is sticky: later reads
// return zero values and err reports the failure.
type recordDecoder struct {
	data   []byte
	off    int
	engine endian.EndianEngine
	err    error
}

func (d *recordDecoder) take(n int) []byte {
	if d.err != nil {
		return nil
	}
	if n < 0 || d.off+n > len(d.data) {
		d.err = fmt.Errorf("%w: need %d bytes at offset %d, have %d", errs.ErrTruncatedPayload, n, d.off, len(d.data)-d.off)
		return nil
	}
	b := d.data[d.off : d.off+n]
	d.off += n

	return b
}

func (d *recordDecoder) readString() string {
	b := d.take(2)
	if b == nil {
		return ""
	}

	return string(d.take(int(d.engine.Uint16(b))))
}

func (d *recordDecoder) readFloat() float64 {
	b := d.take(8)
	if b == nil {
		return 0
	}

	return math.Float64frombits(d.engine.Uint64(b))
}

func (d *recordDecoder) readInt32() int32 {
	b := d.take(4)
	if b == nil {
		return 0
	}

	return int32(d.engine.Uint32(b)) //nolint:gosec
}

// count reads a slice length and rejects lengths the remaining payload
// cannot possibly hold.
func (d *recordDecoder) readCount(minElemSize int) int {
	b := d.take(4)
	if b == nil {
		return 0
	}
	n := int(d.engine.Uint32(b))
	if n*minElemSize > len(d.data)-d.off {
		d.err = fmt.Errorf("%w: count %d exceeds remaining payload", errs.ErrTruncatedPayload, n)
		return 0
	}

	return n
}

func (d *recordDecoder) readByte() byte {
	b := d.take(1)
	if b == nil {
		return 0
	}

	return b[0]
}

func (d *recordDecoder) readParameters() []Parameter {
	n := d.readCount(2 + 6*8 + 1)
	if n == 0 {
		return nil
	}

	params := make([]Parameter, n)
	for i := range params {
		p := &params[i]
		p.Name = d.readString()
		p.Value = d.readFloat()
		p.Error = d.readFloat()
		p.ErrorLo = d.readFloat()
		p.ErrorHi = d.readFloat()
		p.Min = d.readFloat()
		p.Max = d.readFloat()
		p.Constant = d.readByte() != 0
	}

	return params
}

func (d *recordDecoder) readRecord() Record {
	var r Record
	r.Name = d.readString()
	r.FitTypeTag = d.readString()
	r.Timestamp = d.readString()
	r.Status = d.readInt32()
	r.AuxStatus = d.readInt32()
	r.CovQuality = d.readInt32()
	r.Attempts = d.readInt32()
	r.StrategyLevel = d.readInt32()
	r.Terminal = d.readByte()
	r.MinNLL = d.readFloat()
	r.EDM = d.readFloat()
	r.Parameters = d.readParameters()

	if n := d.readCount(2); n > 0 {
		r.CovarianceNames = make([]string, n)
		for i := range r.CovarianceNames {
			r.CovarianceNames[i] = d.readString()
		}
		if n*n*8 > len(d.data)-d.off {
			d.err = fmt.Errorf("%w: covariance of %d names exceeds remaining payload", errs.ErrTruncatedPayload, n)
			return r
		}
		r.Covariance = make([]float64, n*n)
		for i := range r.Covariance {
			r.Covariance[i] = d.readFloat()
		}
	}

	if n := d.readCount(2 + 16); n > 0 {
		r.Yields = make([]Yield, n)
		for i := range r.Yields {
			r.Yields[i] = Yield{Name: d.readString(), Value: d.readFloat(), Error: d.readFloat()}
		}
	}

	r.ChiSquare = d.readFloat()
	r.NDF = d.readFloat()
	r.ReducedChiSquare = d.readFloat()

	if d.readByte() == 0 {
		return r
	}

	s := &Snapshot{}
	s.Name = d.readString()
	s.Observable = d.readString()
	s.Signal = d.readString()
	s.Background = d.readString()
	s.RangeMin = d.readFloat()
	s.RangeMax = d.readFloat()
	s.Parameters = d.readParameters()
	r.Snapshot = s

	return r
}
