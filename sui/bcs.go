package sui

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// maxSequenceLen bounds decoded vector lengths so a hostile payload cannot
// force huge allocations.
const maxSequenceLen = 1 << 20

var errShortBuffer = errors.New("bcs: unexpected end of input")

// Encoder writes Binary Canonical Serialization.
type Encoder struct {
	buf bytes.Buffer
}

func (e *Encoder) U8(v uint8) { e.buf.WriteByte(v) }

func (e *Encoder) Bool(v bool) {
	if v {
		e.U8(1)
	} else {
		e.U8(0)
	}
}

func (e *Encoder) U16(v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	e.buf.Write(b[:])
}

func (e *Encoder) U64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	e.buf.Write(b[:])
}

// ULEB128 writes a length or enum variant index.
func (e *Encoder) ULEB128(v uint64) {
	for v >= 0x80 {
		e.buf.WriteByte(byte(v) | 0x80)
		v >>= 7
	}
	e.buf.WriteByte(byte(v))
}

// Fixed writes b without a length prefix.
func (e *Encoder) Fixed(b []byte) { e.buf.Write(b) }

// Bytes writes a length-prefixed byte vector.
func (e *Encoder) Bytes(b []byte) {
	e.ULEB128(uint64(len(b)))
	e.buf.Write(b)
}

func (e *Encoder) Str(s string) { e.Bytes([]byte(s)) }

func (e *Encoder) Address(a Address) { e.buf.Write(a[:]) }

// Result returns the encoded bytes.
func (e *Encoder) Result() []byte {
	return bytes.Clone(e.buf.Bytes())
}

// Decoder reads Binary Canonical Serialization. The first error sticks;
// subsequent reads return zero values.
type Decoder struct {
	b   []byte
	off int
	err error
}

func NewDecoder(b []byte) *Decoder { return &Decoder{b: b} }

func (d *Decoder) Err() error { return d.err }

// Offset reports how many bytes have been consumed.
func (d *Decoder) Offset() int { return d.off }

// Done reports an error if input remains after a complete value.
func (d *Decoder) Done() error {
	if d.err != nil {
		return d.err
	}
	if d.off != len(d.b) {
		return fmt.Errorf("bcs: %d trailing bytes", len(d.b)-d.off)
	}
	return nil
}

func (d *Decoder) fail(err error) {
	if d.err == nil {
		d.err = err
	}
}

func (d *Decoder) take(n int) []byte {
	if d.err != nil {
		return nil
	}
	if n < 0 || d.off+n > len(d.b) {
		d.fail(errShortBuffer)
		return nil
	}
	out := d.b[d.off : d.off+n]
	d.off += n
	return out
}

func (d *Decoder) U8() uint8 {
	b := d.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (d *Decoder) Bool() bool {
	switch v := d.U8(); v {
	case 0:
		return false
	case 1:
		return true
	default:
		d.fail(fmt.Errorf("bcs: invalid bool %d", v))
		return false
	}
}

func (d *Decoder) U16() uint16 {
	b := d.take(2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

func (d *Decoder) U64() uint64 {
	b := d.take(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func (d *Decoder) ULEB128() uint64 {
	var v uint64
	for shift := uint(0); shift < 64; shift += 7 {
		b := d.take(1)
		if b == nil {
			return 0
		}
		v |= uint64(b[0]&0x7f) << shift
		if b[0]&0x80 == 0 {
			return v
		}
	}
	d.fail(errors.New("bcs: uleb128 overflow"))
	return 0
}

// Len reads a sequence length.
func (d *Decoder) Len() int {
	n := d.ULEB128()
	if n > maxSequenceLen {
		d.fail(fmt.Errorf("bcs: sequence length %d too large", n))
		return 0
	}
	return int(n)
}

func (d *Decoder) Fixed(n int) []byte { return bytes.Clone(d.take(n)) }

func (d *Decoder) Bytes() []byte { return d.Fixed(d.Len()) }

func (d *Decoder) Str() string { return string(d.Bytes()) }

func (d *Decoder) Address() Address {
	var a Address
	copy(a[:], d.take(AddressLength))
	return a
}
