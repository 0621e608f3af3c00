package codec

import (
	"encoding/binary"
	"math/big"
)

// Decoder reads nested-encoded values from a buffer.
type Decoder struct {
	buf []byte
	pos int
}

// NewDecoder creates a decoder over b.
func NewDecoder(b []byte) *Decoder {
	return &Decoder{buf: b}
}

// Remaining returns the number of unread bytes.
func (d *Decoder) Remaining() int {
	return len(d.buf) - d.pos
}

// Done returns ErrInputTooLong if bytes remain.
func (d *Decoder) Done() error {
	if d.Remaining() > 0 {
		return ErrInputTooLong
	}
	return nil
}

// ReadRaw reads exactly n bytes.
func (d *Decoder) ReadRaw(n int) ([]byte, error) {
	if n < 0 || d.Remaining() < n {
		return nil, ErrInputTooShort
	}
	out := d.buf[d.pos : d.pos+n]
	d.pos += n
	return out, nil
}

// ReadUint reads a fixed-width unsigned integer of size bytes.
func (d *Decoder) ReadUint(size int) (uint64, error) {
	raw, err := d.ReadRaw(size)
	if err != nil {
		return 0, err
	}
	var v uint64
	for _, x := range raw {
		v = v<<8 | uint64(x)
	}
	return v, nil
}

// ReadUint64 reads an 8-byte unsigned integer.
func (d *Decoder) ReadUint64() (uint64, error) {
	return d.ReadUint(8)
}

// ReadUint32 reads a 4-byte unsigned integer.
func (d *Decoder) ReadUint32() (uint32, error) {
	v, err := d.ReadUint(4)
	return uint32(v), err
}

// ReadBool reads a single 0x00/0x01 byte.
func (d *Decoder) ReadBool() (bool, error) {
	raw, err := d.ReadRaw(1)
	if err != nil {
		return false, err
	}
	switch raw[0] {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, ErrInvalidValue
	}
}

// ReadBytes reads a length-prefixed byte buffer.
func (d *Decoder) ReadBytes() ([]byte, error) {
	n, err := d.ReadUint32()
	if err != nil {
		return nil, err
	}
	raw, err := d.ReadRaw(int(n))
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), raw...), nil
}

// ReadBigUint reads a length-prefixed unsigned big integer.
func (d *Decoder) ReadBigUint() (*big.Int, error) {
	raw, err := d.ReadBytes()
	if err != nil {
		return nil, err
	}
	return TopDecodeBigUint(raw), nil
}

// ReadBigInt reads a length-prefixed signed big integer.
func (d *Decoder) ReadBigInt() (*big.Int, error) {
	raw, err := d.ReadBytes()
	if err != nil {
		return nil, err
	}
	return TopDecodeBigInt(raw), nil
}

// Encoder accumulates nested-encoded values.
type Encoder struct {
	buf []byte
}

// NewEncoder creates an empty encoder.
func NewEncoder() *Encoder {
	return &Encoder{}
}

// Bytes returns the encoded buffer.
func (e *Encoder) Bytes() []byte {
	return e.buf
}

// Write appends raw bytes.
func (e *Encoder) Write(p []byte) {
	e.buf = append(e.buf, p...)
}

// PutUint appends v on size bytes.
func (e *Encoder) PutUint(v uint64, size int) *Encoder {
	e.Write(NestedEncodeUint(v, size))
	return e
}

// PutUint64 appends an 8-byte integer.
func (e *Encoder) PutUint64(v uint64) *Encoder {
	return e.PutUint(v, 8)
}

// PutUint32 appends a 4-byte integer.
func (e *Encoder) PutUint32(v uint32) *Encoder {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	e.Write(b[:])
	return e
}

// PutBool appends a single 0x00/0x01 byte.
func (e *Encoder) PutBool(v bool) *Encoder {
	if v {
		e.Write([]byte{1})
	} else {
		e.Write([]byte{0})
	}
	return e
}

// PutBytes appends a length-prefixed buffer.
func (e *Encoder) PutBytes(b []byte) *Encoder {
	e.Write(NestedEncodeBytes(b))
	return e
}

// PutBigUint appends a length-prefixed unsigned big integer. Negative values encode as zero.
func (e *Encoder) PutBigUint(x *big.Int) *Encoder {
	b, err := TopEncodeBigUint(x)
	if err != nil {
		b = nil
	}
	return e.PutBytes(b)
}

// PutBigInt appends a length-prefixed signed big integer.
func (e *Encoder) PutBigInt(x *big.Int) *Encoder {
	return e.PutBytes(TopEncodeBigInt(x))
}
