package codec

import (
	"encoding/binary"
)

const (
	optionNone byte = 0
	optionSome byte = 1
)

// DiscriminantSize is the width of a nested sum type tag.
const DiscriminantSize = 4

// NestedEncodeInt encodes v as two's complement on exactly size bytes.
func NestedEncodeInt(v int64, size int) []byte {
	return NestedEncodeUint(uint64(v), size)
}

// PutInt appends v as two's complement on size bytes.
func (e *Encoder) PutInt(v int64, size int) *Encoder {
	e.Write(NestedEncodeInt(v, size))
	return e
}

// PutInt64 appends an 8-byte signed integer.
func (e *Encoder) PutInt64(v int64) *Encoder {
	return e.PutInt(v, 8)
}

// PutInt32 appends a 4-byte signed integer.
func (e *Encoder) PutInt32(v int32) *Encoder {
	return e.PutInt(int64(v), 4)
}

// ReadInt reads a fixed-width two's complement integer of size bytes.
func (d *Decoder) ReadInt(size int) (int64, error) {
	if size < 1 || size > 8 {
		return 0, ErrUnsupportedOperation
	}
	raw, err := d.ReadRaw(size)
	if err != nil {
		return 0, err
	}
	var v int64
	if raw[0]&0x80 != 0 {
		v = -1
	}
	for _, x := range raw {
		v = v<<8 | int64(x)
	}
	return v, nil
}

// ReadInt64 reads an 8-byte signed integer.
func (d *Decoder) ReadInt64() (int64, error) {
	return d.ReadInt(8)
}

// ReadInt32 reads a 4-byte signed integer.
func (d *Decoder) ReadInt32() (int32, error) {
	v, err := d.ReadInt(4)
	return int32(v), err
}

// PutNone appends an absent option.
func (e *Encoder) PutNone() *Encoder {
	e.Write([]byte{optionNone})
	return e
}

// PutSome appends the present-option tag. The caller appends the value next.
func (e *Encoder) PutSome() *Encoder {
	e.Write([]byte{optionSome})
	return e
}

// ReadOptionTag reads an option tag and reports whether a value follows.
func (d *Decoder) ReadOptionTag() (bool, error) {
	raw, err := d.ReadRaw(1)
	if err != nil {
		return false, err
	}
	switch raw[0] {
	case optionNone:
		return false, nil
	case optionSome:
		return true, nil
	default:
		return false, ErrInvalidValue
	}
}

// TopEncodeOption encodes an option at top level. None is empty; Some is
// 0x01 followed by the nested encoding of the value.
func TopEncodeOption(some bool, nested []byte) []byte {
	if !some {
		return []byte{}
	}
	out := make([]byte, 0, 1+len(nested))
	out = append(out, optionSome)
	return append(out, nested...)
}

// TopDecodeOption decodes a top-level option. For Some it returns a decoder
// positioned at the nested value; the caller reads it and calls Done.
func TopDecodeOption(b []byte) (*Decoder, bool, error) {
	if len(b) == 0 {
		return nil, false, nil
	}
	d := NewDecoder(b)
	some, err := d.ReadOptionTag()
	if err != nil {
		return nil, false, err
	}
	if !some {
		if err := d.Done(); err != nil {
			return nil, false, err
		}
		return nil, false, nil
	}
	return d, true, nil
}

// PutDiscriminant appends a sum type variant index.
func (e *Encoder) PutDiscriminant(variant uint32) *Encoder {
	return e.PutUint32(variant)
}

// ReadDiscriminant reads a sum type variant index.
func (d *Decoder) ReadDiscriminant() (uint32, error) {
	return d.ReadUint32()
}

// TopDecodeVariant splits a top-level sum type into its variant index and a
// decoder over the variant fields.
func TopDecodeVariant(b []byte) (uint32, *Decoder, error) {
	if len(b) < DiscriminantSize {
		return 0, nil, ErrInputTooShort
	}
	return binary.BigEndian.Uint32(b), NewDecoder(b[DiscriminantSize:]), nil
}

// TopEncodeList encodes a top-level sequence as its nested items
// concatenated, with no count prefix.
func TopEncodeList(items [][]byte) []byte {
	out := []byte{}
	for _, item := range items {
		out = append(out, item...)
	}
	return out
}

// TopDecodeList decodes a top-level sequence by calling read until the
// input is exhausted. read must consume at least one byte per item.
func TopDecodeList(b []byte, read func(d *Decoder) error) (int, error) {
	d := NewDecoder(b)
	n := 0
	for d.Remaining() > 0 {
		before := d.Remaining()
		if err := read(d); err != nil {
			return n, err
		}
		if d.Remaining() == before {
			return n, ErrInvalidValue
		}
		n++
	}
	return n, nil
}
