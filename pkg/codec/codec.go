// Package codec implements the value encodings used for contract arguments,
// results and storage.
//
// Two forms exist. Top encoding is used when a value occupies a whole buffer:
// integers are minimal big-endian (zero is empty), booleans are empty or 0x01.
// Nested encoding is used when a value is one of several in a buffer:
// fixed-width integers keep their full width and variable-length values
// (byte buffers, big integers) carry a 4-byte big-endian length prefix.
// Options are empty (top) or 0x00 (nested) when absent and 0x01 followed by
// the nested value when present. Sum types carry a 4-byte variant index and
// top-level sequences are their nested items back to back.
package codec

import (
	"encoding/binary"
	"math/big"

	"github.com/pkg/errors"
)

var (
	// ErrInputTooShort is returned when a decoder runs out of bytes.
	ErrInputTooShort = errors.New("input too short")

	// ErrInputTooLong is returned when bytes remain after decoding.
	ErrInputTooLong = errors.New("input too long")

	// ErrValueTooLong is returned when a top-encoded integer exceeds its width.
	ErrValueTooLong = errors.New("value too long")

	// ErrInvalidValue is returned for malformed values (bad bool, negative unsigned).
	ErrInvalidValue = errors.New("invalid value")

	// ErrUnsupportedOperation is returned for types the codec cannot handle.
	ErrUnsupportedOperation = errors.New("unsupported operation")
)

// LengthPrefixSize is the size of the nested length prefix.
const LengthPrefixSize = 4

// Signed marks a big integer for signed (two's complement) encoding.
// Plain *big.Int values are encoded unsigned.
type Signed struct {
	*big.Int
}

// TopEncodeUint64 encodes v as minimal big-endian; zero is empty.
func TopEncodeUint64(v uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	i := 0
	for i < 8 && buf[i] == 0 {
		i++
	}
	return append([]byte{}, buf[i:]...)
}

// TopDecodeUint64 decodes a minimal big-endian integer of at most 8 bytes.
func TopDecodeUint64(b []byte) (uint64, error) {
	if len(b) > 8 {
		return 0, ErrValueTooLong
	}
	var v uint64
	for _, x := range b {
		v = v<<8 | uint64(x)
	}
	return v, nil
}

// TopDecodeUintN decodes an unsigned integer limited to size bytes.
func TopDecodeUintN(b []byte, size int) (uint64, error) {
	if len(b) > size {
		return 0, ErrValueTooLong
	}
	return TopDecodeUint64(b)
}

// TopEncodeInt64 encodes v as minimal two's complement; zero is empty.
func TopEncodeInt64(v int64) []byte {
	return TopEncodeBigInt(big.NewInt(v))
}

// TopDecodeInt64 decodes a two's complement integer of at most 8 bytes.
func TopDecodeInt64(b []byte) (int64, error) {
	if len(b) > 8 {
		return 0, ErrValueTooLong
	}
	if len(b) == 0 {
		return 0, nil
	}
	var v int64
	if b[0]&0x80 != 0 {
		v = -1
	}
	for _, x := range b {
		v = v<<8 | int64(x)
	}
	return v, nil
}

// TopEncodeBool encodes true as 0x01 and false as empty.
func TopEncodeBool(v bool) []byte {
	if v {
		return []byte{1}
	}
	return []byte{}
}

// TopDecodeBool accepts empty, 0x00 (false) and 0x01 (true).
func TopDecodeBool(b []byte) (bool, error) {
	switch {
	case len(b) == 0:
		return false, nil
	case len(b) == 1 && b[0] == 0:
		return false, nil
	case len(b) == 1 && b[0] == 1:
		return true, nil
	default:
		return false, ErrInvalidValue
	}
}

// TopEncodeBigUint encodes a non-negative integer as minimal big-endian.
func TopEncodeBigUint(x *big.Int) ([]byte, error) {
	if x == nil {
		return []byte{}, nil
	}
	if x.Sign() < 0 {
		return nil, ErrInvalidValue
	}
	return x.Bytes(), nil
}

// TopDecodeBigUint decodes a big-endian unsigned integer.
func TopDecodeBigUint(b []byte) *big.Int {
	return new(big.Int).SetBytes(b)
}

// TopEncodeBigInt encodes x as minimal two's complement.
func TopEncodeBigInt(x *big.Int) []byte {
	switch x.Sign() {
	case 0:
		return []byte{}
	case 1:
		b := x.Bytes()
		if b[0]&0x80 != 0 {
			return append([]byte{0}, b...)
		}
		return b
	}
	// negative: two's complement over the smallest width that keeps the sign bit
	n := len(x.Bytes())
	mod := new(big.Int).Lsh(big.NewInt(1), uint(n*8))
	v := new(big.Int).Add(mod, x)
	b := v.FillBytes(make([]byte, n))
	if b[0]&0x80 == 0 {
		mod.Lsh(mod, 8)
		v.Add(mod, x)
		b = v.FillBytes(make([]byte, n+1))
	}
	// drop redundant 0xff bytes
	for len(b) > 1 && b[0] == 0xff && b[1]&0x80 != 0 {
		b = b[1:]
	}
	return b
}

// TopDecodeBigInt decodes a two's complement integer.
func TopDecodeBigInt(b []byte) *big.Int {
	v := new(big.Int).SetBytes(b)
	if len(b) > 0 && b[0]&0x80 != 0 {
		mod := new(big.Int).Lsh(big.NewInt(1), uint(len(b)*8))
		v.Sub(v, mod)
	}
	return v
}

// NestedEncodeUint encodes v on exactly size bytes.
func NestedEncodeUint(v uint64, size int) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	return append([]byte(nil), buf[8-size:]...)
}

// NestedEncodeBytes prefixes b with its 4-byte length.
func NestedEncodeBytes(b []byte) []byte {
	out := make([]byte, LengthPrefixSize+len(b))
	binary.BigEndian.PutUint32(out, uint32(len(b)))
	copy(out[LengthPrefixSize:], b)
	return out
}

// NestedEncodeBigUint encodes x as length-prefixed minimal big-endian.
func NestedEncodeBigUint(x *big.Int) ([]byte, error) {
	b, err := TopEncodeBigUint(x)
	if err != nil {
		return nil, err
	}
	return NestedEncodeBytes(b), nil
}

// NestedEncodeBigInt encodes x as length-prefixed two's complement.
func NestedEncodeBigInt(x *big.Int) []byte {
	return NestedEncodeBytes(TopEncodeBigInt(x))
}
