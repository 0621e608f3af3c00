package codec

import (
	"math/big"
)

// Output receives top-encoded values.
type Output interface {
	Write(p []byte)
}

// SpecializedOutput is implemented by outputs that can take some value
// types directly, without going through their byte encoding. TopEncodeTo
// asks the output first and only falls back to the generic encoding when
// the output declines.
type SpecializedOutput interface {
	Output
	TryPushSpecialized(v interface{}) bool
}

// TopEncoder is implemented by custom types that know their own top encoding.
type TopEncoder interface {
	TopEncode() ([]byte, error)
}

// TopEncodeTo encodes v into out.
func TopEncodeTo(v interface{}, out Output) error {
	if so, ok := out.(SpecializedOutput); ok && so.TryPushSpecialized(v) {
		return nil
	}
	b, err := TopEncode(v)
	if err != nil {
		return err
	}
	out.Write(b)
	return nil
}

// TopEncode returns the top encoding of v.
func TopEncode(v interface{}) ([]byte, error) {
	switch x := v.(type) {
	case nil:
		return []byte{}, nil
	case []byte:
		return append([]byte{}, x...), nil
	case string:
		return []byte(x), nil
	case bool:
		return TopEncodeBool(x), nil
	case uint8:
		return TopEncodeUint64(uint64(x)), nil
	case uint16:
		return TopEncodeUint64(uint64(x)), nil
	case uint32:
		return TopEncodeUint64(uint64(x)), nil
	case uint64:
		return TopEncodeUint64(x), nil
	case uint:
		return TopEncodeUint64(uint64(x)), nil
	case int8:
		return TopEncodeInt64(int64(x)), nil
	case int16:
		return TopEncodeInt64(int64(x)), nil
	case int32:
		return TopEncodeInt64(int64(x)), nil
	case int64:
		return TopEncodeInt64(x), nil
	case int:
		return TopEncodeInt64(int64(x)), nil
	case *big.Int:
		return TopEncodeBigUint(x)
	case Signed:
		return TopEncodeBigInt(x.Int), nil
	case TopEncoder:
		return x.TopEncode()
	default:
		return nil, ErrUnsupportedOperation
	}
}
