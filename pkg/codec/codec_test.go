package codec

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTopEncodeUint64(t *testing.T) {
	assert.Equal(t, []byte{}, TopEncodeUint64(0))
	assert.Equal(t, []byte{0x01}, TopEncodeUint64(1))
	assert.Equal(t, []byte{0x01, 0x00}, TopEncodeUint64(256))
	assert.Equal(t, []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff}, TopEncodeUint64(^uint64(0)))
}

func TestTopDecodeUint64(t *testing.T) {
	v, err := TopDecodeUint64([]byte{0x00, 0x00, 0x05})
	require.NoError(t, err)
	assert.Equal(t, uint64(5), v)

	_, err = TopDecodeUint64(make([]byte, 9))
	assert.ErrorIs(t, err, ErrValueTooLong)

	_, err = TopDecodeUintN([]byte{1, 0}, 1)
	assert.ErrorIs(t, err, ErrValueTooLong)
}

func TestTopEncodeBigInt(t *testing.T) {
	tests := []struct {
		in   int64
		want []byte
	}{
		{0, []byte{}},
		{1, []byte{0x01}},
		{127, []byte{0x7f}},
		{128, []byte{0x00, 0x80}},
		{-1, []byte{0xff}},
		{-128, []byte{0x80}},
		{-129, []byte{0xff, 0x7f}},
		{-256, []byte{0xff, 0x00}},
	}
	for _, tt := range tests {
		got := TopEncodeBigInt(big.NewInt(tt.in))
		assert.Equal(t, tt.want, got, "encode %d", tt.in)
		assert.Equal(t, tt.in, TopDecodeBigInt(got).Int64(), "decode %d", tt.in)
	}
}

func TestTopDecodeInt64(t *testing.T) {
	v, err := TopDecodeInt64([]byte{0xff, 0x7f})
	require.NoError(t, err)
	assert.Equal(t, int64(-129), v)

	v, err = TopDecodeInt64(nil)
	require.NoError(t, err)
	assert.Zero(t, v)
}

func TestBool(t *testing.T) {
	assert.Equal(t, []byte{1}, TopEncodeBool(true))
	assert.Equal(t, []byte{}, TopEncodeBool(false))

	v, err := TopDecodeBool([]byte{1})
	require.NoError(t, err)
	assert.True(t, v)

	_, err = TopDecodeBool([]byte{2})
	assert.ErrorIs(t, err, ErrInvalidValue)
}

func TestBigUintNegative(t *testing.T) {
	_, err := TopEncodeBigUint(big.NewInt(-5))
	assert.ErrorIs(t, err, ErrInvalidValue)
}

func TestNestedDecoder(t *testing.T) {
	enc := NewEncoder().
		PutUint32(7).
		PutBytes([]byte("abc")).
		PutBigUint(big.NewInt(1000)).
		PutBool(true).
		PutUint64(9)

	dec := NewDecoder(enc.Bytes())
	n, err := dec.ReadUint32()
	require.NoError(t, err)
	assert.Equal(t, uint32(7), n)

	b, err := dec.ReadBytes()
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), b)

	x, err := dec.ReadBigUint()
	require.NoError(t, err)
	assert.Equal(t, int64(1000), x.Int64())

	ok, err := dec.ReadBool()
	require.NoError(t, err)
	assert.True(t, ok)

	u, err := dec.ReadUint64()
	require.NoError(t, err)
	assert.Equal(t, uint64(9), u)

	assert.NoError(t, dec.Done())

	_, err = dec.ReadRaw(1)
	assert.ErrorIs(t, err, ErrInputTooShort)
}

func TestNestedDecoderLeftover(t *testing.T) {
	dec := NewDecoder([]byte{0, 0, 0, 1, 'a', 'b'})
	_, err := dec.ReadBytes()
	require.NoError(t, err)
	assert.ErrorIs(t, dec.Done(), ErrInputTooLong)
}

type captureOutput struct {
	written     []byte
	specialized []interface{}
}

func (c *captureOutput) Write(p []byte) { c.written = append(c.written, p...) }

func (c *captureOutput) TryPushSpecialized(v interface{}) bool {
	if _, ok := v.(*big.Int); ok {
		c.specialized = append(c.specialized, v)
		return true
	}
	return false
}

func TestTopEncodeToSpecialized(t *testing.T) {
	out := &captureOutput{}
	require.NoError(t, TopEncodeTo(big.NewInt(5), out))
	require.NoError(t, TopEncodeTo(uint32(258), out))

	assert.Len(t, out.specialized, 1)
	assert.Equal(t, []byte{0x01, 0x02}, out.written)
}

func TestTopEncodeUnsupported(t *testing.T) {
	_, err := TopEncode(struct{}{})
	assert.ErrorIs(t, err, ErrUnsupportedOperation)

	b, err := TopEncode(Signed{big.NewInt(-1)})
	require.NoError(t, err)
	assert.Equal(t, []byte{0xff}, b)
}

func TestRoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		encode func() []byte
		want   []byte
		decode func(b []byte) (interface{}, error)
		value  interface{}
	}{
		{
			name:   "top uint64 zero",
			encode: func() []byte { return TopEncodeUint64(0) },
			want:   []byte{},
			decode: func(b []byte) (interface{}, error) { return TopDecodeUint64(b) },
			value:  uint64(0),
		},
		{
			name:   "top uint64",
			encode: func() []byte { return TopEncodeUint64(0x0102) },
			want:   []byte{0x01, 0x02},
			decode: func(b []byte) (interface{}, error) { return TopDecodeUint64(b) },
			value:  uint64(0x0102),
		},
		{
			name:   "top int64 negative",
			encode: func() []byte { return TopEncodeInt64(-2) },
			want:   []byte{0xfe},
			decode: func(b []byte) (interface{}, error) { return TopDecodeInt64(b) },
			value:  int64(-2),
		},
		{
			name:   "top bool true",
			encode: func() []byte { return TopEncodeBool(true) },
			want:   []byte{0x01},
			decode: func(b []byte) (interface{}, error) { return TopDecodeBool(b) },
			value:  true,
		},
		{
			name: "top big uint",
			encode: func() []byte {
				b, _ := TopEncodeBigUint(big.NewInt(1000))
				return b
			},
			want:   []byte{0x03, 0xe8},
			decode: func(b []byte) (interface{}, error) { return TopDecodeBigUint(b).Int64(), nil },
			value:  int64(1000),
		},
		{
			name:   "top big int",
			encode: func() []byte { return TopEncodeBigInt(big.NewInt(-1000)) },
			want:   []byte{0xfc, 0x18},
			decode: func(b []byte) (interface{}, error) { return TopDecodeBigInt(b).Int64(), nil },
			value:  int64(-1000),
		},
		{
			name:   "nested uint16",
			encode: func() []byte { return NewEncoder().PutUint(7, 2).Bytes() },
			want:   []byte{0x00, 0x07},
			decode: func(b []byte) (interface{}, error) { return NewDecoder(b).ReadUint(2) },
			value:  uint64(7),
		},
		{
			name:   "nested int32 negative",
			encode: func() []byte { return NewEncoder().PutInt32(-1).Bytes() },
			want:   []byte{0xff, 0xff, 0xff, 0xff},
			decode: func(b []byte) (interface{}, error) { return NewDecoder(b).ReadInt32() },
			value:  int32(-1),
		},
		{
			name:   "nested int16 negative",
			encode: func() []byte { return NewEncoder().PutInt(-300, 2).Bytes() },
			want:   []byte{0xfe, 0xd4},
			decode: func(b []byte) (interface{}, error) { return NewDecoder(b).ReadInt(2) },
			value:  int64(-300),
		},
		{
			name:   "nested int64 positive",
			encode: func() []byte { return NewEncoder().PutInt64(5).Bytes() },
			want:   []byte{0, 0, 0, 0, 0, 0, 0, 0x05},
			decode: func(b []byte) (interface{}, error) { return NewDecoder(b).ReadInt64() },
			value:  int64(5),
		},
		{
			name:   "nested bool false",
			encode: func() []byte { return NewEncoder().PutBool(false).Bytes() },
			want:   []byte{0x00},
			decode: func(b []byte) (interface{}, error) { return NewDecoder(b).ReadBool() },
			value:  false,
		},
		{
			name:   "nested bytes",
			encode: func() []byte { return NewEncoder().PutBytes([]byte("hi")).Bytes() },
			want:   []byte{0, 0, 0, 2, 'h', 'i'},
			decode: func(b []byte) (interface{}, error) { return NewDecoder(b).ReadBytes() },
			value:  []byte("hi"),
		},
		{
			name:   "nested big uint",
			encode: func() []byte { return NewEncoder().PutBigUint(big.NewInt(256)).Bytes() },
			want:   []byte{0, 0, 0, 2, 0x01, 0x00},
			decode: func(b []byte) (interface{}, error) {
				x, err := NewDecoder(b).ReadBigUint()
				if err != nil {
					return nil, err
				}
				return x.Int64(), nil
			},
			value: int64(256),
		},
		{
			name:   "nested big int",
			encode: func() []byte { return NewEncoder().PutBigInt(big.NewInt(-129)).Bytes() },
			want:   []byte{0, 0, 0, 2, 0xff, 0x7f},
			decode: func(b []byte) (interface{}, error) {
				x, err := NewDecoder(b).ReadBigInt()
				if err != nil {
					return nil, err
				}
				return x.Int64(), nil
			},
			value: int64(-129),
		},
		{
			name:   "top option none",
			encode: func() []byte { return TopEncodeOption(false, nil) },
			want:   []byte{},
			decode: func(b []byte) (interface{}, error) {
				_, some, err := TopDecodeOption(b)
				return some, err
			},
			value: false,
		},
		{
			name:   "top option some",
			encode: func() []byte { return TopEncodeOption(true, NestedEncodeUint(9, 4)) },
			want:   []byte{0x01, 0, 0, 0, 0x09},
			decode: func(b []byte) (interface{}, error) {
				d, some, err := TopDecodeOption(b)
				if err != nil || !some {
					return nil, err
				}
				v, err := d.ReadUint32()
				if err != nil {
					return nil, err
				}
				return v, d.Done()
			},
			value: uint32(9),
		},
		{
			name:   "nested option none",
			encode: func() []byte { return NewEncoder().PutNone().Bytes() },
			want:   []byte{0x00},
			decode: func(b []byte) (interface{}, error) { return NewDecoder(b).ReadOptionTag() },
			value:  false,
		},
		{
			name:   "nested option some",
			encode: func() []byte { return NewEncoder().PutSome().PutBytes([]byte("x")).Bytes() },
			want:   []byte{0x01, 0, 0, 0, 1, 'x'},
			decode: func(b []byte) (interface{}, error) {
				d := NewDecoder(b)
				some, err := d.ReadOptionTag()
				if err != nil || !some {
					return nil, err
				}
				return d.ReadBytes()
			},
			value: []byte("x"),
		},
		{
			name:   "sum type",
			encode: func() []byte { return NewEncoder().PutDiscriminant(2).PutUint64(3).Bytes() },
			want:   []byte{0, 0, 0, 2, 0, 0, 0, 0, 0, 0, 0, 3},
			decode: func(b []byte) (interface{}, error) {
				variant, d, err := TopDecodeVariant(b)
				if err != nil {
					return nil, err
				}
				v, err := d.ReadUint64()
				if err != nil {
					return nil, err
				}
				return [2]uint64{uint64(variant), v}, d.Done()
			},
			value: [2]uint64{2, 3},
		},
		{
			name: "top list",
			encode: func() []byte {
				return TopEncodeList([][]byte{NestedEncodeUint(1, 2), NestedEncodeUint(2, 2), NestedEncodeUint(3, 2)})
			},
			want: []byte{0, 1, 0, 2, 0, 3},
			decode: func(b []byte) (interface{}, error) {
				var items []uint64
				_, err := TopDecodeList(b, func(d *Decoder) error {
					v, err := d.ReadUint(2)
					items = append(items, v)
					return err
				})
				return items, err
			},
			value: []uint64{1, 2, 3},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := tt.encode()
			assert.Equal(t, tt.want, b)
			got, err := tt.decode(b)
			require.NoError(t, err)
			assert.Equal(t, tt.value, got)
		})
	}
}

func TestCompoundDecodeErrors(t *testing.T) {
	_, _, err := TopDecodeOption([]byte{0x02})
	assert.ErrorIs(t, err, ErrInvalidValue)

	_, _, err = TopDecodeOption([]byte{0x00, 0x01})
	assert.ErrorIs(t, err, ErrInputTooLong)

	_, some, err := TopDecodeOption([]byte{0x00})
	require.NoError(t, err)
	assert.False(t, some)

	_, _, err = TopDecodeVariant([]byte{0, 0, 1})
	assert.ErrorIs(t, err, ErrInputTooShort)

	_, err = NewDecoder([]byte{0xff}).ReadInt(2)
	assert.ErrorIs(t, err, ErrInputTooShort)

	_, err = NewDecoder(make([]byte, 9)).ReadInt(9)
	assert.ErrorIs(t, err, ErrUnsupportedOperation)

	n, err := TopDecodeList([]byte{0, 1, 0}, func(d *Decoder) error {
		_, err := d.ReadUint(2)
		return err
	})
	assert.ErrorIs(t, err, ErrInputTooShort)
	assert.Equal(t, 1, n)

	n, err = TopDecodeList(nil, func(d *Decoder) error { return nil })
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = TopDecodeList([]byte{1}, func(d *Decoder) error { return nil })
	assert.ErrorIs(t, err, ErrInvalidValue)
}
