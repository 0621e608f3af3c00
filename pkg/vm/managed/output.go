package managed

import (
	"github.com/fortiblox/X1-Scenario/pkg/codec"
)

// BigUint is a handle to a big integer that encodes as unsigned.
type BigUint struct{ H Handle }

// BigInt is a handle to a big integer that encodes as signed.
type BigInt struct{ H Handle }

// Buffer is a handle to a managed buffer.
type Buffer struct{ H Handle }

// BufferOutput is a codec output that accumulates into a managed buffer.
// Handle-typed values are copied arena-side, without the generic encoding.
type BufferOutput struct {
	arena *Arena
	dest  Handle
}

var _ codec.SpecializedOutput = (*BufferOutput)(nil)

// NewBufferOutput creates an output that appends to a fresh buffer.
func (a *Arena) NewBufferOutput() *BufferOutput {
	return &BufferOutput{arena: a, dest: a.NewBuffer()}
}

// Handle returns the destination buffer.
func (o *BufferOutput) Handle() Handle {
	return o.dest
}

// Write implements codec.Output.
func (o *BufferOutput) Write(p []byte) {
	o.arena.BufferAppendBytes(o.dest, p)
}

// TryPushSpecialized implements codec.SpecializedOutput.
func (o *BufferOutput) TryPushSpecialized(v interface{}) bool {
	switch x := v.(type) {
	case Buffer:
		o.arena.BufferAppend(o.dest, x.H)
	case BigUint:
		o.arena.BufferAppendBytes(o.dest, o.arena.BigIntUnsignedBytes(x.H))
	case BigInt:
		o.arena.BufferAppendBytes(o.dest, o.arena.BigIntSignedBytes(x.H))
	default:
		return false
	}
	return true
}

// TopEncode encodes v into a new buffer and returns its handle.
func (a *Arena) TopEncode(v interface{}) (Handle, error) {
	out := a.NewBufferOutput()
	if err := codec.TopEncodeTo(v, out); err != nil {
		return 0, err
	}
	return out.Handle(), nil
}
