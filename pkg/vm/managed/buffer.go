package managed

import (
	"bytes"
	"encoding/hex"

	"github.com/pkg/errors"

	"github.com/fortiblox/X1-Scenario/pkg/vm"
)

var (
	// ErrInvalidSlice is returned when a slice range falls outside a buffer.
	ErrInvalidSlice = errors.New("invalid slice")
)

func (a *Arena) buffer(h Handle) []byte {
	a.check(h)
	b, ok := a.buffers[h]
	if !ok {
		vm.Throw(vm.ExecutionFailed, MsgNoBuffer)
	}
	return b
}

func (a *Arena) setBuffer(h Handle, b []byte) {
	a.check(h)
	if IsReserved(h) {
		vm.Throw(vm.ExecutionFailed, vm.MsgActionNotAllowed)
	}
	a.buffers[h] = b
}

// NewBuffer allocates an empty buffer.
func (a *Arena) NewBuffer() Handle {
	return a.NewBufferFromBytes(nil)
}

// NewBufferFromBytes allocates a buffer holding a copy of b.
func (a *Arena) NewBufferFromBytes(b []byte) Handle {
	h := a.nextHandle()
	a.buffers[h] = append([]byte{}, b...)
	return h
}

// Buffer returns a copy of the buffer content.
func (a *Arena) Buffer(h Handle) []byte {
	return append([]byte{}, a.buffer(h)...)
}

// BufferSet replaces the buffer content with a copy of b.
func (a *Arena) BufferSet(h Handle, b []byte) {
	a.setBuffer(h, append([]byte{}, b...))
}

// BufferLen returns the buffer length.
func (a *Arena) BufferLen(h Handle) int {
	return len(a.buffer(h))
}

// BufferAppend appends the content of src to dest.
func (a *Arena) BufferAppend(dest, src Handle) {
	s := a.buffer(src)
	d := a.buffer(dest)
	a.setBuffer(dest, append(append([]byte{}, d...), s...))
}

// BufferAppendBytes appends b to dest.
func (a *Arena) BufferAppendBytes(dest Handle, b []byte) {
	d := a.buffer(dest)
	a.setBuffer(dest, append(append([]byte{}, d...), b...))
}

// BufferSlice returns length bytes starting at start.
func (a *Arena) BufferSlice(h Handle, start, length int) ([]byte, error) {
	b := a.buffer(h)
	if start < 0 || start > len(b) || length < 0 || length > len(b)-start {
		return nil, ErrInvalidSlice
	}
	return append([]byte{}, b[start:start+length]...), nil
}

// BufferCopySlice copies a slice of src into a new content for dest.
func (a *Arena) BufferCopySlice(src Handle, start, length int, dest Handle) error {
	b, err := a.BufferSlice(src, start, length)
	if err != nil {
		return err
	}
	a.setBuffer(dest, b)
	return nil
}

// BufferSetSlice overwrites bytes of h starting at start. The buffer does not grow.
func (a *Arena) BufferSetSlice(h Handle, start int, data []byte) error {
	b := a.buffer(h)
	if start < 0 || start > len(b) || len(data) > len(b)-start {
		return ErrInvalidSlice
	}
	out := append([]byte{}, b...)
	copy(out[start:], data)
	a.setBuffer(h, out)
	return nil
}

// BufferEqual compares two buffers.
func (a *Arena) BufferEqual(x, y Handle) bool {
	return bytes.Equal(a.buffer(x), a.buffer(y))
}

// BufferToHex writes the lowercase hex form of src into dest.
func (a *Arena) BufferToHex(dest, src Handle) {
	a.setBuffer(dest, []byte(hex.EncodeToString(a.buffer(src))))
}

func (a *Arena) byteArray(h Handle) []byte {
	a.check(h)
	b, ok := a.byteArrays[h]
	if !ok {
		vm.Throw(vm.ExecutionFailed, MsgNoByteArray)
	}
	return b
}

// NewByteArray allocates a fixed-length byte array. It traps when b does not
// have exactly size bytes.
func (a *Arena) NewByteArray(size int, b []byte) Handle {
	if len(b) != size {
		vm.Throw(vm.ExecutionFailed, MsgBadByteArrayLen)
	}
	h := a.nextHandle()
	a.byteArrays[h] = append([]byte{}, b...)
	return h
}

// ByteArrayFromBuffer decodes a fixed-length byte array from a buffer.
func (a *Arena) ByteArrayFromBuffer(src Handle, size int) Handle {
	return a.NewByteArray(size, a.buffer(src))
}

// ByteArray returns a copy of the array content.
func (a *Arena) ByteArray(h Handle) []byte {
	return append([]byte{}, a.byteArray(h)...)
}

// ByteArrayLen returns the fixed length of the array.
func (a *Arena) ByteArrayLen(h Handle) int {
	return len(a.byteArray(h))
}

// ByteArrayToBuffer copies the array into a new buffer.
func (a *Arena) ByteArrayToBuffer(h Handle) Handle {
	return a.NewBufferFromBytes(a.byteArray(h))
}

func (a *Arena) managedMap(h Handle) map[string][]byte {
	a.check(h)
	m, ok := a.maps[h]
	if !ok {
		vm.Throw(vm.ExecutionFailed, MsgNoMap)
	}
	return m
}

// NewMap allocates an empty map.
func (a *Arena) NewMap() Handle {
	h := a.nextHandle()
	a.maps[h] = make(map[string][]byte)
	return h
}

// MapPut stores a copy of the value buffer under the key buffer.
func (a *Arena) MapPut(m, key, value Handle) {
	mm := a.managedMap(m)
	mm[string(a.buffer(key))] = append([]byte{}, a.buffer(value)...)
}

// MapGet copies the value under key into the buffer dest. Missing keys read as empty.
func (a *Arena) MapGet(m, key, dest Handle) {
	mm := a.managedMap(m)
	a.setBuffer(dest, append([]byte{}, mm[string(a.buffer(key))]...))
}

// MapRemove deletes key and copies the removed value into dest.
func (a *Arena) MapRemove(m, key, dest Handle) {
	mm := a.managedMap(m)
	k := string(a.buffer(key))
	a.setBuffer(dest, append([]byte{}, mm[k]...))
	delete(mm, k)
}

// MapContains reports whether key is present.
func (a *Arena) MapContains(m, key Handle) bool {
	_, ok := a.managedMap(m)[string(a.buffer(key))]
	return ok
}

// MapLen returns the number of entries.
func (a *Arena) MapLen(m Handle) int {
	return len(a.managedMap(m))
}
