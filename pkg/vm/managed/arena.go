// Package managed implements the managed-type arena.
//
// Contracts never hold big integers, buffers or maps directly. They hold
// int32 handles into the arena of the call tree they run in. Handles in
// -1..-99 are reserved constants, populated on first access from the
// arena's ConstProvider. User handles are allocated downwards and carry the
// arena generation in bits 20..30, so a handle minted by another arena is
// rejected with a "handle stale" trap instead of aliasing a foreign value.
package managed

import (
	"crypto/elliptic"
	"math/big"
	"sync/atomic"

	"github.com/fortiblox/X1-Scenario/internal/types"
	"github.com/fortiblox/X1-Scenario/pkg/vm"
)

// Handle identifies a value in an arena.
type Handle = int32

// Reserved constant handles.
const (
	BigIntConstZero   Handle = -10
	CallValueEGLD     Handle = -11
	BigIntConstOne    Handle = -12
	MBufConstEmpty    Handle = -20
	MBufEGLDTokenID   Handle = -21
	MBufCallbackArgs  Handle = -25
	AddressCaller     Handle = -30
	AddressSelf       Handle = -31
	AddressOwner      Handle = -32
	MBufCurrentTxHash Handle = -33

	// ReservedHandleLimit is the last reserved handle; user handles are below it.
	ReservedHandleLimit Handle = -99
)

// A handle is an int32, so generations get 11 bits and wrap after genMax
// arenas. Stale detection only holds within that window: a raw handle kept
// across a full wrap can alias a value of a newer arena.
const (
	firstSeq = 100
	seqBits  = 20
	seqMask  = 1<<seqBits - 1
	genMax   = 1<<11 - 1
)

// Trap messages raised by the arena, besides vm.MsgHandleStale.
const (
	MsgNoBigInt        = "no bigInt under the given handle"
	MsgNoBigFloat      = "no bigFloat under the given handle"
	MsgNoBuffer        = "no managed buffer under the given handle"
	MsgNoMap           = "no managed map under the given handle"
	MsgNoByteArray     = "no managed byte array under the given handle"
	MsgNoCurve         = "no elliptic curve under the given handle"
	MsgArenaExhausted  = "managed handle space exhausted"
	MsgBadByteArrayLen = "wrong managed byte array length"
	MsgNotInt64        = "big int argument does not fit in int64"
	MsgBadCurveName    = "elliptic curve name not supported"
	MsgBadPoint        = "point is not on the curve"
	MsgBadFloat        = "invalid big float operation"
	MsgInvalidHandle   = "invalid managed handle"
)

// ConstProvider supplies the content of context-dependent reserved handles.
type ConstProvider interface {
	Caller() types.Address
	Self() types.Address
	Owner() types.Address
	CallValue() *big.Int
	CallbackClosure() []byte
	TxHash() types.Hash
	RandomSeed() []byte
}

var generation uint32

func nextGeneration() uint32 {
	for {
		g := atomic.AddUint32(&generation, 1) & genMax
		if g != 0 {
			return g
		}
	}
}

// Arena stores the managed values of one call tree.
type Arena struct {
	gen      uint32
	seq      uint32
	closed   bool
	provider ConstProvider

	bigInts    map[Handle]*big.Int
	bigFloats  map[Handle]*big.Float
	buffers    map[Handle][]byte
	byteArrays map[Handle][]byte
	maps       map[Handle]map[string][]byte
	curves     map[Handle]elliptic.Curve

	loaded map[Handle]bool
	keys   uint64
}

// NewArena creates an empty arena. provider may be nil when no context
// constants are needed; the context handles then read as zero values.
func NewArena(provider ConstProvider) *Arena {
	return &Arena{
		gen:        nextGeneration(),
		seq:        firstSeq,
		provider:   provider,
		bigInts:    make(map[Handle]*big.Int),
		bigFloats:  make(map[Handle]*big.Float),
		buffers:    make(map[Handle][]byte),
		byteArrays: make(map[Handle][]byte),
		maps:       make(map[Handle]map[string][]byte),
		curves:     make(map[Handle]elliptic.Curve),
		loaded:     make(map[Handle]bool),
	}
}

// Generation returns the generation stamped into this arena's handles.
func (a *Arena) Generation() uint32 {
	return a.gen
}

// Close ends the arena's life. Any later access traps with "handle stale".
func (a *Arena) Close() {
	a.closed = true
	a.bigInts = nil
	a.bigFloats = nil
	a.buffers = nil
	a.byteArrays = nil
	a.maps = nil
	a.curves = nil
}

// Closed reports whether Close was called.
func (a *Arena) Closed() bool {
	return a.closed
}

// Len returns the number of live user and loaded constant values.
func (a *Arena) Len() int {
	return len(a.bigInts) + len(a.bigFloats) + len(a.buffers) + len(a.byteArrays) + len(a.maps) + len(a.curves)
}

// nextHandle allocates a fresh user handle.
func (a *Arena) nextHandle() Handle {
	a.live()
	if a.seq > seqMask {
		vm.Throw(vm.ExecutionFailed, MsgArenaExhausted)
	}
	h := -Handle(a.gen<<seqBits | a.seq)
	a.seq++
	return h
}

// IsReserved reports whether h is a reserved constant handle.
func IsReserved(h Handle) bool {
	return h < 0 && h >= ReservedHandleLimit
}

// HandleGeneration returns the arena generation encoded in a user handle.
func HandleGeneration(h Handle) uint32 {
	if h >= 0 || IsReserved(h) {
		return 0
	}
	return uint32(-h) >> seqBits
}

func (a *Arena) live() {
	if a.closed {
		vm.Throw(vm.ExecutionFailed, vm.MsgHandleStale)
	}
}

// check validates that h can address this arena, and loads reserved constants on first use.
func (a *Arena) check(h Handle) {
	a.live()
	if IsReserved(h) {
		a.loadConst(h)
		return
	}
	if h >= 0 {
		vm.Throw(vm.ExecutionFailed, MsgInvalidHandle)
	}
	if HandleGeneration(h) != a.gen {
		vm.Throw(vm.ExecutionFailed, vm.MsgHandleStale)
	}
}

// loadConst populates a reserved handle lazily.
func (a *Arena) loadConst(h Handle) {
	if a.loaded[h] {
		return
	}
	a.loaded[h] = true
	switch h {
	case BigIntConstZero:
		a.bigInts[h] = new(big.Int)
	case BigIntConstOne:
		a.bigInts[h] = big.NewInt(1)
	case CallValueEGLD:
		v := new(big.Int)
		if a.provider != nil {
			v.Set(a.provider.CallValue())
		}
		a.bigInts[h] = v
	case MBufConstEmpty:
		a.buffers[h] = []byte{}
	case MBufEGLDTokenID:
		a.buffers[h] = []byte(types.NativeTokenIDMulti)
	case MBufCallbackArgs:
		a.buffers[h] = a.providerBytes(func(p ConstProvider) []byte { return p.CallbackClosure() })
	case AddressCaller:
		a.buffers[h] = a.providerBytes(func(p ConstProvider) []byte { return p.Caller().Bytes() })
	case AddressSelf:
		a.buffers[h] = a.providerBytes(func(p ConstProvider) []byte { return p.Self().Bytes() })
	case AddressOwner:
		a.buffers[h] = a.providerBytes(func(p ConstProvider) []byte { return p.Owner().Bytes() })
	case MBufCurrentTxHash:
		a.buffers[h] = a.providerBytes(func(p ConstProvider) []byte { return p.TxHash().Bytes() })
	}
}

func (a *Arena) providerBytes(fn func(p ConstProvider) []byte) []byte {
	if a.provider == nil {
		return []byte{}
	}
	return append([]byte{}, fn(a.provider)...)
}

// contextConsts are the reserved handles whose content depends on the running context.
var contextConsts = []Handle{CallValueEGLD, MBufCallbackArgs, AddressCaller, AddressSelf, AddressOwner, MBufCurrentTxHash}

// SwapProvider installs p and drops the loaded context constants so they
// reload from p on next access. It returns the previous provider.
func (a *Arena) SwapProvider(p ConstProvider) ConstProvider {
	prev := a.provider
	a.provider = p
	for _, h := range contextConsts {
		delete(a.loaded, h)
		delete(a.bigInts, h)
		delete(a.buffers, h)
	}
	return prev
}
