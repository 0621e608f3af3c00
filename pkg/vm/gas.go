package vm

import (
	"sync/atomic"

	"github.com/holiman/uint256"
	"github.com/pkg/errors"
)

var (
	// ErrOutOfGas is returned when the gas limit is exhausted.
	ErrOutOfGas = errors.New(MsgOutOfGas)
)

// GasMeter tracks gas consumption of one call tree.
// A disabled meter accepts every charge; it is used for calls without a gas limit.
type GasMeter struct {
	remaining uint64
	consumed  uint64
	limit     uint64
	disabled  bool

	refund *uint256.Int
}

// NewGasMeter creates a meter with the given limit.
func NewGasMeter(limit uint64) *GasMeter {
	return &GasMeter{
		remaining: limit,
		limit:     limit,
		refund:    uint256.NewInt(0),
	}
}

// NewGasMeterDisabled creates a meter that never runs out.
func NewGasMeterDisabled() *GasMeter {
	return &GasMeter{disabled: true, refund: uint256.NewInt(0)}
}

// Consume charges cost. It returns ErrOutOfGas and zeroes the meter when
// the remaining gas is insufficient.
func (gm *GasMeter) Consume(cost uint64) error {
	if gm.disabled {
		atomic.AddUint64(&gm.consumed, cost)
		return nil
	}

	for {
		remaining := atomic.LoadUint64(&gm.remaining)
		if remaining < cost {
			atomic.StoreUint64(&gm.remaining, 0)
			return ErrOutOfGas
		}
		if atomic.CompareAndSwapUint64(&gm.remaining, remaining, remaining-cost) {
			atomic.AddUint64(&gm.consumed, cost)
			return nil
		}
	}
}

// MustConsume charges cost and traps with OutOfGas when exhausted.
func (gm *GasMeter) MustConsume(cost uint64) {
	if err := gm.Consume(cost); err != nil {
		Throw(OutOfGas, MsgOutOfGas)
	}
}

// AddRefund records gas returned for released storage.
func (gm *GasMeter) AddRefund(amount uint64) {
	gm.refund.Add(gm.refund, uint256.NewInt(amount))
}

// Refund returns the accumulated refund.
func (gm *GasMeter) Refund() *uint256.Int {
	return new(uint256.Int).Set(gm.refund)
}

// Remaining returns the remaining gas. A disabled meter reports zero.
func (gm *GasMeter) Remaining() uint64 {
	return atomic.LoadUint64(&gm.remaining)
}

// Consumed returns the total consumed gas.
func (gm *GasMeter) Consumed() uint64 {
	return atomic.LoadUint64(&gm.consumed)
}

// Limit returns the gas limit.
func (gm *GasMeter) Limit() uint64 {
	return gm.limit
}

// Disabled reports whether the meter is unmetered.
func (gm *GasMeter) Disabled() bool {
	return gm.disabled
}
