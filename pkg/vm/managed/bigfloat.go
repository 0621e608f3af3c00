package managed

import (
	"math/big"

	"github.com/fortiblox/X1-Scenario/pkg/vm"
)

// FloatPrecision is the mantissa precision of managed big floats.
const FloatPrecision = 53

func newFloat() *big.Float {
	return new(big.Float).SetPrec(FloatPrecision).SetMode(big.ToNearestEven)
}

func (a *Arena) bigFloat(h Handle) *big.Float {
	a.check(h)
	f, ok := a.bigFloats[h]
	if !ok {
		vm.Throw(vm.ExecutionFailed, MsgNoBigFloat)
	}
	return f
}

func (a *Arena) setBigFloat(h Handle, f *big.Float) {
	a.check(h)
	if IsReserved(h) {
		vm.Throw(vm.ExecutionFailed, vm.MsgActionNotAllowed)
	}
	if f.IsInf() {
		vm.Throw(vm.ExecutionFailed, MsgBadFloat)
	}
	a.bigFloats[h] = f
}

// NewBigFloatFromFrac allocates num/den.
func (a *Arena) NewBigFloatFromFrac(num, den int64) Handle {
	if den == 0 {
		vm.Throw(vm.ExecutionFailed, vm.MsgDivisionByZero)
	}
	f := newFloat().Quo(newFloat().SetInt64(num), newFloat().SetInt64(den))
	h := a.nextHandle()
	a.bigFloats[h] = f
	return h
}

// NewBigFloatFromParts allocates integral.fractional * 10^exponent, the way
// contracts build decimal constants.
func (a *Arena) NewBigFloatFromParts(integral, fractional int32, exponent int32) Handle {
	if fractional < 0 || exponent > 0 {
		vm.Throw(vm.ExecutionFailed, MsgBadFloat)
	}
	v := newFloat().SetInt64(int64(integral))
	frac := newFloat().SetInt64(int64(fractional))
	scale := newFloat().SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(-exponent)), nil))
	frac.Quo(frac, scale)
	if integral < 0 {
		v.Sub(v, frac)
	} else {
		v.Add(v, frac)
	}
	h := a.nextHandle()
	a.bigFloats[h] = v
	return h
}

// BigFloat returns a copy of the value under h.
func (a *Arena) BigFloat(h Handle) *big.Float {
	return newFloat().Set(a.bigFloat(h))
}

// BigFloatSetBigInt stores the big integer src as a float in dest.
func (a *Arena) BigFloatSetBigInt(dest, src Handle) {
	a.setBigFloat(dest, newFloat().SetInt(a.bigInt(src)))
}

// BigFloatSetInt64 stores v in dest.
func (a *Arena) BigFloatSetInt64(dest Handle, v int64) {
	a.setBigFloat(dest, newFloat().SetInt64(v))
}

// BigFloatAdd stores x+y in dest.
func (a *Arena) BigFloatAdd(dest, x, y Handle) {
	a.setBigFloat(dest, newFloat().Add(a.bigFloat(x), a.bigFloat(y)))
}

// BigFloatSub stores x-y in dest.
func (a *Arena) BigFloatSub(dest, x, y Handle) {
	a.setBigFloat(dest, newFloat().Sub(a.bigFloat(x), a.bigFloat(y)))
}

// BigFloatMul stores x*y in dest.
func (a *Arena) BigFloatMul(dest, x, y Handle) {
	a.setBigFloat(dest, newFloat().Mul(a.bigFloat(x), a.bigFloat(y)))
}

// BigFloatDiv stores x/y in dest.
func (a *Arena) BigFloatDiv(dest, x, y Handle) {
	d := a.bigFloat(y)
	if d.Sign() == 0 {
		vm.Throw(vm.ExecutionFailed, vm.MsgDivisionByZero)
	}
	a.setBigFloat(dest, newFloat().Quo(a.bigFloat(x), d))
}

// BigFloatNeg stores -x in dest.
func (a *Arena) BigFloatNeg(dest, x Handle) {
	a.setBigFloat(dest, newFloat().Neg(a.bigFloat(x)))
}

// BigFloatAbs stores |x| in dest.
func (a *Arena) BigFloatAbs(dest, x Handle) {
	a.setBigFloat(dest, newFloat().Abs(a.bigFloat(x)))
}

// BigFloatSqrt stores sqrt(x) in dest. Negative operands trap.
func (a *Arena) BigFloatSqrt(dest, x Handle) {
	v := a.bigFloat(x)
	if v.Sign() < 0 {
		vm.Throw(vm.ExecutionFailed, vm.MsgBadBoundsLower)
	}
	a.setBigFloat(dest, newFloat().Sqrt(v))
}

// BigFloatCmp compares x and y.
func (a *Arena) BigFloatCmp(x, y Handle) int {
	return a.bigFloat(x).Cmp(a.bigFloat(y))
}

// BigFloatSign returns -1, 0 or +1.
func (a *Arena) BigFloatSign(x Handle) int {
	return a.bigFloat(x).Sign()
}

// BigFloatTruncate stores x truncated toward zero into the big integer dest.
func (a *Arena) BigFloatTruncate(dest, x Handle) {
	i, _ := a.bigFloat(x).Int(nil)
	a.setBigInt(dest, i)
}

// BigFloatFloor stores floor(x) into the big integer dest.
func (a *Arena) BigFloatFloor(dest, x Handle) {
	v := a.bigFloat(x)
	i, acc := v.Int(nil)
	if acc == big.Above {
		i.Sub(i, big.NewInt(1))
	}
	a.setBigInt(dest, i)
}

// BigFloatCeil stores ceil(x) into the big integer dest.
func (a *Arena) BigFloatCeil(dest, x Handle) {
	v := a.bigFloat(x)
	i, acc := v.Int(nil)
	if acc == big.Below {
		i.Add(i, big.NewInt(1))
	}
	a.setBigInt(dest, i)
}
