package managed

import (
	"math/big"

	"github.com/fortiblox/X1-Scenario/pkg/codec"
	"github.com/fortiblox/X1-Scenario/pkg/vm"
)

func (a *Arena) bigInt(h Handle) *big.Int {
	a.check(h)
	v, ok := a.bigInts[h]
	if !ok {
		vm.Throw(vm.ExecutionFailed, MsgNoBigInt)
	}
	return v
}

// setBigInt stores v under h. Writing to an unallocated handle of this
// arena creates the value, like the host does for destination handles.
func (a *Arena) setBigInt(h Handle, v *big.Int) {
	a.check(h)
	if IsReserved(h) {
		vm.Throw(vm.ExecutionFailed, vm.MsgActionNotAllowed)
	}
	a.bigInts[h] = v
}

// NewBigInt allocates a big integer holding v.
func (a *Arena) NewBigInt(v int64) Handle {
	h := a.nextHandle()
	a.bigInts[h] = big.NewInt(v)
	return h
}

// NewBigIntFrom allocates a big integer holding a copy of v.
func (a *Arena) NewBigIntFrom(v *big.Int) Handle {
	h := a.nextHandle()
	a.bigInts[h] = new(big.Int).Set(v)
	return h
}

// BigInt returns a copy of the value under h.
func (a *Arena) BigInt(h Handle) *big.Int {
	return new(big.Int).Set(a.bigInt(h))
}

// BigIntSet stores a copy of v under h.
func (a *Arena) BigIntSet(h Handle, v *big.Int) {
	a.setBigInt(h, new(big.Int).Set(v))
}

// BigIntSetInt64 stores v under h.
func (a *Arena) BigIntSetInt64(h Handle, v int64) {
	a.setBigInt(h, big.NewInt(v))
}

// BigIntIsInt64 reports whether the value fits in an int64.
func (a *Arena) BigIntIsInt64(h Handle) bool {
	return a.bigInt(h).IsInt64()
}

// BigIntGetInt64 narrows the value; it traps when it does not fit.
func (a *Arena) BigIntGetInt64(h Handle) int64 {
	v := a.bigInt(h)
	if !v.IsInt64() {
		vm.Throw(vm.ExecutionFailed, MsgNotInt64)
	}
	return v.Int64()
}

// BigIntAdd stores x+y in dest.
func (a *Arena) BigIntAdd(dest, x, y Handle) {
	a.setBigInt(dest, new(big.Int).Add(a.bigInt(x), a.bigInt(y)))
}

// BigIntSub stores x-y in dest.
func (a *Arena) BigIntSub(dest, x, y Handle) {
	a.setBigInt(dest, new(big.Int).Sub(a.bigInt(x), a.bigInt(y)))
}

// BigIntMul stores x*y in dest.
func (a *Arena) BigIntMul(dest, x, y Handle) {
	a.setBigInt(dest, new(big.Int).Mul(a.bigInt(x), a.bigInt(y)))
}

// BigIntDiv stores x/y truncated toward zero in dest.
func (a *Arena) BigIntDiv(dest, x, y Handle) {
	d := a.bigInt(y)
	if d.Sign() == 0 {
		vm.Throw(vm.ExecutionFailed, vm.MsgDivisionByZero)
	}
	a.setBigInt(dest, new(big.Int).Quo(a.bigInt(x), d))
}

// BigIntMod stores the remainder of x/y truncated toward zero in dest.
func (a *Arena) BigIntMod(dest, x, y Handle) {
	d := a.bigInt(y)
	if d.Sign() == 0 {
		vm.Throw(vm.ExecutionFailed, vm.MsgDivisionByZero)
	}
	a.setBigInt(dest, new(big.Int).Rem(a.bigInt(x), d))
}

// BigIntPow stores x**y in dest. Negative exponents trap.
func (a *Arena) BigIntPow(dest, x, y Handle) {
	e := a.bigInt(y)
	if e.Sign() < 0 {
		vm.Throw(vm.ExecutionFailed, vm.MsgBadBoundsLower)
	}
	a.setBigInt(dest, new(big.Int).Exp(a.bigInt(x), e, nil))
}

// BigIntSqrt stores floor(sqrt(x)) in dest. Negative operands trap.
func (a *Arena) BigIntSqrt(dest, x Handle) {
	v := a.bigInt(x)
	if v.Sign() < 0 {
		vm.Throw(vm.ExecutionFailed, vm.MsgBadBoundsLower)
	}
	a.setBigInt(dest, new(big.Int).Sqrt(v))
}

// BigIntLog2 returns floor(log2(x)). Non-positive operands trap.
func (a *Arena) BigIntLog2(x Handle) int32 {
	v := a.bigInt(x)
	if v.Sign() <= 0 {
		vm.Throw(vm.ExecutionFailed, vm.MsgBadBoundsLower)
	}
	return int32(v.BitLen() - 1)
}

// BigIntAbs stores |x| in dest.
func (a *Arena) BigIntAbs(dest, x Handle) {
	a.setBigInt(dest, new(big.Int).Abs(a.bigInt(x)))
}

// BigIntNeg stores -x in dest.
func (a *Arena) BigIntNeg(dest, x Handle) {
	a.setBigInt(dest, new(big.Int).Neg(a.bigInt(x)))
}

// BigIntAnd stores x&y in dest, on two's complement.
func (a *Arena) BigIntAnd(dest, x, y Handle) {
	a.setBigInt(dest, new(big.Int).And(a.bigInt(x), a.bigInt(y)))
}

// BigIntOr stores x|y in dest, on two's complement.
func (a *Arena) BigIntOr(dest, x, y Handle) {
	a.setBigInt(dest, new(big.Int).Or(a.bigInt(x), a.bigInt(y)))
}

// BigIntXor stores x^y in dest, on two's complement.
func (a *Arena) BigIntXor(dest, x, y Handle) {
	a.setBigInt(dest, new(big.Int).Xor(a.bigInt(x), a.bigInt(y)))
}

// BigIntShl stores x<<bits in dest. Negative operands trap.
func (a *Arena) BigIntShl(dest, x Handle, bits uint) {
	v := a.bigInt(x)
	if v.Sign() < 0 {
		vm.Throw(vm.ExecutionFailed, vm.MsgBadBoundsLower)
	}
	a.setBigInt(dest, new(big.Int).Lsh(v, bits))
}

// BigIntShr stores x>>bits in dest. Negative operands trap.
func (a *Arena) BigIntShr(dest, x Handle, bits uint) {
	v := a.bigInt(x)
	if v.Sign() < 0 {
		vm.Throw(vm.ExecutionFailed, vm.MsgBadBoundsLower)
	}
	a.setBigInt(dest, new(big.Int).Rsh(v, bits))
}

// BigIntCmp compares x and y.
func (a *Arena) BigIntCmp(x, y Handle) int {
	return a.bigInt(x).Cmp(a.bigInt(y))
}

// BigIntSign returns -1, 0 or +1.
func (a *Arena) BigIntSign(x Handle) int {
	return a.bigInt(x).Sign()
}

// BigIntToString writes the base-10 form of x into the buffer dest.
func (a *Arena) BigIntToString(dest, x Handle) {
	a.setBuffer(dest, []byte(a.bigInt(x).String()))
}

// BigIntSignedBytes returns the minimal two's complement big-endian form.
func (a *Arena) BigIntSignedBytes(x Handle) []byte {
	return codec.TopEncodeBigInt(a.bigInt(x))
}

// BigIntSetSignedBytes decodes two's complement big-endian bytes into dest.
func (a *Arena) BigIntSetSignedBytes(dest Handle, b []byte) {
	a.setBigInt(dest, codec.TopDecodeBigInt(b))
}

// BigIntUnsignedBytes returns the minimal big-endian magnitude.
func (a *Arena) BigIntUnsignedBytes(x Handle) []byte {
	return a.bigInt(x).Bytes()
}

// BigIntSetUnsignedBytes decodes big-endian bytes into dest.
func (a *Arena) BigIntSetUnsignedBytes(dest Handle, b []byte) {
	a.setBigInt(dest, new(big.Int).SetBytes(b))
}

// BufferToBigIntUnsigned decodes the buffer src into the big integer dest.
func (a *Arena) BufferToBigIntUnsigned(src, dest Handle) {
	a.BigIntSetUnsignedBytes(dest, a.buffer(src))
}

// BufferToBigIntSigned decodes the buffer src into the big integer dest.
func (a *Arena) BufferToBigIntSigned(src, dest Handle) {
	a.BigIntSetSignedBytes(dest, a.buffer(src))
}

// BufferFromBigIntUnsigned writes the magnitude of src into the buffer dest.
func (a *Arena) BufferFromBigIntUnsigned(dest, src Handle) {
	a.setBuffer(dest, a.BigIntUnsignedBytes(src))
}

// BufferFromBigIntSigned writes the two's complement form of src into the buffer dest.
func (a *Arena) BufferFromBigIntSigned(dest, src Handle) {
	a.setBuffer(dest, a.BigIntSignedBytes(src))
}
