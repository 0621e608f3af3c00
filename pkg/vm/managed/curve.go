package managed

import (
	"crypto/elliptic"
	"encoding/binary"
	"math/big"

	"golang.org/x/crypto/sha3"

	"github.com/fortiblox/X1-Scenario/pkg/vm"
)

// Supported curve names.
var curvesByName = map[string]func() elliptic.Curve{
	"p224": elliptic.P224,
	"p256": elliptic.P256,
	"p384": elliptic.P384,
	"p521": elliptic.P521,
}

func (a *Arena) curve(h Handle) elliptic.Curve {
	a.check(h)
	c, ok := a.curves[h]
	if !ok {
		vm.Throw(vm.ExecutionFailed, MsgNoCurve)
	}
	return c
}

func (a *Arena) point(c elliptic.Curve, xh, yh Handle) (*big.Int, *big.Int) {
	x, y := a.bigInt(xh), a.bigInt(yh)
	if !c.IsOnCurve(x, y) {
		vm.Throw(vm.ExecutionFailed, MsgBadPoint)
	}
	return x, y
}

// NewCurve allocates a curve context by name (p224, p256, p384, p521).
func (a *Arena) NewCurve(name string) Handle {
	ctor, ok := curvesByName[name]
	if !ok {
		vm.Throw(vm.ExecutionFailed, MsgBadCurveName)
	}
	h := a.nextHandle()
	a.curves[h] = ctor()
	return h
}

// NewCurveFromBuffer allocates a curve context named by a buffer.
func (a *Arena) NewCurveFromBuffer(name Handle) Handle {
	return a.NewCurve(string(a.buffer(name)))
}

// CurveValues writes the curve parameters into big integer handles.
func (a *Arena) CurveValues(ec, fieldOrder, basePointOrder, eqConstant, xBase, yBase Handle) {
	p := a.curve(ec).Params()
	a.BigIntSet(fieldOrder, p.P)
	a.BigIntSet(basePointOrder, p.N)
	a.BigIntSet(eqConstant, p.B)
	a.BigIntSet(xBase, p.Gx)
	a.BigIntSet(yBase, p.Gy)
}

// CurveBitSize returns the field size in bits.
func (a *Arena) CurveBitSize(ec Handle) int {
	return a.curve(ec).Params().BitSize
}

// CurveIsOnCurve reports whether (x, y) lies on the curve.
func (a *Arena) CurveIsOnCurve(ec, x, y Handle) bool {
	return a.curve(ec).IsOnCurve(a.bigInt(x), a.bigInt(y))
}

// CurveAdd stores (x1,y1)+(x2,y2) in (xRes,yRes).
func (a *Arena) CurveAdd(xRes, yRes, ec, x1, y1, x2, y2 Handle) {
	c := a.curve(ec)
	ax, ay := a.point(c, x1, y1)
	bx, by := a.point(c, x2, y2)
	rx, ry := c.Add(ax, ay, bx, by)
	a.setBigInt(xRes, rx)
	a.setBigInt(yRes, ry)
}

// CurveDouble stores 2*(x,y) in (xRes,yRes).
func (a *Arena) CurveDouble(xRes, yRes, ec, x, y Handle) {
	c := a.curve(ec)
	px, py := a.point(c, x, y)
	rx, ry := c.Double(px, py)
	a.setBigInt(xRes, rx)
	a.setBigInt(yRes, ry)
}

// CurveScalarMult stores k*(x,y) in (xRes,yRes); k is read from a buffer.
func (a *Arena) CurveScalarMult(xRes, yRes, ec, x, y, scalar Handle) {
	c := a.curve(ec)
	px, py := a.point(c, x, y)
	rx, ry := c.ScalarMult(px, py, a.buffer(scalar))
	a.setBigInt(xRes, rx)
	a.setBigInt(yRes, ry)
}

// CurveScalarBaseMult stores k*G in (xRes,yRes).
func (a *Arena) CurveScalarBaseMult(xRes, yRes, ec, scalar Handle) {
	rx, ry := a.curve(ec).ScalarBaseMult(a.buffer(scalar))
	a.setBigInt(xRes, rx)
	a.setBigInt(yRes, ry)
}

// CurveMarshal writes the uncompressed SEC1 form of (x,y) into dest.
func (a *Arena) CurveMarshal(dest, ec, x, y Handle) {
	c := a.curve(ec)
	px, py := a.point(c, x, y)
	a.setBuffer(dest, elliptic.Marshal(c, px, py))
}

// CurveMarshalCompressed writes the compressed SEC1 form of (x,y) into dest.
func (a *Arena) CurveMarshalCompressed(dest, ec, x, y Handle) {
	c := a.curve(ec)
	px, py := a.point(c, x, y)
	a.setBuffer(dest, elliptic.MarshalCompressed(c, px, py))
}

// CurveUnmarshal decodes an uncompressed point from src into (xRes,yRes).
func (a *Arena) CurveUnmarshal(xRes, yRes, ec, src Handle) {
	x, y := elliptic.Unmarshal(a.curve(ec), a.buffer(src))
	if x == nil {
		vm.Throw(vm.ExecutionFailed, MsgBadPoint)
	}
	a.setBigInt(xRes, x)
	a.setBigInt(yRes, y)
}

// CurveUnmarshalCompressed decodes a compressed point from src into (xRes,yRes).
func (a *Arena) CurveUnmarshalCompressed(xRes, yRes, ec, src Handle) {
	x, y := elliptic.UnmarshalCompressed(a.curve(ec), a.buffer(src))
	if x == nil {
		vm.Throw(vm.ExecutionFailed, MsgBadPoint)
	}
	a.setBigInt(xRes, x)
	a.setBigInt(yRes, y)
}

// CurveGenerateKey creates a key pair. Randomness is derived from the block
// random seed and a per-arena counter, so runs are reproducible.
func (a *Arena) CurveGenerateKey(xPub, yPub, ec, privDest Handle) {
	c := a.curve(ec)

	shake := sha3.NewShake256()
	if a.provider != nil {
		shake.Write(a.provider.RandomSeed())
	}
	var ctr [8]byte
	binary.BigEndian.PutUint64(ctr[:], a.keys)
	a.keys++
	shake.Write(ctr[:])

	priv, x, y, err := elliptic.GenerateKey(c, shake)
	if err != nil {
		vm.Throw(vm.ExecutionFailed, err.Error())
	}
	a.setBigInt(xPub, x)
	a.setBigInt(yPub, y)
	a.setBuffer(privDest, priv)
}
