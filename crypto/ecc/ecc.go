package ecc

import (
	"encoding/json"
	"math/big"
)

// Point represents a point on an elliptic curve. Implementations wrap a
// concrete curve backend and must be usable as both a group element and a
// factory for new elements of the same curve (via New).
type Point interface {
	json.Marshaler
	json.Unmarshaler

	// New returns a new point of the same curve, set to the identity.
	New() Point
	// Order returns the order of the curve scalar field.
	Order() *big.Int
	// Add sets the receiver to a+b.
	Add(a, b Point)
	// SafeAdd is like Add but locks the receiver, so concurrent folds on
	// a shared accumulator are safe.
	SafeAdd(a, b Point)
	// ScalarMult sets the receiver to scalar*a.
	ScalarMult(a Point, scalar *big.Int)
	// ScalarBaseMult sets the receiver to scalar*G.
	ScalarBaseMult(scalar *big.Int)
	// Neg sets the receiver to -a.
	Neg(a Point)
	// Set copies a into the receiver.
	Set(a Point)
	// SetZero sets the receiver to the identity element.
	SetZero()
	// SetGenerator sets the receiver to the curve generator.
	SetGenerator()
	// Equal reports whether the receiver and a are the same point.
	Equal(a Point) bool
	// Point returns the affine coordinates.
	Point() (*big.Int, *big.Int)
	// SetPoint sets the receiver from affine coordinates and returns it.
	// It does not validate them; callers loading untrusted coordinates
	// check IsOnCurve before any group operation.
	SetPoint(x, y *big.Int) Point
	// IsOnCurve reports whether the receiver satisfies the curve equation.
	IsOnCurve() bool
	// Marshal returns the canonical byte representation.
	Marshal() []byte
	// Unmarshal parses the canonical byte representation.
	Unmarshal(buf []byte) error
	// String returns a printable representation of the coordinates.
	String() string
}
