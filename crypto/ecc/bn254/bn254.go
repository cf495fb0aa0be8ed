package bn254

import (
	"encoding/json"
	"fmt"
	"math/big"
	"sync"

	"github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	curve "github.com/confledger/confledger/crypto/ecc"
	"github.com/confledger/confledger/types"
)

const CurveType = "bn254"

// G1 is the affine representation of a G1 group element.
type G1 struct {
	inner *bn254.G1Affine
	lock  sync.Mutex
}

// New creates a new G1 point, set to the identity element.
func New() curve.Point {
	return &G1{inner: new(bn254.G1Affine)}
}

func (g *G1) New() curve.Point {
	return &G1{inner: new(bn254.G1Affine)}
}

func (g *G1) Order() *big.Int {
	return fr.Modulus()
}

func (g *G1) Add(a, b curve.Point) {
	temp := new(bn254.G1Affine)
	temp.Add(a.(*G1).inner, b.(*G1).inner)
	*g.inner = *temp
}

func (g *G1) SafeAdd(a, b curve.Point) {
	g.lock.Lock()
	defer g.lock.Unlock()
	g.inner.Add(a.(*G1).inner, b.(*G1).inner)
}

func (g *G1) ScalarMult(a curve.Point, scalar *big.Int) {
	temp := new(bn254.G1Affine)
	temp.ScalarMultiplication(a.(*G1).inner, scalar)
	*g.inner = *temp
}

func (g *G1) ScalarBaseMult(scalar *big.Int) {
	g.inner.ScalarMultiplicationBase(scalar)
}

func (g *G1) Neg(a curve.Point) {
	g.inner.Neg(a.(*G1).inner)
}

func (g *G1) Set(a curve.Point) {
	g.inner.X.Set(&a.(*G1).inner.X)
	g.inner.Y.Set(&a.(*G1).inner.Y)
}

func (g *G1) SetZero() {
	g.inner.X.SetZero()
	g.inner.Y.SetZero()
}

func (g *G1) SetGenerator() {
	_, _, gen, _ := bn254.Generators()
	g.inner.Set(&gen)
}

func (g *G1) Equal(a curve.Point) bool {
	return g.inner.Equal(a.(*G1).inner)
}

func (g *G1) Point() (*big.Int, *big.Int) {
	x := g.inner.X.BigInt(new(big.Int))
	y := g.inner.Y.BigInt(new(big.Int))
	return x, y
}

func (g *G1) SetPoint(x, y *big.Int) curve.Point {
	if g.inner == nil {
		g.inner = new(bn254.G1Affine)
	}
	g.inner.X.SetBigInt(x)
	g.inner.Y.SetBigInt(y)
	return g
}

func (g *G1) IsOnCurve() bool {
	return g.inner.IsOnCurve()
}

func (g *G1) Marshal() []byte {
	return g.inner.Marshal()
}

func (g *G1) Unmarshal(buf []byte) error {
	if g.inner == nil {
		g.inner = new(bn254.G1Affine)
	}
	_, err := g.inner.SetBytes(buf)
	return err
}

func (g *G1) MarshalJSON() ([]byte, error) {
	x, y := g.Point()
	return json.Marshal([]*types.BigInt{(*types.BigInt)(x), (*types.BigInt)(y)})
}

func (g *G1) UnmarshalJSON(buf []byte) error {
	if g.inner == nil {
		g.inner = new(bn254.G1Affine)
	}
	var coords []*types.BigInt
	if err := json.Unmarshal(buf, &coords); err != nil {
		return err
	}
	if len(coords) != 2 {
		return fmt.Errorf("expected 2 coordinates, got %d", len(coords))
	}
	g.inner.X.SetBigInt(coords[0].MathBigInt())
	g.inner.Y.SetBigInt(coords[1].MathBigInt())
	return nil
}

func (g *G1) String() string {
	x, y := g.Point()
	return fmt.Sprintf("%s,%s", x.String(), y.String())
}
