package elgamal

import (
	"math/big"
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/confledger/confledger/crypto/ecc/curves"
)

func TestGenerateKey(t *testing.T) {
	curve := curves.New(curves.CurveTypeBN254)

	publicKey, privateKey, err := GenerateKey(curve)
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, publicKey, qt.Not(qt.IsNil))
	qt.Assert(t, privateKey, qt.Not(qt.IsNil))

	// Check if publicKey = privateKey * G
	testPoint := curve.New()
	testPoint.SetGenerator()
	testPoint.ScalarMult(testPoint, privateKey)
	qt.Assert(t, testPoint.Equal(publicKey), qt.IsTrue)
}

func TestEncryptDecrypt(t *testing.T) {
	curve := curves.New(curves.CurveTypeBN254)

	publicKey, privateKey, err := GenerateKey(curve)
	qt.Assert(t, err, qt.IsNil)

	maxMessage := uint64(1000)

	for _, m := range []uint64{0, 1, 42, 999} {
		msg := big.NewInt(int64(m))
		c1, c2, k, err := Encrypt(publicKey, msg)
		qt.Assert(t, err, qt.IsNil)
		qt.Assert(t, k, qt.Not(qt.IsNil))

		M, recoveredMsg, err := Decrypt(publicKey, privateKey, c1, c2, maxMessage)
		qt.Assert(t, err, qt.IsNil)
		qt.Assert(t, recoveredMsg.String(), qt.DeepEquals, msg.String())

		// Check M = m * G
		testPoint := curve.New()
		testPoint.SetGenerator()
		testPoint.ScalarMult(testPoint, msg)
		qt.Assert(t, testPoint.Equal(M), qt.IsTrue)
	}
}

func TestHomomorphicAddition(t *testing.T) {
	curve := curves.New(curves.CurveTypeBN254)

	publicKey, privateKey, err := GenerateKey(curve)
	qt.Assert(t, err, qt.IsNil)

	a1, a2, _, err := Encrypt(publicKey, big.NewInt(150))
	qt.Assert(t, err, qt.IsNil)
	b1, b2, _, err := Encrypt(publicKey, big.NewInt(150))
	qt.Assert(t, err, qt.IsNil)

	// component-wise addition of the ciphertexts
	sum1 := curve.New()
	sum1.Add(a1, b1)
	sum2 := curve.New()
	sum2.Add(a2, b2)

	_, msg, err := Decrypt(publicKey, privateKey, sum1, sum2, 1000)
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, msg.Uint64(), qt.Equals, uint64(300))
}

func TestCheckK(t *testing.T) {
	curve := curves.New(curves.CurveTypeBN254)

	publicKey, _, err := GenerateKey(curve)
	qt.Assert(t, err, qt.IsNil)

	c1, _, k, err := Encrypt(publicKey, big.NewInt(77))
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, CheckK(c1, k), qt.IsTrue)
	qt.Assert(t, CheckK(c1, new(big.Int).Add(k, big.NewInt(1))), qt.IsFalse)
}
