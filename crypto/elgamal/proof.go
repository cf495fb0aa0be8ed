package elgamal

import (
	"bytes"
	"fmt"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/vocdoni/arbo"

	"github.com/confledger/confledger/crypto/ecc"
)

// SizeProof is the serialized size of a Proof: A.X, A.Y and S as
// fixed-width 32 byte integers.
const SizeProof = 3 * sizeCoord

// Proof is a non-interactive Schnorr proof of knowledge of the encryption
// randomness k of a Ciphertext (C1 = k*G). It binds the full ciphertext and
// the sender address into the Fiat-Shamir challenge, so a proof cannot be
// replayed for a different ciphertext or by a different sender. Verifying
// it establishes that the submitted blob is a well-formed encryption under
// the expected public key, produced by someone who knows its randomness.
type Proof struct {
	A ecc.Point `json:"a"`
	S *big.Int  `json:"s"`
}

// challenge derives the Fiat-Shamir challenge scalar from the commitment
// point, the ciphertext and the sender identity.
func challenge(order *big.Int, a ecc.Point, z *Ciphertext, sender []byte) *big.Int {
	var buf bytes.Buffer
	ax, ay := a.Point()
	buf.Write(arbo.BigIntToBytes(sizeCoord, ax))
	buf.Write(arbo.BigIntToBytes(sizeCoord, ay))
	buf.Write(z.Serialize())
	buf.Write(sender)
	e := new(big.Int).SetBytes(ethcrypto.Keccak256(buf.Bytes()))
	return e.Mod(e, order)
}

// Prove builds a well-formedness proof for the ciphertext z encrypted with
// randomness k, bound to the given sender identity.
func Prove(curve ecc.Point, z *Ciphertext, k *big.Int, sender []byte) (*Proof, error) {
	if !CheckK(z.C1, k) {
		return nil, fmt.Errorf("randomness does not match ciphertext")
	}
	r, err := RandK()
	if err != nil {
		return nil, fmt.Errorf("failed to generate proof nonce: %w", err)
	}
	a := curve.New()
	a.ScalarBaseMult(r)

	order := curve.Order()
	e := challenge(order, a, z, sender)
	// s = r + e*k mod order
	s := new(big.Int).Mul(e, k)
	s.Add(s, r)
	s.Mod(s, order)
	return &Proof{A: a, S: s}, nil
}

// Verify checks the proof against the ciphertext and sender identity.
// It returns nil when s*G == A + e*C1 holds for the derived challenge e.
func (p *Proof) Verify(z *Ciphertext, sender []byte) error {
	if p == nil || p.A == nil || p.S == nil {
		return fmt.Errorf("incomplete proof")
	}
	order := p.A.Order()
	e := challenge(order, p.A, z, sender)

	// left = s*G
	left := p.A.New()
	left.ScalarBaseMult(p.S)

	// right = A + e*C1
	eC1 := p.A.New()
	eC1.ScalarMult(z.C1, e)
	right := p.A.New()
	right.Add(p.A, eC1)

	if !left.Equal(right) {
		return fmt.Errorf("schnorr equation does not hold")
	}
	return nil
}

// Serialize returns the proof as A.X, A.Y, S fixed-width big-endian bytes.
func (p *Proof) Serialize() []byte {
	var buf bytes.Buffer
	ax, ay := p.A.Point()
	for _, bi := range []*big.Int{ax, ay, p.S} {
		buf.Write(arbo.BigIntToBytes(sizeCoord, bi))
	}
	return buf.Bytes()
}

// Deserialize reconstructs a Proof from its serialized form. The receiver's
// A point must be initialized on the target curve beforehand. An off-curve
// commitment point is rejected.
func (p *Proof) Deserialize(data []byte) error {
	if len(data) != SizeProof {
		return fmt.Errorf("invalid input length: got %d bytes, expected %d bytes", len(data), SizeProof)
	}
	readBigInt := func(offset int) *big.Int {
		return arbo.BytesToBigInt(data[offset : offset+sizeCoord])
	}
	p.A = p.A.SetPoint(readBigInt(0*sizeCoord), readBigInt(1*sizeCoord))
	if !p.A.IsOnCurve() {
		return fmt.Errorf("point not on curve")
	}
	p.S = readBigInt(2 * sizeCoord)
	return nil
}
