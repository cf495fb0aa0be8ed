package arena

import (
	"bytes"
	"math/big"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/arbo"
	"go.vocdoni.io/dvote/db/metadb"
	"go.vocdoni.io/dvote/db/prefixeddb"

	"github.com/confledger/confledger/crypto/ecc/curves"
	"github.com/confledger/confledger/crypto/elgamal"
	"github.com/confledger/confledger/storage"
	"github.com/confledger/confledger/types"
	"github.com/confledger/confledger/util"
)

func newTestArena(t *testing.T) (*Arena, *storage.Storage) {
	stg := storage.New(metadb.NewTest(t))
	a, err := New(stg)
	qt.Assert(t, err, qt.IsNil)
	return a, stg
}

func TestEncryptConstantAndReveal(t *testing.T) {
	c := qt.New(t)
	a, stg := newTestArena(t)

	wTx := stg.Database().WriteTx()
	h, err := a.EncryptConstant(wTx, 42)
	c.Assert(err, qt.IsNil)
	c.Assert(h.IsZero(), qt.IsFalse)
	c.Assert(wTx.Commit(), qt.IsNil)
	a.Commit(true)

	v, err := a.Reveal(h)
	c.Assert(err, qt.IsNil)
	c.Assert(v, qt.Equals, uint64(42))

	// Handle 0 is the uninitialized sentinel, never a stored value
	_, err = a.Reveal(0)
	c.Assert(err, qt.ErrorIs, ErrUnknownHandle)
}

func TestArithmetic(t *testing.T) {
	c := qt.New(t)
	a, stg := newTestArena(t)

	wTx := stg.Database().WriteTx()
	x, err := a.EncryptConstant(wTx, 500)
	c.Assert(err, qt.IsNil)
	y, err := a.EncryptConstant(wTx, 120)
	c.Assert(err, qt.IsNil)

	sum, err := a.Add(wTx, x, y)
	c.Assert(err, qt.IsNil)
	diff, err := a.Sub(wTx, x, y)
	c.Assert(err, qt.IsNil)
	lo, err := a.Min(wTx, x, y)
	c.Assert(err, qt.IsNil)

	// Every operation allocates a fresh handle
	c.Assert(sum, qt.Not(qt.Equals), x)
	c.Assert(diff, qt.Not(qt.Equals), sum)
	c.Assert(lo, qt.Not(qt.Equals), y)

	c.Assert(wTx.Commit(), qt.IsNil)
	a.Commit(true)

	for h, want := range map[types.Handle]uint64{sum: 620, diff: 380, lo: 120} {
		v, err := a.Reveal(h)
		c.Assert(err, qt.IsNil)
		c.Assert(v, qt.Equals, want)
	}

	// Underflow is rejected
	wTx = stg.Database().WriteTx()
	_, err = a.Sub(wTx, y, x)
	c.Assert(err, qt.IsNotNil)
	wTx.Discard()
	a.Commit(false)
}

func TestMinFreshEncryption(t *testing.T) {
	c := qt.New(t)
	a, stg := newTestArena(t)

	wTx := stg.Database().WriteTx()
	x, err := a.EncryptConstant(wTx, 150)
	c.Assert(err, qt.IsNil)
	y, err := a.EncryptConstant(wTx, 150)
	c.Assert(err, qt.IsNil)
	lo, err := a.Min(wTx, x, y)
	c.Assert(err, qt.IsNil)
	c.Assert(wTx.Commit(), qt.IsNil)
	a.Commit(true)

	// The selected ciphertext is a fresh encryption, not a copy of either
	// input blob
	zx, err := a.Ciphertext(x)
	c.Assert(err, qt.IsNil)
	zy, err := a.Ciphertext(y)
	c.Assert(err, qt.IsNil)
	zlo, err := a.Ciphertext(lo)
	c.Assert(err, qt.IsNil)
	c.Assert(string(zlo), qt.Not(qt.Equals), string(zx))
	c.Assert(string(zlo), qt.Not(qt.Equals), string(zy))

	v, err := a.Reveal(lo)
	c.Assert(err, qt.IsNil)
	c.Assert(v, qt.Equals, uint64(150))
}

func TestIngest(t *testing.T) {
	c := qt.New(t)
	a, stg := newTestArena(t)

	sender := util.RandomBytes(20)
	curve := curves.New(curves.CurveTypeBN254)

	k, err := elgamal.RandK()
	c.Assert(err, qt.IsNil)
	z, err := elgamal.NewCiphertext(curve).Encrypt(big.NewInt(150), a.PublicKey(), k)
	c.Assert(err, qt.IsNil)
	proof, err := elgamal.Prove(curve, z, k, sender)
	c.Assert(err, qt.IsNil)

	wTx := stg.Database().WriteTx()
	h, err := a.Ingest(wTx, z.Serialize(), proof.Serialize(), sender)
	c.Assert(err, qt.IsNil)
	c.Assert(wTx.Commit(), qt.IsNil)
	a.Commit(true)

	v, err := a.Reveal(h)
	c.Assert(err, qt.IsNil)
	c.Assert(v, qt.Equals, uint64(150))

	// A proof bound to another sender is rejected
	wTx = stg.Database().WriteTx()
	_, err = a.Ingest(wTx, z.Serialize(), proof.Serialize(), util.RandomBytes(20))
	c.Assert(err, qt.ErrorIs, ErrInvalidProof)
	wTx.Discard()
	a.Commit(false)

	// A truncated blob is rejected
	wTx = stg.Database().WriteTx()
	_, err = a.Ingest(wTx, z.Serialize()[:16], proof.Serialize(), sender)
	c.Assert(err, qt.ErrorIs, ErrInvalidProof)
	wTx.Discard()
	a.Commit(false)

	// Coordinates off the curve are rejected before any group operation
	offCurve := bytes.Repeat(arbo.BigIntToBytes(32, big.NewInt(1)), 4)
	wTx = stg.Database().WriteTx()
	_, err = a.Ingest(wTx, offCurve, proof.Serialize(), sender)
	c.Assert(err, qt.ErrorIs, ErrInvalidProof)
	wTx.Discard()
	a.Commit(false)
}

func TestDiscardDropsStagedHandles(t *testing.T) {
	c := qt.New(t)
	a, stg := newTestArena(t)

	wTx := stg.Database().WriteTx()
	h, err := a.EncryptConstant(wTx, 7)
	c.Assert(err, qt.IsNil)
	wTx.Discard()
	a.Commit(false)

	_, err = a.Reveal(h)
	c.Assert(err, qt.ErrorIs, ErrUnknownHandle)
	_, err = a.Ciphertext(h)
	c.Assert(err, qt.ErrorIs, ErrUnknownHandle)
}

func TestKeysPersist(t *testing.T) {
	c := qt.New(t)
	database := metadb.NewTest(t)
	stg := storage.New(database)

	a1, err := New(stg)
	c.Assert(err, qt.IsNil)
	a2, err := New(stg)
	c.Assert(err, qt.IsNil)
	c.Assert(a1.PublicKey().Equal(a2.PublicKey()), qt.IsTrue)
}

func TestAddBeyondDecryptionBound(t *testing.T) {
	c := qt.New(t)
	a, stg := newTestArena(t)

	wTx := stg.Database().WriteTx()
	x, err := a.EncryptConstant(wTx, MaxMessage)
	c.Assert(err, qt.IsNil)
	y, err := a.EncryptConstant(wTx, MaxMessage)
	c.Assert(err, qt.IsNil)
	total, err := a.Add(wTx, x, y)
	c.Assert(err, qt.IsNil)
	c.Assert(wTx.Commit(), qt.IsNil)
	a.Commit(true)

	// A fresh arena over the same storage has a cold plaintext cache;
	// adding to a value beyond the recovery bound must still work since
	// addition never decrypts its operands
	a2, err := New(stg)
	c.Assert(err, qt.IsNil)
	wTx = stg.Database().WriteTx()
	one, err := a2.EncryptConstant(wTx, 1)
	c.Assert(err, qt.IsNil)
	bigger, err := a2.Add(wTx, total, one)
	c.Assert(err, qt.IsNil)
	c.Assert(wTx.Commit(), qt.IsNil)
	a2.Commit(true)

	// Recovering such a value is outside the practical decryption range
	_, err = a2.Reveal(bigger)
	c.Assert(err, qt.IsNotNil)
}

func TestCorruptHandleCounter(t *testing.T) {
	c := qt.New(t)
	a, stg := newTestArena(t)

	wTx := stg.Database().WriteTx()
	c.Assert(prefixeddb.NewPrefixedWriteTx(wTx, metaPrefix).Set(nextHandleKey, []byte{1}), qt.IsNil)
	c.Assert(wTx.Commit(), qt.IsNil)

	// A counter of the wrong width must not silently restart handle
	// allocation at 1
	wTx = stg.Database().WriteTx()
	_, err := a.EncryptConstant(wTx, 7)
	c.Assert(err, qt.IsNotNil)
	wTx.Discard()
	a.Commit(false)
}
