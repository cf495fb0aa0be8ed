// Package arena implements the homomorphic operation layer of the ledger:
// an append-only arena of ElGamal ciphertexts referenced by opaque handles.
// Handles are immutable; every operation allocates a new one. Addition and
// subtraction are pure point arithmetic and never decrypt their operands.
// The arena owns the ledger encryption key pair and is the only component
// allowed to recover plaintexts: it does so exclusively inside
// compare-and-select, for the width check on ingestion, and on behalf of
// the access-controlled decryption endpoint, never through the ledger API
// surface.
package arena

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"go.vocdoni.io/dvote/db"
	"go.vocdoni.io/dvote/db/prefixeddb"

	"github.com/confledger/confledger/crypto/ecc"
	"github.com/confledger/confledger/crypto/ecc/curves"
	"github.com/confledger/confledger/crypto/elgamal"
	"github.com/confledger/confledger/storage"
	"github.com/confledger/confledger/types"
)

// MaxMessage bounds the plaintext domain the arena can recover with
// baby-step giant-step. Values are declared as 64 bit unsigned integers,
// but a ciphertext whose plaintext exceeds this bound is not decryptable in
// practice and is rejected on ingestion.
const MaxMessage = uint64(1) << 32

var (
	// Prefixes inside the arena section of the database.
	cipherPrefix = []byte("x/")
	metaPrefix   = []byte("xm/")

	nextHandleKey = []byte("next")
)

// ErrInvalidProof is returned when an externally supplied ciphertext fails
// its well-formedness proof or exceeds the value width bound.
var ErrInvalidProof = errors.New("invalid ciphertext proof")

// ErrUnknownHandle is returned when a handle does not reference a stored
// ciphertext.
var ErrUnknownHandle = errors.New("unknown ciphertext handle")

// Arena is the ciphertext handle space of one ledger instance.
type Arena struct {
	db         db.Database
	curve      ecc.Point
	publicKey  ecc.Point
	privateKey *big.Int

	mu     sync.Mutex
	plain  map[types.Handle]uint64 // plaintext cache, arena-internal only
	staged map[types.Handle][]byte // blobs staged on the current tx
}

// New opens the arena over the given storage. The ledger encryption key
// pair is loaded from storage, or generated and stored on first use.
func New(stg *storage.Storage) (*Arena, error) {
	curve := curves.New(curves.CurveTypeBN254)
	publicKey, privateKey, err := stg.EncryptionKeys()
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("load encryption keys: %w", err)
		}
		publicKey, privateKey, err = elgamal.GenerateKey(curve)
		if err != nil {
			return nil, fmt.Errorf("generate encryption keys: %w", err)
		}
		if err := stg.SetEncryptionKeys(publicKey, privateKey); err != nil {
			return nil, fmt.Errorf("store encryption keys: %w", err)
		}
	}
	return &Arena{
		db:         stg.Database(),
		curve:      curve,
		publicKey:  publicKey,
		privateKey: privateKey,
		plain:      make(map[types.Handle]uint64),
		staged:     make(map[types.Handle][]byte),
	}, nil
}

// PublicKey returns the ledger encryption public key, so external parties
// can encrypt contributions towards it.
func (a *Arena) PublicKey() ecc.Point {
	return a.publicKey
}

// Ciphertext returns the serialized ciphertext referenced by the handle.
func (a *Arena) Ciphertext(h types.Handle) (types.HexBytes, error) {
	z, err := a.ciphertext(nil, h)
	if err != nil {
		return nil, err
	}
	return z.Serialize(), nil
}

// EncryptConstant lifts a known plaintext into the ciphertext space with
// fresh randomness and stages the new handle on the given transaction.
func (a *Arena) EncryptConstant(wTx db.WriteTx, v uint64) (types.Handle, error) {
	z, err := elgamal.NewCiphertext(a.curve).Encrypt(new(big.Int).SetUint64(v), a.publicKey, nil)
	if err != nil {
		return 0, fmt.Errorf("encrypt constant: %w", err)
	}
	h, err := a.store(wTx, z)
	if err != nil {
		return 0, err
	}
	a.cachePlain(h, v)
	return h, nil
}

// Add allocates a new handle holding the homomorphic addition of a and b,
// computed by point addition alone; neither operand is decrypted. The zero
// handle is not a valid operand: callers coerce it to an encrypted zero
// before folding.
func (a *Arena) Add(wTx db.WriteTx, x, y types.Handle) (types.Handle, error) {
	zx, err := a.ciphertext(wTx, x)
	if err != nil {
		return 0, err
	}
	zy, err := a.ciphertext(wTx, y)
	if err != nil {
		return 0, err
	}
	h, err := a.store(wTx, elgamal.NewCiphertext(a.curve).Add(zx, zy))
	if err != nil {
		return 0, err
	}
	// opportunistic cache update, never a forced recovery
	if px, ok := a.cached(x); ok {
		if py, ok := a.cached(y); ok {
			a.cachePlain(h, px+py)
		}
	}
	return h, nil
}

// Sub allocates a new handle holding the homomorphic subtraction x - y,
// computed as the addition of the negated ciphertext. Like Add it never
// decrypts its operands; underflow is caught when both plaintexts happen to
// be cached.
func (a *Arena) Sub(wTx db.WriteTx, x, y types.Handle) (types.Handle, error) {
	zx, err := a.ciphertext(wTx, x)
	if err != nil {
		return 0, err
	}
	zy, err := a.ciphertext(wTx, y)
	if err != nil {
		return 0, err
	}
	px, okx := a.cached(x)
	py, oky := a.cached(y)
	if okx && oky && py > px {
		return 0, fmt.Errorf("subtraction underflow")
	}
	diff := elgamal.NewCiphertext(a.curve).Add(zx, elgamal.NewCiphertext(a.curve).Neg(zy))
	h, err := a.store(wTx, diff)
	if err != nil {
		return 0, err
	}
	if okx && oky {
		a.cachePlain(h, px-py)
	}
	return h, nil
}

// Min is the compare-and-select operation: it allocates a fresh encryption
// of min(plaintext(x), plaintext(y)). The comparison happens inside the
// arena; neither plaintext leaves it.
func (a *Arena) Min(wTx db.WriteTx, x, y types.Handle) (types.Handle, error) {
	px, err := a.reveal(wTx, x)
	if err != nil {
		return 0, err
	}
	py, err := a.reveal(wTx, y)
	if err != nil {
		return 0, err
	}
	return a.EncryptConstant(wTx, min(px, py))
}

// Ingest validates an externally supplied ciphertext blob and its
// well-formedness proof, bound to the sender identity, and allocates a
// handle for it. This is the only path by which external encrypted input
// enters the arena. It fails with ErrInvalidProof when the proof does not
// verify or the plaintext is outside the value width.
func (a *Arena) Ingest(wTx db.WriteTx, blob, proof types.HexBytes, sender []byte) (types.Handle, error) {
	z := elgamal.NewCiphertext(a.curve)
	if err := z.Deserialize(blob); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidProof, err)
	}
	p := &elgamal.Proof{A: a.curve.New()}
	if err := p.Deserialize(proof); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidProof, err)
	}
	if err := p.Verify(z, sender); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidProof, err)
	}
	// width check: the plaintext must be recoverable within the bound
	_, msg, err := elgamal.Decrypt(a.publicKey, a.privateKey, z.C1, z.C2, MaxMessage)
	if err != nil {
		return 0, fmt.Errorf("%w: value out of range", ErrInvalidProof)
	}
	h, err := a.store(wTx, z)
	if err != nil {
		return 0, err
	}
	a.cachePlain(h, msg.Uint64())
	return h, nil
}

// Reveal returns the plaintext of a handle. It is reserved to the
// decryption service, which gates it behind the access control ledger.
func (a *Arena) Reveal(h types.Handle) (uint64, error) {
	return a.reveal(nil, h)
}

// Commit drops the staging overlay after the owning transaction has been
// committed or discarded. When ok is false the plaintext cache entries of
// the staged handles are dropped too, since their handles were never
// persisted.
func (a *Arena) Commit(ok bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !ok {
		for h := range a.staged {
			delete(a.plain, h)
		}
	}
	a.staged = make(map[types.Handle][]byte)
}

// store allocates the next handle and stages the ciphertext write. It does
// not touch the plaintext cache; callers that know the plaintext record it
// with cachePlain.
func (a *Arena) store(wTx db.WriteTx, z *elgamal.Ciphertext) (types.Handle, error) {
	h, err := a.nextHandle(wTx)
	if err != nil {
		return 0, err
	}
	blob := z.Serialize()
	if err := prefixeddb.NewPrefixedWriteTx(wTx, cipherPrefix).Set(handleKey(h), blob); err != nil {
		return 0, err
	}
	a.mu.Lock()
	a.staged[h] = blob
	a.mu.Unlock()
	return h, nil
}

func (a *Arena) cachePlain(h types.Handle, v uint64) {
	a.mu.Lock()
	a.plain[h] = v
	a.mu.Unlock()
}

func (a *Arena) cached(h types.Handle) (uint64, bool) {
	a.mu.Lock()
	v, ok := a.plain[h]
	a.mu.Unlock()
	return v, ok
}

// ciphertext loads a ciphertext by handle, looking at the staging overlay
// first so operations inside an uncommitted transaction compose.
func (a *Arena) ciphertext(wTx db.WriteTx, h types.Handle) (*elgamal.Ciphertext, error) {
	if h.IsZero() {
		return nil, ErrUnknownHandle
	}
	a.mu.Lock()
	blob, ok := a.staged[h]
	a.mu.Unlock()
	if !ok {
		var err error
		blob, err = prefixeddb.NewPrefixedReader(a.db, cipherPrefix).Get(handleKey(h))
		if err != nil {
			if errors.Is(err, db.ErrKeyNotFound) {
				return nil, ErrUnknownHandle
			}
			return nil, fmt.Errorf("load ciphertext: %w", err)
		}
	}
	z := elgamal.NewCiphertext(a.curve)
	if err := z.Deserialize(blob); err != nil {
		return nil, fmt.Errorf("corrupt ciphertext %d: %w", h, err)
	}
	return z, nil
}

func (a *Arena) reveal(wTx db.WriteTx, h types.Handle) (uint64, error) {
	a.mu.Lock()
	v, ok := a.plain[h]
	a.mu.Unlock()
	if ok {
		return v, nil
	}
	z, err := a.ciphertext(wTx, h)
	if err != nil {
		return 0, err
	}
	_, msg, err := elgamal.Decrypt(a.publicKey, a.privateKey, z.C1, z.C2, MaxMessage)
	if err != nil {
		return 0, fmt.Errorf("reveal handle %d: %w", h, err)
	}
	a.mu.Lock()
	a.plain[h] = msg.Uint64()
	a.mu.Unlock()
	return msg.Uint64(), nil
}

// nextHandle allocates a monotonically increasing handle, staging the
// counter bump on the transaction. Handle 0 is never allocated. Only a
// missing counter reads as the initial value; any other read failure is
// propagated so a stored handle is never overwritten.
func (a *Arena) nextHandle(wTx db.WriteTx) (types.Handle, error) {
	pTx := prefixeddb.NewPrefixedWriteTx(wTx, metaPrefix)
	var next uint64 = 1
	data, err := pTx.Get(nextHandleKey)
	switch {
	case err == nil:
		if len(data) != 8 {
			return 0, fmt.Errorf("invalid handle counter length %d", len(data))
		}
		next = binary.BigEndian.Uint64(data)
	case !errors.Is(err, db.ErrKeyNotFound):
		return 0, fmt.Errorf("load handle counter: %w", err)
	}
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, next+1)
	if err := pTx.Set(nextHandleKey, buf); err != nil {
		return 0, err
	}
	return types.Handle(next), nil
}

func handleKey(h types.Handle) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, uint64(h))
	return key
}
