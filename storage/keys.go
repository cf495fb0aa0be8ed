package storage

import (
	"fmt"
	"math/big"

	"go.vocdoni.io/dvote/db/prefixeddb"

	"github.com/confledger/confledger/crypto/ecc"
	"github.com/confledger/confledger/crypto/ecc/curves"
)

// encryptionKeys is the stored form of the ledger ElGamal key pair.
type encryptionKeys struct {
	X          *big.Int `cbor:"x"`
	Y          *big.Int `cbor:"y"`
	PrivateKey *big.Int `cbor:"d"`
}

var encryptionKeysKey = []byte("ledger")

// SetEncryptionKeys stores the ledger encryption key pair. It commits its
// own transaction, since key generation happens once at ledger creation,
// before any public operation.
func (s *Storage) SetEncryptionKeys(publicKey ecc.Point, privateKey *big.Int) error {
	x, y := publicKey.Point()
	eks := encryptionKeys{X: x, Y: y, PrivateKey: privateKey}
	data, err := encodeArtifact(eks)
	if err != nil {
		return fmt.Errorf("encode encryption keys: %w", err)
	}
	wTx := prefixeddb.NewPrefixedWriteTx(s.db.WriteTx(), keysPrefix)
	if err := wTx.Set(encryptionKeysKey, data); err != nil {
		wTx.Discard()
		return err
	}
	return wTx.Commit()
}

// EncryptionKeys loads the ledger encryption key pair. It returns
// ErrNotFound if no key pair has been stored yet.
func (s *Storage) EncryptionKeys() (ecc.Point, *big.Int, error) {
	eks := encryptionKeys{}
	if err := s.getArtifact(keysPrefix, encryptionKeysKey, &eks); err != nil {
		return nil, nil, err
	}
	pubKey := curves.New(curves.CurveTypeBN254).SetPoint(eks.X, eks.Y)
	return pubKey, eks.PrivateKey, nil
}
