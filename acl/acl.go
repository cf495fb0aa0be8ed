// Package acl implements the access control ledger: an append-only set of
// decryption grants keyed by (ciphertext handle, principal). A grant allows
// one principal to request the plaintext of one specific encrypted value.
// Grants are idempotent and irrevocable; restricting visibility of a value
// derived from a granted one is done by granting on the new handle, never
// by re-permissioning the old one.
package acl

import (
	"encoding/binary"
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"go.vocdoni.io/dvote/db"
	"go.vocdoni.io/dvote/db/prefixeddb"

	"github.com/confledger/confledger/types"
)

var grantPrefix = []byte("g/")

// Grants is the append-only access control ledger of one ledger instance.
// Self-grants are recorded under the ledger's own address.
type Grants struct {
	db   db.Database
	self common.Address
}

// New creates the access control ledger over the given database. The self
// address identifies the ledger instance itself, which needs rights on old
// handles to keep folding them into new ones.
func New(database db.Database, self common.Address) *Grants {
	return &Grants{db: database, self: self}
}

// Grant stages an access grant for the principal on the handle. Granting
// twice has the effect of granting once.
func (g *Grants) Grant(wTx db.WriteTx, h types.Handle, principal common.Address) error {
	return prefixeddb.NewPrefixedWriteTx(wTx, grantPrefix).Set(grantKey(h, principal), []byte{1})
}

// GrantSelf stages an access grant for the ledger instance itself.
func (g *Grants) GrantSelf(wTx db.WriteTx, h types.Handle) error {
	return g.Grant(wTx, h, g.self)
}

// IsGranted reports whether the principal holds a grant on the handle.
func (g *Grants) IsGranted(h types.Handle, principal common.Address) (bool, error) {
	_, err := prefixeddb.NewPrefixedReader(g.db, grantPrefix).Get(grantKey(h, principal))
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func grantKey(h types.Handle, principal common.Address) []byte {
	key := make([]byte, 8, 8+common.AddressLength)
	binary.BigEndian.PutUint64(key, uint64(h))
	return append(key, principal.Bytes()...)
}
