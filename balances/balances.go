// Package balances implements the confidential balance store: a map of
// principal to encrypted balance handle, a clamped confidential transfer
// that debits and credits on the same transaction, and a time-bounded
// operator table that lets one principal move funds out of another's
// balance on their behalf.
package balances

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.vocdoni.io/dvote/db"
	"go.vocdoni.io/dvote/db/prefixeddb"

	"github.com/confledger/confledger/arena"
	"github.com/confledger/confledger/types"
)

var (
	balancePrefix  = []byte("b/")
	operatorPrefix = []byte("o/")
)

// operatorKey builds the operator table key for an (owner, operator) pair.
func operatorKey(owner, operator common.Address) []byte {
	return append(owner.Bytes(), operator.Bytes()...)
}

// ErrNotOperator is returned when a transfer on behalf of an owner is
// attempted without a valid, unexpired operator authorization.
var ErrNotOperator = errors.New("operator not authorized")

// Store is the confidential balance store of one ledger instance.
type Store struct {
	db    db.Database
	arena *arena.Arena
}

// New creates a balance store over the given database and ciphertext arena.
func New(database db.Database, a *arena.Arena) *Store {
	return &Store{db: database, arena: a}
}

// BalanceOf returns the stored balance handle of a principal, or the zero
// sentinel handle if the principal never transacted. Callers must coerce
// the sentinel to an encrypted zero before arithmetic.
func (s *Store) BalanceOf(addr common.Address) (types.Handle, error) {
	return s.balance(s.db, addr)
}

// Mint credits the principal with the encrypted amount and returns the new
// balance handle. Minting is a ledger-level operation; authorization is
// enforced by the caller.
func (s *Store) Mint(wTx db.WriteTx, to common.Address, amount types.Handle) (types.Handle, error) {
	toBal, err := s.balanceOrZero(wTx, to)
	if err != nil {
		return 0, err
	}
	newBal, err := s.arena.Add(wTx, toBal, amount)
	if err != nil {
		return 0, fmt.Errorf("credit balance: %w", err)
	}
	if err := s.setBalance(wTx, to, newBal); err != nil {
		return 0, err
	}
	return newBal, nil
}

// Transfer atomically debits from and credits to by the effective
// transferred amount, which is the requested amount clamped to the
// available balance. Both balance updates are staged on the same
// transaction. It returns the effective amount handle plus the new balance
// handles of both parties, so callers can fold the effective amount
// elsewhere and grant visibility on the fresh balances.
func (s *Store) Transfer(wTx db.WriteTx, from, to common.Address, amount types.Handle) (effective, newFrom, newTo types.Handle, err error) {
	fromBal, err := s.balanceOrZero(wTx, from)
	if err != nil {
		return 0, 0, 0, err
	}
	if effective, err = s.arena.Min(wTx, amount, fromBal); err != nil {
		return 0, 0, 0, fmt.Errorf("clamp amount: %w", err)
	}
	if newFrom, err = s.arena.Sub(wTx, fromBal, effective); err != nil {
		return 0, 0, 0, fmt.Errorf("debit balance: %w", err)
	}
	toBal, err := s.balanceOrZero(wTx, to)
	if err != nil {
		return 0, 0, 0, err
	}
	if newTo, err = s.arena.Add(wTx, toBal, effective); err != nil {
		return 0, 0, 0, fmt.Errorf("credit balance: %w", err)
	}
	if err := s.setBalance(wTx, from, newFrom); err != nil {
		return 0, 0, 0, err
	}
	if err := s.setBalance(wTx, to, newTo); err != nil {
		return 0, 0, 0, err
	}
	return effective, newFrom, newTo, nil
}

// TransferFrom moves the encrypted amount out of the owner's balance on
// behalf of spender, which must hold an unexpired operator authorization
// from the owner. It fails with ErrNotOperator otherwise.
func (s *Store) TransferFrom(wTx db.WriteTx, owner, spender, to common.Address, amount types.Handle, now time.Time) (effective, newFrom, newTo types.Handle, err error) {
	ok, err := s.IsAuthorizedOperator(owner, spender, now)
	if err != nil {
		return 0, 0, 0, err
	}
	if !ok {
		return 0, 0, 0, ErrNotOperator
	}
	return s.Transfer(wTx, owner, to, amount)
}

// SetOperator stages a time-bounded operator authorization: until the
// given deadline, operator may move funds out of owner's balance.
func (s *Store) SetOperator(wTx db.WriteTx, owner, operator common.Address, until time.Time) error {
	data := make([]byte, 8)
	binary.BigEndian.PutUint64(data, uint64(until.Unix()))
	return prefixeddb.NewPrefixedWriteTx(wTx, operatorPrefix).Set(operatorKey(owner, operator), data)
}

// IsAuthorizedOperator reports whether spender holds an unexpired operator
// authorization from owner at the given time.
func (s *Store) IsAuthorizedOperator(owner, spender common.Address, now time.Time) (bool, error) {
	data, err := prefixeddb.NewPrefixedReader(s.db, operatorPrefix).Get(operatorKey(owner, spender))
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return false, nil
		}
		return false, err
	}
	if len(data) != 8 {
		return false, fmt.Errorf("invalid operator record length %d", len(data))
	}
	until := int64(binary.BigEndian.Uint64(data))
	return now.Unix() < until, nil
}

// balance reads the stored balance handle through the given reader, so
// staged balance writes are visible inside an open transaction.
func (s *Store) balance(rd db.Reader, addr common.Address) (types.Handle, error) {
	data, err := prefixeddb.NewPrefixedReader(rd, balancePrefix).Get(addr.Bytes())
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return 0, nil
		}
		return 0, err
	}
	if len(data) != 8 {
		return 0, fmt.Errorf("invalid balance record length %d", len(data))
	}
	return types.Handle(binary.BigEndian.Uint64(data)), nil
}

// balanceOrZero coerces the uninitialized sentinel to a fresh encrypted
// zero, so arithmetic always operates on valid handles.
func (s *Store) balanceOrZero(wTx db.WriteTx, addr common.Address) (types.Handle, error) {
	h, err := s.balance(wTx, addr)
	if err != nil {
		return 0, err
	}
	if h.IsZero() {
		return s.arena.EncryptConstant(wTx, 0)
	}
	return h, nil
}

func (s *Store) setBalance(wTx db.WriteTx, addr common.Address, h types.Handle) error {
	data := make([]byte, 8)
	binary.BigEndian.PutUint64(data, uint64(h))
	return prefixeddb.NewPrefixedWriteTx(wTx, balancePrefix).Set(addr.Bytes(), data)
}
