// Package ledger implements the campaign ledger: round lifecycle, proof
// validated contributions folded into encrypted totals, confidential payout
// on finalization, and access-controlled decryption of individual values.
// Every public mutating operation runs under one write transaction and one
// ledger-wide lock, so partial effects are never observable.
package ledger

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"go.vocdoni.io/dvote/db"
	"go.vocdoni.io/dvote/log"

	"github.com/confledger/confledger/acl"
	"github.com/confledger/confledger/arena"
	"github.com/confledger/confledger/balances"
	"github.com/confledger/confledger/crypto/ecc"
	"github.com/confledger/confledger/crypto/ethereum"
	"github.com/confledger/confledger/storage"
	"github.com/confledger/confledger/types"
)

// Ledger is a confidential-balance accounting ledger with a single active
// aggregation round at a time.
type Ledger struct {
	stg      *storage.Storage
	db       db.Database
	arena    *arena.Arena
	acl      *acl.Grants
	balances *balances.Store
	signer   *ethereum.SignKeys
	now      func() time.Time

	mu sync.Mutex
}

// New creates a ledger over the given storage, identified by the signer key
// pair. The arena encryption keys are loaded or generated on first use.
func New(stg *storage.Storage, signer *ethereum.SignKeys) (*Ledger, error) {
	a, err := arena.New(stg)
	if err != nil {
		return nil, fmt.Errorf("open ciphertext arena: %w", err)
	}
	database := stg.Database()
	return &Ledger{
		stg:      stg,
		db:       database,
		arena:    a,
		acl:      acl.New(database, signer.Address()),
		balances: balances.New(database, a),
		signer:   signer,
		now:      time.Now,
	}, nil
}

// Address returns the ledger instance identity, derived from its signer key.
func (l *Ledger) Address() common.Address {
	return l.signer.Address()
}

// PublicKey returns the ledger encryption public key, which external
// parties encrypt contribution amounts towards.
func (l *Ledger) PublicKey() ecc.Point {
	return l.arena.PublicKey()
}

// SetTimeSource replaces the clock used for deadline and operator expiry
// checks.
func (l *Ledger) SetTimeSource(now func() time.Time) {
	l.now = now
}

// CreateRound opens a new aggregation round owned by the given principal.
// Only one round can be open at a time; ErrRoundActive is returned while
// another round remains open. The target and the running total start as
// fresh encryptions, visible to the owner and the ledger itself.
func (l *Ledger) CreateRound(owner common.Address, name string, target uint64, deadline time.Time) (*types.Round, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if name == "" || len(name) > types.RoundNameMaxLen {
		return nil, fmt.Errorf("%w: name length %d", ErrInvalidConfig, len(name))
	}
	if target == 0 || target > arena.MaxMessage {
		return nil, fmt.Errorf("%w: target %d out of range", ErrInvalidConfig, target)
	}
	if !deadline.After(l.now()) {
		return nil, fmt.Errorf("%w: deadline in the past", ErrInvalidConfig)
	}
	if active, err := l.stg.ActiveRoundID(); err != nil {
		return nil, err
	} else if active != 0 {
		return nil, fmt.Errorf("%w: round %d", ErrRoundActive, active)
	}

	wTx := l.db.WriteTx()
	r, err := l.createRound(wTx, owner, name, target, deadline)
	if err := l.finish(wTx, err); err != nil {
		return nil, err
	}
	log.Infow("round created",
		"id", r.ID,
		"owner", owner.Hex(),
		"target", target,
		"deadline", deadline.UTC().Format(time.RFC3339))
	return r, nil
}

func (l *Ledger) createRound(wTx db.WriteTx, owner common.Address, name string, target uint64, deadline time.Time) (*types.Round, error) {
	last, err := l.stg.LastRoundID()
	if err != nil {
		return nil, err
	}
	id := last + 1
	if err := l.stg.SetLastRoundID(wTx, id); err != nil {
		return nil, err
	}
	targetHandle, err := l.arena.EncryptConstant(wTx, target)
	if err != nil {
		return nil, err
	}
	totalHandle, err := l.arena.EncryptConstant(wTx, 0)
	if err != nil {
		return nil, err
	}
	for _, h := range []types.Handle{targetHandle, totalHandle} {
		if err := l.acl.GrantSelf(wTx, h); err != nil {
			return nil, err
		}
		if err := l.acl.Grant(wTx, h, owner); err != nil {
			return nil, err
		}
	}
	r := &types.Round{
		ID:       id,
		Owner:    owner,
		Name:     name,
		Deadline: deadline,
		Target:   targetHandle,
		Total:    totalHandle,
	}
	if err := l.stg.SetRound(wTx, r); err != nil {
		return nil, err
	}
	if err := l.stg.SetActiveRoundID(wTx, id); err != nil {
		return nil, err
	}
	return r, nil
}

// Contribute validates an externally encrypted amount against its proof,
// moves the effective amount from the contributor's balance into the round
// pool, and folds it into the round total and the contributor's cumulative
// record. The effective amount is the requested one clamped to the
// contributor's balance; the contributor must have authorized the ledger as
// an operator on its balance beforehand.
func (l *Ledger) Contribute(contributor common.Address, blob, proof types.HexBytes) (*types.ContributionRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	activeID, err := l.stg.ActiveRoundID()
	if err != nil {
		return nil, err
	}
	if activeID == 0 {
		return nil, ErrNoActiveRound
	}
	r, err := l.stg.Round(activeID)
	if err != nil {
		return nil, err
	}
	if !l.now().Before(r.Deadline) {
		return nil, fmt.Errorf("%w: deadline passed", ErrRoundClosed)
	}

	wTx := l.db.WriteTx()
	rec, err := l.contribute(wTx, r, contributor, blob, proof)
	if err := l.finish(wTx, err); err != nil {
		return nil, err
	}
	log.Infow("contribution accepted",
		"round", r.ID,
		"contributor", contributor.Hex())
	return rec, nil
}

func (l *Ledger) contribute(wTx db.WriteTx, r *types.Round, contributor common.Address, blob, proof types.HexBytes) (*types.ContributionRecord, error) {
	amount, err := l.arena.Ingest(wTx, blob, proof, contributor.Bytes())
	if err != nil {
		return nil, err
	}
	effective, newBalance, _, err := l.balances.TransferFrom(
		wTx, contributor, l.signer.Address(), poolAddress(r.ID), amount, l.now())
	if err != nil {
		return nil, err
	}
	total, err := l.arena.Add(wTx, r.Total, effective)
	if err != nil {
		return nil, err
	}

	cumulative := effective
	prev, err := l.stg.Contribution(r.ID, contributor)
	switch {
	case err == nil:
		if cumulative, err = l.arena.Add(wTx, prev.Cumulative, effective); err != nil {
			return nil, err
		}
	case !errors.Is(err, storage.ErrNotFound):
		return nil, err
	}

	for _, h := range []types.Handle{total, cumulative, effective} {
		if err := l.acl.GrantSelf(wTx, h); err != nil {
			return nil, err
		}
	}
	if err := l.acl.Grant(wTx, total, r.Owner); err != nil {
		return nil, err
	}
	for _, h := range []types.Handle{cumulative, effective, newBalance} {
		if err := l.acl.Grant(wTx, h, contributor); err != nil {
			return nil, err
		}
	}

	r.Total = total
	if err := l.stg.SetRound(wTx, r); err != nil {
		return nil, err
	}
	rec := &types.ContributionRecord{
		RoundID:     r.ID,
		Contributor: contributor,
		Cumulative:  cumulative,
	}
	if err := l.stg.SetContribution(wTx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Finalize closes the round, sweeps the pooled funds into the owner's
// balance and returns the payout handle. Only the round owner may finalize;
// a failed authorization check leaves the round untouched. Finalized rounds
// keep their metadata but accept no further contributions.
func (l *Ledger) Finalize(caller common.Address, roundID uint64) (types.Handle, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	r, err := l.Round(roundID)
	if err != nil {
		return 0, err
	}
	if r.Finalized {
		return 0, fmt.Errorf("%w: already finalized", ErrRoundClosed)
	}
	if caller != r.Owner {
		return 0, ErrNotOwner
	}

	wTx := l.db.WriteTx()
	payout, err := l.finalize(wTx, r)
	if err := l.finish(wTx, err); err != nil {
		return 0, err
	}
	log.Infow("round finalized", "round", r.ID, "owner", r.Owner.Hex())
	return payout, nil
}

func (l *Ledger) finalize(wTx db.WriteTx, r *types.Round) (types.Handle, error) {
	pool := poolAddress(r.ID)
	poolBalance, err := l.balances.BalanceOf(pool)
	if err != nil {
		return 0, err
	}
	var payout, newOwnerBalance types.Handle
	if poolBalance.IsZero() {
		// nothing was ever pooled; the payout is an encrypted zero
		if payout, err = l.arena.EncryptConstant(wTx, 0); err != nil {
			return 0, err
		}
	} else {
		if payout, _, newOwnerBalance, err = l.balances.Transfer(wTx, pool, r.Owner, poolBalance); err != nil {
			return 0, err
		}
		if err := l.acl.Grant(wTx, newOwnerBalance, r.Owner); err != nil {
			return 0, err
		}
	}
	if err := l.acl.GrantSelf(wTx, payout); err != nil {
		return 0, err
	}
	if err := l.acl.Grant(wTx, payout, r.Owner); err != nil {
		return 0, err
	}

	r.Finalized = true
	if err := l.stg.SetRound(wTx, r); err != nil {
		return 0, err
	}
	if err := l.stg.SetActiveRoundID(wTx, 0); err != nil {
		return 0, err
	}
	return payout, nil
}

// Mint credits a principal with a fresh encryption of the given amount and
// returns the new balance handle, visible to the recipient.
func (l *Ledger) Mint(to common.Address, amount uint64) (types.Handle, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if amount > arena.MaxMessage {
		return 0, fmt.Errorf("%w: amount %d out of range", ErrInvalidConfig, amount)
	}
	wTx := l.db.WriteTx()
	newBalance, err := l.mint(wTx, to, amount)
	if err := l.finish(wTx, err); err != nil {
		return 0, err
	}
	log.Debugw("balance minted", "to", to.Hex(), "amount", amount)
	return newBalance, nil
}

func (l *Ledger) mint(wTx db.WriteTx, to common.Address, amount uint64) (types.Handle, error) {
	amountHandle, err := l.arena.EncryptConstant(wTx, amount)
	if err != nil {
		return 0, err
	}
	newBalance, err := l.balances.Mint(wTx, to, amountHandle)
	if err != nil {
		return 0, err
	}
	if err := l.acl.GrantSelf(wTx, newBalance); err != nil {
		return 0, err
	}
	if err := l.acl.Grant(wTx, newBalance, to); err != nil {
		return 0, err
	}
	return newBalance, nil
}

// SetOperator authorizes the given operator to move funds out of the
// owner's balance until the given time. Contributions require the ledger
// instance itself to be authorized this way.
func (l *Ledger) SetOperator(owner, operator common.Address, until time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	wTx := l.db.WriteTx()
	err := l.balances.SetOperator(wTx, owner, operator, until)
	if err := l.finish(wTx, err); err != nil {
		return err
	}
	log.Debugw("operator authorized",
		"owner", owner.Hex(),
		"operator", operator.Hex(),
		"until", until.UTC().Format(time.RFC3339))
	return nil
}

// Round returns the stored metadata of a round, finalized or not.
func (l *Ledger) Round(id uint64) (*types.Round, error) {
	r, err := l.stg.Round(id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: %d", ErrRoundNotFound, id)
		}
		return nil, err
	}
	return r, nil
}

// ActiveRound returns the currently open round, or ErrNoActiveRound.
func (l *Ledger) ActiveRound() (*types.Round, error) {
	id, err := l.stg.ActiveRoundID()
	if err != nil {
		return nil, err
	}
	if id == 0 {
		return nil, ErrNoActiveRound
	}
	return l.Round(id)
}

// Contribution returns the cumulative contribution record of a principal in
// a round.
func (l *Ledger) Contribution(roundID uint64, contributor common.Address) (*types.ContributionRecord, error) {
	if _, err := l.Round(roundID); err != nil {
		return nil, err
	}
	rec, err := l.stg.Contribution(roundID, contributor)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: round %d, contributor %s",
				ErrContributionNotFound, roundID, contributor.Hex())
		}
		return nil, err
	}
	return rec, nil
}

// BalanceOf returns the encrypted balance handle of a principal, or the
// zero sentinel handle if the principal never transacted.
func (l *Ledger) BalanceOf(addr common.Address) (types.Handle, error) {
	return l.balances.BalanceOf(addr)
}

// Ciphertext returns the serialized ciphertext referenced by a handle.
func (l *Ledger) Ciphertext(h types.Handle) (types.HexBytes, error) {
	return l.arena.Ciphertext(h)
}

// Reveal returns the plaintext of a handle to a principal holding a
// decryption grant on it, and ErrNotGranted to anyone else.
func (l *Ledger) Reveal(principal common.Address, h types.Handle) (uint64, error) {
	granted, err := l.acl.IsGranted(h, principal)
	if err != nil {
		return 0, err
	}
	if !granted {
		return 0, fmt.Errorf("%w: handle %d, principal %s", ErrNotGranted, h, principal.Hex())
	}
	return l.arena.Reveal(h)
}

// finish commits or discards the transaction and resolves the arena staging
// overlay accordingly.
func (l *Ledger) finish(wTx db.WriteTx, err error) error {
	if err != nil {
		wTx.Discard()
		l.arena.Commit(false)
		return err
	}
	if err := wTx.Commit(); err != nil {
		l.arena.Commit(false)
		return fmt.Errorf("commit transaction: %w", err)
	}
	l.arena.Commit(true)
	return nil
}

// poolAddress derives the escrow address holding the pooled funds of a
// round while it is open.
func poolAddress(roundID uint64) common.Address {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, roundID)
	return common.BytesToAddress(ethcrypto.Keccak256([]byte("round-pool"), buf)[12:])
}
