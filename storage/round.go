package storage

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"go.vocdoni.io/dvote/db"
	"go.vocdoni.io/dvote/db/prefixeddb"

	"github.com/confledger/confledger/types"
)

// Round retrieves a round from the storage. It returns ErrNotFound if the
// id was never allocated. Finalized rounds keep their stored metadata.
func (s *Storage) Round(id uint64) (*types.Round, error) {
	r := &types.Round{}
	if err := s.getArtifact(roundPrefix, roundKey(id), r); err != nil {
		return nil, err
	}
	return r, nil
}

// SetRound stages a round write on the given transaction.
func (s *Storage) SetRound(wTx db.WriteTx, r *types.Round) error {
	if r == nil {
		return fmt.Errorf("nil round data")
	}
	return s.setArtifact(wTx, roundPrefix, roundKey(r.ID), r)
}

// Contribution retrieves the cumulative contribution record of a principal
// in a round. It returns ErrNotFound if the principal never contributed.
func (s *Storage) Contribution(roundID uint64, contributor common.Address) (*types.ContributionRecord, error) {
	rec := &types.ContributionRecord{}
	key := append(roundKey(roundID), contributor.Bytes()...)
	if err := s.getArtifact(contributionPrefix, key, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// SetContribution stages a contribution record write on the given
// transaction.
func (s *Storage) SetContribution(wTx db.WriteTx, rec *types.ContributionRecord) error {
	if rec == nil {
		return fmt.Errorf("nil contribution record")
	}
	key := append(roundKey(rec.RoundID), rec.Contributor.Bytes()...)
	return s.setArtifact(wTx, contributionPrefix, key, rec)
}

// ActiveRoundID returns the id of the currently open round, or 0 when no
// round is open.
func (s *Storage) ActiveRoundID() (uint64, error) {
	return s.metaUint64(activeRoundKey)
}

// SetActiveRoundID stages the active round pointer on the given transaction.
func (s *Storage) SetActiveRoundID(wTx db.WriteTx, id uint64) error {
	return s.setMetaUint64(wTx, activeRoundKey, id)
}

// LastRoundID returns the last allocated round id. Round ids are allocated
// monotonically starting at 1.
func (s *Storage) LastRoundID() (uint64, error) {
	return s.metaUint64(lastRoundKey)
}

// SetLastRoundID stages the last allocated round id on the given transaction.
func (s *Storage) SetLastRoundID(wTx db.WriteTx, id uint64) error {
	return s.setMetaUint64(wTx, lastRoundKey, id)
}

func (s *Storage) metaUint64(key []byte) (uint64, error) {
	rd := prefixeddb.NewPrefixedReader(s.db, metaPrefix)
	data, err := rd.Get(key)
	if err != nil {
		// only an unset counter reads as zero
		if errors.Is(err, db.ErrKeyNotFound) {
			return 0, nil
		}
		return 0, err
	}
	if len(data) != 8 {
		return 0, fmt.Errorf("invalid meta value length %d", len(data))
	}
	return binary.BigEndian.Uint64(data), nil
}

func (s *Storage) setMetaUint64(wTx db.WriteTx, key []byte, v uint64) error {
	data := make([]byte, 8)
	binary.BigEndian.PutUint64(data, v)
	return prefixeddb.NewPrefixedWriteTx(wTx, metaPrefix).Set(key, data)
}
