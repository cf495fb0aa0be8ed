package storage

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	qt "github.com/frankban/quicktest"
	"go.vocdoni.io/dvote/db/metadb"
	"go.vocdoni.io/dvote/db/prefixeddb"

	"github.com/confledger/confledger/crypto/ecc/curves"
	"github.com/confledger/confledger/crypto/elgamal"
	"github.com/confledger/confledger/types"
)

func TestRound(t *testing.T) {
	c := qt.New(t)
	stg := New(metadb.NewTest(t))

	// Get non-existent round
	_, err := stg.Round(1)
	c.Assert(err, qt.Equals, ErrNotFound)

	owner := common.HexToAddress("0x1234567890123456789012345678901234567890")
	round := &types.Round{
		ID:       1,
		Owner:    owner,
		Name:     "library roof",
		Deadline: time.Now().Add(time.Hour).UTC().Truncate(time.Second),
		Target:   types.Handle(1),
		Total:    types.Handle(2),
	}

	wTx := stg.Database().WriteTx()
	c.Assert(stg.SetRound(wTx, round), qt.IsNil)
	c.Assert(wTx.Commit(), qt.IsNil)

	got, err := stg.Round(1)
	c.Assert(err, qt.IsNil)
	c.Assert(got.Owner, qt.Equals, owner)
	c.Assert(got.Name, qt.Equals, round.Name)
	c.Assert(got.Target, qt.Equals, round.Target)
	c.Assert(got.Total, qt.Equals, round.Total)
	c.Assert(got.Deadline.Equal(round.Deadline), qt.IsTrue)
	c.Assert(got.Finalized, qt.IsFalse)

	// Update and read back
	got.Total = types.Handle(7)
	got.Finalized = true
	wTx = stg.Database().WriteTx()
	c.Assert(stg.SetRound(wTx, got), qt.IsNil)
	c.Assert(wTx.Commit(), qt.IsNil)

	got, err = stg.Round(1)
	c.Assert(err, qt.IsNil)
	c.Assert(got.Total, qt.Equals, types.Handle(7))
	c.Assert(got.Finalized, qt.IsTrue)
}

func TestContribution(t *testing.T) {
	c := qt.New(t)
	stg := New(metadb.NewTest(t))

	contributor := common.HexToAddress("0xabcdefabcdefabcdefabcdefabcdefabcdefabcd")

	_, err := stg.Contribution(1, contributor)
	c.Assert(err, qt.Equals, ErrNotFound)

	rec := &types.ContributionRecord{
		RoundID:     1,
		Contributor: contributor,
		Cumulative:  types.Handle(3),
	}
	wTx := stg.Database().WriteTx()
	c.Assert(stg.SetContribution(wTx, rec), qt.IsNil)
	c.Assert(wTx.Commit(), qt.IsNil)

	got, err := stg.Contribution(1, contributor)
	c.Assert(err, qt.IsNil)
	c.Assert(got.Contributor, qt.Equals, contributor)
	c.Assert(got.Cumulative, qt.Equals, types.Handle(3))

	// Records are keyed per round
	_, err = stg.Contribution(2, contributor)
	c.Assert(err, qt.Equals, ErrNotFound)
}

func TestRoundCounters(t *testing.T) {
	c := qt.New(t)
	stg := New(metadb.NewTest(t))

	// Unset counters read as zero
	active, err := stg.ActiveRoundID()
	c.Assert(err, qt.IsNil)
	c.Assert(active, qt.Equals, uint64(0))
	last, err := stg.LastRoundID()
	c.Assert(err, qt.IsNil)
	c.Assert(last, qt.Equals, uint64(0))

	wTx := stg.Database().WriteTx()
	c.Assert(stg.SetActiveRoundID(wTx, 3), qt.IsNil)
	c.Assert(stg.SetLastRoundID(wTx, 3), qt.IsNil)
	c.Assert(wTx.Commit(), qt.IsNil)

	active, err = stg.ActiveRoundID()
	c.Assert(err, qt.IsNil)
	c.Assert(active, qt.Equals, uint64(3))
	last, err = stg.LastRoundID()
	c.Assert(err, qt.IsNil)
	c.Assert(last, qt.Equals, uint64(3))
}

func TestCorruptRoundCounter(t *testing.T) {
	c := qt.New(t)
	stg := New(metadb.NewTest(t))

	wTx := stg.Database().WriteTx()
	c.Assert(prefixeddb.NewPrefixedWriteTx(wTx, metaPrefix).Set(activeRoundKey, []byte{1, 2, 3}), qt.IsNil)
	c.Assert(wTx.Commit(), qt.IsNil)

	// A counter of the wrong width must surface as an error, never as an
	// unset counter
	_, err := stg.ActiveRoundID()
	c.Assert(err, qt.IsNotNil)
}

func TestEncryptionKeys(t *testing.T) {
	c := qt.New(t)
	stg := New(metadb.NewTest(t))

	_, _, err := stg.EncryptionKeys()
	c.Assert(err, qt.Equals, ErrNotFound)

	curve := curves.New(curves.CurveTypeBN254)
	publicKey, privateKey, err := elgamal.GenerateKey(curve)
	c.Assert(err, qt.IsNil)
	c.Assert(stg.SetEncryptionKeys(publicKey, privateKey), qt.IsNil)

	gotPub, gotPriv, err := stg.EncryptionKeys()
	c.Assert(err, qt.IsNil)
	c.Assert(gotPub.Equal(publicKey), qt.IsTrue)
	c.Assert(gotPriv.Cmp(privateKey), qt.Equals, 0)
}
