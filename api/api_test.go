package api_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"go.vocdoni.io/dvote/db/metadb"
	"go.vocdoni.io/dvote/log"

	"github.com/confledger/confledger/api"
	"github.com/confledger/confledger/api/client"
	"github.com/confledger/confledger/crypto/ethereum"
	"github.com/confledger/confledger/ledger"
	"github.com/confledger/confledger/storage"
)

func newTestClient(t *testing.T) (*client.HTTPclient, *ethereum.SignKeys) {
	log.Init("error", "stdout", nil)
	stg := storage.New(metadb.NewTest(t))
	signer := ethereum.NewSignKeys()
	qt.Assert(t, signer.Generate(), qt.IsNil)
	l, err := ledger.New(stg, signer)
	qt.Assert(t, err, qt.IsNil)

	a, err := api.New(&api.APIConfig{Host: "127.0.0.1", Port: 0, Ledger: l})
	qt.Assert(t, err, qt.IsNil)
	srv := httptest.NewServer(a.Router())
	t.Cleanup(srv.Close)

	cli, err := client.New(srv.URL)
	qt.Assert(t, err, qt.IsNil)
	return cli, signer
}

func newSigner(c *qt.C) *ethereum.SignKeys {
	k := ethereum.NewSignKeys()
	c.Assert(k.Generate(), qt.IsNil)
	return k
}

func TestFullRoundFlow(t *testing.T) {
	c := qt.New(t)
	cli, minter := newTestClient(t)

	info, err := cli.Info()
	c.Assert(err, qt.IsNil)

	owner, alice, bob := newSigner(c), newSigner(c), newSigner(c)
	until := time.Now().Add(time.Hour)

	_, err = cli.Mint(minter, alice.Address(), 1000)
	c.Assert(err, qt.IsNil)
	_, err = cli.Mint(minter, bob.Address(), 500)
	c.Assert(err, qt.IsNil)

	// Minting is reserved for the ledger identity
	_, err = cli.Mint(alice, bob.Address(), 500)
	c.Assert(err, qt.IsNotNil)
	c.Assert(cli.SetOperator(alice, info.Address, until), qt.IsNil)
	c.Assert(cli.SetOperator(bob, info.Address, until), qt.IsNil)

	round, err := cli.CreateRound(owner, "library roof", 300, time.Now().Add(time.Hour))
	c.Assert(err, qt.IsNil)
	c.Assert(round.ID, qt.Equals, uint64(1))
	c.Assert(round.Owner, qt.Equals, owner.Address())

	_, err = cli.Contribute(alice, 150)
	c.Assert(err, qt.IsNil)
	recBob, err := cli.Contribute(bob, 150)
	c.Assert(err, qt.IsNil)

	// The cumulative record is readable through the round endpoint too
	got, err := cli.Contribution(round.ID, bob.Address())
	c.Assert(err, qt.IsNil)
	c.Assert(got.Cumulative, qt.Equals, recBob.Cumulative)

	round, err = cli.ActiveRound()
	c.Assert(err, qt.IsNil)
	total, err := cli.Decrypt(owner, round.Total)
	c.Assert(err, qt.IsNil)
	c.Assert(total, qt.Equals, uint64(300))

	// Contributors cannot decrypt the running total
	_, err = cli.Decrypt(alice, round.Total)
	c.Assert(err, qt.IsNotNil)

	res, err := cli.Finalize(owner, round.ID)
	c.Assert(err, qt.IsNil)
	payout, err := cli.Decrypt(owner, res.Payout)
	c.Assert(err, qt.IsNil)
	c.Assert(payout, qt.Equals, uint64(300))

	balance, err := cli.Balance(alice.Address())
	c.Assert(err, qt.IsNil)
	remaining, err := cli.Decrypt(alice, balance.Balance)
	c.Assert(err, qt.IsNil)
	c.Assert(remaining, qt.Equals, uint64(850))
}

func TestErrorStatusCodes(t *testing.T) {
	c := qt.New(t)
	cli, minter := newTestClient(t)

	info, err := cli.Info()
	c.Assert(err, qt.IsNil)
	owner, alice := newSigner(c), newSigner(c)

	// Unknown round
	_, status, err := cli.Request(client.HTTPGET, nil, "/rounds", "999")
	c.Assert(err, qt.IsNil)
	c.Assert(status, qt.Equals, http.StatusNotFound)

	// No active round yet
	_, status, err = cli.Request(client.HTTPGET, nil, api.ActiveRoundEndpoint)
	c.Assert(err, qt.IsNil)
	c.Assert(status, qt.Equals, http.StatusNotFound)

	// Contribution without an active round
	_, err = cli.Mint(minter, alice.Address(), 100)
	c.Assert(err, qt.IsNil)
	c.Assert(cli.SetOperator(alice, info.Address, time.Now().Add(time.Hour)), qt.IsNil)
	_, err = cli.Contribute(alice, 50)
	c.Assert(err, qt.IsNotNil)

	round, err := cli.CreateRound(owner, "roof", 300, time.Now().Add(time.Hour))
	c.Assert(err, qt.IsNil)

	// A second active round conflicts
	sig, err := owner.SignEthereum(api.CreateRoundMessage("another", 100, time.Now().Add(time.Hour).Unix()))
	c.Assert(err, qt.IsNil)
	_, status, err = cli.Request(client.HTTPPOST, &api.RoundRequest{
		Name:      "another",
		Target:    100,
		Deadline:  time.Now().Add(time.Hour).Unix(),
		Signature: sig,
	}, api.RoundsEndpoint)
	c.Assert(err, qt.IsNil)
	c.Assert(status, qt.Equals, http.StatusConflict)

	// Finalize by a non-owner is forbidden
	sig, err = alice.SignEthereum(api.FinalizeMessage(round.ID))
	c.Assert(err, qt.IsNil)
	_, status, err = cli.Request(client.HTTPPOST, &api.FinalizeRequest{Signature: sig},
		"/rounds", "1", "finalize")
	c.Assert(err, qt.IsNil)
	c.Assert(status, qt.Equals, http.StatusForbidden)

	// Decrypt without a grant is forbidden
	sig, err = alice.SignEthereum(api.RevealMessage(round.Total))
	c.Assert(err, qt.IsNil)
	_, status, err = cli.Request(client.HTTPPOST, &api.DecryptRequest{
		Handle:    round.Total,
		Signature: sig,
	}, api.DecryptEndpoint)
	c.Assert(err, qt.IsNil)
	c.Assert(status, qt.Equals, http.StatusForbidden)

	// Uninitialized balance reads as not found
	_, status, err = cli.Request(client.HTTPGET, nil, "/balances", owner.AddressString())
	c.Assert(err, qt.IsNil)
	c.Assert(status, qt.Equals, http.StatusNotFound)
}
