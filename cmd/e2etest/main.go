// Command e2etest runs a full ledger scenario against an in-process API
// server: mint balances, authorize the ledger as operator, open a round,
// contribute from two accounts, verify the encrypted total and finalize.
package main

import (
	"context"
	"fmt"
	"time"

	flag "github.com/spf13/pflag"
	"github.com/vocdoni/arbo/memdb"
	"go.vocdoni.io/dvote/log"

	"github.com/confledger/confledger/api/client"
	"github.com/confledger/confledger/crypto/ethereum"
	"github.com/confledger/confledger/ledger"
	"github.com/confledger/confledger/service"
	"github.com/confledger/confledger/storage"
)

func main() {
	port := flag.Int("port", 8089, "port for the in-process API server")
	flag.Parse()
	log.Init("debug", "stdout", nil)

	stg := storage.New(memdb.New())
	defer stg.Close()

	signer := ethereum.NewSignKeys()
	if err := signer.Generate(); err != nil {
		log.Fatal(err)
	}
	ldgr, err := ledger.New(stg, signer)
	if err != nil {
		log.Fatal(err)
	}

	apiService := service.NewAPI(ldgr, "127.0.0.1", *port)
	if err := apiService.Start(context.Background()); err != nil {
		log.Fatal(err)
	}
	defer apiService.Stop()
	time.Sleep(500 * time.Millisecond)

	cli, err := client.New(fmt.Sprintf("http://127.0.0.1:%d", *port))
	if err != nil {
		log.Fatal(err)
	}
	info, err := cli.Info()
	if err != nil {
		log.Fatal(err)
	}
	log.Infow("connected", "ledger", info.Address.Hex())

	// Three participants: the round owner and two contributors.
	owner, alice, bob := ethereum.NewSignKeys(), ethereum.NewSignKeys(), ethereum.NewSignKeys()
	for _, k := range []*ethereum.SignKeys{owner, alice, bob} {
		if err := k.Generate(); err != nil {
			log.Fatal(err)
		}
	}

	// Fund the contributors (minting is gated to the ledger identity) and
	// let the ledger move their funds.
	if _, err := cli.Mint(signer, alice.Address(), 1000); err != nil {
		log.Fatal(err)
	}
	if _, err := cli.Mint(signer, bob.Address(), 500); err != nil {
		log.Fatal(err)
	}
	until := time.Now().Add(time.Hour)
	if err := cli.SetOperator(alice, info.Address, until); err != nil {
		log.Fatal(err)
	}
	if err := cli.SetOperator(bob, info.Address, until); err != nil {
		log.Fatal(err)
	}

	round, err := cli.CreateRound(owner, "library roof", 300, time.Now().Add(time.Hour))
	if err != nil {
		log.Fatal(err)
	}
	log.Infow("round created", "id", round.ID)

	if _, err := cli.Contribute(alice, 150); err != nil {
		log.Fatal(err)
	}
	if _, err := cli.Contribute(bob, 150); err != nil {
		log.Fatal(err)
	}

	round, err = cli.ActiveRound()
	if err != nil {
		log.Fatal(err)
	}
	total, err := cli.Decrypt(owner, round.Total)
	if err != nil {
		log.Fatal(err)
	}
	if total != 300 {
		log.Fatalf("unexpected total: got %d, want 300", total)
	}
	log.Infow("total verified", "total", total)

	res, err := cli.Finalize(owner, round.ID)
	if err != nil {
		log.Fatal(err)
	}
	payout, err := cli.Decrypt(owner, res.Payout)
	if err != nil {
		log.Fatal(err)
	}
	if payout != 300 {
		log.Fatalf("unexpected payout: got %d, want 300", payout)
	}

	aliceBalance, err := cli.Balance(alice.Address())
	if err != nil {
		log.Fatal(err)
	}
	remaining, err := cli.Decrypt(alice, aliceBalance.Balance)
	if err != nil {
		log.Fatal(err)
	}
	if remaining != 850 {
		log.Fatalf("unexpected remaining balance: got %d, want 850", remaining)
	}
	log.Infow("scenario completed", "payout", payout, "aliceRemaining", remaining)
}
