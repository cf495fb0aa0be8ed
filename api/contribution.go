package api

import (
	"encoding/json"
	"net/http"

	"github.com/confledger/confledger/crypto/ethereum"
)

// newContribution submits an encrypted contribution to the active round
// POST /contributions
func (a *API) newContribution(w http.ResponseWriter, r *http.Request) {
	req := &ContributionRequest{}
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		ErrMalformedBody.Withf("could not decode request body: %v", err).Write(w)
		return
	}

	// The recovered address is the identity the well-formedness proof must
	// be bound to.
	contributor, err := ethereum.AddrFromSignature(
		ContributeMessage(req.Ciphertext, req.Proof), req.Signature)
	if err != nil {
		ErrInvalidSignature.Withf("could not extract address from signature: %v", err).Write(w)
		return
	}

	rec, err := a.ledger.Contribute(contributor, req.Ciphertext, req.Proof)
	if err != nil {
		httpWriteLedgerError(w, err)
		return
	}
	httpWriteJSON(w, &ContributionResponse{
		RoundID:     rec.RoundID,
		Contributor: rec.Contributor,
		Cumulative:  rec.Cumulative,
	})
}
