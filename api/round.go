package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"

	"github.com/confledger/confledger/crypto/ethereum"
	"github.com/confledger/confledger/types"
)

// info returns the ledger identity: the address to authorize as operator
// and the encryption public key to encrypt amounts towards.
// GET /info
func (a *API) info(w http.ResponseWriter, r *http.Request) {
	x, y := a.ledger.PublicKey().Point()
	httpWriteJSON(w, &InfoResponse{
		Address:          a.ledger.Address(),
		EncryptionPubKey: [2]*types.BigInt{(*types.BigInt)(x), (*types.BigInt)(y)},
	})
}

// createRound opens a new aggregation round
// POST /rounds
func (a *API) createRound(w http.ResponseWriter, r *http.Request) {
	req := &RoundRequest{}
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		ErrMalformedBody.Withf("could not decode request body: %v", err).Write(w)
		return
	}

	// Extract the owner address from the signature
	owner, err := ethereum.AddrFromSignature(
		CreateRoundMessage(req.Name, req.Target, req.Deadline), req.Signature)
	if err != nil {
		ErrInvalidSignature.Withf("could not extract address from signature: %v", err).Write(w)
		return
	}

	round, err := a.ledger.CreateRound(owner, req.Name, req.Target, time.Unix(req.Deadline, 0))
	if err != nil {
		httpWriteLedgerError(w, err)
		return
	}
	httpWriteJSON(w, roundResponse(round))
}

// activeRound returns the currently open round
// GET /rounds/active
func (a *API) activeRound(w http.ResponseWriter, r *http.Request) {
	round, err := a.ledger.ActiveRound()
	if err != nil {
		httpWriteLedgerError(w, err)
		return
	}
	httpWriteJSON(w, roundResponse(round))
}

// round returns the stored round info, finalized or not
// GET /rounds/{roundId}
func (a *API) round(w http.ResponseWriter, r *http.Request) {
	id, err := urlParamUint64(r, RoundURLParam)
	if err != nil {
		ErrMalformedParam.WithErr(err).Write(w)
		return
	}
	round, err := a.ledger.Round(id)
	if err != nil {
		httpWriteLedgerError(w, err)
		return
	}
	httpWriteJSON(w, roundResponse(round))
}

// finalizeRound closes a round and sweeps the pooled funds to its owner
// POST /rounds/{roundId}/finalize
func (a *API) finalizeRound(w http.ResponseWriter, r *http.Request) {
	id, err := urlParamUint64(r, RoundURLParam)
	if err != nil {
		ErrMalformedParam.WithErr(err).Write(w)
		return
	}
	req := &FinalizeRequest{}
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		ErrMalformedBody.Withf("could not decode request body: %v", err).Write(w)
		return
	}
	caller, err := ethereum.AddrFromSignature(FinalizeMessage(id), req.Signature)
	if err != nil {
		ErrInvalidSignature.Withf("could not extract address from signature: %v", err).Write(w)
		return
	}

	payout, err := a.ledger.Finalize(caller, id)
	if err != nil {
		httpWriteLedgerError(w, err)
		return
	}
	httpWriteJSON(w, &FinalizeResponse{RoundID: id, Payout: payout})
}

// contribution returns the cumulative contribution of a principal in a round
// GET /rounds/{roundId}/contributions/{address}
func (a *API) contribution(w http.ResponseWriter, r *http.Request) {
	id, err := urlParamUint64(r, RoundURLParam)
	if err != nil {
		ErrMalformedParam.WithErr(err).Write(w)
		return
	}
	addr := chi.URLParam(r, AddressURLParam)
	if !common.IsHexAddress(addr) {
		ErrMalformedParam.Withf("invalid address %s", addr).Write(w)
		return
	}
	rec, err := a.ledger.Contribution(id, common.HexToAddress(addr))
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

func roundResponse(r *types.Round) *RoundResponse {
	return &RoundResponse{
		ID:        r.ID,
		Owner:     r.Owner,
		Name:      r.Name,
		Deadline:  r.Deadline,
		Target:    r.Target,
		Total:     r.Total,
		Finalized: r.Finalized,
	}
}

func urlParamUint64(r *http.Request, name string) (uint64, error) {
	return strconv.ParseUint(chi.URLParam(r, name), 10, 64)
}
