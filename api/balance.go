package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"

	"github.com/confledger/confledger/arena"
	"github.com/confledger/confledger/crypto/ethereum"
)

// mint credits a principal with a fresh encryption of a known amount
// POST /mint
func (a *API) mint(w http.ResponseWriter, r *http.Request) {
	req := &MintRequest{}
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		ErrMalformedBody.Withf("could not decode request body: %v", err).Write(w)
		return
	}
	if req.Amount > arena.MaxMessage {
		ErrAmountOutOfRange.Withf("amount %d", req.Amount).Write(w)
		return
	}
	minter, err := ethereum.AddrFromSignature(MintMessage(req.To, req.Amount), req.Signature)
	if err != nil {
		ErrInvalidSignature.Withf("could not extract address from signature: %v", err).Write(w)
		return
	}
	if minter != a.ledger.Address() {
		ErrUnauthorizedMinter.Withf("minter %s", minter.Hex()).Write(w)
		return
	}
	newBalance, err := a.ledger.Mint(req.To, req.Amount)
	if err != nil {
		httpWriteLedgerError(w, err)
		return
	}
	ciphertext, err := a.ledger.Ciphertext(newBalance)
	if err != nil {
		httpWriteLedgerError(w, err)
		return
	}
	httpWriteJSON(w, &BalanceResponse{
		Address:    req.To,
		Balance:    newBalance,
		Ciphertext: ciphertext,
	})
}

// balance returns the encrypted balance of a principal
// GET /balances/{address}
func (a *API) balance(w http.ResponseWriter, r *http.Request) {
	addr := chi.URLParam(r, AddressURLParam)
	if !common.IsHexAddress(addr) {
		ErrMalformedParam.Withf("invalid address %s", addr).Write(w)
		return
	}
	h, err := a.ledger.BalanceOf(common.HexToAddress(addr))
	if err != nil {
		httpWriteLedgerError(w, err)
		return
	}
	if h.IsZero() {
		ErrBalanceNotInitialized.Withf("address %s", addr).Write(w)
		return
	}
	ciphertext, err := a.ledger.Ciphertext(h)
	if err != nil {
		httpWriteLedgerError(w, err)
		return
	}
	httpWriteJSON(w, &BalanceResponse{
		Address:    common.HexToAddress(addr),
		Balance:    h,
		Ciphertext: ciphertext,
	})
}

// setOperator authorizes an operator on the caller's balance
// POST /operators
func (a *API) setOperator(w http.ResponseWriter, r *http.Request) {
	req := &OperatorRequest{}
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		ErrMalformedBody.Withf("could not decode request body: %v", err).Write(w)
		return
	}
	owner, err := ethereum.AddrFromSignature(
		SetOperatorMessage(req.Operator, req.Until), req.Signature)
	if err != nil {
		ErrInvalidSignature.Withf("could not extract address from signature: %v", err).Write(w)
		return
	}
	if err := a.ledger.SetOperator(owner, req.Operator, time.Unix(req.Until, 0)); err != nil {
		httpWriteLedgerError(w, err)
		return
	}
	httpWriteOK(w)
}

// decrypt reveals the plaintext of a granted handle to its requester
// POST /decrypt
func (a *API) decrypt(w http.ResponseWriter, r *http.Request) {
	req := &DecryptRequest{}
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		ErrMalformedBody.Withf("could not decode request body: %v", err).Write(w)
		return
	}
	principal, err := ethereum.AddrFromSignature(RevealMessage(req.Handle), req.Signature)
	if err != nil {
		ErrInvalidSignature.Withf("could not extract address from signature: %v", err).Write(w)
		return
	}
	value, err := a.ledger.Reveal(principal, req.Handle)
	if err != nil {
		httpWriteLedgerError(w, err)
		return
	}
	httpWriteJSON(w, &DecryptResponse{Handle: req.Handle, Value: value})
}
