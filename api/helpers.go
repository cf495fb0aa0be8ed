package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.vocdoni.io/dvote/log"

	"github.com/confledger/confledger/arena"
	"github.com/confledger/confledger/balances"
	"github.com/confledger/confledger/ledger"
)

// httpWriteJSON helper function allows to write a JSON response.
func httpWriteJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	jdata, err := json.Marshal(data)
	if err != nil {
		ErrMarshalingServerJSONFailed.WithErr(err).Write(w)
		return
	}
	n, err := w.Write(jdata)
	if err != nil {
		log.Warnw("failed to write http response", "error", err)
	}
	if _, err := w.Write([]byte("\n")); err != nil {
		log.Warnw("failed to write on response", "error", err)
	}
	log.Debugw("api response", "bytes", n, "data", strings.ReplaceAll(string(jdata), "\"", ""))
}

// httpWriteOK helper function allows to write an OK response.
func httpWriteOK(w http.ResponseWriter) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("\n")); err != nil {
		log.Warnw("failed to write on response", "error", err)
	}
}

// httpWriteLedgerError maps the ledger error taxonomy to API errors and
// writes the result.
func httpWriteLedgerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ledger.ErrRoundActive):
		ErrRoundAlreadyActive.Write(w)
	case errors.Is(err, ledger.ErrNoActiveRound):
		ErrNoActiveRound.Write(w)
	case errors.Is(err, ledger.ErrRoundNotFound):
		ErrRoundNotFound.Write(w)
	case errors.Is(err, ledger.ErrRoundClosed):
		ErrRoundClosed.Write(w)
	case errors.Is(err, ledger.ErrNotOwner):
		ErrUnauthorizedOwner.Write(w)
	case errors.Is(err, ledger.ErrInvalidConfig):
		ErrInvalidRoundConfig.Write(w)
	case errors.Is(err, ledger.ErrContributionNotFound):
		ErrContributionNotFound.Write(w)
	case errors.Is(err, ledger.ErrNotGranted):
		ErrNotGranted.Write(w)
	case errors.Is(err, arena.ErrInvalidProof):
		ErrProofInvalid.Write(w)
	case errors.Is(err, arena.ErrUnknownHandle):
		ErrUnknownCiphertext.Write(w)
	case errors.Is(err, balances.ErrNotOperator):
		ErrNotAuthorizedOperator.Write(w)
	default:
		ErrGenericInternalServerError.WithErr(err).Write(w)
	}
}
