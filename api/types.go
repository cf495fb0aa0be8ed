package api

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/confledger/confledger/types"
)

// RoundRequest is the request to open a new aggregation round. The owner is
// recovered from the signature over CreateRoundMessage.
type RoundRequest struct {
	Name      string         `json:"name"`
	Target    uint64         `json:"target"`
	Deadline  int64          `json:"deadline"` // unix seconds
	Signature types.HexBytes `json:"signature"`
}

// RoundResponse is the public view of a round. Target and Total are opaque
// ciphertext handles; their plaintexts require a decryption grant.
type RoundResponse struct {
	ID        uint64         `json:"id"`
	Owner     common.Address `json:"owner"`
	Name      string         `json:"name"`
	Deadline  time.Time      `json:"deadline"`
	Target    types.Handle   `json:"target"`
	Total     types.Handle   `json:"total"`
	Finalized bool           `json:"finalized"`
}

// ContributionRequest is the request to contribute an externally encrypted
// amount to the active round. The contributor is recovered from the
// signature over ContributeMessage, the same identity the proof is bound to.
type ContributionRequest struct {
	Ciphertext types.HexBytes `json:"ciphertext"`
	Proof      types.HexBytes `json:"proof"`
	Signature  types.HexBytes `json:"signature"`
}

// ContributionResponse is the stored cumulative contribution of a principal
// in a round.
type ContributionResponse struct {
	RoundID     uint64         `json:"roundId"`
	Contributor common.Address `json:"contributor"`
	Cumulative  types.Handle   `json:"cumulative"`
}

// FinalizeRequest closes a round. The caller is recovered from the
// signature over FinalizeMessage and must be the round owner.
type FinalizeRequest struct {
	Signature types.HexBytes `json:"signature"`
}

// FinalizeResponse returns the payout handle swept into the owner balance.
type FinalizeResponse struct {
	RoundID uint64       `json:"roundId"`
	Payout  types.Handle `json:"payout"`
}

// OperatorRequest authorizes an operator on the caller's balance until the
// given time. The owner is recovered from the signature over
// SetOperatorMessage.
type OperatorRequest struct {
	Operator  common.Address `json:"operator"`
	Until     int64          `json:"until"` // unix seconds
	Signature types.HexBytes `json:"signature"`
}

// MintRequest credits a principal with a fresh encryption of the amount.
// The minter is recovered from the signature over MintMessage and must be
// the ledger identity itself.
type MintRequest struct {
	To        common.Address `json:"to"`
	Amount    uint64         `json:"amount"`
	Signature types.HexBytes `json:"signature"`
}

// BalanceResponse is the encrypted balance of a principal: its handle and
// the serialized ciphertext it references.
type BalanceResponse struct {
	Address    common.Address `json:"address"`
	Balance    types.Handle   `json:"balance"`
	Ciphertext types.HexBytes `json:"ciphertext"`
}

// DecryptRequest asks for the plaintext of a handle. The principal is
// recovered from the signature over RevealMessage and must hold a grant.
type DecryptRequest struct {
	Handle    types.Handle   `json:"handle"`
	Signature types.HexBytes `json:"signature"`
}

// DecryptResponse is the revealed plaintext of a granted handle.
type DecryptResponse struct {
	Handle types.Handle `json:"handle"`
	Value  uint64       `json:"value"`
}

// InfoResponse identifies the ledger instance: the address contributions
// must authorize as operator, and the key to encrypt amounts towards.
type InfoResponse struct {
	Address          common.Address   `json:"address"`
	EncryptionPubKey [2]*types.BigInt `json:"encryptionPubKey"`
}

// CreateRoundMessage returns the message a round owner signs to open a
// round with the given parameters.
func CreateRoundMessage(name string, target uint64, deadline int64) []byte {
	return fmt.Appendf(nil, "createRound%s%d%d", name, target, deadline)
}

// ContributeMessage returns the message a contributor signs over its
// encrypted contribution and proof.
func ContributeMessage(ciphertext, proof types.HexBytes) []byte {
	msg := append([]byte("contribute"), ciphertext...)
	return append(msg, proof...)
}

// FinalizeMessage returns the message a round owner signs to finalize the
// round.
func FinalizeMessage(roundID uint64) []byte {
	return fmt.Appendf(nil, "finalizeRound%d", roundID)
}

// MintMessage returns the message the ledger identity signs to credit a
// principal with a fresh encryption of the amount.
func MintMessage(to common.Address, amount uint64) []byte {
	return fmt.Appendf(nil, "mint%s%d", to.Hex(), amount)
}

// SetOperatorMessage returns the message a balance owner signs to authorize
// an operator until the given unix time.
func SetOperatorMessage(operator common.Address, until int64) []byte {
	return fmt.Appendf(nil, "setOperator%s%d", operator.Hex(), until)
}

// RevealMessage returns the message a principal signs to request the
// plaintext of a handle.
func RevealMessage(h types.Handle) []byte {
	return fmt.Appendf(nil, "reveal%d", h)
}
