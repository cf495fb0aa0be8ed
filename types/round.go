package types

import (
	"encoding/json"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Handle references one encrypted value stored in the ciphertext arena.
// Handles are immutable: every homomorphic operation allocates a new one.
// The zero handle is the uninitialized sentinel and is never allocated;
// callers must coerce it to an encrypted zero before arithmetic.
type Handle uint64

// IsZero reports whether h is the uninitialized sentinel.
func (h Handle) IsZero() bool { return h == 0 }

// Round is one bounded aggregation episode. It accepts contributions while
// the deadline has not passed and it has not been finalized; on finalize its
// pooled balance is swept to the owner. Target and Total are opaque
// encrypted values, only their decryption is access controlled.
type Round struct {
	ID        uint64         `json:"id"`
	Owner     common.Address `json:"owner"`
	Name      string         `json:"name"`
	Deadline  time.Time      `json:"deadline"`
	Target    Handle         `json:"target"`
	Total     Handle         `json:"total"`
	Finalized bool           `json:"finalized"`
}

func (r *Round) String() string {
	data, err := json.Marshal(r)
	if err != nil {
		return ""
	}
	return string(data)
}

// ContributionRecord tracks the cumulative encrypted amount contributed by
// one principal to one round. The cumulative handle is replaced, never
// mutated, every time a new contribution is folded in.
type ContributionRecord struct {
	RoundID     uint64         `json:"roundId"`
	Contributor common.Address `json:"contributor"`
	Cumulative  Handle         `json:"cumulative"`
}

const (
	// RoundNameMaxLen is the maximum length of a round display name.
	RoundNameMaxLen = 256
)
