package curves

import (
	"fmt"

	"github.com/confledger/confledger/crypto/ecc"
	"github.com/confledger/confledger/crypto/ecc/bn254"
)

const (
	// CurveTypeBN254 is the curve used by the ledger encryption keys.
	CurveTypeBN254 = "bn254"
)

// New creates a new instance of a curve Point implementation based on the
// provided type string. The supported types are defined as constants in
// this package. If the type is not supported, it panics.
func New(curveType string) ecc.Point {
	switch curveType {
	case CurveTypeBN254:
		return bn254.New()
	default:
		panic(fmt.Sprintf("unsupported curve type: %s", curveType))
	}
}
