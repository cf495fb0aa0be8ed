package types

import (
	"fmt"
	"math/big"

	"github.com/fxamacker/cbor/v2"
)

// BigInt is a big.Int wrapper which marshals JSON to a string representation
// of the big number. Note that a nil pointer value marshals as the empty
// string.
type BigInt big.Int

// MarshalText returns the decimal string representation.
func (i *BigInt) MarshalText() ([]byte, error) {
	if i == nil {
		return []byte(""), nil
	}
	return i.MathBigInt().MarshalText()
}

// UnmarshalText parses a decimal string representation.
func (i *BigInt) UnmarshalText(data []byte) error {
	if err := (*big.Int)(i).UnmarshalText(data); err != nil {
		return fmt.Errorf("invalid big number %q: %w", data, err)
	}
	return nil
}

// MarshalCBOR encodes the number as a CBOR bignum.
func (i *BigInt) MarshalCBOR() ([]byte, error) {
	if i == nil {
		return cbor.Marshal(nil)
	}
	return cbor.Marshal(i.MathBigInt())
}

// UnmarshalCBOR decodes a CBOR bignum.
func (i *BigInt) UnmarshalCBOR(data []byte) error {
	v := new(big.Int)
	if err := cbor.Unmarshal(data, v); err != nil {
		return err
	}
	(*big.Int)(i).Set(v)
	return nil
}

// String returns the decimal string representation.
func (i *BigInt) String() string {
	return i.MathBigInt().String()
}

// SetUint64 sets the value to v and returns i.
func (i *BigInt) SetUint64(v uint64) *BigInt {
	return (*BigInt)((*big.Int)(i).SetUint64(v))
}

// MathBigInt converts b to a math/big *big.Int.
func (i *BigInt) MathBigInt() *big.Int {
	return (*big.Int)(i)
}
