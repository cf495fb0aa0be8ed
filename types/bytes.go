package types

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// HexBytes is a []byte which encodes as hexadecimal in json, as opposed to
// the base64 default. The "0x" prefix is accepted when decoding and omitted
// when encoding.
type HexBytes []byte

// HexStringToHexBytes decodes an hex string (with or without the "0x"
// prefix) into a HexBytes. It panics on invalid input, so it is meant for
// testing and constant initialization.
func HexStringToHexBytes(s string) HexBytes {
	b, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		panic(fmt.Sprintf("invalid hex string %q: %v", s, err))
	}
	return b
}

// String returns the hexadecimal representation without prefix.
func (b HexBytes) String() string {
	return hex.EncodeToString(b)
}

// ParseString decodes an hex string into b, accepting the "0x" prefix.
func (b *HexBytes) ParseString(s string) error {
	s = strings.TrimPrefix(s, "0x")
	var err error
	*b, err = hex.DecodeString(s)
	return err
}

func (b HexBytes) MarshalJSON() ([]byte, error) {
	enc := make([]byte, hex.EncodedLen(len(b))+2)
	enc[0] = '"'
	hex.Encode(enc[1:], b)
	enc[len(enc)-1] = '"'
	return enc, nil
}

func (b *HexBytes) UnmarshalJSON(data []byte) error {
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return fmt.Errorf("invalid JSON string: %q", data)
	}
	data = data[1 : len(data)-1]
	// strip the optional "0x" prefix
	if len(data) >= 2 && data[0] == '0' && (data[1] == 'x' || data[1] == 'X') {
		data = data[2:]
	}
	decoded := make([]byte, hex.DecodedLen(len(data)))
	if _, err := hex.Decode(decoded, data); err != nil {
		return err
	}
	*b = decoded
	return nil
}
