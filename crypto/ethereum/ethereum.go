// Package ethereum provides the secp256k1 signing identities used to
// authenticate principals: every request that mutates ledger state or asks
// for a decryption carries an Ethereum-style signature, and the signer
// address recovered from it is the principal the operation applies to.
package ethereum

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// SignatureLength is the size in bytes of an ECDSA signature with recovery id.
const SignatureLength = 65

// SignKeys is an ECDSA key pair on the secp256k1 curve.
type SignKeys struct {
	Public  ecdsa.PublicKey
	Private ecdsa.PrivateKey
}

// NewSignKeys creates an empty SignKeys. Use Generate or AddHexKey to
// populate it.
func NewSignKeys() *SignKeys {
	return &SignKeys{}
}

// Generate creates a fresh random key pair.
func (k *SignKeys) Generate() error {
	key, err := ethcrypto.GenerateKey()
	if err != nil {
		return fmt.Errorf("could not generate key: %w", err)
	}
	k.Private = *key
	k.Public = key.PublicKey
	return nil
}

// AddHexKey imports a private key out of an hex string, with or without
// the "0x" prefix.
func (k *SignKeys) AddHexKey(privHex string) error {
	key, err := ethcrypto.HexToECDSA(strings.TrimPrefix(privHex, "0x"))
	if err != nil {
		return fmt.Errorf("could not import hex key: %w", err)
	}
	k.Private = *key
	k.Public = key.PublicKey
	return nil
}

// HexString returns the compressed public key and the private key as hex
// strings, without prefix.
func (k *SignKeys) HexString() (string, string) {
	pub := hex.EncodeToString(k.PublicKey())
	priv := hex.EncodeToString(ethcrypto.FromECDSA(&k.Private))
	return pub, priv
}

// PublicKey returns the compressed public key.
func (k *SignKeys) PublicKey() []byte {
	return ethcrypto.CompressPubkey(&k.Public)
}

// Address returns the Ethereum address derived from the public key.
func (k *SignKeys) Address() common.Address {
	return ethcrypto.PubkeyToAddress(k.Public)
}

// AddressString returns the checksummed hex representation of the address.
func (k *SignKeys) AddressString() string {
	return k.Address().String()
}

// SignEthereum signs the message with the Ethereum Signed Message prefix
// and returns the 65 byte signature.
func (k *SignKeys) SignEthereum(message []byte) ([]byte, error) {
	if k.Private.D == nil {
		return nil, fmt.Errorf("no private key available")
	}
	return ethcrypto.Sign(HashEthereum(message), &k.Private)
}

// HashRaw hashes data with keccak256, without any prefix.
func HashRaw(data []byte) []byte {
	return ethcrypto.Keccak256(data)
}

// HashEthereum hashes data prefixed with the Ethereum Signed Message header,
// the same scheme wallets use for personal signatures.
func HashEthereum(data []byte) []byte {
	prefix := fmt.Sprintf("\x19Ethereum Signed Message:\n%d", len(data))
	return HashRaw(append([]byte(prefix), data...))
}

// AddrFromPublicKey standalone function to obtain the Ethereum address from
// a compressed or uncompressed ECDSA public key.
func AddrFromPublicKey(pub []byte) (common.Address, error) {
	var key *ecdsa.PublicKey
	var err error
	switch len(pub) {
	case 33:
		key, err = ethcrypto.DecompressPubkey(pub)
	case 65:
		key, err = ethcrypto.UnmarshalPubkey(pub)
	default:
		return common.Address{}, fmt.Errorf("invalid public key length %d", len(pub))
	}
	if err != nil {
		return common.Address{}, fmt.Errorf("could not parse public key: %w", err)
	}
	return ethcrypto.PubkeyToAddress(*key), nil
}

// AddrFromSignature recovers the address of the signer of message. The
// signature must be over the Ethereum Signed Message hash of the message.
func AddrFromSignature(message, signature []byte) (common.Address, error) {
	if len(signature) != SignatureLength {
		return common.Address{}, fmt.Errorf("invalid signature length %d", len(signature))
	}
	sig := make([]byte, SignatureLength)
	copy(sig, signature)
	// normalize the recovery id, wallets add 27 to it
	if sig[64] >= 27 {
		sig[64] -= 27
	}
	pub, err := ethcrypto.SigToPub(HashEthereum(message), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("could not recover public key: %w", err)
	}
	return ethcrypto.PubkeyToAddress(*pub), nil
}
