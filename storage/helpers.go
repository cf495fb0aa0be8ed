package storage

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"go.vocdoni.io/dvote/db"
	"go.vocdoni.io/dvote/db/prefixeddb"
)

// Artifact encoding/decoding
func encodeArtifact(a any) ([]byte, error) {
	encOpts := cbor.CoreDetEncOptions()
	em, err := encOpts.EncMode()
	if err != nil {
		return nil, fmt.Errorf("encode artifact: %w", err)
	}
	return em.Marshal(a)
}

func decodeArtifact(data []byte, out any) error {
	return cbor.Unmarshal(data, out)
}

// getArtifact reads and decodes an artifact from the given prefix. It
// returns ErrNotFound if the key does not exist.
func (s *Storage) getArtifact(prefix, key []byte, out any) error {
	rd := prefixeddb.NewPrefixedReader(s.db, prefix)
	data, err := rd.Get(key)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("get artifact: %w", err)
	}
	return decodeArtifact(data, out)
}

// setArtifact encodes and stages an artifact write on the given transaction
// under the given prefix. The caller owns the transaction and its commit.
func (s *Storage) setArtifact(wTx db.WriteTx, prefix, key []byte, a any) error {
	data, err := encodeArtifact(a)
	if err != nil {
		return err
	}
	return prefixeddb.NewPrefixedWriteTx(wTx, prefix).Set(key, data)
}

// roundKey returns the key of a round artifact.
func roundKey(id uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, id)
	return key
}
