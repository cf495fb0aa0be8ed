// Package storage persists the campaign ledger artifacts in a prefixed
// key-value store. The following prefixes are used:
//   - 'r/' for rounds, keyed by their 8 byte big-endian id
//   - 'c/' for contribution records, keyed by round id plus contributor
//   - 'm/' for ledger metadata (active round id, last allocated round id)
//   - 'k/' for the ledger encryption key pair
//
// The ciphertext arena, the access grants, the balances and the operator
// table live in sibling prefixes of the same database, managed by their own
// packages; every public ledger operation stages all of its writes on a
// single WriteTx so they commit or discard together.
package storage

import (
	"errors"

	"go.vocdoni.io/dvote/db"
)

var (
	// Prefixes for the keys in the database.
	roundPrefix        = []byte("r/")
	contributionPrefix = []byte("c/")
	metaPrefix         = []byte("m/")
	keysPrefix         = []byte("k/")
)

// Metadata keys.
var (
	activeRoundKey = []byte("active")
	lastRoundKey   = []byte("last")
)

// ErrNotFound is returned when the requested artifact does not exist.
var ErrNotFound = errors.New("not found")

// Storage wraps the basic methods to interact with the campaign ledger
// persistence.
type Storage struct {
	db db.Database
}

// New creates a new Storage instance over the given database.
func New(database db.Database) *Storage {
	return &Storage{db: database}
}

// Close closes the underlying database.
func (s *Storage) Close() {
	_ = s.db.Close()
}

// Database returns the underlying database, so sibling components can
// manage their own prefixed sections and share write transactions.
func (s *Storage) Database() db.Database {
	return s.db
}
