// Package storage is the key-value persistence layer behind the staking
// ledger. The daemon runs on Badger; tests run on the in-memory store.
package storage

// DB is what the ledger persists stake records and epochs through.
type DB interface {
	Get(key []byte) ([]byte, error)
	Put(key, value []byte) error
	Delete(key []byte) error
	Has(key []byte) (bool, error)
	// ForEach iterates over all keys with the given prefix.
	// The callback receives a copy of the key and value.
	// Return a non-nil error from fn to stop iteration early.
	ForEach(prefix []byte, fn func(key, value []byte) error) error
	Close() error
}
