// The substrate contract.
package trove

import "iter"

// FlatStore is a persistent string-keyed store. Get reports absence with
// ok == false; err is reserved for substrate failures. Implementations
// must be safe for concurrent use.
type FlatStore interface {
	Get(key string) (value string, ok bool, err error)
	Set(key, value string) error
	Remove(key string) error
}

// Lister is implemented by substrates that can enumerate their keys.
type Lister interface {
	Keys() iter.Seq2[string, error]
}
