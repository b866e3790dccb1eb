// Package kv is the ordered key-value layer under the attempt history.
// Keys are string slices such as {"speakerid", "att", "20261016", ...},
// joined with a separator (':' by default) when stored.
//
// Badger persists the history between runs; Memory backs tests.
package kv

import (
	"context"
	"errors"
	"iter"
	"strings"
)

// Sentinel errors.
var (
	// ErrNotFound is returned when a key does not exist in the store.
	ErrNotFound = errors.New("kv: not found")
)

// Key is a hierarchical path. Key{"speakerid", "att", "20261016"} encodes to
// "speakerid:att:20261016" with the default separator. Segments must not
// contain the separator.
type Key []string

// String joins the key with ':' for display.
func (k Key) String() string {
	return strings.Join(k, ":")
}

// Entry is a key-value pair returned by List.
type Entry struct {
	Key   Key
	Value []byte
}

// Store is the interface for a key-value store with path-based keys.
type Store interface {
	// Get retrieves the value for a key. Returns ErrNotFound if not present.
	Get(ctx context.Context, key Key) ([]byte, error)

	// Set stores a key-value pair. Overwrites any existing value.
	Set(ctx context.Context, key Key, value []byte) error

	// Delete removes a key. No error if the key does not exist.
	Delete(ctx context.Context, key Key) error

	// List iterates over the entries under prefix in ascending encoded-key
	// order.
	List(ctx context.Context, prefix Key) iter.Seq2[Entry, error]

	// ListReverse is List in descending order. Time-ordered keys come back
	// newest first.
	ListReverse(ctx context.Context, prefix Key) iter.Seq2[Entry, error]

	// BatchDelete removes multiple keys in one write.
	BatchDelete(ctx context.Context, keys []Key) error

	// Close releases any resources held by the store.
	Close() error
}

// DefaultSeparator is the default separator byte used to encode key segments.
const DefaultSeparator byte = ':'

// Options configures store behavior.
type Options struct {
	// Separator is the byte used to join key segments when encoding to storage.
	// Default is ':' if zero.
	Separator byte
}

// sep returns the effective separator.
func (o *Options) sep() byte {
	if o != nil && o.Separator != 0 {
		return o.Separator
	}
	return DefaultSeparator
}

func (o *Options) encode(k Key) []byte {
	return []byte(strings.Join(k, string(o.sep())))
}

func (o *Options) decode(b []byte) Key {
	return Key(strings.Split(string(b), string(o.sep())))
}

// prefix returns the encoded scan prefix for p. A non-empty prefix ends with
// the separator so {"a","b"} does not match "a:bc". An empty prefix scans
// everything.
func (o *Options) prefix(p Key) []byte {
	if len(p) == 0 {
		return nil
	}
	return append(o.encode(p), o.sep())
}
