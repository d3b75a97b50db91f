package store

import "strings"

// Key markers shared by every schema.
const (
	// MetadataKeyPrefix starts every non-block key in a single keyspace store.
	MetadataKeyPrefix = "#"

	// DeletingKeyPrefix marks a block that is pending deletion.
	DeletingKeyPrefix = "#deleting#"
)

// KeyFilter decides whether a container-local key takes part in a scan.
type KeyFilter interface {
	Filter(key string) bool
}

// KeyFilterFunc adapts a function to KeyFilter.
type KeyFilterFunc func(key string) bool

// Filter calls f(key).
func (f KeyFilterFunc) Filter(key string) bool { return f(key) }

// KeyPrefixFilter accepts keys that start with at least one positive prefix
// (or any key, when none is configured) and start with no negative prefix.
type KeyPrefixFilter struct {
	positive []string
	negative []string
}

// NewKeyPrefixFilter creates an empty filter that accepts every key.
func NewKeyPrefixFilter() *KeyPrefixFilter {
	return &KeyPrefixFilter{}
}

// AddFilter adds a prefix. Negative prefixes exclude matching keys.
func (f *KeyPrefixFilter) AddFilter(prefix string, negative bool) *KeyPrefixFilter {
	if negative {
		f.negative = append(f.negative, prefix)
	} else {
		f.positive = append(f.positive, prefix)
	}
	return f
}

// Filter implements KeyFilter.
func (f *KeyPrefixFilter) Filter(key string) bool {
	for _, p := range f.negative {
		if strings.HasPrefix(key, p) {
			return false
		}
	}
	if len(f.positive) == 0 {
		return true
	}
	for _, p := range f.positive {
		if strings.HasPrefix(key, p) {
			return true
		}
	}
	return false
}

// LiveBlockFilter accepts live block keys: every key without the "#" marker.
func LiveBlockFilter() KeyFilter {
	return NewKeyPrefixFilter().AddFilter(MetadataKeyPrefix, true)
}

// DeletingBlockFilter accepts keys of blocks pending deletion.
func DeletingBlockFilter() KeyFilter {
	return NewKeyPrefixFilter().AddFilter(DeletingKeyPrefix, false)
}

// DeletingKey returns the pending-delete key for a live block key.
func DeletingKey(localKey string) string {
	return DeletingKeyPrefix + localKey
}

func passes(key string, filters []KeyFilter) bool {
	for _, f := range filters {
		if f != nil && !f.Filter(key) {
			return false
		}
	}
	return true
}
