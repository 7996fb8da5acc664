package signature

import (
	lru "github.com/hashicorp/golang-lru"
)

// DefaultCacheSize bounds the number of distinct signature strings a Cache keeps.
const DefaultCacheSize = 256

// Cache memoizes Parse for signature strings that arrive repeatedly on the wire.
// It is safe for concurrent use.
type Cache struct {
	entries *lru.Cache
}

// NewCache creates a cache holding at most size parsed signatures.
// A non-positive size selects DefaultCacheSize.
func NewCache(size int) (*Cache, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	entries, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &Cache{entries: entries}, nil
}

// Parse returns the cached signature for text, parsing and storing it on a miss.
// A nil Cache falls through to the package-level Parse.
func (c *Cache) Parse(text string) Signature {
	if c == nil {
		return Parse(text)
	}
	if v, ok := c.entries.Get(text); ok {
		return v.(Signature)
	}
	sig := Parse(text)
	c.entries.Add(text, sig)
	return sig
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	return c.entries.Len()
}
