// Package cache is an in-process TTL cache for order and payment reads.
package cache

import (
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Store wraps go-cache with prefix invalidation.
type Store struct {
	c *gocache.Cache
}

// New returns a Store whose entries expire after defaultTTL unless Set is
// given its own ttl. Expired entries are purged every cleanup interval.
func New(defaultTTL, cleanup time.Duration) *Store {
	return &Store{c: gocache.New(defaultTTL, cleanup)}
}

func (s *Store) Get(key string) (any, bool) {
	return s.c.Get(key)
}

// Set stores value for ttl. A non-positive ttl uses the store default.
func (s *Store) Set(key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = gocache.DefaultExpiration
	}
	s.c.Set(key, value, ttl)
}

func (s *Store) Delete(key string) {
	s.c.Delete(key)
}

// DeleteByPrefix removes every live key starting with prefix.
func (s *Store) DeleteByPrefix(prefix string) {
	for key := range s.c.Items() {
		if strings.HasPrefix(key, prefix) {
			s.c.Delete(key)
		}
	}
}
