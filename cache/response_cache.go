// Package cache holds the process-local response cache of the legal
// analysis pipeline.
package cache

import (
	"container/list"
	"strconv"
	"sync"
	"time"

	"legalmatch-backend/models"
)

// TTL is how long a stored analysis stays fresh
const TTL = 24 * time.Hour

// Clock supplies the current time so freshness can be tested
type Clock interface {
	Now() time.Time
}

// SystemClock uses time.Now
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// Key identifies a cached analysis. It is compared structurally as a map
// key, so a field containing any separator cannot collide with another
// tuple.
type Key struct {
	Type     string
	Subclass string
	Query    string
	Language string
}

// NewKey builds the key for a (type, subclass, query, language) tuple. The
// raw caller values are used as given.
func NewKey(legalType, subclass, query, language string) Key {
	return Key{Type: legalType, Subclass: subclass, Query: query, Language: language}
}

// String renders the key with every field quoted, which keeps distinct
// tuples distinct.
func (k Key) String() string {
	return strconv.Quote(k.Type) + "|" + strconv.Quote(k.Subclass) + "|" +
		strconv.Quote(k.Query) + "|" + strconv.Quote(k.Language)
}

type entry struct {
	key      Key
	data     *models.AnalysisResult
	storedAt time.Time
}

// ResponseCache is a concurrency safe TTL map of analysis results.
// Expired entries are evaluated lazily on lookup. Entries are also kept in
// write order, so the size ceiling drops expired entries and then the
// least recently written one without scanning the map.
type ResponseCache struct {
	mu         sync.RWMutex
	entries    map[Key]*list.Element
	order      *list.List
	ttl        time.Duration
	maxEntries int
	clock      Clock
}

// Option configures a ResponseCache
type Option func(*ResponseCache)

// WithClock sets the clock used for freshness checks
func WithClock(clock Clock) Option {
	return func(c *ResponseCache) {
		c.clock = clock
	}
}

// WithMaxEntries bounds the number of stored entries; zero means unbounded
func WithMaxEntries(n int) Option {
	return func(c *ResponseCache) {
		c.maxEntries = n
	}
}

// New creates a response cache with the fixed 24 hour TTL
func New(opts ...Option) *ResponseCache {
	c := &ResponseCache{
		entries: make(map[Key]*list.Element),
		order:   list.New(),
		ttl:     TTL,
		clock:   SystemClock{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns a copy of the stored result if it is still fresh
func (c *ResponseCache) Get(key Key) (*models.AnalysisResult, bool) {
	c.mu.RLock()
	el, ok := c.entries[key]
	var e entry
	if ok {
		e = *el.Value.(*entry)
	}
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if c.clock.Now().Sub(e.storedAt) >= c.ttl {
		return nil, false
	}
	return e.data.Clone(), true
}

// Set stores value under key, overwriting any previous entry
func (c *ResponseCache) Set(key Key, value *models.AnalysisResult) {
	now := c.clock.Now()
	data := value.Clone()

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, exists := c.entries[key]; exists {
		e := el.Value.(*entry)
		e.data, e.storedAt = data, now
		c.order.MoveToBack(el)
		return
	}
	if c.maxEntries > 0 && len(c.entries) >= c.maxEntries {
		c.evictLocked(now)
	}
	c.entries[key] = c.order.PushBack(&entry{key: key, data: data, storedAt: now})
}

// Len returns the number of stored entries, fresh or not
func (c *ResponseCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// evictLocked makes room for one entry. The front of order is the least
// recently written entry, so expired entries are all at the front.
func (c *ResponseCache) evictLocked(now time.Time) {
	for el := c.order.Front(); el != nil; el = c.order.Front() {
		e := el.Value.(*entry)
		if now.Sub(e.storedAt) < c.ttl && len(c.entries) < c.maxEntries {
			return
		}
		c.order.Remove(el)
		delete(c.entries, e.key)
		if now.Sub(e.storedAt) < c.ttl {
			return
		}
	}
}
