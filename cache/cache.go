// Package cache keeps recent element responses in memory so repeated
// requests for the same page can skip the browser.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"sync"
	"time"

	"github.com/use-agent/domprobe/models"
)

const (
	// retention is how long an entry is kept regardless of max_age.
	retention       = time.Hour
	cleanupInterval = 5 * time.Minute
)

type entry struct {
	response  *models.ElementsResponse
	createdAt time.Time
}

// Cache is an in-memory store of successful elements responses.
// It is safe for concurrent use.
type Cache struct {
	mu         sync.RWMutex
	store      map[string]*entry
	maxEntries int

	now  func() time.Time
	stop chan struct{}
	once sync.Once
}

// New creates a Cache holding at most maxEntries responses and starts the
// background sweep of entries older than an hour. Close stops it.
func New(maxEntries int) *Cache {
	if maxEntries < 1 {
		maxEntries = 1
	}
	c := &Cache{
		store:      make(map[string]*entry),
		maxEntries: maxEntries,
		now:        time.Now,
		stop:       make(chan struct{}),
	}

	go c.cleanupLoop()
	return c
}

// Key identifies a session by every request option that changes its output.
// Timeout, max_age and webhook settings are not part of it. A nil Inject
// counts as true, matching ElementsRequest.Defaults.
func Key(req models.ElementsRequest) string {
	inject := req.Inject == nil || *req.Inject
	h := sha256.New()
	for _, part := range []string{
		req.URL,
		req.WaitStrategy,
		strconv.FormatBool(inject),
		strconv.FormatBool(req.TagSummary),
		strconv.FormatBool(req.CompareStatic),
		strconv.FormatBool(req.Stealth),
	} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns the cached response for key if it is younger than maxAgeMs
// milliseconds. maxAgeMs <= 0 disables the lookup.
func (c *Cache) Get(key string, maxAgeMs int) (*models.ElementsResponse, bool) {
	if maxAgeMs <= 0 {
		return nil, false
	}

	c.mu.RLock()
	e, ok := c.store[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}

	if c.now().Sub(e.createdAt) > time.Duration(maxAgeMs)*time.Millisecond {
		return nil, false
	}
	return e.response, true
}

// Set stores resp under key. At capacity an arbitrary entry is evicted.
func (c *Cache) Set(key string, resp *models.ElementsResponse) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.store[key]; !exists && len(c.store) >= c.maxEntries {
		for k := range c.store {
			delete(c.store, k)
			break
		}
	}

	c.store[key] = &entry{
		response:  resp,
		createdAt: c.now(),
	}
}

// Len returns the number of stored entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.store)
}

// Close stops the background sweep.
func (c *Cache) Close() {
	c.once.Do(func() { close(c.stop) })
}

func (c *Cache) cleanupLoop() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

// sweep drops entries older than retention.
func (c *Cache) sweep() {
	cutoff := c.now().Add(-retention)
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range c.store {
		if e.createdAt.Before(cutoff) {
			delete(c.store, k)
		}
	}
}
