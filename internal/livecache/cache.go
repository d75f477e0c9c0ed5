// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package livecache stores the most recently resolved upstream URL per channel.
//
// Entries are never evicted. A failed refresh only clears the Live flag so that a
// stale but recent URL stays available to the relay as a best-effort fallback.
package livecache

import (
	"sort"
	"sync"
	"time"
)

// Entry is the cached resolution state of one channel.
type Entry struct {
	URL        string
	ResolvedAt time.Time
	Live       bool
}

// Stale reports whether the entry's most recent refresh failed.
func (e Entry) Stale() bool {
	return !e.Live
}

// Cache is a concurrent channel id to Entry map. Entries are stored by value, so a
// reader always observes a complete old or new entry.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// New creates an empty cache.
func New() *Cache {
	return &Cache{entries: make(map[string]Entry)}
}

// Get returns the entry for id. It never blocks on an in-flight resolution.
func (c *Cache) Get(id string) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[id]
	return e, ok
}

// Put replaces the entry for id.
func (c *Cache) Put(id string, e Entry) {
	c.mu.Lock()
	c.entries[id] = e
	c.mu.Unlock()
}

// MarkStale flips Live to false and keeps the previous URL.
// It returns false when id was never resolved; no entry is created in that case.
func (c *Cache) MarkStale(id string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[id]
	if !ok {
		return Entry{}, false
	}
	e.Live = false
	c.entries[id] = e
	return e, true
}

// Snapshot returns a copy of all entries.
func (c *Cache) Snapshot() map[string]Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]Entry, len(c.entries))
	for id, e := range c.entries {
		out[id] = e
	}
	return out
}

// IsLive reports whether id has an entry whose last refresh succeeded.
func (c *Cache) IsLive(id string) bool {
	e, ok := c.Get(id)
	return ok && e.Live
}

// LiveIDs returns the ids of all live entries, sorted.
func (c *Cache) LiveIDs() []string {
	c.mu.RLock()
	ids := make([]string, 0, len(c.entries))
	for id, e := range c.entries {
		if e.Live {
			ids = append(ids, id)
		}
	}
	c.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// Counts returns the number of live and stale entries.
func (c *Cache) Counts() (live, stale int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, e := range c.entries {
		if e.Live {
			live++
		} else {
			stale++
		}
	}
	return live, stale
}
