// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package livecache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_GetMissing(t *testing.T) {
	c := New()
	_, ok := c.Get("nope")
	assert.False(t, ok)
	assert.False(t, c.IsLive("nope"))
}

func TestCache_MarkStalePreservesURL(t *testing.T) {
	c := New()
	at := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c.Put("chan2", Entry{URL: "http://y/b.m3u8", ResolvedAt: at, Live: true})

	e, ok := c.MarkStale("chan2")
	require.True(t, ok)
	assert.False(t, e.Live)
	assert.True(t, e.Stale())
	assert.Equal(t, "http://y/b.m3u8", e.URL)
	assert.Equal(t, at, e.ResolvedAt)

	got, ok := c.Get("chan2")
	require.True(t, ok)
	assert.Equal(t, e, got)
}

func TestCache_MarkStaleNeverResolved(t *testing.T) {
	c := New()
	_, ok := c.MarkStale("chan2")
	assert.False(t, ok)

	_, ok = c.Get("chan2")
	assert.False(t, ok, "a failed first resolution must not create an entry")
}

func TestCache_LiveIDsAndCounts(t *testing.T) {
	c := New()
	c.Put("b", Entry{URL: "u", Live: true})
	c.Put("a", Entry{URL: "u", Live: true})
	c.Put("c", Entry{URL: "u", Live: false})

	assert.Equal(t, []string{"a", "b"}, c.LiveIDs())
	live, stale := c.Counts()
	assert.Equal(t, 2, live)
	assert.Equal(t, 1, stale)

	snap := c.Snapshot()
	assert.Len(t, snap, 3)
	snap["a"] = Entry{}
	assert.True(t, c.IsLive("a"), "snapshot must be a copy")
}

func TestCache_ConcurrentReadersSeeWholeEntries(t *testing.T) {
	c := New()
	c.Put("x", Entry{URL: "gen-0", Live: true})

	var wg sync.WaitGroup
	stop := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 1; i <= 500; i++ {
			c.Put("x", Entry{URL: fmt.Sprintf("gen-%d", i), Live: i%2 == 0})
		}
		close(stop)
	}()

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				e, ok := c.Get("x")
				if !ok || e.URL == "" {
					t.Errorf("observed partial entry: %+v", e)
					return
				}
			}
		}()
	}
	wg.Wait()
}
