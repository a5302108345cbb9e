// Copyright (c) Elliot Nunn
// Licensed under the MIT license

// Package archivecache keeps recently and frequently used parsed archives in memory,
// so that a long-running server does not extract the same file on every request.
package archivecache

import (
	"context"
	"fmt"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/dgryski/go-tinylfu"
	"github.com/elliotnunn/memzip/internal/zip"
	"golang.org/x/sync/singleflight"
)

// Key fingerprints whatever identifies an archive on disk,
// typically its path, size, modification time and inode number.
// Anything that changes when the file changes belongs in the key.
func Key(parts ...any) uint64 {
	d := xxhash.New()
	for _, p := range parts {
		fmt.Fprintf(d, "%v\x00", p)
	}
	return d.Sum64()
}

// A Cache is safe for concurrent use by multiple goroutines.
type Cache struct {
	mu      sync.Mutex
	lfu     *tinylfu.T[uint64, *zip.Archive]
	flight  singleflight.Group
	loads   int
	evicted int
}

// New makes a cache holding at most n archives.
func New(n int) *Cache {
	n = max(n, 1)
	c := new(Cache)
	c.lfu = tinylfu.New[uint64, *zip.Archive](n, n*10, identity,
		tinylfu.OnEvict(func(uint64, *zip.Archive) { c.evicted++ })) // called under c.mu
	return c
}

// keys are already hashes
func identity(k uint64) uint64 { return k }

// Get returns the archive cached under key, calling load on a miss.
// Concurrent misses on one key share a single call to load.
// Failed loads are not remembered.
// If ctx ends first, Get returns its error but the load carries on for the others.
func (c *Cache) Get(ctx context.Context, key uint64, load func() (*zip.Archive, error)) (*zip.Archive, error) {
	c.mu.Lock()
	a, ok := c.lfu.Get(key)
	c.mu.Unlock()
	if ok {
		return a, nil
	}

	ch := c.flight.DoChan(fmt.Sprint(key), func() (any, error) {
		a, err := load()
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.lfu.Add(key, a)
		c.loads++
		c.mu.Unlock()
		return a, nil
	})

	select {
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Val.(*zip.Archive), nil
	case <-ctx.Done():
		return nil, context.Cause(ctx)
	}
}

// Stats reports how many archives were loaded and how many dropped since New.
func (c *Cache) Stats() (loads, evicted int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loads, c.evicted
}
