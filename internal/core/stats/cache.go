package stats

import (
	"sync/atomic"
	"time"

	v1 "github.com/aevon-lab/adselect/internal/api/v1"
)

// Cache holds the currently served Snapshot.
//
// Readers call Current once per request and use that reference to completion; Publish never
// waits for them and never touches the snapshot they hold.
type Cache struct {
	current atomic.Pointer[Snapshot]
	version atomic.Uint64
	opts    Options
}

// NewCache starts with an empty, unversioned snapshot so Current never returns nil.
func NewCache(opts Options) *Cache {
	c := &Cache{opts: opts}
	c.current.Store(NewSnapshot(nil, nil, time.Time{}, opts))
	return c
}

// Options returns the derivation options new snapshots should be built with.
func (c *Cache) Options() Options { return c.opts }

// Publish stamps the snapshot with the next version and swaps it in.
func (c *Cache) Publish(s *Snapshot) uint64 {
	s.version = c.version.Add(1)
	c.current.Store(s)
	return s.version
}

// Current returns the live snapshot. It never blocks.
func (c *Cache) Current() *Snapshot {
	return c.current.Load()
}

// ApplyDelta folds one impression into the live snapshot.
func (c *Cache) ApplyDelta(imp *v1.Impression) DeltaResult {
	return c.Current().Apply(imp)
}
