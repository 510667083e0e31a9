package stats

import (
	"math"
	"sync"
	"sync/atomic"
)

// cell is one (count, paid amount) counter pair. Each half is updated atomically on its own;
// a reader may observe the count of a delta before its amount.
type cell struct {
	count atomic.Int64
	paid  atomic.Uint64 // float64 bits
}

func (c *cell) add(n int64, paid float64) {
	c.count.Add(n)
	addFloat(&c.paid, paid)
}

func (c *cell) load() (int64, float64) {
	return c.count.Load(), math.Float64frombits(c.paid.Load())
}

func addFloat(u *atomic.Uint64, delta float64) {
	if delta == 0 {
		return
	}
	for {
		old := u.Load()
		next := math.Float64bits(math.Float64frombits(old) + delta)
		if u.CompareAndSwap(old, next) {
			return
		}
	}
}

// loadOrCreate returns the value stored under key, inserting fresh() on a miss.
// fresh is only called on a miss; a losing racer's value is discarded.
func loadOrCreate[T any](m *sync.Map, key any, fresh func() *T) *T {
	if v, ok := m.Load(key); ok {
		return v.(*T)
	}
	v, _ := m.LoadOrStore(key, fresh())
	return v.(*T)
}

// lookup returns the value stored under key, or nil. It never inserts.
func lookup[T any](m *sync.Map, key any) *T {
	if v, ok := m.Load(key); ok {
		return v.(*T)
	}
	return nil
}
