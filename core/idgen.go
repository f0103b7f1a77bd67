package core

import (
	"sync/atomic"
	"time"
)

// IDGenerator hands out segment ids. Every call must return a value greater
// than the previous one for the lifetime of the store.
type IDGenerator interface {
	Next() uint64
}

// MonotonicIDGenerator derives ids from the wall clock in nanoseconds and
// falls back to last+1 whenever the clock has not moved forward, so ids stay
// strictly increasing even when several are taken within one clock tick or
// the clock steps backwards.
type MonotonicIDGenerator struct {
	last atomic.Uint64
	now  func() uint64
}

func NewMonotonicIDGenerator() *MonotonicIDGenerator {
	return &MonotonicIDGenerator{
		now: func() uint64 { return uint64(time.Now().UnixNano()) },
	}
}

func (g *MonotonicIDGenerator) Next() uint64 {
	for {
		last := g.last.Load()
		next := max(g.now(), last+1)
		if g.last.CompareAndSwap(last, next) {
			return next
		}
	}
}

// Observe raises the floor so that later ids are greater than id.
func (g *MonotonicIDGenerator) Observe(id uint64) {
	for {
		last := g.last.Load()
		if id <= last || g.last.CompareAndSwap(last, id) {
			return
		}
	}
}

// observer is implemented by generators that can be told about ids already
// present on disk.
type observer interface {
	Observe(id uint64)
}
