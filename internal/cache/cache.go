package cache

import "sync"

// Periodic caches a value that is expensive to read (thruster capacity, vessel mass)
// and refreshes it only every N ticks. Reads between refreshes return the cached value.
type Periodic[T any] struct {
	m       sync.Mutex
	every   int
	ticks   int
	loaded  bool
	value   T
	refresh func() T
}

// NewPeriodic returns a cache that calls refresh on first use and then every `every` ticks.
// every <= 1 refreshes on each tick.
func NewPeriodic[T any](every int, refresh func() T) *Periodic[T] {
	if every < 1 {
		every = 1
	}
	return &Periodic[T]{every: every, refresh: refresh}
}

// Tick advances the tick counter and returns the current value, refreshing it when due.
func (c *Periodic[T]) Tick() T {
	c.m.Lock()
	defer c.m.Unlock()
	if !c.loaded || c.ticks >= c.every {
		c.value = c.refresh()
		c.loaded = true
		c.ticks = 0
	}
	c.ticks++
	return c.value
}

// Get returns the cached value without advancing the counter.
func (c *Periodic[T]) Get() T {
	c.m.Lock()
	defer c.m.Unlock()
	if !c.loaded {
		c.value = c.refresh()
		c.loaded = true
	}
	return c.value
}

// Invalidate forces a refresh on the next Tick or Get.
func (c *Periodic[T]) Invalidate() {
	c.m.Lock()
	defer c.m.Unlock()
	c.loaded = false
	c.ticks = 0
}
