package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPeriodic_RefreshesEveryN(t *testing.T) {
	calls := 0
	c := NewPeriodic(3, func() int {
		calls++
		return calls * 10
	})

	got := make([]int, 0, 7)
	for i := 0; i < 7; i++ {
		got = append(got, c.Tick())
	}

	assert.Equal(t, []int{10, 10, 10, 20, 20, 20, 30}, got)
	assert.Equal(t, 3, calls)
}

func TestPeriodic_GetDoesNotAdvance(t *testing.T) {
	calls := 0
	c := NewPeriodic(2, func() int {
		calls++
		return calls
	})

	assert.Equal(t, 1, c.Get())
	assert.Equal(t, 1, c.Get())
	assert.Equal(t, 1, c.Tick())
	assert.Equal(t, 1, c.Tick())
	assert.Equal(t, 2, c.Tick())
	assert.Equal(t, 2, calls)
}

func TestPeriodic_Invalidate(t *testing.T) {
	calls := 0
	c := NewPeriodic(100, func() int {
		calls++
		return calls
	})

	assert.Equal(t, 1, c.Tick())
	c.Invalidate()
	assert.Equal(t, 2, c.Tick())
	assert.Equal(t, 2, c.Tick())
}

func TestPeriodic_ZeroIntervalRefreshesEachTick(t *testing.T) {
	calls := 0
	c := NewPeriodic(0, func() int {
		calls++
		return calls
	})

	c.Tick()
	c.Tick()
	c.Tick()
	assert.Equal(t, 3, calls)
}
