package thrust

import (
	"testing"

	"github.com/orbitkit/autopilot/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeThruster records the last command it received
type fakeThruster struct {
	max     float64
	working bool
	enabled bool
	ratio   float64
	force   float64
	// ratioAtDisable is the override ratio seen when SetEnabled(false) was called
	ratioAtDisable float64
}

func newFake(max float64) *fakeThruster {
	return &fakeThruster{max: max, working: true, enabled: true}
}

func (f *fakeThruster) MaxEffectiveThrust() float64 { return f.max }
func (f *fakeThruster) IsWorking() bool             { return f.working }
func (f *fakeThruster) SetEnabled(on bool) {
	if !on {
		f.ratioAtDisable = f.ratio
	}
	f.enabled = on
}
func (f *fakeThruster) SetOverrideRatio(r float64) { f.ratio = r; f.force = r * f.max }
func (f *fakeThruster) SetOverrideForce(n float64) {
	f.force = n
	if f.max > 0 {
		f.ratio = n / f.max
	}
}
func (f *fakeThruster) OverrideRatio() float64 { return f.ratio }

func newTestAllocator(t *testing.T, maxRatio float64) (*Allocator, map[core.Direction][]*fakeThruster) {
	t.Helper()
	fakes := map[core.Direction][]*fakeThruster{}
	groups := Groups{}
	for _, dir := range core.Directions {
		a, b := newFake(1000), newFake(500)
		fakes[dir] = []*fakeThruster{a, b}
		groups[dir] = []core.Thruster{a, b}
	}
	alloc, err := New(groups, maxRatio)
	require.NoError(t, err)
	return alloc, fakes
}

func TestNew_NoThrusters(t *testing.T) {
	_, err := New(Groups{}, 1)
	assert.ErrorIs(t, err, ErrNoThrusters)
}

func TestNew_ClampsMaxRatio(t *testing.T) {
	alloc, _ := newTestAllocator(t, 1.5)
	assert.Equal(t, 1.0, alloc.MaxRatio())
}

func TestCapacity_SkipsBrokenThrusters(t *testing.T) {
	alloc, fakes := newTestAllocator(t, 1)

	assert.Equal(t, 1500.0, alloc.Capacity(core.Forward))

	fakes[core.Forward][0].working = false
	assert.Equal(t, 500.0, alloc.Capacity(core.Forward))
}

func TestSetForwardRatio_ClampedToCeiling(t *testing.T) {
	alloc, fakes := newTestAllocator(t, 0.8)

	alloc.SetForwardRatio(1)
	for _, f := range fakes[core.Forward] {
		assert.Equal(t, 0.8, f.ratio)
	}

	alloc.SetForwardRatio(-3)
	for _, f := range fakes[core.Forward] {
		assert.Equal(t, 0.0, f.ratio)
	}
}

func TestSetMaxRatio_ReappliesCommands(t *testing.T) {
	alloc, fakes := newTestAllocator(t, 1)

	alloc.SetForwardRatio(0.9)
	alloc.SetMaxRatio(0.5)

	for _, f := range fakes[core.Forward] {
		assert.Equal(t, 0.5, f.ratio)
	}
}

func TestSetLateral_IndependentGroups(t *testing.T) {
	alloc, fakes := newTestAllocator(t, 1)

	alloc.SetLateral(0.1, 0.2, 0.3, 0.4)

	assert.Equal(t, 0.1, fakes[core.Left][0].ratio)
	assert.Equal(t, 0.2, fakes[core.Right][0].ratio)
	assert.Equal(t, 0.3, fakes[core.Up][1].ratio)
	assert.Equal(t, 0.4, fakes[core.Down][1].ratio)
	assert.Equal(t, 0.0, fakes[core.Forward][0].ratio)
}

func TestSetForce_SplitsByCapacity(t *testing.T) {
	alloc, fakes := newTestAllocator(t, 1)

	alloc.SetForce(core.Backward, 750)

	assert.InDelta(t, 500, fakes[core.Backward][0].force, 1e-9)
	assert.InDelta(t, 250, fakes[core.Backward][1].force, 1e-9)
}

func TestEnableGroup_ZeroesOverrideBeforeDisable(t *testing.T) {
	alloc, fakes := newTestAllocator(t, 1)

	alloc.SetRatio(core.Backward, 0.7)
	alloc.EnableGroup(core.Backward, false)

	for _, f := range fakes[core.Backward] {
		assert.False(t, f.enabled)
		assert.Equal(t, 0.0, f.ratioAtDisable, "override must be zero when disabling")
	}
}

func TestResetAllOverrides_Idempotent(t *testing.T) {
	alloc, fakes := newTestAllocator(t, 1)

	alloc.SetForwardRatio(0.5)
	alloc.SetLateral(1, 1, 1, 1)

	for i := 0; i < 2; i++ {
		alloc.ResetAllOverrides()
		for _, dir := range core.Directions {
			for _, f := range fakes[dir] {
				assert.Equal(t, 0.0, f.ratio, "pass %d dir %s", i, dir)
			}
		}
	}
}
