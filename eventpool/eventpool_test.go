package eventpool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trickstertwo/xsurface"
)

func newTestManager(t *testing.T, midi, ui int) *Manager {
	t.Helper()
	m, err := New(Config{MidiEvents: midi, UIEvents: ui})
	require.NoError(t, err)
	return m
}

// TestConfig_Validate tests rejection of non-positive pool sizes.
func TestConfig_Validate(t *testing.T) {
	require.NoError(t, Defaults().Validate())
	assert.Error(t, Config{MidiEvents: 0, UIEvents: 1}.Validate())
	assert.Error(t, Config{MidiEvents: 1, UIEvents: 0}.Validate())

	_, err := New(Config{})
	assert.Error(t, err)
}

func TestConfigFromMap(t *testing.T) {
	c := ConfigFromMap(map[string]any{"midi_events": 16, "ui_events": "bad"})
	assert.Equal(t, 16, c.MidiEvents)
	assert.Equal(t, Defaults().UIEvents, c.UIEvents)
}

// TestManager_AcquireFillsFields tests that acquired events carry the given fields.
func TestManager_AcquireFillsFields(t *testing.T) {
	m := newTestManager(t, 4, 4)

	cc := m.AcquireMidiCC(1, 7, 99, xsurface.SourceMidiIn)
	require.NotNil(t, cc)
	assert.Equal(t, xsurface.MidiControlChange, cc.Type())
	assert.Equal(t, uint8(7), cc.Controller)
	assert.Equal(t, uint8(99), cc.Value)
	assert.Equal(t, xsurface.SourceMidiIn, cc.Source)
	assert.True(t, m.ReleaseMidiCC(cc))
	assert.False(t, m.ReleaseMidiCC(cc), "double release")

	on := m.AcquireMidiNoteOn(0, 60, 100, xsurface.SourceMidiIn)
	require.NotNil(t, on)
	assert.Equal(t, uint8(60), on.Note)
	assert.True(t, m.ReleaseMidiNoteOn(on))

	off := m.AcquireMidiNoteOff(0, 60, 0, xsurface.SourceMidiIn)
	require.NotNil(t, off)
	assert.True(t, m.ReleaseMidiNoteOff(off))

	ui := m.AcquireUIParameterUpdate(7, 0, 99, "CC7")
	require.NotNil(t, ui)
	assert.Equal(t, "CC7", ui.ParamName)
	assert.True(t, m.ReleaseUIParameterUpdate(ui))
}

// TestManager_ExhaustionIsCounted tests nil returns and the exhaustion counter when a pool is empty.
func TestManager_ExhaustionIsCounted(t *testing.T) {
	m := newTestManager(t, 2, 1)

	require.NotNil(t, m.AcquireMidiCC(0, 1, 1, xsurface.SourceUnknown))
	require.NotNil(t, m.AcquireMidiCC(0, 2, 2, xsurface.SourceUnknown))
	assert.Nil(t, m.AcquireMidiCC(0, 3, 3, xsurface.SourceUnknown))

	g := m.GlobalStats()
	assert.Equal(t, uint64(1), g.Exhausted)
	assert.Equal(t, 2, g.TotalAllocated)
	assert.Equal(t, 2*3+1, g.TotalCapacity)
}

// TestManager_GuardsReturnSlots tests that closing a guard releases its slot.
func TestManager_GuardsReturnSlots(t *testing.T) {
	m := newTestManager(t, 1, 1)

	g := m.CreateMidiCC(0, 7, 10, xsurface.SourceEncoder)
	require.True(t, g.Valid())
	assert.Equal(t, 1, m.MidiCCStats().Allocated)

	empty := m.CreateMidiCC(0, 7, 11, xsurface.SourceEncoder)
	assert.False(t, empty.Valid())
	assert.False(t, empty.Close())

	assert.True(t, g.Close())
	assert.False(t, g.Close())
	assert.Equal(t, 0, m.MidiCCStats().Allocated)

	ug := m.CreateUIParameterUpdate(1, 0, 2, "CC1")
	require.True(t, ug.Valid())
	assert.Equal(t, "CC1", ug.Get().ParamName)
	ug.Close()
	assert.Equal(t, 0, m.UIStats().Allocated)
}

// TestManager_MemoryPressure tests the high memory pressure threshold.
func TestManager_MemoryPressure(t *testing.T) {
	m := newTestManager(t, 10, 10)
	assert.False(t, m.HasHighMemoryPressure())

	for i := 0; i < 10; i++ {
		require.NotNil(t, m.AcquireMidiCC(0, uint8(i), 0, xsurface.SourceUnknown))
		require.NotNil(t, m.AcquireMidiNoteOn(0, uint8(i), 1, xsurface.SourceUnknown))
		require.NotNil(t, m.AcquireMidiNoteOff(0, uint8(i), 0, xsurface.SourceUnknown))
		require.NotNil(t, m.AcquireUIParameterUpdate(uint8(i), 0, 0, ""))
	}
	assert.True(t, m.HasHighMemoryPressure())
	assert.Equal(t, 1.0, m.GlobalStats().UsageRatio)

	assert.Equal(t, 40, m.Close())
	assert.False(t, m.HasHighMemoryPressure())
}

func resetFactory(t *testing.T) {
	t.Helper()
	Uninstall()
	SetStrict(false)
	t.Cleanup(func() {
		Uninstall()
		SetStrict(false)
		SetFactoryLogger(nil)
	})
}

// TestFactory_UsesInstalledManager tests that factory calls draw from the installed pools.
func TestFactory_UsesInstalledManager(t *testing.T) {
	resetFactory(t)
	m := newTestManager(t, 1, 1)
	Install(m)

	got, ok := Installed()
	require.True(t, ok)
	assert.Same(t, m, got)

	before := FallbackAllocations()
	e := NewMidiCC(2, 74, 64, xsurface.SourceMidiIn)
	require.NotNil(t, e)
	assert.Equal(t, 1, m.MidiCCStats().Allocated)
	assert.Equal(t, before, FallbackAllocations())
	assert.True(t, FreeMidiCC(e))
	assert.Equal(t, 0, m.MidiCCStats().Allocated)
}

// TestFactory_FallsBackToHeap tests heap fallback and the once-only warning.
func TestFactory_FallsBackToHeap(t *testing.T) {
	resetFactory(t)
	m := newTestManager(t, 1, 1)
	Install(m)

	pooled := NewMidiCC(0, 1, 1, xsurface.SourceUnknown)
	require.NotNil(t, pooled)

	before := FallbackAllocations()
	heap := NewMidiCC(0, 2, 2, xsurface.SourceUnknown)
	require.NotNil(t, heap)
	assert.Equal(t, uint8(2), heap.Controller)
	assert.Equal(t, before+1, FallbackAllocations())
	assert.False(t, FreeMidiCC(heap), "heap events are not pool-owned")

	Uninstall()
	ui := NewUIParameterUpdate(7, 0, 1, "CC7")
	require.NotNil(t, ui)
	assert.Equal(t, "CC7", ui.ParamName)
	assert.False(t, FreeUIParameterUpdate(ui))
	assert.Equal(t, before+2, FallbackAllocations())
}

// TestFactory_Notes tests the Note-On and Note-Off constructors on both paths.
func TestFactory_Notes(t *testing.T) {
	resetFactory(t)
	m := newTestManager(t, 1, 1)
	Install(m)

	on := NewMidiNoteOn(3, 60, 100, xsurface.SourceMidiIn)
	require.NotNil(t, on)
	assert.Equal(t, uint8(3), on.Channel)
	assert.Equal(t, uint8(60), on.Note)
	assert.Equal(t, uint8(100), on.Velocity)
	assert.Equal(t, 1, m.MidiNoteOnStats().Allocated)

	off := NewMidiNoteOff(3, 60, 0, xsurface.SourceMidiIn)
	require.NotNil(t, off)
	assert.Equal(t, 1, m.MidiNoteOffStats().Allocated)

	before := FallbackAllocations()
	heapOn := NewMidiNoteOn(0, 61, 90, xsurface.SourceButton)
	require.NotNil(t, heapOn)
	assert.Equal(t, uint8(61), heapOn.Note)
	assert.Equal(t, xsurface.SourceButton, heapOn.Source)
	heapOff := NewMidiNoteOff(0, 61, 10, xsurface.SourceButton)
	require.NotNil(t, heapOff)
	assert.Equal(t, uint8(10), heapOff.Velocity)
	assert.Equal(t, before+2, FallbackAllocations())
	assert.False(t, FreeMidiNoteOn(heapOn))
	assert.False(t, FreeMidiNoteOff(heapOff))

	assert.True(t, FreeMidiNoteOn(on))
	assert.True(t, FreeMidiNoteOff(off))
	assert.Equal(t, 0, m.MidiNoteOnStats().Allocated)
	assert.Equal(t, 0, m.MidiNoteOffStats().Allocated)

	SetStrict(true)
	Uninstall()
	assert.Nil(t, NewMidiNoteOn(0, 1, 1, xsurface.SourceUnknown))
	assert.Nil(t, NewMidiNoteOff(0, 1, 1, xsurface.SourceUnknown))
	assert.False(t, FreeMidiNoteOn(nil))
	assert.False(t, FreeMidiNoteOff(nil))
}

// TestFactory_StrictModeRefusesHeap tests that strict mode returns nil instead of allocating.
func TestFactory_StrictModeRefusesHeap(t *testing.T) {
	resetFactory(t)
	SetStrict(true)

	before := FallbackAllocations()
	assert.Nil(t, NewMidiCC(0, 1, 1, xsurface.SourceUnknown))
	assert.Nil(t, NewUIParameterUpdate(1, 0, 1, "CC1"))
	assert.Equal(t, before, FallbackAllocations())
	assert.False(t, FreeMidiCC(nil))
}

func TestInstall_NilPanics(t *testing.T) {
	assert.Panics(t, func() { Install(nil) })
}
