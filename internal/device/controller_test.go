package device

import (
	"testing"

	"github.com/ledcascade/ledcascade/internal/colorops"
	"github.com/ledcascade/ledcascade/internal/frame"
	"github.com/ledcascade/ledcascade/internal/hal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestController wires a Controller to a MockHAL so tests can
// inspect exactly what would have been clocked onto the cascade.
func newTestController(t *testing.T) (*Controller, *hal.MockSPI) {
	t.Helper()
	h := hal.NewMockHAL()
	c, err := NewFromHAL(h, 0, 0, 23, 24)
	require.NoError(t, err)
	return c, h.SPI().(*hal.MockSPI)
}

// S1: a constant color pattern latches its color into the buffer and
// is gone after one tick, but the buffer keeps showing the color.
func TestControllerConstantColorSurvivesPatternCompletion(t *testing.T) {
	c, spi := newTestController(t)

	pid, err := c.Set([]int{0}, "#0000FF")
	require.NoError(t, err)
	assert.True(t, c.Exists(pid))

	c.Tick()

	assert.False(t, c.Exists(pid), "single-shot pattern is removed once done")
	got, err := c.Get(0)
	require.NoError(t, err)
	assert.Equal(t, "#0000ff", got)

	last := spi.LastFrame()
	require.NotNil(t, last)
	assert.Equal(t, colorops.RGB8ToRGB12(colorops.RGB8{B: 0xFF}), frame.GetLamp(last, 0))
}

// S5: layering. Two patterns stacked on the same lamp; the top one
// dominates until deleted, then the one below takes over.
func TestControllerLayeringFallsBackOnDelete(t *testing.T) {
	c, _ := newTestController(t)

	bottom, err := c.Set([]int{2}, "#FF0000;")
	require.NoError(t, err)
	top, err := c.Set([]int{2}, "#00FF00;")
	require.NoError(t, err)

	c.Tick()
	got, err := c.Get(2)
	require.NoError(t, err)
	assert.Equal(t, "#00ff00", got, "top of stack wins")

	c.Delete(top)
	c.Tick()
	got, err = c.Get(2)
	require.NoError(t, err)
	assert.Equal(t, "#ff0000", got, "falls back to the layer below once top is gone")

	c.Delete(bottom)
}

// S6: a transparent pattern on top of the stack lets the compositor
// fall through to the layer below.
func TestControllerTransparentCompositesThrough(t *testing.T) {
	c, _ := newTestController(t)

	_, err := c.Set([]int{3}, "#112233")
	require.NoError(t, err)
	_, err = c.Set([]int{3}, "#FFFFFF@")
	require.NoError(t, err)

	c.Tick()
	got, err := c.Get(3)
	require.NoError(t, err)
	// #112233 expands to (64,128,205) and truncates back to #03070c.
	assert.Equal(t, "#03070c", got, "transparent top layer is skipped by the compositor")
}

// S5/empty stack: deleting every pattern on a lamp falls back to
// black.
func TestControllerEmptyStackIsBlack(t *testing.T) {
	c, _ := newTestController(t)

	pid, err := c.Set([]int{4}, "#ABCDEF;")
	require.NoError(t, err)
	c.Tick()

	c.Delete(pid)
	c.Tick()

	got, err := c.Get(4)
	require.NoError(t, err)
	assert.Equal(t, "#000000", got)
}

func TestControllerSetRollsBackOnDisabledLamp(t *testing.T) {
	c, _ := newTestController(t)

	var m [frame.NumLamps]int
	for i := range m {
		m[i] = i
	}
	m[5] = -1
	require.NoError(t, c.SetIDMap(m))

	before := len(c.patterns)
	_, err := c.Set([]int{1, 5}, "#FFFFFF")
	assert.ErrorIs(t, err, ErrLampDisabled)
	assert.Len(t, c.patterns, before, "failed Set leaves no partially-applied pattern behind")

	got, err := c.Get(1)
	require.NoError(t, err)
	assert.Equal(t, "#000000", got, "lamp 1 never got the pattern pushed onto its stack")
}

func TestControllerReplacePreservesIdentityAndStackPosition(t *testing.T) {
	c, _ := newTestController(t)

	pid, err := c.Set([]int{0}, "+[#FFFFFF|500#000000|500]")
	require.NoError(t, err)

	c.Tick() // latch white, park in first sleep

	require.NoError(t, c.Replace(pid, "#FF00FF"))
	c.Tick()

	got, err := c.Get(0)
	require.NoError(t, err)
	assert.Equal(t, "#ff00ff", got)
	assert.False(t, c.Exists(pid), "the replacement program completes and is removed just like any other")
}

func TestControllerReplaceUnknownPatternErrors(t *testing.T) {
	c, _ := newTestController(t)
	err := c.Replace(999, "#FFFFFF")
	assert.ErrorIs(t, err, ErrUnknownPattern)
}

func TestControllerGetDisabledLampErrors(t *testing.T) {
	c, _ := newTestController(t)
	var m [frame.NumLamps]int
	for i := range m {
		m[i] = i
	}
	m[0] = -1
	require.NoError(t, c.SetIDMap(m))

	_, err := c.Get(0)
	assert.ErrorIs(t, err, ErrLampDisabled)
}

func TestControllerSetIDMapInvalidEntryResetsToIdentity(t *testing.T) {
	c, _ := newTestController(t)

	var bad [frame.NumLamps]int
	bad[0] = 9
	err := c.SetIDMap(bad)
	assert.ErrorIs(t, err, ErrInvalidIDMap)

	got, err := c.Get(0)
	require.NoError(t, err)
	assert.Equal(t, "#000000", got, "identity map still routes logical 0 to physical 0")
}

// S7: white balance is clamped rather than rejected.
func TestControllerWhiteBalanceClamps(t *testing.T) {
	c, _ := newTestController(t)
	c.SetWhiteBalance(colorops.WhiteBalance{R: 2.0, G: -1.0, B: 0.5})
	assert.Equal(t, colorops.WhiteBalance{R: 1.0, G: 0.0, B: 0.5}, c.wb)
}

// S8: an invalid gamut matrix (fails the no-amplification invariant)
// is rejected and the controller reverts to identity.
func TestControllerInvalidGamutRevertsToIdentity(t *testing.T) {
	c, _ := newTestController(t)

	bad := colorops.Gamut{{2, 0, 0}, {0, 1, 0}, {0, 0, 1}}
	err := c.SetGamut(bad)
	assert.ErrorIs(t, err, ErrInvalidGamut)
	assert.Equal(t, colorops.DefaultGamut(), c.gamut)
}

func TestControllerTickSkipsWhenLocked(t *testing.T) {
	c, spi := newTestController(t)
	_, err := c.Set([]int{0}, "#FFFFFF")
	require.NoError(t, err)

	c.mu.Lock()
	c.Tick()
	c.mu.Unlock()

	assert.Nil(t, spi.LastFrame(), "Tick must not touch the buffer or strobe while a mutation is in flight")
}

func TestControllerBlankPassesThroughToStrobe(t *testing.T) {
	c, _ := newTestController(t)
	assert.NoError(t, c.Blank(false))
	assert.NoError(t, c.Blank(true))
}
