package colorops

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseHex6(t *testing.T) {
	rgb, err := ParseHex6("#FF00aa")
	require.NoError(t, err)
	assert.Equal(t, RGB8{R: 0xFF, G: 0x00, B: 0xAA}, rgb)
}

func TestParseHex6Invalid(t *testing.T) {
	_, err := ParseHex6("#GG0000")
	assert.Error(t, err)
}

func TestRGB8ToRGB12Endpoints(t *testing.T) {
	assert.Equal(t, colorZero(), RGB8ToRGB12(RGB8{}))
	full := RGB8ToRGB12(RGB8{R: 255, G: 255, B: 255})
	assert.Equal(t, RGB12{R: 4079, G: 4079, B: 4079}, full)
}

func colorZero() RGB12 { return RGB12{} }

func TestRGB8ToRGB12Monotonic(t *testing.T) {
	var prevR, prevG, prevB uint16
	for i := 0; i < 256; i++ {
		c := RGB8ToRGB12(RGB8{R: uint8(i), G: uint8(i), B: uint8(i)})
		assert.GreaterOrEqual(t, c.R, prevR)
		assert.GreaterOrEqual(t, c.G, prevG)
		assert.GreaterOrEqual(t, c.B, prevB)
		prevR, prevG, prevB = c.R, c.G, c.B
	}
}

func TestLogBrightnessEndpoints(t *testing.T) {
	assert.InDelta(t, 0.0, LogBrightness(0), 0.0001)
	assert.InDelta(t, 1.0, LogBrightness(1), 0.0001)
	assert.InDelta(t, 1.0, LogBrightness(2), 0.0001) // clamps above 1.0
}

func TestLogBrightnessControlPoints(t *testing.T) {
	assert.InDelta(t, 0.0353, LogBrightness(0.15), 0.0001)
	assert.InDelta(t, 0.5, LogBrightness(0.9), 0.0001)
}

func TestDefaultWhiteBalanceIsIdentity(t *testing.T) {
	c := RGB12{R: 100, G: 200, B: 300}
	assert.Equal(t, c, RGB12WhiteBalance(c, DefaultWhiteBalance()))
}

func TestDefaultGamutIsIdentity(t *testing.T) {
	assert.True(t, GamutValid(DefaultGamut()))
	c := RGB12{R: 100, G: 200, B: 300}
	assert.Equal(t, c, RGB12Gamut(c, DefaultGamut()))
}

func TestGamutValid(t *testing.T) {
	valid := Gamut{{0.5, 0.3, 0.1}, {0, 1, 0}, {0, 0, 1}}
	assert.True(t, GamutValid(valid))

	invalid := Gamut{{1, 1, 1}, {0, 0, 0}, {0, 0, 0}}
	assert.False(t, GamutValid(invalid))
}

func TestClampUnit(t *testing.T) {
	assert.Equal(t, 0.0, ClampUnit(-5))
	assert.Equal(t, 1.0, ClampUnit(5))
	assert.Equal(t, 0.5, ClampUnit(0.5))
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "#ff0000", RGB8{R: 255}.Format())
}
