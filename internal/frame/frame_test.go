package frame

import (
	"testing"

	"github.com/ledcascade/ledcascade/internal/colorops"
	"github.com/stretchr/testify/assert"
)

func TestSetGetLampRoundTrip(t *testing.T) {
	cases := []colorops.RGB12{
		{R: 0, G: 0, B: 0},
		{R: 4095, G: 4095, B: 4095},
		{R: 1, G: 2048, B: 4094},
		{R: 4095, G: 0, B: 2047},
		{R: 123, G: 4000, B: 17},
	}

	for lamp := 0; lamp < NumLamps; lamp++ {
		for _, c := range cases {
			buf := NewBuffer()
			SetLamp(buf, lamp, c)
			got := GetLamp(buf, lamp)
			assert.Equal(t, c, got, "lamp %d color %+v", lamp, c)
		}
	}
}

func TestSetLampDoesNotClobberNeighbor(t *testing.T) {
	buf := NewBuffer()
	SetLamp(buf, 0, colorops.RGB12{R: 4095, G: 4095, B: 4095})
	SetLamp(buf, 1, colorops.RGB12{R: 0, G: 0, B: 0})

	assert.Equal(t, colorops.RGB12{R: 4095, G: 4095, B: 4095}, GetLamp(buf, 0))
	assert.Equal(t, colorops.RGB12{R: 0, G: 0, B: 0}, GetLamp(buf, 1))

	SetLamp(buf, 1, colorops.RGB12{R: 4095, G: 4095, B: 4095})
	assert.Equal(t, colorops.RGB12{R: 4095, G: 4095, B: 4095}, GetLamp(buf, 0), "odd-lamp write must not clobber even neighbor")
}

func TestNewBufferIsBlack(t *testing.T) {
	buf := NewBuffer()
	assert.Len(t, buf, Size)
	for lamp := 0; lamp < NumLamps; lamp++ {
		assert.Equal(t, colorops.RGB12{}, GetLamp(buf, lamp))
	}
}
