package device

import (
	"fmt"

	"github.com/ledcascade/ledcascade/internal/frame"
	"github.com/ledcascade/ledcascade/internal/hal"
)

// StrobeDriver is the boundary wrapper around the SPI peripheral and
// the XLAT/BLANK GPIO pins: it owns no animation state, it only knows
// how to get a 36-byte frame onto the wire and latch it.
type StrobeDriver struct {
	gpio     hal.GPIOProvider
	spi      hal.SPIProvider
	xlatPin  int
	blankPin int
}

// NewStrobeDriver opens the SPI port and configures the XLAT/BLANK
// pins as outputs. BLANK starts high (outputs off) until the caller
// explicitly unblanks.
func NewStrobeDriver(h hal.HAL, spiBus, spiDevice, xlatPin, blankPin int) (*StrobeDriver, error) {
	gpio := h.GPIO()
	spi := h.SPI()

	if err := spi.Open(spiBus, spiDevice); err != nil {
		return nil, fmt.Errorf("strobe: opening spi: %w", err)
	}
	if err := gpio.SetMode(xlatPin, hal.Output); err != nil {
		return nil, fmt.Errorf("strobe: configuring xlat pin: %w", err)
	}
	if err := gpio.SetMode(blankPin, hal.Output); err != nil {
		return nil, fmt.Errorf("strobe: configuring blank pin: %w", err)
	}

	d := &StrobeDriver{gpio: gpio, spi: spi, xlatPin: xlatPin, blankPin: blankPin}
	if err := d.Blank(true); err != nil {
		return nil, err
	}
	return d, nil
}

// Emit clocks a 36-byte frame out MSB-first and pulses XLAT so the
// cascade's internal greyscale register latches the new values.
func (d *StrobeDriver) Emit(f []byte) error {
	if len(f) != frame.Size {
		return fmt.Errorf("strobe: frame must be %d bytes, got %d", frame.Size, len(f))
	}
	if err := d.gpio.DigitalWrite(d.xlatPin, false); err != nil {
		return fmt.Errorf("strobe: lowering xlat: %w", err)
	}
	if _, err := d.spi.Transfer(f); err != nil {
		return fmt.Errorf("strobe: spi transfer: %w", err)
	}
	if err := d.gpio.DigitalWrite(d.xlatPin, true); err != nil {
		return fmt.Errorf("strobe: raising xlat: %w", err)
	}
	return nil
}

// Blank drives the BLANK pin. HIGH (true) forces all outputs off
// regardless of the latched greyscale register.
func (d *StrobeDriver) Blank(on bool) error {
	return d.gpio.DigitalWrite(d.blankPin, on)
}
