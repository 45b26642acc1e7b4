// Package hal defines the hardware abstraction boundary between the
// cascade driver core and the physical SPI/GPIO peripherals it rides
// on. Only the primitives the strobe path actually needs are exposed:
// a digital output pin (XLAT/BLANK) and a full-duplex SPI transfer.
package hal

import (
	"fmt"
	"sync"
)

// PinMode is the subset of pin modes relevant to strobe control. The
// cascade driver only ever drives pins, it never reads them back, but
// Input is kept so a provider can restore a pin to a harmless state on
// Close.
type PinMode int

const (
	Input PinMode = iota
	Output
)

// GPIOProvider is a minimal digital-output GPIO surface.
type GPIOProvider interface {
	// SetMode configures pin as input or output.
	SetMode(pin int, mode PinMode) error
	// DigitalWrite drives pin high (true) or low (false).
	DigitalWrite(pin int, value bool) error
	// DigitalRead reads the current pin state.
	DigitalRead(pin int) (bool, error)
	// Close releases any OS handles held by the provider.
	Close() error
}

// SPIProvider is a full-duplex SPI master used to clock the 36-byte
// greyscale frame into the TLC5947 cascade.
type SPIProvider interface {
	// Open opens the given bus/chip-select pair.
	Open(bus, device int) error
	// Transfer clocks data out MSB-first and returns whatever was
	// simultaneously clocked in (ignored by the cascade, which has no
	// MISO line wired).
	Transfer(data []byte) ([]byte, error)
	// SetSpeed sets the SCLK rate in Hz.
	SetSpeed(speed int) error
	// Close releases the SPI port.
	Close() error
}

// BoardInfo describes the host the HAL is running on. Informational
// only; the core never branches on it.
type BoardInfo struct {
	Model string
	Name  string
}

// HAL bundles the GPIO and SPI providers plus board metadata behind
// one handle so a StrobeDriver can be constructed from a single value.
type HAL interface {
	GPIO() GPIOProvider
	SPI() SPIProvider
	Info() BoardInfo
	Close() error
}

var (
	globalHAL HAL
	halMu     sync.RWMutex
)

// SetGlobalHAL installs the process-wide HAL instance.
func SetGlobalHAL(h HAL) {
	halMu.Lock()
	defer halMu.Unlock()
	globalHAL = h
}

// GetGlobalHAL returns the process-wide HAL instance, or an error if
// none has been installed yet.
func GetGlobalHAL() (HAL, error) {
	halMu.RLock()
	defer halMu.RUnlock()
	if globalHAL == nil {
		return nil, fmt.Errorf("hal: not initialized")
	}
	return globalHAL, nil
}
