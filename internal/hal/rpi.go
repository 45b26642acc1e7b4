package hal

import (
	"fmt"
	"sync"

	"github.com/stianeikeland/go-rpio/v4"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

// RaspberryPiHAL drives the cascade's XLAT/BLANK pins through go-rpio
// and its SPI bus through periph.io's spireg registry.
type RaspberryPiHAL struct {
	mu   sync.Mutex
	pins map[int]rpio.Pin
	spi  *rpiSPI
	info BoardInfo
}

// NewRaspberryPiHAL opens the GPIO character device and initializes
// periph.io's host driver registry.
func NewRaspberryPiHAL() (*RaspberryPiHAL, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("hal: periph.io host init: %w", err)
	}
	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("hal: gpio open: %w", err)
	}

	return &RaspberryPiHAL{
		pins: make(map[int]rpio.Pin),
		spi:  &rpiSPI{},
		info: BoardInfo{Model: "raspberry-pi", Name: "Raspberry Pi"},
	}, nil
}

func (h *RaspberryPiHAL) GPIO() GPIOProvider { return h }
func (h *RaspberryPiHAL) SPI() SPIProvider   { return h.spi }
func (h *RaspberryPiHAL) Info() BoardInfo    { return h.info }

func (h *RaspberryPiHAL) SetMode(pin int, mode PinMode) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	p := rpio.Pin(pin)
	switch mode {
	case Output:
		p.Output()
	case Input:
		p.Input()
	default:
		return fmt.Errorf("hal: unsupported pin mode %v", mode)
	}
	h.pins[pin] = p
	return nil
}

func (h *RaspberryPiHAL) DigitalWrite(pin int, value bool) error {
	h.mu.Lock()
	p, ok := h.pins[pin]
	h.mu.Unlock()
	if !ok {
		return fmt.Errorf("hal: pin %d not configured", pin)
	}
	if value {
		p.High()
	} else {
		p.Low()
	}
	return nil
}

func (h *RaspberryPiHAL) DigitalRead(pin int) (bool, error) {
	h.mu.Lock()
	p, ok := h.pins[pin]
	h.mu.Unlock()
	if !ok {
		return false, fmt.Errorf("hal: pin %d not configured", pin)
	}
	return p.Read() == rpio.High, nil
}

func (h *RaspberryPiHAL) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.spi.close()
	return rpio.Close()
}

// rpiSPI wraps a periph.io SPI port behind the SPIProvider interface.
type rpiSPI struct {
	mu   sync.Mutex
	port spi.PortCloser
	conn spi.Conn
	hz   physic.Frequency
}

func (s *rpiSPI) Open(bus, device int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	port, err := spireg.Open(fmt.Sprintf("SPI%d.%d", bus, device))
	if err != nil {
		return fmt.Errorf("hal: spi open: %w", err)
	}
	if s.hz == 0 {
		s.hz = physic.MegaHertz
	}
	conn, err := port.Connect(s.hz, spi.Mode0, 8)
	if err != nil {
		port.Close()
		return fmt.Errorf("hal: spi connect: %w", err)
	}
	s.port = port
	s.conn = conn
	return nil
}

func (s *rpiSPI) Transfer(data []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil, fmt.Errorf("hal: spi not open")
	}
	read := make([]byte, len(data))
	if err := s.conn.Tx(data, read); err != nil {
		return nil, fmt.Errorf("hal: spi transfer: %w", err)
	}
	return read, nil
}

func (s *rpiSPI) SetSpeed(speed int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hz = physic.Frequency(speed) * physic.Hertz
	if s.port == nil {
		return nil
	}
	conn, err := s.port.Connect(s.hz, spi.Mode0, 8)
	if err != nil {
		return fmt.Errorf("hal: spi reconnect at new speed: %w", err)
	}
	s.conn = conn
	return nil
}

func (s *rpiSPI) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.close()
}

func (s *rpiSPI) close() error {
	if s.port == nil {
		return nil
	}
	err := s.port.Close()
	s.port = nil
	s.conn = nil
	return err
}
