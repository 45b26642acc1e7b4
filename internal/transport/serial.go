package transport

import (
	"bufio"
	"encoding/json"
	"fmt"
	"sync"

	"go.bug.st/serial"
	"go.uber.org/zap"
)

// SerialTransport is a line-oriented debug console: each newline-
// terminated line on the port is decoded as a Command, and the
// handler's JSON-encoded result (or error) is written back.
type SerialTransport struct {
	portName string
	baudRate int
	handler  CommandHandler
	log      *zap.Logger

	mu      sync.Mutex
	port    serial.Port
	running bool
}

func NewSerialTransport(portName string, baudRate int, handler CommandHandler, log *zap.Logger) *SerialTransport {
	return &SerialTransport{portName: portName, baudRate: baudRate, handler: handler, log: log}
}

// Start opens the port and begins the read loop in a new goroutine.
func (t *SerialTransport) Start() error {
	mode := &serial.Mode{BaudRate: t.baudRate, DataBits: 8, StopBits: serial.OneStopBit, Parity: serial.NoParity}
	port, err := serial.Open(t.portName, mode)
	if err != nil {
		return fmt.Errorf("transport: opening serial port %s: %w", t.portName, err)
	}

	t.mu.Lock()
	t.port = port
	t.running = true
	t.mu.Unlock()

	go t.readLoop()
	return nil
}

func (t *SerialTransport) readLoop() {
	scanner := bufio.NewScanner(t.port)
	for scanner.Scan() {
		t.mu.Lock()
		running := t.running
		t.mu.Unlock()
		if !running {
			return
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var cmd Command
		if err := json.Unmarshal(line, &cmd); err != nil {
			t.writeLine(map[string]interface{}{"ok": false, "error": err.Error()})
			continue
		}

		result, err := t.handler(cmd)
		if err != nil {
			t.writeLine(map[string]interface{}{"ok": false, "error": err.Error()})
			continue
		}
		t.writeLine(map[string]interface{}{"ok": true, "result": result})
	}
	if err := scanner.Err(); err != nil {
		t.log.Warn("serial: read loop ended", zap.Error(err))
	}
}

func (t *SerialTransport) writeLine(v interface{}) {
	payload, err := json.Marshal(v)
	if err != nil {
		return
	}
	payload = append(payload, '\n')

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.port == nil {
		return
	}
	if _, err := t.port.Write(payload); err != nil {
		t.log.Warn("serial: write failed", zap.Error(err))
	}
}

func (t *SerialTransport) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.running = false
	if t.port != nil {
		return t.port.Close()
	}
	return nil
}
