// Package metrics tracks counters and gauges for the cascade daemon:
// tick throughput, pattern lifecycle, and strobe I/O errors.
package metrics

import (
	"fmt"
	"runtime"
	"sync"
	"time"
)

// Metrics is a process-wide counter block, safe for concurrent use
// from the tick goroutine, the control API, and transports.
type Metrics struct {
	TicksTotal     int64 `json:"ticks_total"`
	TicksSkipped   int64 `json:"ticks_skipped"`
	FramesEmitted  int64 `json:"frames_emitted"`
	StrobeErrors   int64 `json:"strobe_errors"`

	PatternsInstalled int64 `json:"patterns_installed"`
	PatternsCompleted int64 `json:"patterns_completed"`
	PatternsFaulted   int64 `json:"patterns_faulted"`
	PatternsActive    int64 `json:"patterns_active"`

	CommandsTotal int64 `json:"commands_total"`
	CommandErrors int64 `json:"command_errors"`

	GoroutineCount int   `json:"goroutine_count"`
	MemoryUsed     uint64 `json:"memory_used_bytes"`

	mu        sync.RWMutex
	startTime time.Time
}

// New creates a Metrics block with its uptime clock started.
func New() *Metrics {
	return &Metrics{startTime: time.Now()}
}

func (m *Metrics) IncTick()        { m.mu.Lock(); m.TicksTotal++; m.mu.Unlock() }
func (m *Metrics) IncTickSkipped() { m.mu.Lock(); m.TicksSkipped++; m.mu.Unlock() }
func (m *Metrics) IncFrameEmitted() { m.mu.Lock(); m.FramesEmitted++; m.mu.Unlock() }
func (m *Metrics) IncStrobeError() { m.mu.Lock(); m.StrobeErrors++; m.mu.Unlock() }

func (m *Metrics) IncPatternInstalled() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PatternsInstalled++
	m.PatternsActive++
}

func (m *Metrics) IncPatternCompleted() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PatternsCompleted++
	if m.PatternsActive > 0 {
		m.PatternsActive--
	}
}

func (m *Metrics) IncPatternFaulted() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PatternsFaulted++
	if m.PatternsActive > 0 {
		m.PatternsActive--
	}
}

func (m *Metrics) IncCommand(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CommandsTotal++
	if err != nil {
		m.CommandErrors++
	}
}

// Refresh updates the runtime-derived gauges (memory, goroutines).
func (m *Metrics) Refresh() {
	m.mu.Lock()
	defer m.mu.Unlock()

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	m.MemoryUsed = ms.Alloc
	m.GoroutineCount = runtime.NumGoroutine()
}

// Snapshot returns a JSON-ready copy of the current values.
func (m *Metrics) Snapshot() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return map[string]interface{}{
		"uptime_seconds":    int64(time.Since(m.startTime).Seconds()),
		"ticks_total":       m.TicksTotal,
		"ticks_skipped":     m.TicksSkipped,
		"frames_emitted":    m.FramesEmitted,
		"strobe_errors":     m.StrobeErrors,
		"patterns_installed": m.PatternsInstalled,
		"patterns_completed": m.PatternsCompleted,
		"patterns_faulted":    m.PatternsFaulted,
		"patterns_active":     m.PatternsActive,
		"commands_total":      m.CommandsTotal,
		"command_errors":      m.CommandErrors,
		"goroutines":          m.GoroutineCount,
		"memory_used_bytes":   m.MemoryUsed,
	}
}

// Prometheus renders the counters in the Prometheus text exposition
// format.
func (m *Metrics) Prometheus() string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return fmt.Sprintf(`# HELP ledcascade_ticks_total Total ticks processed
# TYPE ledcascade_ticks_total counter
ledcascade_ticks_total %d

# HELP ledcascade_ticks_skipped_total Ticks skipped because a mutation was in flight
# TYPE ledcascade_ticks_skipped_total counter
ledcascade_ticks_skipped_total %d

# HELP ledcascade_frames_emitted_total Frames strobed to the cascade
# TYPE ledcascade_frames_emitted_total counter
ledcascade_frames_emitted_total %d

# HELP ledcascade_strobe_errors_total SPI/GPIO errors while emitting a frame
# TYPE ledcascade_strobe_errors_total counter
ledcascade_strobe_errors_total %d

# HELP ledcascade_patterns_active Patterns currently installed
# TYPE ledcascade_patterns_active gauge
ledcascade_patterns_active %d
`,
		m.TicksTotal, m.TicksSkipped, m.FramesEmitted, m.StrobeErrors, m.PatternsActive)
}
