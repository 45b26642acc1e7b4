// Package device implements the Controller: the owner of every live
// pattern, the per-lamp compositing stacks, the packed output buffer,
// and the tick loop that drives them. It is the only package that
// imports both pattern and frame.
package device

import (
	"sync"

	"github.com/ledcascade/ledcascade/internal/colorops"
	"github.com/ledcascade/ledcascade/internal/frame"
	"github.com/ledcascade/ledcascade/internal/hal"
	"github.com/ledcascade/ledcascade/internal/logger"
	"github.com/ledcascade/ledcascade/internal/pattern"
	"go.uber.org/zap"
)

// disabledPhysical marks a logical lamp with no physical channel
// assigned.
const disabledPhysical = -1

// Controller owns the set of live patterns, the per-lamp pattern
// stacks, the packed output buffer, the identity map, white balance
// and gamut, and drives the strobe.
//
// Concurrency: mu guards every field below it. Mutating calls
// (Set/Replace/Delete/SetIDMap/SetWhiteBalance/SetGamut) take mu and
// block. Tick uses mu.TryLock and skips the entire tick — dropping
// one frame rather than blocking a caller that may be running from an
// interrupt context — if a mutation is in flight (see §5 of the
// design: this replaces the source's non-reentrant counter with
// sync.Mutex's native TryLock, the same upgrade the design notes call
// out as appropriate off a single-core target).
type Controller struct {
	mu sync.Mutex

	patterns []*pattern.Pattern
	byID     map[uint16]*pattern.Pattern
	nextPID  uint16

	stacks [frame.NumLamps][]uint16
	buffer []byte

	idMap [frame.NumLamps]int
	wb    colorops.WhiteBalance
	gamut colorops.Gamut

	changed bool

	strobe *StrobeDriver
	log    *zap.Logger
}

// New constructs a Controller wired to the given strobe driver. The
// identity map starts as {0,1,...,7}, white balance at {1,1,1}, gamut
// at the identity matrix.
func New(strobe *StrobeDriver) *Controller {
	c := &Controller{
		patterns: make([]*pattern.Pattern, 0, 16),
		byID:     make(map[uint16]*pattern.Pattern),
		nextPID:  1,
		buffer:   frame.NewBuffer(),
		wb:       colorops.DefaultWhiteBalance(),
		gamut:    colorops.DefaultGamut(),
		strobe:   strobe,
		log:      logger.Get(),
	}
	c.resetIDMapLocked()
	return c
}

// NewFromHAL is a convenience constructor that opens a StrobeDriver
// from a HAL and the given pin/bus configuration.
func NewFromHAL(h hal.HAL, spiBus, spiDevice, xlatPin, blankPin int) (*Controller, error) {
	strobe, err := NewStrobeDriver(h, spiBus, spiDevice, xlatPin, blankPin)
	if err != nil {
		return nil, err
	}
	return New(strobe), nil
}

func (c *Controller) resetIDMapLocked() {
	for i := range c.idMap {
		c.idMap[i] = i
	}
}

// --- pattern.Environment ---

// Adjust applies the controller's current white balance and gamut to
// a literal color, as required by every Color opcode.
func (c *Controller) Adjust(rgb colorops.RGB12) colorops.RGB12 {
	return colorops.Adjust(rgb, c.wb, c.gamut)
}

// MarkChanged flags that at least one pattern's visible state changed
// this tick, so the compositor needs to run before the frame is sent.
func (c *Controller) MarkChanged() {
	c.changed = true
}

// --- lifecycle ---

// Set tokenizes patternStr and installs it as a new pattern assigned
// to every lamp in lamps. On any error — a parse failure or a
// disabled/out-of-range lamp — no state changes and the error is
// returned.
func (c *Controller) Set(lamps []int, patternStr string) (uint16, error) {
	tokens, err := pattern.Tokenize(patternStr)
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	pid := c.nextPID
	pat := pattern.NewPattern(pid, tokens)
	c.patterns = append(c.patterns, pat)
	c.byID[pid] = pat

	for idx, lamp := range lamps {
		physical, ok := c.translateLocked(lamp)
		if !ok {
			c.rollbackSetLocked(pid, lamps[:idx])
			return 0, ErrLampDisabled
		}
		c.stacks[physical] = append(c.stacks[physical], pid)
	}

	c.nextPID++
	c.log.Debug("pattern installed", zap.Uint16("pid", pid), zap.Ints("lamps", lamps))
	return pid, nil
}

// rollbackSetLocked undoes a partially-applied Set: it pops pid off
// every lamp stack it was already pushed onto and removes the
// just-created pattern record. Caller holds mu.
func (c *Controller) rollbackSetLocked(pid uint16, appliedLamps []int) {
	for _, lamp := range appliedLamps {
		if physical, ok := c.translateLocked(lamp); ok {
			c.popPIDLocked(physical, pid)
		}
	}
	delete(c.byID, pid)
	c.patterns = removePattern(c.patterns, pid)
}

func (c *Controller) popPIDLocked(physical int, pid uint16) {
	stack := c.stacks[physical]
	for i, v := range stack {
		if v == pid {
			c.stacks[physical] = append(stack[:i], stack[i+1:]...)
			return
		}
	}
}

// Replace tokenizes patternStr and, if pid exists, swaps it in as
// that pattern's new program: PC, stack, brightness and visibility
// reset to their initial values while the pid (and its place in every
// lamp stack) is preserved.
func (c *Controller) Replace(pid uint16, patternStr string) error {
	tokens, err := pattern.Tokenize(patternStr)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	pat, ok := c.byID[pid]
	if !ok {
		return ErrUnknownPattern
	}
	pat.Reset(tokens)
	c.log.Debug("pattern replaced", zap.Uint16("pid", pid))
	return nil
}

// Delete removes pid from every lamp stack and from the live pattern
// set. It reports whether anything was actually removed and always
// flags the compositor to re-run.
func (c *Controller) Delete(pid uint16) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := c.removeLocked(pid)
	c.changed = true
	return removed
}

// removeLocked drops pid from every lamp stack and from the live
// pattern set without touching c.changed: Tick uses it to clean up
// patterns whose final color has already been composited into the
// buffer this tick, where flagging another re-render would erase that
// color again on the next tick.
func (c *Controller) removeLocked(pid uint16) bool {
	_, existed := c.byID[pid]
	if !existed {
		return false
	}

	for lamp := range c.stacks {
		c.popPIDLocked(lamp, pid)
	}
	delete(c.byID, pid)
	c.patterns = removePattern(c.patterns, pid)
	return true
}

func removePattern(patterns []*pattern.Pattern, pid uint16) []*pattern.Pattern {
	for i, p := range patterns {
		if p.ID == pid {
			return append(patterns[:i], patterns[i+1:]...)
		}
	}
	return patterns
}

// Exists reports whether pid currently identifies a live pattern.
func (c *Controller) Exists(pid uint16) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.byID[pid]
	return ok
}

// Get reads back the current color of a logical lamp as "#RRGGBB".
func (c *Controller) Get(lamp int) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	physical, ok := c.translateLocked(lamp)
	if !ok {
		return "", ErrLampDisabled
	}
	rgb12 := frame.GetLamp(c.buffer, physical)
	return colorops.RGB12ToRGB8(rgb12).Format(), nil
}

// Blank passes straight through to the strobe driver's BLANK pin.
func (c *Controller) Blank(on bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.strobe == nil {
		return nil
	}
	return c.strobe.Blank(on)
}

// --- configuration ---

// SetIDMap installs a new logical->physical lamp mapping. Each entry
// must be -1 (disabled) or a physical index 0..7. On any invalid
// entry the map is restored to identity and the error is returned.
func (c *Controller) SetIDMap(m [frame.NumLamps]int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, v := range m {
		if v != disabledPhysical && (v < 0 || v >= frame.NumLamps) {
			c.resetIDMapLocked()
			return ErrInvalidIDMap
		}
	}
	c.idMap = m
	return nil
}

// SetWhiteBalance installs a new per-channel multiplier, clamping each
// value to [0,1] rather than rejecting an out-of-range call.
func (c *Controller) SetWhiteBalance(wb colorops.WhiteBalance) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.wb = colorops.WhiteBalance{
		R: colorops.ClampUnit(wb.R),
		G: colorops.ClampUnit(wb.G),
		B: colorops.ClampUnit(wb.B),
	}
}

// SetGamut installs a new gamut matrix after clamping every entry to
// [0,1]. If the clamped matrix fails the no-amplification invariant
// (any row summing above 1.0), the gamut is reset to identity and an
// error is returned.
func (c *Controller) SetGamut(m colorops.Gamut) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var clamped colorops.Gamut
	for i := range m {
		for j := range m[i] {
			clamped[i][j] = colorops.ClampUnit(m[i][j])
		}
	}
	if !colorops.GamutValid(clamped) {
		c.gamut = colorops.DefaultGamut()
		return ErrInvalidGamut
	}
	c.gamut = clamped
	return nil
}

// translateLocked maps a logical lamp index to a physical one,
// reporting false if the lamp is out of range or disabled.
func (c *Controller) translateLocked(lamp int) (int, bool) {
	if lamp < 0 || lamp >= frame.NumLamps {
		return 0, false
	}
	physical := c.idMap[lamp]
	if physical == disabledPhysical {
		return 0, false
	}
	return physical, true
}

// --- tick ---

// Tick advances every pattern's VM by at most one tick-consuming
// opcode, recomposites changed lamps, removes any pattern that
// finished, and strobes the frame. Compositing runs before removal so
// a just-finished pattern's last color is baked into the buffer; its
// entry is gone from every lamp stack by the time the next tick looks
// for it. If a mutation is in flight, Tick skips entirely: buffer and
// all VM state are left byte-identical.
func (c *Controller) Tick() {
	if !c.mu.TryLock() {
		return
	}
	defer c.mu.Unlock()

	var finished []uint16
	for _, pat := range c.patterns {
		if pat.Step(c) == pattern.Done {
			finished = append(finished, pat.ID)
		}
	}

	// Composite using the stacks as they stand including patterns that
	// just finished this tick, so a completed pattern's final color is
	// baked into the buffer before its stack entry disappears.
	if c.changed {
		c.renderLocked()
		c.changed = false
	}

	for _, pid := range finished {
		c.removeLocked(pid)
	}

	if c.strobe != nil {
		if err := c.strobe.Emit(c.buffer); err != nil {
			c.log.Warn("strobe emit failed", zap.Error(err))
		}
	}
}

// renderLocked recomputes every physical lamp's color from its stack:
// top-down, skipping transparent patterns, falling back to the
// bottom-most entry's color (even if transparent) or BLACK if the
// stack is empty.
func (c *Controller) renderLocked() {
	for lamp := 0; lamp < frame.NumLamps; lamp++ {
		stack := c.stacks[lamp]
		color := c.compositeLocked(stack)
		frame.SetLamp(c.buffer, lamp, color)
	}
}

func (c *Controller) compositeLocked(stack []uint16) colorops.RGB12 {
	if len(stack) == 0 {
		return colorops.RGB12{}
	}
	for i := len(stack) - 1; i >= 0; i-- {
		pat, ok := c.byID[stack[i]]
		if !ok {
			continue
		}
		if pat.Visible {
			return pat.Color
		}
	}
	if pat, ok := c.byID[stack[0]]; ok {
		return pat.Color
	}
	return colorops.RGB12{}
}
