package pattern

import "github.com/ledcascade/ledcascade/internal/colorops"

// StepResult is the outcome of advancing a Pattern's VM through
// exactly the work that fits in one tick.
type StepResult int

const (
	// Continue means the tick was consumed by Sleep, Forever or a taken
	// JumpNZ; the pattern stays installed.
	Continue StepResult = iota
	// Done means the pattern finished or hit a fatal VM error and
	// must be deleted by the caller.
	Done
)

const stackDepth = 10

// Environment is the Controller-side context a Pattern's VM needs
// while stepping: the color pipeline (white balance + gamut) and a
// way to flag that the composited output needs to be re-rendered this
// tick.
type Environment interface {
	Adjust(c colorops.RGB12) colorops.RGB12
	MarkChanged()
}

// Pattern is one installed animation program plus its running VM
// state.
type Pattern struct {
	ID uint16

	Tokens []Token
	pc     uint16

	stack    [stackDepth]int16
	stackPos uint8 // always valid: points at the current top element, starting at slot 0

	Brightness float32
	BaseColor  colorops.RGB12
	Color      colorops.RGB12
	Visible    bool
}

// NewPattern constructs a Pattern ready to run from tokens. Tokens
// must be non-empty; Tokenize never returns an empty slice without an
// error.
func NewPattern(id uint16, tokens []Token) *Pattern {
	return &Pattern{
		ID:         id,
		Tokens:     tokens,
		pc:         0,
		stackPos:   0,
		Brightness: 1.0,
		Visible:    true,
	}
}

// Reset rewinds a Pattern to run a fresh token array from the start,
// as Replace does: PC, stack, brightness and visibility all return to
// their initial values, but the identity (ID) is preserved.
func (p *Pattern) Reset(tokens []Token) {
	p.Tokens = tokens
	p.pc = 0
	p.stackPos = 0
	p.stack = [stackDepth]int16{}
	p.Brightness = 1.0
	p.Visible = true
	p.BaseColor = colorops.RGB12{}
	p.Color = colorops.RGB12{}
}

// Step runs instructions without consuming a tick until it either
// completes the tick (Continue) or finishes the pattern (Done). The
// only tick-consuming opcodes are Sleep, Forever, and a taken JumpNZ;
// a pattern containing none of those runs to completion inside a
// single tick.
func (p *Pattern) Step(env Environment) StepResult {
	for {
		if p.pc >= uint16(len(p.Tokens)) {
			return Done
		}
		tok := &p.Tokens[p.pc]

		switch tok.Kind {
		case KindColor:
			p.BaseColor = env.Adjust(tok.RGB12)
			p.Color = p.BaseColor
			p.Brightness = 1.0
			env.MarkChanged()
			if p.advance() {
				return Done
			}

		case KindTransparent:
			p.Visible = !p.Visible
			env.MarkChanged()
			if p.advance() {
				return Done
			}

		case KindSleep:
			if tok.SleepRemaining == 0 {
				tok.SleepRemaining = tok.SleepTotal
				return Continue
			}
			tok.SleepRemaining--
			if tok.SleepRemaining == 0 {
				if p.advance() {
					return Done
				}
				continue
			}
			return Continue

		case KindBrightness:
			p.Brightness = float32(colorops.ClampUnit(float64(p.Brightness + tok.BrightnessDelta)))
			p.Color = colorops.RGB12Brightness(p.BaseColor, float64(p.Brightness))
			env.MarkChanged()
			if p.advance() {
				return Done
			}

		case KindIncrement:
			p.stack[p.stackPos]++
			if p.advance() {
				return Done
			}

		case KindDecrement:
			p.stack[p.stackPos]--
			if p.advance() {
				return Done
			}

		case KindForever:
			p.collapseForever()
			return Continue

		case KindJumpNZ:
			if p.stack[p.stackPos] != 0 {
				p.pc = tok.JumpTarget
				return Continue
			}
			if p.advance() {
				return Done
			}

		case KindMark:
			if p.advance() {
				return Done
			}

		case KindPush:
			if p.stackPos == stackDepth-1 {
				return Done
			}
			p.stackPos++
			p.stack[p.stackPos] = tok.PushValue
			if p.advance() {
				return Done
			}

		case KindPop:
			if p.stackPos == 0 {
				return Done
			}
			p.stackPos--
			if p.advance() {
				return Done
			}

		default:
			return Done
		}
	}
}

// advance moves PC forward one token and reports whether that walked
// off the end of the token array.
func (p *Pattern) advance() (done bool) {
	p.pc++
	return p.pc >= uint16(len(p.Tokens))
}

// collapseForever swaps this pattern's owned token array for the
// shared static Forever singleton once a Forever opcode has run, so
// the (possibly large) original array can be released. The pattern
// must never write through p.Tokens after this point.
func (p *Pattern) collapseForever() {
	p.Tokens = foreverSingleton
	p.pc = 0
}
