package pattern

import (
	"testing"

	"github.com/ledcascade/ledcascade/internal/colorops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// identityEnv is a pattern.Environment that applies no color pipeline
// and just counts MarkChanged calls, for isolated VM unit tests.
type identityEnv struct {
	changedCount int
}

func (e *identityEnv) Adjust(c colorops.RGB12) colorops.RGB12 { return c }
func (e *identityEnv) MarkChanged()                           { e.changedCount++ }

func mustTokenize(t *testing.T, src string) []Token {
	t.Helper()
	toks, err := Tokenize(src)
	require.NoError(t, err)
	return toks
}

// S1: a single Color token latches the color and completes the
// pattern in one tick.
func TestStepConstantColor(t *testing.T) {
	p := NewPattern(1, mustTokenize(t, "#0000FF"))
	env := &identityEnv{}

	result := p.Step(env)

	assert.Equal(t, Done, result)
	assert.Equal(t, colorops.RGB8ToRGB12(colorops.RGB8{B: 0xFF}), p.Color)
	assert.Equal(t, 1, env.changedCount)
}

// S2: blinker "+[#FFFFFF|500#000000|500]" — after one tick white is
// latched and the pattern is paused inside the first Sleep.
func TestStepBlinkerFirstTick(t *testing.T) {
	p := NewPattern(1, mustTokenize(t, "+[#FFFFFF|500#000000|500]"))
	env := &identityEnv{}

	result := p.Step(env)

	assert.Equal(t, Continue, result)
	assert.Equal(t, colorops.RGB8ToRGB12(colorops.RGB8{R: 0xFF, G: 0xFF, B: 0xFF}), p.Color)
}

func TestStepBlinkerNeverTerminates(t *testing.T) {
	p := NewPattern(1, mustTokenize(t, "+[#FFFFFF|500#000000|500]"))
	env := &identityEnv{}

	for i := 0; i < 5000; i++ {
		result := p.Step(env)
		require.Equal(t, Continue, result, "blinker must never finish, tick %d", i)
	}
}

// S3: 11 pushes overflow the 10-deep stack; the pattern is fatally
// done in one tick.
func TestStepStackOverflow(t *testing.T) {
	src := ""
	for i := 0; i < 11; i++ {
		src += "<1"
	}
	p := NewPattern(1, mustTokenize(t, src))
	env := &identityEnv{}

	assert.Equal(t, Done, p.Step(env))
}

func TestStepPopUnderflow(t *testing.T) {
	p := NewPattern(1, mustTokenize(t, ">"))
	env := &identityEnv{}
	assert.Equal(t, Done, p.Step(env))
}

func TestStepPushPopBalanced(t *testing.T) {
	p := NewPattern(1, mustTokenize(t, "<1<2<3>>>"))
	env := &identityEnv{}
	assert.Equal(t, Done, p.Step(env))
}

func TestStepTransparentTogglesVisibility(t *testing.T) {
	p := NewPattern(1, mustTokenize(t, "@#FF0000"))
	env := &identityEnv{}
	assert.True(t, p.Visible)
	p.Step(env)
	assert.False(t, p.Visible)
}

func TestStepBrightnessClamps(t *testing.T) {
	p := NewPattern(1, mustTokenize(t, "#FFFFFF\x08-2.0"))
	env := &identityEnv{}
	p.Step(env)
	assert.Equal(t, float32(0), p.Brightness)
}

func TestStepForeverCollapsesTokens(t *testing.T) {
	p := NewPattern(1, mustTokenize(t, "#FF0000;"))
	env := &identityEnv{}

	// Color falls through into Forever within the same Step call, which
	// collapses the token array immediately.
	assert.Equal(t, Continue, p.Step(env))
	assert.Len(t, p.Tokens, 1)
	assert.Equal(t, Continue, p.Step(env)) // still parked on Forever
	assert.Equal(t, KindForever, p.Tokens[0].Kind)

	for i := 0; i < 100; i++ {
		assert.Equal(t, Continue, p.Step(env))
	}
}

func TestStepJumpNZTaken(t *testing.T) {
	// push 2, mark, decrement, jump-if-nonzero back to mark: loops
	// exactly twice before the stack value hits zero and falls through.
	p := NewPattern(1, mustTokenize(t, "<2[-]"))
	env := &identityEnv{}

	// first tick: push(falls through), mark(falls through), decrement
	// (falls through, stack=1), JumpNZ taken (stack!=0) -> consumes tick
	assert.Equal(t, Continue, p.Step(env))
	// second tick: decrement falls to 0, JumpNZ not taken, falls off end -> Done
	assert.Equal(t, Done, p.Step(env))
}

func TestResetReturnsToInitialState(t *testing.T) {
	p := NewPattern(7, mustTokenize(t, "#FF0000\x080.5@"))
	env := &identityEnv{}
	p.Step(env)

	p.Reset(mustTokenize(t, "#00FF00"))

	assert.Equal(t, uint16(7), p.ID, "identity survives a reset")
	assert.Equal(t, float32(1.0), p.Brightness)
	assert.True(t, p.Visible)
	assert.Equal(t, colorops.RGB12{}, p.Color)
}
