package pattern

import (
	"testing"

	"github.com/ledcascade/ledcascade/internal/colorops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenizeColor(t *testing.T) {
	toks, err := Tokenize("#FF00AA")
	require.NoError(t, err)
	require.Len(t, toks, 1)
	assert.Equal(t, KindColor, toks[0].Kind)
	assert.Equal(t, colorops.RGB8ToRGB12(colorops.RGB8{R: 0xFF, G: 0x00, B: 0xAA}), toks[0].RGB12)
}

func TestTokenizeIgnoresSpaces(t *testing.T) {
	toks, err := Tokenize("#FF0000 @ >")
	require.NoError(t, err)
	require.Len(t, toks, 3)
	assert.Equal(t, KindColor, toks[0].Kind)
	assert.Equal(t, KindTransparent, toks[1].Kind)
	assert.Equal(t, KindPop, toks[2].Kind)
}

func TestTokenizeSleep(t *testing.T) {
	toks, err := Tokenize("|500")
	require.NoError(t, err)
	require.Len(t, toks, 1)
	assert.Equal(t, KindSleep, toks[0].Kind)
	assert.Equal(t, uint32(500), toks[0].SleepTotal)
}

func TestTokenizeBrightness(t *testing.T) {
	toks, err := Tokenize("\x08-0.1")
	require.NoError(t, err)
	require.Len(t, toks, 1)
	assert.Equal(t, KindBrightness, toks[0].Kind)
	assert.InDelta(t, float32(-0.1), toks[0].BrightnessDelta, 0.0001)
}

func TestTokenizePushValue(t *testing.T) {
	toks, err := Tokenize("<5")
	require.NoError(t, err)
	require.Len(t, toks, 1)
	assert.Equal(t, KindPush, toks[0].Kind)
	assert.Equal(t, int16(5), toks[0].PushValue)
}

func TestTokenizeForeverTerminates(t *testing.T) {
	toks, err := Tokenize("#FF0000;@")
	require.NoError(t, err)
	require.Len(t, toks, 2)
	assert.Equal(t, KindColor, toks[0].Kind)
	assert.Equal(t, KindForever, toks[1].Kind)
}

func TestTokenizeUnbalancedBrackets(t *testing.T) {
	_, err := Tokenize("[#FF0000")
	assert.ErrorIs(t, err, ErrUnbalancedBrackets)

	_, err = Tokenize("]")
	assert.ErrorIs(t, err, ErrUnbalancedBrackets)
}

func TestTokenizeInvalidColor(t *testing.T) {
	_, err := Tokenize("#GG0000")
	assert.ErrorIs(t, err, ErrInvalidColor)

	_, err = Tokenize("#FF00")
	assert.ErrorIs(t, err, ErrInvalidColor)
}

func TestTokenizeUnknownCharacter(t *testing.T) {
	_, err := Tokenize("#FF0000z")
	assert.ErrorIs(t, err, ErrUnknownCharacter)
}

func TestTokenizeEmptyPattern(t *testing.T) {
	_, err := Tokenize("")
	assert.ErrorIs(t, err, ErrEmptyPattern)

	_, err = Tokenize("   ")
	assert.ErrorIs(t, err, ErrEmptyPattern)
}

// TestTokenizeJumpTargets is the S4 boundary scenario: a nested
// decrement loop where every JumpNZ must resolve to its nearest
// preceding, still-unmatched Mark.
func TestTokenizeJumpTargets(t *testing.T) {
	toks, err := Tokenize("<5[#FF0000<10[|50\x08-0.1-]>-|50]")
	require.NoError(t, err)

	require.Equal(t, KindPush, toks[0].Kind)
	assert.Equal(t, int16(5), toks[0].PushValue)

	var marks, jumps []int
	for i, tok := range toks {
		switch tok.Kind {
		case KindMark:
			marks = append(marks, i)
		case KindJumpNZ:
			jumps = append(jumps, i)
		}
	}
	require.Len(t, marks, 2)
	require.Len(t, jumps, 2)

	// inner loop's ']' must target the inner (later) Mark
	innerJump := toks[jumps[0]]
	assert.Equal(t, uint16(marks[1]), innerJump.JumpTarget)

	// outer loop's ']' must target the outer (earlier) Mark
	outerJump := toks[jumps[1]]
	assert.Equal(t, uint16(marks[0]), outerJump.JumpTarget)
}

func TestTokenizeNestedNonOverlapping(t *testing.T) {
	// [ [ ] [ ] ]  -- outer mark at 0, two disjoint inner loops
	toks, err := Tokenize("[[]+[]+]")
	require.NoError(t, err)

	var marks, jumps []int
	for i, tok := range toks {
		switch tok.Kind {
		case KindMark:
			marks = append(marks, i)
		case KindJumpNZ:
			jumps = append(jumps, i)
		}
	}
	require.Len(t, marks, 3)
	require.Len(t, jumps, 3)

	// marks: 0 (outer), 1 (first inner), 4 (second inner)
	// jumps: 2 (closes inner#1 -> mark 1), 5 (closes inner#2 -> mark 4), 7 (closes outer -> mark 0)
	assert.Equal(t, uint16(marks[1]), toks[jumps[0]].JumpTarget)
	assert.Equal(t, uint16(marks[2]), toks[jumps[1]].JumpTarget)
	assert.Equal(t, uint16(marks[0]), toks[jumps[2]].JumpTarget)
}
