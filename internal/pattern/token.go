// Package pattern implements the textual animation language: a
// tokenizer that turns a pattern string into a flat token array, and
// the register/stack bytecode VM that steps a token array forward one
// tick at a time.
package pattern

import "github.com/ledcascade/ledcascade/internal/colorops"

// Kind identifies which variant a Token holds.
type Kind uint8

const (
	KindColor Kind = iota
	KindTransparent
	KindSleep
	KindBrightness
	KindIncrement
	KindDecrement
	KindForever
	KindJumpNZ
	KindMark
	KindPush
	KindPop
)

// Token is a tagged, pointer-free variant: every field is a plain
// value, so copying a Token (e.g. into the static Forever singleton
// swap, see Pattern.collapseForever) is a trivial shallow copy.
type Token struct {
	Kind Kind

	RGB12 colorops.RGB12 // KindColor

	SleepTotal     uint32 // KindSleep
	SleepRemaining uint32 // KindSleep, mutated in place during tick

	BrightnessDelta float32 // KindBrightness

	JumpTarget uint16 // KindJumpNZ: index of the matching Mark

	PushValue int16 // KindPush
}

// foreverSingleton is the statically-allocated token array a pattern's
// Tokens slice is swapped to when a Forever opcode executes, so the
// original (possibly large) token array can be released. Patterns
// whose Tokens points at this slice must never mutate it in place.
var foreverSingleton = []Token{{Kind: KindForever}}
