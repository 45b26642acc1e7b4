package pattern

import (
	"errors"
	"fmt"

	"github.com/ledcascade/ledcascade/internal/colorops"
)

// Sentinel parse errors. Set/Replace surface these to the caller
// unchanged; no partial pattern is ever installed when one is
// returned.
var (
	ErrUnbalancedBrackets = errors.New("pattern: unbalanced [ ] brackets")
	ErrInvalidColor       = errors.New("pattern: '#' not followed by six hex digits")
	ErrUnknownCharacter   = errors.New("pattern: unrecognized character")
	ErrEmptyPattern       = errors.New("pattern: zero-length pattern")
	ErrTruncatedLiteral   = errors.New("pattern: truncated numeric literal")
)

const backspace = 0x08

// Tokenize runs the four-pass compile described in the pattern
// language spec: validate bracket balance, validate color literals,
// measure the emitted token count, then emit the token array. No
// partial array is ever returned on error.
func Tokenize(src string) ([]Token, error) {
	if err := checkBalancedJumps(src); err != nil {
		return nil, err
	}
	if err := checkColors(src); err != nil {
		return nil, err
	}
	n, err := measureLength(src)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, ErrEmptyPattern
	}
	return emit(src, n)
}

// checkBalancedJumps scans left to right counting '[' against ']'.
// Brackets can appear inside no other lexeme's payload, so a flat
// character scan is sufficient.
func checkBalancedJumps(src string) error {
	depth := 0
	for i := 0; i < len(src); i++ {
		switch src[i] {
		case '[':
			depth++
		case ']':
			depth--
			if depth < 0 {
				return ErrUnbalancedBrackets
			}
		}
	}
	if depth != 0 {
		return ErrUnbalancedBrackets
	}
	return nil
}

// checkColors verifies that every '#' is followed by six hex digits.
func checkColors(src string) error {
	for i := 0; i < len(src); i++ {
		if src[i] != '#' {
			continue
		}
		if i+6 >= len(src) {
			return ErrInvalidColor
		}
		for j := i + 1; j <= i+6; j++ {
			if !isHexDigit(src[j]) {
				return ErrInvalidColor
			}
		}
	}
	return nil
}

// measureLength walks the source counting emitted tokens. A
// non-whitespace byte that starts no recognized lexeme is a parse
// error. Scanning stops at the first ';' (Forever terminates
// emission).
func measureLength(src string) (int, error) {
	count := 0
	i := 0
	for i < len(src) {
		consumed, emits, terminal, err := scanLexeme(src, i)
		if err != nil {
			return 0, err
		}
		if emits {
			count++
		}
		i += consumed
		if terminal {
			break
		}
	}
	return count, nil
}

// emit performs the fourth pass: walk the source once more building
// the actual Token values, resolving JumpNZ targets by scanning
// already-emitted tokens backward.
func emit(src string, n int) ([]Token, error) {
	tokens := make([]Token, 0, n)
	i := 0
	for i < len(src) {
		if len(tokens) >= n {
			break
		}
		c := src[i]
		switch {
		case c == ' ':
			i++
			continue
		case c == '#':
			rgb8, err := colorops.ParseHex6(src[i : i+7])
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, Token{Kind: KindColor, RGB12: colorops.RGB8ToRGB12(rgb8)})
			i += 7
		case c == '@':
			tokens = append(tokens, Token{Kind: KindTransparent})
			i++
		case c == '|':
			digits, next, err := scanDigits(src, i+1)
			if err != nil {
				return nil, err
			}
			total, err := parseUint32(digits)
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, Token{Kind: KindSleep, SleepTotal: total})
			i = next
		case c == backspace:
			delta, next, err := scanBrightnessDelta(src, i+1)
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, Token{Kind: KindBrightness, BrightnessDelta: delta})
			i = next
		case c == '<':
			digits, next, err := scanDigits(src, i+1)
			if err != nil {
				return nil, err
			}
			v, err := parseUint32(digits)
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, Token{Kind: KindPush, PushValue: int16(v)})
			i = next
		case c == '>':
			tokens = append(tokens, Token{Kind: KindPop})
			i++
		case c == '[':
			tokens = append(tokens, Token{Kind: KindMark})
			i++
		case c == ']':
			target, err := resolveJumpTarget(tokens)
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, Token{Kind: KindJumpNZ, JumpTarget: target})
			i++
		case c == '+':
			tokens = append(tokens, Token{Kind: KindIncrement})
			i++
		case c == '-':
			tokens = append(tokens, Token{Kind: KindDecrement})
			i++
		case c == ';':
			tokens = append(tokens, Token{Kind: KindForever})
			return tokens, nil
		default:
			return nil, fmt.Errorf("%w: %q at offset %d", ErrUnknownCharacter, c, i)
		}
	}
	return tokens, nil
}

// resolveJumpTarget finds the index of the Mark matching a ']' about
// to be emitted, by scanning already-emitted tokens backward with a
// nesting counter. Nested brackets resolve innermost first.
func resolveJumpTarget(tokens []Token) (uint16, error) {
	depth := 1
	for j := len(tokens) - 1; j >= 0; j-- {
		switch tokens[j].Kind {
		case KindMark:
			depth--
			if depth == 0 {
				return uint16(j), nil
			}
		case KindJumpNZ:
			depth++
		}
	}
	return 0, ErrUnbalancedBrackets
}

// scanLexeme reports how many source bytes the lexeme starting at i
// consumes, whether it emits a token, and whether it terminates
// scanning (the ';' Forever marker).
func scanLexeme(src string, i int) (consumed int, emits bool, terminal bool, err error) {
	c := src[i]
	switch {
	case c == ' ':
		return 1, false, false, nil
	case c == '#':
		return 7, true, false, nil
	case c == '@', c == '>', c == '[', c == ']', c == '+', c == '-':
		return 1, true, false, nil
	case c == ';':
		return 1, true, true, nil
	case c == '|', c == '<':
		_, next, derr := scanDigits(src, i+1)
		if derr != nil {
			return 0, false, false, derr
		}
		return next - i, true, false, nil
	case c == backspace:
		_, next, derr := scanBrightnessDelta(src, i+1)
		if derr != nil {
			return 0, false, false, derr
		}
		return next - i, true, false, nil
	default:
		return 0, false, false, fmt.Errorf("%w: %q at offset %d", ErrUnknownCharacter, c, i)
	}
}

// scanDigits consumes one or more decimal digits starting at i and
// returns them along with the index just past them.
func scanDigits(src string, i int) (string, int, error) {
	start := i
	for i < len(src) && isDigit(src[i]) {
		i++
	}
	if i == start {
		return "", 0, fmt.Errorf("%w: expected digits at offset %d", ErrTruncatedLiteral, start)
	}
	return src[start:i], i, nil
}

// scanBrightnessDelta consumes '-'? DIGIT+ ('.' DIGIT+)? starting at
// i, returning the parsed signed value and the index just past it.
func scanBrightnessDelta(src string, i int) (float32, int, error) {
	start := i
	neg := false
	if i < len(src) && src[i] == '-' {
		neg = true
		i++
	}
	intPart, next, err := scanDigits(src, i)
	if err != nil {
		return 0, 0, err
	}
	i = next

	fracPart := ""
	if i < len(src) && src[i] == '.' {
		fracPart, i, err = scanDigits(src, i+1)
		if err != nil {
			return 0, 0, err
		}
	}

	lit := intPart
	if fracPart != "" {
		lit = intPart + "." + fracPart
	}
	v, err := parseFloat32(lit)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %q at offset %d", ErrTruncatedLiteral, src[start:i], start)
	}
	if neg {
		v = -v
	}
	return v, i, nil
}
