// Package frame packs and unpacks the 36-byte wire frame that feeds a
// cascade of TLC5947-class 12-bit PWM sinks: 8 lamps x 3 channels x 12
// bits = 288 bits, MSB first, blue-then-green-then-red per lamp, two
// lamps sharing each run of 9 bytes.
package frame

import "github.com/ledcascade/ledcascade/internal/colorops"

// Size is the length in bytes of one device's wire frame (8 lamps x
// 36 bits each 36 bytes).
const Size = 36

// NumLamps is the number of RGB lamps driven by one 36-byte frame.
const NumLamps = 8

// lampBase is the byte offset of each lamp's 4.5-byte (36-bit) slot.
// Two lamps share 9 bytes: the even lamp of the pair is byte-aligned,
// the odd one is nibble-offset into the following byte.
var lampBase = [NumLamps]int{0, 4, 9, 13, 18, 22, 27, 31}

// SetLamp writes rgb into buf at logical lamp index i (0..7).
func SetLamp(buf []byte, i int, rgb colorops.RGB12) {
	b := lampBase[i]
	if i%2 == 0 {
		buf[b+0] = byte(rgb.B >> 4)
		buf[b+1] = byte((rgb.B&0xF)<<4) | byte((rgb.G>>8)&0xF)
		buf[b+2] = byte(rgb.G & 0xFF)
		buf[b+3] = byte(rgb.R >> 4)
		buf[b+4] = (byte((rgb.R&0xF)<<4) & 0xF0) | (buf[b+4] & 0x0F)
		return
	}
	buf[b+0] = (buf[b+0] & 0xF0) | byte((rgb.B>>8)&0xF)
	buf[b+1] = byte(rgb.B & 0xFF)
	buf[b+2] = byte(rgb.G >> 4)
	buf[b+3] = byte((rgb.G&0xF)<<4) | byte((rgb.R>>8)&0xF)
	buf[b+4] = byte(rgb.R & 0xFF)
}

// GetLamp reads back the 12-bit triple previously written by SetLamp
// at logical lamp index i. It is the exact inverse of SetLamp.
func GetLamp(buf []byte, i int) colorops.RGB12 {
	b := lampBase[i]
	if i%2 == 0 {
		blue := uint16(buf[b+0])<<4 | uint16(buf[b+1])>>4
		green := uint16(buf[b+1]&0xF)<<8 | uint16(buf[b+2])
		red := uint16(buf[b+3])<<4 | uint16(buf[b+4]&0xF0)>>4
		return colorops.RGB12{R: red, G: green, B: blue}
	}
	blue := uint16(buf[b+0]&0xF)<<8 | uint16(buf[b+1])
	green := uint16(buf[b+2])<<4 | uint16(buf[b+3]&0xF0)>>4
	red := uint16(buf[b+3]&0xF)<<8 | uint16(buf[b+4])
	return colorops.RGB12{R: red, G: green, B: blue}
}

// NewBuffer returns a zeroed 36-byte frame buffer (all lamps black).
func NewBuffer() []byte {
	return make([]byte, Size)
}
