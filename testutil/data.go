package testutil

import (
	"fmt"
	"strings"
)

// Console redraw fixtures. Rows and columns in escape sequences are
// one-based; the joint readout lands on zero-based rows 3 and 4.

// ClearScreen homes the cursor and erases the display.
const ClearScreen = "\x1b[H\x1b[2J"

// JointFrame draws a joint readout for S, L, U, R, B, T, J7, J8 in that order.
func JointFrame(values [8]float64) string {
	line1 := fmt.Sprintf("S: %.3f L: %.3f U: %.3f R: %.3f B: %.3f T: %.3f",
		values[0], values[1], values[2], values[3], values[4], values[5])
	line2 := fmt.Sprintf("J7: %.3f J8: %.3f", values[6], values[7])
	return fmt.Sprintf("\x1b[4;1H\x1b[2K%s\x1b[5;1H\x1b[2K%s", line1, line2)
}

// PlcBits renders a 64-character 0/1 string in console form: X for set,
// - for clear, in eight space-separated groups.
func PlcBits(bits string) string {
	var b strings.Builder
	for i, c := range bits {
		if i > 0 && i%8 == 0 {
			b.WriteByte(' ')
		}
		if c == '1' {
			b.WriteByte('X')
		} else {
			b.WriteByte('-')
		}
	}
	return b.String()
}

// PlcFrame draws PLC IN and PLC OUT blocks. An empty argument omits that block.
func PlcFrame(in, out string) string {
	var b strings.Builder
	if in != "" {
		fmt.Fprintf(&b, "\x1b[9;1H\x1b[2KPLC IN\x1b[10;1H\x1b[2K0x0000: %s", PlcBits(in))
	}
	if out != "" {
		fmt.Fprintf(&b, "\x1b[12;1H\x1b[2KPLC OUT\x1b[13;1H\x1b[2K0x0000: %s", PlcBits(out))
	}
	return b.String()
}

// AlternatingBits returns 64 bits of 1010...
func AlternatingBits() string {
	return strings.Repeat("10", 32)
}
