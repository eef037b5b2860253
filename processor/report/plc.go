package report

import (
	"regexp"
	"strings"
)

// PlcBits is the number of indicators in one PLC block.
const PlcBits = 64

// PlcStateReport holds the PLC input and output bit fields. A nil field means
// that block was not on screen; a non-nil field is exactly PlcBits characters
// of '0' and '1'.
type PlcStateReport struct {
	PlcIn  *string `json:"plc_in,omitempty"`
	PlcOut *string `json:"plc_out,omitempty"`
}

// IsEmpty reports whether neither block was found.
func (r PlcStateReport) IsEmpty() bool {
	return r.PlcIn == nil && r.PlcOut == nil
}

// The label may be followed by other text and line breaks before the first
// address row; the indicator run is read from that row.
var (
	plcInPattern  = regexp.MustCompile(`(?s)PLC IN.*?0x0000:\s*([X\- ]+)`)
	plcOutPattern = regexp.MustCompile(`(?s)PLC OUT.*?0x0000:\s*([X\- ]+)`)
)

var indicatorReplacer = strings.NewReplacer(" ", "", "X", "1", "-", "0")

// ExtractPlcStates searches the whole screen for the PLC IN and PLC OUT
// blocks. Each block is independent of the other and of its position.
func ExtractPlcStates(lines []string) PlcStateReport {
	text := strings.Join(lines, "\n")
	return PlcStateReport{
		PlcIn:  extractBlock(plcInPattern, text),
		PlcOut: extractBlock(plcOutPattern, text),
	}
}

func extractBlock(re *regexp.Regexp, text string) *string {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return nil
	}

	bits := indicatorReplacer.Replace(m[1])
	if len(bits) < PlcBits {
		return nil
	}
	bits = bits[:PlcBits]
	return &bits
}

// placeholder is shown for a field that is absent or not PlcBits long.
var placeholder = strings.TrimSuffix(strings.Repeat("-------- ", PlcBits/8), " ")

// FormatBits renders a 64-bit field as eight space-separated groups of eight.
// Absent or malformed input renders as a dashed placeholder of the same shape.
func FormatBits(bits *string) string {
	if bits == nil || len(*bits) != PlcBits {
		return placeholder
	}

	var sb strings.Builder
	sb.Grow(PlcBits + PlcBits/8 - 1)
	for i := 0; i < PlcBits; i += 8 {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString((*bits)[i : i+8])
	}
	return sb.String()
}

// AnySet reports whether any bit in the field is '1'.
func AnySet(bits *string) bool {
	return bits != nil && strings.Contains(*bits, "1")
}
