package report

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/benkokes/elite-EI65-robot-controller/errors"
)

// JointOrder lists the joint identifiers in display order.
var JointOrder = [8]string{"S", "L", "U", "R", "B", "T", "J7", "J8"}

// JointAngles maps each joint identifier to its reported angle. A value
// produced by ExtractJointAngles always holds all eight joints, each finite.
type JointAngles map[string]float64

// Values returns the angles in JointOrder.
func (j JointAngles) Values() [8]float64 {
	var out [8]float64
	for i, name := range JointOrder {
		out[i] = j[name]
	}
	return out
}

// The T field is sometimes split by the console's column layout, so it
// accepts two numeric fragments separated by whitespace.
var jointPattern = regexp.MustCompile(
	`S:\s*([-\d.]+)\s*L:\s*([-\d.]+)\s*U:\s*([-\d.]+)\s*R:\s*([-\d.]+)\s*B:\s*([-\d.]+)` +
		`\s*T:\s*([-\d.]+\s*[-\d.]+)\s*J7:\s*([-\d.]+)\s*J8:\s*([-\d.]+)`)

// jointLines are the rows (zero-based) carrying the joint readout.
const (
	jointLineA = 3
	jointLineB = 4
)

// ExtractJointAngles reads the joint readout from rows 3 and 4 of the screen.
// It returns false with a nil error when the readout is not on screen, and an
// ErrMalformedField error when a value matched but does not parse as a finite
// number. No partial result is ever returned.
func ExtractJointAngles(lines []string) (JointAngles, bool, error) {
	if len(lines) <= jointLineB {
		return nil, false, nil
	}

	m := jointPattern.FindStringSubmatch(lines[jointLineA] + " " + lines[jointLineB])
	if m == nil {
		return nil, false, nil
	}

	angles := make(JointAngles, len(JointOrder))
	for i, name := range JointOrder {
		raw := m[i+1]
		if name == "T" {
			raw = strings.Join(strings.Fields(raw), "")
		}

		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || math.IsInf(v, 0) || math.IsNaN(v) {
			return nil, false, errors.WrapInvalid(
				fmt.Errorf("%w: joint %s value %q", errors.ErrMalformedField, name, raw),
				"report", "ExtractJointAngles", "parse joint value")
		}
		angles[name] = v
	}
	return angles, true, nil
}
