package control

import (
	"regexp"
	"strings"
)

// Query commands with a dedicated reply interpretation.
const (
	CommandSpeed = "speed"
	CommandServo = "servo"
	CommandCoord = "coord"
	CommandMode  = "mode"
)

// Sentinel values reported in place of an interpreted reply.
const (
	ErrorValue        = "ERROR"
	NoSpeedValue      = "ERROR: No speed found"
	ServoUnknownValue = "ERROR: Servo status unknown"
	CoordUnknownValue = "ERROR: Coord mode unknown"
	ModeUnknownValue  = "ERROR: Mode unknown"
)

var (
	speedPattern = regexp.MustCompile(`mcserver>\s*(\d+)`)
	servoPattern = regexp.MustCompile(`(?i)servo\s*(on|off)`)
	// cylinder must precede cyl so the longer name wins.
	coordPattern = regexp.MustCompile(`(?i)mcserver>current mode:\s*(joint|cart|cylinder|cyl|tool|user)`)
	modePattern  = regexp.MustCompile(`(?i)mcserver>current mode:\s*(\w+)`)
)

// Response is the outcome of one query.
type Response struct {
	Command string `json:"command"`
	// Value is the interpreted reply, the raw text for uninterpreted
	// commands, or one of the ERROR sentinels.
	Value string `json:"value"`
	Raw   string `json:"raw,omitempty"`
	// Err is set only when the exchange itself failed.
	Err error `json:"-"`
}

// IsError reports whether Value is a sentinel rather than a reading.
func (r Response) IsError() bool {
	return r.Err != nil || strings.HasPrefix(r.Value, ErrorValue)
}

func (r Response) String() string {
	return r.Value
}

// Interpret extracts the meaningful value from a cleaned reply.
func Interpret(command, raw string) Response {
	resp := Response{Command: command, Raw: raw}
	switch command {
	case CommandSpeed:
		resp.Value = firstGroup(speedPattern, raw, NoSpeedValue, false)
	case CommandServo:
		resp.Value = firstGroup(servoPattern, raw, ServoUnknownValue, true)
	case CommandCoord:
		resp.Value = firstGroup(coordPattern, raw, CoordUnknownValue, true)
	case CommandMode:
		resp.Value = firstGroup(modePattern, raw, ModeUnknownValue, true)
	default:
		resp.Value = raw
	}
	return resp
}

func firstGroup(re *regexp.Regexp, raw, fallback string, upper bool) string {
	m := re.FindStringSubmatch(raw)
	if m == nil {
		return fallback
	}
	if upper {
		return strings.ToUpper(m[1])
	}
	return m[1]
}
