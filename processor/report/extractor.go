// Package report extracts structured telemetry from reconstructed console screens.
package report

import (
	"log/slog"

	"github.com/benkokes/elite-EI65-robot-controller/screen"
)

// Result is everything extracted from one screen snapshot.
type Result struct {
	Joints   JointAngles
	JointsOK bool
	Plc      PlcStateReport
}

// Extractor runs both extractors over the same snapshot and logs outcomes.
type Extractor struct {
	logger *slog.Logger
}

// NewExtractor creates an extractor. A nil logger falls back to slog.Default.
func NewExtractor(logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{logger: logger.With("component", "report")}
}

// Process extracts joints and PLC states from one snapshot. A malformed
// joint value is logged and reported as no joints; it never affects the PLC result.
func (e *Extractor) Process(snap screen.Snapshot) (Result, error) {
	var res Result

	joints, ok, err := ExtractJointAngles(snap)
	switch {
	case err != nil:
		e.logger.Warn("Error parsing joint angles", "error", err)
	case ok:
		res.Joints, res.JointsOK = joints, true
	default:
		e.logger.Debug("No joint readout on screen")
	}

	res.Plc = ExtractPlcStates(snap)
	if res.Plc.IsEmpty() {
		e.logger.Debug("No PLC states extracted")
	}
	return res, err
}
