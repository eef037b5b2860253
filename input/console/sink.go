package console

import (
	"context"
	stderrors "errors"

	"github.com/benkokes/elite-EI65-robot-controller/processor/report"
)

// Sinks fans every record out to several sinks. A failing sink does not
// stop delivery to the others; their errors are joined.
type Sinks []TelemetrySink

// PublishJoints implements TelemetrySink.
func (s Sinks) PublishJoints(ctx context.Context, joints report.JointAngles) error {
	var errs []error
	for _, sink := range s {
		if err := sink.PublishJoints(ctx, joints); err != nil {
			errs = append(errs, err)
		}
	}
	return stderrors.Join(errs...)
}

// PublishPlc implements TelemetrySink.
func (s Sinks) PublishPlc(ctx context.Context, plc report.PlcStateReport) error {
	var errs []error
	for _, sink := range s {
		if err := sink.PublishPlc(ctx, plc); err != nil {
			errs = append(errs, err)
		}
	}
	return stderrors.Join(errs...)
}
