package natsclient

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/benkokes/elite-EI65-robot-controller/errors"
	"github.com/benkokes/elite-EI65-robot-controller/processor/report"
)

// Publisher is the transport the telemetry publisher writes to. *Client
// implements it.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// JointsMessage is published on <prefix>.joints.
type JointsMessage struct {
	Timestamp time.Time          `json:"timestamp"`
	Joints    report.JointAngles `json:"joints"`
}

// PlcMessage is published on <prefix>.plc.
type PlcMessage struct {
	Timestamp time.Time `json:"timestamp"`
	report.PlcStateReport
}

// TelemetryPublisher encodes telemetry as JSON and publishes it under a
// subject prefix.
type TelemetryPublisher struct {
	transport Publisher
	prefix    string
	logger    *slog.Logger
	now       func() time.Time

	published atomic.Int64
	failed    atomic.Int64
}

// NewTelemetryPublisher creates a publisher writing below prefix.
func NewTelemetryPublisher(transport Publisher, prefix string, logger *slog.Logger) *TelemetryPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	if prefix == "" {
		prefix = "robotmon"
	}
	return &TelemetryPublisher{
		transport: transport,
		prefix:    prefix,
		logger:    logger.With("component", "telemetry-publisher"),
		now:       time.Now,
	}
}

// JointsSubject returns the subject joint angles are published on.
func (p *TelemetryPublisher) JointsSubject() string { return p.prefix + ".joints" }

// PlcSubject returns the subject PLC states are published on.
func (p *TelemetryPublisher) PlcSubject() string { return p.prefix + ".plc" }

// PublishJoints publishes one set of joint angles.
func (p *TelemetryPublisher) PublishJoints(ctx context.Context, joints report.JointAngles) error {
	return p.publish(ctx, p.JointsSubject(), JointsMessage{Timestamp: p.now().UTC(), Joints: joints})
}

// PublishPlc publishes one PLC state report.
func (p *TelemetryPublisher) PublishPlc(ctx context.Context, plc report.PlcStateReport) error {
	return p.publish(ctx, p.PlcSubject(), PlcMessage{Timestamp: p.now().UTC(), PlcStateReport: plc})
}

// Stats returns published and failed message counts.
func (p *TelemetryPublisher) Stats() (published, failed int64) {
	return p.published.Load(), p.failed.Load()
}

func (p *TelemetryPublisher) publish(ctx context.Context, subject string, msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		p.failed.Add(1)
		return errors.WrapInvalid(err, "TelemetryPublisher", "publish", "encode message")
	}
	if err := p.transport.Publish(ctx, subject, data); err != nil {
		p.failed.Add(1)
		p.logger.Debug("Telemetry publish failed", "subject", subject, "error", err)
		return errors.Wrap(err, "TelemetryPublisher", "publish", "publish to "+subject)
	}
	p.published.Add(1)
	return nil
}
