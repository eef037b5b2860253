package control

import (
	"context"
	stderrors "errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/benkokes/elite-EI65-robot-controller/errors"
	"github.com/benkokes/elite-EI65-robot-controller/processor/report"
)

// Speed set-point limits accepted by the controller.
const (
	MinSpeed = 0
	MaxSpeed = 10000
)

// ErrSpeedOutOfRange is returned for set-points outside MinSpeed..MaxSpeed.
var ErrSpeedOutOfRange = stderrors.New("speed value out of range (0-10000)")

// Status is the result of a full status query.
type Status struct {
	Mode  Response `json:"mode"`
	Speed Response `json:"speed"`
	Coord Response `json:"coord"`
	Servo Response `json:"servo"`
}

// Failed reports whether any of the four queries failed.
func (s Status) Failed() bool {
	return s.Mode.IsError() || s.Speed.IsError() || s.Coord.IsError() || s.Servo.IsError()
}

// MoveCommand renders a runForward command for targets in joint order.
// Missing joints are sent as 0.
func MoveCommand(targets report.JointAngles) string {
	parts := make([]string, 0, len(report.JointOrder)+1)
	parts = append(parts, "runForward")
	for _, joint := range report.JointOrder {
		v, ok := targets[joint]
		if !ok {
			parts = append(parts, "0")
			continue
		}
		parts = append(parts, strconv.FormatFloat(v, 'f', 6, 64))
	}
	return strings.Join(parts, " ")
}

// Move sends a runForward command with the given joint targets.
func (c *Client) Move(ctx context.Context, targets report.JointAngles) error {
	return c.fire(ctx, "Move", MoveCommand(targets))
}

// Stop sends the stop command.
func (c *Client) Stop(ctx context.Context) error {
	return c.fire(ctx, "Stop", "stop")
}

// SetSpeed sends a new speed set-point after range validation.
func (c *Client) SetSpeed(ctx context.Context, speed int) error {
	if speed < MinSpeed || speed > MaxSpeed {
		return errors.WrapInvalid(ErrSpeedOutOfRange, "Client", "SetSpeed", fmt.Sprintf("validate speed %d", speed))
	}
	return c.fire(ctx, "SetSpeed", fmt.Sprintf("speed %d", speed))
}

// QueryStatus queries mode, speed, coord and servo in that order.
func (c *Client) QueryStatus(ctx context.Context) Status {
	return Status{
		Mode:  c.Send(ctx, CommandMode),
		Speed: c.Send(ctx, CommandSpeed),
		Coord: c.Send(ctx, CommandCoord),
		Servo: c.Send(ctx, CommandServo),
	}
}

// fire sends a command without waiting for a reply.
func (c *Client) fire(ctx context.Context, method, command string) error {
	if _, err := c.exchange(ctx, command, false); err != nil {
		c.logger.Warn("Error sending command", "command", command, "error", err)
		return errors.Wrap(err, "Client", method, fmt.Sprintf("send %q", command))
	}
	c.logger.Info("Sent command", "command", command)
	return nil
}
