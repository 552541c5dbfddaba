package autoboat

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

var motorSendTimeout = 100 * time.Millisecond

// MotorForwarder commands the motor controllers whenever the pulse widths
// differ from the last command that was successfully sent.
type MotorForwarder struct {
	sender MotorSender

	sent        bool
	left, right int16
}

func NewMotorForwarder(sender MotorSender) *MotorForwarder {
	return &MotorForwarder{sender: sender}
}

func (fwd *MotorForwarder) Forward(newTelemetry *Telemetry, _ *Telemetry) error {
	if fwd.sent && newTelemetry.LeftPulseWidth == fwd.left && newTelemetry.RightPulseWidth == fwd.right {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), motorSendTimeout)
	defer cancel()
	err := fwd.sender.SendMotors(ctx, int(newTelemetry.LeftPulseWidth), int(newTelemetry.RightPulseWidth))
	if err != nil {
		fwd.sent = false
		return errors.Wrap(err, "unable to send motor command to CAN bus")
	}
	fwd.sent = true
	fwd.left = newTelemetry.LeftPulseWidth
	fwd.right = newTelemetry.RightPulseWidth
	return nil
}
