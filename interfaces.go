package autoboat

import (
	"context"

	"github.com/jd3nn1s/autoboat/boatcan"
	"github.com/jd3nn1s/autoboat/nmeagps"
)

type GPS interface {
	Close() error
	Start(context.Context, nmeagps.Callbacks) error
}

type CANBus interface {
	Close() error
	Start(context.Context, boatcan.Callbacks) error
	MotorSender
}

type MotorSender interface {
	SendMotors(ctx context.Context, left, right int) error
}

// Forwarder receives every telemetry record. Implementations must not keep
// the pointers beyond the call.
type Forwarder interface {
	Forward(newTelemetry *Telemetry, prevTelemetry *Telemetry) error
}
