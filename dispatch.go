package autoboat

import (
	"time"

	"github.com/jd3nn1s/autoboat/nav"
	"github.com/jd3nn1s/autoboat/propulsion"
	log "github.com/sirupsen/logrus"
)

// modeHandler turns one sensor snapshot into motor commands for its mode.
type modeHandler interface {
	step(now time.Time, in Inputs) propulsion.State
}

type handlerFunc func(now time.Time, in Inputs) propulsion.State

func (fn handlerFunc) step(now time.Time, in Inputs) propulsion.State {
	return fn(now, in)
}

func (b *Boat) modeHandlers() map[Mode]modeHandler {
	return map[Mode]modeHandler{
		ModeAutonomous:             handlerFunc(b.navigate),
		ModeAutonomousTesting:      handlerFunc(b.navigate),
		ModeAutoPilot:              handlerFunc(b.autopilot),
		ModeFixedPowerNoSteering:   handlerFunc(b.fixedPower),
		ModeDynamicPowerNoSteering: handlerFunc(b.dynamicPower),
		ModeRemoteControlled:       handlerFunc(b.remoteControl),
	}
}

// navigate runs the full pipeline on budgeted cruise power. Without a new fix
// the previous target and bearing are kept.
func (b *Boat) navigate(now time.Time, in Inputs) propulsion.State {
	target, err := b.navigator.TargetFor(in.Fix)
	if err != nil {
		if !b.routeFault {
			log.WithFields(log.Fields{
				"mode": b.mode,
				"err":  err,
			}).Error("route fault, halting propulsion")
		}
		b.routeFault = true
		return b.propulsion.Halt(in.Power)
	}
	if b.routeFault {
		log.WithField("mode", b.mode).Info("route fault cleared")
		b.routeFault = false
	}
	if !target.Valid {
		// no fix since startup
		return b.propulsion.Halt(in.Power)
	}
	if b.navigator.Complete() && b.navigator.EndPolicy() == nav.HaltAtEnd {
		return b.propulsion.Halt(in.Power)
	}

	newSetpoint := target.Location != b.lastTarget.Location
	b.lastTarget = target
	if in.Fix.Valid {
		b.desiredBearing = b.pilot.AutonomousBearing(in.Fix.Location, target.Location)
	}
	return b.propulsion.Drive(in.Power, b.correction(now, newSetpoint), true)
}

// autopilot holds the operator bearing on baseline power.
func (b *Boat) autopilot(now time.Time, in Inputs) propulsion.State {
	newSetpoint := b.bearingChanged
	b.bearingChanged = false
	b.desiredBearing = b.pilot.AutopilotBearing()
	return b.propulsion.Drive(in.Power, b.correction(now, newSetpoint), false)
}

func (b *Boat) fixedPower(_ time.Time, in Inputs) propulsion.State {
	return b.propulsion.Drive(in.Power, 0, false)
}

func (b *Boat) dynamicPower(_ time.Time, in Inputs) propulsion.State {
	return b.propulsion.Drive(in.Power, 0, true)
}

// remoteControl passes the receiver through. A lost receiver idles the
// motors.
func (b *Boat) remoteControl(_ time.Time, in Inputs) propulsion.State {
	if !in.RC.Valid {
		return b.propulsion.Halt(in.Power)
	}
	return b.propulsion.DriveRaw(in.Power, in.RC.Steering, in.RC.Throttle)
}

// correction steers towards desiredBearing using the cached true heading.
// With no heading ever received the boat goes straight.
func (b *Boat) correction(now time.Time, newSetpoint bool) float64 {
	heading, ok := b.navigator.CachedTrueHeading()
	if !ok {
		return 0
	}
	b.steering = true
	return b.pilot.CourseCorrection(now, b.desiredBearing, heading, newSetpoint)
}
