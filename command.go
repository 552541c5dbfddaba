package autoboat

import (
	"math"

	"github.com/jd3nn1s/autoboat/geo"
	"github.com/jd3nn1s/autoboat/route"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrNoFix          = errors.New("no gps fix yet")
)

type CommandKind string

const (
	CmdSetMode             CommandKind = "set_mode"
	CmdTuneKp              CommandKind = "tune_kp"
	CmdTuneKi              CommandKind = "tune_ki"
	CmdTuneKd              CommandKind = "tune_kd"
	CmdResetPID            CommandKind = "reset_pid"
	CmdAdjustBaseline      CommandKind = "adjust_baseline"
	CmdAdjustBearing       CommandKind = "adjust_bearing"
	CmdSetTestWaypoint     CommandKind = "set_test_waypoint"
	CmdSetTestWaypointHere CommandKind = "set_test_waypoint_here"
	CmdRoundtrip           CommandKind = "roundtrip"
	CmdResetWaypoints      CommandKind = "reset_waypoints"
)

// Command is an operator request. Which fields matter depends on Kind: Value
// carries deltas and the roundtrip distance, Index/Latitude/Longitude the test
// waypoint.
type Command struct {
	Kind      CommandKind `json:"cmd"`
	Mode      string      `json:"mode,omitempty"`
	Value     float64     `json:"value,omitempty"`
	Index     int         `json:"index,omitempty"`
	Latitude  float64     `json:"lat,omitempty"`
	Longitude float64     `json:"lon,omitempty"`
}

// Submit queues a command for the next iteration boundary. It never blocks
// and reports false when the queue is full.
func (b *Boat) Submit(cmd Command) bool {
	select {
	case b.cmdChan <- cmd:
		return true
	default:
		log.WithField("cmd", cmd.Kind).Warn("command queue full, dropping command")
		return false
	}
}

// applyCommands drains the queue. Called only between iterations.
func (b *Boat) applyCommands() {
	for {
		select {
		case cmd := <-b.cmdChan:
			if err := b.apply(cmd); err != nil {
				log.WithFields(log.Fields{
					"cmd": cmd.Kind,
					"err": err,
				}).Warn("command rejected")
			}
		default:
			return
		}
	}
}

func (b *Boat) apply(cmd Command) error {
	switch cmd.Kind {
	case CmdSetMode:
		m, err := ParseMode(cmd.Mode)
		if err != nil {
			return err
		}
		b.setMode(m)
	case CmdTuneKp:
		b.pilot.PID().TuneKp(cmd.Value)
	case CmdTuneKi:
		b.pilot.PID().TuneKi(cmd.Value)
	case CmdTuneKd:
		b.pilot.PID().TuneKd(cmd.Value)
	case CmdResetPID:
		b.pilot.PID().ResetForTuning()
		log.Info("pid accumulated error reset")
	case CmdAdjustBaseline:
		if math.IsNaN(cmd.Value) {
			return errors.New("baseline delta is not a number")
		}
		// no delta needs to exceed the width of the baseline range
		span := float64(b.cfg.Propulsion.MaxBaselinePulseWidth - b.cfg.Propulsion.MinBaselinePulseWidth)
		delta := math.Max(-span, math.Min(span, cmd.Value))
		b.propulsion.AdjustBaseline(int(math.Round(delta)))
	case CmdAdjustBearing:
		b.pilot.AdjustAutopilotBearing(cmd.Value)
		b.bearingChanged = true
	case CmdSetTestWaypoint:
		if cmd.Latitude < -90 || cmd.Latitude > 90 || cmd.Longitude < -180 || cmd.Longitude > 180 {
			return errors.Errorf("invalid position (%v, %v)", cmd.Latitude, cmd.Longitude)
		}
		wp := route.FromLocation(geo.FromDegrees(cmd.Latitude, cmd.Longitude))
		return b.store.SetTestWaypoint(cmd.Index, wp)
	case CmdSetTestWaypointHere:
		if !b.lastFix.Valid {
			return ErrNoFix
		}
		return b.store.SetTestWaypoint(cmd.Index, route.FromLocation(b.lastFix.Location))
	case CmdRoundtrip:
		return b.setRoundtrip(cmd.Value)
	case CmdResetWaypoints:
		if err := b.store.ClearTestWaypoints(); err != nil {
			return err
		}
		b.navigator.ResetIndex()
	default:
		return errors.Wrapf(ErrUnknownCommand, "%q", cmd.Kind)
	}
	return nil
}

// setRoundtrip lays out an out-and-back test route from the last fix, heading
// out along the last known true heading.
func (b *Boat) setRoundtrip(distance float64) error {
	if !b.lastFix.Valid {
		return ErrNoFix
	}
	if distance <= 0 {
		return errors.Errorf("roundtrip distance must be positive, got %v", distance)
	}
	bearing, _ := b.navigator.CachedTrueHeading()
	if err := b.store.SetRoundtrip(b.lastFix.Location, bearing, distance); err != nil {
		return err
	}
	b.navigator.ResetIndex()
	log.WithFields(log.Fields{
		"distance": distance,
		"bearing":  bearing,
	}).Info("roundtrip route set")
	return nil
}
