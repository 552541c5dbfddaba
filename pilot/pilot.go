// Package pilot turns a target or a manually set bearing into a bounded
// steering correction.
package pilot

import (
	"math"
	"time"

	"github.com/jd3nn1s/autoboat/geo"
	"github.com/jd3nn1s/autoboat/pid"
	log "github.com/sirupsen/logrus"
)

const DefaultMaxCorrection = 250

type Config struct {
	// MaxCorrection bounds the correction in pulse width units.
	MaxCorrection    float64 `toml:"max_correction"`
	AutopilotBearing float64 `toml:"autopilot_bearing_deg"`
}

func DefaultConfig() Config {
	return Config{
		MaxCorrection: DefaultMaxCorrection,
	}
}

type Pilot struct {
	cfg              Config
	steering         *pid.Controller
	autopilotBearing float64
	correction       float64
}

func NewPilot(cfg Config, gains pid.Gains) *Pilot {
	return &Pilot{
		cfg:              cfg,
		steering:         pid.NewController(gains, pid.WithErrorFunc(headingError)),
		autopilotBearing: geo.NormalizeDegrees(cfg.AutopilotBearing),
	}
}

// headingError is the shortest signed turn from the observed heading to the
// desired bearing, positive clockwise.
func headingError(desired, observed float64) float64 {
	return geo.AngleDiff(desired, observed)
}

// AutonomousBearing is the initial great-circle bearing from current to target.
func (p *Pilot) AutonomousBearing(current, target geo.Location) float64 {
	return geo.Bearing(current, target)
}

func (p *Pilot) AutopilotBearing() float64 {
	return p.autopilotBearing
}

func (p *Pilot) AdjustAutopilotBearing(delta float64) {
	p.autopilotBearing = geo.NormalizeDegrees(p.autopilotBearing + delta)
	log.WithFields(log.Fields{
		"delta":   delta,
		"bearing": p.autopilotBearing,
	}).Info("autopilot bearing adjusted")
}

// CourseCorrection runs the steering PID for this iteration and returns its
// output bounded to +/- MaxCorrection. The heading may be a cached value.
func (p *Pilot) CourseCorrection(now time.Time, desired, observed float64, newSetpoint bool) float64 {
	out := p.steering.Compute(now, desired, observed, newSetpoint)
	p.correction = clamp(out, -p.cfg.MaxCorrection, p.cfg.MaxCorrection)
	log.WithFields(log.Fields{
		"desired":    desired,
		"observed":   observed,
		"raw":        out,
		"correction": p.correction,
	}).Debug("course correction")
	return p.correction
}

// Suspend is called on every iteration the steering loop does not run.
func (p *Pilot) Suspend() {
	p.steering.Suspend()
	p.correction = 0
}

// LastCorrection is the value returned by the most recent CourseCorrection.
func (p *Pilot) LastCorrection() float64 {
	return p.correction
}

// PID exposes the steering controller for runtime tuning.
func (p *Pilot) PID() *pid.Controller {
	return p.steering
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
