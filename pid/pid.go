// Package pid provides a discrete-time PID controller whose time base is
// supplied by the caller on every compute.
package pid

import (
	"time"

	log "github.com/sirupsen/logrus"
)

// Gains holds the controller coefficients.
type Gains struct {
	Kp float64 `toml:"kp"`
	Ki float64 `toml:"ki"`
	Kd float64 `toml:"kd"`
}

// State is the per-instance memory of the controller.
type State struct {
	LastCompute     time.Time
	PreviousError   float64
	CumulativeError float64
}

// ErrorFunc computes the control error from setpoint and input.
type ErrorFunc func(setpoint, input float64) float64

func difference(setpoint, input float64) float64 {
	return setpoint - input
}

// Controller is a single PID loop. It must not be shared between unrelated
// control axes.
type Controller struct {
	gains     Gains
	state     State
	errorFn   ErrorFunc
	suspended bool
}

type Option func(*Controller)

// WithErrorFunc replaces plain subtraction, e.g. for angular inputs.
func WithErrorFunc(fn ErrorFunc) Option {
	return func(c *Controller) {
		c.errorFn = fn
	}
}

func NewController(gains Gains, opts ...Option) *Controller {
	c := &Controller{
		gains:   clampGains(gains),
		errorFn: difference,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compute returns Kp*e + Ki*∫e + Kd*de/dt for this instant. When newSetpoint
// is set the integral restarts from zero. A non-positive dt (first call or
// clock not advanced) yields the proportional term only and leaves the
// integral and previous error untouched.
func (c *Controller) Compute(now time.Time, setpoint, input float64, newSetpoint bool) float64 {
	if newSetpoint {
		c.state.CumulativeError = 0
	}
	e := c.errorFn(setpoint, input)

	if c.state.LastCompute.IsZero() {
		c.state.LastCompute = now
		if c.suspended {
			// the error from before the pause is no basis for a derivative
			c.state.PreviousError = e
			c.suspended = false
		}
		return c.gains.Kp * e
	}
	dt := now.Sub(c.state.LastCompute).Seconds()
	if dt <= 0 {
		return c.gains.Kp * e
	}

	c.state.CumulativeError += e * dt
	derivative := (e - c.state.PreviousError) / dt
	c.state.PreviousError = e
	c.state.LastCompute = now

	return c.gains.Kp*e + c.gains.Ki*c.state.CumulativeError + c.gains.Kd*derivative
}

func (c *Controller) TuneKp(delta float64) {
	c.gains.Kp += delta
	c.gains = clampGains(c.gains)
	c.logGains()
}

func (c *Controller) TuneKi(delta float64) {
	c.gains.Ki += delta
	c.gains = clampGains(c.gains)
	c.logGains()
}

func (c *Controller) TuneKd(delta float64) {
	c.gains.Kd += delta
	c.gains = clampGains(c.gains)
	c.logGains()
}

// ResetForTuning drops the accumulated error but keeps the gains.
func (c *Controller) ResetForTuning() {
	c.state.CumulativeError = 0
}

// Suspend marks the controller dormant. The integral is kept but the time
// spent dormant is never integrated: the next Compute is proportional only
// and restarts the time base.
func (c *Controller) Suspend() {
	c.state.LastCompute = time.Time{}
	c.suspended = true
}

func (c *Controller) Gains() Gains {
	return c.gains
}

func (c *Controller) State() State {
	return c.state
}

func (c *Controller) logGains() {
	log.WithFields(log.Fields{
		"kp": c.gains.Kp,
		"ki": c.gains.Ki,
		"kd": c.gains.Kd,
	}).Info("pid gains tuned")
}

// gains are never negative
func clampGains(g Gains) Gains {
	if g.Kp < 0 {
		g.Kp = 0
	}
	if g.Ki < 0 {
		g.Ki = 0
	}
	if g.Kd < 0 {
		g.Kd = 0
	}
	return g
}
