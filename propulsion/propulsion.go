// Package propulsion converts cruise power and steering correction into motor
// pulse widths, gated by a battery voltage cutoff with hysteresis.
package propulsion

import (
	"math"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const (
	DefaultLowerCutoffMv = 10400
	DefaultUpperCutoffMv = 10800

	DefaultIdlePulseWidth = 1000
	DefaultMinPulseWidth  = 1000
	DefaultMaxPulseWidth  = 2000

	DefaultBaselinePulseWidth    = 1200
	DefaultMinBaselinePulseWidth = 1000
	DefaultMaxBaselinePulseWidth = 1600

	DefaultPulseWidthPerWatt   = 2.0
	DefaultRCNeutralPulseWidth = 1500
)

// PowerReading is what the power collaborator last reported. An invalid
// reading is treated as a battery below the lower cutoff.
type PowerReading struct {
	BatteryMv int
	BudgetW   int
	Valid     bool
}

type Config struct {
	LowerCutoffMv int `toml:"lower_cutoff_mv"`
	UpperCutoffMv int `toml:"upper_cutoff_mv"`

	IdlePulseWidth int `toml:"idle_pulse_width"`
	MinPulseWidth  int `toml:"min_pulse_width"`
	MaxPulseWidth  int `toml:"max_pulse_width"`

	BaselinePulseWidth    int `toml:"baseline_pulse_width"`
	MinBaselinePulseWidth int `toml:"min_baseline_pulse_width"`
	MaxBaselinePulseWidth int `toml:"max_baseline_pulse_width"`

	PulseWidthPerWatt float64 `toml:"pulse_width_per_watt"`

	// CorrectionSign is +1 when a positive correction should speed up the
	// left motor, -1 when the motors are mounted the other way round.
	CorrectionSign int `toml:"correction_sign"`

	RCNeutralPulseWidth int `toml:"rc_neutral_pulse_width"`
}

func DefaultConfig() Config {
	return Config{
		LowerCutoffMv:         DefaultLowerCutoffMv,
		UpperCutoffMv:         DefaultUpperCutoffMv,
		IdlePulseWidth:        DefaultIdlePulseWidth,
		MinPulseWidth:         DefaultMinPulseWidth,
		MaxPulseWidth:         DefaultMaxPulseWidth,
		BaselinePulseWidth:    DefaultBaselinePulseWidth,
		MinBaselinePulseWidth: DefaultMinBaselinePulseWidth,
		MaxBaselinePulseWidth: DefaultMaxBaselinePulseWidth,
		PulseWidthPerWatt:     DefaultPulseWidthPerWatt,
		CorrectionSign:        1,
		RCNeutralPulseWidth:   DefaultRCNeutralPulseWidth,
	}
}

func (cfg Config) Validate() error {
	if cfg.LowerCutoffMv >= cfg.UpperCutoffMv {
		return errors.Errorf("lower cutoff %d mV must be below upper cutoff %d mV",
			cfg.LowerCutoffMv, cfg.UpperCutoffMv)
	}
	if cfg.MinPulseWidth >= cfg.MaxPulseWidth {
		return errors.Errorf("pulse width range [%d, %d] is empty", cfg.MinPulseWidth, cfg.MaxPulseWidth)
	}
	if cfg.IdlePulseWidth < cfg.MinPulseWidth || cfg.IdlePulseWidth > cfg.MaxPulseWidth {
		return errors.Errorf("idle pulse width %d outside [%d, %d]",
			cfg.IdlePulseWidth, cfg.MinPulseWidth, cfg.MaxPulseWidth)
	}
	if cfg.MinBaselinePulseWidth > cfg.MaxBaselinePulseWidth ||
		cfg.MinBaselinePulseWidth < cfg.MinPulseWidth ||
		cfg.MaxBaselinePulseWidth > cfg.MaxPulseWidth {
		return errors.Errorf("baseline range [%d, %d] must lie within [%d, %d]",
			cfg.MinBaselinePulseWidth, cfg.MaxBaselinePulseWidth, cfg.MinPulseWidth, cfg.MaxPulseWidth)
	}
	if cfg.CorrectionSign != 1 && cfg.CorrectionSign != -1 {
		return errors.Errorf("correction sign must be 1 or -1, got %d", cfg.CorrectionSign)
	}
	if cfg.PulseWidthPerWatt < 0 {
		return errors.Errorf("pulse width per watt must not be negative, got %v", cfg.PulseWidthPerWatt)
	}
	return nil
}

// State is a snapshot of the controller.
type State struct {
	BaselinePulseWidth int
	CruisePulseWidth   int
	LeftPulseWidth     int
	RightPulseWidth    int
	CutOff             bool
	// Running is set when the last command was a drive rather than a halt
	// and the cutoff allowed it.
	Running bool
}

type Controller struct {
	cfg   Config
	state State
}

// NewController starts in cutoff: nothing runs until a reading at or above
// the upper threshold has been seen.
func NewController(cfg Config) *Controller {
	c := &Controller{cfg: cfg}
	c.state = State{
		BaselinePulseWidth: c.clampBaseline(cfg.BaselinePulseWidth),
		CutOff:             true,
	}
	c.idle()
	return c
}

// Drive commands both motors from the cruise pulse width with the correction
// applied differentially. With budgeted set the cruise is raised above the
// baseline by the available power budget.
func (c *Controller) Drive(power PowerReading, correction float64, budgeted bool) State {
	if c.updateCutoff(power) {
		c.idle()
		return c.state
	}

	cruise := c.state.BaselinePulseWidth
	if budgeted {
		if b := c.budgetedPulseWidth(power); b > cruise {
			cruise = b
		}
	}
	cruise = c.clamp(cruise)

	delta := c.cfg.CorrectionSign * int(math.Round(correction))
	c.state.CruisePulseWidth = cruise
	c.state.LeftPulseWidth = c.clamp(cruise + delta)
	c.state.RightPulseWidth = c.clamp(cruise - delta)
	c.state.Running = true
	return c.state
}

// DriveRaw maps RC receiver pulse widths straight to the motors. Steering is
// relative to the RC neutral pulse width.
func (c *Controller) DriveRaw(power PowerReading, steering, throttle int) State {
	if c.updateCutoff(power) {
		c.idle()
		return c.state
	}
	delta := c.cfg.CorrectionSign * (steering - c.cfg.RCNeutralPulseWidth)
	cruise := c.clamp(throttle)
	c.state.CruisePulseWidth = cruise
	c.state.LeftPulseWidth = c.clamp(cruise + delta)
	c.state.RightPulseWidth = c.clamp(cruise - delta)
	c.state.Running = true
	return c.state
}

// Halt idles both motors. The cutoff state still tracks the reading.
func (c *Controller) Halt(power PowerReading) State {
	c.updateCutoff(power)
	c.idle()
	return c.state
}

// AdjustBaseline nudges the baseline, clamped to the configured bounds.
func (c *Controller) AdjustBaseline(delta int) {
	c.state.BaselinePulseWidth = c.clampBaseline(c.state.BaselinePulseWidth + delta)
	log.WithFields(log.Fields{
		"delta":    delta,
		"baseline": c.state.BaselinePulseWidth,
	}).Info("baseline pulse width adjusted")
}

func (c *Controller) State() State {
	return c.state
}

// updateCutoff applies the hysteresis and reports whether propulsion is cut
// off for this reading.
func (c *Controller) updateCutoff(power PowerReading) bool {
	prev := c.state.CutOff
	switch {
	case !power.Valid:
		c.state.CutOff = true
	case power.BatteryMv <= c.cfg.LowerCutoffMv:
		c.state.CutOff = true
	case power.BatteryMv >= c.cfg.UpperCutoffMv:
		c.state.CutOff = false
	}

	if prev != c.state.CutOff {
		entry := log.WithFields(log.Fields{
			"batteryMv": power.BatteryMv,
			"valid":     power.Valid,
		})
		if c.state.CutOff {
			entry.Warn("propulsion cut off")
		} else {
			entry.Info("propulsion restored")
		}
	}
	return c.state.CutOff
}

func (c *Controller) budgetedPulseWidth(power PowerReading) int {
	if power.BudgetW <= 0 {
		return c.cfg.IdlePulseWidth
	}
	return c.cfg.IdlePulseWidth + int(math.Round(float64(power.BudgetW)*c.cfg.PulseWidthPerWatt))
}

func (c *Controller) idle() {
	c.state.CruisePulseWidth = c.cfg.IdlePulseWidth
	c.state.LeftPulseWidth = c.cfg.IdlePulseWidth
	c.state.RightPulseWidth = c.cfg.IdlePulseWidth
	c.state.Running = false
}

func (c *Controller) clamp(pw int) int {
	if pw < c.cfg.MinPulseWidth {
		return c.cfg.MinPulseWidth
	}
	if pw > c.cfg.MaxPulseWidth {
		return c.cfg.MaxPulseWidth
	}
	return pw
}

func (c *Controller) clampBaseline(pw int) int {
	if pw < c.cfg.MinBaselinePulseWidth {
		return c.cfg.MinBaselinePulseWidth
	}
	if pw > c.cfg.MaxBaselinePulseWidth {
		return c.cfg.MaxBaselinePulseWidth
	}
	return pw
}
