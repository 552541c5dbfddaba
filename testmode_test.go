package autoboat

import (
	"context"
	"testing"
	"time"

	"github.com/jd3nn1s/autoboat/geo"
	"github.com/jd3nn1s/autoboat/propulsion"
	"github.com/stretchr/testify/assert"
)

func TestSimulatorIdle(t *testing.T) {
	sim := newSimulator(home, propulsion.DefaultConfig())
	sim.batteryMv = 11000

	sim.step(time.Second)
	assert.InDelta(t, 0, geo.Distance(home, sim.pos), 0.02)
	assert.Equal(t, 0.0, sim.heading)
	assert.InDelta(t, 11000+simChargeRate, sim.batteryMv, 1e-9)
}

func TestSimulatorFollowsMotors(t *testing.T) {
	cfg := propulsion.DefaultConfig()
	sim := newSimulator(home, cfg)

	full := Telemetry{LeftPulseWidth: int16(cfg.MaxPulseWidth), RightPulseWidth: int16(cfg.MaxPulseWidth)}
	assert.NoError(t, sim.Forward(&full, &Telemetry{}))
	sim.step(time.Second)
	assert.InDelta(t, simMaxSpeed, geo.Distance(home, sim.pos), 0.05)
	assert.Equal(t, 0.0, sim.heading)
	assert.InDelta(t, simMaxBatteryMv-simDrainRate, sim.batteryMv, 1e-9)

	// left only turns clockwise
	left := Telemetry{LeftPulseWidth: int16(cfg.MaxPulseWidth), RightPulseWidth: int16(cfg.IdlePulseWidth)}
	assert.NoError(t, sim.Forward(&left, &full))
	sim.step(time.Second)
	assert.InDelta(t, simMaxTurnRate, sim.heading, 1e-9)

	right := Telemetry{LeftPulseWidth: int16(cfg.IdlePulseWidth), RightPulseWidth: int16(cfg.MaxPulseWidth)}
	assert.NoError(t, sim.Forward(&right, &left))
	sim.step(2 * time.Second)
	assert.InDelta(t, 360-simMaxTurnRate, sim.heading, 1e-9)
}

func TestSimulatorBatteryBounds(t *testing.T) {
	cfg := propulsion.DefaultConfig()
	sim := newSimulator(home, cfg)
	sim.batteryMv = simMinBatteryMv + 1

	full := Telemetry{LeftPulseWidth: int16(cfg.MaxPulseWidth), RightPulseWidth: int16(cfg.MaxPulseWidth)}
	sim.Forward(&full, &Telemetry{})
	sim.step(time.Minute)
	assert.Equal(t, float64(simMinBatteryMv), sim.batteryMv)
	assert.Equal(t, propulsion.PowerReading{BatteryMv: simMinBatteryMv, BudgetW: simBudgetW, Valid: true}, sim.power())
}

func TestTestModeFeedsChannels(t *testing.T) {
	wp := geo.FromDegrees(47.5, -122.5)
	b := newTestBoat(t, testConfig(ModeAutonomous, wp))
	b.SetTestMode(true)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	b.Start(ctx)
	defer b.stopCollaborators()

	select {
	case fix := <-b.fixChan:
		assert.True(t, fix.Valid)
		assert.InDelta(t, 1000, geo.Distance(fix.Location, wp), 1)
	case <-time.After(2 * time.Second):
		assert.Fail(t, "no simulated fix")
	}
	select {
	case p := <-b.powerChan:
		assert.True(t, p.Valid)
	case <-time.After(2 * time.Second):
		assert.Fail(t, "no simulated power reading")
	}
	assert.Len(t, b.forwarders, 1)
}
