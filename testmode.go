package autoboat

import (
	"context"
	"math"
	"time"

	"github.com/jd3nn1s/autoboat/geo"
	"github.com/jd3nn1s/autoboat/propulsion"
)

const (
	simStep = 200 * time.Millisecond
	// a fix every this many steps
	simFixEvery = 5

	// m/s with both motors at full power
	simMaxSpeed = 2.0
	// deg/s with one motor at full power and the other idle
	simMaxTurnRate = 30.0

	simMinBatteryMv = 10000
	simMaxBatteryMv = 12600
	// mV per second
	simDrainRate  = 40.0
	simChargeRate = 15.0
	simBudgetW    = 60
)

// simulator stands in for the GPS, compass and power board, moving a virtual
// boat according to the motor commands it is forwarded.
type simulator struct {
	pos       geo.Location
	heading   float64
	batteryMv float64

	idle, full int
	motors     chan Telemetry
	last       Telemetry
}

func newSimulator(start geo.Location, cfg propulsion.Config) *simulator {
	return &simulator{
		pos:       start,
		batteryMv: simMaxBatteryMv,
		idle:      cfg.IdlePulseWidth,
		full:      cfg.MaxPulseWidth,
		motors:    make(chan Telemetry, channelBufferSize),
		last: Telemetry{
			LeftPulseWidth:  int16(cfg.IdlePulseWidth),
			RightPulseWidth: int16(cfg.IdlePulseWidth),
		},
	}
}

func (s *simulator) Forward(newTelemetry *Telemetry, _ *Telemetry) error {
	trySend(s.motors, *newTelemetry)
	return nil
}

// throttle maps a pulse width to [0, 1].
func (s *simulator) throttle(pw int16) float64 {
	if s.full <= s.idle {
		return 0
	}
	v := float64(int(pw)-s.idle) / float64(s.full-s.idle)
	return math.Max(0, math.Min(1, v))
}

func (s *simulator) step(dt time.Duration) {
	select {
	case t := <-s.motors:
		s.last = t
	default:
	}
	secs := dt.Seconds()
	left := s.throttle(s.last.LeftPulseWidth)
	right := s.throttle(s.last.RightPulseWidth)

	s.heading = geo.NormalizeDegrees(s.heading + (left-right)*simMaxTurnRate*secs)
	s.pos = geo.Destination(s.pos, s.heading, (left+right)/2*simMaxSpeed*secs)

	if left+right > 0 {
		s.batteryMv -= (left + right) / 2 * simDrainRate * secs
	} else {
		s.batteryMv += simChargeRate * secs
	}
	s.batteryMv = math.Max(simMinBatteryMv, math.Min(simMaxBatteryMv, s.batteryMv))
}

func (s *simulator) power() propulsion.PowerReading {
	return propulsion.PowerReading{
		BatteryMv: int(s.batteryMv),
		BudgetW:   simBudgetW,
		Valid:     true,
	}
}

func (s *simulator) fix(now time.Time) geo.Fix {
	return geo.Fix{
		Location: s.pos,
		Time:     now,
		Valid:    true,
	}
}

// runTestMode feeds simulated readings through the collaborator channels.
// The virtual boat starts a kilometer south of the first mission waypoint.
func (b *Boat) runTestMode(ctx context.Context) {
	start := geo.FromDegrees(47, -122)
	if wp, err := b.store.Mission().WaypointAt(0); err == nil {
		start = geo.Destination(wp.Location(), 180, 1000)
	}
	sim := newSimulator(start, b.cfg.Propulsion)
	b.AddForwarder(sim)

	go func() {
		ticker := time.NewTicker(simStep)
		defer ticker.Stop()
		for n := 0; ; n++ {
			var now time.Time
			select {
			case now = <-ticker.C:
			case <-ctx.Done():
				return
			}
			sim.step(simStep)
			trySend(b.headingChan, sim.heading)
			trySend(b.powerChan, sim.power())
			if n%simFixEvery == 0 {
				trySend(b.fixChan, sim.fix(now))
			}
		}
	}()
}
