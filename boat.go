// Package autoboat runs the control loop of an autonomous solar boat: it
// collects fixes, heading and power readings from its collaborators, steers
// along a waypoint route and commands the motors.
package autoboat

import (
	"context"
	"time"

	"github.com/jd3nn1s/autoboat/config"
	"github.com/jd3nn1s/autoboat/geo"
	"github.com/jd3nn1s/autoboat/nav"
	"github.com/jd3nn1s/autoboat/pilot"
	"github.com/jd3nn1s/autoboat/propulsion"
	"github.com/jd3nn1s/autoboat/route"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const (
	channelBufferSize = 1
	commandBufferSize = 16
)

// Boat owns all control state. Everything except Submit and the collaborator
// channels must only be used from the goroutine running the loop.
type Boat struct {
	cfg config.Config

	mode     Mode
	handlers map[Mode]modeHandler

	store      *route.Store
	navigator  *nav.Navigator
	pilot      *pilot.Pilot
	propulsion *propulsion.Controller

	fixChan     chan geo.Fix
	headingChan chan float64
	powerChan   chan propulsion.PowerReading
	rcChan      chan RCInput
	cmdChan     chan Command

	// cached collaborator readings and when they were received
	heading   Heading
	headingAt time.Time
	power     propulsion.PowerReading
	powerAt   time.Time
	rc        RCInput
	rcAt      time.Time
	lastFix   geo.Fix

	followsMission bool

	lastTarget     nav.Target
	bearingChanged bool
	routeFault     bool
	desiredBearing float64
	steering       bool

	telemetry     Telemetry
	prevTelemetry Telemetry
	forwarders    []Forwarder

	testMode          bool
	canBus            *canBusRetryable
	stopCollaborators context.CancelFunc
}

func NewBoat(cfg config.Config) (*Boat, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	mode, err := ParseMode(cfg.Mode)
	if err != nil {
		return nil, err
	}

	store := route.NewStore(cfg.MissionWaypoints(), cfg.Route.TestSlots)
	b := &Boat{
		cfg:        cfg,
		store:      store,
		navigator:  nav.NewNavigator(cfg.Navigation, store.Mission()),
		pilot:      pilot.NewPilot(cfg.Pilot, cfg.PID),
		propulsion: propulsion.NewController(cfg.Propulsion),

		fixChan:     make(chan geo.Fix, channelBufferSize),
		headingChan: make(chan float64, channelBufferSize),
		powerChan:   make(chan propulsion.PowerReading, channelBufferSize),
		rcChan:      make(chan RCInput, channelBufferSize),
		cmdChan:     make(chan Command, commandBufferSize),

		followsMission: true,
	}
	b.handlers = b.modeHandlers()
	b.setMode(mode)
	if mode == ModeAutonomous && store.Mission().Len() == 0 {
		log.Warn("autonomous mode selected without a mission route")
	}
	b.canBus = &canBusRetryable{
		iface:       cfg.CAN.Interface,
		powerChan:   b.powerChan,
		headingChan: b.headingChan,
		rcChan:      b.rcChan,
	}
	return b, nil
}

func (b *Boat) Mode() Mode {
	return b.mode
}

func (b *Boat) Telemetry() Telemetry {
	return b.telemetry
}

func (b *Boat) AddForwarder(fwd Forwarder) {
	b.forwarders = append(b.forwarders, fwd)
}

// MotorForwarder returns a forwarder that commands the motors over the boat's
// CAN connection.
func (b *Boat) MotorForwarder() *MotorForwarder {
	return NewMotorForwarder(b.canBus)
}

func (b *Boat) SetTestMode(testMode bool) {
	b.testMode = testMode
}

// Start launches the collaborators, or the simulator in test mode. They keep
// the values of ctx but not its cancellation: Run stops them once the motors
// have been idled, so the last command goes out on a live bus.
func (b *Boat) Start(ctx context.Context) {
	collabCtx, stop := context.WithCancel(context.WithoutCancel(ctx))
	b.stopCollaborators = stop
	if b.testMode {
		log.Info("starting in test mode")
		b.runTestMode(collabCtx)
		return
	}
	go runGPS(collabCtx, b.cfg.GPS.Port, b.cfg.GPS.BaudRate, b.fixChan)
	go runCANBus(collabCtx, b.canBus)
}

// Run ticks the control loop until the context is done, then idles the
// motors one last time and stops the collaborators.
func (b *Boat) Run(ctx context.Context) error {
	ticker := time.NewTicker(time.Duration(b.cfg.Loop.IntervalMs) * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			b.halt()
			if b.stopCollaborators != nil {
				b.stopCollaborators()
			}
			return ctx.Err()
		case now := <-ticker.C:
			b.Tick(now, b.CheckChannels(now))
			b.TelemetryUpdate()
		}
	}
}

// CheckChannels collects whatever the collaborators delivered since the last
// iteration and returns the snapshot for this one.
func (b *Boat) CheckChannels(now time.Time) Inputs {
	in := Inputs{}
	select {
	case fix := <-b.fixChan:
		in.Fix = fix
	default:
	}
	select {
	case h := <-b.headingChan:
		b.heading = Heading{Degrees: geo.NormalizeDegrees(h), Valid: true}
		b.headingAt = now
	default:
	}
	select {
	case p := <-b.powerChan:
		b.power = p
		b.powerAt = now
	default:
	}
	select {
	case rc := <-b.rcChan:
		b.rc = rc
		b.rcAt = now
	default:
	}

	in.Heading = b.heading
	if now.Sub(b.headingAt) > time.Duration(b.cfg.Loop.HeadingStaleMs)*time.Millisecond {
		in.Heading.Valid = false
	}
	in.Power = b.power
	if now.Sub(b.powerAt) > time.Duration(b.cfg.Loop.PowerStaleMs)*time.Millisecond {
		in.Power.Valid = false
	}
	in.RC = b.rc
	if now.Sub(b.rcAt) > time.Duration(b.cfg.Loop.RCStaleMs)*time.Millisecond {
		in.RC.Valid = false
	}
	return in
}

// Tick runs one iteration: pending commands first, then the handler of the
// active mode exactly once.
func (b *Boat) Tick(now time.Time, in Inputs) Telemetry {
	b.applyCommands()

	if in.Fix.Valid {
		b.lastFix = in.Fix
	}
	if in.Heading.Valid {
		b.navigator.CacheTrueHeading(in.Heading.Degrees)
	}

	b.steering = false
	state := b.handlers[b.mode].step(now, in)
	if !b.steering {
		b.pilot.Suspend()
	}
	b.fillTelemetry(in, state)
	return b.telemetry
}

// TelemetryUpdate hands the current record to every forwarder.
func (b *Boat) TelemetryUpdate() {
	for _, fwd := range b.forwarders {
		if err := fwd.Forward(&b.telemetry, &b.prevTelemetry); err != nil {
			log.WithField("err", err).Warn("unable to forward telemetry")
		}
	}
	b.prevTelemetry = b.telemetry
}

func (b *Boat) halt() {
	state := b.propulsion.Halt(b.power)
	b.fillTelemetry(Inputs{Power: b.power}, state)
	b.TelemetryUpdate()
	log.Info("motors idled")
}

// setMode switches modes. The PID keeps its history across switches.
func (b *Boat) setMode(m Mode) {
	prev := b.mode
	b.mode = m
	b.store.SetMissionAuthoritative(m == ModeAutonomous)

	switch m {
	case ModeAutonomous:
		b.followRoute(true)
	case ModeAutonomousTesting:
		b.followRoute(false)
	}
	log.WithFields(log.Fields{
		"from": prev,
		"mode": m,
	}).Info("mode switched")
}

// followRoute points the navigator at the mission or the test table. Moving
// to a different table restarts it from the first waypoint.
func (b *Boat) followRoute(mission bool) {
	if mission == b.followsMission {
		return
	}
	b.followsMission = mission
	if mission {
		b.navigator.SetRoute(b.store.Mission())
	} else {
		b.navigator.SetRoute(b.store.Testing())
	}
	b.navigator.ResetIndex()
}

func (b *Boat) fillTelemetry(in Inputs, state propulsion.State) {
	t := Telemetry{
		Mode:               b.mode,
		WaypointIndex:      clampInt16(b.navigator.CurrentIndex()),
		VirtualTarget:      b.navigator.IsNextWaypointVirtual(),
		RouteComplete:      b.navigator.Complete(),
		RouteFault:         b.routeFault,
		DistanceToWaypoint: distanceMeters(b.navigator.DistanceToNextRealWaypoint()),

		Latitude:        b.lastFix.Lat,
		Longitude:       b.lastFix.Lon,
		TargetLatitude:  b.lastTarget.Lat,
		TargetLongitude: b.lastTarget.Lon,

		BaselinePulseWidth: clampInt16(state.BaselinePulseWidth),
		CruisePulseWidth:   clampInt16(state.CruisePulseWidth),
		LeftPulseWidth:     clampInt16(state.LeftPulseWidth),
		RightPulseWidth:    clampInt16(state.RightPulseWidth),
		CutOff:             state.CutOff,
		PropulsionOn:       state.Running,

		BatteryMv:     clampInt16(in.Power.BatteryMv),
		BudgetW:       clampInt16(in.Power.BudgetW),
		SteeringInput: clampInt16(in.RC.Steering),
		ThrottleInput: clampInt16(in.RC.Throttle),
	}
	if heading, ok := b.navigator.CachedTrueHeading(); ok {
		t.TrueHeading = float32(heading)
	}
	if b.steering {
		t.Bearing = float32(b.desiredBearing)
		t.CourseCorrection = float32(b.pilot.LastCorrection())
	}
	gains := b.pilot.PID().Gains()
	t.Kp = float32(gains.Kp)
	t.Ki = float32(gains.Ki)
	t.Kd = float32(gains.Kd)
	b.telemetry = t
}
