package autoboat

import (
	"context"
	"sync"

	"github.com/jd3nn1s/autoboat/boatcan"
	"github.com/jd3nn1s/autoboat/propulsion"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

var errCANBusNotConnected = errors.New("canbus is not connected")

// canBusRetryable keeps the CAN connection alive. The connection is shared
// with MotorForwarder, hence the lock.
type canBusRetryable struct {
	mu    sync.Mutex
	c     CANBus
	iface string

	power       propulsion.PowerReading
	powerChan   chan<- propulsion.PowerReading
	headingChan chan<- float64
	rcChan      chan<- RCInput
}

var canBusConnect = func(iface string) (CANBus, error) {
	c, err := boatcan.Connect(iface)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (bus *canBusRetryable) Open() error {
	c, err := canBusConnect(bus.iface)
	bus.mu.Lock()
	bus.c = c
	bus.mu.Unlock()
	return err
}

func (bus *canBusRetryable) Close() error {
	c := bus.CANBus()
	if c == nil {
		return nil
	}
	return c.Close()
}

func (bus *canBusRetryable) Start(ctx context.Context) error {
	c := bus.CANBus()
	if c == nil {
		return errCANBusNotConnected
	}
	return c.Start(ctx, boatcan.Callbacks{
		BatteryMv: func(v int) {
			bus.power.BatteryMv = v
			bus.power.Valid = true
			trySend(bus.powerChan, bus.power)
		},
		BudgetW: func(v int) {
			bus.power.BudgetW = v
			// a budget alone says nothing about the battery
			if bus.power.Valid {
				trySend(bus.powerChan, bus.power)
			}
		},
		Heading: func(degrees float64) {
			trySend(bus.headingChan, degrees)
		},
		RC: func(steering, throttle int) {
			trySend(bus.rcChan, RCInput{
				Steering: steering,
				Throttle: throttle,
				Valid:    true,
			})
		},
	})
}

func (bus *canBusRetryable) Name() string {
	return "canbus"
}

// CANBus returns the current connection, nil while disconnected.
func (bus *canBusRetryable) CANBus() CANBus {
	bus.mu.Lock()
	defer bus.mu.Unlock()
	return bus.c
}

func (bus *canBusRetryable) SendMotors(ctx context.Context, left, right int) error {
	c := bus.CANBus()
	if c == nil {
		return errCANBusNotConnected
	}
	return c.SendMotors(ctx, left, right)
}

func runCANBus(ctx context.Context, bus *canBusRetryable) {
	if err := retry(ctx, bus); err != nil {
		log.Errorf("canbus done: %v", err)
	}
}

// trySend never blocks. A reading is dropped while the previous one is still
// pending.
func trySend[T any](ch chan<- T, v T) {
	select {
	case ch <- v:
	default:
	}
}
