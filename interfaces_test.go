package autoboat

import (
	"context"
	"sync"

	"github.com/jd3nn1s/autoboat/boatcan"
	"github.com/jd3nn1s/autoboat/nmeagps"
	"github.com/pkg/errors"
)

type sensorStub struct {
	startChan chan struct{}
	errChan   chan error
	fnChan    chan func()
}

type gpsStub struct {
	sensorStub
	callbacks nmeagps.Callbacks
}

type canBusStub struct {
	sensorStub
	mu        sync.Mutex
	motors    [][2]int
	sendErr   error
	closed    bool
	callbacks boatcan.Callbacks
}

func createSensorStub() *sensorStub {
	ret := sensorStub{
		startChan: make(chan struct{}),
		errChan:   make(chan error),
		fnChan:    make(chan func()),
	}
	return &ret
}

func (s *sensorStub) Close() error {
	return nil
}

func (s *sensorStub) start(ctx context.Context) error {
	select {
	case s.startChan <- struct{}{}:
	default:
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-s.errChan:
			return err
		case fn := <-s.fnChan:
			fn()
		}
	}
}

func createGPSStub() *gpsStub {
	return &gpsStub{
		sensorStub: *createSensorStub(),
	}
}

func (g *gpsStub) Start(ctx context.Context, callbacks nmeagps.Callbacks) error {
	g.callbacks = callbacks
	return g.sensorStub.start(ctx)
}

func createCANBusStub() *canBusStub {
	return &canBusStub{
		sensorStub: *createSensorStub(),
	}
}

// Start closes the stub once ctx is done, like the socket of a real bus.
func (c *canBusStub) Start(ctx context.Context, callbacks boatcan.Callbacks) error {
	c.callbacks = callbacks
	err := c.sensorStub.start(ctx)
	if ctx.Err() != nil {
		c.Close()
	}
	return err
}

func (c *canBusStub) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *canBusStub) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *canBusStub) SendMotors(_ context.Context, left, right int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("use of closed connection")
	}
	if c.sendErr != nil {
		return c.sendErr
	}
	c.motors = append(c.motors, [2]int{left, right})
	return nil
}

func (c *canBusStub) sent() [][2]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][2]int(nil), c.motors...)
}

type forwarderStub struct {
	count     int
	telemetry Telemetry
	prev      Telemetry
}

func (fwd *forwarderStub) Forward(newTelemetry *Telemetry, prevTelemetry *Telemetry) error {
	fwd.count++
	fwd.telemetry = *newTelemetry
	fwd.prev = *prevTelemetry
	return nil
}
