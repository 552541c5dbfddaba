// Package boatcan talks to the power board, compass and RC receiver over
// SocketCAN, and commands the motor controllers.
package boatcan

import (
	"context"
	"encoding/binary"
	"net"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"go.einride.tech/can"
	"go.einride.tech/can/pkg/socketcan"
)

const (
	// battery voltage in mV, uint16
	frameBattery uint32 = 0x200
	// surplus power budget in W, uint16
	frameBudget uint32 = 0x201
	// true heading in centidegrees, uint16
	frameHeading uint32 = 0x202
	// RC steering and throttle pulse widths in us, 2x uint16
	frameRC uint32 = 0x203
	// left and right motor pulse widths in us, 2x uint16
	frameMotors uint32 = 0x210
)

type IntResultFn func(v int)

type Callbacks struct {
	BatteryMv IntResultFn
	BudgetW   IntResultFn
	Heading   func(degrees float64)
	RC        func(steering, throttle int)
}

// Bus is a bidirectional CAN socket.
type Bus interface {
	Receive() bool
	Frame() can.Frame
	Err() error
	TransmitFrame(context.Context, can.Frame) error
	Close() error
}

type socketBus struct {
	conn net.Conn
	rx   *socketcan.Receiver
	tx   *socketcan.Transmitter
}

func (b *socketBus) Receive() bool {
	return b.rx.Receive()
}

func (b *socketBus) Frame() can.Frame {
	return b.rx.Frame()
}

func (b *socketBus) Err() error {
	return b.rx.Err()
}

func (b *socketBus) TransmitFrame(ctx context.Context, f can.Frame) error {
	return b.tx.TransmitFrame(ctx, f)
}

func (b *socketBus) Close() error {
	return b.conn.Close()
}

var newBus = func(ctx context.Context, iface string) (Bus, error) {
	conn, err := socketcan.DialContext(ctx, "can", iface)
	if err != nil {
		return nil, err
	}
	return &socketBus{
		conn: conn,
		rx:   socketcan.NewReceiver(conn),
		tx:   socketcan.NewTransmitter(conn),
	}, nil
}

type Connection struct {
	bus Bus
	cb  Callbacks
}

func Connect(iface string) (*Connection, error) {
	bus, err := newBus(context.Background(), iface)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to dial can interface %s", iface)
	}
	return &Connection{
		bus: bus,
	}, nil
}

// Start dispatches received frames to the callbacks until the bus fails or
// the context is cancelled.
func (c *Connection) Start(ctx context.Context, cb Callbacks) error {
	c.cb = cb
	log.Info("CAN bus opened")

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			log.Infof("stopping can bus: %v", ctx.Err())
			if err := c.bus.Close(); err != nil {
				log.WithField("err", err).Warn("unable to close canbus after context")
			}
		case <-done:
		}
	}()

	for c.bus.Receive() {
		c.handleFrame(c.bus.Frame())
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err := c.bus.Err(); err != nil {
		return errors.Wrap(err, "can bus receive failed")
	}
	return errors.New("can bus closed")
}

func (c *Connection) Close() error {
	if c.bus == nil {
		return errors.New("can bus not connected")
	}
	return c.bus.Close()
}

// SendMotors commands both motor controllers in one frame.
func (c *Connection) SendMotors(ctx context.Context, left, right int) error {
	if c.bus == nil {
		return errors.New("can bus not connected")
	}
	log.WithFields(log.Fields{
		"left":  left,
		"right": right,
	}).Debug("sending motor command over canbus")

	f := can.Frame{
		ID:     frameMotors,
		Length: 4,
	}
	binary.LittleEndian.PutUint16(f.Data[0:2], uint16(left))
	binary.LittleEndian.PutUint16(f.Data[2:4], uint16(right))
	return c.bus.TransmitFrame(ctx, f)
}

func (c *Connection) handleFrame(frame can.Frame) {
	entry := log.WithField("canID", frame.ID)
	entry.WithField("length", frame.Length).Debug("received canbus frame")

	switch frame.ID {
	case frameBattery, frameBudget, frameHeading:
		v, err := uint16Result(frame)
		if err != nil {
			entry.WithField("err", err).Error("unable to decode frame")
			return
		}
		switch {
		case frame.ID == frameBattery && c.cb.BatteryMv != nil:
			c.cb.BatteryMv(v)
		case frame.ID == frameBudget && c.cb.BudgetW != nil:
			c.cb.BudgetW(v)
		case frame.ID == frameHeading && c.cb.Heading != nil:
			c.cb.Heading(float64(v) / 100)
		default:
			entry.Debug("no callback registered")
		}
	case frameRC:
		if frame.Length != 4 {
			entry.WithField("length", frame.Length).Error("incorrect frame size for rc")
			return
		}
		if c.cb.RC == nil {
			entry.Debug("no callback registered")
			return
		}
		c.cb.RC(int(binary.LittleEndian.Uint16(frame.Data[0:2])),
			int(binary.LittleEndian.Uint16(frame.Data[2:4])))
	default:
		entry.Debug("ignoring unknown canID")
	}
}

func uint16Result(frame can.Frame) (int, error) {
	if frame.Length != 2 {
		return 0, errors.Errorf("incorrect frame size for uint16: %v", frame.Length)
	}
	return int(binary.LittleEndian.Uint16(frame.Data[0:2])), nil
}
