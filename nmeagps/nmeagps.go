// Package nmeagps reads NMEA 0183 sentences from a serial GPS receiver.
package nmeagps

import (
	"bufio"
	"context"
	"io"
	"strings"
	"time"

	nmea "github.com/adrianmo/go-nmea"
	serial "github.com/jacobsa/go-serial/serial"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Position is reported for every RMC sentence. HDOP and Satellites come from
// the most recent GGA sentence and are zero until one has been seen.
type Position struct {
	Latitude   float64
	Longitude  float64
	Time       time.Time
	Valid      bool
	SpeedKnots float64
	Course     float64
	HDOP       float64
	Satellites int
}

type PositionFn func(Position)

type Callbacks struct {
	Position PositionFn
}

type Connection struct {
	port io.ReadWriteCloser
	cb   Callbacks

	hdop       float64
	satellites int
}

var openPort = func(opts serial.OpenOptions) (io.ReadWriteCloser, error) {
	return serial.Open(opts)
}

func Connect(portName string, baudRate uint) (*Connection, error) {
	port, err := openPort(serial.OpenOptions{
		PortName:        portName,
		BaudRate:        baudRate,
		DataBits:        8,
		StopBits:        1,
		MinimumReadSize: 1,
		ParityMode:      serial.PARITY_NONE,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "unable to open gps port %s", portName)
	}
	log.WithFields(log.Fields{
		"port": portName,
		"baud": baudRate,
	}).Info("gps serial port opened")
	return &Connection{port: port}, nil
}

// Start reads sentences until the port fails or the context is cancelled.
func (c *Connection) Start(ctx context.Context, cb Callbacks) error {
	c.cb = cb

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			log.Infof("stopping gps: %v", ctx.Err())
			if err := c.port.Close(); err != nil {
				log.WithField("err", err).Warn("unable to close gps port after context")
			}
		case <-done:
		}
	}()

	reader := bufio.NewReader(c.port)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return errors.Wrap(err, "gps read failed")
		}
		c.handleLine(line)
	}
}

func (c *Connection) Close() error {
	if c.port == nil {
		return errors.New("gps port not open")
	}
	return c.port.Close()
}

func (c *Connection) handleLine(line string) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "$") {
		return
	}
	sentence, err := nmea.Parse(line)
	if err != nil {
		log.WithField("err", err).Debug("unable to parse nmea sentence")
		return
	}

	switch sentence.DataType() {
	case nmea.TypeGGA:
		gga := sentence.(nmea.GGA)
		c.hdop = gga.HDOP
		c.satellites = int(gga.NumSatellites)
	case nmea.TypeRMC:
		rmc := sentence.(nmea.RMC)
		if c.cb.Position == nil {
			log.Debug("no position callback registered")
			return
		}
		c.cb.Position(Position{
			Latitude:   rmc.Latitude,
			Longitude:  rmc.Longitude,
			Time:       fixTime(rmc.Date, rmc.Time),
			Valid:      rmc.Validity == nmea.ValidRMC,
			SpeedKnots: rmc.Speed,
			Course:     rmc.Course,
			HDOP:       c.hdop,
			Satellites: c.satellites,
		})
	default:
		log.WithField("type", sentence.DataType()).Debug("ignoring nmea sentence")
	}
}

func fixTime(d nmea.Date, t nmea.Time) time.Time {
	if !d.Valid || !t.Valid {
		return time.Time{}
	}
	year := 2000 + d.YY
	if d.YY >= 80 {
		year = 1900 + d.YY
	}
	return time.Date(year, time.Month(d.MM), d.DD,
		t.Hour, t.Minute, t.Second, t.Millisecond*int(time.Millisecond), time.UTC)
}
