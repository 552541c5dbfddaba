package autoboat

import (
	"context"

	"github.com/jd3nn1s/autoboat/geo"
	"github.com/jd3nn1s/autoboat/nmeagps"
	log "github.com/sirupsen/logrus"
)

const (
	// maximum horizontal dilution of precision
	maxHDOP = 5
)

type gpsRetryable struct {
	c        GPS
	port     string
	baudRate uint
	sendChan chan<- geo.Fix
}

// to allow testing
var gpsConnect = func(port string, baudRate uint) (GPS, error) {
	c, err := nmeagps.Connect(port, baudRate)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (g *gpsRetryable) Open() error {
	c, err := gpsConnect(g.port, g.baudRate)
	g.c = c
	return err
}

func (g *gpsRetryable) Close() error {
	if g.c == nil {
		return nil
	}
	return g.c.Close()
}

func (g *gpsRetryable) Start(ctx context.Context) error {
	return g.c.Start(ctx, nmeagps.Callbacks{
		Position: g.positionFn,
	})
}

func (g *gpsRetryable) Name() string {
	return "gps"
}

func (g *gpsRetryable) positionFn(p nmeagps.Position) {
	if !p.Valid {
		log.Warn("no satellite fix")
		return
	}
	if p.HDOP > maxHDOP {
		log.WithField("HDOP", p.HDOP).Warn("poor resolution")
		return
	}
	trySend(g.sendChan, geo.Fix{
		Location: geo.FromDegrees(p.Latitude, p.Longitude),
		Time:     p.Time,
		Valid:    true,
	})
}

func runGPS(ctx context.Context, port string, baudRate uint, sendChan chan<- geo.Fix) {
	err := retry(ctx, &gpsRetryable{
		port:     port,
		baudRate: baudRate,
		sendChan: sendChan,
	})
	if err != nil {
		log.Errorf("gps done: %v", err)
	}
}
