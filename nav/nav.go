package nav

import (
	"math"
	"strings"

	"github.com/jd3nn1s/autoboat/geo"
	"github.com/jd3nn1s/autoboat/route"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const (
	DefaultReachedDistanceMeters = 25
	DefaultVirtualDistanceMeters = 400
	DefaultMaxHeadingDeviation   = 30
)

var ErrEmptyRoute = errors.New("route has no waypoints")

// EndPolicy decides what happens once the final waypoint is reached.
type EndPolicy int

const (
	// HoldAtEnd keeps steering towards the final waypoint.
	HoldAtEnd EndPolicy = iota
	// HaltAtEnd asks the dispatcher to stop propulsion.
	HaltAtEnd
)

func (p EndPolicy) String() string {
	if p == HaltAtEnd {
		return "halt"
	}
	return "hold"
}

func (p *EndPolicy) UnmarshalText(text []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(text))) {
	case "hold", "":
		*p = HoldAtEnd
	case "halt":
		*p = HaltAtEnd
	default:
		return errors.Errorf("unknown end of route policy %q", string(text))
	}
	return nil
}

type Config struct {
	ReachedDistanceMeters float64   `toml:"reached_distance_m"`
	VirtualDistanceMeters float64   `toml:"virtual_distance_m"`
	MaxHeadingDeviation   float64   `toml:"max_heading_deviation_deg"`
	EndOfRoute            EndPolicy `toml:"end_of_route"`
}

func DefaultConfig() Config {
	return Config{
		ReachedDistanceMeters: DefaultReachedDistanceMeters,
		VirtualDistanceMeters: DefaultVirtualDistanceMeters,
		MaxHeadingDeviation:   DefaultMaxHeadingDeviation,
		EndOfRoute:            HoldAtEnd,
	}
}

// Target is the point the boat should currently steer towards.
type Target struct {
	geo.Location
	Index   int
	Virtual bool
	Valid   bool
}

// Navigator walks a route table, one reached waypoint at a time.
type Navigator struct {
	cfg   Config
	route route.Table

	index    int
	complete bool

	virtual       geo.Location
	nextIsVirtual bool

	target       Target
	lastDistance float64

	trueHeading     float64
	haveTrueHeading bool
}

func NewNavigator(cfg Config, table route.Table) *Navigator {
	return &Navigator{
		cfg:          cfg,
		route:        table,
		lastDistance: math.Inf(1),
	}
}

// SetRoute switches the table being followed. The index is kept.
func (n *Navigator) SetRoute(table route.Table) {
	n.route = table
	n.nextIsVirtual = false
}

// TargetFor returns the steering target for the fix. Without a valid fix the
// previous target is returned untouched.
func (n *Navigator) TargetFor(fix geo.Fix) (Target, error) {
	if !fix.Valid {
		return n.target, nil
	}
	length := n.route.Len()
	if length == 0 {
		n.target = Target{}
		return n.target, ErrEmptyRoute
	}
	n.complete = n.index >= length

	for {
		wp, err := n.currentWaypoint()
		if err != nil {
			return n.target, err
		}
		distance := geo.Distance(fix.Location, wp)
		n.lastDistance = distance

		if n.complete {
			return n.setTarget(wp, false), nil
		}

		if distance <= n.cfg.ReachedDistanceMeters {
			n.advance(distance)
			continue
		}

		if n.nextIsVirtual {
			// passed covers going by the virtual target abeam, out of reach
			passed := distance <= geo.Distance(n.virtual, wp)
			if distance <= n.cfg.VirtualDistanceMeters || passed ||
				geo.Distance(fix.Location, n.virtual) <= n.cfg.ReachedDistanceMeters {
				n.nextIsVirtual = false
			} else {
				return n.setTarget(n.virtual, true), nil
			}
		}

		if distance > n.cfg.VirtualDistanceMeters && n.offBearing(fix.Location, wp) {
			bearing := geo.Bearing(fix.Location, wp)
			n.virtual = geo.Destination(fix.Location, bearing, n.cfg.VirtualDistanceMeters)
			n.nextIsVirtual = true
			log.WithFields(log.Fields{
				"waypoint": n.index,
				"bearing":  bearing,
				"distance": distance,
			}).Debug("virtual waypoint synthesized")
			return n.setTarget(n.virtual, true), nil
		}
		return n.setTarget(wp, false), nil
	}
}

// currentWaypoint is the waypoint at the index, or the last one once the
// route is complete.
func (n *Navigator) currentWaypoint() (geo.Location, error) {
	i := n.index
	if i >= n.route.Len() {
		i = n.route.Len() - 1
	}
	wp, err := n.route.WaypointAt(i)
	if err != nil {
		return geo.Location{}, err
	}
	return wp.Location(), nil
}

func (n *Navigator) advance(distance float64) {
	n.nextIsVirtual = false
	n.index++
	if n.index >= n.route.Len() {
		n.index = n.route.Len()
		n.complete = true
		log.WithFields(log.Fields{
			"waypoint": n.index - 1,
			"policy":   n.cfg.EndOfRoute,
		}).Info("final waypoint reached")
		return
	}
	log.WithFields(log.Fields{
		"waypoint": n.index - 1,
		"distance": distance,
		"next":     n.index,
	}).Info("waypoint reached")
}

func (n *Navigator) offBearing(from, to geo.Location) bool {
	if !n.haveTrueHeading {
		return false
	}
	bearing := geo.Bearing(from, to)
	return math.Abs(geo.AngleDiff(bearing, n.trueHeading)) > n.cfg.MaxHeadingDeviation
}

func (n *Navigator) setTarget(l geo.Location, virtual bool) Target {
	n.target = Target{
		Location: l,
		Index:    n.index,
		Virtual:  virtual,
		Valid:    true,
	}
	return n.target
}

func (n *Navigator) IsCloseToNextRealWaypoint() bool {
	return n.lastDistance <= n.cfg.VirtualDistanceMeters
}

// DistanceToNextRealWaypoint is the distance computed at the last fix, +Inf
// before the first one.
func (n *Navigator) DistanceToNextRealWaypoint() float64 {
	return n.lastDistance
}

func (n *Navigator) CurrentIndex() int {
	return n.index
}

func (n *Navigator) IsNextWaypointVirtual() bool {
	return n.nextIsVirtual
}

// Complete reports that the final waypoint has been reached.
func (n *Navigator) Complete() bool {
	return n.complete
}

func (n *Navigator) EndPolicy() EndPolicy {
	return n.cfg.EndOfRoute
}

func (n *Navigator) ResetIndex() {
	n.index = 0
	n.complete = false
	n.nextIsVirtual = false
	n.target = Target{}
	n.lastDistance = math.Inf(1)
	log.Info("waypoint index reset")
}

func (n *Navigator) CacheTrueHeading(heading float64) {
	n.trueHeading = geo.NormalizeDegrees(heading)
	n.haveTrueHeading = true
}

func (n *Navigator) CachedTrueHeading() (float64, bool) {
	return n.trueHeading, n.haveTrueHeading
}
