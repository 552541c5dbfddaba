package route

import (
	"github.com/jd3nn1s/autoboat/geo"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

var (
	ErrOutOfRange    = errors.New("waypoint index out of range")
	ErrMissionLocked = errors.New("test waypoints are locked while the mission is authoritative")
)

// Waypoint is a route point in degrees * 10^7.
type Waypoint struct {
	Lat int32
	Lon int32
}

func FromLocation(l geo.Location) Waypoint {
	return Waypoint{Lat: l.Lat, Lon: l.Lon}
}

func (w Waypoint) Location() geo.Location {
	return geo.Location{Lat: w.Lat, Lon: w.Lon}
}

// Table is an ordered sequence of waypoints.
type Table interface {
	WaypointAt(index int) (Waypoint, error)
	Len() int
}

type missionTable []Waypoint

func (m missionTable) WaypointAt(index int) (Waypoint, error) {
	if index < 0 || index >= len(m) {
		return Waypoint{}, errors.Wrapf(ErrOutOfRange, "mission waypoint %d of %d", index, len(m))
	}
	return m[index], nil
}

func (m missionTable) Len() int {
	return len(m)
}

type testSlot struct {
	wp      Waypoint
	present bool
}

type testTable struct {
	slots []testSlot
}

func (t *testTable) WaypointAt(index int) (Waypoint, error) {
	if index < 0 || index >= t.Len() {
		return Waypoint{}, errors.Wrapf(ErrOutOfRange, "test waypoint %d of %d", index, t.Len())
	}
	return t.slots[index].wp, nil
}

// Len counts the leading populated slots; a gap ends the route.
func (t *testTable) Len() int {
	for i, s := range t.slots {
		if !s.present {
			return i
		}
	}
	return len(t.slots)
}

// Store holds the compiled mission table and the runtime test table.
type Store struct {
	mission       missionTable
	testing       *testTable
	authoritative bool
}

func NewStore(mission []Waypoint, testSlots int) *Store {
	m := make(missionTable, len(mission))
	copy(m, mission)
	if testSlots < 0 {
		testSlots = 0
	}
	return &Store{
		mission: m,
		testing: &testTable{slots: make([]testSlot, testSlots)},
	}
}

func (s *Store) Mission() Table {
	return s.mission
}

func (s *Store) Testing() Table {
	return s.testing
}

func (s *Store) TestSlots() int {
	return len(s.testing.slots)
}

// SetMissionAuthoritative locks or unlocks the test table.
func (s *Store) SetMissionAuthoritative(authoritative bool) {
	s.authoritative = authoritative
}

func (s *Store) MissionAuthoritative() bool {
	return s.authoritative
}

func (s *Store) SetTestWaypoint(index int, wp Waypoint) error {
	if s.authoritative {
		return ErrMissionLocked
	}
	if index < 0 || index >= len(s.testing.slots) {
		return errors.Wrapf(ErrOutOfRange, "test waypoint %d of %d slots", index, len(s.testing.slots))
	}
	s.testing.slots[index] = testSlot{wp: wp, present: true}
	log.WithFields(log.Fields{
		"index": index,
		"lat":   wp.Lat,
		"lon":   wp.Lon,
	}).Info("test waypoint set")
	return nil
}

func (s *Store) ClearTestWaypoints() error {
	if s.authoritative {
		return ErrMissionLocked
	}
	for i := range s.testing.slots {
		s.testing.slots[i] = testSlot{}
	}
	return nil
}

// SetRoundtrip replaces the test route with an out-and-back leg: waypoint 0
// is distance meters from the origin along bearing, waypoint 1 is the origin.
func (s *Store) SetRoundtrip(from geo.Location, bearing, distance float64) error {
	if len(s.testing.slots) < 2 {
		return errors.Wrapf(ErrOutOfRange, "roundtrip needs 2 test slots, have %d", len(s.testing.slots))
	}
	if err := s.ClearTestWaypoints(); err != nil {
		return err
	}
	out := FromLocation(geo.Destination(from, bearing, distance))
	if err := s.SetTestWaypoint(0, out); err != nil {
		return err
	}
	return s.SetTestWaypoint(1, FromLocation(from))
}
