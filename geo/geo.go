package geo

import (
	"math"
	"time"
)

const (
	// mean earth radius used for both distance and bearing
	earthRadiusMeters = 6371000.0

	// fixed point scale of GPS coordinates
	scale = 1e7
)

// Location is a position in degrees * 10^7, matching GPS fix precision.
type Location struct {
	Lat int32
	Lon int32
}

// Fix is a single GPS reading. A zero Fix means no fix yet.
type Fix struct {
	Location
	Time  time.Time
	Valid bool
}

func FromDegrees(lat, lon float64) Location {
	return Location{
		Lat: int32(math.Round(lat * scale)),
		Lon: int32(math.Round(lon * scale)),
	}
}

func (l Location) LatDegrees() float64 {
	return float64(l.Lat) / scale
}

func (l Location) LonDegrees() float64 {
	return float64(l.Lon) / scale
}

func (l Location) radians() (lat, lon float64) {
	return toRadians(l.LatDegrees()), toRadians(l.LonDegrees())
}

// Distance returns the haversine distance in meters.
func Distance(a, b Location) float64 {
	lat1, lon1 := a.radians()
	lat2, lon2 := b.radians()
	dLat := lat2 - lat1
	dLon := lon2 - lon1

	h := math.Pow(math.Sin(dLat/2), 2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Pow(math.Sin(dLon/2), 2)
	return 2 * earthRadiusMeters * math.Asin(math.Min(1, math.Sqrt(h)))
}

// Bearing returns the initial great-circle bearing from a to b in [0, 360).
func Bearing(a, b Location) float64 {
	lat1, lon1 := a.radians()
	lat2, lon2 := b.radians()
	dLon := lon2 - lon1

	y := math.Sin(dLon) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLon)
	return NormalizeDegrees(toDegrees(math.Atan2(y, x)))
}

// Destination returns the point reached by travelling distance meters from
// the origin along the given initial bearing.
func Destination(from Location, bearing, distance float64) Location {
	lat1, lon1 := from.radians()
	theta := toRadians(bearing)
	delta := distance / earthRadiusMeters

	lat2 := math.Asin(math.Sin(lat1)*math.Cos(delta) +
		math.Cos(lat1)*math.Sin(delta)*math.Cos(theta))
	lon2 := lon1 + math.Atan2(math.Sin(theta)*math.Sin(delta)*math.Cos(lat1),
		math.Cos(delta)-math.Sin(lat1)*math.Sin(lat2))

	lonDeg := math.Mod(toDegrees(lon2)+540, 360) - 180
	return FromDegrees(toDegrees(lat2), lonDeg)
}

// NormalizeDegrees wraps an angle into [0, 360).
func NormalizeDegrees(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	if deg >= 360 {
		deg = 0
	}
	return deg
}

// AngleDiff returns the shortest signed rotation from `from` to `to`, in
// (-180, 180]. AngleDiff(10, 350) is 20.
func AngleDiff(to, from float64) float64 {
	d := NormalizeDegrees(to - from)
	if d > 180 {
		d -= 360
	}
	return d
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}

func toDegrees(rad float64) float64 {
	return rad * 180 / math.Pi
}
