package autoboat

import (
	"math"

	"github.com/jd3nn1s/autoboat/geo"
	"github.com/jd3nn1s/autoboat/propulsion"
)

// Heading is the last true heading reported by the compass.
type Heading struct {
	Degrees float64
	Valid   bool
}

// RCInput holds receiver pulse widths in microseconds.
type RCInput struct {
	Steering int
	Throttle int
	Valid    bool
}

// Inputs is the sensor snapshot for one iteration. Fix is only valid when a
// new fix arrived since the previous iteration.
type Inputs struct {
	Fix     geo.Fix
	Heading Heading
	Power   propulsion.PowerReading
	RC      RCInput
}

// Telemetry is the per-iteration record handed to forwarders. All fields are
// fixed size so the record can be written with encoding/binary.
type Telemetry struct {
	Mode          Mode  `json:"mode"`
	WaypointIndex int16 `json:"waypoint_index"`
	VirtualTarget bool  `json:"virtual_target"`
	RouteComplete bool  `json:"route_complete"`
	RouteFault    bool  `json:"route_fault"`
	// meters, -1 until the first fix
	DistanceToWaypoint float32 `json:"distance_to_waypoint_m"`

	Latitude        int32 `json:"lat"`
	Longitude       int32 `json:"lon"`
	TargetLatitude  int32 `json:"target_lat"`
	TargetLongitude int32 `json:"target_lon"`

	Bearing          float32 `json:"bearing"`
	TrueHeading      float32 `json:"true_heading"`
	CourseCorrection float32 `json:"course_correction"`

	BaselinePulseWidth int16 `json:"baseline_pulse_width"`
	CruisePulseWidth   int16 `json:"cruise_pulse_width"`
	LeftPulseWidth     int16 `json:"left_pulse_width"`
	RightPulseWidth    int16 `json:"right_pulse_width"`
	CutOff             bool  `json:"cutoff"`
	PropulsionOn       bool  `json:"propulsion_on"`

	BatteryMv     int16 `json:"battery_mv"`
	BudgetW       int16 `json:"budget_w"`
	SteeringInput int16 `json:"steering_input"`
	ThrottleInput int16 `json:"throttle_input"`

	Kp float32 `json:"kp"`
	Ki float32 `json:"ki"`
	Kd float32 `json:"kd"`
}

func distanceMeters(d float64) float32 {
	if math.IsInf(d, 0) || math.IsNaN(d) {
		return -1
	}
	return float32(d)
}

func clampInt16(v int) int16 {
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}
