package autoboat

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

var ErrUnknownMode = errors.New("unknown mode")

// Mode selects which parts of the control pipeline drive the motors.
type Mode uint8

const (
	// ModeAutonomous follows the compiled mission.
	ModeAutonomous Mode = iota
	// ModeAutonomousTesting follows the runtime test route.
	ModeAutonomousTesting
	// ModeAutoPilot holds the operator set bearing.
	ModeAutoPilot
	ModeFixedPowerNoSteering
	ModeDynamicPowerNoSteering
	ModeRemoteControlled
)

var modeNames = map[Mode]string{
	ModeAutonomous:             "autonomous",
	ModeAutonomousTesting:      "autonomous_testing",
	ModeAutoPilot:              "autopilot",
	ModeFixedPowerNoSteering:   "fixed_power_no_steering",
	ModeDynamicPowerNoSteering: "dynamic_power_no_steering",
	ModeRemoteControlled:       "remote_controlled",
}

func (m Mode) String() string {
	if name, ok := modeNames[m]; ok {
		return name
	}
	return fmt.Sprintf("Mode(%d)", uint8(m))
}

// ParseMode accepts the names returned by String, case-insensitively and
// with either dashes or underscores.
func ParseMode(value string) (Mode, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	normalized = strings.ReplaceAll(normalized, "-", "_")
	for m, name := range modeNames {
		if name == normalized {
			return m, nil
		}
	}
	return ModeAutonomous, errors.Wrapf(ErrUnknownMode, "%q", value)
}

func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *Mode) UnmarshalText(text []byte) error {
	parsed, err := ParseMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
