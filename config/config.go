// Package config loads the boat configuration from TOML.
package config

import (
	"io"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/jd3nn1s/autoboat/geo"
	"github.com/jd3nn1s/autoboat/nav"
	"github.com/jd3nn1s/autoboat/pid"
	"github.com/jd3nn1s/autoboat/pilot"
	"github.com/jd3nn1s/autoboat/propulsion"
	"github.com/jd3nn1s/autoboat/route"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

type Log struct {
	Level string `toml:"level"`
}

type Loop struct {
	IntervalMs int `toml:"interval_ms"`
	// readings older than these are treated as missing
	PowerStaleMs   int `toml:"power_stale_ms"`
	HeadingStaleMs int `toml:"heading_stale_ms"`
	RCStaleMs      int `toml:"rc_stale_ms"`
}

type Waypoint struct {
	Lat float64 `toml:"lat"`
	Lon float64 `toml:"lon"`
}

type Route struct {
	TestSlots int        `toml:"test_slots"`
	Mission   []Waypoint `toml:"mission"`
}

type GPS struct {
	Port     string `toml:"port"`
	BaudRate uint   `toml:"baud_rate"`
}

type CAN struct {
	Interface string `toml:"interface"`
}

type Config struct {
	Log  Log  `toml:"log"`
	Loop Loop `toml:"loop"`
	// Mode is the operating mode at startup.
	Mode       string            `toml:"mode"`
	Navigation nav.Config        `toml:"navigation"`
	PID        pid.Gains         `toml:"pid"`
	Pilot      pilot.Config      `toml:"pilot"`
	Propulsion propulsion.Config `toml:"propulsion"`
	Route      Route             `toml:"route"`
	GPS        GPS               `toml:"gps"`
	CAN        CAN               `toml:"can"`
}

func Default() Config {
	return Config{
		Log: Log{Level: "info"},
		Loop: Loop{
			IntervalMs:     200,
			PowerStaleMs:   5000,
			HeadingStaleMs: 5000,
			RCStaleMs:      1000,
		},
		Mode:       "autonomous",
		Navigation: nav.DefaultConfig(),
		PID:        pid.Gains{Kp: 2, Ki: 0.05, Kd: 0.5},
		Pilot:      pilot.DefaultConfig(),
		Propulsion: propulsion.DefaultConfig(),
		Route:      Route{TestSlots: 8},
		GPS:        GPS{Port: "/dev/ttyAMA0", BaudRate: 9600},
		CAN:        CAN{Interface: "can0"},
	}
}

func Load(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "unable to open config %s", path)
	}
	defer f.Close()
	cfg, err := Decode(f)
	if err != nil {
		return Config{}, errors.Wrapf(err, "unable to load config %s", path)
	}
	return cfg, nil
}

// Decode overlays the TOML document on the defaults. Unknown keys are an
// error so that a typo never silently leaves a default in place.
func Decode(r io.Reader) (Config, error) {
	cfg := Default()
	md, err := toml.NewDecoder(r).Decode(&cfg)
	if err != nil {
		return Config{}, errors.Wrap(err, "unable to decode configuration")
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return Config{}, errors.Errorf("unknown configuration keys: %s", strings.Join(keys, ", "))
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (cfg Config) Validate() error {
	if _, err := log.ParseLevel(cfg.Log.Level); err != nil {
		return errors.Wrap(err, "log.level")
	}
	if cfg.Loop.IntervalMs <= 0 {
		return errors.Errorf("loop.interval_ms must be positive, got %d", cfg.Loop.IntervalMs)
	}
	if cfg.Navigation.ReachedDistanceMeters <= 0 {
		return errors.New("navigation.reached_distance_m must be positive")
	}
	if cfg.Navigation.VirtualDistanceMeters <= cfg.Navigation.ReachedDistanceMeters {
		return errors.New("navigation.virtual_distance_m must exceed the reached distance")
	}
	if cfg.Navigation.MaxHeadingDeviation < 0 || cfg.Navigation.MaxHeadingDeviation > 180 {
		return errors.Errorf("navigation.max_heading_deviation_deg must be within [0, 180], got %v",
			cfg.Navigation.MaxHeadingDeviation)
	}
	if cfg.PID.Kp < 0 || cfg.PID.Ki < 0 || cfg.PID.Kd < 0 {
		return errors.New("pid gains must not be negative")
	}
	if cfg.Pilot.MaxCorrection < 0 {
		return errors.New("pilot.max_correction must not be negative")
	}
	if err := cfg.Propulsion.Validate(); err != nil {
		return errors.Wrap(err, "propulsion")
	}
	if cfg.Route.TestSlots < 0 {
		return errors.New("route.test_slots must not be negative")
	}
	for i, wp := range cfg.Route.Mission {
		if wp.Lat < -90 || wp.Lat > 90 || wp.Lon < -180 || wp.Lon > 180 {
			return errors.Errorf("route.mission[%d] (%v, %v) is not a valid position", i, wp.Lat, wp.Lon)
		}
	}
	return nil
}

// MissionWaypoints converts the configured mission to route waypoints.
func (cfg Config) MissionWaypoints() []route.Waypoint {
	wps := make([]route.Waypoint, 0, len(cfg.Route.Mission))
	for _, wp := range cfg.Route.Mission {
		wps = append(wps, route.FromLocation(geo.FromDegrees(wp.Lat, wp.Lon)))
	}
	return wps
}
