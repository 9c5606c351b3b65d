package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// MaxConfigFileBytes bounds the size of a config file read by Load.
const MaxConfigFileBytes = 1 << 20

// Limits of the configurable values.
const (
	AngleLimitMin = -18000 // centidegrees
	AngleLimitMax = 17999
	MaxRCChannel  = 18
	RadioPulseMin = 800 // us
	RadioPulseMax = 2200
	MaxLoopRateHz = 400
)

// GimbalConfig holds the mount parameters.
type GimbalConfig struct {
	RCInTilt     int   `yaml:"rc_in_tilt"`     // RC channel driving tilt, 0 = none
	AngleMinTilt int16 `yaml:"angle_min_tilt"` // centidegrees
	AngleMaxTilt int16 `yaml:"angle_max_tilt"` // centidegrees
}

// RCChannelConfig is the calibration of one radio channel.
type RCChannelConfig struct {
	Channel  int   `yaml:"channel"`   // 1-based
	RadioMin int16 `yaml:"radio_min"` // us
	RadioMax int16 `yaml:"radio_max"` // us
	Reverse  bool  `yaml:"reverse"`
}

// ServoConfig describes the tilt servo output.
type ServoConfig struct {
	Pin        int  `yaml:"pin"`          // BCM pin with hardware PWM
	PulseMinUs int  `yaml:"pulse_min_us"` // pulse at level (0 cd)
	PulseMaxUs int  `yaml:"pulse_max_us"` // pulse at straight down (9000 cd)
	Reverse    bool `yaml:"reverse"`
}

// LinkConfig describes the MAVLink connection to the flight controller.
type LinkConfig struct {
	Endpoint    string `yaml:"endpoint"`     // "udp-server" or "udp-client"
	Address     string `yaml:"address"`      // host:port
	SystemID    int    `yaml:"system_id"`    // our MAVLink system id
	ComponentID int    `yaml:"component_id"` // our MAVLink component id (154 = gimbal)
}

// DefaultsConfig contains generic parameters.
type DefaultsConfig struct {
	LoopRateHz int  `yaml:"loop_rate_hz"` // control loop frequency
	DebugLevel int  `yaml:"debug_level"`  // debug level 0-4 (0=off, 1=info, 2=live, 3=verbose, 4=trace)
	MockGPIO   bool `yaml:"mock_gpio"`    // use mock GPIO (true=dev/test, false=real Raspberry Pi)
}

// Config aggregates all application configuration.
type Config struct {
	Gimbal     GimbalConfig      `yaml:"gimbal"`
	RCChannels []RCChannelConfig `yaml:"rc_channels"`
	Servo      ServoConfig       `yaml:"servo"`
	Link       LinkConfig        `yaml:"link"`
	Defaults   DefaultsConfig    `yaml:"defaults"`
}

// ValidateConfigPath checks that path names a .yaml file directly inside a
// configs/ directory, without traversal.
func ValidateConfigPath(path string) error {
	if path == "" {
		return fmt.Errorf("config path is empty")
	}
	if strings.Contains(filepath.ToSlash(path), "..") {
		return fmt.Errorf("config path %q must not contain '..'", path)
	}
	clean := filepath.Clean(path)
	if filepath.Ext(clean) != ".yaml" {
		return fmt.Errorf("config path %q must end in .yaml", path)
	}
	if filepath.Base(filepath.Dir(clean)) != "configs" {
		return fmt.Errorf("config path %q must be inside a configs/ directory", path)
	}
	return nil
}

// Load reads a YAML file and returns the configuration.
func Load(path string) (*Config, error) {
	if err := ValidateConfigPath(path); err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, MaxConfigFileBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	if len(data) > MaxConfigFileBytes {
		return nil, fmt.Errorf("config file larger than %d bytes", MaxConfigFileBytes)
	}

	return Parse(data)
}

// Parse decodes YAML, applies defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Config{
		Gimbal: GimbalConfig{AngleMinTilt: -4500, AngleMaxTilt: 4500},
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Defaults.LoopRateHz <= 0 {
		c.Defaults.LoopRateHz = 50
	}
	if c.Servo.Pin == 0 {
		c.Servo.Pin = 18
	}
	if c.Servo.PulseMinUs <= 0 {
		c.Servo.PulseMinUs = 1000
	}
	if c.Servo.PulseMaxUs <= 0 {
		c.Servo.PulseMaxUs = 2000
	}
	if c.Link.Endpoint == "" {
		c.Link.Endpoint = "udp-server"
	}
	if c.Link.Address == "" {
		c.Link.Address = "0.0.0.0:14550"
	}
	if c.Link.SystemID == 0 {
		c.Link.SystemID = 1
	}
	if c.Link.ComponentID == 0 {
		c.Link.ComponentID = 154 // MAV_COMP_ID_GIMBAL
	}
}

// Validate checks ranges. A channel whose radio_min equals radio_max is
// rejected here because the RC mapping divides by that range.
func (c *Config) Validate() error {
	g := c.Gimbal
	if g.AngleMinTilt < AngleLimitMin || g.AngleMinTilt > AngleLimitMax {
		return fmt.Errorf("gimbal.angle_min_tilt must be between %d and %d, got %d", AngleLimitMin, AngleLimitMax, g.AngleMinTilt)
	}
	if g.AngleMaxTilt < AngleLimitMin || g.AngleMaxTilt > AngleLimitMax {
		return fmt.Errorf("gimbal.angle_max_tilt must be between %d and %d, got %d", AngleLimitMin, AngleLimitMax, g.AngleMaxTilt)
	}
	if g.RCInTilt < 0 || g.RCInTilt > MaxRCChannel {
		return fmt.Errorf("gimbal.rc_in_tilt must be between 0 and %d, got %d", MaxRCChannel, g.RCInTilt)
	}

	seen := make(map[int]bool, len(c.RCChannels))
	for i, ch := range c.RCChannels {
		if ch.Channel < 1 || ch.Channel > MaxRCChannel {
			return fmt.Errorf("rc_channels[%d].channel must be between 1 and %d, got %d", i, MaxRCChannel, ch.Channel)
		}
		if seen[ch.Channel] {
			return fmt.Errorf("rc_channels[%d]: channel %d configured twice", i, ch.Channel)
		}
		seen[ch.Channel] = true
		if ch.RadioMin < RadioPulseMin || ch.RadioMin > RadioPulseMax ||
			ch.RadioMax < RadioPulseMin || ch.RadioMax > RadioPulseMax {
			return fmt.Errorf("rc_channels[%d]: radio_min/radio_max must be between %d and %d us", i, RadioPulseMin, RadioPulseMax)
		}
		if ch.RadioMin == ch.RadioMax {
			return fmt.Errorf("rc_channels[%d]: radio_min equals radio_max (%d), channel range is empty", i, ch.RadioMin)
		}
	}
	if g.RCInTilt != 0 && !seen[g.RCInTilt] {
		return fmt.Errorf("gimbal.rc_in_tilt = %d has no entry in rc_channels", g.RCInTilt)
	}

	if c.Servo.PulseMinUs == c.Servo.PulseMaxUs {
		return fmt.Errorf("servo.pulse_min_us equals servo.pulse_max_us (%d)", c.Servo.PulseMinUs)
	}
	if c.Defaults.LoopRateHz > MaxLoopRateHz {
		return fmt.Errorf("defaults.loop_rate_hz must be <= %d, got %d", MaxLoopRateHz, c.Defaults.LoopRateHz)
	}
	switch c.Link.Endpoint {
	case "udp-server", "udp-client", "none":
	default:
		return fmt.Errorf("link.endpoint must be udp-server, udp-client or none, got %q", c.Link.Endpoint)
	}
	if c.Link.SystemID < 1 || c.Link.SystemID > 255 || c.Link.ComponentID < 1 || c.Link.ComponentID > 255 {
		return fmt.Errorf("link.system_id and link.component_id must be between 1 and 255")
	}
	return nil
}

// LoopPeriod returns the duration between two control-loop ticks.
func (c *Config) LoopPeriod() time.Duration {
	return time.Second / time.Duration(c.Defaults.LoopRateHz)
}

// RCChannel returns the calibration of a channel, if configured.
func (c *Config) RCChannel(ch int) (RCChannelConfig, bool) {
	for _, rc := range c.RCChannels {
		if rc.Channel == ch {
			return rc, true
		}
	}
	return RCChannelConfig{}, false
}
