package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/golang/geo/r3"
	"golang.org/x/sync/errgroup"

	"github.com/cjeanneret/TiltGo/internal/config"
	"github.com/cjeanneret/TiltGo/internal/debug"
	"github.com/cjeanneret/TiltGo/internal/hw/gpio"
	"github.com/cjeanneret/TiltGo/internal/hw/servo"
	"github.com/cjeanneret/TiltGo/internal/link"
	"github.com/cjeanneret/TiltGo/internal/logic/gimbal"
	"github.com/cjeanneret/TiltGo/internal/logic/loop"
	"github.com/cjeanneret/TiltGo/internal/vehicle"
	"github.com/cjeanneret/TiltGo/internal/web"
)

// cliOverrides are command-line values that replace config entries.
// Negative numbers and empty strings mean "use config".
type cliOverrides struct {
	DebugLevel  int
	LoopRateHz  int
	LinkAddress string
	Mode        string
}

func main() {
	// CLI flags
	webPort := &webPortFlag{defaultPort: 8080}
	flag.Var(webPort, "web", "start web server on port; -web= for default 8080, -web 8980 for custom port")
	cfgPath := flag.String("config", filepath.Join("configs", "default.yaml"), "path to config file")
	debugLevel := flag.Int("debug", -1, "override debug level (0-4)")
	loopRate := flag.Int("loop_rate_hz", -1, "override control loop rate in Hz")
	linkAddr := flag.String("link", "", "override MAVLink address (host:port)")
	mode := flag.String("mode", "", "initial mount mode (rc_targeting or gps_point)")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Load configuration
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}

	overrides := cliOverrides{
		DebugLevel:  *debugLevel,
		LoopRateHz:  *loopRate,
		LinkAddress: *linkAddr,
		Mode:        *mode,
	}
	if err := validateCLIOverrides(overrides); err != nil {
		log.Fatalf("invalid CLI override: %v", err)
	}
	applyOverrides(cfg, overrides)

	// Initialize debug system
	debug.Init(cfg.Defaults.DebugLevel)
	debug.Section("Initialization")
	debug.Value("Config path", *cfgPath)
	debug.Value("Debug level", cfg.Defaults.DebugLevel)

	if err := run(ctx, cfg, overrides.Mode, webPort.port()); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("tiltgo: %v", err)
	}
	debug.Info("Shutdown complete")
}

// run wires the hardware, the controller and the link, then blocks until ctx
// is cancelled or a component fails.
func run(ctx context.Context, cfg *config.Config, initialMode string, webPort int) error {
	debug.Value("Mock GPIO", cfg.Defaults.MockGPIO)
	debug.Step(1, "Initializing GPIO driver")
	gpioDriver, err := gpio.NewDriver(cfg.Defaults.MockGPIO)
	if err != nil {
		return fmt.Errorf("init GPIO: %w", err)
	}
	defer func() {
		if err := gpioDriver.Close(); err != nil {
			log.Printf("closing GPIO driver failed: %v", err)
		}
	}()

	debug.Step(2, "Initializing tilt servo")
	out, err := servo.NewOutput(gpioDriver, servoConfig(cfg))
	if err != nil {
		return fmt.Errorf("init servo: %w", err)
	}
	debug.PrintStruct("Servo config", cfg.Servo)

	debug.Step(3, "Creating gimbal controller")
	state := vehicle.NewState(calibrations(cfg))
	ctrl := newController(cfg, state, out)
	if err := applyInitialMode(ctrl, initialMode); err != nil {
		return err
	}
	debug.PrintStruct("Gimbal config", cfg.Gimbal)

	g, ctx := errgroup.WithContext(ctx)

	debug.Step(4, "Opening MAVLink link")
	if cfg.Link.Endpoint == "none" {
		debug.Info("MAVLink disabled; RC and position stay unavailable")
	} else {
		lnk, err := link.Dial(linkConfig(cfg), state, ctrl)
		if err != nil {
			return err
		}
		g.Go(func() error { return lnk.Run(ctx) })
	}

	if webPort > 0 {
		logs := web.NewLogStream()
		debug.SetOutput(io.MultiWriter(os.Stdout, logs))
		srv := web.NewServer(fmt.Sprintf(":%d", webPort), web.NewHandlers(ctrl, logs))
		g.Go(func() error { return srv.Run(ctx) })
	}

	debug.Step(5, "Starting control loop")
	g.Go(func() error { return loop.New(ctrl, cfg.LoopPeriod()).Run(ctx) })

	debug.Summary(fmt.Sprintf("TiltGo running, mode %s", ctrl.Mode()))

	return g.Wait()
}

// newController builds the gimbal controller reading from state and driving out.
func newController(cfg *config.Config, state *vehicle.State, out gimbal.Actuator) *gimbal.Controller {
	return gimbal.NewController(
		gimbal.Config{
			RCChannel: cfg.Gimbal.RCInTilt,
			Limits:    gimbal.AngleLimits{Min: cfg.Gimbal.AngleMinTilt, Max: cfg.Gimbal.AngleMaxTilt},
		},
		gimbal.Sources{RC: state, Position: state, Orientation: state},
		out,
	)
}

// modeSelector is the part of the controller that takes a mode request.
type modeSelector interface {
	SetMode(m gimbal.Mode)
	ArmTracking() r3.Vector
}

// applyInitialMode selects the startup mode. GPS_POINT arms tracking from the
// current tilt, as a GPS_POINT request over MAVLink or HTTP does.
func applyInitialMode(ctrl modeSelector, name string) error {
	if name == "" {
		return nil
	}
	m, err := gimbal.ParseMode(name)
	if err != nil {
		return err
	}
	if m == gimbal.ModeGPSPoint {
		ctrl.ArmTracking()
		return nil
	}
	ctrl.SetMode(m)
	return nil
}

func calibrations(cfg *config.Config) map[int]vehicle.Calibration {
	calib := make(map[int]vehicle.Calibration, len(cfg.RCChannels))
	for _, ch := range cfg.RCChannels {
		calib[ch.Channel] = vehicle.Calibration{Min: ch.RadioMin, Max: ch.RadioMax, Reversed: ch.Reverse}
	}
	return calib
}

func servoConfig(cfg *config.Config) servo.Config {
	return servo.Config{
		Pin:        cfg.Servo.Pin,
		PulseMinUs: cfg.Servo.PulseMinUs,
		PulseMaxUs: cfg.Servo.PulseMaxUs,
		Reversed:   cfg.Servo.Reverse,
	}
}

func linkConfig(cfg *config.Config) link.Config {
	return link.Config{
		Endpoint:    cfg.Link.Endpoint,
		Address:     cfg.Link.Address,
		SystemID:    cfg.Link.SystemID,
		ComponentID: cfg.Link.ComponentID,
	}
}

// validateCLIOverrides checks overrides that are set. Unset values are ignored.
func validateCLIOverrides(o cliOverrides) error {
	if o.DebugLevel > debug.LevelTrace {
		return fmt.Errorf("debug must be between 0 and %d, got %d", debug.LevelTrace, o.DebugLevel)
	}
	if o.LoopRateHz == 0 || o.LoopRateHz > config.MaxLoopRateHz {
		return fmt.Errorf("loop_rate_hz must be between 1 and %d, got %d", config.MaxLoopRateHz, o.LoopRateHz)
	}
	if o.Mode != "" {
		if _, err := gimbal.ParseMode(o.Mode); err != nil {
			return err
		}
	}
	return nil
}

// applyOverrides mutates cfg with the overrides that are set.
func applyOverrides(cfg *config.Config, o cliOverrides) {
	if o.DebugLevel >= 0 {
		cfg.Defaults.DebugLevel = o.DebugLevel
	}
	if o.LoopRateHz > 0 {
		cfg.Defaults.LoopRateHz = o.LoopRateHz
	}
	if o.LinkAddress != "" {
		cfg.Link.Address = o.LinkAddress
	}
}

// webPortFlag implements flag.Value for -web: 0 = disabled, -web= or -web 8080 → 8080, -web 8980 → 8980.
type webPortFlag struct {
	val         int
	defaultPort int
}

func (w *webPortFlag) String() string {
	if w.val == 0 {
		return "0"
	}
	return strconv.Itoa(w.val)
}

func (w *webPortFlag) Set(s string) error {
	if s == "" {
		w.val = w.defaultPort
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	if v <= 0 || v > 65535 {
		return fmt.Errorf("port must be 1-65535, got %d", v)
	}
	w.val = v
	return nil
}

func (w *webPortFlag) port() int { return w.val }
