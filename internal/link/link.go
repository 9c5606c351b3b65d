// Package link connects the mount to the flight controller over MAVLink.
// Telemetry (RC, position, GPS, attitude, home) feeds the vehicle state;
// mount and ROI commands are forwarded to the gimbal controller.
package link

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/bluenviron/gomavlib/v3"
	"github.com/bluenviron/gomavlib/v3/pkg/dialects/common"
	"github.com/bluenviron/gomavlib/v3/pkg/message"
	"github.com/golang/geo/r3"

	"github.com/cjeanneret/TiltGo/internal/debug"
	"github.com/cjeanneret/TiltGo/internal/logic/gimbal"
	"github.com/cjeanneret/TiltGo/internal/vehicle"
)

// Endpoint kinds accepted by Dial.
const (
	EndpointUDPServer = "udp-server"
	EndpointUDPClient = "udp-client"
)

// ErrNodeClosed is returned by Run when the MAVLink node stops delivering events.
var ErrNodeClosed = errors.New("mavlink node closed")

// Commander receives mount commands. *gimbal.Controller implements it.
type Commander interface {
	SetMode(m gimbal.Mode)
	SetROI(p r3.Vector)
	ArmTracking() r3.Vector
}

// Config selects the MAVLink endpoint and our identity on the bus.
type Config struct {
	Endpoint    string
	Address     string
	SystemID    int
	ComponentID int
}

// Link routes inbound MAVLink messages.
type Link struct {
	state       *vehicle.State
	cmd         Commander
	systemID    uint8
	componentID uint8

	node *gomavlib.Node
}

// New returns a link without a transport. Messages are fed through Handle.
// Only the identity fields of cfg are used.
func New(state *vehicle.State, cmd Commander, cfg Config) *Link {
	return &Link{
		state:       state,
		cmd:         cmd,
		systemID:    uint8(cfg.SystemID),
		componentID: uint8(cfg.ComponentID),
	}
}

// Dial opens the MAVLink endpoint described by cfg.
func Dial(cfg Config, state *vehicle.State, cmd Commander) (*Link, error) {
	var ep gomavlib.EndpointConf
	switch cfg.Endpoint {
	case EndpointUDPServer:
		ep = gomavlib.EndpointUDPServer{Address: cfg.Address}
	case EndpointUDPClient:
		ep = gomavlib.EndpointUDPClient{Address: cfg.Address}
	default:
		return nil, fmt.Errorf("unsupported mavlink endpoint %q", cfg.Endpoint)
	}

	node, err := gomavlib.NewNode(gomavlib.NodeConf{
		Endpoints:      []gomavlib.EndpointConf{ep},
		Dialect:        common.Dialect,
		OutVersion:     gomavlib.V2,
		OutSystemID:    byte(cfg.SystemID),
		OutComponentID: byte(cfg.ComponentID),
	})
	if err != nil {
		return nil, fmt.Errorf("open mavlink %s %s: %w", cfg.Endpoint, cfg.Address, err)
	}

	l := New(state, cmd, cfg)
	l.node = node
	debug.Info("MAVLink %s on %s (sys %d, comp %d)", cfg.Endpoint, cfg.Address, cfg.SystemID, cfg.ComponentID)
	return l, nil
}

// Run dispatches node events until ctx is cancelled, then closes the node.
func (l *Link) Run(ctx context.Context) error {
	if l.node == nil {
		return errors.New("link has no mavlink node")
	}
	defer l.node.Close()

	events := l.node.Events()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-events:
			if !ok {
				return ErrNodeClosed
			}
			switch e := evt.(type) {
			case *gomavlib.EventFrame:
				l.Handle(e.Message())
			case *gomavlib.EventChannelOpen:
				debug.Info("MAVLink channel open")
			case *gomavlib.EventChannelClose:
				debug.Info("MAVLink channel closed")
			case *gomavlib.EventParseError:
				debug.Verbose("MAVLink parse error: %v", e.Error)
			}
		}
	}
}

// Handle applies one inbound message. Unknown messages are ignored.
func (l *Link) Handle(msg message.Message) {
	switch m := msg.(type) {
	case *common.MessageRcChannels:
		l.handleRC(m)

	case *common.MessageLocalPositionNed:
		// NED down becomes height.
		l.state.SetPosition(r3.Vector{X: float64(m.X), Y: float64(m.Y), Z: -float64(m.Z)})

	case *common.MessageGpsRawInt:
		l.state.SetFix(fixQuality(m.FixType))

	case *common.MessageAttitude:
		l.state.SetYaw(float64(m.Yaw))

	case *common.MessageHomePosition:
		l.state.SetHome(vehicle.Home{
			LatE7: m.Latitude,
			LonE7: m.Longitude,
			AltMM: m.Altitude,
			Local: r3.Vector{X: float64(m.X), Y: float64(m.Y), Z: -float64(m.Z)},
		})
		debug.Verbose("Home at %d, %d (local %.1f, %.1f)", m.Latitude, m.Longitude, m.X, m.Y)

	case *common.MessageCommandLong:
		if !l.forUs(m.TargetSystem, m.TargetComponent) {
			return
		}
		debug.Live("COMMAND_LONG %v", m.Command)
		l.handleCommandLong(m)

	case *common.MessageCommandInt:
		if !l.forUs(m.TargetSystem, m.TargetComponent) {
			return
		}
		debug.Live("COMMAND_INT %v", m.Command)
		l.handleCommandInt(m)
	}
}

// forUs accepts commands broadcast or addressed to our system, sent either
// to us or to the autopilot whose mount we drive.
func (l *Link) forUs(system, component uint8) bool {
	if system != 0 && system != l.systemID {
		return false
	}
	switch component {
	case 0, l.componentID, uint8(common.MAV_COMP_ID_AUTOPILOT1):
		return true
	}
	return false
}

func (l *Link) handleRC(m *common.MessageRcChannels) {
	raw := [...]uint16{
		m.Chan1Raw, m.Chan2Raw, m.Chan3Raw, m.Chan4Raw, m.Chan5Raw, m.Chan6Raw,
		m.Chan7Raw, m.Chan8Raw, m.Chan9Raw, m.Chan10Raw, m.Chan11Raw, m.Chan12Raw,
		m.Chan13Raw, m.Chan14Raw, m.Chan15Raw, m.Chan16Raw, m.Chan17Raw, m.Chan18Raw,
	}
	n := int(m.Chancount)
	if n > len(raw) {
		n = len(raw)
	}
	if n == 0 {
		l.state.ClearRC()
		return
	}
	l.state.SetRCRaw(raw[:n])
}

func (l *Link) handleCommandLong(m *common.MessageCommandLong) {
	switch m.Command {
	case common.MAV_CMD_DO_MOUNT_CONFIGURE:
		l.applyMode(gimbal.Mode(m.Param1))

	case common.MAV_CMD_DO_MOUNT_CONTROL:
		l.applyMode(gimbal.Mode(m.Param7))

	case common.MAV_CMD_DO_SET_ROI_LOCATION, common.MAV_CMD_DO_SET_ROI:
		l.applyROI(degToE7(m.Param5), degToE7(m.Param6), float64(m.Param7))

	case common.MAV_CMD_DO_SET_ROI_NONE:
		debug.Info("ROI cleared")
		l.cmd.SetMode(gimbal.ModeRCTargeting)
	}
}

func (l *Link) handleCommandInt(m *common.MessageCommandInt) {
	switch m.Command {
	case common.MAV_CMD_DO_SET_ROI_LOCATION, common.MAV_CMD_DO_SET_ROI:
		relAlt, ok := l.relativeAltitude(m.Frame, float64(m.Z))
		if !ok {
			debug.Error(fmt.Errorf("ROI dropped: unsupported frame %v", m.Frame))
			return
		}
		l.applyROI(m.X, m.Y, relAlt)

	case common.MAV_CMD_DO_SET_ROI_NONE:
		debug.Info("ROI cleared")
		l.cmd.SetMode(gimbal.ModeRCTargeting)
	}
}

// relativeAltitude converts a COMMAND_INT altitude to metres above home.
// Local and terrain frames are not supported.
func (l *Link) relativeAltitude(frame common.MAV_FRAME, alt float64) (float64, bool) {
	switch frame {
	case common.MAV_FRAME_GLOBAL_RELATIVE_ALT, common.MAV_FRAME_GLOBAL_RELATIVE_ALT_INT:
		return alt, true
	case common.MAV_FRAME_GLOBAL, common.MAV_FRAME_GLOBAL_INT:
		home, ok := l.state.Home()
		if !ok {
			// applyROI drops it for the missing home.
			return alt, true
		}
		return alt - float64(home.AltMM)/1000, true
	}
	return 0, false
}

// applyMode arms tracking on GPS_POINT so the ROI starts from where the
// camera looks now; other values go through SetMode coercion.
func (l *Link) applyMode(m gimbal.Mode) {
	if m == gimbal.ModeGPSPoint {
		roi := l.cmd.ArmTracking()
		debug.Info("Tracking armed at (%.1f, %.1f, %.1f)", roi.X, roi.Y, roi.Z)
		return
	}
	l.cmd.SetMode(m)
}

// applyROI sets a global ROI, which also switches to GPS_POINT.
// A zero location clears it.
func (l *Link) applyROI(latE7, lonE7 int32, relAlt float64) {
	if latE7 == 0 && lonE7 == 0 {
		debug.Info("ROI cleared")
		l.cmd.SetMode(gimbal.ModeRCTargeting)
		return
	}
	p, ok := l.state.LocalFromGlobal(latE7, lonE7, relAlt)
	if !ok {
		debug.Error(fmt.Errorf("ROI %d, %d dropped: home position unknown", latE7, lonE7))
		return
	}
	l.cmd.SetROI(p)
}

func degToE7(deg float32) int32 {
	return int32(math.Round(float64(deg) * 1e7))
}

func fixQuality(t common.GPS_FIX_TYPE) vehicle.FixQuality {
	if uint64(t) <= uint64(vehicle.FixRTKFixed) {
		return vehicle.FixQuality(t)
	}
	// Static and PPP fixes are at least as good as 3D.
	return vehicle.Fix3D
}
