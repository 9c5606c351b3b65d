package link

import (
	"context"
	"testing"

	"github.com/bluenviron/gomavlib/v3/pkg/dialects/common"
	"github.com/golang/geo/r3"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/cjeanneret/TiltGo/internal/logic/gimbal"
	"github.com/cjeanneret/TiltGo/internal/vehicle"
)

// recordingCommander records commands forwarded by the link.
type recordingCommander struct {
	modes []gimbal.Mode
	rois  []r3.Vector
	armed int
}

func (r *recordingCommander) SetMode(m gimbal.Mode) { r.modes = append(r.modes, m) }
func (r *recordingCommander) SetROI(p r3.Vector)    { r.rois = append(r.rois, p) }
func (r *recordingCommander) ArmTracking() r3.Vector {
	r.armed++
	return r3.Vector{}
}

func newTestLink() (*Link, *vehicle.State, *recordingCommander) {
	state := vehicle.NewState(map[int]vehicle.Calibration{
		6: {Min: 1100, Max: 1900},
	})
	cmd := &recordingCommander{}
	return New(state, cmd, Config{SystemID: 1, ComponentID: 154}), state, cmd
}

func TestHandle_RCChannels(t *testing.T) {
	l, state, _ := newTestLink()

	l.Handle(&common.MessageRcChannels{Chancount: 8, Chan6Raw: 1700})
	got, ok := state.RCInput(6)
	if !ok {
		t.Fatal("channel 6 should be available")
	}
	if got.Raw != 1700 || got.Min != 1100 || got.Max != 1900 {
		t.Errorf("RCInput(6) = %+v", got)
	}

	// Channel count below the tilt channel makes it unavailable.
	l.Handle(&common.MessageRcChannels{Chancount: 4, Chan6Raw: 1700})
	if _, ok := state.RCInput(6); ok {
		t.Error("channel 6 beyond chancount should be unavailable")
	}

	l.Handle(&common.MessageRcChannels{Chancount: 8, Chan6Raw: 1700})
	l.Handle(&common.MessageRcChannels{Chancount: 0})
	if _, ok := state.RCInput(6); ok {
		t.Error("zero chancount should clear RC")
	}
}

func TestHandle_LocalPositionIsHeightUp(t *testing.T) {
	l, state, _ := newTestLink()
	l.Handle(&common.MessageLocalPositionNed{X: 3, Y: -4, Z: -10})
	want := r3.Vector{X: 3, Y: -4, Z: 10}
	if diff := cmp.Diff(want, state.Position()); diff != "" {
		t.Errorf("unexpected position: got(-)/want(+):\n%s", diff)
	}
}

func TestHandle_GPSFix(t *testing.T) {
	l, state, _ := newTestLink()
	cases := []struct {
		fix  common.GPS_FIX_TYPE
		want vehicle.FixQuality
	}{
		{0, vehicle.NoGPS},
		{1, vehicle.NoFix},
		{2, vehicle.Fix2D},
		{3, vehicle.Fix3D},
		{6, vehicle.FixRTKFixed},
		{8, vehicle.Fix3D},
	}
	for _, tc := range cases {
		l.Handle(&common.MessageGpsRawInt{FixType: tc.fix})
		if got := state.Fix(); got != tc.want {
			t.Errorf("fix type %d -> %v, want %v", tc.fix, got, tc.want)
		}
	}
}

func TestHandle_Attitude(t *testing.T) {
	l, state, _ := newTestLink()
	l.Handle(&common.MessageAttitude{Yaw: 0})
	sinYaw, cosYaw := state.Heading()
	if sinYaw != 0 || cosYaw != 1 {
		t.Errorf("Heading() = (%v, %v), want (0, 1)", sinYaw, cosYaw)
	}
}

func TestHandle_MountModeCommands(t *testing.T) {
	cases := []struct {
		name      string
		msg       *common.MessageCommandLong
		wantModes []gimbal.Mode
		wantArmed int
	}{
		{
			name:      "configure_rc",
			msg:       &common.MessageCommandLong{Command: common.MAV_CMD_DO_MOUNT_CONFIGURE, Param1: 3},
			wantModes: []gimbal.Mode{gimbal.ModeRCTargeting},
		},
		{
			name:      "configure_gps_arms",
			msg:       &common.MessageCommandLong{Command: common.MAV_CMD_DO_MOUNT_CONFIGURE, Param1: 4},
			wantArmed: 1,
		},
		{
			name:      "control_mode_in_param7",
			msg:       &common.MessageCommandLong{Command: common.MAV_CMD_DO_MOUNT_CONTROL, Param7: 2},
			wantModes: []gimbal.Mode{2},
		},
		{
			name: "other_system_ignored",
			msg: &common.MessageCommandLong{
				TargetSystem: 7,
				Command:      common.MAV_CMD_DO_MOUNT_CONFIGURE,
				Param1:       3,
			},
		},
		{
			name: "other_component_ignored",
			msg: &common.MessageCommandLong{
				TargetSystem:    1,
				TargetComponent: 100,
				Command:         common.MAV_CMD_DO_MOUNT_CONFIGURE,
				Param1:          3,
			},
		},
		{
			name: "autopilot_component_accepted",
			msg: &common.MessageCommandLong{
				TargetSystem:    1,
				TargetComponent: 1,
				Command:         common.MAV_CMD_DO_MOUNT_CONFIGURE,
				Param1:          3,
			},
			wantModes: []gimbal.Mode{gimbal.ModeRCTargeting},
		},
		{
			name: "our_component_accepted",
			msg: &common.MessageCommandLong{
				TargetSystem:    1,
				TargetComponent: 154,
				Command:         common.MAV_CMD_DO_MOUNT_CONFIGURE,
				Param1:          3,
			},
			wantModes: []gimbal.Mode{gimbal.ModeRCTargeting},
		},
		{
			name:      "roi_none",
			msg:       &common.MessageCommandLong{Command: common.MAV_CMD_DO_SET_ROI_NONE},
			wantModes: []gimbal.Mode{gimbal.ModeRCTargeting},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			l, _, cmd := newTestLink()
			l.Handle(tc.msg)
			if diff := cmp.Diff(tc.wantModes, cmd.modes, cmpopts.EquateEmpty()); diff != "" {
				t.Errorf("unexpected modes: got(-)/want(+):\n%s", diff)
			}
			if cmd.armed != tc.wantArmed {
				t.Errorf("ArmTracking called %d times, want %d", cmd.armed, tc.wantArmed)
			}
		})
	}
}

func TestHandle_SetROI(t *testing.T) {
	l, state, cmd := newTestLink()

	roi := &common.MessageCommandLong{
		Command: common.MAV_CMD_DO_SET_ROI_LOCATION,
		Param5:  0.0001,
		Param6:  0,
		Param7:  5,
	}

	// Without home the command is dropped.
	l.Handle(roi)
	if len(cmd.rois) != 0 {
		t.Fatalf("ROI forwarded without home: %v", cmd.rois)
	}

	l.Handle(&common.MessageHomePosition{})
	if _, ok := state.LocalFromGlobal(0, 0, 0); !ok {
		t.Fatal("home should be known after HOME_POSITION")
	}

	l.Handle(roi)
	if len(cmd.rois) != 1 {
		t.Fatalf("ROI calls = %d, want 1", len(cmd.rois))
	}
	want := r3.Vector{X: 11.131884502145034, Y: 0, Z: 5}
	if diff := cmp.Diff(want, cmd.rois[0], cmpopts.EquateApprox(0, 1e-3)); diff != "" {
		t.Errorf("unexpected ROI: got(-)/want(+):\n%s", diff)
	}
}

func TestHandle_SetROIInt(t *testing.T) {
	l, _, cmd := newTestLink()
	l.Handle(&common.MessageHomePosition{})

	l.Handle(&common.MessageCommandInt{
		Command: common.MAV_CMD_DO_SET_ROI_LOCATION,
		Frame:   common.MAV_FRAME_GLOBAL_RELATIVE_ALT_INT,
		X:       0,
		Y:       1000,
		Z:       0,
	})
	if len(cmd.rois) != 1 {
		t.Fatalf("ROI calls = %d, want 1", len(cmd.rois))
	}
	if d := cmd.rois[0].Y - 11.131884502145034; d > 1e-6 || d < -1e-6 {
		t.Errorf("east = %v, want ~11.13", cmd.rois[0].Y)
	}
}

func TestHandle_SetROIIntFrames(t *testing.T) {
	cases := []struct {
		name   string
		frame  common.MAV_FRAME
		z      float32
		wantZ  float64
		wantOK bool
	}{
		{"relative", common.MAV_FRAME_GLOBAL_RELATIVE_ALT, 5, 5, true},
		{"relative_int", common.MAV_FRAME_GLOBAL_RELATIVE_ALT_INT, 5, 5, true},
		{"amsl", common.MAV_FRAME_GLOBAL, 105, 5, true},
		{"amsl_int", common.MAV_FRAME_GLOBAL_INT, 95, -5, true},
		{"local_ned", common.MAV_FRAME_LOCAL_NED, 5, 0, false},
		{"terrain", common.MAV_FRAME_GLOBAL_TERRAIN_ALT, 5, 0, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			l, _, cmd := newTestLink()
			l.Handle(&common.MessageHomePosition{Altitude: 100000})
			l.Handle(&common.MessageCommandInt{
				Command: common.MAV_CMD_DO_SET_ROI_LOCATION,
				Frame:   tc.frame,
				X:       1000,
				Y:       1000,
				Z:       tc.z,
			})
			if !tc.wantOK {
				if len(cmd.rois) != 0 {
					t.Errorf("ROI forwarded for unsupported frame: %v", cmd.rois)
				}
				return
			}
			if len(cmd.rois) != 1 {
				t.Fatalf("ROI calls = %d, want 1", len(cmd.rois))
			}
			if got := cmd.rois[0].Z; got < tc.wantZ-1e-6 || got > tc.wantZ+1e-6 {
				t.Errorf("ROI z = %v, want %v", got, tc.wantZ)
			}
		})
	}
}

func TestHandle_SetROIZeroClears(t *testing.T) {
	l, _, cmd := newTestLink()
	l.Handle(&common.MessageHomePosition{})
	l.Handle(&common.MessageCommandLong{Command: common.MAV_CMD_DO_SET_ROI})
	if len(cmd.rois) != 0 {
		t.Errorf("zero ROI should not be forwarded: %v", cmd.rois)
	}
	if diff := cmp.Diff([]gimbal.Mode{gimbal.ModeRCTargeting}, cmd.modes); diff != "" {
		t.Errorf("unexpected modes: got(-)/want(+):\n%s", diff)
	}
}

func TestHandle_DrivesController(t *testing.T) {
	state := vehicle.NewState(map[int]vehicle.Calibration{6: {Min: 1000, Max: 2000}})
	ctrl := gimbal.NewController(
		gimbal.Config{RCChannel: 6, Limits: gimbal.AngleLimits{Min: 0, Max: 9000}},
		gimbal.Sources{RC: state, Position: state, Orientation: state},
		nil,
	)
	l := New(state, ctrl, Config{SystemID: 1, ComponentID: 154})

	l.Handle(&common.MessageRcChannels{Chancount: 6, Chan6Raw: 2000})
	if got := ctrl.Update(); got != 9000 {
		t.Errorf("RC tilt = %d, want 9000", got)
	}

	l.Handle(&common.MessageGpsRawInt{FixType: 3})
	l.Handle(&common.MessageLocalPositionNed{Z: -10})
	l.Handle(&common.MessageHomePosition{})
	l.Handle(&common.MessageCommandInt{
		Command: common.MAV_CMD_DO_SET_ROI_LOCATION,
		Frame:   common.MAV_FRAME_GLOBAL_RELATIVE_ALT_INT,
		X:       898,
	})

	if ctrl.Mode() != gimbal.ModeGPSPoint {
		t.Fatalf("mode = %v, want GPS_POINT", ctrl.Mode())
	}
	// Target ~10 m north and 10 m below: 45 degrees.
	if got := ctrl.Update(); got < 4490 || got > 4510 {
		t.Errorf("tracking tilt = %d, want ~4500", got)
	}
}

func TestRun_WithoutNode(t *testing.T) {
	l, _, _ := newTestLink()
	if err := l.Run(context.Background()); err == nil {
		t.Error("expected error without a mavlink node")
	}
}

func TestDial_RejectsUnknownEndpoint(t *testing.T) {
	if _, err := Dial(Config{Endpoint: "serial"}, nil, nil); err == nil {
		t.Error("expected error for unsupported endpoint")
	}
}
