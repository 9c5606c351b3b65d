// Package loop runs the gimbal controller at a fixed rate.
package loop

import (
	"context"
	"time"

	"github.com/cjeanneret/TiltGo/internal/debug"
	"github.com/cjeanneret/TiltGo/internal/logic/gimbal"
)

// DefaultPeriod is one tick at 50 Hz.
const DefaultPeriod = 20 * time.Millisecond

// Updater is the part of the controller the loop drives.
type Updater interface {
	Update() int32
	Mode() gimbal.Mode
}

// Loop calls Update once per period and logs tilt changes.
type Loop struct {
	ctrl   Updater
	period time.Duration

	ticks    uint64
	lastTilt int32
	started  bool
}

// New returns a loop driving ctrl. A non-positive period uses DefaultPeriod.
func New(ctrl Updater, period time.Duration) *Loop {
	if period <= 0 {
		period = DefaultPeriod
	}
	return &Loop{ctrl: ctrl, period: period}
}

// Period returns the tick period.
func (l *Loop) Period() time.Duration { return l.period }

// Ticks returns how many steps have run.
func (l *Loop) Ticks() uint64 { return l.ticks }

// Step runs one controller update and returns the commanded tilt.
// Step is not safe for concurrent use; Run calls it from a single goroutine.
func (l *Loop) Step() int32 {
	tilt := l.ctrl.Update()
	l.ticks++
	if !l.started || tilt != l.lastTilt {
		debug.Tilt(l.ctrl.Mode(), tilt)
		l.lastTilt = tilt
		l.started = true
	}
	return tilt
}

// Run steps the controller until ctx is cancelled and returns ctx.Err().
func (l *Loop) Run(ctx context.Context) error {
	debug.Section("Control Loop")
	debug.Info("Running at %v per tick", l.period)

	ticker := time.NewTicker(l.period)
	defer ticker.Stop()

	l.Step()
	for {
		select {
		case <-ctx.Done():
			debug.Info("Control loop stopped after %d ticks", l.ticks)
			return ctx.Err()
		case <-ticker.C:
			l.Step()
		}
	}
}
