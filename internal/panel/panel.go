// Package panel sequences power-up, configuration and power-down of the
// Sharp LS054B3SX01 1152x1920 video-mode panel.
//
// A Panel owns three supply rails (iovcc, vsp, vsn), a reset line and a
// command channel. Prepare enables the rails in order, releases reset and
// runs the init sequence; any failure unwinds what was acquired, in reverse.
// Unprepare is the mirror image. Neither is safe for concurrent use; callers
// serialize lifecycle transitions.
package panel

import (
	"errors"
	"fmt"

	appLog "panelseq/internal/log"
)

// Compatible identifies the panel model.
const Compatible = "sharp,ls054b3sx01"

// Rail names, in enable order.
const (
	RailIOVCC = "iovcc"
	RailVSP   = "vsp"
	RailVSN   = "vsn"
)

// ResetName is the name the reset line is resolved by.
const ResetName = "reset"

// RailOrder is the enable order. Disabling runs it backwards.
var RailOrder = [...]string{RailIOVCC, RailVSP, RailVSN}

// Resources are the hardware handles a panel owns for its lifetime.
type Resources struct {
	IOVCC, VSP, VSN Rail
	Reset           ResetLine
	Orientation     Orientation
}

// Panel is one attached panel instance.
type Panel struct {
	rails       [3]Rail
	reset       ResetLine
	cmd         Commander
	seq         *Sequencer
	clock       Clock
	timings     Timings
	timing      DisplayTiming
	orientation Orientation
	state       State

	host     Host
	registry Registry
}

// New builds an unprepared panel from already-resolved resources. The reset
// line is driven inactive immediately. A nil clock means SystemClock and a
// zero Timings means DefaultTimings.
func New(res Resources, cmd Commander, clock Clock, t Timings) (*Panel, error) {
	if res.IOVCC == nil || res.VSP == nil || res.VSN == nil {
		return nil, newError(ResourceUnavailable, "rails", errors.New("all three rails are required"))
	}
	if res.Reset == nil {
		return nil, newError(ResourceUnavailable, ResetName, errors.New("reset line is required"))
	}
	if cmd == nil {
		return nil, errors.New("panel: command channel is required")
	}
	if clock == nil {
		clock = SystemClock
	}
	t = t.WithDefaults()
	if err := t.Validate(); err != nil {
		return nil, err
	}
	p := &Panel{
		rails:       [3]Rail{res.IOVCC, res.VSP, res.VSN},
		reset:       res.Reset,
		cmd:         cmd,
		seq:         NewSequencer(clock, t),
		clock:       clock,
		timings:     t,
		timing:      LS054Timing,
		orientation: res.Orientation,
		state:       Unprepared,
	}
	p.reset.SetLevel(false)
	return p, nil
}

func (p *Panel) State() State             { return p.state }
func (p *Panel) Orientation() Orientation { return p.orientation }
func (p *Panel) Timing() DisplayTiming    { return p.timing }
func (p *Panel) Timings() Timings         { return p.timings }
func (p *Panel) Sequencer() *Sequencer    { return p.seq }

func (p *Panel) String() string {
	return fmt.Sprintf("panel{%s %s %s}", Compatible, modeName(p.timing), p.state)
}

// Prepare powers the panel up and runs the init sequence. It is a no-op when
// already prepared. On failure every rail it enabled is disabled again in
// reverse order and the panel stays unprepared.
func (p *Panel) Prepare() error {
	if p.state == Prepared {
		return nil
	}
	appLog.Info("panel prepare", "compatible", Compatible)

	p.reset.SetLevel(false)

	on := make([]Rail, 0, len(p.rails))
	for i, r := range p.rails {
		if err := r.Enable(); err != nil {
			appLog.Error("failed to enable rail", err, "rail", r.Name())
			p.disableRails(on)
			return newError(PowerSequenceFailure, "enable "+r.Name(), err)
		}
		appLog.Debug("rail enabled", "rail", r.Name())
		on = append(on, r)
		if i < len(p.rails)-1 {
			sleepRange(p.clock, p.timings.RailSettleMin, p.timings.RailSettleMax)
		}
	}

	p.reset.SetLevel(true)
	p.clock.Sleep(p.timings.ResetSettle)

	if err := p.seq.Run(p.cmd); err != nil {
		appLog.Error("failed to initialize panel", err)
		p.reset.SetLevel(false)
		p.disableRails(on)
		return err
	}

	p.state = Prepared
	appLog.Info("panel prepared", "mode", modeName(p.timing))
	return nil
}

// Unprepare turns the display off, puts it to sleep and removes power. It is
// a no-op when already unprepared. A failed display-off or sleep-in command
// aborts before any rail is touched and the panel stays prepared. Rail
// disable failures are logged and do not stop the power-down.
func (p *Panel) Unprepare() error {
	if p.state == Unprepared {
		return nil
	}
	appLog.Info("panel unprepare", "compatible", Compatible)

	if err := p.cmd.SetDisplayOff(); err != nil {
		appLog.Error("failed to set display off", err)
		return newError(CommandFailure, "set_display_off", err)
	}
	sleepRange(p.clock, p.timings.DisplayOffSettleMin, p.timings.DisplayOffSettleMax)

	if err := p.cmd.EnterSleepMode(); err != nil {
		appLog.Error("failed to enter sleep mode", err)
		return newError(CommandFailure, "enter_sleep_mode", err)
	}
	p.clock.Sleep(p.timings.SleepInSettle)

	p.powerOff()
	p.state = Unprepared
	appLog.Info("panel unprepared")
	return nil
}

// powerOff holds reset and drops every rail, spaced by the rail-off delay.
func (p *Panel) powerOff() {
	p.reset.SetLevel(false)
	for i := len(p.rails) - 1; i >= 0; i-- {
		sleepRange(p.clock, p.timings.RailOffMin, p.timings.RailOffMax)
		p.disableRail(p.rails[i])
	}
}

// disableRails pops the acquired stack.
func (p *Panel) disableRails(on []Rail) {
	for i := len(on) - 1; i >= 0; i-- {
		p.disableRail(on[i])
	}
}

func (p *Panel) disableRail(r Rail) {
	if err := r.Disable(); err != nil {
		appLog.Error("failed to disable rail", err, "rail", r.Name())
		return
	}
	appLog.Debug("rail disabled", "rail", r.Name())
}

// BrightnessReader is implemented by channels that can read brightness back.
type BrightnessReader interface {
	GetDisplayBrightness() (uint16, error)
}

// ErrNotPrepared is returned by queries that need a powered panel.
var ErrNotPrepared = errors.New("panel: not prepared")

// Brightness reads the current display brightness from the panel.
func (p *Panel) Brightness() (uint16, error) {
	if p.state != Prepared {
		return 0, ErrNotPrepared
	}
	br, ok := p.cmd.(BrightnessReader)
	if !ok {
		return 0, errors.New("panel: command channel cannot read brightness")
	}
	v, err := br.GetDisplayBrightness()
	if err != nil {
		return 0, newError(CommandFailure, "get_display_brightness", err)
	}
	return v, nil
}
