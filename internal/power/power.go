// Package power provides the supply rails and reset line a panel is wired
// to: GPIO-switched load switches, always-on fixed supplies, and an I2C
// programmed bias converter.
package power

import (
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"

	appLog "panelseq/internal/log"
)

// GPIORail is a supply switched by one GPIO enable line.
type GPIORail struct {
	name      string
	pin       gpio.PinOut
	activeLow bool
	ramp      time.Duration
	sleep     func(time.Duration)

	mu sync.Mutex
	on bool
}

// RailOpts configures a GPIORail.
type RailOpts struct {
	// ActiveLow inverts the enable line.
	ActiveLow bool
	// Ramp is waited after switching on, before Enable returns.
	Ramp time.Duration
	// Sleep defaults to time.Sleep.
	Sleep func(time.Duration)
}

// NewGPIORail returns a rail driving pin. The rail starts switched off.
func NewGPIORail(name string, pin gpio.PinOut, opts RailOpts) (*GPIORail, error) {
	if pin == nil {
		return nil, fmt.Errorf("power: rail %s has no enable pin", name)
	}
	r := &GPIORail{
		name:      name,
		pin:       pin,
		activeLow: opts.ActiveLow,
		ramp:      opts.Ramp,
		sleep:     opts.Sleep,
	}
	if r.sleep == nil {
		r.sleep = time.Sleep
	}
	if err := pin.Out(r.level(false)); err != nil {
		return nil, fmt.Errorf("power: rail %s: %w", name, err)
	}
	return r, nil
}

func (r *GPIORail) level(on bool) gpio.Level {
	return gpio.Level(on != r.activeLow)
}

func (r *GPIORail) Name() string { return r.name }

// Enabled reports the last level successfully driven.
func (r *GPIORail) Enabled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.on
}

func (r *GPIORail) Enable() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.pin.Out(r.level(true)); err != nil {
		return fmt.Errorf("power: enable %s: %w", r.name, err)
	}
	r.on = true
	if r.ramp > 0 {
		r.sleep(r.ramp)
	}
	return nil
}

func (r *GPIORail) Disable() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.pin.Out(r.level(false)); err != nil {
		return fmt.Errorf("power: disable %s: %w", r.name, err)
	}
	r.on = false
	return nil
}

func (r *GPIORail) String() string {
	return fmt.Sprintf("%s(%s)", r.name, r.pin)
}

// FixedRail is a supply that is always on. Enable and Disable only log.
type FixedRail struct {
	name string
}

func NewFixedRail(name string) *FixedRail { return &FixedRail{name: name} }

func (r *FixedRail) Name() string { return r.name }

func (r *FixedRail) Enable() error {
	appLog.Debug("fixed rail enable", "rail", r.name)
	return nil
}

func (r *FixedRail) Disable() error {
	appLog.Debug("fixed rail disable", "rail", r.name)
	return nil
}

// GPIOReset drives a panel reset input. SetLevel(true) releases the panel.
type GPIOReset struct {
	pin       gpio.PinOut
	activeLow bool
}

// NewGPIOReset returns a reset line and drives it inactive (panel held).
func NewGPIOReset(pin gpio.PinOut, activeLow bool) (*GPIOReset, error) {
	if pin == nil {
		return nil, fmt.Errorf("power: reset line has no pin")
	}
	g := &GPIOReset{pin: pin, activeLow: activeLow}
	if err := pin.Out(g.level(false)); err != nil {
		return nil, fmt.Errorf("power: reset: %w", err)
	}
	return g, nil
}

func (g *GPIOReset) level(active bool) gpio.Level {
	return gpio.Level(active != g.activeLow)
}

// SetLevel cannot fail from the caller's point of view; a pin error is logged.
func (g *GPIOReset) SetLevel(active bool) {
	if err := g.pin.Out(g.level(active)); err != nil {
		appLog.Error("failed to drive reset line", err, "pin", g.pin.String(), "active", active)
	}
}
