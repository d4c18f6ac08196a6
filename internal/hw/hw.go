// Package hw binds a panel to real board hardware through periph.io: the
// SPI port and D/C line carry commands, named GPIOs switch the rails and
// reset, and an optional I2C bus reaches the bias converter.
package hw

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"

	"panelseq/internal/config"
	"panelseq/internal/dbi"
	"panelseq/internal/dcs"
	appLog "panelseq/internal/log"
	"panelseq/internal/panel"
	"panelseq/internal/power"
)

// Deps are the already-opened buses a Board is built from.
type Deps struct {
	Port spi.Port
	// Bus is only needed when the config declares a bias converter.
	Bus i2c.Bus
	// Pin resolves a GPIO by name. nil means gpioreg.ByName.
	Pin func(name string) gpio.PinIO
	// Sleep is used for rail ramp delays. nil means time.Sleep.
	Sleep func(time.Duration)
}

// Board resolves the panel's resources from config and acts as its host.
// It implements panel.ConfigSource and panel.Host.
type Board struct {
	cfg     config.PanelConfig
	deps    Deps
	dc      gpio.PinOut
	channel *dcs.Conn
	bias    *power.TPS65132

	mu       sync.Mutex
	attached bool
	closed   bool
	link     panel.LinkConfig
}

// Open initializes periph host drivers, opens the configured SPI port (and
// I2C bus when a bias converter is declared) and returns the board.
func Open(cfg config.PanelConfig) (*Board, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("hw: periph host init failed: %w", err)
	}

	port, err := spireg.Open(cfg.SPIPort)
	if err != nil {
		return nil, fmt.Errorf("hw: failed to open SPI port %q: %w", cfg.SPIPort, err)
	}

	var bus i2c.Bus
	if cfg.Bias != nil {
		bc, err := i2creg.Open(cfg.Bias.Bus)
		if err != nil {
			_ = port.Close()
			return nil, fmt.Errorf("hw: failed to open I2C bus %q: %w", cfg.Bias.Bus, err)
		}
		bus = bc
	}

	b, err := NewBoard(cfg, Deps{Port: port, Bus: bus, Pin: gpioreg.ByName})
	if err != nil {
		_ = port.Close()
		if c, ok := bus.(io.Closer); ok {
			_ = c.Close()
		}
		return nil, err
	}
	return b, nil
}

// NewBoard connects the SPI port and claims the D/C pin. Rails and the reset
// line are resolved lazily through the panel.ConfigSource methods.
func NewBoard(cfg config.PanelConfig, deps Deps) (*Board, error) {
	if deps.Port == nil {
		return nil, errors.New("hw: no SPI port")
	}
	if deps.Pin == nil {
		deps.Pin = gpioreg.ByName
	}
	if deps.Sleep == nil {
		deps.Sleep = time.Sleep
	}

	b := &Board{cfg: cfg, deps: deps}

	dc, err := b.pin(cfg.DCPin)
	if err != nil {
		return nil, err
	}
	if err := dc.Out(gpio.Low); err != nil {
		return nil, fmt.Errorf("hw: gpio %s Out failed: %w", cfg.DCPin, err)
	}
	b.dc = dc

	hz := cfg.SPIClockHz
	if hz <= 0 {
		hz = 10_000_000
	}
	c, err := deps.Port.Connect(physic.Frequency(hz)*physic.Hertz, spi.Mode0, 8)
	if err != nil {
		return nil, fmt.Errorf("hw: failed to connect SPI: %w", err)
	}
	raw, err := dbi.New(c, dc)
	if err != nil {
		return nil, err
	}
	b.channel = dcs.New(raw)

	if cfg.Bias != nil {
		if deps.Bus == nil {
			return nil, errors.New("hw: bias converter configured without an I2C bus")
		}
		b.bias = power.NewTPS65132(deps.Bus, cfg.Bias.Addr)
	}

	appLog.Info("board ready",
		"spi", deps.Port.String(),
		"spi_hz", hz,
		"dc", cfg.DCPin,
		"bias", cfg.Bias != nil,
	)
	return b, nil
}

func (b *Board) pin(name string) (gpio.PinIO, error) {
	if name == "" {
		return nil, errors.New("hw: empty gpio name")
	}
	p := b.deps.Pin(name)
	if p == nil {
		return nil, fmt.Errorf("hw: gpio %s not found", name)
	}
	return p, nil
}

// Channel is the DCS command channel over SPI.
func (b *Board) Channel() *dcs.Conn { return b.channel }

// Rail implements panel.ConfigSource.
func (b *Board) Rail(name string) (panel.Rail, error) {
	var sc config.SupplyConfig
	switch name {
	case panel.RailIOVCC, panel.RailVSP, panel.RailVSN:
		sc = b.cfg.Supply(name)
	default:
		return nil, fmt.Errorf("hw: unknown supply %q", name)
	}
	if sc.Fixed {
		return power.NewFixedRail(name), nil
	}

	p, err := b.pin(sc.Pin)
	if err != nil {
		return nil, fmt.Errorf("hw: supply %s: %w", name, err)
	}
	r, err := power.NewGPIORail(name, p, power.RailOpts{
		ActiveLow: sc.ActiveLow,
		Ramp:      sc.RampDelay,
		Sleep:     b.deps.Sleep,
	})
	if err != nil {
		return nil, err
	}
	if sc.BiasMillivolts == 0 {
		return r, nil
	}
	if b.bias == nil {
		return nil, fmt.Errorf("hw: supply %s needs a bias converter", name)
	}
	out := power.BiasPositive
	if name == panel.RailVSN {
		out = power.BiasNegative
	}
	return b.bias.Rail(r, out, sc.BiasMillivolts), nil
}

// ResetLine implements panel.ConfigSource.
func (b *Board) ResetLine(name string) (panel.ResetLine, error) {
	if name != panel.ResetName {
		return nil, fmt.Errorf("hw: unknown gpio %q", name)
	}
	p, err := b.pin(b.cfg.Reset.Pin)
	if err != nil {
		return nil, fmt.Errorf("hw: reset: %w", err)
	}
	return power.NewGPIOReset(p, b.cfg.Reset.ActiveLow)
}

// Orientation implements panel.ConfigSource.
func (b *Board) Orientation() (panel.Orientation, error) {
	return b.cfg.ResolveOrientation()
}

// Attach implements panel.Host. The SPI link has no negotiation; the request
// is checked against what the board can carry and recorded.
func (b *Board) Attach(l panel.LinkConfig) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return errors.New("hw: board closed")
	}
	if b.attached {
		return errors.New("hw: a panel is already attached")
	}
	if l.Lanes < 1 || l.Lanes > 4 {
		return fmt.Errorf("hw: unsupported lane count %d", l.Lanes)
	}
	b.attached = true
	b.link = l
	appLog.Info("host link attached", "lanes", l.Lanes, "format", l.Format.String())
	return nil
}

// Detach implements panel.Host and releases the buses.
func (b *Board) Detach() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.attached {
		return errors.New("hw: no panel attached")
	}
	b.attached = false
	return b.closeLocked()
}

// Link returns the link config of the attached panel.
func (b *Board) Link() (panel.LinkConfig, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.link, b.attached
}

// Close releases the buses without a detach.
func (b *Board) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closeLocked()
}

func (b *Board) closeLocked() error {
	if b.closed {
		return nil
	}
	b.closed = true
	var errs []error
	if c, ok := b.deps.Port.(io.Closer); ok {
		errs = append(errs, c.Close())
	}
	if c, ok := b.deps.Bus.(io.Closer); ok {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}
