// Package sim provides a board with no hardware behind it: GPIOs are
// periph gpiotest pins, the SPI port feeds an emulated LS054B3SX01
// controller, and the bias converter's I2C bus is recorded.
//
// It runs the real hw.Board code, so everything above the bus layer behaves
// as on a device.
package sim

import (
	"fmt"
	"sort"
	"sync"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
	"periph.io/x/conn/v3/i2c/i2ctest"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"

	"panelseq/internal/config"
	"panelseq/internal/hw"
	appLog "panelseq/internal/log"
	"panelseq/internal/panel"
)

// Pin is a gpiotest pin that reports level changes to the device.
type Pin struct {
	gpiotest.Pin
	onOut func(gpio.Level)
}

func (p *Pin) Out(l gpio.Level) error {
	if err := p.Pin.Out(l); err != nil {
		return err
	}
	if p.onOut != nil {
		p.onOut(l)
	}
	return nil
}

// Bank hands out pins by name, creating them on first use.
type Bank struct {
	mu   sync.Mutex
	pins map[string]*Pin
}

func NewBank() *Bank { return &Bank{pins: map[string]*Pin{}} }

func (b *Bank) get(name string) *Pin {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.pins[name]
	if !ok {
		p = &Pin{Pin: gpiotest.Pin{N: name, Num: len(b.pins)}}
		b.pins[name] = p
	}
	return p
}

// ByName has the shape of gpioreg.ByName.
func (b *Bank) ByName(name string) gpio.PinIO {
	if name == "" {
		return nil
	}
	return b.get(name)
}

// Levels reports every pin level, keyed by name.
func (b *Bank) Levels() map[string]gpio.Level {
	b.mu.Lock()
	names := make([]string, 0, len(b.pins))
	for n := range b.pins {
		names = append(names, n)
	}
	b.mu.Unlock()
	sort.Strings(names)

	out := make(map[string]gpio.Level, len(names))
	for _, n := range names {
		out[n] = b.get(n).Read()
	}
	return out
}

// port is the SPI port the emulated controller sits on.
type port struct {
	dev    *Device
	mu     sync.Mutex
	hz     physic.Frequency
	closed bool
}

func (p *port) String() string { return "sim-spi" }

func (p *port) Connect(f physic.Frequency, mode spi.Mode, bits int) (spi.Conn, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, fmt.Errorf("sim: port closed")
	}
	if bits != 8 {
		return nil, fmt.Errorf("sim: %d bits per word not supported", bits)
	}
	p.hz = f
	return p.dev, nil
}

func (p *port) LimitSpeed(f physic.Frequency) error { return nil }

func (p *port) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// Sim is a complete simulated board.
type Sim struct {
	*hw.Board
	Device *Device
	Pins   *Bank
	I2C    *i2ctest.Record
	port   *port
}

// New builds a simulated board wired as cfg describes.
func New(cfg config.PanelConfig) (*Sim, error) {
	bank := NewBank()
	dev := newDevice()
	s := &Sim{Device: dev, Pins: bank, I2C: &i2ctest.Record{}, port: &port{dev: dev}}

	if cfg.Reset.Pin != "" {
		dev.reset = line{pin: bank.get(cfg.Reset.Pin), activeLow: cfg.Reset.ActiveLow}
		dev.watch(dev.reset)
	}
	for _, name := range panel.RailOrder {
		sc := cfg.Supply(name)
		if sc.Fixed || sc.Pin == "" {
			continue
		}
		l := line{pin: bank.get(sc.Pin), activeLow: sc.ActiveLow}
		dev.rails = append(dev.rails, l)
		dev.watch(l)
	}
	if cfg.DCPin != "" {
		dev.dc = bank.get(cfg.DCPin)
	}

	deps := hw.Deps{Port: s.port, Pin: bank.ByName}
	if cfg.Bias != nil {
		deps.Bus = s.I2C
	}
	b, err := hw.NewBoard(cfg, deps)
	if err != nil {
		return nil, err
	}
	s.Board = b
	appLog.Info("simulated board ready", "dc", cfg.DCPin, "reset", cfg.Reset.Pin)
	return s, nil
}

// ClockHz is the SPI clock the board connected with.
func (s *Sim) ClockHz() physic.Frequency {
	s.port.mu.Lock()
	defer s.port.mu.Unlock()
	return s.port.hz
}
