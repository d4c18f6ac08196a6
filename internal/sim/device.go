package sim

import (
	"errors"
	"fmt"
	"sync"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/conntest"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/spi"

	"panelseq/internal/dcs"
)

var (
	ErrInReset   = errors.New("sim: panel held in reset")
	ErrUnpowered = errors.New("sim: panel supply off")
)

// line is a GPIO the device watches, with its active level.
type line struct {
	pin       *Pin
	activeLow bool
}

func (l line) active() bool {
	if l.pin == nil {
		return true
	}
	return (l.pin.Read() == gpio.High) != l.activeLow
}

// Device emulates the controller side of the 4-wire serial link. It tracks
// enough DCS state to answer brightness and power-mode reads and refuses
// traffic while unpowered or held in reset.
type Device struct {
	mu     sync.Mutex
	dc     *Pin
	reset  line
	rails  []line
	record conntest.Record
	bursts [][]byte

	sleeping   bool
	displayOn  bool
	tearOn     bool
	extc       bool
	brightness uint16
}

func newDevice() *Device {
	d := &Device{}
	d.powerOnReset()
	return d
}

func (d *Device) powerOnReset() {
	d.sleeping = true
	d.displayOn = false
	d.tearOn = false
	d.extc = false
	d.brightness = 0
}

// watch resets the controller whenever l goes inactive.
func (d *Device) watch(l line) {
	if l.pin == nil {
		return
	}
	l.pin.onOut = func(gpio.Level) {
		if !l.active() {
			d.mu.Lock()
			d.powerOnReset()
			d.mu.Unlock()
		}
	}
}

func (d *Device) String() string      { return "sim-ls054" }
func (d *Device) Duplex() conn.Duplex { return conn.Full }

func (d *Device) TxPackets(p []spi.Packet) error {
	return errors.New("sim: packet transfers not supported")
}

// Tx decodes one frame according to the D/C level.
func (d *Device) Tx(w, r []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, rl := range d.rails {
		if !rl.active() {
			return fmt.Errorf("%w: %s", ErrUnpowered, rl.pin.Name())
		}
	}
	if !d.reset.active() {
		return ErrInReset
	}
	if len(w) > 0 {
		if err := d.record.Tx(w, nil); err != nil {
			return err
		}
	}

	command := d.dc == nil || d.dc.Read() == gpio.Low
	switch {
	case command:
		if len(w) == 0 {
			return errors.New("sim: empty command frame")
		}
		d.bursts = append(d.bursts, append([]byte(nil), w...))
		if len(w) == 1 {
			d.exec(w[0], nil)
		}
	case len(d.bursts) == 0:
		return errors.New("sim: data frame without a command")
	case len(r) > 0:
		d.read(d.bursts[len(d.bursts)-1][0], r)
	default:
		last := &d.bursts[len(d.bursts)-1]
		*last = append(*last, w...)
		d.exec((*last)[0], (*last)[1:])
	}
	return nil
}

func (d *Device) exec(op byte, params []byte) {
	switch op {
	case dcs.SoftReset:
		d.powerOnReset()
	case dcs.ExitSleepMode:
		d.sleeping = false
	case dcs.EnterSleepMode:
		d.sleeping = true
	case dcs.SetDisplayOn:
		d.displayOn = true
	case dcs.SetDisplayOff:
		d.displayOn = false
	case dcs.SetTearOn:
		d.tearOn = true
	case dcs.SetTearOff:
		d.tearOn = false
	case dcs.SetDisplayBrightness:
		switch len(params) {
		case 1:
			d.brightness = uint16(params[0])
		case 2:
			d.brightness = uint16(params[0]) | uint16(params[1])<<8
		}
	case 0xB9:
		d.extc = len(params) == 3 && params[0] == 0xFF && params[1] == 0x83 && params[2] == 0x99
	}
}

func (d *Device) read(op byte, r []byte) {
	for i := range r {
		r[i] = 0
	}
	switch op {
	case dcs.GetDisplayBrightness:
		r[0] = byte(d.brightness)
		if len(r) > 1 {
			r[1] = byte(d.brightness >> 8)
		}
	case dcs.GetPowerMode:
		var m byte = dcs.PowerModeNormal
		if !d.sleeping {
			m |= dcs.PowerModeSleepOut | dcs.PowerModeBooster
		}
		if d.displayOn {
			m |= dcs.PowerModeDisplayOn
		}
		r[0] = m
	}
}

// State is a snapshot of the emulated controller.
type State struct {
	Sleeping   bool   `json:"sleeping"`
	DisplayOn  bool   `json:"display_on"`
	TearOn     bool   `json:"tear_on"`
	Extended   bool   `json:"extended_commands"`
	Brightness uint16 `json:"brightness"`
}

func (d *Device) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return State{
		Sleeping:   d.sleeping,
		DisplayOn:  d.displayOn,
		TearOn:     d.tearOn,
		Extended:   d.extc,
		Brightness: d.brightness,
	}
}

// Bursts returns every command received, opcode first, in order.
func (d *Device) Bursts() [][]byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([][]byte, len(d.bursts))
	for i, b := range d.bursts {
		out[i] = append([]byte(nil), b...)
	}
	return out
}

// Frames returns the raw frames as clocked on the wire.
func (d *Device) Frames() []conntest.IO {
	d.record.Lock()
	defer d.record.Unlock()
	return append([]conntest.IO(nil), d.record.Ops...)
}
