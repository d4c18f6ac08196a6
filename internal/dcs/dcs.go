// Package dcs implements the MIPI Display Command Set on top of a raw
// periph.io connection.
//
// Every command is sent as one atomic conn.Conn.Tx call whose write buffer is
// the opcode followed by its parameters. Reads (brightness, power mode) use
// the same Tx with a non-empty read buffer, so the transport must support
// half-duplex reads after the opcode.
package dcs

import (
	"errors"
	"fmt"

	"periph.io/x/conn/v3"
)

// Standard DCS opcodes.
const (
	Nop                  = 0x00
	SoftReset            = 0x01
	GetPowerMode         = 0x0A
	EnterSleepMode       = 0x10
	ExitSleepMode        = 0x11
	SetDisplayOff        = 0x28
	SetDisplayOn         = 0x29
	SetTearOff           = 0x34
	SetTearOn            = 0x35
	SetDisplayBrightness = 0x51
	GetDisplayBrightness = 0x52
	WriteControlDisplay  = 0x53
	WritePowerSave       = 0x55
)

// TearMode selects which blanking interval the tearing-effect output follows.
type TearMode byte

const (
	TearModeVBlank  TearMode = 0
	TearModeVHBlank TearMode = 1
)

// Power mode bits returned by GetPowerMode.
const (
	PowerModeDisplayOn = 1 << 2
	PowerModeNormal    = 1 << 3
	PowerModeSleepOut  = 1 << 4
	PowerModeIdle      = 1 << 6
	PowerModeBooster   = 1 << 7
)

var ErrEmptyWrite = errors.New("dcs: empty write")

var opNames = map[byte]string{
	Nop:                  "nop",
	SoftReset:            "soft_reset",
	GetPowerMode:         "get_power_mode",
	EnterSleepMode:       "enter_sleep_mode",
	ExitSleepMode:        "exit_sleep_mode",
	SetDisplayOff:        "set_display_off",
	SetDisplayOn:         "set_display_on",
	SetTearOff:           "set_tear_off",
	SetTearOn:            "set_tear_on",
	SetDisplayBrightness: "set_display_brightness",
	GetDisplayBrightness: "get_display_brightness",
	WriteControlDisplay:  "write_control_display",
	WritePowerSave:       "write_power_save",
}

// OpName returns the standard name of op, or its hex form for vendor opcodes.
func OpName(op byte) string {
	if n, ok := opNames[op]; ok {
		return n
	}
	return fmt.Sprintf("0x%02X", op)
}

// Conn issues DCS commands over a raw connection.
type Conn struct {
	c conn.Conn
}

// New wraps c. The connection is owned by the caller.
func New(c conn.Conn) *Conn {
	return &Conn{c: c}
}

func (d *Conn) String() string {
	return "dcs{" + d.c.String() + "}"
}

// Write sends buf (opcode first) as a single burst.
func (d *Conn) Write(buf []byte) error {
	if len(buf) == 0 {
		return ErrEmptyWrite
	}
	if err := d.c.Tx(buf, nil); err != nil {
		return fmt.Errorf("dcs: %s (0x%02X): %w", OpName(buf[0]), buf[0], err)
	}
	return nil
}

// Command sends op followed by params as a single burst.
func (d *Conn) Command(op byte, params ...byte) error {
	buf := make([]byte, 0, 1+len(params))
	buf = append(buf, op)
	buf = append(buf, params...)
	return d.Write(buf)
}

func (d *Conn) read(op byte, r []byte) error {
	if err := d.c.Tx([]byte{op}, r); err != nil {
		return fmt.Errorf("dcs: %s (0x%02X): %w", OpName(op), op, err)
	}
	return nil
}

func (d *Conn) ExitSleepMode() error  { return d.Command(ExitSleepMode) }
func (d *Conn) EnterSleepMode() error { return d.Command(EnterSleepMode) }
func (d *Conn) SetDisplayOn() error   { return d.Command(SetDisplayOn) }
func (d *Conn) SetDisplayOff() error  { return d.Command(SetDisplayOff) }
func (d *Conn) SoftReset() error      { return d.Command(SoftReset) }

// SetTearOn enables the tearing-effect output line.
func (d *Conn) SetTearOn(mode TearMode) error {
	return d.Command(SetTearOn, byte(mode))
}

func (d *Conn) SetTearOff() error { return d.Command(SetTearOff) }

// SetDisplayBrightness writes the 16-bit brightness value, low byte first.
func (d *Conn) SetDisplayBrightness(v uint16) error {
	return d.Command(SetDisplayBrightness, byte(v), byte(v>>8))
}

// GetDisplayBrightness reads back the 16-bit brightness value.
func (d *Conn) GetDisplayBrightness() (uint16, error) {
	var r [2]byte
	if err := d.read(GetDisplayBrightness, r[:]); err != nil {
		return 0, err
	}
	return uint16(r[0]) | uint16(r[1])<<8, nil
}

// GetPowerMode reads the display power mode register.
func (d *Conn) GetPowerMode() (byte, error) {
	var r [1]byte
	if err := d.read(GetPowerMode, r[:]); err != nil {
		return 0, err
	}
	return r[0], nil
}

func (d *Conn) WritePowerSave(mode byte) error {
	return d.Command(WritePowerSave, mode)
}

func (d *Conn) WriteControlDisplay(v byte) error {
	return d.Command(WriteControlDisplay, v)
}
