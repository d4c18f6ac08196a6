// Package dbi carries DCS command bursts over a 4-wire serial interface: an
// SPI connection plus a data/command select line.
//
// The opcode byte is clocked with D/C low; parameters and read-back follow
// with D/C high, all within one Tx so callers keep the one-burst-per-command
// contract of conn.Conn.
package dbi

import (
	"errors"
	"fmt"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/gpio"
)

// Conn implements conn.Conn over a raw SPI connection and a D/C pin.
type Conn struct {
	c  conn.Conn
	dc gpio.PinOut
}

// New returns a Conn. dc must already be configured as an output.
func New(c conn.Conn, dc gpio.PinOut) (*Conn, error) {
	if c == nil {
		return nil, errors.New("dbi: nil connection")
	}
	if dc == nil {
		return nil, errors.New("dbi: nil d/c pin")
	}
	return &Conn{c: c, dc: dc}, nil
}

func (d *Conn) String() string {
	return fmt.Sprintf("dbi{%s, dc=%s}", d.c, d.dc)
}

func (d *Conn) Duplex() conn.Duplex { return conn.Half }

// Tx sends w[0] as a command, w[1:] as parameters, then reads len(r) bytes.
func (d *Conn) Tx(w, r []byte) error {
	if len(w) == 0 {
		return errors.New("dbi: missing opcode")
	}
	if err := d.dc.Out(gpio.Low); err != nil {
		return fmt.Errorf("dbi: d/c low: %w", err)
	}
	if err := d.c.Tx(w[:1], nil); err != nil {
		return err
	}
	if len(w) == 1 && len(r) == 0 {
		return nil
	}
	if err := d.dc.Out(gpio.High); err != nil {
		return fmt.Errorf("dbi: d/c high: %w", err)
	}
	if len(w) > 1 {
		if err := d.c.Tx(w[1:], nil); err != nil {
			return err
		}
	}
	if len(r) > 0 {
		// Full-duplex transports need something to clock out.
		if err := d.c.Tx(make([]byte, len(r)), r); err != nil {
			return err
		}
	}
	return nil
}
