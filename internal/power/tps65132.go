package power

import (
	"fmt"

	"periph.io/x/conn/v3/i2c"
)

// TPS65132 registers.
const (
	regVPOS = 0x00
	regVNEG = 0x01
)

// BiasOutput selects one output of the dual bias converter.
type BiasOutput byte

const (
	BiasPositive BiasOutput = regVPOS
	BiasNegative BiasOutput = regVNEG
)

// Output voltage range in millivolts, in 100 mV steps.
const (
	BiasMinMillivolts = 4000
	BiasMaxMillivolts = 6000
)

// TPS65132 programs the output voltages of a TPS65132 positive/negative
// bias supply over I2C. The outputs themselves are switched by GPIO.
type TPS65132 struct {
	dev *i2c.Dev
}

// DefaultTPS65132Addr is the converter's fixed 7-bit address.
const DefaultTPS65132Addr = 0x3E

func NewTPS65132(bus i2c.Bus, addr uint16) *TPS65132 {
	if addr == 0 {
		addr = DefaultTPS65132Addr
	}
	return &TPS65132{dev: &i2c.Dev{Bus: bus, Addr: addr}}
}

// SetVoltage writes the magnitude of out in millivolts.
func (t *TPS65132) SetVoltage(out BiasOutput, mv int) error {
	if mv < BiasMinMillivolts || mv > BiasMaxMillivolts || mv%100 != 0 {
		return fmt.Errorf("power: bias %d mV out of range", mv)
	}
	code := byte((mv - BiasMinMillivolts) / 100)
	if err := t.dev.Tx([]byte{byte(out), code}, nil); err != nil {
		return fmt.Errorf("power: tps65132 write 0x%02X: %w", byte(out), err)
	}
	return nil
}

// BiasRail is a GPIO-switched bias output whose voltage is programmed each
// time it is enabled, since the converter forgets it when both outputs drop.
type BiasRail struct {
	*GPIORail
	conv *TPS65132
	out  BiasOutput
	mv   int
}

// Rail wraps r so that enabling it also programs out to mv.
func (t *TPS65132) Rail(r *GPIORail, out BiasOutput, mv int) *BiasRail {
	return &BiasRail{GPIORail: r, conv: t, out: out, mv: mv}
}

func (b *BiasRail) Enable() error {
	if err := b.GPIORail.Enable(); err != nil {
		return err
	}
	if err := b.conv.SetVoltage(b.out, b.mv); err != nil {
		_ = b.GPIORail.Disable()
		return fmt.Errorf("power: enable %s: %w", b.Name(), err)
	}
	return nil
}
