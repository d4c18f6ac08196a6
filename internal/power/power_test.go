package power

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
	"periph.io/x/conn/v3/i2c/i2ctest"
)

// brokenPin fails every Out.
type brokenPin struct {
	gpiotest.Pin
	err error
}

func (p *brokenPin) Out(gpio.Level) error { return p.err }

func TestGPIORail(t *testing.T) {
	pin := &gpiotest.Pin{N: "VSP_EN", Num: 5, L: gpio.High}
	var slept []time.Duration
	r, err := NewGPIORail("vsp", pin, RailOpts{
		Ramp:  time.Millisecond,
		Sleep: func(d time.Duration) { slept = append(slept, d) },
	})
	require.NoError(t, err)
	assert.Equal(t, gpio.Low, pin.Read(), "starts off")
	assert.Equal(t, "vsp", r.Name())

	require.NoError(t, r.Enable())
	assert.Equal(t, gpio.High, pin.Read())
	assert.True(t, r.Enabled())
	assert.Equal(t, []time.Duration{time.Millisecond}, slept)

	require.NoError(t, r.Disable())
	assert.Equal(t, gpio.Low, pin.Read())
	assert.False(t, r.Enabled())
}

func TestGPIORailActiveLow(t *testing.T) {
	pin := &gpiotest.Pin{N: "IOVCC_EN", Num: 6}
	r, err := NewGPIORail("iovcc", pin, RailOpts{ActiveLow: true})
	require.NoError(t, err)
	assert.Equal(t, gpio.High, pin.Read())

	require.NoError(t, r.Enable())
	assert.Equal(t, gpio.Low, pin.Read())
}

func TestGPIORailErrors(t *testing.T) {
	_, err := NewGPIORail("vsn", nil, RailOpts{})
	assert.Error(t, err)

	cause := errors.New("gpio busy")
	pin := &brokenPin{Pin: gpiotest.Pin{N: "VSN_EN"}, err: cause}
	_, err = NewGPIORail("vsn", pin, RailOpts{})
	assert.ErrorIs(t, err, cause)

	ok := &gpiotest.Pin{N: "VSN_EN"}
	r, err := NewGPIORail("vsn", ok, RailOpts{})
	require.NoError(t, err)
	r.pin = pin
	assert.ErrorIs(t, r.Enable(), cause)
	assert.False(t, r.Enabled())
	assert.ErrorIs(t, r.Disable(), cause)
}

func TestFixedRail(t *testing.T) {
	r := NewFixedRail("iovcc")
	assert.Equal(t, "iovcc", r.Name())
	assert.NoError(t, r.Enable())
	assert.NoError(t, r.Disable())
}

func TestGPIOReset(t *testing.T) {
	pin := &gpiotest.Pin{N: "RESET", Num: 23, L: gpio.High}
	g, err := NewGPIOReset(pin, false)
	require.NoError(t, err)
	assert.Equal(t, gpio.Low, pin.Read(), "held in reset")

	g.SetLevel(true)
	assert.Equal(t, gpio.High, pin.Read())
	g.SetLevel(false)
	assert.Equal(t, gpio.Low, pin.Read())

	inv := &gpiotest.Pin{N: "RESET_N", Num: 24}
	g, err = NewGPIOReset(inv, true)
	require.NoError(t, err)
	assert.Equal(t, gpio.High, inv.Read())
	g.SetLevel(true)
	assert.Equal(t, gpio.Low, inv.Read())

	_, err = NewGPIOReset(nil, false)
	assert.Error(t, err)
}

func TestGPIOResetLogsFailure(t *testing.T) {
	pin := &brokenPin{Pin: gpiotest.Pin{N: "RESET"}, err: errors.New("gone")}
	g := &GPIOReset{pin: pin}
	assert.NotPanics(t, func() { g.SetLevel(true) })
}

func TestTPS65132(t *testing.T) {
	bus := &i2ctest.Record{}
	conv := NewTPS65132(bus, 0)

	require.NoError(t, conv.SetVoltage(BiasPositive, 5500))
	require.NoError(t, conv.SetVoltage(BiasNegative, 4000))
	require.Len(t, bus.Ops, 2)
	assert.Equal(t, uint16(DefaultTPS65132Addr), bus.Ops[0].Addr)
	assert.Equal(t, []byte{0x00, 0x0F}, bus.Ops[0].W)
	assert.Equal(t, []byte{0x01, 0x00}, bus.Ops[1].W)

	assert.Error(t, conv.SetVoltage(BiasPositive, 6100))
	assert.Error(t, conv.SetVoltage(BiasPositive, 5550))
	assert.Len(t, bus.Ops, 2)
}

func TestBiasRail(t *testing.T) {
	bus := &i2ctest.Record{}
	conv := NewTPS65132(bus, 0x3E)
	pin := &gpiotest.Pin{N: "ENP"}
	gr, err := NewGPIORail("vsp", pin, RailOpts{})
	require.NoError(t, err)

	r := conv.Rail(gr, BiasPositive, 5000)
	require.NoError(t, r.Enable())
	assert.Equal(t, gpio.High, pin.Read())
	require.Len(t, bus.Ops, 1)
	assert.Equal(t, []byte{0x00, 0x0A}, bus.Ops[0].W)

	require.NoError(t, r.Disable())
	assert.Equal(t, gpio.Low, pin.Read())

	bad := conv.Rail(gr, BiasPositive, 7000)
	assert.Error(t, bad.Enable())
	assert.Equal(t, gpio.Low, pin.Read(), "switched back off")
}
