package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"panelseq/internal/panel"
)

func TestLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)

	st, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), st.Mode().Perm())

	again, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, again)
	assert.NoError(t, again.Validate())
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
listen: ":9000"
timezone: Europe/Berlin
schedule:
  power_on: "0 7 * * *"
  power_off: "30 22 * * 1-5"
panel:
  spi_port: /dev/spidev0.0
  dc_pin: GPIO25
  reset:
    pin: GPIO23
    active_low: true
  supplies:
    iovcc:
      fixed: true
    vsp:
      pin: GPIO6
      ramp_delay: 2ms
      bias_mv: 5500
    vsn:
      pin: GPIO13
      bias_mv: 5500
  bias:
    i2c_bus: "1"
  rotation: 90
  timings:
    reset_settle: 250ms
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, ":9000", cfg.Listen)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, int64(defaultSPIClockHz), cfg.Panel.SPIClockHz)
	assert.True(t, cfg.Panel.Reset.ActiveLow)
	assert.True(t, cfg.Panel.Supplies.IOVCC.Fixed)
	assert.Equal(t, 2*time.Millisecond, cfg.Panel.Supply(panel.RailVSP).RampDelay)
	assert.Equal(t, uint16(0x3E), cfg.Panel.Bias.Addr)
	assert.Equal(t, 250*time.Millisecond, cfg.Panel.Timings.ResetSettle)
	assert.Equal(t, panel.DefaultTimings().SleepOutSettle, cfg.Panel.Timings.SleepOutSettle)

	o, err := cfg.Panel.ResolveOrientation()
	require.NoError(t, err)
	assert.Equal(t, panel.OrientationRightUp, o)

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "Europe/Berlin", loc.String())
}

func TestLoadBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("panel: [oops"), 0o600))
	_, err := Load(path)
	assert.Error(t, err)

	_, err = Load("")
	assert.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := DefaultConfig()
	cfg.Schedule.PowerOn = "0 8 * * *"
	cfg.BasicAuth = &BasicAuthConfig{Username: "admin", Password: "secret"}
	require.NoError(t, cfg.Save(path))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, got)
}

func TestValidate(t *testing.T) {
	rot := 45
	zero := 0
	tests := []struct {
		name string
		mod  func(c *Config)
		want error
	}{
		{"missing dc", func(c *Config) { c.Panel.DCPin = "" }, ErrMissingPin},
		{"missing reset", func(c *Config) { c.Panel.Reset.Pin = "" }, ErrMissingPin},
		{"missing vsn", func(c *Config) { c.Panel.Supplies.VSN.Pin = "" }, ErrMissingPin},
		{"bad cron", func(c *Config) { c.Schedule.PowerOff = "every night" }, ErrSchedule},
		{"bad timezone", func(c *Config) { c.Timezone = "Mars/Olympus" }, ErrTimezone},
		{"bad orientation", func(c *Config) { c.Panel.Orientation = "sideways" }, ErrOrientation},
		{"bad rotation", func(c *Config) { c.Panel.Orientation = ""; c.Panel.Rotation = &rot }, ErrOrientation},
		{"both orientation and rotation", func(c *Config) { c.Panel.Rotation = &zero }, ErrOrientation},
		{"short reset", func(c *Config) { c.Panel.Timings.ResetSettle = time.Millisecond }, ErrTimings},
		{"negative ramp", func(c *Config) { c.Panel.Supplies.VSP.RampDelay = -time.Millisecond }, ErrTimings},
		{"bias without converter", func(c *Config) { c.Panel.Supplies.VSP.BiasMillivolts = 5000 }, ErrBias},
		{"bias on iovcc", func(c *Config) {
			c.Panel.Bias = &BiasConfig{}
			c.Panel.Supplies.IOVCC.BiasMillivolts = 5000
		}, ErrBias},
		{"bias out of range", func(c *Config) {
			c.Panel.Bias = &BiasConfig{}
			c.Panel.Supplies.VSN.BiasMillivolts = 9000
		}, ErrBias},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mod(cfg)
			assert.ErrorIs(t, cfg.Validate(), tt.want)
		})
	}

	cfg := DefaultConfig()
	cfg.LogLevel = "loud"
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Panel.Supplies.VSN = SupplyConfig{Fixed: true}
	assert.NoError(t, cfg.Validate())
}

func TestResolveOrientationAbsent(t *testing.T) {
	var p PanelConfig
	o, err := p.ResolveOrientation()
	require.NoError(t, err)
	assert.Equal(t, panel.OrientationUnknown, o)
}
