package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	appLog "panelseq/internal/log"
	"panelseq/internal/panel"
	"panelseq/internal/power"
)

// DefaultPath is where panelctl looks for its config when -config is not set.
const DefaultPath = "/etc/panelctl/config.yaml"

var (
	ErrMissingPin  = errors.New("config: missing pin")
	ErrSchedule    = errors.New("config: invalid schedule")
	ErrTimezone    = errors.New("config: invalid timezone")
	ErrOrientation = errors.New("config: invalid orientation")
	ErrTimings     = errors.New("config: invalid timings")
	ErrBias        = errors.New("config: invalid bias supply")
)

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// ScheduleConfig holds standard 5-field cron specs. Empty disables a job.
type ScheduleConfig struct {
	PowerOn  string `yaml:"power_on" json:"power_on"`
	PowerOff string `yaml:"power_off" json:"power_off"`
}

// PinConfig names a GPIO as known to periph's gpioreg (e.g. "GPIO23").
type PinConfig struct {
	Pin       string `yaml:"pin" json:"pin"`
	ActiveLow bool   `yaml:"active_low" json:"active_low"`
}

// SupplyConfig describes one panel rail.
type SupplyConfig struct {
	Pin       string `yaml:"pin,omitempty" json:"pin,omitempty"`
	ActiveLow bool   `yaml:"active_low,omitempty" json:"active_low,omitempty"`

	// Fixed marks a hard-wired supply; enable/disable do nothing.
	Fixed bool `yaml:"fixed,omitempty" json:"fixed,omitempty"`

	// RampDelay is waited after switching the rail on.
	RampDelay time.Duration `yaml:"ramp_delay,omitempty" json:"ramp_delay,omitempty"`

	// BiasMillivolts, for vsp/vsn, programs the bias converter on enable.
	BiasMillivolts int `yaml:"bias_mv,omitempty" json:"bias_mv,omitempty"`
}

// SuppliesConfig is keyed by rail name.
type SuppliesConfig struct {
	IOVCC SupplyConfig `yaml:"iovcc" json:"iovcc"`
	VSP   SupplyConfig `yaml:"vsp" json:"vsp"`
	VSN   SupplyConfig `yaml:"vsn" json:"vsn"`
}

// BiasConfig locates the TPS65132 bias converter.
type BiasConfig struct {
	Bus  string `yaml:"i2c_bus" json:"i2c_bus"`
	Addr uint16 `yaml:"addr" json:"addr"`
}

// PanelConfig describes how the panel is wired to the board.
type PanelConfig struct {
	// SPIPort is a periph spireg name; empty selects the first port.
	SPIPort    string `yaml:"spi_port" json:"spi_port"`
	SPIClockHz int64  `yaml:"spi_clock_hz" json:"spi_clock_hz"`
	DCPin      string `yaml:"dc_pin" json:"dc_pin"`

	Reset    PinConfig      `yaml:"reset" json:"reset"`
	Supplies SuppliesConfig `yaml:"supplies" json:"supplies"`
	Bias     *BiasConfig    `yaml:"bias,omitempty" json:"bias,omitempty"`

	// Orientation is one of normal, upside_down, left_up, right_up.
	// Rotation, in clockwise degrees, may be given instead.
	Orientation string `yaml:"orientation,omitempty" json:"orientation,omitempty"`
	Rotation    *int   `yaml:"rotation,omitempty" json:"rotation,omitempty"`

	Timings panel.Timings `yaml:"timings" json:"timings"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API. Empty disables it.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA zone the schedule runs in.
	Timezone string `yaml:"timezone" json:"timezone"`

	LogLevel string `yaml:"log_level" json:"log_level"`

	Schedule ScheduleConfig `yaml:"schedule" json:"schedule"`

	Panel PanelConfig `yaml:"panel" json:"panel"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

const (
	defaultListen     = "127.0.0.1:8080"
	defaultTimezone   = "UTC"
	defaultLogLevel   = "info"
	defaultSPIClockHz = 10_000_000
)

// DefaultConfig returns an in-memory default configuration for a Raspberry Pi
// style header.
func DefaultConfig() *Config {
	return &Config{
		Listen:   defaultListen,
		Timezone: defaultTimezone,
		LogLevel: defaultLogLevel,
		Panel: PanelConfig{
			SPIClockHz: defaultSPIClockHz,
			DCPin:      "GPIO25",
			Reset:      PinConfig{Pin: "GPIO23"},
			Supplies: SuppliesConfig{
				IOVCC: SupplyConfig{Pin: "GPIO5"},
				VSP:   SupplyConfig{Pin: "GPIO6"},
				VSN:   SupplyConfig{Pin: "GPIO13"},
			},
			Orientation: "normal",
			Timings:     panel.DefaultTimings(),
		},
	}
}

// Normalize fills in missing/zero values with defaults so that partially
// filled configs still behave correctly.
func (c *Config) Normalize() {
	if c.Timezone == "" {
		c.Timezone = defaultTimezone
	}
	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}
	if c.Panel.SPIClockHz <= 0 {
		c.Panel.SPIClockHz = defaultSPIClockHz
	}
	if c.Panel.Bias != nil && c.Panel.Bias.Addr == 0 {
		c.Panel.Bias.Addr = power.DefaultTPS65132Addr
	}
	c.Panel.Timings = c.Panel.Timings.WithDefaults()
}

// Validate reports the first problem that would stop the daemon from
// driving the panel.
func (c *Config) Validate() error {
	if _, err := appLog.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	for name, spec := range map[string]string{
		"power_on":  c.Schedule.PowerOn,
		"power_off": c.Schedule.PowerOff,
	} {
		if spec == "" {
			continue
		}
		if _, err := cron.ParseStandard(spec); err != nil {
			return fmt.Errorf("%w: %s %q: %v", ErrSchedule, name, spec, err)
		}
	}
	return c.Panel.Validate()
}

// Location resolves Timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrTimezone, c.Timezone, err)
	}
	return loc, nil
}

// Validate checks pins, orientation and settle delays.
func (p *PanelConfig) Validate() error {
	if p.DCPin == "" {
		return fmt.Errorf("%w: dc_pin", ErrMissingPin)
	}
	if p.Reset.Pin == "" {
		return fmt.Errorf("%w: reset", ErrMissingPin)
	}
	for _, name := range panel.RailOrder {
		s := p.Supply(name)
		if !s.Fixed && s.Pin == "" {
			return fmt.Errorf("%w: supplies.%s", ErrMissingPin, name)
		}
		if s.RampDelay < 0 {
			return fmt.Errorf("%w: supplies.%s ramp_delay %v is negative", ErrTimings, name, s.RampDelay)
		}
		if s.BiasMillivolts == 0 {
			continue
		}
		if name == panel.RailIOVCC || s.Fixed {
			return fmt.Errorf("%w: supplies.%s cannot be programmed", ErrBias, name)
		}
		if p.Bias == nil {
			return fmt.Errorf("%w: supplies.%s sets bias_mv without a bias converter", ErrBias, name)
		}
		if s.BiasMillivolts < power.BiasMinMillivolts || s.BiasMillivolts > power.BiasMaxMillivolts {
			return fmt.Errorf("%w: supplies.%s bias_mv %d", ErrBias, name, s.BiasMillivolts)
		}
	}
	if _, err := p.ResolveOrientation(); err != nil {
		return err
	}
	if err := p.Timings.WithDefaults().Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrTimings, err)
	}
	return nil
}

// Supply returns the supply config for a rail name.
func (p *PanelConfig) Supply(name string) SupplyConfig {
	switch name {
	case panel.RailIOVCC:
		return p.Supplies.IOVCC
	case panel.RailVSP:
		return p.Supplies.VSP
	case panel.RailVSN:
		return p.Supplies.VSN
	default:
		return SupplyConfig{}
	}
}

// ResolveOrientation turns Orientation or Rotation into a panel orientation.
// Neither set yields OrientationUnknown.
func (p *PanelConfig) ResolveOrientation() (panel.Orientation, error) {
	if p.Rotation != nil {
		if p.Orientation != "" {
			return panel.OrientationUnknown, fmt.Errorf("%w: set orientation or rotation, not both", ErrOrientation)
		}
		o, err := panel.OrientationFromRotation(*p.Rotation)
		if err != nil {
			return panel.OrientationUnknown, fmt.Errorf("%w: %v", ErrOrientation, err)
		}
		return o, nil
	}
	o, err := panel.ParseOrientation(p.Orientation)
	if err != nil {
		return panel.OrientationUnknown, fmt.Errorf("%w: %v", ErrOrientation, err)
	}
	return o, nil
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist, a default config is written with 0600
//     perms and returned.
//   - Otherwise the YAML is unmarshaled and normalized.
//
// Load does not validate; callers apply flag overrides first and then call
// Validate.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			appLog.Info("wrote default config", "path", path)
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".panelctl-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Save is a convenience method on Config that delegates to the package-level
// Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
