package panel

// Rail is one switched power supply feeding the panel.
type Rail interface {
	Name() string
	Enable() error
	Disable() error
}

// ResetLine drives the panel reset input. active=true releases the panel
// into operation; active=false holds it in reset.
type ResetLine interface {
	SetLevel(active bool)
}

// ConfigSource resolves the panel's resources by name at attach time.
type ConfigSource interface {
	Rail(name string) (Rail, error)
	ResetLine(name string) (ResetLine, error)
	// Orientation returns OrientationUnknown with a nil error when the
	// board does not describe one.
	Orientation() (Orientation, error)
}

// PixelFormat is the link-level pixel encoding.
type PixelFormat int

const (
	FormatRGB888 PixelFormat = iota
	FormatRGB666
	FormatRGB565
)

func (f PixelFormat) String() string {
	switch f {
	case FormatRGB888:
		return "rgb888"
	case FormatRGB666:
		return "rgb666"
	case FormatRGB565:
		return "rgb565"
	default:
		return "unknown"
	}
}

// LinkFlag describes host link behaviour requested by the panel.
type LinkFlag uint32

const (
	LinkVideo LinkFlag = 1 << iota
	LinkVideoBurst
	LinkVideoHSE
	LinkVideoAutoVert
	LinkLowPowerCommands
	LinkNoEOTPacket
	LinkClockNonContinuous
)

// LinkConfig is what the panel asks of its host link when attaching.
type LinkConfig struct {
	Lanes  int
	Format PixelFormat
	Flags  LinkFlag
}

// Host is the bus host the panel attaches to.
type Host interface {
	Attach(LinkConfig) error
	Detach() error
}

// Registry publishes the panel as a display source.
type Registry interface {
	Add(p *Panel)
	Remove(p *Panel)
}

// ModeSink receives the result of a mode query.
type ModeSink interface {
	AddMode(Mode)
	SetPhysicalSize(widthMM, heightMM int)
	SetOrientation(Orientation)
}
