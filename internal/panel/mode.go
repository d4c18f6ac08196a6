package panel

import "fmt"

// ModeFlag carries sync polarity.
type ModeFlag uint32

const (
	FlagPHSync ModeFlag = 1 << iota
	FlagNHSync
	FlagPVSync
	FlagNVSync
)

// ModeType tags where a mode came from.
type ModeType uint32

const (
	TypePreferred ModeType = 1 << 3
	TypeDriver    ModeType = 1 << 6
)

// DisplayTiming is the fixed video timing of one panel type.
type DisplayTiming struct {
	Clock      int `json:"clock_khz"`
	HDisplay   int `json:"hdisplay"`
	HSyncStart int `json:"hsync_start"`
	HSyncEnd   int `json:"hsync_end"`
	HTotal     int `json:"htotal"`
	VDisplay   int `json:"vdisplay"`
	VSyncStart int `json:"vsync_start"`
	VSyncEnd   int `json:"vsync_end"`
	VTotal     int `json:"vtotal"`
	WidthMM    int `json:"width_mm"`
	HeightMM   int `json:"height_mm"`

	Flags ModeFlag `json:"flags"`
}

// RefreshHz returns the vertical refresh rate rounded to the nearest Hz.
func (t DisplayTiming) RefreshHz() int {
	den := t.HTotal * t.VTotal
	if den == 0 {
		return 0
	}
	return (t.Clock*1000 + den/2) / den
}

// Mode is a timing as published to a display consumer.
type Mode struct {
	DisplayTiming
	Name string   `json:"name"`
	Type ModeType `json:"type"`
}

func (m Mode) Preferred() bool { return m.Type&TypePreferred != 0 }

const (
	lsHActive = 1152
	lsHFP     = 64
	lsHSync   = 8
	lsHBP     = 28
	lsVActive = 1920
	lsVFP     = 56
	lsVSync   = 3
	lsVBP     = 6
	lsRefresh = 60
)

// LS054Timing is the only mode the Sharp LS054B3SX01 supports.
var LS054Timing = DisplayTiming{
	Clock:      (lsHActive + lsHFP + lsHSync + lsHBP) * (lsVActive + lsVFP + lsVSync + lsVBP) * lsRefresh / 1000,
	HDisplay:   lsHActive,
	HSyncStart: lsHActive + lsHFP,
	HSyncEnd:   lsHActive + lsHFP + lsHSync,
	HTotal:     lsHActive + lsHFP + lsHSync + lsHBP,
	VDisplay:   lsVActive,
	VSyncStart: lsVActive + lsVFP,
	VSyncEnd:   lsVActive + lsVFP + lsVSync,
	VTotal:     lsVActive + lsVFP + lsVSync + lsVBP,
	WidthMM:    70,
	HeightMM:   117,
	Flags:      FlagNHSync | FlagNVSync,
}

func modeName(t DisplayTiming) string {
	return fmt.Sprintf("%dx%d", t.HDisplay, t.VDisplay)
}

// Modes returns the single supported mode, tagged preferred and driver
// sourced. Each call returns a fresh copy.
func (p *Panel) Modes() []Mode {
	return []Mode{{
		DisplayTiming: p.timing,
		Name:          modeName(p.timing),
		Type:          TypeDriver | TypePreferred,
	}}
}

// GetModes publishes the supported mode, physical size and orientation to
// sink and returns the number of modes added.
func (p *Panel) GetModes(sink ModeSink) int {
	modes := p.Modes()
	for _, m := range modes {
		sink.AddMode(m)
	}
	sink.SetPhysicalSize(p.timing.WidthMM, p.timing.HeightMM)
	sink.SetOrientation(p.orientation)
	return len(modes)
}
