package panel

import (
	"fmt"
	"time"
)

// Timings holds every settle delay used by the lifecycle and the sequencer.
// Range delays sleep for at least Min; Max documents the tolerated upper
// bound of the window.
type Timings struct {
	RailSettleMin time.Duration `yaml:"rail_settle_min" json:"rail_settle_min"`
	RailSettleMax time.Duration `yaml:"rail_settle_max" json:"rail_settle_max"`

	// ResetSettle is the hold after releasing reset, before any command.
	ResetSettle time.Duration `yaml:"reset_settle" json:"reset_settle"`

	SleepOutSettle  time.Duration `yaml:"sleep_out_settle" json:"sleep_out_settle"`
	DisplayOnSettle time.Duration `yaml:"display_on_settle" json:"display_on_settle"`

	DisplayOffSettleMin time.Duration `yaml:"display_off_settle_min" json:"display_off_settle_min"`
	DisplayOffSettleMax time.Duration `yaml:"display_off_settle_max" json:"display_off_settle_max"`
	SleepInSettle       time.Duration `yaml:"sleep_in_settle" json:"sleep_in_settle"`

	RailOffMin time.Duration `yaml:"rail_off_min" json:"rail_off_min"`
	RailOffMax time.Duration `yaml:"rail_off_max" json:"rail_off_max"`
}

// DefaultTimings returns the delays the LS054B3SX01 bring-up was validated
// with. ResetSettle, SleepOutSettle and DisplayOnSettle are minimums.
func DefaultTimings() Timings {
	return Timings{
		RailSettleMin:       1500 * time.Microsecond,
		RailSettleMax:       3000 * time.Microsecond,
		ResetSettle:         200 * time.Millisecond,
		SleepOutSettle:      130 * time.Millisecond,
		DisplayOnSettle:     50 * time.Millisecond,
		DisplayOffSettleMin: 2 * time.Millisecond,
		DisplayOffSettleMax: 3 * time.Millisecond,
		SleepInSettle:       5 * time.Millisecond,
		RailOffMin:          500 * time.Microsecond,
		RailOffMax:          1000 * time.Microsecond,
	}
}

// WithDefaults returns t with every zero field taken from DefaultTimings.
func (t Timings) WithDefaults() Timings {
	d := DefaultTimings()
	fill := func(v *time.Duration, def time.Duration) {
		if *v == 0 {
			*v = def
		}
	}
	fill(&t.RailSettleMin, d.RailSettleMin)
	fill(&t.RailSettleMax, d.RailSettleMax)
	fill(&t.ResetSettle, d.ResetSettle)
	fill(&t.SleepOutSettle, d.SleepOutSettle)
	fill(&t.DisplayOnSettle, d.DisplayOnSettle)
	fill(&t.DisplayOffSettleMin, d.DisplayOffSettleMin)
	fill(&t.DisplayOffSettleMax, d.DisplayOffSettleMax)
	fill(&t.SleepInSettle, d.SleepInSettle)
	fill(&t.RailOffMin, d.RailOffMin)
	fill(&t.RailOffMax, d.RailOffMax)
	return t
}

// Validate rejects negative delays, inverted windows, and mandatory settle
// delays shorter than the defaults. Delays may only be lengthened.
func (t Timings) Validate() error {
	d := DefaultTimings()
	mins := []struct {
		name string
		v    time.Duration
		min  time.Duration
	}{
		{"reset_settle", t.ResetSettle, d.ResetSettle},
		{"sleep_out_settle", t.SleepOutSettle, d.SleepOutSettle},
		{"display_on_settle", t.DisplayOnSettle, d.DisplayOnSettle},
	}
	for _, m := range mins {
		if m.v < m.min {
			return fmt.Errorf("panel: %s %v is below the mandatory %v", m.name, m.v, m.min)
		}
	}
	windows := []struct {
		name     string
		min, max time.Duration
	}{
		{"rail_settle", t.RailSettleMin, t.RailSettleMax},
		{"display_off_settle", t.DisplayOffSettleMin, t.DisplayOffSettleMax},
		{"rail_off", t.RailOffMin, t.RailOffMax},
	}
	for _, w := range windows {
		if w.min < 0 || w.max < w.min {
			return fmt.Errorf("panel: %s window [%v, %v] is invalid", w.name, w.min, w.max)
		}
	}
	if t.SleepInSettle < 0 {
		return fmt.Errorf("panel: sleep_in_settle %v is negative", t.SleepInSettle)
	}
	return nil
}

// Clock is the time source for settle delays. Sleep blocks.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

type realClock struct{}

func (realClock) Now() time.Time        { return time.Now() }
func (realClock) Sleep(d time.Duration) { time.Sleep(d) }

// SystemClock sleeps on the wall clock.
var SystemClock Clock = realClock{}

// sleepRange waits inside [lo, hi]. Like usleep_range it only promises the
// lower bound, so it sleeps lo.
func sleepRange(c Clock, lo, _ time.Duration) {
	c.Sleep(lo)
}
