package panel

import (
	"time"

	"panelseq/internal/dcs"
	appLog "panelseq/internal/log"
)

// MaxBrightness is written once the display is on.
const MaxBrightness = 0xFF

// Commander is the command channel the sequencer and lifecycle drive.
// *dcs.Conn implements it.
type Commander interface {
	Write(burst []byte) error
	ExitSleepMode() error
	EnterSleepMode() error
	SetDisplayOn() error
	SetDisplayOff() error
	SetDisplayBrightness(v uint16) error
	WritePowerSave(mode byte) error
	SetTearOn(mode dcs.TearMode) error
}

type seqStep struct {
	name   string
	run    func(c Commander) error
	settle time.Duration
}

// Sequencer issues the vendor configuration followed by the standard
// sleep-out / display-on activation. The first failing step aborts the run.
type Sequencer struct {
	clock   Clock
	timings Timings
}

// NewSequencer returns a sequencer sleeping on clock with the given delays.
func NewSequencer(clock Clock, t Timings) *Sequencer {
	if clock == nil {
		clock = SystemClock
	}
	return &Sequencer{clock: clock, timings: t.WithDefaults()}
}

func writeBurst(b Burst) func(c Commander) error {
	return func(c Commander) error { return c.Write(b.Bytes) }
}

func (s *Sequencer) steps() []seqStep {
	steps := make([]seqStep, 0, len(vendorInit)+7)
	for _, b := range vendorInit {
		steps = append(steps, seqStep{name: b.Name, run: writeBurst(b)})
	}
	return append(steps,
		seqStep{name: "exit_sleep_mode", run: Commander.ExitSleepMode, settle: s.timings.SleepOutSettle},
		seqStep{name: burstApply.Name, run: writeBurst(burstApply)},
		seqStep{name: "set_display_on", run: Commander.SetDisplayOn, settle: s.timings.DisplayOnSettle},
		seqStep{name: "set_display_brightness", run: func(c Commander) error {
			return c.SetDisplayBrightness(MaxBrightness)
		}},
		seqStep{name: "write_power_save", run: func(c Commander) error {
			return c.WritePowerSave(0x00)
		}},
		seqStep{name: burstControlDisplay.Name, run: writeBurst(burstControlDisplay)},
		seqStep{name: "set_tear_on", run: func(c Commander) error {
			return c.SetTearOn(dcs.TearModeVBlank)
		}},
	)
}

// StepNames lists the sequence in transmission order.
func (s *Sequencer) StepNames() []string {
	steps := s.steps()
	names := make([]string, len(steps))
	for i, st := range steps {
		names[i] = st.name
	}
	return names
}

// Run sends every step to c. On failure it returns a CommandFailure naming
// the step; later steps are never sent.
func (s *Sequencer) Run(c Commander) error {
	for i, st := range s.steps() {
		appLog.Debug("panel init step", "step", st.name, "index", i+1)
		if err := st.run(c); err != nil {
			appLog.Error("panel init step failed", err, "step", st.name, "index", i+1)
			return newError(CommandFailure, st.name, err)
		}
		if st.settle > 0 {
			s.clock.Sleep(st.settle)
		}
	}
	return nil
}
