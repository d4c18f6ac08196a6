package panel

import (
	"fmt"
	"time"

	"periph.io/x/conn/v3"

	"panelseq/internal/dcs"
)

// bench is a fake board: rails, reset line, clock and command transport all
// append to one ordered event log.
type bench struct {
	events []string
	now    time.Time

	rails map[string]*fakeRail
	reset *fakeReset
	link  *fakeLink

	// tx holds every command write with the virtual time it was issued.
	tx []txRecord

	// failTx fails the n-th command write (1-based) when non-zero.
	failTx   int
	failOp   byte
	failOpOn bool
	txErr    error
}

type txRecord struct {
	at time.Time
	w  []byte
}

func newBench() *bench {
	b := &bench{now: time.Unix(0, 0), txErr: fmt.Errorf("nak")}
	b.rails = map[string]*fakeRail{}
	for _, n := range RailOrder {
		b.rails[n] = &fakeRail{b: b, name: n}
	}
	b.reset = &fakeReset{b: b}
	b.link = &fakeLink{b: b}
	return b
}

func (b *bench) log(format string, args ...any) {
	b.events = append(b.events, fmt.Sprintf(format, args...))
}

func (b *bench) clear() {
	b.events = nil
	b.tx = nil
}

func (b *bench) resources() Resources {
	return Resources{
		IOVCC:       b.rails[RailIOVCC],
		VSP:         b.rails[RailVSP],
		VSN:         b.rails[RailVSN],
		Reset:       b.reset,
		Orientation: OrientationNormal,
	}
}

func (b *bench) commander() *dcs.Conn { return dcs.New(b.link) }

func (b *bench) panel() *Panel {
	p, err := New(b.resources(), b.commander(), b, Timings{})
	if err != nil {
		panic(err)
	}
	b.clear()
	return p
}

// failOpcode makes every write starting with op fail.
func (b *bench) failOpcode(op byte) {
	b.failOp = op
	b.failOpOn = true
}

// txOpcodes lists the first byte of each write.
func (b *bench) txOpcodes() []byte {
	out := make([]byte, len(b.tx))
	for i, r := range b.tx {
		out[i] = r.w[0]
	}
	return out
}

// Clock.
func (b *bench) Now() time.Time { return b.now }
func (b *bench) Sleep(d time.Duration) {
	b.now = b.now.Add(d)
	b.log("sleep %v", d)
}

type fakeRail struct {
	b          *bench
	name       string
	on         bool
	enableErr  error
	disableErr error
}

func (r *fakeRail) Name() string { return r.name }

func (r *fakeRail) Enable() error {
	r.b.log("enable %s", r.name)
	if r.enableErr != nil {
		return r.enableErr
	}
	r.on = true
	return nil
}

func (r *fakeRail) Disable() error {
	r.b.log("disable %s", r.name)
	if r.disableErr != nil {
		return r.disableErr
	}
	r.on = false
	return nil
}

type fakeReset struct {
	b      *bench
	active bool
}

func (r *fakeReset) SetLevel(active bool) {
	r.active = active
	if active {
		r.b.log("reset 1")
	} else {
		r.b.log("reset 0")
	}
}

// fakeLink is the raw conn.Conn under the dcs layer.
type fakeLink struct {
	b *bench
}

func (l *fakeLink) String() string      { return "fake" }
func (l *fakeLink) Duplex() conn.Duplex { return conn.Half }

func (l *fakeLink) Tx(w, r []byte) error {
	b := l.b
	b.log("tx %02X", w[0])
	b.tx = append(b.tx, txRecord{at: b.now, w: append([]byte(nil), w...)})
	if b.failTx != 0 && len(b.tx) == b.failTx {
		return b.txErr
	}
	if b.failOpOn && w[0] == b.failOp {
		return b.txErr
	}
	for i := range r {
		r[i] = 0xFF
	}
	return nil
}

// fakeHost implements Host.
type fakeHost struct {
	attached  bool
	link      LinkConfig
	attachErr error
	detachErr error
}

func (h *fakeHost) Attach(l LinkConfig) error {
	if h.attachErr != nil {
		return h.attachErr
	}
	h.attached = true
	h.link = l
	return nil
}

func (h *fakeHost) Detach() error {
	h.attached = false
	return h.detachErr
}

type fakeRegistry struct {
	panels map[*Panel]bool
	adds   int
}

func (r *fakeRegistry) Add(p *Panel) {
	if r.panels == nil {
		r.panels = map[*Panel]bool{}
	}
	r.panels[p] = true
	r.adds++
}

func (r *fakeRegistry) Remove(p *Panel) { delete(r.panels, p) }

// fakeSource implements ConfigSource over a bench.
type fakeSource struct {
	b           *bench
	missing     string
	orientation Orientation
	orientErr   error
}

func (s *fakeSource) Rail(name string) (Rail, error) {
	if name == s.missing {
		return nil, fmt.Errorf("supply %s not found", name)
	}
	r, ok := s.b.rails[name]
	if !ok {
		return nil, fmt.Errorf("supply %s not found", name)
	}
	return r, nil
}

func (s *fakeSource) ResetLine(name string) (ResetLine, error) {
	if name == s.missing {
		return nil, fmt.Errorf("gpio %s not found", name)
	}
	return s.b.reset, nil
}

func (s *fakeSource) Orientation() (Orientation, error) {
	return s.orientation, s.orientErr
}

type fakeSink struct {
	modes       []Mode
	wmm, hmm    int
	orientation Orientation
}

func (s *fakeSink) AddMode(m Mode)               { s.modes = append(s.modes, m) }
func (s *fakeSink) SetPhysicalSize(w, h int)     { s.wmm, s.hmm = w, h }
func (s *fakeSink) SetOrientation(o Orientation) { s.orientation = o }
