// Package control owns a panel on behalf of every concurrent caller: HTTP
// handlers, the scheduler and the CLI all go through one Controller, which
// runs lifecycle transitions one at a time and publishes their outcome.
package control

import (
	"context"
	"errors"
	"sync"
	"time"

	appLog "panelseq/internal/log"
	"panelseq/internal/panel"
)

// Panel is the part of *panel.Panel the controller drives.
type Panel interface {
	Prepare() error
	Unprepare() error
	Detach() error
	State() panel.State
	Orientation() panel.Orientation
	Modes() []panel.Mode
	Brightness() (uint16, error)
}

// ErrDetached is returned once the panel has been detached.
var ErrDetached = errors.New("control: panel detached")

// Event kinds.
const (
	EventPrepared        = "prepared"
	EventPrepareFailed   = "prepare_failed"
	EventUnprepared      = "unprepared"
	EventUnprepareFailed = "unprepare_failed"
	EventDetached        = "detached"
)

// Event reports one completed lifecycle transition.
type Event struct {
	Seq    uint64    `json:"seq"`
	Time   time.Time `json:"time"`
	Kind   string    `json:"kind"`
	State  string    `json:"state"`
	Source string    `json:"source"`
	Error  string    `json:"error,omitempty"`

	// ErrorKind is the panel error kind, when there is one.
	ErrorKind panel.Kind `json:"error_kind,omitempty"`
}

// Status is a snapshot for status reporting.
type Status struct {
	Compatible    string            `json:"compatible"`
	State         string            `json:"state"`
	Orientation   panel.Orientation `json:"orientation"`
	Mode          string            `json:"mode"`
	RefreshHz     int               `json:"refresh_hz"`
	Detached      bool              `json:"detached"`
	LastError     string            `json:"last_error,omitempty"`
	LastErrorKind panel.Kind        `json:"last_error_kind,omitempty"`
	LastChange    time.Time         `json:"last_change"`
	Prepares      uint64            `json:"prepares"`
	Unprepares    uint64            `json:"unprepares"`
	Failures      uint64            `json:"failures"`
	Subscribers   int               `json:"subscribers"`
	DroppedEvents uint64            `json:"dropped_events"`
}

// Controller serializes access to a Panel.
type Controller struct {
	p   Panel
	now func() time.Time

	// sem is held for the duration of every panel call.
	sem chan struct{}

	mu         sync.Mutex
	seq        uint64
	state      panel.State
	detached   bool
	lastErr    error
	lastChange time.Time
	prepares   uint64
	unprepares uint64
	failures   uint64
	dropped    uint64
	subs       map[*subscriber]struct{}
}

type subscriber struct {
	ch chan Event
}

// New returns a controller for p.
func New(p Panel) *Controller {
	return &Controller{
		p:     p,
		now:   time.Now,
		sem:   make(chan struct{}, 1),
		state: p.State(),
		subs:  map[*subscriber]struct{}{},
	}
}

func (c *Controller) acquire(ctx context.Context) error {
	select {
	case c.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Controller) release() { <-c.sem }

// Prepare powers the panel up. source names the caller in events and logs.
func (c *Controller) Prepare(ctx context.Context, source string) error {
	return c.transition(ctx, source, c.p.Prepare, EventPrepared, EventPrepareFailed)
}

// Unprepare powers the panel down.
func (c *Controller) Unprepare(ctx context.Context, source string) error {
	return c.transition(ctx, source, c.p.Unprepare, EventUnprepared, EventUnprepareFailed)
}

func (c *Controller) transition(ctx context.Context, source string, fn func() error, okKind, failKind string) error {
	if err := c.acquire(ctx); err != nil {
		return err
	}
	defer c.release()

	if c.isDetached() {
		return ErrDetached
	}

	before := c.p.State()
	err := fn()
	after := c.p.State()
	if err == nil && before == after {
		// Already in the requested state; nothing to report.
		return nil
	}

	c.mu.Lock()
	c.state = after
	c.lastChange = c.now()
	kind := okKind
	switch {
	case err != nil:
		c.failures++
		c.lastErr = err
		kind = failKind
	case okKind == EventPrepared:
		c.prepares++
		c.lastErr = nil
	default:
		c.unprepares++
		c.lastErr = nil
	}
	c.mu.Unlock()

	if err != nil {
		appLog.Error("panel transition failed", err, "source", source, "event", kind)
	} else {
		appLog.Info("panel transition", "source", source, "event", kind)
	}
	c.publish(kind, after, source, err)
	return err
}

// Detach unprepares if needed and detaches the panel. Later transitions
// return ErrDetached.
func (c *Controller) Detach(ctx context.Context, source string) error {
	if err := c.acquire(ctx); err != nil {
		return err
	}
	defer c.release()

	if c.isDetached() {
		return nil
	}
	err := c.p.Detach()

	st := c.p.State()

	c.mu.Lock()
	c.state = st
	c.detached = true
	c.lastChange = c.now()
	if err != nil {
		c.failures++
		c.lastErr = err
	}
	c.mu.Unlock()

	c.publish(EventDetached, st, source, err)
	return err
}

func (c *Controller) isDetached() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.detached
}

// Brightness reads the panel brightness. It waits for any running
// transition since it shares the command channel.
func (c *Controller) Brightness(ctx context.Context) (uint16, error) {
	if err := c.acquire(ctx); err != nil {
		return 0, err
	}
	defer c.release()
	if c.isDetached() {
		return 0, ErrDetached
	}
	return c.p.Brightness()
}

// Modes lists the panel modes. It does not touch hardware.
func (c *Controller) Modes() []panel.Mode {
	return c.p.Modes()
}

// Status returns a snapshot without waiting for a running transition. The
// state it reports is the one left by the last completed transition.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := Status{
		Compatible:    panel.Compatible,
		State:         c.state.String(),
		Orientation:   c.p.Orientation(),
		Detached:      c.detached,
		LastChange:    c.lastChange,
		Prepares:      c.prepares,
		Unprepares:    c.unprepares,
		Failures:      c.failures,
		Subscribers:   len(c.subs),
		DroppedEvents: c.dropped,
	}
	if modes := c.p.Modes(); len(modes) > 0 {
		st.Mode = modes[0].Name
		st.RefreshHz = modes[0].RefreshHz()
	}
	if c.lastErr != nil {
		st.LastError = c.lastErr.Error()
		st.LastErrorKind = panel.KindOf(c.lastErr)
	}
	return st
}

// Subscribe returns a channel of future events and a cancel func. Events
// that do not fit in buf are dropped for that subscriber.
func (c *Controller) Subscribe(buf int) (<-chan Event, func()) {
	if buf < 1 {
		buf = 1
	}
	s := &subscriber{ch: make(chan Event, buf)}

	c.mu.Lock()
	c.subs[s] = struct{}{}
	c.mu.Unlock()

	var once sync.Once
	return s.ch, func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, s)
			c.mu.Unlock()
			close(s.ch)
		})
	}
}

func (c *Controller) publish(kind string, st panel.State, source string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.seq++
	ev := Event{
		Seq:    c.seq,
		Time:   c.now(),
		Kind:   kind,
		State:  st.String(),
		Source: source,
	}
	if err != nil {
		ev.Error = err.Error()
		ev.ErrorKind = panel.KindOf(err)
	}
	for s := range c.subs {
		select {
		case s.ch <- ev:
		default:
			c.dropped++
		}
	}
}
