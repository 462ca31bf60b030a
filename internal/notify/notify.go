// Package notify queues short-lived operator messages.
//
// [Dispatcher.Notify] appends a [Notice] with a fresh uuid. After its duration the notice is marked closing, and after
// the fade window it is removed. Order is insertion order. Nothing is persisted.
package notify

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Severity of a notice.
type Severity string

const (
	Info    Severity = "info"
	Success Severity = "success"
	Warning Severity = "warning"
	Error   Severity = "error"
)

// Notice is one queued message.
type Notice struct {
	ID        string
	Message   string
	Severity  Severity
	Closing   bool
	CreatedAt time.Time
}

// Timer is the subset of [time.Timer] the dispatcher uses.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f after d. [time.AfterFunc] is the default.
type AfterFunc func(d time.Duration, f func()) Timer

// Opts configures a [Dispatcher].
type Opts struct {
	Duration  time.Duration // default time a notice stays open (4s)
	Fade      time.Duration // time between closing and removal (300ms)
	AfterFunc AfterFunc
}

// Dispatcher holds the active notices.
type Dispatcher struct {
	duration time.Duration
	fade     time.Duration
	after    AfterFunc

	mu          sync.RWMutex
	notices     []Notice
	timers      map[string]Timer
	subscribers map[chan struct{}]struct{}
	closed      bool
}

// New creates a dispatcher.
func New(opts Opts) *Dispatcher {
	if opts.Duration <= 0 {
		opts.Duration = 4 * time.Second
	}
	if opts.Fade <= 0 {
		opts.Fade = 300 * time.Millisecond
	}
	if opts.AfterFunc == nil {
		opts.AfterFunc = func(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }
	}
	return &Dispatcher{
		duration:    opts.Duration,
		fade:        opts.Fade,
		after:       opts.AfterFunc,
		timers:      make(map[string]Timer),
		subscribers: make(map[chan struct{}]struct{}),
	}
}

// Notify enqueues a message and returns its id. An optional duration overrides the default.
func (d *Dispatcher) Notify(message string, severity Severity, duration ...time.Duration) string {
	ttl := d.duration
	if len(duration) > 0 && duration[0] > 0 {
		ttl = duration[0]
	}
	if severity == "" {
		severity = Info
	}

	id := uuid.NewString()
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return id
	}
	d.notices = append(d.notices, Notice{ID: id, Message: message, Severity: severity, CreatedAt: time.Now()})
	d.timers[id] = d.after(ttl, func() { d.close(id) })
	d.mu.Unlock()

	d.signal()
	return id
}

// Dismiss starts closing a notice before its duration elapses.
func (d *Dispatcher) Dismiss(id string) {
	d.mu.Lock()
	if t, ok := d.timers[id]; ok {
		t.Stop()
	}
	d.mu.Unlock()
	d.close(id)
}

func (d *Dispatcher) close(id string) {
	d.mu.Lock()
	i := d.indexOf(id)
	if i < 0 || d.notices[i].Closing || d.closed {
		d.mu.Unlock()
		return
	}
	d.notices[i].Closing = true
	d.timers[id] = d.after(d.fade, func() { d.remove(id) })
	d.mu.Unlock()

	d.signal()
}

func (d *Dispatcher) remove(id string) {
	d.mu.Lock()
	i := d.indexOf(id)
	if i < 0 {
		d.mu.Unlock()
		return
	}
	d.notices = append(d.notices[:i], d.notices[i+1:]...)
	delete(d.timers, id)
	d.mu.Unlock()

	d.signal()
}

func (d *Dispatcher) indexOf(id string) int {
	for i, n := range d.notices {
		if n.ID == id {
			return i
		}
	}
	return -1
}

// Notices returns the active notices in insertion order.
func (d *Dispatcher) Notices() []Notice {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]Notice(nil), d.notices...)
}

// Subscribe returns a channel signalled after every change. Signals coalesce.
func (d *Dispatcher) Subscribe() <-chan struct{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	ch := make(chan struct{}, 1)
	if d.closed {
		close(ch)
		return ch
	}
	d.subscribers[ch] = struct{}{}
	return ch
}

// Close stops every pending timer, drops the notices and closes subscriber channels.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.closed = true
	for id, t := range d.timers {
		t.Stop()
		delete(d.timers, id)
	}
	d.notices = nil
	for ch := range d.subscribers {
		close(ch)
	}
	d.subscribers = nil
}

func (d *Dispatcher) signal() {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for ch := range d.subscribers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Fail is shorthand for an error notice reading "prefix: err".
func (d *Dispatcher) Fail(prefix string, err error) string {
	return d.Notify(prefix+": "+err.Error(), Error)
}
