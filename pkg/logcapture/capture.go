/*
Package logcapture attaches a bounded, in-memory capturing sink to a task's
logger for the duration of its execution, and hands back a snapshot of what
was logged once the task completes.

It generalizes pkg/log's With* child-logger pattern: instead of attaching a
field to every subsequent log line, Attach attaches a zerolog.Hook that
copies each record into a ring buffer keyed by the caller's key.
*/
package logcapture

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/crater/pkg/log"
)

// Record is one captured log line.
type Record struct {
	Time    time.Time
	Level   zerolog.Level
	Message string
}

// defaultCapacity bounds the number of records kept per key; older records
// are dropped once the ring fills, and a single overflow marker record is
// appended so callers can tell truncation happened.
const defaultCapacity = 4096

type ring struct {
	mu       sync.Mutex
	records  []Record
	next     int
	full     bool
	overflow bool
}

func newRing(capacity int) *ring {
	return &ring{records: make([]Record, capacity)}
}

func (r *ring) push(rec Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.full {
		// the slot about to be written holds the oldest record
		r.overflow = true
	}
	r.records[r.next] = rec
	r.next = (r.next + 1) % len(r.records)
	if r.next == 0 {
		r.full = true
	}
}

func (r *ring) snapshot() []Record {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Record
	if r.full {
		out = append(out, r.records[r.next:]...)
		out = append(out, r.records[:r.next]...)
	} else {
		out = append(out, r.records[:r.next]...)
	}
	if r.overflow {
		out = append(out, Record{Time: time.Now(), Level: zerolog.WarnLevel, Message: "...overflow, earliest records dropped..."})
	}
	return out
}

// Capture holds the process-wide table of active and released rings,
// indexed by the caller-chosen key (typically a task ID).
type Capture struct {
	mu    sync.Mutex
	rings map[string]*ring
}

// New returns an empty capture table.
func New() *Capture {
	return &Capture{rings: make(map[string]*ring)}
}

// Guard is returned by Attach; its logger should be used in place of the
// ambient one for the duration of the task, and Detach must be called
// exactly once (typically via defer) to release the hook.
type Guard struct {
	key     string
	logger  zerolog.Logger
	capture *Capture
}

// Logger returns the child logger with the capturing hook installed.
func (g *Guard) Logger() zerolog.Logger { return g.logger }

// Detach is a no-op. The ring stays registered in the parent Capture and
// the Guard's logger keeps its hook, so anything still logged through that
// logger after Detach is captured as well. The recorded lines remain
// retrievable via Snapshot until Capture.Discard drops the ring for key.
func (g *Guard) Detach() {
	g.capture.mu.Lock()
	defer g.capture.mu.Unlock()
	// Nothing to unregister: the ring stays keyed for later Snapshot calls.
	// Detach exists as a symmetric bookend to Attach for callers that defer
	// it immediately after acquiring the guard, matching pkg/worker's usage.
	_ = g
}

type hook struct {
	r *ring
}

func (h hook) Run(e *zerolog.Event, level zerolog.Level, msg string) {
	if level == zerolog.NoLevel {
		return
	}
	h.r.push(Record{Time: time.Now(), Level: level, Message: msg})
}

// Attach creates (or reuses) the ring buffer for key and returns a Guard
// whose Logger is a child of the global logger with the capturing hook
// installed. Capacity is fixed at defaultCapacity records per key; neither
// Attach nor Capture offers a way to set a different bound.
func Attach(c *Capture, key string) (*Guard, error) {
	c.mu.Lock()
	r, ok := c.rings[key]
	if !ok {
		r = newRing(defaultCapacity)
		c.rings[key] = r
	}
	c.mu.Unlock()

	child := log.Logger.Hook(hook{r: r}).With().Str("task_id", key).Logger()
	return &Guard{key: key, logger: child, capture: c}, nil
}

// Snapshot returns the records captured for key so far, oldest first. It
// returns nil if no Attach has ever been made for that key.
func (c *Capture) Snapshot(key string) []Record {
	c.mu.Lock()
	r, ok := c.rings[key]
	c.mu.Unlock()
	if !ok {
		return nil
	}
	return r.snapshot()
}

// Discard drops the ring for key, freeing its memory. Safe to call after
// the corresponding result has been durably written via pkg/results.
func (c *Capture) Discard(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.rings, key)
}
