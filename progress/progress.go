// Package progress carries status, progress and error events from the
// translation workers to a single consumer without ever blocking a worker.
package progress

import (
	"fmt"
	"sync"
	"time"
)

// Kind is the event type.
type Kind int

const (
	Status Kind = iota
	Progress
	Error
)

func (k Kind) String() string {
	switch k {
	case Status:
		return "status"
	case Progress:
		return "progress"
	case Error:
		return "error"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Event is one message from a translation run.
type Event struct {
	// RunID identifies the TranslateAll invocation that produced the event.
	RunID string
	// Seq is assigned by the Reporter in arrival order, starting at 1.
	Seq  uint64
	Time time.Time
	Kind Kind
	// Message is set for Status and Error events.
	Message string
	// Chunk is the chunk index the event refers to, or -1.
	Chunk int
	// Completed and Total are set for Progress events.
	Completed int
	Total     int
	// Terminal marks the last event of a run that ended cancelled or aborted.
	Terminal bool
}

func (e Event) String() string {
	switch e.Kind {
	case Progress:
		return fmt.Sprintf("progress %d/%d", e.Completed, e.Total)
	default:
		if e.Chunk >= 0 {
			return fmt.Sprintf("%s [chunk %d] %s", e.Kind, e.Chunk+1, e.Message)
		}
		return fmt.Sprintf("%s %s", e.Kind, e.Message)
	}
}

// Sink receives events. Report must not block.
type Sink interface {
	Report(Event)
}

// SinkFunc adapts a function to Sink. The function runs on the producer's
// goroutine and must return quickly.
type SinkFunc func(Event)

// Report calls f.
func (f SinkFunc) Report(e Event) { f(e) }

// Discard drops every event.
var Discard Sink = SinkFunc(func(Event) {})

// ---------------------------------------------------------------------------
// Reporter: unbounded queue drained by one consumer
// ---------------------------------------------------------------------------

// Reporter is a Sink backed by an unbounded in-memory queue. Producers
// append and return immediately; a pump goroutine feeds the queue into the
// channel returned by Events in arrival order.
type Reporter struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []Event
	seq    uint64
	closed bool
	out    chan Event
	done   chan struct{}
}

// NewReporter starts the pump goroutine. The caller must drain Events until
// it is closed, and call Close when the run is over.
func NewReporter() *Reporter {
	r := &Reporter{
		out:  make(chan Event),
		done: make(chan struct{}),
	}
	r.cond = sync.NewCond(&r.mu)
	go r.pump()
	return r
}

// Report enqueues e, stamping Seq and (if unset) Time. Events reported after
// Close are dropped.
func (r *Reporter) Report(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.seq++
	e.Seq = r.seq
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	r.queue = append(r.queue, e)
	r.cond.Signal()
}

// Events returns the consumer channel. It is closed after Close once every
// queued event has been delivered.
func (r *Reporter) Events() <-chan Event {
	return r.out
}

// Close stops accepting events. Already queued events are still delivered.
func (r *Reporter) Close() {
	r.mu.Lock()
	r.closed = true
	r.cond.Signal()
	r.mu.Unlock()
}

// Wait blocks until the pump has delivered every event and closed Events.
func (r *Reporter) Wait() {
	<-r.done
}

func (r *Reporter) pump() {
	defer close(r.done)
	defer close(r.out)
	for {
		r.mu.Lock()
		for len(r.queue) == 0 && !r.closed {
			r.cond.Wait()
		}
		if len(r.queue) == 0 && r.closed {
			r.mu.Unlock()
			return
		}
		batch := r.queue
		r.queue = nil
		r.mu.Unlock()

		for _, e := range batch {
			r.out <- e
		}
	}
}
