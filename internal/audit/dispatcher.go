package audit

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Config controls dispatcher buffering.
type Config struct {
	Enabled    bool
	BufferSize int
	// DropIfFull makes Emit non-blocking; events that find the buffer full
	// are counted and discarded.
	DropIfFull bool
	Logger     *zap.Logger
}

// Stats is a point-in-time view of dispatcher counters.
type Stats struct {
	Delivered uint64
	Dropped   uint64
	Queued    int
}

// Dispatcher relays events to a sink from a single goroutine, so sinks see
// events in emission order and need no locking of their own.
type Dispatcher struct {
	cfg  Config
	sink Sink
	ch   chan Event

	// mu guards closed and ch against send-after-close. Emit holds it for
	// reading, Close for writing.
	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup

	dropped   atomic.Uint64
	delivered atomic.Uint64
}

// NewDispatcher starts a dispatcher, or returns nil when auditing is
// disabled. A nil *Dispatcher accepts and discards events.
func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if sink == nil {
		sink = NoOpSink{}
	}
	d := &Dispatcher{
		cfg:  cfg,
		sink: sink,
		ch:   make(chan Event, max(cfg.BufferSize, 1)),
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for event := range d.ch {
			d.sink.Emit(context.Background(), event)
			d.delivered.Add(1)
		}
	}()
	return d
}

// Emit queues event. With DropIfFull it never blocks; otherwise it waits for
// buffer space or ctx.
func (d *Dispatcher) Emit(ctx context.Context, event Event) {
	if d == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}

	if !d.cfg.DropIfFull {
		select {
		case d.ch <- event:
		case <-ctx.Done():
		}
		return
	}

	select {
	case d.ch <- event:
	default:
		if d.dropped.Add(1) == 1 {
			d.cfg.Logger.Warn("audit buffer full, dropping events",
				zap.String("event_type", event.EventType),
				zap.Int("buffer_size", cap(d.ch)),
			)
		}
	}
}

// Close stops accepting events and waits until the buffer has drained into
// the sink. It is safe to call more than once.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.ch)
	}
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Dispatcher) Stats() Stats {
	if d == nil {
		return Stats{}
	}
	return Stats{
		Delivered: d.delivered.Load(),
		Dropped:   d.dropped.Load(),
		Queued:    len(d.ch),
	}
}

func (d *Dispatcher) Dropped() uint64 {
	return d.Stats().Dropped
}

func (d *Dispatcher) Delivered() uint64 {
	return d.Stats().Delivered
}
