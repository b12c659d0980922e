package audit

import (
	"context"
	"math/bits"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Config controls dispatcher buffering behavior.
type Config struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
	// Logger receives drop and sink failure reports. Nil discards them.
	Logger *zap.Logger
}

// Stats counts what happened to emitted events.
type Stats struct {
	Delivered uint64
	Dropped   uint64
	// Failed counts events whose sink panicked.
	Failed uint64
}

// Dispatcher hands audit events to a sink on one background goroutine, so
// auth flows never wait on sink I/O. A nil *Dispatcher is valid and drops
// everything.
type Dispatcher struct {
	sink       Sink
	queue      chan Event
	stop       chan struct{}
	finished   chan struct{}
	dropIfFull bool
	logger     *zap.Logger

	delivered atomic.Uint64
	dropped   atomic.Uint64
	failed    atomic.Uint64

	mu     sync.RWMutex
	closed bool
}

// NewDispatcher starts the delivery goroutine. It returns nil when cfg is
// disabled.
func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if sink == nil {
		sink = NoOpSink{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	d := &Dispatcher{
		sink:       sink,
		queue:      make(chan Event, max(cfg.BufferSize, 1)),
		stop:       make(chan struct{}),
		finished:   make(chan struct{}),
		dropIfFull: cfg.DropIfFull,
		logger:     logger,
	}
	go d.loop()
	return d
}

func (d *Dispatcher) loop() {
	defer close(d.finished)
	for {
		select {
		case ev := <-d.queue:
			d.deliver(ev)
		case <-d.stop:
			d.drain()
			return
		}
	}
}

// drain delivers whatever was queued before stop closed. Emit cannot add
// more once closed is set.
func (d *Dispatcher) drain() {
	for {
		select {
		case ev := <-d.queue:
			d.deliver(ev)
		default:
			return
		}
	}
}

func (d *Dispatcher) deliver(ev Event) {
	defer func() {
		if r := recover(); r != nil {
			d.failed.Add(1)
			d.logger.Error("audit sink panicked",
				zap.String("event_type", ev.EventType),
				zap.String("user_id", ev.UserID),
				zap.Any("panic", r),
			)
		}
	}()
	d.sink.Emit(context.Background(), ev)
	d.delivered.Add(1)
}

// Emit queues ev. With DropIfFull a full buffer drops the event; otherwise
// Emit blocks until there is room or ctx ends. Events emitted after Close
// are ignored.
func (d *Dispatcher) Emit(ctx context.Context, ev Event) {
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

	if d.dropIfFull {
		select {
		case d.queue <- ev:
		default:
			d.recordDrop(ev)
		}
		return
	}

	select {
	case d.queue <- ev:
	case <-ctx.Done():
		d.recordDrop(ev)
	}
}

// recordDrop logs the 1st, 2nd, 4th, 8th ... drop so a saturated sink does
// not flood the log.
func (d *Dispatcher) recordDrop(ev Event) {
	n := d.dropped.Add(1)
	if bits.OnesCount64(n) != 1 {
		return
	}
	d.logger.Warn("audit event dropped",
		zap.String("event_type", ev.EventType),
		zap.String("user_id", ev.UserID),
		zap.Uint64("dropped_total", n),
	)
}

// Close stops accepting events, drains the buffer and waits for delivery.
func (d *Dispatcher) Close() {
	_ = d.Shutdown(context.Background())
}

// Shutdown is Close with the wait for the drain bounded by ctx. It returns
// ctx.Err() when the drain did not finish in time; delivery then continues
// in the background.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	if d == nil {
		return nil
	}

	// Taking the write lock waits out in-flight Emit calls, so nothing
	// reaches the queue after stop closes.
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.stop)
	}
	d.mu.Unlock()

	select {
	case <-d.finished:
		return nil
	case <-ctx.Done():
		d.logger.Warn("audit drain interrupted",
			zap.Int("pending", len(d.queue)),
			zap.Error(ctx.Err()),
		)
		return ctx.Err()
	}
}

// Dropped reports how many events were discarded.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

// Stats returns a point-in-time copy of the delivery counters.
func (d *Dispatcher) Stats() Stats {
	if d == nil {
		return Stats{}
	}
	return Stats{
		Delivered: d.delivered.Load(),
		Dropped:   d.dropped.Load(),
		Failed:    d.failed.Load(),
	}
}
