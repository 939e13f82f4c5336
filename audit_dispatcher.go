package goIssuer

import (
	"context"
	"sync"
	"sync/atomic"
)

// retainedAuditEvents wait for buffer space even when DropIfFull is set.
var retainedAuditEvents = map[string]bool{
	auditEventKeyRotated:       true,
	auditEventKeyRevoked:       true,
	auditEventKeyRevokeFailure: true,
	auditEventSessionEvicted:   true,
}

// auditDispatcher hands events to one sink goroutine. Under DropIfFull a
// full buffer drops request-path events (validation, refresh, session
// create) and counts them per event type; key lifecycle and eviction events
// block until queued or until the caller's ctx ends.
type auditDispatcher struct {
	sink       AuditSink
	queue      chan AuditEvent
	stop       chan struct{}
	drained    chan struct{}
	dropIfFull bool

	mu      sync.Mutex
	dropped map[string]uint64
	total   atomic.Uint64

	closing atomic.Bool
	once    sync.Once
}

func newAuditDispatcher(cfg AuditConfig, sink AuditSink) *auditDispatcher {
	if !cfg.Enabled {
		return nil
	}
	size := cfg.BufferSize
	if size <= 0 {
		size = 1
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	d := &auditDispatcher{
		sink:       sink,
		queue:      make(chan AuditEvent, size),
		stop:       make(chan struct{}),
		drained:    make(chan struct{}),
		dropIfFull: cfg.DropIfFull,
		dropped:    make(map[string]uint64),
	}
	go d.run()
	return d
}

func (d *auditDispatcher) run() {
	defer close(d.drained)

	ctx := context.Background()
	for {
		select {
		case event := <-d.queue:
			d.sink.Emit(ctx, event)
		case <-d.stop:
			// Flush what was queued before Close.
			for {
				select {
				case event := <-d.queue:
					d.sink.Emit(ctx, event)
				default:
					return
				}
			}
		}
	}
}

// Emit queues event. An event that cannot be queued is counted as dropped
// under its type, including a retained event whose ctx ended first.
func (d *auditDispatcher) Emit(ctx context.Context, event AuditEvent) {
	if d == nil || d.closing.Load() {
		return
	}

	if d.dropIfFull && !retainedAuditEvents[event.EventType] {
		select {
		case d.queue <- event:
		case <-d.stop:
		default:
			d.recordDrop(event.EventType)
		}
		return
	}

	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case d.queue <- event:
	case <-d.stop:
	case <-ctx.Done():
		d.recordDrop(event.EventType)
	}
}

func (d *auditDispatcher) recordDrop(eventType string) {
	d.total.Add(1)
	d.mu.Lock()
	d.dropped[eventType]++
	d.mu.Unlock()
}

// Close stops accepting events and waits for the queue to drain into the sink.
func (d *auditDispatcher) Close() {
	if d == nil {
		return
	}
	d.once.Do(func() {
		d.closing.Store(true)
		close(d.stop)
		<-d.drained
	})
}

func (d *auditDispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.total.Load()
}

// DroppedByType returns a copy of the drop counts keyed by event type.
func (d *auditDispatcher) DroppedByType() map[string]uint64 {
	out := make(map[string]uint64)
	if d == nil {
		return out
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for k, v := range d.dropped {
		out[k] = v
	}
	return out
}
