// Package notify delivers deployment and drift events to configured sinks.
// Delivery is asynchronous and best-effort: a slow or failing sink never
// blocks the orchestrator or the drift detector.
package notify

import (
	"log/slog"
	"sync"
	"time"

	"github.com/meridian-cd/meridian/domain"
)

// EventSink receives events. Implementations must tolerate concurrent calls.
type EventSink interface {
	Deliver(event domain.Event) error
	Name() string
}

// LogSink writes events to the structured log
type LogSink struct{}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Deliver(event domain.Event) error {
	slog.Info("Event",
		"layer", "notify",
		"event_type", string(event.Type),
		"severity", event.Severity.String(),
		"deployment_id", event.DeploymentID,
		"resource_id", event.ResourceID,
		"message", event.Message,
	)
	return nil
}

// Dispatcher fans events out to sinks from a single worker goroutine.
// Publish never blocks: when the buffer is full the event is dropped and
// counted.
type Dispatcher struct {
	sinks   []EventSink
	events  chan domain.Event
	done    chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	dropped int
	closed  bool
}

func NewDispatcher(bufferSize int, sinks ...EventSink) *Dispatcher {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	d := &Dispatcher{
		sinks:  sinks,
		events: make(chan domain.Event, bufferSize),
		done:   make(chan struct{}),
	}
	d.wg.Add(1)
	go d.run()
	return d
}

// Publish enqueues an event for delivery. Timestamp is stamped here if the
// caller left it zero.
func (d *Dispatcher) Publish(event domain.Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	select {
	case d.events <- event:
		d.mu.Unlock()
	default:
		d.dropped++
		n := d.dropped
		d.mu.Unlock()
		slog.Warn("Event buffer full, dropping event",
			"layer", "notify",
			"event_type", string(event.Type),
			"dropped_total", n)
	}
}

// Dropped returns the number of events discarded due to a full buffer
func (d *Dispatcher) Dropped() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dropped
}

// Close drains buffered events and stops the worker
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.mu.Unlock()

	close(d.events)
	d.wg.Wait()
	close(d.done)
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for event := range d.events {
		for _, sink := range d.sinks {
			if err := sink.Deliver(event); err != nil {
				slog.Warn("Event delivery failed",
					"layer", "notify",
					"sink", sink.Name(),
					"event_type", string(event.Type),
					"error", err)
			}
		}
	}
}
