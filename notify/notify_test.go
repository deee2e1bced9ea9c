package notify

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/meridian-cd/meridian/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingSink captures delivered events and can be told to fail or stall
type recordingSink struct {
	mu     sync.Mutex
	events []domain.Event
	err    error
	delay  time.Duration
}

func (s *recordingSink) Name() string { return "recording" }

func (s *recordingSink) Deliver(event domain.Event) error {
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return s.err
}

func (s *recordingSink) recorded() []domain.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Event(nil), s.events...)
}

func TestDispatcher_DeliversToAllSinks(t *testing.T) {
	first := &recordingSink{}
	second := &recordingSink{}
	d := NewDispatcher(8, first, second)

	d.Publish(domain.Event{
		Type:         domain.EventDeploymentCompleted,
		Severity:     domain.SeverityLow,
		DeploymentID: "dep-1",
		Message:      "deployment completed",
	})
	d.Close()

	require.Len(t, first.recorded(), 1)
	require.Len(t, second.recorded(), 1)
	assert.Equal(t, domain.EventDeploymentCompleted, first.recorded()[0].Type)
	assert.False(t, first.recorded()[0].Timestamp.IsZero(), "timestamp is stamped on publish")
}

func TestDispatcher_SinkFailureDoesNotStopDelivery(t *testing.T) {
	failing := &recordingSink{err: errors.New("webhook unreachable")}
	healthy := &recordingSink{}
	d := NewDispatcher(8, failing, healthy)

	d.Publish(domain.Event{Type: domain.EventDeploymentFailed, Message: "apply failed"})
	d.Publish(domain.Event{Type: domain.EventDriftDetected, Message: "drift on AppBucket"})
	d.Close()

	assert.Len(t, healthy.recorded(), 2)
}

func TestDispatcher_PublishNeverBlocksOnFullBuffer(t *testing.T) {
	slow := &recordingSink{delay: 50 * time.Millisecond}
	d := NewDispatcher(1, slow)
	defer d.Close()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 20; i++ {
			d.Publish(domain.Event{Type: domain.EventDriftDetected})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full buffer")
	}
	assert.Greater(t, d.Dropped(), 0)
}

func TestDispatcher_PublishAfterCloseIsNoOp(t *testing.T) {
	sink := &recordingSink{}
	d := NewDispatcher(8, sink)
	d.Close()

	d.Publish(domain.Event{Type: domain.EventDeploymentCompleted})
	assert.Empty(t, sink.recorded())
}
