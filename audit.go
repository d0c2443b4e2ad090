package authcore

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	internalaudit "github.com/securepay/authcore/internal/audit"
)

// AuditEvent mirrors the structured event delivered to the audit sink:
// what happened, for whom, from where, and the precise reason. User-visible
// responses stay generic; the audit trail carries the detail.
type AuditEvent struct {
	Timestamp     time.Time `json:"timestamp"`
	EventType     string    `json:"event_type"`
	UserID        string    `json:"user_id,omitempty"`
	Success       bool      `json:"success"`
	Method        string    `json:"method"`
	IPAddress     string    `json:"ip_address,omitempty"`
	Reason        string    `json:"reason,omitempty"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// AuditSink receives emitted audit events. Implementations must be cheap;
// delivery happens on a dedicated dispatcher goroutine and events are
// dropped, never blocked on, when the buffer is full.
type AuditSink interface {
	Emit(ctx context.Context, event AuditEvent)
}

// NoOpSink drops audit events.
type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, AuditEvent) {}

// ChannelSink buffers audit events for consumption by a collector.
type ChannelSink struct {
	events chan AuditEvent
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{
		events: make(chan AuditEvent, buffer),
	}
}

func (s *ChannelSink) Emit(ctx context.Context, event AuditEvent) {
	select {
	case s.events <- event:
	default:
	}
}

func (s *ChannelSink) Events() <-chan AuditEvent {
	return s.events
}

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink struct {
	writer io.Writer
	mu     sync.Mutex
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{
		writer: w,
	}
}

func (s *JSONWriterSink) Emit(ctx context.Context, event AuditEvent) {
	if s == nil || s.writer == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, _ = s.writer.Write(data)
	_, _ = s.writer.Write([]byte("\n"))
}

// sinkAdapter bridges the public AuditSink to the internal dispatcher.
type sinkAdapter struct {
	sink AuditSink
}

func (a sinkAdapter) Emit(ctx context.Context, event internalaudit.Event) {
	a.sink.Emit(ctx, AuditEvent(event))
}
