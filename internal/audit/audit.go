package audit

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Event is one security-relevant outcome: a login decision, a challenge
// lifecycle step, a trust transition or a credential operation.
type Event struct {
	Timestamp time.Time         `json:"timestamp"`
	EventType string            `json:"event_type"`
	UserID    string            `json:"user_id,omitempty"`
	Subject   string            `json:"subject,omitempty"`
	ContextID string            `json:"context_id,omitempty"`
	IP        string            `json:"ip,omitempty"`
	Success   bool              `json:"success"`
	Error     string            `json:"error,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Fields flattens e into log fields. Metadata keys are prefixed with "meta.".
func (e Event) Fields() logrus.Fields {
	f := logrus.Fields{
		"event":   e.EventType,
		"success": e.Success,
	}
	set := func(k, v string) {
		if v != "" {
			f[k] = v
		}
	}
	set("user_id", e.UserID)
	set("subject", e.Subject)
	set("context_id", e.ContextID)
	set("ip", e.IP)
	set("error", e.Error)
	for k, v := range e.Metadata {
		f["meta."+k] = v
	}
	return f
}

// Sink receives events from the dispatcher's worker goroutine.
type Sink interface {
	Emit(ctx context.Context, event Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, event Event)

// Emit calls f.
func (f SinkFunc) Emit(ctx context.Context, event Event) { f(ctx, event) }

// NoOpSink discards events.
type NoOpSink struct{}

// Emit does nothing.
func (NoOpSink) Emit(context.Context, Event) {}

// ChannelSink hands events to a consumer over a buffered channel. Emit blocks
// while the buffer is full unless ctx is done.
type ChannelSink struct {
	out chan Event
}

// NewChannelSink returns a ChannelSink with the given buffer, minimum 1.
func NewChannelSink(buffer int) *ChannelSink {
	return &ChannelSink{out: make(chan Event, max(buffer, 1))}
}

func (s *ChannelSink) Emit(ctx context.Context, event Event) {
	select {
	case s.out <- event:
	case <-ctx.Done():
	}
}

// Events is the receive side.
func (s *ChannelSink) Events() <-chan Event { return s.out }

// JSONWriterSink writes events as newline-delimited JSON.
type JSONWriterSink struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	if w == nil {
		return &JSONWriterSink{}
	}
	return &JSONWriterSink{enc: json.NewEncoder(w)}
}

func (s *JSONWriterSink) Emit(_ context.Context, event Event) {
	if s == nil || s.enc == nil {
		return
	}
	s.mu.Lock()
	_ = s.enc.Encode(event)
	s.mu.Unlock()
}

// LogrusSink writes each event as one structured log entry. Successful
// outcomes log at info, failures at warn.
type LogrusSink struct {
	log logrus.FieldLogger
}

// NewLogrusSink returns a sink over log; a nil log uses the standard logger.
func NewLogrusSink(log logrus.FieldLogger) *LogrusSink {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &LogrusSink{log: log}
}

func (s *LogrusSink) Emit(_ context.Context, event Event) {
	entry := s.log.WithFields(event.Fields())
	if !event.Timestamp.IsZero() {
		entry = entry.WithTime(event.Timestamp)
	}
	if event.Success {
		entry.Info("audit")
		return
	}
	entry.Warn("audit")
}
