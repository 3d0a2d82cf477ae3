// Package kafka forwards auth lifecycle events to an audit topic.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/conduit-ucpi/webapp-sub000/pkg/logging"
	"github.com/conduit-ucpi/webapp-sub000/pkg/unifiedauth"
)

const schemaVersion = "1.0"

// AuthEvent is the audit record. Tokens are never included.
type AuthEvent struct {
	EventID       string    `json:"event_id"`
	EventType     string    `json:"event_type"`
	Timestamp     time.Time `json:"timestamp"`
	Source        string    `json:"source"`
	Provider      string    `json:"provider,omitempty"`
	WalletAddress string    `json:"wallet_address,omitempty"`
	UserID        string    `json:"user_id,omitempty"`
	Message       string    `json:"message,omitempty"`
	SchemaVersion string    `json:"schema_version"`
}

// NewAuthEvent converts a provider event into an audit record.
func NewAuthEvent(ev unifiedauth.Event, source string) AuthEvent {
	out := AuthEvent{
		EventID:       uuid.NewString(),
		EventType:     string(ev.Type),
		Timestamp:     ev.At,
		Source:        source,
		Provider:      ev.Provider,
		Message:       ev.Message,
		SchemaVersion: schemaVersion,
	}
	if ev.User != nil {
		out.WalletAddress = ev.User.WalletAddress
		out.UserID = ev.User.UserID
	}
	return out
}

// Publisher is satisfied by *Producer.
type Publisher interface {
	Publish(ctx context.Context, topic string, key, value []byte, headers map[string]string) error
}

var forwarded = map[unifiedauth.EventType]bool{
	unifiedauth.EventConnected:      true,
	unifiedauth.EventDisconnected:   true,
	unifiedauth.EventError:          true,
	unifiedauth.EventTokenRefreshed: true,
}

// Forwarder queues provider events and publishes them from its own
// goroutine, so a slow broker never blocks the auth state machine.
// Records that fail to publish go to the topic's DLQ.
type Forwarder struct {
	pub    Publisher
	topic  string
	source string
	logger logging.Logger

	queue chan AuthEvent
	once  sync.Once
	done  chan struct{}
}

// NewForwarder creates a forwarder with room for buffer queued events.
func NewForwarder(pub Publisher, topic, source string, buffer int, logger logging.Logger) *Forwarder {
	if buffer <= 0 {
		buffer = 64
	}
	return &Forwarder{
		pub:    pub,
		topic:  topic,
		source: source,
		logger: logging.OrDiscard(logger),
		queue:  make(chan AuthEvent, buffer),
		done:   make(chan struct{}),
	}
}

// Handle is a unifiedauth.Listener. It never blocks; when the queue is
// full the event is dropped and logged.
func (f *Forwarder) Handle(ev unifiedauth.Event) {
	if !forwarded[ev.Type] {
		return
	}
	rec := NewAuthEvent(ev, f.source)
	select {
	case f.queue <- rec:
	default:
		f.logger.WithField("event", ev.Type).Warn("Audit queue full, dropping event")
	}
}

// Run publishes queued events until Close is called and the queue drains,
// or ctx is cancelled.
func (f *Forwarder) Run(ctx context.Context) {
	defer close(f.done)
	for {
		select {
		case <-ctx.Done():
			return
		case rec, ok := <-f.queue:
			if !ok {
				return
			}
			f.publish(ctx, rec)
		}
	}
}

// Close stops accepting events and waits for Run to drain the queue.
// Handle must not be called after Close.
func (f *Forwarder) Close() {
	f.once.Do(func() { close(f.queue) })
	<-f.done
}

func (f *Forwarder) publish(ctx context.Context, rec AuthEvent) {
	value, err := json.Marshal(rec)
	if err != nil {
		f.logger.WithError(err).Warn("Failed to marshal audit event")
		return
	}
	key := []byte(strings.ToLower(rec.WalletAddress))
	if len(key) == 0 {
		key = []byte(rec.EventID)
	}
	headers := map[string]string{
		"source":     rec.Source,
		"event_type": rec.EventType,
	}

	err = f.pub.Publish(ctx, f.topic, key, value, headers)
	if err == nil {
		return
	}
	log := f.logger.WithError(err).WithField("event", rec.EventType)
	log.Warn("Failed to publish audit event")

	dlq, encErr := EncodeDLQMessage(f.topic, key, value, headers, err, f.source, time.Now())
	if encErr != nil {
		log.WithField("dlq_error", encErr).Warn("Failed to encode DLQ payload")
		return
	}
	if dlqErr := f.pub.Publish(ctx, f.topic+DLQSuffix, key, dlq, headers); dlqErr != nil {
		log.WithField("dlq_error", fmt.Sprint(dlqErr)).Warn("Failed to publish to DLQ")
	}
}
