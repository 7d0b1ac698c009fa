package events

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/nats-io/nats.go"
)

// subjectPrefix namespaces flowd traffic on a shared NATS cluster.
const subjectPrefix = "flowd.events."

// NATSPublisher distributes events across server instances through NATS so
// collaborators connected to different nodes see the same traffic. Local
// delivery mirrors MemoryPublisher semantics.
type NATSPublisher struct {
	conn   *nats.Conn
	local  *MemoryPublisher
	sub    *nats.Subscription
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
}

// NewNATSPublisher connects to NATS and bridges remote events into the
// local fan-out.
func NewNATSPublisher(url string, logger *slog.Logger) (*NATSPublisher, error) {
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := nats.Connect(url,
		nats.Name("flowd"),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}

	p := &NATSPublisher{
		conn:   conn,
		local:  NewMemoryPublisher(),
		logger: logger,
	}

	// Re-publish remote events locally. Subject suffix carries the event
	// subject so wildcard subscriptions on the cluster stay meaningful.
	sub, err := conn.Subscribe(subjectPrefix+">", func(msg *nats.Msg) {
		var event Event
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			p.logger.Warn("dropping malformed nats event", "error", err)
			return
		}
		p.local.Publish(event)
	})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("subscribe nats: %w", err)
	}
	p.sub = sub
	return p, nil
}

// Publish sends the event to the cluster; local delivery happens through
// the subscription loop so every node (including this one) sees it once.
func (p *NATSPublisher) Publish(event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("marshal event", "error", err)
		return
	}
	if err := p.conn.Publish(subjectPrefix+sanitizeSubject(event.Subject), data); err != nil {
		p.logger.Error("publish event", "error", err, "subject", event.Subject)
	}
}

// Subscribe returns a channel that receives events for the subject.
func (p *NATSPublisher) Subscribe(subject string) <-chan Event {
	return p.local.Subscribe(subject)
}

// Unsubscribe removes a subscription channel.
func (p *NATSPublisher) Unsubscribe(subject string, ch <-chan Event) {
	p.local.Unsubscribe(subject, ch)
}

// Close drains the NATS connection and closes local subscriptions.
func (p *NATSPublisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true

	if p.sub != nil {
		_ = p.sub.Unsubscribe()
	}
	p.conn.Close()
	p.local.Close()
}

// sanitizeSubject keeps event subjects valid as NATS subject tokens.
func sanitizeSubject(s string) string {
	if s == GlobalSubject || s == "" {
		return "_global"
	}
	return strings.NewReplacer(".", "_", " ", "_", "*", "_", ">", "_").Replace(s)
}
