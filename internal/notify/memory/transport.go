// Package memory provides an in-process notification transport.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/stacklok/seatwatch/internal/notify"
)

// Published is a message recorded by the transport
type Published struct {
	ID      string
	Topic   string
	Message notify.Message
}

// Subscription is an endpoint registered on a topic
type Subscription struct {
	ID       string
	Protocol notify.Protocol
	Endpoint string
}

// Transport records messages and subscriptions in memory
type Transport struct {
	mu            sync.Mutex
	published     []Published
	subscriptions map[string][]Subscription
}

var _ notify.Transport = (*Transport)(nil)

// New creates an empty transport
func New() *Transport {
	return &Transport{subscriptions: make(map[string][]Subscription)}
}

// Publish records msg
func (t *Transport) Publish(ctx context.Context, topic string, msg notify.Message) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	id := uuid.NewString()

	t.mu.Lock()
	defer t.mu.Unlock()
	t.published = append(t.published, Published{ID: id, Topic: topic, Message: msg})
	return id, nil
}

// Subscribe records a subscription. Subscribing the same endpoint twice returns the existing id.
func (t *Transport) Subscribe(ctx context.Context, topic string, protocol notify.Protocol, endpoint string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if endpoint == "" {
		return "", fmt.Errorf("endpoint is required")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	for _, s := range t.subscriptions[topic] {
		if s.Protocol == protocol && s.Endpoint == endpoint {
			return s.ID, nil
		}
	}
	sub := Subscription{ID: uuid.NewString(), Protocol: protocol, Endpoint: endpoint}
	t.subscriptions[topic] = append(t.subscriptions[topic], sub)
	return sub.ID, nil
}

// Published returns a copy of all recorded messages
func (t *Transport) Published() []Published {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.published)
}

// Subscriptions returns the subscriptions of topic
func (t *Transport) Subscriptions(topic string) []Subscription {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.subscriptions[topic])
}
