// Package notify resolves who tracks a course and delivers "course is open" messages.
package notify

import (
	"context"
	"errors"
)

//go:generate mockgen -destination=mocks/mock_transport.go -package=mocks -source=notify.go Transport

var (
	// ErrNotConfigured is returned when no notification topic is configured
	ErrNotConfigured = errors.New("notification topic not configured")

	// ErrTransportUnavailable wraps any failure reported by the transport
	ErrTransportUnavailable = errors.New("notification transport unavailable")
)

// Protocol is a subscription delivery channel
type Protocol string

const (
	// ProtocolEmail delivers to an email address
	ProtocolEmail Protocol = "email"
	// ProtocolSMS delivers to a phone number
	ProtocolSMS Protocol = "sms"
)

// Message is one publish request
type Message struct {
	Subject    string            `json:"subject"`
	Body       []byte            `json:"body"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// Transport is a pub/sub style message bus
type Transport interface {
	// Publish sends msg to topic and returns the transport's message id
	Publish(ctx context.Context, topic string, msg Message) (string, error)

	// Subscribe registers endpoint on topic and returns a subscription id
	Subscribe(ctx context.Context, topic string, protocol Protocol, endpoint string) (string, error)
}
