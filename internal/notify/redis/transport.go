// Package redis implements the notification transport on Redis.
//
// Each message is wrapped in a JSON envelope, PUBLISHed on the topic channel for
// live consumers and appended to the capped stream "{topic}:stream" so delivery
// workers that were offline can catch up. Subscriptions are kept in the hash
// "{topic}:subscriptions", keyed by "protocol:endpoint".
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/stacklok/seatwatch/internal/notify"
)

const (
	streamSuffix        = ":stream"
	subscriptionsSuffix = ":subscriptions"
	defaultStreamMaxLen = 10000
	pingTimeout         = 5 * time.Second
)

// Envelope is the JSON document published for each message
type Envelope struct {
	ID          string            `json:"id"`
	Subject     string            `json:"subject"`
	Attributes  map[string]string `json:"attributes,omitempty"`
	Body        json.RawMessage   `json:"body"`
	PublishedAt time.Time         `json:"published_at"`
}

// Transport publishes notifications through Redis
type Transport struct {
	rdb goredis.UniversalClient
}

var _ notify.Transport = (*Transport)(nil)

// Options holds Redis connection settings
type Options struct {
	Addr     string
	Password string
	DB       int
}

// NewTransport connects to Redis and verifies the connection with PING
func NewTransport(ctx context.Context, opts Options) (*Transport, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", opts.Addr, err)
	}

	slog.Info("Connected to Redis", "addr", opts.Addr)
	return &Transport{rdb: rdb}, nil
}

// NewTransportFromClient wraps an existing client
func NewTransportFromClient(rdb goredis.UniversalClient) *Transport {
	return &Transport{rdb: rdb}
}

// Publish sends msg on the topic channel and appends it to the topic stream
func (t *Transport) Publish(ctx context.Context, topic string, msg notify.Message) (string, error) {
	env := Envelope{
		ID:          uuid.NewString(),
		Subject:     msg.Subject,
		Attributes:  msg.Attributes,
		Body:        json.RawMessage(msg.Body),
		PublishedAt: time.Now().UTC(),
	}
	data, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("failed to encode envelope: %w", err)
	}

	_, err = t.rdb.Pipelined(ctx, func(p goredis.Pipeliner) error {
		p.Publish(ctx, topic, data)
		p.XAdd(ctx, &goredis.XAddArgs{
			Stream: topic + streamSuffix,
			MaxLen: defaultStreamMaxLen,
			Approx: true,
			Values: map[string]any{"envelope": string(data)},
		})
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to publish to %s: %w", topic, err)
	}
	return env.ID, nil
}

// Subscribe registers endpoint on topic. Registering the same endpoint again returns the original id.
func (t *Transport) Subscribe(ctx context.Context, topic string, protocol notify.Protocol, endpoint string) (string, error) {
	if endpoint == "" {
		return "", fmt.Errorf("endpoint is required")
	}

	key := topic + subscriptionsSuffix
	field := string(protocol) + ":" + endpoint

	if _, err := t.rdb.HSetNX(ctx, key, field, uuid.NewString()).Result(); err != nil {
		return "", fmt.Errorf("failed to store subscription: %w", err)
	}
	id, err := t.rdb.HGet(ctx, key, field).Result()
	if err != nil {
		return "", fmt.Errorf("failed to read subscription: %w", err)
	}
	return id, nil
}

// Subscriptions returns the "protocol:endpoint" to subscription id map of topic
func (t *Transport) Subscriptions(ctx context.Context, topic string) (map[string]string, error) {
	return t.rdb.HGetAll(ctx, topic+subscriptionsSuffix).Result()
}

// Ping checks the Redis connection
func (t *Transport) Ping(ctx context.Context) error {
	return t.rdb.Ping(ctx).Err()
}

// Close closes the Redis client
func (t *Transport) Close() error {
	return t.rdb.Close()
}
