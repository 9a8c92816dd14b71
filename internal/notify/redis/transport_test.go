package redis

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"

	"github.com/stacklok/seatwatch/internal/notify"
)

func setupRedis(t *testing.T) *goredis.Client {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	ctx := context.Background()
	container, err := tcredis.Run(ctx, "redis:7-alpine")
	require.NoError(t, err)
	t.Cleanup(func() { tc.CleanupContainer(t, container) })

	uri, err := container.ConnectionString(ctx)
	require.NoError(t, err)

	opts, err := goredis.ParseURL(uri)
	require.NoError(t, err)

	rdb := goredis.NewClient(opts)
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func TestTransport_PublishDeliversEnvelope(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	rdb := setupRedis(t)
	tr := NewTransportFromClient(rdb)
	require.NoError(t, tr.Ping(ctx))

	sub := rdb.Subscribe(ctx, "seats")
	defer sub.Close()
	_, err := sub.Receive(ctx) // subscription confirmation
	require.NoError(t, err)

	id, err := tr.Publish(ctx, "seats", notify.Message{
		Subject:    "Course 12345 is now OPEN!",
		Body:       []byte(`{"user_id":"alice"}`),
		Attributes: map[string]string{"user_id": "alice", "course_id": "12345-2025-Fall"},
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	recvCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	msg, err := sub.ReceiveMessage(recvCtx)
	require.NoError(t, err)

	var env Envelope
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &env))
	assert.Equal(t, id, env.ID)
	assert.Equal(t, "Course 12345 is now OPEN!", env.Subject)
	assert.JSONEq(t, `{"user_id":"alice"}`, string(env.Body))
	assert.Equal(t, "12345-2025-Fall", env.Attributes["course_id"])

	length, err := rdb.XLen(ctx, "seats"+streamSuffix).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), length)
}

func TestTransport_SubscribeIsIdempotent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	tr := NewTransportFromClient(setupRedis(t))

	first, err := tr.Subscribe(ctx, "seats", notify.ProtocolEmail, "alice@example.com")
	require.NoError(t, err)
	second, err := tr.Subscribe(ctx, "seats", notify.ProtocolEmail, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, first, second)

	_, err = tr.Subscribe(ctx, "seats", notify.ProtocolSMS, "+15550100")
	require.NoError(t, err)

	subs, err := tr.Subscriptions(ctx, "seats")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"email:alice@example.com": first,
		"sms:+15550100":           subs["sms:+15550100"],
	}, subs)
}

func TestTransport_SubscribeRequiresEndpoint(t *testing.T) {
	t.Parallel()

	tr := NewTransportFromClient(goredis.NewClient(&goredis.Options{Addr: "127.0.0.1:1"}))
	defer tr.Close()

	_, err := tr.Subscribe(context.Background(), "seats", notify.ProtocolEmail, "")
	assert.Error(t, err)
}
