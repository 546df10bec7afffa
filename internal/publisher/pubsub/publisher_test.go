package pubsub

import (
	"context"
	"encoding/json"
	"testing"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/propagation"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

func newTestClient(t *testing.T) (*pstest.Server, *pubsub.Client) {
	t.Helper()
	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	client, err := pubsub.NewClient(context.Background(), "project-id", option.WithGRPCConn(conn))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return srv, client
}

func TestPublishSendsJSONPayload(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	srv, client := newTestClient(t)
	_, err := client.CreateTopic(ctx, "monitor-events")
	require.NoError(t, err)

	p, err := New(client, "monitor-events")
	require.NoError(t, err)
	defer func() { require.NoError(t, p.Close()) }()

	id, err := p.Publish(ctx, "events", map[string]string{"kind": "discovery"})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	msgs := srv.Messages()
	require.Len(t, msgs, 1)
	var got map[string]string
	require.NoError(t, json.Unmarshal(msgs[0].Data, &got))
	assert.Equal(t, "discovery", got["kind"])
}

func TestPublishUnmarshalablePayload(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	_, client := newTestClient(t)
	_, err := client.CreateTopic(ctx, "monitor-events")
	require.NoError(t, err)

	p, err := New(client, "monitor-events")
	require.NoError(t, err)
	defer func() { _ = p.Close() }()

	_, err = p.Publish(ctx, "events", make(chan int))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "marshal payload")
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	_, err := New(nil, "topic")
	require.Error(t, err)

	_, client := newTestClient(t)
	_, err = New(client, "")
	require.Error(t, err)
}

func TestUnconfiguredPublisher(t *testing.T) {
	t.Parallel()

	var p *Publisher
	_, err := p.Publish(context.Background(), "events", nil)
	require.Error(t, err)
	require.NoError(t, p.Close())
}

func TestCarrierRoundTrip(t *testing.T) {
	t.Parallel()

	c := &pubsubCarrier{attrs: map[string]string{}}
	var _ propagation.TextMapCarrier = c
	c.Set("traceparent", "00-abc-def-01")
	assert.Equal(t, "00-abc-def-01", c.Get("traceparent"))
	assert.Equal(t, []string{"traceparent"}, c.Keys())
}
