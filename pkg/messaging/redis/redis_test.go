package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisBroker_PublishSubscribe(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client, err := NewClient(ctx, Config{URL: "redis://" + mr.Addr()})
	require.NoError(t, err)
	logger := zerolog.Nop()
	b := NewRedisBroker(client, &logger)
	defer b.Close()

	ch, err := b.Subscribe(ctx, "events")
	require.NoError(t, err)
	require.NoError(t, b.Publish(ctx, "events", map[string]string{"type": "note.edited"}))

	select {
	case msg := <-ch:
		assert.JSONEq(t, `{"type":"note.edited"}`, string(msg))
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
	}
}

func TestNewClient_BadURL(t *testing.T) {
	_, err := NewClient(context.Background(), Config{URL: "::nope"})
	assert.Error(t, err)
}
