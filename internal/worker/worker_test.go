package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/intake-api/internal/model"
	"github.com/jwalitptl/intake-api/internal/repository"
	"github.com/jwalitptl/intake-api/internal/repository/memory"
	"github.com/jwalitptl/intake-api/pkg/messaging"
	"github.com/jwalitptl/intake-api/pkg/metrics"
)

func TestSessionCleanupWorker_Cleanup(t *testing.T) {
	ctx := context.Background()
	store := memory.NewSessionStore()
	now := time.Date(2026, time.October, 17, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.Create(ctx, model.NewIntakeSession("stale", "", 8, now.Add(-48*time.Hour))))
	require.NoError(t, store.Create(ctx, model.NewIntakeSession("fresh", "", 8, now.Add(-time.Hour))))

	m := metrics.NewMetrics(prometheus.NewRegistry(), "test")
	w := NewSessionCleanupWorker(store, SessionCleanupConfig{Retention: 24 * time.Hour}, nil, m)
	w.now = func() time.Time { return now }

	n, err := w.cleanup(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SessionsPruned))

	_, err = store.Get(ctx, "stale")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	_, err = store.Get(ctx, "fresh")
	assert.NoError(t, err)

	n, err = w.cleanup(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSessionCleanupWorker_StartStopsOnCancel(t *testing.T) {
	w := NewSessionCleanupWorker(memory.NewSessionStore(), SessionCleanupConfig{Interval: time.Millisecond}, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestEventConsumer_DispatchesAndCounts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	broker := messaging.NewMemoryBroker(8)
	defer broker.Close()
	m := metrics.NewMetrics(prometheus.NewRegistry(), "test")
	consumer := NewEventConsumer(broker, "events", nil, m)

	var mu sync.Mutex
	var seen []string
	consumer.Handle("intake.completed", func(ctx context.Context, eventType string, payload json.RawMessage) error {
		var body map[string]string
		if err := json.Unmarshal(payload, &body); err != nil {
			return err
		}
		mu.Lock()
		seen = append(seen, body["session_id"])
		mu.Unlock()
		return nil
	})
	consumer.Handle("intake.failed", func(ctx context.Context, eventType string, payload json.RawMessage) error {
		return errors.New("boom")
	})

	errCh := make(chan error, 1)
	go func() { errCh <- consumer.Start(ctx) }()

	pub := messaging.NewPublisher(broker, "events")
	require.Eventually(t, func() bool {
		return pub.Publish(ctx, "intake.completed", map[string]string{"session_id": "s1"}) == nil &&
			testutil.ToFloat64(m.EventsConsumed.WithLabelValues("intake.completed")) > 0
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, pub.Publish(ctx, "intake.failed", map[string]string{}))
	require.NoError(t, broker.Publish(ctx, "events", "not an envelope"))

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(m.EventsConsumed.WithLabelValues("intake.failed")) == 1
	}, time.Second, 10*time.Millisecond)

	mu.Lock()
	assert.Contains(t, seen, "s1")
	mu.Unlock()

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("consumer did not stop")
	}
}

func TestEventConsumer_SubscribeFailure(t *testing.T) {
	broker := messaging.NewMemoryBroker(1)
	require.NoError(t, broker.Close())

	err := NewEventConsumer(broker, "events", nil, nil).Start(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, messaging.ErrClosed)
}
