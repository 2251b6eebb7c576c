package ingest_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/incident-cluster-service/internal/cluster"
	"github.com/couchcryptid/incident-cluster-service/internal/domain"
	"github.com/couchcryptid/incident-cluster-service/internal/ingest"
	"github.com/couchcryptid/incident-cluster-service/internal/observability"
	"github.com/couchcryptid/incident-cluster-service/internal/regen"
	"github.com/couchcryptid/incident-cluster-service/internal/store"
)

// --- mocks ---

type mockExtractor struct {
	batches [][]domain.RawEvent
	index   atomic.Int64
}

func (m *mockExtractor) ExtractBatch(ctx context.Context, _ int) ([]domain.RawEvent, error) {
	i := int(m.index.Add(1) - 1)
	if i >= len(m.batches) {
		// block until context cancelled to simulate waiting for messages
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return m.batches[i], nil
}

type failingExtractor struct {
	calls atomic.Int64
}

func (f *failingExtractor) ExtractBatch(ctx context.Context, _ int) ([]domain.RawEvent, error) {
	f.calls.Add(1)
	return nil, errors.New("kafka unavailable")
}

type mockPublisher struct {
	snapshots []store.Snapshot
	err       error
}

func (m *mockPublisher) PublishIncidents(_ context.Context, snap store.Snapshot) error {
	if m.err != nil {
		return m.err
	}
	m.snapshots = append(m.snapshots, snap)
	return nil
}

func makeRawEvent(t *testing.T, raw domain.RawClassifiedPost) domain.RawEvent {
	t.Helper()
	data, err := json.Marshal(raw)
	require.NoError(t, err)
	return domain.RawEvent{
		Key:   []byte(raw.ID),
		Value: data,
		Topic: "classified-posts",
	}
}

func newConsumer(ext ingest.BatchExtractor, pub ingest.SnapshotPublisher) (*ingest.Consumer, *ingest.Service) {
	logger := testLogger()
	metrics := observability.NewMetricsForTesting()
	handle := store.NewHandle(store.New(cluster.New(50, nil)))
	driver := regen.NewDriver(nil, nil, logger, metrics)
	svc := ingest.New(handle, nil, driver, logger, metrics)
	return ingest.NewConsumer(ext, pub, svc, logger, metrics, 10), svc
}

// --- tests ---

func TestConsumer_Run_HappyPath(t *testing.T) {
	base := time.Date(2024, 9, 12, 8, 0, 0, 0, time.UTC)
	committed := atomic.Int64{}

	events := []domain.RawEvent{
		makeRawEvent(t, rawPost("p1", 39.47, -0.38, base)),
		makeRawEvent(t, rawPost("p2", 39.50, -0.38, base.Add(time.Minute))),
	}
	for i := range events {
		events[i].Commit = func(_ context.Context) error {
			committed.Add(1)
			return nil
		}
	}

	ext := &mockExtractor{batches: [][]domain.RawEvent{events}}
	pub := &mockPublisher{}
	consumer, svc := newConsumer(ext, pub)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	err := consumer.Run(ctx)
	require.NoError(t, err)

	assert.Len(t, svc.ListIncidents(false, 0), 1)
	assert.Equal(t, int64(2), committed.Load())
	require.Len(t, pub.snapshots, 1)
	assert.Len(t, pub.snapshots[0].Incidents, 1)
	assert.NoError(t, svc.CheckReadiness(ctx))
}

func TestConsumer_Run_ContextCancellation(t *testing.T) {
	ext := &mockExtractor{} // no batches, will block
	pub := &mockPublisher{}
	consumer, _ := newConsumer(ext, pub)

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // cancel immediately

	err := consumer.Run(ctx)
	require.NoError(t, err)
	assert.Empty(t, pub.snapshots)
}

func TestConsumer_Run_PoisonMessageCommitted(t *testing.T) {
	base := time.Date(2024, 9, 12, 8, 0, 0, 0, time.UTC)
	committed := atomic.Int64{}

	poison := domain.RawEvent{
		Value: []byte("{not json"),
		Topic: "classified-posts",
		Commit: func(_ context.Context) error {
			committed.Add(1)
			return nil
		},
	}
	good := makeRawEvent(t, rawPost("p1", 39.47, -0.38, base))
	good.Commit = func(_ context.Context) error {
		committed.Add(1)
		return nil
	}

	ext := &mockExtractor{batches: [][]domain.RawEvent{{poison, good}}}
	pub := &mockPublisher{}
	consumer, svc := newConsumer(ext, pub)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	err := consumer.Run(ctx)
	require.NoError(t, err)

	// The poison message is skipped but committed so it is not redelivered.
	assert.Equal(t, int64(2), committed.Load())
	assert.Len(t, svc.ListIncidents(false, 0), 1)
}

func TestConsumer_Run_SkippedPostsDoNotPublish(t *testing.T) {
	base := time.Date(2024, 9, 12, 8, 0, 0, 0, time.UTC)

	raw := rawPost("p1", 39.47, -0.38, base)
	raw.ML.IsDisaster = false

	ext := &mockExtractor{batches: [][]domain.RawEvent{{makeRawEvent(t, raw)}}}
	pub := &mockPublisher{}
	consumer, svc := newConsumer(ext, pub)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	err := consumer.Run(ctx)
	require.NoError(t, err)
	assert.Empty(t, pub.snapshots)
	assert.Empty(t, svc.ListIncidents(false, 0))
}

func TestConsumer_Run_ExtractErrorBacksOff(t *testing.T) {
	ext := &failingExtractor{}
	consumer, _ := newConsumer(ext, &mockPublisher{})

	ctx, cancel := context.WithTimeout(context.Background(), 700*time.Millisecond)
	defer cancel()

	err := consumer.Run(ctx)
	require.NoError(t, err)

	// 200ms then 400ms backoff fit in the window; a tight loop would have
	// produced hundreds of calls.
	calls := ext.calls.Load()
	assert.GreaterOrEqual(t, calls, int64(2))
	assert.LessOrEqual(t, calls, int64(5))
}
