//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/incident-cluster-service/internal/adapter/kafka"
	"github.com/couchcryptid/incident-cluster-service/internal/cluster"
	"github.com/couchcryptid/incident-cluster-service/internal/config"
	"github.com/couchcryptid/incident-cluster-service/internal/domain"
	"github.com/couchcryptid/incident-cluster-service/internal/ingest"
	"github.com/couchcryptid/incident-cluster-service/internal/observability"
	"github.com/couchcryptid/incident-cluster-service/internal/regen"
	"github.com/couchcryptid/incident-cluster-service/internal/store"
)

const (
	testSourceTopic = "test-classified-posts"
	testSinkTopic   = "test-incident-snapshots"
)

func classifiedPost(id string, lat, lng float64, disasterType string) domain.RawClassifiedPost {
	return domain.RawClassifiedPost{
		ID:        id,
		Text:      "flooding reported near the river",
		Author:    domain.Author{Handle: "stormwatcher"},
		CreatedAt: "2024-09-12T08:00:00Z",
		Lat:       &lat,
		Lng:       &lng,
		ML: domain.MLClassification{
			IsDisaster:   true,
			Confidence:   0.9,
			DisasterType: disasterType,
		},
		LLM: domain.LLMExtraction{
			LLMClassification: true,
			DisasterType:      disasterType,
			Severity:          "high",
			Location:          "Valencia, Spain",
		},
	}
}

// incidentMessage holds a deserialized message read from the sink topic.
type incidentMessage struct {
	Incident domain.Incident
	Key      string
	Headers  map[string]string
}

// readIncident reads a single message from the sink consumer and deserializes it.
func readIncident(ctx context.Context, t *testing.T, consumer *kafkago.Reader) incidentMessage {
	t.Helper()
	readCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	msg, err := consumer.ReadMessage(readCtx)
	require.NoError(t, err, "read from sink topic")

	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	var incident domain.Incident
	require.NoError(t, json.Unmarshal(msg.Value, &incident), "unmarshal sink message")

	return incidentMessage{
		Incident: incident,
		Key:      string(msg.Key),
		Headers:  headers,
	}
}

// TestKafkaReaderWriter verifies the adapter layer: kafka.Reader (extractor)
// and kafka.Writer (snapshot publisher) correctly round-trip through Kafka.
func TestKafkaReaderWriter(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)

	createTopic(t, broker, testSourceTopic)
	createTopic(t, broker, testSinkTopic)

	cfg := &config.Config{
		KafkaBrokers:       []string{broker},
		KafkaSourceTopic:   testSourceTopic,
		KafkaSinkTopic:     testSinkTopic,
		KafkaGroupID:       fmt.Sprintf("test-reader-%d", time.Now().UnixNano()),
		BatchFlushInterval: 5 * time.Second,
	}

	// Publish a classified post to the source topic.
	raw := classifiedPost("post-001", 39.47, -0.38, "flood")
	payload, err := json.Marshal(raw)
	require.NoError(t, err)

	producer := &kafkago.Writer{
		Addr:  kafkago.TCP(broker),
		Topic: testSourceTopic,
	}
	t.Cleanup(func() { _ = producer.Close() })

	require.NoError(t, producer.WriteMessages(ctx, kafkago.Message{
		Key:   []byte("post-001"),
		Value: payload,
	}))

	// Extract via kafka.Reader.
	// Retry because the consumer group may need time to rebalance before
	// partitions are assigned and messages become available.
	reader := kafka.NewReader(cfg, discardLogger())
	t.Cleanup(func() { _ = reader.Close() })

	var batch []domain.RawEvent
	for {
		var err error
		batch, err = reader.ExtractBatch(ctx, 1)
		require.NoError(t, err)
		if len(batch) > 0 {
			break
		}
		if ctx.Err() != nil {
			t.Fatal("timed out waiting for message from source topic")
		}
	}
	require.Len(t, batch, 1)
	event := batch[0]
	assert.Equal(t, []byte("post-001"), event.Key)
	assert.Equal(t, payload, event.Value)
	assert.Equal(t, testSourceTopic, event.Topic)
	require.NotNil(t, event.Commit, "commit callback should be set")

	// Commit the offset.
	require.NoError(t, event.Commit(ctx))

	// Build an incident from the post and publish a snapshot via kafka.Writer.
	st := store.New(cluster.New(50, nil))
	post, err := domain.Normalize(ctx, raw, nil, discardLogger())
	require.NoError(t, err)
	_, created, err := st.FindOrCreate(post)
	require.NoError(t, err)
	require.True(t, created)

	writer := kafka.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })

	require.NoError(t, writer.PublishIncidents(ctx, st.Snapshot()))

	// Read from the sink topic and verify headers + value.
	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       testSinkTopic,
		GroupID:     fmt.Sprintf("test-consumer-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = consumer.Close() })

	im := readIncident(ctx, t, consumer)
	assert.Equal(t, "Flood", im.Headers["incident_type"])
	assert.Equal(t, "high", im.Headers["severity"])
	require.Contains(t, im.Headers, "generated_at")
	_, err = time.Parse(time.RFC3339, im.Headers["generated_at"])
	assert.NoError(t, err, "generated_at should be valid RFC3339")

	assert.Equal(t, im.Incident.ID, im.Key, "messages are keyed by incident ID")
	assert.Equal(t, "Flood", im.Incident.IncidentType)
	assert.Equal(t, domain.SeverityHigh, im.Incident.Severity)
	assert.InDelta(t, 39.47, im.Incident.Lat, 0.01)
	require.Len(t, im.Incident.SourcePosts, 1)
	assert.Equal(t, "post-001", im.Incident.SourcePosts[0].ExternalID)
}

// TestConsumerEndToEnd wires the full path (Reader -> Service -> Writer) with
// real Kafka and verifies clustering across messages, including a poison pill.
func TestConsumerEndToEnd(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	broker := startKafka(ctx, t)

	createTopic(t, broker, testSourceTopic)
	createTopic(t, broker, testSinkTopic)

	cfg := &config.Config{
		KafkaBrokers:       []string{broker},
		KafkaSourceTopic:   testSourceTopic,
		KafkaSinkTopic:     testSinkTopic,
		KafkaGroupID:       fmt.Sprintf("test-consumer-%d", time.Now().UnixNano()),
		BatchFlushInterval: 5 * time.Second,
	}

	// Two posts near Valencia (should merge), one poison pill, one post
	// near Tampa (separate incident).
	posts := []domain.RawClassifiedPost{
		classifiedPost("post-001", 39.47, -0.38, "flood"),
		classifiedPost("post-002", 39.51, -0.42, "flood"),
		classifiedPost("post-003", 27.95, -82.46, "hurricane"),
	}

	producer := &kafkago.Writer{
		Addr:  kafkago.TCP(broker),
		Topic: testSourceTopic,
	}
	t.Cleanup(func() { _ = producer.Close() })

	msgs := make([]kafkago.Message, 0, len(posts)+1)
	for i, p := range posts {
		if i == 2 {
			// Poison pill between valid messages.
			msgs = append(msgs, kafkago.Message{Key: []byte("bad"), Value: []byte("not-json{{{")})
		}
		payload, err := json.Marshal(p)
		require.NoError(t, err)
		msgs = append(msgs, kafkago.Message{Key: []byte(p.ID), Value: payload})
	}
	require.NoError(t, producer.WriteMessages(ctx, msgs...))

	// Wire up the consumer.
	reader := kafka.NewReader(cfg, discardLogger())
	t.Cleanup(func() { _ = reader.Close() })

	writer := kafka.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })

	metrics := observability.NewMetricsForTesting()
	handle := store.NewHandle(store.New(cluster.New(50, nil)))
	driver := regen.NewDriver(nil, nil, discardLogger(), metrics)
	service := ingest.New(handle, nil, driver, discardLogger(), metrics)
	consumer := ingest.NewConsumer(reader, writer, service, discardLogger(), metrics, 50)

	consumerCtx, consumerCancel := context.WithCancel(ctx)
	errCh := make(chan error, 1)
	go func() { errCh <- consumer.Run(consumerCtx) }()

	// Read snapshot messages from the sink, keeping the latest state per
	// incident, until the expected end state appears. The consumer may
	// publish across several batches depending on fetch timing.
	sinkConsumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       testSinkTopic,
		GroupID:     fmt.Sprintf("test-sink-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = sinkConsumer.Close() })

	latest := make(map[string]incidentMessage)
	for {
		im := readIncident(ctx, t, sinkConsumer)
		latest[im.Key] = im

		var valencia, tampa *incidentMessage
		for key := range latest {
			m := latest[key]
			switch m.Incident.IncidentType {
			case "Flood":
				valencia = &m
			case "Storm":
				tampa = &m
			}
		}
		if valencia != nil && tampa != nil && len(valencia.Incident.SourcePosts) == 2 {
			break
		}
	}

	consumerCancel()
	require.NoError(t, <-errCh)

	// The two flood posts clustered into one incident.
	require.Len(t, latest, 2, "expected exactly two incidents")
	assert.Len(t, service.ListIncidents(false, 0), 2)

	for _, im := range latest {
		assert.NotEmpty(t, im.Headers["incident_type"], "missing incident_type header")
		assert.Contains(t, im.Headers, "generated_at", "missing generated_at header")
	}
}
