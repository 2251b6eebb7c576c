package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/incident-cluster-service/internal/config"
	"github.com/couchcryptid/incident-cluster-service/internal/domain"
	"github.com/couchcryptid/incident-cluster-service/internal/store"
)

// Writer produces incident messages to a Kafka topic.
// It implements ingest.SnapshotPublisher.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured sink topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaSinkTopic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger}
}

// PublishIncidents serializes every incident in the snapshot and publishes
// them in a single WriteMessages call. Messages are keyed by incident ID so
// consumers compacting the topic keep the latest state per incident.
func (w *Writer) PublishIncidents(ctx context.Context, snapshot store.Snapshot) error {
	if len(snapshot.Incidents) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(snapshot.Incidents))
	for i := range snapshot.Incidents {
		msg, err := serializeToMessage(snapshot.Incidents[i], snapshot.Metadata.GeneratedAt)
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	return w.writer.WriteMessages(ctx, msgs...)
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals an Incident into a Kafka message.
func serializeToMessage(incident domain.Incident, generatedAt string) (kafkago.Message, error) {
	data, err := json.Marshal(incident)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize incident: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(incident.ID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "incident_type", Value: []byte(incident.IncidentType)},
			{Key: "severity", Value: []byte(incident.Severity)},
			{Key: "generated_at", Value: []byte(generatedAt)},
		},
	}, nil
}
