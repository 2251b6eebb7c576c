package ingest

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/couchcryptid/incident-cluster-service/internal/domain"
	"github.com/couchcryptid/incident-cluster-service/internal/observability"
	"github.com/couchcryptid/incident-cluster-service/internal/store"
)

// BatchExtractor reads up to batchSize raw events from the source topic.
type BatchExtractor interface {
	ExtractBatch(ctx context.Context, batchSize int) ([]domain.RawEvent, error)
}

// SnapshotPublisher writes the current incident snapshot to the sink topic.
type SnapshotPublisher interface {
	PublishIncidents(ctx context.Context, snapshot store.Snapshot) error
}

// Consumer drives the Kafka ingest loop: pull a batch of classified posts,
// route each through the service, then publish the updated incident
// snapshot downstream.
type Consumer struct {
	extractor BatchExtractor
	publisher SnapshotPublisher
	service   *Service
	logger    *slog.Logger
	metrics   *observability.Metrics
	batchSize int
}

// NewConsumer creates a Consumer with the given stages and observability.
func NewConsumer(e BatchExtractor, p SnapshotPublisher, svc *Service, logger *slog.Logger, metrics *observability.Metrics, batchSize int) *Consumer {
	return &Consumer{
		extractor: e,
		publisher: p,
		service:   svc,
		logger:    logger,
		metrics:   metrics,
		batchSize: batchSize,
	}
}

// Run executes the consume loop until the context is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.Info("consumer started", "batch_size", c.batchSize)
	c.metrics.ConsumerRunning.Set(1)
	defer c.metrics.ConsumerRunning.Set(0)
	c.service.MarkReady()

	// Exponential backoff: start at 200ms, double each retry, cap at 5s.
	backoff := 200 * time.Millisecond
	maxBackoff := 5 * time.Second

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("consumer stopping", "reason", ctx.Err())
			return nil
		default:
		}

		if !c.processBatch(ctx, &backoff, maxBackoff) {
			return nil
		}
	}
}

// processBatch runs one extract-ingest-publish cycle. Returns false if the
// consumer should stop.
func (c *Consumer) processBatch(ctx context.Context, backoff *time.Duration, maxBackoff time.Duration) bool {
	rawBatch, err := c.extractor.ExtractBatch(ctx, c.batchSize)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		c.logger.Error("extract batch failed", "error", err)
		return c.backoffOrStop(ctx, backoff, maxBackoff)
	}

	if len(rawBatch) == 0 {
		return ctx.Err() == nil
	}
	*backoff = 200 * time.Millisecond

	changed := 0
	for _, raw := range rawBatch {
		var post domain.RawClassifiedPost
		if err := json.Unmarshal(raw.Value, &post); err != nil {
			c.logger.Warn("unparseable post, skipping message",
				"error", err,
				"topic", raw.Topic,
				"partition", raw.Partition,
				"offset", raw.Offset,
			)
			c.metrics.PostsDropped.WithLabelValues(SkipMalformed).Inc()
			c.commitOffset(ctx, raw)
			continue
		}

		result, err := c.service.Ingest(ctx, post)
		if err != nil {
			if ctx.Err() != nil {
				return false
			}
			c.logger.Error("ingest failed", "error", err, "post_id", post.ID)
			return c.backoffOrStop(ctx, backoff, maxBackoff)
		}
		if !result.Skipped {
			changed++
		}
		c.commitOffset(ctx, raw)
	}

	if changed > 0 && c.publisher != nil {
		if err := c.publisher.PublishIncidents(ctx, c.service.Snapshot()); err != nil {
			if ctx.Err() != nil {
				return false
			}
			// Offsets are already committed; the next successful batch
			// publishes a snapshot that supersedes this one anyway.
			c.logger.Error("publish snapshot failed", "error", err)
			return c.backoffOrStop(ctx, backoff, maxBackoff)
		}
		c.metrics.SnapshotsWritten.Inc()
	}
	return true
}

// backoffOrStop checks for context cancellation, sleeps with the current
// backoff, and advances it. Returns false if the consumer should stop.
func (c *Consumer) backoffOrStop(ctx context.Context, backoff *time.Duration, maxBackoff time.Duration) bool {
	if ctx.Err() != nil {
		return false
	}
	if !sleepWithContext(ctx, *backoff) {
		return false
	}
	*backoff = nextBackoff(*backoff, maxBackoff)
	return true
}

// commitOffset commits the message offset if a commit function is available.
func (c *Consumer) commitOffset(ctx context.Context, raw domain.RawEvent) {
	if raw.Commit == nil {
		return
	}
	if err := raw.Commit(ctx); err != nil {
		c.logger.Warn("commit offset failed", "error", err,
			"topic", raw.Topic, "partition", raw.Partition, "offset", raw.Offset)
	}
}

func nextBackoff(current, maxBackoff time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
