// Package ingest wires normalization, clustering, and the store behind a
// single service used by both the Kafka consumer and the HTTP API.
package ingest

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/incident-cluster-service/internal/domain"
	"github.com/couchcryptid/incident-cluster-service/internal/observability"
	"github.com/couchcryptid/incident-cluster-service/internal/regen"
	"github.com/couchcryptid/incident-cluster-service/internal/store"
)

// Skip reasons reported in ingest results.
const (
	SkipNotDisasterRelated   = "not_disaster_related"
	SkipUnresolvableLocation = "unresolvable_location"
	SkipMalformed            = "malformed"
	SkipDuplicate            = "duplicate"
)

// ErrRegenerationSuperseded reports that a newer regeneration started while
// this one was still running. The newer run's store is the one published.
var ErrRegenerationSuperseded = errors.New("regeneration superseded by a newer run")

// Result reports what happened to a single ingested post.
type Result struct {
	Skipped         bool    `json:"skipped"`
	SkipReason      string  `json:"skipReason,omitempty"`
	IncidentCreated bool    `json:"incidentCreated"`
	IncidentID      string  `json:"incidentId,omitempty"`
	Confidence      float64 `json:"confidence,omitempty"`
}

// Service is the ingestion facade. All reads and writes go through the
// store handle so a regeneration can swap the store underneath without
// interrupting readers.
type Service struct {
	handle   *store.Handle
	geocoder domain.Geocoder
	driver   *regen.Driver
	logger   *slog.Logger
	metrics  *observability.Metrics

	regenMu     sync.Mutex
	cancelRegen context.CancelFunc
	regenGen    uint64

	ready atomic.Bool
}

// New builds the ingestion service around an already-published store handle.
func New(handle *store.Handle, geocoder domain.Geocoder, driver *regen.Driver, logger *slog.Logger, metrics *observability.Metrics) *Service {
	return &Service{
		handle:   handle,
		geocoder: geocoder,
		driver:   driver,
		logger:   logger,
		metrics:  metrics,
	}
}

// MarkReady flips the readiness probe once the consumer loop is running.
func (s *Service) MarkReady() {
	s.ready.Store(true)
}

// CheckReadiness reports whether the service is accepting traffic.
func (s *Service) CheckReadiness(_ context.Context) error {
	if !s.ready.Load() {
		return errors.New("consumer not running")
	}
	return nil
}

// Ingest normalizes one raw classified post and routes it into the live
// store. Posts the normalizer rejects come back as a skipped Result, not an
// error; errors are reserved for faults the caller should retry or abort on.
func (s *Service) Ingest(ctx context.Context, raw domain.RawClassifiedPost) (Result, error) {
	s.metrics.PostsConsumed.Inc()

	post, err := domain.Normalize(ctx, raw, s.geocoder, s.logger)
	if err != nil {
		reason, ok := skipReason(err)
		if !ok {
			return Result{}, err
		}
		s.metrics.PostsDropped.WithLabelValues(reason).Inc()
		s.logger.Debug("post skipped", "post_id", raw.ID, "reason", reason)
		return Result{Skipped: true, SkipReason: reason}, nil
	}

	start := time.Now()
	st := s.handle.Current()
	incident, created, err := st.FindOrCreate(post)
	s.metrics.MatchDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		if errors.Is(err, domain.ErrDuplicatePost) {
			s.metrics.PostsDropped.WithLabelValues(SkipDuplicate).Inc()
			return Result{Skipped: true, SkipReason: SkipDuplicate, IncidentID: incident.ID}, nil
		}
		return Result{}, err
	}

	outcome := "merged"
	if created {
		outcome = "created"
	}
	s.metrics.PostsIngested.WithLabelValues(outcome).Inc()
	s.updateActiveGauge(st)
	s.logger.Info("post ingested",
		"post_id", post.ExternalID,
		"incident_id", incident.ID,
		"outcome", outcome,
		"type", incident.IncidentType,
		"severity", incident.Severity)

	return Result{
		IncidentCreated: created,
		IncidentID:      incident.ID,
		Confidence:      incident.Confidence,
	}, nil
}

// AddPostToIncident attaches a post to a specific incident, bypassing the
// distance matcher. Used by the manual-assignment API.
func (s *Service) AddPostToIncident(ctx context.Context, id string, raw domain.RawClassifiedPost) (domain.Incident, error) {
	post, err := domain.Normalize(ctx, raw, s.geocoder, s.logger)
	if err != nil {
		return domain.Incident{}, err
	}
	st := s.handle.Current()
	incident, err := st.AddPost(id, post)
	if err != nil {
		return domain.Incident{}, err
	}
	s.updateActiveGauge(st)
	return incident, nil
}

// GetIncident returns one incident by ID.
func (s *Service) GetIncident(id string) (domain.Incident, error) {
	return s.handle.Current().Get(id)
}

// ListIncidents returns incidents in creation order. With activeOnly set,
// resolved incidents are filtered out. A limit of 0 means no limit.
func (s *Service) ListIncidents(activeOnly bool, limit int) []domain.Incident {
	st := s.handle.Current()
	var incidents []domain.Incident
	if activeOnly {
		incidents = st.ListActive()
	} else {
		incidents = st.List()
	}
	if limit > 0 && len(incidents) > limit {
		incidents = incidents[:limit]
	}
	return incidents
}

// SetIncidentStatus transitions an incident between active and resolved.
func (s *Service) SetIncidentStatus(id string, status domain.Status) (domain.Incident, error) {
	st := s.handle.Current()
	incident, err := st.SetStatus(id, status)
	if err != nil {
		return domain.Incident{}, err
	}
	s.updateActiveGauge(st)
	return incident, nil
}

// Stats returns aggregate counts over the live store.
func (s *Service) Stats() store.Stats {
	return s.handle.Current().Stats()
}

// Snapshot returns the full incident set with generation metadata.
func (s *Service) Snapshot() store.Snapshot {
	return s.handle.Current().Snapshot()
}

// ThresholdKm reports the live store's clustering threshold.
func (s *Service) ThresholdKm() float64 {
	return s.handle.Current().ThresholdKm()
}

// RegenerateFromCorpus rebuilds the store from a complete corpus and, on
// success, publishes the replacement. Starting a new run cancels any run
// still in flight; a cancelled or failed run never publishes.
func (s *Service) RegenerateFromCorpus(ctx context.Context, raws []domain.RawClassifiedPost, thresholdKm float64) (regen.Metadata, error) {
	s.regenMu.Lock()
	if s.cancelRegen != nil {
		s.cancelRegen()
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRegen = cancel
	s.regenGen++
	gen := s.regenGen
	s.regenMu.Unlock()

	// Release this run's context unless a newer run has already taken over
	// the cancel slot.
	defer func() {
		s.regenMu.Lock()
		if s.regenGen == gen {
			s.cancelRegen = nil
		}
		s.regenMu.Unlock()
		cancel()
	}()

	st, meta, err := s.driver.Regenerate(runCtx, raws, thresholdKm)
	if err != nil {
		// The run context is cancelled only by a newer run taking over; the
		// caller's own cancellation arrives through ctx.
		if errors.Is(err, context.Canceled) && ctx.Err() == nil {
			return regen.Metadata{}, ErrRegenerationSuperseded
		}
		return regen.Metadata{}, err
	}

	// Publish under the same lock that advances the generation. A run that
	// finished after a newer one took over must not overwrite its store.
	s.regenMu.Lock()
	if s.regenGen != gen {
		s.regenMu.Unlock()
		return regen.Metadata{}, ErrRegenerationSuperseded
	}
	s.handle.Publish(st)
	s.regenMu.Unlock()

	s.updateActiveGauge(st)
	return meta, nil
}

func (s *Service) updateActiveGauge(st *store.Store) {
	s.metrics.ActiveIncidents.Set(float64(len(st.ListActive())))
}

func skipReason(err error) (string, bool) {
	switch {
	case errors.Is(err, domain.ErrNotDisasterRelated):
		return SkipNotDisasterRelated, true
	case errors.Is(err, domain.ErrUnresolvableLocation):
		return SkipUnresolvableLocation, true
	case errors.Is(err, domain.ErrMalformedPost):
		return SkipMalformed, true
	default:
		return "", false
	}
}
