// Package regen rebuilds the incident set from a full post corpus. A run
// normalizes every raw post, orders them by timestamp, and replays them
// through a fresh store so repeated runs over the same corpus produce
// identical incidents. Callers publish the returned store themselves; a
// failed or cancelled run leaves the live store untouched.
package regen

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/couchcryptid/incident-cluster-service/internal/cluster"
	"github.com/couchcryptid/incident-cluster-service/internal/domain"
	"github.com/couchcryptid/incident-cluster-service/internal/observability"
	"github.com/couchcryptid/incident-cluster-service/internal/store"
)

// Drop reasons recorded in run metadata.
const (
	DropNotDisasterRelated   = "not_disaster_related"
	DropUnresolvableLocation = "unresolvable_location"
	DropMalformed            = "malformed"
	DropDuplicate            = "duplicate"
)

// Metadata summarizes a completed regeneration run.
type Metadata struct {
	RunID                string         `json:"runId"`
	GeneratedAt          string         `json:"generatedAt"`
	TotalPostsConsidered int            `json:"totalPostsConsidered"`
	PostsDropped         map[string]int `json:"postsDropped"`
	IncidentsCreated     int            `json:"incidentsCreated"`
	PostsMerged          int            `json:"postsMerged"`
	ElapsedMs            int64          `json:"elapsedMs"`
	ClusterThresholdKm   float64        `json:"clusterThresholdKm"`
}

// Driver runs batch regenerations. It holds everything a run needs except
// the corpus itself, so one driver serves any number of runs.
type Driver struct {
	geocoder   domain.Geocoder
	typeGroups [][]string
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// NewDriver builds a regeneration driver. The geocoder may be nil when the
// corpus is expected to carry coordinates.
func NewDriver(geocoder domain.Geocoder, typeGroups [][]string, logger *slog.Logger, metrics *observability.Metrics) *Driver {
	return &Driver{
		geocoder:   geocoder,
		typeGroups: typeGroups,
		logger:     logger,
		metrics:    metrics,
	}
}

// Regenerate replays the corpus into a fresh store and returns it with run
// metadata. The live store is never touched; on error or cancellation the
// partial store is discarded and the previous state remains authoritative.
func (d *Driver) Regenerate(ctx context.Context, raws []domain.RawClassifiedPost, thresholdKm float64) (*store.Store, Metadata, error) {
	start := time.Now()
	meta := Metadata{
		RunID:                uuid.NewString(),
		TotalPostsConsidered: len(raws),
		PostsDropped:         map[string]int{},
		ClusterThresholdKm:   thresholdKm,
	}
	logger := d.logger.With("run_id", meta.RunID)
	logger.Info("regeneration started", "posts", len(raws), "threshold_km", thresholdKm)

	posts := make([]domain.ClassifiedPost, 0, len(raws))
	for _, raw := range raws {
		if err := ctx.Err(); err != nil {
			d.recordRun("cancelled", start)
			return nil, Metadata{}, err
		}
		post, err := domain.Normalize(ctx, raw, d.geocoder, logger)
		if err != nil {
			reason, ok := dropReason(err)
			if !ok {
				d.recordRun("cancelled", start)
				return nil, Metadata{}, err
			}
			meta.PostsDropped[reason]++
			logger.Debug("post dropped", "post_id", raw.ID, "reason", reason)
			continue
		}
		posts = append(posts, post)
	}

	// Replay in timestamp order regardless of corpus order. The sort is
	// stable so posts sharing a timestamp keep their corpus order.
	sort.SliceStable(posts, func(i, j int) bool {
		return posts[i].Timestamp.Before(posts[j].Timestamp)
	})

	st := store.New(cluster.New(thresholdKm, d.typeGroups))
	for _, post := range posts {
		if err := ctx.Err(); err != nil {
			d.recordRun("cancelled", start)
			return nil, Metadata{}, err
		}
		_, created, err := st.FindOrCreate(post)
		if err != nil {
			if errors.Is(err, domain.ErrDuplicatePost) {
				meta.PostsDropped[DropDuplicate]++
				continue
			}
			d.recordRun("error", start)
			return nil, Metadata{}, err
		}
		if created {
			meta.IncidentsCreated++
		} else {
			meta.PostsMerged++
		}
	}

	meta.ElapsedMs = time.Since(start).Milliseconds()
	meta.GeneratedAt = domain.Now().UTC().Format(time.RFC3339)
	d.recordRun("success", start)
	logger.Info("regeneration finished",
		"incidents", meta.IncidentsCreated,
		"merged", meta.PostsMerged,
		"dropped", meta.PostsDropped,
		"elapsed_ms", meta.ElapsedMs)
	return st, meta, nil
}

func (d *Driver) recordRun(outcome string, start time.Time) {
	if d.metrics == nil {
		return
	}
	d.metrics.RegenerationRuns.WithLabelValues(outcome).Inc()
	d.metrics.RegenerationDuration.Observe(time.Since(start).Seconds())
}

// dropReason maps a normalization error to its metadata key. Errors that do
// not correspond to a drop (such as context cancellation) return false.
func dropReason(err error) (string, bool) {
	switch {
	case errors.Is(err, domain.ErrNotDisasterRelated):
		return DropNotDisasterRelated, true
	case errors.Is(err, domain.ErrUnresolvableLocation):
		return DropUnresolvableLocation, true
	case errors.Is(err, domain.ErrMalformedPost):
		return DropMalformed, true
	default:
		return "", false
	}
}
