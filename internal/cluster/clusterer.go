// Package cluster implements the incident matching algorithm: a greedy
// nearest-match over active incidents, O(active incidents) per post. Full
// re-clustering from scratch is reserved for batch regeneration, which
// replays posts through the same matcher against a fresh store.
package cluster

import (
	"time"

	"github.com/couchcryptid/incident-cluster-service/internal/domain"
)

// DefaultThresholdKm is the default maximum great-circle distance within
// which two posts of compatible type are considered the same event.
const DefaultThresholdKm = 50.0

// Clusterer decides which existing incident, if any, a classified post
// belongs to. Stateless and safe for concurrent use once constructed.
type Clusterer struct {
	thresholdKm float64
	compat      map[string]map[string]bool
}

// New creates a Clusterer with the given distance threshold and optional
// type compatibility groups. Each group lists canonical incident types that
// may merge with one another (e.g. {"Flood", "Flash Flood"}); with no groups,
// only exact type matches cluster. A threshold <= 0 disables clustering:
// every post founds its own incident.
func New(thresholdKm float64, typeGroups [][]string) *Clusterer {
	compat := make(map[string]map[string]bool)
	for _, group := range typeGroups {
		for _, a := range group {
			if compat[a] == nil {
				compat[a] = make(map[string]bool)
			}
			for _, b := range group {
				compat[a][b] = true
			}
		}
	}
	return &Clusterer{thresholdKm: thresholdKm, compat: compat}
}

// ThresholdKm returns the configured cluster distance threshold.
func (c *Clusterer) ThresholdKm() float64 {
	return c.thresholdKm
}

// Match returns the ID of the best existing incident for the post, or
// ok=false when no incident qualifies and the caller should create one.
//
// A candidate must be active, within thresholdKm of the post, and of a
// compatible type. Among candidates the smallest distance wins; an exact
// distance tie goes to the incident with the most recent source post, since
// the freshest incident is the one most likely still unfolding.
func (c *Clusterer) Match(post domain.ClassifiedPost, incidents []domain.Incident) (string, bool) {
	if c.thresholdKm <= 0 {
		return "", false
	}

	var (
		bestID   string
		bestDist float64
		bestLast time.Time
		found    bool
	)

	for _, incident := range incidents {
		if incident.Status != domain.StatusActive {
			continue
		}
		if !c.typesCompatible(post.IncidentType, incident.IncidentType) {
			continue
		}
		dist := domain.DistanceKm(post.Geo, incident.Coord())
		if dist > c.thresholdKm {
			continue
		}

		last := incident.LastPostTime()
		if !found || dist < bestDist || (dist == bestDist && last.After(bestLast)) {
			bestID = incident.ID
			bestDist = dist
			bestLast = last
			found = true
		}
	}

	return bestID, found
}

func (c *Clusterer) typesCompatible(a, b string) bool {
	if a == b {
		return true
	}
	return c.compat[a][b]
}
