// Package store owns the authoritative incident set and post membership.
// A single mutex serializes every mutation so that the Clusterer's candidate
// scan and the resulting create-or-merge always execute as one atomic unit:
// two concurrent posts that should land in the same incident can never race
// into two incidents.
package store

import (
	"slices"
	"sync"
	"time"

	"github.com/couchcryptid/incident-cluster-service/internal/cluster"
	"github.com/couchcryptid/incident-cluster-service/internal/domain"
)

// Store is the in-memory authoritative incident collection.
type Store struct {
	clusterer *cluster.Clusterer

	mu        sync.Mutex
	incidents map[string]domain.Incident
	order     []string          // incident IDs in creation order
	postOwner map[string]string // post external ID -> incident ID
}

// New creates an empty store that matches posts with the given clusterer.
func New(clusterer *cluster.Clusterer) *Store {
	return &Store{
		clusterer: clusterer,
		incidents: make(map[string]domain.Incident),
		postOwner: make(map[string]string),
	}
}

// ThresholdKm returns the cluster threshold this store matches with.
func (s *Store) ThresholdKm() float64 {
	return s.clusterer.ThresholdKm()
}

// FindOrCreate runs the matching algorithm for the post and either merges it
// into the best existing incident or creates a new one. The returned bool is
// true when a new incident was created.
//
// Returns the owning incident together with domain.ErrDuplicatePost when the
// post's external ID was already merged; callers treat that as a skip, not a
// failure, which makes redelivered messages idempotent.
func (s *Store) FindOrCreate(post domain.ClassifiedPost) (domain.Incident, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ownerID, ok := s.postOwner[post.ExternalID]; ok {
		return copyIncident(s.incidents[ownerID]), false, domain.ErrDuplicatePost
	}

	if id, ok := s.clusterer.Match(post, s.orderedLocked()); ok {
		merged := domain.Merge(s.incidents[id], post)
		s.incidents[id] = merged
		s.postOwner[post.ExternalID] = id
		return copyIncident(merged), false, nil
	}

	incident := domain.NewIncident(post)
	s.incidents[incident.ID] = incident
	s.order = append(s.order, incident.ID)
	s.postOwner[post.ExternalID] = incident.ID
	return copyIncident(incident), true, nil
}

// AddPost merges a post into a specific incident, bypassing the matching
// step. Used for externally confirmed associations.
func (s *Store) AddPost(id string, post domain.ClassifiedPost) (domain.Incident, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	incident, ok := s.incidents[id]
	if !ok {
		return domain.Incident{}, domain.ErrIncidentNotFound
	}
	if _, taken := s.postOwner[post.ExternalID]; taken {
		return domain.Incident{}, domain.ErrDuplicatePost
	}

	merged := domain.Merge(incident, post)
	s.incidents[id] = merged
	s.postOwner[post.ExternalID] = id
	return copyIncident(merged), nil
}

// Get returns the incident with the given ID.
func (s *Store) Get(id string) (domain.Incident, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	incident, ok := s.incidents[id]
	if !ok {
		return domain.Incident{}, domain.ErrIncidentNotFound
	}
	return copyIncident(incident), nil
}

// List returns all incidents in creation order.
func (s *Store) List() []domain.Incident {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.orderedLocked()
}

// ListActive returns incidents with status active, in creation order.
func (s *Store) ListActive() []domain.Incident {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.Incident, 0, len(s.order))
	for _, id := range s.order {
		if incident := s.incidents[id]; incident.Status == domain.StatusActive {
			out = append(out, copyIncident(incident))
		}
	}
	return out
}

// SetStatus transitions an incident's lifecycle state and returns the
// updated incident.
func (s *Store) SetStatus(id string, status domain.Status) (domain.Incident, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	incident, ok := s.incidents[id]
	if !ok {
		return domain.Incident{}, domain.ErrIncidentNotFound
	}
	incident.Status = status
	s.incidents[id] = incident
	return copyIncident(incident), nil
}

// Len returns the number of incidents in the store.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order)
}

// Stats summarizes the store for the stats endpoint.
type Stats struct {
	TotalIncidents  int            `json:"total_incidents"`
	ActiveIncidents int            `json:"active_incidents"`
	TotalPosts      int            `json:"total_posts"`
	ByType          map[string]int `json:"by_type"`
	BySeverity      map[string]int `json:"by_severity"`
}

// Stats computes aggregate counts over all incidents.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := Stats{
		TotalIncidents: len(s.order),
		ByType:         make(map[string]int),
		BySeverity:     make(map[string]int),
	}
	for _, incident := range s.incidents {
		if incident.Status == domain.StatusActive {
			stats.ActiveIncidents++
		}
		stats.TotalPosts += len(incident.SourcePosts)
		stats.ByType[incident.IncidentType]++
		stats.BySeverity[string(incident.Severity)]++
	}
	return stats
}

// SnapshotMetadata describes how and when a snapshot was produced.
type SnapshotMetadata struct {
	GeneratedAt        string  `json:"generated_at"`
	ClusterThresholdKm float64 `json:"cluster_threshold_km"`
}

// Snapshot is the persisted-state document at the storage boundary: every
// incident in creation order plus generation metadata.
type Snapshot struct {
	Incidents []domain.Incident `json:"incidents"`
	Metadata  SnapshotMetadata  `json:"metadata"`
}

// Snapshot captures the current incident set for serialization.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Snapshot{
		Incidents: s.orderedLocked(),
		Metadata: SnapshotMetadata{
			GeneratedAt:        domain.Now().UTC().Format(time.RFC3339),
			ClusterThresholdKm: s.clusterer.ThresholdKm(),
		},
	}
}

// orderedLocked returns copies of all incidents in creation order.
// Caller must hold s.mu.
func (s *Store) orderedLocked() []domain.Incident {
	out := make([]domain.Incident, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, copyIncident(s.incidents[id]))
	}
	return out
}

// copyIncident clones the incident's slices so callers cannot alias the
// store's internal state. Source posts themselves are immutable and shared.
func copyIncident(incident domain.Incident) domain.Incident {
	incident.Tags = slices.Clone(incident.Tags)
	incident.SourcePosts = slices.Clone(incident.SourcePosts)
	return incident
}
