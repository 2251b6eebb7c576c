package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Status is an incident's lifecycle state. Incidents are never deleted;
// they move to resolved by an explicit external action.
type Status string

const (
	StatusActive   Status = "active"
	StatusResolved Status = "resolved"
)

// ParseStatus validates a status string.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusActive, StatusResolved:
		return Status(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
	}
}

// Incident is the mutable aggregate representing one real-world event, built
// from one or more classified posts. All mutation goes through Merge; fields
// maintain these invariants:
//
//   - Severity equals the maximum severity over SourcePosts.
//   - Geo equals the arithmetic centroid of all member coordinates,
//     recomputed in full on every merge.
//   - IncidentType changes only when a merged post's type differs AND its
//     confidence strictly exceeds TypeConfidence.
//   - CreatedAt is the first member post's timestamp and never changes.
//   - SourcePosts is append-only, in insertion order.
type Incident struct {
	ID           string   `json:"id"`
	Title        string   `json:"title,omitempty"`
	Description  string   `json:"description,omitempty"`
	IncidentType string   `json:"incident_type"`
	Severity     Severity `json:"severity"`
	Location     string   `json:"location"`
	Lat          float64  `json:"lat"`
	Lng          float64  `json:"lng"`
	Status       Status   `json:"status"`
	Tags         []string `json:"tags"`
	Confidence   float64  `json:"confidence"`

	// TypeConfidence is the confidence of the post that established (or last
	// reinforced) IncidentType; LocationConfidence likewise for Location.
	// Persisted so that a reloaded snapshot merges exactly like the live one.
	TypeConfidence     float64 `json:"type_confidence"`
	LocationConfidence float64 `json:"location_confidence"`

	CasualtiesMentioned bool `json:"casualties_mentioned"`
	DamageMentioned     bool `json:"damage_mentioned"`
	NeedsHelp           bool `json:"needs_help"`

	CreatedAt   time.Time        `json:"created_at"`
	SourcePosts []ClassifiedPost `json:"source_posts"`
}

// Coord returns the incident centroid as a Geo.
func (i Incident) Coord() Geo {
	return Geo{Lat: i.Lat, Lng: i.Lng}
}

// LastPostTime returns the timestamp of the most recently appended source
// post, or the zero time for an (invalid) empty incident.
func (i Incident) LastPostTime() time.Time {
	if len(i.SourcePosts) == 0 {
		return time.Time{}
	}
	return i.SourcePosts[len(i.SourcePosts)-1].Timestamp
}

// NewIncident constructs an incident from its founding post. The ID is
// derived deterministically from the post so regeneration reproduces it.
func NewIncident(post ClassifiedPost) Incident {
	return Incident{
		ID:                  newIncidentID(post.IncidentType, post.ExternalID, post.LocationText),
		Title:               incidentTitle(post),
		Description:         incidentDescription(post),
		IncidentType:        post.IncidentType,
		Severity:            post.Severity,
		Location:            post.LocationText,
		Lat:                 post.Geo.Lat,
		Lng:                 post.Geo.Lng,
		Status:              StatusActive,
		Tags:                unionTags(nil, post.KeyEntities),
		Confidence:          post.Confidence,
		TypeConfidence:      post.Confidence,
		LocationConfidence:  post.Confidence,
		CasualtiesMentioned: post.CasualtiesMentioned,
		DamageMentioned:     post.DamageMentioned,
		NeedsHelp:           post.NeedsHelp,
		CreatedAt:           post.Timestamp,
		SourcePosts:         []ClassifiedPost{post},
	}
}

// newIncidentID produces a deterministic short ID from the founding post's
// key fields. Deterministic IDs keep batch regeneration idempotent and make
// incident snapshots diffable across runs.
func newIncidentID(incidentType, externalID, location string) string {
	input := fmt.Sprintf("%s|%s|%s", incidentType, externalID, location)
	hash := sha256.Sum256([]byte(input))
	return "inc-" + hex.EncodeToString(hash[:6])
}

// incidentTitle derives a display title from the LLM key details, falling
// back to a snippet of the post text.
func incidentTitle(post ClassifiedPost) string {
	if post.KeyDetails != "" {
		return truncate(post.KeyDetails, 80)
	}
	return truncate(post.Text, 100)
}

func incidentDescription(post ClassifiedPost) string {
	if post.KeyDetails != "" {
		return post.KeyDetails
	}
	return post.Text
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}
