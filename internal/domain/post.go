package domain

import (
	"fmt"
	"strings"
	"time"
)

// Severity is the classifier's four-level impact scale.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

var severityRank = map[Severity]int{
	SeverityLow:      1,
	SeverityMedium:   2,
	SeverityHigh:     3,
	SeverityCritical: 4,
}

// Rank returns the ordering position of the severity, low=1 .. critical=4.
// Unknown severities rank 0, below low.
func (s Severity) Rank() int {
	return severityRank[s]
}

// ParseSeverity validates a severity string case-insensitively. Unrecognized
// values return SeverityLow together with ErrInvalidSeverity: under-classified
// posts are demoted, never dropped.
func ParseSeverity(s string) (Severity, error) {
	sev := Severity(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := severityRank[sev]; !ok {
		return SeverityLow, fmt.Errorf("%w: %q", ErrInvalidSeverity, s)
	}
	return sev, nil
}

// MaxSeverity returns the higher-ranked of a and b.
func MaxSeverity(a, b Severity) Severity {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// ClassifiedPost is the normalized, clustering-ready form of one classifier
// result. Immutable once produced by Normalize.
type ClassifiedPost struct {
	ExternalID   string    `json:"external_id"`
	Text         string    `json:"text"`
	Author       string    `json:"author"`
	Timestamp    time.Time `json:"timestamp"`
	IncidentType string    `json:"incident_type"`
	Severity     Severity  `json:"severity"`
	LocationText string    `json:"location_text"`
	Geo          Geo       `json:"geo"`
	KeyEntities  []string  `json:"key_entities,omitempty"`
	KeyDetails   string    `json:"key_details,omitempty"`
	Confidence   float64   `json:"confidence"`

	// Situation flags extracted by the LLM pass.
	CasualtiesMentioned bool `json:"casualties_mentioned,omitempty"`
	DamageMentioned     bool `json:"damage_mentioned,omitempty"`
	NeedsHelp           bool `json:"needs_help,omitempty"`
}

// RawClassifiedPost mirrors the JSON the classification pipeline emits for a
// single post: the original post fields plus the ML and LLM verdict blocks.
type RawClassifiedPost struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	Author    Author `json:"author"`
	CreatedAt string `json:"createdAt"`
	Keyword   string `json:"keyword,omitempty"`

	// Explicit coordinates, present when the collector already resolved them.
	Lat *float64 `json:"lat,omitempty"`
	Lng *float64 `json:"lng,omitempty"`

	ML  MLClassification `json:"ml_classification"`
	LLM LLMExtraction    `json:"llm_extraction"`
}

// Author identifies the posting account.
type Author struct {
	Handle string `json:"handle"`
}

// MLClassification is the fast model's verdict.
type MLClassification struct {
	IsDisaster   bool    `json:"is_disaster"`
	Confidence   float64 `json:"confidence"`
	DisasterType string  `json:"disaster_type,omitempty"`
}

// LLMExtraction is the LLM pass's structured extraction.
type LLMExtraction struct {
	LLMClassification   bool     `json:"llm_classification"`
	DisasterType        string   `json:"disaster_type,omitempty"`
	Severity            string   `json:"severity,omitempty"`
	Location            string   `json:"location,omitempty"`
	KeyDetails          string   `json:"key_details,omitempty"`
	KeyEntities         []string `json:"key_entities,omitempty"`
	CasualtiesMentioned bool     `json:"casualties_mentioned,omitempty"`
	DamageMentioned     bool     `json:"damage_mentioned,omitempty"`
	NeedsHelp           bool     `json:"needs_help,omitempty"`
}

// DisasterRelated reports whether both classifier passes agreed the post
// describes a real disaster. Posts failing either verdict are skipped.
func (r RawClassifiedPost) DisasterRelated() bool {
	return r.ML.IsDisaster && r.LLM.LLMClassification
}
