package domain

import (
	"fmt"
	"slices"
	"strings"
)

// Merge folds a post into an incident and returns the updated incident.
// Pure: neither input is modified, and the result depends only on the two
// arguments. Field update rules:
//
//   - SourcePosts: post appended, order preserved.
//   - Severity: max of current and post severity.
//   - Centroid: recomputed over all member coordinates (no incremental drift).
//   - Tags: set union with the post's key entities, kept sorted.
//   - IncidentType: replaced only when the post's type differs and its
//     confidence strictly exceeds TypeConfidence. A same-type post with
//     higher confidence raises TypeConfidence, making the type harder to
//     flip by later low-confidence noise.
//   - Confidence: the post's confidence (most recent signal wins; a fresh
//     report must not be diluted by old noise).
//   - Location: replaced only when the post's confidence strictly exceeds
//     the confidence that set the current text.
//   - CreatedAt: never modified.
func Merge(incident Incident, post ClassifiedPost) Incident {
	out := incident
	out.SourcePosts = append(slices.Clone(incident.SourcePosts), post)

	out.Severity = MaxSeverity(incident.Severity, post.Severity)

	coords := make([]Geo, len(out.SourcePosts))
	for n, p := range out.SourcePosts {
		coords[n] = p.Geo
	}
	centroid := Centroid(coords)
	out.Lat = centroid.Lat
	out.Lng = centroid.Lng

	out.Tags = unionTags(incident.Tags, post.KeyEntities)

	switch {
	case post.IncidentType != incident.IncidentType && post.Confidence > incident.TypeConfidence:
		out.IncidentType = post.IncidentType
		out.TypeConfidence = post.Confidence
	case post.IncidentType == incident.IncidentType && post.Confidence > incident.TypeConfidence:
		out.TypeConfidence = post.Confidence
	}

	out.Confidence = post.Confidence

	if post.LocationText != "" && post.Confidence > incident.LocationConfidence {
		out.Location = post.LocationText
		out.LocationConfidence = post.Confidence
	}

	out.CasualtiesMentioned = incident.CasualtiesMentioned || post.CasualtiesMentioned
	out.DamageMentioned = incident.DamageMentioned || post.DamageMentioned
	out.NeedsHelp = incident.NeedsHelp || post.NeedsHelp

	out.Title = fmt.Sprintf("Multiple %s reports in %s", out.IncidentType, out.Location)
	out.Description = fmt.Sprintf("%d reports of %s activity in %s",
		len(out.SourcePosts), strings.ToLower(out.IncidentType), out.Location)

	return out
}

// unionTags merges new entries into an existing sorted tag set, dropping
// empties and duplicates. Sorted output keeps snapshots deterministic.
func unionTags(existing, additions []string) []string {
	out := slices.Clone(existing)
	for _, tag := range additions {
		tag = strings.TrimSpace(tag)
		if tag == "" || slices.Contains(out, tag) {
			continue
		}
		out = append(out, tag)
	}
	slices.Sort(out)
	return out
}
