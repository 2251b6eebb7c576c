// Package domain models classified social-media posts and the disaster
// incidents they aggregate into.
//
// # Data Source
//
// Posts originate from an upstream classification pipeline that labels raw
// social-media posts (Bluesky firehose collection) with a disaster verdict,
// a disaster type, a severity, a free-text location, and a confidence score.
// The pipeline runs two classifiers, a fast ML model and an LLM extraction
// pass, and a post is considered disaster-related only when both agree.
// This service consumes the pipeline's JSON output; it never classifies.
//
// # Classifier Data Conventions
//
// Severity:
//
//	One of "low", "medium", "high", "critical". Anything else is an upstream
//	bug; such posts are kept and demoted to "low" rather than dropped, because
//	under-classification must not lose data.
//
// Location:
//
//	Free text, sometimes with embedded coordinates:
//	  "Tokyo, Japan (35.6762, 139.6503)"   parenthesized lat,lng pair
//	  "54.51N 160.13W"                     directional degrees
//	  "1.8499, 126.9943"                   bare decimal pair
//	Posts without extractable coordinates fall back to the geocoder. Posts
//	whose location cannot be resolved at all are ineligible for clustering
//	and are dropped with a recorded reason.
//
// Disaster type:
//
//	Upstream emits lowercase free-form types ("hurricane", "typhoon",
//	"tsunami", ...). These are folded into the canonical taxonomy by
//	[NormalizeIncidentType] so that e.g. hurricane and typhoon reports can
//	land in the same incident.
//
// # Incidents
//
// An Incident is the deduplicated aggregate of all posts reporting the same
// real-world event: same (or compatible) type within the cluster distance
// threshold. Aggregate fields obey strict invariants: severity is the max
// over member posts, the coordinate is the arithmetic centroid recomputed on
// every merge (never incrementally drifted), and the incident type can only
// be changed by a post whose confidence strictly exceeds the confidence that
// established the current type.
//
// # ID Generation
//
// Incident IDs are deterministic SHA-256 hashes of the founding post's
// type|externalID|location. Replaying the same corpus in the same order
// therefore reproduces the same IDs, which keeps batch regeneration
// idempotent and makes snapshots diffable. See [newIncidentID].
package domain
