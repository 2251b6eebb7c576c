package domain

import "errors"

// Classification and resolution outcomes. ErrNotDisasterRelated and
// ErrUnresolvableLocation mark posts that are skipped, not failures of the
// service; callers distinguish them with errors.Is.
var (
	// ErrNotDisasterRelated marks a post the upstream classifiers rejected.
	// Callers skip it silently.
	ErrNotDisasterRelated = errors.New("post is not disaster related")

	// ErrUnresolvableLocation marks a post with no explicit coordinates,
	// no extractable coordinates, and no geocoder result. Skipped and counted.
	ErrUnresolvableLocation = errors.New("location cannot be resolved to coordinates")

	// ErrInvalidSeverity marks an unrecognized severity string. The post is
	// never dropped for this; policy demotes it to SeverityLow.
	ErrInvalidSeverity = errors.New("unrecognized severity")

	// ErrMalformedPost marks classifier output that cannot be interpreted at
	// all (e.g. unparseable timestamp, missing external ID).
	ErrMalformedPost = errors.New("malformed classifier output")

	// ErrIncidentNotFound is returned by store lookups for unknown IDs.
	ErrIncidentNotFound = errors.New("incident not found")

	// ErrDuplicatePost marks a post whose external ID already belongs to an
	// incident. A post merges into at most one incident.
	ErrDuplicatePost = errors.New("post already belongs to an incident")

	// ErrInvalidStatus marks a status string outside {active, resolved}.
	ErrInvalidStatus = errors.New("invalid incident status")
)
