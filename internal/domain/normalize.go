package domain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"
)

var (
	// parenCoordsRe matches a parenthesized "lat, lng" pair embedded in a
	// location string, e.g. "Tokyo, Japan (35.6762, 139.6503)".
	parenCoordsRe = regexp.MustCompile(`\((-?\d+\.?\d*),\s*(-?\d+\.?\d*)\)`)

	// directionalCoordsRe matches degree pairs with N/S/E/W suffixes,
	// e.g. "54.51N 160.13W" or "54.51 N, 160.13 W".
	directionalCoordsRe = regexp.MustCompile(`(\d{1,2}\.\d+)\s*°?\s*([NSns])[,;\s]+(\d{1,3}\.\d+)\s*°?\s*([EeWw])`)

	// barePairRe matches a plain decimal pair, e.g. "1.849900, 126.994300".
	// Checked last; it is the loosest pattern.
	barePairRe = regexp.MustCompile(`(-?\d{1,3}\.\d+)[,\s]+(-?\d{1,3}\.\d+)`)
)

// incidentTypeTable folds the classifier's lowercase free-form disaster types
// into the canonical taxonomy. Meteorologically related types map to one
// canonical name so that e.g. hurricane and typhoon reports of the same storm
// can cluster together.
var incidentTypeTable = map[string]string{
	"earthquake": "Earthquake",
	"flood":      "Flood",
	"tsunami":    "Flood",
	"hurricane":  "Storm",
	"storm":      "Storm",
	"typhoon":    "Storm",
	"cyclone":    "Storm",
	"wildfire":   "Wildfire",
	"tornado":    "Tornado",
	"avalanche":  "Avalanche",
	"landslide":  "Landslide",
	"volcano":    "Volcano",
	"volcanic":   "Volcano",
	"drought":    "Drought",
	"heatwave":   "Heatwave",
	"coldwave":   "Coldwave",
}

// NormalizeIncidentType maps a raw classifier disaster type onto the
// canonical taxonomy. Unrecognized types fall back to "Storm", the most
// common catch-all in upstream output.
func NormalizeIncidentType(raw string) string {
	if t, ok := incidentTypeTable[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return t
	}
	return "Storm"
}

// ExtractCoordinates scans a free-text string for an embedded coordinate
// pair. Patterns are tried from most to least specific: parenthesized pair,
// directional degrees, bare decimal pair. Out-of-range values and the (0,0)
// no-coordinates sentinel are rejected.
func ExtractCoordinates(s string) (Geo, bool) {
	if m := parenCoordsRe.FindStringSubmatch(s); m != nil {
		g := Geo{Lat: parseFloat(m[1]), Lng: parseFloat(m[2])}
		if g.Valid() && !g.IsZero() {
			return g, true
		}
	}

	if m := directionalCoordsRe.FindStringSubmatch(s); m != nil {
		g := Geo{Lat: parseFloat(m[1]), Lng: parseFloat(m[3])}
		if strings.EqualFold(m[2], "s") {
			g.Lat = -g.Lat
		}
		if strings.EqualFold(m[4], "w") {
			g.Lng = -g.Lng
		}
		if g.Valid() && !g.IsZero() {
			return g, true
		}
	}

	if m := barePairRe.FindStringSubmatch(s); m != nil {
		g := Geo{Lat: parseFloat(m[1]), Lng: parseFloat(m[2])}
		if g.Valid() && !g.IsZero() {
			return g, true
		}
	}

	return Geo{}, false
}

func parseFloat(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}

// Normalize validates raw classifier output and derives a clustering-ready
// ClassifiedPost.
//
// Returns ErrNotDisasterRelated when either classifier pass rejected the
// post (callers skip silently), ErrMalformedPost when the output cannot be
// interpreted, and ErrUnresolvableLocation when no coordinate source
// (explicit fields, text extraction, location-string extraction, geocoder)
// yields a position.
//
// An unrecognized severity demotes the post to low and is logged, never
// returned as an error; an empty severity means the classifier omitted the
// field and defaults to medium. Geocoder failures degrade to
// ErrUnresolvableLocation rather than aborting ingestion; the caller bounds
// the call with its context deadline.
func Normalize(ctx context.Context, raw RawClassifiedPost, geocoder Geocoder, logger *slog.Logger) (ClassifiedPost, error) {
	if !raw.DisasterRelated() {
		return ClassifiedPost{}, ErrNotDisasterRelated
	}
	if raw.ID == "" {
		return ClassifiedPost{}, fmt.Errorf("%w: missing post id", ErrMalformedPost)
	}

	timestamp, err := time.Parse(time.RFC3339, raw.CreatedAt)
	if err != nil {
		return ClassifiedPost{}, fmt.Errorf("%w: createdAt %q: %v", ErrMalformedPost, raw.CreatedAt, err)
	}

	severity := SeverityMedium
	if raw.LLM.Severity != "" {
		var sevErr error
		severity, sevErr = ParseSeverity(raw.LLM.Severity)
		if sevErr != nil {
			logger.Warn("unrecognized severity, demoting to low",
				"post_id", raw.ID,
				"severity", raw.LLM.Severity,
			)
		}
	}

	locationText := strings.TrimSpace(raw.LLM.Location)
	geo, resolved := resolveCoordinates(ctx, raw, locationText, geocoder, logger)
	if !resolved {
		return ClassifiedPost{}, fmt.Errorf("%w: %q", ErrUnresolvableLocation, locationText)
	}

	incidentType := raw.LLM.DisasterType
	if incidentType == "" {
		incidentType = raw.ML.DisasterType
	}

	entities := raw.LLM.KeyEntities
	if raw.Keyword != "" {
		entities = append(slices.Clone(entities), raw.Keyword)
	}

	return ClassifiedPost{
		ExternalID:          raw.ID,
		Text:                raw.Text,
		Author:              raw.Author.Handle,
		Timestamp:           timestamp,
		IncidentType:        NormalizeIncidentType(incidentType),
		Severity:            severity,
		LocationText:        displayLocation(locationText),
		Geo:                 geo,
		KeyEntities:         entities,
		KeyDetails:          raw.LLM.KeyDetails,
		Confidence:          raw.ML.Confidence,
		CasualtiesMentioned: raw.LLM.CasualtiesMentioned,
		DamageMentioned:     raw.LLM.DamageMentioned,
		NeedsHelp:           raw.LLM.NeedsHelp,
	}, nil
}

// resolveCoordinates tries each coordinate source in decreasing order of
// trust: explicit fields, post text, location string, geocoder.
func resolveCoordinates(ctx context.Context, raw RawClassifiedPost, locationText string, geocoder Geocoder, logger *slog.Logger) (Geo, bool) {
	if raw.Lat != nil && raw.Lng != nil {
		// (0,0) is the no-coordinates sentinel, not a real position.
		g := Geo{Lat: *raw.Lat, Lng: *raw.Lng}
		if g.Valid() && !g.IsZero() {
			return g, true
		}
		logger.Warn("explicit coordinates unusable, falling back",
			"post_id", raw.ID, "lat", *raw.Lat, "lng", *raw.Lng)
	}

	if g, ok := ExtractCoordinates(raw.Text); ok {
		return g, true
	}
	if locationText != "" {
		if g, ok := ExtractCoordinates(locationText); ok {
			return g, true
		}
	}

	if geocoder == nil || locationText == "" {
		return Geo{}, false
	}
	result, err := geocoder.Geocode(ctx, locationText)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			logger.Warn("geocoding failed",
				"post_id", raw.ID,
				"location", locationText,
				"error", err,
			)
		}
		return Geo{}, false
	}
	if result.Geo.IsZero() {
		return Geo{}, false
	}
	return result.Geo, true
}

// displayLocation strips a trailing embedded coordinate pair from a location
// string: "Tokyo, Japan (35.67, 139.65)" -> "Tokyo, Japan".
func displayLocation(location string) string {
	if i := strings.Index(location, "("); i >= 0 {
		return strings.TrimSpace(location[:i])
	}
	return location
}
