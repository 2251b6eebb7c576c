// Command genmock generates a mock classified-post corpus for local runs and
// test fixtures. Posts are scattered around a handful of disaster scenes with
// a mix of clean, noisy, and rejectable records, so the corpus exercises the
// same paths real classifier output does.
//
// Usage:
//
//	go run ./cmd/genmock -out data/mock/classified_posts.json -posts 200 -seed 42
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"time"
)

var baseTime = time.Date(2024, time.September, 12, 8, 0, 0, 0, time.UTC)

// scene is a disaster epicenter that generated posts cluster around.
type scene struct {
	name         string
	disasterType string
	lat, lng     float64
	severity     string
}

var scenes = []scene{
	{name: "Tampa, Florida", disasterType: "hurricane", lat: 27.9506, lng: -82.4572, severity: "critical"},
	{name: "Valencia, Spain", disasterType: "flood", lat: 39.4699, lng: -0.3763, severity: "high"},
	{name: "Rhodes, Greece", disasterType: "wildfire", lat: 36.4349, lng: 28.2176, severity: "high"},
	{name: "Noto Peninsula, Japan", disasterType: "earthquake", lat: 37.3054, lng: 136.9006, severity: "critical"},
	{name: "Brisbane, Australia", disasterType: "storm", lat: -27.4705, lng: 153.0260, severity: "medium"},
}

var handles = []string{
	"stormwatcher", "firstresponder_88", "localnews_desk", "weather_nerd",
	"citizen_report", "emergency_feed", "skycam_live", "groundtruth",
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	out := flag.String("out", "", "output path for the corpus JSON")
	posts := flag.Int("posts", 200, "number of posts to generate")
	seed := flag.Int64("seed", 42, "random seed for reproducible corpora")
	flag.Parse()

	if *out == "" {
		flag.Usage()
		return fmt.Errorf("missing required flag: -out")
	}

	rng := rand.New(rand.NewSource(*seed))
	records := make([]map[string]any, 0, *posts)

	for i := 0; i < *posts; i++ {
		records = append(records, generatePost(rng, i))
	}

	if err := writeJSON(*out, map[string]any{"posts": records}); err != nil {
		return fmt.Errorf("writing corpus: %w", err)
	}
	log.Printf("wrote corpus: %s (%d posts)", *out, len(records))
	return nil
}

// generatePost produces one raw classified post. Roughly one in ten posts is
// classifier noise (not disaster related) and one in fifteen has no
// resolvable location, matching what live classifier output looks like.
func generatePost(rng *rand.Rand, i int) map[string]any {
	ts := baseTime.Add(time.Duration(i) * 90 * time.Second)
	id := fmt.Sprintf("post-%04d", i)
	author := handles[rng.Intn(len(handles))]

	if rng.Intn(10) == 0 {
		return map[string]any{
			"id":         id,
			"text":       "that concert last night was an absolute disaster lol",
			"author":     map[string]any{"handle": author},
			"created_at": ts.Format(time.RFC3339),
			"keyword":    "disaster",
			"ml_classification": map[string]any{
				"is_disaster": false,
				"confidence":  round2(0.5 + rng.Float64()*0.4),
			},
			"llm_extraction": map[string]any{
				"llm_classification": false,
			},
		}
	}

	sc := scenes[rng.Intn(len(scenes))]
	// Scatter within ~0.2 degrees of the scene so most posts land inside
	// the default 50km clustering threshold.
	lat := sc.lat + (rng.Float64()-0.5)*0.4
	lng := sc.lng + (rng.Float64()-0.5)*0.4

	post := map[string]any{
		"id":         id,
		"text":       fmt.Sprintf("Major %s reported near %s, emergency services on scene", sc.disasterType, sc.name),
		"author":     map[string]any{"handle": author},
		"created_at": ts.Format(time.RFC3339),
		"keyword":    sc.disasterType,
		"ml_classification": map[string]any{
			"is_disaster":   true,
			"confidence":    round2(0.7 + rng.Float64()*0.3),
			"disaster_type": sc.disasterType,
		},
		"llm_extraction": map[string]any{
			"llm_classification":   true,
			"disaster_type":        sc.disasterType,
			"severity":             sc.severity,
			"location":             sc.name,
			"key_details":          fmt.Sprintf("%s near %s", sc.disasterType, sc.name),
			"key_entities":         []string{sc.name},
			"casualties_mentioned": rng.Intn(4) == 0,
			"damage_mentioned":     rng.Intn(2) == 0,
			"needs_help":           rng.Intn(5) == 0,
		},
	}

	switch {
	case rng.Intn(15) == 0:
		// No coordinates and an unresolvable location string.
		post["llm_extraction"].(map[string]any)["location"] = "somewhere out there"
	default:
		post["lat"] = round4(lat)
		post["lng"] = round4(lng)
	}

	return post
}

func round2(v float64) float64 { return float64(int(v*100)) / 100 }
func round4(v float64) float64 { return float64(int(v*10000)) / 10000 }

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o600)
}
