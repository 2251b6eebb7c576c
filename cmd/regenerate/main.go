// Command regenerate rebuilds the full incident set from a classified post
// corpus and writes the resulting snapshot to disk. It runs the same merge
// path as the live service, so a snapshot produced here matches what the
// service would publish after ingesting the corpus in timestamp order.
//
// Usage:
//
//	go run ./cmd/regenerate \
//	  -corpus data/classified_posts.json \
//	  -out data/incidents.json \
//	  -threshold 50
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/couchcryptid/incident-cluster-service/internal/adapter/mapbox"
	"github.com/couchcryptid/incident-cluster-service/internal/config"
	"github.com/couchcryptid/incident-cluster-service/internal/domain"
	"github.com/couchcryptid/incident-cluster-service/internal/observability"
	"github.com/couchcryptid/incident-cluster-service/internal/regen"
	"github.com/couchcryptid/incident-cluster-service/internal/store"
)

// snapshotFile is what gets written to -out: the incident snapshot plus the
// regeneration run metadata.
type snapshotFile struct {
	Incidents []domain.Incident      `json:"incidents"`
	Metadata  store.SnapshotMetadata `json:"metadata"`
	Run       regen.Metadata         `json:"run"`
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	corpusPath := flag.String("corpus", "", "path to the classified post corpus JSON")
	outPath := flag.String("out", "", "output path for the incident snapshot (default stdout)")
	threshold := flag.Float64("threshold", -1, "clustering threshold in km (overrides CLUSTER_THRESHOLD_KM; 0 disables clustering)")
	flag.Parse()

	if *corpusPath == "" {
		flag.Usage()
		return fmt.Errorf("missing required flag: -corpus")
	}

	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	thresholdKm := cfg.ClusterThresholdKm
	if isFlagSet("threshold") {
		thresholdKm = *threshold
	}

	logger := observability.NewLogger(cfg.LogLevel, "text")
	metrics := observability.NewMetricsForTesting()

	var geocoder domain.Geocoder
	if cfg.MapboxEnabled {
		client := mapbox.NewClient(cfg.MapboxToken, cfg.MapboxTimeout, logger, metrics)
		geocoder = mapbox.NewCachedGeocoder(client, cfg.MapboxCacheSize, metrics)
	}

	raws, err := regen.LoadCorpus(*corpusPath)
	if err != nil {
		return err
	}
	log.Printf("loaded corpus: %d posts", len(raws))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	driver := regen.NewDriver(geocoder, cfg.TypeGroups, logger, metrics)
	st, meta, err := driver.Regenerate(ctx, raws, thresholdKm)
	if err != nil {
		return fmt.Errorf("regenerate: %w", err)
	}

	snap := st.Snapshot()
	out := snapshotFile{
		Incidents: snap.Incidents,
		Metadata:  snap.Metadata,
		Run:       meta,
	}

	if err := writeJSON(*outPath, out); err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}

	log.Printf("incidents: %d created, %d posts merged, %d dropped",
		meta.IncidentsCreated, meta.PostsMerged, droppedTotal(meta))
	if *outPath != "" {
		log.Printf("wrote snapshot: %s", *outPath)
	}
	return nil
}

func isFlagSet(name string) bool {
	set := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}

func droppedTotal(meta regen.Metadata) int {
	n := 0
	for _, c := range meta.PostsDropped {
		n += c
	}
	return n
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	if path == "" {
		_, err = os.Stdout.Write(data)
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
