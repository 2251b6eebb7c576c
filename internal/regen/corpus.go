package regen

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/couchcryptid/incident-cluster-service/internal/domain"
)

// corpusFile is the on-disk corpus shape: a single object wrapping the
// post array, matching what the classifier pipeline exports.
type corpusFile struct {
	Posts []domain.RawClassifiedPost `json:"posts"`
}

// ReadCorpus decodes a classified post corpus from r. A bare top-level
// array is accepted as well as the {"posts": [...]} wrapper.
func ReadCorpus(r io.Reader) ([]domain.RawClassifiedPost, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading corpus: %w", err)
	}

	var wrapped corpusFile
	if err := json.Unmarshal(data, &wrapped); err == nil && wrapped.Posts != nil {
		return wrapped.Posts, nil
	}

	var posts []domain.RawClassifiedPost
	if err := json.Unmarshal(data, &posts); err != nil {
		return nil, fmt.Errorf("parsing corpus: %w", err)
	}
	return posts, nil
}

// LoadCorpus reads a corpus file from disk.
func LoadCorpus(path string) ([]domain.RawClassifiedPost, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening corpus: %w", err)
	}
	defer f.Close()
	return ReadCorpus(f)
}
