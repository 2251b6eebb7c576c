package regen_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/incident-cluster-service/internal/regen"
)

func TestReadCorpus(t *testing.T) {
	t.Run("wrapped object form", func(t *testing.T) {
		input := `{"posts": [{"id": "p1", "text": "flooding"}, {"id": "p2", "text": "fire"}]}`

		posts, err := regen.ReadCorpus(strings.NewReader(input))
		require.NoError(t, err)
		require.Len(t, posts, 2)
		assert.Equal(t, "p1", posts[0].ID)
		assert.Equal(t, "p2", posts[1].ID)
	})

	t.Run("bare array form", func(t *testing.T) {
		input := `[{"id": "p1"}, {"id": "p2"}, {"id": "p3"}]`

		posts, err := regen.ReadCorpus(strings.NewReader(input))
		require.NoError(t, err)
		assert.Len(t, posts, 3)
	})

	t.Run("invalid JSON", func(t *testing.T) {
		_, err := regen.ReadCorpus(strings.NewReader("{not json"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "parsing corpus")
	})
}

func TestLoadCorpus(t *testing.T) {
	t.Run("reads file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "corpus.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"posts": [{"id": "p1"}]}`), 0o600))

		posts, err := regen.LoadCorpus(path)
		require.NoError(t, err)
		assert.Len(t, posts, 1)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := regen.LoadCorpus(filepath.Join(t.TempDir(), "nope.json"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "opening corpus")
	})
}
