package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "memory", cfg.Vector.Type)
	assert.Equal(t, 1000, cfg.Chunking.ChunkSize)
	assert.Equal(t, 200, cfg.Chunking.Overlap)
}

func TestLoad_MergesOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  addr: ":9090"
vector:
  type: qdrant
  dimension: 768
  qdrant:
    url: http://localhost:6333
    collection: corpus
chunking:
  chunk_size: 500
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, "qdrant", cfg.Vector.Type)
	assert.Equal(t, 768, cfg.Vector.Dimension)
	assert.Equal(t, 500, cfg.Chunking.ChunkSize)
	// Untouched fields keep defaults.
	assert.Equal(t, "text-embedding-3-small", cfg.AI.EmbeddingModel)
	assert.Equal(t, 10, cfg.Server.MaxUploadMB)
}

func TestLoad_RejectsInvalidVectorConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
vector:
  type: qdrant
`), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate_OverlapBounds(t *testing.T) {
	cfg := Default()
	cfg.Chunking.Overlap = cfg.Chunking.ChunkSize
	assert.Error(t, cfg.Validate())

	cfg = Default()
	require.NoError(t, cfg.Validate())
}

func TestAPIKeyResolution(t *testing.T) {
	cfg := Default()
	t.Setenv("OPENAI_API_KEY", "sk-test")
	assert.Equal(t, "sk-test", cfg.AIAPIKey())

	cfg.Vector.Qdrant = &QdrantConfig{APIKeyEnv: "QDRANT_KEY"}
	t.Setenv("QDRANT_KEY", "qd-test")
	assert.Equal(t, "qd-test", cfg.QdrantAPIKey())
}
