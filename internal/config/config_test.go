package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autolog/autoanalysis/internal/apperr"
	"github.com/autolog/autoanalysis/internal/config"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "autoanalysis.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, "{}\n"))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 100, cfg.Indexing.BatchSize)
	assert.Equal(t, 30*time.Minute, cfg.Indexing.StatusTTL)
	assert.Equal(t, 2*time.Minute, cfg.Analyzer.CallTimeout)
	assert.Equal(t, "json", cfg.Analyzer.WireFormat)
	assert.False(t, cfg.Analyzer.PreferHigherPriority)
	assert.Equal(t, "postgres", cfg.Database.Driver)
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
indexing:
  batch_size: 25
analyzer:
  wire_format: cbor
  call_timeout: 15s
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 25, cfg.Indexing.BatchSize)
	assert.Equal(t, "cbor", cfg.Analyzer.WireFormat)
	assert.Equal(t, 15*time.Second, cfg.Analyzer.CallTimeout)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("AUTOANALYSIS_PATTERN_BATCH_SIZE", "7")

	cfg, err := config.Load(writeConfig(t, "{}\n"))
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Pattern.BatchSize)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    error
	}{
		{"zero batch", "indexing:\n  batch_size: 0\n", config.ErrInvalidBatchSize},
		{"negative pattern batch", "pattern:\n  batch_size: -1\n", config.ErrInvalidBatchSize},
		{"bad port", "server:\n  port: 70000\n", config.ErrInvalidPort},
		{"bad wire format", "analyzer:\n  wire_format: xml\n", config.ErrInvalidWireFormat},
		{"bad driver", "database:\n  driver: mysql\n", config.ErrInvalidDriver},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.Load(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.ErrorIs(t, err, apperr.ErrValidation)
		})
	}
}
