package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "trove.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
backend: s3
app: notes
verbose: true
s3:
  endpoint: localhost:9000
  access_key: a
  secret_key: s
  bucket: trove
  prefix: dev/
  insecure: true
  timeout: 5s
dynamo:
  table: records
  timeout: 2s
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "s3", cfg.Backend)
	assert.Equal(t, "notes", cfg.App)
	assert.True(t, cfg.Verbose)
	assert.Equal(t, "localhost:9000", cfg.S3.Endpoint)
	assert.Equal(t, "dev/", cfg.S3.Prefix)
	assert.True(t, cfg.S3.Insecure)
	assert.Equal(t, 5*time.Second, cfg.S3.Timeout)
	assert.Equal(t, "records", cfg.Dynamo.Table)
	assert.Equal(t, 2*time.Second, cfg.Dynamo.Timeout)
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, ""))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)

	cfg, err = LoadConfig(writeConfig(t, "path: /tmp/x.trove\n"))
	require.NoError(t, err)
	assert.Equal(t, "file", cfg.Backend)
}

func TestLoadConfigRejects(t *testing.T) {
	for name, body := range map[string]string{
		"unknown backend": "backend: redis\n",
		"unknown field":   "backnd: file\n",
		"bad yaml":        "backend: [file\n",
	} {
		_, err := LoadConfig(writeConfig(t, body))
		assert.Error(t, err, name)
	}

	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
