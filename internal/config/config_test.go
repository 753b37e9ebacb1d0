package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfig(t, `
catalog:
  host: localhost
  database: meta
  username: meta
  password: secret
  workspace_id: w1
  base_id: b1
sources:
  - id: crm
    client: postgresql
    host: db.internal
    database: crm
    username: reader
    password: secret
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	require.Equal(t, 5432, cfg.Catalog.Port)
	require.Equal(t, "disable", cfg.Catalog.SSLMode)

	require.Len(t, cfg.Sources, 1)
	src := cfg.Sources[0]
	require.Equal(t, "postgres", src.Client)
	require.Equal(t, "public", src.Schema)
	require.Equal(t, 5432, src.Port)
	require.Equal(t, "disable", src.SSLMode)
}

func TestLoadConfigRejectsSourceWithoutID(t *testing.T) {
	path := writeConfig(t, `
catalog:
  host: localhost
sources:
  - host: db.internal
`)

	_, err := LoadConfig(path)
	require.Error(t, err)
}

func TestConnectionString(t *testing.T) {
	src := SourceConfig{
		Host:     "db.internal",
		Port:     5433,
		Database: "crm",
		Username: "reader",
		Password: "secret",
		SSLMode:  "require",
	}
	require.Equal(t,
		"host=db.internal port=5433 user=reader password=secret dbname=crm sslmode=require",
		src.ConnectionString(),
	)
}

func TestSourceLookup(t *testing.T) {
	cfg := &Config{Sources: []SourceConfig{{ID: "crm"}, {ID: "billing"}}}

	src, ok := cfg.Source("billing")
	require.True(t, ok)
	require.Equal(t, "billing", src.ID)

	_, ok = cfg.Source("missing")
	require.False(t, ok)
}
