package config

import (
	"io/ioutil"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	root := t.TempDir()
	cfg, err := Load(root)
	require.NoError(t, err)

	assert.Equal(t, "BUILD", cfg.BuildFile)
	assert.Equal(t, filepath.Join(root, "_build"), cfg.OutDir)
	assert.Equal(t, filepath.Join(root, "_build", ".state.db"), cfg.StateDB)
	assert.Equal(t, []string{"score:req:", "req-Id:", "req-traceability:"}, cfg.Sourcelinks.Tags)
	assert.Equal(t, "Documentation", cfg.Docs.Title)
	assert.Equal(t, zerolog.InfoLevel, cfg.LogLevel())
}

func TestFile(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, ioutil.WriteFile(filepath.Join(root, FileName), []byte(`
out_dir = "out"

[log]
level = "debug"

[docs]
title = "Platform"
`), 0644))

	cfg, err := Load(root)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(root, "out"), cfg.OutDir)
	assert.Equal(t, zerolog.DebugLevel, cfg.LogLevel())
	assert.Equal(t, "Platform", cfg.Docs.Title)
}

func TestValidate(t *testing.T) {
	cfg := Config{OutDir: "_build", BuildFile: "BUILD"}
	cfg.Log.Level = "info"
	cfg.Sourcelinks.Tags = []string{"req-Id:"}
	assert.NoError(t, cfg.Validate())

	cfg.Log.Level = "loud"
	assert.Error(t, cfg.Validate())

	cfg.Log.Level = "warn"
	cfg.Sourcelinks.Tags = nil
	assert.Error(t, cfg.Validate())

	cfg.Sourcelinks.Tags = []string{"req-Id:"}
	cfg.OutDir = ""
	assert.Error(t, cfg.Validate())
}
