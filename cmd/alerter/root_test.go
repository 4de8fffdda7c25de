package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const doc = `{
  "creators": [
    {"name": "ArtistA", "url": "https://www.patreon.com/artista/membership", "tiers_to_watch": ["Gold", "Silver"]}
  ],
  "check_interval_seconds": 600
}`

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestValidateCommand(t *testing.T) {
	path := writeConfig(t, t.TempDir(), doc)

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"validate", path})

	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), path+": ok")
	assert.Contains(t, out.String(), "ArtistA (https://www.patreon.com/artista/membership): 2 tiers watched")
	assert.Contains(t, out.String(), "notifier: console, interval: 10m0s")
}

func TestValidateCommandInvalid(t *testing.T) {
	path := writeConfig(t, t.TempDir(), `{"creators": []}`)

	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"validate", path})

	assert.Error(t, root.Execute())
}

func TestRootFailsWithoutConfig(t *testing.T) {
	t.Chdir(t.TempDir())

	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"--once"})

	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load configuration")
}

func TestLoadConfigFallback(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "config"), 0o750))
	writeConfig(t, filepath.Join(dir, "config"), doc)
	t.Chdir(dir)

	cfg, path, err := loadConfig(nil)
	require.NoError(t, err)
	assert.Equal(t, "config/config.json", path)
	assert.Len(t, cfg.Creators, 1)
}

func TestRootRejectsExtraArgs(t *testing.T) {
	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"a.json", "b.json"})

	assert.Error(t, root.Execute())
}
