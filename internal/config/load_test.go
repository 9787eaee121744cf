package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZebulonRouseFrantzich/sgctl/internal/binary"
)

func newTestLoader(home string, env map[string]string) *Loader {
	return &Loader{
		Detector: linuxDetector(),
		Getenv:   mapEnv(env),
		Home:     func() (string, error) { return home, nil },
	}
}

func writeConfig(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func TestLoad_MissingDefaultFile(t *testing.T) {
	home := t.TempDir()

	opts, err := newTestLoader(home, nil).Load(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, binary.Options{}, opts)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	home := t.TempDir()

	_, err := newTestLoader(home, nil).Load(context.Background(), filepath.Join(home, "nope.lua"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoad_DefaultPathAndHomeExpansion(t *testing.T) {
	home := t.TempDir()
	writeConfig(t, filepath.Join(home, ".config", "sgctl", "sgctl.lua"), `
sgctl = {
	cache_dir = "~/sg-cache",
	version = "0.39.5",
	download = false,
}
`)

	opts, err := newTestLoader(home, nil).Load(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "sg-cache"), opts.CacheDir)
	assert.Equal(t, "0.39.5", opts.Version)
	assert.True(t, opts.DisableDownload)
}

func TestLoad_ConfigEnvVariable(t *testing.T) {
	home := t.TempDir()
	path := filepath.Join(home, "custom.lua")
	writeConfig(t, path, `sgctl = { min_version = "0.20.0" }`)

	opts, err := newTestLoader(home, map[string]string{EnvConfig: path}).Load(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "0.20.0", opts.MinVersion)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	home := t.TempDir()
	path := filepath.Join(home, "sgctl.lua")
	writeConfig(t, path, `sgctl = { version = "0.38.0", cache_dir = "/from/file" }`)

	opts, err := newTestLoader(home, map[string]string{
		EnvVersion:  "0.39.5",
		EnvCacheDir: "/from/env",
	}).Load(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "0.39.5", opts.Version)
	assert.Equal(t, "/from/env", opts.CacheDir)
}

func TestLoad_InvalidOptionsRejected(t *testing.T) {
	home := t.TempDir()
	path := filepath.Join(home, "sgctl.lua")
	writeConfig(t, path, `sgctl = { archive_sha256 = "abc" }`)

	_, err := newTestLoader(home, nil).Load(context.Background(), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ArchiveSHA256")
}

func TestLoad_ParseErrorWrapped(t *testing.T) {
	home := t.TempDir()
	path := filepath.Join(home, "sgctl.lua")
	writeConfig(t, path, `sgctl = { bogus = true }`)

	_, err := newTestLoader(home, nil).Load(context.Background(), path)
	require.Error(t, err)

	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
	assert.Contains(t, err.Error(), path)
}
