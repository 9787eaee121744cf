package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZebulonRouseFrantzich/sgctl/internal/platform"
)

type staticDetector struct {
	info *platform.Info
}

func (d staticDetector) Detect(ctx context.Context) (*platform.Info, error) {
	return d.info, nil
}

func linuxDetector() platform.Detector {
	return staticDetector{info: &platform.Info{
		OS: "linux", Arch: "amd64", ArchRaw: "amd64",
		Platform: "ubuntu", Family: platform.FamilyDebian, Version: "24.04",
	}}
}

func TestParseString_AllFields(t *testing.T) {
	code := `
sgctl = {
	binary_path = "/opt/ast-grep/bin/ast-grep",
	cache_dir = "/var/cache/sgctl",
	version = "0.39.5",
	min_version = "0.30.0",
	download = false,
	prefer_system_archiver = true,
	release_url = "https://mirror.example.com/releases",
	latest_release_url = "https://mirror.example.com/latest",
	archive_sha256 = string.rep("a", 64),
	keyring = "/etc/sgctl/keys.asc",
}
`
	cfg, err := NewParser(nil).ParseString(context.Background(), code)
	require.NoError(t, err)

	assert.Equal(t, "/opt/ast-grep/bin/ast-grep", cfg.BinaryPath)
	assert.Equal(t, "/var/cache/sgctl", cfg.CacheDir)
	assert.Equal(t, "0.39.5", cfg.Version)
	assert.Equal(t, "0.30.0", cfg.MinVersion)
	require.NotNil(t, cfg.Download)
	assert.False(t, *cfg.Download)
	assert.True(t, cfg.PreferSystemArchiver)
	assert.Equal(t, "https://mirror.example.com/releases", cfg.ReleaseURL)
	assert.Equal(t, "https://mirror.example.com/latest", cfg.LatestReleaseURL)
	assert.Equal(t, strings.Repeat("a", 64), cfg.ArchiveSHA256)
	assert.Equal(t, "/etc/sgctl/keys.asc", cfg.Keyring)

	opts := cfg.Options()
	assert.True(t, opts.DisableDownload)
	assert.Equal(t, cfg.BinaryPath, opts.CustomBinaryPath)
	assert.Equal(t, cfg.ReleaseURL, opts.ReleaseBaseURL)
	assert.Equal(t, cfg.Keyring, opts.KeyringPath)
}

func TestParseString_EmptyTable(t *testing.T) {
	cfg, err := NewParser(nil).ParseString(context.Background(), `sgctl = {}`)
	require.NoError(t, err)
	assert.Nil(t, cfg.Download)
	assert.False(t, cfg.Options().DisableDownload)
}

func TestParseString_DownloadTrue(t *testing.T) {
	cfg, err := NewParser(nil).ParseString(context.Background(), `sgctl = { download = true }`)
	require.NoError(t, err)
	require.NotNil(t, cfg.Download)
	assert.False(t, cfg.Options().DisableDownload)
}

func TestParseString_PlatformTable(t *testing.T) {
	code := `
sgctl = {
	cache_dir = platform.is_windows and "C:\\sgctl" or "/home/user/.cache/" .. platform.distro.id,
	version = platform.when(platform.arch == "amd64", "0.39.5"),
}
`
	cfg, err := NewParser(linuxDetector()).ParseString(context.Background(), code)
	require.NoError(t, err)
	assert.Equal(t, "/home/user/.cache/ubuntu", cfg.CacheDir)
	assert.Equal(t, "0.39.5", cfg.Version)
}

func TestParseString_PlatformReadOnly(t *testing.T) {
	_, err := NewParser(linuxDetector()).ParseString(context.Background(), `platform.os = "windows"; sgctl = {}`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read-only")
}

func TestParseString_Errors(t *testing.T) {
	tests := []struct {
		name    string
		code    string
		message string
		detail  string
	}{
		{
			name:    "syntax error",
			code:    `sgctl = {`,
			message: "Lua syntax error",
		},
		{
			name:    "missing table",
			code:    `x = 1`,
			message: "missing or invalid 'sgctl' table",
			detail:  "got nil",
		},
		{
			name:    "not a table",
			code:    `sgctl = "ast-grep"`,
			message: "missing or invalid 'sgctl' table",
			detail:  "got string",
		},
		{
			name:    "unknown key",
			code:    `sgctl = { tools = {} }`,
			message: "invalid 'sgctl' table",
			detail:  `unknown key "tools"`,
		},
		{
			name:    "wrong string type",
			code:    `sgctl = { version = 39 }`,
			message: "invalid 'sgctl' table",
			detail:  "version: expected string, got number",
		},
		{
			name:    "wrong bool type",
			code:    `sgctl = { download = "no" }`,
			message: "invalid 'sgctl' table",
			detail:  "download: expected boolean, got string",
		},
		{
			name:    "array entry",
			code:    `sgctl = { "ast-grep" }`,
			message: "invalid 'sgctl' table",
			detail:  "non-string key 1",
		},
		{
			name:    "blocked global",
			code:    `sgctl = { cache_dir = os.getenv("HOME") }`,
			message: "Lua syntax error",
			detail:  "attempt to index",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewParser(nil).ParseString(context.Background(), tt.code)
			require.Error(t, err)

			var parseErr *ParseError
			require.ErrorAs(t, err, &parseErr)
			assert.Equal(t, tt.message, parseErr.Message)
			if tt.detail != "" {
				assert.Contains(t, parseErr.Detail, tt.detail)
			}
		})
	}
}

func TestParseString_MultipleProblemsReported(t *testing.T) {
	_, err := NewParser(nil).ParseString(context.Background(), `sgctl = { a = 1, b = 2 }`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown key "a"`)
	assert.Contains(t, err.Error(), `unknown key "b"`)
}

func TestParseString_Timeout(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := NewParser(nil).ParseString(ctx, `while true do end`)
	require.Error(t, err)

	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
	assert.Equal(t, "config evaluation timed out", parseErr.Message)
}

func TestParseFile(t *testing.T) {
	dir := t.TempDir()

	t.Run("valid", func(t *testing.T) {
		path := filepath.Join(dir, "sgctl.lua")
		require.NoError(t, os.WriteFile(path, []byte(`sgctl = { version = "0.40.0" }`), 0o644))

		cfg, err := NewParser(nil).ParseFile(context.Background(), path)
		require.NoError(t, err)
		assert.Equal(t, "0.40.0", cfg.Version)
	})

	t.Run("missing", func(t *testing.T) {
		_, err := NewParser(nil).ParseFile(context.Background(), filepath.Join(dir, "absent.lua"))
		require.Error(t, err)
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("too large", func(t *testing.T) {
		path := filepath.Join(dir, "big.lua")
		body := "sgctl = {}\n--" + strings.Repeat("x", MaxConfigSize)
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

		_, err := NewParser(nil).ParseFile(context.Background(), path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "config file too large")
	})
}

func TestFormatError(t *testing.T) {
	err := &ParseError{
		Message: "Lua syntax error",
		Detail:  "<string>:1: unexpected EOF\nstack traceback:\n\t[G]: ?",
	}

	assert.Equal(t, "Lua syntax error: <string>:1: unexpected EOF", FormatError(err, false))

	verbose := FormatError(err, true)
	assert.Contains(t, verbose, "Details:")
	assert.Contains(t, verbose, "stack traceback")

	assert.Equal(t, "plain", FormatError(assertError("plain"), false))
}

type assertError string

func (e assertError) Error() string { return string(e) }
