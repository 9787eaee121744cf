// Package testutil provides utilities for testing sgctl in isolation.
package testutil

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

// Env describes the isolated directories created by SetupTestEnv.
type Env struct {
	Root      string
	Home      string
	ConfigDir string
	CacheDir  string
	BinDir    string
}

// SetupTestEnv creates isolated test directories for each test.
// This ensures sgctl tests never interfere with:
// - An ast-grep installed on the host
// - The user's actual sgctl configuration and cache
//
// HOME points into the temp dir, SGCTL_CACHE_DIR at a fresh cache and the
// override variables are cleared. PATH is left alone; see IsolatePath.
// The cleanup function is automatically handled by t.TempDir(),
// so callers don't need to manually clean up.
func SetupTestEnv(t *testing.T) Env {
	t.Helper()

	tmpDir := t.TempDir()
	env := Env{
		Root:      tmpDir,
		Home:      filepath.Join(tmpDir, "home"),
		ConfigDir: filepath.Join(tmpDir, "home", ".config", "sgctl"),
		CacheDir:  filepath.Join(tmpDir, "cache"),
		BinDir:    filepath.Join(tmpDir, "bin"),
	}

	t.Setenv("HOME", env.Home)
	t.Setenv("USERPROFILE", env.Home)
	t.Setenv("SGCTL_CACHE_DIR", env.CacheDir)
	t.Setenv("SGCTL_VERSION", "")
	t.Setenv("SGCTL_CONFIG", "")
	t.Setenv("SGCTL_LOG_LEVEL", "")
	t.Setenv("AST_GREP_PATH", "")

	for _, dir := range []string{env.Home, env.ConfigDir, env.CacheDir, env.BinDir} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			t.Fatalf("failed to create test directory %s: %v", dir, err)
		}
	}

	return env
}

// IsolatePath replaces PATH with exactly dirs for the rest of the test.
func IsolatePath(t *testing.T, dirs ...string) {
	t.Helper()
	t.Setenv("PATH", strings.Join(dirs, string(os.PathListSeparator)))
}

// SkipOnWindows skips tests that rely on POSIX shell scripts.
func SkipOnWindows(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
}

// WriteFakeTool writes an executable /bin/sh script named name into dir and
// returns its path. body is the script without the shebang line.
func WriteFakeTool(t *testing.T, dir, name, body string) string {
	t.Helper()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("create %s: %v", dir, err)
	}
	path := filepath.Join(dir, name)
	script := "#!/bin/sh\n" + body
	if !strings.HasSuffix(script, "\n") {
		script += "\n"
	}
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write fake tool %s: %v", path, err)
	}
	return path
}

// FakeAstGrepScript is a script body that reports version on --version and
// echoes its arguments otherwise. It only uses shell builtins so it works
// under an isolated PATH.
func FakeAstGrepScript(version string) string {
	return `if [ "$1" = "--version" ]; then
  echo "ast-grep ` + version + `"
  exit 0
fi
echo "args: $*"
`
}
