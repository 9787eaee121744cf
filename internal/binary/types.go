package binary

import (
	"time"
)

// ToolName is the base name of the managed executable.
const ToolName = "ast-grep"

// DefaultVersion is installed when the latest-release lookup cannot be
// reached and no version is pinned.
const DefaultVersion = "0.39.5"

const (
	// VersionFlag is passed to candidates during validation.
	VersionFlag = "--version"
	// VersionCheckTimeout bounds every validation run.
	VersionCheckTimeout = 5 * time.Second
	// DefaultExecTimeout applies when ExecOptions.Timeout is zero.
	DefaultExecTimeout = 60 * time.Second
	// MaxOutputBytes caps each output stream in buffered mode.
	MaxOutputBytes = 64 << 20
)

// Strategy names a resolution strategy.
type Strategy string

const (
	StrategyCustomPath Strategy = "custom-path"
	StrategySystemPath Strategy = "system-path"
	StrategyCache      Strategy = "cache"
	StrategyDownload   Strategy = "download"
)

// String returns the strategy name.
func (s Strategy) String() string {
	return string(s)
}

// ExecOptions configures one Execute call. It is passed by value and never
// retained.
type ExecOptions struct {
	// Cwd is the working directory of the child process. Empty means the
	// current directory.
	Cwd string
	// Timeout bounds the call. Zero means DefaultExecTimeout.
	Timeout time.Duration
	// Stdin selects stdin mode when non-nil; the payload (possibly empty)
	// is written to the child's input and the pipe closed.
	Stdin []byte
}

// Result holds the captured output of a successful execution.
type Result struct {
	Stdout string
	Stderr string
}

// CachedBinary is an on-disk candidate in the cache directory. It is
// validated before it can become the resolved path, and deleted if the
// validation fails.
type CachedBinary struct {
	Path            string
	ExpectedVersion string
}

// DownloadInfo contains what is needed to fetch one release archive.
type DownloadInfo struct {
	Version      string
	OS           string // "linux", "darwin", "windows"
	Arch         string // "amd64", "arm64", "386"
	Target       string // release target triple, e.g. "x86_64-unknown-linux-gnu"
	AssetName    string // e.g. "app-x86_64-unknown-linux-gnu.zip"
	URL          string
	SignatureURL string
}
