// Package binary locates, installs, validates and runs the ast-grep
// executable that sgctl wraps.
//
// # Resolution
//
// A Manager resolves one executable path for the lifetime of the process.
// The first strategy that yields a usable binary wins:
//
//  1. An explicitly configured path. Failure here is terminal because the
//     caller opted out of discovery.
//  2. The PATH environment variable. On Windows the names ast-grep.exe,
//     ast-grep.cmd, ast-grep.ps1 and ast-grep are tried in that order since
//     package managers often install script wrappers.
//  3. A previously installed copy in the cache directory, named
//     ast-grep-<os>-<arch>[.exe].
//  4. A release archive downloaded from GitHub and unpacked into the cache.
//
// Every candidate is validated by running it with --version under a 5s
// timeout and, when a minimum version is configured, comparing the reported
// version against it.
//
// # Usage
//
//	mgr, err := binary.NewManager(binary.Config{
//	    Options:      binary.Options{MinVersion: "0.39.0"},
//	    PlatformInfo: info,
//	})
//	if err != nil {
//	    return err
//	}
//	if err := mgr.Initialize(ctx); err != nil {
//	    return err
//	}
//	res, err := mgr.Execute(ctx, []string{"run", "-p", "console.log($A)", "--json"}, binary.ExecOptions{
//	    Cwd:     root,
//	    Timeout: 30 * time.Second,
//	})
//
// # Architecture
//
//   - Manager: resolution order, state, Execute
//   - Downloader: streaming HTTP download with capped exponential backoff
//   - Extractor: builtin ZIP/tar.gz extraction with system archiver fallbacks
//   - VersionVerifier: --version probing and minimum-version checks
//   - Runner: process invocation, stdin piping, timeouts and process-tree kill
package binary
