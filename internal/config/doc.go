// Package config loads sgctl's installation options from an optional Lua
// file and the environment.
//
// # Configuration file
//
// The file is evaluated in a sandboxed gopher-lua VM (no os, io, require,
// load or debug) with the read-only platform table injected, and must
// assign a global sgctl table:
//
//	sgctl = {
//	  binary_path = platform.is_windows and "C:/tools/ast-grep.exe" or nil,
//	  cache_dir = "~/.cache/sgctl",
//	  version = "0.39.5",
//	  min_version = "0.39.0",
//	  download = true,
//	  prefer_system_archiver = false,
//	  release_url = "https://github.com/ast-grep/ast-grep/releases/download",
//	  latest_release_url = "https://api.github.com/repos/ast-grep/ast-grep/releases/latest",
//	  archive_sha256 = "…",
//	  keyring = "~/.config/sgctl/ast-grep.asc",
//	}
//
// Unknown keys and values of the wrong type are rejected with a
// *ParseError. Paths starting with "~/" are expanded against the home
// directory.
//
// Loader.Load reads ~/.config/sgctl/sgctl.lua, or the file named by
// SGCTL_CONFIG. A missing default file yields the built-in defaults.
//
// # Environment
//
// After the file is read, the environment wins:
//
//   - AST_GREP_PATH sets binary_path
//   - SGCTL_CACHE_DIR sets cache_dir
//   - SGCTL_VERSION sets version
//
// # Resource limits
//
// The file may be at most 1MB, and evaluation is cancelled after 5 seconds
// unless the caller's context carries an earlier deadline.
package config
