package config

// Lua schema field names and globals
const (
	luaGlobalSgctl              = "sgctl"
	luaFieldBinaryPath          = "binary_path"
	luaFieldCacheDir            = "cache_dir"
	luaFieldVersion             = "version"
	luaFieldMinVersion          = "min_version"
	luaFieldDownload            = "download"
	luaFieldPreferSystemArchive = "prefer_system_archiver"
	luaFieldReleaseURL          = "release_url"
	luaFieldLatestReleaseURL    = "latest_release_url"
	luaFieldArchiveSHA256       = "archive_sha256"
	luaFieldKeyring             = "keyring"
)

// Environment variables that override the configuration file.
const (
	EnvCacheDir = "SGCTL_CACHE_DIR"
	EnvVersion  = "SGCTL_VERSION"
	EnvConfig   = "SGCTL_CONFIG"
)

const (
	// MaxConfigSize bounds the configuration file read from disk.
	MaxConfigSize = 1 << 20
)
