package config

import (
	"strings"

	"github.com/ZebulonRouseFrantzich/sgctl/internal/binary"
)

// ApplyEnv overlays environment overrides onto cfg. Empty or
// whitespace-only values are ignored.
func ApplyEnv(cfg *Config, getenv func(string) string) {
	if v := strings.TrimSpace(getenv(binary.EnvBinaryPath)); v != "" {
		cfg.BinaryPath = v
	}
	if v := strings.TrimSpace(getenv(EnvCacheDir)); v != "" {
		cfg.CacheDir = v
	}
	if v := strings.TrimSpace(getenv(EnvVersion)); v != "" {
		cfg.Version = v
	}
}
