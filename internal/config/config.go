package config

import (
	"github.com/ZebulonRouseFrantzich/sgctl/internal/binary"
)

// Config is the parsed sgctl table. Pointer fields distinguish "unset"
// from the zero value so the environment and defaults can layer on top.
type Config struct {
	BinaryPath           string
	CacheDir             string
	Version              string
	MinVersion           string
	Download             *bool
	PreferSystemArchiver bool
	ReleaseURL           string
	LatestReleaseURL     string
	ArchiveSHA256        string
	Keyring              string
}

// Options converts the configuration into binary manager options.
// Downloads are enabled unless download = false was set.
func (c *Config) Options() binary.Options {
	return binary.Options{
		CustomBinaryPath:     c.BinaryPath,
		CacheDir:             c.CacheDir,
		Version:              c.Version,
		MinVersion:           c.MinVersion,
		DisableDownload:      c.Download != nil && !*c.Download,
		PreferSystemArchiver: c.PreferSystemArchiver,
		ReleaseBaseURL:       c.ReleaseURL,
		LatestReleaseURL:     c.LatestReleaseURL,
		ArchiveSHA256:        c.ArchiveSHA256,
		KeyringPath:          c.Keyring,
	}
}
