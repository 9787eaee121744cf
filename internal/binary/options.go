package binary

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

const (
	// DefaultReleaseBaseURL is where release archives are downloaded from.
	DefaultReleaseBaseURL = "https://github.com/ast-grep/ast-grep/releases/download"
	// DefaultLatestReleaseURL answers the latest published release.
	DefaultLatestReleaseURL = "https://api.github.com/repos/ast-grep/ast-grep/releases/latest"
)

// Options is the installation configuration supplied once at construction.
// NewManager copies it; the Manager never mutates it.
type Options struct {
	// CustomBinaryPath disables discovery: only this executable is tried.
	CustomBinaryPath string
	// Platform overrides the detected OS ("linux", "darwin", "windows").
	Platform string `validate:"omitempty,oneof=linux darwin windows"`
	// Arch overrides the detected architecture.
	Arch string `validate:"omitempty,oneof=amd64 arm64 386 x86_64 aarch64 i686"`
	// CacheDir holds downloaded binaries. Empty means DefaultCacheDir().
	CacheDir string
	// Version pins the release to download instead of asking for the latest.
	Version string `validate:"omitempty,dotted_version"`
	// MinVersion rejects candidates that report an older version.
	MinVersion string `validate:"omitempty,dotted_version"`
	// DisableDownload skips the download strategy.
	DisableDownload bool
	// PreferSystemArchiver tries system archivers before the builtin parser.
	PreferSystemArchiver bool
	// ReleaseBaseURL overrides DefaultReleaseBaseURL.
	ReleaseBaseURL string `validate:"omitempty,url"`
	// LatestReleaseURL overrides DefaultLatestReleaseURL.
	LatestReleaseURL string `validate:"omitempty,url"`
	// ArchiveSHA256 pins the expected digest of the downloaded archive.
	ArchiveSHA256 string `validate:"omitempty,len=64,hexadecimal"`
	// KeyringPath enables detached OpenPGP signature checks of the archive.
	KeyringPath string `validate:"omitempty,file"`
}

var dottedVersionRegex = regexp.MustCompile(`^v?\d+(\.[0-9A-Za-z-]+)*$`)

var optionsValidator = newOptionsValidator()

func newOptionsValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Registration only fails for empty tags or nil funcs.
	_ = v.RegisterValidation("dotted_version", func(fl validator.FieldLevel) bool {
		return dottedVersionRegex.MatchString(fl.Field().String())
	})
	return v
}

// Validate rejects malformed options before any resolution work starts.
func (o Options) Validate() error {
	err := optionsValidator.Struct(o)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate options: %w", err)
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s: invalid value %q (%s)", fe.Field(), fmt.Sprint(fe.Value()), fe.Tag()))
	}
	return fmt.Errorf("invalid options: %s", strings.Join(msgs, "; "))
}

// withDefaults fills unset URLs and the cache directory.
func (o Options) withDefaults(goos string) Options {
	if o.ReleaseBaseURL == "" {
		o.ReleaseBaseURL = DefaultReleaseBaseURL
	}
	if o.LatestReleaseURL == "" {
		o.LatestReleaseURL = DefaultLatestReleaseURL
	}
	if o.CacheDir == "" {
		o.CacheDir = DefaultCacheDir(goos)
	}
	o.Version = strings.TrimPrefix(o.Version, "v")
	o.MinVersion = strings.TrimPrefix(o.MinVersion, "v")
	return o
}

// DefaultCacheDir returns ~/.sgctl/bin, falling back to a directory under
// the system temp dir when the home directory cannot be determined. On
// Windows %LOCALAPPDATA% is preferred over the temp dir.
func DefaultCacheDir(goos string) string {
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		return filepath.Join(home, ".sgctl", "bin")
	}
	if goos == "windows" {
		if local := os.Getenv("LOCALAPPDATA"); local != "" {
			return filepath.Join(local, "sgctl", "bin")
		}
	}
	return filepath.Join(os.TempDir(), "sgctl", "bin")
}
