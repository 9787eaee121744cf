package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/ZebulonRouseFrantzich/sgctl/internal/binary"
	"github.com/ZebulonRouseFrantzich/sgctl/internal/logging"
	"github.com/ZebulonRouseFrantzich/sgctl/internal/platform"
)

// Loader builds binary.Options from the config file and the environment.
type Loader struct {
	Detector platform.Detector
	Logger   logging.Logger
	// Getenv defaults to os.Getenv.
	Getenv func(string) string
	// Home defaults to os.UserHomeDir.
	Home func() (string, error)
}

// DefaultPath returns the config file used when none is given: $SGCTL_CONFIG,
// or ~/.config/sgctl/sgctl.lua.
func (l *Loader) DefaultPath() (string, error) {
	if p := strings.TrimSpace(l.getenv(EnvConfig)); p != "" {
		return l.expandHome(p)
	}
	home, err := l.home()
	if err != nil {
		return "", fmt.Errorf("locate home directory: %w", err)
	}
	return filepath.Join(home, ".config", "sgctl", "sgctl.lua"), nil
}

// Load parses path (or the default path when empty), applies environment
// overrides and returns validated options. A missing default file is not an
// error; a missing explicit file is.
func (l *Loader) Load(ctx context.Context, path string) (binary.Options, error) {
	logger := logging.OrNop(l.Logger)

	explicit := path != ""
	if !explicit {
		p, err := l.DefaultPath()
		if err != nil {
			return binary.Options{}, err
		}
		path = p
	} else {
		p, err := l.expandHome(path)
		if err != nil {
			return binary.Options{}, err
		}
		path = p
	}

	cfg := &Config{}
	parsed, err := NewParser(l.Detector).WithLogger(logger).ParseFile(ctx, path)
	switch {
	case err == nil:
		cfg = parsed
		logger.Debug("loaded config", "path", path)
	case !explicit && errors.Is(err, fs.ErrNotExist):
		logger.Debug("no config file", "path", path)
	default:
		return binary.Options{}, fmt.Errorf("load config %s: %w", path, err)
	}

	ApplyEnv(cfg, l.getenv)

	for _, p := range []*string{&cfg.BinaryPath, &cfg.CacheDir, &cfg.Keyring} {
		expanded, err := l.expandHome(*p)
		if err != nil {
			return binary.Options{}, err
		}
		*p = expanded
	}

	opts := cfg.Options()
	if err := opts.Validate(); err != nil {
		return binary.Options{}, err
	}
	return opts, nil
}

func (l *Loader) getenv(key string) string {
	if l.Getenv != nil {
		return l.Getenv(key)
	}
	return os.Getenv(key)
}

func (l *Loader) home() (string, error) {
	if l.Home != nil {
		return l.Home()
	}
	return os.UserHomeDir()
}

// expandHome replaces a leading "~" with the home directory.
func (l *Loader) expandHome(p string) (string, error) {
	if p != "~" && !strings.HasPrefix(p, "~/") && !strings.HasPrefix(p, `~\`) {
		return p, nil
	}
	home, err := l.home()
	if err != nil {
		return "", fmt.Errorf("expand %s: %w", p, err)
	}
	if p == "~" {
		return home, nil
	}
	return filepath.Join(home, p[2:]), nil
}
