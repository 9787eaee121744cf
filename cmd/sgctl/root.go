package main

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ZebulonRouseFrantzich/sgctl/internal/binary"
	"github.com/ZebulonRouseFrantzich/sgctl/internal/config"
	"github.com/ZebulonRouseFrantzich/sgctl/internal/logging"
)

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "sgctl",
		Short: "Locate, install and run ast-grep",
		Long: `sgctl finds a working ast-grep executable and runs it.

Resolution order:
  1. binary_path from the config file, or $AST_GREP_PATH
  2. ast-grep on PATH
  3. a previously downloaded copy in the cache directory
  4. a fresh download of the release archive for this platform

Configuration is read from ~/.config/sgctl/sgctl.lua (or $SGCTL_CONFIG).

Examples:
  # Show which ast-grep would be used
  sgctl resolve

  # Run a structural search
  sgctl run -- run --pattern 'console.log($A)' --lang js src/`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetIn(a.stdin)
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "config file (default: ~/.config/sgctl/sgctl.lua)")
	flags.StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error, off (default: warn)")
	flags.StringVar(&a.cacheDir, "cache-dir", "", "directory for downloaded binaries (default: ~/.sgctl/bin)")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "show full error details")

	root.AddCommand(newResolveCmd(a), newRunCmd(a), newVersionCmd(a))
	return root
}

func (a *app) logger() (logging.Logger, error) {
	l := logging.New(logging.Options{
		Output:    a.stderr,
		Level:     logrus.WarnLevel,
		Component: "sgctl",
	})
	if a.logLevel != "" {
		level, ok := logging.ParseLevel(a.logLevel)
		if !ok {
			return nil, fmt.Errorf("invalid --log-level %q", a.logLevel)
		}
		l.SetLevel(level)
	}
	return l, nil
}

// manager loads configuration and builds an uninitialized binary manager.
func (a *app) manager(ctx context.Context) (*binary.Manager, error) {
	logger, err := a.logger()
	if err != nil {
		return nil, err
	}

	info, err := a.detector.Detect(ctx)
	if err != nil {
		return nil, err
	}

	loader := &config.Loader{Detector: a.detector, Logger: logger, Getenv: a.getenv}
	opts, err := loader.Load(ctx, a.configPath)
	if err != nil {
		return nil, err
	}
	if a.cacheDir != "" {
		opts.CacheDir = a.cacheDir
	}

	return binary.NewManager(binary.Config{
		Options:      opts,
		PlatformInfo: info,
		Logger:       logger,
		HTTPClient:   a.httpClient,
	})
}

// initializedManager returns a manager that has resolved its executable.
func (a *app) initializedManager(ctx context.Context) (*binary.Manager, error) {
	m, err := a.manager(ctx)
	if err != nil {
		return nil, err
	}
	if err := m.Initialize(ctx); err != nil {
		return nil, err
	}
	return m, nil
}
