package binary

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/singleflight"

	"github.com/ZebulonRouseFrantzich/sgctl/internal/logging"
	"github.com/ZebulonRouseFrantzich/sgctl/internal/platform"
	"github.com/ZebulonRouseFrantzich/sgctl/internal/transaction"
)

const (
	// EnvBinaryPath names an ast-grep executable to use instead of discovery.
	EnvBinaryPath = "AST_GREP_PATH"

	installLockName = "install"
	installLockWait = 2 * time.Minute
	installLockPoll = 250 * time.Millisecond
)

// Manager resolves the ast-grep executable once and runs it on demand.
type Manager struct {
	opts         Options
	platformInfo *platform.Info
	logger       logging.Logger
	metrics      *Metrics
	runner       *Runner
	versions     *VersionVerifier
	downloader   *Downloader
	verifier     *Verifier
	extractor    *Extractor
	getenv       func(string) string

	group singleflight.Group
	mu    sync.RWMutex
	state state
}

// state is what Initialize establishes. It is replaced as a whole under mu.
type state struct {
	initialized bool
	resolution  Resolution
	invocation  Invocation
}

// Resolution describes the executable the Manager settled on.
type Resolution struct {
	Path     string
	Version  string // "" when the binary reported none
	Strategy Strategy
}

// Config holds configuration for the binary manager
type Config struct {
	// Options is copied by NewManager and never modified afterwards.
	Options Options
	// PlatformInfo contains OS and architecture information
	PlatformInfo *platform.Info
	// Logger receives resolution and download progress. Optional.
	Logger logging.Logger
	// Registerer receives the manager's metrics. Optional.
	Registerer prometheus.Registerer
	// HTTPClient is used for release lookups and downloads. Optional.
	HTTPClient *http.Client
}

// NewManager validates the configuration and creates a manager. No
// filesystem or network work happens until Initialize.
func NewManager(config Config) (*Manager, error) {
	if config.PlatformInfo == nil {
		return nil, fmt.Errorf("PlatformInfo is required")
	}
	if err := config.Options.Validate(); err != nil {
		return nil, err
	}

	info, err := platform.Override(config.PlatformInfo, config.Options.Platform, config.Options.Arch)
	if err != nil {
		return nil, fmt.Errorf("apply platform override: %w", err)
	}

	opts := config.Options.withDefaults(info.OS)
	logger := logging.OrNop(config.Logger)
	metrics := NewMetrics(config.Registerer)
	runner := NewRunner(logger, metrics)

	return &Manager{
		opts:         opts,
		platformInfo: info,
		logger:       logger,
		metrics:      metrics,
		runner:       runner,
		versions:     NewVersionVerifier(runner),
		downloader:   NewDownloader(config.HTTPClient, logger, metrics),
		verifier:     NewVerifier(opts.ArchiveSHA256, opts.KeyringPath),
		extractor:    NewExtractor(info.OS, opts.PreferSystemArchiver, logger),
		getenv:       os.Getenv,
	}, nil
}

// Initialize resolves the executable. It returns immediately once a
// previous call succeeded; concurrent callers share one resolution. After
// a failure the next call starts over.
func (m *Manager) Initialize(ctx context.Context) error {
	if m.Initialized() {
		return nil
	}

	_, err, _ := m.group.Do("initialize", func() (interface{}, error) {
		if m.Initialized() {
			return nil, nil
		}

		res, err := m.resolve(ctx)
		if err != nil {
			return nil, err
		}

		m.mu.Lock()
		m.state = state{
			initialized: true,
			resolution:  res,
			invocation:  NewInvocation(res.Path),
		}
		m.mu.Unlock()

		m.logger.Info("ast-grep resolved", "path", res.Path, "version", res.Version, "strategy", res.Strategy.String())
		return nil, nil
	})
	return err
}

// Initialized reports whether Initialize has succeeded.
func (m *Manager) Initialized() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.initialized
}

// ResolvedPath returns the resolved executable, or "" before Initialize.
func (m *Manager) ResolvedPath() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.resolution.Path
}

// Resolution returns the full resolution result. ok is false before
// Initialize.
func (m *Manager) Resolution() (res Resolution, ok bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.resolution, m.state.initialized
}

// Execute runs the resolved executable with args.
func (m *Manager) Execute(ctx context.Context, args []string, opts ExecOptions) (*Result, error) {
	m.mu.RLock()
	st := m.state
	m.mu.RUnlock()

	if !st.initialized {
		return nil, ErrNotInitialized
	}
	return m.runner.Run(ctx, st.invocation, args, opts)
}

// resolve walks the strategies in order and returns the first usable
// executable.
func (m *Manager) resolve(ctx context.Context) (Resolution, error) {
	var failures []StrategyFailure

	if m.opts.CustomBinaryPath != "" {
		res, err := m.tryCustomPath(ctx)
		m.metrics.observeResolution(StrategyCustomPath, err)
		if err != nil {
			failures = append(failures, StrategyFailure{Strategy: StrategyCustomPath, Detail: m.opts.CustomBinaryPath, Err: err})
			return Resolution{}, m.resolutionError(failures)
		}
		return res, nil
	}

	type step struct {
		strategy Strategy
		run      func(context.Context) (Resolution, []StrategyFailure)
	}
	steps := []step{
		{StrategySystemPath, m.trySystemPath},
		{StrategyCache, m.tryCache},
	}
	if !m.opts.DisableDownload {
		steps = append(steps, step{StrategyDownload, m.tryDownload})
	}

	for _, s := range steps {
		if err := ctx.Err(); err != nil {
			return Resolution{}, err
		}

		m.logger.Debug("trying resolution strategy", "strategy", s.strategy.String())
		res, fails := s.run(ctx)
		failures = append(failures, fails...)
		if res.Path != "" {
			m.metrics.observeResolution(s.strategy, nil)
			return res, nil
		}
		m.metrics.observeResolution(s.strategy, errStrategyFailed)
	}

	return Resolution{}, m.resolutionError(failures)
}

var errStrategyFailed = errors.New("strategy failed")

func (m *Manager) tryCustomPath(ctx context.Context) (Resolution, error) {
	path := m.opts.CustomBinaryPath
	if err := checkExecutable(path, m.platformInfo.IsWindows()); err != nil {
		return Resolution{}, err
	}
	version, err := m.versions.Validate(ctx, path, m.opts.MinVersion)
	if err != nil {
		return Resolution{}, err
	}
	return Resolution{Path: path, Version: version, Strategy: StrategyCustomPath}, nil
}

// trySystemPath searches PATH. Every directory is searched for one name
// before the next name is tried.
func (m *Manager) trySystemPath(ctx context.Context) (Resolution, []StrategyFailure) {
	dirs := filepath.SplitList(m.getenv("PATH"))
	windows := m.platformInfo.IsWindows()

	var failures []StrategyFailure
	for _, name := range pathVariants(m.platformInfo) {
		for _, dir := range dirs {
			if dir == "" {
				continue
			}
			candidate := filepath.Join(dir, name)
			if checkExecutable(candidate, windows) != nil {
				continue
			}

			version, err := m.versions.Validate(ctx, candidate, m.opts.MinVersion)
			if err != nil {
				m.logger.Debug("rejected PATH candidate", "path", candidate, "error", err)
				failures = append(failures, StrategyFailure{Strategy: StrategySystemPath, Detail: candidate, Err: err})
				continue
			}
			return Resolution{Path: candidate, Version: version, Strategy: StrategySystemPath}, nil
		}
	}

	if len(failures) == 0 {
		failures = append(failures, StrategyFailure{
			Strategy: StrategySystemPath,
			Err:      fmt.Errorf("%s not found in PATH", ToolName),
		})
	}
	return Resolution{}, failures
}

func (m *Manager) cachedBinary() CachedBinary {
	return CachedBinary{
		Path:            filepath.Join(m.opts.CacheDir, cacheFileName(m.platformInfo)),
		ExpectedVersion: m.opts.Version,
	}
}

func (m *Manager) tryCache(ctx context.Context) (Resolution, []StrategyFailure) {
	cached := m.cachedBinary()
	if !fileExists(cached.Path) {
		return Resolution{}, []StrategyFailure{{
			Strategy: StrategyCache,
			Detail:   cached.Path,
			Err:      errors.New("no cached binary"),
		}}
	}

	res, err := m.validateCached(ctx, cached)
	if err != nil {
		return Resolution{}, []StrategyFailure{{Strategy: StrategyCache, Detail: cached.Path, Err: err}}
	}
	return res, nil
}

// validateCached validates a cached binary and deletes it when it does not
// pass, so the next download replaces it.
func (m *Manager) validateCached(ctx context.Context, cached CachedBinary) (Resolution, error) {
	version, err := m.versions.Validate(ctx, cached.Path, m.opts.MinVersion)
	if err == nil && cached.ExpectedVersion != "" && version != "" && CompareVersions(version, cached.ExpectedVersion) != 0 {
		err = fmt.Errorf("cached binary is version %s, want %s", version, cached.ExpectedVersion)
	}
	if err != nil {
		m.logger.Warn("removing invalid cached binary", "path", cached.Path, "error", err)
		if rerr := os.Remove(cached.Path); rerr != nil && !os.IsNotExist(rerr) {
			m.logger.Warn("remove cached binary", "path", cached.Path, "error", rerr)
		}
		return Resolution{}, err
	}
	return Resolution{Path: cached.Path, Version: version, Strategy: StrategyCache}, nil
}

func (m *Manager) tryDownload(ctx context.Context) (Resolution, []StrategyFailure) {
	res, err := m.download(ctx)
	if err != nil {
		return Resolution{}, []StrategyFailure{{Strategy: StrategyDownload, Err: err}}
	}
	return res, nil
}

// download installs a release into the cache directory under the install
// lock. A concurrent install that finished while we waited is reused.
func (m *Manager) download(ctx context.Context) (Resolution, error) {
	cached := m.cachedBinary()

	lockCtx, cancel := context.WithTimeout(ctx, installLockWait)
	lock, err := transaction.WaitLock(lockCtx, m.opts.CacheDir, installLockName, installLockPoll)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return Resolution{}, ctx.Err()
		}
		m.logger.Warn("install lock unavailable, continuing without it", "dir", m.opts.CacheDir, "error", err)
	} else {
		defer lock.Release()
		if fileExists(cached.Path) {
			if res, err := m.validateCached(ctx, cached); err == nil {
				res.Strategy = StrategyDownload
				return res, nil
			}
		}
	}

	version := m.downloader.resolveVersion(ctx, m.opts.Version, m.opts.LatestReleaseURL, DefaultVersion)
	info, err := constructDownloadInfo(version, m.platformInfo, m.opts.ReleaseBaseURL)
	if err != nil {
		return Resolution{}, fmt.Errorf("construct download info: %w", err)
	}

	archivePath := filepath.Join(m.opts.CacheDir, info.AssetName)
	m.logger.Info("downloading ast-grep", "version", info.Version, "url", info.URL)
	if err := m.downloader.DownloadToFile(ctx, info.URL, archivePath); err != nil {
		return Resolution{}, err
	}

	if err := m.verifyArchive(ctx, info, archivePath); err != nil {
		os.Remove(archivePath)
		return Resolution{}, err
	}

	exeName := m.platformInfo.ExecutableName(ToolName)
	if err := m.extractor.Install(ctx, archivePath, cached.Path, exeName); err != nil {
		return Resolution{}, err
	}

	version, err = m.versions.Validate(ctx, cached.Path, m.opts.MinVersion)
	if err != nil {
		os.Remove(cached.Path)
		return Resolution{}, fmt.Errorf("validate downloaded binary: %w", err)
	}
	return Resolution{Path: cached.Path, Version: version, Strategy: StrategyDownload}, nil
}

// verifyArchive applies the configured integrity checks, fetching the
// detached signature first when a keyring is set.
func (m *Manager) verifyArchive(ctx context.Context, info *DownloadInfo, archivePath string) error {
	var sigPath string
	if m.verifier.NeedsSignature() {
		sigPath = archivePath + ".sig"
		if err := m.downloader.DownloadToFile(ctx, info.SignatureURL, sigPath); err != nil {
			return fmt.Errorf("download signature: %w", err)
		}
		defer os.Remove(sigPath)
	}

	methods, err := m.verifier.VerifyFile(archivePath, sigPath)
	if err != nil {
		return fmt.Errorf("verify %s: %w", info.AssetName, err)
	}
	m.logger.Debug("archive verified", "asset", info.AssetName, "methods", methods)
	return nil
}

// resolutionError builds the terminal error with platform-specific advice.
func (m *Manager) resolutionError(failures []StrategyFailure) error {
	var remediation []string
	for _, hint := range m.platformInfo.InstallHints() {
		remediation = append(remediation, "install ast-grep: "+hint)
	}
	remediation = append(remediation,
		fmt.Sprintf("set %s to the full path of an ast-grep executable", EnvBinaryPath),
		"set binary_path in the sgctl configuration file",
	)
	return &ResolutionError{Failures: failures, Remediation: remediation}
}

// checkExecutable reports why path cannot be a candidate. Windows has no
// execute bit, so existence of a regular file is enough there.
func checkExecutable(path string, windows bool) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%s is not a regular file", path)
	}
	if !windows && info.Mode().Perm()&0111 == 0 {
		return fmt.Errorf("%s is not executable", path)
	}
	return nil
}
