package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/ZebulonRouseFrantzich/sgctl/internal/logging"
	"github.com/ZebulonRouseFrantzich/sgctl/internal/platform"
)

// DefaultParseTimeout applies when the caller's context has no deadline.
const DefaultParseTimeout = 5 * time.Second

// Parser represents a Lua config parser with platform detection.
type Parser struct {
	detector platform.Detector
	logger   logging.Logger
}

// NewParser creates a new config parser with the given platform detector.
// A nil detector leaves the platform table undefined.
func NewParser(detector platform.Detector) *Parser {
	return &Parser{detector: detector, logger: logging.Nop()}
}

// WithLogger sets the logger used for parse diagnostics.
func (p *Parser) WithLogger(l logging.Logger) *Parser {
	p.logger = logging.OrNop(l)
	return p
}

// ParseFile reads and parses the configuration file at path.
func (p *Parser) ParseFile(ctx context.Context, path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, MaxConfigSize+1))
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > MaxConfigSize {
		return nil, &ParseError{
			Message: "config file too large",
			Detail:  fmt.Sprintf("%s exceeds %d bytes", path, MaxConfigSize),
		}
	}

	p.logger.Debug("parsing config", "path", path, "bytes", len(data))
	return p.ParseString(ctx, string(data))
}

// ParseString parses a Lua config from a string.
func (p *Parser) ParseString(ctx context.Context, luaCode string) (*Config, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultParseTimeout)
		defer cancel()
	}

	L := newSandboxedVM(ctx)
	defer L.Close()

	if p.detector != nil {
		platformInfo, err := p.detector.Detect(ctx)
		if err != nil {
			return nil, fmt.Errorf("platform detection failed: %w", err)
		}
		if err := platform.InjectPlatformTable(L, platformInfo); err != nil {
			return nil, fmt.Errorf("inject platform table: %w", err)
		}
	}

	if err := L.DoString(luaCode); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, &ParseError{Message: "config evaluation timed out", Detail: ctxErr.Error()}
		}
		return nil, &ParseError{
			Message: "Lua syntax error",
			Detail:  err.Error(),
		}
	}

	return extractConfig(L)
}

// ParseError represents a config parsing error with friendly message.
type ParseError struct {
	Message string // User-friendly message
	Detail  string // Technical details (raw Lua error)
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: %s", e.Message, e.Detail)
}

// fieldKinds maps each sgctl key to the Lua type each sgctl key must have.
var fieldKinds = map[string]lua.LValueType{
	luaFieldBinaryPath:          lua.LTString,
	luaFieldCacheDir:            lua.LTString,
	luaFieldVersion:             lua.LTString,
	luaFieldMinVersion:          lua.LTString,
	luaFieldDownload:            lua.LTBool,
	luaFieldPreferSystemArchive: lua.LTBool,
	luaFieldReleaseURL:          lua.LTString,
	luaFieldLatestReleaseURL:    lua.LTString,
	luaFieldArchiveSHA256:       lua.LTString,
	luaFieldKeyring:             lua.LTString,
}

// extractConfig extracts the config from a Lua state.
// It expects a global "sgctl" table with the config structure.
func extractConfig(L *lua.LState) (*Config, error) {
	global := L.GetGlobal(luaGlobalSgctl)
	table, ok := global.(*lua.LTable)
	if !ok {
		return nil, &ParseError{
			Message: "missing or invalid 'sgctl' table",
			Detail:  fmt.Sprintf("expected table, got %s", global.Type()),
		}
	}

	var problems []string
	values := map[string]lua.LValue{}
	table.ForEach(func(key, value lua.LValue) {
		name, isString := key.(lua.LString)
		if !isString {
			problems = append(problems, fmt.Sprintf("non-string key %s", key.String()))
			return
		}
		want, known := fieldKinds[string(name)]
		if !known {
			problems = append(problems, fmt.Sprintf("unknown key %q", string(name)))
			return
		}
		if value.Type() != want {
			problems = append(problems, fmt.Sprintf("%s: expected %s, got %s", string(name), want, value.Type()))
			return
		}
		values[string(name)] = value
	})
	if len(problems) > 0 {
		sort.Strings(problems)
		return nil, &ParseError{
			Message: "invalid 'sgctl' table",
			Detail:  strings.Join(problems, "; "),
		}
	}

	str := func(key string) string {
		if v, ok := values[key].(lua.LString); ok {
			return string(v)
		}
		return ""
	}
	boolean := func(key string) (bool, bool) {
		v, ok := values[key].(lua.LBool)
		return bool(v), ok
	}

	cfg := &Config{
		BinaryPath:       str(luaFieldBinaryPath),
		CacheDir:         str(luaFieldCacheDir),
		Version:          str(luaFieldVersion),
		MinVersion:       str(luaFieldMinVersion),
		ReleaseURL:       str(luaFieldReleaseURL),
		LatestReleaseURL: str(luaFieldLatestReleaseURL),
		ArchiveSHA256:    str(luaFieldArchiveSHA256),
		Keyring:          str(luaFieldKeyring),
	}
	if v, ok := boolean(luaFieldDownload); ok {
		cfg.Download = &v
	}
	if v, ok := boolean(luaFieldPreferSystemArchive); ok {
		cfg.PreferSystemArchiver = v
	}

	return cfg, nil
}

// FormatError formats a ParseError for user display.
// In verbose mode, show the raw Lua error. Otherwise, show friendly message.
func FormatError(err error, verbose bool) string {
	var parseErr *ParseError
	if errors.As(err, &parseErr) {
		if verbose {
			return fmt.Sprintf("%s\n\nDetails:\n%s", parseErr.Message, parseErr.Detail)
		}
		detail := parseErr.Detail
		if idx := strings.Index(detail, "stack traceback"); idx > 0 {
			detail = strings.TrimSpace(detail[:idx])
		}
		return fmt.Sprintf("%s: %s", parseErr.Message, detail)
	}
	return err.Error()
}
