package binary

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ZebulonRouseFrantzich/sgctl/internal/logging"
)

// Shape is how an executable path is launched.
type Shape string

const (
	ShapeNative     Shape = "native"
	ShapePowerShell Shape = "powershell"
	ShapeCmd        Shape = "cmd"
)

type scriptHost struct {
	shape  Shape
	prefix []string
}

// scriptHosts maps script extensions to the interpreter that runs them.
// Anything not listed is executed directly.
var scriptHosts = map[string]scriptHost{
	".ps1": {ShapePowerShell, []string{"powershell", "-NoProfile", "-NonInteractive", "-ExecutionPolicy", "Bypass", "-File"}},
	".cmd": {ShapeCmd, []string{"cmd.exe", "/d", "/s", "/c"}},
	".bat": {ShapeCmd, []string{"cmd.exe", "/d", "/s", "/c"}},
}

// Invocation is the resolved command shape for one executable path. It is
// computed once at resolution time and reused for every call.
type Invocation struct {
	Path  string
	Shape Shape
	host  []string
}

// NewInvocation picks the command shape for path from its extension.
func NewInvocation(path string) Invocation {
	h, ok := scriptHosts[strings.ToLower(filepath.Ext(path))]
	if !ok {
		return Invocation{Path: path, Shape: ShapeNative}
	}
	return Invocation{Path: path, Shape: h.shape, host: h.prefix}
}

// Command returns the program and argument vector that run the executable
// with args.
func (i Invocation) Command(args []string) (string, []string) {
	if i.Shape == ShapeNative {
		return i.Path, append([]string(nil), args...)
	}
	argv := make([]string, 0, len(i.host)+len(args))
	argv = append(argv, i.host[1:]...)
	argv = append(argv, i.Path)
	argv = append(argv, args...)
	return i.host[0], argv
}

// defaultWaitDelay bounds how long Wait keeps reading output pipes after
// the process exits or is killed.
const defaultWaitDelay = 2 * time.Second

// Runner executes resolved binaries. It holds no per-call state and is safe
// for concurrent use.
type Runner struct {
	maxOutput int
	waitDelay time.Duration
	logger    logging.Logger
	metrics   *Metrics
}

// NewRunner creates a Runner. logger and metrics may be nil.
func NewRunner(logger logging.Logger, metrics *Metrics) *Runner {
	return &Runner{
		maxOutput: MaxOutputBytes,
		waitDelay: defaultWaitDelay,
		logger:    logging.OrNop(logger),
		metrics:   metrics,
	}
}

// Run executes inv with args. A nil opts.Stdin runs in buffered mode; a
// non-nil one writes the payload to the child's input and closes it.
func (r *Runner) Run(ctx context.Context, inv Invocation, args []string, opts ExecOptions) (*Result, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultExecTimeout
	}

	mode := "buffered"
	run := r.runBuffered
	if opts.Stdin != nil {
		mode = "stdin"
		run = r.runWithStdin
	}

	r.logger.Debug("executing", "path", inv.Path, "shape", string(inv.Shape), "mode", mode, "args", args)
	res, err := run(ctx, inv, args, opts, timeout)
	r.metrics.observeExecution(mode, err)
	if errors.Is(err, ErrTimeout) {
		r.logger.Warn("execution timed out", "path", inv.Path, "timeout", timeout)
	}
	return res, err
}

func (r *Runner) runBuffered(ctx context.Context, inv Invocation, args []string, opts ExecOptions, timeout time.Duration) (*Result, error) {
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	program, argv := inv.Command(args)
	cmd := exec.CommandContext(runCtx, program, argv...)
	cmd.Dir = opts.Cwd
	stdout, stderr := newCappedBuffer(r.maxOutput), newCappedBuffer(r.maxOutput)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.Cancel = func() error {
		return killProcessTree(cmd.Process)
	}
	cmd.WaitDelay = r.waitDelay

	err := cmd.Run()
	timedOut := errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil
	return r.finish(ctx, inv, args, timeout, timedOut, stdout, stderr, err)
}

func (r *Runner) runWithStdin(ctx context.Context, inv Invocation, args []string, opts ExecOptions, timeout time.Duration) (*Result, error) {
	program, argv := inv.Command(args)
	cmd := exec.CommandContext(ctx, program, argv...)
	cmd.Dir = opts.Cwd
	stdout, stderr := newCappedBuffer(r.maxOutput), newCappedBuffer(r.maxOutput)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.Cancel = func() error {
		return killProcessTree(cmd.Process)
	}
	cmd.WaitDelay = r.waitDelay

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, &ExecError{Kind: ExecFailed, Path: inv.Path, Args: args, Err: err}
	}
	if err := cmd.Start(); err != nil {
		return r.finish(ctx, inv, args, timeout, false, stdout, stderr, err)
	}

	var timedOut atomic.Bool
	timer := time.AfterFunc(timeout, func() {
		timedOut.Store(true)
		_ = killProcessTree(cmd.Process)
	})
	defer timer.Stop()

	// The child may exit without reading its input; the write error is
	// irrelevant then.
	go func() {
		defer stdin.Close()
		_, _ = stdin.Write(opts.Stdin)
	}()

	err = cmd.Wait()
	timer.Stop()
	return r.finish(ctx, inv, args, timeout, timedOut.Load(), stdout, stderr, err)
}

// finish classifies the outcome of a run.
func (r *Runner) finish(ctx context.Context, inv Invocation, args []string, timeout time.Duration, timedOut bool, stdout, stderr *cappedBuffer, err error) (*Result, error) {
	execErr := &ExecError{
		Path:    inv.Path,
		Args:    args,
		Timeout: timeout,
		Stdout:  stdout.String(),
		Stderr:  stderr.String(),
		Err:     err,
	}

	var exitErr *exec.ExitError
	switch {
	case timedOut:
		execErr.Kind = ExecTimeout
		if execErr.Err == nil {
			execErr.Err = context.DeadlineExceeded
		}
	case err != nil && ctx.Err() != nil:
		execErr.Kind = ExecFailed
		execErr.Err = ctx.Err()
	case err != nil && isNotFound(err):
		execErr.Kind = ExecNotFound
	case stdout.Overflowed() || stderr.Overflowed():
		execErr.Kind = ExecOutputLimit
	case errors.As(err, &exitErr):
		execErr.Kind = ExecNonZeroExit
		execErr.ExitCode = exitErr.ExitCode()
	case err != nil:
		execErr.Kind = ExecFailed
	default:
		return &Result{Stdout: execErr.Stdout, Stderr: execErr.Stderr}, nil
	}
	return nil, execErr
}

// isNotFound reports whether a start error means the executable (or its
// script host) is missing or cannot be executed.
func isNotFound(err error) bool {
	return errors.Is(err, exec.ErrNotFound) ||
		errors.Is(err, fs.ErrNotExist) ||
		errors.Is(err, fs.ErrPermission)
}

// cappedBuffer keeps at most limit bytes and records whether more arrived.
// Writes never fail so the child is not blocked on a full pipe.
type cappedBuffer struct {
	mu        sync.Mutex
	buf       bytes.Buffer
	limit     int
	overflown bool
}

func newCappedBuffer(limit int) *cappedBuffer {
	return &cappedBuffer{limit: limit}
}

func (c *cappedBuffer) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	room := c.limit - c.buf.Len()
	if room < len(p) {
		c.overflown = true
		if room > 0 {
			c.buf.Write(p[:room])
		}
		return len(p), nil
	}
	c.buf.Write(p)
	return len(p), nil
}

func (c *cappedBuffer) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.String()
}

// Overflowed reports whether output beyond the limit was discarded.
func (c *cappedBuffer) Overflowed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.overflown
}
