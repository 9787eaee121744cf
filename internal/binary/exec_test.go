package binary

import (
	"context"
	"errors"
	"os/exec"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/ZebulonRouseFrantzich/sgctl/internal/testutil"
)

func TestNewInvocation(t *testing.T) {
	tests := []struct {
		path        string
		wantShape   Shape
		wantProgram string
		wantArgs    []string
	}{
		{
			path:        "/usr/bin/ast-grep",
			wantShape:   ShapeNative,
			wantProgram: "/usr/bin/ast-grep",
			wantArgs:    []string{"run", "-p", "x"},
		},
		{
			path:        `C:\tools\ast-grep.exe`,
			wantShape:   ShapeNative,
			wantProgram: `C:\tools\ast-grep.exe`,
			wantArgs:    []string{"run", "-p", "x"},
		},
		{
			path:        `C:\npm\ast-grep.ps1`,
			wantShape:   ShapePowerShell,
			wantProgram: "powershell",
			wantArgs:    []string{"-NoProfile", "-NonInteractive", "-ExecutionPolicy", "Bypass", "-File", `C:\npm\ast-grep.ps1`, "run", "-p", "x"},
		},
		{
			path:        `C:\npm\ast-grep.CMD`,
			wantShape:   ShapeCmd,
			wantProgram: "cmd.exe",
			wantArgs:    []string{"/d", "/s", "/c", `C:\npm\ast-grep.CMD`, "run", "-p", "x"},
		},
		{
			path:        `C:\npm\ast-grep.bat`,
			wantShape:   ShapeCmd,
			wantProgram: "cmd.exe",
			wantArgs:    []string{"/d", "/s", "/c", `C:\npm\ast-grep.bat`, "run", "-p", "x"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			inv := NewInvocation(tt.path)
			if inv.Shape != tt.wantShape {
				t.Errorf("shape = %s, want %s", inv.Shape, tt.wantShape)
			}
			program, args := inv.Command([]string{"run", "-p", "x"})
			if program != tt.wantProgram {
				t.Errorf("program = %q, want %q", program, tt.wantProgram)
			}
			if !reflect.DeepEqual(args, tt.wantArgs) {
				t.Errorf("args = %q, want %q", args, tt.wantArgs)
			}
		})
	}
}

func TestInvocationCommand_DoesNotAliasHost(t *testing.T) {
	inv := NewInvocation("script.ps1")
	_, first := inv.Command([]string{"a"})
	first[0] = "mutated"
	_, second := inv.Command([]string{"a"})
	if second[0] != "-NoProfile" {
		t.Errorf("host prefix was mutated: %q", second)
	}
}

func TestRunner_Buffered(t *testing.T) {
	testutil.SkipOnWindows(t)

	dir := t.TempDir()
	tool := testutil.WriteFakeTool(t, dir, "tool", `echo "out $*"; echo "err" >&2; pwd`)

	workDir := t.TempDir()
	res, err := NewRunner(nil, nil).Run(context.Background(), NewInvocation(tool), []string{"a", "b"}, ExecOptions{Cwd: workDir})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(res.Stdout, "out a b") {
		t.Errorf("stdout = %q", res.Stdout)
	}
	if strings.TrimSpace(res.Stderr) != "err" {
		t.Errorf("stderr = %q", res.Stderr)
	}
	wantDir, _ := filepath.EvalSymlinks(workDir)
	if !strings.Contains(res.Stdout, wantDir) && !strings.Contains(res.Stdout, workDir) {
		t.Errorf("expected cwd %s in output %q", workDir, res.Stdout)
	}
}

func TestRunner_Stdin(t *testing.T) {
	testutil.SkipOnWindows(t)

	cat, err := exec.LookPath("cat")
	if err != nil {
		t.Skip("cat not available")
	}

	runner := NewRunner(nil, nil)
	ctx := context.Background()

	res, err := runner.Run(ctx, NewInvocation(cat), nil, ExecOptions{Stdin: []byte("console.log(1)")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Stdout != "console.log(1)" {
		t.Errorf("stdout = %q, want %q", res.Stdout, "console.log(1)")
	}

	// An empty, non-nil payload still selects stdin mode and closes input.
	res, err = runner.Run(ctx, NewInvocation(cat), nil, ExecOptions{Stdin: []byte{}, Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Stdout != "" {
		t.Errorf("stdout = %q, want empty", res.Stdout)
	}
}

func TestRunner_Timeout(t *testing.T) {
	testutil.SkipOnWindows(t)

	dir := t.TempDir()
	// The child spawns a grandchild so the tree kill is exercised.
	tool := testutil.WriteFakeTool(t, dir, "slow", "sleep 30 &\nwait\n")

	for _, stdin := range [][]byte{nil, []byte("input")} {
		name := "buffered"
		if stdin != nil {
			name = "stdin"
		}
		t.Run(name, func(t *testing.T) {
			start := time.Now()
			_, err := NewRunner(nil, nil).Run(context.Background(), NewInvocation(tool), nil, ExecOptions{
				Timeout: 200 * time.Millisecond,
				Stdin:   stdin,
			})
			if !errors.Is(err, ErrTimeout) {
				t.Fatalf("expected ErrTimeout, got %v", err)
			}
			var execErr *ExecError
			if !errors.As(err, &execErr) || execErr.Kind != ExecTimeout {
				t.Errorf("expected ExecError of kind timeout, got %v", err)
			}
			if elapsed := time.Since(start); elapsed > 10*time.Second {
				t.Errorf("timeout took too long: %v", elapsed)
			}
		})
	}
}

func TestRunner_NonZeroExit(t *testing.T) {
	testutil.SkipOnWindows(t)

	tool := testutil.WriteFakeTool(t, t.TempDir(), "fail", `echo partial; echo "bad pattern" >&2; exit 2`)

	_, err := NewRunner(nil, nil).Run(context.Background(), NewInvocation(tool), nil, ExecOptions{})
	if !errors.Is(err, ErrNonZeroExit) {
		t.Fatalf("expected ErrNonZeroExit, got %v", err)
	}

	var execErr *ExecError
	if !errors.As(err, &execErr) {
		t.Fatalf("expected *ExecError, got %T", err)
	}
	if execErr.ExitCode != 2 {
		t.Errorf("exit code = %d, want 2", execErr.ExitCode)
	}
	if strings.TrimSpace(execErr.Stdout) != "partial" || strings.TrimSpace(execErr.Stderr) != "bad pattern" {
		t.Errorf("captured output = %q / %q", execErr.Stdout, execErr.Stderr)
	}
	if !strings.Contains(err.Error(), "bad pattern") {
		t.Errorf("error message should include stderr: %v", err)
	}
}

func TestRunner_NotFound(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "ast-grep")

	for _, stdin := range [][]byte{nil, []byte("x")} {
		_, err := NewRunner(nil, nil).Run(context.Background(), NewInvocation(missing), nil, ExecOptions{Stdin: stdin})
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("stdin=%v: expected ErrNotFound, got %v", stdin != nil, err)
		}
	}
}

func TestRunner_OutputLimit(t *testing.T) {
	testutil.SkipOnWindows(t)

	tool := testutil.WriteFakeTool(t, t.TempDir(), "chatty", `i=0; while [ $i -lt 100 ]; do echo 0123456789; i=$((i+1)); done`)

	runner := NewRunner(nil, nil)
	runner.maxOutput = 64

	_, err := runner.Run(context.Background(), NewInvocation(tool), nil, ExecOptions{})
	if !errors.Is(err, ErrOutputLimit) {
		t.Fatalf("expected ErrOutputLimit, got %v", err)
	}
}

func TestRunner_ParentCancellation(t *testing.T) {
	testutil.SkipOnWindows(t)

	tool := testutil.WriteFakeTool(t, t.TempDir(), "slow", "sleep 30\n")

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)

	_, err := NewRunner(nil, nil).Run(ctx, NewInvocation(tool), nil, ExecOptions{Timeout: time.Minute})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if errors.Is(err, ErrTimeout) {
		t.Error("parent cancellation should not be reported as a timeout")
	}
}

func TestCappedBuffer(t *testing.T) {
	b := newCappedBuffer(5)

	n, err := b.Write([]byte("abc"))
	if n != 3 || err != nil {
		t.Fatalf("Write = %d, %v", n, err)
	}
	n, err = b.Write([]byte("defg"))
	if n != 4 || err != nil {
		t.Fatalf("Write = %d, %v", n, err)
	}

	if b.String() != "abcde" {
		t.Errorf("String() = %q", b.String())
	}
	if !b.Overflowed() {
		t.Error("expected overflow")
	}
}
