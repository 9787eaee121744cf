package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ZebulonRouseFrantzich/sgctl/internal/binary"
)

func newRunCmd(a *app) *cobra.Command {
	var (
		cwd       string
		timeout   time.Duration
		stdinFile string
	)

	cmd := &cobra.Command{
		Use:   "run [flags] -- [ast-grep args...]",
		Short: "Run ast-grep with the given arguments",
		Long: `Resolve ast-grep and run it with the given arguments. Output is captured
and replayed; the exit code of ast-grep becomes the exit code of sgctl.

Use --stdin-file to feed source text to ast-grep ("-" reads sgctl's own stdin).`,
		Example: `  sgctl run -- run --pattern 'foo($A)' --lang ts src/
  echo 'console.log(1)' | sgctl run --stdin-file - -- run --pattern 'console.log($A)' --lang js --stdin`,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := binary.ExecOptions{Cwd: cwd, Timeout: timeout}
			if stdinFile != "" {
				payload, err := readInput(cmd.InOrStdin(), stdinFile)
				if err != nil {
					return err
				}
				opts.Stdin = payload
			}

			m, err := a.initializedManager(cmd.Context())
			if err != nil {
				return err
			}

			res, err := m.Execute(cmd.Context(), args, opts)
			if err != nil {
				var execErr *binary.ExecError
				if errors.As(err, &execErr) && execErr.Kind == binary.ExecNonZeroExit {
					io.WriteString(cmd.OutOrStdout(), execErr.Stdout)
					io.WriteString(cmd.ErrOrStderr(), execErr.Stderr)
					return &exitCodeError{code: execErr.ExitCode}
				}
				return err
			}

			io.WriteString(cmd.OutOrStdout(), res.Stdout)
			io.WriteString(cmd.ErrOrStderr(), res.Stderr)
			return nil
		},
	}
	// Everything after the first positional argument belongs to ast-grep.
	cmd.Flags().SetInterspersed(false)
	cmd.Flags().StringVar(&cwd, "cwd", "", "working directory for ast-grep")
	cmd.Flags().DurationVar(&timeout, "timeout", binary.DefaultExecTimeout, "kill ast-grep after this long")
	cmd.Flags().StringVar(&stdinFile, "stdin-file", "", `file whose contents are piped to ast-grep ("-" for stdin)`)
	return cmd
}

func readInput(stdin io.Reader, path string) ([]byte, error) {
	if path == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read stdin file: %w", err)
	}
	return data, nil
}
