package binary

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var versionRegex = regexp.MustCompile(`\d+\.\d+\.\d+`)

// CompareVersions compares two dotted version strings segment by segment
// and returns -1, 0 or 1. Missing and non-numeric segments count as zero,
// so "0.39" equals "0.39.0" and "0.39.alpha" equals "0.39.0".
func CompareVersions(a, b string) int {
	as := strings.Split(a, ".")
	bs := strings.Split(b, ".")

	n := len(as)
	if len(bs) > n {
		n = len(bs)
	}

	for i := 0; i < n; i++ {
		x, y := versionSegment(as, i), versionSegment(bs, i)
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
	}
	return 0
}

// versionSegment returns segment i as a number, or 0 when it is missing or
// not a plain non-negative integer.
func versionSegment(parts []string, i int) uint64 {
	if i >= len(parts) {
		return 0
	}
	n, err := strconv.ParseUint(strings.TrimSpace(parts[i]), 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// ExtractVersion returns the first x.y.z version in output, or "" when none
// is present.
func ExtractVersion(output string) string {
	return versionRegex.FindString(output)
}

// CheckMinimum returns a *VersionMismatchError when found is strictly lower
// than required. Equal and newer versions pass, as does an empty required.
func CheckMinimum(path, found, required string) error {
	if required == "" {
		return nil
	}
	if CompareVersions(found, required) < 0 {
		return &VersionMismatchError{Path: path, Found: found, Required: required}
	}
	return nil
}

// VersionVerifier runs candidates with VersionFlag to confirm they work and
// report a usable version.
type VersionVerifier struct {
	runner  *Runner
	timeout time.Duration
}

// NewVersionVerifier creates a verifier that executes candidates through runner.
func NewVersionVerifier(runner *Runner) *VersionVerifier {
	return &VersionVerifier{runner: runner, timeout: VersionCheckTimeout}
}

// DetectVersion runs path with VersionFlag and returns the first version
// found in its combined stdout and stderr. A clean run without a version
// string returns "" and a nil error; the caller decides whether that is
// acceptable.
func (v *VersionVerifier) DetectVersion(ctx context.Context, path string) (string, error) {
	res, err := v.runner.Run(ctx, NewInvocation(path), []string{VersionFlag}, ExecOptions{
		Timeout: v.timeout,
	})
	if err != nil {
		return "", fmt.Errorf("run %s %s: %w", filepath.Base(path), VersionFlag, err)
	}
	return ExtractVersion(res.Stdout + "\n" + res.Stderr), nil
}

// Validate runs the candidate and enforces minimum when it is set. A
// candidate that reports no version is accepted; the reported version is
// returned as "".
func (v *VersionVerifier) Validate(ctx context.Context, path, minimum string) (string, error) {
	found, err := v.DetectVersion(ctx, path)
	if err != nil {
		return "", err
	}
	if found == "" {
		return "", nil
	}
	if err := CheckMinimum(path, found, minimum); err != nil {
		return found, err
	}
	return found, nil
}
