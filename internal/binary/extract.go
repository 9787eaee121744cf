package binary

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ZebulonRouseFrantzich/sgctl/internal/archive"
	"github.com/ZebulonRouseFrantzich/sgctl/internal/logging"
)

// ArchiverTimeout bounds each system archiver invocation.
const ArchiverTimeout = 30 * time.Second

var errArchiverMissing = errors.New("archiver not installed")

// extractStrategy unpacks archivePath into destDir.
type extractStrategy struct {
	name string
	run  func(ctx context.Context, archivePath, destDir string) error
}

// Extractor installs the executable contained in a release archive. It tries
// the builtin parsers first, then whatever system archivers the platform
// offers, and stops at the first strategy that yields the executable.
type Extractor struct {
	goos         string
	preferSystem bool
	system       []extractStrategy
	logger       logging.Logger
}

// NewExtractor creates an extractor for goos. When preferSystem is set the
// builtin parsers are tried after the system archivers.
func NewExtractor(goos string, preferSystem bool, logger logging.Logger) *Extractor {
	return &Extractor{
		goos:         goos,
		preferSystem: preferSystem,
		system:       systemArchivers(goos),
		logger:       logging.OrNop(logger),
	}
}

// systemArchivers lists the external tools tried after the builtin parser.
func systemArchivers(goos string) []extractStrategy {
	if goos == "windows" {
		return []extractStrategy{
			commandStrategy("tar.exe", func(a, d string) []string { return []string{"-xf", a, "-C", d} }),
			commandStrategy("powershell", expandArchiveArgs),
			commandStrategy("pwsh", expandArchiveArgs),
		}
	}
	return []extractStrategy{
		commandStrategy("unzip", func(a, d string) []string { return []string{"-o", "-q", a, "-d", d} }),
		commandStrategy("tar", func(a, d string) []string { return []string{"-xf", a, "-C", d} }),
	}
}

func expandArchiveArgs(archivePath, destDir string) []string {
	quote := func(s string) string { return "'" + strings.ReplaceAll(s, "'", "''") + "'" }
	return []string{
		"-NoProfile", "-NonInteractive", "-Command",
		fmt.Sprintf("Expand-Archive -LiteralPath %s -DestinationPath %s -Force", quote(archivePath), quote(destDir)),
	}
}

// commandStrategy runs program with ArchiverTimeout. A program missing from
// PATH yields errArchiverMissing.
func commandStrategy(program string, args func(archivePath, destDir string) []string) extractStrategy {
	return extractStrategy{
		name: program,
		run: func(ctx context.Context, archivePath, destDir string) error {
			ctx, cancel := context.WithTimeout(ctx, ArchiverTimeout)
			defer cancel()

			cmd := exec.CommandContext(ctx, program, args(archivePath, destDir)...)
			out, err := cmd.CombinedOutput()
			switch {
			case err == nil:
				return nil
			case errors.Is(err, exec.ErrNotFound), errors.Is(err, fs.ErrNotExist):
				return errArchiverMissing
			case ctx.Err() != nil:
				return fmt.Errorf("timed out after %s", ArchiverTimeout)
			}
			if msg := strings.TrimSpace(string(out)); msg != "" {
				return fmt.Errorf("%w: %s", err, msg)
			}
			return err
		},
	}
}

// strategies returns the extraction order for archivePath.
func (e *Extractor) strategies(archivePath string) []extractStrategy {
	builtin := extractStrategy{name: "builtin zip", run: extractZip}
	if isTarGz(archivePath) {
		builtin = extractStrategy{name: "builtin tar.gz", run: extractTarGz}
	}

	out := make([]extractStrategy, 0, len(e.system)+1)
	if !e.preferSystem {
		out = append(out, builtin)
	}
	out = append(out, e.system...)
	if e.preferSystem {
		out = append(out, builtin)
	}
	return out
}

func isTarGz(path string) bool {
	lower := strings.ToLower(path)
	return strings.HasSuffix(lower, ".tar.gz") || strings.HasSuffix(lower, ".tgz")
}

// Install extracts archivePath, finds exeName anywhere inside it and moves
// it onto target with mode 0755. The executable is staged as
// target.partial so target only ever appears complete. The archive and the
// scratch directory are removed whatever the outcome.
func (e *Extractor) Install(ctx context.Context, archivePath, target, exeName string) error {
	defer os.Remove(archivePath)

	targetDir := filepath.Dir(target)
	if err := os.MkdirAll(targetDir, 0755); err != nil {
		return fmt.Errorf("create target dir: %w", err)
	}

	scratch := filepath.Join(targetDir, ".extract-"+uuid.NewString())
	defer os.RemoveAll(scratch)

	var failures []error
	for _, s := range e.strategies(archivePath) {
		if err := ctx.Err(); err != nil {
			failures = append(failures, err)
			break
		}

		err := e.tryStrategy(ctx, s, archivePath, scratch, target, exeName)
		if err == nil {
			e.logger.Debug("extracted", "strategy", s.name, "target", target)
			return nil
		}
		e.logger.Debug("extraction strategy failed", "strategy", s.name, "error", err)
		failures = append(failures, fmt.Errorf("%s: %w", s.name, err))
	}

	return &ExtractionError{Archive: archivePath, Failures: failures}
}

func (e *Extractor) tryStrategy(ctx context.Context, s extractStrategy, archivePath, scratch, target, exeName string) error {
	if err := os.RemoveAll(scratch); err != nil {
		return fmt.Errorf("reset scratch dir: %w", err)
	}
	if err := os.MkdirAll(scratch, 0755); err != nil {
		return fmt.Errorf("create scratch dir: %w", err)
	}

	if err := s.run(ctx, archivePath, scratch); err != nil {
		return err
	}

	found, err := e.findExecutable(scratch, exeName)
	if err != nil {
		return err
	}
	return stageExecutable(found, target)
}

// findExecutable walks root for a regular file named exeName. Windows file
// names compare case-insensitively.
func (e *Extractor) findExecutable(root, exeName string) (string, error) {
	var found string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		name := d.Name()
		if name == exeName || (e.goos == "windows" && strings.EqualFold(name, exeName)) {
			found = path
			return fs.SkipAll
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("search extracted files: %w", err)
	}
	if found == "" {
		return "", fmt.Errorf("%s not found in archive", exeName)
	}
	return found, nil
}

// stageExecutable moves src to target via target.partial.
func stageExecutable(src, target string) error {
	partial := target + ".partial"
	if err := os.Rename(src, partial); err != nil {
		return fmt.Errorf("stage executable: %w", err)
	}
	if err := os.Chmod(partial, 0755); err != nil {
		os.Remove(partial)
		return fmt.Errorf("set executable: %w", err)
	}
	if err := os.Rename(partial, target); err != nil {
		os.Remove(partial)
		return fmt.Errorf("move executable into place: %w", err)
	}
	return nil
}

func extractZip(_ context.Context, archivePath, destDir string) error {
	return archive.ExtractFile(archivePath, destDir)
}

// extractTarGz extracts a .tar.gz archive to a destination directory
func extractTarGz(_ context.Context, archivePath, destDir string) error {
	archiveFile, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer archiveFile.Close()

	gzipReader, err := gzip.NewReader(archiveFile)
	if err != nil {
		return fmt.Errorf("create gzip reader: %w", err)
	}
	defer gzipReader.Close()

	tarReader := tar.NewReader(gzipReader)

	if err := os.MkdirAll(destDir, 0755); err != nil {
		return fmt.Errorf("create dest dir: %w", err)
	}
	root := filepath.Clean(destDir)

	for {
		header, err := tarReader.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read tar header: %w", err)
		}

		target := filepath.Join(root, header.Name)
		if !withinDir(root, target) {
			return fmt.Errorf("illegal file path: %s", header.Name)
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0755); err != nil {
				return fmt.Errorf("create directory %s: %w", target, err)
			}

		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return fmt.Errorf("create parent dir for %s: %w", target, err)
			}
			outFile, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(header.Mode)&0777)
			if err != nil {
				return fmt.Errorf("create file %s: %w", target, err)
			}
			if _, err := io.Copy(outFile, tarReader); err != nil {
				outFile.Close()
				return fmt.Errorf("write file %s: %w", target, err)
			}
			if err := outFile.Close(); err != nil {
				return fmt.Errorf("close file %s: %w", target, err)
			}

		case tar.TypeSymlink:
			// Links may only point inside the extraction root.
			if filepath.IsAbs(header.Linkname) {
				return fmt.Errorf("illegal symlink target: %s -> %s", header.Name, header.Linkname)
			}
			resolved := filepath.Join(filepath.Dir(target), header.Linkname)
			if !withinDir(root, resolved) {
				return fmt.Errorf("illegal symlink target: %s -> %s", header.Name, header.Linkname)
			}
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return fmt.Errorf("create parent dir for %s: %w", target, err)
			}
			if err := os.Symlink(header.Linkname, target); err != nil {
				return fmt.Errorf("create symlink %s: %w", target, err)
			}

		default:
			// Skip other types (char devices, block devices, etc.)
			continue
		}
	}
}

func withinDir(root, path string) bool {
	return path == root || strings.HasPrefix(path, root+string(os.PathSeparator))
}
