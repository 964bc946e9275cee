// Package archive unpacks bootstrap archives into the managed tree.
package archive

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"
	"github.com/openmined/assetsync/internal/progress"
)

// PathTraversalError rejects an entry that would land outside the target
// directory.
type PathTraversalError struct {
	Entry string
}

func (e *PathTraversalError) Error() string {
	return fmt.Sprintf("archive: entry is outside of the target dir: %s", e.Entry)
}

// ExtractZip unpacks src into destDir. Extraction stops at the first entry
// that resolves outside destDir; entries processed before it stay on disk.
func ExtractZip(src, destDir string, receiver progress.Receiver) error {
	receiver = progress.OrNop(receiver)

	dest, err := canonicalDest(destDir)
	if err != nil {
		return fmt.Errorf("archive: %w", err)
	}

	// a reader flagging insecure names is still usable; names are checked per entry
	r, err := zip.OpenReader(src)
	if err != nil && r == nil {
		return fmt.Errorf("archive: open %q: %w", src, err)
	}
	defer r.Close()

	total := len(r.File)
	for i, f := range r.File {
		target, err := entryTarget(dest, f.Name)
		if err != nil {
			return err
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("archive: %w", err)
			}
		} else if err := extractFile(f, target); err != nil {
			return err
		}

		done := i + 1
		receiver.SetSecondaryProgress(
			float64(done)/float64(total),
			fmt.Sprintf(": %5d / %5d entries decompressed", done, total),
		)
	}

	return nil
}

// canonicalDest creates destDir if needed and returns it with every symlink
// resolved.
func canonicalDest(destDir string) (string, error) {
	abs, err := filepath.Abs(destDir)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(abs)
}

// entryTarget resolves an entry name against the canonical dest and checks
// that it stays strictly below it, both lexically and once symlinks already
// on disk are followed.
func entryTarget(dest, name string) (string, error) {
	target := filepath.Clean(filepath.Join(dest, filepath.FromSlash(name)))
	if !within(dest, target) {
		return "", &PathTraversalError{Entry: name}
	}

	resolved, err := resolveExisting(target)
	if err != nil {
		if errors.Is(err, errDanglingLink) {
			return "", &PathTraversalError{Entry: name}
		}
		return "", fmt.Errorf("archive: %w", err)
	}
	if !within(dest, resolved) {
		return "", &PathTraversalError{Entry: name}
	}
	return target, nil
}

var errDanglingLink = errors.New("dangling symlink")

// resolveExisting follows symlinks on the longest existing prefix of path
// and appends the missing remainder unchanged.
func resolveExisting(path string) (string, error) {
	var rest []string
	for p := path; ; {
		resolved, err := filepath.EvalSymlinks(p)
		if err == nil {
			return filepath.Join(append([]string{resolved}, rest...)...), nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", err
		}
		// a link whose target is missing would still be followed on create
		if _, lerr := os.Lstat(p); lerr == nil {
			return "", errDanglingLink
		}

		parent := filepath.Dir(p)
		if parent == p {
			return path, nil
		}
		rest = append([]string{filepath.Base(p)}, rest...)
		p = parent
	}
}

func within(root, path string) bool {
	return strings.HasPrefix(path, root+string(os.PathSeparator))
}

func extractFile(f *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("archive: %w", err)
	}

	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("archive: open entry %q: %w", f.Name, err)
	}
	defer rc.Close()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("archive: %w", err)
	}

	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return fmt.Errorf("archive: extract %q: %w", f.Name, err)
	}
	return out.Close()
}
