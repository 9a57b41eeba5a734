package bundle

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"flowstate-go/internal/flow"
)

// FileSystemBundle stores attachment files below a data root:
//
//	<root>/
//	  projects/
//	    project_<id>/
//	      attachments/
//	        <file name>      (first copy)
//	        <stem>_1<ext>    (next copy with the same name)
type FileSystemBundle struct {
	root string
}

// NewFileSystemBundle creates a bundle rooted at the given data root.
// Project directories are created lazily by Put.
func NewFileSystemBundle(root string) (*FileSystemBundle, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving bundle root: %w", err)
	}
	return &FileSystemBundle{root: abs}, nil
}

func (b *FileSystemBundle) Root() string { return b.root }

func (b *FileSystemBundle) Dir(projectID int64) string {
	return filepath.Join(b.root, flow.ProjectBundleDir(projectID))
}

// Put copies r into the project's bundle. The content is written to a
// temporary file first and then linked under the first free name, so a stored
// file is always complete and an existing one is never replaced.
func (b *FileSystemBundle) Put(projectID int64, fileName string, r io.Reader) (string, error) {
	name := filepath.Base(fileName)
	if name == "." || name == ".." || name == string(filepath.Separator) {
		return "", fmt.Errorf("%w: invalid file name %q", flow.ErrInvalidInput, fileName)
	}

	dir := b.Dir(projectID)
	created, err := mkdirTracked(b.root, dir)
	if err != nil {
		return "", fmt.Errorf("%w: creating bundle directory: %v", flow.ErrIO, err)
	}

	success := false
	defer func() {
		if !success {
			removeIfEmpty(created)
		}
	}()

	tmpFile, err := os.CreateTemp(dir, ".flowstate-*.tmp")
	if err != nil {
		return "", fmt.Errorf("%w: creating temp file: %v", flow.ErrIO, err)
	}
	tmpPath := tmpFile.Name()
	defer os.Remove(tmpPath)

	if _, err := io.Copy(tmpFile, r); err != nil {
		tmpFile.Close()
		return "", fmt.Errorf("%w: writing data: %v", flow.ErrIO, err)
	}
	if err := tmpFile.Close(); err != nil {
		return "", fmt.Errorf("%w: closing temp file: %v", flow.ErrIO, err)
	}

	stored, err := claimName(dir, name, tmpPath)
	if err != nil {
		return "", err
	}

	success = true
	return filepath.ToSlash(filepath.Join(flow.ProjectBundleDir(projectID), stored)), nil
}

// link is replaced in tests to simulate filesystems without hard links.
var link = os.Link

// claimName links tmpPath into dir under name, or stem_N.ext for the first
// N that is free. Where hard links are unsupported, the name is claimed with
// an exclusive create and tmpPath is renamed over it.
func claimName(dir, name, tmpPath string) (string, error) {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)

	linked := true
	candidate := name
	for n := 1; ; n++ {
		target := filepath.Join(dir, candidate)
		var err error
		if linked {
			err = link(tmpPath, target)
			if err != nil && !errors.Is(err, fs.ErrExist) {
				linked = false
				err = claimByRename(tmpPath, target)
			}
		} else {
			err = claimByRename(tmpPath, target)
		}
		if err == nil {
			return candidate, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return "", fmt.Errorf("%w: storing %s: %v", flow.ErrIO, candidate, err)
		}
		candidate = stem + "_" + strconv.Itoa(n) + ext
	}
}

// claimByRename creates target exclusively and moves tmpPath onto it.
func claimByRename(tmpPath, target string) error {
	f, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(target)
		return err
	}
	if err := os.Rename(tmpPath, target); err != nil {
		os.Remove(target)
		return err
	}
	return nil
}

// mkdirTracked creates dir and returns the directories it had to create,
// deepest first.
func mkdirTracked(root, dir string) ([]string, error) {
	var missing []string
	for p := dir; flow.IsWithin(root, p); p = filepath.Dir(p) {
		if _, err := os.Stat(p); err == nil {
			break
		} else if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		missing = append(missing, p)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return missing, nil
}

// removeIfEmpty removes dirs in order, stopping at the first one that still
// has content.
func removeIfEmpty(dirs []string) {
	for _, d := range dirs {
		if err := os.Remove(d); err != nil {
			return
		}
	}
}

// Remove deletes a stored file given its path relative to the data root.
func (b *FileSystemBundle) Remove(relPath string) error {
	path := filepath.Join(b.root, filepath.FromSlash(relPath))
	if !flow.IsWithin(filepath.Join(b.root, "projects"), path) {
		return fmt.Errorf("%w: path outside bundle: %s", flow.ErrInvalidInput, relPath)
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%s: %w", relPath, flow.ErrNotFound)
		}
		return fmt.Errorf("%w: removing %s: %v", flow.ErrIO, relPath, err)
	}
	return nil
}

// ValidateSetup verifies that the data root exists and is a directory.
func (b *FileSystemBundle) ValidateSetup() error {
	info, err := os.Stat(b.root)
	if err != nil {
		return fmt.Errorf("data root not accessible: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("data root is not a directory: %s", b.root)
	}
	return nil
}

// Compile-time check that FileSystemBundle implements flow.Bundle interface
var _ flow.Bundle = (*FileSystemBundle)(nil)
