package fs

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"flowstate-go/internal/flow"
)

var (
	textTypes = map[string]bool{
		"txt": true, "md": true, "markdown": true, "rst": true, "log": true,
		"json": true, "yaml": true, "yml": true, "toml": true, "ini": true, "cfg": true,
		"csv": true, "tsv": true, "xml": true, "html": true, "css": true, "sql": true,
		"go": true, "py": true, "js": true, "ts": true, "jsx": true, "tsx": true,
		"rs": true, "swift": true, "java": true, "c": true, "cpp": true, "h": true, "sh": true,
	}
	imageTypes = map[string]bool{
		"png": true, "jpg": true, "jpeg": true, "gif": true, "webp": true, "bmp": true, "svg": true,
	}
)

// OSFilesystemManager is the real filesystem implementation of FilesystemManager.
// It performs actual filesystem operations using the os package.
type OSFilesystemManager struct{}

// NewOSFilesystemManager creates a new filesystem manager that operates on the real filesystem.
func NewOSFilesystemManager() *OSFilesystemManager {
	return &OSFilesystemManager{}
}

// Stat returns file info for a path. Symlinks are followed; device files,
// pipes and sockets are rejected.
func (m *OSFilesystemManager) Stat(path string) (fs.FileInfo, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", path, flow.ErrNotFound)
		}
		return nil, fmt.Errorf("%w: stat %s: %v", flow.ErrIO, path, err)
	}

	mode := info.Mode()
	if mode&os.ModeDevice != 0 || mode&os.ModeNamedPipe != 0 || mode&os.ModeSocket != 0 {
		return nil, fmt.Errorf("%w: unsupported file type: %s", flow.ErrInvalidInput, path)
	}
	return info, nil
}

// Open opens a file for reading.
func (m *OSFilesystemManager) Open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", path, flow.ErrNotFound)
		}
		return nil, fmt.Errorf("%w: opening %s: %v", flow.ErrIO, path, err)
	}
	return f, nil
}

func (m *OSFilesystemManager) Remove(path string) error {
	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%s: %w", path, flow.ErrNotFound)
		}
		return fmt.Errorf("%w: removing %s: %v", flow.ErrIO, path, err)
	}
	return nil
}

func (m *OSFilesystemManager) MkdirAll(path string) error {
	return os.MkdirAll(path, 0755)
}

// WriteFile writes data to a temp file next to path and renames it into place.
func (m *OSFilesystemManager) WriteFile(path string, data []byte) error {
	tmpFile, err := os.CreateTemp(filepath.Dir(path), ".flowstate-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("writing data: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		return fmt.Errorf("setting permissions: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("renaming temp file: %w", err)
	}

	success = true
	return nil
}

// IsEmptyDir reports whether path is missing or an empty directory.
// An existing regular file is not empty.
func (m *OSFilesystemManager) IsEmptyDir(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return true, nil
		}
		return false, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return false, err
	}
	if !info.IsDir() {
		return false, nil
	}

	_, err = f.Readdirnames(1)
	if errors.Is(err, io.EOF) {
		return true, nil
	}
	return false, err
}

// ReadContent reads a file and classifies it by fileType: text files are
// returned as text, images and PDFs as base64, anything else as metadata only.
func (m *OSFilesystemManager) ReadContent(path, fileType string) (*flow.Content, error) {
	info, err := m.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", flow.ErrInvalidInput, path)
	}

	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: detecting type of %s: %v", flow.ErrIO, path, err)
	}

	fileType = strings.ToLower(strings.TrimPrefix(fileType, "."))
	c := &flow.Content{
		Kind:     Classify(fileType),
		Path:     path,
		FileType: fileType,
		MimeType: mtype.String(),
		Size:     info.Size(),
	}
	if c.Kind == flow.ContentBinary {
		return c, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", flow.ErrIO, path, err)
	}
	if c.Kind == flow.ContentText {
		c.Text = strings.ToValidUTF8(string(data), "�")
	} else {
		c.Base64 = base64.StdEncoding.EncodeToString(data)
	}
	return c, nil
}

// Classify maps a lower-case file type to the kind of content ReadContent returns.
func Classify(fileType string) flow.ContentKind {
	switch {
	case fileType == "pdf":
		return flow.ContentPDF
	case imageTypes[fileType]:
		return flow.ContentImage
	case textTypes[fileType]:
		return flow.ContentText
	default:
		return flow.ContentBinary
	}
}

// Compile-time check that OSFilesystemManager implements flow.FilesystemManager interface
var _ flow.FilesystemManager = (*OSFilesystemManager)(nil)
