package testutil

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"flowstate-go/internal/flow"
	fsys "flowstate-go/internal/fs"
)

// MockFile represents a file in the mock filesystem.
type MockFile struct {
	Content     []byte
	Permissions fs.FileMode
	ModTime     time.Time
	IsDirectory bool
	// Unreadable makes Open fail while Stat still succeeds.
	Unreadable bool
}

// MockFilesystemManager is an in-memory filesystem for testing. Paths are
// cleaned absolute paths. Safe for concurrent use.
type MockFilesystemManager struct {
	mu    sync.Mutex
	files map[string]*MockFile
}

// NewMockFilesystemManager creates a new mock filesystem.
func NewMockFilesystemManager() *MockFilesystemManager {
	return &MockFilesystemManager{
		files: make(map[string]*MockFile),
	}
}

func key(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(path)
	}
	return abs
}

// AddFile adds a file to the mock filesystem.
func (m *MockFilesystemManager) AddFile(path string, content []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[key(path)] = &MockFile{
		Content:     content,
		Permissions: 0644,
		ModTime:     time.Now(),
	}
}

// AddUnreadableFile adds a file whose content cannot be opened.
func (m *MockFilesystemManager) AddUnreadableFile(path string, size int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[key(path)] = &MockFile{
		Content:     make([]byte, size),
		Permissions: 0000,
		ModTime:     time.Now(),
		Unreadable:  true,
	}
}

// AddDirectory adds a directory to the mock filesystem.
func (m *MockFilesystemManager) AddDirectory(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[key(path)] = &MockFile{
		Permissions: 0755 | fs.ModeDir,
		ModTime:     time.Now(),
		IsDirectory: true,
	}
}

// Exists reports whether path is present.
func (m *MockFilesystemManager) Exists(path string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.files[key(path)]
	return ok
}

func (m *MockFilesystemManager) lookup(path string) (*MockFile, string, error) {
	k := key(path)
	file, ok := m.files[k]
	if !ok {
		return nil, k, fmt.Errorf("%w: %s", flow.ErrNotFound, k)
	}
	return file, k, nil
}

func (m *MockFilesystemManager) Stat(path string) (fs.FileInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	file, k, err := m.lookup(path)
	if err != nil {
		return nil, err
	}
	return &mockFileInfo{
		name:    filepath.Base(k),
		size:    int64(len(file.Content)),
		mode:    file.Permissions,
		modTime: file.ModTime,
		isDir:   file.IsDirectory,
	}, nil
}

func (m *MockFilesystemManager) Open(path string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	file, k, err := m.lookup(path)
	if err != nil {
		return nil, err
	}
	if file.IsDirectory {
		return nil, fmt.Errorf("cannot open directory: %s", k)
	}
	if file.Unreadable {
		return nil, fmt.Errorf("open %s: %w", k, fs.ErrPermission)
	}
	return io.NopCloser(bytes.NewReader(file.Content)), nil
}

func (m *MockFilesystemManager) Remove(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, k, err := m.lookup(path)
	if err != nil {
		return err
	}
	delete(m.files, k)
	return nil
}

func (m *MockFilesystemManager) MkdirAll(path string) error {
	k := key(path)
	for dir := k; ; dir = filepath.Dir(dir) {
		if !m.Exists(dir) {
			m.AddDirectory(dir)
		}
		if filepath.Dir(dir) == dir {
			return nil
		}
	}
}

func (m *MockFilesystemManager) WriteFile(path string, data []byte) error {
	m.AddFile(path, bytes.Clone(data))
	return nil
}

func (m *MockFilesystemManager) IsEmptyDir(path string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := key(path)
	file, ok := m.files[k]
	if !ok {
		return true, nil
	}
	if !file.IsDirectory {
		return false, nil
	}
	prefix := k + string(filepath.Separator)
	for p := range m.files {
		if strings.HasPrefix(p, prefix) {
			return false, nil
		}
	}
	return true, nil
}

// ReadContent classifies by file type like the OS implementation, without
// MIME sniffing.
func (m *MockFilesystemManager) ReadContent(path, fileType string) (*flow.Content, error) {
	m.mu.Lock()
	file, k, err := m.lookup(path)
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if file.Unreadable {
		return nil, fmt.Errorf("%w: reading %s: %v", flow.ErrIO, k, fs.ErrPermission)
	}

	c := &flow.Content{
		Kind:     fsys.Classify(fileType),
		Path:     k,
		FileType: fileType,
		Size:     int64(len(file.Content)),
	}
	switch c.Kind {
	case flow.ContentText:
		c.Text = string(file.Content)
	case flow.ContentImage, flow.ContentPDF:
		c.Base64 = base64.StdEncoding.EncodeToString(file.Content)
	}
	return c, nil
}

// mockFileInfo implements fs.FileInfo
type mockFileInfo struct {
	name    string
	size    int64
	mode    fs.FileMode
	modTime time.Time
	isDir   bool
}

func (m *mockFileInfo) Name() string       { return m.name }
func (m *mockFileInfo) Size() int64        { return m.size }
func (m *mockFileInfo) Mode() fs.FileMode  { return m.mode }
func (m *mockFileInfo) ModTime() time.Time { return m.modTime }
func (m *mockFileInfo) IsDir() bool        { return m.isDir }
func (m *mockFileInfo) Sys() any           { return nil }

// Compile-time check
var _ flow.FilesystemManager = (*MockFilesystemManager)(nil)
