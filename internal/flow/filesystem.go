package flow

import (
	"io"
	"io/fs"
)

// ContentKind classifies file content returned by ReadContent.
type ContentKind string

const (
	ContentText   ContentKind = "text"
	ContentImage  ContentKind = "image"
	ContentPDF    ContentKind = "pdf"
	ContentBinary ContentKind = "binary"
)

// Content is a file's content as handed to callers that must not touch the
// filesystem themselves. Text is set for text files, Base64 for images and
// PDFs; binary files carry metadata only.
type Content struct {
	Kind     ContentKind
	Path     string
	FileType string
	MimeType string
	Size     int64
	Text     string
	Base64   string
}

// FilesystemManager provides an interface for filesystem operations.
// It abstracts file access to enable testing without touching the real filesystem.
type FilesystemManager interface {
	// Stat returns file info. A missing file yields an error wrapping ErrNotFound.
	Stat(path string) (fs.FileInfo, error)

	// Open opens a file for reading.
	Open(path string) (io.ReadCloser, error)

	// Remove deletes a file.
	Remove(path string) error

	// MkdirAll creates a directory and any missing parents.
	MkdirAll(path string) error

	// WriteFile atomically replaces the file at path with data.
	WriteFile(path string, data []byte) error

	// IsEmptyDir reports whether path is missing or an empty directory.
	IsEmptyDir(path string) (bool, error)

	// ReadContent reads and classifies a file by its file type.
	// A missing file yields an error wrapping ErrNotFound.
	ReadContent(path, fileType string) (*Content, error)
}
