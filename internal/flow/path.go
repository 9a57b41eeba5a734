package flow

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ProjectBundleDir returns the bundle directory for a project, relative to the data root.
func ProjectBundleDir(projectID int64) string {
	return filepath.Join("projects", fmt.Sprintf("project_%d", projectID), "attachments")
}

// IsWithin reports whether target resolves to a path inside dir.
func IsWithin(dir, target string) bool {
	dir = filepath.Clean(dir)
	target = filepath.Clean(target)
	rel, err := filepath.Rel(dir, target)
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// FileType returns the lower-case extension of name without the leading dot.
func FileType(name string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
}

// Category groups a file type into document, image, code or other.
func Category(fileType string) string {
	switch strings.ToLower(fileType) {
	case "pdf", "doc", "docx", "txt", "md", "rtf":
		return "document"
	case "png", "jpg", "jpeg", "gif", "svg", "webp":
		return "image"
	case "py", "js", "ts", "swift", "rs", "go", "java", "c", "cpp", "h", "jsx", "tsx", "css", "html":
		return "code"
	default:
		return "other"
	}
}
