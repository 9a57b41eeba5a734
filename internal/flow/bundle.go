package flow

import "io"

// Bundle stores copied-in attachment files under the data root.
// Each project owns one directory: <dataRoot>/projects/project_<id>/attachments/.
type Bundle interface {
	// Root returns the absolute data root the bundle lives under.
	Root() string

	// Dir returns the absolute bundle directory for a project.
	Dir(projectID int64) string

	// Put copies r into the project's bundle under fileName, or under
	// name_N.ext when fileName is taken. Existing files are never overwritten.
	// It returns the stored path relative to Root.
	//
	// On failure nothing is left behind: the partial file is removed, and the
	// bundle directory is removed again if this call created it.
	Put(projectID int64, fileName string, r io.Reader) (string, error)

	// Remove deletes a stored file given its path relative to Root.
	Remove(relPath string) error
}
