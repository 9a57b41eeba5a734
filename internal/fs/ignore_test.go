package fs

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNewIgnoreMatcher(t *testing.T) {
	t.Run("skips blank lines, comments and negations", func(t *testing.T) {
		t.Parallel()
		m := NewIgnoreMatcher([]string{"", "  ", "# comment", "!keep.log", "*.log"})
		if len(m.patterns) != 1 {
			t.Fatalf("expected 1 pattern, got %d", len(m.patterns))
		}
		if m.patterns[0].pattern != "*.log" {
			t.Errorf("expected *.log, got %s", m.patterns[0].pattern)
		}
	})

	t.Run("classifies pattern kinds", func(t *testing.T) {
		t.Parallel()
		m := NewIgnoreMatcher([]string{"*.log", "build/output", "cache/"})
		if m.patterns[0].matchPath || m.patterns[0].dirOnly {
			t.Error("*.log should be a basename pattern")
		}
		if !m.patterns[1].matchPath {
			t.Error("build/output should be a path pattern")
		}
		if !m.patterns[2].dirOnly || m.patterns[2].pattern != "cache" {
			t.Errorf("cache/ should be a directory pattern, got %+v", m.patterns[2])
		}
	})
}

func TestIgnoreMatcher_Match(t *testing.T) {
	tests := []struct {
		name         string
		patterns     []string
		relativePath string
		want         bool
	}{
		{"basename glob in root", []string{"*.sqlite-wal"}, "flowstate.sqlite-wal", true},
		{"basename glob in subdirectory", []string{"*.tmp"}, filepath.Join("projects", "project_1", "a.tmp"), true},
		{"basename glob other extension", []string{"*.tmp"}, "notes.md", false},
		{"exact basename in subdirectory", []string{".DS_Store"}, filepath.Join("projects", ".DS_Store"), true},
		{"local backup pattern", []string{"*.local-backup-*"}, "flowstate.db.local-backup-20240115", true},
		{"path pattern matches", []string{"projects/scratch.txt"}, filepath.Join("projects", "scratch.txt"), true},
		{"path pattern wrong directory", []string{"projects/scratch.txt"}, filepath.Join("other", "scratch.txt"), false},
		{"leading slash anchors to root", []string{"/notes.txt"}, "notes.txt", true},
		{"directory pattern matches nested file", []string{".git/"}, filepath.Join(".git", "objects", "ab"), true},
		{"directory pattern matches directory itself", []string{".git/"}, ".git", true},
		{"directory pattern does not match file prefix", []string{".git/"}, ".gitignore", false},
		{"no patterns matches nothing", nil, "anything.txt", false},
		{"empty path", []string{"*.log"}, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m := NewIgnoreMatcher(tt.patterns)
			if got := m.Match(tt.relativePath); got != tt.want {
				t.Errorf("Match(%q) = %v, want %v", tt.relativePath, got, tt.want)
			}
		})
	}
}

func TestNewWorkTreeMatcher(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, IgnoreFileName), []byte("# generated\nscratch/\n"), 0644); err != nil {
		t.Fatalf("writing ignore file: %v", err)
	}

	m, err := NewWorkTreeMatcher(root, []string{"*.swp"})
	if err != nil {
		t.Fatalf("NewWorkTreeMatcher() error = %v", err)
	}

	cases := map[string]bool{
		filepath.Join(".git", "index"):        true,
		"flowstate.db-journal":                true,
		filepath.Join("scratch", "x.txt"):     true,
		"notes.md.swp":                        true,
		"flowstate.db":                        false,
		filepath.Join("projects", "a", "b.md"): false,
	}
	for path, want := range cases {
		if got := m.Match(path); got != want {
			t.Errorf("Match(%q) = %v, want %v", path, got, want)
		}
	}
}

func TestParseIgnoreFile(t *testing.T) {
	t.Run("reads raw lines from file", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), IgnoreFileName)
		content := "*.log\n# comment\n\n*.tmp\nbuild/output\n"
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("writing test file: %v", err)
		}

		patterns, err := ParseIgnoreFile(path)
		if err != nil {
			t.Fatalf("ParseIgnoreFile() error = %v", err)
		}
		if len(patterns) != 5 {
			t.Fatalf("expected 5 raw lines, got %d", len(patterns))
		}

		m := NewIgnoreMatcher(patterns)
		if len(m.patterns) != 3 {
			t.Errorf("expected 3 parsed patterns, got %d", len(m.patterns))
		}
	})

	t.Run("returns nil for missing file", func(t *testing.T) {
		t.Parallel()
		patterns, err := ParseIgnoreFile(filepath.Join(t.TempDir(), IgnoreFileName))
		if err != nil {
			t.Fatalf("ParseIgnoreFile() error = %v", err)
		}
		if patterns != nil {
			t.Errorf("expected nil patterns, got %v", patterns)
		}
	})
}
