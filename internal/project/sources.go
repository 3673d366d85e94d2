package project

import (
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
)

var sourceExts = map[string]bool{
	".c": true, ".cc": true, ".cpp": true, ".cxx": true,
}

var headerExts = map[string]bool{
	".h": true, ".hh": true, ".hpp": true, ".hxx": true,
}

// IsSource reports whether path names a compilable translation unit.
func IsSource(path string) bool { return sourceExts[filepath.Ext(path)] }

// IsHeader reports whether path names a header file.
func IsHeader(path string) bool { return headerExts[filepath.Ext(path)] }

// collectSources enumerates build inputs under dir. Recursive scans
// descend into subdirectories; withHeaders additionally admits header
// files so edits to them are picked up by change detection.
func collectSources(dir string, recursive, withHeaders bool) ([]string, error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, err
	}

	pattern := "*"
	if recursive {
		pattern = "**/*"
	}
	matches, err := doublestar.Glob(os.DirFS(dir), pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, err
	}

	var files []string
	for _, m := range matches {
		if IsSource(m) || (withHeaders && IsHeader(m)) {
			files = append(files, filepath.Join(dir, m))
		}
	}
	return files, nil
}
