package knowledge

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"qaforge/internal/parser"
)

// Scan reads every supported file under root. Hidden files and directories
// are skipped, as is anything matching an exclude glob (relative, slash
// separated, e.g. "drafts/**" or "**/*.tmp").
func Scan(root string, excludes []string) ([]parser.File, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	var paths []string
	err = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == root {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if excluded(rel+"/", excludes) {
				return filepath.SkipDir
			}
			return nil
		}
		if excluded(rel, excludes) || !parser.Supported(rel) {
			return nil
		}
		paths = append(paths, rel)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(paths)
	files := make([]parser.File, 0, len(paths))
	for _, rel := range paths {
		data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel))) // #nosec G304 -- rel comes from walking root
		if err != nil {
			return nil, err
		}
		files = append(files, parser.File{Name: rel, Data: data})
	}
	return files, nil
}

func excluded(path string, patterns []string) bool {
	for _, pattern := range patterns {
		if matched, err := doublestar.Match(pattern, path); err == nil && matched {
			return true
		}
	}
	return false
}
