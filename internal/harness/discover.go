package harness

import (
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
)

// Discover walks dir recursively and returns the regular files whose name
// ends with suffix, sorted by path. Subdirectories that cannot be read are
// skipped; only a failure on dir itself is an error.
func Discover(dir, suffix string) ([]string, error) {
	return discover(dir, suffix, slog.Default())
}

func discover(dir, suffix string, log *slog.Logger) ([]string, error) {
	var out []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			log.Warn("skipping unreadable path", "path", path, "error", err)
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() && strings.HasSuffix(d.Name(), suffix) {
			out = append(out, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(out)
	return out, nil
}
