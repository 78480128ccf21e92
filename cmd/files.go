package cmd

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
)

// expandPaths replaces every directory in paths with the regular files below it. Hidden directories are
// skipped.
func expandPaths(paths []string) ([]string, error) {
	result := []string{}
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, eris.Wrapf(err, "could not find %s", path)
		}

		if !info.IsDir() {
			result = append(result, path)
			continue
		}

		found := []string{}
		err = filepath.WalkDir(path, func(item string, entry fs.DirEntry, err error) error {
			if err != nil {
				return err
			}

			if entry.IsDir() {
				if item != path && strings.HasPrefix(entry.Name(), ".") {
					return filepath.SkipDir
				}
				return nil
			}

			if entry.Type().IsRegular() {
				found = append(found, item)
			}
			return nil
		})
		if err != nil {
			return nil, eris.Wrapf(err, "failed to scan %s", path)
		}

		sort.Strings(found)
		result = append(result, found...)
	}

	return result, nil
}
