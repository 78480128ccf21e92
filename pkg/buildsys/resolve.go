package buildsys

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/etas-contrib/score-docs-as-code/pkg/docs"
)

// OutputsOf returns the absolute paths a target produces
func (w *Workspace) OutputsOf(t *Target) ([]string, error) {
	dir := filepath.Join(w.OutDir, t.Label.Repo, filepath.FromSlash(t.Label.Pkg))

	switch t.Kind {
	case KindSourcelinks:
		return []string{filepath.Join(dir, t.Label.Name+".json")}, nil
	case KindDocs:
		return []string{
			filepath.Join(dir, t.Label.Name, docs.GenIndexFile),
			filepath.Join(dir, t.Label.Name, docs.NeedsFile),
		}, nil
	case KindNeedsJSON:
		return []string{filepath.Join(dir, t.Label.Name, docs.NeedsFile)}, nil
	case KindTask:
		root, err := w.repoRoot(t.Label.Repo)
		if err != nil {
			return nil, err
		}

		outputs, err := resolvePatternLists(root, t.Dir, t.Outputs)
		if err != nil {
			return nil, eris.Wrap(err, "failed to resolve output list")
		}

		for idx, output := range outputs {
			outputs[idx] = filepath.Clean(filepath.FromSlash(output))
		}
		return outputs, nil
	}

	return []string{}, nil
}

// ResolveSrcs turns the srcs of a target into a de-duplicated list of absolute file paths
func (w *Workspace) ResolveSrcs(t *Target) ([]string, error) {
	return w.resolveEntries(t, t.Srcs, map[string]bool{t.Label.String(): true})
}

// ResolveData does the same as ResolveSrcs for the data attribute
func (w *Workspace) ResolveData(t *Target) ([]string, error) {
	return w.resolveEntries(t, t.Data, map[string]bool{t.Label.String(): true})
}

func (w *Workspace) resolveEntries(t *Target, entries []string, visiting map[string]bool) ([]string, error) {
	result := []string{}
	seen := map[string]bool{}
	add := func(paths ...string) {
		for _, path := range paths {
			if !seen[path] {
				seen[path] = true
				result = append(result, path)
			}
		}
	}

	for _, entry := range entries {
		if IsLabel(entry) {
			files, err := w.resolveLabel(t, entry, visiting)
			if err != nil {
				return nil, err
			}
			add(files...)
			continue
		}

		files, err := w.resolvePath(t, entry)
		if err != nil {
			return nil, err
		}
		add(files...)
	}

	return result, nil
}

func (w *Workspace) resolvePath(t *Target, entry string) ([]string, error) {
	root, err := w.repoRoot(t.Label.Repo)
	if err != nil {
		return nil, err
	}

	if strings.ContainsAny(entry, "*?[") {
		paths, err := globFiles(root, t.Dir, []string{entry}, nil)
		if err != nil {
			return nil, err
		}

		for idx, path := range paths {
			paths[idx] = filepath.Join(t.Dir, filepath.FromSlash(path))
		}
		return paths, nil
	}

	path := filepath.Join(t.Dir, filepath.FromSlash(entry))
	info, err := os.Stat(path)
	if err != nil {
		return nil, eris.Errorf("%s: src %s does not exist", t.Label, entry)
	}

	if !info.IsDir() {
		return []string{path}, nil
	}

	return filesBelow(path)
}

func filesBelow(dir string) ([]string, error) {
	result := []string{}
	err := filepath.WalkDir(dir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if entry.IsDir() {
			if path != dir && strings.HasPrefix(entry.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}

		if entry.Type().IsRegular() {
			result = append(result, path)
		}
		return nil
	})
	if err != nil {
		return nil, eris.Wrapf(err, "failed to scan %s", dir)
	}

	sort.Strings(result)
	return result, nil
}

func (w *Workspace) resolveLabel(from *Target, ref string, visiting map[string]bool) ([]string, error) {
	t, err := w.Resolve(from, ref)
	if err != nil {
		var notFound *TargetNotFound
		if errors.As(err, &notFound) {
			if file, ok := w.sourceFile(from, ref); ok {
				return []string{file}, nil
			}
		}
		return nil, err
	}

	if t.Kind != KindFilegroup {
		return w.OutputsOf(t)
	}

	key := t.Label.String()
	if visiting[key] {
		return nil, &CycleError{Path: []string{from.Label.String(), key}}
	}

	visiting[key] = true
	defer delete(visiting, key)

	return w.resolveEntries(t, t.Srcs, visiting)
}

// sourceFile resolves labels like //docs:conf.yaml which name a file instead of a target
func (w *Workspace) sourceFile(from *Target, ref string) (string, bool) {
	l, err := ParseLabel(from.Label.Pkg, ref)
	if err != nil {
		return "", false
	}
	if l.Repo == "" {
		l.Repo = from.Label.Repo
	}

	dir, err := w.PackageDir(l)
	if err != nil {
		return "", false
	}

	path := filepath.Join(dir, filepath.FromSlash(l.Name))
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return "", false
	}
	return path, true
}

// ResolveFile resolves a single file attribute such as config or template. It accepts a package relative path or
// a label naming a file or a target with exactly one output.
func (w *Workspace) ResolveFile(t *Target, entry string) (string, error) {
	if entry == "" {
		return "", nil
	}

	var files []string
	var err error
	if IsLabel(entry) {
		files, err = w.resolveLabel(t, entry, map[string]bool{t.Label.String(): true})
	} else {
		files, err = w.resolvePath(t, entry)
	}
	if err != nil {
		return "", err
	}

	if len(files) != 1 {
		return "", eris.Errorf("%s: %s resolves to %d files but exactly one is needed", t.Label, entry, len(files))
	}
	return files[0], nil
}

// Dependencies returns the targets referenced by srcs, data, deps and file attributes
func (w *Workspace) Dependencies(t *Target) ([]*Target, error) {
	refs := []string{}
	refs = append(refs, t.Srcs...)
	refs = append(refs, t.Data...)
	for _, dep := range t.Deps {
		if !IsLabel(dep) {
			dep = ":" + dep
		}
		refs = append(refs, dep)
	}
	for _, attr := range []string{"config", "template", "metamodel"} {
		if value := t.Attrs[attr]; value != "" {
			refs = append(refs, value)
		}
	}

	result := []*Target{}
	seen := map[string]bool{}
	for _, ref := range refs {
		if !IsLabel(ref) {
			continue
		}

		dep, err := w.Resolve(t, ref)
		if err != nil {
			var notFound *TargetNotFound
			if errors.As(err, &notFound) {
				if _, ok := w.sourceFile(t, ref); ok {
					continue
				}
			}
			return nil, eris.Wrapf(err, "%s", t.Label)
		}

		if !seen[dep.Label.String()] {
			seen[dep.Label.String()] = true
			result = append(result, dep)
		}
	}

	return result, nil
}
