package buildsys

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"go.starlark.net/resolve"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
	"gopkg.in/yaml.v3"
)

func init() {
	// allows if and for statements at the top level of BUILD files
	resolve.AllowGlobalReassign = true
}

// Workspace holds every package loaded so far and the targets they declared
type Workspace struct {
	Root      string
	BuildFile string
	// OutDir receives the outputs of all rules
	OutDir       string
	Options      map[string]ScriptOption
	OptionValues map[string]string
	// Repos maps local_repository names to their absolute paths
	Repos map[string]string

	ctx          context.Context
	targets      map[string]*Target
	packages     map[string]bool
	envOverrides map[string]string
	yamlCache    map[string]*yaml.Node
}

// LoadWorkspace evaluates the root BUILD file. Other packages are loaded once a label refers to them.
func LoadWorkspace(ctx context.Context, root, buildFile string, options map[string]string) (*Workspace, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to resolve %s", root)
	}

	if buildFile == "" {
		buildFile = "BUILD"
	}
	if options == nil {
		options = map[string]string{}
	}

	ws := &Workspace{
		Root:         root,
		BuildFile:    buildFile,
		OutDir:       filepath.Join(root, "_build"),
		Options:      map[string]ScriptOption{},
		OptionValues: options,
		Repos:        map[string]string{},
		ctx:          ctx,
		targets:      map[string]*Target{},
		packages:     map[string]bool{},
		envOverrides: map[string]string{},
		yamlCache:    map[string]*yaml.Node{},
	}

	if _, err := ws.findBuildFile(root); err != nil {
		return nil, eris.Wrapf(err, "%s is not a workspace", root)
	}

	err = ws.loadPackage("", "")
	if err != nil {
		return nil, err
	}

	return ws, nil
}

func (w *Workspace) findBuildFile(dir string) (string, error) {
	candidates := []string{w.BuildFile, "BUILD.bazel", "BUILD"}
	for _, name := range candidates {
		path := filepath.Join(dir, name)
		info, err := os.Stat(path)
		if err == nil && info.Mode().IsRegular() {
			return path, nil
		}
	}

	return "", eris.Errorf("no %s file in %s", w.BuildFile, dir)
}

func (w *Workspace) repoRoot(repo string) (string, error) {
	if repo == "" {
		return w.Root, nil
	}

	path, ok := w.Repos[repo]
	if !ok {
		return "", eris.Errorf("unknown repository @%s", repo)
	}
	return path, nil
}

// PackageDir returns the directory of the package a label belongs to
func (w *Workspace) PackageDir(l Label) (string, error) {
	root, err := w.repoRoot(l.Repo)
	if err != nil {
		return "", err
	}
	return filepath.Join(root, filepath.FromSlash(l.Pkg)), nil
}

func (w *Workspace) loadPackage(repo, pkg string) error {
	key := repo + "//" + pkg
	if w.packages[key] {
		return nil
	}
	w.packages[key] = true

	dir, err := w.PackageDir(Label{Repo: repo, Pkg: pkg})
	if err != nil {
		return err
	}

	root, _ := w.repoRoot(repo)
	filename, err := w.findBuildFile(dir)
	if err != nil {
		return err
	}

	threadCtx := &parserCtx{
		ctx:         w.ctx,
		ws:          w,
		repo:        repo,
		pkg:         pkg,
		filepath:    filename,
		projectRoot: root,
		initPhase:   repo == "" && pkg == "",
	}

	thread := &starlark.Thread{
		Name: key,
		Print: func(thread *starlark.Thread, msg string) {
			buildLog(thread, zerolog.InfoLevel).Msg(msg)
		},
		Load: func(thread *starlark.Thread, module string) (starlark.StringDict, error) {
			// extension files of rule sets resolve to the built-in rules
			return w.builtins(), nil
		},
	}
	thread.SetLocal("parserCtx", threadCtx)

	script, err := os.ReadFile(filename)
	if err != nil {
		return eris.Wrapf(err, "failed to read file")
	}

	log(w.ctx).Debug().Str("file", workspaceRelative(threadCtx, filename)).Msg("Loading package")
	_, err = starlark.ExecFile(thread, workspaceRelative(threadCtx, filename), script, w.builtins())
	if err != nil {
		if evalError, ok := err.(*starlark.EvalError); ok {
			return eris.Errorf("failed to execute %s:\n%s", workspaceRelative(threadCtx, filename), evalError.Backtrace())
		}
		return eris.Wrapf(err, "failed to execute %s", workspaceRelative(threadCtx, filename))
	}

	return nil
}

func (w *Workspace) builtins() starlark.StringDict {
	return starlark.StringDict{
		"OS":                starlark.String(runtime.GOOS),
		"ARCH":              starlark.String(runtime.GOARCH),
		"info":              starlark.NewBuiltin("info", logBuiltin(zerolog.InfoLevel)),
		"warn":              starlark.NewBuiltin("warn", logBuiltin(zerolog.WarnLevel)),
		"error":             starlark.NewBuiltin("error", starError),
		"resolve_path":      starlark.NewBuiltin("resolve_path", resolvePath),
		"option":            starlark.NewBuiltin("option", option),
		"getenv":            starlark.NewBuiltin("getenv", getenv),
		"setenv":            starlark.NewBuiltin("setenv", setenv),
		"read_yaml":         starlark.NewBuiltin("read_yaml", readYaml),
		"isdir":             starlark.NewBuiltin("isdir", statBuiltin(fs.FileMode.IsDir)),
		"isfile":            starlark.NewBuiltin("isfile", statBuiltin(fs.FileMode.IsRegular)),
		"execute":           starlark.NewBuiltin("execute", starExec),
		"struct":            starlark.NewBuiltin("struct", starlarkstruct.Make),
		"glob":              starlark.NewBuiltin("glob", glob),
		"package":           starlark.NewBuiltin("package", packageRule),
		"local_repository":  starlark.NewBuiltin("local_repository", localRepository),
		"task":              starlark.NewBuiltin("task", task),
		"filegroup":         starlark.NewBuiltin("filegroup", filegroup),
		"copyright_checker": starlark.NewBuiltin("copyright_checker", copyrightChecker),
		"sourcelinks_json":  starlark.NewBuiltin("sourcelinks_json", sourcelinksJSON),
		"docs":              starlark.NewBuiltin("docs", docsRule),
		"cli_helper":        starlark.NewBuiltin("cli_helper", cliHelper),
		"native": &starlarkstruct.Module{
			Name: "native",
			Members: starlark.StringDict{
				"glob":         starlark.NewBuiltin("glob", glob),
				"package_name": starlark.NewBuiltin("package_name", packageName),
			},
		},
	}
}

func (w *Workspace) addTarget(t *Target) error {
	key := t.Label.String()
	if _, ok := w.targets[key]; ok {
		return eris.Errorf("target %s is declared more than once", key)
	}

	w.targets[key] = t
	return nil
}

// LoadAll loads every package below the workspace root
func (w *Workspace) LoadAll() error {
	dirs := []string{}
	err := filepath.WalkDir(w.Root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if !entry.IsDir() {
			return nil
		}

		name := entry.Name()
		if path != w.Root && (strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") || strings.HasPrefix(name, "bazel-")) {
			return filepath.SkipDir
		}
		if path == w.OutDir {
			return filepath.SkipDir
		}

		if _, err := w.findBuildFile(path); err == nil {
			dirs = append(dirs, path)
		}
		return nil
	})
	if err != nil {
		return eris.Wrapf(err, "failed to scan %s", w.Root)
	}

	for _, dir := range dirs {
		rel, err := filepath.Rel(w.Root, dir)
		if err != nil {
			return eris.Wrapf(err, "failed to resolve %s", dir)
		}

		pkg := filepath.ToSlash(rel)
		if pkg == "." {
			pkg = ""
		}

		err = w.loadPackage("", pkg)
		if err != nil {
			return err
		}
	}

	return nil
}

// Lookup returns the target a label names and loads its package if necessary
func (w *Workspace) Lookup(l Label) (*Target, error) {
	dir, err := w.PackageDir(l)
	if err != nil {
		return nil, &TargetNotFound{Label: l.String(), Reason: err.Error()}
	}

	if _, err := w.findBuildFile(dir); err != nil {
		return nil, &TargetNotFound{Label: l.String(), Reason: err.Error()}
	}

	err = w.loadPackage(l.Repo, l.Pkg)
	if err != nil {
		return nil, err
	}

	t, ok := w.targets[l.String()]
	if !ok {
		return nil, &TargetNotFound{Label: l.String()}
	}
	return t, nil
}

// Targets returns all loaded, visible to the user targets sorted by label
func (w *Workspace) Targets() []*Target {
	result := make([]*Target, 0, len(w.targets))
	for _, t := range w.targets {
		if !t.Hidden {
			result = append(result, t)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Label.String() < result[j].Label.String()
	})
	return result
}

// Listing prints all loaded targets with their descriptions
func (w *Workspace) Listing(out io.Writer) {
	targets := w.Targets()
	width := 0
	for _, t := range targets {
		if len(t.Label.String()) > width {
			width = len(t.Label.String())
		}
	}

	fmt.Fprintln(out, "Available targets:")
	for _, t := range targets {
		fmt.Fprintf(out, "  * %-*s  %s\n", width, t.Label.String(), t.Description())
	}

	if len(w.Options) > 0 {
		names := make([]string, 0, len(w.Options))
		for name := range w.Options {
			names = append(names, name)
		}
		sort.Strings(names)

		fmt.Fprintln(out, "\nOptions:")
		for _, name := range names {
			opt := w.Options[name]
			value, ok := w.OptionValues[name]
			if !ok {
				value = opt.Default()
			}
			fmt.Fprintf(out, "  * %s=%s  %s\n", name, value, opt.Help)
		}
	}
}

// Visible reports whether t may be referenced from the package of from
func (w *Workspace) Visible(t *Target, from Label) bool {
	if t.Label.PackageKey() == from.PackageKey() {
		return true
	}

	for _, entry := range t.Visibility {
		switch entry {
		case "//visibility:public":
			return true
		case "//visibility:private":
			continue
		}

		l, err := ParseLabel(t.Label.Pkg, entry)
		if err != nil || l.Repo != from.Repo {
			continue
		}

		switch l.Name {
		case "__pkg__":
			if from.Pkg == l.Pkg {
				return true
			}
		case "__subpackages__":
			if l.Pkg == "" || from.Pkg == l.Pkg || strings.HasPrefix(from.Pkg, l.Pkg+"/") {
				return true
			}
		}
	}

	return false
}

// Resolve looks up ref relative to the target from and checks that it's visible
func (w *Workspace) Resolve(from *Target, ref string) (*Target, error) {
	l, err := ParseLabel(from.Label.Pkg, ref)
	if err != nil {
		return nil, err
	}
	if l.Repo == "" {
		l.Repo = from.Label.Repo
	}

	t, err := w.Lookup(l)
	if err != nil {
		return nil, err
	}

	if !w.Visible(t, from.Label) {
		return nil, &VisibilityError{Target: t.Label.String(), From: from.Label.String()}
	}
	return t, nil
}
