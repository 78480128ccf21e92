package buildsys

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/rotisserie/eris"
	"go.starlark.net/starlark"
)

func registerRule(ctx *parserCtx, target *Target, srcs, visibility *starlark.List) (*Target, error) {
	var err error
	target.Srcs, err = starlarkIterable2stringSlice(srcs, "srcs")
	if err != nil {
		return nil, err
	}

	target.Visibility, err = starlarkIterable2stringSlice(visibility, "visibility")
	if err != nil {
		return nil, err
	}
	if len(target.Visibility) == 0 {
		target.Visibility = ctx.defaultVisibility
	}

	err = ctx.ws.addTarget(target)
	if err != nil {
		return nil, err
	}
	return target, nil
}

func copyrightChecker(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name, config, template, desc string
	var srcs, visibility *starlark.List

	err := starlark.UnpackArgs(fn.Name(), args, kwargs, "name", &name, "srcs", &srcs, "config?", &config,
		"template?", &template, "desc?", &desc, "visibility?", &visibility)
	if err != nil {
		return nil, err
	}

	ctx := getCtx(thread)
	target := ctx.newTarget(KindCopyright, name)
	target.Desc = desc
	target.Attrs["config"] = config
	target.Attrs["template"] = template

	return registerRule(ctx, target, srcs, visibility)
}

func sourcelinksJSON(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name, desc string
	var srcs, visibility *starlark.List

	err := starlark.UnpackArgs(fn.Name(), args, kwargs, "name", &name, "srcs", &srcs, "desc?", &desc,
		"visibility?", &visibility)
	if err != nil {
		return nil, err
	}

	ctx := getCtx(thread)
	target := ctx.newTarget(KindSourcelinks, name)
	target.Desc = desc

	return registerRule(ctx, target, srcs, visibility)
}

// docsRule declares the documentation build and a needs.json only variant next to it
func docsRule(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	name := "docs"
	sourceDir := "docs"
	var title, metamodel, project, version string
	var data, visibility *starlark.List

	err := starlark.UnpackArgs(fn.Name(), args, kwargs, "data?", &data, "source_dir?", &sourceDir,
		"name?", &name, "title?", &title, "metamodel?", &metamodel, "project?", &project,
		"version?", &version, "visibility?", &visibility)
	if err != nil {
		return nil, err
	}

	ctx := getCtx(thread)
	dataList, err := starlarkIterable2stringSlice(data, "data")
	if err != nil {
		return nil, err
	}

	needsName := "needs_json"
	if name != "docs" {
		needsName = name + "_needs_json"
	}

	var main *Target
	for _, kind := range []Kind{KindDocs, KindNeedsJSON} {
		targetName := name
		if kind == KindNeedsJSON {
			targetName = needsName
		}

		target := ctx.newTarget(kind, targetName)
		target.Data = dataList
		target.Attrs["source_dir"] = sourceDir
		target.Attrs["title"] = title
		target.Attrs["metamodel"] = metamodel
		target.Attrs["project"] = project
		target.Attrs["version"] = version

		if kind == KindDocs {
			target.Desc = "Build the documentation in " + sourceDir
			main = target
		} else {
			target.Desc = "Export the needs in " + sourceDir + " to needs.json"
		}

		_, err = registerRule(ctx, target, nil, visibility)
		if err != nil {
			return nil, err
		}
	}

	return main, nil
}

func cliHelper(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	name := "cli-help"
	var visibility *starlark.List

	err := starlark.UnpackArgs(fn.Name(), args, kwargs, "name?", &name, "visibility?", &visibility)
	if err != nil {
		return nil, err
	}

	ctx := getCtx(thread)
	target := ctx.newTarget(KindCLIHelper, name)
	target.Desc = "List all targets"

	return registerRule(ctx, target, nil, visibility)
}

func filegroup(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name, desc string
	var srcs, visibility *starlark.List

	err := starlark.UnpackArgs(fn.Name(), args, kwargs, "name", &name, "srcs", &srcs, "desc?", &desc,
		"visibility?", &visibility)
	if err != nil {
		return nil, err
	}

	ctx := getCtx(thread)
	target := ctx.newTarget(KindFilegroup, name)
	target.Desc = desc

	return registerRule(ctx, target, srcs, visibility)
}

// glob returns the package relative paths of all files matching include but none of exclude
func glob(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var include, exclude *starlark.List

	err := starlark.UnpackArgs(fn.Name(), args, kwargs, "include", &include, "exclude?", &exclude)
	if err != nil {
		return nil, err
	}

	includeList, err := starlarkIterable2stringSlice(include, "include")
	if err != nil {
		return nil, err
	}

	excludeList, err := starlarkIterable2stringSlice(exclude, "exclude")
	if err != nil {
		return nil, err
	}

	ctx := getCtx(thread)
	base := filepath.Dir(ctx.filepath)
	paths, err := globFiles(ctx.projectRoot, base, includeList, excludeList)
	if err != nil {
		return nil, err
	}

	items := make([]starlark.Value, len(paths))
	for idx, path := range paths {
		items[idx] = starlark.String(path)
	}
	return starlark.NewList(items), nil
}

func globFiles(projectRoot, base string, include, exclude []string) ([]string, error) {
	matches, err := resolvePatternLists(projectRoot, base, include)
	if err != nil {
		return nil, err
	}

	excluded, err := resolvePatternLists(projectRoot, base, exclude)
	if err != nil {
		return nil, err
	}

	skip := map[string]bool{}
	for _, path := range excluded {
		skip[filepath.Clean(filepath.FromSlash(path))] = true
	}

	result := []string{}
	for _, match := range matches {
		path := filepath.Clean(filepath.FromSlash(match))
		if skip[path] {
			continue
		}

		info, err := os.Stat(path)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}

		rel, err := filepath.Rel(base, path)
		if err != nil {
			return nil, eris.Wrapf(err, "failed to resolve %s", path)
		}

		skip[path] = true
		result = append(result, filepath.ToSlash(rel))
	}

	sort.Strings(result)
	return result, nil
}

func packageRule(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var defaultVisibility *starlark.List

	err := starlark.UnpackArgs(fn.Name(), args, kwargs, "default_visibility?", &defaultVisibility)
	if err != nil {
		return nil, err
	}

	ctx := getCtx(thread)
	ctx.defaultVisibility, err = starlarkIterable2stringSlice(defaultVisibility, "default_visibility")
	return starlark.None, err
}

func packageName(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 0)
	if err != nil {
		return nil, err
	}

	return starlark.String(getCtx(thread).pkg), nil
}

func localRepository(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name, path string

	err := starlark.UnpackArgs(fn.Name(), args, kwargs, "name", &name, "path", &path)
	if err != nil {
		return nil, err
	}

	ctx := getCtx(thread)
	if _, ok := ctx.ws.Repos[name]; ok {
		return nil, eris.Errorf("repository @%s is declared more than once", name)
	}

	dir := normalizePath(ctx, path)
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, eris.Errorf("repository @%s: %s is not a directory", name, dir)
	}

	ctx.ws.Repos[name] = dir
	return starlark.None, nil
}
