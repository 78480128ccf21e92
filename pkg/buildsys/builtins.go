package buildsys

import (
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"go.starlark.net/starlark"
	"gopkg.in/yaml.v3"
	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"
)

// resolvePath implements resolve_path(*parts, base = None). Parts may be file labels. The result is a path
// value that task commands pass on relative to their working directory.
func resolvePath(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var base starlark.Value = starlark.None
	err := starlark.UnpackArgs(fn.Name(), nil, kwargs, "base?", &base)
	if err != nil {
		return nil, err
	}
	if len(args) == 0 {
		return nil, eris.Errorf("%s: expects at least one path", fn.Name())
	}

	ctx := getCtx(thread)
	result, err := pathArg(ctx, fn.Name(), args[0])
	if err != nil {
		return nil, err
	}

	for _, arg := range args[1:] {
		part, ok := starlark.AsString(arg)
		if !ok {
			return nil, eris.Errorf("%s: got %s, want string", fn.Name(), arg.Type())
		}
		result = filepath.Join(result, filepath.FromSlash(part))
	}

	if base != starlark.None {
		baseDir, err := pathArg(ctx, fn.Name(), base)
		if err != nil {
			return nil, err
		}

		result, err = filepath.Rel(baseDir, result)
		if err != nil {
			return nil, eris.Wrapf(err, "%s: no path from %s", fn.Name(), baseDir)
		}
	}

	return StarlarkPath(result), nil
}

// logBuiltin returns info() and warn(). Their messages carry the BUILD file position.
func logBuiltin(level zerolog.Level) func(*starlark.Thread, *starlark.Builtin, starlark.Tuple, []starlark.Tuple) (starlark.Value, error) {
	return func(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var message string
		err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &message)
		if err != nil {
			return nil, err
		}

		buildLog(thread, level).Msg(message)
		return starlark.None, nil
	}
}

// starError aborts the evaluation of the BUILD file
func starError(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var message string
	err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &message)
	if err != nil {
		return nil, err
	}

	return nil, eris.New(message)
}

// getenv(key, default = "") sees values set by setenv() before the process environment
func getenv(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var key, fallback string
	err := starlark.UnpackArgs(fn.Name(), args, kwargs, "key", &key, "default?", &fallback)
	if err != nil {
		return nil, err
	}

	if value, ok := getCtx(thread).ws.envOverrides[key]; ok {
		return starlark.String(value), nil
	}
	if value, ok := os.LookupEnv(key); ok {
		return starlark.String(value), nil
	}
	return starlark.String(fallback), nil
}

// setenv stores a variable for tasks declared afterwards and for execute()
func setenv(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var key, value string
	err := starlark.UnpackArgs(fn.Name(), args, kwargs, "key", &key, "value", &value)
	if err != nil {
		return nil, err
	}

	if key == "" || strings.Contains(key, "=") {
		return nil, eris.Errorf("%s: invalid variable name %q", fn.Name(), key)
	}

	getCtx(thread).ws.envOverrides[key] = value
	return starlark.None, nil
}

// readYaml implements read_yaml(file, key = "", default = None). file is a path or a file label, for
// example the copyright config of a rule set. Without a key the whole document is returned.
func readYaml(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var file starlark.Value
	var key string
	var fallback starlark.Value = starlark.None
	err := starlark.UnpackArgs(fn.Name(), args, kwargs, "file", &file, "key?", &key, "default?", &fallback)
	if err != nil {
		return nil, err
	}

	ctx := getCtx(thread)
	path, err := pathArg(ctx, fn.Name(), file)
	if err != nil {
		return nil, err
	}

	doc, err := ctx.ws.yamlDocument(path)
	if err != nil {
		return nil, err
	}

	node := lookupNode(doc, key)
	if node == nil {
		return fallback, nil
	}

	value, err := nodeToStarlark(node)
	if err != nil {
		return nil, eris.Wrapf(err, "%s: %s", fn.Name(), workspaceRelative(ctx, path))
	}
	return value, nil
}

// yamlDocument parses a YAML file once per workspace
func (w *Workspace) yamlDocument(path string) (*yaml.Node, error) {
	if doc, ok := w.yamlCache[path]; ok {
		return doc, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to read %s", path)
	}

	doc := &yaml.Node{}
	err = yaml.Unmarshal(content, doc)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to parse %s", path)
	}

	w.yamlCache[path] = doc
	return doc, nil
}

// statBuiltin returns isdir() and isfile(). Both accept paths and file labels.
func statBuiltin(check func(fs.FileMode) bool) func(*starlark.Thread, *starlark.Builtin, starlark.Tuple, []starlark.Tuple) (starlark.Value, error) {
	return func(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var entry starlark.Value
		err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &entry)
		if err != nil {
			return nil, err
		}

		path, err := pathArg(getCtx(thread), fn.Name(), entry)
		if err != nil {
			return nil, err
		}

		info, err := os.Stat(path)
		return starlark.Bool(err == nil && check(info.Mode())), nil
	}
}

// starExec implements execute(command, format = "text", show_error = False). It returns False if the
// command fails, the output otherwise. JSON output is decoded into dicts and lists.
func starExec(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var command starlark.Value
	format := "text"
	showError := false
	err := starlark.UnpackArgs(fn.Name(), args, kwargs, "command", &command, "format?", &format, "show_error?", &showError)
	if err != nil {
		return nil, err
	}

	if format != "text" && format != "json" {
		return nil, eris.Errorf("%s: unsupported format %s", fn.Name(), format)
	}

	ctx := getCtx(thread)
	base := filepath.Dir(ctx.filepath)
	stmts, err := execStatements(fn.Name(), command, base)
	if err != nil {
		return nil, err
	}

	out := strings.Builder{}
	var stderr io.Writer
	if showError {
		stderr = os.Stderr
	}

	runner, err := interp.New(
		interp.Dir(base),
		interp.Env(expand.ListEnviron(getEnvVars(ctx.ws.envOverrides)...)),
		interp.ExecHandler(execHandler(HelperBinary)),
		interp.OpenHandler(openHandler),
		interp.StdIO(nil, &out, stderr),
		interp.Params("-e"),
	)
	if err != nil {
		return nil, eris.Wrap(err, "failed to initialize runner")
	}

	for _, stmt := range stmts {
		err = runner.Run(ctx.ctx, stmt)
		if err != nil {
			if showError {
				buildLog(thread, zerolog.ErrorLevel).Err(err).Msg("Command failed")
			}
			return starlark.False, nil
		}
	}

	if format == "text" {
		return starlark.String(out.String()), nil
	}

	// JSON documents parse as YAML flow style
	doc := &yaml.Node{}
	err = yaml.Unmarshal([]byte(out.String()), doc)
	if err != nil {
		return nil, eris.Wrapf(err, "%s: failed to parse the command output", fn.Name())
	}
	return nodeToStarlark(doc)
}

// execStatements accepts a shell script string or a tuple of arguments
func execStatements(name string, command starlark.Value, base string) ([]syntax.Node, error) {
	parser := syntax.NewParser()

	switch command := command.(type) {
	case starlark.String:
		script := TaskCmdScript{TaskName: name, Content: command.GoString()}
		stmts, err := script.ToShellStmts(parser)
		if err != nil {
			return nil, err
		}

		result := make([]syntax.Node, len(stmts))
		for idx, stmt := range stmts {
			result[idx] = stmt
		}
		return result, nil
	case starlark.Tuple:
		expr, err := processCmdParts(command, parser, base)
		if err != nil {
			return nil, err
		}
		return []syntax.Node{expr}, nil
	}

	return nil, eris.Errorf("%s: got %s for command, want string or tuple", name, command.Type())
}
