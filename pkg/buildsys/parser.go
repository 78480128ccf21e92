package buildsys

import (
	"context"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"

	"github.com/aidarkhanov/nanoid"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"go.starlark.net/starlark"
	"mvdan.cc/sh/v3/syntax"
)

type parserCtx struct {
	ctx         context.Context
	ws          *Workspace
	repo        string
	pkg         string
	filepath    string
	projectRoot string
	initPhase   bool
	// defaultVisibility is set by package() and applies to targets without a visibility attribute
	defaultVisibility []string
}

// * Helpers

func getCtx(thread *starlark.Thread) *parserCtx {
	return thread.Local("parserCtx").(*parserCtx)
}

func (ctx *parserCtx) newTarget(kind Kind, name string) *Target {
	return &Target{
		Label: Label{Repo: ctx.repo, Pkg: ctx.pkg, Name: name},
		Kind:  kind,
		Dir:   filepath.Dir(ctx.filepath),
		Attrs: map[string]string{},
		Env:   map[string]string{},
	}
}

type starlarkIterable interface {
	Len() int
	Iterate() starlark.Iterator
}

func starlarkIterable2stringSlice(input starlarkIterable, field string) ([]string, error) {
	if value, ok := input.(*starlark.List); ok && value == nil {
		return []string{}, nil
	}

	result := make([]string, 0, input.Len())
	iter := input.Iterate()
	defer iter.Done()

	var item starlark.Value
	for iter.Next(&item) {
		switch value := item.(type) {
		case starlark.String:
			result = append(result, value.GoString())
		case *Target:
			result = append(result, value.Label.String())
		default:
			return nil, eris.Errorf("expected all items in %s to be strings but found %s", field, item.Type())
		}
	}
	return result, nil
}

func starlarkDict2stringMap(dict *starlark.Dict, field string) (map[string]string, error) {
	result := map[string]string{}
	if dict == nil {
		return result, nil
	}

	for _, rawKey := range dict.Keys() {
		key, ok := rawKey.(starlark.String)
		if !ok {
			return nil, eris.Errorf("found key type %s in %s but only strings are supported", rawKey.Type(), field)
		}

		rawValue, _, err := dict.Get(rawKey)
		if err != nil {
			return nil, err
		}

		value, ok := rawValue.(starlark.String)
		if !ok {
			return nil, eris.Errorf("found value of type %s for key %s but only strings are supported", rawValue.Type(), key.GoString())
		}
		result[key.GoString()] = value.GoString()
	}

	return result, nil
}

func shellReadDir(path string) ([]os.FileInfo, error) {
	if path == "" {
		path = "."
	}

	return ioutil.ReadDir(path)
}

func processCmdParts(parts starlark.Tuple, parser *syntax.Parser, base string) (*syntax.CallExpr, error) {
	envVars := make([]string, 0, len(parts))
	for _, part := range parts {
		value, ok := part.(starlark.String)
		if !ok || !strings.Contains(value.GoString(), "=") {
			break
		}
		envVars = append(envVars, value.GoString())
	}

	var cmd *syntax.CallExpr
	if len(envVars) > 0 {
		joinedEnvVars := strings.Join(envVars, " ")
		result, err := parser.Parse(strings.NewReader(joinedEnvVars), "env vars")
		if err != nil {
			return nil, eris.Wrapf(err, "failed to parse command vars %s", joinedEnvVars)
		}

		if len(result.Stmts) != 1 || result.Stmts[0].Cmd == nil {
			return nil, eris.Errorf("malformed env vars %s", joinedEnvVars)
		}

		var ok bool
		cmd, ok = result.Stmts[0].Cmd.(*syntax.CallExpr)
		if !ok || cmd.Assigns == nil {
			return nil, eris.Errorf("malformed env vars %s", joinedEnvVars)
		}
	} else {
		cmd = new(syntax.CallExpr)
	}

	argCount := len(parts) - len(envVars)
	cmd.Args = make([]*syntax.Word, argCount)
	for a, arg := range parts[len(envVars):] {
		var encodedValue string

		switch value := arg.(type) {
		case starlark.String:
			encodedValue = value.GoString()
		case StarlarkPath:
			encodedValue = string(value)

			if filepath.IsAbs(encodedValue) {
				// absolute paths cause issues on Windows
				relValue, err := filepath.Rel(base, encodedValue)
				if err == nil {
					encodedValue = relValue
				}
			}

			encodedValue = filepath.ToSlash(encodedValue)
		default:
			return nil, eris.Errorf("found argument of type %s but only strings and paths are supported: %s", arg.Type(), arg.String())
		}

		var wordPart syntax.WordPart

		if strings.ContainsAny(encodedValue, " $'") {
			node := new(syntax.SglQuoted)
			node.Value = encodedValue
			wordPart = node
		} else {
			node := new(syntax.Lit)
			node.Value = encodedValue
			wordPart = node
		}

		cmd.Args[a] = new(syntax.Word)
		cmd.Args[a].Parts = []syntax.WordPart{wordPart}
	}

	return cmd, nil
}

// * Builtin functions

func option(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name string
	var defaultValue starlark.String
	var help string

	err := starlark.UnpackArgs(fn.Name(), args, kwargs, "name", &name, "default?", &defaultValue, "help?", &help)
	if err != nil {
		return nil, err
	}

	ctx := getCtx(thread)
	if !ctx.initPhase {
		return nil, eris.New("options can only be declared in the root BUILD file")
	}

	ctx.ws.Options[name] = ScriptOption{
		DefaultValue: defaultValue,
		Help:         help,
	}

	value, ok := ctx.ws.OptionValues[name]
	if ok {
		return starlark.String(value), nil
	}

	return defaultValue, nil
}

func task(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name string
	var base string
	var deps *starlark.List
	var srcs *starlark.List
	var outputs *starlark.List
	var env *starlark.Dict
	var cmds *starlark.List
	var visibility *starlark.List

	ctx := getCtx(thread)
	target := ctx.newTarget(KindTask, "")

	err := starlark.UnpackArgs(fn.Name(), args, kwargs, "name??", &name, "hidden?", &target.Hidden,
		"desc?", &target.Desc, "deps?", &deps, "base?", &base, "srcs?", &srcs, "outputs?", &outputs,
		"env?", &env, "cmds?", &cmds, "visibility?", &visibility)
	if err != nil {
		return nil, err
	}

	anonymous := name == ""
	if anonymous {
		target.Hidden = true
		name = "auto#" + nanoid.New()
	}
	target.Label.Name = name

	if base == "" {
		base = "."
	}
	target.Attrs["base"] = normalizePath(ctx, base)

	target.Deps, err = starlarkIterable2stringSlice(deps, "deps")
	if err != nil {
		return nil, err
	}

	target.Srcs, err = starlarkIterable2stringSlice(srcs, "srcs")
	if err != nil {
		return nil, err
	}

	target.Outputs, err = starlarkIterable2stringSlice(outputs, "outputs")
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

	target.Env, err = starlarkDict2stringMap(env, "env")
	if err != nil {
		return nil, err
	}

	strBuffer := strings.Builder{}
	printer := syntax.NewPrinter(syntax.Minify(true))
	parser := syntax.NewParser()
	target.Cmds = make([]TaskCmd, 0)

	if cmds != nil {
		iter := cmds.Iterate()
		defer iter.Done()

		var item starlark.Value
		idx := 0
		for iter.Next(&item) {
			var parts starlark.Tuple

			switch value := item.(type) {
			case starlark.String:
				target.Cmds = append(target.Cmds, TaskCmdScript{TaskName: name, Index: idx, Content: value.GoString()})
			case starlark.Tuple:
				parts = value
			case *starlark.List:
				parts = make(starlark.Tuple, 0, value.Len())
				subIter := value.Iterate()
				var subItem starlark.Value
				for subIter.Next(&subItem) {
					parts = append(parts, subItem)
				}
				subIter.Done()
			case *Target:
				target.Cmds = append(target.Cmds, TaskCmdTargetRef{Target: value})
			default:
				return nil, eris.Errorf("%s: unexpected type %s. Only strings, tuples, lists and targets are valid", fn.Name(), item.Type())
			}

			if parts != nil {
				cmd, err := processCmdParts(parts, parser, target.Attrs["base"])
				if err != nil {
					return nil, eris.Wrapf(err, "failed to process command #%d", idx)
				}

				strBuffer.Reset()
				err = printer.Print(&strBuffer, cmd)
				if err != nil {
					return nil, eris.Wrapf(err, "failed to process command #%d", idx)
				}

				target.Cmds = append(target.Cmds, TaskCmdScript{TaskName: name, Index: idx, Content: strBuffer.String()})
			}

			idx++
		}
	}

	if len(target.Srcs) > 0 && len(target.Outputs) == 0 {
		buildLog(thread, zerolog.WarnLevel).Msgf("%s: found srcs but no outputs", fn.Name())
	}

	for key, value := range ctx.ws.envOverrides {
		if _, present := target.Env[key]; !present {
			target.Env[key] = value
		}
	}

	if !anonymous {
		err = ctx.ws.addTarget(target)
		if err != nil {
			return nil, err
		}
	}
	return target, nil
}
