package buildsys

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"go.starlark.net/starlark"
	"gopkg.in/yaml.v3"
)

// normalizePath joins parts onto the directory of the BUILD file being evaluated. A part starting with //
// restarts at the workspace root and an absolute part replaces everything before it.
func normalizePath(ctx *parserCtx, parts ...string) string {
	dir := filepath.Dir(ctx.filepath)
	for _, part := range parts {
		switch {
		case strings.HasPrefix(part, "//"):
			dir = filepath.Join(ctx.projectRoot, filepath.FromSlash(part[2:]))
		case filepath.IsAbs(part):
			dir = part
		default:
			dir = filepath.Join(dir, filepath.FromSlash(part))
		}
	}

	return filepath.Clean(dir)
}

// isFileLabel tells labels such as @score_tooling//cr_checker:config.yaml or :metamodel.yaml apart from
// workspace paths like //docs, which normalizePath handles.
func isFileLabel(entry string) bool {
	return strings.HasPrefix(entry, "@") || strings.HasPrefix(entry, ":") ||
		(strings.HasPrefix(entry, "//") && strings.Contains(entry, ":"))
}

// buildFile resolves a path or file label written in a BUILD file. Labels of external repositories
// resolve below the path given to local_repository.
func buildFile(ctx *parserCtx, entry string) (string, error) {
	if !isFileLabel(entry) {
		return normalizePath(ctx, entry), nil
	}

	label, err := ParseLabel(ctx.pkg, entry)
	if err != nil {
		return "", err
	}
	if !strings.HasPrefix(entry, "@") {
		label.Repo = ctx.repo
	}

	dir, err := ctx.ws.PackageDir(label)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, filepath.FromSlash(label.Name)), nil
}

// pathArg accepts strings, labels and values returned by resolve_path
func pathArg(ctx *parserCtx, fnName string, value starlark.Value) (string, error) {
	switch value := value.(type) {
	case StarlarkPath:
		return string(value), nil
	case starlark.String:
		return buildFile(ctx, value.GoString())
	default:
		return "", eris.Errorf("%s: got %s, want string, label or path", fnName, value.Type())
	}
}

// workspaceRelative turns paths inside the workspace into //-prefixed paths for log output
func workspaceRelative(ctx *parserCtx, path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}

	rel, err := filepath.Rel(ctx.projectRoot, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return path
	}
	if rel == "." {
		return "//"
	}
	return "//" + filepath.ToSlash(rel)
}

// buildLog starts an event that points at the BUILD file position of the calling statement
func buildLog(thread *starlark.Thread, level zerolog.Level) *zerolog.Event {
	ctx := getCtx(thread)
	pos := thread.CallFrame(1).Pos

	return log(ctx.ctx).WithLevel(level).
		Str("file", fmt.Sprintf("%s:%d:%d", workspaceRelative(ctx, ctx.filepath), pos.Line, pos.Col))
}

// getEnvVars merges the process environment with overrides from setenv() or a task's env attribute
func getEnvVars(overrides map[string]string) []string {
	env := map[string]string{}
	for _, item := range os.Environ() {
		key, value, _ := strings.Cut(item, "=")
		if runtime.GOOS == "windows" {
			key = strings.ToUpper(key)
		}
		env[key] = value
	}

	for key, value := range overrides {
		env[key] = value
	}

	result := make([]string, 0, len(env))
	for key, value := range env {
		result = append(result, key+"="+value)
	}
	sort.Strings(result)
	return result
}

// lookupNode follows a dotted key through mappings and sequences. Sequence items are addressed by index.
// A nil result means the key doesn't exist.
func lookupNode(node *yaml.Node, key string) *yaml.Node {
	if node.Kind == yaml.DocumentNode && len(node.Content) > 0 {
		node = node.Content[0]
	}
	if key == "" {
		return node
	}

	for _, part := range strings.Split(key, ".") {
		for node.Kind == yaml.AliasNode {
			node = node.Alias
		}

		switch node.Kind {
		case yaml.MappingNode:
			var next *yaml.Node
			for idx := 0; idx+1 < len(node.Content); idx += 2 {
				if node.Content[idx].Value == part {
					next = node.Content[idx+1]
					break
				}
			}
			if next == nil {
				return nil
			}
			node = next
		case yaml.SequenceNode:
			idx, err := strconv.Atoi(part)
			if err != nil || idx < 0 || idx >= len(node.Content) {
				return nil
			}
			node = node.Content[idx]
		default:
			return nil
		}
	}

	return node
}

// nodeToStarlark converts a YAML (or JSON) node. Mappings become dicts and sequences become lists.
func nodeToStarlark(node *yaml.Node) (starlark.Value, error) {
	switch node.Kind {
	case yaml.DocumentNode:
		if len(node.Content) == 0 {
			return starlark.None, nil
		}
		return nodeToStarlark(node.Content[0])
	case yaml.AliasNode:
		return nodeToStarlark(node.Alias)
	case yaml.SequenceNode:
		items := make([]starlark.Value, 0, len(node.Content))
		for _, child := range node.Content {
			item, err := nodeToStarlark(child)
			if err != nil {
				return nil, err
			}
			items = append(items, item)
		}
		return starlark.NewList(items), nil
	case yaml.MappingNode:
		dict := starlark.NewDict(len(node.Content) / 2)
		for idx := 0; idx+1 < len(node.Content); idx += 2 {
			value, err := nodeToStarlark(node.Content[idx+1])
			if err != nil {
				return nil, err
			}
			err = dict.SetKey(starlark.String(node.Content[idx].Value), value)
			if err != nil {
				return nil, err
			}
		}
		return dict, nil
	case yaml.ScalarNode:
		return scalarToStarlark(node)
	}

	return nil, eris.Errorf("line %d: unsupported YAML node", node.Line)
}

func scalarToStarlark(node *yaml.Node) (starlark.Value, error) {
	switch node.ShortTag() {
	case "!!null":
		return starlark.None, nil
	case "!!bool":
		var value bool
		if err := node.Decode(&value); err != nil {
			return nil, eris.Wrapf(err, "line %d", node.Line)
		}
		return starlark.Bool(value), nil
	case "!!int":
		var value int64
		if err := node.Decode(&value); err != nil {
			return nil, eris.Wrapf(err, "line %d", node.Line)
		}
		return starlark.MakeInt64(value), nil
	case "!!float":
		var value float64
		if err := node.Decode(&value); err != nil {
			return nil, eris.Wrapf(err, "line %d", node.Line)
		}
		return starlark.Float(value), nil
	default:
		return starlark.String(node.Value), nil
	}
}
