package buildsys

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.starlark.net/starlark"
	starsyntax "go.starlark.net/syntax"
	"mvdan.cc/sh/v3/syntax"
)

// Kind names the rule that declared a target
type Kind string

const (
	KindCopyright   Kind = "copyright_checker"
	KindSourcelinks Kind = "sourcelinks_json"
	KindDocs        Kind = "docs"
	KindNeedsJSON   Kind = "needs_json"
	KindCLIHelper   Kind = "cli_helper"
	KindFilegroup   Kind = "filegroup"
	KindTask        Kind = "task"
)

type TaskCmdScript struct {
	TaskName string
	Content  string
	Index    int
}

func (s TaskCmdScript) ToTarget() (*Target, error) {
	return nil, nil
}

func (s TaskCmdScript) ToShellStmts(parser *syntax.Parser) ([]*syntax.Stmt, error) {
	reader := strings.NewReader(s.Content)
	result, err := parser.Parse(reader, fmt.Sprintf("%s:%d", s.TaskName, s.Index))
	if err != nil {
		return nil, eris.Wrapf(err, "failed to parse command %s", s.Content)
	}

	return result.Stmts, nil
}

type TaskCmdTargetRef struct {
	Target *Target
}

func (t TaskCmdTargetRef) ToTarget() (*Target, error) {
	return t.Target, nil
}

func (t TaskCmdTargetRef) ToShellStmts(*syntax.Parser) ([]*syntax.Stmt, error) {
	return nil, nil
}

// TaskCmd is either a shell script or a reference to another target that runs in its place
type TaskCmd interface {
	ToTarget() (*Target, error)
	ToShellStmts(*syntax.Parser) ([]*syntax.Stmt, error)
}

// Target contains the processed values passed to a rule by a BUILD file
type Target struct {
	Label Label
	Kind  Kind
	Desc  string
	// Srcs holds the unresolved entries: package relative paths, glob results and labels
	Srcs []string
	Data []string
	Deps []string
	// Attrs holds the scalar rule attributes such as config, template or source_dir
	Attrs      map[string]string
	Env        map[string]string
	Cmds       []TaskCmd
	Outputs    []string
	Visibility []string
	// Dir is the absolute package directory
	Dir    string
	Hidden bool
}

// Description returns the description shown in target listings
func (t *Target) Description() string {
	if t.Desc != "" {
		return t.Desc
	}
	return string(t.Kind)
}

// Implement starlark.Value for *Target

// String returns a string representation of the target
func (t *Target) String() string {
	return fmt.Sprintf("<%s %s>", t.Kind, t.Label)
}

// Type always returns "target" to indicate this type
func (t *Target) Type() string {
	return "target"
}

// Freeze doesn't do anything since targets are immutable anyway
func (t *Target) Freeze() {}

// Truth always returns true since a target can't be nil or None
func (t *Target) Truth() starlark.Bool {
	return starlark.True
}

// Hash always returns an error since targets are not hashable
func (t *Target) Hash() (uint32, error) {
	return 0, eris.New("target is not a hashable type")
}

// Attr exposes the label and name to BUILD files
func (t *Target) Attr(name string) (starlark.Value, error) {
	switch name {
	case "label":
		return starlark.String(t.Label.String()), nil
	case "name":
		return starlark.String(t.Label.Name), nil
	case "kind":
		return starlark.String(t.Kind), nil
	}
	return nil, nil
}

func (t *Target) AttrNames() []string {
	return []string{"kind", "label", "name"}
}

type ScriptOption struct {
	DefaultValue starlark.String
	Help         string
}

func (o ScriptOption) Default() string {
	return o.DefaultValue.GoString()
}

type StarlarkPath string

func (p StarlarkPath) String() string {
	return starlark.String(p).String()
}

func (p StarlarkPath) Type() string {
	return "path"
}

func (p StarlarkPath) Freeze() {}

func (p StarlarkPath) Truth() starlark.Bool {
	return p != ""
}

func (p StarlarkPath) Hash() (uint32, error) {
	return starlark.String(p).Hash()
}

func (p StarlarkPath) CompareSameType(op starsyntax.Token, y_ starlark.Value, depth int) (bool, error) {
	y := y_.(StarlarkPath)

	switch op {
	case starsyntax.EQL:
		return p == y, nil
	case starsyntax.NEQ:
		return p != y, nil
	case starsyntax.LT:
		return p < y, nil
	case starsyntax.LE:
		return p <= y, nil
	case starsyntax.GT:
		return p > y, nil
	case starsyntax.GE:
		return p >= y, nil
	}

	return false, eris.Errorf("unknown operator %v", op)
}

func (p StarlarkPath) Index(i int) starlark.Value {
	return starlark.String(p[i])
}

func (p StarlarkPath) Len() int {
	return len(p)
}

func (p StarlarkPath) Slice(start, end, step int) starlark.Value {
	return starlark.String(p).Slice(start, end, step)
}
