package buildsys

import (
	"bufio"
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/etas-contrib/score-docs-as-code/pkg/needs"
	"github.com/etas-contrib/score-docs-as-code/pkg/sourcelinks"
	"github.com/etas-contrib/score-docs-as-code/pkg/state"
)

func openStore(t *testing.T) *state.Store {
	t.Helper()
	store, err := state.Open(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

// hasLog reports whether a log line for target contains message
func hasLog(logs *bytes.Buffer, target, message string) bool {
	scanner := bufio.NewScanner(bytes.NewReader(logs.Bytes()))
	for scanner.Scan() {
		line := scanner.Text()
		if strings.Contains(line, `"target":"`+target+`"`) && strings.Contains(line, message) {
			return true
		}
	}
	return false
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestRunDocs(t *testing.T) {
	f := setupWorkspace(t)
	ws, ctx, logs := loadFixture(t, f)
	store := openStore(t)

	out := bytes.Buffer{}
	runner := NewRunner(ws, Settings{DocsTitle: "Tooling Docs"}, store)
	runner.Stdout = &out

	require.NoError(t, runner.Run(ctx, "//:docs", "//:copyright", "//:cli-help"))

	build := filepath.Join(f.root, "_build")
	assert.FileExists(t, filepath.Join(build, "score_process", "needs_json", "needs.json"))

	links, err := sourcelinks.Read(filepath.Join(build, "sourcelinks_json.json"))
	require.NoError(t, err)
	require.Len(t, links, 2)
	assert.Equal(t, "src/linker.py:5", links[0].Location())
	assert.Equal(t, "feat__linker", links[0].Need)
	assert.Equal(t, "src/sub/util.py:4", links[1].Location())

	set, err := needs.Load(filepath.Join(build, "docs", "needs.json"))
	require.NoError(t, err)
	assert.Equal(t, []string{"feat__linker", "stkh_req__traceability"}, set.IDs())
	assert.Equal(t, []string{"src/linker.py:5"}, set["feat__linker"].SourceCodeLinks)
	assert.Equal(t, []string{"src/sub/util.py:4"}, set["stkh_req__traceability"].SourceCodeLinks)

	assert.Contains(t, readFile(t, filepath.Join(build, "docs", "genindex.html")), "<h1>Tooling Docs</h1>")
	assert.FileExists(t, filepath.Join(build, "docs", "index.html"))

	assert.True(t, hasLog(logs, "//:copyright", "files checked"))
	assert.Contains(t, out.String(), "Available targets:")
	assert.Contains(t, out.String(), "//src:all_sources")

	// a second run finds nothing to do
	logs.Reset()
	runner = NewRunner(ws, Settings{DocsTitle: "Tooling Docs"}, store)
	require.NoError(t, runner.Run(ctx, "//:docs"))
	assert.True(t, hasLog(logs, "//:docs", "nothing to do"))
	assert.True(t, hasLog(logs, "//:sourcelinks_json", "nothing to do"))

	// changed sources trigger a rebuild
	writeFiles(t, f.root, map[string]string{"docs/index.md": rootPage + "\nMore text.\n"})
	logs.Reset()
	runner = NewRunner(ws, Settings{DocsTitle: "Tooling Docs"}, store)
	require.NoError(t, runner.Run(ctx, "//:docs"))
	assert.False(t, hasLog(logs, "//:docs", "nothing to do"))
	assert.True(t, hasLog(logs, "//:sourcelinks_json", "nothing to do"))
	assert.Contains(t, readFile(t, filepath.Join(build, "docs", "index.html")), "More text.")

	// missing outputs trigger a rebuild as well
	require.NoError(t, os.Remove(filepath.Join(build, "sourcelinks_json.json")))
	logs.Reset()
	runner = NewRunner(ws, Settings{DocsTitle: "Tooling Docs"}, store)
	require.NoError(t, runner.Run(ctx, "//:sourcelinks_json"))
	assert.False(t, hasLog(logs, "//:sourcelinks_json", "nothing to do"))
	assert.FileExists(t, filepath.Join(build, "sourcelinks_json.json"))

	// force ignores the cache
	logs.Reset()
	runner = NewRunner(ws, Settings{DocsTitle: "Tooling Docs"}, store)
	runner.Force = true
	require.NoError(t, runner.Run(ctx, "//:needs_json"))
	assert.False(t, hasLog(logs, "//:needs_json", "nothing to do"))
}

func TestRunCopyrightViolations(t *testing.T) {
	f := setupWorkspace(t)
	writeFiles(t, f.root, map[string]string{"src/bad.py": "print('x')\n"})
	ws, ctx, logs := loadFixture(t, f)

	runner := NewRunner(ws, Settings{}, openStore(t))
	err := runner.Run(ctx, "//:copyright")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 7 files have no valid copyright header")
	assert.True(t, hasLog(logs, "//:copyright", "missing copyright header"))

	runner = NewRunner(ws, Settings{}, runner.State)
	runner.Fix = true
	require.NoError(t, runner.Run(ctx, "//:copyright"))
	assert.True(t, strings.HasPrefix(readFile(t, filepath.Join(f.root, "src", "bad.py")), "# Copyright (c) "))
}

func TestRunCopyrightTemplateChange(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"BUILD":   `copyright_checker(name = "copyright", srcs = ["a.py"], template = "tpl.txt")` + "\n",
		"tpl.txt": "Copyright (c) {year} {author}\n",
		"a.py":    "# Copyright (c) 2025 Contributors to the Eclipse Foundation\nx = 1\n",
	})

	ctx, logs := testContext(t)
	ws, err := LoadWorkspace(ctx, root, "BUILD", nil)
	require.NoError(t, err)
	store := openStore(t)

	require.NoError(t, NewRunner(ws, Settings{}, store).Run(ctx, "//:copyright"))
	assert.True(t, hasLog(logs, "//:copyright", "1 files checked"))

	// the template isn't a src but still invalidates the last result
	writeFiles(t, root, map[string]string{
		"tpl.txt": "Copyright (c) {year} {author}\nSPDX-License-Identifier: Apache-2.0\n",
	})
	logs.Reset()
	err = NewRunner(ws, Settings{}, store).Run(ctx, "//:copyright")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 1 files have no valid copyright header")
	assert.False(t, hasLog(logs, "//:copyright", "nothing to do"))
}

func TestRunCopyrightExcludedDirectory(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"BUILD":                `copyright_checker(name = "copyright", srcs = ["third_party"], config = "cfg.yaml")` + "\n",
		"cfg.yaml":             "exclude: [\"third_party/**\"]\n",
		"third_party/lib.py":   "x = 1\n",
		"third_party/sub/m.py": "y = 2\n",
	})

	ctx, logs := testContext(t)
	ws, err := LoadWorkspace(ctx, root, "BUILD", nil)
	require.NoError(t, err)

	require.NoError(t, NewRunner(ws, Settings{}, nil).Run(ctx, "//:copyright"))
	assert.True(t, hasLog(logs, "//:copyright", "2 files checked"))
}

func TestRunDryRun(t *testing.T) {
	f := setupWorkspace(t)
	ws, ctx, logs := loadFixture(t, f)

	runner := NewRunner(ws, Settings{}, openStore(t))
	runner.DryRun = true
	require.NoError(t, runner.Run(ctx, "//:docs"))

	assert.NoDirExists(t, filepath.Join(f.root, "_build"))
	assert.True(t, hasLog(logs, "//:docs", "would run docs"))
	assert.True(t, hasLog(logs, "//:sourcelinks_json", "would run sourcelinks_json with 2 inputs"))
}

const taskBuild = `task(
    name = "gen",
    desc = "Generate out.txt",
    srcs = ["input.txt"],
    outputs = ["out.txt"],
    cmds = ["echo generated > out.txt"],
)

task(name = "first", cmds = ["echo first >> order.txt"])
task(name = "second", deps = ["first"], cmds = ["echo second >> order.txt"])

task(
    name = "env",
    env = {"GREETING": "hello"},
    cmds = [
        "echo $GREETING > env.txt",
        task(cmds = [("echo", "from helper")]),
    ],
)

task(name = "loop_a", deps = [":loop_b"])
task(name = "loop_b", deps = ["loop_a"])

task(name = "fails", cmds = ["false", "echo unreachable > never.txt"])
`

func setupTasks(t *testing.T) (string, *Workspace) {
	t.Helper()
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"BUILD":     taskBuild,
		"input.txt": "v1\n",
	})

	ctx, _ := testContext(t)
	ws, err := LoadWorkspace(ctx, root, "BUILD", nil)
	require.NoError(t, err)
	return root, ws
}

func TestRunTask(t *testing.T) {
	root, ws := setupTasks(t)
	ctx, logs := testContext(t)
	store := openStore(t)

	runner := NewRunner(ws, Settings{}, store)
	require.NoError(t, runner.Run(ctx, "//:gen"))
	assert.Equal(t, "generated\n", readFile(t, filepath.Join(root, "out.txt")))
	assert.True(t, hasLog(logs, "//:gen", "echo generated >out.txt"))

	logs.Reset()
	runner = NewRunner(ws, Settings{}, store)
	require.NoError(t, runner.Run(ctx, "//:gen"))
	assert.True(t, hasLog(logs, "//:gen", "nothing to do"))

	writeFiles(t, root, map[string]string{"input.txt": "v2\n"})
	logs.Reset()
	runner = NewRunner(ws, Settings{}, store)
	require.NoError(t, runner.Run(ctx, "//:gen"))
	assert.False(t, hasLog(logs, "//:gen", "nothing to do"))
}

func TestRunTaskDependencies(t *testing.T) {
	root, ws := setupTasks(t)
	ctx, _ := testContext(t)

	runner := NewRunner(ws, Settings{}, nil)
	require.NoError(t, runner.Run(ctx, "//:second", "//:first"))
	assert.Equal(t, "first\nsecond\n", readFile(t, filepath.Join(root, "order.txt")))
}

func TestRunTaskEnvAndRefs(t *testing.T) {
	root, ws := setupTasks(t)
	ctx, _ := testContext(t)

	out := bytes.Buffer{}
	runner := NewRunner(ws, Settings{}, nil)
	runner.Stdout = &out
	require.NoError(t, runner.Run(ctx, "//:env"))
	assert.Equal(t, "hello\n", readFile(t, filepath.Join(root, "env.txt")))
	assert.Equal(t, "from helper\n", out.String())
}

func TestRunTaskDryRun(t *testing.T) {
	root, ws := setupTasks(t)
	ctx, logs := testContext(t)

	runner := NewRunner(ws, Settings{}, nil)
	runner.DryRun = true
	require.NoError(t, runner.Run(ctx, "//:gen"))
	assert.NoFileExists(t, filepath.Join(root, "out.txt"))
	assert.True(t, hasLog(logs, "//:gen", "echo generated >out.txt"))
}

func TestRunCycle(t *testing.T) {
	_, ws := setupTasks(t)
	ctx, _ := testContext(t)

	err := NewRunner(ws, Settings{}, nil).Run(ctx, "//:loop_a")
	var cycle *CycleError
	require.True(t, errors.As(err, &cycle))
	assert.Equal(t, []string{"//:loop_a", "//:loop_b", "//:loop_a"}, cycle.Path)
	assert.Equal(t, "dependency cycle: //:loop_a -> //:loop_b -> //:loop_a", cycle.Error())
}

func TestRunFailingTask(t *testing.T) {
	root, ws := setupTasks(t)
	ctx, _ := testContext(t)

	err := NewRunner(ws, Settings{}, nil).Run(ctx, "//:fails")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "//:fails: command failed")
	assert.NoFileExists(t, filepath.Join(root, "never.txt"))
}

func TestRunUnknownTarget(t *testing.T) {
	_, ws := setupTasks(t)
	ctx, _ := testContext(t)

	err := NewRunner(ws, Settings{}, nil).Run(ctx, "//:nothing")
	var notFound *TargetNotFound
	require.True(t, errors.As(err, &notFound))
}

func TestExecute(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"BUILD": `out = execute("echo ok")
data = execute(("echo", '{"a": [1, "b"]}'), format = "json")
failed = execute("false")

if out == "ok\n" and data["a"][1] == "b" and failed == False:
    filegroup(name = "executed", srcs = [])
`,
	})

	ctx, _ := testContext(t)
	ws, err := LoadWorkspace(ctx, root, "BUILD", nil)
	require.NoError(t, err)
	lookup(t, ws, "//:executed")
}

func TestGlob(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"a.py":         "",
		"b.py":         "",
		"skip.py":      "",
		"deep/x/c.py":  "",
		"deep/x/d.txt": "",
	})

	files, err := globFiles(root, root, []string{"*.py", "deep/**/*.py", "nothing/*.py"}, []string{"skip.py"})
	require.NoError(t, err)
	assert.Equal(t, "a.py", files[0])
	assert.Equal(t, "b.py", files[1])
	assert.Contains(t, files, "deep/x/c.py")
	assert.NotContains(t, files, "skip.py")
	assert.NotContains(t, files, "deep/x/d.txt")
}
