package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/etas-contrib/score-docs-as-code/pkg/sourcelinks"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	out := bytes.Buffer{}
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func write(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0770))
	require.NoError(t, os.WriteFile(path, []byte(content), 0660))
}

func TestSourcelinksGenerateAndMerge(t *testing.T) {
	dir := t.TempDir()
	write(t, filepath.Join(dir, "src", "a.py"), "# req-Id: feat__a, feat__b\n")
	write(t, filepath.Join(dir, "src", "b.rs"), "fn main() {}\n// score:req: comp__b\n")

	first := filepath.Join(dir, "first.json")
	out, err := execute(t, "sourcelinks", "generate", "--output", first, filepath.Join(dir, "src"))
	require.NoError(t, err)
	assert.Contains(t, out, "Found 3 links in 2 files")

	links, err := sourcelinks.Read(first)
	require.NoError(t, err)
	require.Len(t, links, 3)
	assert.Equal(t, "feat__a", links[0].Need)
	assert.Equal(t, "feat__b", links[1].Need)
	assert.Equal(t, "comp__b", links[2].Need)
	assert.Equal(t, 2, links[2].Line)

	merged := filepath.Join(dir, "merged.json")
	_, err = execute(t, "sourcelinks", "merge", "--output", merged, first, first)
	require.NoError(t, err)

	links, err = sourcelinks.Read(merged)
	require.NoError(t, err)
	assert.Len(t, links, 3)
}

func TestCopyrightCommand(t *testing.T) {
	dir := t.TempDir()
	config := filepath.Join(dir, "config.yaml")
	template := filepath.Join(dir, "template.txt")
	write(t, config, "author: Example Corp\nextensions:\n  .py:\n    line: \"#\"\n")
	write(t, template, "Copyright (c) {year} {author}\n")
	write(t, filepath.Join(dir, "src", "ok.py"), "# Copyright (c) 2021 Example Corp\nprint(1)\n")
	write(t, filepath.Join(dir, "src", "bad.py"), "print(2)\n")

	src := filepath.Join(dir, "src")
	out, err := execute(t, "copyright", "--fix=false", "--config", config, "--template", template, src)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2 files")
	assert.Contains(t, out, "bad.py")

	_, err = execute(t, "copyright", "--fix", "--config", config, "--template", template, src)
	require.NoError(t, err)

	content, err := os.ReadFile(filepath.Join(src, "bad.py"))
	require.NoError(t, err)
	assert.Contains(t, string(content), "# Copyright (c) ")
	assert.Contains(t, string(content), "Example Corp\n")
}

func TestMetamodelDraw(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "metamodel.yaml")
	write(t, path, `needs_types:
  - directive: feat
    title: Feature
    prefix: feat__
    mandatory_options:
      status: ^(valid|draft)$
    mandatory_links:
      satisfies: stkh_req
  - directive: stkh_req
    title: Stakeholder Requirement
    prefix: stkh_req__
`)

	out, err := execute(t, "metamodel", "draw", "--metamodel", path, "--types", "feat,stkh_req", "--attributes", "status", "--links", "all")
	require.NoError(t, err)
	assert.Contains(t, out, "@startuml\n")
	assert.Contains(t, out, "feat")
	assert.Contains(t, out, "satisfies")
	assert.Contains(t, out, "@enduml\n")
}

func TestUMLCommand(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "needs.json")
	write(t, path, `{
  "current_version": "1.0",
  "versions": {
    "1.0": {
      "needs": {
        "comp__engine": {"id": "comp__engine", "type": "comp_arc_sta", "title": "Engine"}
      }
    }
  }
}`)

	out, err := execute(t, "uml", "--needs", path, "--function", "draw_component", "--need", "comp__engine")
	require.NoError(t, err)
	assert.Contains(t, out, "@startuml\n")
	assert.Contains(t, out, "Engine")

	_, err = execute(t, "uml", "--needs", path, "--function", "draw_nothing", "--need", "comp__engine")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "draw_component")

	_, err = execute(t, "uml", "--needs", path, "--function", "draw_component", "--need", "comp__missing")
	require.Error(t, err)
}

func TestPosixHelpers(t *testing.T) {
	dir := t.TempDir()
	nested := filepath.Join(dir, "a", "b")

	_, err := execute(t, "mkdir", "-p", nested)
	require.NoError(t, err)
	assert.DirExists(t, nested)

	file := filepath.Join(dir, "file.txt")
	write(t, file, "x")
	_, err = execute(t, "mv", file, nested)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(nested, "file.txt"))

	_, err = execute(t, "mv", filepath.Join(nested, "file.txt"), filepath.Join(dir, "renamed.txt"))
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, "renamed.txt"))

	_, err = execute(t, "rm", "-r=false", "-f=false", filepath.Join(dir, "a"))
	require.Error(t, err)

	_, err = execute(t, "rm", "-r", "-f", filepath.Join(dir, "a"), filepath.Join(dir, "missing"))
	require.NoError(t, err)
	assert.NoDirExists(t, filepath.Join(dir, "a"))
}
