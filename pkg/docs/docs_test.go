package docs

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/etas-contrib/score-docs-as-code/pkg/metamodel"
	"github.com/etas-contrib/score-docs-as-code/pkg/needs"
	"github.com/etas-contrib/score-docs-as-code/pkg/sourcelinks"
	"github.com/etas-contrib/score-docs-as-code/pkg/uml"
)

const indexPage = "# Platform\n\nIntro text.\n\n" +
	"```{feat} Logging\n:id: feat__logging\n:status: valid\n:includes: logic_arc_int__log\n:consists_of: comp__logger\n\nThe logging feature.\n```\n\n" +
	"```{comp} Logger\n:id: comp__logger\n:status: valid\n:implements: logic_arc_int__log\n```\n\n" +
	"```{note}\nJust a note.\n```\n\n" +
	"```uml\ndraw_feature(feat__logging)\n```\n\n" +
	"```uml\ndraw_metamodel(types=\"feat,comp\", attributes=\"status\", links=\"consists_of\")\n```\n\n" +
	"```uml\ndraw_nothing(feat__logging)\n```\n"

const interfacePage = "# Interfaces\n\n```{logic_arc_int} Log\n:id: logic_arc_int__log\n:status: valid\n```\n"

type fixture struct {
	source string
	out    string
	data   []string
}

func setup(t *testing.T) fixture {
	t.Helper()
	root := t.TempDir()
	f := fixture{
		source: filepath.Join(root, "docs"),
		out:    filepath.Join(root, "out"),
	}

	require.NoError(t, os.MkdirAll(filepath.Join(f.source, "arch"), 0770))
	require.NoError(t, os.MkdirAll(filepath.Join(f.source, "_hidden"), 0770))
	require.NoError(t, os.WriteFile(filepath.Join(f.source, "index.md"), []byte(indexPage), 0660))
	require.NoError(t, os.WriteFile(filepath.Join(f.source, "arch", "interfaces.md"), []byte(interfacePage), 0660))
	require.NoError(t, os.WriteFile(filepath.Join(f.source, "_hidden", "skip.md"), []byte("```{feat} X\n:id: feat__x\n```\n"), 0660))

	linkFile := filepath.Join(root, "links.json")
	require.NoError(t, sourcelinks.Write(linkFile, []sourcelinks.NeedLink{
		{File: "src/log.cpp", Line: 3, Tag: "# req-Id:", Need: "comp__logger", FullLine: "// req-Id: comp__logger"},
		{File: "src/log.cpp", Line: 9, Tag: "# req-Id:", Need: "comp__gone", FullLine: "// req-Id: comp__gone"},
	}))

	external := needs.Set{}
	require.NoError(t, external.Add(needs.New("stkh_req__external", "stkh_req", "External")))
	externalFile := filepath.Join(root, "external", "needs.json")
	require.NoError(t, needs.Save(externalFile, "other", "1.0", external))

	f.data = []string{linkFile, externalFile, filepath.Join(root, "README.txt")}
	return f
}

func (f fixture) builder(logger zerolog.Logger) *Builder {
	return &Builder{
		SourceDir: f.source,
		OutDir:    f.out,
		Data:      f.data,
		Title:     "Platform Docs",
		Project:   "platform",
		Logger:    logger,
	}
}

func readOut(t *testing.T, f fixture, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(f.out, name))
	require.NoError(t, err)
	return string(data)
}

func TestCollect(t *testing.T) {
	f := setup(t)
	c, err := f.builder(zerolog.Nop()).Collect(context.Background())
	require.NoError(t, err)

	require.Len(t, c.Pages, 2)
	assert.Equal(t, "arch/interfaces", c.Pages[0].Docname)
	assert.Equal(t, "Interfaces", c.Pages[0].Title)
	assert.Equal(t, "index", c.Pages[1].Docname)
	assert.Equal(t, "Platform", c.Pages[1].Title)

	assert.Equal(t, []string{"comp__logger", "feat__logging", "logic_arc_int__log", "stkh_req__external"}, c.Needs.IDs())
	assert.Equal(t, []string{"src/log.cpp:3"}, c.Needs["comp__logger"].SourceCodeLinks)
	assert.Equal(t, []string{"feat__logging"}, c.Needs["comp__logger"].BackLinks["consists_of"])
	assert.Equal(t, "The logging feature.", c.Needs["feat__logging"].Content)

	require.Len(t, c.Unknown, 1)
	assert.Equal(t, "comp__gone", c.Unknown[0].Need)
}

func TestCollectRejectsDuplicates(t *testing.T) {
	f := setup(t)
	require.NoError(t, os.WriteFile(filepath.Join(f.source, "dup.md"), []byte(interfacePage), 0660))

	_, err := f.builder(zerolog.Nop()).Collect(context.Background())
	assert.Error(t, err)
}

func TestBuild(t *testing.T) {
	f := setup(t)
	logs := bytes.Buffer{}
	_, err := f.builder(zerolog.New(&logs)).Build(context.Background())
	require.NoError(t, err)

	page := readOut(t, f, "index.html")
	assert.Contains(t, page, "<title>Platform</title>")
	assert.Contains(t, page, `<h1 id="platform">Platform</h1>`)
	assert.Contains(t, page, `<div class="need feat" id="feat__logging"><span class="need-id">feat__logging</span>`)
	assert.Contains(t, page, "<p>The logging feature.</p>")
	assert.Contains(t, page, "Just a note.")
	assert.Contains(t, page, `<pre class="plantuml">`)
	assert.Contains(t, page, "Feature_User -d-&gt; logic_arc_int__log : use")
	assert.Contains(t, page, "feat --&gt; comp : consists_of")
	assert.Contains(t, page, `class="language-uml"`)
	assert.Contains(t, logs.String(), "unknown draw function draw_nothing")

	assert.Contains(t, readOut(t, f, filepath.Join("arch", "interfaces.html")), `id="logic_arc_int__log"`)

	feature := readOut(t, f, filepath.Join("diagrams", "feat__logging.puml"))
	assert.Contains(t, feature, "@startuml\n")
	assert.Contains(t, feature, "comp__logger -u-> logic_arc_int__log : implements\n@enduml\n")
	assert.FileExists(t, filepath.Join(f.out, "diagrams", "comp__logger.puml"))
	assert.FileExists(t, filepath.Join(f.out, "diagrams", "logic_arc_int__log.puml"))
	assert.NoFileExists(t, filepath.Join(f.out, "diagrams", "stkh_req__external.puml"))

	index := readOut(t, f, GenIndexFile)
	assert.Contains(t, index, "<h1>Platform Docs</h1>")
	assert.Contains(t, index, `<a href="arch/interfaces.html">Interfaces</a>`)
	assert.Contains(t, index, `<a href="index.html#comp__logger">comp__logger</a>`)
	assert.Contains(t, index, "src/log.cpp:3")

	set, err := needs.Load(filepath.Join(f.out, NeedsFile))
	require.NoError(t, err)
	assert.Len(t, set, 4)
	assert.Equal(t, []string{"src/log.cpp:3"}, set["comp__logger"].SourceCodeLinks)
}

func TestBuildNeedsJSON(t *testing.T) {
	f := setup(t)
	_, err := f.builder(zerolog.Nop()).BuildNeedsJSON(context.Background())
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join(f.out, NeedsFile))
	assert.NoFileExists(t, filepath.Join(f.out, GenIndexFile))
	assert.NoFileExists(t, filepath.Join(f.out, "index.html"))
}

func TestValidationIssuesAreWarnings(t *testing.T) {
	f := setup(t)
	require.NoError(t, os.WriteFile(filepath.Join(f.source, "bad.md"),
		[]byte("```{comp} Broken\n:id: comp__broken\n:status: maybe\n```\n"), 0660))

	logs := bytes.Buffer{}
	_, err := f.builder(zerolog.New(&logs)).BuildNeedsJSON(context.Background())
	require.NoError(t, err)
	assert.Contains(t, logs.String(), `comp__broken: option \"status\" value \"maybe\" does not match`)
}

func TestPageTitleFallback(t *testing.T) {
	assert.Equal(t, "notes", pageTitle([]byte("## Second level\n\ntext\n"), "notes"))
	assert.Equal(t, "Hello World", pageTitle([]byte("# Hello World\n"), "x"))
}

func TestParseKwargs(t *testing.T) {
	assert.Equal(t, map[string][]string{
		"types":      {"feat", "comp"},
		"attributes": {"status"},
		"links":      {"consists_of", "includes"},
	}, parseKwargs(`types=feat,comp attributes="status", links='consists_of, includes'`))

	assert.Equal(t, map[string][]string{
		"types": {"feat", "comp"},
		"links": {"all"},
	}, parseKwargs("types=feat,comp,links=all"))
}

func TestDiagramUnquotedList(t *testing.T) {
	r := newRenderer(uml.NewDrawer(needs.Set{}, zerolog.Nop()), metamodel.Default(), zerolog.Nop())

	unquoted, err := r.Diagram("draw_metamodel(types=feat,comp)")
	require.NoError(t, err)
	assert.Contains(t, unquoted, `"feat"`)
	assert.Contains(t, unquoted, `"comp"`)

	quoted, err := r.Diagram(`draw_metamodel(types="feat,comp")`)
	require.NoError(t, err)
	assert.Equal(t, quoted, unquoted)
}
