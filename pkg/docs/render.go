package docs

import (
	"bytes"
	"fmt"
	"html"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	gmhtml "github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/text"

	"github.com/etas-contrib/score-docs-as-code/pkg/metamodel"
	"github.com/etas-contrib/score-docs-as-code/pkg/needs"
	"github.com/etas-contrib/score-docs-as-code/pkg/uml"
)

var (
	callRe   = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_]*)\s*\((.*)\)$`)
	kwargRe  = regexp.MustCompile(`(?:^|[\s,])([A-Za-z_]+)\s*=`)
	umlInfos = map[string]bool{"uml": true, "{uml}": true, "{needarch}": true, "{needuml}": true}
)

func newMarkdown() goldmark.Markdown {
	return goldmark.New(
		goldmark.WithExtensions(extension.Table, extension.Strikethrough, extension.Linkify),
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
		),
		goldmark.WithRendererOptions(
			gmhtml.WithUnsafe(),
		),
	)
}

// pageTitle returns the text of the first level 1 heading
func pageTitle(content []byte, fallback string) string {
	doc := newMarkdown().Parser().Parse(text.NewReader(content))
	title := ""

	_ = ast.Walk(doc, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		heading, ok := node.(*ast.Heading)
		if !entering || !ok || heading.Level != 1 {
			return ast.WalkContinue, nil
		}

		buf := strings.Builder{}
		_ = ast.Walk(heading, func(child ast.Node, entering bool) (ast.WalkStatus, error) {
			if t, ok := child.(*ast.Text); ok && entering {
				buf.Write(t.Segment.Value(content))
			}
			return ast.WalkContinue, nil
		})

		title = buf.String()
		return ast.WalkStop, nil
	})

	if title == "" {
		return fallback
	}
	return title
}

type renderer struct {
	md        goldmark.Markdown
	drawer    *uml.Drawer
	metamodel *metamodel.Metamodel
	logger    zerolog.Logger
}

func newRenderer(drawer *uml.Drawer, mm *metamodel.Metamodel, logger zerolog.Logger) *renderer {
	return &renderer{
		md:        newMarkdown(),
		drawer:    drawer,
		metamodel: mm,
		logger:    logger,
	}
}

// Diagram evaluates a single draw call such as draw_feature(feat__x) or
// draw_metamodel(types="feat,comp", links="all") and returns the PlantUML body.
func (r *renderer) Diagram(call string) (string, error) {
	m := callRe.FindStringSubmatch(strings.TrimSpace(call))
	if m == nil {
		return "", eris.Errorf("%q is not a draw call", call)
	}

	name, args := m[1], strings.TrimSpace(m[2])
	if name == "draw_metamodel" {
		kwargs := parseKwargs(args)
		return r.metamodel.DrawMetamodel(kwargs["types"], kwargs["attributes"], kwargs["links"])
	}

	fn, ok := r.drawer.Functions()[name]
	if !ok {
		return "", eris.Errorf("unknown draw function %s", name)
	}

	id := strings.Trim(args, `"' `)
	need, ok := r.drawer.Needs[id]
	if !ok {
		return "", eris.Errorf("%s: need %s could not be found", name, id)
	}

	return fn(need), nil
}

// parseKwargs splits name=value pairs. A value runs until the next name= so unquoted lists keep their commas.
func parseKwargs(args string) map[string][]string {
	kwargs := map[string][]string{}
	matches := kwargRe.FindAllStringSubmatchIndex(args, -1)
	for idx, m := range matches {
		end := len(args)
		if idx+1 < len(matches) {
			end = matches[idx+1][0]
		}

		value := strings.TrimSuffix(strings.TrimSpace(args[m[1]:end]), ",")
		value = strings.Trim(strings.TrimSpace(value), `"'`)
		kwargs[args[m[2]:m[3]]] = splitArg(value)
	}
	return kwargs
}

func splitArg(value string) []string {
	result := []string{}
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			result = append(result, part)
		}
	}
	return result
}

// preprocess replaces need directives and diagram fences with raw HTML blocks goldmark passes through
func (r *renderer) preprocess(page *Page) (string, error) {
	fences, err := needs.ScanFences(page.Docname, page.Content)
	if err != nil {
		return "", err
	}

	directives := map[int]*needs.Need{}
	for _, directive := range page.Directives {
		directives[directive.StartLine] = directive.Need
	}

	lines := strings.Split(strings.ReplaceAll(string(page.Content), "\r\n", "\n"), "\n")
	buf := strings.Builder{}
	next := 0

	for _, fence := range fences {
		for ; next < fence.StartLine-1; next++ {
			buf.WriteString(lines[next])
			buf.WriteString("\n")
		}

		replacement := ""
		if need, ok := directives[fence.StartLine]; ok {
			replacement = needBlock(need)
		} else if umlInfos[fence.Info] {
			body, err := r.Diagram(strings.Join(fence.Body, "\n"))
			if err != nil {
				r.logger.Warn().Str("file", page.Docname).Int("line", fence.StartLine).Err(err).Msg("Failed to draw diagram")
			} else {
				replacement = "<pre class=\"plantuml\">\n" + html.EscapeString(wrapUML(body)) + "</pre>\n\n"
			}
		}

		if replacement == "" {
			for ; next < fence.EndLine; next++ {
				buf.WriteString(lines[next])
				buf.WriteString("\n")
			}
			continue
		}

		buf.WriteString(replacement)
		next = fence.EndLine
	}

	for ; next < len(lines); next++ {
		buf.WriteString(lines[next])
		if next < len(lines)-1 {
			buf.WriteString("\n")
		}
	}

	return buf.String(), nil
}

func needBlock(need *needs.Need) string {
	status := ""
	if need.Status != "" {
		status = fmt.Sprintf(` <span class="need-status">%s</span>`, html.EscapeString(need.Status))
	}

	result := fmt.Sprintf(
		`<div class="need %s" id="%s"><span class="need-id">%s</span> <span class="need-title">%s</span>%s</div>`+"\n\n",
		html.EscapeString(need.Type), html.EscapeString(need.ID), html.EscapeString(need.ID),
		html.EscapeString(need.Title), status)

	if need.Content != "" {
		result += need.Content + "\n\n"
	}
	return result
}

func (r *renderer) renderPage(page *Page) ([]byte, error) {
	source, err := r.preprocess(page)
	if err != nil {
		return nil, err
	}

	body := bytes.Buffer{}
	err = r.md.Convert([]byte(source), &body)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to render %s", page.Docname)
	}

	out := bytes.Buffer{}
	err = pageTemplate.Execute(&out, map[string]interface{}{
		"Title": page.Title,
		"Body":  rawHTML(body.String()),
	})
	if err != nil {
		return nil, eris.Wrapf(err, "failed to render %s", page.Docname)
	}

	return out.Bytes(), nil
}
