// Package docs turns a directory of MyST markdown files into HTML pages, PlantUML diagrams and a
// needs.json file.
package docs

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"

	"github.com/etas-contrib/score-docs-as-code/pkg/metamodel"
	"github.com/etas-contrib/score-docs-as-code/pkg/needs"
	"github.com/etas-contrib/score-docs-as-code/pkg/sourcelinks"
	"github.com/etas-contrib/score-docs-as-code/pkg/uml"
)

// NeedsFile is the name of the needs export in the output directory
const NeedsFile = "needs.json"

// diagramFuncs selects the drawing for each architecture need type
var diagramFuncs = map[string]string{
	"feat":          "draw_feature",
	"mod":           "draw_module",
	"comp":          "draw_component",
	"comp_arc_sta":  "draw_component",
	"logic_arc_int": "draw_interface",
	"real_arc_int":  "draw_interface",
}

// Builder renders the documentation found in SourceDir into OutDir
type Builder struct {
	SourceDir string
	OutDir    string
	// Data lists needs.json files from other builds and source link files
	Data      []string
	Metamodel *metamodel.Metamodel
	Title     string
	Project   string
	Version   string
	Logger    zerolog.Logger
}

// Page is a markdown document in SourceDir
type Page struct {
	// Docname is the slash separated path relative to SourceDir without extension
	Docname    string
	Path       string
	Title      string
	Content    []byte
	Directives []needs.Directive
}

// Collection is everything Collect found
type Collection struct {
	Pages []*Page
	Needs needs.Set
	Links []sourcelinks.NeedLink
	// Unknown holds source links pointing to needs that don't exist
	Unknown []sourcelinks.NeedLink
}

func (b *Builder) metamodel() *metamodel.Metamodel {
	if b.Metamodel == nil {
		b.Metamodel = metamodel.Default()
	}
	return b.Metamodel
}

// Collect reads all pages and data files and links needs to their source code locations
func (b *Builder) Collect(ctx context.Context) (*Collection, error) {
	mm := b.metamodel()
	opts := needs.ParseOptions{
		Types:     mm.Directives(),
		LinkNames: mm.LinkNames(),
	}

	result := &Collection{
		Needs: needs.Set{},
	}

	files, err := markdownFiles(b.SourceDir)
	if err != nil {
		return nil, err
	}

	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		content, err := os.ReadFile(file)
		if err != nil {
			return nil, eris.Wrapf(err, "failed to read %s", file)
		}

		rel, err := filepath.Rel(b.SourceDir, file)
		if err != nil {
			return nil, eris.Wrapf(err, "failed to resolve %s", file)
		}

		page := &Page{
			Docname: strings.TrimSuffix(filepath.ToSlash(rel), ".md"),
			Path:    file,
			Content: content,
		}

		page.Directives, err = needs.ScanDirectives(page.Docname, content, opts)
		if err != nil {
			return nil, err
		}

		for _, directive := range page.Directives {
			err = result.Needs.Add(directive.Need)
			if err != nil {
				return nil, eris.Wrapf(err, "%s:%d", page.Docname, directive.StartLine)
			}
		}

		page.Title = pageTitle(content, page.Docname)
		result.Pages = append(result.Pages, page)
	}

	for _, file := range b.Data {
		switch {
		case sourcelinks.IsLinkFile(file):
			links, err := sourcelinks.Read(file)
			if err != nil {
				return nil, err
			}
			result.Links = append(result.Links, links...)
		case filepath.Ext(file) == ".json":
			external, err := needs.Load(file)
			if err != nil {
				return nil, err
			}

			for _, id := range external.IDs() {
				err = result.Needs.Add(external[id])
				if err != nil {
					return nil, eris.Wrapf(err, "failed to import %s", file)
				}
			}
		default:
			b.Logger.Debug().Str("file", file).Msg("Ignoring data file")
		}
	}

	result.Unknown = result.Needs.AttachSourceLinks(result.Links)
	for _, link := range result.Unknown {
		b.Logger.Warn().Str("file", link.Location()).Msgf("Source code links to unknown need %s", link.Need)
	}

	result.Needs.ComputeBackLinks()
	return result, nil
}

func markdownFiles(root string) ([]string, error) {
	result := []string{}
	err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		name := entry.Name()
		if entry.IsDir() {
			if path != root && (strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_")) {
				return filepath.SkipDir
			}
			return nil
		}

		if filepath.Ext(name) == ".md" {
			result = append(result, path)
		}
		return nil
	})
	if err != nil {
		return nil, eris.Wrapf(err, "failed to scan %s", root)
	}

	sort.Strings(result)
	return result, nil
}

func (b *Builder) validate(c *Collection) []metamodel.ValidationIssue {
	issues := b.metamodel().Validate(c.Needs)
	for _, issue := range issues {
		need := c.Needs[issue.Need]
		event := b.Logger.Warn()
		if need != nil && need.Docname != "" {
			event = event.Str("file", need.Docname).Int("line", need.Lineno)
		}
		event.Msg(issue.String())
	}
	return issues
}

func (b *Builder) writeNeeds(c *Collection) error {
	path := filepath.Join(b.OutDir, NeedsFile)
	err := needs.Save(path, b.Project, b.Version, c.Needs)
	if err != nil {
		return err
	}

	b.Logger.Info().Str("file", path).Int("needs", len(c.Needs)).Msg("Wrote needs")
	return nil
}

// BuildNeedsJSON only collects and validates the needs and writes needs.json
func (b *Builder) BuildNeedsJSON(ctx context.Context) (*Collection, error) {
	c, err := b.Collect(ctx)
	if err != nil {
		return nil, err
	}

	b.validate(c)
	return c, b.writeNeeds(c)
}

// Build writes needs.json, one HTML file per page, the diagrams of all architecture needs and an index
func (b *Builder) Build(ctx context.Context) (*Collection, error) {
	c, err := b.BuildNeedsJSON(ctx)
	if err != nil {
		return nil, err
	}

	drawer := uml.NewDrawer(c.Needs, b.Logger)
	renderer := newRenderer(drawer, b.metamodel(), b.Logger)

	for _, page := range c.Pages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		html, err := renderer.renderPage(page)
		if err != nil {
			return nil, err
		}

		err = writeFile(filepath.Join(b.OutDir, filepath.FromSlash(page.Docname)+".html"), html)
		if err != nil {
			return nil, err
		}
	}

	err = b.writeDiagrams(c, drawer)
	if err != nil {
		return nil, err
	}

	err = b.writeIndex(c)
	if err != nil {
		return nil, err
	}

	b.Logger.Info().Int("pages", len(c.Pages)).Str("dir", b.OutDir).Msg("Built documentation")
	return c, nil
}

func (b *Builder) writeDiagrams(c *Collection, drawer *uml.Drawer) error {
	funcs := drawer.Functions()
	for _, id := range c.Needs.IDs() {
		need := c.Needs[id]
		name, ok := diagramFuncs[need.Type]
		if !ok {
			continue
		}

		body := funcs[name](need)
		path := filepath.Join(b.OutDir, "diagrams", metamodel.Sanitize(id)+".puml")
		err := writeFile(path, []byte(wrapUML(body)))
		if err != nil {
			return err
		}
	}
	return nil
}

func wrapUML(body string) string {
	if !strings.HasSuffix(body, "\n") {
		body += "\n"
	}
	return "@startuml\n" + body + "@enduml\n"
}

func writeFile(path string, data []byte) error {
	err := os.MkdirAll(filepath.Dir(path), 0770)
	if err != nil {
		return eris.Wrapf(err, "failed to create %s", filepath.Dir(path))
	}

	err = os.WriteFile(path, data, 0660)
	if err != nil {
		return eris.Wrapf(err, "failed to write %s", path)
	}
	return nil
}
