package docs

import (
	"bytes"
	"html/template"
	"path/filepath"

	"github.com/rotisserie/eris"

	"github.com/etas-contrib/score-docs-as-code/pkg/needs"
)

// GenIndexFile lists all pages and needs
const GenIndexFile = "genindex.html"

type rawHTML = template.HTML

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{ .Title }}</title>
</head>
<body>
{{ .Body }}
</body>
</html>
`))

var indexTemplate = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{ .Title }}</title>
</head>
<body>
<h1>{{ .Title }}</h1>
<h2>Pages</h2>
<ul>
{{- range .Pages }}
<li><a href="{{ .Docname }}.html">{{ .Title }}</a></li>
{{- end }}
</ul>
<h2>Needs</h2>
<table>
<tr><th>ID</th><th>Type</th><th>Title</th><th>Status</th><th>Source</th></tr>
{{- range .Needs }}
<tr id="{{ .ID }}"><td>{{ if .Docname }}<a href="{{ .Docname }}.html#{{ .ID }}">{{ .ID }}</a>{{ else }}{{ .ID }}{{ end }}</td><td>{{ .Type }}</td><td>{{ .Title }}</td><td>{{ .Status }}</td><td>{{ range $idx, $link := .SourceCodeLinks }}{{ if $idx }}<br>{{ end }}{{ $link }}{{ end }}</td></tr>
{{- end }}
</table>
</body>
</html>
`))

func (b *Builder) writeIndex(c *Collection) error {
	title := b.Title
	if title == "" {
		title = "Documentation"
	}

	sorted := make([]*needs.Need, 0, len(c.Needs))
	for _, id := range c.Needs.IDs() {
		sorted = append(sorted, c.Needs[id])
	}

	buf := bytes.Buffer{}
	err := indexTemplate.Execute(&buf, map[string]interface{}{
		"Title": title,
		"Pages": c.Pages,
		"Needs": sorted,
	})
	if err != nil {
		return eris.Wrap(err, "failed to render index")
	}

	return writeFile(filepath.Join(b.OutDir, GenIndexFile), buf.Bytes())
}
